package chart

import (
	"bytes"
	"encoding/base64"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/SeldomQA/seldom-atx/model"
	"github.com/stretchr/testify/require"
)

func series(n int) model.Series {
	s := model.NewSeries(model.MetricMemory)
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		s.Append(start.Add(time.Duration(i)*500*time.Millisecond), float64(100+i), 20, 10)
	}
	return s
}

func TestRender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.jpg")
	encoded, err := Render(series(3), "Memory", path)
	require.NoError(t, err)

	data, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, onDisk, data)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	require.Greater(t, cfg.Width, cfg.Height)
}

func TestRender_Empty(t *testing.T) {
	_, err := Render(model.NewSeries(model.MetricCPU), "CPU", filepath.Join(t.TempDir(), "cpu.jpg"))
	require.ErrorIs(t, err, ErrNoSamples)
}

func TestWidth(t *testing.T) {
	require.Equal(t, Width(1), Width(25))
	require.Greater(t, Width(100), Width(25))
}

func TestTimeTicks(t *testing.T) {
	ticks := timeTicks(series(100))
	require.Len(t, ticks, 100)

	labelled := 0
	for _, tick := range ticks {
		if tick.Label != "" {
			labelled++
		}
	}
	require.LessOrEqual(t, labelled, maxTicks)
	require.Equal(t, "10:00:00", ticks[0].Label)
	require.Equal(t, 0.5, ticks[1].Value)
}
