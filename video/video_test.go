package video

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWindows(t *testing.T) {
	tests := []struct {
		name    string
		info    Info
		seconds float64
		want    []Range
	}{
		{
			name:    "long clip has two windows",
			info:    Info{FPS: 45, Frames: 900},
			seconds: 5,
			want:    []Range{{From: 0, To: 225}, {From: 675, To: 900}},
		},
		{
			name:    "short clip is extracted once",
			info:    Info{FPS: 45, Frames: 200},
			seconds: 5,
			want:    []Range{{From: 0, To: 200}},
		},
		{
			name:    "overlapping windows merge",
			info:    Info{FPS: 45, Frames: 400},
			seconds: 5,
			want:    []Range{{From: 0, To: 400}},
		},
		{
			name:    "exactly two windows",
			info:    Info{FPS: 10, Frames: 100},
			seconds: 5,
			want:    []Range{{From: 0, To: 100}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Windows(tt.info, tt.seconds))
		})
	}
}

func TestParseProbe(t *testing.T) {
	info, err := parseProbe([]byte(`{"streams": [{"r_frame_rate": "45/1", "avg_frame_rate": "45/1", "nb_read_frames": "312"}]}`))
	require.NoError(t, err)
	require.Equal(t, Info{FPS: 45, Frames: 312}, info)
	require.InDelta(t, 6.93, info.Duration(), 0.01)

	info, err = parseProbe([]byte(`{"streams": [{"r_frame_rate": "0/0", "avg_frame_rate": "30000/1001", "nb_read_frames": "10"}]}`))
	require.NoError(t, err)
	require.InDelta(t, 29.97, info.FPS, 0.01)

	_, err = parseProbe([]byte(`{"streams": []}`))
	require.Error(t, err)

	_, err = parseProbe([]byte(`{"streams": [{"r_frame_rate": "45/1", "nb_read_frames": "N/A"}]}`))
	require.Error(t, err)
}

func TestExtractArgs(t *testing.T) {
	args := extractArgs("in.mp4", "out", Range{From: 675, To: 900})
	require.Contains(t, args, `select=between(n\,675\,899)`)
	require.Contains(t, args, "675")
	require.Equal(t, filepath.Join("out", "frame_%06d.jpg"), args[len(args)-1])
}
