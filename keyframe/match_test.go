package keyframe

import (
	"fmt"
	"image"
	"image/color"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testWords = 1024

// hashWithBits returns a hash at distance k from the zero reference.
func hashWithBits(k int) Hash {
	h := make(Hash, testWords)
	for i := 0; i < k; i++ {
		h[i/64] |= 1 << (uint(i) % 64)
	}
	return h
}

// fakeMatcher serves frame hashes from distances instead of decoding images.
func fakeMatcher(window int, distances []int) (*Matcher, []Frame) {
	m := NewMatcher(zerolog.Nop(), window)
	byPath := make(map[string]Hash)
	frames := make([]Frame, len(distances))
	for i, d := range distances {
		path := fmt.Sprintf("frame_%06d.jpg", i)
		frames[i] = Frame{Path: path, Index: i}
		byPath[path] = hashWithBits(d)
	}
	m.hash = func(path string) (Hash, error) {
		h, ok := byPath[path]
		if !ok {
			return nil, fmt.Errorf("unknown frame %s", path)
		}
		return h, nil
	}
	return m, frames
}

func TestParseFrameIndex(t *testing.T) {
	idx, err := ParseFrameIndex("/tmp/frames/frame_000123.jpg")
	require.NoError(t, err)
	require.Equal(t, 123, idx)

	_, err = ParseFrameIndex("key.jpg")
	require.Error(t, err)

	_, err = ParseFrameIndex("frame_abcdef.jpg")
	require.Error(t, err)
}

func TestListFrames(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"frame_000010.jpg", "frame_000002.jpg", "notes.txt", "start.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "key_frame"), 0755))

	frames, err := ListFrames(dir)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	require.Equal(t, 2, frames[0].Index)
	require.Equal(t, 10, frames[1].Index)
}

func TestMatcher_FindStart(t *testing.T) {
	tests := []struct {
		name      string
		window    int
		distances []int
		want      int
	}{
		{
			name:      "near ties move the match later",
			window:    100,
			distances: []int{500, 40, 90, 300, 120},
			want:      4,
		},
		{
			name:      "strictly better match wins",
			window:    100,
			distances: []int{5000, 3000, 10, 4000},
			want:      2,
		},
		{
			name:      "only the first window is scanned on long clips",
			window:    2,
			distances: []int{300, 200, 0, 0, 0, 0},
			want:      1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, frames := fakeMatcher(tt.window, tt.distances)
			got, err := m.FindStart(make(Hash, testWords), frames)
			require.NoError(t, err)
			require.Equal(t, tt.want, got.Index)
			require.Equal(t, tt.distances[tt.want], got.Distance)
		})
	}
}

func TestMatcher_FindStop(t *testing.T) {
	tests := []struct {
		name      string
		window    int
		distances []int
		want      int
	}{
		{
			name:      "earliest near tie of the final best",
			window:    100,
			distances: []int{500, 300, 90, 40, 10, 200},
			want:      2,
		},
		{
			name:      "single clear best",
			window:    100,
			distances: []int{5000, 4000, 0, 3000},
			want:      2,
		},
		{
			name:      "only the late window is scanned on long clips",
			window:    2,
			distances: []int{0, 0, 900, 700, 800, 650},
			want:      3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, frames := fakeMatcher(tt.window, tt.distances)
			got, err := m.FindStop(make(Hash, testWords), frames)
			require.NoError(t, err)
			require.Equal(t, tt.want, got.Index)
		})
	}
}

func TestMatcher_NoMatch(t *testing.T) {
	m := NewMatcher(zerolog.Nop(), 10)
	_, err := m.FindStart(make(Hash, testWords), nil)
	require.ErrorIs(t, err, ErrNoMatch)
	_, err = m.FindStop(make(Hash, testWords), nil)
	require.ErrorIs(t, err, ErrNoMatch)

	// Undecodable frames are skipped, leaving no candidate.
	dir := t.TempDir()
	path := filepath.Join(dir, "frame_000000.jpg")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0644))
	frames, err := ListFrames(dir)
	require.NoError(t, err)
	_, err = m.FindStart(make(Hash, testWords), frames)
	require.ErrorIs(t, err, ErrNoMatch)
}

func TestMatcher_ReferenceClip(t *testing.T) {
	// Frames 0..99 show the reference screen, the rest are noise.
	dir := t.TempDir()
	ref := splitImage(false)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 130; i++ {
		var img image.Image = ref
		if i >= 100 {
			noise := image.NewGray(image.Rect(0, 0, 64, 64))
			for p := range noise.Pix {
				noise.Pix[p] = uint8(rng.Intn(256))
			}
			img = noise
		}
		writeJPEG(t, filepath.Join(dir, fmt.Sprintf("frame_%06d.jpg", i)), img)
	}
	refPath := filepath.Join(dir, "ref.jpg")
	writeJPEG(t, refPath, ref)

	refHash, err := HashFile(refPath)
	require.NoError(t, err)
	frames, err := ListFrames(dir)
	require.NoError(t, err)
	require.Len(t, frames, 130)

	m := NewMatcher(zerolog.Nop(), 1000)
	start, err := m.FindStart(refHash, frames)
	require.NoError(t, err)
	require.Equal(t, 99, start.Index)
	require.Equal(t, 0, start.Distance)

	stop, err := m.FindStop(refHash, frames)
	require.NoError(t, err)
	require.Equal(t, 0, stop.Index)
	require.Equal(t, 0, stop.Distance)

	// Solid colour frames are never confused with the reference.
	require.Greater(t, Distance(refHash, Compute(solidImage(color.White))), TieThreshold)
}
