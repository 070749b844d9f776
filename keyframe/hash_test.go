package keyframe

import (
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func solidImage(c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 128))
	for y := 0; y < 128; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// splitImage is black on the left half and white on the right half, or the
// opposite when inverted.
func splitImage(inverted bool) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 320, 320))
	for y := 0; y < 320; y++ {
		for x := 0; x < 320; x++ {
			white := x >= 160
			if inverted {
				white = !white
			}
			if white {
				img.Set(x, y, color.White)
			} else {
				img.Set(x, y, color.Black)
			}
		}
	}
	return img
}

func writeJPEG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, jpeg.Encode(f, img, &jpeg.Options{Quality: 95}))
}

func TestCompute_Solid(t *testing.T) {
	h := Compute(solidImage(color.RGBA{R: 40, G: 200, B: 90, A: 255}))
	require.Equal(t, HashSize*HashSize, h.Bits())
	require.Equal(t, 0, Distance(h, make(Hash, len(h))))
}

func TestCompute_Split(t *testing.T) {
	h := Compute(splitImage(false))
	require.False(t, h.Bit(0))
	require.True(t, h.Bit(HashSize-1))

	inv := Compute(splitImage(true))
	require.Greater(t, Distance(h, inv), HashSize*HashSize-4*HashSize)
}

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.jpg")
	b := filepath.Join(dir, "b.jpg")
	c := filepath.Join(dir, "c.jpg")
	writeJPEG(t, a, splitImage(false))
	writeJPEG(t, b, splitImage(false))
	writeJPEG(t, c, splitImage(true))

	d, err := CompareFiles(a, b)
	require.NoError(t, err)
	require.Equal(t, 0, d)

	d, err = CompareFiles(a, c)
	require.NoError(t, err)
	require.Greater(t, d, 60000)

	_, err = HashFile(filepath.Join(dir, "missing.jpg"))
	require.Error(t, err)
}

func TestDistance_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("identical hashes have distance zero", prop.ForAll(
		func(words []uint64) bool {
			h := Hash(words)
			return Distance(h, append(Hash(nil), h...)) == 0
		},
		gen.SliceOfN(16, gen.UInt64()),
	))

	properties.Property("flipping k distinct bits gives distance k", prop.ForAll(
		func(words []uint64, positions []int) bool {
			h := Hash(words)
			flipped := append(Hash(nil), h...)
			seen := make(map[int]bool)
			for _, p := range positions {
				if seen[p] {
					continue
				}
				seen[p] = true
				flipped[p/64] ^= 1 << (uint(p) % 64)
			}
			return Distance(h, flipped) == len(seen)
		},
		gen.SliceOfN(16, gen.UInt64()),
		gen.SliceOf(gen.IntRange(0, 16*64-1)),
	))

	properties.Property("distance is symmetric", prop.ForAll(
		func(a, b []uint64) bool {
			return Distance(a, b) == Distance(b, a)
		},
		gen.SliceOfN(8, gen.UInt64()),
		gen.SliceOfN(8, gen.UInt64()),
	))

	properties.TestingRun(t)
}
