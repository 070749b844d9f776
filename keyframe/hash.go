package keyframe

// hash.go implements the mean-threshold perceptual hash used to compare
// recorded frames against keyframe references.

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math/bits"
	"os"

	"golang.org/x/image/draw"
)

// HashSize is the side of the square every image is resized to before
// hashing. A hash therefore has HashSize*HashSize bits.
const HashSize = 256

// Hash is a perceptual hash bit vector.
type Hash []uint64

// Bits returns the number of bits in the hash.
func (h Hash) Bits() int {
	return len(h) * 64
}

// Bit reports whether bit i is set.
func (h Hash) Bit(i int) bool {
	return h[i/64]&(1<<(uint(i)%64)) != 0
}

// Compute hashes img: resize to HashSize x HashSize, convert to grayscale,
// and set one bit per pixel brighter than the mean intensity.
func Compute(img image.Image) Hash {
	return computeSized(img, HashSize)
}

func computeSized(img image.Image, size int) Hash {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	gray := make([]uint8, size*size)
	var sum uint64
	for i := range gray {
		r := uint32(dst.Pix[i*4])
		g := uint32(dst.Pix[i*4+1])
		b := uint32(dst.Pix[i*4+2])
		v := uint8((299*r + 587*g + 114*b + 500) / 1000)
		gray[i] = v
		sum += uint64(v)
	}
	mean := float64(sum) / float64(len(gray))

	h := make(Hash, (len(gray)+63)/64)
	for i, v := range gray {
		if float64(v) > mean {
			h[i/64] |= 1 << (uint(i) % 64)
		}
	}
	return h
}

// HashFile decodes the image at path and hashes it.
func HashFile(path string) (Hash, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return Compute(img), nil
}

// Distance returns the Hamming distance between two hashes. Words present in
// only one of the hashes count as fully different.
func Distance(a, b Hash) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	d := 0
	for i := range b {
		d += bits.OnesCount64(a[i] ^ b[i])
	}
	for _, w := range a[len(b):] {
		d += bits.OnesCount64(w)
	}
	return d
}

// CompareFiles returns the hash distance between two image files.
func CompareFiles(path1, path2 string) (int, error) {
	h1, err := HashFile(path1)
	if err != nil {
		return 0, err
	}
	h2, err := HashFile(path2)
	if err != nil {
		return 0, err
	}
	return Distance(h1, h2), nil
}
