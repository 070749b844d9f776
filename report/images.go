package report

import "sync"

// ImageKind orders the images of a report.
type ImageKind int

const (
	ImageCPU ImageKind = iota
	ImageMemory
	ImageFPS
	ImageStartFrame
	ImageStopFrame
	numImageKinds
)

// ImageBuffer collects base64 encoded report images. It is safe for
// concurrent use.
type ImageBuffer struct {
	mu     sync.Mutex
	images [numImageKinds][]string
}

// Images is the process-wide buffer read by the test report.
var Images = &ImageBuffer{}

// Add appends an image of the given kind.
func (b *ImageBuffer) Add(kind ImageKind, image string) {
	if kind < 0 || kind >= numImageKinds {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.images[kind] = append(b.images[kind], image)
}

// Len returns the number of buffered images.
func (b *ImageBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, imgs := range b.images {
		n += len(imgs)
	}
	return n
}

// Drain returns all buffered images and empties the buffer. CPU charts come
// first, then memory and FPS charts, then start and stop keyframes.
func (b *ImageBuffer) Drain() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for i := range b.images {
		out = append(out, b.images[i]...)
		b.images[i] = nil
	}
	return out
}
