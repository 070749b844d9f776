package video

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
)

// FrameWriter appends encoded JPEG frames to a video.
type FrameWriter interface {
	WriteFrame(jpeg []byte) error
	// Close flushes the video. It is safe to call more than once.
	Close() error
}

// PipeWriter feeds JPEG frames to an ffmpeg process that encodes them at a
// fixed frame rate.
type PipeWriter struct {
	path   string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer

	once sync.Once
	err  error
}

// NewPipeWriter starts ffmpeg writing an H.264 video to path.
func NewPipeWriter(ctx context.Context, ffmpeg, path string, fps float64) (*PipeWriter, error) {
	w := &PipeWriter{path: path}
	w.cmd = exec.CommandContext(ctx, ffmpeg,
		"-loglevel", "error",
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-framerate", strconv.FormatFloat(fps, 'f', -1, 64),
		"-i", "-",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-y", path,
	)
	w.cmd.Stderr = &w.stderr

	stdin, err := w.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	w.stdin = stdin

	if err := w.cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	return w, nil
}

// Path returns the output video path.
func (w *PipeWriter) Path() string {
	return w.path
}

// WriteFrame appends one JPEG frame.
func (w *PipeWriter) WriteFrame(jpeg []byte) error {
	if _, err := w.stdin.Write(jpeg); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// Close ends the input stream and waits for ffmpeg to finish the file.
func (w *PipeWriter) Close() error {
	w.once.Do(func() {
		_ = w.stdin.Close()
		if err := w.cmd.Wait(); err != nil {
			w.err = fmt.Errorf("ffmpeg failed: %w (stderr: %s)", err, w.stderr.String())
		}
	})
	return w.err
}
