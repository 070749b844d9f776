// Package logcapture streams the device log of a repetition to a file.
package logcapture

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync/atomic"

	"github.com/SeldomQA/seldom-atx/device"
	"github.com/rs/zerolog"
)

// Capturer writes the device log to a file while capturing.
type Capturer struct {
	logger zerolog.Logger
	dev    device.LogStreamer
}

// New creates a log capturer.
func New(logger zerolog.Logger, dev device.LogStreamer) *Capturer {
	return &Capturer{
		logger: logger,
		dev:    dev,
	}
}

// Run clears the device log, then copies the live log into path until done
// is closed or ctx is cancelled.
func (c *Capturer) Run(ctx context.Context, done <-chan struct{}, path string) error {
	if err := c.dev.ClearLog(ctx); err != nil {
		return fmt.Errorf("failed to clear device log: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	defer f.Close()

	stream, err := c.dev.StreamLog(ctx)
	if err != nil {
		return fmt.Errorf("failed to stream device log: %w", err)
	}

	var stopping atomic.Bool
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-done:
		case <-ctx.Done():
		case <-finished:
			return
		}
		stopping.Store(true)
		_ = stream.Close()
	}()

	c.logger.Debug().Str("path", path).Msg("Log capture started")
	n, err := io.Copy(f, stream)
	if stopping.Load() {
		// The copy ends with a read error once the stream is closed.
		err = nil
	} else {
		_ = stream.Close()
	}
	if err != nil {
		return fmt.Errorf("failed to copy device log: %w", err)
	}

	c.logger.Debug().Str("path", path).Int64("bytes", n).Msg("Log capture finished")
	return nil
}

// Go runs Run on its own goroutine locked to an OS thread. The returned
// channel receives the error, if any, and is then closed.
func (c *Capturer) Go(ctx context.Context, done <-chan struct{}, path string) <-chan error {
	result := make(chan error, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(result)

		if err := c.Run(ctx, done, path); err != nil {
			c.logger.Error().Err(err).Str("path", path).Msg("Log capture failed")
			result <- err
		}
	}()
	return result
}
