// Package device provides thin clients for the on-device automation tools
// the instrumentation pipeline depends on: adb for Android and tidevice for
// iOS. Only the operations the pipeline needs are exposed.
package device

import (
	"context"
	"errors"
	"image"
	"io"
	"net"
	"time"
)

// ErrUnsupported is returned by operations a platform cannot perform.
var ErrUnsupported = errors.New("operation not supported on this platform")

// Driver controls the application under test.
type Driver interface {
	// AppStart launches pkg, force-stopping it first when stopFirst is set.
	AppStart(ctx context.Context, pkg string, stopFirst bool) error
	AppStop(ctx context.Context, pkg string) error
	Screenshot(ctx context.Context) (image.Image, error)
	// Shell runs a command on the device and returns its standard output.
	Shell(ctx context.Context, command string) (string, error)
	// Name returns a human readable device name.
	Name(ctx context.Context) (string, error)
}

// ScreenRecorder records the screen natively to a video file.
type ScreenRecorder interface {
	ScreenrecordStart(ctx context.Context, path string, fps float64) error
	ScreenrecordStop() error
}

// LogStreamer streams the device log.
type LogStreamer interface {
	ClearLog(ctx context.Context) error
	// StreamLog returns the live log. Closing the reader ends the stream.
	StreamLog(ctx context.Context) (io.ReadCloser, error)
}

// FrameStreamer connects to an MJPEG frame server on the device.
type FrameStreamer interface {
	DialFrameServer(ctx context.Context) (net.Conn, error)
}

// PerfEvent is one metric pushed by a device-side performance collector.
type PerfEvent struct {
	Type     string    `json:"type"`
	Time     time.Time `json:"-"`
	Value    float64   `json:"value"`
	SysValue float64   `json:"sys_value"`
}

// PerfStreamer subscribes to pushed performance events.
type PerfStreamer interface {
	// StreamPerf invokes fn for every event until the returned stop function
	// is called or ctx is done. fn is called from a single goroutine.
	StreamPerf(ctx context.Context, bundle string, fn func(PerfEvent)) (stop func() error, err error)
}
