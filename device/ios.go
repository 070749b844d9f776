package device

// ios.go drives an iOS device through tidevice and the MJPEG server of
// WebDriverAgent.

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// IOS manages tidevice commands for a single device.
type IOS struct {
	logger    zerolog.Logger
	udid      string
	tidevice  string
	frameAddr string
	dialer    net.Dialer
}

// IOSOption is a function that configures an IOS client.
type IOSOption func(*IOS)

// WithUDID selects the device by UDID.
func WithUDID(udid string) IOSOption {
	return func(c *IOS) {
		c.udid = udid
	}
}

// WithTidevicePath sets the tidevice binary to use.
func WithTidevicePath(path string) IOSOption {
	return func(c *IOS) {
		c.tidevice = path
	}
}

// WithFrameAddr sets the address of the forwarded MJPEG server.
func WithFrameAddr(addr string) IOSOption {
	return func(c *IOS) {
		c.frameAddr = addr
	}
}

// NewIOS creates a new iOS client.
func NewIOS(logger zerolog.Logger, opts ...IOSOption) *IOS {
	c := &IOS{
		logger:    logger,
		tidevice:  "tidevice",
		frameAddr: "127.0.0.1:9100",
		dialer:    net.Dialer{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *IOS) args(args ...string) []string {
	if c.udid != "" {
		return append([]string{"-u", c.udid}, args...)
	}
	return args
}

// AppStart launches bundle, killing a running instance first when stopFirst
// is set.
func (c *IOS) AppStart(ctx context.Context, bundle string, stopFirst bool) error {
	args := []string{"launch"}
	if stopFirst {
		args = append(args, "--kill")
	}
	args = append(args, bundle)

	c.logger.Debug().Str("bundle", bundle).Msg("Starting app")
	if _, err := run(ctx, c.tidevice, c.args(args...)...); err != nil {
		return fmt.Errorf("failed to start %s: %w", bundle, err)
	}
	return nil
}

// AppStop kills bundle.
func (c *IOS) AppStop(ctx context.Context, bundle string) error {
	c.logger.Debug().Str("bundle", bundle).Msg("Stopping app")
	if _, err := run(ctx, c.tidevice, c.args("kill", bundle)...); err != nil {
		return fmt.Errorf("failed to stop %s: %w", bundle, err)
	}
	return nil
}

// Screenshot captures the screen through tidevice.
func (c *IOS) Screenshot(ctx context.Context) (image.Image, error) {
	dir, err := os.MkdirTemp("", "seldom-screenshot-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "screen.png")
	if _, err := run(ctx, c.tidevice, c.args("screenshot", path)...); err != nil {
		return nil, fmt.Errorf("failed to capture screen: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open screenshot: %w", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}
	return img, nil
}

// Shell is not available on iOS devices.
func (c *IOS) Shell(ctx context.Context, command string) (string, error) {
	return "", fmt.Errorf("shell %q: %w", command, ErrUnsupported)
}

// Name returns the device name reported by tidevice.
func (c *IOS) Name(ctx context.Context) (string, error) {
	out, err := run(ctx, c.tidevice, c.args("info", "--json")...)
	if err != nil {
		return "", fmt.Errorf("failed to read device info: %w", err)
	}

	var info struct {
		DeviceName  string `json:"DeviceName"`
		ProductType string `json:"ProductType"`
	}
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		return "", fmt.Errorf("failed to parse device info: %w", err)
	}
	if info.DeviceName != "" {
		return info.DeviceName, nil
	}
	return info.ProductType, nil
}

// ClearLog is a no-op: the iOS syslog relay has no buffer to clear.
func (c *IOS) ClearLog(ctx context.Context) error {
	return nil
}

// StreamLog streams the device syslog.
func (c *IOS) StreamLog(ctx context.Context) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, c.tidevice, c.args("syslog")...)
	r, err := startReader(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to stream syslog: %w", err)
	}
	return r, nil
}

// DialFrameServer connects to the forwarded MJPEG server.
func (c *IOS) DialFrameServer(ctx context.Context) (net.Conn, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.frameAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to frame server %s: %w", c.frameAddr, err)
	}
	return conn, nil
}

// StreamPerf runs the tidevice performance collector for bundle and
// forwards every decoded event to fn.
func (c *IOS) StreamPerf(ctx context.Context, bundle string, fn func(PerfEvent)) (func() error, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, c.tidevice, c.args("perf", "-B", bundle, "--json")...)
	stdout, err := startReader(cmd)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start perf collector: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.logger.Debug().Str("bundle", bundle).Msg("Perf collector started")
		if err := DecodePerf(stdout, fn); err != nil && ctx.Err() == nil {
			c.logger.Warn().Err(err).Msg("Perf stream ended")
		}
	}()

	var once sync.Once
	stop := func() error {
		once.Do(func() {
			cancel()
			_ = stdout.Close()
			<-done
		})
		return nil
	}
	return stop, nil
}

// perfLine is the JSON shape emitted by the collector. Timestamps are in
// milliseconds since the epoch.
type perfLine struct {
	PerfEvent
	Timestamp int64 `json:"timestamp"`
}

// DecodePerf reads newline delimited perf events from r. Lines that are not
// JSON objects are ignored.
func DecodePerf(r io.Reader, fn func(PerfEvent)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var pl perfLine
		if err := json.Unmarshal([]byte(line), &pl); err != nil {
			continue
		}
		ev := pl.PerfEvent
		if pl.Timestamp > 0 {
			ev.Time = time.UnixMilli(pl.Timestamp)
		} else {
			ev.Time = time.Now()
		}
		fn(ev)
	}
	return scanner.Err()
}
