package device

// adb.go drives an Android device through the adb command line tool.

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"al.essio.dev/pkg/shellescape"
	"github.com/rs/zerolog"
)

// ADB manages adb commands for a single device.
type ADB struct {
	logger zerolog.Logger
	serial string
	adb    string
	ffmpeg string

	mu  sync.Mutex
	rec *screenrecord
}

// ADBOption is a function that configures an ADB client.
type ADBOption func(*ADB)

// WithSerial selects the device by serial number. Without it adb picks the
// only connected device.
func WithSerial(serial string) ADBOption {
	return func(a *ADB) {
		a.serial = serial
	}
}

// WithADBPath sets the adb binary to use.
func WithADBPath(path string) ADBOption {
	return func(a *ADB) {
		a.adb = path
	}
}

// WithFFmpegPath sets the ffmpeg binary used to containerise recordings.
func WithFFmpegPath(path string) ADBOption {
	return func(a *ADB) {
		a.ffmpeg = path
	}
}

// NewADB creates a new adb client.
func NewADB(logger zerolog.Logger, opts ...ADBOption) *ADB {
	a := &ADB{
		logger: logger,
		adb:    "adb",
		ffmpeg: "ffmpeg",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Serial returns the serial number this client targets.
func (a *ADB) Serial() string {
	return a.serial
}

// args prefixes args with the device selector.
func (a *ADB) args(args ...string) []string {
	if a.serial != "" {
		return append([]string{"-s", a.serial}, args...)
	}
	return args
}

// ShellCommand quotes args into a single device shell command line.
func ShellCommand(args ...string) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, shellescape.Quote(arg))
	}
	return strings.Join(parts, " ")
}

// Shell runs command in the device shell.
func (a *ADB) Shell(ctx context.Context, command string) (string, error) {
	a.logger.Trace().Str("serial", a.serial).Str("command", command).Msg("Running device command")

	out, err := run(ctx, a.adb, a.args("shell", command)...)
	if err != nil {
		return "", err
	}
	return out, nil
}

// AppStart launches the launcher activity of pkg.
func (a *ADB) AppStart(ctx context.Context, pkg string, stopFirst bool) error {
	if stopFirst {
		if err := a.AppStop(ctx, pkg); err != nil {
			return err
		}
	}

	a.logger.Debug().Str("package", pkg).Msg("Starting app")
	cmd := ShellCommand("monkey", "-p", pkg, "-c", "android.intent.category.LAUNCHER", "1")
	if _, err := a.Shell(ctx, cmd); err != nil {
		return fmt.Errorf("failed to start %s: %w", pkg, err)
	}
	return nil
}

// AppStop force-stops pkg.
func (a *ADB) AppStop(ctx context.Context, pkg string) error {
	a.logger.Debug().Str("package", pkg).Msg("Stopping app")
	if _, err := a.Shell(ctx, ShellCommand("am", "force-stop", pkg)); err != nil {
		return fmt.Errorf("failed to stop %s: %w", pkg, err)
	}
	return nil
}

// Screenshot captures the screen as a PNG and decodes it.
func (a *ADB) Screenshot(ctx context.Context) (image.Image, error) {
	out, err := run(ctx, a.adb, a.args("exec-out", "screencap", "-p")...)
	if err != nil {
		return nil, fmt.Errorf("failed to capture screen: %w", err)
	}
	img, err := png.Decode(strings.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}
	return img, nil
}

// Name returns the device model.
func (a *ADB) Name(ctx context.Context) (string, error) {
	out, err := a.Shell(ctx, "getprop ro.product.model")
	if err != nil {
		return "", fmt.Errorf("failed to read device model: %w", err)
	}
	name := strings.TrimSpace(out)
	if name == "" {
		name = a.serial
	}
	return name, nil
}

// ClearLog empties the logcat buffers.
func (a *ADB) ClearLog(ctx context.Context) error {
	if _, err := run(ctx, a.adb, a.args("logcat", "-c")...); err != nil {
		return fmt.Errorf("failed to clear logcat: %w", err)
	}
	return nil
}

// StreamLog streams logcat until the reader is closed or ctx is done.
func (a *ADB) StreamLog(ctx context.Context) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, a.adb, a.args("logcat")...)
	r, err := startReader(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to stream logcat: %w", err)
	}
	return r, nil
}

// screenrecord is a running screenrecord | ffmpeg pipeline.
type screenrecord struct {
	path   string
	record *exec.Cmd
	encode *exec.Cmd
	stderr bytes.Buffer
}

// encodeArgs are the ffmpeg arguments turning the raw H.264 stream of
// screenrecord into a constant frame rate file. screenrecord only emits a
// frame when the screen changes and the raw stream carries no timestamps,
// so frames are stamped with their arrival time and duplicated to fill idle
// periods.
func encodeArgs(path string, fps float64) []string {
	return []string{
		"-loglevel", "error",
		"-use_wallclock_as_timestamps", "1",
		"-f", "h264",
		"-i", "-",
		"-vsync", "cfr",
		"-r", strconv.FormatFloat(fps, 'f', -1, 64),
		"-y", path,
	}
}

// ScreenrecordStart streams the raw H.264 output of screenrecord into
// ffmpeg, which writes path with a constant frame rate of fps.
func (a *ADB) ScreenrecordStart(ctx context.Context, path string, fps float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.rec != nil {
		return fmt.Errorf("screen recording already running to %s", a.rec.path)
	}

	rec := &screenrecord{path: path}
	rec.record = exec.CommandContext(ctx, a.adb, a.args("exec-out", "screenrecord", "--output-format=h264", "-")...)
	rec.encode = exec.CommandContext(ctx, a.ffmpeg, encodeArgs(path, fps)...)

	pipe, err := rec.record.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create pipe: %w", err)
	}
	rec.encode.Stdin = pipe
	rec.encode.Stderr = &rec.stderr

	if err := rec.encode.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	if err := rec.record.Start(); err != nil {
		_ = rec.encode.Process.Kill()
		_ = rec.encode.Wait()
		return fmt.Errorf("failed to start screenrecord: %w", err)
	}

	a.logger.Debug().Str("path", path).Float64("fps", fps).Msg("Screen recording started")
	a.rec = rec
	return nil
}

// ScreenrecordStop interrupts screenrecord and waits for ffmpeg to finish
// writing the file.
func (a *ADB) ScreenrecordStop() error {
	a.mu.Lock()
	rec := a.rec
	a.rec = nil
	a.mu.Unlock()

	if rec == nil {
		return nil
	}

	if err := rec.record.Process.Signal(os.Interrupt); err != nil {
		_ = rec.record.Process.Kill()
	}

	var errs []error
	if err := rec.record.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			errs = append(errs, fmt.Errorf("screenrecord failed: %w", err))
		}
	}
	if err := rec.encode.Wait(); err != nil {
		errs = append(errs, fmt.Errorf("ffmpeg failed: %w (stderr: %s)", err, rec.stderr.String()))
	}

	a.logger.Debug().Str("path", rec.path).Msg("Screen recording stopped")
	return errors.Join(errs...)
}
