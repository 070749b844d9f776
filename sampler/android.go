package sampler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/SeldomQA/seldom-atx/device"
	"github.com/SeldomQA/seldom-atx/model"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Shell runs commands on the device.
type Shell interface {
	Shell(ctx context.Context, command string) (string, error)
}

// maxFPS caps the computed frame rate at the display refresh rate.
const maxFPS = 60

// Android pulls samples over adb shell from three concurrent loops.
type Android struct {
	logger     zerolog.Logger
	sh         Shell
	pkg        string
	interval   time.Duration
	cpuGap     time.Duration
	pidRetries int
	pidWait    time.Duration

	mu     sync.Mutex
	snap   Snapshot
	closed bool

	cancel   context.CancelFunc
	g        errgroup.Group
	stopOnce sync.Once
	stopErr  error
}

// AndroidOption configures an Android sampler.
type AndroidOption func(*Android)

// WithInterval sets the pause between memory samples and the FPS
// measurement interval.
func WithInterval(d time.Duration) AndroidOption {
	return func(a *Android) {
		a.interval = d
	}
}

// WithCPUGap sets the time between the two tick snapshots of a CPU sample.
func WithCPUGap(d time.Duration) AndroidOption {
	return func(a *Android) {
		a.cpuGap = d
	}
}

// WithPIDWait sets how often and how long Start looks for the app process.
func WithPIDWait(retries int, wait time.Duration) AndroidOption {
	return func(a *Android) {
		a.pidRetries = retries
		a.pidWait = wait
	}
}

// NewAndroid creates a sampler for pkg.
func NewAndroid(logger zerolog.Logger, sh Shell, pkg string, opts ...AndroidOption) *Android {
	a := &Android{
		logger:     logger,
		sh:         sh,
		pkg:        pkg,
		interval:   500 * time.Millisecond,
		cpuGap:     500 * time.Millisecond,
		pidRetries: 20,
		pidWait:    500 * time.Millisecond,
		snap:       NewSnapshot(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start finds the app process and spawns the sampling loops.
func (a *Android) Start(ctx context.Context) error {
	pid, err := a.waitPID(ctx)
	if err != nil {
		return err
	}

	ctx, a.cancel = context.WithCancel(ctx)
	a.logger.Debug().Str("package", a.pkg).Int("pid", pid).Msg("Performance sampling started")

	a.g.Go(func() error {
		return a.loop(ctx, model.MetricCPU, 0, func(ctx context.Context) error {
			return a.sampleCPU(ctx, pid)
		})
	})
	a.g.Go(func() error {
		return a.loop(ctx, model.MetricMemory, a.interval, func(ctx context.Context) error {
			return a.sampleMemory(ctx, pid)
		})
	})
	a.g.Go(func() error {
		// The first reset only clears the counters.
		_, _ = a.sh.Shell(ctx, device.ShellCommand("dumpsys", "gfxinfo", a.pkg, "reset"))
		last := time.Now()
		return a.loop(ctx, model.MetricFPS, a.interval, func(ctx context.Context) error {
			now := time.Now()
			err := a.sampleFPS(ctx, now.Sub(last))
			last = now
			return err
		})
	})
	return nil
}

// Stop cancels and joins the loops. It returns the first loop failure.
func (a *Android) Stop() error {
	a.stopOnce.Do(func() {
		if a.cancel == nil {
			return
		}
		a.cancel()
		a.stopErr = a.g.Wait()

		a.mu.Lock()
		a.closed = true
		a.mu.Unlock()
		a.logger.Debug().Str("package", a.pkg).Msg("Performance sampling stopped")
	})
	return a.stopErr
}

// Series returns a copy of the collected samples.
func (a *Android) Series() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snap.Clone()
}

func (a *Android) append(m model.Metric, values ...float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.snap.series(m).Append(time.Now(), values...)
	a.logger.Trace().Str("metric", string(m)).Floats64("values", values).Msg("Sample")
}

func (a *Android) loop(ctx context.Context, m model.Metric, wait time.Duration, sample func(context.Context) error) error {
	for {
		if err := sample(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, ErrProcessNotFound) {
				a.logger.Error().Str("metric", string(m)).Str("package", a.pkg).Msg("No process found")
				return fmt.Errorf("%s sampling stopped: %w", m, err)
			}
			a.logger.Warn().Err(err).Str("metric", string(m)).Msg("Sample failed")
		}

		if wait <= 0 {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (a *Android) pidOf(ctx context.Context) (int, error) {
	out, err := a.sh.Shell(ctx, device.ShellCommand("pidof", a.pkg)+" || true")
	if err != nil {
		return 0, fmt.Errorf("failed to look up pid of %s: %w", a.pkg, err)
	}
	return ParsePID(out)
}

func (a *Android) waitPID(ctx context.Context) (int, error) {
	var err error
	for i := 0; i <= a.pidRetries; i++ {
		var pid int
		pid, err = a.pidOf(ctx)
		if err == nil {
			return pid, nil
		}
		if !errors.Is(err, ErrProcessNotFound) {
			return 0, err
		}
		a.logger.Info().Int("retry", i+1).Str("package", a.pkg).Msg("Unable to obtain pid, retrying")
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(a.pidWait):
		}
	}
	return 0, fmt.Errorf("failed to find %s: %w", a.pkg, err)
}

// checkProcess turns a failed command into ErrProcessNotFound when the app
// is gone.
func (a *Android) checkProcess(ctx context.Context, cause error) error {
	if _, err := a.pidOf(ctx); errors.Is(err, ErrProcessNotFound) {
		return err
	}
	return cause
}

func (a *Android) ticks(ctx context.Context, pid int) (proc, total, idle float64, err error) {
	out, err := a.sh.Shell(ctx, "cat /proc/"+strconv.Itoa(pid)+"/stat")
	if err != nil {
		return 0, 0, 0, a.checkProcess(ctx, err)
	}
	proc, err = ParseProcessTicks(out)
	if err != nil {
		return 0, 0, 0, a.checkProcess(ctx, err)
	}

	out, err = a.sh.Shell(ctx, "cat /proc/stat")
	if err != nil {
		return 0, 0, 0, err
	}
	total, idle, err = ParseCPUTicks(out)
	return proc, total, idle, err
}

func (a *Android) sampleCPU(ctx context.Context, pid int) error {
	p1, t1, i1, err := a.ticks(ctx, pid)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(a.cpuGap):
	}

	p2, t2, i2, err := a.ticks(ctx, pid)
	if err != nil {
		return err
	}

	app, sys, err := CPURates(p1, t1, i1, p2, t2, i2)
	if err != nil {
		return err
	}
	a.append(model.MetricCPU, app, sys)
	return nil
}

// CPURates computes the app and system CPU usage in percent between two
// tick snapshots.
func CPURates(proc1, total1, idle1, proc2, total2, idle2 float64) (app, sys float64, err error) {
	delta := total2 - total1
	if delta <= 0 {
		return 0, 0, fmt.Errorf("cpu counters did not advance")
	}
	app = round2((proc2 - proc1) / delta * 100)
	sys = round2(((total2 - idle2) - (total1 - idle1)) / delta * 100)
	return app, sys, nil
}

func (a *Android) sampleMemory(ctx context.Context, pid int) error {
	out, err := a.sh.Shell(ctx, device.ShellCommand("dumpsys", "meminfo", strconv.Itoa(pid)))
	if err != nil {
		return a.checkProcess(ctx, err)
	}
	m, err := ParseMeminfo(out)
	if err != nil {
		return a.checkProcess(ctx, err)
	}
	a.append(model.MetricMemory, round2(m.Total/1024), round2(m.Native/1024), round2(m.Dalvik/1024))
	return nil
}

func (a *Android) sampleFPS(ctx context.Context, elapsed time.Duration) error {
	out, err := a.sh.Shell(ctx, device.ShellCommand("dumpsys", "gfxinfo", a.pkg, "reset"))
	if err != nil {
		return a.checkProcess(ctx, err)
	}
	frames, janky, err := ParseGfxinfo(out)
	if err != nil {
		return a.checkProcess(ctx, err)
	}
	a.append(model.MetricFPS, FrameRate(frames, elapsed), float64(janky))
	return nil
}

// FrameRate converts a frame count over elapsed into frames per second,
// capped at 60.
func FrameRate(frames int, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return round2(math.Min(maxFPS, float64(frames)/elapsed.Seconds()))
}
