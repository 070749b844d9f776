// Package capture runs an action repeatedly while recording the screen,
// sampling performance and capturing the device log around it.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/SeldomQA/seldom-atx/device"
	"github.com/SeldomQA/seldom-atx/logcapture"
	"github.com/SeldomQA/seldom-atx/model"
	"github.com/SeldomQA/seldom-atx/recording"
	"github.com/SeldomQA/seldom-atx/sampler"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// File names inside a repetition directory.
const (
	VideoFile    = "video.mp4"
	LogFile      = "device.log"
	FramesDir    = "frames"
	AllFramesDir = "frames_all"
	ProfileFile  = "perf.pb.gz"
	StdoutFile   = "stdout.txt"
	StderrFile   = "stderr.txt"
)

// DefaultRecordSettle bounds how long StartRecording waits for the recorder.
const DefaultRecordSettle = 2 * time.Second

// Action is the instrumented test action.
type Action func(ctx context.Context, s *Session) error

// Plan describes one instrumented invocation.
type Plan struct {
	Capabilities model.CapabilitySet
	Repetitions  int
	// OutputDir receives one <Name>_<index> directory per repetition.
	OutputDir string
	Name      string
	// AutoRecord opens the recording window before the action runs.
	AutoRecord bool
	// RestartApp restarts the app between repetitions.
	RestartApp bool
}

// Repetition is the outcome of one repetition.
type Repetition struct {
	Index int
	Dir   string
	Video *model.RecordingArtifact
	Perf  sampler.Snapshot

	ActionErr      error
	RecordingErr   error
	PerformanceErr error
	LogErr         error
}

// Err joins the non-fatal errors of the repetition.
func (r *Repetition) Err() error {
	return errors.Join(r.RecordingErr, r.PerformanceErr, r.LogErr)
}

// Errors returns every error of the repetition, the action error first.
func (r *Repetition) Errors() []error {
	var errs []error
	for _, err := range []error{r.ActionErr, r.RecordingErr, r.PerformanceErr, r.LogErr} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Orchestrator runs the repetitions of a plan.
type Orchestrator struct {
	logger      zerolog.Logger
	driver      device.Driver
	target      model.Target
	newRecorder func() recording.Controller
	newSampler  func() sampler.Sampler
	logs        *logcapture.Capturer
	settle      time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder sets the factory of the per repetition screen recorder.
func WithRecorder(fn func() recording.Controller) Option {
	return func(o *Orchestrator) {
		o.newRecorder = fn
	}
}

// WithSampler sets the factory of the per repetition performance sampler.
func WithSampler(fn func() sampler.Sampler) Option {
	return func(o *Orchestrator) {
		o.newSampler = fn
	}
}

// WithLogCapturer sets the device log capturer.
func WithLogCapturer(c *logcapture.Capturer) Option {
	return func(o *Orchestrator) {
		o.logs = c
	}
}

// WithRecordSettle overrides DefaultRecordSettle.
func WithRecordSettle(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.settle = d
	}
}

// New creates an orchestrator for the app target on driver.
func New(logger zerolog.Logger, driver device.Driver, target model.Target, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		logger: logger,
		driver: driver,
		target: target,
		settle: DefaultRecordSettle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes action plan.Repetitions times. Recording, sampling and the
// action of a repetition run concurrently and are joined before the next
// repetition starts; log capture is not joined. An action failure stops the
// loop and is returned as an *ActionError together with the repetitions run
// so far.
func (o *Orchestrator) Run(ctx context.Context, plan Plan, action Action) ([]*Repetition, error) {
	n := plan.Repetitions
	if n < 1 {
		n = 1
	}

	o.logger.Info().
		Str("name", plan.Name).
		Str("capabilities", plan.Capabilities.String()).
		Int("repetitions", n).
		Msg("Starting instrumented run")

	reps := make([]*Repetition, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return reps, err
		}

		rep, err := o.runOnce(ctx, plan, i, action)
		if err != nil {
			return reps, err
		}
		reps = append(reps, rep)

		if rep.ActionErr != nil {
			o.logger.Error().Err(rep.ActionErr).Int("repetition", i).Msg("Action failed, stopping")
			return reps, rep.ActionErr
		}

		if plan.RestartApp && n > 1 && i < n-1 {
			if err := o.driver.AppStart(ctx, o.target.Package, true); err != nil {
				o.logger.Warn().Err(err).Str("package", o.target.Package).Msg("Failed to restart app")
			}
		}
	}
	return reps, nil
}

func (o *Orchestrator) runOnce(ctx context.Context, plan Plan, index int, action Action) (*Repetition, error) {
	dir := filepath.Join(plan.OutputDir, fmt.Sprintf("%s_%d", plan.Name, index))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create repetition directory: %w", err)
	}

	rc := NewRunContext(o.target, dir, index)
	rep := &Repetition{Index: index, Dir: dir, Perf: sampler.NewSnapshot()}
	logger := o.logger.With().Int("repetition", index).Logger()

	// Fresh instances per repetition: buffers never leak across repetitions.
	var rec recording.Controller
	if plan.Capabilities.Records() && o.newRecorder != nil {
		rec = o.newRecorder()
	}
	var smp sampler.Sampler
	if plan.Capabilities.Has(model.CapabilityPerformance) && o.newSampler != nil {
		smp = o.newSampler()
	}

	var logResult <-chan error
	if plan.Capabilities.Has(model.CapabilityLog) && o.logs != nil {
		logResult = o.logs.Go(ctx, rc.Done(), filepath.Join(dir, LogFile))
	}

	var g errgroup.Group

	if rec != nil {
		g.Go(func() error {
			art, err := recording.Run(ctx, rec, rc, filepath.Join(dir, VideoFile))
			if err != nil {
				logger.Error().Err(err).Msg("Recording failed")
				rep.RecordingErr = &RecordingError{Repetition: index, Err: err}
				return nil
			}
			rep.Video = art
			return nil
		})
	}

	if smp != nil {
		g.Go(func() error {
			if err := smp.Start(ctx); err != nil {
				logger.Error().Err(err).Msg("Performance sampling failed to start")
				rep.PerformanceErr = &PerformanceError{Repetition: index, Err: err}
				return nil
			}
			<-rc.Done()
			if err := smp.Stop(); err != nil {
				logger.Error().Err(err).Msg("Performance sampling failed")
				rep.PerformanceErr = &PerformanceError{Repetition: index, Err: err}
			}
			rep.Perf = smp.Series()
			return nil
		})
	}

	g.Go(func() error {
		defer rc.Finish()

		s := &Session{rc: rc, driver: o.driver, recorder: rec != nil, settle: o.settle}
		if plan.AutoRecord && rec != nil {
			s.StartRecording(ctx)
		}

		logger.Debug().Msg("Running action")
		start := time.Now()
		err := action(ctx, s)
		s.StopRecording()
		if err != nil {
			rep.ActionErr = &ActionError{Repetition: index, Err: err}
			return nil
		}
		logger.Info().Dur("elapsed", time.Since(start)).Msg("Action finished")
		return nil
	})

	_ = g.Wait()

	if logResult != nil {
		select {
		case err, ok := <-logResult:
			if ok && err != nil {
				rep.LogErr = &LogError{Repetition: index, Err: err}
			}
		default:
		}
	}

	if rep.Video == nil && rec != nil && rep.RecordingErr == nil && rep.ActionErr == nil {
		logger.Warn().Msg("Recording window was never opened")
	}
	return rep, nil
}
