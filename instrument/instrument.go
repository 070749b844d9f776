// Package instrument ties capture, duration resolution, aggregation and
// persistence together around one instrumented action.
package instrument

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/SeldomQA/seldom-atx/capture"
	"github.com/SeldomQA/seldom-atx/chart"
	"github.com/SeldomQA/seldom-atx/config"
	"github.com/SeldomQA/seldom-atx/device"
	"github.com/SeldomQA/seldom-atx/duration"
	"github.com/SeldomQA/seldom-atx/history"
	"github.com/SeldomQA/seldom-atx/model"
	"github.com/SeldomQA/seldom-atx/report"
	"github.com/SeldomQA/seldom-atx/video"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrMissingKeyframe is returned before anything runs when a duration
// measurement lacks its start or stop keyframe.
var ErrMissingKeyframe = errors.New("missing keyframe")

// Options describe one instrumented call.
type Options struct {
	Case         model.Case
	Capabilities model.CapabilitySet
	// Repetitions to run; 0 runs the configured duration_times when a
	// duration is measured and once otherwise.
	Repetitions int
	// AutoRecord opens the recording window around the whole action.
	AutoRecord bool
	// Args are recorded in the manifest.
	Args []string
}

// Result is the outcome of an instrumented call.
type Result struct {
	Dir         string
	Record      *model.RunRecord
	Repetitions []*capture.Repetition
	Durations   []duration.Result
	History     *model.History
}

// Instrumenter runs instrumented calls against one device.
type Instrumenter struct {
	logger    zerolog.Logger
	cfg       config.Config
	driver    device.Driver
	target    model.Target
	orch      []capture.Option
	extractor video.Extractor
	store     report.Store
	images    *report.ImageBuffer
	now       func() time.Time
}

// Option configures an Instrumenter.
type Option func(*Instrumenter)

// WithCaptureOptions passes options to the capture orchestrator.
func WithCaptureOptions(opts ...capture.Option) Option {
	return func(in *Instrumenter) {
		in.orch = append(in.orch, opts...)
	}
}

// WithExtractor sets the frame extractor. Defaults to ffmpeg.
func WithExtractor(e video.Extractor) Option {
	return func(in *Instrumenter) {
		in.extractor = e
	}
}

// WithImages sets the report image buffer. Defaults to report.Images.
func WithImages(b *report.ImageBuffer) Option {
	return func(in *Instrumenter) {
		in.images = b
	}
}

// New creates an Instrumenter persisting Run Records to store.
func New(logger zerolog.Logger, cfg config.Config, driver device.Driver, target model.Target, store report.Store, opts ...Option) *Instrumenter {
	in := &Instrumenter{
		logger: logger,
		cfg:    cfg,
		driver: driver,
		target: target,
		store:  store,
		images: report.Images,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.extractor == nil {
		in.extractor = video.NewFFmpeg(logger)
	}
	return in
}

// KeyframePaths returns the start and stop keyframes of action.
func KeyframePaths(cfg config.Config, platform model.Platform, action string) (start, stop string) {
	dir := filepath.Join(cfg.KeyframesDir, platform.String()+"KeyFrames")
	return filepath.Join(dir, action+"_start.jpg"), filepath.Join(dir, action+"_stop.jpg")
}

// Repetitions returns the number of repetitions opts asks for.
func (in *Instrumenter) Repetitions(opts Options) int {
	switch {
	case opts.Repetitions > 0:
		return opts.Repetitions
	case opts.Capabilities.Has(model.CapabilityDuration) && in.cfg.DurationTimes > 0:
		return in.cfg.DurationTimes
	default:
		return 1
	}
}

// Run executes action and persists its Run Record. The record, charts and
// manifest are written even when the action fails; the action error is
// returned after that, otherwise a *report.ThresholdBreach if a threshold
// was exceeded.
func (in *Instrumenter) Run(ctx context.Context, opts Options, action capture.Action) (*Result, error) {
	var refs *duration.References
	if opts.Capabilities.Has(model.CapabilityDuration) {
		start, stop := KeyframePaths(in.cfg, in.target.Platform, opts.Case.Name)
		var err error
		refs, err = duration.LoadReferences(start, stop)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrMissingKeyframe, err)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load keyframes: %w", err)
		}
	}

	began := in.now()
	id := uuid.NewString()
	dir := filepath.Join(in.cfg.OutputDir, opts.Case.Name, fmt.Sprintf("%s-%s", began.Format("20060102-150405"), id[:8]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	logger := in.logger.With().Str("case", opts.Case.Name).Str("id", id[:8]).Logger()

	n := in.Repetitions(opts)
	plan := capture.Plan{
		Capabilities: opts.Capabilities,
		Repetitions:  n,
		OutputDir:    dir,
		Name:         opts.Case.Name,
		AutoRecord:   opts.AutoRecord,
		RestartApp:   n != 1,
	}
	orch := capture.New(logger, in.driver, in.target, in.orch...)
	reps, runErr := orch.Run(ctx, plan, action)

	res := &Result{Dir: dir, Repetitions: reps}
	h := &model.History{
		ID:        id,
		Timestamp: began,
		Args:      opts.Args,
		Dir:       dir,
		Target:    &in.target,
		Case:      opts.Case,
		RunList:   opts.Capabilities,
	}

	resolver := duration.NewResolver(logger, in.extractor, in.cfg.FrameSeconds)
	var durations []float64
	var memory []model.Series
	for _, rep := range reps {
		summary := model.RepetitionSummary{Index: rep.Index}
		for _, err := range rep.Errors() {
			summary.Errors = append(summary.Errors, err.Error())
		}

		// The duration matcher only sees the head and tail windows, so the
		// full harvest for record goes to its own directory.
		framesDir := filepath.Join(rep.Dir, capture.FramesDir)
		allFramesDir := filepath.Join(rep.Dir, capture.AllFramesDir)
		if rep.Video != nil {
			history.Register(logger, dir, h, model.ArtifactTypeRecording, rep.Index, rep.Video.Path)
		}

		if opts.Capabilities.Has(model.CapabilityRecord) && rep.Video != nil {
			frames, err := resolver.ExtractAll(ctx, rep.Video, allFramesDir)
			if err != nil {
				logger.Warn().Err(err).Int("repetition", rep.Index).Msg("Failed to extract frames")
				summary.Errors = append(summary.Errors, err.Error())
			} else {
				logger.Info().Int("repetition", rep.Index).Int("frames", frames).Str("dir", allFramesDir).Msg("Frames extracted")
			}
			history.Register(logger, dir, h, model.ArtifactTypeFrames, rep.Index, allFramesDir)
		}

		if refs != nil && rep.Video != nil {
			d, err := resolver.Resolve(ctx, rep.Index, rep.Video, framesDir, refs)
			if err != nil {
				logger.Warn().Err(err).Int("repetition", rep.Index).Msg("Duration not resolved")
				summary.Errors = append(summary.Errors, err.Error())
			} else {
				durations = append(durations, d.Seconds)
				res.Durations = append(res.Durations, d)
				summary.Duration = d.Seconds
				summary.DurationResolved = true
				summary.Start, summary.Stop = &d.Start, &d.Stop
				in.addFrame(logger, report.ImageStartFrame, d.Start.Path)
				in.addFrame(logger, report.ImageStopFrame, d.Stop.Path)
			}
		}
		if refs != nil {
			history.Register(logger, dir, h, model.ArtifactTypeFrames, rep.Index, framesDir)
		}

		if opts.Capabilities.Has(model.CapabilityPerformance) {
			memory = append(memory, rep.Perf.Memory)
			in.renderCharts(logger, dir, h, opts.Case.Name, rep)
			in.writeProfile(logger, dir, h, rep)
		}

		history.Register(logger, dir, h, model.ArtifactTypeStdout, rep.Index, filepath.Join(rep.Dir, capture.StdoutFile))
		history.Register(logger, dir, h, model.ArtifactTypeStderr, rep.Index, filepath.Join(rep.Dir, capture.StderrFile))
		if opts.Capabilities.Has(model.CapabilityLog) {
			history.Register(logger, dir, h, model.ArtifactTypeDeviceLog, rep.Index, filepath.Join(rep.Dir, capture.LogFile))
		}
		h.Repetitions = append(h.Repetitions, summary)
	}

	deviceName, err := in.driver.Name(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to read device name")
		deviceName = in.target.DeviceID
	}

	memThreshold, durThreshold := in.cfg.Thresholds()
	thresholds := report.Thresholds{Memory: memThreshold, Duration: durThreshold}
	rec := report.Aggregate(report.Input{
		ID:          id,
		Time:        began,
		Platform:    in.target.Platform,
		DeviceName:  deviceName,
		Case:        opts.Case,
		RunList:     opts.Capabilities,
		Repetitions: len(reps),
		Durations:   durations,
		Memory:      memory,
	}, thresholds)
	if runErr != nil {
		rec.Result = model.ResultFail
	}

	// Persist with a context that survives cancellation of the action.
	writeErr := report.NewWriter(logger, in.store, thresholds).Write(context.WithoutCancel(ctx), rec)
	res.Record = rec

	h.Record = rec
	h.Duration = in.now().Sub(began)
	if err := history.Save(dir, h); err != nil {
		logger.Warn().Err(err).Msg("Failed to save manifest")
	}
	res.History = h

	if runErr != nil {
		return res, errors.Join(runErr, ignoreBreach(writeErr))
	}
	return res, writeErr
}

func ignoreBreach(err error) error {
	var breach *report.ThresholdBreach
	if errors.As(err, &breach) {
		return nil
	}
	return err
}

func (in *Instrumenter) addFrame(logger zerolog.Logger, kind report.ImageKind, path string) {
	img, err := chart.EncodeFile(path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("Failed to encode keyframe")
		return
	}
	in.images.Add(kind, img)
}
