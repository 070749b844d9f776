// Package duration measures how long a user visible transition took by
// locating its first and last screens in a recording.
package duration

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/SeldomQA/seldom-atx/keyframe"
	"github.com/SeldomQA/seldom-atx/model"
	"github.com/SeldomQA/seldom-atx/video"
	"github.com/rs/zerolog"
)

// NoMatchError reports that a boundary frame could not be found. The
// duration of the repetition is omitted.
type NoMatchError struct {
	Repetition int
	Err        error
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("no duration for repetition %d: %v", e.Repetition, e.Err)
}

func (e *NoMatchError) Unwrap() error { return e.Err }

// References are the hashed keyframes of an action.
type References struct {
	StartPath string
	StopPath  string
	Start     keyframe.Hash
	Stop      keyframe.Hash
}

// LoadReferences hashes the start and stop keyframes. A missing file is
// reported with an error matching fs.ErrNotExist.
func LoadReferences(startPath, stopPath string) (*References, error) {
	refs := &References{StartPath: startPath, StopPath: stopPath}
	for _, p := range []string{startPath, stopPath} {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("keyframe %s: %w", p, err)
		}
	}

	var err error
	if refs.Start, err = keyframe.HashFile(startPath); err != nil {
		return nil, err
	}
	if refs.Stop, err = keyframe.HashFile(stopPath); err != nil {
		return nil, err
	}
	return refs, nil
}

// Result is the measured duration of one repetition.
type Result struct {
	Repetition int               `json:"repetition"`
	Start      model.MatchResult `json:"start"`
	Stop       model.MatchResult `json:"stop"`
	Seconds    float64           `json:"seconds"`
}

// Resolver turns recordings into durations.
type Resolver struct {
	logger       zerolog.Logger
	extractor    video.Extractor
	frameSeconds float64
}

// NewResolver creates a resolver analysing the first and the last
// frameSeconds of each recording.
func NewResolver(logger zerolog.Logger, extractor video.Extractor, frameSeconds float64) *Resolver {
	return &Resolver{
		logger:       logger,
		extractor:    extractor,
		frameSeconds: frameSeconds,
	}
}

// Resolve extracts the frames of art into framesDir and measures the time
// between the start and the stop keyframe.
func (r *Resolver) Resolve(ctx context.Context, repetition int, art *model.RecordingArtifact, framesDir string, refs *References) (Result, error) {
	res := Result{Repetition: repetition}
	if art == nil || art.FPS <= 0 {
		return res, fmt.Errorf("repetition %d has no usable recording", repetition)
	}

	if _, err := r.extractor.Extract(ctx, art.Path, framesDir, r.frameSeconds); err != nil {
		return res, fmt.Errorf("failed to extract frames: %w", err)
	}

	frames, err := keyframe.ListFrames(framesDir)
	if err != nil {
		return res, err
	}

	m := keyframe.NewMatcher(r.logger, int(r.frameSeconds*art.FPS))
	res.Start, err = m.FindStart(refs.Start, frames)
	if err != nil {
		return res, r.noMatch(repetition, err)
	}
	res.Stop, err = m.FindStop(refs.Stop, frames)
	if err != nil {
		return res, r.noMatch(repetition, err)
	}

	res.Seconds = Seconds(res.Start.Index, res.Stop.Index, art.FPS)
	r.logger.Info().
		Int("repetition", repetition).
		Int("start", res.Start.Index).
		Int("stop", res.Stop.Index).
		Float64("seconds", res.Seconds).
		Msg("Duration resolved")
	return res, nil
}

func (r *Resolver) noMatch(repetition int, err error) error {
	if errors.Is(err, keyframe.ErrNoMatch) {
		r.logger.Warn().Err(err).Int("repetition", repetition).Msg("No keyframe match")
		return &NoMatchError{Repetition: repetition, Err: err}
	}
	return err
}

// ExtractAll writes every frame of art into framesDir, for harvesting new
// keyframes.
func (r *Resolver) ExtractAll(ctx context.Context, art *model.RecordingArtifact, framesDir string) (int, error) {
	info, err := r.extractor.ExtractAll(ctx, art.Path, framesDir)
	if err != nil {
		return 0, fmt.Errorf("failed to extract frames: %w", err)
	}
	return info.Frames, nil
}

// Seconds converts a frame interval into seconds rounded to two decimals.
func Seconds(start, stop int, fps float64) float64 {
	return math.Round(float64(stop-start)/fps*100) / 100
}
