// Package recording records the screen of the device for the lifetime of
// the recording window of one repetition.
package recording

import (
	"context"

	"github.com/SeldomQA/seldom-atx/model"
)

// Controller records one video. Start and Stop are each idempotent.
type Controller interface {
	Start(ctx context.Context, path string) error
	Stop() error
	// Artifact returns the recorded video once Stop succeeded.
	Artifact() *model.RecordingArtifact
}

// Signals is the part of a repetition's run context the recorder observes.
type Signals interface {
	// RecordingStarted is closed when the action asks for recording.
	RecordingStarted() <-chan struct{}
	// RecordingStopped is closed when the action is done with recording.
	RecordingStopped() <-chan struct{}
	// Done is closed when capturing ends.
	Done() <-chan struct{}
	// MarkRecorderReady tells the action that the recorder is running or
	// failed to start.
	MarkRecorderReady()
}

// Run drives c through one recording window. It returns a nil artifact and
// no error when capturing ended before recording was requested.
func Run(ctx context.Context, c Controller, sig Signals, path string) (*model.RecordingArtifact, error) {
	select {
	case <-sig.RecordingStarted():
	case <-sig.Done():
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	err := c.Start(ctx, path)
	sig.MarkRecorderReady()
	if err != nil {
		return nil, err
	}

	select {
	case <-sig.RecordingStopped():
	case <-sig.Done():
	case <-ctx.Done():
	}

	if err := c.Stop(); err != nil {
		return nil, err
	}
	return c.Artifact(), nil
}
