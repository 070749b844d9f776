package recording

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SeldomQA/seldom-atx/device"
	"github.com/SeldomQA/seldom-atx/model"
	"github.com/rs/zerolog"
)

// DefaultStopDelay keeps recording after the stop request so the final
// screen of the transition is captured.
const DefaultStopDelay = time.Second

// Android records with the device's native screen recorder.
type Android struct {
	logger    zerolog.Logger
	dev       device.ScreenRecorder
	fps       float64
	stopDelay time.Duration

	mu        sync.Mutex
	path      string
	started   bool
	startOnce sync.Once
	startErr  error
	stopOnce  sync.Once
	stopErr   error
}

// NewAndroid creates a controller recording at fps frames per second.
func NewAndroid(logger zerolog.Logger, dev device.ScreenRecorder, fps float64, stopDelay time.Duration) *Android {
	return &Android{
		logger:    logger,
		dev:       dev,
		fps:       fps,
		stopDelay: stopDelay,
	}
}

// Start begins recording to path.
func (a *Android) Start(ctx context.Context, path string) error {
	a.startOnce.Do(func() {
		a.logger.Info().Str("path", path).Msg("Starting screen recording")
		if err := a.dev.ScreenrecordStart(ctx, path, a.fps); err != nil {
			a.startErr = fmt.Errorf("failed to start screen recording: %w", err)
			return
		}
		a.mu.Lock()
		a.path = path
		a.started = true
		a.mu.Unlock()
	})
	return a.startErr
}

// Stop ends the recording after the configured delay.
func (a *Android) Stop() error {
	a.stopOnce.Do(func() {
		a.mu.Lock()
		started := a.started
		a.mu.Unlock()
		if !started {
			return
		}

		if a.stopDelay > 0 {
			time.Sleep(a.stopDelay)
		}
		if err := a.dev.ScreenrecordStop(); err != nil {
			a.stopErr = fmt.Errorf("failed to stop screen recording: %w", err)
			return
		}
		a.logger.Info().Str("path", a.path).Msg("Screen recording stopped")
	})
	return a.stopErr
}

// Artifact returns the recorded video.
func (a *Android) Artifact() *model.RecordingArtifact {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started || a.stopErr != nil {
		return nil
	}
	return &model.RecordingArtifact{Path: a.path, FPS: a.fps}
}
