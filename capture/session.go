package capture

import (
	"context"
	"time"

	"github.com/SeldomQA/seldom-atx/device"
)

// Session is what the instrumented action sees of its repetition.
type Session struct {
	rc       *RunContext
	driver   device.Driver
	recorder bool
	settle   time.Duration
}

// Context returns the run context of the repetition.
func (s *Session) Context() *RunContext {
	return s.rc
}

// Driver returns the device driver.
func (s *Session) Driver() device.Driver {
	return s.driver
}

// Repetition returns the zero-based repetition index.
func (s *Session) Repetition() int {
	return s.rc.Index
}

// StartRecording opens the recording window and waits, at most the settle
// time, for the recorder to run.
func (s *Session) StartRecording(ctx context.Context) {
	s.rc.StartRecording()
	if !s.recorder {
		return
	}

	t := time.NewTimer(s.settle)
	defer t.Stop()
	select {
	case <-s.rc.RecorderReady():
	case <-t.C:
	case <-ctx.Done():
	}
}

// StopRecording closes the recording window.
func (s *Session) StopRecording() {
	s.rc.StopRecording()
}
