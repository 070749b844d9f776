package capture

import (
	"sync"
	"sync/atomic"

	"github.com/SeldomQA/seldom-atx/model"
)

// RunContext is the state shared by the subtasks of one repetition. The
// capturing flag is set for exactly the lifetime of the repetition; the
// recording flag follows the action's start and stop requests.
type RunContext struct {
	Target model.Target
	Dir    string
	Index  int

	capturing atomic.Bool
	recording atomic.Bool

	done     chan struct{}
	recStart chan struct{}
	recStop  chan struct{}
	recReady chan struct{}

	doneOnce  sync.Once
	startOnce sync.Once
	stopOnce  sync.Once
	readyOnce sync.Once
}

// NewRunContext creates the context of repetition index writing into dir.
func NewRunContext(target model.Target, dir string, index int) *RunContext {
	rc := &RunContext{
		Target:   target,
		Dir:      dir,
		Index:    index,
		done:     make(chan struct{}),
		recStart: make(chan struct{}),
		recStop:  make(chan struct{}),
		recReady: make(chan struct{}),
	}
	rc.capturing.Store(true)
	return rc
}

// Capturing reports whether the repetition is still running.
func (rc *RunContext) Capturing() bool {
	return rc.capturing.Load()
}

// Recording reports whether the action asked for the screen to be recorded.
func (rc *RunContext) Recording() bool {
	return rc.recording.Load()
}

// Done is closed when capturing ends.
func (rc *RunContext) Done() <-chan struct{} {
	return rc.done
}

// RecordingStarted is closed when recording was requested.
func (rc *RunContext) RecordingStarted() <-chan struct{} {
	return rc.recStart
}

// RecordingStopped is closed when the recording window ended.
func (rc *RunContext) RecordingStopped() <-chan struct{} {
	return rc.recStop
}

// RecorderReady is closed once the recorder runs or failed to start.
func (rc *RunContext) RecorderReady() <-chan struct{} {
	return rc.recReady
}

// StartRecording opens the recording window.
func (rc *RunContext) StartRecording() {
	rc.startOnce.Do(func() {
		rc.recording.Store(true)
		close(rc.recStart)
	})
}

// StopRecording closes the recording window.
func (rc *RunContext) StopRecording() {
	rc.stopOnce.Do(func() {
		rc.recording.Store(false)
		close(rc.recStop)
	})
}

// MarkRecorderReady releases a pending StartRecording.
func (rc *RunContext) MarkRecorderReady() {
	rc.readyOnce.Do(func() {
		close(rc.recReady)
	})
}

// Finish stops recording and ends capturing.
func (rc *RunContext) Finish() {
	rc.StopRecording()
	rc.doneOnce.Do(func() {
		rc.capturing.Store(false)
		close(rc.done)
	})
}
