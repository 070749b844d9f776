package capture

import "fmt"

// ActionError is the failure of the instrumented action itself. It ends
// the repetition loop.
type ActionError struct {
	Repetition int
	Err        error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action failed in repetition %d: %v", e.Repetition, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// RecordingError is a screen recording failure. The duration of the
// repetition is not resolved.
type RecordingError struct {
	Repetition int
	Err        error
}

func (e *RecordingError) Error() string {
	return fmt.Sprintf("recording failed in repetition %d: %v", e.Repetition, e.Err)
}

func (e *RecordingError) Unwrap() error { return e.Err }

// PerformanceError is a sampling failure. Samples taken before it are kept.
type PerformanceError struct {
	Repetition int
	Err        error
}

func (e *PerformanceError) Error() string {
	return fmt.Sprintf("performance sampling failed in repetition %d: %v", e.Repetition, e.Err)
}

func (e *PerformanceError) Unwrap() error { return e.Err }

// LogError is a log capture failure.
type LogError struct {
	Repetition int
	Err        error
}

func (e *LogError) Error() string {
	return fmt.Sprintf("log capture failed in repetition %d: %v", e.Repetition, e.Err)
}

func (e *LogError) Unwrap() error { return e.Err }
