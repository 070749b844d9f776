package model

import (
	"fmt"
	"time"
)

// Case identifies the instrumented test action.
type Case struct {
	// File holding the test (e.g. "login_test.go")
	File string `json:"file"`
	// Suite or type grouping the test
	Class string `json:"class"`
	// Name of the action; also the keyframe file prefix
	Name string `json:"name"`
	// Human readable description
	Desc string `json:"desc,omitempty"`
}

// Path renders the case location the way it is stored in the run table.
func (c Case) Path() string {
	return fmt.Sprintf("%s --> %s", c.File, c.Class)
}

// RecordingArtifact is a screen recording produced for one repetition.
type RecordingArtifact struct {
	Path string  `json:"path"`
	FPS  float64 `json:"fps"`
}

// MatchResult is the frame chosen for one keyframe boundary.
type MatchResult struct {
	Path     string `json:"path"`
	Index    int    `json:"index"`
	Distance int    `json:"distance"`
}

// Result values persisted for a run.
const (
	ResultPass = 1
	ResultFail = -1
)

// RunRecord is the aggregate of one instrumented action invocation.
type RunRecord struct {
	ID            string        `json:"id"`
	Time          time.Time     `json:"time"`
	Platform      Platform      `json:"device"`
	DeviceName    string        `json:"device_name"`
	Case          Case          `json:"case"`
	DurationTimes int           `json:"duration_times"`
	DurationList  []float64     `json:"duration_list"`
	DurationAvg   float64       `json:"duration_avg"`
	MemoryMax     float64       `json:"memory_max"`
	RunList       CapabilitySet `json:"run_list"`
	Result        int           `json:"result"`
}

// Passed reports whether the record met its thresholds.
func (r *RunRecord) Passed() bool {
	return r.Result == ResultPass
}
