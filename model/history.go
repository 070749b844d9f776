package model

import "time"

// History is the manifest written next to the artifacts of one instrumented
// invocation. It lets a run be audited after the fact: recordings, frames,
// logs and charts stay on disk.
type History struct {
	// Same ID as the persisted run record
	ID string `json:"id"`
	// Timestamp when the invocation started
	Timestamp time.Time `json:"timestamp"`
	// Command-line arguments (including command name), empty for library use
	Args []string `json:"args,omitempty"`
	// Output directory of the invocation
	Dir string `json:"dir"`
	// Wall clock duration of the whole invocation
	Duration time.Duration `json:"duration"`
	// Target device
	Target *Target `json:"target,omitempty"`
	// Test case identity
	Case Case `json:"case"`
	// Capabilities requested
	RunList CapabilitySet `json:"run_list"`
	// Per repetition outcome
	Repetitions []RepetitionSummary `json:"repetitions,omitempty"`
	// Aggregated record, nil if the invocation failed before aggregation
	Record *RunRecord `json:"record,omitempty"`
	// Artifacts generated during this run
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// Target contains information about the device under test.
type Target struct {
	Platform Platform `json:"platform"`
	DeviceID string   `json:"device_id,omitempty"`
	Package  string   `json:"package,omitempty"`
}

// RepetitionSummary is the per repetition part of the manifest.
type RepetitionSummary struct {
	Index            int          `json:"index"`
	Duration         float64      `json:"duration,omitempty"`
	DurationResolved bool         `json:"duration_resolved"`
	Start            *MatchResult `json:"start,omitempty"`
	Stop             *MatchResult `json:"stop,omitempty"`
	Errors           []string     `json:"errors,omitempty"`
}

// ArtifactType identifies the type of artifact
type ArtifactType uint8

const (
	ArtifactTypeRecording ArtifactType = iota
	ArtifactTypeFrames
	ArtifactTypeDeviceLog
	ArtifactTypeChart
	ArtifactTypeProfile
	ArtifactTypeKeyframe
	ArtifactTypeStdout
	ArtifactTypeStderr
)

func (t ArtifactType) String() string {
	switch t {
	case ArtifactTypeRecording:
		return "recording"
	case ArtifactTypeFrames:
		return "frames"
	case ArtifactTypeDeviceLog:
		return "log"
	case ArtifactTypeChart:
		return "chart"
	case ArtifactTypeProfile:
		return "profile"
	case ArtifactTypeKeyframe:
		return "keyframe"
	case ArtifactTypeStdout:
		return "stdout"
	case ArtifactTypeStderr:
		return "stderr"
	}
	return "unknown"
}

// Artifact represents a file generated during execution
type Artifact struct {
	Type       ArtifactType `json:"type"`
	Repetition int          `json:"repetition"`
	Size       uint64       `json:"size"`
	File       string       `json:"file"` // relative to run dir
}
