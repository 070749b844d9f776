// Package sampler collects CPU, memory and FPS time series of the app under
// test while a repetition is capturing.
package sampler

import (
	"context"
	"errors"
	"math"

	"github.com/SeldomQA/seldom-atx/model"
)

// ErrProcessNotFound is returned when the app process cannot be found on the
// device. It ends the sampling loop that hit it.
var ErrProcessNotFound = errors.New("app process not found")

// Sampler collects the performance series of one repetition.
type Sampler interface {
	Start(ctx context.Context) error
	// Stop ends sampling. No sample is appended after Stop returns. It is
	// safe to call more than once.
	Stop() error
	// Series returns a copy of the samples collected so far.
	Series() Snapshot
}

// Snapshot holds the three series of one repetition.
type Snapshot struct {
	CPU    model.Series `json:"cpu"`
	Memory model.Series `json:"memory"`
	FPS    model.Series `json:"fps"`
}

// NewSnapshot returns empty series for every metric.
func NewSnapshot() Snapshot {
	return Snapshot{
		CPU:    model.NewSeries(model.MetricCPU),
		Memory: model.NewSeries(model.MetricMemory),
		FPS:    model.NewSeries(model.MetricFPS),
	}
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		CPU:    s.CPU.Clone(),
		Memory: s.Memory.Clone(),
		FPS:    s.FPS.Clone(),
	}
}

// All returns the series in report order.
func (s Snapshot) All() []model.Series {
	return []model.Series{s.CPU, s.Memory, s.FPS}
}

func (s *Snapshot) series(m model.Metric) *model.Series {
	switch m {
	case model.MetricCPU:
		return &s.CPU
	case model.MetricMemory:
		return &s.Memory
	case model.MetricFPS:
		return &s.FPS
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
