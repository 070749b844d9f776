// Package report aggregates the repetitions of one instrumented call into
// a Run Record, checks it against thresholds and persists it.
package report

import (
	"math"
	"time"

	"github.com/SeldomQA/seldom-atx/model"
	"github.com/google/uuid"
)

// Thresholds are the limits a Run Record is checked against.
type Thresholds struct {
	// Memory is the limit on the peak total PSS, in MB
	Memory float64
	// Duration is the limit on the average duration, in seconds
	Duration float64
}

// Input is everything the aggregator needs about one instrumented call.
type Input struct {
	// ID of the run, shared with its output directory; generated when empty
	ID          string
	Time        time.Time
	Platform    model.Platform
	DeviceName  string
	Case        model.Case
	RunList     model.CapabilitySet
	Repetitions int
	// Durations resolved, in repetition order; unresolved ones are absent
	Durations []float64
	// Memory series of every repetition
	Memory []model.Series
}

// Average returns the mean of values rounded to two decimals, 0 when empty.
func Average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return math.Round(sum/float64(len(values))*100) / 100
}

// MemoryMax returns the largest total PSS over all series, 0 when there
// are no samples.
func MemoryMax(series []model.Series) float64 {
	var peak float64
	for _, s := range series {
		if m := s.Max(0); m > peak {
			peak = m
		}
	}
	return peak
}

// Result returns model.ResultFail when either value exceeds its threshold.
func Result(memoryMax, durationAvg float64, t Thresholds) int {
	if memoryMax > t.Memory || durationAvg > t.Duration {
		return model.ResultFail
	}
	return model.ResultPass
}

// Aggregate builds the Run Record of in.
func Aggregate(in Input, t Thresholds) *model.RunRecord {
	rec := &model.RunRecord{
		ID:            in.ID,
		Time:          in.Time,
		Platform:      in.Platform,
		DeviceName:    in.DeviceName,
		Case:          in.Case,
		DurationTimes: in.Repetitions,
		DurationList:  append([]float64{}, in.Durations...),
		DurationAvg:   Average(in.Durations),
		MemoryMax:     MemoryMax(in.Memory),
		RunList:       in.RunList,
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	rec.Result = Result(rec.MemoryMax, rec.DurationAvg, t)
	return rec
}
