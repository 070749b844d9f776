package model

import "time"

// Metric is the kind of a performance time series.
type Metric string

const (
	MetricCPU    Metric = "cpu"
	MetricMemory Metric = "memory"
	MetricFPS    Metric = "fps"
)

// Field names of each metric, in the order values are stored in a Sample.
var (
	CPUFields    = []string{"appCpuRate", "sysCpuRate"}
	MemoryFields = []string{"totalPss", "nativePss", "dalvikPss"}
	FPSFields    = []string{"fps", "jank"}
)

// Sample is one timestamped observation of a metric.
type Sample struct {
	Time   time.Time `json:"time"`
	Values []float64 `json:"values"`
}

// Series is the ordered sample list of one metric within one repetition.
type Series struct {
	Metric  Metric   `json:"metric"`
	Fields  []string `json:"fields"`
	Samples []Sample `json:"samples,omitempty"`
}

// NewSeries returns an empty series with the field names of the metric.
func NewSeries(m Metric) Series {
	var fields []string
	switch m {
	case MetricCPU:
		fields = CPUFields
	case MetricMemory:
		fields = MemoryFields
	case MetricFPS:
		fields = FPSFields
	}
	return Series{Metric: m, Fields: fields}
}

// Append adds a sample taken at t.
func (s *Series) Append(t time.Time, values ...float64) {
	s.Samples = append(s.Samples, Sample{Time: t, Values: values})
}

// Len returns the number of samples.
func (s Series) Len() int {
	return len(s.Samples)
}

// Max returns the largest value of the field at index field, or 0 when the
// series is empty.
func (s Series) Max(field int) float64 {
	var max float64
	for i, sample := range s.Samples {
		if field >= len(sample.Values) {
			continue
		}
		if i == 0 || sample.Values[field] > max {
			max = sample.Values[field]
		}
	}
	return max
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s Series) Clone() Series {
	out := Series{Metric: s.Metric, Fields: append([]string(nil), s.Fields...)}
	if len(s.Samples) > 0 {
		out.Samples = make([]Sample, len(s.Samples))
		for i, sample := range s.Samples {
			out.Samples[i] = Sample{Time: sample.Time, Values: append([]float64(nil), sample.Values...)}
		}
	}
	return out
}
