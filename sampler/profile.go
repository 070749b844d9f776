package sampler

// profile.go exports a snapshot as a pprof profile so a run can be explored
// with `go tool pprof`: every metric is a pseudo function and every field a
// sample type.

import (
	"fmt"
	"io"
	"math"

	"github.com/SeldomQA/seldom-atx/model"
	"github.com/google/pprof/profile"
)

// unit returns the pprof unit of a metric and the factor its values are
// scaled by to fit integer sample values.
func unit(m model.Metric) (string, float64) {
	switch m {
	case model.MetricCPU:
		return "centipercent", 100
	case model.MetricMemory:
		return "kilobytes", 1024
	default:
		return "centiframes", 100
	}
}

// Profile converts the snapshot into a pprof profile.
func (s Snapshot) Profile() (*profile.Profile, error) {
	p := &profile.Profile{
		PeriodType: &profile.ValueType{Type: "sample", Unit: "count"},
		Period:     1,
	}

	all := s.All()
	offsets := make([]int, len(all))
	for i, series := range all {
		offsets[i] = len(p.SampleType)
		u, _ := unit(series.Metric)
		for _, f := range series.Fields {
			p.SampleType = append(p.SampleType, &profile.ValueType{Type: f, Unit: u})
		}
	}

	var first, last int64
	for i, series := range all {
		fn := &profile.Function{
			ID:         uint64(i + 1),
			Name:       string(series.Metric),
			SystemName: string(series.Metric),
		}
		loc := &profile.Location{
			ID:   uint64(i + 1),
			Line: []profile.Line{{Function: fn}},
		}
		p.Function = append(p.Function, fn)
		p.Location = append(p.Location, loc)

		_, scale := unit(series.Metric)
		for _, sample := range series.Samples {
			values := make([]int64, len(p.SampleType))
			for j, v := range sample.Values {
				if j >= len(series.Fields) {
					break
				}
				values[offsets[i]+j] = int64(math.Round(v * scale))
			}

			ts := sample.Time.UnixNano()
			if first == 0 || ts < first {
				first = ts
			}
			if ts > last {
				last = ts
			}

			p.Sample = append(p.Sample, &profile.Sample{
				Location: []*profile.Location{loc},
				Value:    values,
				Label:    map[string][]string{"metric": {string(series.Metric)}},
				NumLabel: map[string][]int64{"timestamp": {sample.Time.UnixMilli()}},
				NumUnit:  map[string][]string{"timestamp": {"milliseconds"}},
			})
		}
	}
	p.TimeNanos = first
	p.DurationNanos = last - first

	if err := p.CheckValid(); err != nil {
		return nil, fmt.Errorf("failed to build profile: %w", err)
	}
	return p, nil
}

// WriteProfile writes the snapshot as a gzipped pprof profile.
func (s Snapshot) WriteProfile(w io.Writer) error {
	p, err := s.Profile()
	if err != nil {
		return err
	}
	if err := p.Write(w); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	return nil
}
