// Package chart draws performance series as line charts for the report.
package chart

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/SeldomQA/seldom-atx/model"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// ErrNoSamples is returned when a series has nothing to draw.
var ErrNoSamples = errors.New("series has no samples")

const (
	// minUnits is the minimum chart width in samples.
	minUnits = 25
	// unitWidth is the horizontal space given to one sample.
	unitWidth = vg.Length(0.5) * vg.Inch
	height    = 5 * vg.Inch
	maxTicks  = 40
)

// Width returns the chart width for n samples.
func Width(n int) vg.Length {
	return vg.Length(math.Max(float64(n), minUnits)) * unitWidth
}

// Plot builds the chart of s: one line per field with every point labelled
// with its value, x ticks at the sample times.
func Plot(s model.Series, title string) (*plot.Plot, error) {
	if s.Len() == 0 {
		return nil, ErrNoSamples
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time"
	p.Y.Label.Text = "Value"
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	origin := s.Samples[0].Time
	for fi, field := range s.Fields {
		pts := make(plotter.XYs, s.Len())
		labels := make([]string, s.Len())
		for i, sample := range s.Samples {
			pts[i].X = sample.Time.Sub(origin).Seconds()
			if fi < len(sample.Values) {
				pts[i].Y = sample.Values[fi]
			}
			labels[i] = fmt.Sprintf("%.1f", pts[i].Y)
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to draw %s: %w", field, err)
		}
		line.Color = plotutil.Color(fi)
		line.Width = vg.Points(2)
		p.Add(line)
		p.Legend.Add(field, line)

		values, err := plotter.NewLabels(plotter.XYLabels{XYs: pts, Labels: labels})
		if err != nil {
			return nil, fmt.Errorf("failed to label %s: %w", field, err)
		}
		values.Offset = vg.Point{Y: vg.Points(5)}
		p.Add(values)
	}

	p.X.Tick.Marker = plot.ConstantTicks(timeTicks(s))
	return p, nil
}

// timeTicks places a tick at every sample time, thinned so that at most
// maxTicks carry a label.
func timeTicks(s model.Series) []plot.Tick {
	step := (s.Len() + maxTicks - 1) / maxTicks
	origin := s.Samples[0].Time
	ticks := make([]plot.Tick, 0, s.Len())
	for i, sample := range s.Samples {
		t := plot.Tick{Value: sample.Time.Sub(origin).Seconds()}
		if i%step == 0 {
			t.Label = sample.Time.Format("15:04:05")
		}
		ticks = append(ticks, t)
	}
	return ticks
}

// Render draws s into the JPEG file at path and returns the image base64
// encoded.
func Render(s model.Series, title, path string) (string, error) {
	p, err := Plot(s, title)
	if err != nil {
		return "", err
	}
	if err := p.Save(Width(s.Len()), height, path); err != nil {
		return "", fmt.Errorf("failed to save chart: %w", err)
	}
	return EncodeFile(path)
}

// EncodeFile returns the base64 encoding of the file at path.
func EncodeFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
