package instrument

// This file contains the per repetition performance artifacts: charts for
// the report and the pprof export of the samples.

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/SeldomQA/seldom-atx/capture"
	"github.com/SeldomQA/seldom-atx/chart"
	"github.com/SeldomQA/seldom-atx/history"
	"github.com/SeldomQA/seldom-atx/model"
	"github.com/SeldomQA/seldom-atx/report"
	"github.com/rs/zerolog"
)

type chartDesc struct {
	kind  report.ImageKind
	title string
	tag   string
}

var charts = []chartDesc{
	{report.ImageCPU, "CPU", "CPU"},
	{report.ImageMemory, "Memory", "MEM"},
	{report.ImageFPS, "Fps", "FPS"},
}

func (in *Instrumenter) renderCharts(logger zerolog.Logger, dir string, h *model.History, name string, rep *capture.Repetition) {
	for i, series := range rep.Perf.All() {
		desc := charts[i]
		path := filepath.Join(rep.Dir, fmt.Sprintf("%s_%s_%d.jpg", name, desc.tag, rep.Index))

		img, err := chart.Render(series, desc.title, path)
		if errors.Is(err, chart.ErrNoSamples) {
			logger.Debug().Str("metric", string(series.Metric)).Msg("No samples to chart")
			continue
		}
		if err != nil {
			logger.Warn().Err(err).Str("metric", string(series.Metric)).Msg("Failed to render chart")
			continue
		}
		in.images.Add(desc.kind, img)
		history.Register(logger, dir, h, model.ArtifactTypeChart, rep.Index, path)
	}
}

func (in *Instrumenter) writeProfile(logger zerolog.Logger, dir string, h *model.History, rep *capture.Repetition) {
	empty := true
	for _, s := range rep.Perf.All() {
		if s.Len() > 0 {
			empty = false
		}
	}
	if empty {
		return
	}

	path := filepath.Join(rep.Dir, capture.ProfileFile)
	f, err := os.Create(path)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to create profile")
		return
	}
	defer f.Close()

	if err := rep.Perf.WriteProfile(f); err != nil {
		logger.Warn().Err(err).Msg("Failed to write profile")
		return
	}
	history.Register(logger, dir, h, model.ArtifactTypeProfile, rep.Index, path)
}
