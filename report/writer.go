package report

import (
	"context"
	"fmt"

	"github.com/SeldomQA/seldom-atx/model"
	"github.com/rs/zerolog"
)

// ThresholdBreach is returned by Writer.Write after persisting a record
// that exceeded a threshold.
type ThresholdBreach struct {
	Record     *model.RunRecord
	Thresholds Thresholds
}

func (e *ThresholdBreach) Error() string {
	r, t := e.Record, e.Thresholds
	switch {
	case r.MemoryMax > t.Memory && r.DurationAvg > t.Duration:
		return fmt.Sprintf("memory max %.2fMB exceeds %.2fMB and duration avg %.2fs exceeds %.2fs",
			r.MemoryMax, t.Memory, r.DurationAvg, t.Duration)
	case r.MemoryMax > t.Memory:
		return fmt.Sprintf("memory max %.2fMB exceeds %.2fMB", r.MemoryMax, t.Memory)
	default:
		return fmt.Sprintf("duration avg %.2fs exceeds %.2fs", r.DurationAvg, t.Duration)
	}
}

// Store persists Run Records.
type Store interface {
	Insert(ctx context.Context, rec *model.RunRecord) error
}

// Writer persists Run Records.
type Writer struct {
	logger     zerolog.Logger
	store      Store
	thresholds Thresholds
}

// NewWriter creates a Writer.
func NewWriter(logger zerolog.Logger, store Store, t Thresholds) *Writer {
	return &Writer{logger: logger, store: store, thresholds: t}
}

// Write persists rec exactly once. A record that breached a threshold is
// still persisted and a *ThresholdBreach is returned afterwards. A record
// already marked failed stays failed.
func (w *Writer) Write(ctx context.Context, rec *model.RunRecord) error {
	breach := Result(rec.MemoryMax, rec.DurationAvg, w.thresholds) == model.ResultFail
	switch {
	case breach:
		rec.Result = model.ResultFail
	case rec.Result == 0:
		rec.Result = model.ResultPass
	}
	if err := w.store.Insert(ctx, rec); err != nil {
		return fmt.Errorf("failed to persist run record: %w", err)
	}

	w.logger.Info().
		Str("id", rec.ID).
		Str("case", rec.Case.Name).
		Float64("duration_avg", rec.DurationAvg).
		Float64("memory_max", rec.MemoryMax).
		Int("result", rec.Result).
		Msg("Run record saved")

	if breach {
		return &ThresholdBreach{Record: rec, Thresholds: w.thresholds}
	}
	return nil
}
