package sampler

import (
	"context"
	"fmt"
	"sync"

	"github.com/SeldomQA/seldom-atx/device"
	"github.com/SeldomQA/seldom-atx/model"
	"github.com/rs/zerolog"
)

// IOS receives samples pushed by the device performance collector.
type IOS struct {
	logger zerolog.Logger
	dev    device.PerfStreamer
	bundle string

	mu     sync.Mutex
	snap   Snapshot
	closed bool
	stop   func() error

	stopOnce sync.Once
	stopErr  error
}

// NewIOS creates a sampler for bundle.
func NewIOS(logger zerolog.Logger, dev device.PerfStreamer, bundle string) *IOS {
	return &IOS{
		logger: logger,
		dev:    dev,
		bundle: bundle,
		snap:   NewSnapshot(),
	}
}

// Start subscribes to the collector.
func (s *IOS) Start(ctx context.Context) error {
	stop, err := s.dev.StreamPerf(ctx, s.bundle, s.handle)
	if err != nil {
		return fmt.Errorf("failed to start performance collector: %w", err)
	}
	s.mu.Lock()
	s.stop = stop
	s.mu.Unlock()
	return nil
}

// handle demultiplexes one event into its series. Events arriving after
// Stop are dropped.
func (s *IOS) handle(ev device.PerfEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	switch model.Metric(ev.Type) {
	case model.MetricCPU:
		s.snap.CPU.Append(ev.Time, round2(ev.Value), round2(ev.SysValue))
	case model.MetricMemory:
		s.snap.Memory.Append(ev.Time, round2(ev.Value), 0, 0)
	case model.MetricFPS:
		s.snap.FPS.Append(ev.Time, ev.Value, 0)
	default:
		return
	}
	s.logger.Trace().Str("metric", ev.Type).Float64("value", ev.Value).Msg("Sample")
}

// Stop unsubscribes from the collector.
func (s *IOS) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		stop := s.stop
		s.mu.Unlock()

		if stop != nil {
			if err := stop(); err != nil {
				s.stopErr = fmt.Errorf("failed to stop performance collector: %w", err)
			}
		}
	})
	return s.stopErr
}

// Series returns a copy of the collected samples.
func (s *IOS) Series() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone()
}
