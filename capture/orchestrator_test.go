package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/SeldomQA/seldom-atx/model"
	"github.com/SeldomQA/seldom-atx/recording"
	"github.com/SeldomQA/seldom-atx/sampler"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeDriver struct {
	mu       sync.Mutex
	restarts int
}

func (d *fakeDriver) AppStart(ctx context.Context, pkg string, stopFirst bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if stopFirst {
		d.restarts++
	}
	return nil
}

func (d *fakeDriver) AppStop(ctx context.Context, pkg string) error { return nil }

func (d *fakeDriver) Screenshot(ctx context.Context) (image.Image, error) {
	return image.NewGray(image.Rect(0, 0, 1, 1)), nil
}

func (d *fakeDriver) Shell(ctx context.Context, command string) (string, error) { return "", nil }

func (d *fakeDriver) Name(ctx context.Context) (string, error) { return "Pixel", nil }

type fakeRecorder struct {
	mu       sync.Mutex
	path     string
	starts   int
	stops    int
	startErr error
}

func (r *fakeRecorder) Start(ctx context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	r.path = path
	return r.startErr
}

func (r *fakeRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	return nil
}

func (r *fakeRecorder) Artifact() *model.RecordingArtifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &model.RecordingArtifact{Path: r.path, FPS: 45}
}

type fakeSampler struct {
	mu      sync.Mutex
	snap    sampler.Snapshot
	stopErr error
	stopped int
}

func (s *fakeSampler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Memory.Append(time.Now(), 50, 0, 0)
	return nil
}

func (s *fakeSampler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped++
	return s.stopErr
}

func (s *fakeSampler) Series() sampler.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone()
}

var target = model.Target{Platform: model.PlatformAndroid, DeviceID: "emulator-5554", Package: "com.example.app"}

func TestOrchestrator_PartialPerformanceError(t *testing.T) {
	var samplers []*fakeSampler
	newSampler := func() sampler.Sampler {
		s := &fakeSampler{snap: sampler.NewSnapshot()}
		if len(samplers) == 1 {
			s.stopErr = sampler.ErrProcessNotFound
		}
		samplers = append(samplers, s)
		return s
	}

	o := New(zerolog.Nop(), &fakeDriver{}, target, WithSampler(newSampler))
	plan := Plan{
		Capabilities: model.NewCapabilitySet(model.CapabilityPerformance),
		Repetitions:  3,
		OutputDir:    t.TempDir(),
		Name:         "login",
	}

	var capturing []bool
	reps, err := o.Run(context.Background(), plan, func(ctx context.Context, s *Session) error {
		capturing = append(capturing, s.Context().Capturing())
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []bool{true, true, true}, capturing)
	require.Len(t, reps, 3)
	require.Len(t, samplers, 3)

	require.NoError(t, reps[0].PerformanceErr)
	var perfErr *PerformanceError
	require.ErrorAs(t, reps[1].PerformanceErr, &perfErr)
	require.Equal(t, 1, perfErr.Repetition)
	require.ErrorIs(t, reps[1].PerformanceErr, sampler.ErrProcessNotFound)
	require.NoError(t, reps[2].PerformanceErr)

	for i, rep := range reps {
		require.Equal(t, 1, samplers[i].stopped)
		// Each repetition has its own samples.
		require.Equal(t, 1, rep.Perf.Memory.Len())
		require.Equal(t, filepath.Join(plan.OutputDir, fmt.Sprintf("login_%d", i)), rep.Dir)
	}
}

func TestOrchestrator_ActionErrorStops(t *testing.T) {
	o := New(zerolog.Nop(), &fakeDriver{}, target)
	boom := errors.New("element not found")

	calls := 0
	reps, err := o.Run(context.Background(), Plan{Repetitions: 3, OutputDir: t.TempDir(), Name: "search"},
		func(ctx context.Context, s *Session) error {
			calls++
			if s.Repetition() == 1 {
				return boom
			}
			return nil
		})

	var actionErr *ActionError
	require.ErrorAs(t, err, &actionErr)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, actionErr.Repetition)
	require.Equal(t, 2, calls)
	require.Len(t, reps, 2)
	require.Same(t, reps[1].ActionErr, err)
}

func TestOrchestrator_Recording(t *testing.T) {
	var recorders []*fakeRecorder
	o := New(zerolog.Nop(), &fakeDriver{}, target,
		WithRecorder(func() recording.Controller {
			r := &fakeRecorder{}
			recorders = append(recorders, r)
			return r
		}),
		WithRecordSettle(time.Second),
	)

	t.Run("auto record", func(t *testing.T) {
		recorders = nil
		plan := Plan{
			Capabilities: model.NewCapabilitySet(model.CapabilityDuration),
			Repetitions:  2,
			OutputDir:    t.TempDir(),
			Name:         "open",
			AutoRecord:   true,
		}
		var recording []bool
		reps, err := o.Run(context.Background(), plan, func(ctx context.Context, s *Session) error {
			recording = append(recording, s.Context().Recording())
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, []bool{true, true}, recording)
		require.Len(t, recorders, 2)
		for i, rep := range reps {
			require.NotNil(t, rep.Video)
			require.Equal(t, filepath.Join(rep.Dir, VideoFile), rep.Video.Path)
			require.Equal(t, 1, recorders[i].starts)
			require.Equal(t, 1, recorders[i].stops)
		}
	})

	t.Run("action opens the window", func(t *testing.T) {
		recorders = nil
		plan := Plan{
			Capabilities: model.NewCapabilitySet(model.CapabilityDuration),
			Repetitions:  1,
			OutputDir:    t.TempDir(),
			Name:         "open",
		}
		var states []bool
		reps, err := o.Run(context.Background(), plan, func(ctx context.Context, s *Session) error {
			states = append(states, s.Context().Recording())
			s.StartRecording(ctx)
			states = append(states, s.Context().Recording())
			s.StopRecording()
			states = append(states, s.Context().Recording())
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, []bool{false, true, false}, states)
		require.NotNil(t, reps[0].Video)
	})

	t.Run("action never records", func(t *testing.T) {
		recorders = nil
		plan := Plan{
			Capabilities: model.NewCapabilitySet(model.CapabilityDuration),
			Repetitions:  1,
			OutputDir:    t.TempDir(),
			Name:         "open",
		}
		reps, err := o.Run(context.Background(), plan, func(ctx context.Context, s *Session) error { return nil })
		require.NoError(t, err)
		require.Nil(t, reps[0].Video)
		require.NoError(t, reps[0].RecordingErr)
		require.Equal(t, 0, recorders[0].starts)
	})
}

func TestOrchestrator_RecordingError(t *testing.T) {
	o := New(zerolog.Nop(), &fakeDriver{}, target,
		WithRecorder(func() recording.Controller {
			return &fakeRecorder{startErr: errors.New("connection refused")}
		}),
	)
	plan := Plan{
		Capabilities: model.NewCapabilitySet(model.CapabilityDuration),
		Repetitions:  1,
		OutputDir:    t.TempDir(),
		Name:         "open",
		AutoRecord:   true,
	}

	start := time.Now()
	reps, err := o.Run(context.Background(), plan, func(ctx context.Context, s *Session) error { return nil })
	require.NoError(t, err)
	// A failed start releases the action before the settle time.
	require.Less(t, time.Since(start), DefaultRecordSettle)

	var recErr *RecordingError
	require.ErrorAs(t, reps[0].RecordingErr, &recErr)
	require.Nil(t, reps[0].Video)
	require.Error(t, reps[0].Err())
	require.Len(t, reps[0].Errors(), 1)
}

func TestOrchestrator_NothingMode(t *testing.T) {
	driver := &fakeDriver{}
	o := New(zerolog.Nop(), driver, target,
		WithSampler(func() sampler.Sampler {
			t.Fatal("sampler must not be created")
			return nil
		}),
	)

	calls := 0
	reps, err := o.Run(context.Background(), Plan{Repetitions: 3, OutputDir: t.TempDir(), Name: "idle", RestartApp: true},
		func(ctx context.Context, s *Session) error {
			calls++
			return nil
		})
	require.NoError(t, err)
	require.Len(t, reps, 3)
	require.Equal(t, 3, calls)
	require.Equal(t, 2, driver.restarts)
}

func TestOrchestrator_Cancelled(t *testing.T) {
	o := New(zerolog.Nop(), &fakeDriver{}, target)
	ctx, cancel := context.WithCancel(context.Background())

	reps, err := o.Run(ctx, Plan{Repetitions: 3, OutputDir: t.TempDir(), Name: "cancel"},
		func(ctx context.Context, s *Session) error {
			cancel()
			return nil
		})
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, reps, 1)
}

func TestRunContext(t *testing.T) {
	rc := NewRunContext(target, "dir", 0)
	require.True(t, rc.Capturing())
	require.False(t, rc.Recording())

	rc.StartRecording()
	rc.StartRecording()
	require.True(t, rc.Recording())

	rc.Finish()
	rc.Finish()
	require.False(t, rc.Capturing())
	require.False(t, rc.Recording())

	for _, ch := range []<-chan struct{}{rc.Done(), rc.RecordingStarted(), rc.RecordingStopped()} {
		select {
		case <-ch:
		default:
			t.Fatal("channel not closed")
		}
	}
}
