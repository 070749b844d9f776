package keyframe

// match.go contains the start/stop boundary search over extracted frames.

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/SeldomQA/seldom-atx/model"
	"github.com/rs/zerolog"
)

// TieThreshold is the distance under which two candidates are considered
// equally good. The start search keeps moving to later near-ties, the stop
// search keeps the earliest one.
const TieThreshold = 100

// ErrNoMatch is returned when no frame can be chosen for a boundary.
var ErrNoMatch = errors.New("no matching frame")

// Frame is an extracted image with its absolute index in the recording.
type Frame struct {
	Path  string
	Index int
}

// ParseFrameIndex extracts the frame index from the last six characters of
// the file stem, e.g. "frame_000123.jpg" -> 123.
func ParseFrameIndex(name string) (int, error) {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if len(stem) < 6 {
		return 0, fmt.Errorf("invalid frame name %q", name)
	}
	idx, err := strconv.Atoi(stem[len(stem)-6:])
	if err != nil {
		return 0, fmt.Errorf("invalid frame name %q: %w", name, err)
	}
	return idx, nil
}

// ListFrames returns the .jpg frames of dir that follow the naming
// convention, ordered by frame index.
func ListFrames(dir string) ([]Frame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory: %w", err)
	}

	var frames []Frame
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jpg") {
			continue
		}
		idx, err := ParseFrameIndex(e.Name())
		if err != nil {
			continue
		}
		frames = append(frames, Frame{Path: filepath.Join(dir, e.Name()), Index: idx})
	}

	sort.Slice(frames, func(i, j int) bool {
		return frames[i].Index < frames[j].Index
	})
	return frames, nil
}

// Matcher finds the frames closest to keyframe references. Frame hashes are
// cached, so a Matcher must not be shared between goroutines.
type Matcher struct {
	logger zerolog.Logger
	window int
	hashes map[string]Hash
	hash   func(path string) (Hash, error)
}

// NewMatcher creates a matcher. window is the number of frames in one
// analysis window (frame seconds multiplied by the declared frame rate).
func NewMatcher(logger zerolog.Logger, window int) *Matcher {
	return &Matcher{
		logger: logger,
		window: window,
		hashes: make(map[string]Hash),
		hash:   HashFile,
	}
}

// bounds returns the end of the start range and the beginning of the stop
// range. Short clips are scanned entirely for both boundaries.
func (m *Matcher) bounds(n int) (startEnd, stopBegin int) {
	if n <= m.window*2 {
		return n, 0
	}
	return m.window, m.window
}

func (m *Matcher) distance(ref Hash, f Frame) (int, bool) {
	h, ok := m.hashes[f.Path]
	if !ok {
		var err error
		h, err = m.hash(f.Path)
		if err != nil {
			m.logger.Warn().Err(err).Str("frame", f.Path).Msg("Skipping undecodable frame")
			return 0, false
		}
		m.hashes[f.Path] = h
	}
	return Distance(ref, h), true
}

// FindStart scans the start window chronologically. A candidate replaces the
// current best when it is at least as close or within TieThreshold of it, so
// the latest of near-tied frames wins.
func (m *Matcher) FindStart(ref Hash, frames []Frame) (model.MatchResult, error) {
	end, _ := m.bounds(len(frames))

	var best model.MatchResult
	found := false
	for _, f := range frames[:end] {
		d, ok := m.distance(ref, f)
		if !ok {
			continue
		}
		if !found || d <= best.Distance || abs(best.Distance-d) < TieThreshold {
			best = model.MatchResult{Path: f.Path, Index: f.Index, Distance: d}
			found = true
		}
	}
	if !found {
		return model.MatchResult{}, fmt.Errorf("start boundary: %w", ErrNoMatch)
	}

	m.logger.Debug().Int("frame", best.Index).Int("distance", best.Distance).Msg("Start frame found")
	return best, nil
}

// FindStop scans the stop window chronologically keeping every strictly
// improving candidate, then returns the first kept candidate within
// TieThreshold of the final best, so the earliest of near-tied frames wins.
func (m *Matcher) FindStop(ref Hash, frames []Frame) (model.MatchResult, error) {
	_, begin := m.bounds(len(frames))

	var improving []model.MatchResult
	for _, f := range frames[begin:] {
		d, ok := m.distance(ref, f)
		if !ok {
			continue
		}
		if len(improving) == 0 || d < improving[len(improving)-1].Distance {
			improving = append(improving, model.MatchResult{Path: f.Path, Index: f.Index, Distance: d})
		}
	}
	if len(improving) == 0 {
		return model.MatchResult{}, fmt.Errorf("stop boundary: %w", ErrNoMatch)
	}

	final := improving[len(improving)-1].Distance
	for _, c := range improving {
		if abs(final-c.Distance) < TieThreshold {
			m.logger.Debug().Int("frame", c.Index).Int("distance", c.Distance).Msg("Stop frame found")
			return c, nil
		}
	}
	return model.MatchResult{}, fmt.Errorf("stop boundary: %w", ErrNoMatch)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
