// Package video wraps ffprobe and ffmpeg: it extracts the frames a duration
// is measured from and encodes pushed MJPEG frames into a video file.
package video

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// FramePattern names extracted frames by their absolute index.
const FramePattern = "frame_%06d.jpg"

// Info describes a video stream.
type Info struct {
	FPS    float64
	Frames int
}

// Duration returns the stream length in seconds.
func (i Info) Duration() float64 {
	if i.FPS <= 0 {
		return 0
	}
	return float64(i.Frames) / i.FPS
}

// Extractor writes frames of a video into a directory.
type Extractor interface {
	// Extract writes the frames of the first and the last seconds of the
	// video into outDir.
	Extract(ctx context.Context, videoPath, outDir string, seconds float64) (Info, error)
	// ExtractAll writes every frame of the video into outDir.
	ExtractAll(ctx context.Context, videoPath, outDir string) (Info, error)
}

// Range is a half-open interval of frame indexes.
type Range struct {
	From, To int
}

// Windows returns the frame ranges covering the first and the last seconds
// of a video. Overlapping windows are merged.
func Windows(info Info, seconds float64) []Range {
	head := int(info.FPS * seconds)
	tail := int(info.FPS * math.Min(seconds, info.Duration()))
	if head >= info.Frames {
		return []Range{{From: 0, To: info.Frames}}
	}

	begin := info.Frames - tail
	if begin <= head {
		return []Range{{From: 0, To: info.Frames}}
	}
	return []Range{{From: 0, To: head}, {From: begin, To: info.Frames}}
}

// FFmpeg implements Extractor with the ffmpeg command line tools.
type FFmpeg struct {
	logger  zerolog.Logger
	ffmpeg  string
	ffprobe string
}

// Option configures FFmpeg.
type Option func(*FFmpeg)

// WithBinaries overrides the ffmpeg and ffprobe binaries.
func WithBinaries(ffmpeg, ffprobe string) Option {
	return func(f *FFmpeg) {
		f.ffmpeg = ffmpeg
		f.ffprobe = ffprobe
	}
}

// NewFFmpeg creates an extractor.
func NewFFmpeg(logger zerolog.Logger, opts ...Option) *FFmpeg {
	f := &FFmpeg{
		logger:  logger,
		ffmpeg:  "ffmpeg",
		ffprobe: "ffprobe",
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Probe reads the frame rate and the frame count of the first video stream.
func (f *FFmpeg) Probe(ctx context.Context, path string) (Info, error) {
	out, err := run(ctx, f.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-count_frames",
		"-show_entries", "stream=r_frame_rate,avg_frame_rate,nb_read_frames",
		"-of", "json",
		path,
	)
	if err != nil {
		return Info{}, fmt.Errorf("failed to probe %s: %w", path, err)
	}
	return parseProbe([]byte(out))
}

func parseProbe(data []byte) (Info, error) {
	var probe struct {
		Streams []struct {
			RFrameRate   string `json:"r_frame_rate"`
			AvgFrameRate string `json:"avg_frame_rate"`
			NbReadFrames string `json:"nb_read_frames"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return Info{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 {
		return Info{}, fmt.Errorf("no video stream found")
	}

	s := probe.Streams[0]
	fps, err := parseRate(s.RFrameRate)
	if err != nil || fps == 0 {
		fps, err = parseRate(s.AvgFrameRate)
		if err != nil {
			return Info{}, err
		}
	}
	frames, err := strconv.Atoi(s.NbReadFrames)
	if err != nil {
		return Info{}, fmt.Errorf("invalid frame count %q: %w", s.NbReadFrames, err)
	}
	return Info{FPS: fps, Frames: frames}, nil
}

// parseRate parses an ffprobe rational such as "45/1".
func parseRate(s string) (float64, error) {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frame rate %q: %w", s, err)
	}
	if !found {
		return n, nil
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frame rate %q: %w", s, err)
	}
	if d == 0 {
		return 0, nil
	}
	return n / d, nil
}

// Extract writes the first and the last seconds of videoPath into outDir.
func (f *FFmpeg) Extract(ctx context.Context, videoPath, outDir string, seconds float64) (Info, error) {
	info, err := f.Probe(ctx, videoPath)
	if err != nil {
		return Info{}, err
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return info, fmt.Errorf("failed to create frame directory: %w", err)
	}

	for _, r := range Windows(info, seconds) {
		if err := f.extractRange(ctx, videoPath, outDir, r); err != nil {
			return info, err
		}
	}

	f.logger.Debug().
		Str("video", videoPath).
		Float64("fps", info.FPS).
		Int("frames", info.Frames).
		Msg("Frames extracted")
	return info, nil
}

// ExtractAll writes every frame of videoPath into outDir.
func (f *FFmpeg) ExtractAll(ctx context.Context, videoPath, outDir string) (Info, error) {
	info, err := f.Probe(ctx, videoPath)
	if err != nil {
		return Info{}, err
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return info, fmt.Errorf("failed to create frame directory: %w", err)
	}
	if err := f.extractRange(ctx, videoPath, outDir, Range{From: 0, To: info.Frames}); err != nil {
		return info, err
	}
	return info, nil
}

func (f *FFmpeg) extractRange(ctx context.Context, videoPath, outDir string, r Range) error {
	if r.To <= r.From {
		return nil
	}

	f.logger.Trace().Int("from", r.From).Int("to", r.To).Msg("Extracting frame range")
	_, err := run(ctx, f.ffmpeg, extractArgs(videoPath, outDir, r)...)
	if err != nil {
		return fmt.Errorf("failed to extract frames %d-%d: %w", r.From, r.To, err)
	}
	return nil
}

func extractArgs(videoPath, outDir string, r Range) []string {
	return []string{
		"-loglevel", "error",
		"-i", videoPath,
		"-vf", fmt.Sprintf("select=between(n\\,%d\\,%d)", r.From, r.To-1),
		"-vsync", "passthrough",
		"-q:v", "2",
		"-start_number", strconv.Itoa(r.From),
		"-y", filepath.Join(outDir, FramePattern),
	}
}
