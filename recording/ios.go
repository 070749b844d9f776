package recording

// ios.go records an iOS device by reading the MJPEG stream served by
// WebDriverAgent and encoding each part into a video.

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/SeldomQA/seldom-atx/device"
	"github.com/SeldomQA/seldom-atx/model"
	"github.com/SeldomQA/seldom-atx/video"
	"github.com/rs/zerolog"
)

const streamRequest = "GET / HTTP/1.0\r\nHost: localhost\r\n\r\n"

// WriterFactory opens the video a recording is encoded into.
type WriterFactory func(ctx context.Context, path string, fps float64) (video.FrameWriter, error)

// FFmpegWriter returns a WriterFactory encoding with the ffmpeg binary.
func FFmpegWriter(ffmpeg string) WriterFactory {
	return func(ctx context.Context, path string, fps float64) (video.FrameWriter, error) {
		return video.NewPipeWriter(ctx, ffmpeg, path, fps)
	}
}

// IOS records the MJPEG frame stream of an iOS device.
type IOS struct {
	logger    zerolog.Logger
	dev       device.FrameStreamer
	newWriter WriterFactory
	fps       float64

	path     string
	conn     net.Conn
	writer   video.FrameWriter
	done     chan struct{}
	loopErr  error
	frames   atomic.Int64
	stopping atomic.Bool

	startOnce sync.Once
	startErr  error
	stopOnce  sync.Once
	stopErr   error
}

// NewIOS creates a controller encoding the stream at fps frames per second.
func NewIOS(logger zerolog.Logger, dev device.FrameStreamer, newWriter WriterFactory, fps float64) *IOS {
	return &IOS{
		logger:    logger,
		dev:       dev,
		newWriter: newWriter,
		fps:       fps,
	}
}

// Start connects to the frame server and starts the read loop.
func (r *IOS) Start(ctx context.Context, path string) error {
	r.startOnce.Do(func() {
		r.startErr = r.start(ctx, path)
	})
	return r.startErr
}

func (r *IOS) start(ctx context.Context, path string) error {
	conn, err := r.dev.DialFrameServer(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to frame server: %w", err)
	}

	if _, err := io.WriteString(conn, streamRequest); err != nil {
		conn.Close()
		return fmt.Errorf("failed to request frame stream: %w", err)
	}

	br := bufio.NewReader(conn)
	if err := skipHeader(br); err != nil {
		conn.Close()
		return fmt.Errorf("failed to read frame stream header: %w", err)
	}

	writer, err := r.newWriter(ctx, path, r.fps)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open video writer: %w", err)
	}

	r.path = path
	r.conn = conn
	r.writer = writer
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		r.loopErr = r.readLoop(br)
	}()

	r.logger.Info().Str("path", path).Msg("Starting screen recording")
	return nil
}

// skipHeader discards the HTTP response header.
func skipHeader(br *bufio.Reader) error {
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return err
		}
		if strings.TrimSpace(line) == "" {
			return nil
		}
	}
}

// readPart reads the headers of one multipart part and returns its body.
func readPart(br *bufio.Reader) ([]byte, error) {
	length := -1
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			if length >= 0 {
				break
			}
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if ok && strings.EqualFold(strings.TrimSpace(key), "Content-Length") {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || n < 0 {
				return nil, fmt.Errorf("invalid content length %q", value)
			}
			length = n
		}
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(br, body); err != nil {
		return nil, err
	}
	return body, nil
}

func (r *IOS) readLoop(br *bufio.Reader) error {
	for {
		body, err := readPart(br)
		if err != nil {
			if r.stopping.Load() && (errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe)) {
				return nil
			}
			return err
		}

		if _, err := jpeg.DecodeConfig(bytes.NewReader(body)); err != nil {
			r.logger.Warn().Err(err).Msg("Skipping undecodable frame")
			continue
		}
		if err := r.writer.WriteFrame(body); err != nil {
			return err
		}
		r.frames.Add(1)
	}
}

// Frames returns the number of frames written so far.
func (r *IOS) Frames() int64 {
	return r.frames.Load()
}

// Stop closes the connection, waits for the read loop and flushes the video.
func (r *IOS) Stop() error {
	r.stopOnce.Do(func() {
		if r.conn == nil {
			return
		}
		r.stopping.Store(true)
		_ = r.conn.Close()
		<-r.done

		var errs []error
		if r.loopErr != nil {
			errs = append(errs, fmt.Errorf("frame stream failed: %w", r.loopErr))
		}
		if err := r.writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to finish video: %w", err))
		}
		r.stopErr = errors.Join(errs...)

		r.logger.Info().
			Str("path", r.path).
			Int64("frames", r.frames.Load()).
			Msg("Screen recording stopped")
	})
	return r.stopErr
}

// Artifact returns the recorded video.
func (r *IOS) Artifact() *model.RecordingArtifact {
	if r.conn == nil || r.stopErr != nil {
		return nil
	}
	return &model.RecordingArtifact{Path: r.path, FPS: r.fps}
}
