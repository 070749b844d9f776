package recording

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/SeldomQA/seldom-atx/video"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeSignals struct {
	started, stopped, done, ready chan struct{}
	readyOnce                     sync.Once
}

func newFakeSignals() *fakeSignals {
	return &fakeSignals{
		started: make(chan struct{}),
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
		ready:   make(chan struct{}),
	}
}

func (s *fakeSignals) RecordingStarted() <-chan struct{} { return s.started }
func (s *fakeSignals) RecordingStopped() <-chan struct{} { return s.stopped }
func (s *fakeSignals) Done() <-chan struct{}             { return s.done }
func (s *fakeSignals) MarkRecorderReady()                { s.readyOnce.Do(func() { close(s.ready) }) }

type fakeScreenRecorder struct {
	mu       sync.Mutex
	starts   int
	stops    int
	startErr error
}

func (f *fakeScreenRecorder) ScreenrecordStart(ctx context.Context, path string, fps float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return f.startErr
}

func (f *fakeScreenRecorder) ScreenrecordStop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func TestAndroid_Idempotent(t *testing.T) {
	dev := &fakeScreenRecorder{}
	rec := NewAndroid(zerolog.Nop(), dev, 45, 0)

	require.NoError(t, rec.Start(context.Background(), "video.mp4"))
	require.NoError(t, rec.Start(context.Background(), "video.mp4"))
	require.NoError(t, rec.Stop())
	require.NoError(t, rec.Stop())

	require.Equal(t, 1, dev.starts)
	require.Equal(t, 1, dev.stops)
	require.Equal(t, "video.mp4", rec.Artifact().Path)
	require.Equal(t, 45.0, rec.Artifact().FPS)
}

func TestAndroid_StopWithoutStart(t *testing.T) {
	dev := &fakeScreenRecorder{}
	rec := NewAndroid(zerolog.Nop(), dev, 45, 0)
	require.NoError(t, rec.Stop())
	require.Equal(t, 0, dev.stops)
	require.Nil(t, rec.Artifact())
}

func TestRun(t *testing.T) {
	t.Run("records the requested window", func(t *testing.T) {
		dev := &fakeScreenRecorder{}
		sig := newFakeSignals()

		go func() {
			close(sig.started)
			<-sig.ready
			close(sig.stopped)
		}()

		art, err := Run(context.Background(), NewAndroid(zerolog.Nop(), dev, 30, 0), sig, "out.mp4")
		require.NoError(t, err)
		require.Equal(t, "out.mp4", art.Path)
		require.Equal(t, 1, dev.starts)
		require.Equal(t, 1, dev.stops)
	})

	t.Run("capturing ends before recording", func(t *testing.T) {
		dev := &fakeScreenRecorder{}
		sig := newFakeSignals()
		close(sig.done)

		art, err := Run(context.Background(), NewAndroid(zerolog.Nop(), dev, 30, 0), sig, "out.mp4")
		require.NoError(t, err)
		require.Nil(t, art)
		require.Equal(t, 0, dev.starts)
	})

	t.Run("start failure releases the action", func(t *testing.T) {
		dev := &fakeScreenRecorder{startErr: errors.New("no device")}
		sig := newFakeSignals()
		close(sig.started)

		_, err := Run(context.Background(), NewAndroid(zerolog.Nop(), dev, 30, 0), sig, "out.mp4")
		require.Error(t, err)
		select {
		case <-sig.ready:
		default:
			t.Fatal("recorder ready was not signalled")
		}
	})
}

type fakeStreamer struct {
	conn net.Conn
}

func (f *fakeStreamer) DialFrameServer(ctx context.Context) (net.Conn, error) {
	return f.conn, nil
}

type fakeWriter struct {
	mu     sync.Mutex
	frames [][]byte
	closed int
}

func (w *fakeWriter) WriteFrame(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frames = append(w.frames, append([]byte(nil), b...))
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed++
	return nil
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.frames)
}

func testJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8)), nil))
	return buf.Bytes()
}

// serveMJPEG answers the stream request and pushes parts, then blocks until
// the client hangs up.
func serveMJPEG(conn net.Conn, parts [][]byte) {
	defer conn.Close()
	br := bufio.NewReader(conn)
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return
		}
		if line == "\r\n" {
			break
		}
	}

	io.WriteString(conn, "HTTP/1.0 200 OK\r\nContent-Type: multipart/x-mixed-replace; boundary=--BoundaryString\r\n\r\n")
	for _, p := range parts {
		fmt.Fprintf(conn, "--BoundaryString\r\nContent-type: image/jpg\r\nContent-Length: %d\r\n\r\n", len(p))
		conn.Write(p)
		io.WriteString(conn, "\r\n\r\n")
	}
	io.Copy(io.Discard, conn)
}

func TestIOS_Stream(t *testing.T) {
	server, client := net.Pipe()
	frame := testJPEG(t)
	go serveMJPEG(server, [][]byte{frame, []byte("not a jpeg"), frame, frame})

	w := &fakeWriter{}
	var gotPath string
	var gotFPS float64
	rec := NewIOS(zerolog.Nop(), &fakeStreamer{conn: client}, func(ctx context.Context, path string, fps float64) (video.FrameWriter, error) {
		gotPath, gotFPS = path, fps
		return w, nil
	}, 45)

	require.NoError(t, rec.Start(context.Background(), "ios.mp4"))
	require.Eventually(t, func() bool { return w.count() == 3 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, rec.Stop())
	require.NoError(t, rec.Stop())

	require.Equal(t, "ios.mp4", gotPath)
	require.Equal(t, 45.0, gotFPS)
	require.Equal(t, 1, w.closed)
	require.Equal(t, int64(3), rec.Frames())
	require.Equal(t, frame, w.frames[0])
	require.Equal(t, "ios.mp4", rec.Artifact().Path)
}

func TestIOS_StreamBroken(t *testing.T) {
	server, client := net.Pipe()
	go func() {
		br := bufio.NewReader(server)
		for {
			line, err := br.ReadString('\n')
			if err != nil || line == "\r\n" {
				break
			}
		}
		io.WriteString(server, "HTTP/1.0 200 OK\r\n\r\n")
		io.WriteString(server, "--BoundaryString\r\nContent-Length: 100\r\n\r\nshort")
		server.Close()
	}()

	w := &fakeWriter{}
	rec := NewIOS(zerolog.Nop(), &fakeStreamer{conn: client}, func(ctx context.Context, path string, fps float64) (video.FrameWriter, error) {
		return w, nil
	}, 45)

	require.NoError(t, rec.Start(context.Background(), "ios.mp4"))
	// The loop ends on its own when the server disappears mid-frame.
	<-rec.done
	err := rec.Stop()
	require.Error(t, err)
	require.Nil(t, rec.Artifact())
	require.Equal(t, 1, w.closed)
}

func TestReadPart(t *testing.T) {
	br := bufio.NewReader(bytes.NewBufferString("--b\r\nContent-Type: image/jpeg\r\ncontent-length: 3\r\n\r\nabc"))
	body, err := readPart(br)
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), body)

	br = bufio.NewReader(bytes.NewBufferString("Content-Length: x\r\n\r\n"))
	_, err = readPart(br)
	require.Error(t, err)
}
