package web

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/jpeg"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-spotter/internal/log"
	"github.com/teslashibe/go-spotter/pkg/camera"
	"github.com/teslashibe/go-spotter/pkg/capture"
	"github.com/teslashibe/go-spotter/pkg/pipeline"
	"github.com/teslashibe/go-spotter/pkg/speech"
)

// fakeCapturer accepts the first capture and ignores the rest.
type fakeCapturer struct {
	mu          sync.Mutex
	state       capture.State
	err         error
	unavailable bool
	subs        []chan capture.Snapshot
}

func (f *fakeCapturer) TryCapture() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unavailable {
		f.err = capture.ErrSourceUnavailable
		return capture.ErrSourceUnavailable
	}
	if f.state != capture.Live {
		return capture.ErrIgnored
	}
	f.state = capture.Capturing
	for _, ch := range f.subs {
		select {
		case ch <- capture.Snapshot{State: f.state}:
		default:
		}
	}
	return nil
}

func (f *fakeCapturer) Snapshot() capture.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return capture.Snapshot{State: f.state}
}

func (f *fakeCapturer) CaptureErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeCapturer) Subscribe() (<-chan capture.Snapshot, func()) {
	ch := make(chan capture.Snapshot, 4)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	return ch, func() {}
}

type fakeStats struct{}

func (fakeStats) Stats() pipeline.Stats { return pipeline.Stats{Processed: 7, Skipped: 2} }

type fakeSpeech struct{}

func (fakeSpeech) Stats() speech.Stats { return speech.Stats{Accepted: 3, Spoken: 1} }

func newServer(cfg Config) *Server {
	cfg.Logger = log.Discard()
	return NewServer(cfg)
}

func decode[T any](t *testing.T, body io.Reader) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestStatus(t *testing.T) {
	s := newServer(Config{Capture: &fakeCapturer{}, Pipeline: fakeStats{}, Speech: fakeSpeech{}})

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/status", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status code: %d", resp.StatusCode)
	}
	st := decode[Status](t, resp.Body)
	if st.Type != MessageStatus || st.Capture.State != capture.Live {
		t.Errorf("status: %+v", st)
	}
	if st.Pipeline.Processed != 7 || st.Pipeline.Skipped != 2 {
		t.Errorf("pipeline: %+v", st.Pipeline)
	}
	if st.Speech == nil || st.Speech.Accepted != 3 {
		t.Errorf("speech: %+v", st.Speech)
	}
}

func TestCaptureEndpoint(t *testing.T) {
	fc := &fakeCapturer{}
	s := newServer(Config{Capture: fc, Pipeline: fakeStats{}})

	resp, err := s.App().Test(httptest.NewRequest("POST", "/api/capture", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("first capture: %d", resp.StatusCode)
	}
	if r := decode[CaptureReply](t, resp.Body); !r.Accepted || r.State != capture.Capturing {
		t.Errorf("reply: %+v", r)
	}

	fc.mu.Lock()
	fc.err = errors.New("camera unplugged")
	fc.mu.Unlock()
	resp, err = s.App().Test(httptest.NewRequest("POST", "/api/capture", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("ignored capture: %d", resp.StatusCode)
	}
	// A failure left over from an earlier capture is not the reason for this one.
	r := decode[CaptureReply](t, resp.Body)
	if r.Accepted || r.State != capture.Capturing || r.Error != "" {
		t.Errorf("reply: %+v", r)
	}

	fc.mu.Lock()
	fc.state, fc.unavailable = capture.Live, true
	fc.mu.Unlock()
	resp, err = s.App().Test(httptest.NewRequest("POST", "/api/capture", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("unavailable capture: %d", resp.StatusCode)
	}
	r = decode[CaptureReply](t, resp.Body)
	if r.Accepted || r.State != capture.Live || r.Error != capture.ErrSourceUnavailable.Error() {
		t.Errorf("reply: %+v", r)
	}
}

func TestCaptureNotConfigured(t *testing.T) {
	s := newServer(Config{})
	resp, err := s.App().Test(httptest.NewRequest("POST", "/api/capture", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Errorf("status code: %d", resp.StatusCode)
	}
}

func TestFrameEndpoint(t *testing.T) {
	s := newServer(Config{Quality: 90})

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/frame.jpg", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("before any frame: %d", resp.StatusCode)
	}

	s.Show(image.NewRGBA(image.Rect(0, 0, 32, 24)))
	resp, err = s.App().Test(httptest.NewRequest("GET", "/api/frame.jpg", nil))
	if err != nil {
		t.Fatal(err)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("content type: %q", ct)
	}
	img, err := jpeg.Decode(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds() != image.Rect(0, 0, 32, 24) {
		t.Errorf("bounds: %v", img.Bounds())
	}
	if s.Status().FramesShown != 1 {
		t.Errorf("frames shown: %d", s.Status().FramesShown)
	}
}

func TestCameraEndpoints(t *testing.T) {
	mgr := camera.NewManager(camera.DefaultConfig())
	var applied []camera.Config
	mgr.OnConfigChange = func(cfg camera.Config) error {
		applied = append(applied, cfg)
		return nil
	}
	s := newServer(Config{Camera: mgr})

	req := httptest.NewRequest("PUT", "/api/camera", strings.NewReader(`{"preset":"hd720","quality":60}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("update: %d", resp.StatusCode)
	}
	got := decode[camera.Config](t, resp.Body)
	if got.Width != 1280 || got.Quality != 60 || len(applied) != 1 {
		t.Errorf("config %+v, applied %d", got, len(applied))
	}

	for _, body := range []string{`{"width":5}`, `not json`} {
		resp, err := s.App().Test(httptest.NewRequest("PUT", "/api/camera", strings.NewReader(body)))
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != fiber.StatusBadRequest {
			t.Errorf("%s: status %d", body, resp.StatusCode)
		}
	}

	resp, err = s.App().Test(httptest.NewRequest("GET", "/api/camera", nil))
	if err != nil {
		t.Fatal(err)
	}
	if got := decode[camera.Config](t, resp.Body); got.Width != 1280 {
		t.Errorf("get: %+v", got)
	}

	resp, err = s.App().Test(httptest.NewRequest("GET", "/api/camera/capabilities", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("capabilities: %d", resp.StatusCode)
	}

	// Without a manager the camera API is not mounted.
	resp, err = newServer(Config{}).App().Test(httptest.NewRequest("GET", "/api/camera", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("unmounted camera API: %d", resp.StatusCode)
	}
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	s := newServer(Config{})
	resp, err := s.App().Test(httptest.NewRequest("GET", "/ws/status", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Errorf("status code: %d", resp.StatusCode)
	}
}

func serve(t *testing.T, s *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Serve(ctx, ln)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return "ws://" + ln.Addr().String()
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	return conn
}

func TestStatusSocketCapture(t *testing.T) {
	fc := &fakeCapturer{}
	s := newServer(Config{Capture: fc, Pipeline: fakeStats{}, StatusInterval: time.Hour})
	conn := dial(t, serve(t, s)+"/ws/status")

	var welcome Status
	if err := conn.ReadJSON(&welcome); err != nil {
		t.Fatal(err)
	}
	if welcome.Type != MessageStatus || welcome.Capture.State != capture.Live {
		t.Errorf("welcome: %+v", welcome)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(CommandCapture)); err != nil {
		t.Fatal(err)
	}

	// The reply and the transition broadcast may arrive in either order.
	var sawReply, sawStatus bool
	for !sawReply || !sawStatus {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v (reply=%v status=%v)", err, sawReply, sawStatus)
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatal(err)
		}
		switch env.Type {
		case MessageCapture:
			var r CaptureReply
			json.Unmarshal(data, &r)
			if !r.Accepted {
				t.Errorf("capture not accepted: %+v", r)
			}
			sawReply = true
		case MessageStatus:
			var st Status
			json.Unmarshal(data, &st)
			if st.Capture.State == capture.Capturing {
				sawStatus = true
			}
		}
	}
}

func TestFrameSocket(t *testing.T) {
	s := newServer(Config{})
	conn := dial(t, serve(t, s)+"/ws/frames")

	deadline := time.Now().Add(2 * time.Second)
	for s.frameHub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("frame client never registered")
		}
		time.Sleep(2 * time.Millisecond)
	}

	s.Show(image.NewRGBA(image.Rect(0, 0, 16, 16)))
	mt, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if mt != websocket.BinaryMessage {
		t.Errorf("message type: %d", mt)
	}
	img, err := jpeg.Decode(strings.NewReader(string(data)))
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 16 {
		t.Errorf("bounds: %v", img.Bounds())
	}
}

func TestClient(t *testing.T) {
	fc := &fakeCapturer{}
	s := newServer(Config{Capture: fc, StatusInterval: time.Hour})
	addr := strings.TrimPrefix(serve(t, s), "ws://")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	c, err := Dial(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	msg, err := c.Next()
	if err != nil {
		t.Fatal(err)
	}
	if st, ok := msg.(Status); !ok || st.Capture.State != capture.Live {
		t.Fatalf("welcome: %#v", msg)
	}

	if err := c.Capture(); err != nil {
		t.Fatal(err)
	}
	for {
		msg, err := c.Next()
		if err != nil {
			t.Fatal(err)
		}
		if r, ok := msg.(CaptureReply); ok {
			if !r.Accepted || r.State != capture.Capturing {
				t.Errorf("reply: %+v", r)
			}
			break
		}
	}
}
