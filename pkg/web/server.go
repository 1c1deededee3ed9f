// Package web serves the spotter dashboard: the annotated frame stream, the
// capture command and live status.
package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-spotter/pkg/camera"
	"github.com/teslashibe/go-spotter/pkg/capture"
	"github.com/teslashibe/go-spotter/pkg/hub"
	"github.com/teslashibe/go-spotter/pkg/pipeline"
	"github.com/teslashibe/go-spotter/pkg/speech"
)

// Defaults.
const (
	DefaultPort           = "8080"
	DefaultQuality        = 80
	DefaultStatusInterval = time.Second
)

// Capturer is the capture command and state boundary.
// *capture.Machine satisfies it.
type Capturer interface {
	TryCapture() error
	Snapshot() capture.Snapshot
	CaptureErr() error
	Subscribe() (<-chan capture.Snapshot, func())
}

// PipelineStats reports frame counters. *pipeline.Pipeline satisfies it.
type PipelineStats interface {
	Stats() pipeline.Stats
}

// SpeechStats reports utterance counters. *speech.Voice satisfies it.
type SpeechStats interface {
	Stats() speech.Stats
}

// Config configures the server.
type Config struct {
	Port           string
	Quality        int           // JPEG quality for /ws/frames and /api/frame.jpg
	StaticDir      string        // Optional directory served at /
	StatusInterval time.Duration // Periodic status broadcast on /ws/status

	Capture  Capturer
	Pipeline PipelineStats
	Speech   SpeechStats     // Optional
	Camera   *camera.Manager // Optional; enables /api/camera

	Logger *slog.Logger
}

// Server is the web dashboard server. It implements pipeline.Display.
type Server struct {
	cfg    Config
	app    *fiber.App
	logger *slog.Logger
	start  time.Time

	// Hubs for websocket broadcast
	statusHub *hub.Hub
	frameHub  *hub.Hub

	mu     sync.RWMutex
	latest *image.RGBA
	shown  uint64
}

// NewServer creates a new dashboard server.
func NewServer(cfg Config) *Server {
	if cfg.Port == "" {
		cfg.Port = DefaultPort
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = DefaultQuality
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = DefaultStatusInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "web"),
		start:  time.Now(),
	}
	s.statusHub = hub.New("status",
		hub.WithLogger(cfg.Logger),
		hub.WithWelcome(s.statusMessage),
		hub.WithMessageHandler(s.handleStatusMessage),
	)
	s.frameHub = hub.New("frames", hub.WithLogger(cfg.Logger))

	app := fiber.New(fiber.Config{
		AppName:               "Spotter",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/capture", s.handleCapture)
	api.Get("/frame.jpg", s.handleFrame)
	if cfg.Camera != nil {
		api.Get("/camera", s.handleGetCamera)
		api.Put("/camera", s.handleUpdateCamera)
		api.Get("/camera/capabilities", s.handleCameraCapabilities)
	}

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/frames", websocket.New(s.serveHub(s.frameHub)))
	app.Get("/ws/status", websocket.New(s.serveHub(s.statusHub)))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run listens on the configured port and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+s.cfg.Port)
	if err != nil {
		return fmt.Errorf("web: listen: %w", err)
	}
	s.logger.Info("web dashboard listening", "url", "http://localhost:"+s.cfg.Port)
	return s.Serve(ctx, ln)
}

// Serve starts the hubs and the status broadcaster and serves on ln. It
// blocks until ctx is done and then shuts the server down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var transitions <-chan capture.Snapshot
	if s.cfg.Capture != nil {
		ch, unsubscribe := s.cfg.Capture.Subscribe()
		defer unsubscribe()
		transitions = ch
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); s.statusHub.Run(ctx) }()
	go func() { defer wg.Done(); s.frameHub.Run(ctx) }()
	go func() { defer wg.Done(); s.broadcastStatus(ctx, transitions) }()

	errc := make(chan error, 1)
	go func() { errc <- s.app.Listener(ln) }()

	var err error
	select {
	case <-ctx.Done():
		err = s.app.ShutdownWithTimeout(5 * time.Second)
	case err = <-errc:
	}
	cancel()
	wg.Wait()
	return err
}

// Show implements pipeline.Display. The latest frame is kept for
// /api/frame.jpg and JPEG-encoded for /ws/frames when anyone is watching.
func (s *Server) Show(img *image.RGBA) {
	s.mu.Lock()
	s.latest = img
	s.shown++
	s.mu.Unlock()

	if s.frameHub.ClientCount() == 0 {
		return
	}
	data, err := s.encode(img)
	if err != nil {
		s.logger.Warn("frame encode failed", "error", err)
		return
	}
	s.frameHub.BroadcastBinary(data)
}

func (s *Server) encode(img *image.RGBA) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.quality()}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Server) quality() int {
	if s.cfg.Camera != nil {
		if q := s.cfg.Camera.GetConfig().Quality; q > 0 {
			return q
		}
	}
	return s.cfg.Quality
}

// Status returns the current dashboard status.
func (s *Server) Status() Status {
	st := Status{
		Type:         MessageStatus,
		FramesShown:  s.framesShown(),
		FrameClients: s.frameHub.ClientCount(),
		Uptime:       time.Since(s.start).Round(time.Second).String(),
	}
	if s.cfg.Capture != nil {
		st.Capture = s.cfg.Capture.Snapshot()
		if err := s.cfg.Capture.CaptureErr(); err != nil {
			st.CaptureError = err.Error()
		}
	}
	if s.cfg.Pipeline != nil {
		st.Pipeline = s.cfg.Pipeline.Stats()
	}
	if s.cfg.Speech != nil {
		sp := s.cfg.Speech.Stats()
		st.Speech = &sp
	}
	return st
}

func (s *Server) framesShown() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shown
}

func (s *Server) latestFrame() *image.RGBA {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// broadcastStatus pushes status on every capture transition and on a ticker.
func (s *Server) broadcastStatus(ctx context.Context, transitions <-chan capture.Snapshot) {
	ticker := time.NewTicker(s.cfg.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-transitions:
			if !ok {
				transitions = nil
				continue
			}
		case <-ticker.C:
			if s.statusHub.ClientCount() == 0 {
				continue
			}
		}
		if err := s.statusHub.BroadcastJSON(s.Status()); err != nil {
			s.logger.Warn("status encode failed", "error", err)
		}
	}
}

func (s *Server) serveHub(h *hub.Hub) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		client := hub.NewClient(h, c)
		if client == nil {
			c.Close()
			return
		}
		client.Run()
	}
}

// capture issues the capture command and builds the reply.
func (s *Server) capture() (CaptureReply, error) {
	if s.cfg.Capture == nil {
		return CaptureReply{}, errNoCapture
	}
	err := s.cfg.Capture.TryCapture()
	accepted := err == nil
	reply := CaptureReply{
		Type:     MessageCapture,
		Accepted: accepted,
		State:    s.cfg.Capture.Snapshot().State,
	}
	// The state explains an ignored command; only a source problem is reported.
	if errors.Is(err, capture.ErrSourceUnavailable) {
		reply.Error = err.Error()
	}
	s.logger.Info("capture command", "accepted", accepted, "state", reply.State)
	return reply, nil
}

var errNoCapture = errors.New("capture not configured")
