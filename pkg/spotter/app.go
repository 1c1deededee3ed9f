// Package spotter wires the detection application together: frame source,
// model, narration, the capture machine, the pipeline and the dashboard.
package spotter

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // Register decoders for the simulated source image
	_ "image/png"
	"log/slog"
	"os"
	"strings"
	"sync"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/teslashibe/go-spotter/internal/config"
	"github.com/teslashibe/go-spotter/pkg/camera"
	"github.com/teslashibe/go-spotter/pkg/capture"
	"github.com/teslashibe/go-spotter/pkg/detection"
	"github.com/teslashibe/go-spotter/pkg/frame"
	"github.com/teslashibe/go-spotter/pkg/inference"
	"github.com/teslashibe/go-spotter/pkg/inference/opencv"
	"github.com/teslashibe/go-spotter/pkg/narrator"
	"github.com/teslashibe/go-spotter/pkg/pipeline"
	"github.com/teslashibe/go-spotter/pkg/preprocess"
	"github.com/teslashibe/go-spotter/pkg/speech"
	"github.com/teslashibe/go-spotter/pkg/tts"
	"github.com/teslashibe/go-spotter/pkg/web"
)

// Source is a frame source that also takes capture commands.
// *camera.Device and *frame.Sim satisfy it.
type Source interface {
	frame.Source
	capture.Source
	Close() error
}

// Option overrides a component, mainly for tests.
type Option func(*App)

// WithEngine uses engine instead of loading the configured model.
func WithEngine(engine inference.Engine) Option {
	return func(a *App) {
		a.engine = engine
	}
}

// WithSource uses src instead of opening the camera or the sim image.
func WithSource(src Source) Option {
	return func(a *App) {
		a.source = src
	}
}

// WithSpeaker replaces the synthesized voice.
func WithSpeaker(s speech.Speaker) Option {
	return func(a *App) {
		a.speaker = s
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

// App is the main spotter application orchestrator.
// It manages all components and their lifecycle.
type App struct {
	config config.Config
	logger *slog.Logger

	// Vision
	source    Source
	device    *camera.Device
	cameraMgr *camera.Manager
	engine    inference.Engine
	labels    detection.LabelTable

	// Speech
	provider tts.Provider
	voice    *speech.Voice
	speaker  speech.Speaker
	narrator *narrator.Narrator

	machine   *capture.Machine
	pipeline  *pipeline.Pipeline
	webServer *web.Server

	shutdownOnce sync.Once
}

// New creates a new application with the given configuration.
func New(cfg config.Config, opts ...Option) (*App, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	a := &App{config: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Init initializes all components.
// Call this after New() and before Run(). On failure everything opened so far
// is released.
func (a *App) Init() error {
	if err := a.initComponents(); err != nil {
		a.Shutdown()
		return err
	}
	return nil
}

func (a *App) initComponents() error {
	if err := a.initModel(); err != nil {
		return fmt.Errorf("model init: %w", err)
	}
	if err := a.initSource(); err != nil {
		return fmt.Errorf("source init: %w", err)
	}
	if err := a.initSpeech(); err != nil {
		return fmt.Errorf("speech init: %w", err)
	}

	a.machine = capture.New(a.source,
		capture.WithFreeze(a.config.FreezeDuration),
		capture.WithLogger(a.logger),
	)

	a.webServer = web.NewServer(web.Config{
		Port:      a.config.Port,
		StaticDir: a.config.StaticDir,
		Capture:   a.machine,
		Pipeline:  pipelineStats{a},
		Speech:    a.voiceStats(),
		Camera:    a.cameraMgr,
		Logger:    a.logger,
	})

	decoder := detection.NewDecoder(a.labels)
	decoder.Threshold = float32(a.config.Threshold)
	a.pipeline = pipeline.New(a.engine, decoder,
		pipeline.WithPreprocessor(a.preprocessor()),
		pipeline.WithDisplay(a.webServer),
		pipeline.WithNarrator(a.narrator),
		pipeline.WithLogger(a.logger),
	)

	a.logger.Info("spotter initialized",
		"labels", a.labels.Len(),
		"threshold", a.config.Threshold,
		"freeze", a.config.FreezeDuration,
		"sim", a.device == nil,
	)
	return nil
}

// pipelineStats defers to the pipeline, which is built after the web server.
type pipelineStats struct{ a *App }

func (p pipelineStats) Stats() pipeline.Stats {
	if p.a.pipeline == nil {
		return pipeline.Stats{}
	}
	return p.a.pipeline.Stats()
}

func (a *App) voiceStats() web.SpeechStats {
	if a.voice == nil {
		return nil
	}
	return a.voice
}

func (a *App) initModel() error {
	switch {
	case a.config.LabelsPath == "" && a.config.ModelFormat == opencv.FormatYOLOv8:
		a.labels = detection.COCO80Labels
	case a.config.LabelsPath == "":
		a.labels = detection.COCOLabels
	default:
		labels, err := detection.LoadLabels(a.config.LabelsPath)
		if err != nil {
			return err
		}
		a.labels = labels
	}

	if a.engine != nil {
		return nil
	}
	cfg := opencv.DefaultConfig()
	cfg.ModelPath = a.config.ModelPath
	cfg.ConfigPath = a.config.ModelConfig
	cfg.InputWidth, cfg.InputHeight = a.config.InputSize, a.config.InputSize
	cfg.Capacity = a.config.Capacity
	cfg.ClassOffset = a.config.ClassOffset
	if a.config.ModelFormat != "" {
		cfg.Format = a.config.ModelFormat
	}
	cfg.Logger = a.logger.With("component", "inference")
	engine, err := opencv.New(cfg)
	if err != nil {
		return err
	}
	a.engine = engine
	return nil
}

// preprocessor matches the model input and the engine's value range.
func (a *App) preprocessor() *preprocess.Preprocessor {
	pc := preprocess.Config{Width: a.config.InputSize, Height: a.config.InputSize}
	if e, ok := a.engine.(*opencv.Engine); ok {
		pc.Mean, pc.Scale = e.Normalization()
	}
	return preprocess.New(pc)
}

func (a *App) initSource() error {
	if a.source != nil {
		return nil
	}
	if a.config.SimImage != "" {
		img, err := loadImage(a.config.SimImage)
		if err != nil {
			return err
		}
		a.source = frame.NewSim(img, 0)
		return nil
	}

	camCfg := camera.DefaultConfig()
	if p := camera.GetPreset(a.config.Preset); p != nil {
		camCfg = *p
	} else if a.config.Preset != "" {
		a.logger.Warn("unknown camera preset, using default", "preset", a.config.Preset)
	}
	camCfg.Device = a.config.Device

	dev, err := camera.Open(camCfg, camera.WithLogger(a.logger))
	if err != nil {
		return err
	}
	a.device = dev
	a.source = dev
	a.cameraMgr = camera.NewManager(camCfg)
	a.cameraMgr.OnConfigChange = dev.Reconfigure
	return nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func (a *App) initSpeech() error {
	if a.speaker == nil {
		provider, err := a.newProvider()
		if err != nil {
			return err
		}
		player, err := speech.ParsePlayer(a.config.Player, a.logger)
		if err != nil {
			provider.Close()
			return err
		}
		a.provider = provider
		a.voice = speech.NewVoice(provider, player, speech.WithLogger(a.logger))
		a.speaker = a.voice
	}
	a.narrator = narrator.New(a.speaker, narrator.WithLogger(a.logger))
	return nil
}

// newProvider chains OpenAI (when a key is set) in front of the local
// synthesizer command.
func (a *App) newProvider() (tts.Provider, error) {
	var providers []tts.Provider
	if a.config.OpenAIKey != "" {
		opts := []tts.Option{tts.WithAPIKey(a.config.OpenAIKey), tts.WithLogger(a.logger)}
		if a.config.Voice != "" {
			opts = append(opts, tts.WithVoice(a.config.Voice))
		}
		p, err := tts.NewOpenAI(opts...)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if a.config.TTSCommand != "" {
		p, err := tts.ParseCommand(a.config.TTSCommand, tts.WithLogger(a.logger))
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if len(providers) == 0 {
		return nil, tts.ErrProviderUnavailable
	}
	if len(providers) == 1 {
		return providers[0], nil
	}
	return tts.NewChain(providers, tts.WithChainLogger(a.logger))
}

// Run starts streaming and blocks until ctx is done or a component fails.
func (a *App) Run(ctx context.Context) error {
	if a.pipeline == nil {
		return errors.New("spotter: Run before Init")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.source.StartStreaming(); err != nil {
		return fmt.Errorf("start streaming: %w", err)
	}

	errc := make(chan error, 2)
	go func() { errc <- a.pipeline.Run(ctx, a.source, a.machine) }()
	go func() { errc <- a.webServer.Run(ctx) }()

	a.logger.Info("spotter running", "dashboard", "http://localhost:"+a.config.Port)

	var first error
	for i := 0; i < 2; i++ {
		err := <-errc
		cancel()
		if first == nil && err != nil && !errors.Is(err, context.Canceled) {
			first = err
		}
	}
	return first
}

// Machine returns the capture state machine.
func (a *App) Machine() *capture.Machine { return a.machine }

// Pipeline returns the frame pipeline.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipeline }

// Shutdown releases all components. It is safe to call more than once.
func (a *App) Shutdown() {
	a.shutdownOnce.Do(func() {
		if a.machine != nil {
			a.machine.Close()
		}
		if a.source != nil {
			if err := a.source.Close(); err != nil {
				a.logger.Warn("source close failed", "error", err)
			}
		}
		if a.voice != nil {
			a.voice.Close()
		}
		if a.provider != nil {
			a.provider.Close()
		}
		if a.engine != nil {
			a.engine.Close()
		}
		a.logger.Info("spotter stopped")
	})
}
