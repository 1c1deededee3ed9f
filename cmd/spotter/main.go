// Spotter - live object detection with spoken announcements and capture-freeze
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-spotter/internal/config"
	"github.com/teslashibe/go-spotter/internal/log"
	"github.com/teslashibe/go-spotter/pkg/spotter"
)

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}
	log.Init(cfg.LogLevel)

	app, err := spotter.New(cfg, spotter.WithLogger(log.L()))
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(2)
	}

	if err := app.Init(); err != nil {
		log.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer app.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		log.Error("runtime error", "error", err)
		app.Shutdown()
		os.Exit(1)
	}
}

// parseFlags loads .env and the environment, then applies command line flags.
func parseFlags() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}

	flag.StringVar(&cfg.Device, "device", cfg.Device, "Camera index or capture URL/file (SPOTTER_DEVICE)")
	flag.StringVar(&cfg.SimImage, "sim", cfg.SimImage, "Serve frames from this image instead of a camera")
	flag.StringVar(&cfg.Preset, "preset", cfg.Preset, "Camera preset: vga, hd720, hd1080, lowfps")
	flag.StringVar(&cfg.ModelPath, "model", cfg.ModelPath, "Detection model weights")
	flag.StringVar(&cfg.ModelConfig, "model-config", cfg.ModelConfig, "Detection model graph description")
	flag.StringVar(&cfg.ModelFormat, "model-format", cfg.ModelFormat, "Model output layout (ssd, yolov8)")
	flag.StringVar(&cfg.LabelsPath, "labels", cfg.LabelsPath, "Label file, one label per line (empty for built-in COCO)")
	flag.IntVar(&cfg.InputSize, "input-size", cfg.InputSize, "Square model input edge in pixels")
	flag.IntVar(&cfg.Capacity, "capacity", cfg.Capacity, "Detection slots per frame")
	flag.IntVar(&cfg.ClassOffset, "class-offset", cfg.ClassOffset, "Added to model class ids before label lookup")
	flag.Float64Var(&cfg.Threshold, "threshold", cfg.Threshold, "Confidence threshold (exclusive)")
	flag.DurationVar(&cfg.FreezeDuration, "freeze", cfg.FreezeDuration, "How long a captured still stays on screen")
	flag.StringVar(&cfg.Voice, "voice", cfg.Voice, "OpenAI voice")
	flag.StringVar(&cfg.TTSCommand, "tts-command", cfg.TTSCommand, "Local synthesizer command; {text} is replaced by the utterance")
	flag.StringVar(&cfg.Player, "player", cfg.Player, "Audio player command reading stdin, or \"none\"")
	flag.StringVar(&cfg.Port, "port", cfg.Port, "Dashboard port")
	flag.StringVar(&cfg.StaticDir, "static", cfg.StaticDir, "Directory served at / on the dashboard")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	flag.Parse()

	if *debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}
