// Package config provides configuration helpers for go-spotter commands.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Default configuration values.
const (
	DefaultDevice         = "0"
	DefaultModelPath      = "models/ssd_mobilenet_v1_coco.pb"
	DefaultModelConfig    = "models/ssd_mobilenet_v1_coco.pbtxt"
	DefaultModelFormat    = "ssd"
	DefaultLabelsPath     = "models/labels.txt"
	DefaultThreshold      = 0.5
	DefaultInputSize      = 300
	DefaultCapacity       = 10
	DefaultClassOffset    = 0
	DefaultFreezeDuration = 5000 * time.Millisecond
	DefaultTTSCommand     = "espeak-ng --stdout {text}"
	DefaultCameraPreset   = "vga"
	DefaultPort           = "8080"
	DefaultLogLevel       = "info"
)

// Config holds all configuration for the spotter application.
// Environment loading happens here; flag parsing is done in cmd/spotter.
type Config struct {
	// Frame source. Device is a camera index ("0") or a capture URL/file.
	Device   string
	SimImage string // Serve frames from this image instead of a camera
	Preset   string // Camera preset name (vga, hd720, hd1080, lowfps)

	// Model.
	ModelPath   string
	ModelConfig string
	ModelFormat string  // Output layout: ssd or yolov8
	LabelsPath  string  // Empty selects the built-in COCO table
	InputSize   int     // Square model input edge in pixels
	Capacity    int     // Detection slots per frame (N)
	ClassOffset int     // Added to model class ids before label lookup
	Threshold   float64 // Exclusive confidence threshold

	// Capture freeze.
	FreezeDuration time.Duration

	// Speech.
	OpenAIKey  string
	Voice      string
	TTSCommand string // Local synthesizer used when OpenAI is unavailable
	Player     string // Playback command, e.g. "ffplay -nodisp -autoexit -loglevel quiet -"

	// Web dashboard.
	Port      string
	StaticDir string // Optional directory served at /

	LogLevel string
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Device:         DefaultDevice,
		Preset:         DefaultCameraPreset,
		ModelPath:      DefaultModelPath,
		ModelConfig:    DefaultModelConfig,
		ModelFormat:    DefaultModelFormat,
		LabelsPath:     DefaultLabelsPath,
		InputSize:      DefaultInputSize,
		Capacity:       DefaultCapacity,
		ClassOffset:    DefaultClassOffset,
		Threshold:      DefaultThreshold,
		FreezeDuration: DefaultFreezeDuration,
		TTSCommand:     DefaultTTSCommand,
		Port:           DefaultPort,
		LogLevel:       DefaultLogLevel,
	}
}

// Load reads an optional .env file and then the process environment on top of
// the defaults. A missing .env file is not an error.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(), nil
}

// FromEnv builds a Config from the process environment on top of the defaults.
func FromEnv() Config {
	d := Default()
	return Config{
		Device:         getEnv("SPOTTER_DEVICE", d.Device),
		SimImage:       getEnv("SPOTTER_SIM_IMAGE", d.SimImage),
		Preset:         getEnv("SPOTTER_CAMERA_PRESET", d.Preset),
		ModelPath:      getEnv("SPOTTER_MODEL", d.ModelPath),
		ModelConfig:    getEnv("SPOTTER_MODEL_CONFIG", d.ModelConfig),
		ModelFormat:    getEnv("SPOTTER_MODEL_FORMAT", d.ModelFormat),
		LabelsPath:     getEnv("SPOTTER_LABELS", d.LabelsPath),
		InputSize:      getEnvInt("SPOTTER_INPUT_SIZE", d.InputSize),
		Capacity:       getEnvInt("SPOTTER_CAPACITY", d.Capacity),
		ClassOffset:    getEnvInt("SPOTTER_CLASS_OFFSET", d.ClassOffset),
		Threshold:      getEnvFloat("SPOTTER_THRESHOLD", d.Threshold),
		FreezeDuration: getEnvDuration("SPOTTER_FREEZE", d.FreezeDuration),
		OpenAIKey:      getEnv("OPENAI_API_KEY", d.OpenAIKey),
		Voice:          getEnv("SPOTTER_VOICE", d.Voice),
		TTSCommand:     getEnv("SPOTTER_TTS_COMMAND", d.TTSCommand),
		Player:         getEnv("SPOTTER_PLAYER", d.Player),
		Port:           getEnv("SPOTTER_PORT", d.Port),
		StaticDir:      getEnv("SPOTTER_STATIC_DIR", d.StaticDir),
		LogLevel:       getEnv("SPOTTER_LOG_LEVEL", d.LogLevel),
	}
}

// Validate checks that values are within usable ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Device == "" && c.SimImage == "" {
		errors = append(errors, "either a device or a sim image is required")
	}
	if c.ModelPath == "" {
		errors = append(errors, "model path is required")
	}
	if c.ModelFormat != "ssd" && c.ModelFormat != "yolov8" {
		errors = append(errors, "model format must be ssd or yolov8")
	}
	if c.InputSize < 16 || c.InputSize > 4096 {
		errors = append(errors, "input size must be between 16 and 4096")
	}
	if c.Capacity < 1 {
		errors = append(errors, "capacity must be at least 1")
	}
	if c.Threshold < 0 || c.Threshold >= 1 {
		errors = append(errors, "threshold must be in [0, 1)")
	}
	if c.FreezeDuration <= 0 {
		errors = append(errors, "freeze duration must be positive")
	}
	if c.Port == "" {
		errors = append(errors, "port is required")
	}

	return errors
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration syntax ("5s") or bare milliseconds ("5000").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
