package opencv

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/teslashibe/go-spotter/pkg/inference"
	"github.com/teslashibe/go-spotter/pkg/preprocess"
)

// findModel returns model paths from the environment, or empty when unset.
func findModel() (model, config string) {
	return os.Getenv("SPOTTER_TEST_MODEL"), os.Getenv("SPOTTER_TEST_MODEL_CONFIG")
}

// TestNewInvalidPath tests error handling for missing model
func TestNewInvalidPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelPath = "/nonexistent/path/model.pb"

	_, err := New(cfg)
	if !errors.Is(err, inference.ErrModelNotFound) {
		t.Errorf("expected ErrModelNotFound, got %v", err)
	}
}

// TestInferBlankTensor runs the real model when one is provided.
func TestInferBlankTensor(t *testing.T) {
	model, graph := findModel()
	if model == "" {
		t.Skip("SPOTTER_TEST_MODEL not set, skipping test")
	}

	cfg := DefaultConfig()
	cfg.ModelPath, cfg.ConfigPath = model, graph
	engine, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer engine.Close()

	tensor := &preprocess.Tensor{Width: 300, Height: 300, Channels: 3, Data: make([]float32, 300*300*3)}
	raw, err := engine.Infer(context.Background(), tensor)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if err := raw.Validate(); err != nil {
		t.Fatal(err)
	}
	if raw.Capacity() != inference.DefaultCapacity {
		t.Errorf("capacity: got %d", raw.Capacity())
	}
	for i, s := range raw.Scores {
		if s < 0 || s > 1 {
			t.Errorf("score %d out of range: %v", i, s)
		}
	}

	// Wrong shape is rejected before touching the network.
	small := &preprocess.Tensor{Width: 10, Height: 10, Channels: 3, Data: make([]float32, 300)}
	if _, err := engine.Infer(context.Background(), small); !errors.Is(err, inference.ErrTensorShape) {
		t.Errorf("expected ErrTensorShape, got %v", err)
	}
}

func TestNormalization(t *testing.T) {
	mean, scale := Normalization()
	if got := (255 - mean) * scale; got < 0.999 || got > 1.001 {
		t.Errorf("white should map to 1, got %v", got)
	}
	if got := (0 - mean) * scale; got > -0.999 || got < -1.001 {
		t.Errorf("black should map to -1, got %v", got)
	}
}

func TestNewUnknownFormat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Format = "retinanet"

	_, err := New(cfg)
	if !errors.Is(err, inference.ErrModelLoad) {
		t.Errorf("expected ErrModelLoad, got %v", err)
	}
}

func TestEngineNormalization(t *testing.T) {
	tests := []struct {
		format string
		white  float32
		black  float32
	}{
		{FormatSSD, 1, -1},
		{FormatYOLOv8, 1, 0},
	}
	for _, tc := range tests {
		t.Run(tc.format, func(t *testing.T) {
			e := &Engine{cfg: Config{Format: tc.format}}
			mean, scale := e.Normalization()
			if got := (255 - mean) * scale; got < tc.white-0.001 || got > tc.white+0.001 {
				t.Errorf("white: got %v, want %v", got, tc.white)
			}
			if got := (0 - mean) * scale; got < tc.black-0.001 || got > tc.black+0.001 {
				t.Errorf("black: got %v, want %v", got, tc.black)
			}
		})
	}
}

func TestYOLOv8Config(t *testing.T) {
	cfg := YOLOv8Config()
	if cfg.Format != FormatYOLOv8 || cfg.InputWidth != 640 || cfg.InputHeight != 640 {
		t.Errorf("config: %+v", cfg)
	}
	if cfg.NMSThreshold <= 0 || cfg.MinScore <= 0 {
		t.Errorf("thresholds: nms=%v min=%v", cfg.NMSThreshold, cfg.MinScore)
	}
}
