// Package opencv runs SSD and YOLOv8 detection models through the OpenCV DNN module.
package opencv

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"
	"unsafe"

	"github.com/teslashibe/go-spotter/internal/log"
	"github.com/teslashibe/go-spotter/pkg/inference"
	"github.com/teslashibe/go-spotter/pkg/preprocess"
	"gocv.io/x/gocv"
)

const backendName = "opencv"

// Output formats.
const (
	FormatSSD    = "ssd"    // DetectionOutput rows, e.g. SSD MobileNet
	FormatYOLOv8 = "yolov8" // [1, 4+C, A] anchors, needs NMS
)

// Config holds engine configuration.
type Config struct {
	ModelPath   string // Weights (.pb, .onnx, .caffemodel)
	ConfigPath  string // Optional graph description (.pbtxt, .prototxt)
	InputWidth  int
	InputHeight int
	Capacity    int // Fixed number of output slots
	ClassOffset int // Added to model class ids
	Format      string

	// YOLO only.
	MinScore     float32 // Candidates below this never reach NMS
	NMSThreshold float32 // IoU above which the weaker box is suppressed

	Logger *slog.Logger
}

// DefaultConfig returns defaults for SSD MobileNet v1 COCO.
func DefaultConfig() Config {
	return Config{
		ModelPath:   "models/ssd_mobilenet_v1_coco.pb",
		ConfigPath:  "models/ssd_mobilenet_v1_coco.pbtxt",
		InputWidth:  300,
		InputHeight: 300,
		Capacity:    inference.DefaultCapacity,
		Format:      FormatSSD,

		MinScore:     0.25,
		NMSThreshold: 0.45,
	}
}

// YOLOv8Config returns defaults for a YOLOv8n ONNX export.
func YOLOv8Config() Config {
	cfg := DefaultConfig()
	cfg.ModelPath = "models/yolov8n.onnx"
	cfg.ConfigPath = ""
	cfg.InputWidth, cfg.InputHeight = 640, 640
	cfg.Format = FormatYOLOv8
	return cfg
}

// Normalization returns the preprocessing mean and scale SSD MobileNet expects ([-1, 1]).
func Normalization() (mean, scale float32) {
	return 127.5, 1.0 / 127.5
}

// Engine implements inference.Engine with gocv.
type Engine struct {
	net    gocv.Net
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// New loads the model.
func New(cfg Config) (*Engine, error) {
	if cfg.Capacity <= 0 {
		cfg.Capacity = inference.DefaultCapacity
	}
	switch cfg.Format {
	case "":
		cfg.Format = FormatSSD
	case FormatSSD, FormatYOLOv8:
	default:
		return nil, fmt.Errorf("%w: unknown output format %q", inference.ErrModelLoad, cfg.Format)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Component("inference.opencv")
	}

	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", inference.ErrModelNotFound, cfg.ModelPath)
	}

	net := gocv.ReadNet(cfg.ModelPath, cfg.ConfigPath)
	if net.Empty() {
		return nil, fmt.Errorf("%w: %s", inference.ErrModelLoad, cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	cfg.Logger.Info("model loaded",
		"model", cfg.ModelPath,
		"input", fmt.Sprintf("%dx%d", cfg.InputWidth, cfg.InputHeight),
		"capacity", cfg.Capacity,
		"format", cfg.Format,
	)

	return &Engine{net: net, cfg: cfg, logger: cfg.Logger}, nil
}

// Infer runs one forward pass. It blocks until the model returns.
func (e *Engine) Infer(ctx context.Context, t *preprocess.Tensor) (*inference.RawDetections, error) {
	if err := ctx.Err(); err != nil {
		return nil, inference.WrapError(backendName, err)
	}
	if t == nil || t.Channels != preprocess.Channels || len(t.Data) != t.Width*t.Height*t.Channels || len(t.Data) == 0 {
		return nil, inference.WrapError(backendName, inference.ErrTensorShape)
	}
	if e.cfg.InputWidth > 0 && (t.Width != e.cfg.InputWidth || t.Height != e.cfg.InputHeight) {
		return nil, inference.WrapError(backendName, fmt.Errorf("%w: got %dx%d, want %dx%d",
			inference.ErrTensorShape, t.Width, t.Height, e.cfg.InputWidth, e.cfg.InputHeight))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, inference.WrapError(backendName, inference.ErrEngineClosed)
	}

	bytes := unsafe.Slice((*byte)(unsafe.Pointer(&t.Data[0])), len(t.Data)*4)
	img, err := gocv.NewMatFromBytes(t.Height, t.Width, gocv.MatTypeCV32FC3, bytes)
	if err != nil {
		return nil, inference.WrapError(backendName, fmt.Errorf("tensor to mat: %w", err))
	}
	defer img.Close()

	// The tensor is already resized, normalized and in RGB order.
	blob := gocv.BlobFromImage(img, 1.0, image.Pt(t.Width, t.Height), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	e.net.SetInput(blob, "")
	output := e.net.Forward("")
	defer output.Close()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, inference.WrapError(backendName, fmt.Errorf("read output: %w", err))
	}

	if e.cfg.Format == FormatYOLOv8 {
		return e.decodeYOLOv8(output, data, t.Width, t.Height)
	}
	raw := inference.FromSSDRows(data, e.cfg.Capacity, e.cfg.ClassOffset)
	e.logger.Debug("forward pass", "rows", len(data)/inference.SSDRowWidth)
	return raw, nil
}

// decodeYOLOv8 picks the best class per anchor and runs NMS over the survivors.
func (e *Engine) decodeYOLOv8(output gocv.Mat, data []float32, w, h int) (*inference.RawDetections, error) {
	size := output.Size()
	if len(size) != 3 || size[1] <= inference.YOLOv8BoxValues {
		return nil, inference.WrapError(backendName, fmt.Errorf("%w: yolov8 output shape %v",
			inference.ErrMalformedOutput, size))
	}

	cands := inference.YOLOv8Candidates(data, size[1], w, h, e.cfg.MinScore)
	if len(cands) == 0 {
		return inference.NewRawDetections(e.cfg.Capacity), nil
	}

	boxes := make([]image.Rectangle, len(cands))
	scores := make([]float32, len(cands))
	for i, c := range cands {
		boxes[i] = image.Rect(
			int(c.Xmin*float32(w)), int(c.Ymin*float32(h)),
			int(c.Xmax*float32(w)), int(c.Ymax*float32(h)),
		)
		scores[i] = c.Score
	}
	keep := gocv.NMSBoxes(boxes, scores, e.cfg.MinScore, e.cfg.NMSThreshold)

	e.logger.Debug("forward pass", "candidates", len(cands), "kept", len(keep))
	return inference.FromCandidates(cands, keep, e.cfg.Capacity, e.cfg.ClassOffset), nil
}

// Normalization returns the preprocessing mean and scale for the configured
// output format.
func (e *Engine) Normalization() (mean, scale float32) {
	if e.cfg.Format == FormatYOLOv8 {
		return 0, 1.0 / 255.0
	}
	return Normalization()
}

// Close releases the network.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.net.Close()
}

// Verify Engine implements inference.Engine at compile time.
var _ inference.Engine = (*Engine)(nil)
