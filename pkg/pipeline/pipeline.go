// Package pipeline runs the per-frame cycle:
// preprocess, infer, decode, overlay, display and narrate.
//
// All stages run synchronously on the worker goroutine. Frames that arrive
// while a cycle is running replace each other in the source mailbox, so the
// worker always picks up the newest frame next.
package pipeline

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-spotter/pkg/detection"
	"github.com/teslashibe/go-spotter/pkg/frame"
	"github.com/teslashibe/go-spotter/pkg/inference"
	"github.com/teslashibe/go-spotter/pkg/overlay"
	"github.com/teslashibe/go-spotter/pkg/preprocess"
)

// Display receives every annotated frame.
type Display interface {
	Show(img *image.RGBA)
}

// DisplayFunc adapts a function to Display.
type DisplayFunc func(img *image.RGBA)

// Show implements Display.
func (f DisplayFunc) Show(img *image.RGBA) { f(img) }

// Narrator announces the detections of one cycle.
type Narrator interface {
	Narrate(ctx context.Context, dets []detection.Detection)
}

// Gate reports whether live frames should be skipped.
type Gate interface {
	Frozen() bool
}

// Result is the outcome of one frame cycle.
type Result struct {
	Seq        uint64
	Image      *image.RGBA // Nil when the cycle failed before rendering
	Detections []detection.Detection
	Errors     []error
	Duration   time.Duration
}

// Failed reports whether the cycle was dropped before rendering.
func (r Result) Failed() bool {
	return r.Image == nil
}

// Stats counts frame outcomes.
type Stats struct {
	Processed      uint64                `json:"processed"`
	Skipped        uint64                `json:"skipped"`
	Dropped        uint64                `json:"dropped"`
	Failed         uint64                `json:"failed"`
	LastSeq        uint64                `json:"last_seq"`
	LastDetections []detection.Detection `json:"last_detections"`
	LastLatency    time.Duration         `json:"last_latency_ns"`
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithDisplay sets the display sink.
func WithDisplay(d Display) Option {
	return func(p *Pipeline) {
		p.display = d
	}
}

// WithNarrator sets the narrator.
func WithNarrator(n Narrator) Option {
	return func(p *Pipeline) {
		p.narrator = n
	}
}

// WithPreprocessor replaces the default 300x300 preprocessor.
func WithPreprocessor(pre *preprocess.Preprocessor) Option {
	return func(p *Pipeline) {
		p.pre = pre
	}
}

// WithRenderer replaces the default overlay renderer.
func WithRenderer(r *overlay.Renderer) Option {
	return func(p *Pipeline) {
		p.renderer = r
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger.With("component", "pipeline")
	}
}

// Pipeline wires the frame cycle stages together.
type Pipeline struct {
	pre      *preprocess.Preprocessor
	engine   inference.Engine
	decoder  *detection.Decoder
	renderer *overlay.Renderer
	display  Display
	narrator Narrator
	logger   *slog.Logger

	processed atomic.Uint64
	skipped   atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64

	mu          sync.Mutex
	lastSeq     uint64
	lastDets    []detection.Detection
	lastLatency time.Duration
}

// New creates a pipeline around engine and decoder.
func New(engine inference.Engine, decoder *detection.Decoder, opts ...Option) *Pipeline {
	p := &Pipeline{
		pre:      preprocess.New(preprocess.DefaultConfig()),
		engine:   engine,
		decoder:  decoder,
		renderer: overlay.New(),
		logger:   slog.Default().With("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs one frame cycle. Errors never escape the cycle: preprocess and
// inference failures drop the frame, decode errors drop single slots. Both
// are returned in Result.Errors.
func (p *Pipeline) Process(ctx context.Context, f frame.Frame) Result {
	start := time.Now()
	res := Result{Seq: f.Seq}

	tensor, err := p.pre.Process(f)
	if err != nil {
		return p.fail(res, start, err)
	}

	raw, err := p.engine.Infer(ctx, tensor)
	if err != nil {
		return p.fail(res, start, err)
	}

	dets, errs := p.decoder.Decode(raw, f.Width, f.Height)
	res.Errors = append(res.Errors, errs...)
	res.Detections = dets

	res.Image = p.renderer.Render(f, dets)
	if p.display != nil {
		p.display.Show(res.Image)
	}
	if p.narrator != nil {
		p.narrator.Narrate(ctx, dets)
	}

	res.Duration = time.Since(start)
	p.processed.Add(1)
	p.mu.Lock()
	p.lastSeq = f.Seq
	p.lastDets = dets
	p.lastLatency = res.Duration
	p.mu.Unlock()
	return res
}

func (p *Pipeline) fail(res Result, start time.Time, err error) Result {
	res.Errors = append(res.Errors, err)
	res.Duration = time.Since(start)
	p.failed.Add(1)
	return res
}

// Run processes frames from src until ctx is done. While gate reports frozen,
// live frames are skipped; the still that caused the freeze is still shown.
func (p *Pipeline) Run(ctx context.Context, src frame.Source, gate Gate) error {
	p.logger.Info("pipeline started")
	defer p.logger.Info("pipeline stopped")

	var lastSeq uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-src.Ready():
		}

		f, ok := src.Current()
		if !ok {
			continue
		}
		if lastSeq != 0 && f.Seq > lastSeq+1 {
			p.dropped.Add(f.Seq - lastSeq - 1)
		}
		lastSeq = f.Seq

		if gate != nil && gate.Frozen() && !f.Still {
			p.skipped.Add(1)
			continue
		}

		res := p.Process(ctx, f)
		for _, err := range res.Errors {
			if errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			if res.Failed() {
				p.logger.Warn("frame dropped", "seq", f.Seq, "error", err)
			} else {
				p.logger.Debug("decode error", "seq", f.Seq, "error", err)
			}
		}
		if !res.Failed() {
			p.logger.Debug("frame processed",
				"seq", f.Seq,
				"detections", len(res.Detections),
				"latency_ms", res.Duration.Milliseconds(),
			)
		}
	}
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	last := append([]detection.Detection(nil), p.lastDets...)
	latency, seq := p.lastLatency, p.lastSeq
	p.mu.Unlock()

	return Stats{
		Processed:      p.processed.Load(),
		Skipped:        p.skipped.Load(),
		Dropped:        p.dropped.Load(),
		Failed:         p.failed.Load(),
		LastSeq:        seq,
		LastDetections: last,
		LastLatency:    latency,
	}
}
