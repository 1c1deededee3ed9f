// Package preprocess turns raw frames into the fixed-size float tensor a
// detection model expects.
package preprocess

import (
	"image"
	"image/color"

	"github.com/nfnt/resize"
	"github.com/teslashibe/go-spotter/pkg/frame"
)

// Channels is the number of color channels in a tensor (RGB).
const Channels = 3

// Tensor is a normalized float buffer in HWC order (row-major, RGB interleaved).
type Tensor struct {
	Width    int
	Height   int
	Channels int
	Data     []float32
}

// At returns the value at (x, y, channel).
func (t *Tensor) At(x, y, c int) float32 {
	return t.Data[(y*t.Width+x)*t.Channels+c]
}

// Config holds preprocessing parameters.
// Each channel value p in [0,255] becomes (p - Mean) * Scale.
type Config struct {
	Width  int
	Height int
	Mean   float32
	Scale  float32
}

// DefaultConfig returns the 300x300 input used by SSD MobileNet, scaled to [0,1].
func DefaultConfig() Config {
	return Config{
		Width:  300,
		Height: 300,
		Mean:   0,
		Scale:  1.0 / 255.0,
	}
}

// Preprocessor resizes and reformats frames. It is stateless and safe for concurrent use.
type Preprocessor struct {
	cfg Config
}

// New creates a preprocessor. Zero fields fall back to DefaultConfig.
func New(cfg Config) *Preprocessor {
	def := DefaultConfig()
	if cfg.Width <= 0 {
		cfg.Width = def.Width
	}
	if cfg.Height <= 0 {
		cfg.Height = def.Height
	}
	if cfg.Scale == 0 {
		cfg.Scale = def.Scale
	}
	return &Preprocessor{cfg: cfg}
}

// Config returns the effective configuration.
func (p *Preprocessor) Config() Config {
	return p.cfg
}

// Process bilinearly resamples f to the model size and converts it to a tensor.
// The frame is not modified.
func (p *Preprocessor) Process(f frame.Frame) (*Tensor, error) {
	if err := validate(f); err != nil {
		return nil, err
	}

	resized := resize.Resize(uint(p.cfg.Width), uint(p.cfg.Height), f.View(), resize.Bilinear)

	t := &Tensor{
		Width:    p.cfg.Width,
		Height:   p.cfg.Height,
		Channels: Channels,
		Data:     make([]float32, p.cfg.Width*p.cfg.Height*Channels),
	}

	b := resized.Bounds()
	if rgba, ok := resized.(*image.RGBA); ok {
		for y := 0; y < t.Height; y++ {
			row := rgba.Pix[(y)*rgba.Stride:]
			for x := 0; x < t.Width; x++ {
				px := row[x*4:]
				p.put(t, x, y, px[0], px[1], px[2])
			}
		}
		return t, nil
	}

	for y := 0; y < t.Height; y++ {
		for x := 0; x < t.Width; x++ {
			c := color.RGBAModel.Convert(resized.At(b.Min.X+x, b.Min.Y+y)).(color.RGBA)
			p.put(t, x, y, c.R, c.G, c.B)
		}
	}
	return t, nil
}

func (p *Preprocessor) put(t *Tensor, x, y int, r, g, b uint8) {
	i := (y*t.Width + x) * Channels
	t.Data[i] = (float32(r) - p.cfg.Mean) * p.cfg.Scale
	t.Data[i+1] = (float32(g) - p.cfg.Mean) * p.cfg.Scale
	t.Data[i+2] = (float32(b) - p.cfg.Mean) * p.cfg.Scale
}

func validate(f frame.Frame) error {
	switch {
	case f.Width <= 0 || f.Height <= 0:
		return &InvalidFrameError{Width: f.Width, Height: f.Height, Len: len(f.Pix), Reason: "non-positive dimensions"}
	case len(f.Pix) == 0:
		return &InvalidFrameError{Width: f.Width, Height: f.Height, Reason: "empty pixel buffer"}
	case len(f.Pix) != f.Width*f.Height*4:
		return &InvalidFrameError{Width: f.Width, Height: f.Height, Len: len(f.Pix), Reason: "pixel buffer does not match dimensions"}
	}
	return nil
}
