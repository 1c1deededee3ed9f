// Package overlay draws detection boxes and captions onto a copy of a frame.
package overlay

import (
	"image"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/teslashibe/go-spotter/pkg/detection"
	"github.com/teslashibe/go-spotter/pkg/frame"
)

// Divisors of the frame height that give line width and text size.
const (
	LineDivisor = 85
	TextDivisor = 15
)

var (
	fontOnce sync.Once
	goFont   *truetype.Font
)

// Font returns the parsed Go Regular face used for captions.
func Font() *truetype.Font {
	fontOnce.Do(func() {
		f, err := truetype.Parse(goregular.TTF)
		if err != nil {
			panic(err)
		}
		goFont = f
	})
	return goFont
}

// Renderer draws detections. The zero value is ready to use.
type Renderer struct {
	mu       sync.Mutex
	faceSize float64
	face     font.Face
}

// New returns a Renderer.
func New() *Renderer {
	return &Renderer{}
}

// Render copies f and draws each detection on it in order, so later boxes
// paint over earlier ones. f is never modified.
func (r *Renderer) Render(f frame.Frame, dets []detection.Detection) *image.RGBA {
	if f.Width <= 0 || f.Height <= 0 || len(f.Pix) < f.Width*f.Height*4 {
		return image.NewRGBA(image.Rect(0, 0, 0, 0))
	}

	canvas := f.RGBA()
	if len(dets) == 0 {
		return canvas
	}

	h := float64(f.Height)
	lineWidth := h / LineDivisor
	textSize := h / TextDivisor

	dc := gg.NewContextForRGBA(canvas)
	dc.SetLineWidth(lineWidth)
	r.mu.Lock()
	dc.SetFontFace(r.faceFor(textSize))
	for _, d := range dets {
		dc.SetColor(d.Color)
		dc.DrawRectangle(d.Box.Left, d.Box.Top, d.Box.Width(), d.Box.Height())
		dc.Stroke()
		dc.DrawString(d.Caption(), d.Box.Left, d.Box.Top)
	}
	r.mu.Unlock()
	return canvas
}

// faceFor returns a cached face for size. Caller holds r.mu.
func (r *Renderer) faceFor(size float64) font.Face {
	if r.face == nil || r.faceSize != size {
		r.face = truetype.NewFace(Font(), &truetype.Options{Size: size})
		r.faceSize = size
	}
	return r.face
}
