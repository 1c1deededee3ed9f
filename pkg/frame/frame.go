// Package frame defines the video frame type, the frame source boundary and
// a single-slot mailbox that always exposes the newest frame.
package frame

import (
	"image"
	"image/draw"
	"time"
)

// Frame is one decoded video frame in RGBA order (4 bytes per pixel, row stride 4*Width).
// A delivered Frame is immutable: consumers copy before drawing.
type Frame struct {
	Pix       []byte
	Width     int
	Height    int
	Timestamp time.Time
	Seq       uint64 // Assigned by the Mailbox on publish
	Still     bool   // Result of a still capture rather than the live stream
}

// Source delivers frames asynchronously.
// Ready fires (coalesced) whenever a newer frame is available; Current returns it.
type Source interface {
	Ready() <-chan struct{}
	Current() (Frame, bool)
}

// FromImage converts any image into a Frame, copying its pixels.
func FromImage(img image.Image, ts time.Time) Frame {
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return Frame{
		Pix:       rgba.Pix,
		Width:     b.Dx(),
		Height:    b.Dy(),
		Timestamp: ts,
	}
}

// Valid reports whether dimensions are positive and the buffer matches them.
func (f Frame) Valid() bool {
	return f.Width > 0 && f.Height > 0 && len(f.Pix) == f.Width*f.Height*4
}

// Clone returns a deep copy of the frame.
func (f Frame) Clone() Frame {
	c := f
	c.Pix = append([]byte(nil), f.Pix...)
	return c
}

// RGBA returns a mutable copy of the frame as an image.
func (f Frame) RGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	copy(img.Pix, f.Pix)
	return img
}

// View wraps the frame pixels as a read-only image without copying.
// Callers must not draw into the returned image.
func (f Frame) View() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Pix,
		Stride: f.Width * 4,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}
