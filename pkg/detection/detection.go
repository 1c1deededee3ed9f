// Package detection decodes raw model output into ordered, labeled detections.
package detection

import (
	"fmt"
	"image/color"
	"strconv"
)

// Box is a bounding box in pixel coordinates.
type Box struct {
	Top    float64
	Left   float64
	Bottom float64
	Right  float64
}

// Width returns the horizontal extent of the box.
func (b Box) Width() float64 {
	return b.Right - b.Left
}

// Height returns the vertical extent of the box.
func (b Box) Height() float64 {
	return b.Bottom - b.Top
}

// Detection is one thresholded model output for a single frame.
type Detection struct {
	Slot    int // Raw output slot index
	Box     Box
	ClassID int
	Label   string
	Score   float32
	Color   color.RGBA
}

// Confidence formats the score as the shortest decimal that identifies the float32 (0.9 -> "0.9").
func (d Detection) Confidence() string {
	return strconv.FormatFloat(float64(d.Score), 'f', -1, 32)
}

// Caption is the overlay text: "<label> <confidence>".
func (d Detection) Caption() string {
	return d.Label + " " + d.Confidence()
}

// String implements fmt.Stringer.
func (d Detection) String() string {
	return fmt.Sprintf("#%d %s (%.0f,%.0f)-(%.0f,%.0f)", d.Slot, d.Caption(), d.Box.Left, d.Box.Top, d.Box.Right, d.Box.Bottom)
}
