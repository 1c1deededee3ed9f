// Package inference defines the object-detection model boundary.
//
// An Engine maps a preprocessed tensor to a fixed-capacity detection buffer.
// Calls are synchronous and block the calling goroutine; there are no retries
// at this boundary. A failed call only affects the current frame cycle.
//
// Example usage:
//
//	engine, _ := opencv.New(opencv.DefaultConfig())
//	defer engine.Close()
//
//	raw, err := engine.Infer(ctx, tensor)
//	// raw.Scores[i], raw.Classes[i], raw.Locations[4*i:4*i+4]
package inference

import (
	"context"
	"fmt"

	"github.com/teslashibe/go-spotter/pkg/preprocess"
)

// DefaultCapacity is the slot count of SSD MobileNet style models.
const DefaultCapacity = 10

// Engine is the inference boundary.
type Engine interface {
	// Infer runs the model on t. The result always has the engine's fixed capacity.
	Infer(ctx context.Context, t *preprocess.Tensor) (*RawDetections, error)

	// Close releases model resources.
	Close() error
}

// RawDetections are the three parallel output buffers of a detection model.
//
// Locations holds one (ymin, xmin, ymax, xmax) quad per slot, normalized to
// [0,1]. Classes holds float-encoded class ids and Scores confidences in
// [0,1]. Unused slots carry scores near zero and undefined classes.
type RawDetections struct {
	Locations []float32
	Classes   []float32
	Scores    []float32
}

// NewRawDetections allocates zeroed buffers for n slots.
func NewRawDetections(n int) *RawDetections {
	return &RawDetections{
		Locations: make([]float32, 4*n),
		Classes:   make([]float32, n),
		Scores:    make([]float32, n),
	}
}

// Capacity returns the slot count N.
func (r *RawDetections) Capacity() int {
	return len(r.Scores)
}

// Validate checks the length invariant between the three buffers.
func (r *RawDetections) Validate() error {
	n := len(r.Scores)
	if len(r.Classes) != n || len(r.Locations) != 4*n {
		return fmt.Errorf("%w: locations=%d classes=%d scores=%d",
			ErrMalformedOutput, len(r.Locations), len(r.Classes), len(r.Scores))
	}
	return nil
}

// Set fills slot i.
func (r *RawDetections) Set(i int, ymin, xmin, ymax, xmax, class, score float32) {
	o := 4 * i
	r.Locations[o] = ymin
	r.Locations[o+1] = xmin
	r.Locations[o+2] = ymax
	r.Locations[o+3] = xmax
	r.Classes[i] = class
	r.Scores[i] = score
}
