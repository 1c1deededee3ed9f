package detection

import (
	"math"

	"github.com/teslashibe/go-spotter/pkg/inference"
)

// DefaultThreshold is the minimum score a slot must exceed to qualify.
const DefaultThreshold = 0.5

// Decoder turns RawDetections into Detections for one frame.
type Decoder struct {
	Threshold float32 // Strict lower bound on score
	Labels    LabelTable
	Palette   Palette
}

// NewDecoder returns a decoder with the default threshold and palette.
func NewDecoder(labels LabelTable) *Decoder {
	return &Decoder{
		Threshold: DefaultThreshold,
		Labels:    labels,
		Palette:   DefaultPalette,
	}
}

// Decode denormalizes qualifying slots against a width x height frame.
//
// Detections are returned in slot order. Slots whose class id has no label
// are dropped and reported as *DecodeError; the rest are still decoded.
// A buffer that violates the length invariant yields only ErrMalformedOutput.
func (d *Decoder) Decode(raw *inference.RawDetections, width, height int) ([]Detection, []error) {
	if raw == nil {
		return nil, []error{inference.ErrMalformedOutput}
	}
	if err := raw.Validate(); err != nil {
		return nil, []error{err}
	}

	w, h := float64(width), float64(height)
	var (
		dets []Detection
		errs []error
	)
	for i := 0; i < raw.Capacity(); i++ {
		score := raw.Scores[i]
		if !(score > d.Threshold) {
			continue
		}

		id := classIndex(raw.Classes[i])
		label, ok := d.Labels.Lookup(id)
		if !ok {
			errs = append(errs, &DecodeError{Slot: i, ClassID: id, Labels: d.Labels.Len()})
			continue
		}

		o := 4 * i
		dets = append(dets, Detection{
			Slot: i,
			Box: Box{
				Top:    float64(raw.Locations[o]) * h,
				Left:   float64(raw.Locations[o+1]) * w,
				Bottom: float64(raw.Locations[o+2]) * h,
				Right:  float64(raw.Locations[o+3]) * w,
			},
			ClassID: id,
			Label:   label,
			Score:   score,
			Color:   d.Palette.At(i),
		})
	}
	return dets, errs
}

// classIndex rounds a float-encoded class id. NaN and values beyond int range map to -1.
func classIndex(c float32) int {
	v := math.Round(float64(c))
	if math.IsNaN(v) || v < math.MinInt32 || v > math.MaxInt32 {
		return -1
	}
	return int(v)
}
