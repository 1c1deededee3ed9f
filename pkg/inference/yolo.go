package inference

import "sort"

// YOLOv8BoxValues is the number of box values (cx, cy, w, h) that precede the
// class scores for each anchor in a YOLOv8 output blob.
const YOLOv8BoxValues = 4

// Candidate is one YOLO prediction that passed the score floor. The box is
// normalized to the model input.
type Candidate struct {
	Ymin, Xmin, Ymax, Xmax float32
	Class                  int
	Score                  float32
}

// YOLOv8Candidates decodes a [1, 4+C, A] YOLOv8 output laid out channel
// first: value v of anchor a is data[v*anchors+a]. The best class of each
// anchor is kept if its score reaches minScore. Box coordinates are in input
// pixels and are normalized by inputW and inputH.
func YOLOv8Candidates(data []float32, channels, inputW, inputH int, minScore float32) []Candidate {
	if channels <= YOLOv8BoxValues || inputW <= 0 || inputH <= 0 {
		return nil
	}
	anchors := len(data) / channels
	w, h := float32(inputW), float32(inputH)

	var out []Candidate
	for a := 0; a < anchors; a++ {
		best, bestScore := -1, float32(0)
		for c := YOLOv8BoxValues; c < channels; c++ {
			if s := data[c*anchors+a]; s > bestScore {
				best, bestScore = c-YOLOv8BoxValues, s
			}
		}
		if best < 0 || bestScore < minScore {
			continue
		}

		cx, cy := data[0*anchors+a], data[1*anchors+a]
		bw, bh := data[2*anchors+a], data[3*anchors+a]
		out = append(out, Candidate{
			Ymin:  (cy - bh/2) / h,
			Xmin:  (cx - bw/2) / w,
			Ymax:  (cy + bh/2) / h,
			Xmax:  (cx + bw/2) / w,
			Class: best,
			Score: bestScore,
		})
	}
	return out
}

// FromCandidates packs the candidates selected by keep into fixed-capacity
// buffers, highest score first. A nil keep selects every candidate.
func FromCandidates(cands []Candidate, keep []int, capacity, classOffset int) *RawDetections {
	if keep == nil {
		keep = make([]int, len(cands))
		for i := range cands {
			keep[i] = i
		}
	}
	order := append([]int(nil), keep...)
	sort.SliceStable(order, func(i, j int) bool {
		return cands[order[i]].Score > cands[order[j]].Score
	})

	raw := NewRawDetections(capacity)
	for slot, idx := range order {
		if slot >= capacity {
			break
		}
		c := cands[idx]
		raw.Set(slot, c.Ymin, c.Xmin, c.Ymax, c.Xmax, float32(c.Class+classOffset), c.Score)
	}
	return raw
}
