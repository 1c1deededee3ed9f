package detection

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// LabelTable maps class ids to names. Index = class id. Read-only after load.
type LabelTable []string

// Lookup returns the label for id and whether id is in bounds.
func (t LabelTable) Lookup(id int) (string, bool) {
	if id < 0 || id >= len(t) {
		return "", false
	}
	return t[id], true
}

// Len returns the number of labels.
func (t LabelTable) Len() int {
	return len(t)
}

// LoadLabels reads a newline-delimited label file.
func LoadLabels(path string) (LabelTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open labels: %w", err)
	}
	defer f.Close()

	labels, err := ReadLabels(f)
	if err != nil {
		return nil, fmt.Errorf("read labels %s: %w", path, err)
	}
	return labels, nil
}

// ReadLabels parses one label per line. Interior blank lines keep their index;
// trailing blank lines are dropped. Carriage returns are stripped.
func ReadLabels(r io.Reader) (LabelTable, error) {
	var labels LabelTable
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		labels = append(labels, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	for len(labels) > 0 && strings.TrimSpace(labels[len(labels)-1]) == "" {
		labels = labels[:len(labels)-1]
	}
	if len(labels) == 0 {
		return nil, ErrNoLabels
	}
	return labels, nil
}

// COCOLabels is the 91-entry label map used by SSD MobileNet COCO models,
// with "???" for unused ids.
var COCOLabels = LabelTable{
	"???", "person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "???", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "???", "backpack",
	"umbrella", "???", "???", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard",
	"sports ball", "kite", "baseball bat", "baseball glove", "skateboard", "surfboard",
	"tennis racket", "bottle", "???", "wine glass", "cup", "fork", "knife", "spoon", "bowl",
	"banana", "apple", "sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut",
	"cake", "chair", "couch", "potted plant", "bed", "???", "dining table", "???", "???",
	"toilet", "???", "tv", "laptop", "mouse", "remote", "keyboard", "cell phone", "microwave",
	"oven", "toaster", "sink", "refrigerator", "???", "book", "clock", "vase", "scissors",
	"teddy bear", "hair drier", "toothbrush",
}

// COCO80Labels is the contiguous 80-class table YOLO exports use. It is
// COCOLabels without the background slot and the unused ids.
var COCO80Labels = compact(COCOLabels)

func compact(t LabelTable) LabelTable {
	out := make(LabelTable, 0, len(t))
	for _, l := range t {
		if l != "???" {
			out = append(out, l)
		}
	}
	return out
}
