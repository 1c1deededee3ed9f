package inference

// SSDRowWidth is the number of values per row in an SSD DetectionOutput blob:
// image_id, class_id, score, left, top, right, bottom.
const SSDRowWidth = 7

// FromSSDRows packs an SSD DetectionOutput blob into fixed-capacity buffers.
//
// Row i fills slot i; rows beyond capacity are discarded and missing rows
// leave zeroed slots. Rows with a negative image id mark the end of valid
// output. classOffset is added to every class id so model ids can be aligned
// with the label table.
func FromSSDRows(data []float32, capacity, classOffset int) *RawDetections {
	raw := NewRawDetections(capacity)
	rows := len(data) / SSDRowWidth

	for i := 0; i < rows && i < capacity; i++ {
		row := data[i*SSDRowWidth : (i+1)*SSDRowWidth]
		if row[0] < 0 {
			break
		}
		left, top, right, bottom := row[3], row[4], row[5], row[6]
		raw.Set(i, top, left, bottom, right, row[1]+float32(classOffset), row[2])
	}
	return raw
}
