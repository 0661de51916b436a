package result

import (
	"encoding/binary"
	"math"

	"github.com/swdee/go-yolobridge/wire"
	"github.com/x448/float16"
)

var f16LookupTable [65536]float32

func init() {
	// precompute float16 lookup table for faster conversion to float32
	for i := range f16LookupTable {
		f16 := float16.Frombits(uint16(i))
		f16LookupTable[i] = f16.Float32()
	}
}

// detectionKeys are the wire fields a detection entry may carry. A batch
// entry with none of these is dropped as malformed rather than decoded
// into an all default result.
var detectionKeys = []string{
	"classIndex", "className", "confidence",
	"boundingBox", "normalizedBox",
	"mask", "keypoints", "orientation", "angle",
}

// Decoder converts wire maps into typed results. The zero value is ready
// to use. Decoding never fails: absent or malformed optional fields are
// left at their zero value so one bad field never discards a result and
// one bad result never discards its batch.
type Decoder struct {
	// Labels, when set, backfills an empty ClassName from
	// Labels[ClassIndex]
	Labels []string
}

// DecodeDetection builds a Detection from a single wire map. Missing or
// wrongly typed required fields default to 0, the empty string, and 0.0.
func (d Decoder) DecodeDetection(m wire.Map) Detection {

	det := Detection{
		ClassIndex: int(wire.Int(m, "classIndex", 0)),
		ClassName:  wire.String(m, "className", ""),
		Confidence: wire.Float(m, "confidence", 0),
	}

	det.Box = decodeBox(wire.Child(m, "boundingBox"))
	det.NormalizedBox = decodeBox(wire.Child(m, "normalizedBox"))
	det.Mask = decodeMask(m["mask"])
	det.Keypoints, det.KeypointConf = decodeKeypoints(m["keypoints"])

	if v, ok := m["orientation"]; ok {
		if f, fok := wire.AsFloat(v); fok {
			det.Orientation = &f
		}
	} else if v, ok := m["angle"]; ok {
		if f, fok := wire.AsFloat(v); fok {
			det.Orientation = &f
		}
	}

	if det.ClassName == "" && det.ClassIndex >= 0 &&
		det.ClassIndex < len(d.Labels) {
		det.ClassName = d.Labels[det.ClassIndex]
	}

	return det
}

// DecodeDetections decodes a batch of detection entries. Each entry is
// decoded independently: entries that are not wire maps, or that carry
// none of the known detection fields, are dropped without affecting
// their siblings. A nil or non list value yields an empty slice.
func (d Decoder) DecodeDetections(v any) []Detection {

	entries, ok := wire.AsSlice(v)

	if !ok {
		return []Detection{}
	}

	dets := make([]Detection, 0, len(entries))

	for _, entry := range entries {
		m, mok := wire.AsMap(entry)

		if !mok || !hasDetectionKey(m) {
			continue
		}

		dets = append(dets, d.DecodeDetection(m))
	}

	return dets
}

// DecodeFrame decodes one event stream push into a Frame. ok is false
// for payloads that are not frames and should be skipped, such as the
// engine's {test: ...} diagnostic shape or a non map payload.
func (d Decoder) DecodeFrame(v any) (Frame, bool) {

	m, mok := wire.AsMap(v)

	if !mok {
		return Frame{}, false
	}

	if _, isTest := m["test"]; isTest {
		return Frame{}, false
	}

	f := Frame{
		Detections:    d.DecodeDetections(m["detections"]),
		Metrics:       DecodeMetrics(m),
		OriginalImage: wire.Bytes(m, "originalImage"),
	}

	return f, true
}

// DecodeDetection builds a Detection from a single wire map using a zero
// Decoder.
func DecodeDetection(m wire.Map) Detection {
	var d Decoder
	return d.DecodeDetection(m)
}

// DecodeDetections decodes a batch of detection entries using a zero
// Decoder.
func DecodeDetections(v any) []Detection {
	var d Decoder
	return d.DecodeDetections(v)
}

// DecodeFrame decodes one event stream push using a zero Decoder.
func DecodeFrame(v any) (Frame, bool) {
	var d Decoder
	return d.DecodeFrame(v)
}

func hasDetectionKey(m wire.Map) bool {

	for _, key := range detectionKeys {
		if _, ok := m[key]; ok {
			return true
		}
	}

	return false
}

// decodeBox reads a rectangle from a nested wire map. Both the
// left/top/right/bottom and x/y/width/height forms are accepted. A nil
// map yields the zero box.
func decodeBox(m wire.Map) Box {

	if m == nil {
		return Box{}
	}

	_, hasLeft := wire.AsFloat(m["left"])
	_, hasX := wire.AsFloat(m["x"])

	if !hasLeft && hasX {
		x := wire.Float(m, "x", 0)
		y := wire.Float(m, "y", 0)

		return Box{
			Left:   x,
			Top:    y,
			Right:  x + wire.Float(m, "width", 0),
			Bottom: y + wire.Float(m, "height", 0),
		}
	}

	return Box{
		Left:   wire.Float(m, "left", 0),
		Top:    wire.Float(m, "top", 0),
		Right:  wire.Float(m, "right", 0),
		Bottom: wire.Float(m, "bottom", 0),
	}
}

// decodeMask reads a segmentation mask in either of its wire forms, the
// nested row arrays or the packed binary buffer. Invalid shapes are
// treated as absent.
func decodeMask(v any) *Mask {

	if v == nil {
		return nil
	}

	if m, ok := wire.AsMap(v); ok {
		return decodePackedMask(m)
	}

	rows, ok := wire.AsSlice(v)

	if !ok || len(rows) == 0 {
		return nil
	}

	data := make([][]float64, 0, len(rows))
	width := -1

	for _, row := range rows {
		cells, cok := wire.AsSlice(row)

		if !cok || len(cells) == 0 {
			return nil
		}

		if width == -1 {
			width = len(cells)
		} else if len(cells) != width {
			// ragged mask
			return nil
		}

		vals := make([]float64, len(cells))

		for i, cell := range cells {
			f, fok := wire.AsFloat(cell)

			if !fok {
				return nil
			}

			vals[i] = f
		}

		data = append(data, vals)
	}

	return &Mask{Data: data}
}

// decodePackedMask reads the binary mask form {shape: [h, w],
// data: bytes, dtype: "float16"|"float32"}. The data buffer holds
// row major little endian values and must match the shape exactly.
func decodePackedMask(m wire.Map) *Mask {

	shape := wire.Slice(m, "shape")

	if len(shape) != 2 {
		return nil
	}

	h, hok := wire.AsInt(shape[0])
	w, wok := wire.AsInt(shape[1])

	if !hok || !wok || h <= 0 || w <= 0 {
		return nil
	}

	buf := wire.Bytes(m, "data")
	height := int(h)
	width := int(w)

	var elemSize int
	dtype := wire.String(m, "dtype", "float32")

	switch dtype {
	case "float16":
		elemSize = 2
	case "float32":
		elemSize = 4
	default:
		return nil
	}

	if len(buf) != height*width*elemSize {
		return nil
	}

	data := make([][]float64, height)

	for y := 0; y < height; y++ {
		row := make([]float64, width)

		for x := 0; x < width; x++ {
			off := (y*width + x) * elemSize

			if elemSize == 2 {
				bits := binary.LittleEndian.Uint16(buf[off:])
				row[x] = float64(f16LookupTable[bits])
			} else {
				bits := binary.LittleEndian.Uint32(buf[off:])
				row[x] = float64(math.Float32frombits(bits))
			}
		}

		data[y] = row
	}

	return &Mask{Data: data}
}

// decodeKeypoints reads pose keypoints from a flat [x, y, conf, ...]
// sequence into parallel point and confidence slices. A sequence whose
// length is not a multiple of 3, or that contains a non numeric value,
// yields no keypoints.
func decodeKeypoints(v any) ([]Point, []float64) {

	if v == nil {
		return nil, nil
	}

	flat, ok := wire.AsSlice(v)

	if !ok || len(flat) == 0 || len(flat)%3 != 0 {
		return nil, nil
	}

	pts := make([]Point, 0, len(flat)/3)
	conf := make([]float64, 0, len(flat)/3)

	for i := 0; i < len(flat); i += 3 {
		x, xok := wire.AsFloat(flat[i])
		y, yok := wire.AsFloat(flat[i+1])
		c, cok := wire.AsFloat(flat[i+2])

		if !xok || !yok || !cok {
			return nil, nil
		}

		pts = append(pts, Point{X: x, Y: y})
		conf = append(conf, c)
	}

	return pts, conf
}
