// Package result defines the typed inference results produced by the
// engine and the decoder that builds them from loosely typed wire maps.
package result

import (
	"github.com/swdee/go-yolobridge/wire"
)

// Box are the dimensions of the bounding box of a detected object.
// Coordinates are pixels for Detection.Box and unit [0,1] values for
// Detection.NormalizedBox.
type Box struct {
	Left   float64
	Top    float64
	Right  float64
	Bottom float64
}

// Width returns the box width
func (b Box) Width() float64 {
	return b.Right - b.Left
}

// Height returns the box height
func (b Box) Height() float64 {
	return b.Bottom - b.Top
}

// IsZero reports whether the box carries no coordinates
func (b Box) IsZero() bool {
	return b.Left == 0 && b.Top == 0 && b.Right == 0 && b.Bottom == 0
}

func (b Box) toMap() wire.Map {
	return wire.Map{
		"left":   b.Left,
		"top":    b.Top,
		"right":  b.Right,
		"bottom": b.Bottom,
	}
}

// Point is a single 2D coordinate, used for pose keypoints
type Point struct {
	X float64
	Y float64
}

// Mask holds per-pixel soft segmentation values for one detected
// object. Data is rectangular and non-empty.
type Mask struct {
	Data [][]float64
}

// Height returns the number of mask rows
func (m *Mask) Height() int {
	return len(m.Data)
}

// Width returns the number of mask columns
func (m *Mask) Width() int {
	if len(m.Data) == 0 {
		return 0
	}

	return len(m.Data[0])
}

// At returns the mask value at column x, row y
func (m *Mask) At(x, y int) float64 {
	return m.Data[y][x]
}

// Detection is one recognized object or region in one frame. Optional
// fields are nil/empty when the task or wire payload does not carry
// them: Mask for segmentation, Keypoints/KeypointConf for pose, and
// Orientation for oriented bounding boxes. Keypoints and KeypointConf
// always have equal length.
type Detection struct {
	// ClassIndex is the category id the model was trained on
	ClassIndex int
	// ClassName is the display label for ClassIndex
	ClassName string
	// Confidence is the detection score in [0,1]
	Confidence float64
	// Box is the bounding box in source image pixel coordinates
	Box Box
	// NormalizedBox is the bounding box in unit [0,1] coordinates
	NormalizedBox Box
	// Mask is the soft segmentation mask, segmentation task only
	Mask *Mask
	// Keypoints are the pose skeleton joints, pose task only
	Keypoints []Point
	// KeypointConf are per-keypoint confidence scores parallel to
	// Keypoints
	KeypointConf []float64
	// Orientation is the rotation angle in radians, OBB task only
	Orientation *float64
}

// ToMap encodes the detection back into its wire form. Optional fields
// absent on the value are omitted from the map.
func (d Detection) ToMap() wire.Map {

	m := wire.Map{
		"classIndex":    d.ClassIndex,
		"className":     d.ClassName,
		"confidence":    d.Confidence,
		"boundingBox":   d.Box.toMap(),
		"normalizedBox": d.NormalizedBox.toMap(),
	}

	if d.Mask != nil {
		m["mask"] = d.Mask.Data
	}

	if len(d.Keypoints) > 0 {
		kps := make([]float64, 0, len(d.Keypoints)*3)

		for i, p := range d.Keypoints {
			c := 0.0

			if i < len(d.KeypointConf) {
				c = d.KeypointConf[i]
			}

			kps = append(kps, p.X, p.Y, c)
		}

		m["keypoints"] = kps
	}

	if d.Orientation != nil {
		m["orientation"] = *d.Orientation
	}

	return m
}

// Frame is one push from a live view event stream, a batch of
// detections plus the performance metrics observed for that frame.
type Frame struct {
	Detections []Detection
	Metrics    Metrics
	// OriginalImage is the JPEG encoded camera frame, present only
	// when the streaming config requested it
	OriginalImage []byte
}
