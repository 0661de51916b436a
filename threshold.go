package yolobridge

import (
	"math"

	"github.com/swdee/go-yolobridge/wire"
)

// threshold bounds enforced by the clamping setters
const (
	minNumItems = 1
	maxNumItems = 100
)

// Thresholds are the detection filtering limits pushed to the engine: the
// minimum confidence score, the NMS IoU limit, and the maximum number of
// results per frame.
type Thresholds struct {
	Confidence float64
	IoU        float64
	NumItems   int
}

// DefaultThresholds returns the thresholds a View starts with
func DefaultThresholds() Thresholds {
	return Thresholds{
		Confidence: 0.5,
		IoU:        0.45,
		NumItems:   30,
	}
}

// clamp limits all three thresholds to their valid ranges
func (t Thresholds) clamp() Thresholds {
	return Thresholds{
		Confidence: clampFloat(t.Confidence, 0, 1),
		IoU:        clampFloat(t.IoU, 0, 1),
		NumItems:   clampInt(t.NumItems, minNumItems, maxNumItems),
	}
}

// toMap encodes the thresholds as setThresholds call arguments
func (t Thresholds) toMap() wire.Map {
	return wire.Map{
		"confidenceThreshold": t.Confidence,
		"iouThreshold":        t.IoU,
		"numItemsThreshold":   t.NumItems,
	}
}

// clampFloat limits v to [lo, hi]. NaN clamps to the lower bound and
// infinities to the nearest bound, so out of range input never reaches
// the engine.
func clampFloat(v, lo, hi float64) float64 {

	if math.IsNaN(v) {
		return lo
	}

	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}

// clampInt limits v to [lo, hi]
func clampInt(v, lo, hi int) int {

	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}

// validThreshold reports whether v is a usable [0,1] threshold argument.
// NaN fails both comparisons and is rejected
func validThreshold(v float64) bool {
	return v >= 0 && v <= 1
}
