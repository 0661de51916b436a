package preprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-yolobridge/result"
)

func TestComputePositions(t *testing.T) {

	tiler := NewTiler(400, 400, 0.25, 0.25)

	positions, tileLen := tiler.computePositions(1000, 400, 0.25)

	assert.Equal(t, []int{0, 250, 500}, positions)
	assert.Equal(t, 500, tileLen)

	// neighbouring tiles keep at least the minimum overlap
	for i := 1; i < len(positions); i++ {
		overlap := positions[i-1] + tileLen - positions[i]
		assert.GreaterOrEqual(t, overlap, 100)
	}

	// last tile ends exactly at the source edge
	assert.Equal(t, 1000, positions[len(positions)-1]+tileLen)
}

func TestComputePositionsSourceSmallerThanTile(t *testing.T) {

	tiler := NewTiler(400, 400, 0.2, 0.2)

	positions, tileLen := tiler.computePositions(400, 400, 0.2)

	assert.Equal(t, []int{0}, positions)
	assert.Equal(t, 400, tileLen)
}

func TestRemapToSource(t *testing.T) {

	tiler := NewTiler(400, 400, 0.2, 0.2)
	tiler.srcWidth = 1000
	tiler.srcHeight = 800

	det := result.Detection{
		ClassIndex: 2,
		Confidence: 0.9,
		Box:        result.Box{Left: 10, Top: 20, Right: 110, Bottom: 220},
		Keypoints:  []result.Point{{X: 50, Y: 60}},
		Mask:       &result.Mask{Data: [][]float64{{1.0}}},
	}

	out := tiler.remapToSource(250, 100, det)

	assert.Equal(t, result.Box{Left: 260, Top: 120, Right: 360, Bottom: 320}, out.Box)
	assert.InDelta(t, 0.26, out.NormalizedBox.Left, 1e-9)
	assert.InDelta(t, 0.15, out.NormalizedBox.Top, 1e-9)
	assert.InDelta(t, 0.36, out.NormalizedBox.Right, 1e-9)
	assert.InDelta(t, 0.40, out.NormalizedBox.Bottom, 1e-9)
	assert.Equal(t, []result.Point{{X: 300, Y: 160}}, out.Keypoints)

	// tile masks do not carry over to source coordinates
	assert.Nil(t, out.Mask)

	// the input detection is left untouched
	assert.Equal(t, result.Box{Left: 10, Top: 20, Right: 110, Bottom: 220}, det.Box)
	assert.NotNil(t, det.Mask)
}

func TestMergeClustersKeepsLargestBox(t *testing.T) {

	tiler := NewTiler(400, 400, 0.2, 0.2)

	dets := []result.Detection{
		{Confidence: 0.9, Box: result.Box{Left: 0, Top: 0, Right: 100, Bottom: 100}},
		{Confidence: 0.8, Box: result.Box{Left: 0, Top: 0, Right: 120, Bottom: 120}},
		{Confidence: 0.7, Box: result.Box{Left: 300, Top: 300, Right: 400, Bottom: 400}},
	}

	merged := tiler.mergeClusters(dets, 0.45, 0.6)

	require.Len(t, merged, 2)

	// the overlapping pair collapses to the larger box
	assert.Equal(t, result.Box{Left: 0, Top: 0, Right: 120, Bottom: 120}, merged[0].Box)
	assert.Equal(t, 0.8, merged[0].Confidence)

	assert.Equal(t, result.Box{Left: 300, Top: 300, Right: 400, Bottom: 400}, merged[1].Box)
}

func TestMergeClustersSmallBoxAbsorbed(t *testing.T) {

	tiler := NewTiler(400, 400, 0.2, 0.2)

	// the fragment overlaps the full box by most of its own area but the
	// IoU is tiny, only the small box test catches it
	dets := []result.Detection{
		{Confidence: 0.9, Box: result.Box{Left: 0, Top: 0, Right: 200, Bottom: 200}},
		{Confidence: 0.5, Box: result.Box{Left: 150, Top: 150, Right: 210, Bottom: 210}},
	}

	merged := tiler.mergeClusters(dets, 0.45, 0.6)

	require.Len(t, merged, 1)
	assert.Equal(t, result.Box{Left: 0, Top: 0, Right: 200, Bottom: 200}, merged[0].Box)
}

func TestTilerResultsMergesAcrossTileBoundary(t *testing.T) {

	tiler := NewTiler(400, 400, 0.2, 0.2)
	tiler.srcWidth = 1000
	tiler.srcHeight = 500

	// an object straddling the boundary between two tiles is seen cut off
	// by the first tile and whole by the second
	tiler.AddResult(Tile{X: 0, Y: 0}, []result.Detection{
		{Confidence: 0.95, Box: result.Box{Left: 460, Top: 100, Right: 500, Bottom: 160}},
	})

	tiler.AddResult(Tile{X: 450, Y: 0}, []result.Detection{
		{Confidence: 0.9, Box: result.Box{Left: 10, Top: 95, Right: 120, Bottom: 165}},
	})

	merged := tiler.Results(0.45, 0.6)

	require.Len(t, merged, 1)

	// the whole box from the second tile wins, in source coordinates
	assert.Equal(t, result.Box{Left: 460, Top: 95, Right: 570, Bottom: 165}, merged[0].Box)
	assert.Equal(t, 0.9, merged[0].Confidence)
	assert.InDelta(t, 0.46, merged[0].NormalizedBox.Left, 1e-9)
	assert.InDelta(t, 0.19, merged[0].NormalizedBox.Top, 1e-9)

	// Reset drops recorded results
	tiler.Reset()
	assert.Empty(t, tiler.Results(0.45, 0.6))
}

func TestIoU(t *testing.T) {

	a := result.Box{Left: 0, Top: 0, Right: 100, Bottom: 100}

	assert.InDelta(t, 1.0, iou(a, a), 1e-9)

	b := result.Box{Left: 200, Top: 200, Right: 300, Bottom: 300}
	assert.Equal(t, 0.0, iou(a, b))

	// half overlapping boxes of equal size
	c := result.Box{Left: 50, Top: 0, Right: 150, Bottom: 100}
	assert.InDelta(t, 5000.0/15000.0, iou(a, c), 1e-9)
}
