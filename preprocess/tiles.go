package preprocess

import (
	"errors"
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/swdee/go-yolobridge/result"
	"gocv.io/x/gocv"
)

// Tiler slices a large source image into overlapping tiles sized for the
// model input, so small objects survive the downscale. Run prediction on
// each tile, record the results with AddResult, then collect the merged
// detections for the whole source image with Results.
type Tiler struct {
	// tileWidth is the width of each image tile
	tileWidth int
	// tileHeight is the height of each image tile
	tileHeight int
	// overlapWidth is a ratio from 0.0 to 1.0 of tileWidth pixels to
	// overlap neighbouring tiles by
	overlapWidth float64
	// overlapHeight is a ratio from 0.0 to 1.0 of tileHeight pixels to
	// overlap neighbouring tiles by
	overlapHeight float64

	// source image dimensions recorded by Slice
	srcWidth  int
	srcHeight int

	// results stores each tiles detection results
	results []tileResult
}

// tileResult pairs a tile origin with its detection results
type tileResult struct {
	x, y int
	dets []result.Detection
}

// Tile is one slice of the source image
type Tile struct {
	// X is the coordinate of the tiles left corner
	X int
	// Y is the coordinate of the tiles top corner
	Y int
	// X2 is the coordinate of the tiles right corner
	X2 int
	// Y2 is the coordinate of the tiles bottom corner
	Y2 int
	// tile is the sliced image Mat
	tile gocv.Mat
	// resizer letter boxes the tile down to the model input size
	resizer *Resizer
	// destMat is the destination Mat after crop and resize of the tile
	destMat gocv.Mat
}

// NewTiler returns a Tiler cutting source images into tiles of the given
// size. tileWidth and tileHeight should match the models input dimensions.
func NewTiler(tileWidth, tileHeight int, overlapWidth, overlapHeight float64) *Tiler {

	return &Tiler{
		tileWidth:     tileWidth,
		tileHeight:    tileHeight,
		overlapWidth:  overlapWidth,
		overlapHeight: overlapHeight,
		results:       make([]tileResult, 0),
	}
}

// computePositions returns the start coordinates of each tile along one
// axis and the computed tile length. The smallest number of tiles is used
// that covers srcLen with at least sliceLen*overlapRatio pixels of overlap
// between neighbours, with any leftover pixels spread evenly via rounding
func (s *Tiler) computePositions(srcLen, sliceLen int, overlapRatio float64) ([]int, int) {

	// minimum pixel overlap
	minOv := int(math.Ceil(float64(sliceLen) * overlapRatio))

	// tile length = sliceLen + that minimum overlap
	tileLen := sliceLen + minOv

	// source smaller than one tile, a single slice covers it
	if tileLen > srcLen {
		return []int{0}, srcLen
	}

	// number of tiles needed stepping by sliceLen, which keeps
	// step <= sliceLen and so overlap >= minOv
	n := int(math.Ceil(float64(srcLen-tileLen)/float64(sliceLen))) + 1

	if n < 1 {
		n = 1
	}

	// actual step, evenly spread
	denom := n - 1
	var step float64

	if denom > 0 {
		step = float64(srcLen-tileLen) / float64(denom)
	}

	positions := make([]int, n)

	for i := 0; i < n; i++ {
		p := int(math.Round(step * float64(i)))

		// clamp to [0, srcLen-tileLen]
		if p < 0 {
			p = 0
		} else if p > srcLen-tileLen {
			p = srcLen - tileLen
		}

		positions[i] = p
	}

	return positions, tileLen
}

// Slice cuts the given source image into a series of tiles
func (s *Tiler) Slice(src gocv.Mat) []Tile {

	// get dimensions of source image
	srcH, srcW := src.Rows(), src.Cols()

	s.srcWidth = srcW
	s.srcHeight = srcH

	// compute X starts and tileW
	xs, tileW := s.computePositions(srcW, s.tileWidth, s.overlapWidth)
	// compute Y starts and tileH
	ys, tileH := s.computePositions(srcH, s.tileHeight, s.overlapHeight)

	tiles := make([]Tile, 0, len(xs)*len(ys))

	for _, y := range ys {
		for _, x := range xs {
			rect := image.Rect(x, y, x+tileW, y+tileH)

			// letter box this tile down to tileWidth x tileHeight
			resizer := NewResizer(tileW, tileH, s.tileWidth, s.tileHeight)

			tiles = append(tiles, Tile{
				X:       x,
				Y:       y,
				X2:      x + tileW,
				Y2:      y + tileH,
				tile:    src.Region(rect),
				resizer: resizer,
				destMat: gocv.NewMat(),
			})
		}
	}

	return tiles
}

// AddResult records a tiles detection results. The detections must already
// be in tile pixel coordinates, translate them with the tiles Resizer
// first when the model reported them in letterboxed coordinates.
func (s *Tiler) AddResult(tile Tile, dets []result.Detection) {

	s.results = append(s.results, tileResult{
		x:    tile.X,
		y:    tile.Y,
		dets: dets,
	})
}

// Results returns the detections for the whole source image, remapped
// into source coordinates and merged across tiles.
//   - iouThreshold is the intersection over union above which two boxes
//     count as the same object
//   - smallBoxOverlap is the fraction of a smaller box that must be
//     covered to count as a duplicate, which catches objects cut by a
//     tile boundary
func (s *Tiler) Results(iouThreshold, smallBoxOverlap float64) []result.Detection {

	group := make([]result.Detection, 0)

	for _, tr := range s.results {
		for _, det := range tr.dets {
			group = append(group, s.remapToSource(tr.x, tr.y, det))
		}
	}

	// sort by descending confidence
	sort.Slice(group, func(i, j int) bool {
		return group[i].Confidence > group[j].Confidence
	})

	return s.mergeClusters(group, iouThreshold, smallBoxOverlap)
}

// Reset clears results recorded by AddResult, call it between images
func (s *Tiler) Reset() {
	s.results = s.results[:0]
}

// remapToSource translates a detection from tile coordinates to source
// image coordinates
func (s *Tiler) remapToSource(x, y int, det result.Detection) result.Detection {

	out := det

	out.Box = result.Box{
		Left:   float64(x) + det.Box.Left,
		Top:    float64(y) + det.Box.Top,
		Right:  float64(x) + det.Box.Right,
		Bottom: float64(y) + det.Box.Bottom,
	}

	if s.srcWidth > 0 && s.srcHeight > 0 {
		out.NormalizedBox = result.Box{
			Left:   out.Box.Left / float64(s.srcWidth),
			Top:    out.Box.Top / float64(s.srcHeight),
			Right:  out.Box.Right / float64(s.srcWidth),
			Bottom: out.Box.Bottom / float64(s.srcHeight),
		}
	}

	if len(det.Keypoints) > 0 {
		out.Keypoints = make([]result.Point, len(det.Keypoints))

		for i, p := range det.Keypoints {
			out.Keypoints[i] = result.Point{
				X: float64(x) + p.X,
				Y: float64(y) + p.Y,
			}
		}
	}

	// per tile masks do not compose into a source image mask
	out.Mask = nil

	return out
}

// mergeClusters picks one box per overlapping cluster, choosing the
// largest area with confidence as the tie break. Both the IoU and small
// box overlap tests form clusters, so an object straddling a tile
// boundary keeps its one full sized box. Detections must be sorted by
// descending confidence.
func (s *Tiler) mergeClusters(dets []result.Detection,
	iouThreshold, smallBoxOverlap float64) []result.Detection {

	n := len(dets)
	suppressed := make([]bool, n)
	keep := make([]result.Detection, 0, n)

	for i, base := range dets {
		if suppressed[i] {
			continue
		}

		// start a new cluster with base
		cluster := []result.Detection{base}
		suppressed[i] = true

		for j := i + 1; j < n; j++ {
			if suppressed[j] {
				continue
			}

			other := dets[j]

			inCluster := false

			if iou(base.Box, other.Box) > iouThreshold {
				inCluster = true
			} else {
				// small box overlap test
				inter := intersectionArea(base.Box, other.Box)
				areaOther := boxArea(other.Box)

				if areaOther > 0 && inter/areaOther > smallBoxOverlap {
					inCluster = true
				}
			}

			if !inCluster {
				continue
			}

			suppressed[j] = true
			cluster = append(cluster, other)
		}

		// pick the single largest area box, tie break on confidence
		best := cluster[0]
		bestArea := boxArea(best.Box)

		for _, c := range cluster[1:] {
			a := boxArea(c.Box)

			if a > bestArea || (a == bestArea && c.Confidence > best.Confidence) {
				best = c
				bestArea = a
			}
		}

		keep = append(keep, best)
	}

	return keep
}

// iou computes the intersection over union of two boxes
func iou(a, b result.Box) float64 {

	inter := intersectionArea(a, b)

	areaA := boxArea(a)
	areaB := boxArea(b)

	union := areaA + areaB - inter

	if union <= 0 {
		return 0
	}

	return inter / union
}

// intersectionArea returns the area of overlap between two boxes
func intersectionArea(a, b result.Box) float64 {

	x1 := math.Max(a.Left, b.Left)
	y1 := math.Max(a.Top, b.Top)
	x2 := math.Min(a.Right, b.Right)
	y2 := math.Min(a.Bottom, b.Bottom)

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	return (x2 - x1) * (y2 - y1)
}

// boxArea returns the area of a single box
func boxArea(a result.Box) float64 {
	return math.Max(0, a.Right-a.Left) * math.Max(0, a.Bottom-a.Top)
}

// Mat returns the tiles Mat after cropping and resizing, ready to run
// inference on
func (t *Tile) Mat() *gocv.Mat {
	t.resizer.LetterBoxResize(t.tile, &t.destMat, color.RGBA{R: 0, G: 0, B: 0, A: 255})
	return &t.destMat
}

// Resizer returns the tiles letter box resizer, for translating results
// back into tile coordinates
func (t *Tile) Resizer() *Resizer {
	return t.resizer
}

// Free releases the tile from memory
func (t *Tile) Free() error {

	err := t.resizer.Close()
	err2 := t.tile.Close()
	err3 := t.destMat.Close()

	return errors.Join(err, err2, err3)
}
