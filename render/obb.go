package render

import (
	"image"
	"math"

	"github.com/swdee/go-yolobridge/result"
	"gocv.io/x/gocv"
)

// obbCorners rotates the detection box around its center by the given angle
// in radians and returns the four corners in drawing order
func obbCorners(box result.Box, angle float64) [4]image.Point {

	cx := (box.Left + box.Right) / 2
	cy := (box.Top + box.Bottom) / 2
	hw := (box.Right - box.Left) / 2
	hh := (box.Bottom - box.Top) / 2

	cosA := math.Cos(angle)
	sinA := math.Sin(angle)

	offsets := [4][2]float64{
		{-hw, -hh},
		{hw, -hh},
		{hw, hh},
		{-hw, hh},
	}

	var corners [4]image.Point

	for i, off := range offsets {
		x := cx + off[0]*cosA - off[1]*sinA
		y := cy + off[0]*sinA + off[1]*cosA
		corners[i] = image.Pt(int(math.Round(x)), int(math.Round(y)))
	}

	return corners
}

// OrientedBoxes renders rotated bounding boxes for each detection, labelled
// with its class and confidence.  Detections without an orientation angle
// are drawn axis aligned
func OrientedBoxes(img *gocv.Mat, detections []result.Detection, font Font,
	lineThickness int) {

	// keep a record of all box labels for later rendering
	boxLabels := make([]boxLabel, 0)

	for _, det := range detections {

		angle := 0.0

		if det.Orientation != nil {
			angle = *det.Orientation
		}

		corners := obbCorners(det.Box, angle)
		useClr := classColor(det.ClassIndex)

		// draw the four edges
		for i := 0; i < 4; i++ {
			gocv.Line(img, corners[i], corners[(i+1)%4], useClr, lineThickness)
		}

		// anchor the label at the topmost corner
		topPoint := corners[0]

		for _, pt := range corners[1:] {
			if pt.Y < topPoint.Y {
				topPoint = pt
			}
		}

		// create text for label
		text := labelText(det)
		textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)

		labelPosition := image.Pt(topPoint.X+font.LeftPad,
			topPoint.Y-font.BottomPad)

		// create box for placing text on
		bRect := image.Rect(topPoint.X,
			topPoint.Y-textSize.Y-font.TopPad-font.BottomPad,
			topPoint.X+textSize.X+font.LeftPad+font.RightPad, topPoint.Y)

		// record label rendering details
		nextLabel := boxLabel{
			rect:    bRect,
			clr:     useClr,
			text:    text,
			textPos: labelPosition,
		}
		boxLabels = append(boxLabels, nextLabel)
	}

	// draw all precalculated box labels so they are the top most layer on
	// the image and don't get overlapped by box edges
	drawBoxLabels(img, boxLabels, font)
}
