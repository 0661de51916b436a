// Package render draws detection results onto images: bounding boxes,
// oriented boxes, segment masks and outlines, and pose skeletons.  It is
// used by clients that annotate frames locally instead of requesting
// annotated images from the engine
package render

import (
	"fmt"
	"image"

	"github.com/swdee/go-yolobridge/result"
	"gocv.io/x/gocv"
)

// DetectionBoxes renders the bounding boxes around the detected objects
func DetectionBoxes(img *gocv.Mat, detections []result.Detection,
	font Font, lineThickness int) {

	// keep a record of all box labels for later rendering
	boxLabels := make([]boxLabel, 0)

	// draw detection boxes
	for _, det := range detections {

		useClr := classColor(det.ClassIndex)

		boxLeft := int(det.Box.Left)
		boxTop := int(det.Box.Top)
		boxRight := int(det.Box.Right)
		boxBottom := int(det.Box.Bottom)

		// draw rectangle around detected object
		rect := image.Rect(boxLeft, boxTop, boxRight, boxBottom)
		gocv.Rectangle(img, rect, useClr, lineThickness)

		// create text for label
		text := labelText(det)
		textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)

		// Calculate the alignment of text label
		var centerX int

		switch font.Alignment {
		case Center:
			centerX = (boxLeft + boxRight) / 2

		case Right:
			centerX = boxRight - (textSize.X / 2) - font.RightPad + (lineThickness / 2)

		case Left:
			fallthrough
		default:
			centerX = boxLeft + (textSize.X / 2) + font.LeftPad - (lineThickness / 2)
		}

		// Adjust the label position so the text is centered horizontally
		labelPosition := image.Pt(centerX-textSize.X/2, boxTop-font.BottomPad)

		// create box for placing text on
		bRect := image.Rect(centerX-textSize.X/2-font.LeftPad,
			boxTop-textSize.Y-font.TopPad-font.BottomPad,
			centerX+textSize.X/2+font.RightPad, boxTop)

		// record label rendering details
		nextLabel := boxLabel{
			rect:    bRect,
			clr:     useClr,
			text:    text,
			textPos: labelPosition,
		}
		boxLabels = append(boxLabels, nextLabel)

	}

	// draw all precalculated box labels so they are the top most layer on the
	// image and don't get overlapped with segment contour lines
	drawBoxLabels(img, boxLabels, font)
}

// labelText formats the class and confidence text drawn above a detection
func labelText(det result.Detection) string {

	name := det.ClassName

	if name == "" {
		name = fmt.Sprintf("class %d", det.ClassIndex)
	}

	return fmt.Sprintf("%s %.2f", name, det.Confidence)
}

// drawBoxLabels paints the recorded labels over their backing boxes
func drawBoxLabels(img *gocv.Mat, boxLabels []boxLabel, font Font) {

	for _, box := range boxLabels {
		// draw box text gets written on
		gocv.Rectangle(img, box.rect, box.clr, -1)

		// Draw the label over box
		gocv.PutTextWithParams(img, box.text, box.textPos,
			font.Face, font.Scale, font.Color, font.Thickness,
			font.LineType, false)
	}
}
