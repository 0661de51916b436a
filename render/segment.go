package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/swdee/go-yolobridge/result"
	"gocv.io/x/gocv"
)

// maskThreshold is the probability above which a mask cell counts as part
// of the object
const maskThreshold = 0.5

// buildIDMask flattens the per detection probability masks into a single
// object ID mask at image resolution, where 0 is background and n marks
// pixels of detections[n-1].  Masks are scaled with nearest neighbour
// sampling, later detections overwrite earlier ones where they overlap
func buildIDMask(width, height int, detections []result.Detection) []uint8 {

	idMask := make([]uint8, width*height)

	for i, det := range detections {

		if det.Mask == nil || det.Mask.Height() == 0 || det.Mask.Width() == 0 {
			continue
		}

		mh := det.Mask.Height()
		mw := det.Mask.Width()

		for y := 0; y < height; y++ {

			my := y * mh / height

			for x := 0; x < width; x++ {

				mx := x * mw / width

				if det.Mask.Data[my][mx] >= maskThreshold {
					idMask[y*width+x] = uint8(i + 1)
				}
			}
		}
	}

	return idMask
}

// SegmentMask renders the detection masks as a transparent overlay on top
// of the whole image
func SegmentMask(img *gocv.Mat, detections []result.Detection, alpha float32) {

	// get dimensions
	width := img.Cols()
	height := img.Rows()

	segMask := buildIDMask(width, height, detections)

	// it is too slow to manipulate pixel by pixel using GoCV due to slowness
	// over CGO.  So we copy the bytes from the source image and manipulate
	// the bytes directly before copying back to a Mat
	imgData := img.ToBytes()

	// iterate over each pixel in the segmentation mask
	for j := 0; j < height; j++ {
		for k := 0; k < width; k++ {

			idx := j*width + k

			if segMask[idx] != 0 {

				useClr := classColor(detections[segMask[idx]-1].ClassIndex)

				// calculate position in the byte slice
				pixelPos := j*width*3 + k*3

				// get original pixel colors directly from the byte slice
				b, g, r := imgData[pixelPos+0], imgData[pixelPos+1], imgData[pixelPos+2]

				// calculate blended colors based on alpha transparency
				imgData[pixelPos+0] = uint8(float32(b)*(1-alpha) + float32(useClr.B)*alpha)
				imgData[pixelPos+1] = uint8(float32(g)*(1-alpha) + float32(useClr.G)*alpha)
				imgData[pixelPos+2] = uint8(float32(r)*(1-alpha) + float32(useClr.R)*alpha)
			}
		}
	}

	// copy back to the original mat
	tmpImg, _ := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC3, imgData)
	defer tmpImg.Close()
	tmpImg.CopyTo(img)
}

// boxLabel defines where the detection object label should be rendered on
// source image
type boxLabel struct {
	rect    image.Rectangle
	clr     color.RGBA
	text    string
	textPos image.Point
}

// findTopPoint finds the highest point (Y axis) of the given point vector
func findTopPoint(approx gocv.PointVector) image.Point {

	topPoint := approx.At(0)

	for i := 1; i < approx.Size(); i++ {
		pt := approx.At(i)

		if pt.Y < topPoint.Y {
			topPoint = pt
		}
	}

	return topPoint
}

// isContourInsideBox checks if the bounding box of a contour fits inside
// the bounding box of the detection plus a pad
func isContourInsideBox(contourRect image.Rectangle, box result.Box, pad int) bool {

	return contourRect.Min.X >= int(box.Left)-pad &&
		contourRect.Min.Y >= int(box.Top)-pad &&
		contourRect.Max.X <= int(box.Right)+pad &&
		contourRect.Max.Y <= int(box.Bottom)+pad
}

// SegmentOutline renders the mask outline of each detection, labelled with
// its class and confidence
func SegmentOutline(img *gocv.Mat, detections []result.Detection,
	minArea float64, font Font, lineThickness int) error {

	width := img.Cols()
	height := img.Rows()
	boxesNum := len(detections)

	segMask := buildIDMask(width, height, detections)

	// create a Mat from the segMask
	maskMat, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8U, segMask)

	if err != nil {
		return fmt.Errorf("error creating mask Mat: %w", err)
	}

	defer maskMat.Close()

	// keep a record of all box labels for later rendering
	boxLabels := make([]boxLabel, 0)

	// iterate over each unique object ID to isolate the mask
	for objID := 1; objID < boxesNum+1; objID++ {

		det := detections[objID-1]

		if det.Mask == nil {
			continue
		}

		// Create a binary mask for the current object (isolate the object by objID)
		objMask := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8U)
		lowerBound := gocv.Scalar{Val1: float64(objID)}
		upperBound := gocv.Scalar{Val1: float64(objID)}
		gocv.InRangeWithScalar(maskMat, lowerBound, upperBound, &objMask)
		defer objMask.Close()

		// Find contours for this object
		contours := gocv.FindContours(objMask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
		defer contours.Close()

		useClr := classColor(det.ClassIndex)

		// Calculate the horizontal center of the bounding box
		centerX := int(det.Box.Left+det.Box.Right) / 2

		// Draw contours
		for i := 0; i < contours.Size(); i++ {
			contour := contours.At(i)

			// filter out small contours picked up from aliasing/noise in binary mask
			area := gocv.ContourArea(contour)

			if area < minArea {
				continue
			}

			// Check if the contour's bounding rectangle is inside the object's bounding box
			contourRect := gocv.BoundingRect(contour)

			if !isContourInsideBox(contourRect, det.Box, 10) {
				continue
			}

			approx := gocv.ApproxPolyDP(contour, 3, true)

			// Create a PointsVector to hold our PointVector
			ptsVec := gocv.NewPointsVector()

			// Add our approximated PointVector to PointsVector
			ptsVec.Append(approx)

			// Draw polygon lines using PointsVector
			gocv.Polylines(img, ptsVec, true, useClr, lineThickness)

			// Find the topmost point of the contour
			topPoint := findTopPoint(approx)

			// create text for label
			text := labelText(det)
			textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)

			// Adjust the label position so the text is centered horizontally
			labelPosition := image.Pt(centerX-textSize.X/2, topPoint.Y-font.BottomPad)

			// create box for placing text on
			bRect := image.Rect(centerX-textSize.X/2-font.LeftPad,
				topPoint.Y-textSize.Y-font.TopPad-font.BottomPad,
				centerX+textSize.X/2+font.RightPad, topPoint.Y)

			// record label rendering details
			nextLabel := boxLabel{
				rect:    bRect,
				clr:     useClr,
				text:    text,
				textPos: labelPosition,
			}
			boxLabels = append(boxLabels, nextLabel)

			approx.Close()
			ptsVec.Close()
		}
	}

	// draw all precalculated box labels so they are the top most layer on the
	// image and don't get overlapped with segment contour lines
	drawBoxLabels(img, boxLabels, font)

	return nil
}

// PaintSegmentToFile paints the detection masks to an image file
func PaintSegmentToFile(filename string, height, width int,
	detections []result.Detection, alpha float32) error {

	img := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	defer img.Close()

	SegmentMask(&img, detections, alpha)

	if gocv.IMWrite(filename, img) {
		return nil
	}

	return fmt.Errorf("failed to write to file %s", filename)
}
