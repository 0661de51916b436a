// Package preprocess prepares camera frames and still images for the
// inference engine: letterbox resizing to the model input size, pure Go
// scaling for hosts without OpenCV, and JPEG encoding for transport
package preprocess

import (
	"fmt"
	"image"
	"image/color"

	"github.com/swdee/go-yolobridge/result"
	"gocv.io/x/gocv"
)

// Resizer letterboxes frames to the model input size the engine expects.
// It keeps the scale factor and padding so detections reported in model
// coordinates can be translated back onto the source image
type Resizer struct {
	// srcWidth is the width of the source image
	srcWidth int
	// srcHeight is the height of the source image
	srcHeight int
	// destWidth is the width to scale to
	destWidth int
	// destHeight is the height to scale to
	destHeight int
	// tempMat is a Mat used during the resize process
	tempMat gocv.Mat
	// letterbox parameters used in scaling
	xPad  int
	yPad  int
	scale float32
	// resize dimensions
	resizeW int
	resizeH int
}

// NewResizer returns a resizer that scales srcWidth x srcHeight frames
// into destWidth x destHeight letterboxed frames
func NewResizer(srcWidth, srcHeight, destWidth, destHeight int) *Resizer {

	r := &Resizer{
		srcWidth:   srcWidth,
		srcHeight:  srcHeight,
		destWidth:  destWidth,
		destHeight: destHeight,
		tempMat:    gocv.NewMat(),
	}

	// precalculate scaling dimensions
	r.preCalc()

	return r
}

// Close frees memory allocated during the resize process
func (r *Resizer) Close() error {
	return r.tempMat.Close()
}

// preCalc the scaling factor and padding for the letterbox
func (r *Resizer) preCalc() {

	r.resizeW = r.destWidth
	r.resizeH = r.destHeight

	scaleW := float32(r.destWidth) / float32(r.srcWidth)
	scaleH := float32(r.destHeight) / float32(r.srcHeight)
	r.scale = scaleH

	if scaleW < scaleH {
		r.scale = scaleW
		r.resizeH = int(float32(r.srcHeight) * r.scale)
	} else {
		r.resizeW = int(float32(r.srcWidth) * r.scale)
	}

	r.yPad = (r.destHeight - r.resizeH) / 2 // padding height / 2
	r.xPad = (r.destWidth - r.resizeW) / 2  // padding width / 2
}

// LetterBoxResize resizes the source image into dest at the model input
// size whilst maintaining image aspect.  Color fills the letterbox padding
func (r *Resizer) LetterBoxResize(src gocv.Mat, dest *gocv.Mat, color color.RGBA) {

	gocv.Resize(src, &r.tempMat, image.Pt(r.resizeW, r.resizeH),
		0, 0, gocv.InterpolationArea)

	gocv.CopyMakeBorder(r.tempMat, dest, r.yPad, r.destHeight-r.resizeH-r.yPad,
		r.xPad, r.destWidth-r.resizeW-r.xPad, gocv.BorderConstant, color)
}

// TranslateBox maps a detection box reported in letterboxed model
// coordinates back onto the source image, clamped to its bounds
func (r *Resizer) TranslateBox(b result.Box) result.Box {

	return result.Box{
		Left:   r.translateX(b.Left),
		Top:    r.translateY(b.Top),
		Right:  r.translateX(b.Right),
		Bottom: r.translateY(b.Bottom),
	}
}

// TranslatePoint maps a keypoint reported in letterboxed model coordinates
// back onto the source image
func (r *Resizer) TranslatePoint(p result.Point) result.Point {

	return result.Point{
		X: r.translateX(p.X),
		Y: r.translateY(p.Y),
	}
}

func (r *Resizer) translateX(v float64) float64 {
	return clampDim((v-float64(r.xPad))/float64(r.scale), r.srcWidth)
}

func (r *Resizer) translateY(v float64) float64 {
	return clampDim((v-float64(r.yPad))/float64(r.scale), r.srcHeight)
}

func clampDim(v float64, limit int) float64 {

	if v < 0 {
		return 0
	}

	if v > float64(limit) {
		return float64(limit)
	}

	return v
}

// ScaleFactor returns the scale factor used in letterbox resize
func (r *Resizer) ScaleFactor() float32 {
	return r.scale
}

// XPad returns the x padding used in letterbox resize
func (r *Resizer) XPad() int {
	return r.xPad
}

// YPad returns the y padding used in letterbox resize
func (r *Resizer) YPad() int {
	return r.yPad
}

// SrcWidth returns the width of the source image
func (r *Resizer) SrcWidth() int {
	return r.srcWidth
}

// SrcHeight returns the height of the source image
func (r *Resizer) SrcHeight() int {
	return r.srcHeight
}

// MatToJPEG encodes a Mat as JPEG bytes ready to send to the engine
func MatToJPEG(img gocv.Mat) ([]byte, error) {

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)

	if err != nil {
		return nil, fmt.Errorf("error encoding image: %w", err)
	}

	defer buf.Close()

	// copy out of the native buffer before it is freed
	raw := buf.GetBytes()
	out := make([]byte, len(raw))
	copy(out, raw)

	return out, nil
}
