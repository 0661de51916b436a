package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	xdraw "golang.org/x/image/draw"
)

// defaultJPEGQuality is used when JPEGBytes is passed a quality outside
// the 1 to 100 range
const defaultJPEGQuality = 90

// ScaleImage scales src to the given size with bilinear interpolation.
// It is the pure Go path for hosts without OpenCV
func ScaleImage(src image.Image, width, height int) image.Image {

	dst := image.NewRGBA(image.Rect(0, 0, width, height))

	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(),
		xdraw.Src, nil)

	return dst
}

// ShrinkToFit scales src down to fit within maxWidth x maxHeight whilst
// maintaining image aspect.  Images already inside the bounds are returned
// unchanged, shrinking a frame before transport keeps request payloads
// small
func ShrinkToFit(src image.Image, maxWidth, maxHeight int) image.Image {

	b := src.Bounds()
	w := b.Dx()
	h := b.Dy()

	if w <= maxWidth && h <= maxHeight {
		return src
	}

	scaleW := float64(maxWidth) / float64(w)
	scaleH := float64(maxHeight) / float64(h)

	scale := scaleH

	if scaleW < scaleH {
		scale = scaleW
	}

	return ScaleImage(src, int(float64(w)*scale), int(float64(h)*scale))
}

// JPEGBytes encodes an image as JPEG bytes ready to send to the engine
func JPEGBytes(img image.Image, quality int) ([]byte, error) {

	if quality < 1 || quality > 100 {
		quality = defaultJPEGQuality
	}

	buf := &bytes.Buffer{}

	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("error encoding image: %w", err)
	}

	return buf.Bytes(), nil
}
