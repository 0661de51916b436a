package preprocess

import (
	"image/color"
	"testing"

	"github.com/swdee/go-yolobridge/result"
	"gocv.io/x/gocv"
)

var (
	black = color.RGBA{R: 0, G: 0, B: 0, A: 255}
)

func TestLetterBoxResize(t *testing.T) {

	tests := []struct {
		srcWidth      int
		srcHeight     int
		resizeWidth   int
		resizeHeight  int
		expectedXPad  int
		expectedYPad  int
		expectedScale float32
	}{
		{1280, 720, 640, 640, 0, 140, 0.50},
		{800, 1000, 640, 640, 64, 0, 0.64},
		{800, 800, 640, 640, 0, 0, 0.8},
	}

	for _, tc := range tests {
		img := gocv.NewMatWithSize(tc.srcHeight, tc.srcWidth, gocv.MatTypeCV8UC1)

		resizedImg := gocv.NewMat()

		resizer := NewResizer(tc.srcWidth, tc.srcHeight, tc.resizeWidth, tc.resizeHeight)

		resizer.LetterBoxResize(img, &resizedImg, black)

		if resizer.XPad() != tc.expectedXPad || resizer.YPad() != tc.expectedYPad {
			t.Errorf("Test failed for src (%d, %d): Padding values wrong, expected XPad=%d, YPad=%d, got xPad=%d, yPad=%d",
				tc.srcWidth, tc.srcHeight, tc.expectedXPad, tc.expectedYPad, resizer.XPad(), resizer.YPad())
		}

		if resizer.ScaleFactor() != tc.expectedScale {
			t.Errorf("Test failed for src (%d, %d): Scalefactor incorrect, expected %f, got %f",
				tc.srcWidth, tc.srcHeight, tc.expectedScale, resizer.ScaleFactor())
		}

		img.Close()
		resizedImg.Close()
		resizer.Close()
	}
}

func TestTranslateBox(t *testing.T) {

	resizer := NewResizer(1280, 720, 640, 640)
	defer resizer.Close()

	// detection reported in 640x640 model coordinates
	box := result.Box{Left: 100, Top: 240, Right: 300, Bottom: 440}

	got := resizer.TranslateBox(box)

	want := result.Box{Left: 200, Top: 200, Right: 600, Bottom: 600}

	if got != want {
		t.Errorf("translated box wrong, expected %+v, got %+v", want, got)
	}
}

func TestTranslateBoxClampsToSource(t *testing.T) {

	resizer := NewResizer(800, 1000, 640, 640)
	defer resizer.Close()

	// left sits outside the frame, right inside the letterbox padding
	box := result.Box{Left: -10, Top: 0, Right: 704, Bottom: 640}

	got := resizer.TranslateBox(box)

	if got.Left != 0 {
		t.Errorf("left should clamp to 0, got %f", got.Left)
	}

	if got.Right != 800 {
		t.Errorf("right should clamp to source width, got %f", got.Right)
	}

	if got.Bottom != 1000 {
		t.Errorf("bottom should clamp to source height, got %f", got.Bottom)
	}
}

func TestTranslatePoint(t *testing.T) {

	resizer := NewResizer(1280, 720, 640, 640)
	defer resizer.Close()

	p := resizer.TranslatePoint(result.Point{X: 320, Y: 320})

	if p.X != 640 || p.Y != 360 {
		t.Errorf("translated point wrong, expected (640, 360), got (%f, %f)", p.X, p.Y)
	}
}

func TestMatToJPEG(t *testing.T) {

	img := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer img.Close()

	data, err := MatToJPEG(img)

	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	if len(data) < 2 || data[0] != 0xff || data[1] != 0xd8 {
		t.Errorf("encoded data is not a JPEG, got % x", data[:2])
	}
}
