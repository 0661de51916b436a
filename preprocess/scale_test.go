package preprocess

import (
	"bytes"
	"image"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScaleImage(t *testing.T) {

	src := image.NewRGBA(image.Rect(0, 0, 1280, 720))

	dst := ScaleImage(src, 640, 360)

	assert.Equal(t, 640, dst.Bounds().Dx())
	assert.Equal(t, 360, dst.Bounds().Dy())
}

func TestShrinkToFit(t *testing.T) {

	tests := []struct {
		name       string
		srcW, srcH int
		maxW, maxH int
		wantW      int
		wantH      int
	}{
		{"landscape over limit", 1920, 1080, 640, 640, 640, 360},
		{"portrait over limit", 600, 1200, 640, 640, 320, 640},
		{"already fits", 320, 240, 640, 640, 320, 240},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			src := image.NewRGBA(image.Rect(0, 0, tc.srcW, tc.srcH))

			out := ShrinkToFit(src, tc.maxW, tc.maxH)

			assert.Equal(t, tc.wantW, out.Bounds().Dx())
			assert.Equal(t, tc.wantH, out.Bounds().Dy())
		})
	}
}

func TestShrinkToFitReturnsSameImageWhenInside(t *testing.T) {

	src := image.NewRGBA(image.Rect(0, 0, 100, 100))

	out := ShrinkToFit(src, 640, 640)
	assert.Same(t, src, out)
}

func TestJPEGBytes(t *testing.T) {

	src := image.NewRGBA(image.Rect(0, 0, 64, 48))

	data, err := JPEGBytes(src, 85)
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, 64, decoded.Bounds().Dx())
	assert.Equal(t, 48, decoded.Bounds().Dy())
}

func TestJPEGBytesBadQualityFallsBack(t *testing.T) {

	src := image.NewRGBA(image.Rect(0, 0, 8, 8))

	data, err := JPEGBytes(src, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}
