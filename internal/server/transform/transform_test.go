package transform

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/dmitrijs2005/gophblog/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

func TestApply_ResizesKeepingAspect(t *testing.T) {
	out, err := Apply(encodePNG(t, testImage(200, 100)), "image/png", Options{Width: 50})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 50, img.Bounds().Dx())
	assert.Equal(t, 25, img.Bounds().Dy())
}

func TestApply_NeverUpscales(t *testing.T) {
	out, err := Apply(encodePNG(t, testImage(40, 20)), "image/png", Options{Width: 400})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 40, img.Bounds().Dx())
}

func TestApply_JPEGQuality(t *testing.T) {
	src := encodeJPEG(t, testImage(64, 64))

	low, err := Apply(src, "image/jpeg", Options{Quality: 10})
	require.NoError(t, err)
	high, err := Apply(src, "image/jpeg", Options{Quality: 100})
	require.NoError(t, err)

	assert.Less(t, len(low), len(high))
	_, err = jpeg.Decode(bytes.NewReader(low))
	assert.NoError(t, err)
}

func TestApply_Failures(t *testing.T) {
	_, err := Apply([]byte("not an image"), "image/png", Options{Width: 10})
	assert.ErrorIs(t, err, common.ErrTransformFailure)

	_, err = Apply([]byte("%PDF"), "application/pdf", Options{Width: 10})
	assert.ErrorIs(t, err, common.ErrTransformFailure)
}

func TestOptions_IsZero(t *testing.T) {
	assert.True(t, Options{}.IsZero())
	assert.False(t, Options{Width: 10}.IsZero())
	assert.False(t, Options{Quality: 80}.IsZero())
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("image/jpeg"))
	assert.False(t, Supported("image/svg+xml"))
}
