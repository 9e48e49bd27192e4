// Package transform resizes and re-encodes images served by the media
// gateway.
package transform

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/dmitrijs2005/gophblog/internal/common"
)

const (
	// MaxWidth caps the requested width.
	MaxWidth = 4096
	// DefaultQuality is used for JPEG output when no quality is requested.
	DefaultQuality = 75
)

// Options describes a requested rendition. Zero values mean "unchanged".
type Options struct {
	Width   int
	Quality int
}

// IsZero reports whether no transform was requested.
func (o Options) IsZero() bool {
	return o.Width <= 0 && o.Quality <= 0
}

var formats = map[string]imaging.Format{
	"image/jpeg": imaging.JPEG,
	"image/jpg":  imaging.JPEG,
	"image/png":  imaging.PNG,
	"image/gif":  imaging.GIF,
	"image/bmp":  imaging.BMP,
	"image/tiff": imaging.TIFF,
}

// Supported reports whether contentType can be transformed.
func Supported(contentType string) bool {
	_, ok := formats[contentType]
	return ok
}

// Apply decodes data, scales it down to opts.Width (never up, keeping the
// aspect ratio) and re-encodes it in its original format. JPEG output uses
// opts.Quality. Every failure wraps common.ErrTransformFailure.
func Apply(data []byte, contentType string, opts Options) ([]byte, error) {
	format, ok := formats[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported type %q", common.ErrTransformFailure, contentType)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", common.ErrTransformFailure, err)
	}

	img = resize(img, opts.Width)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(quality(opts.Quality))); err != nil {
		return nil, fmt.Errorf("%w: encode: %v", common.ErrTransformFailure, err)
	}
	return buf.Bytes(), nil
}

func resize(img image.Image, width int) image.Image {
	if width <= 0 {
		return img
	}
	if width > MaxWidth {
		width = MaxWidth
	}
	if width >= img.Bounds().Dx() {
		return img
	}
	return imaging.Resize(img, width, 0, imaging.Lanczos)
}

func quality(q int) int {
	if q <= 0 || q > 100 {
		return DefaultQuality
	}
	return q
}
