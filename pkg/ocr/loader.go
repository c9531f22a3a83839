package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMinUploadBytes = 100
	DefaultMaxUploadBytes = 10 << 20
	// DefaultMaxPixels caps declared dimensions before a full decode.
	DefaultMaxPixels = 40_000_000
)

// Limits bounds what Load accepts.
type Limits struct {
	MinBytes  int
	MaxBytes  int
	MaxPixels int
}

// DefaultLimits returns the upload bounds used by the HTTP endpoint.
func DefaultLimits() Limits {
	return Limits{
		MinBytes:  DefaultMinUploadBytes,
		MaxBytes:  DefaultMaxUploadBytes,
		MaxPixels: DefaultMaxPixels,
	}
}

// CheckSize applies only the byte-size bounds. Callers that know the size
// before reading the payload use it to reject early.
func (l Limits) CheckSize(n int64) error {
	if n < int64(l.MinBytes) {
		return fmt.Errorf("%w (%d bytes)", ErrTooSmall, n)
	}
	if l.MaxBytes > 0 && n > int64(l.MaxBytes) {
		return fmt.Errorf("%w (%d bytes, max %d)", ErrTooLarge, n, l.MaxBytes)
	}
	return nil
}

var decodableFormats = map[string]bool{
	"jpeg": true,
	"png":  true,
	"bmp":  true,
	"tiff": true,
	"webp": true,
}

// Load decodes raw upload bytes into a normalized Bitmap. EXIF orientation is
// always applied. Single-channel sources stay grayscale; everything else is
// flattened to opaque 3-channel color.
func Load(data []byte, limits Limits) (*Bitmap, error) {
	if err := limits.CheckSize(int64(len(data))); err != nil {
		return nil, err
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if !decodableFormats[format] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if limits.MaxPixels > 0 && cfg.Width*cfg.Height > limits.MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, limits.MaxPixels)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrDecode)
	}
	log.WithFields(logrus.Fields{
		"format": format,
		"width":  img.Bounds().Dx(),
		"height": img.Bounds().Dy(),
	}).Debug("image decoded")
	if isGrayModel(cfg.ColorModel) {
		return NewGrayBitmap(toGray(img)), nil
	}
	return NewColorBitmap(flattenOnWhite(img)), nil
}

func isGrayModel(m color.Model) bool {
	return m == color.GrayModel || m == color.Gray16Model
}
