package media

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Sentinel errors for image intake.
var (
	ErrUnsupportedImage = errors.New("unsupported image type")
	ErrImageTooLarge    = errors.New("image too large")
	ErrEmptyImage       = errors.New("image is empty")
)

// Allowed image MIME types.
var allowedMIMETypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
}

const jpegQuality = 85

// ImageOptions bounds accepted images. MaxPixels caps the decoded size,
// which a small compressed file can declare far beyond MaxBytes.
type ImageOptions struct {
	MaxBytes     int64
	MaxPixels    int64
	MaxDimension int
}

func (o ImageOptions) withDefaults() ImageOptions {
	if o.MaxBytes <= 0 {
		o.MaxBytes = 10 * 1024 * 1024
	}
	if o.MaxPixels <= 0 {
		o.MaxPixels = 24_000_000
	}
	if o.MaxDimension <= 0 {
		o.MaxDimension = 1024
	}
	return o
}

// NormalizeImage validates raw image bytes, shrinks the picture to fit a
// MaxDimension square, flattens it onto white and returns it as base64 JPEG.
func NormalizeImage(data []byte, opts ImageOptions) (string, error) {
	opts = opts.withDefaults()

	if len(data) == 0 {
		return "", ErrEmptyImage
	}
	if int64(len(data)) > opts.MaxBytes {
		return "", fmt.Errorf("%w: %d bytes (max: %d)", ErrImageTooLarge, len(data), opts.MaxBytes)
	}

	mime := mimetype.Detect(data)
	contentType := strings.SplitN(mime.String(), ";", 2)[0]
	if _, ok := allowedMIMETypes[contentType]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedImage, contentType)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: decode header: %v", ErrUnsupportedImage, err)
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > opts.MaxPixels {
		return "", fmt.Errorf("%w: %dx%d pixels (max: %d)", ErrImageTooLarge, cfg.Width, cfg.Height, opts.MaxPixels)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: decode: %v", ErrUnsupportedImage, err)
	}

	bounds := fitWithin(src.Bounds(), opts.MaxDimension)
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, bounds, src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// fitWithin returns the target rectangle keeping aspect ratio; images that
// already fit keep their size.
func fitWithin(b image.Rectangle, max int) image.Rectangle {
	w, h := b.Dx(), b.Dy()
	if w <= max && h <= max {
		return image.Rect(0, 0, w, h)
	}
	if w >= h {
		return image.Rect(0, 0, max, maxInt(1, h*max/w))
	}
	return image.Rect(0, 0, maxInt(1, w*max/h), max)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
