// Package ocr turns prescription images into raw text. Engines live in
// subpackages; this package holds the shared contract and input validation.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	ErrUnsupportedImage = errors.New("unsupported image")
	ErrExtraction       = errors.New("text extraction failed")
)

// Format is the decoded container format of an uploaded image.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatGIF  Format = "gif"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
	FormatWebP Format = "webp"
)

// Extractor recognizes text in an encoded image.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, image []byte) (string, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, image []byte) (string, error)

func (f ExtractorFunc) Name() string { return "func" }

func (f ExtractorFunc) Extract(ctx context.Context, image []byte) (string, error) {
	return f(ctx, image)
}

// Sniff checks that data is a decodable image no larger than maxBytes and
// returns its format. maxBytes <= 0 disables the size check.
func Sniff(data []byte, maxBytes int) (Format, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty payload", ErrUnsupportedImage)
	}
	if maxBytes > 0 && len(data) > maxBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrUnsupportedImage, len(data), maxBytes)
	}

	cfg, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return "", fmt.Errorf("%w: empty image bounds", ErrUnsupportedImage)
	}

	switch format := Format(name); format {
	case FormatPNG, FormatJPEG, FormatGIF, FormatBMP, FormatTIFF, FormatWebP:
		return format, nil
	default:
		return "", fmt.Errorf("%w: format %s", ErrUnsupportedImage, name)
	}
}
