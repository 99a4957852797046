package analyzer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strings"

	"github.com/chai2010/webp"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/cube-segmenter/pkg/types"
)

// ErrEmptyImage is returned when there are no bytes to decode
var ErrEmptyImage = errors.New("empty image data")

// DecodeError wraps a failure to turn request bytes into an image
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Format != "" {
		return fmt.Sprintf("failed to decode %s image: %v", e.Format, e.Err)
	}
	return fmt.Sprintf("failed to decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err means the input was not a usable image
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.Is(err, ErrEmptyImage) || errors.As(err, &de)
}

// ImageAnalyzer loads and validates input photos
type ImageAnalyzer struct {
	config Config
}

// Config holds configuration for the image analyzer
type Config struct {
	SupportedFormats []string
	MinImageSize     int
	// MaxAspectRatio bounds long side / short side. Scaling the short side up
	// to the working size makes a thin strip grow with the ratio.
	MaxAspectRatio float64
	// MaxPixels bounds width*height, checked from the header before decoding
	MaxPixels int
}

// DefaultConfig returns the formats the HTTP endpoint accepts
func DefaultConfig() Config {
	return Config{
		SupportedFormats: []string{"jpeg", "png", "webp", "gif", "bmp"},
		MinImageSize:     1,
		MaxAspectRatio:   8,
		MaxPixels:        50_000_000,
	}
}

// New creates a new ImageAnalyzer with default configuration
func New() *ImageAnalyzer {
	return &ImageAnalyzer{config: DefaultConfig()}
}

// NewWithConfig creates a new ImageAnalyzer with custom configuration
func NewWithConfig(config Config) *ImageAnalyzer {
	return &ImageAnalyzer{config: config}
}

// Decode turns raw bytes into an image. Every failure is a *DecodeError or ErrEmptyImage.
func (a *ImageAnalyzer) Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	if cfg, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		if err := a.checkDimensions(cfg.Width, cfg.Height); err != nil {
			return nil, &DecodeError{Format: format, Err: err}
		}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		// Fallback: libwebp handles a few encodings x/image/webp rejects
		if wimg, werr := webp.Decode(bytes.NewReader(data)); werr == nil {
			img, format, err = wimg, "webp", nil
		}
	}
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	if !a.isFormatSupported(format) {
		return nil, &DecodeError{Format: format, Err: fmt.Errorf("unsupported image format: %s", format)}
	}

	if err := a.ValidateImage(img); err != nil {
		return nil, &DecodeError{Format: format, Err: err}
	}

	return img, nil
}

// LoadImageFromReader loads an image from an io.Reader
func (a *ImageAnalyzer) LoadImageFromReader(reader io.Reader) (image.Image, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return a.Decode(data)
}

// LoadImage loads an image from file
func (a *ImageAnalyzer) LoadImage(filepath string) (image.Image, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	return a.Decode(data)
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int
	Height      int
	AspectRatio float64
	Area        int
}

// Shape returns the info as a coordinate-mapping shape
func (i ImageInfo) Shape() types.Shape {
	return types.Shape{Width: i.Width, Height: i.Height}
}

// GetImageInfo returns basic information about an image
func (a *ImageAnalyzer) GetImageInfo(img image.Image) ImageInfo {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	info := ImageInfo{
		Width:  width,
		Height: height,
		Area:   width * height,
	}
	if height > 0 {
		info.AspectRatio = float64(width) / float64(height)
	}
	return info
}

// ValidateImage checks an image against the size and aspect ratio limits
func (a *ImageAnalyzer) ValidateImage(img image.Image) error {
	bounds := img.Bounds()
	return a.checkDimensions(bounds.Dx(), bounds.Dy())
}

func (a *ImageAnalyzer) checkDimensions(w, h int) error {
	if w < a.config.MinImageSize || h < a.config.MinImageSize || w < 1 || h < 1 {
		return fmt.Errorf("image too small: %dx%d (minimum: %d)", w, h, a.config.MinImageSize)
	}
	if a.config.MaxPixels > 0 && w*h > a.config.MaxPixels {
		return fmt.Errorf("image too large: %dx%d (maximum: %d pixels)", w, h, a.config.MaxPixels)
	}
	if a.config.MaxAspectRatio > 0 {
		long, short := max(w, h), min(w, h)
		if float64(long) > a.config.MaxAspectRatio*float64(short) {
			return fmt.Errorf("image aspect ratio too extreme: %dx%d (maximum: %g:1)", w, h, a.config.MaxAspectRatio)
		}
	}
	return nil
}

func (a *ImageAnalyzer) isFormatSupported(format string) bool {
	for _, supported := range a.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}
