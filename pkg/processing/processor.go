package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"

	"github.com/menta2k/cube-segmenter/pkg/types"
)

// DefaultWorkingSize is the smaller-axis size images are normalized to before detection
const DefaultWorkingSize = 480

// Processor handles image processing operations
type Processor struct{}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{}
}

// ScaleSmallerAxis scales the smaller axis of an image to size while keeping
// the aspect ratio. A 1920x1080 image with size=480 becomes 853x480, and a
// 1080x1920 image becomes 480x853. Fractional sizes are truncated.
func (p *Processor) ScaleSmallerAxis(img image.Image, size int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	var newW, newH int
	if w < h {
		newW = size
		newH = size * h / w
	} else {
		newH = size
		newW = size * w / h
	}
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	return imaging.Resize(img, newW, newH, imaging.Linear)
}

// Encode serializes an image as jpg, png or webp
func (p *Processor) Encode(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, err
		}
	case "webp":
		if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
			return nil, err
		}
	default: // jpg
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// PrepareImageForModel converts an image to base64 for sending to vision models.
// Images whose long side exceeds maxDim are downscaled first.
func (p *Processor) PrepareImageForModel(img image.Image, format string, maxDim int, quality int) (string, error) {
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}

	data, err := p.Encode(img, format, quality)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(f, img, opts)
	case "png":
		return imaging.Save(img, path)
	case "jpg", "jpeg", "":
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// Overlay describes what a debug image should show. Nil or empty fields are skipped.
type Overlay struct {
	Bounds  *types.BoundingBox
	Padded  *types.BoundingBox
	Contour types.Contour
	Corners []image.Point
	Center  *image.Point
}

// CreateDebugOverlay draws detection artifacts on a copy of img
func (p *Processor) CreateDebugOverlay(img image.Image, o Overlay) image.Image {
	dc := gg.NewContextForImage(img)
	w, h := dc.Width(), dc.Height()
	stroke := max(1, 0.003*float64(min(w, h)))

	white := color.NRGBA{255, 255, 255, 255} // bounds
	gray := color.NRGBA{160, 160, 160, 255}  // padded bounds
	green := color.NRGBA{0, 255, 0, 255}     // raw contour
	blue := color.NRGBA{0, 128, 255, 255}    // reduced corners
	red := color.NRGBA{255, 0, 0, 255}       // center

	dc.SetLineWidth(stroke)
	if o.Padded != nil {
		drawBox(dc, *o.Padded, gray)
	}
	if o.Bounds != nil {
		drawBox(dc, *o.Bounds, white)
	}

	if len(o.Contour) > 1 {
		dc.SetColor(green)
		dc.MoveTo(float64(o.Contour[0].X), float64(o.Contour[0].Y))
		for _, pt := range o.Contour[1:] {
			dc.LineTo(float64(pt.X), float64(pt.Y))
		}
		dc.ClosePath()
		dc.Stroke()
	}

	dc.SetColor(blue)
	for _, pt := range o.Corners {
		dc.DrawCircle(float64(pt.X), float64(pt.Y), 4)
		dc.Fill()
	}

	if o.Center != nil {
		dc.SetColor(red)
		dc.DrawCircle(float64(o.Center.X), float64(o.Center.Y), 5)
		dc.Fill()
	}

	return dc.Image()
}

func drawBox(dc *gg.Context, b types.BoundingBox, c color.Color) {
	dc.SetColor(c)
	dc.DrawRectangle(float64(b.MinX), float64(b.MinY), float64(b.MaxX-b.MinX), float64(b.MaxY-b.MinY))
	dc.Stroke()
}
