package depth

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// ErrEmptyMask is returned when a mask has no foreground pixels to search
var ErrEmptyMask = errors.New("mask has no foreground pixels")

// Locator finds the cube center inside a crop, in crop-local pixels
type Locator interface {
	Locate(ctx context.Context, crop image.Image, mask *image.Alpha) (image.Point, error)
}

// Estimator produces a depth map for an image
type Estimator interface {
	PredictDepth(ctx context.Context, img image.Image) (*Map, error)
}

// Sink receives intermediate images for debugging
type Sink interface {
	Write(ctx context.Context, img image.Image, stage string)
}

// DepthLocator picks the masked pixel closest to the camera. On a cube seen
// corner-on that is the vertex nearest the viewer.
type DepthLocator struct {
	estimator Estimator
	debug     Sink
}

// NewDepthLocator creates a locator backed by a depth estimator
func NewDepthLocator(estimator Estimator) *DepthLocator {
	return &DepthLocator{estimator: estimator}
}

// WithDebug makes the locator write the rendered depth map under stage "depth"
func (l *DepthLocator) WithDebug(sink Sink) *DepthLocator {
	l.debug = sink
	return l
}

// Locate runs depth estimation on crop and returns the masked argmax
func (l *DepthLocator) Locate(ctx context.Context, crop image.Image, mask *image.Alpha) (image.Point, error) {
	if !HasForeground(mask) {
		return image.Point{}, ErrEmptyMask
	}

	m, err := l.estimator.PredictDepth(ctx, crop)
	if err != nil {
		return image.Point{}, fmt.Errorf("depth prediction failed: %w", err)
	}

	b := crop.Bounds()
	m = m.Resize(b.Dx(), b.Dy())
	if l.debug != nil {
		l.debug.Write(ctx, m.Image(), "depth")
	}

	return MaskedArgmax(m, mask)
}

// MaskedArgmax returns the position of the largest depth among nonzero mask
// pixels. Ties go to the first pixel in row-major order.
func MaskedArgmax(m *Map, mask *image.Alpha) (image.Point, error) {
	w, h := m.Dims()
	mb := mask.Bounds()

	best := image.Pt(-1, -1)
	var bestVal float64
	for y := 0; y < min(h, mb.Dy()); y++ {
		for x := 0; x < min(w, mb.Dx()); x++ {
			if mask.AlphaAt(mb.Min.X+x, mb.Min.Y+y).A == 0 {
				continue
			}
			if v := m.At(x, y); best.X < 0 || v > bestVal {
				best, bestVal = image.Pt(x, y), v
			}
		}
	}
	if best.X < 0 {
		return image.Point{}, ErrEmptyMask
	}
	return best, nil
}

// CentroidLocator returns the mean position of the mask foreground. It serves
// backends that have no depth model.
type CentroidLocator struct{}

// Locate ignores the crop pixels and averages the mask
func (CentroidLocator) Locate(_ context.Context, _ image.Image, mask *image.Alpha) (image.Point, error) {
	if mask == nil {
		return image.Point{}, ErrEmptyMask
	}
	b := mask.Bounds()

	var sx, sy, n int
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if mask.AlphaAt(x, y).A != 0 {
				sx += x - b.Min.X
				sy += y - b.Min.Y
				n++
			}
		}
	}
	if n == 0 {
		return image.Point{}, ErrEmptyMask
	}
	return image.Pt(sx/n, sy/n), nil
}
