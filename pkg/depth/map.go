package depth

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"gonum.org/v1/gonum/mat"
)

// Map is a per-pixel relative depth estimate. Larger values are closer to
// the camera. Rows run along y.
type Map struct {
	data *mat.Dense
}

// NewMap builds a Map from rows of equal length
func NewMap(rows [][]float64) (*Map, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, errors.New("empty depth map")
	}
	w := len(rows[0])
	flat := make([]float64, 0, w*len(rows))
	for y, row := range rows {
		if len(row) != w {
			return nil, fmt.Errorf("depth row %d has %d values, want %d", y, len(row), w)
		}
		flat = append(flat, row...)
	}
	return &Map{data: mat.NewDense(len(rows), w, flat)}, nil
}

// FromImage reads a single-channel depth image. 16-bit grayscale keeps its
// full range; anything else is converted through color.Gray16Model.
func FromImage(img image.Image) *Map {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	data := mat.NewDense(max(h, 1), max(w, 1), nil)

	switch src := img.(type) {
	case *image.Gray16:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				data.Set(y, x, float64(src.Gray16At(b.Min.X+x, b.Min.Y+y).Y))
			}
		}
	case *image.Gray:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				data.Set(y, x, float64(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y))
			}
		}
	default:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				g := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16)
				data.Set(y, x, float64(g.Y))
			}
		}
	}
	return &Map{data: data}
}

// Dims returns width and height
func (m *Map) Dims() (int, int) {
	r, c := m.data.Dims()
	return c, r
}

// At returns the depth at pixel (x, y)
func (m *Map) At(x, y int) float64 {
	return m.data.At(y, x)
}

// MinMax returns the smallest and largest depth values
func (m *Map) MinMax() (float64, float64) {
	return mat.Min(m.data), mat.Max(m.data)
}

// Resize resamples the map to w x h with nearest-neighbour lookup so
// values are never blended across object edges
func (m *Map) Resize(w, h int) *Map {
	sw, sh := m.Dims()
	if sw == w && sh == h {
		return m
	}
	out := mat.NewDense(h, w, nil)
	for y := 0; y < h; y++ {
		sy := y * sh / h
		for x := 0; x < w; x++ {
			out.Set(y, x, m.data.At(sy, x*sw/w))
		}
	}
	return &Map{data: out}
}

// Image renders the map as 16-bit grayscale stretched to the full range
func (m *Map) Image() *image.Gray16 {
	w, h := m.Dims()
	lo, hi := m.MinMax()
	span := hi - lo

	img := image.NewGray16(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var v float64
			if span > 0 {
				v = (m.At(x, y) - lo) / span
			}
			img.SetGray16(x, y, color.Gray16{Y: uint16(v * 0xffff)})
		}
	}
	return img
}
