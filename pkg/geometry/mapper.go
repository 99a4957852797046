package geometry

import "github.com/menta2k/cube-segmenter/pkg/types"

// Normalize expresses a pixel point as fractions of the image width and height.
// Values are not clamped.
func Normalize(p types.Point, s types.Shape) types.Point {
	return types.Point{
		X: p.X / float64(s.Width),
		Y: p.Y / float64(s.Height),
	}
}

// Denormalize is the inverse of Normalize
func Denormalize(p types.Point, s types.Shape) types.Point {
	return types.Point{
		X: p.X * float64(s.Width),
		Y: p.Y * float64(s.Height),
	}
}

// Rescale maps a point computed against one image onto another image of a
// different resolution, scaling each axis independently
func Rescale(p types.Point, from, to types.Shape) types.Point {
	return types.Point{
		X: p.X * float64(to.Width) / float64(from.Width),
		Y: p.Y * float64(to.Height) / float64(from.Height),
	}
}
