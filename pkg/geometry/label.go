package geometry

import (
	"errors"
	"fmt"
	"image"

	"github.com/menta2k/cube-segmenter/pkg/types"
)

// CornerCount is the number of vertices a reduced cube silhouette must have
const CornerCount = 6

// CornerLabels lists the corner keys in the order they are assigned,
// starting at the topmost vertex
var CornerLabels = [CornerCount]string{"top", "topLeft", "bottomLeft", "bottom", "bottomRight", "topRight"}

// ErrNotHexagon is returned when labeling is attempted on anything but six points
var ErrNotHexagon = errors.New("contour is not a hexagon")

// Corners holds the six labeled vertices in pixel space
type Corners struct {
	Top         image.Point
	TopLeft     image.Point
	BottomLeft  image.Point
	Bottom      image.Point
	BottomRight image.Point
	TopRight    image.Point
}

// Points returns the corners in label order
func (c Corners) Points() [CornerCount]image.Point {
	return [CornerCount]image.Point{c.Top, c.TopLeft, c.BottomLeft, c.Bottom, c.BottomRight, c.TopRight}
}

// Segmentation combines the corners with a center point
func (c Corners) Segmentation(center types.Point) types.Segmentation {
	return types.Segmentation{
		Top:         types.PointFrom(c.Top),
		TopLeft:     types.PointFrom(c.TopLeft),
		BottomLeft:  types.PointFrom(c.BottomLeft),
		Bottom:      types.PointFrom(c.Bottom),
		BottomRight: types.PointFrom(c.BottomRight),
		TopRight:    types.PointFrom(c.TopRight),
		Center:      center,
	}
}

// IndexOfTopmost returns the index of the point with the smallest y.
// Ties resolve to the first occurrence; -1 for an empty slice.
func IndexOfTopmost(points []image.Point) int {
	idx := -1
	for i, p := range points {
		if idx < 0 || p.Y < points[idx].Y {
			idx = i
		}
	}
	return idx
}

// LabelCorners assigns the six points to CornerLabels, walking the input
// order from the topmost point. Winding is taken as given.
func LabelCorners(points []image.Point) (Corners, error) {
	if len(points) != CornerCount {
		return Corners{}, fmt.Errorf("%w: got %d points", ErrNotHexagon, len(points))
	}

	start := IndexOfTopmost(points)
	at := func(offset int) image.Point {
		return points[(start+offset)%CornerCount]
	}

	return Corners{
		Top:         at(0),
		TopLeft:     at(1),
		BottomLeft:  at(2),
		Bottom:      at(3),
		BottomRight: at(4),
		TopRight:    at(5),
	}, nil
}

// Winding is the rotational direction of a polygon as seen on screen (y down)
type Winding int

const (
	Degenerate Winding = iota
	Clockwise
	CounterClockwise
)

// LabelWinding is the direction LabelCorners expects: top, then the left side
const LabelWinding = CounterClockwise

func (w Winding) String() string {
	switch w {
	case Clockwise:
		return "clockwise"
	case CounterClockwise:
		return "counter-clockwise"
	default:
		return "degenerate"
	}
}

// SignedArea is the shoelace area of a closed polygon in y-down pixel space.
// Positive means clockwise on screen.
func SignedArea(points []image.Point) float64 {
	var sum int
	for i, p := range points {
		q := points[(i+1)%len(points)]
		sum += p.X*q.Y - q.X*p.Y
	}
	return float64(sum) / 2
}

// WindingOf reports the on-screen winding of a closed polygon
func WindingOf(points []image.Point) Winding {
	area := SignedArea(points)
	switch {
	case area > 0:
		return Clockwise
	case area < 0:
		return CounterClockwise
	default:
		return Degenerate
	}
}

// OrientTo returns the points reversed when their winding opposes want.
// Degenerate polygons are returned unchanged.
func OrientTo(points []image.Point, want Winding) []image.Point {
	got := WindingOf(points)
	if got == Degenerate || got == want {
		return points
	}
	out := make([]image.Point, len(points))
	for i, p := range points {
		out[len(points)-1-i] = p
	}
	return out
}
