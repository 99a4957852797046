package types

import "image"

// Point is an (x, y) pair either in pixel space or in normalized [0,1] space
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PointFrom converts an integer pixel coordinate into a Point
func PointFrom(p image.Point) Point {
	return Point{X: float64(p.X), Y: float64(p.Y)}
}

// Add offsets a point by an integer pixel delta
func (p Point) Add(d image.Point) Point {
	return Point{X: p.X + float64(d.X), Y: p.Y + float64(d.Y)}
}

// BoundingBox is a pixel rectangle in one image's coordinate space.
// Coordinates may be negative or exceed the image after padding.
type BoundingBox struct {
	MinX int `json:"minX"`
	MinY int `json:"minY"`
	MaxX int `json:"maxX"`
	MaxY int `json:"maxY"`
}

// Valid reports whether the box has non-negative extent
func (b BoundingBox) Valid() bool {
	return b.MinX <= b.MaxX && b.MinY <= b.MaxY
}

// Rect returns the box as an image.Rectangle (max exclusive)
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.MinX, b.MinY, b.MaxX, b.MaxY)
}

// Contour is an ordered closed polygon boundary in pixel space
type Contour []image.Point

// Shape is the (width, height) of an image, used for coordinate mapping
type Shape struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ShapeOf returns the shape of an image
func ShapeOf(img image.Image) Shape {
	b := img.Bounds()
	return Shape{Width: b.Dx(), Height: b.Dy()}
}

// Segmentation is the response body: six labeled corners plus the center.
// Field order matches the wire format.
type Segmentation struct {
	Top         Point `json:"top"`
	TopLeft     Point `json:"topLeft"`
	BottomLeft  Point `json:"bottomLeft"`
	Bottom      Point `json:"bottom"`
	BottomRight Point `json:"bottomRight"`
	TopRight    Point `json:"topRight"`
	Center      Point `json:"center"`
}

// Map applies fn to all seven points
func (s Segmentation) Map(fn func(Point) Point) Segmentation {
	return Segmentation{
		Top:         fn(s.Top),
		TopLeft:     fn(s.TopLeft),
		BottomLeft:  fn(s.BottomLeft),
		Bottom:      fn(s.Bottom),
		BottomRight: fn(s.BottomRight),
		TopRight:    fn(s.TopRight),
		Center:      fn(s.Center),
	}
}

// Box represents a normalized bounding box with coordinates in [0,1] range,
// as returned by the vision-LLM backends
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// ToPixels converts a normalized box into a pixel BoundingBox for the given shape
func (b Box) ToPixels(s Shape) BoundingBox {
	fw, fh := float64(s.Width), float64(s.Height)
	return BoundingBox{
		MinX: int(b.X * fw),
		MinY: int(b.Y * fh),
		MaxX: int((b.X + b.W) * fw),
		MaxY: int((b.Y + b.H) * fh),
	}
}

// LocateResult is the JSON document the vision-LLM backends are prompted to return
type LocateResult struct {
	Found      bool    `json:"found"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}
