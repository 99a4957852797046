package cropper

import (
	"errors"
	"image"

	"github.com/disintegration/imaging"

	"github.com/menta2k/cube-segmenter/pkg/types"
)

// DefaultPadding is the margin added around detected bounds before segmentation
const DefaultPadding = 15

// ErrOutsideImage is returned when a region does not overlap the image at all
var ErrOutsideImage = errors.New("crop region lies outside the image")

// CropResult contains a cropped image and where it came from
type CropResult struct {
	Image image.Image
	// Region is the clamped rectangle in source-image pixels. Its Min is the
	// offset that maps crop-local points back to the source.
	Region image.Rectangle
}

// Offset returns the crop origin in source-image pixels
func (r CropResult) Offset() image.Point {
	return r.Region.Min
}

// Pad grows a box by n pixels on every side. The result is not clamped, so
// it may extend past the image edges.
func Pad(b types.BoundingBox, n int) types.BoundingBox {
	return types.BoundingBox{
		MinX: b.MinX - n,
		MinY: b.MinY - n,
		MaxX: b.MaxX + n,
		MaxY: b.MaxY + n,
	}
}

// Clamp intersects a box with the image bounds
func Clamp(b types.BoundingBox, img image.Image) image.Rectangle {
	return b.Rect().Intersect(img.Bounds())
}

// Crop cuts the part of img covered by b, clamped to the image
func Crop(img image.Image, b types.BoundingBox) (CropResult, error) {
	region := Clamp(b, img)
	if region.Empty() {
		return CropResult{}, ErrOutsideImage
	}

	return CropResult{
		Image:  imaging.Crop(img, region),
		Region: region,
	}, nil
}
