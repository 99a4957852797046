package depth

import (
	"image"

	"golang.org/x/image/vector"

	"github.com/menta2k/cube-segmenter/pkg/types"
)

// FillMask rasterizes the closed contour into a binary mask covering rect.
// Contour points are in the same space as rect and are shifted so rect.Min
// lands on the mask origin. Pixels at least half covered are set to 0xff.
func FillMask(contour types.Contour, rect image.Rectangle) *image.Alpha {
	w, h := rect.Dx(), rect.Dy()
	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	if len(contour) < 3 || w <= 0 || h <= 0 {
		return mask
	}

	// vertices sit on pixel centers
	pt := func(p image.Point) (float32, float32) {
		return float32(p.X-rect.Min.X) + 0.5, float32(p.Y-rect.Min.Y) + 0.5
	}

	r := vector.NewRasterizer(w, h)
	r.MoveTo(pt(contour[0]))
	for _, p := range contour[1:] {
		r.LineTo(pt(p))
	}
	r.ClosePath()
	r.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})

	for i, a := range mask.Pix {
		if a >= 0x80 {
			mask.Pix[i] = 0xff
		} else {
			mask.Pix[i] = 0
		}
	}
	return mask
}

// HasForeground reports whether any mask pixel is nonzero
func HasForeground(mask *image.Alpha) bool {
	if mask == nil {
		return false
	}
	b := mask.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if mask.AlphaAt(x, y).A != 0 {
				return true
			}
		}
	}
	return false
}
