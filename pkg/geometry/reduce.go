// Package geometry turns raw segmentation contours into labeled cube corners
// and maps points between image coordinate spaces.
package geometry

import (
	"math"

	"github.com/golang/geo/r2"

	"github.com/menta2k/cube-segmenter/pkg/types"
)

// DefaultEpsilon is the reduction tolerance in pixels for a ReferenceSize working image
const DefaultEpsilon = 15.0

// ReferenceSize is the smaller-axis size DefaultEpsilon was tuned for
const ReferenceSize = 480

// ScaledEpsilon scales a tolerance tuned for ReferenceSize to another working size
func ScaledEpsilon(epsilon float64, workingSize int) float64 {
	if workingSize <= 0 {
		return epsilon
	}
	return epsilon * float64(workingSize) / ReferenceSize
}

// ReduceContour approximates a closed contour with fewer vertices using
// Douglas-Peucker with the given tolerance. Surviving points keep their
// original relative order. It never fails; the caller judges the vertex count.
//
// Passes repeat on the survivors until none is dropped, so reducing the
// result again returns it unchanged.
func ReduceContour(contour types.Contour, epsilon float64) types.Contour {
	out := append(types.Contour(nil), contour...)
	for len(out) >= 3 {
		next := reducePass(out, epsilon)
		if len(next) == len(out) {
			break
		}
		out = next
	}
	return out
}

// reducePass runs one farthest-pair split, Douglas-Peucker and flat-vertex cleanup
func reducePass(contour types.Contour, epsilon float64) types.Contour {
	n := len(contour)
	pts := make([]r2.Point, n)
	for i, p := range contour {
		pts[i] = r2.Point{X: float64(p.X), Y: float64(p.Y)}
	}

	a, b := farthestPair(pts)
	keep := make([]bool, n)
	keep[a] = true
	keep[b] = true
	simplify(pts, a, b, epsilon, keep)
	simplify(pts, b, a, epsilon, keep)

	idx := make([]int, 0, 8)
	for i, k := range keep {
		if k {
			idx = append(idx, i)
		}
	}
	idx = dropFlatVertices(pts, idx, epsilon)

	out := make(types.Contour, len(idx))
	for i, j := range idx {
		out[i] = contour[j]
	}
	return out
}

// simplify marks vertices to keep on the cyclic chain from..to (exclusive)
func simplify(pts []r2.Point, from, to int, epsilon float64, keep []bool) {
	n := len(pts)
	maxDist, maxIdx := -1.0, -1
	for i := (from + 1) % n; i != to; i = (i + 1) % n {
		if d := lineDistance(pts[i], pts[from], pts[to]); d > maxDist {
			maxDist, maxIdx = d, i
		}
	}
	if maxIdx < 0 || maxDist <= epsilon {
		return
	}
	keep[maxIdx] = true
	simplify(pts, from, maxIdx, epsilon, keep)
	simplify(pts, maxIdx, to, epsilon, keep)
}

// dropFlatVertices removes survivors that sit within epsilon of the line
// through their neighbours. The split anchors are always kept by
// Douglas-Peucker even when they fall on a straight edge.
func dropFlatVertices(pts []r2.Point, idx []int, epsilon float64) []int {
	for len(idx) > 3 {
		minDist, minAt := math.Inf(1), -1
		for i := range idx {
			prev := pts[idx[(i+len(idx)-1)%len(idx)]]
			next := pts[idx[(i+1)%len(idx)]]
			if d := lineDistance(pts[idx[i]], prev, next); d < minDist {
				minDist, minAt = d, i
			}
		}
		if minDist > epsilon {
			break
		}
		idx = append(idx[:minAt], idx[minAt+1:]...)
	}
	return idx
}

// farthestPair finds two mutually distant vertices to split the closed curve on
func farthestPair(pts []r2.Point) (int, int) {
	a := 0
	b := farthestFrom(pts, a)
	for i := 0; i < 3; i++ {
		c := farthestFrom(pts, b)
		if c == a {
			break
		}
		a, b = b, c
	}
	return a, b
}

func farthestFrom(pts []r2.Point, from int) int {
	best, bestDist := (from+1)%len(pts), -1.0
	for i, p := range pts {
		if i == from {
			continue
		}
		if d := p.Sub(pts[from]).Norm(); d > bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// lineDistance is the perpendicular distance from p to the line through a and b
func lineDistance(p, a, b r2.Point) float64 {
	d := b.Sub(a)
	length := d.Norm()
	if length == 0 {
		return p.Sub(a).Norm()
	}
	return math.Abs(d.Cross(p.Sub(a))) / length
}
