// Package mask builds soft mouth masks from landmark points.
//
// The construction order matters: fill the convex hull of the landmark
// polygon, dilate to cover mouth motion beyond the exact landmark positions,
// regularize the dilated silhouette, then Gaussian-blur for graduated edges.
// The blur is the single most important step for seamless compositing; a hard
// mask edge shows up as a visible boundary in the output video.
package mask

import (
	"fmt"
	"image"
	"math"
	"sort"
)

// Builder derives blend masks from mouth landmark points.
type Builder struct {
	// DilateIterations is the number of 3x3 dilation passes applied to the
	// filled polygon. Compensates for landmark jitter.
	DilateIterations int
	// BlurKernel is the Gaussian kernel size. Must be odd and >= 3.
	BlurKernel int
}

// Build returns a frame-sized intensity mask (0-255) for the mouth region
// described by points. At least three points are required to span an area.
func (b Builder) Build(bounds image.Rectangle, points []image.Point) (*image.Gray, error) {
	if len(points) < 3 {
		return nil, fmt.Errorf("mask build: need at least 3 points, got %d", len(points))
	}
	if b.BlurKernel < 3 || b.BlurKernel%2 == 0 {
		return nil, fmt.Errorf("mask build: blur kernel must be odd and >= 3, got %d", b.BlurKernel)
	}

	mask := image.NewGray(bounds)

	fillPolygon(mask, convexHull(points))

	if b.DilateIterations > 0 {
		dilate(mask, b.DilateIterations)
		// Re-fill the external contour of the dilated region so small
		// concavities introduced by dilation do not survive into the blend.
		fillPolygon(mask, convexHull(boundaryPixels(mask)))
	}

	gaussianBlur(mask, b.BlurKernel)
	return mask, nil
}

// convexHull computes the convex hull of points using the monotone chain
// algorithm. The result is in clockwise order without repetition.
func convexHull(points []image.Point) []image.Point {
	if len(points) < 3 {
		return append([]image.Point(nil), points...)
	}
	sorted := append([]image.Point(nil), points...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})

	var lower []image.Point
	for _, p := range sorted {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}

	var upper []image.Point
	for i := len(sorted) - 1; i >= 0; i-- {
		p := sorted[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}

	return append(lower[:len(lower)-1], upper[:len(upper)-1]...)
}

func cross(o, a, b image.Point) int {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// fillPolygon scanline-fills the polygon into the mask at full intensity.
// Degenerate polygons (collinear points) fill nothing.
func fillPolygon(mask *image.Gray, polygon []image.Point) {
	if len(polygon) < 3 {
		return
	}
	bounds := mask.Bounds()

	minY, maxY := polygon[0].Y, polygon[0].Y
	for _, p := range polygon[1:] {
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	if minY < bounds.Min.Y {
		minY = bounds.Min.Y
	}
	if maxY > bounds.Max.Y-1 {
		maxY = bounds.Max.Y - 1
	}

	for y := minY; y <= maxY; y++ {
		var xs []float64
		for i := range polygon {
			a := polygon[i]
			c := polygon[(i+1)%len(polygon)]
			if a.Y == c.Y {
				continue
			}
			lo, hi := a, c
			if lo.Y > hi.Y {
				lo, hi = hi, lo
			}
			// Half-open edge interval so shared vertices count once.
			if y < lo.Y || y >= hi.Y {
				continue
			}
			t := float64(y-lo.Y) / float64(hi.Y-lo.Y)
			xs = append(xs, float64(lo.X)+t*float64(hi.X-lo.X))
		}
		if len(xs) < 2 {
			continue
		}
		sort.Float64s(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			start := int(math.Ceil(xs[i]))
			end := int(math.Floor(xs[i+1]))
			if start < bounds.Min.X {
				start = bounds.Min.X
			}
			if end > bounds.Max.X-1 {
				end = bounds.Max.X - 1
			}
			for x := start; x <= end; x++ {
				mask.Pix[mask.PixOffset(x, y)] = 0xFF
			}
		}
	}
}

// boundaryPixels returns the leftmost and rightmost set pixel per row, which
// is sufficient input for a convex hull of the set region.
func boundaryPixels(mask *image.Gray) []image.Point {
	bounds := mask.Bounds()
	var points []image.Point
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		rowStart := mask.PixOffset(bounds.Min.X, y)
		row := mask.Pix[rowStart : rowStart+bounds.Dx()]
		first, last := -1, -1
		for x, v := range row {
			if v != 0 {
				if first < 0 {
					first = x
				}
				last = x
			}
		}
		if first >= 0 {
			points = append(points, image.Pt(bounds.Min.X+first, y))
			if last != first {
				points = append(points, image.Pt(bounds.Min.X+last, y))
			}
		}
	}
	return points
}
