package mask

import (
	"image"
	"testing"
)

func mouthPolygon() []image.Point {
	return []image.Point{
		{40, 60}, {50, 55}, {60, 55}, {70, 60}, {60, 68}, {50, 68},
	}
}

func TestBuildStaysWithinDilatedSuperset(t *testing.T) {
	builder := Builder{DilateIterations: 3, BlurKernel: 9}
	bounds := image.Rect(0, 0, 120, 120)
	polygon := mouthPolygon()

	built, err := builder.Build(bounds, polygon)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if built.Bounds() != bounds {
		t.Fatalf("mask bounds %v, want %v", built.Bounds(), bounds)
	}

	// Anything non-zero must lie inside the polygon bounding box expanded by
	// the dilation reach plus the blur radius.
	reach := builder.DilateIterations + builder.BlurKernel/2
	box := image.Rect(40, 55, 71, 69).Inset(-reach)
	for y := 0; y < 120; y++ {
		for x := 0; x < 120; x++ {
			if built.GrayAt(x, y).Y != 0 && !image.Pt(x, y).In(box) {
				t.Fatalf("mask set at (%d,%d) outside dilated superset %v", x, y, box)
			}
		}
	}

	// The polygon interior itself must be fully covered.
	if built.GrayAt(55, 61).Y == 0 {
		t.Fatal("polygon interior should be masked")
	}
}

func TestBuildEdgesAreGraduated(t *testing.T) {
	builder := Builder{DilateIterations: 8, BlurKernel: 15}
	bounds := image.Rect(0, 0, 160, 160)

	built, err := builder.Build(bounds, []image.Point{{60, 70}, {100, 70}, {100, 100}, {60, 100}})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// After the blur no pixel may jump from 0 straight to 255 against a
	// horizontal or vertical neighbour.
	for y := 0; y < 160; y++ {
		for x := 0; x < 159; x++ {
			a := built.GrayAt(x, y).Y
			b := built.GrayAt(x+1, y).Y
			if (a == 0 && b == 255) || (a == 255 && b == 0) {
				t.Fatalf("hard horizontal edge at (%d,%d)", x, y)
			}
		}
	}
	for y := 0; y < 159; y++ {
		for x := 0; x < 160; x++ {
			a := built.GrayAt(x, y).Y
			b := built.GrayAt(x, y+1).Y
			if (a == 0 && b == 255) || (a == 255 && b == 0) {
				t.Fatalf("hard vertical edge at (%d,%d)", x, y)
			}
		}
	}
}

func TestBuildRejectsDegenerateInput(t *testing.T) {
	builder := Builder{DilateIterations: 2, BlurKernel: 9}
	bounds := image.Rect(0, 0, 32, 32)

	if _, err := builder.Build(bounds, []image.Point{{1, 1}, {2, 2}}); err == nil {
		t.Fatal("expected error for fewer than 3 points")
	}
	if _, err := (Builder{BlurKernel: 8}).Build(bounds, mouthPolygon()); err == nil {
		t.Fatal("expected error for even blur kernel")
	}
}

func TestDilateExpandsRegion(t *testing.T) {
	m := image.NewGray(image.Rect(0, 0, 11, 11))
	m.Pix[m.PixOffset(5, 5)] = 0xFF

	dilate(m, 2)

	// Two iterations of 3x3 dilation reach a chebyshev distance of 2.
	for y := 0; y < 11; y++ {
		for x := 0; x < 11; x++ {
			dx, dy := x-5, y-5
			if dx < 0 {
				dx = -dx
			}
			if dy < 0 {
				dy = -dy
			}
			dist := dx
			if dy > dist {
				dist = dy
			}
			got := m.Pix[m.PixOffset(x, y)]
			if dist <= 2 && got != 0xFF {
				t.Fatalf("pixel (%d,%d) at distance %d should be set", x, y, dist)
			}
			if dist > 2 && got != 0 {
				t.Fatalf("pixel (%d,%d) at distance %d should be clear", x, y, dist)
			}
		}
	}
}

func TestConvexHullOrdersSquare(t *testing.T) {
	hull := convexHull([]image.Point{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {2, 2}})
	if len(hull) != 4 {
		t.Fatalf("expected 4 hull points, got %d: %v", len(hull), hull)
	}
	for _, p := range hull {
		if p == image.Pt(2, 2) {
			t.Fatal("interior point must not appear on hull")
		}
	}
}
