// Package faces locates faces and facial landmark points in video frames.
//
// The landmark scheme is fixed and ordered: both eyes first, then the outer
// mouth contour slots. The mouth sub-range deliberately covers only the outer
// lip contour; inner-lip points would drag the teeth boundary into the mask
// silhouette and are not part of the scheme.
package faces

import "image"

// Scheme indices. Every Landmarks value carries exactly SchemeSize slots in
// this order; unlocated slots hold the zero point.
const (
	PointLeftEye = iota
	PointRightEye
	MouthStart     = 2
	mouthSlots     = 8
	MouthEnd       = MouthStart + mouthSlots // exclusive
	SchemeSize     = MouthEnd
)

// Landmarks is the ordered point set for one detected face.
type Landmarks struct {
	// Box is the square detection region.
	Box image.Rectangle
	// Quality is the detector confidence score.
	Quality float32
	// Points holds SchemeSize entries in scheme order. A zero point means
	// the slot could not be located in this frame.
	Points [SchemeSize]image.Point
}

// Mouth returns the located outer-mouth points in scheme order. Fewer than
// three points cannot form a mask polygon; callers treat that as an
// undetected mouth.
func (l Landmarks) Mouth() []image.Point {
	points := make([]image.Point, 0, mouthSlots)
	for i := MouthStart; i < MouthEnd; i++ {
		if l.Points[i] != (image.Point{}) {
			points = append(points, l.Points[i])
		}
	}
	return points
}

// Locator detects faces and their landmark points in a single RGB frame.
// Zero detected faces is a normal outcome, not an error.
type Locator interface {
	Detect(frame *image.RGBA) ([]Landmarks, error)
}
