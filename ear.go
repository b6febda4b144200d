package vigil

import (
	"errors"
	"math"
)

// minCornerDist is the smallest horizontal eye extent considered measurable.
const minCornerDist = 1e-9

var (
	// ErrDegenerateEye is returned when the two eye corners coincide.
	ErrDegenerateEye = errors.New("degenerate eye landmarks: corner points coincide")
	// ErrNoEyes is returned when no eye landmarks were provided.
	ErrNoEyes = errors.New("no eye landmarks provided")
)

// Point is a two dimensional point in image space.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Dist returns the Euclidean distance between two points.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// EyeLandmarks holds the six eye contour points in canonical order:
// outer corner, two upper lid points, inner corner, two lower lid points.
type EyeLandmarks [6]Point

// Translate returns the landmarks shifted by (dx, dy).
func (e EyeLandmarks) Translate(dx, dy float64) EyeLandmarks {
	for i := range e {
		e[i].X += dx
		e[i].Y += dy
	}
	return e
}

// Scale returns the landmarks scaled by k around the origin.
func (e EyeLandmarks) Scale(k float64) EyeLandmarks {
	for i := range e {
		e[i].X *= k
		e[i].Y *= k
	}
	return e
}

// EAR computes the eye aspect ratio of the landmark set:
//
//	(|p1-p5| + |p2-p4|) / (2 * |p0-p3|)
//
// The result is never negative. It returns ErrDegenerateEye when the corner points coincide.
func EAR(eye EyeLandmarks) (float64, error) {
	width := eye[0].Dist(eye[3])
	if width < minCornerDist {
		return 0, ErrDegenerateEye
	}
	a := eye[1].Dist(eye[5])
	b := eye[2].Dist(eye[4])

	return (a + b) / (2.0 * width), nil
}

// MeanEAR averages the eye aspect ratio over all the non-degenerate eyes.
func MeanEAR(eyes ...EyeLandmarks) (float64, error) {
	if len(eyes) == 0 {
		return 0, ErrNoEyes
	}

	var (
		sum float64
		n   int
	)
	for _, eye := range eyes {
		ear, err := EAR(eye)
		if err != nil {
			continue
		}
		sum += ear
		n++
	}
	if n == 0 {
		return 0, ErrDegenerateEye
	}
	return sum / float64(n), nil
}
