// Package geom holds the 2D primitives shared by the document model and the
// transform engine: points, axis-aligned rectangles, elliptical arc segments
// and overlay snapping.
package geom

import "math"

// Epsilon is the tolerance used for geometric comparisons.
const Epsilon = 1e-9

// Point represents a 2D point or vector.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt is a convenience function to create a Point.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Add returns the sum of two points (vector addition).
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns the difference of two points (vector subtraction).
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Mul returns the point scaled by a scalar.
func (p Point) Mul(s float64) Point {
	return Point{X: p.X * s, Y: p.Y * s}
}

// Div returns the point divided by a scalar.
func (p Point) Div(s float64) Point {
	return Point{X: p.X / s, Y: p.Y / s}
}

// Scale multiplies each axis independently.
func (p Point) Scale(sx, sy float64) Point {
	return Point{X: p.X * sx, Y: p.Y * sy}
}

// Length returns the length of the vector.
func (p Point) Length() float64 {
	return math.Hypot(p.X, p.Y)
}

// Distance returns the distance between two points.
func (p Point) Distance(q Point) float64 {
	return p.Sub(q).Length()
}

// Rotate returns the vector rotated by angle radians around the origin.
// Screen coordinates grow downwards, so a positive angle turns clockwise on
// screen.
func (p Point) Rotate(angle float64) Point {
	cos := math.Cos(angle)
	sin := math.Sin(angle)
	return Point{
		X: p.X*cos - p.Y*sin,
		Y: p.X*sin + p.Y*cos,
	}
}

// RotateAbout rotates p by angle radians around center.
func (p Point) RotateAbout(center Point, angle float64) Point {
	return center.Add(p.Sub(center).Rotate(angle))
}

// Approx reports whether both coordinates are within tol of q.
func (p Point) Approx(q Point, tol float64) bool {
	return math.Abs(p.X-q.X) <= tol && math.Abs(p.Y-q.Y) <= tol
}

// IsZero reports whether the point is the origin.
func (p Point) IsZero() bool {
	return p.X == 0 && p.Y == 0
}

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// Radians converts degrees to radians.
func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// NormalizeDegrees folds an angle into [0, 360).
func NormalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg -= 360
	}
	return deg
}

// NormalizeRadians folds an angle into [0, 2π).
func NormalizeRadians(rad float64) float64 {
	rad = math.Mod(rad, 2*math.Pi)
	if rad < 0 {
		rad += 2 * math.Pi
	}
	if rad >= 2*math.Pi {
		rad -= 2 * math.Pi
	}
	return rad
}
