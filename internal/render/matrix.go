package render

import (
	"math"

	"github.com/mapwright/mapwright/internal/geom"
)

// Matrix2D is a 2D affine transform laid out as [a, b, c, d, e, f]:
// | a  c  e |
// | b  d  f |
// | 0  0  1 |
type Matrix2D [6]float64

func Identity() Matrix2D {
	return Matrix2D{1, 0, 0, 1, 0, 0}
}

func Translate(tx, ty float64) Matrix2D {
	return Matrix2D{1, 0, 0, 1, tx, ty}
}

func Scale(sx, sy float64) Matrix2D {
	return Matrix2D{sx, 0, 0, sy, 0, 0}
}

// View maps world coordinates to canvas pixels for a map scrolled to pan
// and magnified by zoom.
func View(pan geom.Point, zoom float64) Matrix2D {
	return Scale(zoom, zoom).Multiply(Translate(-pan.X, -pan.Y))
}

// Multiply returns m * other: other is applied first.
func (m Matrix2D) Multiply(other Matrix2D) Matrix2D {
	return Matrix2D{
		m[0]*other[0] + m[2]*other[1],
		m[1]*other[0] + m[3]*other[1],
		m[0]*other[2] + m[2]*other[3],
		m[1]*other[2] + m[3]*other[3],
		m[0]*other[4] + m[2]*other[5] + m[4],
		m[1]*other[4] + m[3]*other[5] + m[5],
	}
}

func (m Matrix2D) Apply(p geom.Point) geom.Point {
	return geom.Point{X: m[0]*p.X + m[2]*p.Y + m[4], Y: m[1]*p.X + m[3]*p.Y + m[5]}
}

// TransformRect returns the axis-aligned box around the transformed corners.
func (m Matrix2D) TransformRect(r geom.Rect) geom.Rect {
	out := geom.RectFromPoints(m.Apply(r.TopLeft()), m.Apply(geom.Point{X: r.Right(), Y: r.Bottom()}))
	out = out.Extend(m.Apply(geom.Point{X: r.Right(), Y: r.Y}))
	return out.Extend(m.Apply(geom.Point{X: r.X, Y: r.Bottom()}))
}

func (m Matrix2D) Determinant() float64 {
	return m[0]*m[3] - m[1]*m[2]
}

// Invert returns the inverse, or false when m is singular.
func (m Matrix2D) Invert() (Matrix2D, bool) {
	det := m.Determinant()
	if det == 0 || math.IsNaN(det) {
		return Identity(), false
	}
	inv := 1.0 / det
	return Matrix2D{
		m[3] * inv,
		-m[1] * inv,
		-m[2] * inv,
		m[0] * inv,
		(m[2]*m[5] - m[3]*m[4]) * inv,
		(m[1]*m[4] - m[0]*m[5]) * inv,
	}, true
}

// ToSlice returns the six coefficients for JSON.
func (m Matrix2D) ToSlice() []float64 {
	return []float64{m[0], m[1], m[2], m[3], m[4], m[5]}
}

func (m Matrix2D) IsIdentity() bool {
	const eps = 1e-10
	id := Identity()
	for i := range m {
		if math.Abs(m[i]-id[i]) >= eps {
			return false
		}
	}
	return true
}
