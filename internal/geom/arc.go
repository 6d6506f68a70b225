package geom

import "math"

// Arc is an elliptical arc segment. End and Center are offsets from the
// point where the segment starts, so an Arc is independent of where it sits
// in a path. RotationAngle is the ellipse x-axis rotation in degrees and
// SweepFlag selects the positive-angle (clockwise on screen) direction.
type Arc struct {
	End           Point   `json:"end"`
	Center        Point   `json:"center"`
	Radii         Point   `json:"radii"`
	RotationAngle float64 `json:"rotationAngle"`
	SweepFlag     bool    `json:"sweepFlag"`
}

// RotateArc rotates the segment by angle radians about its start point.
func RotateArc(a Arc, angle float64) Arc {
	a.Center = a.Center.Rotate(angle)
	a.End = a.End.Rotate(angle)
	a.RotationAngle = NormalizeDegrees(a.RotationAngle + Degrees(angle))
	return a
}

// ResizeArc scales the segment about its start point.
//
// Axis-aligned ellipses (and circles, whose rotation is meaningless) are
// scaled analytically. A rotated ellipse under non-uniform scale is no
// longer aligned with its old axes, so the new ellipse is recovered by
// fitting a conic through five scaled points; when the fit is degenerate
// the axis-aligned approximation is used instead.
func ResizeArc(a Arc, scaleX, scaleY float64) Arc {
	if a.Radii.X == a.Radii.Y {
		a.RotationAngle = 0
	}
	if math.Mod(a.RotationAngle, 90) == 0 || scaleX == scaleY {
		return resizeArcAligned(a, scaleX, scaleY)
	}
	if out, ok := resizeArcConic(a, scaleX, scaleY); ok {
		return out
	}
	logger().Debug("conic fit failed, using axis-aligned arc resize",
		"rotation", a.RotationAngle, "scaleX", scaleX, "scaleY", scaleY)
	return resizeArcAligned(a, scaleX, scaleY)
}

// resizeArcAligned scales center and end exactly and the radii by the
// per-axis scale composed with the ellipse rotation.
func resizeArcAligned(a Arc, scaleX, scaleY float64) Arc {
	phi := Radians(a.RotationAngle)
	cos, sin := math.Cos(phi), math.Sin(phi)
	scaleXWithRotation := math.Sqrt(sq(scaleX*cos) + sq(scaleY*sin))
	scaleYWithRotation := math.Sqrt(sq(scaleX*sin) + sq(scaleY*cos))

	out := a
	out.Center = a.Center.Scale(scaleX, scaleY)
	out.End = a.End.Scale(scaleX, scaleY)
	out.Radii = Point{X: a.Radii.X * scaleXWithRotation, Y: a.Radii.Y * scaleYWithRotation}
	if scaleX*scaleY < 0 {
		out.SweepFlag = !a.SweepFlag
	}
	return out
}

func resizeArcConic(a Arc, scaleX, scaleY float64) (Arc, bool) {
	phi := Radians(a.RotationAngle)
	cos, sin := math.Cos(phi), math.Sin(phi)
	u := Point{X: cos, Y: sin}.Mul(a.Radii.X)
	v := Point{X: -sin, Y: cos}.Mul(a.Radii.Y)

	extrema := [4]Point{a.Center.Add(u), a.Center.Sub(u), a.Center.Add(v), a.Center.Sub(v)}
	tol := 1e-6 * max(math.Abs(a.Radii.X), math.Abs(a.Radii.Y), 1)

	fifth := a.End
	for _, e := range extrema {
		if e.Approx(a.End, tol) {
			// the segment start is the origin of the arc frame
			fifth = Point{}
			break
		}
	}

	// Solve relative to the new center so the conic never passes through
	// the origin and F can be fixed to 1.
	center := a.Center.Scale(scaleX, scaleY)
	samples := make([]Point, 0, 5)
	for _, e := range extrema {
		samples = append(samples, e.Scale(scaleX, scaleY).Sub(center))
	}
	samples = append(samples, fifth.Scale(scaleX, scaleY).Sub(center))

	rows := make([][]float64, len(samples))
	rhs := make([]float64, len(samples))
	for i, p := range samples {
		rows[i] = []float64{p.X * p.X, p.X * p.Y, p.Y * p.Y, p.X, p.Y}
		rhs[i] = -1
	}
	coef, err := SolveLinear(rows, rhs)
	if err != nil {
		return Arc{}, false
	}

	A, B, C, D, E := coef[0], coef[1], coef[2], coef[3], coef[4]
	const F = 1.0
	disc := B*B - 4*A*C
	if !(disc < 0) {
		return Arc{}, false
	}
	num := 2 * (A*E*E + C*D*D - B*D*E + disc*F)
	root := math.Sqrt(sq(A-C) + B*B)
	rx := -math.Sqrt(num*((A+C)+root)) / disc
	ry := -math.Sqrt(num*((A+C)-root)) / disc
	if !finitePositive(rx) || !finitePositive(ry) {
		return Arc{}, false
	}
	theta := 0.5 * math.Atan2(-B, C-A)

	out := a
	out.Center = center
	out.End = a.End.Scale(scaleX, scaleY)
	out.Radii = Point{X: rx, Y: ry}
	out.RotationAngle = NormalizeDegrees(Degrees(theta))
	if scaleX*scaleY < 0 {
		out.SweepFlag = !a.SweepFlag
	}
	return out, true
}

// angles returns the ellipse parameter at the start point and the signed
// parameter delta swept towards the end point.
func (a Arc) angles() (t0, delta float64) {
	phi := Radians(a.RotationAngle)
	param := func(p Point) float64 {
		q := p.Sub(a.Center).Rotate(-phi)
		rx, ry := a.Radii.X, a.Radii.Y
		if rx == 0 || ry == 0 {
			return math.Atan2(q.Y, q.X)
		}
		return math.Atan2(q.Y/ry, q.X/rx)
	}
	t0 = param(Point{})
	t1 := param(a.End)
	if a.SweepFlag {
		delta = NormalizeRadians(t1 - t0)
	} else {
		delta = -NormalizeRadians(t0 - t1)
	}
	return t0, delta
}

// pointAt returns the point on the ellipse at parameter t, relative to the
// segment start.
func (a Arc) pointAt(t float64) Point {
	phi := Radians(a.RotationAngle)
	local := Point{X: a.Radii.X * math.Cos(t), Y: a.Radii.Y * math.Sin(t)}
	return a.Center.Add(local.Rotate(phi))
}

// Bounds returns the extent of the segment when it starts at start.
func (a Arc) Bounds(start Point) Rect {
	r := Rect{X: start.X, Y: start.Y}.Extend(start.Add(a.End))
	t0, delta := a.angles()
	phi := Radians(a.RotationAngle)
	cos, sin := math.Cos(phi), math.Sin(phi)
	tx := math.Atan2(-a.Radii.Y*sin, a.Radii.X*cos)
	ty := math.Atan2(a.Radii.Y*cos, a.Radii.X*sin)
	for _, t := range [4]float64{tx, tx + math.Pi, ty, ty + math.Pi} {
		if sweeps(t0, delta, t) {
			r = r.Extend(start.Add(a.pointAt(t)))
		}
	}
	return r
}

// Sample returns n+1 absolute points along the segment, start and end
// included.
func (a Arc) Sample(start Point, n int) []Point {
	if n < 1 {
		n = 1
	}
	t0, delta := a.angles()
	pts := make([]Point, 0, n+1)
	pts = append(pts, start)
	for i := 1; i < n; i++ {
		t := t0 + delta*float64(i)/float64(n)
		pts = append(pts, start.Add(a.pointAt(t)))
	}
	return append(pts, start.Add(a.End))
}

func sweeps(t0, delta, t float64) bool {
	if delta >= 0 {
		return NormalizeRadians(t-t0) <= delta
	}
	return NormalizeRadians(t0-t) <= -delta
}

func sq(v float64) float64 { return v * v }

func finitePositive(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
