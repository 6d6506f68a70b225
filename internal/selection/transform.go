package selection

import (
	"math"

	"github.com/mapwright/mapwright/internal/document"
	"github.com/mapwright/mapwright/internal/geom"
)

// MovePath returns a copy of p translated by d.
func MovePath(p *document.Path, d geom.Point) *document.Path {
	out := p.Clone()
	out.Start = p.Start.Add(d)
	for i, c := range p.ClipPaths {
		out.ClipPaths[i] = MovePath(c, d)
	}
	return out
}

// ResizePath scales a copy of p about the top-left corner of its bounds.
// It reports false, returning p unchanged, when the scale is not positive
// or would shrink an axis that is already below MinResizeDimension.
func ResizePath(p *document.Path, scaleX, scaleY float64) (*document.Path, bool) {
	b := p.Bounds()
	if !canResize(b, scaleX, scaleY) {
		return p.Clone(), false
	}
	return scaleAbout(p, b.TopLeft(), scaleX, scaleY), true
}

func canResize(b geom.Rect, scaleX, scaleY float64) bool {
	if !(scaleX > 0) || !(scaleY > 0) || math.IsInf(scaleX, 0) || math.IsInf(scaleY, 0) {
		return false
	}
	if scaleX < 1 && b.Width < MinResizeDimension {
		return false
	}
	if scaleY < 1 && b.Height < MinResizeDimension {
		return false
	}
	return true
}

// scaleAbout maps p through x -> anchor + (x-anchor)*scale. The transits
// are scaled and the start is re-derived from where the top-left of the
// scaled bounds has to land, which keeps anchors fixed even when an arc was
// refitted.
func scaleAbout(p *document.Path, anchor geom.Point, scaleX, scaleY float64) *document.Path {
	out := p.Clone()
	for i, t := range p.Transits {
		out.Transits[i] = scaleTransit(t, scaleX, scaleY)
	}
	old := p.Bounds()
	scaled := document.OutlineBounds(geom.Point{}, out.Transits)
	topLeft := anchor.Add(old.TopLeft().Sub(anchor).Scale(scaleX, scaleY))
	out.Start = topLeft.Sub(scaled.TopLeft())
	for i, c := range p.ClipPaths {
		out.ClipPaths[i] = scaleAbout(c, anchor, scaleX, scaleY)
	}
	return out
}

func scaleTransit(t document.Transit, scaleX, scaleY float64) document.Transit {
	if t.Kind == document.TransitArc {
		return document.ArcTransit(geom.ResizeArc(t.Arc, scaleX, scaleY))
	}
	return document.Transit{Kind: document.TransitLine, To: t.To.Scale(scaleX, scaleY)}
}

// RotatePath rotates a copy of p by angle radians (clockwise on screen)
// about center. The accumulated fill-frame angle turns the opposite way.
func RotatePath(p *document.Path, center geom.Point, angle float64) *document.Path {
	out := p.Clone()
	out.Start = p.Start.RotateAbout(center, angle)
	for i, t := range p.Transits {
		if t.Kind == document.TransitArc {
			out.Transits[i] = document.ArcTransit(geom.RotateArc(t.Arc, angle))
		} else {
			out.Transits[i] = document.Transit{Kind: document.TransitLine, To: t.To.Rotate(angle)}
		}
	}
	out.RotationAngle = geom.NormalizeDegrees(p.RotationAngle - geom.Degrees(angle))
	for i, c := range p.ClipPaths {
		out.ClipPaths[i] = RotatePath(c, center, angle)
	}
	return out
}

// PointerAngle is the angle of p around center, measured clockwise on
// screen from north, in [0, 2π).
func PointerAngle(center, p geom.Point) float64 {
	return geom.NormalizeRadians(math.Atan2(p.X-center.X, -(p.Y - center.Y)))
}

// RotationDelta is the rotation a drag from start to pointer describes
// around center. With lock set it snaps to the nearest 45°.
func RotationDelta(center, start, pointer geom.Point, lock bool) float64 {
	angle := geom.NormalizeRadians(PointerAngle(center, pointer) - PointerAngle(center, start))
	if lock {
		angle = SnapAngle(angle)
	}
	return angle
}

// SnapAngle rounds angle to the nearest multiple of 45°.
func SnapAngle(angle float64) float64 {
	const step = math.Pi / 4
	return geom.NormalizeRadians(math.Round(angle/step) * step)
}

// LockAxis keeps only the dominant axis of d.
func LockAxis(d geom.Point) geom.Point {
	if math.Abs(d.X) >= math.Abs(d.Y) {
		return geom.Pt(d.X, 0)
	}
	return geom.Pt(0, d.Y)
}
