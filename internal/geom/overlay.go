package geom

import "math"

// Overlay is a background pattern whose vertices points can snap to.
type Overlay interface {
	Snap(p Point) Point
}

// NoOverlay leaves points untouched.
type NoOverlay struct{}

func (NoOverlay) Snap(p Point) Point { return p }

// GridOverlay snaps to the intersections of a square grid.
type GridOverlay struct {
	Size   float64
	Offset Point
}

func (g GridOverlay) Snap(p Point) Point {
	if g.Size <= 0 {
		return p
	}
	return Point{
		X: math.Round((p.X-g.Offset.X)/g.Size)*g.Size + g.Offset.X,
		Y: math.Round((p.Y-g.Offset.Y)/g.Size)*g.Size + g.Offset.Y,
	}
}

// DotOverlay draws a dot at every grid intersection; snapping is the same
// as for a grid.
type DotOverlay struct {
	Spacing float64
	Offset  Point
}

func (d DotOverlay) Snap(p Point) Point {
	return GridOverlay{Size: d.Spacing, Offset: d.Offset}.Snap(p)
}

// HexOverlay is a pointy-top honeycomb; Size is the hexagon circumradius.
type HexOverlay struct {
	Size   float64
	Offset Point
}

// Snap returns the nearest honeycomb vertex. The nearest vertex always
// belongs to the hexagon containing p, so only its six corners are tested.
func (h HexOverlay) Snap(p Point) Point {
	if h.Size <= 0 {
		return p
	}
	center := h.hexCenter(p)
	best := center
	bestDist := math.Inf(1)
	for i := 0; i < 6; i++ {
		angle := Radians(60*float64(i) - 30)
		v := center.Add(Point{X: math.Cos(angle), Y: math.Sin(angle)}.Mul(h.Size))
		if d := v.Distance(p); d < bestDist {
			best, bestDist = v, d
		}
	}
	return best
}

// hexCenter returns the center of the hexagon containing p using axial
// coordinates and cube rounding.
func (h HexOverlay) hexCenter(p Point) Point {
	local := p.Sub(h.Offset)
	q := (math.Sqrt(3)/3*local.X - local.Y/3) / h.Size
	r := (2.0 / 3 * local.Y) / h.Size

	x, z := q, r
	y := -x - z
	rx, ry, rz := math.Round(x), math.Round(y), math.Round(z)
	dx, dy, dz := math.Abs(rx-x), math.Abs(ry-y), math.Abs(rz-z)
	// Only q (x) and r (z) are needed, so fixing y is a no-op.
	if dx > dy && dx > dz {
		rx = -ry - rz
	} else if dz >= dy {
		rz = -rx - ry
	}

	return Point{
		X: h.Size * math.Sqrt(3) * (rx + rz/2),
		Y: h.Size * 1.5 * rz,
	}.Add(h.Offset)
}
