package document

import (
	"encoding/json"
	"fmt"

	"github.com/mapwright/mapwright/internal/geom"
	"github.com/mapwright/mapwright/internal/typeid"
)

type TransitKind string

const (
	TransitLine TransitKind = "line"
	TransitArc  TransitKind = "arc"
)

// Transit is one segment of a path: a straight offset relative to the
// previous point, or an elliptical arc.
type Transit struct {
	Kind TransitKind
	To   geom.Point
	Arc  geom.Arc
}

func Line(dx, dy float64) Transit {
	return Transit{Kind: TransitLine, To: geom.Pt(dx, dy)}
}

func ArcTransit(a geom.Arc) Transit {
	return Transit{Kind: TransitArc, Arc: a}
}

// End returns the offset from the segment start to its end point.
func (t Transit) End() geom.Point {
	if t.Kind == TransitArc {
		return t.Arc.End
	}
	return t.To
}

type transitJSON struct {
	Kind TransitKind `json:"kind"`
	To   *geom.Point `json:"to,omitempty"`
	Arc  *geom.Arc   `json:"arc,omitempty"`
}

func (t Transit) MarshalJSON() ([]byte, error) {
	out := transitJSON{Kind: t.Kind}
	switch t.Kind {
	case TransitLine:
		to := t.To
		out.To = &to
	case TransitArc:
		arc := t.Arc
		out.Arc = &arc
	default:
		return nil, fmt.Errorf("unknown transit kind %q", t.Kind)
	}
	return json.Marshal(out)
}

func (t *Transit) UnmarshalJSON(data []byte) error {
	var in transitJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Kind {
	case TransitLine:
		if in.To == nil {
			return fmt.Errorf("line transit without offset")
		}
		*t = Transit{Kind: TransitLine, To: *in.To}
	case TransitArc:
		if in.Arc == nil {
			return fmt.Errorf("arc transit without arc")
		}
		*t = Transit{Kind: TransitArc, Arc: *in.Arc}
	default:
		return fmt.Errorf("unknown transit kind %q", in.Kind)
	}
	return nil
}

// Path is a closed outline starting at Start. Transits hold absolute
// geometry (already rotated); RotationAngle is the accumulated frame angle
// renderers use to orient fills. ClipPaths are subtractive holes.
type Path struct {
	ID            string     `json:"id"`
	Start         geom.Point `json:"start"`
	Transits      []Transit  `json:"transits"`
	RotationAngle float64    `json:"rotationAngle"`
	ClipPaths     []*Path    `json:"clipPaths"`

	bounds *geom.Rect
}

func NewPath(start geom.Point, transits ...Transit) *Path {
	return &Path{
		ID:        typeid.NewPathID(),
		Start:     start,
		Transits:  append([]Transit{}, transits...),
		ClipPaths: []*Path{},
	}
}

// RectPath is a convenience constructor for an axis-aligned rectangle.
func RectPath(x, y, w, h float64) *Path {
	return NewPath(geom.Pt(x, y), Line(w, 0), Line(0, h), Line(-w, 0), Line(0, -h))
}

// Bounds returns the outline extent; clip paths lie inside it and do not
// contribute.
func (p *Path) Bounds() geom.Rect {
	if p.bounds == nil {
		r := OutlineBounds(p.Start, p.Transits)
		p.bounds = &r
	}
	return *p.bounds
}

// OutlineBounds computes the extent of an outline without a Path value.
func OutlineBounds(start geom.Point, transits []Transit) geom.Rect {
	r := geom.Rect{X: start.X, Y: start.Y}
	cur := start
	for _, t := range transits {
		if t.Kind == TransitArc {
			r = r.Union(t.Arc.Bounds(cur))
		} else {
			r = r.Extend(cur.Add(t.To))
		}
		cur = cur.Add(t.End())
	}
	return r
}

// Points flattens the outline into absolute points, sampling arcs with
// arcSteps segments.
func (p *Path) Points(arcSteps int) []geom.Point {
	pts := []geom.Point{p.Start}
	cur := p.Start
	for _, t := range p.Transits {
		if t.Kind == TransitArc {
			pts = append(pts, t.Arc.Sample(cur, arcSteps)[1:]...)
		} else {
			pts = append(pts, cur.Add(t.To))
		}
		cur = cur.Add(t.End())
	}
	return pts
}

func (p *Path) ClipPath(id string) (*Path, int) {
	return findPath(p.ClipPaths, id)
}

func (p *Path) invalidate() { p.bounds = nil }
