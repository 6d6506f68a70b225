// Package selection implements pointer gestures over selected map item
// groups: hit testing of the selection bounds, anchored move, resize and
// rotate, and the selection policies used by click and rubber-band.
package selection

import (
	"github.com/mapwright/mapwright/internal/geom"
)

// Mode is the state of a pointer gesture.
type Mode int

const (
	Default Mode = iota
	Select
	Move
	ResizeN
	ResizeNE
	ResizeE
	ResizeSE
	ResizeS
	ResizeSW
	ResizeW
	ResizeNW
	Rotate
)

const (
	// HandleSize is the side of a resize or rotate handle in screen units.
	HandleSize = 8.0
	// RotateHandleDistance is how far above the top edge the rotate handle
	// sits, in screen units.
	RotateHandleDistance = 24.0
	// MinResizeDimension is the size below which a path no longer shrinks.
	MinResizeDimension = 15.0
)

var modeNames = map[Mode]string{
	Default:  "default",
	Select:   "select",
	Move:     "move",
	ResizeN:  "resizeN",
	ResizeNE: "resizeNE",
	ResizeE:  "resizeE",
	ResizeSE: "resizeSE",
	ResizeS:  "resizeS",
	ResizeSW: "resizeSW",
	ResizeW:  "resizeW",
	ResizeNW: "resizeNW",
	Rotate:   "rotate",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return "unknown"
}

// Cursor is the CSS cursor the presentation layer shows for the mode.
func (m Mode) Cursor() string {
	switch m {
	case Select:
		return "crosshair"
	case Move:
		return "move"
	case ResizeN, ResizeS:
		return "ns-resize"
	case ResizeE, ResizeW:
		return "ew-resize"
	case ResizeNE, ResizeSW:
		return "nesw-resize"
	case ResizeNW, ResizeSE:
		return "nwse-resize"
	case Rotate:
		return "grab"
	default:
		return "default"
	}
}

func (m Mode) IsResize() bool { return m >= ResizeN && m <= ResizeNW }

// edges reports which bounds edges a resize handle drags: -1 for the
// left/top edge, +1 for the right/bottom edge, 0 when the axis is fixed.
func (m Mode) edges() (x, y int) {
	switch m {
	case ResizeN:
		return 0, -1
	case ResizeNE:
		return 1, -1
	case ResizeE:
		return 1, 0
	case ResizeSE:
		return 1, 1
	case ResizeS:
		return 0, 1
	case ResizeSW:
		return -1, 1
	case ResizeW:
		return -1, 0
	case ResizeNW:
		return -1, -1
	}
	return 0, 0
}

// handlePoint is the point of b a resize handle sits on.
func handlePoint(b geom.Rect, m Mode) geom.Point {
	ex, ey := m.edges()
	return geom.Pt(b.X+b.Width*float64(ex+1)/2, b.Y+b.Height*float64(ey+1)/2)
}

// Region is a hit area of the selection bounds.
type Region struct {
	Mode Mode
	Rect geom.Rect
}

// Regions returns the hit areas of bounds in priority order: rotate handle,
// the eight resize handles, then the move box. Handle sizes are divided by
// zoom so they stay constant on screen.
func Regions(bounds geom.Rect, zoom float64) []Region {
	if zoom <= 0 {
		zoom = 1
	}
	size := HandleSize / zoom
	handle := func(c geom.Point) geom.Rect {
		return geom.Rect{X: c.X - size/2, Y: c.Y - size/2, Width: size, Height: size}
	}
	top := geom.Pt(bounds.X+bounds.Width/2, bounds.Y-RotateHandleDistance/zoom)

	regions := make([]Region, 0, 10)
	regions = append(regions, Region{Mode: Rotate, Rect: handle(top)})
	for m := ResizeN; m <= ResizeNW; m++ {
		regions = append(regions, Region{Mode: m, Rect: handle(handlePoint(bounds, m))})
	}
	return append(regions, Region{Mode: Move, Rect: bounds})
}

// HitTest returns the mode a gesture starting at p over bounds enters, or
// Default when p misses every region.
func HitTest(bounds geom.Rect, zoom float64, p geom.Point) Mode {
	for _, r := range Regions(bounds, zoom) {
		if r.Rect.Contains(p) {
			return r.Mode
		}
	}
	return Default
}
