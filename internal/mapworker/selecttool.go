package mapworker

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/mapwright/mapwright/internal/document"
	"github.com/mapwright/mapwright/internal/geom"
	"github.com/mapwright/mapwright/internal/selection"
)

const (
	nudgeStep      = 1
	nudgeStepLarge = 10
)

// SelectTool picks, moves, resizes and rotates map item groups.
//
// Ctrl or shift at pointer down toggles the hit groups; shift during a drag
// locks the transform (axis, uniform scale, 45 degree steps).
type SelectTool struct {
	h       Handle
	gesture *selection.Gesture
}

func NewSelectTool() *SelectTool { return &SelectTool{} }

func (t *SelectTool) Ref() document.EntityReference { return document.ToolSelect }

func (t *SelectTool) Activate(h Handle) error {
	t.h = h
	t.gesture = selection.NewGesture(h.Ledger())
	h.SetCursor(selection.Default.Cursor())
	return nil
}

func (t *SelectTool) Deactivate() error {
	err := t.Cancel()
	t.h = nil
	t.gesture = nil
	return err
}

func (t *SelectTool) Cancel() error {
	if t.gesture == nil || !t.gesture.Active() {
		return nil
	}
	return t.gesture.Cancel()
}

func (t *SelectTool) Pointer(ev Pointer) error {
	switch ev.Kind {
	case PointerDown:
		if ev.Button != 0 || t.gesture.Active() {
			return nil
		}
		t.gesture.SetOverlay(t.h.Overlay())
		mode, err := t.gesture.Start(ev.Point(), ev.Shift || ev.Ctrl)
		if err != nil {
			return err
		}
		t.h.SetCursor(mode.Cursor())
	case PointerMove:
		if t.gesture.Active() {
			return t.gesture.Update(ev.Point(), ev.Shift)
		}
		t.h.SetCursor(t.gesture.HoverMode(ev.Point()).Cursor())
	case PointerUp:
		if !t.gesture.Active() {
			return nil
		}
		if err := t.gesture.Update(ev.Point(), ev.Shift); err != nil {
			_ = t.gesture.Cancel()
			return err
		}
		_, err := t.gesture.Complete()
		t.h.SetCursor(t.gesture.HoverMode(ev.Point()).Cursor())
		return err
	}
	return nil
}

func (t *SelectTool) Key(ev Key) error {
	if ev.Kind != KeyDown {
		return nil
	}
	l := t.h.Ledger()
	switch ev.Key {
	case "Escape":
		if t.gesture.Active() {
			return t.gesture.Cancel()
		}
		return selection.UnselectAll(l)
	case "Delete", "Backspace":
		if t.gesture.Active() {
			return nil
		}
		_, err := selection.DeleteSelected(l)
		return err
	case "ArrowLeft", "ArrowRight", "ArrowUp", "ArrowDown":
		if t.gesture.Active() {
			return nil
		}
		_, err := selection.Nudge(l, nudgeDelta(ev))
		return err
	}
	if strings.EqualFold(ev.Key, "a") && (ev.Ctrl || ev.Meta) {
		return selection.SelectAll(l, viewportOf(l.Map(), t.h.CanvasSize()))
	}
	return nil
}

func nudgeDelta(ev Key) geom.Point {
	step := float64(nudgeStep)
	if ev.Shift {
		step = nudgeStepLarge
	}
	switch ev.Key {
	case "ArrowLeft":
		return geom.Point{X: -step}
	case "ArrowRight":
		return geom.Point{X: step}
	case "ArrowUp":
		return geom.Point{Y: -step}
	default:
		return geom.Point{Y: step}
	}
}

func (t *SelectTool) Options() []ToolOption { return nil }

func (t *SelectTool) SetOption(name string, _ json.RawMessage) error {
	return fmt.Errorf("%w: %s", ErrUnknownOption, name)
}

// viewportOf is the world rectangle visible on a canvas of size. An unknown
// canvas size covers everything.
func viewportOf(m *document.Map, size Size) geom.Rect {
	if size.Width == 0 || size.Height == 0 {
		return geom.Rect{X: -math.MaxFloat64 / 2, Y: -math.MaxFloat64 / 2, Width: math.MaxFloat64, Height: math.MaxFloat64}
	}
	zoom := m.Zoom
	if zoom <= 0 {
		zoom = 1
	}
	return geom.Rect{X: m.Pan.X, Y: m.Pan.Y, Width: size.Width / zoom, Height: size.Height / zoom}
}
