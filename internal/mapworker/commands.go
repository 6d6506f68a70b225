package mapworker

import (
	"encoding/json"

	"github.com/mapwright/mapwright/internal/document"
	"github.com/mapwright/mapwright/internal/geom"
)

// Command is a message from the presentation layer to the worker.
// Commands are handled one at a time, in the order they were sent.
type Command interface {
	CommandType() string
}

const (
	TypeUpdateMap                = "updateMap"
	TypeSetActiveTool            = "setActiveTool"
	TypeSetActiveMapItemTemplate = "setActiveMapItemTemplate"
	TypeSelectAllInView          = "selectAllInView"
	TypeUnSelectAll              = "unSelectAll"
	TypeUndo                     = "undo"
	TypeRedo                     = "redo"
	TypeDeleteSelected           = "deleteSelected"
	TypeCursorChanged            = "cursorChanged"
	TypePointer                  = "pointer"
	TypeKey                      = "key"
	TypeSetCanvasSize            = "setCanvasSize"
	TypeSetOverlay               = "setOverlay"
	TypeLoadMap                  = "loadMap"
)

// UpdateMap commits a change set built by the presentation layer as one
// undo step.
type UpdateMap struct {
	ChangeSet *document.ChangeSet `json:"changeSet"`
}

// SetActiveTool switches tools. A nil Ref deactivates the current tool.
type SetActiveTool struct {
	Ref *document.EntityReference `json:"ref"`
}

type SetActiveMapItemTemplate struct {
	Ref *document.EntityReference `json:"ref"`
}

type SelectAllInView struct{}

type UnSelectAll struct{}

type Undo struct{}

type Redo struct{}

type DeleteSelected struct{}

// CursorChanged reports the cursor the presentation layer is showing.
type CursorChanged struct {
	Cursor string `json:"cursor"`
}

type PointerKind string

const (
	PointerDown PointerKind = "down"
	PointerMove PointerKind = "move"
	PointerUp   PointerKind = "up"
)

// Pointer is a pointer event in canvas pixels.
type Pointer struct {
	Kind   PointerKind `json:"kind"`
	X      float64     `json:"x"`
	Y      float64     `json:"y"`
	Button int         `json:"button"`
	Modifiers
}

func (p Pointer) Point() geom.Point { return geom.Point{X: p.X, Y: p.Y} }

type KeyKind string

const (
	KeyDown KeyKind = "down"
	KeyUp   KeyKind = "up"
)

// Key carries the DOM key name ("Escape", "ArrowLeft", "a").
type Key struct {
	Kind KeyKind `json:"kind"`
	Key  string  `json:"key"`
	Modifiers
}

type Modifiers struct {
	Shift bool `json:"shift,omitempty"`
	Ctrl  bool `json:"ctrl,omitempty"`
	Alt   bool `json:"alt,omitempty"`
	Meta  bool `json:"meta,omitempty"`
}

type SetCanvasSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// SetOverlay selects the snapping overlay. Kind is one of "none", "grid",
// "dot" or "hex".
type SetOverlay struct {
	Kind   string     `json:"kind"`
	Size   float64    `json:"size"`
	Offset geom.Point `json:"offset"`
}

// Overlay builds the snapping overlay the command describes.
func (c SetOverlay) Overlay() (geom.Overlay, error) {
	if c.Kind == "" || c.Kind == "none" {
		return geom.NoOverlay{}, nil
	}
	if !(c.Size > 0) {
		return nil, &CommandError{Type: TypeSetOverlay, Reason: "overlay size must be positive"}
	}
	switch c.Kind {
	case "grid":
		return geom.GridOverlay{Size: c.Size, Offset: c.Offset}, nil
	case "dot":
		return geom.DotOverlay{Spacing: c.Size, Offset: c.Offset}, nil
	case "hex":
		return geom.HexOverlay{Size: c.Size, Offset: c.Offset}, nil
	}
	return nil, &CommandError{Type: TypeSetOverlay, Reason: "unknown overlay " + c.Kind}
}

// LoadMap replaces the document and clears the history.
type LoadMap struct {
	Map *document.Map `json:"map"`
}

func (UpdateMap) CommandType() string                { return TypeUpdateMap }
func (SetActiveTool) CommandType() string            { return TypeSetActiveTool }
func (SetActiveMapItemTemplate) CommandType() string { return TypeSetActiveMapItemTemplate }
func (SelectAllInView) CommandType() string          { return TypeSelectAllInView }
func (UnSelectAll) CommandType() string              { return TypeUnSelectAll }
func (Undo) CommandType() string                     { return TypeUndo }
func (Redo) CommandType() string                     { return TypeRedo }
func (DeleteSelected) CommandType() string           { return TypeDeleteSelected }
func (CursorChanged) CommandType() string            { return TypeCursorChanged }
func (Pointer) CommandType() string                  { return TypePointer }
func (Key) CommandType() string                      { return TypeKey }
func (SetCanvasSize) CommandType() string            { return TypeSetCanvasSize }
func (SetOverlay) CommandType() string               { return TypeSetOverlay }
func (LoadMap) CommandType() string                  { return TypeLoadMap }

// CommandError reports a command the worker could not accept.
type CommandError struct {
	Type   string
	Reason string
}

func (e *CommandError) Error() string {
	return "mapworker: " + e.Type + ": " + e.Reason
}

const TypeSetToolOption = "setToolOption"

// SetToolOption changes one option of the active tool.
type SetToolOption struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

func (SetToolOption) CommandType() string { return TypeSetToolOption }

const TypeMarkSaved = "markSaved"

// MarkSaved clears the unsaved flag after the map was persisted. It is not
// an undo step.
type MarkSaved struct{}

func (MarkSaved) CommandType() string { return TypeMarkSaved }
