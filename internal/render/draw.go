// Package render compiles a map into a flat list of drawing operations in
// paint order. Painting itself (colors, strokes, captions) belongs to
// whoever executes the list: the browser canvas or the PNG exporter.
package render

import (
	"encoding/json"

	"github.com/mapwright/mapwright/internal/document"
	"github.com/mapwright/mapwright/internal/geom"
	"github.com/mapwright/mapwright/internal/selection"
)

// DefaultArcSteps is the number of segments used to flatten one arc.
const DefaultArcSteps = 24

const (
	OpPath      = "path"
	OpCaption   = "caption"
	OpSelection = "selection"
	OpHandle    = "handle"
)

// PathCommand is one subpath instruction: ["M", x, y], ["L", x, y] or ["Z"].
type PathCommand []any

// DrawCommand is a single operation for the presentation layer. Path
// coordinates are already in canvas pixels.
type DrawCommand struct {
	Op        string        `json:"op"`
	GroupID   string        `json:"groupId,omitempty"`
	ItemID    string        `json:"itemId,omitempty"`
	Template  string        `json:"template,omitempty"`
	Selection string        `json:"selection,omitempty"`
	Path      []PathCommand `json:"path,omitempty"`
	FillRule  string        `json:"fillRule,omitempty"`
	Text      string        `json:"text,omitempty"`
	Rect      *geom.Rect    `json:"rect,omitempty"`
	Cursor    string        `json:"cursor,omitempty"`
}

// Compile emits one path command per visible item, layers bottom to top
// and items in paint order. Clip paths become extra subpaths filled with
// the even-odd rule, so they punch holes.
func Compile(m *document.Map, view Matrix2D, arcSteps int) []DrawCommand {
	if arcSteps <= 0 {
		arcSteps = DefaultArcSteps
	}
	var out []DrawCommand
	var captions []DrawCommand
	for _, layer := range m.Layers {
		if layer.IsHidden {
			continue
		}
		owner := make(map[string]*document.MapItemGroup)
		for _, g := range layer.MapItemGroups {
			for _, it := range g.MapItems {
				owner[it.ID] = g
			}
		}
		for _, it := range layer.PaintOrder() {
			if it.IsHidden || len(it.Paths) == 0 {
				continue
			}
			g := owner[it.ID]
			cmd := DrawCommand{
				Op:        OpPath,
				GroupID:   g.ID,
				ItemID:    it.ID,
				Template:  it.MapItemTemplateRef.Name,
				Selection: string(g.SelectionStatus),
			}
			for _, p := range it.Paths {
				cmd.Path = appendPath(cmd.Path, p, view, arcSteps)
				for _, clip := range p.ClipPaths {
					cmd.Path = appendPath(cmd.Path, clip, view, arcSteps)
					cmd.FillRule = "evenodd"
				}
			}
			out = append(out, cmd)
			if it.IsCaptionVisible && it.CaptionText != "" {
				r := view.TransformRect(it.Bounds())
				captions = append(captions, DrawCommand{Op: OpCaption, ItemID: it.ID, Text: it.CaptionText, Rect: &r})
			}
		}
	}
	return append(out, captions...)
}

func appendPath(cmds []PathCommand, p *document.Path, view Matrix2D, arcSteps int) []PathCommand {
	for i, pt := range p.Points(arcSteps) {
		pt = view.Apply(pt)
		op := "L"
		if i == 0 {
			op = "M"
		}
		cmds = append(cmds, PathCommand{op, pt.X, pt.Y})
	}
	return append(cmds, PathCommand{"Z"})
}

// SelectionOverlay outlines the selected groups of the active layer and,
// for the primary group, emits its resize and rotate handles.
func SelectionOverlay(m *document.Map, view Matrix2D) []DrawCommand {
	layer := m.Active()
	if layer == nil || layer.IsHidden {
		return nil
	}
	var out []DrawCommand
	for _, g := range layer.Selected() {
		r := view.TransformRect(g.Bounds())
		out = append(out, DrawCommand{Op: OpSelection, GroupID: g.ID, Selection: string(g.SelectionStatus), Rect: &r})
		if g.SelectionStatus != document.SelectionPrimary {
			continue
		}
		for _, region := range selection.Regions(g.Bounds(), m.Zoom) {
			if region.Mode == selection.Move {
				continue
			}
			hr := view.TransformRect(region.Rect)
			out = append(out, DrawCommand{Op: OpHandle, GroupID: g.ID, Rect: &hr, Cursor: region.Mode.Cursor()})
		}
	}
	return out
}

// Frame is everything the canvas needs to draw the map.
func Frame(m *document.Map) []DrawCommand {
	view := View(m.Pan, m.Zoom)
	return append(Compile(m, view, DefaultArcSteps), SelectionOverlay(m, view)...)
}

func ToJSON(commands []DrawCommand) (string, error) {
	data, err := json.Marshal(commands)
	if err != nil {
		return "[]", err
	}
	return string(data), nil
}
