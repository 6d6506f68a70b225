package document

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Decode parses a map snapshot and checks its invariants.
func Decode(data []byte) (*Map, error) {
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode map: %w", err)
	}
	for _, l := range m.Layers {
		if l == nil {
			continue
		}
		for _, g := range l.MapItemGroups {
			if g != nil && g.SelectionStatus == "" {
				g.SelectionStatus = SelectionNone
			}
		}
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("decode map: %w", err)
	}
	return &m, nil
}

// Encode is the inverse of Decode.
func Encode(m *Map) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode map: %w", err)
	}
	return data, nil
}

// Clone returns a deep copy that shares no mutable state with m. Cached
// bounds are not copied.
func (m *Map) Clone() *Map {
	out := *m
	if m.TemplateRef != nil {
		ref := *m.TemplateRef
		out.TemplateRef = &ref
	}
	out.Layers = cloneAll(m.Layers, (*Layer).Clone)
	out.MapItemTemplateRefs = slices.Clone(m.MapItemTemplateRefs)
	out.MapItemTemplates = make([]MapItemTemplate, len(m.MapItemTemplates))
	for i, t := range m.MapItemTemplates {
		out.MapItemTemplates[i] = MapItemTemplate{Ref: t.Ref, Data: slices.Clone(t.Data)}
	}
	out.ToolRefs = slices.Clone(m.ToolRefs)
	out.Tools = make([]Tool, len(m.Tools))
	for i, t := range m.Tools {
		out.Tools[i] = Tool{Ref: t.Ref, Data: slices.Clone(t.Data)}
	}
	out.ToolPalette.Groups = make([][]EntityReference, len(m.ToolPalette.Groups))
	for i, g := range m.ToolPalette.Groups {
		out.ToolPalette.Groups[i] = slices.Clone(g)
	}
	if m.ToolPalette.Groups == nil {
		out.ToolPalette.Groups = nil
	}
	return &out
}

func (l *Layer) Clone() *Layer {
	out := *l
	out.MapItemGroups = cloneAll(l.MapItemGroups, (*MapItemGroup).Clone)
	return &out
}

func (g *MapItemGroup) Clone() *MapItemGroup {
	out := *g
	out.bounds = nil
	out.MapItems = cloneAll(g.MapItems, (*MapItem).Clone)
	return &out
}

func (it *MapItem) Clone() *MapItem {
	out := *it
	out.bounds = nil
	out.Paths = cloneAll(it.Paths, (*Path).Clone)
	return &out
}

func (p *Path) Clone() *Path {
	out := *p
	out.bounds = nil
	out.Transits = slices.Clone(p.Transits)
	out.ClipPaths = cloneAll(p.ClipPaths, (*Path).Clone)
	return &out
}

func cloneAll[T any](in []*T, clone func(*T) *T) []*T {
	if in == nil {
		return nil
	}
	out := make([]*T, len(in))
	for i, v := range in {
		out[i] = clone(v)
	}
	return out
}
