package document

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mapwright/mapwright/internal/geom"
	"github.com/mapwright/mapwright/internal/typeid"
)

// EntityReference correlates a shape or tool with its template. Two
// references are equal iff all four fields match, so the struct is used as
// a value key.
type EntityReference struct {
	Name           string `json:"name"`
	VersionID      int    `json:"versionId"`
	IsBuiltIn      bool   `json:"isBuiltIn"`
	IsFromTemplate bool   `json:"isFromTemplate"`
}

func (r EntityReference) String() string {
	return fmt.Sprintf("%s@%d", r.Name, r.VersionID)
}

type SelectionStatus string

const (
	SelectionNone      SelectionStatus = "none"
	SelectionSecondary SelectionStatus = "secondary"
	SelectionPrimary   SelectionStatus = "primary"
)

// IsSelected reports whether the status is primary or secondary.
func (s SelectionStatus) IsSelected() bool {
	return s == SelectionPrimary || s == SelectionSecondary
}

func (s SelectionStatus) valid() bool {
	switch s {
	case SelectionNone, SelectionSecondary, SelectionPrimary:
		return true
	}
	return false
}

// MapItemTemplate and Tool carry opaque payloads; styling and plugin
// loading live outside the core.
type MapItemTemplate struct {
	Ref  EntityReference `json:"ref"`
	Data json.RawMessage `json:"data,omitempty"`
}

type Tool struct {
	Ref  EntityReference `json:"ref"`
	Data json.RawMessage `json:"data,omitempty"`
}

type ToolPalette struct {
	Groups [][]EntityReference `json:"groups"`
}

// Map is the root aggregate. It owns its layers exclusively; outside the
// ledger it must be treated as read-only.
type Map struct {
	Ref                 EntityReference   `json:"ref"`
	TemplateRef         *EntityReference  `json:"templateRef,omitempty"`
	Layers              []*Layer          `json:"layers"`
	ActiveLayer         string            `json:"activeLayer"`
	MapItemTemplateRefs []EntityReference `json:"mapItemTemplateRefs"`
	MapItemTemplates    []MapItemTemplate `json:"mapItemTemplates"`
	ToolRefs            []EntityReference `json:"toolRefs"`
	Tools               []Tool            `json:"tools"`
	ToolPalette         ToolPalette       `json:"toolPalette"`
	Pan                 geom.Point        `json:"pan"`
	Zoom                float64           `json:"zoom"`
	HasUnsavedChanges   bool              `json:"hasUnsavedChanges"`
}

// NewMap creates an empty map with a single active layer.
func NewMap(name, layerName string) *Map {
	return &Map{
		Ref:                 EntityReference{Name: name, VersionID: 1},
		Layers:              []*Layer{{Name: layerName, MapItemGroups: []*MapItemGroup{}}},
		ActiveLayer:         layerName,
		MapItemTemplateRefs: []EntityReference{},
		MapItemTemplates:    []MapItemTemplate{},
		ToolRefs:            []EntityReference{},
		Tools:               []Tool{},
		Zoom:                1,
	}
}

// Layer returns the named layer or nil.
func (m *Map) Layer(name string) *Layer {
	_, l := m.layerIndex(name)
	return l
}

func (m *Map) layerIndex(name string) (int, *Layer) {
	for i, l := range m.Layers {
		if l.Name == name {
			return i, l
		}
	}
	return -1, nil
}

// Active returns the active layer or nil.
func (m *Map) Active() *Layer {
	return m.Layer(m.ActiveLayer)
}

// Validate checks the structural invariants of the whole tree.
func (m *Map) Validate() error {
	names := make(map[string]struct{}, len(m.Layers))
	for _, l := range m.Layers {
		if l == nil {
			return fmt.Errorf("%w: nil layer", ErrInvariant)
		}
		if _, dup := names[l.Name]; dup {
			return fmt.Errorf("%w: duplicate layer name %q", ErrInvariant, l.Name)
		}
		names[l.Name] = struct{}{}
		if err := l.Validate(); err != nil {
			return err
		}
	}
	if len(m.Layers) == 0 {
		if m.ActiveLayer != "" {
			return fmt.Errorf("%w: active layer %q set on a map without layers", ErrInvariant, m.ActiveLayer)
		}
		return nil
	}
	if _, ok := names[m.ActiveLayer]; !ok {
		return fmt.Errorf("%w: active layer %q does not exist", ErrInvariant, m.ActiveLayer)
	}
	return nil
}

// Layer is an ordered collection of map item groups. Paint order is
// derived from item z values, not list order.
type Layer struct {
	Name          string          `json:"name"`
	IsHidden      bool            `json:"isHidden"`
	MapItemGroups []*MapItemGroup `json:"mapItemGroups"`
}

// NewLayer validates group ID uniqueness before building the layer.
func NewLayer(name string, groups ...*MapItemGroup) (*Layer, error) {
	l := &Layer{Name: name}
	if err := l.SetMapItemGroups(groups); err != nil {
		return nil, err
	}
	return l, nil
}

// SetMapItemGroups bulk-replaces the groups after checking ID uniqueness.
func (l *Layer) SetMapItemGroups(groups []*MapItemGroup) error {
	if err := validateGroups(groups); err != nil {
		return fmt.Errorf("layer %q: %w", l.Name, err)
	}
	l.MapItemGroups = append([]*MapItemGroup{}, groups...)
	return nil
}

func (l *Layer) Validate() error {
	if err := validateGroups(l.MapItemGroups); err != nil {
		return fmt.Errorf("layer %q: %w", l.Name, err)
	}
	return nil
}

func validateGroups(groups []*MapItemGroup) error {
	seen := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		if g == nil {
			return fmt.Errorf("%w: nil map item group", ErrInvariant)
		}
		if _, dup := seen[g.ID]; dup {
			return fmt.Errorf("%w: duplicate map item group id %q", ErrInvariant, g.ID)
		}
		seen[g.ID] = struct{}{}
	}
	return nil
}

// MapItemGroup returns the group with the given ID and its index, or
// (nil, -1).
func (l *Layer) MapItemGroup(id string) (*MapItemGroup, int) {
	for i, g := range l.MapItemGroups {
		if g.ID == id {
			return g, i
		}
	}
	return nil, -1
}

// Selected returns the selected groups in list order.
func (l *Layer) Selected() []*MapItemGroup {
	var out []*MapItemGroup
	for _, g := range l.MapItemGroups {
		if g.SelectionStatus.IsSelected() {
			out = append(out, g)
		}
	}
	return out
}

// PaintOrder returns every item of the layer sorted back to front by
// (ZGroup, Z). Ties keep list order.
func (l *Layer) PaintOrder() []*MapItem {
	var items []*MapItem
	for _, g := range l.MapItemGroups {
		items = append(items, g.MapItems...)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].ZGroup != items[j].ZGroup {
			return items[i].ZGroup < items[j].ZGroup
		}
		return items[i].Z < items[j].Z
	})
	return items
}

// MapItemGroup is the unit of selection: its items move, resize and rotate
// together.
type MapItemGroup struct {
	ID              string          `json:"id"`
	SelectionStatus SelectionStatus `json:"selectionStatus"`
	MapItems        []*MapItem      `json:"mapItems"`

	bounds *geom.Rect
}

func NewMapItemGroup(items ...*MapItem) *MapItemGroup {
	return &MapItemGroup{
		ID:              typeid.NewMapItemGroupID(),
		SelectionStatus: SelectionNone,
		MapItems:        append([]*MapItem{}, items...),
	}
}

// Bounds returns the union of the item bounds, cached until the ledger
// touches the group.
func (g *MapItemGroup) Bounds() geom.Rect {
	if g.bounds == nil {
		var r geom.Rect
		for i, item := range g.MapItems {
			if i == 0 {
				r = item.Bounds()
			} else {
				r = r.Union(item.Bounds())
			}
		}
		g.bounds = &r
	}
	return *g.bounds
}

func (g *MapItemGroup) MapItem(id string) (*MapItem, int) {
	for i, item := range g.MapItems {
		if item.ID == id {
			return item, i
		}
	}
	return nil, -1
}

func (g *MapItemGroup) invalidate() { g.bounds = nil }

type MapItem struct {
	ID                 string          `json:"id"`
	MapItemTemplateRef EntityReference `json:"mapItemTemplateRef"`
	Paths              []*Path         `json:"paths"`
	CaptionText        string          `json:"captionText"`
	IsCaptionVisible   bool            `json:"isCaptionVisible"`
	IsHidden           bool            `json:"isHidden"`
	ZGroup             int             `json:"zGroup"`
	Z                  int             `json:"z"`

	bounds *geom.Rect
}

func NewMapItem(template EntityReference, paths ...*Path) *MapItem {
	return &MapItem{
		ID:                 typeid.NewMapItemID(),
		MapItemTemplateRef: template,
		Paths:              append([]*Path{}, paths...),
	}
}

func (it *MapItem) Bounds() geom.Rect {
	if it.bounds == nil {
		var r geom.Rect
		for i, p := range it.Paths {
			if i == 0 {
				r = p.Bounds()
			} else {
				r = r.Union(p.Bounds())
			}
		}
		it.bounds = &r
	}
	return *it.bounds
}

func (it *MapItem) Path(id string) (*Path, int) {
	return findPath(it.Paths, id)
}

func (it *MapItem) invalidate() { it.bounds = nil }

func findPath(paths []*Path, id string) (*Path, int) {
	for i, p := range paths {
		if p.ID == id {
			return p, i
		}
	}
	return nil, -1
}
