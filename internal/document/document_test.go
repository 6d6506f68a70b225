package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mapwright/mapwright/internal/geom"
)

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func mustChange(t *testing.T) func(Change, error) Change {
	return func(c Change, err error) Change {
		t.Helper()
		if err != nil {
			t.Fatalf("build change: %v", err)
		}
		return c
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	m := NewSampleMap()
	group := m.Layers[0].MapItemGroups[0]
	item := group.MapItems[0]
	path := item.Paths[0]

	tests := []struct {
		name string
		v    any
		into func() any
	}{
		{"map", m, func() any { return &Map{} }},
		{"layer", m.Layers[0], func() any { return &Layer{} }},
		{"group", group, func() any { return &MapItemGroup{} }},
		{"item", item, func() any { return &MapItem{} }},
		{"path", path, func() any { return &Path{} }},
		{"arc path", m.Layers[0].MapItemGroups[1].MapItems[0].Paths[0], func() any { return &Path{} }},
		{"reference", TemplateLand, func() any { return &EntityReference{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first := mustJSON(t, tt.v)
			decoded := tt.into()
			if err := json.Unmarshal(first, decoded); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if second := mustJSON(t, decoded); !bytes.Equal(first, second) {
				t.Fatalf("snapshot changed:\n%s\n%s", first, second)
			}
		})
	}
}

func TestDecodeValidates(t *testing.T) {
	m := NewSampleMap()
	data, err := Encode(m)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.ActiveLayer != "Terrain" || len(back.Layers) != 2 {
		t.Fatalf("unexpected decoded map: %+v", back)
	}

	bad := m.Clone()
	bad.ActiveLayer = "Nowhere"
	if _, err := Decode(mustJSON(t, bad)); !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected invariant error for dangling active layer, got %v", err)
	}

	dup := m.Clone()
	dup.Layers[1].Name = dup.Layers[0].Name
	if _, err := Decode(mustJSON(t, dup)); !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected invariant error for duplicate layer, got %v", err)
	}
}

func TestNewLayerRejectsDuplicateGroups(t *testing.T) {
	g := NewMapItemGroup()
	if _, err := NewLayer("L", g, g); !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
	l, err := NewLayer("L", g, NewMapItemGroup())
	if err != nil {
		t.Fatalf("NewLayer: %v", err)
	}
	if err := l.SetMapItemGroups([]*MapItemGroup{g, g}); err == nil {
		t.Fatalf("expected bulk replace to fail")
	}
	if len(l.MapItemGroups) != 2 {
		t.Fatalf("failed bulk replace modified the layer")
	}
}

func TestTransitJSON(t *testing.T) {
	line := Line(3, 4)
	if got := string(mustJSON(t, line)); got != `{"kind":"line","to":{"x":3,"y":4}}` {
		t.Fatalf("line json = %s", got)
	}
	var back Transit
	if err := json.Unmarshal([]byte(`{"kind":"arc","arc":{"end":{"x":2,"y":0},"center":{"x":1,"y":0},"radii":{"x":1,"y":1},"rotationAngle":0,"sweepFlag":true}}`), &back); err != nil {
		t.Fatalf("unmarshal arc: %v", err)
	}
	if back.Kind != TransitArc || back.End() != geom.Pt(2, 0) {
		t.Fatalf("arc transit = %+v", back)
	}
	if err := json.Unmarshal([]byte(`{"kind":"spline"}`), &back); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestPathBounds(t *testing.T) {
	m := NewSampleMap()
	bay := m.Layers[0].MapItemGroups[1].MapItems[0].Paths[0]
	want := geom.Rect{X: 540, Y: 190, Width: 120, Height: 120}
	if got := bay.Bounds(); !got.Approx(want, 1e-9) {
		t.Fatalf("circle bounds = %+v, want %+v", got, want)
	}
	island := m.Layers[0].MapItemGroups[0]
	if got := island.Bounds(); got != (geom.Rect{X: 100, Y: 100, Width: 400, Height: 300}) {
		t.Fatalf("group bounds = %+v", got)
	}
}

func TestPaintOrder(t *testing.T) {
	a := NewMapItem(TemplateLand)
	a.ZGroup, a.Z = 1, 0
	b := NewMapItem(TemplateLand)
	b.ZGroup, b.Z = 0, 5
	c := NewMapItem(TemplateLand)
	c.ZGroup, c.Z = 0, 2
	l, err := NewLayer("L", NewMapItemGroup(a), NewMapItemGroup(b, c))
	if err != nil {
		t.Fatalf("NewLayer: %v", err)
	}
	got := l.PaintOrder()
	if got[0] != c || got[1] != b || got[2] != a {
		t.Fatalf("paint order = %v %v %v", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestApplyRoundTrip(t *testing.T) {
	must := mustChange(t)
	m := NewSampleMap()
	g := m.Layers[0].MapItemGroups[0]
	it := g.MapItems[0]
	p := it.Paths[0]
	pathAddr := Address{LayerName: "Terrain", MapItemGroupID: g.ID, MapItemID: it.ID, PathID: p.ID}
	newGroup := NewMapItemGroup(NewMapItem(TemplateCity, RectPath(0, 0, 5, 5)))

	cs := NewChangeSet(
		must(Edit(KindPath, pathAddr, PropStart, p.Start, geom.Pt(10, 20))),
		must(Edit(KindPath, pathAddr, PropTransits, p.Transits, []Transit{Line(1, 0), Line(0, 1), Line(-1, -1)})),
		must(Edit(KindMapItem, Address{LayerName: "Terrain", MapItemGroupID: g.ID, MapItemID: it.ID}, PropCaptionText, it.CaptionText, "Renamed")),
		must(Edit(KindMapItemGroup, Address{LayerName: "Terrain", MapItemGroupID: g.ID}, PropSelectionStatus, g.SelectionStatus, SelectionPrimary)),
		must(Insert(KindMapItemGroup, Address{LayerName: "Terrain"}, 2, newGroup)),
		must(Delete(KindMapItemGroup, Address{LayerName: "Terrain"}, 1, m.Layers[0].MapItemGroups[1])),
		must(Insert(KindLayer, Address{}, 2, &Layer{Name: "Roads", MapItemGroups: []*MapItemGroup{}})),
		must(Edit(KindMap, Address{}, PropActiveLayer, m.ActiveLayer, "Roads")),
		must(Edit(KindMap, Address{}, PropZoom, m.Zoom, 2.5)),
	)

	before := mustJSON(t, m)
	if err := ApplySet(m, cs, false); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if m.ActiveLayer != "Roads" || len(m.Layers) != 3 {
		t.Fatalf("forward apply incomplete: active=%q layers=%d", m.ActiveLayer, len(m.Layers))
	}
	if got := m.Layers[0].MapItemGroups[1].ID; got != newGroup.ID {
		t.Fatalf("inserted group at %q, want %q", got, newGroup.ID)
	}
	if got := g.Bounds(); got != (geom.Rect{X: 10, Y: 20, Width: 1, Height: 1}) {
		t.Fatalf("bounds cache not invalidated: %+v", got)
	}

	if err := ApplySet(m, cs, true); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if after := mustJSON(t, m); !bytes.Equal(before, after) {
		t.Fatalf("undo did not restore the document:\n%s\n%s", before, after)
	}
}

func TestApplySetIsAtomic(t *testing.T) {
	must := mustChange(t)
	m := NewSampleMap()
	g := m.Layers[0].MapItemGroups[0]
	before := mustJSON(t, m)

	cs := NewChangeSet(
		must(Edit(KindMapItemGroup, Address{LayerName: "Terrain", MapItemGroupID: g.ID}, PropSelectionStatus, SelectionNone, SelectionPrimary)),
		must(Edit(KindMapItem, Address{LayerName: "Terrain", MapItemGroupID: g.ID, MapItemID: "item_missing"}, PropZ, 0, 3)),
	)
	err := ApplySet(m, cs, false)
	var addrError *AddressError
	if !errors.As(err, &addrError) || !errors.Is(err, ErrAddress) {
		t.Fatalf("expected address error, got %v", err)
	}
	if after := mustJSON(t, m); !bytes.Equal(before, after) {
		t.Fatalf("failed set was partially applied")
	}
}

func TestApplySetMalformedValueLeavesMapUntouched(t *testing.T) {
	m := NewSampleMap()
	g := m.Layers[0].MapItemGroups[0]
	it := g.MapItems[0]
	p := it.Paths[0]
	addr := Address{LayerName: "Terrain", MapItemGroupID: g.ID, MapItemID: it.ID, PathID: p.ID}
	before := mustJSON(t, m)

	tests := []struct {
		name     string
		kind     ObjectKind
		addr     Address
		property string
		value    string
	}{
		{"path start", KindPath, addr, PropStart, `{"x":"bad","y":99}`},
		{"map pan", KindMap, Address{}, PropPan, `{"y":7,"x":"bad"}`},
		{"map ref", KindMap, Address{}, PropRef, `{"name":"Renamed","versionId":"bad"}`},
		{"item template ref", KindMapItem, Address{LayerName: "Terrain", MapItemGroupID: g.ID, MapItemID: it.ID}, PropMapItemTemplateRef, `{"name":"Other","versionId":"bad"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Change{Type: ChangeEdit, Kind: tt.kind, Property: tt.property, Address: tt.addr,
				OldValue: json.RawMessage(`null`), NewValue: json.RawMessage(tt.value)}
			if err := ApplySet(m, NewChangeSet(c), false); !errors.Is(err, ErrInvariant) {
				t.Fatalf("expected invariant error, got %v", err)
			}
			if after := mustJSON(t, m); !bytes.Equal(before, after) {
				t.Fatalf("failed edit mutated the map:\n%s", after)
			}
		})
	}
}

func TestApplySetValidatesResult(t *testing.T) {
	must := mustChange(t)
	m := NewSampleMap()
	cs := NewChangeSet(must(Delete(KindLayer, Address{}, 0, m.Layers[0])))
	if err := ApplySet(m, cs, false); !errors.Is(err, ErrInvariant) {
		t.Fatalf("deleting the active layer should fail validation, got %v", err)
	}
	if len(m.Layers) != 2 {
		t.Fatalf("layer deletion was not rolled back")
	}
}

func TestApplyAddressingErrors(t *testing.T) {
	must := mustChange(t)
	m := NewSampleMap()
	layer := m.Layers[0]
	stranger := NewMapItemGroup()

	tests := []struct {
		name string
		c    Change
		want error
	}{
		{"insert past end", must(Insert(KindMapItemGroup, Address{LayerName: "Terrain"}, 3, stranger)), ErrAddress},
		{"insert negative", must(Insert(KindMapItemGroup, Address{LayerName: "Terrain"}, -1, stranger)), ErrAddress},
		{"insert duplicate id", must(Insert(KindMapItemGroup, Address{LayerName: "Terrain"}, 0, layer.MapItemGroups[0])), ErrInvariant},
		{"delete wrong element", must(Delete(KindMapItemGroup, Address{LayerName: "Terrain"}, 0, stranger)), ErrAddress},
		{"delete stale index", must(Delete(KindMapItemGroup, Address{LayerName: "Terrain"}, 5, layer.MapItemGroups[0])), ErrAddress},
		{"missing layer", must(Edit(KindLayer, Address{LayerName: "Nope"}, PropIsHidden, false, true)), ErrAddress},
		{"unknown property", must(Edit(KindLayer, Address{LayerName: "Terrain"}, "color", "", "red")), ErrUnknownKind},
		{"unknown kind", Change{Type: ChangeEdit, Kind: "scene"}, ErrUnknownKind},
		{"insert map", must(Insert(KindMap, Address{}, 0, m)), ErrInvariant},
		{"null pan", Change{Type: ChangeEdit, Kind: KindMap, Property: PropPan, NewValue: json.RawMessage("null")}, ErrInvariant},
		{"zero zoom", must(Edit(KindMap, Address{}, PropZoom, 1, 0)), ErrInvariant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Apply(m, tt.c, false); !errors.Is(err, tt.want) {
				t.Fatalf("Apply = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	m := NewSampleMap()
	c := m.Clone()
	c.Layers[0].MapItemGroups[0].MapItems[0].Paths[0].Transits[0] = Line(99, 99)
	c.Layers[0].Name = "Changed"
	c.ToolPalette.Groups[0][0] = ToolCombine
	if m.Layers[0].Name != "Terrain" ||
		m.Layers[0].MapItemGroups[0].MapItems[0].Paths[0].Transits[0] != Line(400, 0) ||
		m.ToolPalette.Groups[0][0] != ToolSelect {
		t.Fatalf("clone shares state with the original")
	}
}

func TestInverseUndoesForwardApply(t *testing.T) {
	must := mustChange(t)
	m := NewSampleMap()
	before := mustJSON(t, m)
	layer := m.Layers[0]
	cs := NewChangeSet(
		must(Edit(KindLayer, Address{LayerName: "Terrain"}, PropIsHidden, false, true)),
		must(Delete(KindMapItemGroup, Address{LayerName: "Terrain"}, 0, layer.MapItemGroups[0])),
		must(Insert(KindMapItemGroup, Address{LayerName: "Terrain"}, 1, NewMapItemGroup())),
	)
	if err := ApplySet(m, cs, false); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := ApplySet(m, cs.Inverse(), false); err != nil {
		t.Fatalf("apply inverse: %v", err)
	}
	if after := mustJSON(t, m); !bytes.Equal(before, after) {
		t.Fatalf("inverse did not restore the document")
	}
}
