package ledger

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/mapwright/mapwright/internal/document"
	"github.com/mapwright/mapwright/internal/geom"
)

func snapshot(t *testing.T, m *document.Map) string {
	t.Helper()
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

func firstPathAddr(m *document.Map) (document.Address, *document.Path) {
	g := m.Layers[0].MapItemGroups[0]
	it := g.MapItems[0]
	p := it.Paths[0]
	return document.Address{LayerName: m.Layers[0].Name, MapItemGroupID: g.ID, MapItemID: it.ID, PathID: p.ID}, p
}

func moveChange(t *testing.T, m *document.Map, to geom.Point) document.Change {
	t.Helper()
	addr, p := firstPathAddr(m)
	c, err := document.Edit(document.KindPath, addr, document.PropStart, p.Start, to)
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	return c
}

func TestUndoRedoRoundTrip(t *testing.T) {
	m := document.NewSampleMap()
	l := New(m)
	before := snapshot(t, m)

	if l.CanUndo() || l.CanRedo() {
		t.Fatalf("fresh ledger should have no history")
	}
	if ok, err := l.Undo(); ok || err != nil {
		t.Fatalf("Undo on empty stack = %v, %v", ok, err)
	}

	if err := l.Commit(document.NewChangeSet(moveChange(t, m, geom.Pt(1, 2)))); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !m.HasUnsavedChanges {
		t.Fatalf("commit should mark the map unsaved")
	}
	after := snapshot(t, m)

	if ok, err := l.Undo(); !ok || err != nil {
		t.Fatalf("undo = %v, %v", ok, err)
	}
	if got := snapshot(t, m); got != before {
		t.Fatalf("undo did not restore the original document")
	}
	if ok, err := l.Redo(); !ok || err != nil {
		t.Fatalf("redo = %v, %v", ok, err)
	}
	if got := snapshot(t, m); got != after {
		t.Fatalf("redo did not reapply the change set")
	}
}

func TestNewEditTruncatesRedo(t *testing.T) {
	m := document.NewSampleMap()
	l := New(m)
	if err := l.Commit(document.NewChangeSet(moveChange(t, m, geom.Pt(1, 1)))); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := l.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if !l.CanRedo() {
		t.Fatalf("expected redo to be available")
	}
	if err := l.SetLayerHidden("Terrain", true); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if l.CanRedo() {
		t.Fatalf("a new edit must clear the redo stack")
	}
	if ok, _ := l.Redo(); ok {
		t.Fatalf("redo should be disabled")
	}
}

func TestTransactions(t *testing.T) {
	m := document.NewSampleMap()
	l := New(m)

	if _, err := l.CompleteChangeSet(); !errors.Is(err, ErrNoTransaction) {
		t.Fatalf("complete without start = %v", err)
	}
	if err := l.StartChangeSet(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := l.StartChangeSet(); !errors.Is(err, ErrTransactionOpen) {
		t.Fatalf("nested start = %v, want ErrTransactionOpen", err)
	}
	if err := l.AddLayer("Roads"); err != nil {
		t.Fatalf("add layer: %v", err)
	}
	if err := l.SetActiveLayer("Roads"); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if l.CanUndo() {
		t.Fatalf("undo must be disabled while a transaction is open")
	}
	cs, err := l.CompleteChangeSet()
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	// two recorded changes plus the unsaved flag
	if len(cs.Changes) != 3 {
		t.Fatalf("change set has %d changes, want 3", len(cs.Changes))
	}
	if _, err := l.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if len(m.Layers) != 2 || m.ActiveLayer != "Terrain" || m.HasUnsavedChanges {
		t.Fatalf("whole transaction was not undone: layers=%d active=%q", len(m.Layers), m.ActiveLayer)
	}
}

func TestRecordFailureAbortsTransaction(t *testing.T) {
	m := document.NewSampleMap()
	l := New(m)
	before := snapshot(t, m)

	if err := l.StartChangeSet(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := l.AddLayer("Roads"); err != nil {
		t.Fatalf("add layer: %v", err)
	}
	stale := moveChange(t, m, geom.Pt(5, 5))
	stale.PathID = "path_gone"
	if err := l.Record(stale); !errors.Is(err, document.ErrAddress) {
		t.Fatalf("record stale change = %v, want ErrAddress", err)
	}
	if l.InTransaction() {
		t.Fatalf("failed record should close the transaction")
	}
	if got := snapshot(t, m); got != before {
		t.Fatalf("failed transaction left partial changes")
	}
}

func TestHistoryIsBounded(t *testing.T) {
	m := document.NewSampleMap()
	l := New(m, WithMaxHistory(3))
	for i := range 5 {
		if err := l.Commit(document.NewChangeSet(moveChange(t, m, geom.Pt(float64(i), 0)))); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}
	undone := 0
	for l.CanUndo() {
		if _, err := l.Undo(); err != nil {
			t.Fatalf("undo: %v", err)
		}
		undone++
	}
	if undone != 3 {
		t.Fatalf("undid %d steps, want 3", undone)
	}
	_, p := firstPathAddr(m)
	if p.Start != geom.Pt(1, 0) {
		t.Fatalf("oldest reachable state start = %v, want (1,0)", p.Start)
	}
}

func TestSubscribe(t *testing.T) {
	m := document.NewSampleMap()
	l := New(m)
	var reasons []Reason
	cancel := l.Subscribe(func(ev Event) { reasons = append(reasons, ev.Reason) })

	g := m.Layers[0].MapItemGroups[0]
	if err := l.SetSelectionStatus("Terrain", g.ID, document.SelectionPrimary); err != nil {
		t.Fatalf("select: %v", err)
	}
	if l.CanUndo() {
		t.Fatalf("selection must not enter the undo history")
	}
	if err := l.Commit(document.NewChangeSet(moveChange(t, m, geom.Pt(3, 3)))); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := l.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if _, err := l.Redo(); err != nil {
		t.Fatalf("redo: %v", err)
	}
	cancel()
	if err := l.SetZoom(2); err != nil {
		t.Fatalf("zoom: %v", err)
	}

	want := []Reason{ReasonPreview, ReasonCommitted, ReasonUndone, ReasonRedone}
	if len(reasons) != len(want) {
		t.Fatalf("reasons = %v, want %v", reasons, want)
	}
	for i := range want {
		if reasons[i] != want[i] {
			t.Fatalf("reasons = %v, want %v", reasons, want)
		}
	}
}

func TestMutators(t *testing.T) {
	m := document.NewSampleMap()
	l := New(m)

	if err := l.AddLayer("Terrain"); !errors.Is(err, document.ErrInvariant) {
		t.Fatalf("duplicate layer = %v", err)
	}
	if err := l.RemoveLayer("Terrain"); err != nil {
		t.Fatalf("remove active layer: %v", err)
	}
	if m.ActiveLayer != "Settlements" {
		t.Fatalf("active layer = %q, want Settlements", m.ActiveLayer)
	}

	g := document.NewMapItemGroup(document.NewMapItem(document.TemplateLand, document.RectPath(0, 0, 10, 10)))
	if err := l.AddMapItemGroup("Settlements", g); err != nil {
		t.Fatalf("add group: %v", err)
	}
	itemAddr := document.Address{LayerName: "Settlements", MapItemGroupID: g.ID, MapItemID: g.MapItems[0].ID}
	if err := l.SetCaption(itemAddr, "Fort", true); err != nil {
		t.Fatalf("caption: %v", err)
	}
	hole := document.RectPath(2, 2, 2, 2)
	if err := l.AddPath(itemAddr, hole); err != nil {
		t.Fatalf("add path: %v", err)
	}
	added := m.Layer("Settlements").MapItemGroups[1].MapItems[0]
	if added.CaptionText != "Fort" || !added.IsCaptionVisible || len(added.Paths) != 2 {
		t.Fatalf("item = %+v", added)
	}
	pathAddr := itemAddr
	pathAddr.PathID = hole.ID
	if err := l.RemovePath(pathAddr); err != nil {
		t.Fatalf("remove path: %v", err)
	}
	if err := l.RemoveMapItemGroup("Settlements", g.ID); err != nil {
		t.Fatalf("remove group: %v", err)
	}
	if err := l.SetPan(geom.Pt(10, 10)); err != nil {
		t.Fatalf("pan: %v", err)
	}

	for l.CanUndo() {
		if _, err := l.Undo(); err != nil {
			t.Fatalf("undo: %v", err)
		}
	}
	if len(m.Layers) != 2 || m.ActiveLayer != "Terrain" {
		t.Fatalf("undo all: layers=%d active=%q", len(m.Layers), m.ActiveLayer)
	}
	if m.Pan != geom.Pt(10, 10) {
		t.Fatalf("viewport changes are not part of history, pan = %v", m.Pan)
	}
}

func TestUnsavedFlagFollowsSavedPosition(t *testing.T) {
	m := document.NewSampleMap()
	l := New(m)

	if err := l.AddLayer("Roads"); err != nil {
		t.Fatalf("add layer: %v", err)
	}
	if err := l.MarkSaved(); err != nil {
		t.Fatalf("mark saved: %v", err)
	}
	if m.HasUnsavedChanges {
		t.Fatalf("mark saved left the flag set")
	}

	steps := []struct {
		name    string
		do      func() (bool, error)
		layers  int
		unsaved bool
	}{
		{"undo past the save", l.Undo, 2, true},
		{"redo back to the save", l.Redo, 3, false},
		{"undo again", l.Undo, 2, true},
	}
	for _, s := range steps {
		if ok, err := s.do(); !ok || err != nil {
			t.Fatalf("%s = %v, %v", s.name, ok, err)
		}
		if len(m.Layers) != s.layers || m.HasUnsavedChanges != s.unsaved {
			t.Fatalf("%s: layers=%d unsaved=%v, want %d %v", s.name, len(m.Layers), m.HasUnsavedChanges, s.layers, s.unsaved)
		}
	}

	// a new edit drops the saved state from the redo stack for good
	if err := l.SetLayerHidden("Terrain", true); err != nil {
		t.Fatalf("hide: %v", err)
	}
	if _, err := l.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if !m.HasUnsavedChanges {
		t.Fatalf("map without the saved layer reports no unsaved changes")
	}
}

func TestUnsavedFlagAfterHistoryTrim(t *testing.T) {
	m := document.NewSampleMap()
	l := New(m, WithMaxHistory(1))

	for _, hidden := range []bool{true, false} {
		if err := l.SetLayerHidden("Terrain", hidden); err != nil {
			t.Fatalf("hide: %v", err)
		}
	}
	if _, err := l.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if l.CanUndo() {
		t.Fatalf("history should hold one step")
	}
	if !m.HasUnsavedChanges {
		t.Fatalf("empty undo stack is not the saved state once history was trimmed")
	}
}
