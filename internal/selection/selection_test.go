package selection

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/mapwright/mapwright/internal/document"
	"github.com/mapwright/mapwright/internal/geom"
	"github.com/mapwright/mapwright/internal/ledger"
)

// newLedger builds a one-layer map with a group per path.
func newLedger(t *testing.T, paths ...*document.Path) (*ledger.Ledger, []*document.MapItemGroup) {
	t.Helper()
	m := document.NewMap("test", "L")
	var groups []*document.MapItemGroup
	for _, p := range paths {
		groups = append(groups, document.NewMapItemGroup(document.NewMapItem(document.TemplateLand, p)))
	}
	if err := m.Layers[0].SetMapItemGroups(groups); err != nil {
		t.Fatalf("groups: %v", err)
	}
	return ledger.New(m), groups
}

func selectGroups(t *testing.T, l *ledger.Ledger, groups ...*document.MapItemGroup) {
	t.Helper()
	for i, g := range groups {
		status := document.SelectionSecondary
		if i == 0 {
			status = document.SelectionPrimary
		}
		if err := l.SetSelectionStatus("L", g.ID, status); err != nil {
			t.Fatalf("select: %v", err)
		}
	}
}

func TestHitTestPriority(t *testing.T) {
	b := geom.Rect{X: 0, Y: 0, Width: 100, Height: 50}
	tests := []struct {
		p    geom.Point
		zoom float64
		want Mode
	}{
		{geom.Pt(50, 25), 1, Move},
		{geom.Pt(50, -24), 1, Rotate},
		{geom.Pt(50, -12), 2, Rotate},
		{geom.Pt(0, 0), 1, ResizeNW},
		{geom.Pt(100, 0), 1, ResizeNE},
		{geom.Pt(101, 25), 1, ResizeE},
		{geom.Pt(50, 52), 1, ResizeS},
		{geom.Pt(-3, 50), 1, ResizeSW},
		{geom.Pt(0, 25), 1, ResizeW},
		{geom.Pt(50, 0), 1, ResizeN},
		{geom.Pt(100, 50), 1, ResizeSE},
		{geom.Pt(200, 200), 1, Default},
	}
	for _, tt := range tests {
		if got := HitTest(b, tt.zoom, tt.p); got != tt.want {
			t.Errorf("HitTest(%v, zoom %v) = %v, want %v", tt.p, tt.zoom, got, tt.want)
		}
	}
	if ResizeNE.Cursor() != "nesw-resize" || Rotate.Cursor() != "grab" {
		t.Fatalf("unexpected cursors")
	}
}

func TestMoveGestureWithLock(t *testing.T) {
	l, groups := newLedger(t, document.RectPath(0, 0, 10, 10))
	selectGroups(t, l, groups[0])
	g := NewGesture(l)

	mode, err := g.Start(geom.Pt(5, 5), false)
	if err != nil || mode != Move {
		t.Fatalf("Start = %v, %v; want Move", mode, err)
	}
	if _, err := g.Start(geom.Pt(5, 5), false); !errors.Is(err, ErrGestureActive) {
		t.Fatalf("second Start = %v, want ErrGestureActive", err)
	}
	if err := g.Update(geom.Pt(15, 7), true); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := g.Update(geom.Pt(15, 5), true); err != nil {
		t.Fatalf("update: %v", err)
	}
	cs, err := g.Complete()
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	if got := groups[0].Bounds(); got != (geom.Rect{X: 10, Y: 0, Width: 10, Height: 10}) {
		t.Fatalf("bounds = %+v, want {10 0 10 10}", got)
	}
	if cs == nil || len(cs.Changes) != 1 {
		t.Fatalf("change set = %+v, want a single edit", cs)
	}
	if c := cs.Changes[0]; c.Type != document.ChangeEdit || c.Kind != document.KindPath || c.Property != document.PropStart {
		t.Fatalf("change = %v, want a path start edit", c)
	}

	if ok, err := l.Undo(); !ok || err != nil {
		t.Fatalf("undo = %v, %v", ok, err)
	}
	if got := groups[0].Bounds(); got != (geom.Rect{X: 0, Y: 0, Width: 10, Height: 10}) {
		t.Fatalf("gesture was not a single undo step, bounds = %+v", got)
	}
	if l.CanUndo() {
		t.Fatalf("previews must not enter the undo history")
	}
}

func TestMoveSnapsToOverlay(t *testing.T) {
	l, groups := newLedger(t, document.RectPath(2, 3, 10, 10))
	selectGroups(t, l, groups[0])
	g := NewGesture(l)
	g.SetOverlay(geom.GridOverlay{Size: 10})

	if _, err := g.Start(geom.Pt(7, 8), false); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := g.Update(geom.Pt(16, 20), false); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := g.Complete(); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got := groups[0].Bounds().TopLeft(); got != geom.Pt(10, 20) {
		t.Fatalf("top-left = %v, want snapped (10,20)", got)
	}
}

func TestRotationDeltaSnaps(t *testing.T) {
	center := geom.Pt(50, 50)
	free := RotationDelta(center, geom.Pt(50, 20), geom.Pt(71, 29), false)
	if math.Abs(geom.Degrees(free)-45) > 1 {
		t.Fatalf("free angle = %v°", geom.Degrees(free))
	}
	locked := RotationDelta(center, geom.Pt(50, 20), geom.Pt(71, 29), true)
	if math.Abs(locked-math.Pi/4) > 1e-12 {
		t.Fatalf("locked angle = %v°, want 45°", geom.Degrees(locked))
	}
	if got := RotationDelta(center, geom.Pt(50, 20), geom.Pt(30, 50), false); math.Abs(geom.Degrees(got)-270) > 1e-9 {
		t.Fatalf("west = %v°, want 270°", geom.Degrees(got))
	}
	if got := SnapAngle(geom.Radians(350)); got != 0 {
		t.Fatalf("SnapAngle(350°) = %v, want 0", got)
	}
}

func TestRotateGestureSnapsTo45(t *testing.T) {
	// center (50,50); the rotate handle sits at (50,20)
	l, groups := newLedger(t, document.RectPath(30, 44, 40, 12))
	selectGroups(t, l, groups[0])
	g := NewGesture(l)

	mode, err := g.Start(geom.Pt(50, 20), false)
	if err != nil || mode != Rotate {
		t.Fatalf("Start = %v, %v; want Rotate", mode, err)
	}
	if err := g.Update(geom.Pt(71, 29.5), true); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := g.Complete(); err != nil {
		t.Fatalf("complete: %v", err)
	}

	p := groups[0].MapItems[0].Paths[0]
	if math.Abs(p.RotationAngle-315) > 1e-9 {
		t.Fatalf("rotation angle = %v, want 315", p.RotationAngle)
	}
	side := 52 / math.Sqrt2
	want := geom.Rect{X: 50 - side/2, Y: 50 - side/2, Width: side, Height: side}
	if got := groups[0].Bounds(); !got.Approx(want, 1e-9) {
		t.Fatalf("bounds = %+v, want %+v", got, want)
	}
}

func TestRotatePathRoundTrip(t *testing.T) {
	p := document.NewPath(geom.Pt(10, 0),
		document.Line(20, 0),
		document.ArcTransit(geom.Arc{End: geom.Pt(0, 20), Center: geom.Pt(0, 10), Radii: geom.Pt(10, 10), SweepFlag: true}),
		document.Line(-20, -20))
	p.ClipPaths = []*document.Path{document.RectPath(12, 2, 2, 2)}
	center := geom.Pt(5, 5)

	back := RotatePath(RotatePath(p, center, 1.1), center, -1.1)
	if !back.Start.Approx(p.Start, 1e-9) || !back.ClipPaths[0].Start.Approx(p.ClipPaths[0].Start, 1e-9) {
		t.Fatalf("start %v, want %v", back.Start, p.Start)
	}
	if math.Abs(back.RotationAngle-p.RotationAngle) > 1e-9 && math.Abs(back.RotationAngle-360) > 1e-9 {
		t.Fatalf("rotation angle %v", back.RotationAngle)
	}
	for i := range p.Transits {
		if !back.Transits[i].End().Approx(p.Transits[i].End(), 1e-9) {
			t.Fatalf("transit %d = %v, want %v", i, back.Transits[i], p.Transits[i])
		}
	}
}

func TestResizePathMinimumGuard(t *testing.T) {
	small := document.RectPath(0, 0, 10, 10)
	out, ok := ResizePath(small, 0.1, 1)
	if ok {
		t.Fatalf("10x10 path should refuse to shrink")
	}
	if got := out.Bounds(); got != (geom.Rect{Width: 10, Height: 10}) {
		t.Fatalf("rejected path changed: %+v", got)
	}

	big := document.RectPath(0, 0, 100, 100)
	out, ok = ResizePath(big, 0.1, 1)
	if !ok {
		t.Fatalf("100x100 path should shrink")
	}
	if got := out.Bounds(); !got.Approx(geom.Rect{Width: 10, Height: 100}, 1e-9) {
		t.Fatalf("bounds = %+v, want 10x100", got)
	}

	if _, ok := ResizePath(big, -1, 1); ok {
		t.Fatalf("negative scale must be rejected")
	}
	if _, ok := ResizePath(small, 2, 0.5); ok {
		t.Fatalf("shrinking the short axis must be rejected")
	}
}

func TestResizeGestureAnchorsAndGuard(t *testing.T) {
	l, groups := newLedger(t, document.RectPath(0, 0, 100, 100), document.RectPath(200, 0, 10, 10))
	selectGroups(t, l, groups...)
	g := NewGesture(l)

	mode, err := g.Start(geom.Pt(100, 50), false)
	if err != nil || mode != ResizeE {
		t.Fatalf("Start = %v, %v; want ResizeE", mode, err)
	}
	if err := g.Update(geom.Pt(10, 50), false); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := g.Complete(); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got := groups[0].Bounds(); !got.Approx(geom.Rect{Width: 10, Height: 100}, 1e-9) {
		t.Fatalf("reference group = %+v, want {0 0 10 100}", got)
	}
	if got := groups[1].Bounds(); got != (geom.Rect{X: 200, Width: 10, Height: 10}) {
		t.Fatalf("small group should be left alone, got %+v", got)
	}
}

func TestResizeGestureLockIsUniform(t *testing.T) {
	l, groups := newLedger(t, document.RectPath(0, 0, 100, 100))
	selectGroups(t, l, groups[0])
	g := NewGesture(l)

	if _, err := g.Start(geom.Pt(100, 50), false); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := g.Update(geom.Pt(150, 50), true); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := g.Complete(); err != nil {
		t.Fatalf("complete: %v", err)
	}
	want := geom.Rect{X: 0, Y: -25, Width: 150, Height: 150}
	if got := groups[0].Bounds(); !got.Approx(want, 1e-9) {
		t.Fatalf("bounds = %+v, want %+v", got, want)
	}
}

func TestResizeScaleByHandle(t *testing.T) {
	b := geom.Rect{X: 0, Y: 0, Width: 100, Height: 50}
	tests := []struct {
		mode   Mode
		delta  geom.Point
		lock   bool
		sx, sy float64
	}{
		{ResizeE, geom.Pt(50, 99), false, 1.5, 1},
		{ResizeW, geom.Pt(50, 0), false, 0.5, 1},
		{ResizeN, geom.Pt(0, -25), false, 1, 1.5},
		{ResizeSE, geom.Pt(100, 50), false, 2, 2},
		{ResizeNW, geom.Pt(10, 10), false, 0.9, 0.8},
		{ResizeS, geom.Pt(0, 25), true, 1.5, 1.5},
		{ResizeNE, geom.Pt(100, 0), true, 2, 2},
	}
	for _, tt := range tests {
		sx, sy := ResizeScale(b, tt.mode, tt.delta, tt.lock)
		if math.Abs(sx-tt.sx) > 1e-12 || math.Abs(sy-tt.sy) > 1e-12 {
			t.Errorf("%v %v lock=%v: scale = (%v, %v), want (%v, %v)", tt.mode, tt.delta, tt.lock, sx, sy, tt.sx, tt.sy)
		}
	}
}

func TestCancelRestoresBaseline(t *testing.T) {
	l, groups := newLedger(t, document.RectPath(0, 0, 10, 10))
	selectGroups(t, l, groups[0])
	g := NewGesture(l)
	if _, err := g.Start(geom.Pt(5, 5), false); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := g.Update(geom.Pt(40, 40), false); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := g.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := groups[0].Bounds(); got != (geom.Rect{Width: 10, Height: 10}) {
		t.Fatalf("bounds after cancel = %+v", got)
	}
	if g.Active() || l.CanUndo() {
		t.Fatalf("cancel left state behind")
	}
}

func TestClickAndBandSelection(t *testing.T) {
	l, groups := newLedger(t,
		document.RectPath(0, 0, 20, 20),
		document.RectPath(50, 0, 20, 20),
		document.RectPath(100, 0, 20, 20))
	g := NewGesture(l)

	click := func(p geom.Point, toggle bool) {
		t.Helper()
		if _, err := g.Start(p, toggle); err != nil {
			t.Fatalf("start: %v", err)
		}
		if _, err := g.Complete(); err != nil {
			t.Fatalf("complete: %v", err)
		}
	}
	statuses := func() []document.SelectionStatus {
		return []document.SelectionStatus{groups[0].SelectionStatus, groups[1].SelectionStatus, groups[2].SelectionStatus}
	}
	expect := func(want ...document.SelectionStatus) {
		t.Helper()
		got := statuses()
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("statuses = %v, want %v", got, want)
			}
		}
	}
	none, sec, pri := document.SelectionNone, document.SelectionSecondary, document.SelectionPrimary

	click(geom.Pt(60, 10), false)
	expect(none, pri, none)
	click(geom.Pt(110, 10), true)
	expect(none, pri, sec)
	click(geom.Pt(60, 10), true)
	expect(none, none, pri)
	click(geom.Pt(300, 300), false)
	expect(none, none, none)

	if _, err := g.Start(geom.Pt(-5, -5), false); err != nil {
		t.Fatalf("start band: %v", err)
	}
	if err := g.Update(geom.Pt(80, 30), false); err != nil {
		t.Fatalf("update band: %v", err)
	}
	if band, ok := g.Band(); !ok || band.Width != 85 {
		t.Fatalf("band = %+v, %v", band, ok)
	}
	if _, err := g.Complete(); err != nil {
		t.Fatalf("complete band: %v", err)
	}
	expect(pri, sec, none)
	if l.CanUndo() {
		t.Fatalf("selection must not be undoable")
	}
}

func TestSelectionExclusivity(t *testing.T) {
	var groups []*document.MapItemGroup
	for range 6 {
		groups = append(groups, document.NewMapItemGroup())
	}
	rng := rand.New(rand.NewPCG(7, 11))
	for step := range 500 {
		var hits []string
		for _, g := range groups {
			if rng.IntN(3) == 0 {
				hits = append(hits, g.ID)
			}
		}
		var next map[string]document.SelectionStatus
		if rng.IntN(2) == 0 {
			next = Toggle(groups, hits)
		} else {
			next = Replace(groups, hits)
		}
		primaries, selected := 0, 0
		for _, g := range groups {
			if s, ok := next[g.ID]; ok {
				g.SelectionStatus = s
			}
			if g.SelectionStatus == document.SelectionPrimary {
				primaries++
			}
			if g.SelectionStatus.IsSelected() {
				selected++
			}
		}
		if primaries > 1 {
			t.Fatalf("step %d: %d primaries", step, primaries)
		}
		if selected > 0 && primaries != 1 {
			t.Fatalf("step %d: selection without a primary", step)
		}
	}
}

func TestSelectAllDeleteAndNudge(t *testing.T) {
	l, groups := newLedger(t, document.RectPath(0, 0, 20, 20), document.RectPath(500, 500, 20, 20))
	if err := SelectAll(l, geom.Rect{Width: 100, Height: 100}); err != nil {
		t.Fatalf("select all: %v", err)
	}
	if groups[0].SelectionStatus != document.SelectionPrimary || groups[1].SelectionStatus != document.SelectionNone {
		t.Fatalf("select all in view picked %v %v", groups[0].SelectionStatus, groups[1].SelectionStatus)
	}

	if _, err := Nudge(l, geom.Pt(10, 0)); err != nil {
		t.Fatalf("nudge: %v", err)
	}
	if got := groups[0].Bounds().X; got != 10 {
		t.Fatalf("nudged x = %v", got)
	}

	cs, err := DeleteSelected(l)
	if err != nil || cs == nil {
		t.Fatalf("delete = %v, %v", cs, err)
	}
	if n := len(l.Map().Layers[0].MapItemGroups); n != 1 {
		t.Fatalf("%d groups left, want 1", n)
	}
	if _, err := l.Undo(); err != nil {
		t.Fatalf("undo delete: %v", err)
	}
	if n := len(l.Map().Layers[0].MapItemGroups); n != 2 {
		t.Fatalf("undo did not restore the group")
	}

	if err := UnselectAll(l); err != nil {
		t.Fatalf("unselect: %v", err)
	}
	for _, g := range l.Map().Layers[0].MapItemGroups {
		if g.SelectionStatus != document.SelectionNone {
			t.Fatalf("group %s still selected", g.ID)
		}
	}
}

func TestUndoDeleteKeepsOnePrimary(t *testing.T) {
	l, groups := newLedger(t, document.RectPath(0, 0, 20, 20), document.RectPath(50, 0, 20, 20))
	a, b := groups[0].ID, groups[1].ID
	layer := l.Map().Layers[0]

	if err := applyStatuses(l, layer, Replace(layer.MapItemGroups, []string{a})); err != nil {
		t.Fatalf("select a: %v", err)
	}
	if _, err := DeleteSelected(l); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := applyStatuses(l, layer, Replace(layer.MapItemGroups, []string{b})); err != nil {
		t.Fatalf("select b: %v", err)
	}
	if _, err := l.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}

	statuses := map[string]document.SelectionStatus{}
	primaries := 0
	for _, g := range layer.MapItemGroups {
		statuses[g.ID] = g.SelectionStatus
		if g.SelectionStatus == document.SelectionPrimary {
			primaries++
		}
	}
	if primaries != 1 {
		t.Fatalf("%d primaries after undo, want 1", primaries)
	}
	if statuses[b] != document.SelectionPrimary || statuses[a] != document.SelectionSecondary {
		t.Fatalf("statuses after undo = %v", statuses)
	}

	// redo and undo again land on the same selection
	if _, err := l.Redo(); err != nil {
		t.Fatalf("redo: %v", err)
	}
	if _, err := l.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if g, _ := layer.MapItemGroup(a); g == nil || g.SelectionStatus != document.SelectionSecondary {
		t.Fatalf("restored group = %+v", g)
	}
}

func TestMoveGestureLockWithoutDelta(t *testing.T) {
	l, groups := newLedger(t, document.RectPath(2, 3, 10, 10))
	selectGroups(t, l, groups[0])
	g := NewGesture(l)
	g.SetOverlay(geom.GridOverlay{Size: 10})

	if _, err := g.Start(geom.Pt(7, 8), false); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := g.Update(geom.Pt(7, 8), true); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := groups[0].Bounds().TopLeft(); got != geom.Pt(2, 3) {
		t.Fatalf("preview top-left = %v, want (2,3)", got)
	}
	cs, err := g.Complete()
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if cs != nil || l.CanUndo() {
		t.Fatalf("a locked move without delta committed %+v", cs)
	}
}

func TestFailedCommitRestoresBaseline(t *testing.T) {
	l, groups := newLedger(t, document.RectPath(0, 0, 10, 10), document.RectPath(20, 0, 10, 10))
	selectGroups(t, l, groups[0], groups[1])
	g := NewGesture(l)

	if mode, err := g.Start(geom.Pt(5, 5), false); err != nil || mode != Move {
		t.Fatalf("Start = %v, %v; want Move", mode, err)
	}
	if err := g.Update(geom.Pt(25, 5), false); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := l.RemoveMapItemGroup("L", groups[1].ID); err != nil {
		t.Fatalf("remove: %v", err)
	}

	cs, err := g.Complete()
	if !errors.Is(err, document.ErrAddress) || cs != nil {
		t.Fatalf("Complete = %v, %v; want ErrAddress", cs, err)
	}
	if got := groups[0].Bounds(); got != (geom.Rect{Width: 10, Height: 10}) {
		t.Fatalf("bounds after failed commit = %+v, want baseline", got)
	}
	if g.Active() {
		t.Fatalf("gesture still active after failed commit")
	}
}
