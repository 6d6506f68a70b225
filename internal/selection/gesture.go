package selection

import (
	"errors"
	"fmt"
	"slices"

	"github.com/mapwright/mapwright/internal/document"
	"github.com/mapwright/mapwright/internal/geom"
	"github.com/mapwright/mapwright/internal/ledger"
)

var (
	ErrGestureActive = errors.New("selection: a gesture is already in progress")
	ErrNoGesture     = errors.New("selection: no gesture in progress")
)

// clickTolerance is the screen distance under which a select gesture is a
// click rather than a rubber band.
const clickTolerance = 3.0

type pathState struct {
	addr document.Address
	base *document.Path
}

type groupState struct {
	id     string
	bounds geom.Rect
	paths  []pathState
}

// Gesture runs one pointer gesture at a time against the active layer of
// the ledger's map. Pointer positions are in screen units; the map's pan
// is the world position of the screen origin.
//
// Intermediate states are previewed so the document always shows the drag;
// Complete commits the difference from the baseline as one change set.
type Gesture struct {
	ledger  *ledger.Ledger
	overlay geom.Overlay

	active     bool
	mode       Mode
	toggle     bool
	layer      string
	zoom       float64
	pan        geom.Point
	startWorld geom.Point
	lastWorld  geom.Point
	reference  geom.Rect
	groups     []groupState
	targets    map[document.Address]*document.Path
}

func NewGesture(l *ledger.Ledger) *Gesture {
	return &Gesture{ledger: l, overlay: geom.NoOverlay{}}
}

// SetOverlay sets the snapping overlay for move and resize. nil disables
// snapping.
func (g *Gesture) SetOverlay(o geom.Overlay) {
	if o == nil {
		o = geom.NoOverlay{}
	}
	g.overlay = o
}

func (g *Gesture) Active() bool { return g.active }
func (g *Gesture) Mode() Mode   { return g.mode }

// Band returns the rubber band of a select gesture.
func (g *Gesture) Band() (geom.Rect, bool) {
	if !g.active || g.mode != Select {
		return geom.Rect{}, false
	}
	return geom.RectFromPoints(g.startWorld, g.lastWorld), true
}

// HoverMode reports the mode a gesture starting at pointer would enter,
// for cursor feedback.
func (g *Gesture) HoverMode(pointer geom.Point) Mode {
	m := g.ledger.Map()
	zoom, pan := viewport(m)
	world := pan.Add(pointer.Div(zoom))
	for _, grp := range selectedGroups(m.Active()) {
		if mode := HitTest(grp.Bounds(), zoom, world); mode != Default {
			return mode
		}
	}
	return Default
}

func viewport(m *document.Map) (float64, geom.Point) {
	zoom := m.Zoom
	if zoom <= 0 {
		zoom = 1
	}
	return zoom, m.Pan
}

func (g *Gesture) toWorld(pointer geom.Point) geom.Point {
	return g.pan.Add(pointer.Div(g.zoom))
}

// selectedGroups lists the selected groups of a visible layer, primary
// first.
func selectedGroups(layer *document.Layer) []*document.MapItemGroup {
	if layer == nil || layer.IsHidden {
		return nil
	}
	selected := layer.Selected()
	slices.SortStableFunc(selected, func(a, b *document.MapItemGroup) int {
		switch {
		case a.SelectionStatus == b.SelectionStatus:
			return 0
		case a.SelectionStatus == document.SelectionPrimary:
			return -1
		case b.SelectionStatus == document.SelectionPrimary:
			return 1
		}
		return 0
	})
	return selected
}

// Start begins a gesture. The mode is chosen by hit testing the selected
// groups; a miss, or any start with toggle set, begins a rubber-band
// selection.
func (g *Gesture) Start(pointer geom.Point, toggle bool) (Mode, error) {
	if g.active {
		return g.mode, ErrGestureActive
	}
	m := g.ledger.Map()
	g.zoom, g.pan = viewport(m)
	g.startWorld = g.toWorld(pointer)
	g.lastWorld = g.startWorld
	g.toggle = toggle
	g.layer = m.ActiveLayer
	g.mode = Select
	g.groups = nil
	g.targets = nil

	// a modified click always edits the selection
	var selected []*document.MapItemGroup
	if !toggle {
		selected = selectedGroups(m.Active())
	}
	for _, grp := range selected {
		if mode := HitTest(grp.Bounds(), g.zoom, g.startWorld); mode != Default {
			g.mode = mode
			g.reference = grp.Bounds()
			break
		}
	}
	if g.mode != Select {
		for _, grp := range selected {
			g.groups = append(g.groups, snapshotGroup(g.layer, grp))
		}
	}
	g.active = true
	logger().Debug("gesture started", "mode", g.mode, "groups", len(g.groups))
	return g.mode, nil
}

func snapshotGroup(layer string, grp *document.MapItemGroup) groupState {
	st := groupState{id: grp.ID, bounds: grp.Bounds()}
	for _, it := range grp.MapItems {
		for _, p := range it.Paths {
			st.paths = append(st.paths, pathState{
				addr: document.Address{LayerName: layer, MapItemGroupID: grp.ID, MapItemID: it.ID, PathID: p.ID},
				base: p.Clone(),
			})
		}
	}
	return st
}

// Update moves the gesture to pointer. lock constrains moves to one axis,
// resizes to uniform scale and rotation to 45° steps.
func (g *Gesture) Update(pointer geom.Point, lock bool) error {
	if !g.active {
		return ErrNoGesture
	}
	g.lastWorld = g.toWorld(pointer)
	delta := g.lastWorld.Sub(g.startWorld)

	var targets map[document.Address]*document.Path
	switch {
	case g.mode == Select:
		return nil
	case g.mode == Move:
		targets = g.moveTargets(delta, lock)
	case g.mode.IsResize():
		targets = g.resizeTargets(delta, lock)
	case g.mode == Rotate:
		targets = g.rotateTargets(RotationDelta(g.reference.Center(), g.startWorld, g.lastWorld, lock))
	default:
		return nil
	}
	if err := g.preview(targets); err != nil {
		return err
	}
	g.targets = targets
	return nil
}

func (g *Gesture) moveTargets(delta geom.Point, lock bool) map[document.Address]*document.Path {
	if lock {
		delta = LockAxis(delta)
	}
	topLeft := g.reference.TopLeft()
	snapped := g.overlay.Snap(topLeft.Add(delta)).Sub(topLeft)
	if lock {
		switch {
		case delta.IsZero():
			snapped = geom.Point{}
		case delta.Y == 0:
			snapped.Y = 0
		default:
			snapped.X = 0
		}
	}
	delta = snapped

	targets := make(map[document.Address]*document.Path)
	for _, grp := range g.groups {
		for _, ps := range grp.paths {
			targets[ps.addr] = MovePath(ps.base, delta)
		}
	}
	return targets
}

// ResizeScale returns the scale factors for dragging the handle of mode by
// delta on bounds. With lock the scale is uniform.
func ResizeScale(bounds geom.Rect, mode Mode, delta geom.Point, lock bool) (scaleX, scaleY float64) {
	ex, ey := mode.edges()
	scaleX, scaleY = 1, 1
	if ex != 0 && bounds.Width != 0 {
		scaleX = (bounds.Width + float64(ex)*delta.X) / bounds.Width
	}
	if ey != 0 && bounds.Height != 0 {
		scaleY = (bounds.Height + float64(ey)*delta.Y) / bounds.Height
	}
	if lock {
		if ex != 0 {
			scaleY = scaleX
		} else {
			scaleX = scaleY
		}
	}
	return scaleX, scaleY
}

// anchor is the point of b that stays fixed when the handle of mode is
// dragged: the opposite edge on dragged axes and the center otherwise.
func anchor(b geom.Rect, mode Mode) geom.Point {
	ex, ey := mode.edges()
	pick := func(e int, lo, size float64) float64 {
		switch e {
		case 1:
			return lo
		case -1:
			return lo + size
		}
		return lo + size/2
	}
	return geom.Pt(pick(ex, b.X, b.Width), pick(ey, b.Y, b.Height))
}

func (g *Gesture) resizeTargets(delta geom.Point, lock bool) map[document.Address]*document.Path {
	ex, ey := g.mode.edges()
	handle := handlePoint(g.reference, g.mode)
	snapped := g.overlay.Snap(handle.Add(delta))
	if ex != 0 {
		delta.X = snapped.X - handle.X
	}
	if ey != 0 {
		delta.Y = snapped.Y - handle.Y
	}
	scaleX, scaleY := ResizeScale(g.reference, g.mode, delta, lock)

	targets := make(map[document.Address]*document.Path)
	for _, grp := range g.groups {
		a := anchor(grp.bounds, g.mode)
		for _, ps := range grp.paths {
			if !canResize(ps.base.Bounds(), scaleX, scaleY) {
				targets[ps.addr] = ps.base
				continue
			}
			targets[ps.addr] = scaleAbout(ps.base, a, scaleX, scaleY)
		}
	}
	return targets
}

func (g *Gesture) rotateTargets(angle float64) map[document.Address]*document.Path {
	targets := make(map[document.Address]*document.Path)
	for _, grp := range g.groups {
		center := grp.bounds.Center()
		for _, ps := range grp.paths {
			targets[ps.addr] = RotatePath(ps.base, center, angle)
		}
	}
	return targets
}

// preview brings the live document to targets.
func (g *Gesture) preview(targets map[document.Address]*document.Path) error {
	m := g.ledger.Map()
	cs := document.NewChangeSet()
	for _, grp := range g.groups {
		for _, ps := range grp.paths {
			next, ok := targets[ps.addr]
			if !ok {
				continue
			}
			cur := lookupPath(m, ps.addr)
			if cur == nil {
				return fmt.Errorf("preview %s: %w", ps.addr.PathID, document.ErrAddress)
			}
			changes, err := DiffPath(ps.addr, cur, next)
			if err != nil {
				return err
			}
			cs.Add(changes...)
		}
	}
	return g.ledger.Preview(cs)
}

// Complete ends the gesture. Transforms are committed as one change set,
// which is returned; nil means the document did not change. A select
// gesture applies the selection policy instead.
func (g *Gesture) Complete() (*document.ChangeSet, error) {
	if !g.active {
		return nil, ErrNoGesture
	}
	defer g.reset()

	if g.mode == Select {
		return nil, g.completeSelect()
	}
	if g.targets == nil {
		return nil, nil
	}
	cs := document.NewChangeSet()
	for _, grp := range g.groups {
		for _, ps := range grp.paths {
			changes, err := DiffPath(ps.addr, ps.base, g.targets[ps.addr])
			if err != nil {
				return nil, g.abort(err)
			}
			cs.Add(changes...)
		}
	}
	if cs.Empty() {
		return nil, nil
	}
	if err := g.ledger.Commit(cs); err != nil {
		return nil, g.abort(err)
	}
	logger().Debug("gesture committed", "mode", g.mode, "changes", len(cs.Changes))
	return cs, nil
}

// abort restores the baseline after a failed commit so the previewed state
// does not outlive the gesture.
func (g *Gesture) abort(err error) error {
	if cerr := g.Cancel(); cerr != nil {
		return errors.Join(err, cerr)
	}
	return err
}

// Cancel ends the gesture and restores the baseline.
func (g *Gesture) Cancel() error {
	if !g.active {
		return nil
	}
	defer g.reset()
	if g.targets == nil {
		return nil
	}
	m := g.ledger.Map()
	base := make(map[document.Address]*document.Path)
	for _, grp := range g.groups {
		for _, ps := range grp.paths {
			// paths removed mid-gesture have nothing left to restore
			if lookupPath(m, ps.addr) != nil {
				base[ps.addr] = ps.base
			}
		}
	}
	return g.preview(base)
}

func (g *Gesture) reset() {
	g.active = false
	g.mode = Default
	g.groups = nil
	g.targets = nil
}

func (g *Gesture) completeSelect() error {
	m := g.ledger.Map()
	layer := m.Layer(g.layer)
	if layer == nil || layer.IsHidden {
		return nil
	}
	band := geom.RectFromPoints(g.startWorld, g.lastWorld)
	var hits []string
	if band.Width*g.zoom < clickTolerance && band.Height*g.zoom < clickTolerance {
		if id := topmostAt(layer, g.lastWorld); id != "" {
			hits = append(hits, id)
		}
	} else {
		for _, grp := range layer.MapItemGroups {
			if visible(grp) && band.ContainsRect(grp.Bounds()) {
				hits = append(hits, grp.ID)
			}
		}
	}
	var next map[string]document.SelectionStatus
	if g.toggle {
		next = Toggle(layer.MapItemGroups, hits)
	} else {
		next = Replace(layer.MapItemGroups, hits)
	}
	return applyStatuses(g.ledger, layer, next)
}

// topmostAt returns the group owning the frontmost visible item whose
// bounds contain p.
func topmostAt(layer *document.Layer, p geom.Point) string {
	owner := make(map[string]string)
	for _, grp := range layer.MapItemGroups {
		for _, it := range grp.MapItems {
			owner[it.ID] = grp.ID
		}
	}
	items := layer.PaintOrder()
	for i := len(items) - 1; i >= 0; i-- {
		if !items[i].IsHidden && items[i].Bounds().Contains(p) {
			return owner[items[i].ID]
		}
	}
	return ""
}

func visible(grp *document.MapItemGroup) bool {
	for _, it := range grp.MapItems {
		if !it.IsHidden {
			return true
		}
	}
	return false
}

func lookupPath(m *document.Map, addr document.Address) *document.Path {
	layer := m.Layer(addr.LayerName)
	if layer == nil {
		return nil
	}
	grp, _ := layer.MapItemGroup(addr.MapItemGroupID)
	if grp == nil {
		return nil
	}
	it, _ := grp.MapItem(addr.MapItemID)
	if it == nil {
		return nil
	}
	p, _ := it.Path(addr.PathID)
	return p
}

// DiffPath returns one edit per geometric property that differs between
// cur and next, recursing into clip paths by id. addr names the path.
func DiffPath(addr document.Address, cur, next *document.Path) ([]document.Change, error) {
	changes, err := diffGeometry(document.KindPath, addr, cur, next)
	if err != nil {
		return nil, err
	}
	for _, clip := range next.ClipPaths {
		curClip, _ := cur.ClipPath(clip.ID)
		if curClip == nil {
			return nil, fmt.Errorf("diff clip path %q: %w", clip.ID, document.ErrAddress)
		}
		clipAddr := addr
		clipAddr.ClipPathID = clip.ID
		more, err := diffGeometry(document.KindClipPath, clipAddr, curClip, clip)
		if err != nil {
			return nil, err
		}
		changes = append(changes, more...)
	}
	return changes, nil
}

func diffGeometry(kind document.ObjectKind, addr document.Address, cur, next *document.Path) ([]document.Change, error) {
	var changes []document.Change
	add := func(prop string, oldValue, newValue any) error {
		c, err := document.Edit(kind, addr, prop, oldValue, newValue)
		if err != nil {
			return err
		}
		changes = append(changes, c)
		return nil
	}
	if cur.Start != next.Start {
		if err := add(document.PropStart, cur.Start, next.Start); err != nil {
			return nil, err
		}
	}
	if !slices.Equal(cur.Transits, next.Transits) {
		if err := add(document.PropTransits, cur.Transits, next.Transits); err != nil {
			return nil, err
		}
	}
	if cur.RotationAngle != next.RotationAngle {
		if err := add(document.PropRotationAngle, cur.RotationAngle, next.RotationAngle); err != nil {
			return nil, err
		}
	}
	return changes, nil
}
