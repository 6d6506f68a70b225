package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrAddress means a change names an object or index that does not
	// exist in the document it is applied to.
	ErrAddress = errors.New("unresolvable change address")
	// ErrInvariant means applying the change would break a structural
	// invariant (duplicate id, missing value, dangling active layer).
	ErrInvariant = errors.New("document invariant violated")
	// ErrUnknownKind is returned for kinds or properties outside the closed
	// set this package understands.
	ErrUnknownKind = errors.New("unknown change kind")
)

// AddressError describes why a change could not be applied.
type AddressError struct {
	Change Change
	Reason string
	Err    error
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("apply %s: %s: %v", e.Change, e.Reason, e.Err)
}

func (e *AddressError) Unwrap() error { return e.Err }

func addrErr(c Change, err error, format string, args ...any) error {
	return &AddressError{Change: c, Reason: fmt.Sprintf(format, args...), Err: err}
}

// Apply applies c to m, or reverses it when undo is set. Caches along the
// address chain are invalidated.
func Apply(m *Map, c Change, undo bool) error {
	switch c.Type {
	case ChangeEdit:
		value := c.NewValue
		if undo {
			value = c.OldValue
		}
		return applyEdit(m, c, value)
	case ChangeInsert:
		if undo {
			return applyDelete(m, c)
		}
		return applyInsert(m, c)
	case ChangeDelete:
		if undo {
			return applyInsert(m, c)
		}
		return applyDelete(m, c)
	default:
		return addrErr(c, ErrUnknownKind, "change type %q", c.Type)
	}
}

// ApplySet applies every change of cs in order, or in reverse order when
// undoing. Either the whole set applies and the map validates, or the map
// is left as it was and the first error is returned.
func ApplySet(m *Map, cs *ChangeSet, undo bool) error {
	if cs == nil {
		return nil
	}
	order := orderOf(cs, undo)
	for i, c := range order {
		if err := Apply(m, c, undo); err != nil {
			rollback(m, order[:i], undo)
			return err
		}
	}
	if err := m.Validate(); err != nil {
		rollback(m, order, undo)
		return err
	}
	return nil
}

func orderOf(cs *ChangeSet, undo bool) []Change {
	if !undo {
		return cs.Changes
	}
	out := slices.Clone(cs.Changes)
	slices.Reverse(out)
	return out
}

// rollback reverts changes that were just applied. A failure here means
// the document no longer matches any history state.
func rollback(m *Map, applied []Change, undo bool) {
	for i := len(applied) - 1; i >= 0; i-- {
		if err := Apply(m, applied[i], !undo); err != nil {
			panic(fmt.Sprintf("document: rollback failed, map is corrupt: %v", err))
		}
	}
}

// resolved holds the objects an address walks through.
type resolved struct {
	layer *Layer
	group *MapItemGroup
	item  *MapItem
	path  *Path
	clip  *Path
}

func (r resolved) invalidate() {
	for _, p := range []*Path{r.clip, r.path} {
		if p != nil {
			p.invalidate()
		}
	}
	if r.item != nil {
		r.item.invalidate()
	}
	if r.group != nil {
		r.group.invalidate()
	}
}

// depth is how many address levels a kind needs resolved for an edit.
func depth(kind ObjectKind) (int, error) {
	switch kind {
	case KindMap, KindMapItemTemplate, KindTool, KindToolPalette:
		return 0, nil
	case KindLayer:
		return 1, nil
	case KindMapItemGroup:
		return 2, nil
	case KindMapItem:
		return 3, nil
	case KindPath:
		return 4, nil
	case KindClipPath:
		return 5, nil
	default:
		return 0, ErrUnknownKind
	}
}

func resolve(m *Map, c Change, levels int) (resolved, error) {
	var r resolved
	a := c.Address
	if levels >= 1 {
		if r.layer = m.Layer(a.LayerName); r.layer == nil {
			return r, addrErr(c, ErrAddress, "layer %q not found", a.LayerName)
		}
	}
	if levels >= 2 {
		if r.group, _ = r.layer.MapItemGroup(a.MapItemGroupID); r.group == nil {
			return r, addrErr(c, ErrAddress, "map item group %q not found", a.MapItemGroupID)
		}
	}
	if levels >= 3 {
		if r.item, _ = r.group.MapItem(a.MapItemID); r.item == nil {
			return r, addrErr(c, ErrAddress, "map item %q not found", a.MapItemID)
		}
	}
	if levels >= 4 {
		if r.path, _ = r.item.Path(a.PathID); r.path == nil {
			return r, addrErr(c, ErrAddress, "path %q not found", a.PathID)
		}
	}
	if levels >= 5 {
		if r.clip, _ = r.path.ClipPath(a.ClipPathID); r.clip == nil {
			return r, addrErr(c, ErrAddress, "clip path %q not found", a.ClipPathID)
		}
	}
	return r, nil
}

// decode writes dst only when raw decodes cleanly; json.Unmarshal keeps
// assigning fields after a type error.
func decode[T any](c Change, raw json.RawMessage, dst *T, nullable bool) error {
	if len(raw) == 0 || (!nullable && bytes.Equal(bytes.TrimSpace(raw), []byte("null"))) {
		return addrErr(c, ErrInvariant, "missing value")
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return addrErr(c, ErrInvariant, "decode value: %v", err)
	}
	*dst = v
	return nil
}

func unknownProperty(c Change) error {
	return addrErr(c, ErrUnknownKind, "property %q", c.Property)
}

func applyEdit(m *Map, c Change, value json.RawMessage) error {
	levels, err := depth(c.Kind)
	if err != nil {
		return addrErr(c, err, "kind %q", c.Kind)
	}
	r, err := resolve(m, c, levels)
	if err != nil {
		return err
	}
	defer r.invalidate()

	switch c.Kind {
	case KindMap:
		return editMap(m, c, value)
	case KindLayer:
		return editLayer(r.layer, c, value)
	case KindMapItemGroup:
		if c.Property != PropSelectionStatus {
			return unknownProperty(c)
		}
		var s SelectionStatus
		if err := decode(c, value, &s, false); err != nil {
			return err
		}
		if !s.valid() {
			return addrErr(c, ErrInvariant, "selection status %q", s)
		}
		r.group.SelectionStatus = s
		return nil
	case KindMapItem:
		return editMapItem(r.item, c, value)
	case KindPath:
		return editPath(r.path, c, value)
	case KindClipPath:
		return editPath(r.clip, c, value)
	case KindMapItemTemplate:
		if c.Property != PropData {
			return unknownProperty(c)
		}
		if c.ItemIndex < 0 || c.ItemIndex >= len(m.MapItemTemplates) {
			return addrErr(c, ErrAddress, "template index %d out of range", c.ItemIndex)
		}
		m.MapItemTemplates[c.ItemIndex].Data = slices.Clone(value)
		return nil
	case KindTool:
		if c.Property != PropData {
			return unknownProperty(c)
		}
		if c.ItemIndex < 0 || c.ItemIndex >= len(m.Tools) {
			return addrErr(c, ErrAddress, "tool index %d out of range", c.ItemIndex)
		}
		m.Tools[c.ItemIndex].Data = slices.Clone(value)
		return nil
	case KindToolPalette:
		if c.Property != PropGroups {
			return unknownProperty(c)
		}
		var groups [][]EntityReference
		if err := decode(c, value, &groups, true); err != nil {
			return err
		}
		m.ToolPalette.Groups = groups
		return nil
	default:
		return addrErr(c, ErrUnknownKind, "kind %q", c.Kind)
	}
}

func editMap(m *Map, c Change, value json.RawMessage) error {
	switch c.Property {
	case PropRef:
		return decode(c, value, &m.Ref, false)
	case PropTemplateRef:
		var ref *EntityReference
		if err := decode(c, value, &ref, true); err != nil {
			return err
		}
		m.TemplateRef = ref
		return nil
	case PropActiveLayer:
		return decode(c, value, &m.ActiveLayer, false)
	case PropPan:
		return decode(c, value, &m.Pan, false)
	case PropZoom:
		var zoom float64
		if err := decode(c, value, &zoom, false); err != nil {
			return err
		}
		if zoom <= 0 {
			return addrErr(c, ErrInvariant, "zoom %v must be positive", zoom)
		}
		m.Zoom = zoom
		return nil
	case PropHasUnsavedChanges:
		return decode(c, value, &m.HasUnsavedChanges, false)
	default:
		return unknownProperty(c)
	}
}

func editLayer(l *Layer, c Change, value json.RawMessage) error {
	switch c.Property {
	case PropName:
		return decode(c, value, &l.Name, false)
	case PropIsHidden:
		return decode(c, value, &l.IsHidden, false)
	default:
		return unknownProperty(c)
	}
}

func editMapItem(it *MapItem, c Change, value json.RawMessage) error {
	switch c.Property {
	case PropMapItemTemplateRef:
		return decode(c, value, &it.MapItemTemplateRef, false)
	case PropCaptionText:
		return decode(c, value, &it.CaptionText, false)
	case PropIsCaptionVisible:
		return decode(c, value, &it.IsCaptionVisible, false)
	case PropIsHidden:
		return decode(c, value, &it.IsHidden, false)
	case PropZGroup:
		return decode(c, value, &it.ZGroup, false)
	case PropZ:
		return decode(c, value, &it.Z, false)
	default:
		return unknownProperty(c)
	}
}

// editPath decodes into fresh values so slices shared with snapshots are
// never written through.
func editPath(p *Path, c Change, value json.RawMessage) error {
	switch c.Property {
	case PropStart:
		return decode(c, value, &p.Start, false)
	case PropTransits:
		var ts []Transit
		if err := decode(c, value, &ts, false); err != nil {
			return err
		}
		p.Transits = ts
		return nil
	case PropRotationAngle:
		return decode(c, value, &p.RotationAngle, false)
	case PropClipPaths:
		var clips []*Path
		if err := decode(c, value, &clips, false); err != nil {
			return err
		}
		if err := uniquePathIDs(clips); err != nil {
			return addrErr(c, ErrInvariant, "%v", err)
		}
		p.ClipPaths = clips
		return nil
	default:
		return unknownProperty(c)
	}
}

func uniquePathIDs(paths []*Path) error {
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if p == nil {
			return fmt.Errorf("nil path")
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("duplicate path id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}

// parentLevels is how many address levels locate the list holding kind.
func parentLevels(kind ObjectKind) (int, error) {
	switch kind {
	case KindLayer, KindMapItemTemplate, KindTool:
		return 0, nil
	case KindMapItemGroup:
		return 1, nil
	case KindMapItem:
		return 2, nil
	case KindPath:
		return 3, nil
	case KindClipPath:
		return 4, nil
	case KindMap, KindToolPalette:
		return 0, ErrInvariant
	default:
		return 0, ErrUnknownKind
	}
}

func applyInsert(m *Map, c Change) error {
	levels, err := parentLevels(c.Kind)
	if err != nil {
		return addrErr(c, err, "cannot insert %q", c.Kind)
	}
	r, err := resolve(m, c, levels)
	if err != nil {
		return err
	}
	defer r.invalidate()

	switch c.Kind {
	case KindLayer:
		var l Layer
		if err := decode(c, c.ItemValue, &l, false); err != nil {
			return err
		}
		if m.Layer(l.Name) != nil {
			return addrErr(c, ErrInvariant, "duplicate layer name %q", l.Name)
		}
		if err := l.Validate(); err != nil {
			return addrErr(c, ErrInvariant, "%v", err)
		}
		return insertAt(c, &m.Layers, &l)
	case KindMapItemGroup:
		var g MapItemGroup
		if err := decode(c, c.ItemValue, &g, false); err != nil {
			return err
		}
		if found, _ := r.layer.MapItemGroup(g.ID); found != nil {
			return addrErr(c, ErrInvariant, "duplicate map item group id %q", g.ID)
		}
		if g.SelectionStatus == "" {
			g.SelectionStatus = SelectionNone
		}
		// a restored group may have been primary before the layer's
		// selection moved on; a layer keeps at most one primary
		if g.SelectionStatus == SelectionPrimary && slices.ContainsFunc(r.layer.MapItemGroups, func(o *MapItemGroup) bool {
			return o.SelectionStatus == SelectionPrimary
		}) {
			g.SelectionStatus = SelectionSecondary
		}
		return insertAt(c, &r.layer.MapItemGroups, &g)
	case KindMapItem:
		var it MapItem
		if err := decode(c, c.ItemValue, &it, false); err != nil {
			return err
		}
		if found, _ := r.group.MapItem(it.ID); found != nil {
			return addrErr(c, ErrInvariant, "duplicate map item id %q", it.ID)
		}
		return insertAt(c, &r.group.MapItems, &it)
	case KindPath:
		var p Path
		if err := decode(c, c.ItemValue, &p, false); err != nil {
			return err
		}
		if found, _ := r.item.Path(p.ID); found != nil {
			return addrErr(c, ErrInvariant, "duplicate path id %q", p.ID)
		}
		return insertAt(c, &r.item.Paths, &p)
	case KindClipPath:
		var p Path
		if err := decode(c, c.ItemValue, &p, false); err != nil {
			return err
		}
		if found, _ := r.path.ClipPath(p.ID); found != nil {
			return addrErr(c, ErrInvariant, "duplicate clip path id %q", p.ID)
		}
		return insertAt(c, &r.path.ClipPaths, &p)
	case KindMapItemTemplate:
		var t MapItemTemplate
		if err := decode(c, c.ItemValue, &t, false); err != nil {
			return err
		}
		if slices.ContainsFunc(m.MapItemTemplates, func(o MapItemTemplate) bool { return o.Ref == t.Ref }) {
			return addrErr(c, ErrInvariant, "duplicate template %s", t.Ref)
		}
		return insertAt(c, &m.MapItemTemplates, t)
	case KindTool:
		var t Tool
		if err := decode(c, c.ItemValue, &t, false); err != nil {
			return err
		}
		if slices.ContainsFunc(m.Tools, func(o Tool) bool { return o.Ref == t.Ref }) {
			return addrErr(c, ErrInvariant, "duplicate tool %s", t.Ref)
		}
		return insertAt(c, &m.Tools, t)
	default:
		return addrErr(c, ErrUnknownKind, "kind %q", c.Kind)
	}
}

func insertAt[T any](c Change, list *[]T, v T) error {
	if c.ItemIndex < 0 || c.ItemIndex > len(*list) {
		return addrErr(c, ErrAddress, "insert index %d out of range [0,%d]", c.ItemIndex, len(*list))
	}
	*list = slices.Insert(slices.Clip(*list), c.ItemIndex, v)
	return nil
}

// identity is the key a delete checks against the element at ItemIndex.
type identity struct {
	ID   string           `json:"id"`
	Name string           `json:"name"`
	Ref  *EntityReference `json:"ref"`
}

func applyDelete(m *Map, c Change) error {
	levels, err := parentLevels(c.Kind)
	if err != nil {
		return addrErr(c, err, "cannot delete %q", c.Kind)
	}
	r, err := resolve(m, c, levels)
	if err != nil {
		return err
	}
	defer r.invalidate()

	var want identity
	if err := decode(c, c.ItemValue, &want, false); err != nil {
		return err
	}

	switch c.Kind {
	case KindLayer:
		return deleteAt(c, &m.Layers, func(l *Layer) bool { return l.Name == want.Name })
	case KindMapItemGroup:
		return deleteAt(c, &r.layer.MapItemGroups, func(g *MapItemGroup) bool { return g.ID == want.ID })
	case KindMapItem:
		return deleteAt(c, &r.group.MapItems, func(it *MapItem) bool { return it.ID == want.ID })
	case KindPath:
		return deleteAt(c, &r.item.Paths, func(p *Path) bool { return p.ID == want.ID })
	case KindClipPath:
		return deleteAt(c, &r.path.ClipPaths, func(p *Path) bool { return p.ID == want.ID })
	case KindMapItemTemplate:
		return deleteAt(c, &m.MapItemTemplates, func(t MapItemTemplate) bool { return want.Ref != nil && t.Ref == *want.Ref })
	case KindTool:
		return deleteAt(c, &m.Tools, func(t Tool) bool { return want.Ref != nil && t.Ref == *want.Ref })
	default:
		return addrErr(c, ErrUnknownKind, "kind %q", c.Kind)
	}
}

func deleteAt[T any](c Change, list *[]T, matches func(T) bool) error {
	if c.ItemIndex < 0 || c.ItemIndex >= len(*list) {
		return addrErr(c, ErrAddress, "delete index %d out of range [0,%d)", c.ItemIndex, len(*list))
	}
	if !matches((*list)[c.ItemIndex]) {
		return addrErr(c, ErrAddress, "element at index %d is not the one being deleted", c.ItemIndex)
	}
	*list = slices.Concat((*list)[:c.ItemIndex], (*list)[c.ItemIndex+1:])
	return nil
}
