package selection

import (
	"slices"

	"github.com/mapwright/mapwright/internal/document"
	"github.com/mapwright/mapwright/internal/geom"
	"github.com/mapwright/mapwright/internal/ledger"
)

// Toggle flips each hit group between selected and unselected; newly
// selected groups become secondary. When no primary is left, the first
// secondary in list order is promoted. The result holds only groups whose
// status changes.
func Toggle(groups []*document.MapItemGroup, hits []string) map[string]document.SelectionStatus {
	final := currentStatuses(groups)
	for _, id := range dedupe(hits) {
		status, ok := final[id]
		if !ok {
			continue
		}
		if status.IsSelected() {
			final[id] = document.SelectionNone
		} else {
			final[id] = document.SelectionSecondary
		}
	}
	return changed(groups, normalizePrimary(groups, final))
}

// Replace clears every non-hit group and selects the hits: the first as
// primary, the rest as secondary.
func Replace(groups []*document.MapItemGroup, hits []string) map[string]document.SelectionStatus {
	final := make(map[string]document.SelectionStatus, len(groups))
	for _, g := range groups {
		final[g.ID] = document.SelectionNone
	}
	first := true
	for _, id := range dedupe(hits) {
		if _, ok := final[id]; !ok {
			continue
		}
		if first {
			final[id] = document.SelectionPrimary
			first = false
		} else {
			final[id] = document.SelectionSecondary
		}
	}
	return changed(groups, final)
}

func currentStatuses(groups []*document.MapItemGroup) map[string]document.SelectionStatus {
	out := make(map[string]document.SelectionStatus, len(groups))
	for _, g := range groups {
		out[g.ID] = g.SelectionStatus
	}
	return out
}

// normalizePrimary leaves exactly one primary whenever anything is
// selected.
func normalizePrimary(groups []*document.MapItemGroup, final map[string]document.SelectionStatus) map[string]document.SelectionStatus {
	primary := ""
	for _, g := range groups {
		if final[g.ID] != document.SelectionPrimary {
			continue
		}
		if primary == "" {
			primary = g.ID
		} else {
			final[g.ID] = document.SelectionSecondary
		}
	}
	if primary != "" {
		return final
	}
	for _, g := range groups {
		if final[g.ID] == document.SelectionSecondary {
			final[g.ID] = document.SelectionPrimary
			break
		}
	}
	return final
}

func changed(groups []*document.MapItemGroup, final map[string]document.SelectionStatus) map[string]document.SelectionStatus {
	out := make(map[string]document.SelectionStatus)
	for _, g := range groups {
		if final[g.ID] != g.SelectionStatus {
			out[g.ID] = final[g.ID]
		}
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// applyStatuses previews the selection edits in layer order. Selection is
// not part of the undo history.
func applyStatuses(l *ledger.Ledger, layer *document.Layer, next map[string]document.SelectionStatus) error {
	cs := document.NewChangeSet()
	for _, g := range layer.MapItemGroups {
		status, ok := next[g.ID]
		if !ok {
			continue
		}
		addr := document.Address{LayerName: layer.Name, MapItemGroupID: g.ID}
		c, err := document.Edit(document.KindMapItemGroup, addr, document.PropSelectionStatus, g.SelectionStatus, status)
		if err != nil {
			return err
		}
		cs.Add(c)
	}
	return l.Preview(cs)
}

// SelectAll replaces the selection with every visible group of the active
// layer that intersects viewport.
func SelectAll(l *ledger.Ledger, viewport geom.Rect) error {
	layer := l.Map().Active()
	if layer == nil || layer.IsHidden {
		return nil
	}
	var hits []string
	for _, g := range layer.MapItemGroups {
		if visible(g) && viewport.Intersects(g.Bounds()) {
			hits = append(hits, g.ID)
		}
	}
	return applyStatuses(l, layer, Replace(layer.MapItemGroups, hits))
}

// UnselectAll clears the selection on every layer.
func UnselectAll(l *ledger.Ledger) error {
	m := l.Map()
	cs := document.NewChangeSet()
	for _, layer := range m.Layers {
		for _, g := range layer.MapItemGroups {
			if g.SelectionStatus == document.SelectionNone {
				continue
			}
			addr := document.Address{LayerName: layer.Name, MapItemGroupID: g.ID}
			c, err := document.Edit(document.KindMapItemGroup, addr, document.PropSelectionStatus, g.SelectionStatus, document.SelectionNone)
			if err != nil {
				return err
			}
			cs.Add(c)
		}
	}
	return l.Preview(cs)
}

// DeleteSelected removes the selected groups of the active layer as one
// undo step. Deletes run from the highest index down so each index is
// valid when applied.
func DeleteSelected(l *ledger.Ledger) (*document.ChangeSet, error) {
	layer := l.Map().Active()
	if layer == nil {
		return nil, nil
	}
	cs := document.NewChangeSet()
	for i, g := range slices.Backward(layer.MapItemGroups) {
		if !g.SelectionStatus.IsSelected() {
			continue
		}
		c, err := document.Delete(document.KindMapItemGroup, document.Address{LayerName: layer.Name}, i, g)
		if err != nil {
			return nil, err
		}
		cs.Add(c)
	}
	if cs.Empty() {
		return nil, nil
	}
	if err := l.Commit(cs); err != nil {
		return nil, err
	}
	return cs, nil
}

// Nudge moves the selection of the active layer by d as one undo step.
func Nudge(l *ledger.Ledger, d geom.Point) (*document.ChangeSet, error) {
	layer := l.Map().Active()
	cs := document.NewChangeSet()
	for _, g := range selectedGroups(layer) {
		for _, it := range g.MapItems {
			for _, p := range it.Paths {
				addr := document.Address{LayerName: layer.Name, MapItemGroupID: g.ID, MapItemID: it.ID, PathID: p.ID}
				changes, err := DiffPath(addr, p, MovePath(p, d))
				if err != nil {
					return nil, err
				}
				cs.Add(changes...)
			}
		}
	}
	if cs.Empty() {
		return nil, nil
	}
	if err := l.Commit(cs); err != nil {
		return nil, err
	}
	return cs, nil
}
