package ledger

import (
	"fmt"

	"github.com/mapwright/mapwright/internal/document"
	"github.com/mapwright/mapwright/internal/geom"
)

// Object-level mutators. Each builds the same Change a ledger-level caller
// would and routes it through Record, so both paths share one apply.

func (l *Ledger) AddLayer(name string) error {
	if l.doc.Layer(name) != nil {
		return fmt.Errorf("add layer %q: %w", name, document.ErrInvariant)
	}
	layer := &document.Layer{Name: name, MapItemGroups: []*document.MapItemGroup{}}
	c, err := document.Insert(document.KindLayer, document.Address{}, len(l.doc.Layers), layer)
	if err != nil {
		return err
	}
	changes := []document.Change{c}
	if l.doc.ActiveLayer == "" {
		active, err := document.Edit(document.KindMap, document.Address{}, document.PropActiveLayer, "", name)
		if err != nil {
			return err
		}
		changes = append(changes, active)
	}
	return l.Record(changes...)
}

// RemoveLayer deletes a layer. Removing the active layer moves activity to
// the first remaining layer in the same change set.
func (l *Ledger) RemoveLayer(name string) error {
	idx := -1
	for i, layer := range l.doc.Layers {
		if layer.Name == name {
			idx = i
		}
	}
	if idx < 0 {
		return fmt.Errorf("remove layer %q: %w", name, document.ErrAddress)
	}
	var changes []document.Change
	if l.doc.ActiveLayer == name {
		next := ""
		for _, layer := range l.doc.Layers {
			if layer.Name != name {
				next = layer.Name
				break
			}
		}
		c, err := document.Edit(document.KindMap, document.Address{}, document.PropActiveLayer, name, next)
		if err != nil {
			return err
		}
		changes = append(changes, c)
	}
	c, err := document.Delete(document.KindLayer, document.Address{}, idx, l.doc.Layers[idx])
	if err != nil {
		return err
	}
	return l.Record(append(changes, c)...)
}

func (l *Ledger) SetActiveLayer(name string) error {
	if l.doc.Layer(name) == nil {
		return fmt.Errorf("set active layer %q: %w", name, document.ErrAddress)
	}
	if l.doc.ActiveLayer == name {
		return nil
	}
	c, err := document.Edit(document.KindMap, document.Address{}, document.PropActiveLayer, l.doc.ActiveLayer, name)
	if err != nil {
		return err
	}
	return l.Record(c)
}

func (l *Ledger) SetLayerHidden(name string, hidden bool) error {
	layer := l.doc.Layer(name)
	if layer == nil {
		return fmt.Errorf("set layer hidden %q: %w", name, document.ErrAddress)
	}
	c, err := document.Edit(document.KindLayer, document.Address{LayerName: name}, document.PropIsHidden, layer.IsHidden, hidden)
	if err != nil {
		return err
	}
	return l.Record(c)
}

func (l *Ledger) AddMapItemGroup(layerName string, g *document.MapItemGroup) error {
	layer := l.doc.Layer(layerName)
	if layer == nil {
		return fmt.Errorf("add map item group to %q: %w", layerName, document.ErrAddress)
	}
	c, err := document.Insert(document.KindMapItemGroup, document.Address{LayerName: layerName}, len(layer.MapItemGroups), g)
	if err != nil {
		return err
	}
	return l.Record(c)
}

func (l *Ledger) RemoveMapItemGroup(layerName, groupID string) error {
	c, err := RemoveGroupChange(l.doc, layerName, groupID)
	if err != nil {
		return err
	}
	return l.Record(c)
}

// RemoveGroupChange builds the delete for a group against the current
// document.
func RemoveGroupChange(m *document.Map, layerName, groupID string) (document.Change, error) {
	layer := m.Layer(layerName)
	if layer == nil {
		return document.Change{}, fmt.Errorf("remove map item group: layer %q: %w", layerName, document.ErrAddress)
	}
	g, idx := layer.MapItemGroup(groupID)
	if g == nil {
		return document.Change{}, fmt.Errorf("remove map item group %q: %w", groupID, document.ErrAddress)
	}
	return document.Delete(document.KindMapItemGroup, document.Address{LayerName: layerName}, idx, g)
}

// SetSelectionStatus changes selection state. Selection is not part of the
// undo history, so the edit is previewed rather than recorded.
func (l *Ledger) SetSelectionStatus(layerName, groupID string, status document.SelectionStatus) error {
	layer := l.doc.Layer(layerName)
	if layer == nil {
		return fmt.Errorf("set selection: layer %q: %w", layerName, document.ErrAddress)
	}
	g, _ := layer.MapItemGroup(groupID)
	if g == nil {
		return fmt.Errorf("set selection: group %q: %w", groupID, document.ErrAddress)
	}
	if g.SelectionStatus == status {
		return nil
	}
	addr := document.Address{LayerName: layerName, MapItemGroupID: groupID}
	c, err := document.Edit(document.KindMapItemGroup, addr, document.PropSelectionStatus, g.SelectionStatus, status)
	if err != nil {
		return err
	}
	return l.Preview(document.NewChangeSet(c))
}

func (l *Ledger) SetCaption(addr document.Address, text string, visible bool) error {
	it, err := l.item(addr)
	if err != nil {
		return err
	}
	var changes []document.Change
	if it.CaptionText != text {
		c, err := document.Edit(document.KindMapItem, addr, document.PropCaptionText, it.CaptionText, text)
		if err != nil {
			return err
		}
		changes = append(changes, c)
	}
	if it.IsCaptionVisible != visible {
		c, err := document.Edit(document.KindMapItem, addr, document.PropIsCaptionVisible, it.IsCaptionVisible, visible)
		if err != nil {
			return err
		}
		changes = append(changes, c)
	}
	return l.Record(changes...)
}

// SetPan and SetZoom change the viewport, which is view state and is
// previewed like selection.
func (l *Ledger) SetPan(p geom.Point) error {
	c, err := document.Edit(document.KindMap, document.Address{}, document.PropPan, l.doc.Pan, p)
	if err != nil {
		return err
	}
	return l.Preview(document.NewChangeSet(c))
}

func (l *Ledger) SetZoom(zoom float64) error {
	c, err := document.Edit(document.KindMap, document.Address{}, document.PropZoom, l.doc.Zoom, zoom)
	if err != nil {
		return err
	}
	return l.Preview(document.NewChangeSet(c))
}

// AddPath appends p to the item at addr.
func (l *Ledger) AddPath(addr document.Address, p *document.Path) error {
	it, err := l.item(addr)
	if err != nil {
		return err
	}
	addr.PathID, addr.ClipPathID = "", ""
	c, err := document.Insert(document.KindPath, addr, len(it.Paths), p)
	if err != nil {
		return err
	}
	return l.Record(c)
}

// RemovePath deletes the path named by addr.PathID from its item.
func (l *Ledger) RemovePath(addr document.Address) error {
	it, err := l.item(addr)
	if err != nil {
		return err
	}
	p, idx := it.Path(addr.PathID)
	if p == nil {
		return fmt.Errorf("remove path %q: %w", addr.PathID, document.ErrAddress)
	}
	itemAddr := addr
	itemAddr.PathID, itemAddr.ClipPathID = "", ""
	c, err := document.Delete(document.KindPath, itemAddr, idx, p)
	if err != nil {
		return err
	}
	return l.Record(c)
}

func (l *Ledger) item(addr document.Address) (*document.MapItem, error) {
	layer := l.doc.Layer(addr.LayerName)
	if layer == nil {
		return nil, fmt.Errorf("layer %q: %w", addr.LayerName, document.ErrAddress)
	}
	g, _ := layer.MapItemGroup(addr.MapItemGroupID)
	if g == nil {
		return nil, fmt.Errorf("map item group %q: %w", addr.MapItemGroupID, document.ErrAddress)
	}
	it, _ := g.MapItem(addr.MapItemID)
	if it == nil {
		return nil, fmt.Errorf("map item %q: %w", addr.MapItemID, document.ErrAddress)
	}
	return it, nil
}
