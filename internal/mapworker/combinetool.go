package mapworker

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/mapwright/mapwright/internal/document"
	"github.com/mapwright/mapwright/internal/geomops"
	"github.com/mapwright/mapwright/internal/typeid"
)

const optionOperation = "operation"

// CombineTool merges the secondary selection into the primary group's
// first item with a boolean operation. The result is previewed on every
// pointer move, committed with Enter and dropped with Escape.
type CombineTool struct {
	h       Handle
	op      geomops.Operation
	preview *document.ChangeSet
}

func NewCombineTool() *CombineTool {
	return &CombineTool{op: geomops.Union}
}

func (t *CombineTool) Ref() document.EntityReference { return document.ToolCombine }

func (t *CombineTool) Activate(h Handle) error {
	t.h = h
	h.SetCursor("crosshair")
	return nil
}

func (t *CombineTool) Deactivate() error {
	err := t.Cancel()
	t.h = nil
	return err
}

// Cancel reverts the preview, if any.
func (t *CombineTool) Cancel() error {
	if t.preview == nil {
		return nil
	}
	cs := t.preview
	t.preview = nil
	return t.h.Ledger().Preview(cs.Inverse())
}

func (t *CombineTool) Pointer(ev Pointer) error {
	if ev.Kind != PointerMove {
		return nil
	}
	return t.refresh()
}

func (t *CombineTool) Key(ev Key) error {
	if ev.Kind != KeyDown {
		return nil
	}
	switch ev.Key {
	case "Enter":
		return t.commit()
	case "Escape":
		return t.Cancel()
	}
	return nil
}

func (t *CombineTool) Options() []ToolOption {
	value, _ := json.Marshal(t.op)
	return []ToolOption{{
		Name:    optionOperation,
		Label:   "Operation",
		Choices: []string{string(geomops.Union), string(geomops.Intersection), string(geomops.Exclusion)},
		Value:   value,
		Enabled: true,
	}}
}

func (t *CombineTool) SetOption(name string, value json.RawMessage) error {
	if name != optionOperation {
		return fmt.Errorf("%w: %s", ErrUnknownOption, name)
	}
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	op, err := geomops.ParseOperation(s)
	if err != nil {
		return err
	}
	t.op = op
	if t.preview != nil {
		return t.refresh()
	}
	return nil
}

// refresh recomputes the preview. A missing boolean service only disables
// the preview.
func (t *CombineTool) refresh() error {
	if err := t.Cancel(); err != nil {
		return err
	}
	cs, err := t.build()
	if errors.Is(err, geomops.ErrUnsupported) {
		t.h.Logger().Debug("combine preview unavailable", "error", err)
		return nil
	}
	if err != nil || cs == nil {
		return err
	}
	if err := t.h.Ledger().Preview(cs); err != nil {
		return err
	}
	t.preview = cs
	return nil
}

func (t *CombineTool) commit() error {
	if err := t.Cancel(); err != nil {
		return err
	}
	cs, err := t.build()
	if err != nil || cs == nil {
		return err
	}
	if err := t.h.Ledger().Commit(cs); err != nil {
		return err
	}
	t.h.Logger().Info("paths combined", "operation", t.op, "changes", len(cs.Changes))
	return nil
}

// build returns the change set replacing the primary item's paths with the
// combined paths and removing the secondary groups, or nil when the active
// layer has no primary and secondary selection to combine.
func (t *CombineTool) build() (*document.ChangeSet, error) {
	layer := t.h.Ledger().Map().Active()
	if layer == nil || layer.IsHidden {
		return nil, nil
	}
	var (
		primary   *document.MapItemGroup
		secondary []int
		others    []*document.Path
	)
	for i, g := range layer.MapItemGroups {
		switch g.SelectionStatus {
		case document.SelectionPrimary:
			if primary == nil {
				primary = g
			}
		case document.SelectionSecondary:
			secondary = append(secondary, i)
			for _, it := range g.MapItems {
				others = append(others, it.Paths...)
			}
		}
	}
	if primary == nil || len(primary.MapItems) == 0 || len(secondary) == 0 {
		return nil, nil
	}
	target := primary.MapItems[0]

	result, err := t.h.Combiner().Combine(t.h.Context(), t.op, target.Paths, others)
	if err != nil {
		return nil, fmt.Errorf("combine %s: %w", t.op, err)
	}

	cs := document.NewChangeSet()
	itemAddr := document.Address{LayerName: layer.Name, MapItemGroupID: primary.ID, MapItemID: target.ID}
	for i, p := range slices.Backward(target.Paths) {
		c, err := document.Delete(document.KindPath, itemAddr, i, p)
		if err != nil {
			return nil, err
		}
		cs.Add(c)
	}
	for i, p := range result {
		p = p.Clone()
		if p.ID == "" {
			p.ID = typeid.NewPathID()
		}
		c, err := document.Insert(document.KindPath, itemAddr, i, p)
		if err != nil {
			return nil, err
		}
		cs.Add(c)
	}
	layerAddr := document.Address{LayerName: layer.Name}
	for _, i := range slices.Backward(secondary) {
		c, err := document.Delete(document.KindMapItemGroup, layerAddr, i, layer.MapItemGroups[i])
		if err != nil {
			return nil, err
		}
		cs.Add(c)
	}
	return cs, nil
}
