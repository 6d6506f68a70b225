package document

import (
	"encoding/json"
	"fmt"

	"github.com/mapwright/mapwright/internal/typeid"
)

type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeDelete ChangeType = "delete"
	ChangeEdit   ChangeType = "edit"
)

// ObjectKind names the level of the address a change acts on.
type ObjectKind string

const (
	KindMap             ObjectKind = "map"
	KindLayer           ObjectKind = "layer"
	KindMapItemGroup    ObjectKind = "mapItemGroup"
	KindMapItem         ObjectKind = "mapItem"
	KindPath            ObjectKind = "path"
	KindClipPath        ObjectKind = "clipPath"
	KindMapItemTemplate ObjectKind = "mapItemTemplate"
	KindTool            ObjectKind = "tool"
	KindToolPalette     ObjectKind = "toolPalette"
)

// Editable property names, grouped by the kind that owns them.
const (
	PropRef               = "ref"
	PropTemplateRef       = "templateRef"
	PropActiveLayer       = "activeLayer"
	PropPan               = "pan"
	PropZoom              = "zoom"
	PropHasUnsavedChanges = "hasUnsavedChanges"

	PropName     = "name"
	PropIsHidden = "isHidden"

	PropSelectionStatus = "selectionStatus"

	PropMapItemTemplateRef = "mapItemTemplateRef"
	PropCaptionText        = "captionText"
	PropIsCaptionVisible   = "isCaptionVisible"
	PropZGroup             = "zGroup"
	PropZ                  = "z"

	PropStart         = "start"
	PropTransits      = "transits"
	PropRotationAngle = "rotationAngle"
	PropClipPaths     = "clipPaths"

	PropData   = "data"
	PropGroups = "groups"
)

// Address locates an object by narrowing left to right. Which fields are
// meaningful depends on the change kind.
type Address struct {
	LayerName      string `json:"layerName,omitempty"`
	MapItemGroupID string `json:"mapItemGroupId,omitempty"`
	MapItemID      string `json:"mapItemId,omitempty"`
	PathID         string `json:"pathId,omitempty"`
	ClipPathID     string `json:"clipPathId,omitempty"`
}

// Change is one reversible edit. Values are stored as raw JSON so a change
// owns its data and can cross the worker boundary as-is.
//
// Edit uses OldValue/NewValue. Insert and Delete use ItemIndex/ItemValue and
// act on the list that holds objects of Kind, located by the address of
// the parent. Edits of templates and tools select the element by ItemIndex.
type Change struct {
	Type     ChangeType `json:"changeType"`
	Kind     ObjectKind `json:"changeObjectType"`
	Property string     `json:"propertyName,omitempty"`
	Address

	OldValue json.RawMessage `json:"oldValue,omitempty"`
	NewValue json.RawMessage `json:"newValue,omitempty"`

	ItemIndex int             `json:"itemIndex"`
	ItemValue json.RawMessage `json:"itemValue,omitempty"`
}

func (c Change) String() string {
	if c.Type == ChangeEdit {
		return fmt.Sprintf("%s %s.%s %+v", c.Type, c.Kind, c.Property, c.Address)
	}
	return fmt.Sprintf("%s %s[%d] %+v", c.Type, c.Kind, c.ItemIndex, c.Address)
}

// ChangeSet is one undo step.
type ChangeSet struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

func NewChangeSet(changes ...Change) *ChangeSet {
	return &ChangeSet{
		ID:      typeid.NewChangeSetID(),
		Changes: append([]Change{}, changes...),
	}
}

func (cs *ChangeSet) Add(c ...Change) {
	cs.Changes = append(cs.Changes, c...)
}

func (cs *ChangeSet) Empty() bool {
	return cs == nil || len(cs.Changes) == 0
}

// Edit builds an edit change, marshalling both values.
func Edit(kind ObjectKind, addr Address, property string, oldValue, newValue any) (Change, error) {
	oldRaw, err := json.Marshal(oldValue)
	if err != nil {
		return Change{}, fmt.Errorf("marshal old %s.%s: %w", kind, property, err)
	}
	newRaw, err := json.Marshal(newValue)
	if err != nil {
		return Change{}, fmt.Errorf("marshal new %s.%s: %w", kind, property, err)
	}
	return Change{
		Type:     ChangeEdit,
		Kind:     kind,
		Property: property,
		Address:  addr,
		OldValue: oldRaw,
		NewValue: newRaw,
	}, nil
}

// Insert builds a change that inserts value at index in the list of kind
// held by the object at addr.
func Insert(kind ObjectKind, addr Address, index int, value any) (Change, error) {
	return listChange(ChangeInsert, kind, addr, index, value)
}

// Delete builds a change that removes value from index.
func Delete(kind ObjectKind, addr Address, index int, value any) (Change, error) {
	return listChange(ChangeDelete, kind, addr, index, value)
}

func listChange(t ChangeType, kind ObjectKind, addr Address, index int, value any) (Change, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return Change{}, fmt.Errorf("marshal %s %s: %w", t, kind, err)
	}
	return Change{
		Type:      t,
		Kind:      kind,
		Address:   addr,
		ItemIndex: index,
		ItemValue: raw,
	}, nil
}

// Inverse returns the change set that undoes cs when applied forward:
// changes in reverse order, edits with swapped values, inserts and deletes
// exchanged.
func (cs *ChangeSet) Inverse() *ChangeSet {
	out := &ChangeSet{ID: cs.ID, Changes: make([]Change, 0, len(cs.Changes))}
	for i := len(cs.Changes) - 1; i >= 0; i-- {
		c := cs.Changes[i]
		switch c.Type {
		case ChangeEdit:
			c.OldValue, c.NewValue = c.NewValue, c.OldValue
		case ChangeInsert:
			c.Type = ChangeDelete
		case ChangeDelete:
			c.Type = ChangeInsert
		}
		out.Changes = append(out.Changes, c)
	}
	return out
}
