package mapworker

import (
	"github.com/mapwright/mapwright/internal/document"
	"github.com/mapwright/mapwright/internal/ledger"
)

// Notification is a message from the worker to the presentation layer.
type Notification interface {
	NotificationType() string
}

const (
	TypeMapUpdated        = "mapUpdated"
	TypeMapLoaded         = "mapLoaded"
	TypeChangeCursor      = "changeCursor"
	TypeChangeToolOptions = "changeToolOptions"
	TypeTransactionFailed = "transactionFailed"
)

// MapUpdated carries the change set that was just applied. For
// ledger.ReasonUndone the set was applied in reverse.
type MapUpdated struct {
	ChangeSet *document.ChangeSet `json:"changeSet"`
	Reason    ledger.Reason       `json:"reason"`
}

// MapLoaded carries a full snapshot after LoadMap.
type MapLoaded struct {
	Map *document.Map `json:"map"`
}

type ChangeCursor struct {
	Cursor string `json:"cursor"`
}

type ChangeToolOptions struct {
	Tool    *document.EntityReference `json:"tool"`
	Options []ToolOption              `json:"options"`
}

// TransactionFailed reports a command that left the document unchanged.
type TransactionFailed struct {
	Command string `json:"command"`
	Error   string `json:"error"`
}

func (MapUpdated) NotificationType() string        { return TypeMapUpdated }
func (MapLoaded) NotificationType() string         { return TypeMapLoaded }
func (ChangeCursor) NotificationType() string      { return TypeChangeCursor }
func (ChangeToolOptions) NotificationType() string { return TypeChangeToolOptions }
func (TransactionFailed) NotificationType() string { return TypeTransactionFailed }
