// Package view keeps the presentation layer's read-only replica of the map.
// The replica only changes by applying worker notifications in the order
// they arrive.
package view

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mapwright/mapwright/internal/document"
	"github.com/mapwright/mapwright/internal/ledger"
	"github.com/mapwright/mapwright/internal/mapworker"
)

// Status is the low-bandwidth summary sent to secondary surfaces after every
// update.
type Status struct {
	MapName           string  `json:"mapName"`
	ActiveLayer       string  `json:"activeLayer"`
	Layers            int     `json:"layers"`
	Selected          int     `json:"selected"`
	Zoom              float64 `json:"zoom"`
	HasUnsavedChanges bool    `json:"hasUnsavedChanges"`
	CanUndo           bool    `json:"canUndo"`
	CanRedo           bool    `json:"canRedo"`
	Cursor            string  `json:"cursor"`
	LastChangeSet     string  `json:"lastChangeSet,omitempty"`
	LastError         string  `json:"lastError,omitempty"`
}

// Link is a secondary surface. Implementations must not block.
type Link interface {
	PublishStatus(s Status)
	PublishSnapshot(m *document.Map)
}

// NotificationLink is a Link that also wants every notification, in order,
// after the replica applied it.
type NotificationLink interface {
	Link
	PublishNotification(n mapworker.Notification)
}

// ResyncFunc fetches an authoritative copy when the replica cannot apply a
// change set.
type ResyncFunc func(ctx context.Context) (*document.Map, error)

type Mirror struct {
	mu      sync.RWMutex
	doc     *document.Map
	undo    int
	redo    int
	limit   int
	cursor  string
	tool    *document.EntityReference
	options []mapworker.ToolOption
	status  Status

	links  []Link
	resync ResyncFunc
	logger *slog.Logger
}

type Option func(*Mirror)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Mirror) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMaxHistory must match the worker's history bound so CanUndo agrees.
func WithMaxHistory(n int) Option {
	return func(m *Mirror) {
		if n > 0 {
			m.limit = n
		}
	}
}

func WithResync(fn ResyncFunc) Option {
	return func(m *Mirror) { m.resync = fn }
}

// NewMirror starts from a copy of initial, which must be the map the worker
// was created with.
func NewMirror(initial *document.Map, opts ...Option) *Mirror {
	m := &Mirror{
		doc:    initial.Clone(),
		limit:  ledger.DefaultMaxHistory,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.status = m.buildStatus("", "")
	return m
}

// AddLink registers a secondary surface and sends it the current snapshot.
func (m *Mirror) AddLink(l Link) {
	m.mu.Lock()
	m.links = append(m.links, l)
	snap, status := m.doc.Clone(), m.status
	m.mu.Unlock()
	l.PublishSnapshot(snap)
	l.PublishStatus(status)
}

// Run applies notifications until ch is closed or ctx is done.
func (m *Mirror) Run(ctx context.Context, ch <-chan mapworker.Notification) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-ch:
			if !ok {
				return nil
			}
			if err := m.Apply(ctx, n); err != nil {
				m.logger.Error("mirror out of sync", "notification", n.NotificationType(), "error", err)
			}
		}
	}
}

// Apply folds one notification into the replica.
func (m *Mirror) Apply(ctx context.Context, n mapworker.Notification) error {
	m.mu.Lock()
	var (
		err      error
		snapshot bool
		csID     string
		lastErr  string
	)
	switch n := n.(type) {
	case mapworker.MapUpdated:
		if n.ChangeSet != nil {
			csID = n.ChangeSet.ID
		}
		err = m.applyUpdate(n)
	case mapworker.MapLoaded:
		m.doc = n.Map.Clone()
		m.undo, m.redo = 0, 0
		snapshot = true
	case mapworker.ChangeCursor:
		m.cursor = n.Cursor
	case mapworker.ChangeToolOptions:
		m.tool = n.Tool
		m.options = n.Options
	case mapworker.TransactionFailed:
		lastErr = n.Error
	default:
		err = fmt.Errorf("view: unexpected notification %T", n)
	}
	if err != nil && m.resync != nil {
		m.mu.Unlock()
		doc, rerr := m.resync(ctx)
		m.mu.Lock()
		if rerr == nil {
			m.logger.Warn("mirror resynced", "error", err)
			m.doc = doc
			snapshot = true
			err = nil
		}
	}
	m.status = m.buildStatus(csID, lastErr)
	links := append([]Link(nil), m.links...)
	status := m.status
	var snap *document.Map
	if snapshot {
		snap = m.doc.Clone()
	}
	m.mu.Unlock()

	for _, l := range links {
		if nl, ok := l.(NotificationLink); ok {
			nl.PublishNotification(n)
		}
		if snap != nil {
			l.PublishSnapshot(snap)
		}
		l.PublishStatus(status)
	}
	return err
}

func (m *Mirror) applyUpdate(n mapworker.MapUpdated) error {
	if n.ChangeSet == nil {
		return nil
	}
	undo := n.Reason == ledger.ReasonUndone
	if err := document.ApplySet(m.doc, n.ChangeSet, undo); err != nil {
		return err
	}
	switch n.Reason {
	case ledger.ReasonCommitted:
		m.undo = min(m.undo+1, m.limit)
		m.redo = 0
	case ledger.ReasonUndone:
		m.undo--
		m.redo++
	case ledger.ReasonRedone:
		m.undo++
		m.redo--
	}
	return nil
}

func (m *Mirror) buildStatus(csID, lastErr string) Status {
	s := Status{
		MapName:           m.doc.Ref.Name,
		ActiveLayer:       m.doc.ActiveLayer,
		Layers:            len(m.doc.Layers),
		Zoom:              m.doc.Zoom,
		HasUnsavedChanges: m.doc.HasUnsavedChanges,
		CanUndo:           m.undo > 0,
		CanRedo:           m.redo > 0,
		Cursor:            m.cursor,
		LastChangeSet:     csID,
		LastError:         lastErr,
	}
	if l := m.doc.Active(); l != nil {
		s.Selected = len(l.Selected())
	}
	return s
}

// Snapshot returns a deep copy of the replica.
func (m *Mirror) Snapshot() *document.Map {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.doc.Clone()
}

func (m *Mirror) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Mirror) CanUndo() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.undo > 0
}

func (m *Mirror) CanRedo() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.redo > 0
}

func (m *Mirror) Cursor() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cursor
}

func (m *Mirror) ToolOptions() (*document.EntityReference, []mapworker.ToolOption) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tool, m.options
}

// Refresh resends the full snapshot to every link.
func (m *Mirror) Refresh() {
	m.mu.RLock()
	links := append([]Link(nil), m.links...)
	snap, status := m.doc.Clone(), m.status
	m.mu.RUnlock()
	for _, l := range links {
		l.PublishSnapshot(snap)
		l.PublishStatus(status)
	}
}
