// Package ledger owns the live map and is the only place it is mutated.
// Every edit is a document.Change grouped into change sets that can be
// undone and redone.
package ledger

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/mapwright/mapwright/internal/document"
)

var (
	ErrTransactionOpen = errors.New("ledger: a change set is already open")
	ErrNoTransaction   = errors.New("ledger: no change set is open")
)

const DefaultMaxHistory = 200

type Reason string

const (
	ReasonCommitted Reason = "committed"
	ReasonUndone    Reason = "undone"
	ReasonRedone    Reason = "redone"
	ReasonPreview   Reason = "preview"
)

// Event is emitted after the map changed. For ReasonUndone the change set
// was applied in reverse.
type Event struct {
	Reason    Reason
	ChangeSet *document.ChangeSet
}

type subscriber struct {
	id int
	fn func(Event)
}

type Ledger struct {
	doc        *document.Map
	undo       []*document.ChangeSet
	redo       []*document.ChangeSet
	open       *document.ChangeSet
	maxHistory int

	// savedAt is the ID on top of the undo stack when the map was last
	// saved, "" for an empty stack. savedKnown is false once that position
	// can no longer be reached.
	savedAt    string
	savedKnown bool

	subs   []subscriber
	nextID int
	logger *slog.Logger
}

type Option func(*Ledger)

func WithMaxHistory(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxHistory = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func New(doc *document.Map, opts ...Option) *Ledger {
	l := &Ledger{
		doc:        doc,
		maxHistory: DefaultMaxHistory,
		logger:     slog.New(slog.DiscardHandler),
		savedKnown: !doc.HasUnsavedChanges,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Map returns the live document. Callers must not modify it.
func (l *Ledger) Map() *document.Map { return l.doc }

// Reset swaps in a new document and forgets all history.
func (l *Ledger) Reset(doc *document.Map) {
	l.doc = doc
	l.undo, l.redo, l.open = nil, nil, nil
	l.savedAt, l.savedKnown = "", !doc.HasUnsavedChanges
}

// Subscribe registers fn for every change event. The returned func removes
// the subscription.
func (l *Ledger) Subscribe(fn func(Event)) (cancel func()) {
	l.nextID++
	id := l.nextID
	l.subs = append(l.subs, subscriber{id: id, fn: fn})
	return func() {
		for i, s := range l.subs {
			if s.id == id {
				l.subs = append(l.subs[:i:i], l.subs[i+1:]...)
				return
			}
		}
	}
}

func (l *Ledger) emit(reason Reason, cs *document.ChangeSet) {
	ev := Event{Reason: reason, ChangeSet: cs}
	for _, s := range l.subs {
		s.fn(ev)
	}
}

func (l *Ledger) InTransaction() bool { return l.open != nil }

func (l *Ledger) StartChangeSet() error {
	if l.open != nil {
		return ErrTransactionOpen
	}
	l.open = document.NewChangeSet()
	return nil
}

// Record applies changes immediately. Inside a transaction they join the
// open change set; otherwise they are committed as a set of their own. A
// change that fails to apply aborts the whole open transaction.
func (l *Ledger) Record(changes ...document.Change) error {
	if l.open == nil {
		return l.Commit(document.NewChangeSet(changes...))
	}
	for _, c := range changes {
		if err := document.Apply(l.doc, c, false); err != nil {
			l.AbortChangeSet()
			return fmt.Errorf("record: %w", err)
		}
		l.open.Add(c)
	}
	return nil
}

// CompleteChangeSet closes the open transaction and pushes it onto the undo
// stack. An empty transaction is discarded and nil is returned.
func (l *Ledger) CompleteChangeSet() (*document.ChangeSet, error) {
	if l.open == nil {
		return nil, ErrNoTransaction
	}
	cs := l.open
	l.open = nil
	if cs.Empty() {
		return nil, nil
	}
	if err := l.doc.Validate(); err != nil {
		l.revert(cs)
		return nil, fmt.Errorf("complete change set: %w", err)
	}
	if err := l.markUnsaved(cs); err != nil {
		l.revert(cs)
		return nil, err
	}
	l.push(cs)
	l.emit(ReasonCommitted, cs)
	return cs, l.syncSaved()
}

// AbortChangeSet reverts everything recorded in the open transaction.
func (l *Ledger) AbortChangeSet() {
	if l.open == nil {
		return
	}
	cs := l.open
	l.open = nil
	l.revert(cs)
	l.logger.Debug("change set aborted", "id", cs.ID, "changes", len(cs.Changes))
}

func (l *Ledger) revert(cs *document.ChangeSet) {
	if err := document.ApplySet(l.doc, cs, true); err != nil {
		panic(fmt.Sprintf("ledger: revert of %s failed: %v", cs.ID, err))
	}
}

// Commit applies a prebuilt change set as one undo step. Changes already
// reflected in the document (a previewed drag) apply idempotently.
func (l *Ledger) Commit(cs *document.ChangeSet) error {
	if l.open != nil {
		return ErrTransactionOpen
	}
	if cs.Empty() {
		return nil
	}
	cs = &document.ChangeSet{ID: cs.ID, Changes: append([]document.Change{}, cs.Changes...)}
	if err := document.ApplySet(l.doc, cs, false); err != nil {
		return fmt.Errorf("commit %s: %w", cs.ID, err)
	}
	if err := l.markUnsaved(cs); err != nil {
		l.revert(cs)
		return err
	}
	l.push(cs)
	l.emit(ReasonCommitted, cs)
	return l.syncSaved()
}

// Preview applies cs without recording it. It is used for state that is
// not part of the undo history (selection, viewport) and for intermediate
// drag states that are committed later as a single diff.
func (l *Ledger) Preview(cs *document.ChangeSet) error {
	if l.open != nil {
		return ErrTransactionOpen
	}
	if cs.Empty() {
		return nil
	}
	if err := document.ApplySet(l.doc, cs, false); err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	l.emit(ReasonPreview, cs)
	return nil
}

func (l *Ledger) markUnsaved(cs *document.ChangeSet) error {
	if l.doc.HasUnsavedChanges {
		return nil
	}
	c, err := document.Edit(document.KindMap, document.Address{}, document.PropHasUnsavedChanges, false, true)
	if err != nil {
		return err
	}
	if err := document.Apply(l.doc, c, false); err != nil {
		return err
	}
	cs.Add(c)
	return nil
}

func (l *Ledger) push(cs *document.ChangeSet) {
	l.undo = append(l.undo, cs)
	if over := len(l.undo) - l.maxHistory; over > 0 {
		if l.savedAt == "" {
			// the empty stack no longer means the saved state
			l.savedKnown = false
		}
		l.undo = append([]*document.ChangeSet{}, l.undo[over:]...)
	}
	l.redo = nil
}

func (l *Ledger) CanUndo() bool { return len(l.undo) > 0 && l.open == nil }
func (l *Ledger) CanRedo() bool { return len(l.redo) > 0 && l.open == nil }

// Undo reverses the latest change set. It reports false when there is
// nothing to undo.
func (l *Ledger) Undo() (bool, error) {
	if l.open != nil {
		return false, ErrTransactionOpen
	}
	if len(l.undo) == 0 {
		return false, nil
	}
	cs := l.undo[len(l.undo)-1]
	if err := document.ApplySet(l.doc, cs, true); err != nil {
		return false, fmt.Errorf("undo %s: %w", cs.ID, err)
	}
	l.undo = l.undo[:len(l.undo)-1]
	l.redo = append(l.redo, cs)
	l.emit(ReasonUndone, cs)
	return true, l.syncSaved()
}

func (l *Ledger) Redo() (bool, error) {
	if l.open != nil {
		return false, ErrTransactionOpen
	}
	if len(l.redo) == 0 {
		return false, nil
	}
	cs := l.redo[len(l.redo)-1]
	if err := document.ApplySet(l.doc, cs, false); err != nil {
		return false, fmt.Errorf("redo %s: %w", cs.ID, err)
	}
	l.redo = l.redo[:len(l.redo)-1]
	l.undo = append(l.undo, cs)
	l.emit(ReasonRedone, cs)
	return true, l.syncSaved()
}

// MarkSaved records the current history position as saved and clears
// HasUnsavedChanges without touching history.
func (l *Ledger) MarkSaved() error {
	if l.open != nil {
		return ErrTransactionOpen
	}
	l.savedAt, l.savedKnown = l.top(), true
	return l.syncSaved()
}

func (l *Ledger) top() string {
	if len(l.undo) == 0 {
		return ""
	}
	return l.undo[len(l.undo)-1].ID
}

// syncSaved previews a HasUnsavedChanges edit when the flag disagrees with
// the distance from the saved position.
func (l *Ledger) syncSaved() error {
	want := !l.savedKnown || l.top() != l.savedAt
	if l.doc.HasUnsavedChanges == want {
		return nil
	}
	c, err := document.Edit(document.KindMap, document.Address{}, document.PropHasUnsavedChanges, !want, want)
	if err != nil {
		return err
	}
	return l.Preview(document.NewChangeSet(c))
}
