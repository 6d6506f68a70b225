// Package mapworker runs the document on its own goroutine. The
// presentation layer talks to it only through commands, notifications and
// a few ordered queries; the map itself never leaves the worker except as
// a deep copy.
package mapworker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/mapwright/mapwright/internal/document"
	"github.com/mapwright/mapwright/internal/geom"
	"github.com/mapwright/mapwright/internal/geomops"
	"github.com/mapwright/mapwright/internal/ledger"
	"github.com/mapwright/mapwright/internal/selection"
)

var (
	ErrClosed  = errors.New("mapworker: worker stopped")
	ErrRunning = errors.New("mapworker: worker already running")
)

const (
	inboxSize        = 64
	notificationSize = 256
	saveTimeout      = 5 * time.Second
	saveRetries      = 3
)

// SessionSaver stores the latest document snapshot for crash recovery.
type SessionSaver interface {
	Save(ctx context.Context, snapshot []byte) error
}

// Observer receives worker measurements.
type Observer interface {
	CommandHandled(command string, elapsed time.Duration, err error)
	MapUpdated(reason ledger.Reason, changes int)
	SessionSaved(err error)
}

type nopObserver struct{}

func (nopObserver) CommandHandled(string, time.Duration, error) {}
func (nopObserver) MapUpdated(ledger.Reason, int)               {}
func (nopObserver) SessionSaved(error)                          {}

type envelope struct {
	cmd Command
	fn  func()
}

type Worker struct {
	inbox   chan envelope
	notes   chan Notification
	done    chan struct{}
	running atomic.Bool

	// Owned by the Run goroutine.
	ctx      context.Context
	ledger   *ledger.Ledger
	registry *Registry
	tool     Tool
	template *document.EntityReference
	canvas   Size
	overlay  geom.Overlay
	cursor   string
	dirty    bool
	history  int

	combiner geomops.Combiner
	observer Observer
	logger   *slog.Logger

	saver     SessionSaver
	debounce  time.Duration
	saveTimer *time.Timer
	saves     chan []byte
}

type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithRegistry(r *Registry) Option {
	return func(w *Worker) {
		if r != nil {
			w.registry = r
		}
	}
}

func WithCombiner(c geomops.Combiner) Option {
	return func(w *Worker) {
		if c != nil {
			w.combiner = c
		}
	}
}

func WithObserver(o Observer) Option {
	return func(w *Worker) {
		if o != nil {
			w.observer = o
		}
	}
}

// WithSessionSaver autosaves the document once no commit has happened for
// debounce.
func WithSessionSaver(s SessionSaver, debounce time.Duration) Option {
	return func(w *Worker) {
		w.saver = s
		w.debounce = max(debounce, 0)
	}
}

// WithMaxHistory bounds the undo stack; see ledger.WithMaxHistory.
func WithMaxHistory(n int) Option {
	return func(w *Worker) {
		w.history = n
	}
}

// New creates a worker owning doc. The caller must not touch doc again.
func New(doc *document.Map, opts ...Option) *Worker {
	w := &Worker{
		inbox:    make(chan envelope, inboxSize),
		notes:    make(chan Notification, notificationSize),
		done:     make(chan struct{}),
		ctx:      context.Background(),
		overlay:  geom.NoOverlay{},
		combiner: geomops.Unavailable{},
		observer: nopObserver{},
		logger:   slog.New(slog.DiscardHandler),
		saves:    make(chan []byte, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.ledger = ledger.New(doc, ledger.WithMaxHistory(w.history), ledger.WithLogger(w.logger))
	if w.registry == nil {
		w.registry = BuiltinRegistry()
	}
	w.saveTimer = time.NewTimer(time.Hour)
	w.saveTimer.Stop()
	return w
}

// Notifications is closed when Run returns. It must be drained while the
// worker runs.
func (w *Worker) Notifications() <-chan Notification {
	return w.notes
}

// Done is closed when Run returns.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Run processes commands until ctx is cancelled. A pending autosave is
// flushed before it returns.
func (w *Worker) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	w.ctx = ctx
	unsubscribe := w.ledger.Subscribe(w.onLedgerEvent)

	var wg sync.WaitGroup
	if w.saver != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.runSaver(context.WithoutCancel(ctx))
		}()
	}

	defer func() {
		unsubscribe()
		close(w.saves)
		wg.Wait()
		close(w.done)
		close(w.notes)
	}()

	w.logger.Info("map worker started", "map", w.ledger.Map().Ref.Name)
	for {
		select {
		case <-ctx.Done():
			if w.tool != nil {
				if err := w.tool.Deactivate(); err != nil {
					w.logger.Warn("deactivate tool", "error", err)
				}
			}
			if w.dirty && w.saver != nil {
				w.queueSave()
			}
			w.logger.Info("map worker stopped")
			return nil
		case env := <-w.inbox:
			if env.fn != nil {
				env.fn()
				continue
			}
			w.handle(env.cmd)
		case <-w.saveTimer.C:
			w.queueSave()
		}
	}
}

// Send queues cmd. It blocks only while the inbox is full.
func (w *Worker) Send(ctx context.Context, cmd Command) error {
	if cmd == nil {
		return errors.New("mapworker: nil command")
	}
	if w.stopped() {
		return ErrClosed
	}
	select {
	case w.inbox <- envelope{cmd: cmd}:
		return nil
	case <-w.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// query runs fn on the worker goroutine after every command sent before it.
func (w *Worker) query(ctx context.Context, fn func()) error {
	if w.stopped() {
		return ErrClosed
	}
	finished := make(chan struct{})
	env := envelope{fn: func() {
		fn()
		close(finished)
	}}
	select {
	case w.inbox <- env:
	case <-w.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-w.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) stopped() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// Map returns a deep copy of the document.
func (w *Worker) Map(ctx context.Context) (*document.Map, error) {
	var out *document.Map
	err := w.query(ctx, func() { out = w.ledger.Map().Clone() })
	return out, err
}

func (w *Worker) CanvasSize(ctx context.Context) (Size, error) {
	var out Size
	err := w.query(ctx, func() { out = w.canvas })
	return out, err
}

// ToolOptions returns the options of the active tool, or nil.
func (w *Worker) ToolOptions(ctx context.Context) ([]ToolOption, error) {
	var out []ToolOption
	err := w.query(ctx, func() {
		if w.tool != nil {
			out = w.tool.Options()
		}
	})
	return out, err
}

type History struct {
	CanUndo bool `json:"canUndo"`
	CanRedo bool `json:"canRedo"`
}

func (w *Worker) History(ctx context.Context) (History, error) {
	var out History
	err := w.query(ctx, func() {
		out = History{CanUndo: w.ledger.CanUndo(), CanRedo: w.ledger.CanRedo()}
	})
	return out, err
}

func (w *Worker) handle(cmd Command) {
	start := time.Now()
	err := w.dispatch(cmd)
	w.observer.CommandHandled(cmd.CommandType(), time.Since(start), err)
	if err != nil {
		w.fail(cmd, err)
	}
}

func (w *Worker) fail(cmd Command, err error) {
	if w.ledger.InTransaction() {
		w.ledger.AbortChangeSet()
	}
	w.logger.Error("command failed", "command", cmd.CommandType(), "error", err)
	w.notify(TransactionFailed{Command: cmd.CommandType(), Error: err.Error()})
}

func (w *Worker) dispatch(cmd Command) error {
	switch c := cmd.(type) {
	case UpdateMap:
		if c.ChangeSet.Empty() {
			return nil
		}
		if err := w.cancelTool(); err != nil {
			return err
		}
		return w.ledger.Commit(c.ChangeSet)
	case SetActiveTool:
		return w.activateTool(c.Ref)
	case SetActiveMapItemTemplate:
		return w.setTemplate(c.Ref)
	case SelectAllInView:
		if err := w.cancelTool(); err != nil {
			return err
		}
		return selection.SelectAll(w.ledger, viewportOf(w.ledger.Map(), w.canvas))
	case UnSelectAll:
		if err := w.cancelTool(); err != nil {
			return err
		}
		return selection.UnselectAll(w.ledger)
	case Undo:
		if err := w.cancelTool(); err != nil {
			return err
		}
		_, err := w.ledger.Undo()
		return err
	case Redo:
		if err := w.cancelTool(); err != nil {
			return err
		}
		_, err := w.ledger.Redo()
		return err
	case DeleteSelected:
		if err := w.cancelTool(); err != nil {
			return err
		}
		_, err := selection.DeleteSelected(w.ledger)
		return err
	case CursorChanged:
		w.cursor = c.Cursor
		return nil
	case Pointer:
		if w.tool == nil {
			return nil
		}
		return w.tool.Pointer(c)
	case Key:
		if w.tool == nil {
			return nil
		}
		return w.tool.Key(c)
	case SetCanvasSize:
		if !validExtent(c.Width) || !validExtent(c.Height) {
			return &CommandError{Type: c.CommandType(), Reason: fmt.Sprintf("invalid size %gx%g", c.Width, c.Height)}
		}
		w.canvas = Size{Width: c.Width, Height: c.Height}
		return nil
	case SetOverlay:
		o, err := c.Overlay()
		if err != nil {
			return err
		}
		w.overlay = o
		return nil
	case SetToolOption:
		if w.tool == nil {
			return &CommandError{Type: c.CommandType(), Reason: "no active tool"}
		}
		if err := w.tool.SetOption(c.Name, c.Value); err != nil {
			return err
		}
		w.optionsChanged()
		return nil
	case LoadMap:
		return w.load(c.Map)
	case MarkSaved:
		return w.ledger.MarkSaved()
	}
	return &CommandError{Type: cmd.CommandType(), Reason: "unsupported command"}
}

func validExtent(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func (w *Worker) activateTool(ref *document.EntityReference) error {
	var next Tool
	if ref != nil {
		t, err := w.registry.Lookup(*ref)
		if err != nil {
			return err
		}
		next = t
	}
	if w.tool != nil {
		if err := w.tool.Deactivate(); err != nil {
			return err
		}
		w.tool = nil
	}
	if next != nil {
		if err := next.Activate(handle{w}); err != nil {
			return err
		}
		w.tool = next
		w.logger.Debug("tool activated", "tool", ref.String())
	}
	w.optionsChanged()
	return nil
}

func (w *Worker) cancelTool() error {
	if w.tool == nil {
		return nil
	}
	return w.tool.Cancel()
}

func (w *Worker) setTemplate(ref *document.EntityReference) error {
	if ref != nil && !slices.Contains(w.ledger.Map().MapItemTemplateRefs, *ref) {
		return &CommandError{Type: TypeSetActiveMapItemTemplate, Reason: "unknown template " + ref.String()}
	}
	w.template = ref
	return nil
}

func (w *Worker) load(doc *document.Map) error {
	if doc == nil {
		return &CommandError{Type: TypeLoadMap, Reason: "no map"}
	}
	doc = doc.Clone()
	if err := doc.Validate(); err != nil {
		return err
	}
	if err := w.cancelTool(); err != nil {
		return err
	}
	w.ledger.Reset(doc)
	w.logger.Info("map loaded", "map", doc.Ref.Name, "layers", len(doc.Layers))
	w.notify(MapLoaded{Map: doc.Clone()})
	return nil
}

func (w *Worker) onLedgerEvent(ev ledger.Event) {
	var cs *document.ChangeSet
	if ev.ChangeSet != nil {
		cs = &document.ChangeSet{ID: ev.ChangeSet.ID, Changes: slices.Clone(ev.ChangeSet.Changes)}
	}
	n := 0
	if cs != nil {
		n = len(cs.Changes)
	}
	w.observer.MapUpdated(ev.Reason, n)
	w.notify(MapUpdated{ChangeSet: cs, Reason: ev.Reason})
	if ev.Reason != ledger.ReasonPreview {
		w.dirty = true
		w.scheduleSave()
	}
}

func (w *Worker) notify(n Notification) {
	select {
	case w.notes <- n:
	case <-w.ctx.Done():
		w.logger.Debug("dropping notification after shutdown", "type", n.NotificationType())
	}
}

func (w *Worker) scheduleSave() {
	if w.saver == nil {
		return
	}
	w.saveTimer.Reset(w.debounce)
}

// queueSave encodes the current document and hands it to the saver,
// replacing any snapshot still waiting.
func (w *Worker) queueSave() {
	w.dirty = false
	data, err := document.Encode(w.ledger.Map())
	if err != nil {
		w.logger.Error("encode session snapshot", "error", err)
		return
	}
	select {
	case <-w.saves:
	default:
	}
	w.saves <- data
}

func (w *Worker) runSaver(ctx context.Context) {
	for data := range w.saves {
		op := func() error {
			saveCtx, cancel := context.WithTimeout(ctx, saveTimeout)
			defer cancel()
			return w.saver.Save(saveCtx, data)
		}
		err := backoff.Retry(op, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), saveRetries))
		w.observer.SessionSaved(err)
		if err != nil {
			w.logger.Error("autosave failed", "error", err)
			continue
		}
		w.logger.Debug("session saved", "bytes", len(data))
	}
}

func (w *Worker) setCursor(cursor string) {
	if cursor == w.cursor {
		return
	}
	w.cursor = cursor
	w.notify(ChangeCursor{Cursor: cursor})
}

func (w *Worker) optionsChanged() {
	n := ChangeToolOptions{}
	if w.tool != nil {
		ref := w.tool.Ref()
		n.Tool = &ref
		n.Options = w.tool.Options()
	}
	w.notify(n)
}

// handle is the Handle given to tools.
type handle struct{ w *Worker }

func (h handle) Context() context.Context                         { return h.w.ctx }
func (h handle) Ledger() *ledger.Ledger                           { return h.w.ledger }
func (h handle) ActiveMapItemTemplate() *document.EntityReference { return h.w.template }
func (h handle) CanvasSize() Size                                 { return h.w.canvas }
func (h handle) Overlay() geom.Overlay                            { return h.w.overlay }
func (h handle) Combiner() geomops.Combiner                       { return h.w.combiner }
func (h handle) Logger() *slog.Logger                             { return h.w.logger }
func (h handle) SetCursor(cursor string)                          { h.w.setCursor(cursor) }
func (h handle) OptionsChanged()                                  { h.w.optionsChanged() }
