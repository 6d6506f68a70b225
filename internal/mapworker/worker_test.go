package mapworker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mapwright/mapwright/internal/document"
	"github.com/mapwright/mapwright/internal/geom"
	"github.com/mapwright/mapwright/internal/geomops"
	"github.com/mapwright/mapwright/internal/ledger"
)

// rectMap builds a single-layer map with one group per rect. The first
// group is primary and the rest secondary when selected is set.
func rectMap(t *testing.T, selected bool, rects ...geom.Rect) *document.Map {
	t.Helper()
	m := document.NewMap("test", "L")
	var groups []*document.MapItemGroup
	for i, r := range rects {
		g := document.NewMapItemGroup(document.NewMapItem(document.TemplateLand, document.RectPath(r.X, r.Y, r.Width, r.Height)))
		switch {
		case !selected:
		case i == 0:
			g.SelectionStatus = document.SelectionPrimary
		default:
			g.SelectionStatus = document.SelectionSecondary
		}
		groups = append(groups, g)
	}
	if err := m.Layers[0].SetMapItemGroups(groups); err != nil {
		t.Fatalf("groups: %v", err)
	}
	return m
}

func startWorker(t *testing.T, m *document.Map, opts ...Option) *Worker {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	w := New(m, opts...)
	go func() {
		if err := w.Run(ctx); err != nil {
			t.Errorf("run: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-w.Done()
	})
	return w
}

func send(t *testing.T, w *Worker, cmds ...Command) {
	t.Helper()
	for _, c := range cmds {
		if err := w.Send(context.Background(), c); err != nil {
			t.Fatalf("send %s: %v", c.CommandType(), err)
		}
	}
}

// drain waits for every queued command and returns the notifications they
// produced.
func drain(t *testing.T, w *Worker) []Notification {
	t.Helper()
	if _, err := w.History(context.Background()); err != nil {
		t.Fatalf("history: %v", err)
	}
	var out []Notification
	for {
		select {
		case n := <-w.Notifications():
			out = append(out, n)
		default:
			return out
		}
	}
}

func snapshotOf(t *testing.T, w *Worker) *document.Map {
	t.Helper()
	m, err := w.Map(context.Background())
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	return m
}

func hideLayer(t *testing.T, name string, hidden bool) *document.ChangeSet {
	t.Helper()
	c, err := document.Edit(document.KindLayer, document.Address{LayerName: name}, document.PropIsHidden, !hidden, hidden)
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	return document.NewChangeSet(c)
}

func reasons(ns []Notification) []ledger.Reason {
	var out []ledger.Reason
	for _, n := range ns {
		if u, ok := n.(MapUpdated); ok {
			out = append(out, u.Reason)
		}
	}
	return out
}

func TestUpdateUndoRedo(t *testing.T) {
	w := startWorker(t, rectMap(t, false, geom.Rect{Width: 10, Height: 10}))

	send(t, w, UpdateMap{ChangeSet: hideLayer(t, "L", true)})
	if !snapshotOf(t, w).Layers[0].IsHidden {
		t.Fatalf("update not applied")
	}
	send(t, w, Undo{})
	if snapshotOf(t, w).Layers[0].IsHidden {
		t.Fatalf("undo not applied")
	}
	send(t, w, Redo{})
	h, err := w.History(context.Background())
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !h.CanUndo || h.CanRedo {
		t.Fatalf("history = %+v", h)
	}

	got := reasons(drain(t, w))
	want := []ledger.Reason{ledger.ReasonCommitted, ledger.ReasonUndone, ledger.ReasonRedone}
	if len(got) != len(want) {
		t.Fatalf("reasons = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("reasons = %v, want %v", got, want)
		}
	}
}

func TestMarkSavedKeepsHistory(t *testing.T) {
	w := startWorker(t, rectMap(t, false, geom.Rect{Width: 10, Height: 10}))
	send(t, w, UpdateMap{ChangeSet: hideLayer(t, "L", true)})
	if !snapshotOf(t, w).HasUnsavedChanges {
		t.Fatalf("commit did not mark the map unsaved")
	}
	send(t, w, MarkSaved{})
	if snapshotOf(t, w).HasUnsavedChanges {
		t.Fatalf("mark saved left the flag set")
	}
	if h, _ := w.History(context.Background()); !h.CanUndo {
		t.Fatalf("mark saved dropped history")
	}
}

func TestAddressingFailureKeepsWorkerRunning(t *testing.T) {
	w := startWorker(t, rectMap(t, false, geom.Rect{Width: 10, Height: 10}))
	before, err := document.Encode(snapshotOf(t, w))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	send(t, w, UpdateMap{ChangeSet: hideLayer(t, "missing", true)})
	ns := drain(t, w)
	if len(ns) != 1 {
		t.Fatalf("notifications = %v", ns)
	}
	failed, ok := ns[0].(TransactionFailed)
	if !ok || failed.Command != TypeUpdateMap || !strings.Contains(failed.Error, "missing") {
		t.Fatalf("notification = %#v", ns[0])
	}
	after, _ := document.Encode(snapshotOf(t, w))
	if string(before) != string(after) {
		t.Fatalf("failed update modified the map")
	}

	send(t, w, UpdateMap{ChangeSet: hideLayer(t, "L", true)})
	if !snapshotOf(t, w).Layers[0].IsHidden {
		t.Fatalf("worker stopped applying commands after a failure")
	}
}

func TestInvalidCommands(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
	}{
		{"negative canvas", SetCanvasSize{Width: -1, Height: 10}},
		{"unknown overlay", SetOverlay{Kind: "spiral", Size: 10}},
		{"zero grid", SetOverlay{Kind: "grid"}},
		{"unknown tool", SetActiveTool{Ref: &document.EntityReference{Name: "lasso"}}},
		{"unknown template", SetActiveMapItemTemplate{Ref: &document.EntityReference{Name: "forest"}}},
		{"option without tool", SetToolOption{Name: "x"}},
		{"load nil", LoadMap{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := startWorker(t, rectMap(t, false))
			send(t, w, tt.cmd)
			ns := drain(t, w)
			if len(ns) != 1 {
				t.Fatalf("notifications = %v", ns)
			}
			if _, ok := ns[0].(TransactionFailed); !ok {
				t.Fatalf("notification = %#v", ns[0])
			}
		})
	}
}

func TestMapQueryIsDeepCopy(t *testing.T) {
	w := startWorker(t, rectMap(t, false, geom.Rect{Width: 10, Height: 10}))
	m := snapshotOf(t, w)
	m.Layers[0].MapItemGroups[0].MapItems[0].Paths[0].Start = geom.Pt(99, 99)
	m.Layers[0].Name = "changed"

	again := snapshotOf(t, w)
	if again.Layers[0].Name != "L" || !again.Layers[0].MapItemGroups[0].MapItems[0].Paths[0].Start.IsZero() {
		t.Fatalf("query result shares state with the worker")
	}
}

func TestCanvasSizeAndToolOptions(t *testing.T) {
	w := startWorker(t, rectMap(t, false))
	send(t, w, SetCanvasSize{Width: 800, Height: 600}, SetActiveTool{Ref: &document.ToolCombine})
	size, err := w.CanvasSize(context.Background())
	if err != nil || size != (Size{Width: 800, Height: 600}) {
		t.Fatalf("canvas = %+v, %v", size, err)
	}
	opts, err := w.ToolOptions(context.Background())
	if err != nil || len(opts) != 1 || opts[0].Name != "operation" {
		t.Fatalf("options = %+v, %v", opts, err)
	}

	send(t, w, SetToolOption{Name: "operation", Value: []byte(`"exclusion"`)})
	ns := drain(t, w)
	last, ok := ns[len(ns)-1].(ChangeToolOptions)
	if !ok || string(last.Options[0].Value) != `"exclusion"` {
		t.Fatalf("last notification = %#v", ns[len(ns)-1])
	}
}

func TestSelectAllInViewUsesCanvas(t *testing.T) {
	w := startWorker(t, rectMap(t, false,
		geom.Rect{X: 10, Y: 10, Width: 10, Height: 10},
		geom.Rect{X: 500, Y: 500, Width: 10, Height: 10},
	))
	send(t, w, SetCanvasSize{Width: 100, Height: 100}, SelectAllInView{})
	groups := snapshotOf(t, w).Layers[0].MapItemGroups
	if groups[0].SelectionStatus != document.SelectionPrimary || groups[1].SelectionStatus != document.SelectionNone {
		t.Fatalf("statuses = %s, %s", groups[0].SelectionStatus, groups[1].SelectionStatus)
	}
	if h, _ := w.History(context.Background()); h.CanUndo {
		t.Fatalf("selection must not enter the undo history")
	}

	send(t, w, UnSelectAll{})
	groups = snapshotOf(t, w).Layers[0].MapItemGroups
	if groups[0].SelectionStatus != document.SelectionNone {
		t.Fatalf("unselect all left %s", groups[0].SelectionStatus)
	}
}

func TestLoadMapResetsHistory(t *testing.T) {
	w := startWorker(t, rectMap(t, false))
	send(t, w, UpdateMap{ChangeSet: hideLayer(t, "L", true)})

	next := document.NewSampleMap()
	send(t, w, LoadMap{Map: next})
	ns := drain(t, w)
	loaded, ok := ns[len(ns)-1].(MapLoaded)
	if !ok || loaded.Map.Ref != next.Ref {
		t.Fatalf("last notification = %#v", ns[len(ns)-1])
	}
	h, _ := w.History(context.Background())
	if h.CanUndo || h.CanRedo {
		t.Fatalf("history survived load: %+v", h)
	}
}

func TestSendAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := New(rectMap(t, false))
	go w.Run(ctx)
	cancel()
	<-w.Done()

	if err := w.Send(context.Background(), Undo{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("send = %v, want ErrClosed", err)
	}
	if _, err := w.Map(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("map = %v, want ErrClosed", err)
	}
	if _, ok := <-w.Notifications(); ok {
		t.Fatalf("notifications not closed")
	}
	if err := w.Run(context.Background()); !errors.Is(err, ErrRunning) {
		t.Fatalf("second run = %v", err)
	}
}

type fakeSaver struct {
	mu    sync.Mutex
	saved [][]byte
	fail  int
	ch    chan struct{}
}

func newFakeSaver() *fakeSaver { return &fakeSaver{ch: make(chan struct{}, 16)} }

func (s *fakeSaver) Save(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail > 0 {
		s.fail--
		return errors.New("disk full")
	}
	s.saved = append(s.saved, data)
	s.ch <- struct{}{}
	return nil
}

func (s *fakeSaver) last(t *testing.T) *document.Map {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := document.Decode(s.saved[len(s.saved)-1])
	if err != nil {
		t.Fatalf("decode saved snapshot: %v", err)
	}
	return m
}

func TestAutosaveAfterCommit(t *testing.T) {
	saver := newFakeSaver()
	saver.fail = 1
	w := startWorker(t, rectMap(t, false), WithSessionSaver(saver, 0))
	send(t, w, UpdateMap{ChangeSet: hideLayer(t, "L", true)})

	select {
	case <-saver.ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("no autosave")
	}
	if m := saver.last(t); !m.Layers[0].IsHidden || !m.HasUnsavedChanges {
		t.Fatalf("snapshot does not hold the commit")
	}
}

func TestAutosaveFlushedOnStop(t *testing.T) {
	saver := newFakeSaver()
	ctx, cancel := context.WithCancel(context.Background())
	w := New(rectMap(t, false), WithSessionSaver(saver, time.Hour))
	go w.Run(ctx)
	send(t, w, UpdateMap{ChangeSet: hideLayer(t, "L", true)})
	drain(t, w)
	cancel()
	<-w.Done()

	if len(saver.saved) != 1 {
		t.Fatalf("saved %d snapshots, want 1", len(saver.saved))
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	commands []string
	failures int
}

func (o *recordingObserver) CommandHandled(command string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.commands = append(o.commands, command)
	if err != nil {
		o.failures++
	}
}
func (o *recordingObserver) MapUpdated(ledger.Reason, int) {}
func (o *recordingObserver) SessionSaved(error)            {}

func TestObserverSeesEveryCommand(t *testing.T) {
	obs := &recordingObserver{}
	w := startWorker(t, rectMap(t, false), WithObserver(obs), WithCombiner(geomops.Unavailable{}))
	send(t, w, Undo{}, SetCanvasSize{Width: -5}, Redo{})
	drain(t, w)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if strings.Join(obs.commands, ",") != "undo,setCanvasSize,redo" || obs.failures != 1 {
		t.Fatalf("observer saw %v with %d failures", obs.commands, obs.failures)
	}
}
