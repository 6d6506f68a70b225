//go:build js && wasm

package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"syscall/js"

	"github.com/mapwright/mapwright/internal/document"
	"github.com/mapwright/mapwright/internal/geomops"
	"github.com/mapwright/mapwright/internal/mapworker"
	"github.com/mapwright/mapwright/internal/protocol"
	"github.com/mapwright/mapwright/internal/render"
	"github.com/mapwright/mapwright/internal/view"
)

var (
	worker *mapworker.Worker
	mirror *view.Mirror
	ctx    = context.Background()

	// outbox keeps commands in call order; JS callbacks must not block on
	// the worker.
	outbox = make(chan mapworker.Command, 256)
)

var errOutboxFull = errors.New("command queue full")

// jsLink forwards notifications to the callback registered with
// onNotification.
type jsLink struct{}

var listener js.Value

func (jsLink) PublishStatus(view.Status)     {}
func (jsLink) PublishSnapshot(*document.Map) {}

func (jsLink) PublishNotification(n mapworker.Notification) {
	if listener.Type() != js.TypeFunction {
		return
	}
	env, err := protocol.EncodeNotification(n)
	if err != nil {
		slog.Error("encode notification", "type", n.NotificationType(), "error", err)
		return
	}
	listener.Invoke(string(env))
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn})))

	start(document.NewSampleMap())

	api := js.Global().Get("Object").New()

	// --- Commands (frontend → worker) ---
	api.Set("post", js.FuncOf(post))
	api.Set("loadMap", js.FuncOf(loadMap))
	api.Set("loadSampleMap", js.FuncOf(loadSampleMap))
	api.Set("onNotification", js.FuncOf(onNotification))
	api.Set("setCombiner", js.FuncOf(setCombiner))

	// --- Queries (frontend ← mirror) ---
	api.Set("render", js.FuncOf(renderFrame))
	api.Set("getMap", js.FuncOf(getMap))
	api.Set("getStatus", js.FuncOf(getStatus))
	api.Set("canUndo", js.FuncOf(func(js.Value, []js.Value) interface{} { return mirror.CanUndo() }))
	api.Set("canRedo", js.FuncOf(func(js.Value, []js.Value) interface{} { return mirror.CanRedo() }))

	js.Global().Set("mapwright", api)
	js.Global().Set("mapwrightWasmReady", js.ValueOf(true))

	select {}
}

// combineFn is the JS boolean-geometry service, undefined until
// setCombiner is called.
var combineFn js.Value

func start(m *document.Map) {
	worker = mapworker.New(m, mapworker.WithCombiner(geomops.CombinerFunc(combine)))
	mirror = view.NewMirror(m)
	mirror.AddLink(jsLink{})
	go worker.Run(ctx)
	go mirror.Run(ctx, worker.Notifications())
	go forward()
}

func forward() {
	for cmd := range outbox {
		if err := worker.Send(ctx, cmd); err != nil {
			slog.Error("send command", "type", cmd.CommandType(), "error", err)
		}
	}
}

func enqueue(cmd mapworker.Command) interface{} {
	select {
	case outbox <- cmd:
		return okResult()
	default:
		return errorResult(errOutboxFull)
	}
}

func errorResult(err error) interface{} {
	return js.ValueOf(map[string]interface{}{"error": err.Error()})
}

func okResult() interface{} {
	return js.ValueOf(map[string]interface{}{"ok": true})
}

// post takes a protocol envelope. Failures after decoding arrive as
// transactionFailed notifications.
func post(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf(map[string]interface{}{"error": "missing command JSON"})
	}
	cmd, err := protocol.DecodeCommand([]byte(args[0].String()))
	if err != nil {
		return errorResult(err)
	}
	return enqueue(cmd)
}

func loadMap(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf(map[string]interface{}{"error": "missing map JSON"})
	}
	m, err := document.Decode([]byte(args[0].String()))
	if err != nil {
		return errorResult(err)
	}
	return enqueue(mapworker.LoadMap{Map: m})
}

func loadSampleMap(this js.Value, args []js.Value) interface{} {
	return enqueue(mapworker.LoadMap{Map: document.NewSampleMap()})
}

func onNotification(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		listener = js.Undefined()
		return nil
	}
	listener = args[0]
	return nil
}

// setCombiner installs fn(op, primaryJSON, secondaryJSON), which returns
// the result paths as JSON or throws. Without it the combine tool reports
// the operation as unsupported.
func setCombiner(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || args[0].Type() != js.TypeFunction {
		combineFn = js.Undefined()
		return nil
	}
	combineFn = args[0]
	return nil
}

func combine(ctx context.Context, op geomops.Operation, primary, secondary []*document.Path) (paths []*document.Path, err error) {
	if combineFn.Type() != js.TypeFunction {
		return geomops.Unavailable{}.Combine(ctx, op, primary, secondary)
	}
	p, err := json.Marshal(primary)
	if err != nil {
		return nil, err
	}
	s, err := json.Marshal(secondary)
	if err != nil {
		return nil, err
	}
	defer func() {
		// a thrown JS exception surfaces as a js.Error panic
		if r := recover(); r != nil {
			if jsErr, ok := r.(js.Error); ok {
				paths, err = nil, jsErr
				return
			}
			panic(r)
		}
	}()
	out := combineFn.Invoke(string(op), string(p), string(s))
	if err := json.Unmarshal([]byte(out.String()), &paths); err != nil {
		return nil, err
	}
	return paths, nil
}

func renderFrame(this js.Value, args []js.Value) interface{} {
	out, err := render.ToJSON(render.Frame(mirror.Snapshot()))
	if err != nil {
		slog.Error("render", "error", err)
	}
	return js.ValueOf(out)
}

func getMap(this js.Value, args []js.Value) interface{} {
	data, err := document.Encode(mirror.Snapshot())
	if err != nil {
		return js.ValueOf("{}")
	}
	return js.ValueOf(string(data))
}

func getStatus(this js.Value, args []js.Value) interface{} {
	data, err := json.Marshal(mirror.Status())
	if err != nil {
		return js.ValueOf("{}")
	}
	return js.ValueOf(string(data))
}
