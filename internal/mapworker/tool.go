package mapworker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mapwright/mapwright/internal/document"
	"github.com/mapwright/mapwright/internal/geom"
	"github.com/mapwright/mapwright/internal/geomops"
	"github.com/mapwright/mapwright/internal/ledger"
)

var (
	ErrUnknownTool   = errors.New("mapworker: unknown tool")
	ErrUnknownOption = errors.New("mapworker: unknown tool option")
)

// ToolOption describes one control the presentation layer shows for the
// active tool.
type ToolOption struct {
	Name    string          `json:"name"`
	Label   string          `json:"label"`
	Choices []string        `json:"choices,omitempty"`
	Value   json.RawMessage `json:"value"`
	Enabled bool            `json:"enabled"`
}

// Tool turns input events into document edits. All methods run on the
// worker goroutine.
type Tool interface {
	Ref() document.EntityReference
	Activate(h Handle) error
	Deactivate() error
	// Cancel abandons any interaction in progress, restoring the document.
	Cancel() error
	Pointer(ev Pointer) error
	Key(ev Key) error
	Options() []ToolOption
	SetOption(name string, value json.RawMessage) error
}

// Handle is what a tool may reach of the worker.
type Handle interface {
	Context() context.Context
	Ledger() *ledger.Ledger
	ActiveMapItemTemplate() *document.EntityReference
	CanvasSize() Size
	Overlay() geom.Overlay
	Combiner() geomops.Combiner
	Logger() *slog.Logger
	SetCursor(cursor string)
	// OptionsChanged republishes the tool's options.
	OptionsChanged()
}

type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Registry maps tool references to tools.
type Registry struct {
	tools map[document.EntityReference]Tool
	order []document.EntityReference
}

func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[document.EntityReference]Tool)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// BuiltinRegistry holds the select and combine tools.
func BuiltinRegistry() *Registry {
	r, _ := NewRegistry(NewSelectTool(), NewCombineTool())
	return r
}

func (r *Registry) Register(t Tool) error {
	ref := t.Ref()
	if _, ok := r.tools[ref]; ok {
		return fmt.Errorf("mapworker: tool %s registered twice", ref)
	}
	r.tools[ref] = t
	r.order = append(r.order, ref)
	return nil
}

func (r *Registry) Lookup(ref document.EntityReference) (Tool, error) {
	t, ok := r.tools[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, ref)
	}
	return t, nil
}

func (r *Registry) Refs() []document.EntityReference {
	return append([]document.EntityReference(nil), r.order...)
}
