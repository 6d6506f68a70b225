// Package project wires explicit open, save and import of maps between the
// worker and the document store.
package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mapwright/mapwright/internal/document"
	"github.com/mapwright/mapwright/internal/mapworker"
	"github.com/mapwright/mapwright/internal/store"
)

var (
	ErrNotFound = errors.New("map not found")
	ErrInvalid  = errors.New("invalid map")
)

// Editor is the part of the worker the service drives.
type Editor interface {
	Send(ctx context.Context, cmd mapworker.Command) error
	Map(ctx context.Context) (*document.Map, error)
}

type Service struct {
	docs   store.Documents
	editor Editor

	mu      sync.Mutex
	current string
}

func NewService(docs store.Documents, editor Editor) *Service {
	return &Service{docs: docs, editor: editor}
}

// Current is the id of the stored map the editor holds, or "" when it has
// never been saved.
func (s *Service) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Service) List(ctx context.Context) ([]store.Record, error) {
	recs, err := s.docs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list maps: %w", err)
	}
	return recs, nil
}

// Get returns a stored map without loading it.
func (s *Service) Get(ctx context.Context, id string) ([]byte, error) {
	m, _, err := s.docs.Open(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return document.Encode(m)
}

// Create loads a blank map into the editor.
func (s *Service) Create(ctx context.Context, name, layer string) error {
	if layer == "" {
		layer = "Terrain"
	}
	if err := s.editor.Send(ctx, mapworker.LoadMap{Map: document.NewMap(name, layer)}); err != nil {
		return fmt.Errorf("load new map: %w", err)
	}
	s.setCurrent("")
	return nil
}

// Open loads a stored map into the editor, discarding its history.
func (s *Service) Open(ctx context.Context, id string) (store.Record, error) {
	m, rec, err := s.docs.Open(ctx, id)
	if err != nil {
		return store.Record{}, notFound(err)
	}
	if err := s.editor.Send(ctx, mapworker.LoadMap{Map: m}); err != nil {
		return store.Record{}, fmt.Errorf("load map %s: %w", id, err)
	}
	s.setCurrent(id)
	slog.Info("map opened", "map", id, "version", rec.Version)
	return rec, nil
}

// Save stores the editor's map under the current id, or a new one when
// asNew is set or the map was never saved.
func (s *Service) Save(ctx context.Context, asNew bool) (store.Record, error) {
	m, err := s.editor.Map(ctx)
	if err != nil {
		return store.Record{}, fmt.Errorf("snapshot map: %w", err)
	}
	id := s.Current()
	if asNew {
		id = ""
	}
	rec, err := s.docs.Save(ctx, id, m)
	if err != nil {
		return store.Record{}, fmt.Errorf("save map: %w", err)
	}
	s.setCurrent(rec.ID)
	if err := s.editor.Send(ctx, mapworker.MarkSaved{}); err != nil {
		return rec, fmt.Errorf("mark saved: %w", err)
	}
	slog.Info("map saved", "map", rec.ID, "version", rec.Version)
	return rec, nil
}

// Import loads a map snapshot from outside the store. It is unsaved until
// the next Save.
func (s *Service) Import(ctx context.Context, data []byte) error {
	m, err := document.Decode(data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := s.editor.Send(ctx, mapworker.LoadMap{Map: m}); err != nil {
		return fmt.Errorf("load imported map: %w", err)
	}
	s.setCurrent("")
	return nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.docs.Delete(ctx, id); err != nil {
		return notFound(err)
	}
	s.mu.Lock()
	if s.current == id {
		s.current = ""
	}
	s.mu.Unlock()
	return nil
}

func (s *Service) setCurrent(id string) {
	s.mu.Lock()
	s.current = id
	s.mu.Unlock()
}

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
