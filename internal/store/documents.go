package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mapwright/mapwright/internal/document"
	"github.com/mapwright/mapwright/internal/typeid"
)

// Record describes a stored map without its body.
type Record struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Documents is the explicit open/save persistence collaborator. Save with
// an empty id creates a new record.
type Documents interface {
	Save(ctx context.Context, id string, m *document.Map) (Record, error)
	Open(ctx context.Context, id string) (*document.Map, Record, error)
	List(ctx context.Context) ([]Record, error)
	Delete(ctx context.Context, id string) error
}

type memoryDoc struct {
	rec  Record
	body []byte
}

// MemoryDocuments is a process-local Documents.
type MemoryDocuments struct {
	mu   sync.Mutex
	docs map[string]memoryDoc
	now  func() time.Time
}

func NewMemoryDocuments() *MemoryDocuments {
	return &MemoryDocuments{docs: make(map[string]memoryDoc), now: time.Now}
}

func (d *MemoryDocuments) Save(_ context.Context, id string, m *document.Map) (Record, error) {
	body, err := encodeForSave(m)
	if err != nil {
		return Record{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if id == "" {
		id = typeid.NewMapID()
	}
	prev, ok := d.docs[id]
	rec := Record{ID: id, Name: m.Ref.Name, Version: 1, UpdatedAt: d.now().UTC()}
	if ok {
		rec.Version = prev.rec.Version + 1
	}
	d.docs[id] = memoryDoc{rec: rec, body: body}
	return rec, nil
}

func (d *MemoryDocuments) Open(_ context.Context, id string) (*document.Map, Record, error) {
	d.mu.Lock()
	doc, ok := d.docs[id]
	d.mu.Unlock()
	if !ok {
		return nil, Record{}, ErrNotFound
	}
	m, err := document.Decode(doc.body)
	if err != nil {
		return nil, Record{}, fmt.Errorf("open %s: %w", id, err)
	}
	return m, doc.rec, nil
}

func (d *MemoryDocuments) List(_ context.Context) ([]Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Record, 0, len(d.docs))
	for _, doc := range d.docs {
		out = append(out, doc.rec)
	}
	sortRecords(out)
	return out, nil
}

func (d *MemoryDocuments) Delete(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.docs[id]; !ok {
		return ErrNotFound
	}
	delete(d.docs, id)
	return nil
}

// encodeForSave stores the map with its unsaved flag cleared.
func encodeForSave(m *document.Map) ([]byte, error) {
	c := m.Clone()
	c.HasUnsavedChanges = false
	return document.Encode(c)
}

// sortRecords orders newest first, then by id.
func sortRecords(recs []Record) {
	slices.SortFunc(recs, func(a, b Record) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
