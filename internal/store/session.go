// Package store holds the persistence collaborators: a local key-value
// session store used for autosave and crash recovery, and the document
// store used by explicit open and save.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mapwright/mapwright/internal/document"
)

var ErrNotFound = errors.New("store: not found")

// DefaultSessionKey is where the worker's autosave lands.
const DefaultSessionKey = "session/current"

// Session is a small key-value store.
type Session interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Saver writes autosave snapshots under one key.
type Saver struct {
	Store Session
	Key   string
}

func (s Saver) Save(ctx context.Context, snapshot []byte) error {
	return s.Store.Put(ctx, s.Key, snapshot)
}

// Recover loads the autosaved map, or ErrNotFound.
func Recover(ctx context.Context, s Session, key string) (*document.Map, error) {
	data, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	m, err := document.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("recover %s: %w", key, err)
	}
	return m, nil
}

type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) Close() error { return nil }

// Open returns the session store for driver: "memory", "bolt", "sqlite" or
// "redis". dsn is a file path for bolt and sqlite and an address for redis.
func Open(ctx context.Context, driver, dsn string) (Session, error) {
	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "bolt":
		s, err := OpenBolt(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := OpenSQLite(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		s, err := OpenRedis(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("store: unknown session driver %q", driver)
}
