package datastore

import (
	"context"
	"sync"

	"github.com/objectfs/pagestate/pkg/errors"
	"github.com/objectfs/pagestate/pkg/types"
)

// MemoryStore keeps pages in process memory. It is meant for development and
// tests; pages do not outlive the process.
type MemoryStore struct {
	mu     sync.RWMutex
	pages  map[types.SessionID]map[types.PageID][]byte
	closed bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pages: make(map[types.SessionID]map[types.PageID][]byte)}
}

// StoreData implements types.DataStore.
func (m *MemoryStore) StoreData(_ context.Context, session types.SessionID, id types.PageID, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errClosed("StoreData")
	}
	pages, ok := m.pages[session]
	if !ok {
		pages = make(map[types.PageID][]byte)
		m.pages[session] = pages
	}
	pages[id] = append([]byte(nil), data...)
	return nil
}

// GetData implements types.DataStore.
func (m *MemoryStore) GetData(_ context.Context, session types.SessionID, id types.PageID) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, false, errClosed("GetData")
	}
	data, ok := m.pages[session][id]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

// RemoveData implements types.DataStore.
func (m *MemoryStore) RemoveData(_ context.Context, session types.SessionID, id types.PageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errClosed("RemoveData")
	}
	if pages, ok := m.pages[session]; ok {
		delete(pages, id)
		if len(pages) == 0 {
			delete(m.pages, session)
		}
	}
	return nil
}

// RemoveSession implements types.DataStore.
func (m *MemoryStore) RemoveSession(_ context.Context, session types.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errClosed("RemoveSession")
	}
	delete(m.pages, session)
	return nil
}

// Close implements types.DataStore.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.pages = nil
	return nil
}

// Len returns the number of pages stored for session.
func (m *MemoryStore) Len(session types.SessionID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pages[session])
}

func errClosed(operation string) error {
	return errors.NewError(errors.ErrCodeNotInitialized, "data store is closed").
		WithComponent("datastore").WithOperation(operation)
}
