package render

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/objectfs/pagestate/pkg/errors"
)

type bufferKey struct {
	session string
	url     string
}

// LRUBufferStore is a BufferStore bounded to a fixed number of responses.
// Once full, the least recently stored response is dropped; its redirected
// request then renders the page normally.
type LRUBufferStore struct {
	mu    sync.Mutex
	cache *lru.Cache[bufferKey, *BufferedResponse]
}

// NewLRUBufferStore creates a store holding at most capacity responses.
func NewLRUBufferStore(capacity int) (*LRUBufferStore, error) {
	cache, err := lru.New[bufferKey, *BufferedResponse](capacity)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidBound, "invalid buffer capacity").
			WithComponent("render").WithDetail("capacity", capacity)
	}
	return &LRUBufferStore{cache: cache}, nil
}

// Store implements BufferStore.
func (s *LRUBufferStore) Store(session, url string, resp *BufferedResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Add(bufferKey{session: session, url: url}, resp)
}

// FetchAndRemove implements BufferStore.
func (s *LRUBufferStore) FetchAndRemove(session, url string) (*BufferedResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := bufferKey{session: session, url: url}
	resp, ok := s.cache.Peek(key)
	if !ok {
		return nil, false
	}
	s.cache.Remove(key)
	return resp, true
}

// RemoveSession drops every response buffered for session.
func (s *LRUBufferStore) RemoveSession(session string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, key := range s.cache.Keys() {
		if key.session == session {
			s.cache.Remove(key)
			removed++
		}
	}
	return removed
}

// Len returns the number of buffered responses.
func (s *LRUBufferStore) Len() int {
	return s.cache.Len()
}
