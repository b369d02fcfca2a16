package pagestore

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/objectfs/pagestate/pkg/errors"
	"github.com/objectfs/pagestate/pkg/types"
)

// Registry owns the page stores of all live sessions. Every store is built
// from the same StoreOptions.
type Registry struct {
	mu     sync.RWMutex
	stores map[types.SessionID]*PageStore
	opts   StoreOptions
	closed bool
}

// NewRegistry creates an empty registry. opts.Strategy is required.
func NewRegistry(opts StoreOptions) (*Registry, error) {
	if opts.Strategy == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "eviction strategy is required").
			WithComponent("pagestore").WithOperation("NewRegistry")
	}
	if opts.Metrics == nil {
		opts.Metrics = types.NopMetrics{}
	}
	return &Registry{
		stores: make(map[types.SessionID]*PageStore),
		opts:   opts,
	}, nil
}

// NewSession creates a page store under a fresh random session id.
func (r *Registry) NewSession() (types.SessionID, *PageStore, error) {
	id := types.SessionID(uuid.NewString())
	store, err := r.GetOrCreate(id)
	return id, store, err
}

// GetOrCreate returns the store for id, creating it on first use.
func (r *Registry) GetOrCreate(id types.SessionID) (*PageStore, error) {
	r.mu.RLock()
	store, ok := r.stores[id]
	r.mu.RUnlock()
	if ok {
		return store, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.NewError(errors.ErrCodeSessionClosed, "registry is closed").
			WithComponent("pagestore").WithOperation("GetOrCreate").WithSession(string(id))
	}
	if store, ok := r.stores[id]; ok {
		return store, nil
	}

	store, err := NewPageStore(id, r.opts)
	if err != nil {
		return nil, err
	}
	r.stores[id] = store
	r.opts.Metrics.UpdateActiveSessions(len(r.stores))
	return store, nil
}

// Session returns the store for id if the session is live.
func (r *Registry) Session(id types.SessionID) (*PageStore, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	store, ok := r.stores[id]
	return store, ok
}

// Invalidate destroys the session's store and forgets it. It reports false
// if the session was unknown.
func (r *Registry) Invalidate(ctx context.Context, id types.SessionID) (bool, error) {
	r.mu.Lock()
	store, ok := r.stores[id]
	if ok {
		delete(r.stores, id)
		r.opts.Metrics.UpdateActiveSessions(len(r.stores))
	}
	r.mu.Unlock()

	if !ok {
		return false, nil
	}
	return true, store.Destroy(ctx)
}

// Sessions returns the ids of all live sessions in sorted order.
func (r *Registry) Sessions() []types.SessionID {
	r.mu.RLock()
	ids := make([]types.SessionID, 0, len(r.stores))
	for id := range r.stores {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Stores returns a snapshot of the live stores.
func (r *Registry) Stores() []*PageStore {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stores := make([]*PageStore, 0, len(r.stores))
	for _, store := range r.stores {
		stores = append(stores, store)
	}
	return stores
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stores)
}

// Close destroys every store. The registry refuses new sessions afterwards.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	stores := r.stores
	r.stores = make(map[types.SessionID]*PageStore)
	r.closed = true
	r.opts.Metrics.UpdateActiveSessions(0)
	r.mu.Unlock()

	var errs []error
	for _, store := range stores {
		if err := store.Destroy(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
