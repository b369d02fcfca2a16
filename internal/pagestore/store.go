package pagestore

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/objectfs/pagestate/pkg/errors"
	"github.com/objectfs/pagestate/pkg/types"
	"github.com/objectfs/pagestate/pkg/utils"
)

// StoreOptions configures a PageStore. Strategy is required; the rest fall
// back to defaults.
type StoreOptions struct {
	Strategy   EvictionStrategy
	DataStore  types.DataStore
	Serializer types.Serializer
	Metrics    types.MetricsRecorder
	Logger     *utils.StructuredLogger
	Clock      func() time.Time
}

// PageStore is the page cache of one session: a bounded PageTable in front of
// an optional second-level DataStore. It is created when the session starts
// and destroyed when the session is invalidated.
type PageStore struct {
	session    types.SessionID
	table      *PageTable
	strategy   EvictionStrategy
	dataStore  types.DataStore
	serializer types.Serializer
	metrics    types.MetricsRecorder
	logger     *utils.StructuredLogger
	now        func() time.Time

	mu         sync.RWMutex
	closed     bool
	createdAt  time.Time
	lastAccess atomic.Int64 // unix nanos

	dataStoreHits atomic.Uint64
}

// NewPageStore creates the page store for session.
func NewPageStore(session types.SessionID, opts StoreOptions) (*PageStore, error) {
	if opts.Strategy == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "eviction strategy is required").
			WithComponent("pagestore").WithSession(string(session))
	}
	if opts.Serializer == nil {
		opts.Serializer = GobSerializer{}
	}
	if opts.Metrics == nil {
		opts.Metrics = types.NopMetrics{}
	}
	if opts.Logger == nil {
		opts.Logger = utils.NewNopLogger()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	s := &PageStore{
		session:    session,
		strategy:   opts.Strategy,
		dataStore:  opts.DataStore,
		serializer: opts.Serializer,
		metrics:    opts.Metrics,
		logger: opts.Logger.WithComponent("pagestore").WithFields(map[string]interface{}{
			"session": session,
			"policy":  opts.Strategy.Name(),
		}),
		now: opts.Clock,
	}
	s.table = NewPageTable(WithClock(opts.Clock), WithObserver(opts.Metrics.UpdateTableSize))
	s.createdAt = s.now()
	s.touch()
	return s, nil
}

// Session returns the owning session id.
func (s *PageStore) Session() types.SessionID {
	return s.session
}

// StorePage stores the serialized page, writes it through to the data store
// and applies the eviction strategy. It holds off Destroy until done, so a
// destroyed session never keeps pages.
func (s *PageStore) StorePage(ctx context.Context, id types.PageID, data []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.openLocked("StorePage"); err != nil {
		return err
	}
	start := s.now()
	s.touch()

	s.table.StorePage(id, data)
	s.evict()

	if s.dataStore != nil {
		if err := s.dataStore.StoreData(ctx, s.session, id, data); err != nil {
			s.metrics.RecordStoreOperation("store", s.now().Sub(start), false)
			s.logger.Warn("data store write failed", map[string]interface{}{"page_id": id, "error": err})
			return errors.Wrap(err, errors.ErrCodeStorageWrite, "failed to write page to data store").
				WithComponent("pagestore").WithOperation("StorePage").WithSession(string(s.session))
		}
	}

	s.metrics.RecordStoreOperation("store", s.now().Sub(start), true)
	s.logger.Trace("page stored", map[string]interface{}{"page_id": id, "size": len(data)})
	return nil
}

// GetPage returns the serialized page. On a table miss the data store is
// consulted and a found page is re-admitted to the table.
func (s *PageStore) GetPage(ctx context.Context, id types.PageID) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.openLocked("GetPage"); err != nil {
		return nil, false, err
	}
	start := s.now()
	s.touch()

	if data, ok := s.table.GetPage(id); ok {
		s.metrics.RecordStoreOperation("get_hit", s.now().Sub(start), true)
		return data, true, nil
	}
	if s.dataStore == nil {
		s.metrics.RecordStoreOperation("get_miss", s.now().Sub(start), true)
		return nil, false, nil
	}

	data, ok, err := s.dataStore.GetData(ctx, s.session, id)
	if err != nil {
		s.metrics.RecordStoreOperation("get_miss", s.now().Sub(start), false)
		return nil, false, errors.Wrap(err, errors.ErrCodeStorageRead, "failed to read page from data store").
			WithComponent("pagestore").WithOperation("GetPage").WithSession(string(s.session))
	}
	if !ok {
		s.metrics.RecordStoreOperation("get_miss", s.now().Sub(start), true)
		return nil, false, nil
	}

	s.dataStoreHits.Add(1)
	s.table.StorePage(id, data)
	s.evict()
	s.metrics.RecordStoreOperation("get_data_store", s.now().Sub(start), true)
	s.logger.Debug("page restored from data store", map[string]interface{}{"page_id": id})
	return data, true, nil
}

// RemovePage removes the page from the table and the data store. It returns
// the bytes held by the table, if any.
func (s *PageStore) RemovePage(ctx context.Context, id types.PageID) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.openLocked("RemovePage"); err != nil {
		return nil, false, err
	}
	s.touch()

	data, ok := s.table.RemovePage(id)
	if s.dataStore != nil {
		if err := s.dataStore.RemoveData(ctx, s.session, id); err != nil {
			return data, ok, errors.Wrap(err, errors.ErrCodeStorageWrite, "failed to remove page from data store").
				WithComponent("pagestore").WithOperation("RemovePage").WithSession(string(s.session))
		}
	}
	s.metrics.RecordStoreOperation("remove", 0, true)
	return data, ok, nil
}

// StoreObject serializes v and stores it under id.
func (s *PageStore) StoreObject(ctx context.Context, id types.PageID, v any) error {
	data, err := s.serializer.Serialize(v)
	if err != nil {
		return err
	}
	return s.StorePage(ctx, id, data)
}

// LoadObject loads the page stored under id into into. It reports false if
// the page is not available.
func (s *PageStore) LoadObject(ctx context.Context, id types.PageID, into any) (bool, error) {
	data, ok, err := s.GetPage(ctx, id)
	if err != nil || !ok {
		return false, err
	}
	if err := s.serializer.Deserialize(data, into); err != nil {
		return false, err
	}
	return true, nil
}

// Expire removes pages not accessed since cutoff from the table, then
// re-applies the eviction strategy. The data store copy is kept.
func (s *PageStore) Expire(cutoff time.Time) []types.PageID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	expired := s.table.RemoveOlderThan(cutoff)
	if len(expired) > 0 {
		s.logger.Debug("pages expired", map[string]interface{}{"count": len(expired)})
	}
	s.evict()
	return expired
}

// Destroy clears the table, drops the session from the data store and closes
// the store. It waits for in-flight page operations; later calls fail with
// SESSION_CLOSED.
func (s *PageStore) Destroy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	s.table.Clear()
	if s.dataStore != nil {
		if err := s.dataStore.RemoveSession(ctx, s.session); err != nil {
			return errors.Wrap(err, errors.ErrCodeStorageWrite, "failed to remove session from data store").
				WithComponent("pagestore").WithOperation("Destroy").WithSession(string(s.session))
		}
	}
	s.logger.Debug("page store destroyed")
	return nil
}

// IDs returns the ids held in the table, least recently used first.
func (s *PageStore) IDs() []types.PageID {
	return s.table.IDs()
}

// Size returns the number of pages held in the table.
func (s *PageStore) Size() int {
	return s.table.Size()
}

// LastAccess returns when the store was last used.
func (s *PageStore) LastAccess() time.Time {
	return time.Unix(0, s.lastAccess.Load())
}

// Stats returns a snapshot of the store's statistics.
func (s *PageStore) Stats() types.StoreStats {
	return types.StoreStats{
		SessionID:    s.session,
		Table:        s.table.Stats(),
		DataStoreHit: s.dataStoreHits.Load(),
		Policy:       s.strategy.Name(),
		CreatedAt:    s.createdAt,
		LastAccess:   s.LastAccess(),
		Closed:       s.isClosed(),
	}
}

func (s *PageStore) evict() {
	evicted := s.strategy.Evict(s.table)
	if len(evicted) == 0 {
		return
	}
	s.metrics.RecordEviction(s.strategy.Name(), len(evicted))
	for _, id := range evicted {
		s.logger.Debug("page evicted", map[string]interface{}{"page_id": id})
	}
}

func (s *PageStore) touch() {
	s.lastAccess.Store(s.now().UnixNano())
}

func (s *PageStore) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// openLocked must be called with s.mu held.
func (s *PageStore) openLocked(operation string) error {
	if s.closed {
		return errors.NewError(errors.ErrCodeSessionClosed, "page store has been destroyed").
			WithComponent("pagestore").WithOperation(operation).WithSession(string(s.session))
	}
	return nil
}
