package datastore

import (
	"context"

	"github.com/objectfs/pagestate/internal/circuit"
	"github.com/objectfs/pagestate/pkg/types"
	"github.com/objectfs/pagestate/pkg/utils"
)

// GuardedStore wraps a DataStore with a circuit breaker. While the breaker is
// open every call fails fast with DATA_STORE_UNAVAILABLE instead of waiting
// on an unreachable backend.
type GuardedStore struct {
	inner   types.DataStore
	breaker *circuit.Breaker
}

// NewGuardedStore guards inner with a breaker built from config. State
// changes are logged at WARN.
func NewGuardedStore(inner types.DataStore, config circuit.Config, logger *utils.StructuredLogger) *GuardedStore {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	logger = logger.WithComponent("datastore")
	next := config.OnStateChange
	config.OnStateChange = func(name string, from, to circuit.State) {
		logger.Warn("data store circuit breaker changed state", map[string]interface{}{
			"breaker": name,
			"from":    from.String(),
			"to":      to.String(),
		})
		if next != nil {
			next(name, from, to)
		}
	}
	return &GuardedStore{
		inner:   inner,
		breaker: circuit.NewBreaker("datastore", config),
	}
}

// Breaker returns the breaker guarding the store.
func (g *GuardedStore) Breaker() *circuit.Breaker {
	return g.breaker
}

// StoreData implements types.DataStore.
func (g *GuardedStore) StoreData(ctx context.Context, session types.SessionID, id types.PageID, data []byte) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.inner.StoreData(ctx, session, id, data)
	})
}

// GetData implements types.DataStore.
func (g *GuardedStore) GetData(ctx context.Context, session types.SessionID, id types.PageID) ([]byte, bool, error) {
	var (
		data []byte
		ok   bool
	)
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		data, ok, err = g.inner.GetData(ctx, session, id)
		return err
	})
	return data, ok, err
}

// RemoveData implements types.DataStore.
func (g *GuardedStore) RemoveData(ctx context.Context, session types.SessionID, id types.PageID) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.inner.RemoveData(ctx, session, id)
	})
}

// RemoveSession implements types.DataStore.
func (g *GuardedStore) RemoveSession(ctx context.Context, session types.SessionID) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.inner.RemoveSession(ctx, session)
	})
}

// Close closes the wrapped store. It is not guarded.
func (g *GuardedStore) Close() error {
	return g.inner.Close()
}
