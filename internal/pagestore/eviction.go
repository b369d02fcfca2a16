package pagestore

import (
	"github.com/objectfs/pagestate/pkg/errors"
	"github.com/objectfs/pagestate/pkg/types"
)

// EvictionStrategy bounds a PageTable. Evict is applied after every store
// and removes least recently used pages until the bound holds or the table
// is empty. It returns the evicted ids, oldest first.
type EvictionStrategy interface {
	Evict(table *PageTable) []types.PageID
	Name() string
}

// CountStrategy keeps at most MaxPages pages.
type CountStrategy struct {
	maxPages int
}

// NewCountStrategy creates a count-bounded strategy. maxPages must be positive.
func NewCountStrategy(maxPages int) (*CountStrategy, error) {
	if maxPages <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidBound, "max pages must be positive, got %d", maxPages).
			WithComponent("pagestore")
	}
	return &CountStrategy{maxPages: maxPages}, nil
}

// MaxPages returns the configured bound.
func (s *CountStrategy) MaxPages() int {
	return s.maxPages
}

// Name implements EvictionStrategy.
func (s *CountStrategy) Name() string {
	return "count"
}

// Evict implements EvictionStrategy.
func (s *CountStrategy) Evict(table *PageTable) []types.PageID {
	var evicted []types.PageID
	// Size is re-read each pass since concurrent stores may add pages.
	for table.Size() > s.maxPages {
		id, _, ok := table.RemoveOldest()
		if !ok {
			break
		}
		evicted = append(evicted, id)
	}
	return evicted
}

// SizeStrategy keeps the total serialized size at or below MaxBytes.
type SizeStrategy struct {
	maxBytes int64
}

// NewSizeStrategy creates a size-bounded strategy. maxBytes must be positive.
func NewSizeStrategy(maxBytes int64) (*SizeStrategy, error) {
	if maxBytes <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidBound, "max bytes must be positive, got %d", maxBytes).
			WithComponent("pagestore")
	}
	return &SizeStrategy{maxBytes: maxBytes}, nil
}

// MaxBytes returns the configured bound.
func (s *SizeStrategy) MaxBytes() int64 {
	return s.maxBytes
}

// Name implements EvictionStrategy.
func (s *SizeStrategy) Name() string {
	return "size"
}

// Evict implements EvictionStrategy. A single page larger than the budget is
// evicted as well; the loop ends once the table is empty.
func (s *SizeStrategy) Evict(table *PageTable) []types.PageID {
	var evicted []types.PageID
	for table.Bytes() > s.maxBytes {
		id, _, ok := table.RemoveOldest()
		if !ok {
			break
		}
		evicted = append(evicted, id)
	}
	return evicted
}
