package pagestore

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/objectfs/pagestate/pkg/types"
)

// PageTable maps page ids to serialized page bytes and keeps the ids ordered
// by recency of use: the front of the order list is the least recently used
// page, the back the most recently used. Every id in the map is in the list
// exactly once and vice versa.
//
// All mutating operations, including GetPage (which promotes), take the same
// lock. Size may be read without it.
type PageTable struct {
	mu      sync.Mutex
	entries map[types.PageID]*list.Element
	order   *list.List
	bytes   int64
	size    atomic.Int64

	stats    types.TableStats
	now      func() time.Time
	observer func(deltaPages int, deltaBytes int64)
}

type tableEntry struct {
	id         types.PageID
	data       []byte
	lastAccess time.Time
}

// TableOption configures a PageTable.
type TableOption func(*PageTable)

// WithClock overrides the time source used for access timestamps.
func WithClock(now func() time.Time) TableOption {
	return func(t *PageTable) {
		t.now = now
	}
}

// WithObserver registers a callback invoked, under the table lock, with the
// change in page count and byte total after every mutation.
func WithObserver(fn func(deltaPages int, deltaBytes int64)) TableOption {
	return func(t *PageTable) {
		t.observer = fn
	}
}

// NewPageTable creates an empty page table.
func NewPageTable(opts ...TableOption) *PageTable {
	t := &PageTable{
		entries: make(map[types.PageID]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StorePage inserts or overwrites the bytes for id and makes id the most
// recently used page. The data is copied.
func (t *PageTable) StorePage(id types.PageID, data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.Stores++
	if elem, exists := t.entries[id]; exists {
		entry := elem.Value.(*tableEntry)
		delta := int64(len(buf) - len(entry.data))
		entry.data = buf
		entry.lastAccess = t.now()
		t.bytes += delta
		t.order.MoveToBack(elem)
		t.notify(0, delta)
		return
	}

	entry := &tableEntry{id: id, data: buf, lastAccess: t.now()}
	t.entries[id] = t.order.PushBack(entry)
	t.bytes += int64(len(buf))
	t.size.Store(int64(len(t.entries)))
	t.notify(1, int64(len(buf)))
}

// GetPage returns a copy of the bytes stored for id. A hit promotes id to
// most recently used.
func (t *PageTable) GetPage(id types.PageID) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	elem, exists := t.entries[id]
	if !exists {
		t.stats.Misses++
		return nil, false
	}

	entry := elem.Value.(*tableEntry)
	entry.lastAccess = t.now()
	t.order.MoveToBack(elem)
	t.stats.Hits++

	result := make([]byte, len(entry.data))
	copy(result, entry.data)
	return result, true
}

// Contains reports whether id is present without promoting it.
func (t *PageTable) Contains(id types.PageID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, exists := t.entries[id]
	return exists
}

// RemovePage deletes id and returns the bytes it held. Removing an absent id
// is a no-op that reports false.
func (t *PageTable) RemovePage(id types.PageID) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	elem, exists := t.entries[id]
	if !exists {
		return nil, false
	}
	return t.removeElement(elem).data, true
}

// Oldest returns the least recently used id without changing any state.
func (t *PageTable) Oldest() (types.PageID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	front := t.order.Front()
	if front == nil {
		return 0, false
	}
	return front.Value.(*tableEntry).id, true
}

// RemoveOldest atomically removes the least recently used page.
func (t *PageTable) RemoveOldest() (types.PageID, []byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	front := t.order.Front()
	if front == nil {
		return 0, nil, false
	}
	entry := t.removeElement(front)
	t.stats.Evictions++
	return entry.id, entry.data, true
}

// RemoveOlderThan removes every page whose last access is before cutoff and
// returns their ids, oldest first.
func (t *PageTable) RemoveOlderThan(cutoff time.Time) []types.PageID {
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []types.PageID
	// Access times are monotonic along the list, so stop at the first fresh page.
	for elem := t.order.Front(); elem != nil; {
		entry := elem.Value.(*tableEntry)
		if !entry.lastAccess.Before(cutoff) {
			break
		}
		next := elem.Next()
		t.removeElement(elem)
		t.stats.Expired++
		removed = append(removed, entry.id)
		elem = next
	}
	return removed
}

// Clear removes every page.
func (t *PageTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	pages, bytes := len(t.entries), t.bytes
	t.entries = make(map[types.PageID]*list.Element)
	t.order.Init()
	t.bytes = 0
	t.size.Store(0)
	t.notify(-pages, -bytes)
}

// Size returns the number of pages. It does not take the lock.
func (t *PageTable) Size() int {
	return int(t.size.Load())
}

// Bytes returns the sum of the serialized sizes of all pages.
func (t *PageTable) Bytes() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bytes
}

// IDs returns the page ids ordered from least to most recently used.
func (t *PageTable) IDs() []types.PageID {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]types.PageID, 0, t.order.Len())
	for elem := t.order.Front(); elem != nil; elem = elem.Next() {
		ids = append(ids, elem.Value.(*tableEntry).id)
	}
	return ids
}

// Stats returns table statistics
func (t *PageTable) Stats() types.TableStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := t.stats
	stats.Pages = len(t.entries)
	stats.Bytes = t.bytes
	return stats
}

// removeElement unlinks elem from both structures. Caller holds t.mu.
func (t *PageTable) removeElement(elem *list.Element) *tableEntry {
	entry := t.order.Remove(elem).(*tableEntry)
	delete(t.entries, entry.id)
	t.bytes -= int64(len(entry.data))
	t.size.Store(int64(len(t.entries)))
	t.notify(-1, -int64(len(entry.data)))
	return entry
}

func (t *PageTable) notify(deltaPages int, deltaBytes int64) {
	if t.observer != nil && (deltaPages != 0 || deltaBytes != 0) {
		t.observer(deltaPages, deltaBytes)
	}
}
