package pagestore

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/pagestate/pkg/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestPageTable_StoreAndGet(t *testing.T) {
	table := NewPageTable()

	table.StorePage(1, []byte("a"))
	data, ok := table.GetPage(1)
	require.True(t, ok)
	assert.Equal(t, []byte("a"), data)

	_, ok = table.GetPage(2)
	assert.False(t, ok)

	stats := table.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(1), stats.Stores)
}

func TestPageTable_CopiesData(t *testing.T) {
	table := NewPageTable()

	src := []byte("abc")
	table.StorePage(1, src)
	src[0] = 'x'

	got, _ := table.GetPage(1)
	assert.Equal(t, []byte("abc"), got)

	got[1] = 'y'
	again, _ := table.GetPage(1)
	assert.Equal(t, []byte("abc"), again)
}

func TestPageTable_LRUOrder(t *testing.T) {
	tests := []struct {
		name   string
		ops    func(table *PageTable)
		oldest types.PageID
		order  []types.PageID
	}{
		{
			name: "insertion order",
			ops: func(table *PageTable) {
				table.StorePage(1, []byte("a"))
				table.StorePage(2, []byte("b"))
				table.StorePage(3, []byte("c"))
			},
			oldest: 1,
			order:  []types.PageID{1, 2, 3},
		},
		{
			name: "get promotes",
			ops: func(table *PageTable) {
				table.StorePage(1, []byte("a"))
				table.StorePage(2, []byte("b"))
				table.StorePage(3, []byte("c"))
				table.GetPage(1)
			},
			oldest: 2,
			order:  []types.PageID{2, 3, 1},
		},
		{
			name: "overwrite promotes without duplicating",
			ops: func(table *PageTable) {
				table.StorePage(1, []byte("a"))
				table.StorePage(2, []byte("b"))
				table.StorePage(1, []byte("aa"))
			},
			oldest: 2,
			order:  []types.PageID{2, 1},
		},
		{
			name: "contains does not promote",
			ops: func(table *PageTable) {
				table.StorePage(1, []byte("a"))
				table.StorePage(2, []byte("b"))
				table.Contains(1)
			},
			oldest: 1,
			order:  []types.PageID{1, 2},
		},
		{
			name: "miss does not change order",
			ops: func(table *PageTable) {
				table.StorePage(1, []byte("a"))
				table.StorePage(2, []byte("b"))
				table.GetPage(9)
			},
			oldest: 1,
			order:  []types.PageID{1, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := NewPageTable()
			tt.ops(table)

			oldest, ok := table.Oldest()
			require.True(t, ok)
			assert.Equal(t, tt.oldest, oldest)
			assert.Equal(t, tt.order, table.IDs())
			assert.Equal(t, len(tt.order), table.Size())
		})
	}
}

func TestPageTable_Remove(t *testing.T) {
	table := NewPageTable()
	table.StorePage(1, []byte("abc"))
	table.StorePage(2, []byte("de"))

	data, ok := table.RemovePage(1)
	require.True(t, ok)
	assert.Equal(t, []byte("abc"), data)
	assert.Equal(t, 1, table.Size())
	assert.Equal(t, int64(2), table.Bytes())

	_, ok = table.RemovePage(1)
	assert.False(t, ok, "removing an absent page reports not found")
}

func TestPageTable_OldestEmpty(t *testing.T) {
	table := NewPageTable()

	_, ok := table.Oldest()
	assert.False(t, ok)

	_, _, ok = table.RemoveOldest()
	assert.False(t, ok)
}

func TestPageTable_BytesTracking(t *testing.T) {
	table := NewPageTable()

	table.StorePage(1, make([]byte, 10))
	table.StorePage(2, make([]byte, 5))
	assert.Equal(t, int64(15), table.Bytes())

	table.StorePage(1, make([]byte, 3))
	assert.Equal(t, int64(8), table.Bytes())

	table.RemoveOldest()
	assert.Equal(t, int64(3), table.Bytes())

	table.Clear()
	assert.Equal(t, int64(0), table.Bytes())
	assert.Equal(t, 0, table.Size())
	assert.Empty(t, table.IDs())
}

func TestPageTable_Observer(t *testing.T) {
	var pages int
	var bytes int64
	table := NewPageTable(WithObserver(func(dp int, db int64) {
		pages += dp
		bytes += db
	}))

	table.StorePage(1, make([]byte, 4))
	table.StorePage(2, make([]byte, 6))
	table.StorePage(1, make([]byte, 2))
	assert.Equal(t, 2, pages)
	assert.Equal(t, int64(8), bytes)

	table.RemovePage(2)
	assert.Equal(t, 1, pages)
	assert.Equal(t, int64(2), bytes)

	table.Clear()
	assert.Equal(t, 0, pages)
	assert.Equal(t, int64(0), bytes)
}

func TestPageTable_RemoveOlderThan(t *testing.T) {
	clock := newFakeClock()
	table := NewPageTable(WithClock(clock.Now))

	table.StorePage(1, []byte("a"))
	clock.Advance(time.Minute)
	table.StorePage(2, []byte("b"))
	clock.Advance(time.Minute)
	table.StorePage(3, []byte("c"))
	clock.Advance(time.Minute)
	table.GetPage(1)

	removed := table.RemoveOlderThan(clock.Now().Add(-90 * time.Second))
	assert.Equal(t, []types.PageID{2}, removed)
	assert.Equal(t, []types.PageID{3, 1}, table.IDs())
	assert.Equal(t, uint64(1), table.Stats().Expired)
}

func TestPageTable_ConcurrentAccess(t *testing.T) {
	table := NewPageTable()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := types.PageID((w*200 + i) % 50)
				switch i % 3 {
				case 0:
					table.StorePage(id, []byte{byte(i)})
				case 1:
					table.GetPage(id)
				default:
					table.RemovePage(id)
				}
			}
		}(w)
	}
	wg.Wait()

	ids := table.IDs()
	assert.Equal(t, len(ids), table.Size())

	seen := make(map[types.PageID]bool)
	for _, id := range ids {
		assert.False(t, seen[id], "id %d appears twice in the order", id)
		seen[id] = true
		assert.True(t, table.Contains(id))
	}
	assert.Equal(t, int64(len(ids)), table.Bytes())
}
