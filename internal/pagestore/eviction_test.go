package pagestore

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/pagestate/pkg/errors"
	"github.com/objectfs/pagestate/pkg/types"
)

func TestNewStrategies_RejectNonPositiveBounds(t *testing.T) {
	tests := []struct {
		name string
		make func() error
	}{
		{"count zero", func() error { _, err := NewCountStrategy(0); return err }},
		{"count negative", func() error { _, err := NewCountStrategy(-3); return err }},
		{"size zero", func() error { _, err := NewSizeStrategy(0); return err }},
		{"size negative", func() error { _, err := NewSizeStrategy(-1); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.make()
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidBound)
		})
	}
}

func TestCountStrategy_KeepsMostRecent(t *testing.T) {
	strategy, err := NewCountStrategy(2)
	require.NoError(t, err)
	table := NewPageTable()

	table.StorePage(1, []byte("a"))
	assert.Empty(t, strategy.Evict(table))
	table.StorePage(2, []byte("b"))
	assert.Empty(t, strategy.Evict(table))
	table.StorePage(3, []byte("c"))
	assert.Equal(t, []types.PageID{1}, strategy.Evict(table))

	table.GetPage(2)
	table.StorePage(4, []byte("d"))
	assert.Equal(t, []types.PageID{3}, strategy.Evict(table))
	assert.Equal(t, []types.PageID{2, 4}, table.IDs())
}

func TestCountStrategy_RandomSequences(t *testing.T) {
	strategy, err := NewCountStrategy(2)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	for run := 0; run < 50; run++ {
		table := NewPageTable()
		var touched []types.PageID

		for step := 0; step < 40; step++ {
			id := types.PageID(rng.Intn(6))
			if rng.Intn(2) == 0 {
				table.StorePage(id, []byte{1})
				strategy.Evict(table)
				touched = append(touched, id)
			} else if _, ok := table.GetPage(id); ok {
				touched = append(touched, id)
			}

			require.LessOrEqual(t, table.Size(), 2)
			assert.Equal(t, lastDistinct(touched, table.Size()), table.IDs())
		}
	}
}

// lastDistinct returns the n most recently touched distinct ids, oldest first.
func lastDistinct(touched []types.PageID, n int) []types.PageID {
	seen := make(map[types.PageID]bool)
	var out []types.PageID
	for i := len(touched) - 1; i >= 0 && len(out) < n; i-- {
		if !seen[touched[i]] {
			seen[touched[i]] = true
			out = append([]types.PageID{touched[i]}, out...)
		}
	}
	if out == nil {
		out = []types.PageID{}
	}
	return out
}

func TestSizeStrategy_EvictsUntilUnderBudget(t *testing.T) {
	strategy, err := NewSizeStrategy(10)
	require.NoError(t, err)
	table := NewPageTable()

	table.StorePage(1, make([]byte, 4))
	table.StorePage(2, make([]byte, 4))
	assert.Empty(t, strategy.Evict(table))

	table.StorePage(3, make([]byte, 4))
	assert.Equal(t, []types.PageID{1}, strategy.Evict(table))
	assert.Equal(t, int64(8), table.Bytes())
}

func TestSizeStrategy_OversizedPageEmptiesTable(t *testing.T) {
	strategy, err := NewSizeStrategy(5)
	require.NoError(t, err)
	table := NewPageTable()

	table.StorePage(1, make([]byte, 2))
	table.StorePage(2, make([]byte, 100))

	evicted := strategy.Evict(table)
	assert.Equal(t, []types.PageID{1, 2}, evicted)
	assert.Equal(t, 0, table.Size())
	assert.Equal(t, int64(0), table.Bytes())
}

func TestSizeStrategy_Terminates(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, maxBytes := range []int64{1, 3, 16, 64} {
		strategy, err := NewSizeStrategy(maxBytes)
		require.NoError(t, err)
		table := NewPageTable()

		for step := 0; step < 100; step++ {
			table.StorePage(types.PageID(rng.Intn(20)), make([]byte, rng.Intn(40)))
			strategy.Evict(table)
			assert.True(t, table.Size() == 0 || table.Bytes() <= maxBytes,
				"max=%d size=%d bytes=%d", maxBytes, table.Size(), table.Bytes())
		}
	}
}

func TestStrategy_EmptyTableIsNoop(t *testing.T) {
	count, err := NewCountStrategy(1)
	require.NoError(t, err)
	size, err := NewSizeStrategy(1)
	require.NoError(t, err)

	table := NewPageTable()
	assert.Empty(t, count.Evict(table))
	assert.Empty(t, size.Evict(table))
	assert.Equal(t, "count", count.Name())
	assert.Equal(t, "size", size.Name())
}
