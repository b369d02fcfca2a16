package datastore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/pagestate/pkg/types"
)

// testDataStore runs the behavior every types.DataStore must share.
func testDataStore(t *testing.T, newStore func(t *testing.T) types.DataStore) {
	ctx := context.Background()

	t.Run("missing page is absent", func(t *testing.T) {
		store := newStore(t)
		data, ok, err := store.GetData(ctx, "s1", 1)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, data)
	})

	t.Run("store and get", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.StoreData(ctx, "s1", 1, []byte("page one")))
		require.NoError(t, store.StoreData(ctx, "s1", 2, []byte("page two")))

		data, ok, err := store.GetData(ctx, "s1", 1)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte("page one"), data)
	})

	t.Run("overwrite", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.StoreData(ctx, "s1", 1, []byte("old")))
		require.NoError(t, store.StoreData(ctx, "s1", 1, []byte("new")))

		data, ok, err := store.GetData(ctx, "s1", 1)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte("new"), data)
	})

	t.Run("empty page is present", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.StoreData(ctx, "s1", 3, []byte{}))

		data, ok, err := store.GetData(ctx, "s1", 3)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Empty(t, data)
	})

	t.Run("sessions are isolated", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.StoreData(ctx, "s1", 1, []byte("a")))
		require.NoError(t, store.StoreData(ctx, "s2", 1, []byte("b")))

		data, ok, err := store.GetData(ctx, "s2", 1)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte("b"), data)
	})

	t.Run("remove page", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.StoreData(ctx, "s1", 1, []byte("a")))
		require.NoError(t, store.RemoveData(ctx, "s1", 1))
		require.NoError(t, store.RemoveData(ctx, "s1", 1), "removing twice is not an error")
		require.NoError(t, store.RemoveData(ctx, "unknown", 1))

		_, ok, err := store.GetData(ctx, "s1", 1)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("remove session", func(t *testing.T) {
		store := newStore(t)
		for id := types.PageID(1); id <= 5; id++ {
			require.NoError(t, store.StoreData(ctx, "s1", id, []byte("x")))
		}
		require.NoError(t, store.StoreData(ctx, "s2", 1, []byte("y")))

		require.NoError(t, store.RemoveSession(ctx, "s1"))
		require.NoError(t, store.RemoveSession(ctx, "s1"))

		for id := types.PageID(1); id <= 5; id++ {
			_, ok, err := store.GetData(ctx, "s1", id)
			require.NoError(t, err)
			assert.False(t, ok)
		}
		_, ok, err := store.GetData(ctx, "s2", 1)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("returned data is a copy", func(t *testing.T) {
		store := newStore(t)
		src := []byte("abc")
		require.NoError(t, store.StoreData(ctx, "s1", 1, src))
		src[0] = 'z'

		data, _, err := store.GetData(ctx, "s1", 1)
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), data)
	})
}

func TestMemoryStore(t *testing.T) {
	testDataStore(t, func(t *testing.T) types.DataStore {
		store := NewMemoryStore()
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestMemoryStore_Closed(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Close())

	assert.Error(t, store.StoreData(context.Background(), "s1", 1, []byte("a")))
	_, _, err := store.GetData(context.Background(), "s1", 1)
	assert.Error(t, err)
}

func TestBoltStore(t *testing.T) {
	testDataStore(t, func(t *testing.T) types.DataStore {
		store, err := OpenBoltStore(filepath.Join(t.TempDir(), "pages.db"), nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestBoltStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "pages.db")

	store, err := OpenBoltStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, store.StoreData(ctx, "s1", 2, []byte("two")))
	require.NoError(t, store.StoreData(ctx, "s1", 1, []byte("one")))
	require.NoError(t, store.StoreData(ctx, "s2", 9, []byte("nine")))
	require.NoError(t, store.Close())

	store, err = OpenBoltStore(path, nil)
	require.NoError(t, err)
	defer store.Close()

	data, ok, err := store.GetData(ctx, "s1", 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("two"), data)

	ids, err := store.pageIDs("s1")
	require.NoError(t, err)
	assert.Equal(t, []types.PageID{1, 2}, ids)

	sessions, err := store.Sessions()
	require.NoError(t, err)
	assert.ElementsMatch(t, []types.SessionID{"s1", "s2"}, sessions)
}

func TestPurgeSessions(t *testing.T) {
	ctx := context.Background()

	t.Run("bolt", func(t *testing.T) {
		store, err := OpenBoltStore(filepath.Join(t.TempDir(), "pages.db"), nil)
		require.NoError(t, err)
		defer store.Close()
		require.NoError(t, store.StoreData(ctx, "s1", 1, []byte("one")))
		require.NoError(t, store.StoreData(ctx, "s2", 1, []byte("one")))

		purged, err := PurgeSessions(ctx, store, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, purged)

		sessions, err := store.Sessions()
		require.NoError(t, err)
		assert.Empty(t, sessions)
		_, ok, err := store.GetData(ctx, "s1", 1)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("store without listing", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.StoreData(ctx, "s1", 1, []byte("one")))

		purged, err := PurgeSessions(ctx, store, nil)
		require.NoError(t, err)
		assert.Zero(t, purged)
		assert.Equal(t, 1, store.Len("s1"))
	})
}
