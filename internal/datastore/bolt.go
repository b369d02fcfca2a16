package datastore

import (
	"bytes"
	"context"
	"encoding/binary"
	stderrors "errors"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/objectfs/pagestate/pkg/errors"
	"github.com/objectfs/pagestate/pkg/types"
	"github.com/objectfs/pagestate/pkg/utils"
)

const sessionBucketPrefix = "session/"

// BoltStore persists pages in a bbolt file, one bucket per session keyed by
// the big-endian page id.
type BoltStore struct {
	db     *bolt.DB
	logger *utils.StructuredLogger
}

// OpenBoltStore opens or creates the database at path.
func OpenBoltStore(path string, logger *utils.StructuredLogger) (*BoltStore, error) {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageWrite, "failed to create data store directory").
			WithComponent("datastore").WithDetail("path", path)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageRead, "failed to open bolt database").
			WithComponent("datastore").WithDetail("path", path)
	}

	logger = logger.WithComponent("datastore").WithField("backend", "bolt")
	logger.Info("bolt data store opened", map[string]interface{}{"path": path})
	return &BoltStore{db: db, logger: logger}, nil
}

// StoreData implements types.DataStore.
func (s *BoltStore) StoreData(_ context.Context, session types.SessionID, id types.PageID, data []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(sessionBucket(session))
		if err != nil {
			return err
		}
		return b.Put(marshalPageID(id), data)
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageWrite, "failed to store page").
			WithComponent("datastore").WithOperation("StoreData").WithSession(string(session))
	}
	return nil
}

// GetData implements types.DataStore.
func (s *BoltStore) GetData(_ context.Context, session types.SessionID, id types.PageID) ([]byte, bool, error) {
	var (
		data  []byte
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionBucket(session))
		if b == nil {
			return nil
		}
		key := marshalPageID(id)
		// Seek rather than Get so empty pages are told apart from absent ones.
		if k, v := b.Cursor().Seek(key); bytes.Equal(k, key) {
			// v is only valid for the life of the transaction.
			data = append([]byte{}, v...)
			found = true
		}
		return nil
	})
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeStorageRead, "failed to read page").
			WithComponent("datastore").WithOperation("GetData").WithSession(string(session))
	}
	return data, found, nil
}

// RemoveData implements types.DataStore.
func (s *BoltStore) RemoveData(_ context.Context, session types.SessionID, id types.PageID) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionBucket(session))
		if b == nil {
			return nil
		}
		return b.Delete(marshalPageID(id))
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageWrite, "failed to remove page").
			WithComponent("datastore").WithOperation("RemoveData").WithSession(string(session))
	}
	return nil
}

// RemoveSession implements types.DataStore.
func (s *BoltStore) RemoveSession(_ context.Context, session types.SessionID) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket(sessionBucket(session))
		if stderrors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageWrite, "failed to remove session").
			WithComponent("datastore").WithOperation("RemoveSession").WithSession(string(session))
	}
	return nil
}

// Sessions returns the ids of all sessions with stored pages.
func (s *BoltStore) Sessions() ([]types.SessionID, error) {
	var sessions []types.SessionID
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			if id, ok := bytes.CutPrefix(name, []byte(sessionBucketPrefix)); ok {
				sessions = append(sessions, types.SessionID(id))
			}
			return nil
		})
	})
	return sessions, err
}

// Close implements types.DataStore.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func sessionBucket(session types.SessionID) []byte {
	return []byte(sessionBucketPrefix + string(session))
}

func marshalPageID(id types.PageID) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

func unmarshalPageID(b []byte) types.PageID {
	return types.PageID(binary.BigEndian.Uint64(b))
}

// pageIDs returns the ids stored for session in ascending key order.
func (s *BoltStore) pageIDs(session types.SessionID) ([]types.PageID, error) {
	var ids []types.PageID
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionBucket(session))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			ids = append(ids, unmarshalPageID(k))
			return nil
		})
	})
	return ids, err
}

// SessionLister is a DataStore that can enumerate the sessions it holds.
type SessionLister interface {
	Sessions() ([]types.SessionID, error)
}

// PurgeSessions removes every session held by store. Session stores live
// only as long as the process, so copies found at startup have no owner.
// Stores that cannot list sessions are left untouched.
func PurgeSessions(ctx context.Context, store types.DataStore, logger *utils.StructuredLogger) (int, error) {
	lister, ok := store.(SessionLister)
	if !ok {
		return 0, nil
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	sessions, err := lister.Sessions()
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeStorageRead, "failed to list stored sessions").
			WithComponent("datastore").WithOperation("PurgeSessions")
	}
	for i, session := range sessions {
		if err := store.RemoveSession(ctx, session); err != nil {
			return i, err
		}
	}
	if len(sessions) > 0 {
		logger.WithComponent("datastore").Info("purged stale sessions", map[string]interface{}{"sessions": len(sessions)})
	}
	return len(sessions), nil
}
