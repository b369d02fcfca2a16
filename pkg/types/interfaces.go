package types

import (
	"context"
	"time"
)

// DataStore is a second-level store for serialized pages, keyed by session
// and page id. Absence is reported with ok == false, never as an error.
type DataStore interface {
	StoreData(ctx context.Context, session SessionID, id PageID, data []byte) error
	GetData(ctx context.Context, session SessionID, id PageID) (data []byte, ok bool, err error)
	RemoveData(ctx context.Context, session SessionID, id PageID) error
	RemoveSession(ctx context.Context, session SessionID) error
	Close() error
}

// Serializer converts page objects to and from bytes.
type Serializer interface {
	Serialize(v any) ([]byte, error)
	Deserialize(data []byte, into any) error
}

// MetricsRecorder receives page state events. Implementations must be safe
// for concurrent use.
type MetricsRecorder interface {
	RecordStoreOperation(operation string, duration time.Duration, success bool)
	RecordEviction(policy string, pages int)
	RecordVersionExpired()
	RecordRenderDecision(action string)
	UpdateTableSize(deltaPages int, deltaBytes int64)
	UpdateActiveSessions(count int)
}

// NopMetrics discards all events.
type NopMetrics struct{}

func (NopMetrics) RecordStoreOperation(string, time.Duration, bool) {}
func (NopMetrics) RecordEviction(string, int)                        {}
func (NopMetrics) RecordVersionExpired()                             {}
func (NopMetrics) RecordRenderDecision(string)                       {}
func (NopMetrics) UpdateTableSize(int, int64)                        {}
func (NopMetrics) UpdateActiveSessions(int)                          {}
