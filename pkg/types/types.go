package types

import (
	"time"
)

// PageID identifies a page within one session.
type PageID int

// SessionID identifies an HTTP session owning a page store.
type SessionID string

// TableStats represents page table statistics
type TableStats struct {
	Pages     int    `json:"pages"`
	Bytes     int64  `json:"bytes"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Stores    uint64 `json:"stores"`
	Evictions uint64 `json:"evictions"`
	Expired   uint64 `json:"expired"`
}

// StoreStats represents the statistics of one session's page store,
// including second-level lookups.
type StoreStats struct {
	SessionID    SessionID  `json:"session_id"`
	Table        TableStats `json:"table"`
	DataStoreHit uint64     `json:"data_store_hits"`
	Policy       string     `json:"policy"`
	CreatedAt    time.Time  `json:"created_at"`
	LastAccess   time.Time  `json:"last_access"`
	Closed       bool       `json:"closed"`
}
