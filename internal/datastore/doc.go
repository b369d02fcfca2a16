/*
Package datastore provides second-level storage for serialized pages.

A PageStore keeps a bounded set of pages in memory and writes every page
through to a DataStore. Pages evicted from memory stay available here and are
re-admitted on the next read.

	┌──────────────────────────┐
	│   PageStore (per session)│
	│   PageTable + eviction   │
	└──────────────────────────┘
	             │ write-through / miss fallback
	┌──────────────────────────┐
	│        DataStore         │  ← This Package
	│  MemoryStore  BoltStore  │
	│         S3Store          │
	└──────────────────────────┘

# Backends

MemoryStore keeps pages in a map and is intended for development and tests.

BoltStore keeps pages in a single bbolt file. Each session gets its own bucket
named "session/<id>" and pages are keyed by the 8-byte big-endian page id, so
dropping a session is a single bucket delete.

S3Store writes one object per page under "<prefix>/<session>/<page id>".
Requests are retried with exponential backoff on throttling and server-side
faults. Removing a session lists the session prefix and deletes the objects in
batches.

Absent pages are reported as (nil, false, nil) by every backend.
*/
package datastore
