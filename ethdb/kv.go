// Package ethdb declares the storage-engine boundary: an ordered,
// dup-sort-aware key-value store abstraction with cursors and ACID write
// transactions. The core (common, core/*, trie, eth/stagedsync) only ever
// imports the interfaces declared here, never a concrete engine package.
//
// Mirrors the teacher's ethdb.Database / ethdb.Tx / ethdb.Cursor surface
// (see eth/stagedsync/stage_log_index.go's tx.(ethdb.HasTx).Tx().Cursor(...)
// call sites and core/state/history.go's tx.Bucket(...).Cursor() usage).
package ethdb

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by GetOne when no row exists at the key; cursor
// positioning methods report a miss with nil results and a nil error
// instead. Callers distinguish it from other errors with
// errors.Is, exactly as the teacher's ethdb.ErrKeyNotFound is used in
// core/state/history.go.
var ErrKeyNotFound = errors.New("ethdb: key not found")

// KV is a handle to the underlying store: it knows how to open read and
// read-write transactions. A KV does not itself hold an open transaction.
type KV interface {
	// View runs fn against a new read-only transaction and always closes it
	// afterwards, regardless of fn's outcome.
	View(ctx context.Context, fn func(tx Tx) error) error
	// Update runs fn against a new read-write transaction; if fn returns
	// nil the transaction is committed, otherwise it is rolled back.
	Update(ctx context.Context, fn func(tx RwTx) error) error
	// BeginRw opens a write transaction the caller owns and must Commit or
	// Rollback. At most one write transaction is live per process at a time;
	// the concrete engine enforces this by blocking the second caller until
	// the first releases its transaction.
	BeginRw(ctx context.Context) (RwTx, error)
	// Close releases the store's resources. Safe to call once.
	Close() error
}

// Tx is a read-only view of the store at a point in time, isolated from
// concurrent writers.
type Tx interface {
	// GetOne returns the single value at key, or ErrKeyNotFound.
	GetOne(table string, key []byte) ([]byte, error)
	// Cursor opens a forward/backward ordered cursor over table.
	Cursor(table string) (Cursor, error)
	// CursorDupSort opens a dup-sort-aware cursor over a dup-sort table.
	CursorDupSort(table string) (CursorDupSort, error)
	// Rollback discards the transaction. Safe to call on an already-closed
	// Tx (no-op).
	Rollback()
}

// RwTx is a Tx that can also mutate the store and commit or abandon its
// changes. The re-openable wrapper that gives callers a stable handle across
// multiple underlying RwTx generations lives in transaction.go.
type RwTx interface {
	Tx

	Put(table string, key, value []byte) error
	// Append is like Put but asserts key is greater than every key already
	// in the table — the fast, sequential-insert path the canonical block
	// writer and execution applier use when appending monotonically
	// increasing keys (block numbers, transition ids).
	Append(table string, key, value []byte) error
	// Delete removes key (and, for dup-sort tables, all of its values) from
	// table. When sub is non-nil only the first dup value that begins with
	// sub (a sub-key such as a storage slot) is removed.
	Delete(table string, key []byte, sub []byte) error

	RwCursor(table string) (RwCursor, error)
	RwCursorDupSort(table string) (RwCursorDupSort, error)

	// Commit persists all writes made through this handle. The underlying
	// KV guarantees atomicity and isolation from readers until Commit
	// returns.
	Commit() error
}

// Cursor walks an ordered table. All positioning methods return
// (nil, nil, nil) once iteration runs off either end — callers loop "for k
// != nil" per the teacher's convention throughout stage_log_index.go and
// core/state/history.go.
type Cursor interface {
	// Seek positions the cursor at the first key >= seek and returns it.
	Seek(seek []byte) (key, value []byte, err error)
	// SeekExact positions the cursor at key and returns its value, or
	// (nil, nil) if key is absent — it does not advance past a miss.
	SeekExact(key []byte) (value []byte, err error)
	Next() (key, value []byte, err error)
	Prev() (key, value []byte, err error)
	Current() (key, value []byte, err error)
	// Last positions the cursor at the table's final key.
	Last() (key, value []byte, err error)
	Close()
}

// RwCursor is a Cursor that can mutate the table it walks.
type RwCursor interface {
	Cursor
	Put(key, value []byte) error
	Append(key, value []byte) error
	DeleteCurrent() error
}

// CursorDupSort adds the dup-sort-specific positioning the teacher's
// PlainStorageState/HashedStorage/StorageChangeSet access patterns need:
// seeking to a specific (key, sub-key) pair and walking the duplicates of
// one key.
type CursorDupSort interface {
	Cursor
	// SeekBothExact seeks to (key, subkey) exactly, returning the full dup
	// value ([]byte starting with subkey) or nil if no such pair exists.
	SeekBothExact(key, subkey []byte) (value []byte, err error)
	// SeekBothRange seeks to the first dup value of key whose sub-key
	// prefix is >= subkey.
	SeekBothRange(key, subkey []byte) (value []byte, err error)
	// FirstDup / NextDup walk the duplicates of the key the cursor is
	// currently positioned on.
	FirstDup() (value []byte, err error)
	NextDup() (key, value []byte, err error)
	CountDuplicates() (uint64, error)
}

// RwCursorDupSort is the write-capable CursorDupSort used by the hashing
// engine and execution applier to maintain dup-sort storage
// tables.
type RwCursorDupSort interface {
	RwCursor
	CursorDupSort
	// PutDup inserts (subkey-prefixed) value as a new duplicate of key.
	PutDup(key, value []byte) error
	// DeleteCurrentDuplicates removes every duplicate of the key the
	// cursor is positioned on.
	DeleteCurrentDuplicates() error
}
