package ethdb

import (
	"context"
	"fmt"
)

// Transaction wraps a live RwTx and re-opens a fresh one every time the
// pipeline commits, so a long-running caller like the staged-sync pipeline
// can hold a single stable handle across many commit points instead of
// threading a new ethdb.RwTx through every stage call.
type Transaction struct {
	kv KV
	tx RwTx
}

// NewTransaction opens the first inner RwTx and returns a handle ready to use.
func NewTransaction(ctx context.Context, kv KV) (*Transaction, error) {
	tx, err := kv.BeginRw(ctx)
	if err != nil {
		return nil, fmt.Errorf("ethdb: opening transaction: %w", err)
	}
	return &Transaction{kv: kv, tx: tx}, nil
}

// Tx returns the current inner RwTx.
//
// Panics if the handle was closed and never reopened — that indicates a bug
// in the caller's control flow, not a recoverable condition.
func (t *Transaction) Tx() RwTx {
	if t.tx == nil {
		panic("ethdb: Transaction.Tx called on a closed handle")
	}
	return t.tx
}

// Commit persists the current inner transaction and immediately opens a new
// one, so the handle remains usable afterwards. The pipeline calls this at
// every stage boundary it wants durable.
func (t *Transaction) Commit(ctx context.Context) error {
	if t.tx == nil {
		panic("ethdb: Transaction.Commit called on a closed handle")
	}
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("ethdb: commit: %w", err)
	}
	tx, err := t.kv.BeginRw(ctx)
	if err != nil {
		return fmt.Errorf("ethdb: reopening transaction after commit: %w", err)
	}
	t.tx = tx
	return nil
}

// DropAndReopen discards the current inner transaction without committing
// and opens a fresh one — used to shed accumulated write-set memory on a
// cold path that doesn't need durability yet (mirrors the reth Transaction's
// drop-then-open pair).
func (t *Transaction) DropAndReopen(ctx context.Context) error {
	if t.tx != nil {
		t.tx.Rollback()
		t.tx = nil
	}
	tx, err := t.kv.BeginRw(ctx)
	if err != nil {
		return fmt.Errorf("ethdb: reopening transaction: %w", err)
	}
	t.tx = tx
	return nil
}

// Close rolls back the current inner transaction, if any, and leaves the
// handle unusable until Open is called again.
func (t *Transaction) Close() {
	if t.tx != nil {
		t.tx.Rollback()
		t.tx = nil
	}
}

// Open re-opens a transaction on a handle previously Close'd.
func (t *Transaction) Open(ctx context.Context) error {
	if t.tx != nil {
		return nil
	}
	tx, err := t.kv.BeginRw(ctx)
	if err != nil {
		return fmt.Errorf("ethdb: opening transaction: %w", err)
	}
	t.tx = tx
	return nil
}
