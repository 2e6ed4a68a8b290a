// Package state implements the execution-result applier (C7), the hashing
// engine (C5) and the history index engine (C4): everything that turns a
// block's execution deltas into plain-state mutations, changesets, hashed
// mirrors and sharded history.
//
// Grounded on the teacher's core/state/db_state_writer.go (ChangeSetWriter
// composition, fastcache-backed read-through caches) and core/state/history.go
// (changeset/history table access patterns); the transition-counter and
// wipe_storage algorithms follow reth's Transaction::insert_execution_result
// (original_source/crates/storage/provider/src/transaction.rs).
package state

import (
	"github.com/ledgerwatch/ethstate-core/common"
	"github.com/ledgerwatch/ethstate-core/core/types"
)

// StorageChange is one slot's before/after pair within a transaction's
// effect on one account.
type StorageChange struct {
	Key      common.Hash
	OldValue common.U256
	NewValue common.U256
}

// AccountChange is one address's effect within a transaction: its info
// change, whether SELFDESTRUCT wiped its storage, and the slots it touched.
type AccountChange struct {
	Info        common.AccountInfoChangeSet
	WipeStorage bool
	Storage     []StorageChange
}

// Bytecode is a contract's code, keyed by its hash for idempotent insertion
// into the Bytecodes table.
type Bytecode struct {
	Hash common.Hash
	Code []byte
}

// TransactionChangeSet is the effect of one transaction: its receipt, the
// per-address changes it produced, and any bytecode it deployed.
type TransactionChangeSet struct {
	Receipt      *types.Receipt
	Changes      map[common.Address]*AccountChange
	NewBytecodes []Bytecode
}

// ExecutionResult is a block's full set of deltas: one TransactionChangeSet
// per transaction plus an optional block-level changeset (miner reward and
// any other end-of-block account adjustments, no storage).
type ExecutionResult struct {
	TxChangesets    []TransactionChangeSet
	BlockChangesets map[common.Address]common.AccountInfoChangeSet
}

// encodeAccountChangeSetValue packs the AccountChangeSet dup-sort value:
// address prefix (the dup sub-key) followed by a presence flag and, if
// present, the pre-image account encoding.
func encodeAccountChangeSetValue(addr common.Address, prior *common.Account) []byte {
	n := len(addr)
	if prior == nil {
		out := make([]byte, n+1)
		copy(out, addr[:])
		return out
	}
	accEnc := make([]byte, prior.EncodingLengthForStorage())
	prior.EncodeForStorage(accEnc)
	out := make([]byte, n+1+len(accEnc))
	copy(out, addr[:])
	out[n] = 1
	copy(out[n+1:], accEnc)
	return out
}

// decodeAccountChangeSetValue is the inverse of encodeAccountChangeSetValue.
func decodeAccountChangeSetValue(v []byte) (addr common.Address, prior *common.Account, err error) {
	n := len(addr)
	copy(addr[:], v[:n])
	if v[n] == 0 {
		return addr, nil, nil
	}
	acc := new(common.Account)
	if err := acc.DecodeForStorage(v[n+1:]); err != nil {
		return addr, nil, err
	}
	return addr, acc, nil
}
