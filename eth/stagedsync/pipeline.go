// Package stagedsync composes the per-component primitives in core/rawdb,
// core/state and trie into the two operations everything else in this core
// exists to support: inserting one canonical block, and draining a range of
// blocks back out again for a reorg.
//
// Grounded on reth's Transaction::insert_block (original_source/crates/
// storage/provider/src/transaction.rs) for the exact stage order, and the
// teacher's eth/stagedsync/stage_log_index.go for the log.Info call shape at
// stage boundaries.
package stagedsync

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ledgerwatch/ethstate-core/common"
	"github.com/ledgerwatch/ethstate-core/core/rawdb"
	"github.com/ledgerwatch/ethstate-core/core/state"
	"github.com/ledgerwatch/ethstate-core/core/types"
	"github.com/ledgerwatch/ethstate-core/ethdb"
	"github.com/ledgerwatch/ethstate-core/trie"
)

// InsertBlock runs the full ingestion pipeline for one sealed block against
// an already-open write transaction:
//
//  1. C3 writes the block envelope (header, body, transactions, senders).
//  2. Genesis only: the allocation is seeded directly into PlainAccountState,
//     outside the transition counter (see state.SeedGenesisAccounts).
//  3. C7 applies result's deltas, advancing the transition counter.
//  4. C5 hashes the touched accounts and storage slots.
//  5. C6 recomputes the state root and validates it against the header.
//  6. C4 appends the new transition ids to the sharded history indices.
//
// genesisAlloc is nil for every block but genesis; it must be nil for n > 0.
// Committing the transaction (C2) is the caller's responsibility — this
// function only prepares the write set. A *trie.RootMismatchError is the
// one error the caller should treat as fatal-and-unwind rather than
// retry-or-bubble; every other error is a database, integrity or trie-loader
// (*trie.Error) failure.
func InsertBlock(
	tx ethdb.RwTx,
	caches *state.Caches,
	chainSpec *common.ChainSpec,
	loader *trie.Loader,
	block *types.SealedBlock,
	senders []common.Address,
	parentTD *common.U256,
	result state.ExecutionResult,
	genesisAlloc map[common.Address]*common.Account,
) (common.Hash, error) {
	n := block.NumberU64()

	if _, _, err := rawdb.InsertCanonicalBlock(tx, block, senders, parentTD); err != nil {
		return common.Hash{}, fmt.Errorf("stagedsync: inserting block %d: %w", n, err)
	}

	var genesisAddrs []common.Address
	if n == 0 && len(genesisAlloc) > 0 {
		var err error
		genesisAddrs, err = state.SeedGenesisAccounts(tx, genesisAlloc)
		if err != nil {
			return common.Hash{}, fmt.Errorf("stagedsync: seeding genesis accounts: %w", err)
		}
	}

	var parentTid common.TransitionId
	if n > 0 {
		var err error
		parentTid, err = rawdb.GetBlockTransition(tx, n-1)
		if err != nil {
			return common.Hash{}, err
		}
	}

	spuriousDragonActive := chainSpec.IsSpuriousDragon(n)
	_, touched, err := state.ApplyExecutionResult(tx, caches, n, parentTid, result, spuriousDragonActive)
	if err != nil {
		return common.Hash{}, fmt.Errorf("stagedsync: applying execution result at block %d: %w", n, err)
	}

	hashAddrs := touched.Addresses
	if len(genesisAddrs) > 0 {
		hashAddrs = append(append([]common.Address(nil), genesisAddrs...), touched.Addresses...)
	}

	if err := state.InsertAccountForHashing(tx, hashAddrs); err != nil {
		return common.Hash{}, fmt.Errorf("stagedsync: hashing accounts at block %d: %w", n, err)
	}
	if err := state.InsertStorageForHashing(tx, touched.Storage); err != nil {
		return common.Hash{}, fmt.Errorf("stagedsync: hashing storage at block %d: %w", n, err)
	}

	var priorRoot common.Hash
	if n > 0 {
		parentHeader, err := rawdb.GetHeader(tx, n-1)
		if err != nil {
			return common.Hash{}, err
		}
		priorRoot = parentHeader.Root
	}
	got, err := loader.UpdateRoot(tx, priorRoot, hashAddrs, touched.Storage)
	if err != nil {
		return common.Hash{}, fmt.Errorf("stagedsync: recomputing state root at block %d: %w", n, err)
	}
	if err := trie.ValidateRoot(block.Header.Root, got, n, block.Hash()); err != nil {
		return common.Hash{}, err
	}

	if err := state.InsertAccountHistoryIndex(tx, touched.AccountTransitions); err != nil {
		return common.Hash{}, fmt.Errorf("stagedsync: indexing account history at block %d: %w", n, err)
	}
	if err := state.InsertStorageHistoryIndex(tx, touched.StorageTransitions); err != nil {
		return common.Hash{}, fmt.Errorf("stagedsync: indexing storage history at block %d: %w", n, err)
	}

	log.Info("Inserted block", "number", n, "hash", block.Hash(), "root", got)
	return got, nil
}

// GetBlockAndExecutionRange is the single primitive a reorg composes: it
// drains both the block-envelope tables (C8's rawdb half) and the
// changeset/plain-state tables (C8's state half) for [from, to] in one
// call, restoring PlainAccountState/PlainStorageState to their values as of
// from's parent when take is true.
func GetBlockAndExecutionRange(tx ethdb.RwTx, chainSpec *common.ChainSpec, from, to common.BlockNumber, take bool) ([]rawdb.BlockRange, []state.BlockExecutionResult, error) {
	var blocks []rawdb.BlockRange
	var results []state.BlockExecutionResult
	var err error

	if take {
		results, err = state.TakeBlockExecutionResultRange(tx, from, to)
		if err != nil {
			return nil, nil, fmt.Errorf("stagedsync: taking execution result range [%d,%d]: %w", from, to, err)
		}
		blocks, err = rawdb.TakeBlockRange(tx, chainSpec, from, to)
		if err != nil {
			return nil, nil, fmt.Errorf("stagedsync: taking block range [%d,%d]: %w", from, to, err)
		}
		return blocks, results, nil
	}

	results, err = state.GetBlockExecutionResultRange(tx, from, to)
	if err != nil {
		return nil, nil, fmt.Errorf("stagedsync: reading execution result range [%d,%d]: %w", from, to, err)
	}
	blocks, err = rawdb.GetBlockRange(tx, chainSpec, from, to)
	if err != nil {
		return nil, nil, fmt.Errorf("stagedsync: reading block range [%d,%d]: %w", from, to, err)
	}
	return blocks, results, nil
}
