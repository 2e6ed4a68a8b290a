// History index engine (C4): builds and queries the sharded transition-id
// lists that answer "at which transitions did this address (or address+slot)
// change". Grounded on reth's insert_account_history_index /
// insert_storage_history_index (original_source/crates/storage/provider/src/
// transaction.rs); shard mechanics live in ethdb/bitmapdb.
package state

import (
	"bytes"
	"fmt"

	"github.com/ledgerwatch/ethstate-core/common"
	"github.com/ledgerwatch/ethstate-core/common/dbutils"
	"github.com/ledgerwatch/ethstate-core/ethdb"
	"github.com/ledgerwatch/ethstate-core/ethdb/bitmapdb"
)

// InsertAccountHistoryIndex appends each touched address's new transition ids
// to its still-growing AccountHistory shard, re-chunking into
// dbutils.NumOfIndicesInShard-sized pieces if the append pushes it over.
func InsertAccountHistoryIndex(tx ethdb.RwTx, touched map[common.Address][]common.TransitionId) error {
	for addr, ids := range touched {
		maxKey := dbutils.ShardedKey(addr, common.MaxTransitionId)
		existing, err := bitmapdb.TakeLastShard(tx, dbutils.AccountHistory, maxKey)
		if err != nil {
			return fmt.Errorf("state: reading account history shard for %x: %w", addr, err)
		}
		merged := bitmapdb.SortTransitionIds(append(existing, ids...))
		buildKey := func(highTid common.TransitionId) []byte { return dbutils.ShardedKey(addr, highTid) }
		if err := bitmapdb.WriteShards(tx, dbutils.AccountHistory, buildKey, merged); err != nil {
			return fmt.Errorf("state: writing account history shard for %x: %w", addr, err)
		}
	}
	return nil
}

// InsertStorageHistoryIndex is InsertAccountHistoryIndex's storage-keyed
// counterpart: one sharded transition list per (address, slot).
func InsertStorageHistoryIndex(tx ethdb.RwTx, touched map[common.Address]map[common.Hash][]common.TransitionId) error {
	for addr, slots := range touched {
		for slot, ids := range slots {
			maxKey := dbutils.StorageShardedKey(addr, slot, common.MaxTransitionId)
			existing, err := bitmapdb.TakeLastShard(tx, dbutils.StorageHistory, maxKey)
			if err != nil {
				return fmt.Errorf("state: reading storage history shard for %x/%x: %w", addr, slot, err)
			}
			merged := bitmapdb.SortTransitionIds(append(existing, ids...))
			buildKey := func(highTid common.TransitionId) []byte {
				return dbutils.StorageShardedKey(addr, slot, highTid)
			}
			if err := bitmapdb.WriteShards(tx, dbutils.StorageHistory, buildKey, merged); err != nil {
				return fmt.Errorf("state: writing storage history shard for %x/%x: %w", addr, slot, err)
			}
		}
	}
	return nil
}

// AccountTransitionsInRange returns every transition id in [lo, hi] at which
// addr's account info changed, walking forward across as many shards as
// necessary starting from the first shard whose high transition id is >= lo.
func AccountTransitionsInRange(tx ethdb.Tx, addr common.Address, lo, hi common.TransitionId) ([]common.TransitionId, error) {
	return transitionsInRange(tx, dbutils.AccountHistory, dbutils.ShardedKey(addr, lo), lo, hi)
}

// StorageTransitionsInRange is AccountTransitionsInRange's storage-keyed
// counterpart.
func StorageTransitionsInRange(tx ethdb.Tx, addr common.Address, slot common.Hash, lo, hi common.TransitionId) ([]common.TransitionId, error) {
	return transitionsInRange(tx, dbutils.StorageHistory, dbutils.StorageShardedKey(addr, slot, lo), lo, hi)
}

func transitionsInRange(tx ethdb.Tx, table string, seekKey []byte, lo, hi common.TransitionId) ([]common.TransitionId, error) {
	cur, err := tx.Cursor(table)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	// Every shard key ends in an 8-byte high transition id; the rest is the
	// address (or address+slot) whose shards this walk must stay within.
	prefix := seekKey[:len(seekKey)-8]
	var out []common.TransitionId
	k, v, err := cur.Seek(seekKey)
	if err != nil {
		return nil, fmt.Errorf("state: seeking history shard in %s: %w", table, err)
	}
	for k != nil && bytes.HasPrefix(k, prefix) {
		ids, err := bitmapdb.DecodeTransitionList(v)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if id >= lo && id <= hi {
				out = append(out, id)
			}
		}
		if len(ids) > 0 && ids[len(ids)-1] >= hi {
			break
		}
		k, v, err = cur.Next()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
