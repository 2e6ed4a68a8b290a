package state

import (
	"context"
	"testing"

	"github.com/ledgerwatch/ethstate-core/common"
	"github.com/ledgerwatch/ethstate-core/common/dbutils"
	"github.com/ledgerwatch/ethstate-core/ethdb"
	"github.com/ledgerwatch/ethstate-core/ethdb/bitmapdb"
	"github.com/stretchr/testify/require"
)

// TestInsertAccountHistoryIndexSplitsAtFixedShardSize exercises S5: touching
// one address across N + N/2 transitions must produce exactly two shards,
// one full and one holding the remainder under the MaxTransitionId key.
func TestInsertAccountHistoryIndexSplitsAtFixedShardSize(t *testing.T) {
	kv := ethdb.NewMemoryKV()
	defer kv.Close()

	addr := common.Address{0x01}
	n := dbutils.NumOfIndicesInShard
	total := n + n/2

	ids := make([]common.TransitionId, total)
	for i := range ids {
		ids[i] = common.TransitionId(i + 1)
	}

	err := kv.Update(context.Background(), func(tx ethdb.RwTx) error {
		return InsertAccountHistoryIndex(tx, map[common.Address][]common.TransitionId{addr: ids})
	})
	require.NoError(t, err)

	err = kv.View(context.Background(), func(tx ethdb.Tx) error {
		cur, err := tx.Cursor(dbutils.AccountHistory)
		require.NoError(t, err)
		defer cur.Close()

		var shardLens []int
		k, v, err := cur.Seek(dbutils.ShardedKey(addr, 0))
		require.NoError(t, err)
		for k != nil {
			_, hi := dbutils.DecodeShardedKey(k)
			ids, err := bitmapdb.DecodeTransitionList(v)
			require.NoError(t, err)
			shardLens = append(shardLens, len(ids))
			if hi == common.MaxTransitionId {
				break
			}
			k, v, err = cur.Next()
			require.NoError(t, err)
		}

		require.Equal(t, []int{n, n / 2}, shardLens)
		return nil
	})
	require.NoError(t, err)

	got, err := accountTransitionsInRangeForTest(kv, addr, 1, common.TransitionId(total))
	require.NoError(t, err)
	require.Len(t, got, total)
}

// TestInsertAccountHistoryIndexAppendsAcrossCalls checks that a second
// ingestion round merges into the still-growing shard rather than starting
// a fresh one.
func TestInsertAccountHistoryIndexAppendsAcrossCalls(t *testing.T) {
	kv := ethdb.NewMemoryKV()
	defer kv.Close()

	addr := common.Address{0x02}

	err := kv.Update(context.Background(), func(tx ethdb.RwTx) error {
		return InsertAccountHistoryIndex(tx, map[common.Address][]common.TransitionId{addr: {1, 2, 3}})
	})
	require.NoError(t, err)

	err = kv.Update(context.Background(), func(tx ethdb.RwTx) error {
		return InsertAccountHistoryIndex(tx, map[common.Address][]common.TransitionId{addr: {4, 5}})
	})
	require.NoError(t, err)

	got, err := accountTransitionsInRangeForTest(kv, addr, 0, 10)
	require.NoError(t, err)
	require.Equal(t, []common.TransitionId{1, 2, 3, 4, 5}, got)
}

func accountTransitionsInRangeForTest(kv ethdb.KV, addr common.Address, lo, hi common.TransitionId) ([]common.TransitionId, error) {
	var out []common.TransitionId
	err := kv.View(context.Background(), func(tx ethdb.Tx) error {
		ids, err := AccountTransitionsInRange(tx, addr, lo, hi)
		out = ids
		return err
	})
	return out, err
}
