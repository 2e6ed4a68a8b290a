// Package bitmapdb stores the transition-id lists the history index engine
// keeps per address (and per address+slot) as serialized roaring bitmaps,
// chunked into fixed-size shards rather than the size-driven resharding the
// teacher's own ethdb/bitmapdb/dbutils.go performs — chunk count, not byte
// size, is what the history index's correctness depends on here.
package bitmapdb

import (
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring"
	"github.com/ledgerwatch/ethstate-core/common"
	"github.com/ledgerwatch/ethstate-core/common/dbutils"
	"github.com/ledgerwatch/ethstate-core/ethdb"
)

// EncodeTransitionList serializes a sorted, deduplicated list of transition
// ids as a roaring bitmap. Transition ids are truncated to 32 bits: the same
// ceiling the teacher accepts for its own block-number-indexed bitmaps
// (ethdb/bitmapdb/dbutils.go), comfortably above any realistic chain length.
func EncodeTransitionList(ids []common.TransitionId) ([]byte, error) {
	bm := roaring.New()
	for _, id := range ids {
		bm.Add(uint32(id))
	}
	bm.RunOptimize()
	buf := make([]byte, bm.GetSerializedSizeInBytes())
	if _, err := bm.WriteTo(&sliceWriter{buf: buf}); err != nil {
		return nil, fmt.Errorf("bitmapdb: serializing shard: %w", err)
	}
	return buf, nil
}

// DecodeTransitionList is the inverse of EncodeTransitionList.
func DecodeTransitionList(v []byte) ([]common.TransitionId, error) {
	bm := roaring.New()
	if _, err := bm.FromBuffer(v); err != nil {
		return nil, fmt.Errorf("bitmapdb: reading shard: %w", err)
	}
	ids := make([]common.TransitionId, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		ids = append(ids, common.TransitionId(it.Next()))
	}
	return ids, nil
}

// sliceWriter adapts a pre-sized []byte to io.Writer for roaring's WriteTo,
// avoiding an extra allocation+copy on every shard write.
type sliceWriter struct{ buf []byte }

func (w *sliceWriter) Write(p []byte) (int, error) {
	n := copy(w.buf, p)
	w.buf = w.buf[n:]
	return n, nil
}

// TakeLastShard loads the still-growing shard under shardedKey(common.MaxTransitionId)
// and removes it from table, returning its decoded ids (empty if no shard
// exists yet). Callers append new ids to the result and re-shard with
// WriteShards — the "read, mutate, rewrite" cycle reth's
// take_last_account_shard/take_last_storage_shard perform.
func TakeLastShard(tx ethdb.RwTx, table string, maxKey []byte) ([]common.TransitionId, error) {
	cur, err := tx.RwCursor(table)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	v, err := cur.SeekExact(maxKey)
	if err != nil {
		return nil, fmt.Errorf("bitmapdb: seeking last shard in %s: %w", table, err)
	}
	if v == nil {
		return nil, nil
	}
	if err := tx.Delete(table, maxKey, nil); err != nil {
		return nil, fmt.Errorf("bitmapdb: deleting last shard in %s: %w", table, err)
	}
	return DecodeTransitionList(v)
}

// WriteShards splits ids into fixed-size chunks of
// dbutils.NumOfIndicesInShard and writes one row per chunk via buildKey,
// which is handed each chunk's highest transition id (or
// common.MaxTransitionId for the final, still-growing chunk) and must
// return the full table key for that shard.
//
// ids must already be sorted ascending; TakeLastShard + append(...,
// newIds...) produces that ordering as long as newIds themselves are sorted,
// since a shard's ids are always smaller than any newly observed id.
func WriteShards(tx ethdb.RwTx, table string, buildKey func(highTid common.TransitionId) []byte, ids []common.TransitionId) error {
	if len(ids) == 0 {
		return nil
	}
	n := dbutils.NumOfIndicesInShard
	for start := 0; start < len(ids); start += n {
		end := start + n
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		highTid := common.MaxTransitionId
		if end < len(ids) {
			highTid = chunk[len(chunk)-1]
		}
		enc, err := EncodeTransitionList(chunk)
		if err != nil {
			return err
		}
		if err := tx.Put(table, buildKey(highTid), enc); err != nil {
			return fmt.Errorf("bitmapdb: writing shard of %s: %w", table, err)
		}
	}
	return nil
}

// SortTransitionIds sorts and de-duplicates ids in place, returning the
// trimmed slice. History-index callers build their id lists by walking a
// changeset in transition order already, but callers that merge multiple
// sources call this to restore the invariant WriteShards requires.
func SortTransitionIds(ids []common.TransitionId) []common.TransitionId {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := ids[:0]
	var prev common.TransitionId
	for i, id := range ids {
		if i == 0 || id != prev {
			out = append(out, id)
		}
		prev = id
	}
	return out
}
