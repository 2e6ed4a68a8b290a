package dbutils

import (
	"testing"

	"github.com/ledgerwatch/ethstate-core/common"
	"github.com/stretchr/testify/require"
)

func TestBlockNumberRoundTrip(t *testing.T) {
	enc := EncodeBlockNumber(1234)
	require.Equal(t, common.BlockNumber(1234), DecodeBlockNumber(enc))
}

func TestBlockNumberOrdering(t *testing.T) {
	// Byte ordering of the encoding must match numeric ordering.
	a := EncodeBlockNumber(1)
	b := EncodeBlockNumber(2)
	c := EncodeBlockNumber(256)
	require.Less(t, string(a), string(b))
	require.Less(t, string(b), string(c))
}

func TestShardedKeyRoundTrip(t *testing.T) {
	addr := common.Address{1, 2, 3}
	k := ShardedKey(addr, 999)
	gotAddr, gotTid := DecodeShardedKey(k)
	require.Equal(t, addr, gotAddr)
	require.Equal(t, common.TransitionId(999), gotTid)
}

func TestShardedKeyMaxTransitionSortsLast(t *testing.T) {
	addr := common.Address{1}
	low := ShardedKey(addr, 10)
	high := ShardedKey(addr, common.MaxTransitionId)
	require.Less(t, string(low), string(high))
}

func TestStorageShardedKeyRoundTrip(t *testing.T) {
	addr := common.Address{9}
	slot := common.Hash{8}
	k := StorageShardedKey(addr, slot, 42)
	gotAddr, gotSlot, gotTid := DecodeStorageShardedKey(k)
	require.Equal(t, addr, gotAddr)
	require.Equal(t, slot, gotSlot)
	require.Equal(t, common.TransitionId(42), gotTid)
}

func TestEncodeTransitionIdAddressRoundTrip(t *testing.T) {
	addr := common.Address{4, 5}
	k := EncodeTransitionIdAddress(7, addr)
	require.Len(t, k, TransitionIdAddressLen)
	gotTid, gotAddr := DecodeTransitionIdAddress(k)
	require.Equal(t, common.TransitionId(7), gotTid)
	require.Equal(t, addr, gotAddr)
}

func TestEncodeStorageEntryRoundTrip(t *testing.T) {
	slot := common.Hash{1, 1}
	var value common.U256
	value.SetUint64(555)
	v := EncodeStorageEntry(slot, &value)
	gotSlot, gotValue := DecodeStorageEntry(v)
	require.Equal(t, slot, gotSlot)
	require.Equal(t, value.Bytes(), gotValue.Bytes())
}

func TestIsDupSort(t *testing.T) {
	require.True(t, IsDupSort(PlainStorageState))
	require.True(t, IsDupSort(StorageChangeSet))
	require.True(t, IsDupSort(HashedStorage))
	require.True(t, IsDupSort(AccountChangeSet))
	require.False(t, IsDupSort(PlainAccountState))
	require.False(t, IsDupSort(Headers))
}

func TestBucketsAreDeclaredOnce(t *testing.T) {
	seen := map[string]bool{}
	for _, b := range Buckets {
		require.False(t, seen[b], "duplicate bucket %q", b)
		seen[b] = true
	}
}
