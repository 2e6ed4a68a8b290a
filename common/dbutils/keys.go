package dbutils

import (
	"encoding/binary"

	"github.com/ledgerwatch/ethstate-core/common"
)

// EncodeBlockNumber big-endian encodes a block number so lexicographic byte
// ordering matches numeric ordering — the same requirement every C1 key
// codec exists to satisfy.
func EncodeBlockNumber(n common.BlockNumber) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

// DecodeBlockNumber is the inverse of EncodeBlockNumber.
func DecodeBlockNumber(b []byte) common.BlockNumber {
	return binary.BigEndian.Uint64(b)
}

// EncodeTxNumber/EncodeTransitionId share the block-number encoding; kept as
// separate names so call sites read as what they mean: both are dense
// uint64 counters, distinct domains.
func EncodeTxNumber(n common.TxNumber) []byte          { return EncodeBlockNumber(n) }
func EncodeTransitionId(t common.TransitionId) []byte  { return EncodeBlockNumber(t) }
func DecodeTransitionId(b []byte) common.TransitionId  { return DecodeBlockNumber(b) }

// ShardedKey encodes (address, highTransitionId): address first,
// then the shard's high transition id big-endian, so seeking
// ShardedKey(addr, MaxTransitionId) lands on the still-growing shard.
func ShardedKey(addr common.Address, highTid common.TransitionId) []byte {
	k := make([]byte, AddressLength+8)
	copy(k, addr[:])
	binary.BigEndian.PutUint64(k[AddressLength:], highTid)
	return k
}

// AddressLength is the byte width of an Address.
const AddressLength = 20

// HashLength is the byte width of a 32-byte hash/storage-key/U256 value.
const HashLength = 32

// DecodeShardedKey splits a ShardedKey back into its address and high
// transition id.
func DecodeShardedKey(k []byte) (addr common.Address, highTid common.TransitionId) {
	copy(addr[:], k[:AddressLength])
	highTid = binary.BigEndian.Uint64(k[AddressLength:])
	return
}

// StorageShardedKey encodes (address, slot, highTransitionId): same scheme
// as ShardedKey with an extra 32-byte storage-slot component spliced in
// between address and shard suffix.
func StorageShardedKey(addr common.Address, slot common.Hash, highTid common.TransitionId) []byte {
	k := make([]byte, AddressLength+HashLength+8)
	copy(k, addr[:])
	copy(k[AddressLength:], slot[:])
	binary.BigEndian.PutUint64(k[AddressLength+HashLength:], highTid)
	return k
}

// DecodeStorageShardedKey is the inverse of StorageShardedKey.
func DecodeStorageShardedKey(k []byte) (addr common.Address, slot common.Hash, highTid common.TransitionId) {
	copy(addr[:], k[:AddressLength])
	copy(slot[:], k[AddressLength:AddressLength+HashLength])
	highTid = binary.BigEndian.Uint64(k[AddressLength+HashLength:])
	return
}

// TransitionIdAddressLen is the packed width of a StorageChangeSet key: an
// 8-byte transition id followed by a 20-byte address, 28 bytes total.
const TransitionIdAddressLen = 8 + AddressLength

// EncodeTransitionIdAddress packs (TransitionId, Address) into the 28-byte
// StorageChangeSet key.
func EncodeTransitionIdAddress(tid common.TransitionId, addr common.Address) []byte {
	k := make([]byte, TransitionIdAddressLen)
	binary.BigEndian.PutUint64(k, tid)
	copy(k[8:], addr[:])
	return k
}

// DecodeTransitionIdAddress is the inverse of EncodeTransitionIdAddress.
func DecodeTransitionIdAddress(k []byte) (tid common.TransitionId, addr common.Address) {
	tid = binary.BigEndian.Uint64(k[:8])
	copy(addr[:], k[8:])
	return
}

// EncodeStorageEntry serializes a dup-sort value for PlainStorageState /
// HashedStorage: the 32-byte (hashed-)slot as the dup sub-key prefix,
// followed by the big-endian-trimmed U256 value. Sub-key-prefixing is what
// lets the store order and seek dup entries by slot.
func EncodeStorageEntry(slot common.Hash, value *common.U256) []byte {
	vb := value.Bytes()
	out := make([]byte, HashLength+len(vb))
	copy(out, slot[:])
	copy(out[HashLength:], vb)
	return out
}

// DecodeStorageEntry is the inverse of EncodeStorageEntry.
func DecodeStorageEntry(v []byte) (slot common.Hash, value common.U256) {
	copy(slot[:], v[:HashLength])
	value.SetBytes(v[HashLength:])
	return
}
