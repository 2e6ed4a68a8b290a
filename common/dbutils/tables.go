// Package dbutils declares the table catalogue: every named table the
// ingestion core reads or writes, its dup-sort property, and the key/value
// codecs that keep keys in byte-comparable, numerically-ordered form.
//
// Mirrors the teacher's common/dbutils/bucket.go (a flat list of bucket name
// constants plus a BucketsConfigs side-table of dup-sort flags), generalized
// from turbo-geth's single hashed-only schema to the plain-state + hashed
// dual schema this core maintains.
package dbutils

import "github.com/c2h5oh/datasize"

// Table names. Each value is the table's full descriptive name, unlike the
// teacher's terse bucket-name string constants (CST2, hAT, ACS, ...).
const (
	CanonicalHeaders    = "CanonicalHeaders"
	HeaderNumbers       = "HeaderNumbers"
	Headers             = "Headers"
	HeaderTD            = "HeaderTD"
	BlockBodies         = "BlockBodies"
	BlockOmmers         = "BlockOmmers"
	BlockWithdrawals    = "BlockWithdrawals"
	BlockTransitionIdx  = "BlockTransitionIndex"
	Transactions        = "Transactions"
	TxSenders           = "TxSenders"
	TxHashNumber        = "TxHashNumber"
	PlainAccountState   = "PlainAccountState"
	PlainStorageState   = "PlainStorageState"
	AccountChangeSet    = "AccountChangeSet"
	StorageChangeSet    = "StorageChangeSet"
	AccountHistory      = "AccountHistory"
	StorageHistory      = "StorageHistory"
	HashedAccount       = "HashedAccount"
	HashedStorage       = "HashedStorage"
	Bytecodes           = "Bytecodes"
	TrieNodes           = "TrieNodes" // backing store for trie.Database, C6
)

// Buckets lists every table the store must create. Order does not matter;
// kept in declaration order for readability like the teacher's list.
var Buckets = []string{
	CanonicalHeaders,
	HeaderNumbers,
	Headers,
	HeaderTD,
	BlockBodies,
	BlockOmmers,
	BlockWithdrawals,
	BlockTransitionIdx,
	Transactions,
	TxSenders,
	TxHashNumber,
	PlainAccountState,
	PlainStorageState,
	AccountChangeSet,
	StorageChangeSet,
	AccountHistory,
	StorageHistory,
	HashedAccount,
	HashedStorage,
	Bytecodes,
	TrieNodes,
}

// BucketConfigItem mirrors the teacher's BucketConfigItem: just the bits the
// store needs to open the table with the right flags.
type BucketConfigItem struct {
	DupSort bool
}

// BucketsConfigs declares which tables are dup-sort and is consulted by the
// ethdb KV implementations when creating tables, exactly as the teacher's
// BucketsConfigs is consulted by its LMDB opener.
var BucketsConfigs = map[string]BucketConfigItem{
	PlainStorageState: {DupSort: true},
	StorageChangeSet:  {DupSort: true},
	HashedStorage:     {DupSort: true},
	// AccountChangeSet is keyed by TransitionId alone, but one transition
	// commonly touches several addresses (sender, recipient, coinbase); it is
	// dup-sort on the address prefix of its value for the same reason
	// StorageChangeSet is.
	AccountChangeSet: {DupSort: true},
}

// IsDupSort reports whether table requires a dup-sort cursor.
func IsDupSort(table string) bool {
	return BucketsConfigs[table].DupSort
}

// NumOfIndicesInShard is the fixed chunk size used by the history index
// engine to split an address's (or address+slot's) transition list into
// shards. Fixed across a database's lifetime.
const NumOfIndicesInShard = 1336

// ShardSizeLimit is an advisory ceiling on a single shard's serialized
// roaring-bitmap size, the counterpart of the teacher's ShardLimit in
// ethdb/bitmapdb/dbutils.go. Nothing checks it: the history index engine
// splits shards by NumOfIndicesInShard alone and neither warns nor fails
// when a shard's serialized size exceeds this value.
const ShardSizeLimit = 3 * datasize.KB
