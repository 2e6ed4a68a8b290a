// Package common declares the identifier and value types shared across the
// ingestion core: block/transition numbering, addresses, hashes and the
// 256-bit integer used for balances and storage values.
package common

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type (
	// Address is a 20-byte account address.
	Address = common.Address
	// Hash is a 32-byte, arbitrary keccak-sized value (block hash, storage
	// key, code hash, trie node hash...).
	Hash = common.Hash
	// U256 is a 256-bit big-endian unsigned integer, used for balances,
	// storage values and total difficulty.
	U256 = uint256.Int
)

// BlockNumber is dense and gap-free starting at 0.
type BlockNumber = uint64

// TxNumber is dense across the whole chain.
type TxNumber = uint64

// TransitionId is monotonically increasing, one per state-mutating boundary.
type TransitionId = uint64

// MaxTransitionId is the sentinel suffix of the currently-growing history
// shard: seeking ShardedKey(addr, MaxTransitionId) always lands on the
// newest shard for that key.
const MaxTransitionId TransitionId = ^TransitionId(0)
