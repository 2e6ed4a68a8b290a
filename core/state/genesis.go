package state

import (
	"fmt"
	"sort"

	"github.com/ledgerwatch/ethstate-core/common"
	"github.com/ledgerwatch/ethstate-core/common/dbutils"
	"github.com/ledgerwatch/ethstate-core/ethdb"
)

// SeedGenesisAccounts writes the genesis allocation directly into
// PlainAccountState, in sorted address order for deterministic cursor
// writes. Genesis has no prior state to diff against, so it is written
// outside the transition-counted pipeline: no AccountChangeSet entry is
// recorded and the transition counter is left untouched, consistent with
// BlockTransitionIndex[0] always starting at 0. The returned addresses are
// the touched set the hashing engine and trie loader need to consume.
func SeedGenesisAccounts(tx ethdb.RwTx, alloc map[common.Address]*common.Account) ([]common.Address, error) {
	addrs := make([]common.Address, 0, len(alloc))
	for addr := range alloc {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Hex() < addrs[j].Hex() })

	for _, addr := range addrs {
		acc := alloc[addr]
		enc := make([]byte, acc.EncodingLengthForStorage())
		acc.EncodeForStorage(enc)
		if err := tx.Put(dbutils.PlainAccountState, addr[:], enc); err != nil {
			return nil, fmt.Errorf("state: seeding genesis account %x: %w", addr, err)
		}
	}
	return addrs, nil
}
