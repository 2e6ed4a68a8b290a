package state

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ledgerwatch/ethstate-core/common"
	"github.com/ledgerwatch/ethstate-core/common/dbutils"
	"github.com/ledgerwatch/ethstate-core/ethdb"
)

// InsertAccountForHashing projects every touched address's current
// PlainAccountState row (or its absence) into HashedAccount, keyed by
// keccak256(address). Addresses are hashed and written in sorted order so
// repeated runs over the same input are idempotent and produce the same
// cursor-append pattern the teacher's promoteHashedStateIncrementally uses.
func InsertAccountForHashing(tx ethdb.RwTx, addresses []common.Address) error {
	sorted := append([]common.Address(nil), addresses...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Hex() < sorted[j].Hex() })

	for _, addr := range sorted {
		hashed := crypto.Keccak256Hash(addr[:])
		v, err := tx.GetOne(dbutils.PlainAccountState, addr[:])
		if err != nil && err != ethdb.ErrKeyNotFound {
			return fmt.Errorf("state: reading plain account %x for hashing: %w", addr, err)
		}
		if err == ethdb.ErrKeyNotFound || v == nil {
			if delErr := tx.Delete(dbutils.HashedAccount, hashed[:], nil); delErr != nil {
				return fmt.Errorf("state: deleting hashed account %x: %w", hashed, delErr)
			}
			continue
		}
		if err := tx.Put(dbutils.HashedAccount, hashed[:], v); err != nil {
			return fmt.Errorf("state: writing hashed account %x: %w", hashed, err)
		}
	}
	return nil
}

// InsertStorageForHashing projects every touched (address, slot) pair's
// current PlainStorageState entry into HashedStorage, keyed by
// (keccak256(address), keccak256(slot)) with the hashed slot as the dup
// sub-key, mirroring HashedAccount's address-hashing.
func InsertStorageForHashing(tx ethdb.RwTx, touched map[common.Address][]common.Hash) error {
	addrs := make([]common.Address, 0, len(touched))
	for addr := range touched {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Hex() < addrs[j].Hex() })

	for _, addr := range addrs {
		hashedAddr := crypto.Keccak256Hash(addr[:])
		slots := append([]common.Hash(nil), touched[addr]...)
		sort.Slice(slots, func(i, j int) bool { return slots[i].Hex() < slots[j].Hex() })

		cur, err := tx.RwCursorDupSort(dbutils.PlainStorageState)
		if err != nil {
			return err
		}

		for _, slot := range slots {
			hashedSlot := crypto.Keccak256Hash(slot[:])
			v, err := cur.SeekBothExact(addr[:], slot[:])
			if err != nil {
				cur.Close()
				return fmt.Errorf("state: reading plain storage %x/%x for hashing: %w", addr, slot, err)
			}
			if err := tx.Delete(dbutils.HashedStorage, hashedAddr[:], hashedSlot[:]); err != nil {
				cur.Close()
				return fmt.Errorf("state: deleting hashed storage %x/%x: %w", hashedAddr, hashedSlot, err)
			}
			if v == nil {
				continue
			}
			_, value := dbutils.DecodeStorageEntry(v)
			if err := tx.Put(dbutils.HashedStorage, hashedAddr[:], dbutils.EncodeStorageEntry(hashedSlot, &value)); err != nil {
				cur.Close()
				return fmt.Errorf("state: writing hashed storage %x/%x: %w", hashedAddr, hashedSlot, err)
			}
		}
		cur.Close()
	}
	return nil
}
