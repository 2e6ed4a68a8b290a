package state

import (
	"fmt"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/ledgerwatch/ethstate-core/common"
	"github.com/ledgerwatch/ethstate-core/common/dbutils"
	"github.com/ledgerwatch/ethstate-core/ethdb"
)

// Caches are the optional caches the applier updates after its
// PlainAccountState/PlainStorageState writes, mirroring the
// accountCache/storageCache/codeCache fields on the teacher's DbStateWriter
// (core/state/db_state_writer.go). The applier only writes to them and never
// reads from them; Code is allocated but not used. Caches may be nil; a nil
// cache is simply skipped.
type Caches struct {
	Account *fastcache.Cache
	Storage *fastcache.Cache
	Code    *fastcache.Cache
}

// NewCaches allocates the three caches with sizeBytes split
// evenly between them.
func NewCaches(sizeBytes int) *Caches {
	return &Caches{
		Account: fastcache.New(sizeBytes / 3),
		Storage: fastcache.New(sizeBytes / 3),
		Code:    fastcache.New(sizeBytes / 3),
	}
}

// Touched collects the addresses and storage keys the applier mutated, in
// the deterministic order the hashing engine (C5) needs to consume them.
type Touched struct {
	Addresses []common.Address
	// Storage maps an address to the ordered list of slots it had written.
	Storage map[common.Address][]common.Hash
	// AccountTransitions/StorageTransitions record which transition ids
	// touched which key, the input the history index engine (C4) chunks
	// into shards.
	AccountTransitions map[common.Address][]common.TransitionId
	StorageTransitions map[common.Address]map[common.Hash][]common.TransitionId
}

func newTouched() *Touched {
	return &Touched{
		Storage:            map[common.Address][]common.Hash{},
		AccountTransitions: map[common.Address][]common.TransitionId{},
		StorageTransitions: map[common.Address]map[common.Hash][]common.TransitionId{},
	}
}

func (t *Touched) touchAddress(addr common.Address, tid common.TransitionId) {
	if _, ok := t.AccountTransitions[addr]; !ok {
		t.Addresses = append(t.Addresses, addr)
	}
	t.AccountTransitions[addr] = append(t.AccountTransitions[addr], tid)
}

func (t *Touched) touchSlot(addr common.Address, slot common.Hash, tid common.TransitionId) {
	if _, ok := t.StorageTransitions[addr]; !ok {
		t.StorageTransitions[addr] = map[common.Hash][]common.TransitionId{}
	}
	if _, ok := t.StorageTransitions[addr][slot]; !ok {
		t.Storage[addr] = append(t.Storage[addr], slot)
	}
	t.StorageTransitions[addr][slot] = append(t.StorageTransitions[addr][slot], tid)
}

// ApplyExecutionResult is the execution-result applier (C7): it advances the
// monotone transition counter from parentTid, applying each transaction's
// changeset and then, if present, one block-level changeset for the
// post-block reward. It returns the block's last transition id (the value
// the caller writes into BlockTransitionIndex) and everything touched, for
// the hashing and history engines to consume next.
func ApplyExecutionResult(
	tx ethdb.RwTx,
	caches *Caches,
	block common.BlockNumber,
	parentTid common.TransitionId,
	result ExecutionResult,
	spuriousDragonActive bool,
) (lastTid common.TransitionId, touched *Touched, err error) {
	touched = newTouched()
	currentTid := parentTid

	for _, txChanges := range result.TxChangesets {
		currentTid++
		if err := applyAccountChangeSet(tx, caches, currentTid, txChanges.Changes, spuriousDragonActive, touched); err != nil {
			return 0, nil, err
		}
		for _, bc := range txChanges.NewBytecodes {
			if err := tx.Put(dbutils.Bytecodes, bc.Hash[:], bc.Code); err != nil {
				return 0, nil, fmt.Errorf("state: writing bytecode %x: %w", bc.Hash, err)
			}
		}
	}

	if len(result.BlockChangesets) > 0 {
		currentTid++
		infoOnly := make(map[common.Address]*AccountChange, len(result.BlockChangesets))
		for addr, info := range result.BlockChangesets {
			infoOnly[addr] = &AccountChange{Info: info}
		}
		if err := applyAccountChangeSet(tx, caches, currentTid, infoOnly, spuriousDragonActive, touched); err != nil {
			return 0, nil, err
		}
	}

	if err := tx.Put(dbutils.BlockTransitionIdx, dbutils.EncodeBlockNumber(block), dbutils.EncodeTransitionId(currentTid)); err != nil {
		return 0, nil, fmt.Errorf("state: writing block transition index %d: %w", block, err)
	}
	return currentTid, touched, nil
}

func applyAccountChangeSet(
	tx ethdb.RwTx,
	caches *Caches,
	tid common.TransitionId,
	changes map[common.Address]*AccountChange,
	spuriousDragonActive bool,
	touched *Touched,
) error {
	tidKey := dbutils.EncodeTransitionId(tid)
	for addr, change := range changes {
		touched.touchAddress(addr, tid)

		if err := tx.Put(dbutils.AccountChangeSet, tidKey, encodeAccountChangeSetValue(addr, change.Info.Old)); err != nil {
			return fmt.Errorf("state: writing account changeset %d/%x: %w", tid, addr, err)
		}

		newAcc := change.Info.New
		if newAcc == nil && !spuriousDragonActive {
			newAcc = &common.Account{Root: common.EmptyRoot, CodeHash: common.EmptyCodeHash, Initialised: true}
		}
		if err := writePlainAccount(tx, caches, addr, newAcc, spuriousDragonActive); err != nil {
			return err
		}

		if change.WipeStorage {
			if err := wipeStorage(tx, caches, tidKey, addr, touched, tid); err != nil {
				return err
			}
			for _, sc := range change.Storage {
				if !sc.NewValue.IsZero() {
					if err := putStorage(tx, caches, addr, sc.Key, &sc.NewValue); err != nil {
						return err
					}
				}
				touched.touchSlot(addr, sc.Key, tid)
			}
			continue
		}

		for _, sc := range change.Storage {
			if err := tx.Put(dbutils.StorageChangeSet, dbutils.EncodeTransitionIdAddress(tid, addr), dbutils.EncodeStorageEntry(sc.Key, &sc.OldValue)); err != nil {
				return fmt.Errorf("state: writing storage changeset %d/%x/%x: %w", tid, addr, sc.Key, err)
			}
			if err := tx.Delete(dbutils.PlainStorageState, addr[:], sc.Key[:]); err != nil {
				return fmt.Errorf("state: deleting plain storage %x/%x: %w", addr, sc.Key, err)
			}
			if !sc.NewValue.IsZero() {
				if err := putStorage(tx, caches, addr, sc.Key, &sc.NewValue); err != nil {
					return err
				}
			}
			touched.touchSlot(addr, sc.Key, tid)
		}
	}
	return nil
}

func writePlainAccount(tx ethdb.RwTx, caches *Caches, addr common.Address, acc *common.Account, spuriousDragonActive bool) error {
	if acc == nil || (spuriousDragonActive && accountIsEmpty(acc)) {
		if err := tx.Delete(dbutils.PlainAccountState, addr[:], nil); err != nil {
			return fmt.Errorf("state: deleting plain account %x: %w", addr, err)
		}
		if caches != nil && caches.Account != nil {
			caches.Account.Del(addr[:])
		}
		return nil
	}
	enc := make([]byte, acc.EncodingLengthForStorage())
	acc.EncodeForStorage(enc)
	if err := tx.Put(dbutils.PlainAccountState, addr[:], enc); err != nil {
		return fmt.Errorf("state: writing plain account %x: %w", addr, err)
	}
	if caches != nil && caches.Account != nil {
		caches.Account.Set(addr[:], enc)
	}
	return nil
}

func accountIsEmpty(acc *common.Account) bool {
	return acc.Nonce == 0 && acc.Balance.IsZero() && acc.IsEmptyCodeHash()
}

func putStorage(tx ethdb.RwTx, caches *Caches, addr common.Address, slot common.Hash, value *common.U256) error {
	if err := tx.Put(dbutils.PlainStorageState, addr[:], dbutils.EncodeStorageEntry(slot, value)); err != nil {
		return fmt.Errorf("state: writing plain storage %x/%x: %w", addr, slot, err)
	}
	if caches != nil && caches.Storage != nil {
		caches.Storage.Set(append(addr[:], slot[:]...), value.Bytes())
	}
	return nil
}

// wipeStorage implements SELFDESTRUCT's storage erasure: every dup entry of
// PlainStorageState[addr] is recorded into StorageChangeSet[(tid,addr)] as
// its prior value, then the whole dup run is deleted in one shot.
func wipeStorage(tx ethdb.RwTx, caches *Caches, tidKey []byte, addr common.Address, touched *Touched, tid common.TransitionId) error {
	cur, err := tx.RwCursorDupSort(dbutils.PlainStorageState)
	if err != nil {
		return err
	}
	defer cur.Close()

	v, err := cur.SeekExact(addr[:])
	if err != nil {
		return fmt.Errorf("state: seeking storage to wipe for %x: %w", addr, err)
	}
	for v != nil {
		slot, value := dbutils.DecodeStorageEntry(v)
		if err := tx.Put(dbutils.StorageChangeSet, dbutils.EncodeTransitionIdAddress(tid, addr), dbutils.EncodeStorageEntry(slot, &value)); err != nil {
			return fmt.Errorf("state: writing wipe changeset %d/%x/%x: %w", tid, addr, slot, err)
		}
		touched.touchSlot(addr, slot, tid)
		_, v, err = cur.NextDup()
		if err != nil {
			return err
		}
	}
	if err := tx.Delete(dbutils.PlainStorageState, addr[:], nil); err != nil {
		return fmt.Errorf("state: wiping plain storage %x: %w", addr, err)
	}
	if caches != nil && caches.Storage != nil {
		caches.Storage.Reset()
	}
	return nil
}
