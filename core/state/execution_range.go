package state

import (
	"fmt"

	"github.com/ledgerwatch/ethstate-core/common"
	"github.com/ledgerwatch/ethstate-core/common/dbutils"
	"github.com/ledgerwatch/ethstate-core/core/rawdb"
	"github.com/ledgerwatch/ethstate-core/ethdb"
)

// BlockExecutionResult pairs a block number with the ExecutionResult
// reconstructed for it.
type BlockExecutionResult struct {
	Block  common.BlockNumber
	Result ExecutionResult
}

// GetBlockExecutionResultRange reconstructs the ExecutionResult of every
// block in [from, to] without mutating the store. Receipts are not persisted
// anywhere in the schema, so every reconstructed TransactionChangeSet.Receipt
// is nil; callers that need receipts must re-execute.
func GetBlockExecutionResultRange(tx ethdb.Tx, from, to common.BlockNumber) ([]BlockExecutionResult, error) {
	return walkExecutionRange(tx, from, to, false)
}

// TakeBlockExecutionResultRange reconstructs and deletes every block's
// changesets in [from, to], restoring PlainAccountState/PlainStorageState to
// their values as of `from`'s parent — the unwind half of C8.
func TakeBlockExecutionResultRange(tx ethdb.RwTx, from, to common.BlockNumber) ([]BlockExecutionResult, error) {
	return walkExecutionRange(tx, from, to, true)
}

func walkExecutionRange(tx ethdb.Tx, from, to common.BlockNumber, take bool) ([]BlockExecutionResult, error) {
	var rwTx ethdb.RwTx
	if take {
		var ok bool
		rwTx, ok = tx.(ethdb.RwTx)
		if !ok {
			return nil, fmt.Errorf("state: take requires a write transaction")
		}
	}

	ov := newOverlay(tx)
	out := make([]BlockExecutionResult, 0, to-from+1)

	for b := to; ; b-- {
		parentTid, err := parentTransition(tx, b)
		if err != nil {
			return nil, err
		}
		blockTid, err := rawdb.GetBlockTransition(tx, b)
		if err != nil {
			return nil, err
		}
		body, err := rawdb.GetBlockBody(tx, b)
		if err != nil {
			return nil, err
		}

		perTxEnd := parentTid + body.TxCount
		hasBlockChangeset := blockTid > perTxEnd

		result := ExecutionResult{
			TxChangesets:    make([]TransactionChangeSet, body.TxCount),
			BlockChangesets: map[common.Address]common.AccountInfoChangeSet{},
		}

		for tid := blockTid; tid > parentTid; tid-- {
			changes, err := reconstructTransition(tx, ov, tid, take, rwTx)
			if err != nil {
				return nil, err
			}
			if hasBlockChangeset && tid == blockTid {
				for addr, ac := range changes {
					result.BlockChangesets[addr] = ac.Info
				}
				continue
			}
			idx := tid - parentTid - 1
			result.TxChangesets[idx] = TransactionChangeSet{Changes: changes}
		}

		out = append(out, BlockExecutionResult{Block: b, Result: result})

		if take {
			if err := rwTx.Delete(dbutils.BlockTransitionIdx, dbutils.EncodeBlockNumber(b), nil); err != nil {
				return nil, err
			}
		}

		if b == from {
			break
		}
	}

	// out was built from `to` down to `from`; callers expect ascending order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func parentTransition(tx ethdb.Tx, b common.BlockNumber) (common.TransitionId, error) {
	if b == 0 {
		return 0, nil
	}
	return rawdb.GetBlockTransition(tx, b-1)
}

// reconstructTransition walks AccountChangeSet[tid] and, per touched
// address, StorageChangeSet[(tid,addr)], pairing each recorded prior value
// with the "current" value read through the overlay. When take is true the
// current value is then rewritten back to the prior value (the undo step)
// and the changeset rows themselves are deleted.
func reconstructTransition(tx ethdb.Tx, ov *overlay, tid common.TransitionId, take bool, rwTx ethdb.RwTx) (map[common.Address]*AccountChange, error) {
	out := map[common.Address]*AccountChange{}

	acCur, err := tx.CursorDupSort(dbutils.AccountChangeSet)
	if err != nil {
		return nil, err
	}
	defer acCur.Close()

	tidKey := dbutils.EncodeTransitionId(tid)
	var entries [][]byte
	v, err := acCur.SeekBothRange(tidKey, nil)
	if err != nil {
		return nil, fmt.Errorf("state: seeking account changeset %d: %w", tid, err)
	}
	for v != nil {
		entries = append(entries, append([]byte(nil), v...))
		var k []byte
		k, v, err = acCur.NextDup()
		if err != nil {
			return nil, err
		}
		_ = k
	}

	for _, enc := range entries {
		addr, prior, err := decodeAccountChangeSetValue(enc)
		if err != nil {
			return nil, err
		}
		current, err := ov.account(addr)
		if err != nil {
			return nil, err
		}
		ac := &AccountChange{Info: common.AccountInfoChangeSet{Old: prior, New: current}}

		storage, wiped, err := reconstructStorage(tx, ov, tid, addr, current == nil, take, rwTx)
		if err != nil {
			return nil, err
		}
		ac.Storage = storage
		ac.WipeStorage = wiped
		out[addr] = ac

		ov.setAccount(addr, prior)
		if take {
			if err := writePlainAccount(rwTx, nil, addr, prior, false); err != nil {
				return nil, err
			}
			if err := rwTx.Delete(dbutils.AccountChangeSet, tidKey, enc); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func reconstructStorage(tx ethdb.Tx, ov *overlay, tid common.TransitionId, addr common.Address, wipeCandidate, take bool, rwTx ethdb.RwTx) ([]StorageChange, bool, error) {
	scCur, err := tx.CursorDupSort(dbutils.StorageChangeSet)
	if err != nil {
		return nil, false, err
	}
	defer scCur.Close()

	key := dbutils.EncodeTransitionIdAddress(tid, addr)
	var entries [][]byte
	v, err := scCur.SeekBothRange(key, nil)
	if err != nil {
		return nil, false, fmt.Errorf("state: seeking storage changeset %d/%x: %w", tid, addr, err)
	}
	for v != nil {
		entries = append(entries, append([]byte(nil), v...))
		var k []byte
		k, v, err = scCur.NextDup()
		if err != nil {
			return nil, false, err
		}
		_ = k
	}

	var changes []StorageChange
	for _, enc := range entries {
		slot, oldValue := dbutils.DecodeStorageEntry(enc)
		current := ov.storage(addr, slot)
		changes = append(changes, StorageChange{Key: slot, OldValue: oldValue, NewValue: current})
		ov.setStorage(addr, slot, oldValue)

		if take {
			if err := rwTx.Delete(dbutils.PlainStorageState, addr[:], slot[:]); err != nil {
				return nil, false, err
			}
			if !oldValue.IsZero() {
				if err := rwTx.Put(dbutils.PlainStorageState, addr[:], dbutils.EncodeStorageEntry(slot, &oldValue)); err != nil {
					return nil, false, err
				}
			}
			if err := rwTx.Delete(dbutils.StorageChangeSet, key, enc); err != nil {
				return nil, false, err
			}
		}
	}
	wiped := wipeCandidate && len(changes) > 0
	return changes, wiped, nil
}

// overlay is a read-through cache the reverse walk consults instead of the
// live PlainAccountState/PlainStorageState tables directly: it starts empty
// and is seeded lazily from the underlying transaction, then updated in
// place as each transition's prior values are discovered, so later (older)
// transitions see the correctly-undone "current" value without requiring a
// real write for the read-only variant.
type overlay struct {
	tx       ethdb.Tx
	accounts map[common.Address]*common.Account
	seenAcc  map[common.Address]bool
	storage  map[common.Address]map[common.Hash]common.U256
	seenSto  map[common.Address]map[common.Hash]bool
}

func newOverlay(tx ethdb.Tx) *overlay {
	return &overlay{
		tx:       tx,
		accounts: map[common.Address]*common.Account{},
		seenAcc:  map[common.Address]bool{},
		storage:  map[common.Address]map[common.Hash]common.U256{},
		seenSto:  map[common.Address]map[common.Hash]bool{},
	}
}

func (o *overlay) account(addr common.Address) (*common.Account, error) {
	if o.seenAcc[addr] {
		return o.accounts[addr], nil
	}
	v, err := o.tx.GetOne(dbutils.PlainAccountState, addr[:])
	if err != nil && err != ethdb.ErrKeyNotFound {
		return nil, err
	}
	if v == nil {
		o.seenAcc[addr] = true
		return nil, nil
	}
	acc := new(common.Account)
	if err := acc.DecodeForStorage(v); err != nil {
		return nil, err
	}
	o.seenAcc[addr] = true
	o.accounts[addr] = acc
	return acc, nil
}

func (o *overlay) setAccount(addr common.Address, acc *common.Account) {
	o.seenAcc[addr] = true
	o.accounts[addr] = acc
}

func (o *overlay) storageValue(addr common.Address, slot common.Hash) (common.U256, error) {
	if m := o.seenSto[addr]; m != nil && m[slot] {
		return o.storage[addr][slot], nil
	}
	cur, err := o.tx.CursorDupSort(dbutils.PlainStorageState)
	if err != nil {
		return common.U256{}, err
	}
	defer cur.Close()
	v, err := cur.SeekBothExact(addr[:], slot[:])
	if err != nil {
		return common.U256{}, err
	}
	var value common.U256
	if v != nil {
		_, value = dbutils.DecodeStorageEntry(v)
	}
	o.setStorage(addr, slot, value)
	return value, nil
}

func (o *overlay) storage(addr common.Address, slot common.Hash) common.U256 {
	value, err := o.storageValue(addr, slot)
	if err != nil {
		return common.U256{}
	}
	return value
}

func (o *overlay) setStorage(addr common.Address, slot common.Hash, value common.U256) {
	if o.seenSto[addr] == nil {
		o.seenSto[addr] = map[common.Hash]bool{}
		o.storage[addr] = map[common.Hash]common.U256{}
	}
	o.seenSto[addr][slot] = true
	o.storage[addr][slot] = value
}
