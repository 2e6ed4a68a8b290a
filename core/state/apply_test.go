package state

import (
	"context"
	"testing"

	"github.com/ledgerwatch/ethstate-core/common"
	"github.com/ledgerwatch/ethstate-core/common/dbutils"
	"github.com/ledgerwatch/ethstate-core/ethdb"
	"github.com/stretchr/testify/require"
)

func u256(v uint64) common.U256 {
	var u common.U256
	u.SetUint64(v)
	return u
}

func TestApplyExecutionResultSingleTransfer(t *testing.T) {
	kv := ethdb.NewMemoryKV()
	defer kv.Close()

	a := common.Address{0xA}
	b := common.Address{0xB}

	result := ExecutionResult{
		TxChangesets: []TransactionChangeSet{
			{
				Changes: map[common.Address]*AccountChange{
					a: {Info: common.AccountInfoChangeSet{
						Old: &common.Account{Nonce: 0, Balance: u256(100), Initialised: true},
						New: &common.Account{Nonce: 1, Balance: u256(70), Initialised: true},
					}},
					b: {Info: common.AccountInfoChangeSet{
						Old: nil,
						New: &common.Account{Nonce: 0, Balance: u256(30), Initialised: true},
					}},
				},
			},
		},
	}

	var lastTid common.TransitionId
	var touched *Touched
	err := kv.Update(context.Background(), func(tx ethdb.RwTx) error {
		var err error
		lastTid, touched, err = ApplyExecutionResult(tx, nil, 1, 0, result, false)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, common.TransitionId(1), lastTid)
	require.ElementsMatch(t, []common.Address{a, b}, touched.Addresses)

	err = kv.View(context.Background(), func(tx ethdb.Tx) error {
		av, err := tx.GetOne(dbutils.PlainAccountState, a[:])
		require.NoError(t, err)
		var acc common.Account
		require.NoError(t, acc.DecodeForStorage(av))
		require.Equal(t, uint64(1), acc.Nonce)
		require.Equal(t, uint64(70), acc.Balance.Uint64())

		bv, err := tx.GetOne(dbutils.PlainAccountState, b[:])
		require.NoError(t, err)
		require.NoError(t, acc.DecodeForStorage(bv))
		require.Equal(t, uint64(30), acc.Balance.Uint64())

		tid, err := tx.GetOne(dbutils.BlockTransitionIdx, dbutils.EncodeBlockNumber(1))
		require.NoError(t, err)
		require.Equal(t, common.TransitionId(1), dbutils.DecodeTransitionId(tid))
		return nil
	})
	require.NoError(t, err)
}

// TestApplyExecutionResultAbsentAccountPreSpuriousDragonWritesEmpty exercises
// the pre-EIP-161 branch: an account whose new state is absent must be
// written as an explicit empty account, not deleted, while spurious-dragon
// is inactive.
func TestApplyExecutionResultAbsentAccountPreSpuriousDragonWritesEmpty(t *testing.T) {
	kv := ethdb.NewMemoryKV()
	defer kv.Close()

	d := common.Address{0xD}

	result := ExecutionResult{
		TxChangesets: []TransactionChangeSet{
			{
				Changes: map[common.Address]*AccountChange{
					d: {Info: common.AccountInfoChangeSet{
						Old: &common.Account{Nonce: 1, Balance: u256(0), Initialised: true},
						New: nil,
					}},
				},
			},
		},
	}

	err := kv.Update(context.Background(), func(tx ethdb.RwTx) error {
		_, _, err := ApplyExecutionResult(tx, nil, 9, 0, result, false)
		return err
	})
	require.NoError(t, err)

	err = kv.View(context.Background(), func(tx ethdb.Tx) error {
		v, err := tx.GetOne(dbutils.PlainAccountState, d[:])
		require.NoError(t, err)
		require.NotNil(t, v)
		var acc common.Account
		require.NoError(t, acc.DecodeForStorage(v))
		require.Equal(t, uint64(0), acc.Nonce)
		require.True(t, acc.Balance.IsZero())
		require.Equal(t, common.EmptyRoot, acc.Root)
		require.Equal(t, common.EmptyCodeHash, acc.CodeHash)
		return nil
	})
	require.NoError(t, err)
}

func TestApplyExecutionResultSelfdestructWipesStorage(t *testing.T) {
	kv := ethdb.NewMemoryKV()
	defer kv.Close()

	c := common.Address{0xC}
	slot1 := common.Hash{1}
	slot2 := common.Hash{2}

	// Seed C's plain storage directly, as if written by a prior block.
	err := kv.Update(context.Background(), func(tx ethdb.RwTx) error {
		v1 := u256(10)
		v2 := u256(20)
		if err := tx.Put(dbutils.PlainStorageState, c[:], dbutils.EncodeStorageEntry(slot1, &v1)); err != nil {
			return err
		}
		return tx.Put(dbutils.PlainStorageState, c[:], dbutils.EncodeStorageEntry(slot2, &v2))
	})
	require.NoError(t, err)

	result := ExecutionResult{
		TxChangesets: []TransactionChangeSet{
			{
				Changes: map[common.Address]*AccountChange{
					c: {
						Info: common.AccountInfoChangeSet{
							Old: &common.Account{Nonce: 1, Balance: u256(0), Initialised: true},
							New: nil,
						},
						WipeStorage: true,
					},
				},
			},
		},
	}

	var touched *Touched
	err = kv.Update(context.Background(), func(tx ethdb.RwTx) error {
		_, t2, err := ApplyExecutionResult(tx, nil, 5, 0, result, true)
		touched = t2
		return err
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []common.Hash{slot1, slot2}, touched.Storage[c])

	err = kv.View(context.Background(), func(tx ethdb.Tx) error {
		_, err := tx.GetOne(dbutils.PlainAccountState, c[:])
		require.ErrorIs(t, err, ethdb.ErrKeyNotFound)

		cur, err := tx.CursorDupSort(dbutils.PlainStorageState)
		require.NoError(t, err)
		defer cur.Close()
		_, v, err := cur.Seek(c[:])
		require.NoError(t, err)
		require.Nil(t, v)

		scCur, err := tx.CursorDupSort(dbutils.StorageChangeSet)
		require.NoError(t, err)
		defer scCur.Close()
		key := dbutils.EncodeTransitionIdAddress(1, c)
		v1, err := scCur.SeekBothExact(key, slot1[:])
		require.NoError(t, err)
		require.NotNil(t, v1)
		v2, err := scCur.SeekBothExact(key, slot2[:])
		require.NoError(t, err)
		require.NotNil(t, v2)
		return nil
	})
	require.NoError(t, err)
}
