package state

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ledgerwatch/ethstate-core/common"
	"github.com/ledgerwatch/ethstate-core/common/dbutils"
	"github.com/ledgerwatch/ethstate-core/ethdb"
	"github.com/stretchr/testify/require"
)

func TestInsertAccountForHashingWritesAndDeletes(t *testing.T) {
	kv := ethdb.NewMemoryKV()
	defer kv.Close()

	present := common.Address{0x11}
	absent := common.Address{0x22}

	err := kv.Update(context.Background(), func(tx ethdb.RwTx) error {
		acc := &common.Account{Nonce: 3, Balance: u256(42), Initialised: true}
		enc := make([]byte, acc.EncodingLengthForStorage())
		acc.EncodeForStorage(enc)
		if err := tx.Put(dbutils.PlainAccountState, present[:], enc); err != nil {
			return err
		}
		// absent has no PlainAccountState row but a stale HashedAccount entry
		// from a prior round, which InsertAccountForHashing must clear.
		hashedAbsent := crypto.Keccak256Hash(absent[:])
		return tx.Put(dbutils.HashedAccount, hashedAbsent[:], []byte("stale"))
	})
	require.NoError(t, err)

	err = kv.Update(context.Background(), func(tx ethdb.RwTx) error {
		return InsertAccountForHashing(tx, []common.Address{present, absent})
	})
	require.NoError(t, err)

	err = kv.View(context.Background(), func(tx ethdb.Tx) error {
		hashedPresent := crypto.Keccak256Hash(present[:])
		v, err := tx.GetOne(dbutils.HashedAccount, hashedPresent[:])
		require.NoError(t, err)
		var acc common.Account
		require.NoError(t, acc.DecodeForStorage(v))
		require.Equal(t, uint64(3), acc.Nonce)
		require.Equal(t, uint64(42), acc.Balance.Uint64())

		hashedAbsent := crypto.Keccak256Hash(absent[:])
		_, err = tx.GetOne(dbutils.HashedAccount, hashedAbsent[:])
		require.ErrorIs(t, err, ethdb.ErrKeyNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestInsertStorageForHashingWritesAndDeletes(t *testing.T) {
	kv := ethdb.NewMemoryKV()
	defer kv.Close()

	addr := common.Address{0x33}
	live := common.Hash{0x01}
	gone := common.Hash{0x02}

	err := kv.Update(context.Background(), func(tx ethdb.RwTx) error {
		v := u256(7)
		if err := tx.Put(dbutils.PlainStorageState, addr[:], dbutils.EncodeStorageEntry(live, &v)); err != nil {
			return err
		}
		hashedAddr := crypto.Keccak256Hash(addr[:])
		hashedGone := crypto.Keccak256Hash(gone[:])
		stale := u256(99)
		return tx.Put(dbutils.HashedStorage, hashedAddr[:], dbutils.EncodeStorageEntry(hashedGone, &stale))
	})
	require.NoError(t, err)

	err = kv.Update(context.Background(), func(tx ethdb.RwTx) error {
		return InsertStorageForHashing(tx, map[common.Address][]common.Hash{addr: {live, gone}})
	})
	require.NoError(t, err)

	err = kv.View(context.Background(), func(tx ethdb.Tx) error {
		hashedAddr := crypto.Keccak256Hash(addr[:])
		hashedLive := crypto.Keccak256Hash(live[:])
		hashedGone := crypto.Keccak256Hash(gone[:])

		cur, err := tx.CursorDupSort(dbutils.HashedStorage)
		require.NoError(t, err)
		defer cur.Close()

		v, err := cur.SeekBothExact(hashedAddr[:], hashedLive[:])
		require.NoError(t, err)
		require.NotNil(t, v)
		_, value := dbutils.DecodeStorageEntry(v)
		require.Equal(t, uint64(7), value.Uint64())

		v, err = cur.SeekBothExact(hashedAddr[:], hashedGone[:])
		require.NoError(t, err)
		require.Nil(t, v)
		return nil
	})
	require.NoError(t, err)
}
