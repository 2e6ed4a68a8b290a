package rawdb

import (
	"context"
	"math/big"
	"testing"

	"github.com/ledgerwatch/ethstate-core/common"
	"github.com/ledgerwatch/ethstate-core/common/dbutils"
	"github.com/ledgerwatch/ethstate-core/core/types"
	"github.com/ledgerwatch/ethstate-core/ethdb"
	"github.com/stretchr/testify/require"
)

func newGenesisBlock() *types.SealedBlock {
	header := &types.Header{
		Number:     new(big.Int),
		Difficulty: new(big.Int),
		GasLimit:   30_000_000,
	}
	return types.NewSealedBlock(&types.Block{Header: header, Body: &types.Body{}})
}

func TestInsertCanonicalBlockGenesisRoundTrip(t *testing.T) {
	kv := ethdb.NewMemoryKV()
	defer kv.Close()

	block := newGenesisBlock()

	err := kv.Update(context.Background(), func(tx ethdb.RwTx) error {
		from, _, err := InsertCanonicalBlock(tx, block, nil, nil)
		require.NoError(t, err)
		require.Equal(t, common.TransitionId(0), from)
		return nil
	})
	require.NoError(t, err)

	err = kv.View(context.Background(), func(tx ethdb.Tx) error {
		hash, err := GetBlockHash(tx, 0)
		require.NoError(t, err)
		require.Equal(t, block.Hash(), hash)

		header, err := GetHeader(tx, 0)
		require.NoError(t, err)
		require.Equal(t, block.Header.Number, header.Number)

		body, err := GetBlockBody(tx, 0)
		require.NoError(t, err)
		require.Equal(t, common.TxNumber(0), body.StartTxID)
		require.Equal(t, uint64(0), body.TxCount)

		td, err := GetTotalDifficulty(tx, 0)
		require.NoError(t, err)
		require.True(t, td.IsZero())
		return nil
	})
	require.NoError(t, err)
}

func TestInsertCanonicalBlockMissingTotalDifficultyIsIntegrityError(t *testing.T) {
	kv := ethdb.NewMemoryKV()
	defer kv.Close()

	header := &types.Header{
		Number:     big.NewInt(1),
		Difficulty: big.NewInt(1),
		GasLimit:   30_000_000,
	}
	block := types.NewSealedBlock(&types.Block{Header: header, Body: &types.Body{}})

	err := kv.Update(context.Background(), func(tx ethdb.RwTx) error {
		_, _, err := InsertCanonicalBlock(tx, block, nil, nil)
		return err
	})
	require.Error(t, err)
	var ie *IntegrityError
	require.ErrorAs(t, err, &ie)
}

func TestGetNextBlockIdsAdvancesFromPriorBlock(t *testing.T) {
	kv := ethdb.NewMemoryKV()
	defer kv.Close()

	err := kv.Update(context.Background(), func(tx ethdb.RwTx) error {
		genesis := newGenesisBlock()
		if _, _, err := InsertCanonicalBlock(tx, genesis, nil, nil); err != nil {
			return err
		}
		return tx.Put(dbutils.BlockTransitionIdx, dbutils.EncodeBlockNumber(0), dbutils.EncodeTransitionId(3))
	})
	require.NoError(t, err)

	err = kv.View(context.Background(), func(tx ethdb.Tx) error {
		startTx, startTid, err := GetNextBlockIds(tx, 1)
		require.NoError(t, err)
		require.Equal(t, common.TxNumber(0), startTx)
		require.Equal(t, common.TransitionId(4), startTid)
		return nil
	})
	require.NoError(t, err)
}
