// Package rawdb implements the canonical block writer (C3) and the range
// reader/unwinder (C8): the parts of the core that read and write whole
// blocks, as opposed to core/state's per-account/per-slot bookkeeping.
//
// Grounded on the teacher's core/state/db_state_writer.go for error-wrapping
// and ethdb.RwTx usage conventions; the block-insertion algorithm itself
// follows reth's Transaction::insert_canonical_block
// (original_source/crates/storage/provider/src/transaction.rs).
package rawdb

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ledgerwatch/ethstate-core/common"
	"github.com/ledgerwatch/ethstate-core/common/dbutils"
	"github.com/ledgerwatch/ethstate-core/core/types"
	"github.com/ledgerwatch/ethstate-core/ethdb"
)

// BlockBody is the stored form of BlockBodies: the transaction range a block
// owns, not the transactions themselves.
type BlockBody struct {
	StartTxID common.TxNumber
	TxCount   uint64
}

// IntegrityError reports a missing row the writer or reader expected to find
// — DatabaseIntegrity in the error taxonomy.
type IntegrityError struct {
	What  string
	Block common.BlockNumber
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("rawdb: %s missing at block %d", e.What, e.Block)
}

func encodeBody(b BlockBody) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[:8], b.StartTxID)
	binary.BigEndian.PutUint64(buf[8:], b.TxCount)
	return buf
}

func decodeBody(v []byte) BlockBody {
	return BlockBody{
		StartTxID: binary.BigEndian.Uint64(v[:8]),
		TxCount:   binary.BigEndian.Uint64(v[8:]),
	}
}

// GetBlockBody reads BlockBodies[n].
func GetBlockBody(tx ethdb.Tx, n common.BlockNumber) (BlockBody, error) {
	v, err := tx.GetOne(dbutils.BlockBodies, dbutils.EncodeBlockNumber(n))
	if errors.Is(err, ethdb.ErrKeyNotFound) {
		return BlockBody{}, &IntegrityError{What: "BlockBody", Block: n}
	}
	if err != nil {
		return BlockBody{}, fmt.Errorf("rawdb: reading block body %d: %w", n, err)
	}
	return decodeBody(v), nil
}

// GetBlockTransition reads BlockTransitionIndex[n], the id of the block's
// last transition.
func GetBlockTransition(tx ethdb.Tx, n common.BlockNumber) (common.TransitionId, error) {
	v, err := tx.GetOne(dbutils.BlockTransitionIdx, dbutils.EncodeBlockNumber(n))
	if errors.Is(err, ethdb.ErrKeyNotFound) {
		return 0, &IntegrityError{What: "BlockTransition", Block: n}
	}
	if err != nil {
		return 0, fmt.Errorf("rawdb: reading block transition %d: %w", n, err)
	}
	return dbutils.DecodeTransitionId(v), nil
}

// GetHeader reads and decodes Headers[n].
func GetHeader(tx ethdb.Tx, n common.BlockNumber) (*types.Header, error) {
	v, err := tx.GetOne(dbutils.Headers, dbutils.EncodeBlockNumber(n))
	if errors.Is(err, ethdb.ErrKeyNotFound) {
		return nil, &IntegrityError{What: "Header", Block: n}
	}
	if err != nil {
		return nil, fmt.Errorf("rawdb: reading header %d: %w", n, err)
	}
	return decodeHeader(v)
}

// GetBlockHash reads CanonicalHeaders[n].
func GetBlockHash(tx ethdb.Tx, n common.BlockNumber) (common.Hash, error) {
	v, err := tx.GetOne(dbutils.CanonicalHeaders, dbutils.EncodeBlockNumber(n))
	if errors.Is(err, ethdb.ErrKeyNotFound) {
		return common.Hash{}, &IntegrityError{What: "CanonicalHeader", Block: n}
	}
	if err != nil {
		return common.Hash{}, fmt.Errorf("rawdb: reading canonical hash %d: %w", n, err)
	}
	var h common.Hash
	copy(h[:], v)
	return h, nil
}

// GetTotalDifficulty reads HeaderTD[n].
func GetTotalDifficulty(tx ethdb.Tx, n common.BlockNumber) (*common.U256, error) {
	v, err := tx.GetOne(dbutils.HeaderTD, dbutils.EncodeBlockNumber(n))
	if errors.Is(err, ethdb.ErrKeyNotFound) {
		return nil, &IntegrityError{What: "TotalDifficulty", Block: n}
	}
	if err != nil {
		return nil, fmt.Errorf("rawdb: reading total difficulty %d: %w", n, err)
	}
	td := new(common.U256)
	td.SetBytes(v)
	return td, nil
}

// GetNextBlockIds returns the (start_tx_id, start_transition_id) the next
// block after `block` should use, reading the previous block's body and
// transition index. Genesis (block == 0) starts both counters at zero.
func GetNextBlockIds(tx ethdb.Tx, block common.BlockNumber) (common.TxNumber, common.TransitionId, error) {
	if block == 0 {
		return 0, 0, nil
	}
	prev := block - 1
	body, err := GetBlockBody(tx, prev)
	if err != nil {
		return 0, 0, err
	}
	lastTid, err := GetBlockTransition(tx, prev)
	if err != nil {
		return 0, 0, err
	}
	return body.StartTxID + body.TxCount, lastTid + 1, nil
}

// InsertCanonicalBlock appends one sealed block's header, body, ommers,
// withdrawals, transactions and senders, and reserves (but does not close)
// the block's transition range. It is C3: the execution applier finishes
// the job by writing BlockTransitionIndex[n] once it knows `to`.
//
// block.Number must be exactly tip+1, or 0 for genesis; the caller (the
// staged-sync pipeline) is responsible for that invariant, this function
// only consumes the predecessor's recorded state.
func InsertCanonicalBlock(tx ethdb.RwTx, block *types.SealedBlock, senders []common.Address, parentTD *common.U256) (from, to common.TransitionId, err error) {
	n := block.NumberU64()
	hash := block.Hash()
	numKey := dbutils.EncodeBlockNumber(n)

	if err := tx.Put(dbutils.Headers, numKey, mustEncodeHeader(block.Header)); err != nil {
		return 0, 0, fmt.Errorf("rawdb: writing header %d: %w", n, err)
	}
	if err := tx.Put(dbutils.CanonicalHeaders, numKey, hash[:]); err != nil {
		return 0, 0, fmt.Errorf("rawdb: writing canonical hash %d: %w", n, err)
	}
	if err := tx.Put(dbutils.HeaderNumbers, hash[:], numKey); err != nil {
		return 0, 0, fmt.Errorf("rawdb: writing header number %d: %w", n, err)
	}

	td := new(common.U256)
	diff := block.Header.DifficultyU256()
	if n > 0 {
		if parentTD == nil {
			return 0, 0, &IntegrityError{What: "TotalDifficulty", Block: n - 1}
		}
		td.Add(parentTD, &diff)
	} else {
		td.Set(&diff)
	}
	if err := tx.Put(dbutils.HeaderTD, numKey, td.Bytes()); err != nil {
		return 0, 0, fmt.Errorf("rawdb: writing total difficulty %d: %w", n, err)
	}

	startTxID, fromTid, err := GetNextBlockIds(tx, n)
	if err != nil {
		return 0, 0, err
	}
	for i, txn := range block.Body.Transactions {
		txID := startTxID + common.TxNumber(i)
		txKey := dbutils.EncodeTxNumber(txID)
		enc, encErr := encodeTx(txn)
		if encErr != nil {
			return 0, 0, fmt.Errorf("rawdb: encoding tx %d: %w", txID, encErr)
		}
		if err := tx.Append(dbutils.Transactions, txKey, enc); err != nil {
			return 0, 0, fmt.Errorf("rawdb: writing tx %d: %w", txID, err)
		}
		if i < len(senders) {
			if err := tx.Append(dbutils.TxSenders, txKey, senders[i][:]); err != nil {
				return 0, 0, fmt.Errorf("rawdb: writing tx sender %d: %w", txID, err)
			}
		}
		txHash := txn.Hash()
		if err := tx.Put(dbutils.TxHashNumber, txHash[:], txKey); err != nil {
			return 0, 0, fmt.Errorf("rawdb: writing tx hash index %d: %w", txID, err)
		}
	}

	body := BlockBody{StartTxID: startTxID, TxCount: uint64(len(block.Body.Transactions))}
	if err := tx.Put(dbutils.BlockBodies, numKey, encodeBody(body)); err != nil {
		return 0, 0, fmt.Errorf("rawdb: writing block body %d: %w", n, err)
	}
	if len(block.Body.Ommers) > 0 {
		enc, encErr := encodeOmmers(block.Body.Ommers)
		if encErr != nil {
			return 0, 0, fmt.Errorf("rawdb: encoding ommers %d: %w", n, encErr)
		}
		if err := tx.Put(dbutils.BlockOmmers, numKey, enc); err != nil {
			return 0, 0, fmt.Errorf("rawdb: writing ommers %d: %w", n, err)
		}
	}
	if len(block.Body.Withdrawals) > 0 {
		enc, encErr := encodeWithdrawals(block.Body.Withdrawals)
		if encErr != nil {
			return 0, 0, fmt.Errorf("rawdb: encoding withdrawals %d: %w", n, encErr)
		}
		if err := tx.Put(dbutils.BlockWithdrawals, numKey, enc); err != nil {
			return 0, 0, fmt.Errorf("rawdb: writing withdrawals %d: %w", n, err)
		}
	}

	return fromTid, 0, nil
}
