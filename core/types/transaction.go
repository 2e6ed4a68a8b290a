package types

import (
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ledgerwatch/ethstate-core/common"
)

// TxType distinguishes the legacy and typed transaction envelopes this core
// stores verbatim; it never re-derives a signer, it only persists what the
// sender-recovery stage already computed (see core/rawdb's TxSenders table).
type TxType byte

const (
	LegacyTxType TxType = iota
	AccessListTxType
	DynamicFeeTxType
)

// Transaction is the RLP-storable form of a signed transaction. The core
// treats it as an opaque payload plus the handful of fields the storage and
// range-read paths need to inspect (nonce, to, value) — it never validates
// a signature or executes the transaction.
type Transaction struct {
	Type TxType

	ChainID   *big.Int
	Nonce     uint64
	GasTipCap *big.Int // effective only for DynamicFeeTxType
	GasFeeCap *big.Int // GasPrice for LegacyTxType/AccessListTxType
	Gas       uint64
	To        *common.Address // nil for contract creation
	Value     *big.Int
	Data      []byte

	V, R, S *big.Int
}

// GasPrice returns GasFeeCap, the field legacy transactions store gas price
// in.
func (tx *Transaction) GasPrice() *big.Int { return tx.GasFeeCap }

// Hash returns the keccak256 of the transaction's RLP encoding.
func (tx *Transaction) Hash() common.Hash {
	return rlpHash(tx)
}

// EncodeRLP implements rlp.Encoder, switching between the legacy list
// encoding and the EIP-2718 typed envelope the way go-ethereum's own
// Transaction.EncodeRLP does.
func (tx *Transaction) EncodeRLP(w io.Writer) error {
	if tx.Type == LegacyTxType {
		return rlp.Encode(w, legacyTxRLP(tx))
	}
	payload, err := rlp.EncodeToBytes(typedTxRLP(tx))
	if err != nil {
		return err
	}
	return rlp.Encode(w, append([]byte{byte(tx.Type)}, payload...))
}

type legacyTxRLPForm struct {
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	To       *common.Address `rlp:"nil"`
	Value    *big.Int
	Data     []byte
	V, R, S  *big.Int
}

func legacyTxRLP(tx *Transaction) legacyTxRLPForm {
	return legacyTxRLPForm{tx.Nonce, tx.GasFeeCap, tx.Gas, tx.To, tx.Value, tx.Data, tx.V, tx.R, tx.S}
}

type typedTxRLPForm struct {
	ChainID   *big.Int
	Nonce     uint64
	GasTipCap *big.Int
	GasFeeCap *big.Int
	Gas       uint64
	To        *common.Address `rlp:"nil"`
	Value     *big.Int
	Data      []byte
	V, R, S   *big.Int
}

func typedTxRLP(tx *Transaction) typedTxRLPForm {
	return typedTxRLPForm{tx.ChainID, tx.Nonce, tx.GasTipCap, tx.GasFeeCap, tx.Gas, tx.To, tx.Value, tx.Data, tx.V, tx.R, tx.S}
}

// Transactions is a block's ordered transaction list.
type Transactions []*Transaction
