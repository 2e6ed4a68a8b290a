package types

import "github.com/ledgerwatch/ethstate-core/common"

// ReceiptStatus mirrors EIP-658's post-Byzantium success flag.
type ReceiptStatus uint64

const (
	ReceiptStatusFailed ReceiptStatus = iota
	ReceiptStatusSuccessful
)

// Log is a single EVM log entry attached to a Receipt.
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// Receipt is the execution outcome of one transaction, produced upstream by
// the EVM and handed to the applier as part of an ExecutionResult — this
// core neither persists nor computes receipts; the schema has no receipts
// table.
type Receipt struct {
	Type              TxType
	Status            ReceiptStatus
	CumulativeGasUsed uint64
	Bloom             [256]byte
	Logs              []*Log
}

// Receipts is a block's ordered receipt list, one per transaction.
type Receipts []*Receipt
