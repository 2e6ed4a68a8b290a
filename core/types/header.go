// Package types declares the canonical block representation the ingestion
// core writes and reads: headers, bodies, withdrawals, transactions and
// receipts, plus the RLP encodings the storage layer persists.
package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ledgerwatch/ethstate-core/common"
)

// Header is the block header. Field order and RLP tags follow go-ethereum's
// own core/types.Header, extended with the post-Shanghai withdrawals root so
// a single struct can represent pre- and post-Shanghai headers alike (the
// field is omitted from the wire encoding of older blocks by being absent
// from their RLP list, not by a flag).
type Header struct {
	ParentHash       common.Hash    `json:"parentHash"`
	UncleHash        common.Hash    `json:"sha3Uncles"`
	Coinbase         common.Address `json:"miner"`
	Root             common.Hash    `json:"stateRoot"`
	TxHash           common.Hash    `json:"transactionsRoot"`
	ReceiptHash      common.Hash    `json:"receiptsRoot"`
	Bloom            [256]byte      `json:"logsBloom"`
	Difficulty       *big.Int       `json:"difficulty"`
	Number           *big.Int       `json:"number"`
	GasLimit         uint64         `json:"gasLimit"`
	GasUsed          uint64         `json:"gasUsed"`
	Time             uint64         `json:"timestamp"`
	Extra            []byte         `json:"extraData"`
	MixDigest        common.Hash    `json:"mixHash"`
	Nonce            [8]byte        `json:"nonce"`
	BaseFee          *big.Int       `json:"baseFeePerGas" rlp:"optional"`
	WithdrawalsRoot  *common.Hash   `json:"withdrawalsRoot" rlp:"optional"`
}

// NumberU64 is the common case of reading Number as a dense block number.
func (h *Header) NumberU64() common.BlockNumber { return h.Number.Uint64() }

// DifficultyU256 converts Difficulty to the U256 type the total-difficulty
// accumulator (HeaderTD) is stored as.
func (h *Header) DifficultyU256() common.U256 {
	var d common.U256
	d.SetFromBig(h.Difficulty)
	return d
}

// Hash returns the keccak256 of the header's RLP encoding — the canonical
// block hash.
func (h *Header) Hash() common.Hash {
	return rlpHash(h)
}

// SealedHeader pairs a Header with its already-computed hash, the same
// "don't recompute keccak on every access" shape go-ethereum's
// types.Header/types.Block split serves, generalized here to a standalone
// value usable before a full Block exists.
type SealedHeader struct {
	*Header
	hash common.Hash
}

// NewSealedHeader seals h, computing and caching its hash once.
func NewSealedHeader(h *Header) *SealedHeader {
	return &SealedHeader{Header: h, hash: h.Hash()}
}

// Hash returns the cached hash rather than recomputing it.
func (s *SealedHeader) Hash() common.Hash { return s.hash }

func rlpHash(x interface{}) common.Hash {
	enc, err := rlp.EncodeToBytes(x)
	if err != nil {
		panic(err)
	}
	return keccak256(enc)
}
