package types

import "github.com/ledgerwatch/ethstate-core/common"

// Body is everything a block carries besides its header: transactions,
// uncle headers, and, from Shanghai onward, withdrawals.
type Body struct {
	Transactions Transactions
	Ommers       []*Header
	Withdrawals  Withdrawals // nil pre-Shanghai
}

// Block is a full header+body unit as received from the network or
// constructed locally, not yet known to be canonical.
type Block struct {
	Header *Header
	Body   *Body
}

// SealedBlock is a Block whose hash has been computed once and is reused by
// every subsequent lookup — the unit the canonical block writer (InsertCanonicalBlock)
// and the rest of the ingestion pipeline operate on, mirroring the role
// reth's SealedBlock plays opposite a bare Block.
type SealedBlock struct {
	*Block
	hash common.Hash
}

// NewSealedBlock seals b, computing its hash once from the header.
func NewSealedBlock(b *Block) *SealedBlock {
	return &SealedBlock{Block: b, hash: b.Header.Hash()}
}

// Hash returns the block's cached hash.
func (b *SealedBlock) Hash() common.Hash { return b.hash }

// NumberU64 returns the block's dense number.
func (b *SealedBlock) NumberU64() common.BlockNumber { return b.Header.NumberU64() }
