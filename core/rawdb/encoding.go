package rawdb

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ledgerwatch/ethstate-core/core/types"
)

func mustEncodeHeader(h *types.Header) []byte {
	enc, err := rlp.EncodeToBytes(h)
	if err != nil {
		panic(fmt.Errorf("encoding header: %w", err))
	}
	return enc
}

func decodeHeader(v []byte) (*types.Header, error) {
	h := new(types.Header)
	if err := rlp.DecodeBytes(v, h); err != nil {
		return nil, err
	}
	return h, nil
}

func encodeTx(tx *types.Transaction) ([]byte, error) {
	return rlp.EncodeToBytes(tx)
}

func decodeTx(v []byte) (*types.Transaction, error) {
	tx := new(types.Transaction)
	if err := rlp.DecodeBytes(v, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func encodeOmmers(ommers []*types.Header) ([]byte, error) {
	return rlp.EncodeToBytes(ommers)
}

func decodeOmmers(v []byte) ([]*types.Header, error) {
	var ommers []*types.Header
	if err := rlp.DecodeBytes(v, &ommers); err != nil {
		return nil, err
	}
	return ommers, nil
}

func encodeWithdrawals(w types.Withdrawals) ([]byte, error) {
	return rlp.EncodeToBytes(w)
}

func decodeWithdrawals(v []byte) (types.Withdrawals, error) {
	var w types.Withdrawals
	if err := rlp.DecodeBytes(v, &w); err != nil {
		return nil, err
	}
	return w, nil
}
