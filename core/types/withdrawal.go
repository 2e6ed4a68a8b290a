package types

import "github.com/ledgerwatch/ethstate-core/common"

// Withdrawal is a validator withdrawal processed by the beacon chain and
// credited to an execution-layer account, introduced by EIP-4895 (Shanghai).
type Withdrawal struct {
	Index          uint64         `json:"index"`
	ValidatorIndex uint64         `json:"validatorIndex"`
	Address        common.Address `json:"address"`
	// Amount is denominated in Gwei, matching the consensus-layer unit
	// EIP-4895 specifies rather than the execution layer's Wei.
	Amount uint64 `json:"amount"`
}

// Withdrawals is a block's ordered withdrawal list.
type Withdrawals []*Withdrawal
