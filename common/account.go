package common

import (
	"github.com/ethereum/go-ethereum/rlp"
)

// Account mirrors the Ethereum account model stored in PlainAccountState /
// HashedAccount: nonce, balance, storage root and code hash. Initialised
// distinguishes "account exists with zero fields" from "no row at all" —
// the same distinction the teacher's accounts.Account.Initialised flag
// makes in db_state_writer.go's originalAccountData.
type Account struct {
	Nonce       uint64
	Balance     U256
	Root        Hash // storage trie root, Hash{} (empty root) for EOAs
	CodeHash    Hash
	Initialised bool
}

// EmptyCodeHash is the keccak256 of the empty byte string; accounts with no
// code carry this value rather than the zero hash.
var EmptyCodeHash = Hash{0xc5, 0xd2, 0x46, 0x01, 0x86, 0xf7, 0x23, 0x3c, 0x92, 0x7e, 0x7d, 0xb2, 0xdc, 0xc7, 0x03, 0xc0, 0xe5, 0x00, 0xb6, 0x53, 0xca, 0x82, 0x27, 0x3b, 0x7b, 0xfa, 0xd8, 0x04, 0x5d, 0x85, 0xa4, 0x70}

// EmptyRoot is the keccak256 root hash of an empty Merkle-Patricia trie.
var EmptyRoot = Hash{0x56, 0xe8, 0x1f, 0x17, 0x1b, 0xcc, 0x55, 0xa6, 0xff, 0x83, 0x45, 0xe6, 0x92, 0xc0, 0xf8, 0x6e, 0x5b, 0x48, 0xe0, 0x1b, 0x99, 0x6c, 0xad, 0xc0, 0x01, 0x62, 0x2f, 0xb5, 0xe3, 0x63, 0xb4, 0x21}

// IsEmptyCodeHash reports whether the account carries no bytecode.
func (a *Account) IsEmptyCodeHash() bool {
	return a.CodeHash == (Hash{}) || a.CodeHash == EmptyCodeHash
}

// SelfCopy returns a deep copy, used when the writer needs to compare a
// pre-image against a "hashes omitted" projection without mutating the
// original (teacher's originalAccountData).
func (a *Account) SelfCopy() *Account {
	cp := *a
	return &cp
}

type accountStorageForm struct {
	Nonce    uint64
	Balance  []byte
	Root     Hash
	CodeHash Hash
}

// EncodingLengthForStorage returns the length of the RLP encoding this
// account would produce; callers that pre-allocate a buffer (as the teacher
// does in UpdateAccountData) can size it ahead of time.
func (a *Account) EncodingLengthForStorage() int {
	buf, _ := a.rlpForm()
	enc, _ := rlp.EncodeToBytes(buf)
	return len(enc)
}

// EncodeForStorage writes the account's storage encoding into buf, which
// must be at least EncodingLengthForStorage() bytes.
func (a *Account) EncodeForStorage(buf []byte) {
	form, _ := a.rlpForm()
	enc, err := rlp.EncodeToBytes(form)
	if err != nil {
		panic(err)
	}
	copy(buf, enc)
}

// DecodeForStorage parses the bytes produced by EncodeForStorage.
func (a *Account) DecodeForStorage(enc []byte) error {
	var form accountStorageForm
	if err := rlp.DecodeBytes(enc, &form); err != nil {
		return err
	}
	a.Nonce = form.Nonce
	a.Balance.SetBytes(form.Balance)
	a.Root = form.Root
	a.CodeHash = form.CodeHash
	a.Initialised = true
	return nil
}

func (a *Account) rlpForm() (accountStorageForm, error) {
	return accountStorageForm{
		Nonce:    a.Nonce,
		Balance:  a.Balance.Bytes(),
		Root:     a.Root,
		CodeHash: a.CodeHash,
	}, nil
}

// AccountInfoChangeSet is the pre/post pair of an account's nonce, balance
// and code hash across one transition — the account-level leg of a
// changeset, excluding storage.
type AccountInfoChangeSet struct {
	// Old is the account's state before the transition, nil if the account
	// did not exist.
	Old *Account
	// New is the account's state after the transition, nil if the account
	// was removed (EIP-161 empty-account pruning or SELFDESTRUCT).
	New *Account
}
