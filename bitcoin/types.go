// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package bitcoin

import (
	"math/big"
)

// SolutionLength defines required length of an epoch challenge solution hash.
const SolutionLength = 32

// UTXO describes unspent transaction output data.
type UTXO struct {
	TxHash  string
	Index   uint32   // output index in transaction outputs.
	Amount  *big.Int // in Satoshi.
	Script  []byte   // ScriptPubKey.
	Address string   // output recipient address.
}

// IsSpendable reports whether utxo carries a positive amount and a
// well-formed locking script. Builders check it before any signing starts.
func (u *UTXO) IsSpendable() bool {
	return u.Amount != nil && u.Amount.Sign() > 0 && len(u.Script) != 0
}

// ChallengeSolution describes an externally validated epoch reward
// eligibility proof. The transaction core embeds PublicKey and Solution
// verbatim and never re-derives or re-checks the underlying proof-of-work.
type ChallengeSolution struct {
	PublicKey    []byte // compressed public key of the solution submitter.
	Solution     []byte // 32-byte solution hash.
	Difficulty   uint64
	Verification []byte // opaque collaborator data, not consumed here.
}

// Validate enforces the only property the core relies on: solution hash length.
func (c *ChallengeSolution) Validate() error {
	if len(c.Solution) != SolutionLength {
		return NewConstructionError("challenge solution must be %d bytes, got %d", SolutionLength, len(c.Solution))
	}
	if len(c.PublicKey) == 0 {
		return NewConstructionError("challenge public key is missing")
	}

	return nil
}
