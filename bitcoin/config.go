// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package bitcoin

import (
	"math/big"
)

// Config holds protocol and consensus-adjacent constants threaded explicitly
// through builders instead of being read from a global table.
type Config struct {
	// DustThreshold defines the smallest output value in satoshi worth
	// emitting rather than folding into fees.
	DustThreshold *big.Int
	// MaxChunkSize defines single data push policy limit for envelope
	// payload chunking.
	MaxChunkSize int
	// EnvelopeMagic defines protocol magic bytes emitted first inside the
	// envelope reveal branch.
	EnvelopeMagic []byte
	// TxVersion defines transaction version for built transactions.
	TxVersion int32
	// Sequence defines input sequence number, signals replace-by-fee.
	Sequence uint32
}

// DefaultConfig returns Config with protocol defaults.
func DefaultConfig() Config {
	return Config{
		DustThreshold: big.NewInt(546),
		MaxChunkSize:  512,
		EnvelopeMagic: []byte("op"),
		TxVersion:     2,
		Sequence:      0xfffffffd,
	}
}
