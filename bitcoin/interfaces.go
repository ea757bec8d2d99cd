// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package bitcoin

import (
	"github.com/btcsuite/btcd/btcec/v2"
)

// Signer provides signing capability over an externally managed key.
// Key derivation and storage stay behind this interface.
type Signer interface {
	// PublicKey returns the signing public key.
	PublicKey() *btcec.PublicKey
	// Sign produces a DER-encoded ECDSA signature over hash.
	Sign(hash []byte) ([]byte, error)
	// SignSchnorr produces a 64-byte BIP-340 signature over hash.
	SignSchnorr(hash []byte) ([]byte, error)
	// Verify reports whether signature is a valid Schnorr signature
	// over hash for the signer's public key.
	Verify(hash, signature []byte) bool
}

// TaprootSigner is implemented by signers able to apply a BIP-341 tweak to
// their key before signing. Required for taproot key-path spends.
type TaprootSigner interface {
	Signer
	// SignSchnorrTweaked signs hash with the private key tweaked by the
	// script tree merkle root. Empty root means BIP-86 tweak.
	SignSchnorrTweaked(hash, merkleRoot []byte) ([]byte, error)
}

// UTXOProvider discovers spendable outputs for an address. Network errors
// are surfaced unmodified, never retried inside the core.
type UTXOProvider interface {
	// Fetch returns spendable outputs for address holding at least
	// minAmount satoshi in total; minAmount 0 means all.
	Fetch(address string, minAmount uint64) ([]UTXO, error)
}

// BroadcastResult describes broadcast acknowledgment.
type BroadcastResult struct {
	Success bool
	TxID    string
	Error   string
}

// Broadcaster submits raw signed transactions to the network.
type Broadcaster interface {
	// Send broadcasts the raw transaction hex.
	Send(rawHex string) (BroadcastResult, error)
}
