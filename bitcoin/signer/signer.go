// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

// Package signer provides an in-process implementation of the signing
// interfaces over a locally held private key. Intended for tests and tooling,
// production deployments keep keys behind remote implementations.
package signer

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"

	"btcvm/bitcoin"
)

// ensures that LocalSigner implements bitcoin.TaprootSigner.
var _ bitcoin.TaprootSigner = (*LocalSigner)(nil)

// LocalSigner signs with a private key held in memory.
type LocalSigner struct {
	privateKey *btcec.PrivateKey
}

// NewLocalSigner is a constructor for LocalSigner.
func NewLocalSigner(privateKey *btcec.PrivateKey) *LocalSigner {
	return &LocalSigner{privateKey: privateKey}
}

// NewLocalSignerFromBytes builds a LocalSigner from a 32-byte private key.
func NewLocalSignerFromBytes(raw []byte) (*LocalSigner, error) {
	if len(raw) != btcec.PrivKeyBytesLen {
		return nil, bitcoin.NewSignatureError("private key must be %d bytes, got %d", btcec.PrivKeyBytesLen, len(raw))
	}

	privateKey, _ := btcec.PrivKeyFromBytes(raw)

	return &LocalSigner{privateKey: privateKey}, nil
}

// GenerateLocalSigner builds a LocalSigner over a fresh random key.
func GenerateLocalSigner() (*LocalSigner, error) {
	privateKey, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, bitcoin.NewSignatureError("key generation: %v", err)
	}

	return &LocalSigner{privateKey: privateKey}, nil
}

// PublicKey returns the signing public key.
func (signer *LocalSigner) PublicKey() *btcec.PublicKey {
	return signer.privateKey.PubKey()
}

// Sign produces a DER-encoded ECDSA signature over hash.
func (signer *LocalSigner) Sign(hash []byte) ([]byte, error) {
	return ecdsa.Sign(signer.privateKey, hash).Serialize(), nil
}

// SignSchnorr produces a 64-byte BIP-340 signature over hash.
func (signer *LocalSigner) SignSchnorr(hash []byte) ([]byte, error) {
	signature, err := schnorr.Sign(signer.privateKey, hash)
	if err != nil {
		return nil, bitcoin.NewSignatureError("schnorr: %v", err)
	}

	return signature.Serialize(), nil
}

// SignSchnorrTweaked signs hash with the key tweaked by the script tree
// merkle root per BIP-341. Empty root applies the BIP-86 tweak.
func (signer *LocalSigner) SignSchnorrTweaked(hash, merkleRoot []byte) ([]byte, error) {
	tweakedKey := txscript.TweakTaprootPrivKey(*signer.privateKey, merkleRoot)

	signature, err := schnorr.Sign(tweakedKey, hash)
	if err != nil {
		return nil, bitcoin.NewSignatureError("tweaked schnorr: %v", err)
	}

	return signature.Serialize(), nil
}

// Verify reports whether signature is a valid Schnorr signature over hash
// for the signer's public key.
func (signer *LocalSigner) Verify(hash, signature []byte) bool {
	parsed, err := schnorr.ParseSignature(signature)
	if err != nil {
		return false
	}

	return parsed.Verify(hash, signer.privateKey.PubKey())
}
