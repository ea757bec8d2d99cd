// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package utils

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
)

// xOnlyKeyLength defines length of a BIP-340 x-only public key.
const xOnlyKeyLength = 32

// NewThresholdLeafTapScript generates M of N multi-sig locking script for a taproot leaf.
// INFO: Script will have the next format: {OP_0 [<pubKey1> OP_CHECKSIGADD [<pubKey2> OP_CHECKSIGADD ...]] <minimum> OP_NUMEQUAL}.
// NOTE: Keys must already be deduplicated and in canonical byte order,
// signatures align positionally with this order.
func NewThresholdLeafTapScript(xOnlyPublicKeys [][]byte, minimum int) ([]byte, error) {
	if len(xOnlyPublicKeys) < minimum {
		return nil, errors.New("fewer public keys than the signing minimum")
	}

	scriptBuilder := txscript.NewScriptBuilder().AddOp(txscript.OP_0)
	for _, publicKey := range xOnlyPublicKeys {
		if len(publicKey) != xOnlyKeyLength {
			return nil, errors.New("public key must be 32-byte x-only")
		}

		scriptBuilder.
			AddData(publicKey).
			AddOp(txscript.OP_CHECKSIGADD)
	}

	return scriptBuilder.
		AddInt64(int64(minimum)).
		AddOp(txscript.OP_NUMEQUAL).
		Script()
}

// NewLockLeafTapScript generates a 1-of-1 fallback locking script
// {<pubKey> OP_CHECKSIG}. It guarantees funds are never stranded when the
// target leaf of the same tree becomes unspendable.
func NewLockLeafTapScript(xOnlyPublicKey []byte) ([]byte, error) {
	if len(xOnlyPublicKey) != xOnlyKeyLength {
		return nil, errors.New("public key must be 32-byte x-only")
	}

	return txscript.NewScriptBuilder().
		AddData(xOnlyPublicKey).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

// NewTapScriptTreeFromRawScripts builds tapScript tree from provided raw leaf scripts.
func NewTapScriptTreeFromRawScripts(leafScripts ...[]byte) (*txscript.IndexedTapScriptTree, error) {
	if len(leafScripts) == 0 {
		return nil, errors.New("no leaf scripts provided")
	}

	var tapLeafs = make([]txscript.TapLeaf, len(leafScripts))
	for i, leafScript := range leafScripts {
		tapLeafs[i] = txscript.NewBaseTapLeaf(leafScript)
	}

	return txscript.AssembleTaprootScriptTree(tapLeafs...), nil
}

// ControlBlockBytes serializes BIP-341 control block proving inclusion of the
// leaf at leafIdx under internalKey's tree commitment.
func ControlBlockBytes(tree *txscript.IndexedTapScriptTree, internalKey *btcec.PublicKey, leafIdx int) ([]byte, error) {
	if tree == nil || leafIdx < 0 || leafIdx >= len(tree.LeafMerkleProofs) {
		return nil, errors.New("no merkle proof for requested leaf")
	}

	ctrlBlock := tree.LeafMerkleProofs[leafIdx].ToControlBlock(internalKey)

	return ctrlBlock.ToBytes()
}

// UpdatePSBTInputWithTapScriptLeafData updates provided psbt input with all data needed to sign taproot utxo.
func UpdatePSBTInputWithTapScriptLeafData(input *psbt.PInput, tapScriptTree *txscript.IndexedTapScriptTree, leafIdx int) error {
	if len(input.TaprootInternalKey) == 0 {
		return errors.New("no taproot internal key provided")
	}
	if len(input.WitnessScript) == 0 {
		return errors.New("no witness script provided")
	}

	tapLeaf := txscript.NewBaseTapLeaf(input.WitnessScript)
	internalKey, err := schnorr.ParsePubKey(input.TaprootInternalKey)
	if err != nil {
		return err
	}

	ctrlBlock := tapScriptTree.LeafMerkleProofs[leafIdx].ToControlBlock(internalKey)
	tapLeafScript := &psbt.TaprootTapLeafScript{
		Script:      tapLeaf.Script,
		LeafVersion: tapLeaf.LeafVersion,
	}
	tapLeafScript.ControlBlock, err = ctrlBlock.ToBytes()
	if err != nil {
		return err
	}

	if len(input.TaprootLeafScript) == 0 {
		input.TaprootLeafScript = []*psbt.TaprootTapLeafScript{tapLeafScript}
	}

	if len(input.TaprootMerkleRoot) == 0 {
		input.TaprootMerkleRoot = ctrlBlock.RootHash(tapLeaf.Script)
	}

	return nil
}
