// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"math/big"

	"btcvm/internal/numbers"
)

// Per-element transaction size constants in bytes. Witness bytes are
// accounted separately and discounted 4:1 per consensus weight rules, so a
// draft transaction never has to be serialized for fee estimation.
const (
	// txBaseSize defines version, input/output counts and locktime.
	txBaseSize = 10
	// txWitnessHeaderSize defines segwit marker and flag bytes.
	txWitnessHeaderSize = 2
	// inputBaseSize defines outpoint, empty sigScript length and sequence.
	inputBaseSize = 41
	// outputBaseSize defines amount and script length prefix.
	outputBaseSize = 9

	// p2trScriptSize defines P2TR output script size.
	p2trScriptSize = 34
	// p2wpkhScriptSize defines P2WPKH output script size.
	p2wpkhScriptSize = 22
	// p2pkhScriptSize defines legacy P2PKH output script size.
	p2pkhScriptSize = 25

	// schnorrSignatureSize defines BIP-340 signature size.
	schnorrSignatureSize = 64
	// ecdsaSignatureSize defines DER signature size with sighash byte, worst case.
	ecdsaSignatureSize = 73
	// compressedKeySize defines compressed public key size.
	compressedKeySize = 33
	// controlBlockBaseSize defines control block size for a two-leaf tree:
	// leaf version with parity, internal key, single merkle node.
	controlBlockBaseSize = 65

	// keySpendWitnessSize defines taproot key-path witness size:
	// element count, length prefix and schnorr signature.
	keySpendWitnessSize = 1 + 1 + schnorrSignatureSize
	// p2wpkhWitnessSize defines P2WPKH witness size:
	// element count, prefixed DER signature and prefixed public key.
	p2wpkhWitnessSize = 1 + 1 + ecdsaSignatureSize + 1 + compressedKeySize
)

// InputWeight declares size contribution of a single input.
type InputWeight struct {
	BaseSize    int // non-witness bytes.
	WitnessSize int // witness bytes including element count prefix.
}

// KeySpendInput returns weight of a taproot key-path input.
func KeySpendInput() InputWeight {
	return InputWeight{BaseSize: inputBaseSize, WitnessSize: keySpendWitnessSize}
}

// PaymentInput returns weight of a P2WPKH input.
func PaymentInput() InputWeight {
	return InputWeight{BaseSize: inputBaseSize, WitnessSize: p2wpkhWitnessSize}
}

// ScriptSpendInput returns weight of a taproot script-path input revealing
// leafScript with the declared witness elements preceding it.
func ScriptSpendInput(leafScriptSize int, elementSizes ...int) InputWeight {
	witness := 1 // element count prefix.
	for _, size := range elementSizes {
		witness += compactSize(size) + size
	}
	witness += compactSize(leafScriptSize) + leafScriptSize
	witness += compactSize(controlBlockBaseSize) + controlBlockBaseSize

	return InputWeight{BaseSize: inputBaseSize, WitnessSize: witness}
}

// EstimateVSize returns estimated virtual size in vBytes for a transaction
// with declared inputs and output script sizes. Witness bytes of every input
// are divided by four and rounded up per input.
func EstimateVSize(inputs []InputWeight, outputScriptSizes []int) *big.Int {
	size := txBaseSize
	witness := false
	for _, input := range inputs {
		size += input.BaseSize
		if input.WitnessSize > 0 {
			witness = true
			size += (input.WitnessSize + 3) / 4
		}
	}
	for _, scriptSize := range outputScriptSizes {
		size += outputBaseSize + scriptSize
	}
	if witness {
		size += txWitnessHeaderSize
	}

	return big.NewInt(int64(size))
}

// EstimateFee returns fee in satoshi for the estimated virtual size at the
// provided rate in satoshi per kilo virtual byte, rounded up.
func EstimateFee(inputs []InputWeight, outputScriptSizes []int, satoshiPerKVByte *big.Int) *big.Int {
	fee := new(big.Int).Mul(EstimateVSize(inputs, outputScriptSizes), satoshiPerKVByte)

	return numbers.CeilDiv(fee, big.NewInt(1000))
}

// compactSize returns serialized length of a compact-size prefix for size.
func compactSize(size int) int {
	switch {
	case size < 0xfd:
		return 1
	case size <= 0xffff:
		return 3
	default:
		return 5
	}
}
