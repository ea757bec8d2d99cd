// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"btcvm/bitcoin"
	"btcvm/bitcoin/utils"
	"btcvm/internal/numbers"
)

// threshold bounds for vault participant sets.
const (
	minThreshold   = 2
	maxVaultKeys   = 255
	xOnlyKeyLength = 32
)

// ThresholdVault describes an M-of-N taproot vault. Participant keys are kept
// in canonical form: x-only, deduplicated and sorted ascending by bytes, so
// that every participant derives the identical leaf script and signature
// positions align across independent signing sessions.
type ThresholdVault struct {
	publicKeys  [][]byte
	minimum     int
	internalKey *btcec.PublicKey
}

// NewThresholdVault is a constructor for ThresholdVault. Accepts participant
// keys as 33-byte compressed or 32-byte x-only, in any order, with duplicates.
// Bounds are checked before any script compiles: 2 <= minimum <= N <= 255
// after deduplication.
func NewThresholdVault(publicKeys [][]byte, minimum int, internalKey []byte) (*ThresholdVault, error) {
	if minimum < minThreshold {
		return nil, bitcoin.NewConstructionError("vault minimum %d is below %d", minimum, minThreshold)
	}

	deduplicated := make(map[string][]byte, len(publicKeys))
	for _, publicKey := range publicKeys {
		xOnlyKey := xOnly(publicKey)
		if len(xOnlyKey) != xOnlyKeyLength {
			return nil, bitcoin.NewConstructionError("vault key must be 32-byte x-only or 33-byte compressed, got %d bytes", len(publicKey))
		}
		if _, err := schnorr.ParsePubKey(xOnlyKey); err != nil {
			return nil, bitcoin.NewConstructionError("malformed vault key: %v", err)
		}

		deduplicated[string(xOnlyKey)] = xOnlyKey
	}

	canonical := make([][]byte, 0, len(deduplicated))
	for _, xOnlyKey := range deduplicated {
		canonical = append(canonical, xOnlyKey)
	}
	sort.Slice(canonical, func(i, j int) bool { return bytes.Compare(canonical[i], canonical[j]) < 0 })

	if len(canonical) < minimum {
		return nil, bitcoin.NewConstructionError("vault holds %d distinct keys, fewer than minimum %d", len(canonical), minimum)
	}
	if len(canonical) > maxVaultKeys {
		return nil, bitcoin.NewConstructionError("vault holds %d distinct keys, more than %d", len(canonical), maxVaultKeys)
	}

	parsedInternalKey, err := parsePublicKey(internalKey)
	if err != nil {
		return nil, bitcoin.NewConstructionError("malformed vault internal key: %v", err)
	}

	return &ThresholdVault{
		publicKeys:  canonical,
		minimum:     minimum,
		internalKey: parsedInternalKey,
	}, nil
}

// Minimum returns the required signature count M.
func (vault *ThresholdVault) Minimum() int { return vault.minimum }

// Size returns the participant count N.
func (vault *ThresholdVault) Size() int { return len(vault.publicKeys) }

// PublicKeys returns participant x-only keys in canonical order.
func (vault *ThresholdVault) PublicKeys() [][]byte {
	keys := make([][]byte, len(vault.publicKeys))
	for i, key := range vault.publicKeys {
		keys[i] = bytes.Clone(key)
	}

	return keys
}

// KeyIndex returns canonical position of publicKey, or -1 for non-participants.
func (vault *ThresholdVault) KeyIndex(publicKey []byte) int {
	xOnlyKey := xOnly(publicKey)
	for idx, key := range vault.publicKeys {
		if bytes.Equal(key, xOnlyKey) {
			return idx
		}
	}

	return -1
}

// ThresholdScript compiles the M-of-N OP_CHECKSIGADD leaf script.
func (vault *ThresholdVault) ThresholdScript() ([]byte, error) {
	script, err := utils.NewThresholdLeafTapScript(vault.publicKeys, vault.minimum)
	if err != nil {
		return nil, bitcoin.NewConstructionError("vault leaf script: %v", err)
	}

	return script, nil
}

// Address returns the vault deposit address committing to the threshold leaf
// and the internal-key fallback lock leaf.
func (vault *ThresholdVault) Address(networkParams *chaincfg.Params) (string, error) {
	thresholdScript, lockScript, err := vault.leafScripts()
	if err != nil {
		return "", err
	}

	address, err := utils.NewTaprootAddressFromScripts(networkParams, vault.internalKey, thresholdScript, lockScript)
	if err != nil {
		return "", bitcoin.NewConstructionError("vault address: %v", err)
	}

	return address.EncodeAddress(), nil
}

// ControlBlock proves threshold leaf inclusion under the vault commitment.
func (vault *ThresholdVault) ControlBlock() ([]byte, error) {
	tree, err := vault.tree()
	if err != nil {
		return nil, err
	}

	controlBlock, err := utils.ControlBlockBytes(tree, vault.internalKey, 0)
	if err != nil {
		return nil, bitcoin.NewConstructionError("vault control block: %v", err)
	}

	return controlBlock, nil
}

// leafScripts returns the threshold leaf and the fallback lock leaf.
func (vault *ThresholdVault) leafScripts() (thresholdScript, lockScript []byte, err error) {
	thresholdScript, err = vault.ThresholdScript()
	if err != nil {
		return nil, nil, err
	}

	lockScript, err = utils.NewLockLeafTapScript(xOnly(vault.internalKey.SerializeCompressed()))
	if err != nil {
		return nil, nil, bitcoin.NewConstructionError("vault lock script: %v", err)
	}

	return thresholdScript, lockScript, nil
}

// tree assembles the vault tap script tree, threshold leaf at index 0.
func (vault *ThresholdVault) tree() (*txscript.IndexedTapScriptTree, error) {
	thresholdScript, lockScript, err := vault.leafScripts()
	if err != nil {
		return nil, err
	}

	tree, err := utils.NewTapScriptTreeFromRawScripts(thresholdScript, lockScript)
	if err != nil {
		return nil, bitcoin.NewConstructionError("vault tap script tree: %v", err)
	}

	return tree, nil
}

// WithdrawalParams describes a vault withdrawal transaction.
type WithdrawalParams struct {
	UTXOs            []bitcoin.UTXO // vault utxos to withdraw from, all are consumed.
	ReceiverAddress  string
	Amount           *big.Int
	RefundAddress    string // vault address when empty.
	SatoshiPerKVByte *big.Int
}

// SigningRound reports the outcome of one partial signing or merge round.
type SigningRound struct {
	// Added reports whether the round recorded any new signature.
	// Re-submission of an identical signature collapses to false.
	Added bool
	// Finalizable lists inputs holding at least the vault minimum.
	Finalizable []int
}

// ThresholdBuilder assembles a vault withdrawal signed by M of N participants.
// Signatures are collected per input in canonical key slots, so sessions may
// run partially, out of order, across processes via Serialize/Restore, and be
// merged without double counting.
//
// Each participating signer calls Sign exactly once; Finalize succeeds when
// every input holds at least the vault minimum.
type ThresholdBuilder struct {
	networkParams *chaincfg.Params
	cfg           bitcoin.Config
	vault         *ThresholdVault

	leafScript   []byte
	leafHash     []byte
	controlBlock []byte
	fee          *big.Int

	packet     *psbt.Packet
	prevOuts   map[wire.OutPoint]*wire.TxOut
	signatures [][][]byte // [input][canonical key slot]
	finalized  []bool
}

// NewThresholdBuilder builds the unsigned withdrawal transaction over every
// provided vault utxo, paying params.Amount to the receiver and refunding the
// remainder after fee back to the vault (or params.RefundAddress).
func NewThresholdBuilder(networkParams *chaincfg.Params, cfg bitcoin.Config, vault *ThresholdVault, params WithdrawalParams) (*ThresholdBuilder, error) {
	if vault == nil {
		return nil, bitcoin.NewConstructionError("vault is missing")
	}
	if params.Amount == nil || !numbers.IsPositive(params.Amount) {
		return nil, bitcoin.NewConstructionError("withdrawal amount must be positive")
	}
	if len(params.UTXOs) == 0 {
		return nil, bitcoin.ErrInvalidUTXOAmount
	}

	builder, err := newThresholdBuilderShell(networkParams, cfg, vault)
	if err != nil {
		return nil, err
	}

	refundAddress := params.RefundAddress
	if refundAddress == "" {
		refundAddress, err = vault.Address(networkParams)
		if err != nil {
			return nil, err
		}
	}

	receiverScript, err := addressScript(params.ReceiverAddress, networkParams)
	if err != nil {
		return nil, err
	}
	refundScript, err := addressScript(refundAddress, networkParams)
	if err != nil {
		return nil, err
	}

	var (
		tx          = wire.NewMsgTx(cfg.TxVersion)
		totalAmount = big.NewInt(0)
		prevOuts    = make(map[wire.OutPoint]*wire.TxOut, len(params.UTXOs))
	)
	for _, utxo := range params.UTXOs {
		if !utxo.IsSpendable() {
			return nil, bitcoin.NewConstructionError("utxo %s:%d is not spendable", utxo.TxHash, utxo.Index)
		}

		utxoHash, err := chainhash.NewHashFromStr(utxo.TxHash)
		if err != nil {
			return nil, bitcoin.NewConstructionError("malformed utxo transaction id %q: %v", utxo.TxHash, err)
		}

		outPoint := wire.NewOutPoint(utxoHash, utxo.Index)
		if _, ok := prevOuts[*outPoint]; ok {
			return nil, bitcoin.NewConstructionError("utxo %s:%d is already consumed", utxo.TxHash, utxo.Index)
		}

		txIn := wire.NewTxIn(outPoint, nil, nil)
		txIn.Sequence = cfg.Sequence
		tx.AddTxIn(txIn)

		prevOuts[*outPoint] = wire.NewTxOut(utxo.Amount.Int64(), utxo.Script)
		totalAmount.Add(totalAmount, utxo.Amount)
	}

	// a finalized input carries M signatures and N-M empty elements.
	witnessElementSizes := make([]int, vault.Size())
	for i := 0; i < vault.minimum; i++ {
		witnessElementSizes[i] = schnorrSignatureSize
	}

	fee := EstimateFee(
		repeatWeights(ScriptSpendInput(len(builder.leafScript), witnessElementSizes...), len(params.UTXOs)),
		[]int{len(receiverScript), len(refundScript)},
		params.SatoshiPerKVByte,
	)

	remainder := new(big.Int).Sub(totalAmount, params.Amount)
	remainder.Sub(remainder, fee)
	if numbers.IsNegative(remainder) {
		return nil, bitcoin.ErrInsufficientNativeBalance
	}

	tx.AddTxOut(wire.NewTxOut(params.Amount.Int64(), receiverScript))
	if numbers.IsLess(remainder, cfg.DustThreshold) {
		fee.Add(fee, remainder)
	} else {
		tx.AddTxOut(wire.NewTxOut(remainder.Int64(), refundScript))
	}

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, bitcoin.NewConstructionError("withdrawal packet: %v", err)
	}

	tree, err := vault.tree()
	if err != nil {
		return nil, err
	}

	internalKey := xOnly(vault.internalKey.SerializeCompressed())
	for idx := range packet.Inputs {
		input := &packet.Inputs[idx]
		input.WitnessUtxo = prevOuts[tx.TxIn[idx].PreviousOutPoint]
		input.SighashType = txscript.SigHashDefault
		input.WitnessScript = builder.leafScript
		input.TaprootInternalKey = internalKey

		if err = utils.UpdatePSBTInputWithTapScriptLeafData(input, tree, 0); err != nil {
			return nil, bitcoin.NewConstructionError("withdrawal input %d: %v", idx, err)
		}
	}

	builder.fee = fee
	builder.packet = packet
	builder.prevOuts = prevOuts
	builder.signatures = newSignatureSlots(len(packet.Inputs), vault.Size())
	builder.finalized = make([]bool, len(packet.Inputs))

	return builder, nil
}

// RestoreThresholdBuilder resumes a signing session from Serialize output.
// Vault parameters travel out of band: the packet is validated against them
// and every carried signature is verified before being admitted.
func RestoreThresholdBuilder(networkParams *chaincfg.Params, cfg bitcoin.Config, vault *ThresholdVault, serialized []byte) (*ThresholdBuilder, error) {
	if vault == nil {
		return nil, bitcoin.NewConstructionError("vault is missing")
	}

	packet, err := psbt.NewFromRawBytes(bytes.NewReader(serialized), false)
	if err != nil {
		return nil, bitcoin.NewConstructionError("malformed withdrawal packet: %v", err)
	}

	builder, err := newThresholdBuilderShell(networkParams, cfg, vault)
	if err != nil {
		return nil, err
	}

	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(packet.Inputs))
	for idx := range packet.Inputs {
		input := &packet.Inputs[idx]
		if !bytes.Equal(input.WitnessScript, builder.leafScript) {
			return nil, bitcoin.NewScriptIntegrityError("input %d witness script does not match the vault", idx)
		}
		if input.WitnessUtxo == nil {
			return nil, bitcoin.NewConstructionError("input %d has no witness utxo", idx)
		}

		prevOuts[packet.UnsignedTx.TxIn[idx].PreviousOutPoint] = input.WitnessUtxo
	}

	builder.fee = big.NewInt(0)
	builder.packet = packet
	builder.prevOuts = prevOuts
	builder.signatures = newSignatureSlots(len(packet.Inputs), vault.Size())
	builder.finalized = make([]bool, len(packet.Inputs))

	for idx := range packet.Inputs {
		for _, spendSig := range packet.Inputs[idx].TaprootScriptSpendSig {
			if err = builder.admitSignature(idx, spendSig.XOnlyPubKey, spendSig.Signature); err != nil {
				return nil, err
			}
		}
	}

	return builder, nil
}

// newThresholdBuilderShell prepares vault-derived immutable parts.
func newThresholdBuilderShell(networkParams *chaincfg.Params, cfg bitcoin.Config, vault *ThresholdVault) (*ThresholdBuilder, error) {
	leafScript, err := vault.ThresholdScript()
	if err != nil {
		return nil, err
	}

	controlBlock, err := vault.ControlBlock()
	if err != nil {
		return nil, err
	}

	leafHash := txscript.NewBaseTapLeaf(leafScript).TapHash()

	return &ThresholdBuilder{
		networkParams: networkParams,
		cfg:           cfg,
		vault:         vault,
		leafScript:    leafScript,
		leafHash:      leafHash[:],
		controlBlock:  controlBlock,
	}, nil
}

// Vault returns the vault this builder withdraws from.
func (tb *ThresholdBuilder) Vault() *ThresholdVault { return tb.vault }

// Fee returns satoshi amount reserved for mining fee. Zero on restored
// sessions, the fee was fixed when the transaction was built.
func (tb *ThresholdBuilder) Fee() *big.Int { return new(big.Int).Set(tb.fee) }

// TxID returns withdrawal transaction id in display byte order.
func (tb *ThresholdBuilder) TxID() string { return hexTxID(tb.packet.UnsignedTx) }

// SignatureCount returns collected signature count for input idx.
func (tb *ThresholdBuilder) SignatureCount(idx int) int {
	if idx < 0 || idx >= len(tb.signatures) {
		return 0
	}

	count := 0
	for _, signature := range tb.signatures[idx] {
		if signature != nil {
			count++
		}
	}

	return count
}

// Finalizable reports whether input idx holds at least the vault minimum.
func (tb *ThresholdBuilder) Finalizable(idx int) bool {
	return tb.SignatureCount(idx) >= tb.vault.minimum
}

// Sign adds the signer's signature to every non-finalized input. Non-vault
// signers are rejected. Signing twice with the same key collapses to one
// recorded signature per input.
func (tb *ThresholdBuilder) Sign(signer bitcoin.Signer) (*SigningRound, error) {
	keyIdx := tb.vault.KeyIndex(signer.PublicKey().SerializeCompressed())
	if keyIdx < 0 {
		return nil, bitcoin.NewSignatureError("signer key is not a vault participant")
	}

	var (
		fetcher   = txscript.NewMultiPrevOutFetcher(tb.prevOuts)
		sigHashes = txscript.NewTxSigHashes(tb.packet.UnsignedTx, fetcher)
		tapLeaf   = txscript.NewBaseTapLeaf(tb.leafScript)
		round     = &SigningRound{}
	)
	for idx := range tb.packet.UnsignedTx.TxIn {
		if tb.finalized[idx] {
			continue
		}

		hash, err := txscript.CalcTapscriptSignaturehash(sigHashes, txscript.SigHashDefault, tb.packet.UnsignedTx, idx, fetcher, tapLeaf)
		if err != nil {
			return nil, bitcoin.NewSignatureError("tapscript sighash for input %d: %v", idx, err)
		}

		signature, err := signer.SignSchnorr(hash)
		if err != nil {
			return nil, bitcoin.NewSignatureError("input %d: %v", idx, err)
		}
		if len(signature) != schnorrSignatureSize {
			return nil, bitcoin.NewSignatureError("input %d: signature must be %d bytes, got %d", idx, schnorrSignatureSize, len(signature))
		}

		if bytes.Equal(tb.signatures[idx][keyIdx], signature) {
			continue
		}

		tb.recordSignature(idx, keyIdx, signature)
		round.Added = true
	}

	round.Finalizable = tb.finalizableInputs()

	return round, nil
}

// Merge imports signatures from another serialized session over the same
// withdrawal. Already known signatures are collapsed, unknown ones are
// verified before being admitted. Merging is monotonic, signatures are never
// dropped.
func (tb *ThresholdBuilder) Merge(serialized []byte) (*SigningRound, error) {
	other, err := psbt.NewFromRawBytes(bytes.NewReader(serialized), false)
	if err != nil {
		return nil, bitcoin.NewConstructionError("malformed withdrawal packet: %v", err)
	}
	if other.UnsignedTx.TxHash() != tb.packet.UnsignedTx.TxHash() {
		return nil, bitcoin.NewConstructionError("packet describes a different withdrawal transaction")
	}
	if len(other.Inputs) != len(tb.packet.Inputs) {
		return nil, bitcoin.NewConstructionError("packet input count does not match")
	}

	round := &SigningRound{}
	for idx := range other.Inputs {
		for _, spendSig := range other.Inputs[idx].TaprootScriptSpendSig {
			keyIdx := tb.vault.KeyIndex(spendSig.XOnlyPubKey)
			if keyIdx >= 0 && bytes.Equal(tb.signatures[idx][keyIdx], spendSig.Signature) {
				continue
			}

			if err = tb.admitSignature(idx, spendSig.XOnlyPubKey, spendSig.Signature); err != nil {
				return nil, err
			}
			round.Added = true
		}
	}

	round.Finalizable = tb.finalizableInputs()

	return round, nil
}

// Serialize encodes the signing session as a PSBT packet carrying the
// unsigned transaction and every collected partial signature. Vault
// parameters are not embedded and must travel out of band.
func (tb *ThresholdBuilder) Serialize() ([]byte, error) {
	w := bytes.NewBuffer(nil)
	if err := tb.packet.Serialize(w); err != nil {
		return nil, bitcoin.NewConstructionError("withdrawal packet: %v", err)
	}

	return w.Bytes(), nil
}

// B64 encodes the signing session as a base64 PSBT string.
func (tb *ThresholdBuilder) B64() (string, error) {
	encoded, err := tb.packet.B64Encode()
	if err != nil {
		return "", bitcoin.NewConstructionError("withdrawal packet: %v", err)
	}

	return encoded, nil
}

// FinalizeInput assembles the witness of input idx once the vault minimum is
// reached. Below the minimum it reports false without error, the input stays
// open for more signatures.
//
// Witness layout, bottom to top of the final stack:
//
//	+-----------------------------------------------+
//	| element per key, reverse canonical order:     |
//	|   signature for the M lowest contributing     |
//	|   slots, empty push for the rest              |
//	| threshold leaf script                         |
//	| control block                                 |
//	+-----------------------------------------------+
//
// N+2 elements total: OP_CHECKSIGADD consumes one element per key, so the
// element for key i sits at witness position N-1-i.
func (tb *ThresholdBuilder) FinalizeInput(idx int) (bool, error) {
	if idx < 0 || idx >= len(tb.signatures) {
		return false, bitcoin.NewFinalizationError("input index %d is out of range", idx)
	}
	if tb.finalized[idx] {
		return true, nil
	}
	if !tb.Finalizable(idx) {
		return false, nil
	}

	// the M lowest contributing slots, the rest stay empty even when signed.
	contributing := make(map[int]bool, tb.vault.minimum)
	for keyIdx := 0; keyIdx < tb.vault.Size() && len(contributing) < tb.vault.minimum; keyIdx++ {
		if tb.signatures[idx][keyIdx] != nil {
			contributing[keyIdx] = true
		}
	}

	witness := make(wire.TxWitness, 0, tb.vault.Size()+2)
	for keyIdx := tb.vault.Size() - 1; keyIdx >= 0; keyIdx-- {
		if contributing[keyIdx] {
			witness = append(witness, tb.signatures[idx][keyIdx])
		} else {
			witness = append(witness, []byte{})
		}
	}
	witness = append(witness, tb.leafScript, tb.controlBlock)

	tb.packet.UnsignedTx.TxIn[idx].Witness = witness
	tb.finalized[idx] = true

	return true, nil
}

// Finalize assembles every input witness and returns the raw signed
// transaction. Any input below the vault minimum fails the call.
func (tb *ThresholdBuilder) Finalize() ([]byte, error) {
	for idx := range tb.signatures {
		done, err := tb.FinalizeInput(idx)
		if err != nil {
			return nil, err
		}
		if !done {
			return nil, bitcoin.NewFinalizationError("input %d holds %d of %d required signatures", idx, tb.SignatureCount(idx), tb.vault.minimum)
		}
	}

	w := bytes.NewBuffer(nil)
	if err := tb.packet.UnsignedTx.Serialize(w); err != nil {
		return nil, err
	}

	return w.Bytes(), nil
}

// admitSignature verifies an externally supplied signature against the
// recomputed tapscript sighash and records it.
func (tb *ThresholdBuilder) admitSignature(idx int, xOnlyKey, signature []byte) error {
	keyIdx := tb.vault.KeyIndex(xOnlyKey)
	if keyIdx < 0 {
		return bitcoin.NewSignatureError("input %d carries a signature by a non-participant key", idx)
	}
	if len(signature) != schnorrSignatureSize {
		return bitcoin.NewSignatureError("input %d: signature must be %d bytes, got %d", idx, schnorrSignatureSize, len(signature))
	}

	var (
		fetcher   = txscript.NewMultiPrevOutFetcher(tb.prevOuts)
		sigHashes = txscript.NewTxSigHashes(tb.packet.UnsignedTx, fetcher)
		tapLeaf   = txscript.NewBaseTapLeaf(tb.leafScript)
	)
	hash, err := txscript.CalcTapscriptSignaturehash(sigHashes, txscript.SigHashDefault, tb.packet.UnsignedTx, idx, fetcher, tapLeaf)
	if err != nil {
		return bitcoin.NewSignatureError("tapscript sighash for input %d: %v", idx, err)
	}

	publicKey, err := schnorr.ParsePubKey(xOnlyKey)
	if err != nil {
		return bitcoin.NewSignatureError("input %d: malformed signer key: %v", idx, err)
	}
	parsedSignature, err := schnorr.ParseSignature(signature)
	if err != nil {
		return bitcoin.NewSignatureError("input %d: malformed signature: %v", idx, err)
	}
	if !parsedSignature.Verify(hash, publicKey) {
		return bitcoin.NewSignatureError("input %d: signature does not verify for its key", idx)
	}

	tb.recordSignature(idx, keyIdx, bytes.Clone(signature))

	return nil
}

// recordSignature stores the signature in its canonical slot and mirrors it
// into the packet for serialization, replacing a previous one by the same key.
func (tb *ThresholdBuilder) recordSignature(idx, keyIdx int, signature []byte) {
	tb.signatures[idx][keyIdx] = signature

	spendSigs := tb.packet.Inputs[idx].TaprootScriptSpendSig
	for _, spendSig := range spendSigs {
		if bytes.Equal(spendSig.XOnlyPubKey, tb.vault.publicKeys[keyIdx]) && bytes.Equal(spendSig.LeafHash, tb.leafHash) {
			spendSig.Signature = signature
			return
		}
	}

	tb.packet.Inputs[idx].TaprootScriptSpendSig = append(spendSigs, &psbt.TaprootScriptSpendSig{
		XOnlyPubKey: tb.vault.publicKeys[keyIdx],
		LeafHash:    tb.leafHash,
		Signature:   signature,
		SigHash:     txscript.SigHashDefault,
	})
}

// finalizableInputs lists inputs holding at least the vault minimum.
func (tb *ThresholdBuilder) finalizableInputs() []int {
	var finalizable []int
	for idx := range tb.signatures {
		if tb.Finalizable(idx) {
			finalizable = append(finalizable, idx)
		}
	}

	return finalizable
}

// newSignatureSlots allocates per-input canonical signature slots.
func newSignatureSlots(inputs, keys int) [][][]byte {
	slots := make([][][]byte, inputs)
	for idx := range slots {
		slots[idx] = make([][]byte, keys)
	}

	return slots
}

// parsePublicKey accepts 33-byte compressed or 32-byte x-only serialization.
func parsePublicKey(publicKey []byte) (*btcec.PublicKey, error) {
	if len(publicKey) == xOnlyKeyLength {
		return schnorr.ParsePubKey(publicKey)
	}

	return btcec.ParsePubKey(publicKey)
}

// repeatWeights returns count copies of weight for vsize estimation.
func repeatWeights(weight InputWeight, count int) []InputWeight {
	weights := make([]InputWeight, count)
	for i := range weights {
		weights[i] = weight
	}

	return weights
}
