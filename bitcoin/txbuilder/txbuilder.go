// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"bytes"
	"math/big"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"btcvm/bitcoin"
	"btcvm/internal/numbers"
)

// signHashType define signature hash type for non-taproot input signing.
const signHashType = txscript.SigHashAll

// State describes builder lifecycle stage. Transitions are one-way:
// Unbuilt → Built → Signed → Finalized.
type State string

const (
	// StateUnbuilt defines a constructed builder with no transaction yet.
	StateUnbuilt State = "unbuilt"
	// StateBuilt defines a populated, fee-balanced, unsigned transaction.
	StateBuilt State = "built"
	// StateSigned defines a transaction with all input signatures collected.
	StateSigned State = "signed"
	// StateFinalized defines an irreversibly assembled transaction.
	StateFinalized State = "finalized"
)

// Builder owns UTXO conversion, output and fee bookkeeping and the
// sign/finalize lifecycle shared by every operation kind.
type Builder struct {
	networkParams *chaincfg.Params
	cfg           bitcoin.Config

	state                  State
	suppressSignatureError bool

	tx               *wire.MsgTx
	usedUTXOs        []*bitcoin.UTXO
	prevOuts         map[wire.OutPoint]*wire.TxOut
	signedInputs     []bool
	totalInputAmount *big.Int
	amountSpent      *big.Int
	fee              *big.Int
	refund           *big.Int
	overflowFees     *big.Int
}

// NewBuilder is a constructor for Builder.
func NewBuilder(networkParams *chaincfg.Params, cfg bitcoin.Config) *Builder {
	return &Builder{
		networkParams:    networkParams,
		cfg:              cfg,
		state:            StateUnbuilt,
		tx:               wire.NewMsgTx(cfg.TxVersion),
		prevOuts:         make(map[wire.OutPoint]*wire.TxOut),
		totalInputAmount: big.NewInt(0),
		amountSpent:      big.NewInt(0),
		fee:              big.NewInt(0),
		refund:           big.NewInt(0),
		overflowFees:     big.NewInt(0),
	}
}

// SuppressSignatureErrors makes Sign record failed inputs as unsigned
// instead of aborting. Used by speculative builds completed in later
// signing rounds.
func (b *Builder) SuppressSignatureErrors() *Builder {
	b.suppressSignatureError = true
	return b
}

// State returns current lifecycle stage.
func (b *Builder) State() State { return b.state }

// TotalInputAmount returns accumulated satoshi amount of added inputs.
func (b *Builder) TotalInputAmount() *big.Int { return new(big.Int).Set(b.totalInputAmount) }

// AmountSpent returns satoshi amount allocated to outputs.
func (b *Builder) AmountSpent() *big.Int { return new(big.Int).Set(b.amountSpent) }

// Fee returns satoshi amount reserved for mining fee.
func (b *Builder) Fee() *big.Int { return new(big.Int).Set(b.fee) }

// Refund returns satoshi amount returned to the change output.
func (b *Builder) Refund() *big.Int { return new(big.Int).Set(b.refund) }

// OverflowFees returns below-dust remainder donated to fee.
func (b *Builder) OverflowFees() *big.Int { return new(big.Int).Set(b.overflowFees) }

// Tx exposes the transaction under construction.
func (b *Builder) Tx() *wire.MsgTx { return b.tx }

// AddInput converts utxo into a transaction input. Validity is checked
// fail-fast, before any signing starts.
func (b *Builder) AddInput(utxo *bitcoin.UTXO) error {
	if b.state == StateSigned || b.state == StateFinalized {
		return bitcoin.NewConstructionError("inputs can not be added in %s state", b.state)
	}
	if !utxo.IsSpendable() {
		return bitcoin.NewConstructionError("utxo %s:%d is not spendable", utxo.TxHash, utxo.Index)
	}

	utxoHash, err := chainhash.NewHashFromStr(utxo.TxHash)
	if err != nil {
		return bitcoin.NewConstructionError("malformed utxo transaction id %q: %v", utxo.TxHash, err)
	}

	outPoint := wire.NewOutPoint(utxoHash, utxo.Index)
	if _, ok := b.prevOuts[*outPoint]; ok {
		return bitcoin.NewConstructionError("utxo %s:%d is already consumed", utxo.TxHash, utxo.Index)
	}

	txIn := wire.NewTxIn(outPoint, nil, nil)
	txIn.Sequence = b.cfg.Sequence
	b.tx.AddTxIn(txIn)

	b.prevOuts[*outPoint] = wire.NewTxOut(utxo.Amount.Int64(), utxo.Script)
	b.usedUTXOs = append(b.usedUTXOs, utxo)
	b.signedInputs = append(b.signedInputs, false)
	b.totalInputAmount.Add(b.totalInputAmount, utxo.Amount)

	return nil
}

// AddOutput adds amount-carrying output locked to address.
func (b *Builder) AddOutput(address string, amount *big.Int) error {
	script, err := addressScript(address, b.networkParams)
	if err != nil {
		return err
	}

	return b.AddOutputScript(script, amount)
}

// AddOutputScript adds amount-carrying output with a raw locking script.
func (b *Builder) AddOutputScript(script []byte, amount *big.Int) error {
	if b.state == StateSigned || b.state == StateFinalized {
		return bitcoin.NewConstructionError("outputs can not be added in %s state", b.state)
	}

	b.tx.AddTxOut(wire.NewTxOut(amount.Int64(), script))
	b.amountSpent.Add(b.amountSpent, amount)

	return nil
}

// ApplyFeeAndChange reserves fee and emits the remainder to changeAddress.
// A remainder below the dust threshold is donated to fee instead. Moves the
// builder into the built state.
//
// Invariant: totalInputAmount = amountSpent + fee + refund, where fee
// includes the overflow remainder.
func (b *Builder) ApplyFeeAndChange(fee *big.Int, changeAddress string) error {
	if b.state != StateUnbuilt {
		return bitcoin.NewConstructionError("fee can not be applied in %s state", b.state)
	}

	remainder := new(big.Int).Sub(b.totalInputAmount, b.amountSpent)
	remainder.Sub(remainder, fee)
	if numbers.IsNegative(remainder) {
		return bitcoin.ErrInsufficientNativeBalance
	}

	b.fee = new(big.Int).Set(fee)
	if numbers.IsLess(remainder, b.cfg.DustThreshold) {
		b.overflowFees.Add(b.overflowFees, remainder)
		b.fee.Add(b.fee, remainder)
		b.state = StateBuilt

		return nil
	}

	if err := b.AddOutput(changeAddress, remainder); err != nil {
		return err
	}

	// change is a refund, not spending.
	b.amountSpent.Sub(b.amountSpent, remainder)
	b.refund = remainder
	b.state = StateBuilt

	return nil
}

// Sign produces signatures for every input according to its address type.
// Failed inputs abort the build unless signature errors are suppressed.
func (b *Builder) Sign(signer bitcoin.Signer) error {
	if b.state != StateBuilt {
		return bitcoin.NewConstructionError("transaction can not be signed in %s state", b.state)
	}

	fetcher := txscript.NewMultiPrevOutFetcher(b.prevOuts)
	sigHashes := txscript.NewTxSigHashes(b.tx, fetcher)
	for idx := range b.tx.TxIn {
		if b.signedInputs[idx] {
			continue
		}

		err := b.signInput(idx, signer, fetcher, sigHashes)
		if err != nil {
			if b.suppressSignatureError {
				continue
			}

			return err
		}

		b.signedInputs[idx] = true
	}

	for _, signed := range b.signedInputs {
		if !signed {
			return nil // stays built, completed by a later signing round.
		}
	}
	b.state = StateSigned

	return nil
}

// SignScriptPath signs input idx as a taproot script-path spend of leafScript
// and installs witness elements followed by the leaf script and control block.
func (b *Builder) SignScriptPath(idx int, leafScript, controlBlock []byte, witnessFn func(sigHash func(signer bitcoin.Signer) ([]byte, error)) (wire.TxWitness, error)) error {
	if b.state != StateBuilt {
		return bitcoin.NewConstructionError("transaction can not be signed in %s state", b.state)
	}
	if idx < 0 || idx >= len(b.tx.TxIn) {
		return bitcoin.NewConstructionError("input index %d is out of range", idx)
	}

	var (
		fetcher   = txscript.NewMultiPrevOutFetcher(b.prevOuts)
		sigHashes = txscript.NewTxSigHashes(b.tx, fetcher)
		tapLeaf   = txscript.NewBaseTapLeaf(leafScript)
	)

	sigHash := func(signer bitcoin.Signer) ([]byte, error) {
		hash, err := txscript.CalcTapscriptSignaturehash(sigHashes, txscript.SigHashDefault, b.tx, idx, fetcher, tapLeaf)
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

		return signature, nil
	}

	witness, err := witnessFn(sigHash)
	if err != nil {
		if b.suppressSignatureError {
			return nil
		}

		return err
	}

	b.tx.TxIn[idx].Witness = append(witness, leafScript, controlBlock)
	b.signedInputs[idx] = true

	for _, signed := range b.signedInputs {
		if !signed {
			return nil
		}
	}
	b.state = StateSigned

	return nil
}

// Finalize freezes the transaction and returns its serialized raw form.
func (b *Builder) Finalize() ([]byte, error) {
	if b.state == StateFinalized {
		return nil, bitcoin.NewConstructionError("transaction is already finalized")
	}
	if b.state != StateSigned {
		return nil, bitcoin.NewFinalizationError("not every input is signed")
	}

	w := bytes.NewBuffer(nil)
	if err := b.tx.Serialize(w); err != nil {
		return nil, err
	}

	b.state = StateFinalized

	return w.Bytes(), nil
}

// signInput dispatches signing by the utxo script class.
func (b *Builder) signInput(idx int, signer bitcoin.Signer, fetcher txscript.PrevOutputFetcher, sigHashes *txscript.TxSigHashes) error {
	var (
		utxo     = b.usedUTXOs[idx]
		prevOut  = b.prevOuts[b.tx.TxIn[idx].PreviousOutPoint]
		pkScript = prevOut.PkScript
	)

	switch txscript.GetScriptClass(pkScript) {
	case txscript.WitnessV1TaprootTy:
		taprootSigner, ok := signer.(bitcoin.TaprootSigner)
		if !ok {
			return bitcoin.NewSignatureError("input %d: signer can not produce tweaked taproot signatures", idx)
		}

		hash, err := txscript.CalcTaprootSignatureHash(sigHashes, txscript.SigHashDefault, b.tx, idx, fetcher)
		if err != nil {
			return bitcoin.NewSignatureError("taproot sighash for input %d: %v", idx, err)
		}

		signature, err := taprootSigner.SignSchnorrTweaked(hash, nil)
		if err != nil {
			return bitcoin.NewSignatureError("input %d: %v", idx, err)
		}

		b.tx.TxIn[idx].Witness = wire.TxWitness{signature}
	case txscript.WitnessV0PubKeyHashTy:
		hash, err := txscript.CalcWitnessSigHash(pkScript, sigHashes, signHashType, b.tx, idx, prevOut.Value)
		if err != nil {
			return bitcoin.NewSignatureError("witness sighash for input %d: %v", idx, err)
		}

		signature, err := signer.Sign(hash)
		if err != nil {
			return bitcoin.NewSignatureError("input %d: %v", idx, err)
		}

		b.tx.TxIn[idx].Witness = wire.TxWitness{
			append(signature, byte(signHashType)),
			signer.PublicKey().SerializeCompressed(),
		}
	case txscript.PubKeyHashTy:
		hash, err := txscript.CalcSignatureHash(pkScript, signHashType, b.tx, idx)
		if err != nil {
			return bitcoin.NewSignatureError("legacy sighash for input %d: %v", idx, err)
		}

		signature, err := signer.Sign(hash)
		if err != nil {
			return bitcoin.NewSignatureError("input %d: %v", idx, err)
		}

		sigScript, err := txscript.NewScriptBuilder().
			AddData(append(signature, byte(signHashType))).
			AddData(signer.PublicKey().SerializeCompressed()).
			Script()
		if err != nil {
			return err
		}

		b.tx.TxIn[idx].SignatureScript = sigScript
	default:
		return bitcoin.NewSignatureError("input %d: unsupported utxo script class for %q", idx, utxo.Address)
	}

	return nil
}

// SelectUTXOs picks utxos with the smallest count covering minAmount,
// preferring the closest-by-amount utxo first. The utxos must be sorted by
// amount descending.
func SelectUTXOs(utxos []bitcoin.UTXO, minAmount *big.Int) (usedUTXOs []*bitcoin.UTXO, totalAmount *big.Int, _ error) {
	if len(utxos) == 0 {
		return nil, nil, bitcoin.ErrInvalidUTXOAmount
	}

	// the closest by amount utxo that still covers minAmount, or the biggest.
	startIdx := 0
	for idx := range utxos {
		if numbers.IsGreater(minAmount, utxos[idx].Amount) {
			break
		}

		startIdx = idx
	}

	totalAmount = new(big.Int).Set(utxos[startIdx].Amount)
	usedUTXOs = append(usedUTXOs, &utxos[startIdx])
	if !numbers.IsGreater(minAmount, totalAmount) {
		return usedUTXOs, totalAmount, nil
	}

	// take the biggest remaining until minAmount is covered.
	for idx := range utxos {
		if idx == startIdx {
			continue
		}

		totalAmount.Add(totalAmount, utxos[idx].Amount)
		usedUTXOs = append(usedUTXOs, &utxos[idx])
		if !numbers.IsGreater(minAmount, totalAmount) {
			return usedUTXOs, totalAmount, nil
		}
	}

	return nil, nil, bitcoin.ErrInsufficientNativeBalance
}

// addressScript returns locking script of a decoded address.
func addressScript(address string, networkParams *chaincfg.Params) ([]byte, error) {
	decoded, err := btcutil.DecodeAddress(address, networkParams)
	if err != nil {
		return nil, bitcoin.NewConstructionError("malformed address %q: %v", address, err)
	}

	script, err := txscript.PayToAddrScript(decoded)
	if err != nil {
		return nil, bitcoin.NewConstructionError("address %q locking script: %v", address, err)
	}

	return script, nil
}

// inputWeightFor returns fee-estimation weight of a utxo by its script class.
func inputWeightFor(utxo *bitcoin.UTXO) InputWeight {
	switch txscript.GetScriptClass(utxo.Script) {
	case txscript.WitnessV0PubKeyHashTy:
		return PaymentInput()
	case txscript.PubKeyHashTy:
		// legacy inputs carry the signature in sigScript, no discount.
		return InputWeight{BaseSize: inputBaseSize + 1 + ecdsaSignatureSize + 1 + compressedKeySize}
	default:
		return KeySpendInput()
	}
}

// xOnly returns the 32-byte x-only form of a serialized public key.
func xOnly(publicKey []byte) []byte {
	if len(publicKey) == compressedKeySize {
		return publicKey[1:]
	}

	return publicKey
}

// hexTxID returns transaction id of tx in the display byte order.
func hexTxID(tx *wire.MsgTx) string {
	hash := tx.TxHash()
	return hash.String()
}
