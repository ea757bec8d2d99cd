// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"math/big"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"

	"btcvm/bitcoin"
	"btcvm/bitcoin/utils"
	"btcvm/internal/numbers"
)

// Operation supplies script tree and witness logic specific to a transaction
// kind. The shared fee, refund and signing plumbing lives in Builder and
// PairBuilder and never changes per operation.
type Operation interface {
	// Kind returns operation name for error reporting.
	Kind() string
	// RedeemScript compiles the target taproot leaf script.
	RedeemScript() ([]byte, error)
	// WitnessElementSizes declares byte sizes of witness elements preceding
	// the leaf script and control block, for fee estimation.
	WitnessElementSizes() []int
	// SpendWitness produces those witness elements. sign returns a BIP-340
	// signature over the reveal input tapscript sighash for the given signer.
	SpendWitness(sign func(bitcoin.Signer) ([]byte, error)) (wire.TxWitness, error)
	// ExtraOutputs returns operation-specific reveal outputs appended after
	// the primary output.
	ExtraOutputs() ([]*wire.TxOut, error)
}

// PairParams describes funding data shared by every linked-pair operation.
type PairParams struct {
	UTXOs            []bitcoin.UTXO // must be sorted by btc amount desc.
	FundingSigner    bitcoin.Signer // signs funding inputs, owns the commit internal key.
	ChangeAddress    string
	RevealAddress    string   // primary reveal output recipient, change address if empty.
	RevealValue      *big.Int // value of the primary reveal output, dust if nil.
	SatoshiPerKVByte *big.Int
}

// PairResult describes a linked funding+spend transaction pair ready for
// broadcast in order.
type PairResult struct {
	Funding       []byte // raw signed funding transaction.
	Reveal        []byte // raw signed reveal transaction.
	FundingTxID   string
	RevealTxID    string
	CommitAddress string // taproot address committing to the envelope tree.
	LeafScript    []byte
	ControlBlock  []byte
	TotalFee      *big.Int
}

// PairBuilder assembles a funding transaction committing to an operation's
// script tree and the reveal transaction spending it through the script path.
type PairBuilder struct {
	networkParams *chaincfg.Params
	cfg           bitcoin.Config
}

// NewPairBuilder is a constructor for PairBuilder.
func NewPairBuilder(networkParams *chaincfg.Params, cfg bitcoin.Config) *PairBuilder {
	return &PairBuilder{
		networkParams: networkParams,
		cfg:           cfg,
	}
}

// Build produces the linked pair for op.
//
//	funding tx                          reveal tx
//	┌─────────────┬──────────────┐      ┌─────────────┬──────────────┐
//	│ inputs      │ user utxos   │      │ input       │ commit utxo  │
//	├─────────────┼──────────────┤  ──► ├─────────────┼──────────────┤
//	│ output 0    │ commit utxo  │      │ output 0    │ primary      │
//	│ output 1    │ change       │      │ output 1..n │ op extras    │
//	└─────────────┴──────────────┘      └─────────────┴──────────────┘
func (pb *PairBuilder) Build(op Operation, params PairParams) (*PairResult, error) {
	if params.FundingSigner == nil {
		return nil, bitcoin.NewConstructionError("%s: funding signer is missing", op.Kind())
	}

	redeemScript, err := op.RedeemScript()
	if err != nil {
		return nil, err
	}

	// the constant fallback leaf guarantees funds are never stranded when
	// the redeem leaf becomes unspendable.
	internalKey := params.FundingSigner.PublicKey()
	lockScript, err := utils.NewLockLeafTapScript(xOnly(internalKey.SerializeCompressed()))
	if err != nil {
		return nil, err
	}

	tree, err := utils.NewTapScriptTreeFromRawScripts(redeemScript, lockScript)
	if err != nil {
		return nil, err
	}

	commitAddress, err := utils.NewTaprootAddressFromScripts(pb.networkParams, internalKey, redeemScript, lockScript)
	if err != nil {
		return nil, err
	}

	controlBlock, err := utils.ControlBlockBytes(tree, internalKey, 0)
	if err != nil {
		return nil, err
	}

	// reveal side first: its fee defines the commit output value.
	revealAddress := params.RevealAddress
	if revealAddress == "" {
		revealAddress = params.ChangeAddress
	}
	revealValue := params.RevealValue
	if revealValue == nil {
		revealValue = pb.cfg.DustThreshold
	}

	primaryScript, err := addressScript(revealAddress, pb.networkParams)
	if err != nil {
		return nil, err
	}

	extraOutputs, err := op.ExtraOutputs()
	if err != nil {
		return nil, err
	}

	var (
		revealOutScripts = []int{len(primaryScript)}
		revealSpent      = new(big.Int).Set(revealValue)
	)
	for _, out := range extraOutputs {
		revealOutScripts = append(revealOutScripts, len(out.PkScript))
		revealSpent.Add(revealSpent, big.NewInt(out.Value))
	}

	revealInput := ScriptSpendInput(len(redeemScript), op.WitnessElementSizes()...)
	revealFee := EstimateFee([]InputWeight{revealInput}, revealOutScripts, params.SatoshiPerKVByte)
	commitValue := new(big.Int).Add(revealSpent, revealFee)

	// funding side.
	fundingTx, fundingRaw, fundingFee, err := pb.buildFunding(params, commitAddress.EncodeAddress(), commitValue)
	if err != nil {
		return nil, err
	}

	// reveal spends the commit output through the redeem leaf.
	commitScript, err := addressScript(commitAddress.EncodeAddress(), pb.networkParams)
	if err != nil {
		return nil, err
	}

	reveal := NewBuilder(pb.networkParams, pb.cfg)
	err = reveal.AddInput(&bitcoin.UTXO{
		TxHash:  hexTxID(fundingTx),
		Index:   0,
		Amount:  commitValue,
		Script:  commitScript,
		Address: commitAddress.EncodeAddress(),
	})
	if err != nil {
		return nil, err
	}

	if err = reveal.AddOutputScript(primaryScript, revealValue); err != nil {
		return nil, err
	}
	for _, out := range extraOutputs {
		if err = reveal.AddOutputScript(out.PkScript, big.NewInt(out.Value)); err != nil {
			return nil, err
		}
	}

	if err = reveal.ApplyFeeAndChange(revealFee, params.ChangeAddress); err != nil {
		return nil, err
	}

	err = reveal.SignScriptPath(0, redeemScript, controlBlock, op.SpendWitness)
	if err != nil {
		return nil, err
	}

	revealRaw, err := reveal.Finalize()
	if err != nil {
		return nil, err
	}

	return &PairResult{
		Funding:       fundingRaw,
		Reveal:        revealRaw,
		FundingTxID:   hexTxID(fundingTx),
		RevealTxID:    hexTxID(reveal.Tx()),
		CommitAddress: commitAddress.EncodeAddress(),
		LeafScript:    redeemScript,
		ControlBlock:  controlBlock,
		TotalFee:      new(big.Int).Add(fundingFee, revealFee),
	}, nil
}

// buildFunding selects utxos for commitValue plus its own fee and returns the
// signed funding transaction.
func (pb *PairBuilder) buildFunding(params PairParams, commitAddress string, commitValue *big.Int) (*wire.MsgTx, []byte, *big.Int, error) {
	commitScript, err := addressScript(commitAddress, pb.networkParams)
	if err != nil {
		return nil, nil, nil, err
	}

	changeScript, err := addressScript(params.ChangeAddress, pb.networkParams)
	if err != nil {
		return nil, nil, nil, err
	}

	// selection and fee depend on each other, iterate until the input count
	// settles.
	var (
		selected []*bitcoin.UTXO
		fee      *big.Int
		count    = 1
	)
	for {
		inputs := make([]InputWeight, 0, count)
		for i := 0; i < count; i++ {
			weight := KeySpendInput()
			if i < len(selected) {
				weight = inputWeightFor(selected[i])
			}
			inputs = append(inputs, weight)
		}

		fee = EstimateFee(inputs, []int{len(commitScript), len(changeScript)}, params.SatoshiPerKVByte)
		selected, _, err = SelectUTXOs(params.UTXOs, new(big.Int).Add(commitValue, fee))
		if err != nil {
			return nil, nil, nil, err
		}
		if len(selected) == count {
			break
		}

		count = len(selected)
	}

	funding := NewBuilder(pb.networkParams, pb.cfg)
	for _, utxo := range selected {
		if err = funding.AddInput(utxo); err != nil {
			return nil, nil, nil, err
		}
	}

	if err = funding.AddOutputScript(commitScript, commitValue); err != nil {
		return nil, nil, nil, err
	}
	if err = funding.ApplyFeeAndChange(fee, params.ChangeAddress); err != nil {
		return nil, nil, nil, err
	}

	if err = funding.Sign(params.FundingSigner); err != nil {
		return nil, nil, nil, err
	}

	raw, err := funding.Finalize()
	if err != nil {
		return nil, nil, nil, err
	}

	// accounting drift guard.
	spent := new(big.Int).Add(funding.AmountSpent(), funding.Fee())
	spent.Add(spent, funding.Refund())
	if !numbers.IsEqual(spent, funding.TotalInputAmount()) {
		return nil, nil, nil, bitcoin.NewScriptIntegrityError("funding amounts do not balance")
	}

	return funding.Tx(), raw, funding.Fee(), nil
}
