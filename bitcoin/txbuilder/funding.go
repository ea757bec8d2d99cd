// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"math/big"

	"github.com/btcsuite/btcd/chaincfg"

	"btcvm/bitcoin"
	"btcvm/internal/numbers"
)

// TransferParams describes a plain native transfer with no envelope.
type TransferParams struct {
	UTXOs            []bitcoin.UTXO // must be sorted by btc amount desc.
	Signer           bitcoin.Signer
	ReceiverAddress  string
	Amount           *big.Int
	ChangeAddress    string
	SatoshiPerKVByte *big.Int
}

// TransferResult describes a built transfer transaction.
type TransferResult struct {
	Raw  []byte
	TxID string
	Fee  *big.Int
}

// TransferBuilder constructs single native transfer transactions. Used to
// fund operation wallets before a deployment or call pair is assembled.
type TransferBuilder struct {
	networkParams *chaincfg.Params
	cfg           bitcoin.Config
}

// NewTransferBuilder is a constructor for TransferBuilder.
func NewTransferBuilder(networkParams *chaincfg.Params, cfg bitcoin.Config) *TransferBuilder {
	return &TransferBuilder{
		networkParams: networkParams,
		cfg:           cfg,
	}
}

// Build produces a signed transfer of params.Amount to the receiver.
func (b *TransferBuilder) Build(params TransferParams) (*TransferResult, error) {
	if params.Signer == nil {
		return nil, bitcoin.NewConstructionError("transfer: signer is missing")
	}
	if params.Amount == nil || !numbers.IsPositive(params.Amount) {
		return nil, bitcoin.NewConstructionError("transfer: amount must be positive")
	}

	receiverScript, err := addressScript(params.ReceiverAddress, b.networkParams)
	if err != nil {
		return nil, err
	}
	changeScript, err := addressScript(params.ChangeAddress, b.networkParams)
	if err != nil {
		return nil, err
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

		fee = EstimateFee(inputs, []int{len(receiverScript), len(changeScript)}, params.SatoshiPerKVByte)
		selected, _, err = SelectUTXOs(params.UTXOs, new(big.Int).Add(params.Amount, fee))
		if err != nil {
			return nil, err
		}
		if len(selected) == count {
			break
		}

		count = len(selected)
	}

	builder := NewBuilder(b.networkParams, b.cfg)
	for _, utxo := range selected {
		if err = builder.AddInput(utxo); err != nil {
			return nil, err
		}
	}

	if err = builder.AddOutputScript(receiverScript, params.Amount); err != nil {
		return nil, err
	}
	if err = builder.ApplyFeeAndChange(fee, params.ChangeAddress); err != nil {
		return nil, err
	}

	if err = builder.Sign(params.Signer); err != nil {
		return nil, err
	}

	raw, err := builder.Finalize()
	if err != nil {
		return nil, err
	}

	return &TransferResult{
		Raw:  raw,
		TxID: hexTxID(builder.Tx()),
		Fee:  builder.Fee(),
	}, nil
}
