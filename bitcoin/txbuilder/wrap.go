// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"math/big"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"

	"btcvm/bitcoin"
	"btcvm/internal/numbers"
)

// WrapParams describes a wrap call: a contract interaction whose reveal also
// deposits native satoshi into the vault, crediting the sender with wrapped
// funds inside the contract.
type WrapParams struct {
	InteractionParams

	Vault         *ThresholdVault
	DepositAmount *big.Int
}

// WrapBuilder constructs wrap transaction pairs.
type WrapBuilder struct {
	networkParams *chaincfg.Params
	pair          *PairBuilder
	cfg           bitcoin.Config
}

// NewWrapBuilder is a constructor for WrapBuilder.
func NewWrapBuilder(networkParams *chaincfg.Params, cfg bitcoin.Config) *WrapBuilder {
	return &WrapBuilder{
		networkParams: networkParams,
		pair:          NewPairBuilder(networkParams, cfg),
		cfg:           cfg,
	}
}

// Build produces the signed funding+reveal pair where the reveal pays the
// contract and carries the vault deposit output.
func (b *WrapBuilder) Build(funding PairParams, params WrapParams) (*PairResult, error) {
	if params.Vault == nil {
		return nil, bitcoin.NewConstructionError("wrap: vault is missing")
	}
	if params.DepositAmount == nil || numbers.IsLess(params.DepositAmount, b.cfg.DustThreshold) {
		return nil, bitcoin.NewConstructionError("wrap: deposit amount must be at least the dust threshold")
	}

	op, err := newCallOperation(b.cfg, "wrap", params.InteractionParams)
	if err != nil {
		return nil, err
	}

	vaultAddress, err := params.Vault.Address(b.networkParams)
	if err != nil {
		return nil, err
	}
	depositScript, err := addressScript(vaultAddress, b.networkParams)
	if err != nil {
		return nil, err
	}

	op.extraOutputs = []*wire.TxOut{wire.NewTxOut(params.DepositAmount.Int64(), depositScript)}
	funding.RevealAddress = params.ContractAddress

	return b.pair.Build(op, funding)
}
