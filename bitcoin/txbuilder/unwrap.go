// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"math/big"

	"github.com/btcsuite/btcd/chaincfg"

	"btcvm/bitcoin"
)

// UnwrapParams describes an unwrap: a burn call against the contract paired
// with a vault withdrawal releasing native satoshi to the receiver. The burn
// pair is signed by the sender alone, the withdrawal collects vault
// participant signatures separately.
type UnwrapParams struct {
	InteractionParams

	Vault           *ThresholdVault
	VaultUTXOs      []bitcoin.UTXO
	Amount          *big.Int
	ReceiverAddress string
}

// UnwrapResult holds both halves of an unwrap. The withdrawal is returned
// unsigned, callers route it through vault participants before broadcast.
type UnwrapResult struct {
	Burn       *PairResult
	Withdrawal *ThresholdBuilder
}

// UnwrapBuilder constructs unwrap burn pairs and their vault withdrawals.
type UnwrapBuilder struct {
	networkParams *chaincfg.Params
	pair          *PairBuilder
	cfg           bitcoin.Config
}

// NewUnwrapBuilder is a constructor for UnwrapBuilder.
func NewUnwrapBuilder(networkParams *chaincfg.Params, cfg bitcoin.Config) *UnwrapBuilder {
	return &UnwrapBuilder{
		networkParams: networkParams,
		pair:          NewPairBuilder(networkParams, cfg),
		cfg:           cfg,
	}
}

// Build produces the signed burn pair and the unsigned vault withdrawal.
func (b *UnwrapBuilder) Build(funding PairParams, params UnwrapParams) (*UnwrapResult, error) {
	if params.Vault == nil {
		return nil, bitcoin.NewConstructionError("unwrap: vault is missing")
	}

	op, err := newCallOperation(b.cfg, "unwrap", params.InteractionParams)
	if err != nil {
		return nil, err
	}

	funding.RevealAddress = params.ContractAddress
	burn, err := b.pair.Build(op, funding)
	if err != nil {
		return nil, err
	}

	withdrawal, err := NewThresholdBuilder(b.networkParams, b.cfg, params.Vault, WithdrawalParams{
		UTXOs:            params.VaultUTXOs,
		ReceiverAddress:  params.ReceiverAddress,
		Amount:           params.Amount,
		SatoshiPerKVByte: funding.SatoshiPerKVByte,
	})
	if err != nil {
		return nil, err
	}

	return &UnwrapResult{
		Burn:       burn,
		Withdrawal: withdrawal,
	}, nil
}
