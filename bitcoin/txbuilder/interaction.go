// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"github.com/btcsuite/btcd/chaincfg"

	"btcvm/bitcoin"
	"btcvm/bitcoin/envelope"
)

// InteractionParams describes a call into an already deployed contract.
// Calldata is carried in the envelope payload section and the reveal pays the
// contract address, linking the call to the deployment on chain.
type InteractionParams struct {
	SenderSigner    bitcoin.Signer
	SaltSigner      bitcoin.Signer
	Challenge       bitcoin.ChallengeSolution
	ContractAddress string
	Calldata        []byte
	Features        []envelope.Feature
	MaxPriorityFee  uint64
}

// InteractionBuilder constructs contract interaction transaction pairs.
type InteractionBuilder struct {
	pair *PairBuilder
	cfg  bitcoin.Config
}

// NewInteractionBuilder is a constructor for InteractionBuilder.
func NewInteractionBuilder(networkParams *chaincfg.Params, cfg bitcoin.Config) *InteractionBuilder {
	return &InteractionBuilder{
		pair: NewPairBuilder(networkParams, cfg),
		cfg:  cfg,
	}
}

// Build produces the signed funding+reveal pair carrying params.Calldata.
func (b *InteractionBuilder) Build(funding PairParams, params InteractionParams) (*PairResult, error) {
	op, err := newCallOperation(b.cfg, "interaction", params)
	if err != nil {
		return nil, err
	}

	// reveal pays the contract, linking the call to the deployment.
	funding.RevealAddress = params.ContractAddress

	return b.pair.Build(op, funding)
}

// newCallOperation validates contract call params and assembles the envelope
// operation shared by interaction, wrap and unwrap kinds.
func newCallOperation(cfg bitcoin.Config, kind string, params InteractionParams) (*envelopeOperation, error) {
	if params.SenderSigner == nil {
		return nil, bitcoin.NewConstructionError("%s: sender signer is missing", kind)
	}
	if len(params.Calldata) == 0 {
		return nil, bitcoin.NewConstructionError("%s: calldata is empty", kind)
	}
	if params.ContractAddress == "" {
		return nil, bitcoin.NewConstructionError("%s: contract address is missing", kind)
	}

	return &envelopeOperation{
		kind:         kind,
		cfg:          cfg,
		senderSigner: params.SenderSigner,
		saltSigner:   params.SaltSigner,
		compile: envelope.CompileParams{
			SenderPublicKey: params.SenderSigner.PublicKey().SerializeCompressed(),
			SaltPublicKey:   saltPublicKey(params.SaltSigner),
			Challenge:       params.Challenge,
			MaxPriorityFee:  params.MaxPriorityFee,
			Bytecode:        params.Calldata,
			Features:        params.Features,
		},
	}, nil
}
