// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"

	"btcvm/bitcoin"
	"btcvm/bitcoin/envelope"
)

// envelopeOperation implements Operation for envelope reveal spends shared by
// deployment, interaction, wrap and unwrap kinds.
//
// Reveal witness stack: [salt signature, sender signature, sender x-only key],
// matching the envelope script's sender hash+signature check followed by the
// counter-party salt key check.
type envelopeOperation struct {
	kind         string
	cfg          bitcoin.Config
	senderSigner bitcoin.Signer
	saltSigner   bitcoin.Signer
	compile      envelope.CompileParams
	extraOutputs []*wire.TxOut
}

// Kind returns operation name for error reporting.
func (op *envelopeOperation) Kind() string { return op.kind }

// RedeemScript compiles the envelope leaf script.
func (op *envelopeOperation) RedeemScript() ([]byte, error) {
	if op.saltSigner == nil {
		return nil, bitcoin.NewConstructionError("%s: salt signer is missing", op.kind)
	}

	return envelope.Compile(op.cfg, op.compile)
}

// WitnessElementSizes declares reveal witness element sizes for fee estimation.
func (op *envelopeOperation) WitnessElementSizes() []int {
	return []int{schnorrSignatureSize, schnorrSignatureSize, 32}
}

// SpendWitness produces reveal witness elements in stack order.
func (op *envelopeOperation) SpendWitness(sign func(bitcoin.Signer) ([]byte, error)) (wire.TxWitness, error) {
	saltSignature, err := sign(op.saltSigner)
	if err != nil {
		return nil, err
	}

	senderSignature, err := sign(op.senderSigner)
	if err != nil {
		return nil, err
	}

	return wire.TxWitness{
		saltSignature,
		senderSignature,
		xOnly(op.senderSigner.PublicKey().SerializeCompressed()),
	}, nil
}

// ExtraOutputs returns operation-specific reveal outputs.
func (op *envelopeOperation) ExtraOutputs() ([]*wire.TxOut, error) {
	return op.extraOutputs, nil
}

// DeploymentParams describes data needed to deploy contract bytecode.
type DeploymentParams struct {
	SenderSigner   bitcoin.Signer // contract deployer.
	SaltSigner     bitcoin.Signer // counter-party salt key holder.
	Challenge      bitcoin.ChallengeSolution
	Bytecode       []byte
	Calldata       []byte // optional constructor arguments.
	Features       []envelope.Feature
	MaxPriorityFee uint64
}

// DeploymentResult describes a built deployment pair. The contract address is
// the taproot address committing to the deployment envelope.
type DeploymentResult struct {
	*PairResult
	ContractAddress string
}

// DeploymentBuilder constructs contract deployment transaction pairs.
type DeploymentBuilder struct {
	pair *PairBuilder
	cfg  bitcoin.Config
}

// NewDeploymentBuilder is a constructor for DeploymentBuilder.
func NewDeploymentBuilder(networkParams *chaincfg.Params, cfg bitcoin.Config) *DeploymentBuilder {
	return &DeploymentBuilder{
		pair: NewPairBuilder(networkParams, cfg),
		cfg:  cfg,
	}
}

// Build produces the signed funding+reveal pair deploying params.Bytecode.
func (b *DeploymentBuilder) Build(funding PairParams, params DeploymentParams) (*DeploymentResult, error) {
	if params.SenderSigner == nil {
		return nil, bitcoin.NewConstructionError("deployment: sender signer is missing")
	}
	if funding.FundingSigner == nil {
		funding.FundingSigner = params.SenderSigner
	}

	op := &envelopeOperation{
		kind:         "deployment",
		cfg:          b.cfg,
		senderSigner: params.SenderSigner,
		saltSigner:   params.SaltSigner,
		compile: envelope.CompileParams{
			SenderPublicKey: params.SenderSigner.PublicKey().SerializeCompressed(),
			SaltPublicKey:   saltPublicKey(params.SaltSigner),
			Challenge:       params.Challenge,
			MaxPriorityFee:  params.MaxPriorityFee,
			Bytecode:        params.Bytecode,
			Calldata:        params.Calldata,
			Features:        params.Features,
		},
	}

	result, err := b.pair.Build(op, funding)
	if err != nil {
		return nil, err
	}

	return &DeploymentResult{
		PairResult:      result,
		ContractAddress: result.CommitAddress,
	}, nil
}

// saltPublicKey returns the x-only salt key or nil when the signer is absent,
// letting the compiler report the missing key uniformly.
func saltPublicKey(signer bitcoin.Signer) []byte {
	if signer == nil {
		return nil
	}

	return xOnly(signer.PublicKey().SerializeCompressed())
}
