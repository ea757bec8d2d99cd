// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package envelope

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"

	"github.com/btcsuite/btcd/txscript"

	"btcvm/bitcoin"
	"btcvm/internal/sequencereader"
)

const (
	// senderKeyLength defines length of the sender compressed public key.
	senderKeyLength = 33
	// saltKeyLength defines length of the counter-party x-only salt key.
	saltKeyLength = 32
)

// CompileParams describes data needed to compile an envelope script.
type CompileParams struct {
	SenderPublicKey []byte // 33-byte compressed key, owner of the envelope.
	SaltPublicKey   []byte // 32-byte x-only counter-party key.
	Challenge       bitcoin.ChallengeSolution
	MaxPriorityFee  uint64
	Bytecode        []byte    // main payload.
	Calldata        []byte    // optional.
	Features        []Feature // optional.
}

// Envelope describes data recovered from a compiled envelope script.
type Envelope struct {
	Header             Header
	ChallengePublicKey []byte
	ChallengeSolution  []byte
	SenderKeyHash      []byte // sha256 of the sender x-only key.
	SaltPublicKey      []byte
	SaltCommitment     []byte
	BytecodeCommitment []byte
	Features           []Feature
	Calldata           []byte
	Bytecode           []byte
}

// Compile builds the envelope script embedding protocol payload inside a
// redeemable taproot leaf.
//
//	Script layout:
//	┌────────────────────────────────────────────┬─────────────────────────┐
//	│ <header:12>            OP_TOALTSTACK       │ alt-stack protocol data │
//	│ <challenge key>        OP_TOALTSTACK       │                         │
//	│ <challenge solution>   OP_TOALTSTACK       │                         │
//	├────────────────────────────────────────────┼─────────────────────────┤
//	│ OP_DUP OP_SHA256 <keyHash> OP_EQUALVERIFY  │ sender ownership        │
//	│ OP_CHECKSIGVERIFY                          │                         │
//	├────────────────────────────────────────────┼─────────────────────────┤
//	│ <saltHash> <saltHash> OP_EQUALVERIFY       │ commitments             │
//	│ <codeHash> <codeHash> OP_EQUALVERIFY       │                         │
//	├────────────────────────────────────────────┼─────────────────────────┤
//	│ <salt key> OP_CHECKSIG                     │ counter-party consent,  │
//	│                                            │ the one item left on    │
//	│                                            │ the stack               │
//	├────────────────────────────────────────────┼─────────────────────────┤
//	│ OP_0 OP_IF                                 │ payload branch: parsed  │
//	│   <magic> <features…> OP_1NEGATE           │ by indexers, never      │
//	│   <calldata…> OP_1NEGATE <bytecode…>       │ executed                │
//	│ OP_ENDIF                                   │                         │
//	└────────────────────────────────────────────┴─────────────────────────┘
//
// The spending witness is [salt signature][sender signature][sender x-only
// key]. The signature checks consume all three elements and the final
// OP_CHECKSIG leaves its result as the single stack item consensus requires;
// the payload branch is gated by a constant false so it contributes nothing
// at execution time.
func Compile(cfg bitcoin.Config, params CompileParams) ([]byte, error) {
	if len(params.SenderPublicKey) != senderKeyLength {
		return nil, bitcoin.NewConstructionError("sender public key must be %d bytes, got %d", senderKeyLength, len(params.SenderPublicKey))
	}
	if len(params.SaltPublicKey) == 0 {
		return nil, bitcoin.NewConstructionError("salt public key is missing")
	}
	if len(params.SaltPublicKey) != saltKeyLength {
		return nil, bitcoin.NewConstructionError("salt public key must be %d bytes, got %d", saltKeyLength, len(params.SaltPublicKey))
	}
	if len(params.Bytecode) == 0 {
		return nil, bitcoin.NewConstructionError("bytecode payload is empty")
	}
	if err := params.Challenge.Validate(); err != nil {
		return nil, err
	}

	header := Header{
		FirstKeyByte:   params.SenderPublicKey[0],
		FeatureFlags:   FeatureFlags(params.Features),
		MaxPriorityFee: params.MaxPriorityFee,
	}
	headerBytes, err := header.Bytes()
	if err != nil {
		return nil, err
	}

	var (
		senderXOnly  = params.SenderPublicKey[1:]
		senderHash   = sha256.Sum256(senderXOnly)
		saltHash     = sha256.Sum256(params.SaltPublicKey)
		bytecodeHash = sha256.Sum256(params.Bytecode)
	)

	scriptBuilder := txscript.NewScriptBuilder()

	// alt-stack protocol data, proves epoch-reward eligibility on spend.
	scriptBuilder.AddData(headerBytes).AddOp(txscript.OP_TOALTSTACK)
	scriptBuilder.AddData(params.Challenge.PublicKey).AddOp(txscript.OP_TOALTSTACK)
	scriptBuilder.AddData(params.Challenge.Solution).AddOp(txscript.OP_TOALTSTACK)

	// sender ownership: witness carries the x-only key and its signature.
	scriptBuilder.AddOp(txscript.OP_DUP).AddOp(txscript.OP_SHA256).
		AddData(senderHash[:]).AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIGVERIFY)

	// salt and bytecode hash commitments, self-consuming.
	scriptBuilder.AddData(saltHash[:]).AddData(saltHash[:]).AddOp(txscript.OP_EQUALVERIFY)
	scriptBuilder.AddData(bytecodeHash[:]).AddData(bytecodeHash[:]).AddOp(txscript.OP_EQUALVERIFY)

	// counter-party salt key consent. A plain OP_CHECKSIG: its result is the
	// single stack element left after execution.
	scriptBuilder.AddData(params.SaltPublicKey).AddOp(txscript.OP_CHECKSIG)

	// payload branch behind a constant false, parsed but never executed.
	scriptBuilder.AddOp(txscript.OP_0).AddOp(txscript.OP_IF)

	addPayloadPush(scriptBuilder, cfg.EnvelopeMagic)
	for _, feature := range params.Features {
		record, err := EncodeFeature(feature)
		if err != nil {
			return nil, err
		}

		for _, chunk := range ChunkPayload(record, cfg.MaxChunkSize) {
			addPayloadPush(scriptBuilder, chunk)
		}
	}

	scriptBuilder.AddOp(txscript.OP_1NEGATE)
	for _, chunk := range ChunkPayload(params.Calldata, cfg.MaxChunkSize) {
		addPayloadPush(scriptBuilder, chunk)
	}

	scriptBuilder.AddOp(txscript.OP_1NEGATE)
	for _, chunk := range ChunkPayload(params.Bytecode, cfg.MaxChunkSize) {
		addPayloadPush(scriptBuilder, chunk)
	}

	scriptBuilder.AddOp(txscript.OP_ENDIF)

	script, err := scriptBuilder.Script()
	if err != nil {
		return nil, bitcoin.NewScriptIntegrityError("envelope script assembly: %v", err)
	}

	// compiler-bug guard: the script must decompile back to the same payload.
	parsed, err := Parse(script)
	if err != nil {
		return nil, bitcoin.NewScriptIntegrityError("compiled envelope does not decompile: %v", err)
	}
	if !bytes.Equal(parsed.Bytecode, params.Bytecode) || !bytes.Equal(parsed.Calldata, params.Calldata) {
		return nil, bitcoin.NewScriptIntegrityError("decompiled payload differs from compiled payload")
	}

	return script, nil
}

// addPayloadPush appends chunk as an explicit data push. ScriptBuilder.AddData
// canonicalizes single-byte pushes of 0x00, 0x01-0x10 and 0x81 into small
// integer opcodes, which loses the byte on decompilation and collides with the
// OP_1NEGATE section sentinel; payload chunks therefore always stay real data
// pushes. Minimal-push rules bind executed opcodes only, the payload branch is
// never executed.
func addPayloadPush(scriptBuilder *txscript.ScriptBuilder, chunk []byte) {
	if len(chunk) == 1 {
		scriptBuilder.AddOps([]byte{txscript.OP_DATA_1, chunk[0]})
		return
	}

	scriptBuilder.AddData(chunk)
}

// Parse restores Envelope from a compiled envelope script.
func Parse(script []byte) (*Envelope, error) {
	sr, err := tokenize(script)
	if err != nil {
		return nil, err
	}

	envelope := new(Envelope)

	// alt-stack region: header, challenge public key, challenge solution.
	headerBytes, err := takeAltStackPush(sr)
	if err != nil {
		return nil, err
	}
	if envelope.Header, err = ParseHeader(headerBytes); err != nil {
		return nil, err
	}
	if envelope.ChallengePublicKey, err = takeAltStackPush(sr); err != nil {
		return nil, err
	}
	if envelope.ChallengeSolution, err = takeAltStackPush(sr); err != nil {
		return nil, err
	}
	if len(envelope.ChallengeSolution) != bitcoin.SolutionLength {
		return nil, bitcoin.NewConstructionError("challenge solution must be %d bytes, got %d",
			bitcoin.SolutionLength, len(envelope.ChallengeSolution))
	}

	// sender ownership section.
	if err = expectOps(sr, txscript.OP_DUP, txscript.OP_SHA256); err != nil {
		return nil, err
	}
	if envelope.SenderKeyHash, err = takePush(sr); err != nil {
		return nil, err
	}
	if err = expectOps(sr, txscript.OP_EQUALVERIFY, txscript.OP_CHECKSIGVERIFY); err != nil {
		return nil, err
	}

	// commitments.
	if envelope.SaltCommitment, err = takeCommitment(sr); err != nil {
		return nil, err
	}
	if envelope.BytecodeCommitment, err = takeCommitment(sr); err != nil {
		return nil, err
	}

	// counter-party salt key, the final executed check.
	if envelope.SaltPublicKey, err = takePush(sr); err != nil {
		return nil, err
	}
	if len(envelope.SaltPublicKey) != saltKeyLength {
		return nil, bitcoin.NewConstructionError("salt public key must be %d bytes, got %d", saltKeyLength, len(envelope.SaltPublicKey))
	}
	if err = expectOps(sr, txscript.OP_CHECKSIG); err != nil {
		return nil, err
	}

	// payload branch gate.
	if err = expectOps(sr, txscript.OP_0, txscript.OP_IF); err != nil {
		return nil, err
	}

	// magic then feature blobs up to the first sentinel.
	if _, err = takePush(sr); err != nil {
		return nil, err
	}
	featureData, err := collectSection(sr, txscript.OP_1NEGATE)
	if err != nil {
		return nil, err
	}
	if envelope.Features, err = decodeFeatureSection(featureData); err != nil {
		return nil, err
	}

	if envelope.Calldata, err = collectSection(sr, txscript.OP_1NEGATE); err != nil {
		return nil, err
	}
	if envelope.Bytecode, err = collectSection(sr, txscript.OP_ENDIF); err != nil {
		return nil, err
	}

	return envelope, nil
}

// ChunkPayload splits payload into pushes of at most size bytes.
// Concatenation of the chunks reproduces payload exactly.
func ChunkPayload(payload []byte, size int) [][]byte {
	if len(payload) == 0 {
		return nil
	}

	chunks := make([][]byte, 0, (len(payload)/size)+1)
	start := 0
	end := size
	for len(payload) >= end {
		chunks = append(chunks, payload[start:end])
		start = end
		end += size
	}

	if start < len(payload) {
		chunks = append(chunks, payload[start:])
	}

	return chunks
}

// decodeFeatureSection walks concatenated feature blobs, each self-delimited
// by the length prefix inside its record header.
func decodeFeatureSection(data []byte) ([]Feature, error) {
	var features []Feature
	for len(data) > 0 {
		if len(data) < featureRecordHeaderLength {
			return nil, bitcoin.NewConstructionError("feature section is truncated")
		}

		recordLen := featureRecordHeaderLength + int(binary.LittleEndian.Uint32(data[1:featureRecordHeaderLength]))
		if recordLen > len(data) {
			return nil, bitcoin.NewConstructionError("feature record overruns its section")
		}

		feature, err := DecodeFeature(data[:recordLen])
		if err != nil {
			return nil, err
		}

		features = append(features, feature)
		data = data[recordLen:]
	}

	return features, nil
}

// scriptToken is one tokenized script element: a data push carries its bytes,
// a plain opcode carries none.
type scriptToken struct {
	opcode byte
	data   []byte
}

// tokenize splits script into opcode-level tokens. Working on raw opcodes
// keeps single-byte payload pushes and sentinel opcodes distinguishable,
// which string disassembly can not guarantee.
func tokenize(script []byte) (*sequencereader.SequenceReader[scriptToken], error) {
	var tokens []scriptToken

	tokenizer := txscript.MakeScriptTokenizer(0, script)
	for tokenizer.Next() {
		tokens = append(tokens, scriptToken{
			opcode: tokenizer.Opcode(),
			data:   tokenizer.Data(),
		})
	}
	if err := tokenizer.Err(); err != nil {
		return nil, bitcoin.NewScriptIntegrityError("envelope script tokenization: %v", err)
	}

	return sequencereader.New(tokens), nil
}

// collectSection concatenates data pushes until the terminator opcode,
// consuming the terminator.
func collectSection(sr *sequencereader.SequenceReader[scriptToken], terminator byte) ([]byte, error) {
	var section []byte
	for {
		token, err := sr.Peek()
		if err != nil {
			return nil, bitcoin.NewConstructionError("envelope payload section is not terminated")
		}

		if len(token.data) == 0 {
			if token.opcode != terminator {
				return nil, bitcoin.NewConstructionError("unexpected opcode 0x%02x inside a payload section", token.opcode)
			}

			_, _ = sr.Next()

			return section, nil
		}

		_, _ = sr.Next()
		section = append(section, token.data...)
	}
}

// takeAltStackPush consumes a data push followed by OP_TOALTSTACK.
func takeAltStackPush(sr *sequencereader.SequenceReader[scriptToken]) ([]byte, error) {
	data, err := takePush(sr)
	if err != nil {
		return nil, err
	}

	return data, expectOps(sr, txscript.OP_TOALTSTACK)
}

// takeCommitment consumes a doubled hash push with its OP_EQUALVERIFY.
func takeCommitment(sr *sequencereader.SequenceReader[scriptToken]) ([]byte, error) {
	first, err := takePush(sr)
	if err != nil {
		return nil, err
	}

	second, err := takePush(sr)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(first, second) {
		return nil, bitcoin.NewConstructionError("commitment halves differ")
	}

	return first, expectOps(sr, txscript.OP_EQUALVERIFY)
}

// takePush consumes a non-empty data push.
func takePush(sr *sequencereader.SequenceReader[scriptToken]) ([]byte, error) {
	token, err := sr.Next()
	if err != nil {
		return nil, bitcoin.NewConstructionError("envelope script is truncated")
	}
	if len(token.data) == 0 {
		return nil, bitcoin.NewConstructionError("script opcode 0x%02x where a data push is expected", token.opcode)
	}

	return token.data, nil
}

// expectOps consumes exactly the given plain opcodes.
func expectOps(sr *sequencereader.SequenceReader[scriptToken], opcodes ...byte) error {
	tokens, err := sr.Take(len(opcodes))
	if err != nil {
		return bitcoin.NewConstructionError("envelope script is truncated")
	}

	for i, token := range tokens {
		if len(token.data) != 0 || token.opcode != opcodes[i] {
			return bitcoin.NewConstructionError("unexpected script opcode 0x%02x, want 0x%02x", token.opcode, opcodes[i])
		}
	}

	return nil
}
