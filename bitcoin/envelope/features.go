// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package envelope

import (
	"bytes"
	"encoding/binary"
	"io"
	"math/big"
	"sort"

	"github.com/aviate-labs/leb128"
	"github.com/golang/snappy"

	"btcvm/bitcoin"
)

// FeatureOpcode defines type byte of an envelope feature record.
type FeatureOpcode byte

const (
	// FeatureOpcodeAccessList defines access list feature record type.
	FeatureOpcodeAccessList FeatureOpcode = 0x01
	// FeatureOpcodeEpochSubmission defines epoch challenge submission
	// feature record type.
	FeatureOpcodeEpochSubmission FeatureOpcode = 0x02
)

// featureRecordHeaderLength defines serialized feature record header length:
// 1-byte opcode followed by 4-byte little-endian payload length.
const featureRecordHeaderLength = 5

// fieldLength defines length of fixed-size feature payload fields
// (contract addresses, storage pointers).
const fieldLength = 32

// Flag returns feature bit inside header FeatureFlags.
func (op FeatureOpcode) Flag() uint32 {
	return 1 << (byte(op) - 1)
}

// Feature describes a single envelope feature record. The set of
// implementations is closed: decoding matches opcodes exhaustively.
type Feature interface {
	// Opcode returns feature record type byte.
	Opcode() FeatureOpcode

	// encodePayload serializes feature data before compression.
	encodePayload() ([]byte, error)
}

// AccessListEntry maps a contract to storage pointers it preloads.
type AccessListEntry struct {
	Contract        []byte   // 32 bytes.
	StoragePointers [][]byte // 32 bytes each.
}

// AccessListFeature describes contract → storage-pointer preload map.
type AccessListFeature struct {
	Entries []AccessListEntry
}

// Opcode returns feature record type byte.
func (f *AccessListFeature) Opcode() FeatureOpcode { return FeatureOpcodeAccessList }

// encodePayload serializes entries sorted by contract so equal maps encode
// to equal bytes regardless of input order.
func (f *AccessListFeature) encodePayload() ([]byte, error) {
	entries := make([]AccessListEntry, len(f.Entries))
	copy(entries, f.Entries)
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].Contract, entries[j].Contract) < 0
	})

	payload, err := appendUvarint(nil, uint64(len(entries)))
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if len(entry.Contract) != fieldLength {
			return nil, bitcoin.NewConstructionError("access list contract must be %d bytes, got %d", fieldLength, len(entry.Contract))
		}

		payload = append(payload, entry.Contract...)
		payload, err = appendUvarint(payload, uint64(len(entry.StoragePointers)))
		if err != nil {
			return nil, err
		}

		for _, pointer := range entry.StoragePointers {
			if len(pointer) != fieldLength {
				return nil, bitcoin.NewConstructionError("storage pointer must be %d bytes, got %d", fieldLength, len(pointer))
			}

			payload = append(payload, pointer...)
		}
	}

	return payload, nil
}

// EpochSubmissionFeature embeds an externally validated epoch challenge proof.
type EpochSubmissionFeature struct {
	Challenge bitcoin.ChallengeSolution
}

// Opcode returns feature record type byte.
func (f *EpochSubmissionFeature) Opcode() FeatureOpcode { return FeatureOpcodeEpochSubmission }

func (f *EpochSubmissionFeature) encodePayload() ([]byte, error) {
	if err := f.Challenge.Validate(); err != nil {
		return nil, err
	}

	payload, err := appendUvarint(nil, uint64(len(f.Challenge.PublicKey)))
	if err != nil {
		return nil, err
	}

	payload = append(payload, f.Challenge.PublicKey...)
	payload = append(payload, f.Challenge.Solution...)
	payload, err = appendUvarint(payload, f.Challenge.Difficulty)
	if err != nil {
		return nil, err
	}

	payload, err = appendUvarint(payload, uint64(len(f.Challenge.Verification)))
	if err != nil {
		return nil, err
	}

	return append(payload, f.Challenge.Verification...), nil
}

// FeatureFlags returns uint24 bitmask of provided features.
func FeatureFlags(features []Feature) uint32 {
	var flags uint32
	for _, feature := range features {
		flags |= feature.Opcode().Flag()
	}

	return flags
}

// EncodeFeature serializes feature into a self-delimited record:
// [opcode] [compressed payload length, uint32 little-endian] [payload].
// The payload is compressed independently of other records.
func EncodeFeature(feature Feature) ([]byte, error) {
	payload, err := feature.encodePayload()
	if err != nil {
		return nil, err
	}

	compressed := snappy.Encode(nil, payload)
	record := make([]byte, featureRecordHeaderLength, featureRecordHeaderLength+len(compressed))
	record[0] = byte(feature.Opcode())
	binary.LittleEndian.PutUint32(record[1:], uint32(len(compressed)))

	return append(record, compressed...), nil
}

// DecodeFeature restores a Feature from its serialized record.
func DecodeFeature(record []byte) (Feature, error) {
	if len(record) < featureRecordHeaderLength {
		return nil, bitcoin.NewConstructionError("feature record is shorter than its header")
	}

	length := binary.LittleEndian.Uint32(record[1:featureRecordHeaderLength])
	if uint32(len(record)-featureRecordHeaderLength) != length {
		return nil, bitcoin.NewConstructionError("feature record length mismatch: declared %d, got %d",
			length, len(record)-featureRecordHeaderLength)
	}

	payload, err := snappy.Decode(nil, record[featureRecordHeaderLength:])
	if err != nil {
		return nil, err
	}

	switch FeatureOpcode(record[0]) {
	case FeatureOpcodeAccessList:
		return decodeAccessList(payload)
	case FeatureOpcodeEpochSubmission:
		return decodeEpochSubmission(payload)
	default:
		return nil, bitcoin.NewConstructionError("unrecognized feature opcode 0x%x", record[0])
	}
}

func decodeAccessList(payload []byte) (*AccessListFeature, error) {
	data := bytes.NewReader(payload)
	count, err := readUvarint(data)
	if err != nil {
		return nil, err
	}

	feature := &AccessListFeature{Entries: make([]AccessListEntry, 0, count)}
	for i := uint64(0); i < count; i++ {
		entry := AccessListEntry{Contract: make([]byte, fieldLength)}
		if _, err = io.ReadFull(data, entry.Contract); err != nil {
			return nil, bitcoin.NewConstructionError("access list contract is truncated")
		}

		pointers, err := readUvarint(data)
		if err != nil {
			return nil, err
		}

		entry.StoragePointers = make([][]byte, pointers)
		for j := uint64(0); j < pointers; j++ {
			entry.StoragePointers[j] = make([]byte, fieldLength)
			if _, err = io.ReadFull(data, entry.StoragePointers[j]); err != nil {
				return nil, bitcoin.NewConstructionError("storage pointer is truncated")
			}
		}

		feature.Entries = append(feature.Entries, entry)
	}

	return feature, nil
}

func decodeEpochSubmission(payload []byte) (*EpochSubmissionFeature, error) {
	data := bytes.NewReader(payload)
	keyLen, err := readUvarint(data)
	if err != nil {
		return nil, err
	}

	challenge := bitcoin.ChallengeSolution{
		PublicKey: make([]byte, keyLen),
		Solution:  make([]byte, bitcoin.SolutionLength),
	}
	if _, err = io.ReadFull(data, challenge.PublicKey); err != nil {
		return nil, bitcoin.NewConstructionError("challenge public key is truncated")
	}
	if _, err = io.ReadFull(data, challenge.Solution); err != nil {
		return nil, bitcoin.NewConstructionError("challenge solution is truncated")
	}

	challenge.Difficulty, err = readUvarint(data)
	if err != nil {
		return nil, err
	}

	verificationLen, err := readUvarint(data)
	if err != nil {
		return nil, err
	}

	if verificationLen > 0 {
		challenge.Verification = make([]byte, verificationLen)
		if _, err = io.ReadFull(data, challenge.Verification); err != nil {
			return nil, bitcoin.NewConstructionError("challenge verification is truncated")
		}
	}

	return &EpochSubmissionFeature{Challenge: challenge}, nil
}

// appendUvarint appends LEB128-encoded num to data.
func appendUvarint(data []byte, num uint64) ([]byte, error) {
	encoded, err := leb128.EncodeUnsigned(new(big.Int).SetUint64(num))
	if err != nil {
		return nil, err
	}

	return append(data, encoded...), nil
}

// readUvarint reads LEB128-encoded number from data.
func readUvarint(data *bytes.Reader) (uint64, error) {
	num, err := leb128.DecodeUnsigned(data)
	if err != nil {
		return 0, err
	}

	return num.Uint64(), nil
}
