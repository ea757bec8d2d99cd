// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package envelope

import (
	"encoding/binary"

	"btcvm/bitcoin"
)

// HeaderLength defines serialized envelope header length in bytes.
const HeaderLength = 12

// maxFeatureFlags defines the largest value featureFlags fits into 3 bytes.
const maxFeatureFlags = 0xffffff

// Header describes fixed-layout envelope header, the first pushed item of an
// envelope script.
//
//	┌──────────────┬───────┬────────────────────────────────────────┐
//	│    field     │ bytes │             description                │
//	├==============┼=======┼========================================┤
//	│ FirstKeyByte │     1 │ first byte of sender compressed key    │
//	├──────────────┼───────┼────────────────────────────────────────┤
//	│ FeatureFlags │     3 │ uint24 feature bitmask, big-endian     │
//	├──────────────┼───────┼────────────────────────────────────────┤
//	│ MaxPriority  │     8 │ uint64 satoshi amount, big-endian      │
//	│ Fee          │       │                                        │
//	└──────────────┴───────┴────────────────────────────────────────┘
type Header struct {
	FirstKeyByte   byte
	FeatureFlags   uint32 // uint24.
	MaxPriorityFee uint64
}

// Bytes returns 12-byte serialized header.
func (h Header) Bytes() ([]byte, error) {
	if h.FeatureFlags > maxFeatureFlags {
		return nil, bitcoin.NewConstructionError("feature flags 0x%x exceed uint24", h.FeatureFlags)
	}

	data := make([]byte, HeaderLength)
	data[0] = h.FirstKeyByte
	data[1] = byte(h.FeatureFlags >> 16)
	data[2] = byte(h.FeatureFlags >> 8)
	data[3] = byte(h.FeatureFlags)
	binary.BigEndian.PutUint64(data[4:], h.MaxPriorityFee)

	return data, nil
}

// ParseHeader restores Header from its 12-byte serialized form.
func ParseHeader(data []byte) (Header, error) {
	if len(data) != HeaderLength {
		return Header{}, bitcoin.NewConstructionError("envelope header must be %d bytes, got %d", HeaderLength, len(data))
	}

	return Header{
		FirstKeyByte:   data[0],
		FeatureFlags:   uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3]),
		MaxPriorityFee: binary.BigEndian.Uint64(data[4:]),
	}, nil
}
