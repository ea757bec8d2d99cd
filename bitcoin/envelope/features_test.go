// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package envelope_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"btcvm/bitcoin"
	"btcvm/bitcoin/envelope"
)

func repeated(b byte, n int) []byte {
	return bytes.Repeat([]byte{b}, n)
}

func TestFeatures(t *testing.T) {
	accessList := &envelope.AccessListFeature{
		Entries: []envelope.AccessListEntry{
			{
				Contract:        repeated(0xaa, 32),
				StoragePointers: [][]byte{repeated(0x01, 32), repeated(0x02, 32)},
			},
			{
				Contract:        repeated(0x0b, 32),
				StoragePointers: [][]byte{repeated(0x03, 32)},
			},
		},
	}

	epochSubmission := &envelope.EpochSubmissionFeature{
		Challenge: bitcoin.ChallengeSolution{
			PublicKey:    repeated(0x02, 33),
			Solution:     repeated(0x5f, 32),
			Difficulty:   184467,
			Verification: []byte("preimage-proof"),
		},
	}

	t.Run("record layout", func(t *testing.T) {
		record, err := envelope.EncodeFeature(accessList)
		require.NoError(t, err)
		require.EqualValues(t, envelope.FeatureOpcodeAccessList, record[0])
		require.EqualValues(t, len(record)-5, binary.LittleEndian.Uint32(record[1:5]))
	})

	t.Run("access list round trip", func(t *testing.T) {
		record, err := envelope.EncodeFeature(accessList)
		require.NoError(t, err)

		decoded, err := envelope.DecodeFeature(record)
		require.NoError(t, err)

		restored, ok := decoded.(*envelope.AccessListFeature)
		require.True(t, ok)
		// entries are canonicalized by contract bytes on encode.
		require.Len(t, restored.Entries, 2)
		require.Equal(t, accessList.Entries[1], restored.Entries[0])
		require.Equal(t, accessList.Entries[0], restored.Entries[1])
	})

	t.Run("access list entry order does not change bytes", func(t *testing.T) {
		shuffled := &envelope.AccessListFeature{
			Entries: []envelope.AccessListEntry{accessList.Entries[1], accessList.Entries[0]},
		}

		recordA, err := envelope.EncodeFeature(accessList)
		require.NoError(t, err)
		recordB, err := envelope.EncodeFeature(shuffled)
		require.NoError(t, err)
		require.Equal(t, recordA, recordB)
	})

	t.Run("epoch submission round trip", func(t *testing.T) {
		record, err := envelope.EncodeFeature(epochSubmission)
		require.NoError(t, err)

		decoded, err := envelope.DecodeFeature(record)
		require.NoError(t, err)

		restored, ok := decoded.(*envelope.EpochSubmissionFeature)
		require.True(t, ok)
		require.Equal(t, epochSubmission.Challenge, restored.Challenge)
	})

	t.Run("feature flags", func(t *testing.T) {
		require.EqualValues(t, 0b01, envelope.FeatureFlags([]envelope.Feature{accessList}))
		require.EqualValues(t, 0b10, envelope.FeatureFlags([]envelope.Feature{epochSubmission}))
		require.EqualValues(t, 0b11, envelope.FeatureFlags([]envelope.Feature{accessList, epochSubmission}))
		require.Zero(t, envelope.FeatureFlags(nil))
	})

	t.Run("wrong pointer length", func(t *testing.T) {
		malformed := &envelope.AccessListFeature{
			Entries: []envelope.AccessListEntry{{
				Contract:        repeated(0xaa, 32),
				StoragePointers: [][]byte{repeated(0x01, 31)},
			}},
		}

		_, err := envelope.EncodeFeature(malformed)
		require.ErrorIs(t, err, bitcoin.ErrConstruction)
	})

	t.Run("wrong contract length", func(t *testing.T) {
		malformed := &envelope.AccessListFeature{
			Entries: []envelope.AccessListEntry{{Contract: repeated(0xaa, 20)}},
		}

		_, err := envelope.EncodeFeature(malformed)
		require.ErrorIs(t, err, bitcoin.ErrConstruction)
	})

	t.Run("wrong solution length", func(t *testing.T) {
		malformed := &envelope.EpochSubmissionFeature{
			Challenge: bitcoin.ChallengeSolution{
				PublicKey: repeated(0x02, 33),
				Solution:  repeated(0x5f, 31),
			},
		}

		_, err := envelope.EncodeFeature(malformed)
		require.ErrorIs(t, err, bitcoin.ErrConstruction)
	})

	t.Run("unrecognized opcode", func(t *testing.T) {
		record, err := envelope.EncodeFeature(accessList)
		require.NoError(t, err)

		record[0] = 0x7f
		_, err = envelope.DecodeFeature(record)
		require.ErrorIs(t, err, bitcoin.ErrConstruction)
	})

	t.Run("length mismatch", func(t *testing.T) {
		record, err := envelope.EncodeFeature(accessList)
		require.NoError(t, err)

		_, err = envelope.DecodeFeature(record[:len(record)-1])
		require.ErrorIs(t, err, bitcoin.ErrConstruction)
	})
}
