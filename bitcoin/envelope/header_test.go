// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package envelope_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"btcvm/bitcoin"
	"btcvm/bitcoin/envelope"
)

func TestHeader(t *testing.T) {
	t.Run("Bytes", func(t *testing.T) {
		header := envelope.Header{
			FirstKeyByte:   0x03,
			FeatureFlags:   0x010203,
			MaxPriorityFee: 25000,
		}

		data, err := header.Bytes()
		require.NoError(t, err)
		require.Len(t, data, envelope.HeaderLength)
		require.EqualValues(t, []byte{0x03, 0x01, 0x02, 0x03, 0, 0, 0, 0, 0, 0, 0x61, 0xa8}, data)
	})

	t.Run("round trip", func(t *testing.T) {
		header := envelope.Header{
			FirstKeyByte:   0x02,
			FeatureFlags:   0xffffff,
			MaxPriorityFee: 1<<63 + 7,
		}

		data, err := header.Bytes()
		require.NoError(t, err)

		parsed, err := envelope.ParseHeader(data)
		require.NoError(t, err)
		require.Equal(t, header, parsed)
	})

	t.Run("flags overflow uint24", func(t *testing.T) {
		header := envelope.Header{FeatureFlags: 0x01000000}

		_, err := header.Bytes()
		require.Error(t, err)
		require.ErrorIs(t, err, bitcoin.ErrConstruction)
	})

	t.Run("wrong length", func(t *testing.T) {
		_, err := envelope.ParseHeader(make([]byte, 11))
		require.ErrorIs(t, err, bitcoin.ErrConstruction)

		_, err = envelope.ParseHeader(make([]byte, 13))
		require.ErrorIs(t, err, bitcoin.ErrConstruction)
	})
}
