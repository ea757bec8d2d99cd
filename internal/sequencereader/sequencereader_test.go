// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package sequencereader_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"btcvm/internal/sequencereader"
)

func TestSequenceReader(t *testing.T) {
	seq := []string{"a", "ab", "abc", "abcd"}

	t.Run("HasNext", func(t *testing.T) {
		sr := sequencereader.New(seq)
		require.True(t, sr.HasNext())

		_, _ = sr.Next()
		_, _ = sr.Next()
		_, _ = sr.Next()
		require.True(t, sr.HasNext())

		_, _ = sr.Next()
		require.False(t, sr.HasNext())
	})

	t.Run("Next", func(t *testing.T) {
		sr := sequencereader.New(seq)
		size := 0
		for _, tVal := range seq {
			val, err := sr.Next()
			require.NoError(t, err)
			require.Equal(t, tVal, val)
			size++
		}
		require.Equal(t, len(seq), size)

		_, err := sr.Next()
		require.Error(t, err)
	})

	t.Run("Peek", func(t *testing.T) {
		sr := sequencereader.New(seq)
		val, err := sr.Peek()
		require.NoError(t, err)
		require.Equal(t, seq[0], val)
		require.Equal(t, len(seq), sr.Len())

		_, _ = sr.Next()
		val, err = sr.Peek()
		require.NoError(t, err)
		require.Equal(t, seq[1], val)
	})

	t.Run("Take", func(t *testing.T) {
		sr := sequencereader.New(seq)
		taken, err := sr.Take(3)
		require.NoError(t, err)
		require.Equal(t, seq[:3], taken)
		require.Equal(t, 1, sr.Len())

		_, err = sr.Take(2)
		require.Error(t, err)

		taken, err = sr.Take(1)
		require.NoError(t, err)
		require.Equal(t, seq[3:], taken)
		require.False(t, sr.HasNext())
	})

	t.Run("Len", func(t *testing.T) {
		sr := sequencereader.New(seq)
		for left := len(seq); left > 0; left-- {
			require.Equal(t, left, sr.Len())
			_, _ = sr.Next()
		}
		require.Equal(t, 0, sr.Len())
		require.False(t, sr.HasNext())
	})

	t.Run("SequenceReader for int type", func(t *testing.T) {
		intSeq := []int{1, 2, 3, 4}
		sr := sequencereader.New[int](intSeq)
		require.EqualValues(t, 4, sr.Len())
		for i := 0; sr.HasNext(); i++ {
			val, err := sr.Next()
			require.NoError(t, err)
			require.EqualValues(t, intSeq[i], val)
		}
		_, err := sr.Next()
		require.Error(t, err)
	})
}
