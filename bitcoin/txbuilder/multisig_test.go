// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder_test

import (
	"bytes"
	"math/big"
	"sort"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"btcvm/bitcoin"
	"btcvm/bitcoin/signer"
	"btcvm/bitcoin/txbuilder"
)

// testVault builds a 2-of-3 vault with fresh participant keys.
func testVault(t *testing.T) (*txbuilder.ThresholdVault, []*signer.LocalSigner) {
	t.Helper()

	signers := make([]*signer.LocalSigner, 3)
	publicKeys := make([][]byte, 3)
	for i := range signers {
		localSigner, err := signer.GenerateLocalSigner()
		require.NoError(t, err)

		signers[i] = localSigner
		publicKeys[i] = localSigner.PublicKey().SerializeCompressed()
	}

	internalSigner, err := signer.GenerateLocalSigner()
	require.NoError(t, err)

	vault, err := txbuilder.NewThresholdVault(publicKeys, 2, internalSigner.PublicKey().SerializeCompressed())
	require.NoError(t, err)

	// canonical ascending order of the participant signers.
	sort.Slice(signers, func(i, j int) bool {
		return vault.KeyIndex(signers[i].PublicKey().SerializeCompressed()) <
			vault.KeyIndex(signers[j].PublicKey().SerializeCompressed())
	})

	return vault, signers
}

// testVaultUTXO fabricates a utxo locked to the vault address.
func testVaultUTXO(t *testing.T, vault *txbuilder.ThresholdVault, amount int64, seed byte) bitcoin.UTXO {
	t.Helper()

	address, err := vault.Address(testNetworkParams)
	require.NoError(t, err)

	decoded, err := btcutil.DecodeAddress(address, testNetworkParams)
	require.NoError(t, err)
	script, err := txscript.PayToAddrScript(decoded)
	require.NoError(t, err)

	return testUTXO(t, script, address, amount, seed)
}

func TestNewThresholdVault(t *testing.T) {
	localSigner, err := signer.GenerateLocalSigner()
	require.NoError(t, err)
	otherSigner, err := signer.GenerateLocalSigner()
	require.NoError(t, err)

	var (
		key         = localSigner.PublicKey().SerializeCompressed()
		otherKey    = otherSigner.PublicKey().SerializeCompressed()
		internalKey = key
	)

	tests := []struct {
		name       string
		publicKeys [][]byte
		minimum    int
	}{
		{name: "minimum below two", publicKeys: [][]byte{key, otherKey}, minimum: 1},
		{name: "fewer keys than minimum", publicKeys: [][]byte{key, otherKey}, minimum: 3},
		{name: "duplicates collapse below minimum", publicKeys: [][]byte{key, key, key}, minimum: 3},
		{name: "malformed key", publicKeys: [][]byte{key, {0x01, 0x02}}, minimum: 2},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := txbuilder.NewThresholdVault(test.publicKeys, test.minimum, internalKey)
			require.ErrorIs(t, err, bitcoin.ErrConstruction)
		})
	}

	t.Run("canonical key order", func(t *testing.T) {
		// duplicated and unordered input keys, mixed serializations.
		vault, err := txbuilder.NewThresholdVault([][]byte{otherKey, key, otherKey, key[1:]}, 2, internalKey)
		require.NoError(t, err)
		require.Equal(t, 2, vault.Size())
		require.Equal(t, 2, vault.Minimum())

		keys := vault.PublicKeys()
		require.Len(t, keys, 2)
		require.True(t, bytes.Compare(keys[0], keys[1]) < 0)

		// both serializations resolve to the same slot.
		require.Equal(t, vault.KeyIndex(key), vault.KeyIndex(key[1:]))
		require.GreaterOrEqual(t, vault.KeyIndex(key), 0)

		unknownSigner, err := signer.GenerateLocalSigner()
		require.NoError(t, err)
		require.Equal(t, -1, vault.KeyIndex(unknownSigner.PublicKey().SerializeCompressed()))
	})

	t.Run("deterministic leaf script", func(t *testing.T) {
		first, err := txbuilder.NewThresholdVault([][]byte{key, otherKey}, 2, internalKey)
		require.NoError(t, err)
		second, err := txbuilder.NewThresholdVault([][]byte{otherKey, key[1:]}, 2, internalKey)
		require.NoError(t, err)

		firstScript, err := first.ThresholdScript()
		require.NoError(t, err)
		secondScript, err := second.ThresholdScript()
		require.NoError(t, err)
		require.Equal(t, firstScript, secondScript)

		firstAddress, err := first.Address(testNetworkParams)
		require.NoError(t, err)
		secondAddress, err := second.Address(testNetworkParams)
		require.NoError(t, err)
		require.Equal(t, firstAddress, secondAddress)
	})
}

func TestThresholdBuilderSigning(t *testing.T) {
	cfg := bitcoin.DefaultConfig()
	vault, signers := testVault(t)

	receiverSigner, err := signer.GenerateLocalSigner()
	require.NoError(t, err)
	receiverAddress, _ := testPaymentAddress(t, receiverSigner)

	newWithdrawal := func(t *testing.T) *txbuilder.ThresholdBuilder {
		builder, err := txbuilder.NewThresholdBuilder(testNetworkParams, cfg, vault, txbuilder.WithdrawalParams{
			UTXOs: []bitcoin.UTXO{
				testVaultUTXO(t, vault, 70_000, 0x21),
				testVaultUTXO(t, vault, 40_000, 0x22),
			},
			ReceiverAddress:  receiverAddress,
			Amount:           big.NewInt(90_000),
			SatoshiPerKVByte: big.NewInt(2_000),
		})
		require.NoError(t, err)

		return builder
	}

	t.Run("below threshold stays open", func(t *testing.T) {
		builder := newWithdrawal(t)

		round, err := builder.Sign(signers[1])
		require.NoError(t, err)
		require.True(t, round.Added)
		require.Empty(t, round.Finalizable)

		done, err := builder.FinalizeInput(0)
		require.NoError(t, err)
		require.False(t, done)

		_, err = builder.Finalize()
		require.ErrorIs(t, err, bitcoin.ErrFinalization)
	})

	t.Run("non-participant rejected", func(t *testing.T) {
		builder := newWithdrawal(t)

		outsideSigner, err := signer.GenerateLocalSigner()
		require.NoError(t, err)

		_, err = builder.Sign(outsideSigner)
		require.ErrorIs(t, err, bitcoin.ErrSignature)
	})

	t.Run("signing twice collapses", func(t *testing.T) {
		builder := newWithdrawal(t)

		round, err := builder.Sign(signers[0])
		require.NoError(t, err)
		require.True(t, round.Added)

		round, err = builder.Sign(signers[0])
		require.NoError(t, err)
		require.False(t, round.Added)
		require.Equal(t, 1, builder.SignatureCount(0))
	})

	t.Run("out of order sessions finalize", func(t *testing.T) {
		builder := newWithdrawal(t)

		round, err := builder.Sign(signers[2])
		require.NoError(t, err)
		require.True(t, round.Added)

		// hand the session to another participant process.
		serialized, err := builder.Serialize()
		require.NoError(t, err)

		restored, err := txbuilder.RestoreThresholdBuilder(testNetworkParams, cfg, vault, serialized)
		require.NoError(t, err)
		require.Equal(t, builder.TxID(), restored.TxID())
		require.Equal(t, 1, restored.SignatureCount(0))
		require.Equal(t, 1, restored.SignatureCount(1))

		round, err = restored.Sign(signers[0])
		require.NoError(t, err)
		require.True(t, round.Added)
		require.Equal(t, []int{0, 1}, round.Finalizable)

		raw, err := restored.Finalize()
		require.NoError(t, err)

		var decoded wire.MsgTx
		require.NoError(t, decoded.Deserialize(bytes.NewReader(raw)))
		require.Len(t, decoded.TxIn, 2)

		leafScript, err := vault.ThresholdScript()
		require.NoError(t, err)

		for _, txIn := range decoded.TxIn {
			witness := txIn.Witness
			require.Len(t, witness, vault.Size()+2)

			// reverse canonical order: slot for key i sits at position N-1-i.
			// signers 0 and 2 contributed, signer 1 did not.
			require.Len(t, witness[0], 64)
			require.Empty(t, witness[1])
			require.Len(t, witness[2], 64)
			require.Equal(t, leafScript, []byte(witness[3]))
			require.NotEmpty(t, witness[4])
		}

		// every finalized input passes the script engine against the vault
		// outputs it spends.
		prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(decoded.TxIn))
		for _, utxo := range []bitcoin.UTXO{
			testVaultUTXO(t, vault, 70_000, 0x21),
			testVaultUTXO(t, vault, 40_000, 0x22),
		} {
			utxoHash, err := chainhash.NewHashFromStr(utxo.TxHash)
			require.NoError(t, err)
			prevOuts[*wire.NewOutPoint(utxoHash, utxo.Index)] = wire.NewTxOut(utxo.Amount.Int64(), utxo.Script)
		}
		for idx := range decoded.TxIn {
			requireExecutes(t, &decoded, prevOuts, idx)
		}
	})

	t.Run("merge is idempotent and monotonic", func(t *testing.T) {
		builder := newWithdrawal(t)
		base, err := builder.Serialize()
		require.NoError(t, err)

		first, err := txbuilder.RestoreThresholdBuilder(testNetworkParams, cfg, vault, base)
		require.NoError(t, err)
		second, err := txbuilder.RestoreThresholdBuilder(testNetworkParams, cfg, vault, base)
		require.NoError(t, err)

		_, err = first.Sign(signers[0])
		require.NoError(t, err)
		_, err = second.Sign(signers[1])
		require.NoError(t, err)

		secondSession, err := second.Serialize()
		require.NoError(t, err)

		round, err := first.Merge(secondSession)
		require.NoError(t, err)
		require.True(t, round.Added)
		require.Equal(t, []int{0, 1}, round.Finalizable)

		// merging the same session again adds nothing.
		round, err = first.Merge(secondSession)
		require.NoError(t, err)
		require.False(t, round.Added)
		require.Equal(t, 2, first.SignatureCount(0))

		_, err = first.Finalize()
		require.NoError(t, err)
	})

	t.Run("merge rejects other transaction", func(t *testing.T) {
		builder := newWithdrawal(t)

		other, err := txbuilder.NewThresholdBuilder(testNetworkParams, cfg, vault, txbuilder.WithdrawalParams{
			UTXOs:            []bitcoin.UTXO{testVaultUTXO(t, vault, 70_000, 0x33)},
			ReceiverAddress:  receiverAddress,
			Amount:           big.NewInt(50_000),
			SatoshiPerKVByte: big.NewInt(2_000),
		})
		require.NoError(t, err)

		otherSession, err := other.Serialize()
		require.NoError(t, err)

		_, err = builder.Merge(otherSession)
		require.ErrorIs(t, err, bitcoin.ErrConstruction)
	})

	t.Run("insufficient vault balance", func(t *testing.T) {
		_, err := txbuilder.NewThresholdBuilder(testNetworkParams, cfg, vault, txbuilder.WithdrawalParams{
			UTXOs:            []bitcoin.UTXO{testVaultUTXO(t, vault, 10_000, 0x44)},
			ReceiverAddress:  receiverAddress,
			Amount:           big.NewInt(90_000),
			SatoshiPerKVByte: big.NewInt(2_000),
		})
		require.ErrorIs(t, err, bitcoin.ErrInsufficientNativeBalance)
	})

	t.Run("duplicate vault utxo rejected", func(t *testing.T) {
		utxo := testVaultUTXO(t, vault, 70_000, 0x45)
		_, err := txbuilder.NewThresholdBuilder(testNetworkParams, cfg, vault, txbuilder.WithdrawalParams{
			UTXOs:            []bitcoin.UTXO{utxo, utxo},
			ReceiverAddress:  receiverAddress,
			Amount:           big.NewInt(90_000),
			SatoshiPerKVByte: big.NewInt(2_000),
		})
		require.ErrorIs(t, err, bitcoin.ErrConstruction)
	})
}
