// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder_test

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"btcvm/bitcoin"
	"btcvm/bitcoin/signer"
	"btcvm/bitcoin/txbuilder"
)

var testNetworkParams = &chaincfg.RegressionNetParams

// testPaymentAddress derives a P2WPKH address and locking script for signer.
func testPaymentAddress(t *testing.T, localSigner *signer.LocalSigner) (string, []byte) {
	t.Helper()

	keyHash := btcutil.Hash160(localSigner.PublicKey().SerializeCompressed())
	address, err := btcutil.NewAddressWitnessPubKeyHash(keyHash, testNetworkParams)
	require.NoError(t, err)

	script, err := txscript.PayToAddrScript(address)
	require.NoError(t, err)

	return address.EncodeAddress(), script
}

// testUTXO fabricates a spendable utxo with a unique synthetic outpoint.
func testUTXO(t *testing.T, script []byte, address string, amount int64, seed byte) bitcoin.UTXO {
	t.Helper()

	hash := chainhash.HashH([]byte{seed})

	return bitcoin.UTXO{
		TxHash:  hash.String(),
		Index:   0,
		Amount:  big.NewInt(amount),
		Script:  script,
		Address: address,
	}
}

func TestSelectUTXOs(t *testing.T) {
	amounts := func(utxos []*bitcoin.UTXO) []int64 {
		selected := make([]int64, 0, len(utxos))
		for _, utxo := range utxos {
			selected = append(selected, utxo.Amount.Int64())
		}

		return selected
	}

	utxos := []bitcoin.UTXO{
		{Amount: big.NewInt(5000)},
		{Amount: big.NewInt(3000)},
		{Amount: big.NewInt(1200)},
	}

	tests := []struct {
		name      string
		minAmount int64
		expected  []int64
		err       error
	}{
		{name: "closest covering single", minAmount: 1000, expected: []int64{1200}},
		{name: "skips too small", minAmount: 4000, expected: []int64{5000}},
		{name: "exact match", minAmount: 3000, expected: []int64{3000}},
		{name: "combines biggest remaining", minAmount: 6000, expected: []int64{5000, 3000}},
		{name: "takes all", minAmount: 9000, expected: []int64{5000, 3000, 1200}},
		{name: "insufficient", minAmount: 10000, err: bitcoin.ErrInsufficientNativeBalance},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			selected, total, err := txbuilder.SelectUTXOs(utxos, big.NewInt(test.minAmount))
			if test.err != nil {
				require.ErrorIs(t, err, test.err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, test.expected, amounts(selected))

			expectedTotal := int64(0)
			for _, amount := range test.expected {
				expectedTotal += amount
			}
			require.EqualValues(t, expectedTotal, total.Int64())
		})
	}

	t.Run("no utxos", func(t *testing.T) {
		_, _, err := txbuilder.SelectUTXOs(nil, big.NewInt(1))
		require.ErrorIs(t, err, bitcoin.ErrInvalidUTXOAmount)
	})
}

func TestBuilderLifecycle(t *testing.T) {
	cfg := bitcoin.DefaultConfig()

	localSigner, err := signer.GenerateLocalSigner()
	require.NoError(t, err)
	address, script := testPaymentAddress(t, localSigner)

	newBuilt := func(t *testing.T) *txbuilder.Builder {
		builder := txbuilder.NewBuilder(testNetworkParams, cfg)
		utxo := testUTXO(t, script, address, 100_000, 0x01)
		require.NoError(t, builder.AddInput(&utxo))
		require.NoError(t, builder.AddOutput(address, big.NewInt(40_000)))
		require.NoError(t, builder.ApplyFeeAndChange(big.NewInt(2_000), address))

		return builder
	}

	t.Run("happy path", func(t *testing.T) {
		builder := txbuilder.NewBuilder(testNetworkParams, cfg)
		require.Equal(t, txbuilder.StateUnbuilt, builder.State())

		builder = newBuilt(t)
		require.Equal(t, txbuilder.StateBuilt, builder.State())

		require.NoError(t, builder.Sign(localSigner))
		require.Equal(t, txbuilder.StateSigned, builder.State())

		raw, err := builder.Finalize()
		require.NoError(t, err)
		require.Equal(t, txbuilder.StateFinalized, builder.State())

		var decoded wire.MsgTx
		require.NoError(t, decoded.Deserialize(bytes.NewReader(raw)))
		require.Len(t, decoded.TxIn, 1)
		require.Len(t, decoded.TxOut, 2) // payment and change.
		require.Len(t, decoded.TxIn[0].Witness, 2)

		// conservation: inputs = outputs + fee.
		total := new(big.Int).Add(builder.AmountSpent(), builder.Fee())
		total.Add(total, builder.Refund())
		require.Zero(t, builder.TotalInputAmount().Cmp(total))
	})

	t.Run("below dust remainder goes to fee", func(t *testing.T) {
		builder := txbuilder.NewBuilder(testNetworkParams, cfg)
		utxo := testUTXO(t, script, address, 42_300, 0x02)
		require.NoError(t, builder.AddInput(&utxo))
		require.NoError(t, builder.AddOutput(address, big.NewInt(40_000)))
		require.NoError(t, builder.ApplyFeeAndChange(big.NewInt(2_000), address))

		require.EqualValues(t, 300, builder.OverflowFees().Int64())
		require.EqualValues(t, 2_300, builder.Fee().Int64())
		require.Zero(t, builder.Refund().Sign())
		require.Len(t, builder.Tx().TxOut, 1)
	})

	t.Run("insufficient balance", func(t *testing.T) {
		builder := txbuilder.NewBuilder(testNetworkParams, cfg)
		utxo := testUTXO(t, script, address, 1_000, 0x03)
		require.NoError(t, builder.AddInput(&utxo))
		require.NoError(t, builder.AddOutput(address, big.NewInt(40_000)))

		err := builder.ApplyFeeAndChange(big.NewInt(2_000), address)
		require.ErrorIs(t, err, bitcoin.ErrInsufficientNativeBalance)
	})

	t.Run("unspendable utxo rejected", func(t *testing.T) {
		builder := txbuilder.NewBuilder(testNetworkParams, cfg)
		err := builder.AddInput(&bitcoin.UTXO{TxHash: "00", Amount: big.NewInt(0)})
		require.ErrorIs(t, err, bitcoin.ErrConstruction)
	})

	t.Run("duplicate utxo rejected", func(t *testing.T) {
		builder := txbuilder.NewBuilder(testNetworkParams, cfg)
		utxo := testUTXO(t, script, address, 10_000, 0x05)
		require.NoError(t, builder.AddInput(&utxo))

		require.ErrorIs(t, builder.AddInput(&utxo), bitcoin.ErrConstruction)
		require.Len(t, builder.Tx().TxIn, 1)
		require.EqualValues(t, 10_000, builder.TotalInputAmount().Int64())
	})

	t.Run("finalize requires signatures", func(t *testing.T) {
		builder := newBuilt(t)
		_, err := builder.Finalize()
		require.ErrorIs(t, err, bitcoin.ErrFinalization)
	})

	t.Run("no mutation after signing", func(t *testing.T) {
		builder := newBuilt(t)
		require.NoError(t, builder.Sign(localSigner))

		utxo := testUTXO(t, script, address, 5_000, 0x04)
		require.ErrorIs(t, builder.AddInput(&utxo), bitcoin.ErrConstruction)
		require.ErrorIs(t, builder.AddOutput(address, big.NewInt(1_000)), bitcoin.ErrConstruction)
	})

	t.Run("finalize twice", func(t *testing.T) {
		builder := newBuilt(t)
		require.NoError(t, builder.Sign(localSigner))

		_, err := builder.Finalize()
		require.NoError(t, err)

		_, err = builder.Finalize()
		require.ErrorIs(t, err, bitcoin.ErrConstruction)
	})
}

func TestTransferBuilder(t *testing.T) {
	cfg := bitcoin.DefaultConfig()

	localSigner, err := signer.GenerateLocalSigner()
	require.NoError(t, err)
	address, script := testPaymentAddress(t, localSigner)

	receiverSigner, err := signer.GenerateLocalSigner()
	require.NoError(t, err)
	receiverAddress, _ := testPaymentAddress(t, receiverSigner)

	utxos := []bitcoin.UTXO{
		testUTXO(t, script, address, 80_000, 0x11),
		testUTXO(t, script, address, 30_000, 0x12),
	}

	result, err := txbuilder.NewTransferBuilder(testNetworkParams, cfg).Build(txbuilder.TransferParams{
		UTXOs:            utxos,
		Signer:           localSigner,
		ReceiverAddress:  receiverAddress,
		Amount:           big.NewInt(50_000),
		ChangeAddress:    address,
		SatoshiPerKVByte: big.NewInt(5_000),
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.TxID)
	require.True(t, result.Fee.Sign() > 0)

	var decoded wire.MsgTx
	require.NoError(t, decoded.Deserialize(bytes.NewReader(result.Raw)))
	require.Len(t, decoded.TxIn, 1) // 80k covers amount and fee alone.
	require.EqualValues(t, 50_000, decoded.TxOut[0].Value)

	// conservation over decoded outputs.
	outputTotal := int64(0)
	for _, out := range decoded.TxOut {
		outputTotal += out.Value
	}
	require.EqualValues(t, 80_000, outputTotal+result.Fee.Int64())
}
