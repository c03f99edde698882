package service

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payments-core/internal/sender"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func newTestWallet(t *testing.T) *WalletService {
	t.Helper()
	wallet, err := NewWalletService(testMnemonic, &chaincfg.MainNetParams)
	require.NoError(t, err)
	return wallet
}

func newEthTestTx() *sender.EthTransaction {
	return &sender.EthTransaction{
		To:       common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Value:    uint256.NewInt(1000),
		Nonce:    7,
		GasLimit: 21000,
		GasPrice: uint256.NewInt(2_000_000_000),
		ChainID:  big.NewInt(1),
	}
}

func TestLocalSignerRejectsWrongPIN(t *testing.T) {
	signer, err := NewLocalSigner(newTestWallet(t), big.NewInt(1), "123456", nil)
	require.NoError(t, err)

	err = signer.SignWithPIN(context.Background(), newEthTestTx(), "000000")
	assert.ErrorIs(t, err, ErrInvalidPIN)
}

func TestLocalSignerSignsEthereum(t *testing.T) {
	signer, err := NewLocalSigner(newTestWallet(t), big.NewInt(1), "123456", nil)
	require.NoError(t, err)

	tx := newEthTestTx()
	require.NoError(t, signer.SignWithPIN(context.Background(), tx, "123456"))

	require.NotNil(t, tx.Signed)
	assert.NotEmpty(t, tx.TxHash())
	raw, err := tx.Serialize()
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
}

func TestLocalSignerSignsBitcoinInputs(t *testing.T) {
	wallet := newTestWallet(t)
	signer, err := NewLocalSigner(wallet, big.NewInt(1), "123456", nil)
	require.NoError(t, err)

	addr, err := btcutil.DecodeAddress(wallet.BTCAddress(), &chaincfg.MainNetParams)
	require.NoError(t, err)
	pkScript, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	msgTx := wire.NewMsgTx(wire.TxVersion)
	msgTx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 0}, nil, nil))
	msgTx.AddTxOut(wire.NewTxOut(90000, pkScript))
	tx := &sender.BitcoinTransaction{
		MsgTx:  msgTx,
		Inputs: []sender.UTXO{{Value: 100000, PkScript: pkScript}},
	}

	require.NoError(t, signer.SignWithPIN(context.Background(), tx, "123456"))
	assert.NotEmpty(t, msgTx.TxIn[0].SignatureScript)

	raw, err := tx.Serialize()
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
}

func TestLocalSignerBitcoinRequiresPkScript(t *testing.T) {
	signer, err := NewLocalSigner(newTestWallet(t), big.NewInt(1), "123456", nil)
	require.NoError(t, err)

	msgTx := wire.NewMsgTx(wire.TxVersion)
	msgTx.AddTxIn(wire.NewTxIn(&wire.OutPoint{}, nil, nil))
	tx := &sender.BitcoinTransaction{MsgTx: msgTx, Inputs: []sender.UTXO{{Value: 1000}}}

	err = signer.SignWithPIN(context.Background(), tx, "123456")
	assert.ErrorIs(t, err, ErrMissingPkScript)
}

type stubBiometric struct {
	passed bool
	err    error
}

func (s *stubBiometric) Verify(context.Context) (bool, error) { return s.passed, s.err }

func TestSignWithBiometricsOutcomes(t *testing.T) {
	wallet := newTestWallet(t)

	tests := []struct {
		name     string
		verifier BiometricVerifier
		want     sender.SignStatus
		wantErr  bool
	}{
		{"无设备支持直接回落", nil, sender.SignFallback, false},
		{"用户取消回落到 PIN", &stubBiometric{passed: false}, sender.SignFallback, false},
		{"设备错误", &stubBiometric{err: errors.New("sensor failure")}, sender.SignFailure, true},
		{"验证通过直接签名", &stubBiometric{passed: true}, sender.SignSuccess, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer, err := NewLocalSigner(wallet, big.NewInt(1), "123456", tt.verifier)
			require.NoError(t, err)

			tx := newEthTestTx()
			status, err := signer.SignWithBiometrics(context.Background(), tx)
			assert.Equal(t, tt.want, status)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			if tt.want == sender.SignSuccess {
				assert.NotNil(t, tx.Signed)
			}
		})
	}
}

func TestRateServiceSnapshot(t *testing.T) {
	rates := NewRateService("usd")

	_, ok := rates.CurrentRate("BTC")
	assert.False(t, ok, "未喂入汇率时应返回缺失")

	rates.SetRate("btc", decimal.RequireFromString("65000.5"))
	rate, ok := rates.CurrentRate("BTC")
	require.True(t, ok)
	assert.Equal(t, "USD", rate.FiatCode)
	assert.Equal(t, "65000.5", rate.Rate.String())
}
