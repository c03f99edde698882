package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/subtle"
	"errors"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/ethereum/go-ethereum/core/types"

	"payments-core/internal/sender"
	"payments-core/pkg/crypto_util"
)

var (
	ErrInvalidPIN      = errors.New("signer: pin 校验失败")
	ErrUnsupportedTx   = errors.New("signer: 不支持的交易类型")
	ErrMissingPkScript = errors.New("signer: 输入缺少锁定脚本")
)

// BiometricVerifier 设备生物识别抽象。无设备支持时传 nil，
// 发送器会直接走 PIN 路径。
type BiometricVerifier interface {
	// Verify 返回 (false, nil) 表示用户选择回落，不算错误
	Verify(ctx context.Context) (bool, error)
}

// LocalSigner 持有账户私钥的本地签名器。
// PIN 只存哈希，比较用常数时间。
type LocalSigner struct {
	btcKey    *btcec.PrivateKey
	ethKey    *ecdsa.PrivateKey
	chainID   *big.Int
	pinHash   []byte
	biometric BiometricVerifier
}

func NewLocalSigner(wallet *WalletService, chainID *big.Int, pin string, biometric BiometricVerifier) (*LocalSigner, error) {
	btcKey, err := wallet.BTCKey().ECPrivKey()
	if err != nil {
		return nil, err
	}
	ethKey, err := wallet.ETHKey().ECDSAPrivKey()
	if err != nil {
		return nil, err
	}
	return &LocalSigner{
		btcKey:    btcKey,
		ethKey:    ethKey,
		chainID:   chainID,
		pinHash:   crypto_util.SHA256([]byte(pin)),
		biometric: biometric,
	}, nil
}

func (s *LocalSigner) CanUseBiometrics(_ sender.PendingTransaction) bool {
	return s.biometric != nil
}

func (s *LocalSigner) SignWithBiometrics(ctx context.Context, tx sender.PendingTransaction) (sender.SignStatus, error) {
	if s.biometric == nil {
		return sender.SignFallback, nil
	}
	passed, err := s.biometric.Verify(ctx)
	if err != nil {
		return sender.SignFailure, err
	}
	if !passed {
		return sender.SignFallback, nil
	}
	if err := s.signTx(tx); err != nil {
		return sender.SignFailure, err
	}
	return sender.SignSuccess, nil
}

func (s *LocalSigner) SignWithPIN(_ context.Context, tx sender.PendingTransaction, pin string) error {
	candidate := crypto_util.SHA256([]byte(pin))
	if subtle.ConstantTimeCompare(candidate, s.pinHash) != 1 {
		return ErrInvalidPIN
	}
	return s.signTx(tx)
}

func (s *LocalSigner) signTx(tx sender.PendingTransaction) error {
	switch t := tx.(type) {
	case *sender.BitcoinTransaction:
		return s.signBitcoin(t)
	case *sender.EthTransaction:
		return s.signEthereum(t)
	default:
		return ErrUnsupportedTx
	}
}

// signBitcoin 按输入顺序填 P2PKH 解锁脚本
func (s *LocalSigner) signBitcoin(t *sender.BitcoinTransaction) error {
	for i := range t.Inputs {
		if len(t.Inputs[i].PkScript) == 0 {
			return ErrMissingPkScript
		}
		script, err := txscript.SignatureScript(t.MsgTx, i, t.Inputs[i].PkScript, txscript.SigHashAll, s.btcKey, true)
		if err != nil {
			return err
		}
		t.MsgTx.TxIn[i].SignatureScript = script
	}
	t.MarkSigned()
	return nil
}

func (s *LocalSigner) signEthereum(t *sender.EthTransaction) error {
	signer := types.LatestSignerForChainID(s.chainID)
	signed, err := types.SignTx(t.UnsignedTx(), signer, s.ethKey)
	if err != nil {
		return err
	}
	t.Signed = signed
	return nil
}
