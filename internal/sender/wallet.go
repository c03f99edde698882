package sender

import (
	"context"

	"github.com/btcsuite/btcd/wire"

	"payments-core/pkg/amount"
)

// UTXO 一笔可花费输出
type UTXO struct {
	OutPoint wire.OutPoint
	Value    uint64 // satoshi
	PkScript []byte
	Address  string
}

// BitcoinWalletState UTXO 钱包的只读状态快照。
// 校验引擎只依赖这些查询，自己不持有余额。
type BitcoinWalletState interface {
	ReceiveAddress() string
	ChangeAddress() string
	IsOwnAddress(address string) bool
	AddressIsUsed(address string) bool
	Spendables() []UTXO
	// MinOutputAmount 网络 dust 限制 (satoshi)
	MinOutputAmount() uint64
	// MaxOutputAmount 扣除手续费后单笔可发送的最大值
	MaxOutputAmount() uint64
	FeePerKB() uint64
	SetFeePerKB(rate uint64)
}

// EthWalletState 账户型钱包的只读状态快照
type EthWalletState interface {
	Address() string
	IsOwnAddress(address string) bool
	// Balance 指定币种的余额；代币未加载时 ok 为 false
	Balance(code string) (amount.Amount, bool)
	Nonce() uint64
	DefaultGasLimit(currency amount.Currency) uint64
}

// RateSource 当前法币汇率来源
type RateSource interface {
	CurrentRate(currencyCode string) (amount.Rate, bool)
}

// SignStatus 生物识别签名的出口
type SignStatus int

const (
	SignSuccess SignStatus = iota
	SignFailure
	SignFallback // 用户取消或设备不可用，回落到 PIN
)

// KeySigner 持有私钥并在授权后对交易签名。
// SignWithBiometrics 任何非成功出口都必须允许回落到 PIN 路径。
type KeySigner interface {
	CanUseBiometrics(tx PendingTransaction) bool
	SignWithBiometrics(ctx context.Context, tx PendingTransaction) (SignStatus, error)
	SignWithPIN(ctx context.Context, tx PendingTransaction, pin string) error
}

// PinVerifier 向用户索取 PIN。返回错误视为放弃授权。
type PinVerifier func(ctx context.Context) (string, error)

// PendingTransaction 已构建、等待签名/广播的交易句柄
type PendingTransaction interface {
	Currency() amount.Currency
	// Serialize 签名后的原始交易字节；未签名时返回错误
	Serialize() ([]byte, error)
	// TxHash 签名后的交易哈希
	TxHash() string
}
