package sender

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"payments-core/internal/relay"
	"payments-core/pkg/amount"
	"payments-core/pkg/errno"
	"payments-core/pkg/logger"
	"payments-core/pkg/monitor"
)

// defaultSignTimeout 签名授权的有界等待。超时是可恢复错误，
// 调用方丢弃这次发送重试即可。
const defaultSignTimeout = 4 * time.Second

var errSignTimeout = errors.New("sender: sign wait deadline exceeded")

// Sender 一个币种一个发送器：校验 → 构建 → 授权签名 → 广播。
// 终态后内部交易被丢弃，同一实例可以继续发起下一笔。
type Sender interface {
	Currency() amount.Currency
	// UpdateFeeRates 注入最新费率快照并选档
	UpdateFeeRates(fees amount.Fees, level amount.FeeLevel)
	// FeeForAmount 预估发送 amt 需要的手续费
	FeeForAmount(amt amount.Amount) (amount.Amount, bool)
	// CreateTransaction 校验并构建一笔普通转账，终态前只允许一笔在途
	CreateTransaction(address string, amt amount.Amount, comment string) ValidationResult
	// CreateProtocolTransaction 从支付协议请求构建 (仅 UTXO 家族)
	CreateProtocolTransaction(req *ProtocolRequest) ValidationResult
	CanUseBiometrics() bool
	// Send 授权、签名并广播当前在途交易，阻塞直到终态
	Send(ctx context.Context, allowBiometrics bool, pin PinVerifier) SendResult
	// Reset 丢弃在途交易
	Reset()
}

// TxMetadata 广播成功后落库的交易元数据 (尽力而为)
type TxMetadata struct {
	TxHash       string
	CurrencyCode string
	Comment      string
	FeeRate      uint64
	FiatCode     string
	FiatRate     decimal.Decimal
	CreatedAt    time.Time
}

// MetadataWriter 消费方接口，由 service 层的元数据存储实现
type MetadataWriter interface {
	WriteTxMetadata(ctx context.Context, meta TxMetadata) error
}

// Deps 构造发送器的依赖。按币种家族取用需要的字段。
type Deps struct {
	BitcoinWallet BitcoinWalletState
	EthWallet     EthWalletState
	Signer        KeySigner
	Relay         relay.TxRelay
	Rates         RateSource
	API           relay.APIClient // gas 预估
	Metadata      MetadataWriter
	Merchant      *MerchantClient
	Estimator     *GasEstimator // 多个代币发送器可共享
	ChainParams   *chaincfg.Params
	ChainID       *big.Int
	SignTimeout   time.Duration
}

// New 按币种家族构造对应的发送器
func New(currency amount.Currency, deps Deps) (Sender, error) {
	switch currency.Family {
	case amount.FamilyBitcoin:
		return NewBitcoinSender(currency, deps), nil
	case amount.FamilyEthereum:
		return NewEthereumSender(currency, deps), nil
	case amount.FamilyERC20:
		return NewERC20Sender(currency, deps), nil
	default:
		return nil, errno.ErrCurrencyUnknown
	}
}

// baseSender 各家族共享的授权/签名/终态管理
type baseSender struct {
	mu          sync.Mutex
	currency    amount.Currency
	signer      KeySigner
	relay       relay.TxRelay
	rates       RateSource
	metadata    MetadataWriter
	signTimeout time.Duration
	log         *zap.Logger

	readyToSend bool
	sending     bool
	comment     string
}

func newBase(currency amount.Currency, deps Deps, name string) baseSender {
	timeout := deps.SignTimeout
	if timeout <= 0 {
		timeout = defaultSignTimeout
	}
	return baseSender{
		currency:    currency,
		signer:      deps.Signer,
		relay:       deps.Relay,
		rates:       deps.Rates,
		metadata:    deps.Metadata,
		signTimeout: timeout,
		log:         logger.Log.Named(name).With(zap.String("currency", currency.Code)),
	}
}

func (b *baseSender) Currency() amount.Currency { return b.currency }

// beginSend 终态前只允许一笔在途；重复调用得到 not ready
func (b *baseSender) beginSend() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.readyToSend || b.sending {
		return false
	}
	b.sending = true
	return true
}

// runBounded 在有界等待内执行签名回调
func (b *baseSender) runBounded(ctx context.Context, fn func(context.Context) error) error {
	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()
	timer := time.NewTimer(b.signTimeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return errSignTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// authorizeAndSign 先走生物识别 (若允许且可用)，任何非成功出口
// 都强制回落到 PIN。返回 nil 表示交易已签名。
func (b *baseSender) authorizeAndSign(ctx context.Context, tx PendingTransaction, allowBiometrics bool, pin PinVerifier) *SendResult {
	start := time.Now()
	if allowBiometrics && b.signer.CanUseBiometrics(tx) {
		var status SignStatus
		err := b.runBounded(ctx, func(ctx context.Context) error {
			var inner error
			status, inner = b.signer.SignWithBiometrics(ctx, tx)
			return inner
		})
		switch {
		case errors.Is(err, errSignTimeout):
			r := timeoutResult()
			b.recordFailure("sign-timeout")
			return &r
		case err == nil && status == SignSuccess:
			b.observeSign(start)
			return nil
		default:
			b.log.Info("biometric path fell back to pin", zap.Error(err))
		}
	}

	if pin == nil {
		r := creationError("pin verification unavailable")
		b.recordFailure("no-pin")
		return &r
	}
	code, err := pin(ctx)
	if err != nil {
		r := creationError("authorization declined: %v", err)
		b.recordFailure("pin-declined")
		return &r
	}
	err = b.runBounded(ctx, func(ctx context.Context) error {
		return b.signer.SignWithPIN(ctx, tx, code)
	})
	if errors.Is(err, errSignTimeout) {
		r := timeoutResult()
		b.recordFailure("sign-timeout")
		return &r
	}
	if err != nil {
		r := creationError("signing failed: %v", err)
		b.recordFailure("sign-error")
		return &r
	}
	b.observeSign(start)
	return nil
}

func (b *baseSender) publish(ctx context.Context, rawTx []byte) *SendResult {
	if err := b.relay.Publish(ctx, rawTx); err != nil {
		var pubErr *relay.PublishError
		if !errors.As(err, &pubErr) {
			pubErr = relay.NewPublishError(relay.PublishCodeNotConnected, "%v", err)
		}
		b.recordFailure("publish")
		r := publishFailure(pubErr)
		return &r
	}
	return nil
}

// writeMetadata 落库失败不影响发送结果
func (b *baseSender) writeMetadata(ctx context.Context, txHash string, feeRate uint64) {
	if b.metadata == nil {
		return
	}
	meta := TxMetadata{
		TxHash:       txHash,
		CurrencyCode: b.currency.Code,
		Comment:      b.comment,
		FeeRate:      feeRate,
		CreatedAt:    time.Now(),
	}
	if b.rates != nil {
		if rate, found := b.rates.CurrentRate(b.currency.Code); found {
			meta.FiatCode = rate.FiatCode
			meta.FiatRate = rate.Rate
		}
	}
	if err := b.metadata.WriteTxMetadata(ctx, meta); err != nil {
		b.log.Warn("写交易元数据失败", zap.String("hash", txHash), zap.Error(err))
	}
}

func (b *baseSender) recordSuccess() {
	if monitor.Business != nil {
		monitor.Business.SendSuccessTotal.WithLabelValues(b.currency.Code).Inc()
	}
}

func (b *baseSender) recordFailure(reason string) {
	if monitor.Business != nil {
		monitor.Business.SendFailureTotal.WithLabelValues(b.currency.Code, reason).Inc()
	}
}

func (b *baseSender) observeSign(start time.Time) {
	if monitor.Business != nil {
		monitor.Business.SignDuration.WithLabelValues(b.currency.Code).Observe(time.Since(start).Seconds())
	}
}
