package sender

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"payments-core/internal/relay"
	"payments-core/pkg/amount"
)

// ERC-20 transfer(address,uint256) 的函数选择器
var erc20TransferSig = []byte{0xa9, 0x05, 0x9c, 0xbb}

func erc20TransferData(to common.Address, value *uint256.Int) []byte {
	data := make([]byte, 0, 4+64)
	data = append(data, erc20TransferSig...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	v := value.Bytes32()
	data = append(data, v[:]...)
	return data
}

// EthSender 账户家族的发送器，ETH 与 ERC-20 共用。
// 代币转账把金额编码进 transfer 调用、Value 置零，gas 用 ETH 支付。
type EthSender struct {
	baseSender
	wallet    EthWalletState
	estimator *GasEstimator
	chainID   *big.Int
	token     bool

	fees             amount.Fees
	gasLimitOverride uint64
	gasPriceOverride *uint256.Int

	to         string
	sendAmount amount.Amount
}

func NewEthereumSender(currency amount.Currency, deps Deps) *EthSender {
	return newEthSender(currency, deps, false)
}

func NewERC20Sender(currency amount.Currency, deps Deps) *EthSender {
	return newEthSender(currency, deps, true)
}

func newEthSender(currency amount.Currency, deps Deps, token bool) *EthSender {
	estimator := deps.Estimator
	if estimator == nil && deps.API != nil {
		estimator = NewGasEstimator(deps.API)
	}
	return &EthSender{
		baseSender: newBase(currency, deps, "eth-sender"),
		wallet:     deps.EthWallet,
		estimator:  estimator,
		chainID:    deps.ChainID,
		token:      token,
	}
}

func (s *EthSender) UpdateFeeRates(fees amount.Fees, _ amount.FeeLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fees = fees
}

// SetGas 结账请求携带的 gas 参数覆盖估算值和默认值
func (s *EthSender) SetGas(limit uint64, price *uint256.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gasLimitOverride = limit
	if price != nil {
		s.gasPriceOverride = new(uint256.Int).Set(price)
	}
}

// EstimateGas 针对当前目标请求一次 gas 估算 (阻塞)
func (s *EthSender) EstimateGas(ctx context.Context, toAddress string, amt amount.Amount) {
	if s.estimator == nil {
		return
	}
	params := s.transactionParams(toAddress, amt)
	s.estimator.Estimate(ctx, params, toAddress, amt)
}

func (s *EthSender) transactionParams(toAddress string, amt amount.Amount) relay.TransactionParams {
	if s.token {
		data := erc20TransferData(common.HexToAddress(toAddress), amt.Raw())
		return relay.TransactionParams{
			From: s.wallet.Address(),
			To:   s.currency.TokenAddress,
			Data: "0x" + common.Bytes2Hex(data),
		}
	}
	return relay.TransactionParams{
		From:  s.wallet.Address(),
		To:    toAddress,
		Value: amt.Raw().Hex(),
	}
}

// gas 解析顺序: 结账覆盖 → 估算缓存 → 钱包默认值
func (s *EthSender) gasLimit(toAddress string, amt amount.Amount) uint64 {
	if s.gasLimitOverride > 0 {
		return s.gasLimitOverride
	}
	if s.estimator != nil {
		if limit, hit := s.estimator.Limit(toAddress, amt); hit {
			return limit
		}
	}
	return s.wallet.DefaultGasLimit(s.currency)
}

func (s *EthSender) gasPrice() *uint256.Int {
	if s.gasPriceOverride != nil {
		return new(uint256.Int).Set(s.gasPriceOverride)
	}
	return s.fees.GasPriceOrZero()
}

func (s *EthSender) FeeForAmount(amt amount.Amount) (amount.Amount, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	price := s.gasPrice()
	if price.IsZero() {
		return amount.Amount{}, false
	}
	limit := s.gasLimit(s.to, amt)
	fee := new(uint256.Int)
	if _, overflow := fee.MulOverflow(price, uint256.NewInt(limit)); overflow {
		return amount.Amount{}, false
	}
	return amount.NewFromInt(fee, amount.ETH), true
}

func (s *EthSender) CreateTransaction(address string, amt amount.Amount, comment string) ValidationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sending {
		return failed()
	}
	res := ValidateEthereumPayment(address, amt, s.wallet, s.currency, s.token)
	if !res.OK() {
		return res
	}
	s.to = address
	s.sendAmount = amt
	s.comment = comment
	s.readyToSend = true
	return ok()
}

// CreateProtocolTransaction 支付协议只存在于 UTXO 家族
func (s *EthSender) CreateProtocolTransaction(_ *ProtocolRequest) ValidationResult {
	return withReason(InvalidRequest, "payment protocol unsupported for account currencies")
}

// buildLocked 广播前组装交易：nonce、gas 参数在发送瞬间取值
func (s *EthSender) buildLocked() *EthTransaction {
	tx := &EthTransaction{
		Nonce:    s.wallet.Nonce(),
		GasLimit: s.gasLimit(s.to, s.sendAmount),
		GasPrice: s.gasPrice(),
		ChainID:  s.chainID,
		currency: s.currency,
	}
	if s.token {
		tx.To = common.HexToAddress(s.currency.TokenAddress)
		tx.Value = new(uint256.Int)
		tx.Data = erc20TransferData(common.HexToAddress(s.to), s.sendAmount.Raw())
	} else {
		tx.To = common.HexToAddress(s.to)
		tx.Value = s.sendAmount.Raw()
	}
	return tx
}

func (s *EthSender) CanUseBiometrics() bool {
	s.mu.Lock()
	ready := s.readyToSend
	s.mu.Unlock()
	if !ready {
		return false
	}
	return s.signer.CanUseBiometrics(&EthTransaction{currency: s.currency})
}

func (s *EthSender) Send(ctx context.Context, allowBiometrics bool, pin PinVerifier) SendResult {
	if !s.beginSend() {
		return creationError("not ready")
	}
	s.mu.Lock()
	tx := s.buildLocked()
	s.mu.Unlock()
	defer s.Reset()

	if r := s.authorizeAndSign(ctx, tx, allowBiometrics, pin); r != nil {
		return *r
	}
	raw, err := tx.Serialize()
	if err != nil {
		s.recordFailure("serialize")
		return creationError("serialize: %v", err)
	}

	if r := s.publish(ctx, raw); r != nil {
		// 代币转账的 gas 不足在节点侧才暴露，归为独立终态
		if s.token && strings.Contains(strings.ToLower(r.Message), "insufficient funds") {
			s.recordFailure("insufficient-gas")
			return insufficientGas(r.Message)
		}
		return *r
	}
	s.writeMetadata(ctx, tx.TxHash(), tx.GasLimit)
	s.recordSuccess()
	return successResult(tx.TxHash(), raw)
}

func (s *EthSender) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.to = ""
	s.sendAmount = amount.Amount{}
	s.comment = ""
	s.gasLimitOverride = 0
	s.gasPriceOverride = nil
	s.readyToSend = false
	s.sending = false
}
