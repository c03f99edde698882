package pigeon

import (
	"context"
	"fmt"
	"strconv"

	"github.com/holiman/uint256"

	"payments-core/internal/relay"
	"payments-core/pkg/amount"
)

// 结账请求未携带 transaction_size 时的 gas 默认值
const (
	defaultPaymentGasLimit = 100000
	defaultCallGasLimit    = 200000
)

// RequestType 结账请求种类
type RequestType int

const (
	RequestTypePayment RequestType = iota
	RequestTypeCall
)

// RequestOutcome 审批/发送的最终结果，会被编码进响应信封
type RequestOutcome struct {
	Status        ResponseStatus
	TransactionID string
	Error         string
}

// CheckoutRequest 解码并补全后的结账请求。
// ResponseCallback 是显式的回执通道: 审批方处理完请求后必须恰好
// 调用一次，结果由交换器包成响应信封寄回发起方。
type CheckoutRequest struct {
	Type     RequestType
	Currency amount.Currency
	Address  string
	Amount   amount.Amount
	Memo     string
	AbiData  string // 仅 CALL: 合约调用数据
	GasLimit uint64
	GasPrice *uint256.Int
	// Token 按销售地址解析出的代币信息，未知时为 nil
	Token *relay.Token

	ResponseCallback func(ctx context.Context, outcome RequestOutcome)
}

func parseGasLimit(raw string, fallback uint64) uint64 {
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || v == 0 {
		return fallback
	}
	return v
}

func parseGasPrice(raw string) *uint256.Int {
	if raw == "" {
		return nil
	}
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil
	}
	return v
}

// buildPaymentRequest 把 PAYMENT_REQUEST 消息补全为结账请求。
// 支付金额以 ETH 计，按销售地址尽力解析代币信息供展示。
func buildPaymentRequest(ctx context.Context, api relay.APIClient, msg *PaymentRequest) (*CheckoutRequest, error) {
	amt, err := amount.Parse(msg.Amount, amount.ETH)
	if err != nil {
		return nil, fmt.Errorf("payment request amount %q: %w", msg.Amount, err)
	}
	req := &CheckoutRequest{
		Type:     RequestTypePayment,
		Currency: amount.ETH,
		Address:  msg.Address,
		Amount:   amt,
		Memo:     msg.Memo,
		GasLimit: parseGasLimit(msg.TransactionSize, defaultPaymentGasLimit),
		GasPrice: parseGasPrice(msg.TransactionFee),
	}
	if api != nil {
		// 代币目录查询失败不阻塞结账
		if token, err := api.TokenBySaleAddress(ctx, msg.Address); err == nil {
			req.Token = token
		}
	}
	return req, nil
}

// buildCallRequest 把 CALL_REQUEST 消息补全为结账请求
func buildCallRequest(ctx context.Context, api relay.APIClient, msg *CallRequest) (*CheckoutRequest, error) {
	amt, err := amount.Parse(msg.Amount, amount.ETH)
	if err != nil {
		return nil, fmt.Errorf("call request amount %q: %w", msg.Amount, err)
	}
	req := &CheckoutRequest{
		Type:     RequestTypeCall,
		Currency: amount.ETH,
		Address:  msg.Address,
		Amount:   amt,
		Memo:     msg.Memo,
		AbiData:  msg.Abi,
		GasLimit: parseGasLimit(msg.TransactionSize, defaultCallGasLimit),
		GasPrice: parseGasPrice(msg.TransactionFee),
	}
	if api != nil {
		if token, err := api.TokenBySaleAddress(ctx, msg.Address); err == nil {
			req.Token = token
		}
	}
	return req, nil
}
