package sender

import (
	"fmt"

	"payments-core/internal/relay"
)

// SendStatus 发送终态
type SendStatus int

const (
	SendSuccess SendStatus = iota
	SendCreationError
	SendPublishFailure
	SendInsufficientGas // ERC-20 转账 gas 不足
	SendTimeout         // 签名超时 (可恢复错误，不是进程级故障)
)

// SendResult 发送结果。成功时携带交易哈希和原始交易字节。
type SendResult struct {
	Status     SendStatus
	TxHash     string
	RawTx      []byte
	Message    string
	PublishErr *relay.PublishError
}

func successResult(txHash string, rawTx []byte) SendResult {
	return SendResult{Status: SendSuccess, TxHash: txHash, RawTx: rawTx}
}

func creationError(format string, args ...interface{}) SendResult {
	return SendResult{Status: SendCreationError, Message: fmt.Sprintf(format, args...)}
}

func publishFailure(err *relay.PublishError) SendResult {
	return SendResult{Status: SendPublishFailure, Message: err.Description, PublishErr: err}
}

func insufficientGas(message string) SendResult {
	return SendResult{Status: SendInsufficientGas, Message: message}
}

func timeoutResult() SendResult {
	return SendResult{Status: SendTimeout, Message: "signing timed out"}
}

// ValidationCode 校验裁决种类 (封闭枚举)
type ValidationCode int

const (
	ValidationOK ValidationCode = iota
	ValidationFailed
	InvalidAddress
	OwnAddress
	InsufficientFunds
	NoExchangeRate
	NoFeeData // BTC: 费率数据未下载
	OutputTooSmall
	InvalidRequest // 支付协议请求非法
	PaymentTooSmall
	UsedAddress
	IdentityNotCertified
	InsufficientGasBalance // 代币转账没有 ETH 付 gas
)

func (c ValidationCode) String() string {
	switch c {
	case ValidationOK:
		return "ok"
	case ValidationFailed:
		return "failed"
	case InvalidAddress:
		return "invalid-address"
	case OwnAddress:
		return "own-address"
	case InsufficientFunds:
		return "insufficient-funds"
	case NoExchangeRate:
		return "no-exchange-rate"
	case NoFeeData:
		return "no-fee-data"
	case OutputTooSmall:
		return "output-too-small"
	case InvalidRequest:
		return "invalid-protocol-request"
	case PaymentTooSmall:
		return "payment-too-small"
	case UsedAddress:
		return "used-address"
	case IdentityNotCertified:
		return "identity-not-certified"
	case InsufficientGasBalance:
		return "insufficient-gas"
	default:
		return "unknown"
	}
}

// ValidationResult 每次校验恰好产生一个裁决；只有 OK 允许继续构建交易。
type ValidationResult struct {
	Code      ValidationCode
	MinOutput uint64 // output-too-small / payment-too-small 时的网络最小值
	Reason    string // invalid-protocol-request / identity-not-certified 的原因
}

func (r ValidationResult) OK() bool { return r.Code == ValidationOK }

func ok() ValidationResult { return ValidationResult{Code: ValidationOK} }

func failed() ValidationResult { return ValidationResult{Code: ValidationFailed} }

func verdict(c ValidationCode) ValidationResult { return ValidationResult{Code: c} }

func tooSmall(code ValidationCode, min uint64) ValidationResult {
	return ValidationResult{Code: code, MinOutput: min}
}

func withReason(code ValidationCode, reason string) ValidationResult {
	return ValidationResult{Code: code, Reason: reason}
}
