package relay

import (
	"context"
	"fmt"
)

// 常用的 posix 风格错误码 (沿用支付协议约定)
const (
	PublishCodeNotConnected = -1
	PublishCodeBadMessage   = 74
)

// PublishError 广播失败，带 posix 风格错误码和描述
type PublishError struct {
	Code        int
	Description string
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish failure (%d): %s", e.Code, e.Description)
}

func NewPublishError(code int, format string, args ...interface{}) *PublishError {
	return &PublishError{Code: code, Description: fmt.Sprintf(format, args...)}
}

// TxRelay 对等网络/中继抽象：广播一笔已签名的原始交易。
// rawTx 是币种家族各自的序列化格式 (BTC: wire 格式, ETH: RLP)。
// 失败返回 *PublishError。
type TxRelay interface {
	Publish(ctx context.Context, rawTx []byte) error
}
