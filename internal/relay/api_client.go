package relay

import (
	"context"

	"github.com/holiman/uint256"
)

// InboxEntry 收件箱条目。Cursor 是服务端分配的不透明排序令牌。
type InboxEntry struct {
	Cursor       string `json:"cursor"`
	Message      string `json:"message"` // base64 编码的信封
	Acknowledged bool   `json:"acknowledged"`
}

// Unacknowledged 过滤出未确认的条目，保持服务端顺序
func Unacknowledged(entries []InboxEntry) []InboxEntry {
	out := make([]InboxEntry, 0, len(entries))
	for _, e := range entries {
		if !e.Acknowledged {
			out = append(out, e)
		}
	}
	return out
}

// TransactionParams 估气调用参数
type TransactionParams struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value,omitempty"` // hex
	Data  string `json:"data,omitempty"`  // hex calldata
}

// Token 按销售地址查询到的 ERC-20 代币信息
type Token struct {
	Code            string  `json:"code"`
	Name            string  `json:"name"`
	ContractAddress string  `json:"contract_address"`
	SaleAddress     string  `json:"sale_address"`
	Decimals        int     `json:"scale"`
	DefaultRate     float64 `json:"contract_initial_value,omitempty"`
}

// CheckoutEvent 结算完成后的上报事件
type CheckoutEvent struct {
	TxHash       string `json:"tx_hash"`
	FromCurrency string `json:"from_currency"`
	FromAddress  string `json:"from_address"`
	FromAmount   string `json:"from_amount"`
	ToCurrency   string `json:"to_currency"`
	ToAmount     string `json:"to_amount"`
}

// APIClient 后端 API 抽象 (消息中转 + 估气 + 代币目录)。
// 所有调用都是网络异步语义：带 ctx、显式错误返回。
type APIClient interface {
	// AssociateKey 将本地配对公钥注册到后端
	AssociateKey(ctx context.Context, pubKey []byte) error
	// SendMessage 投递一个序列化后的信封
	SendMessage(ctx context.Context, envelope []byte) error
	// FetchInbox 拉取 afterCursor 之后最多 limit 条收件箱条目
	FetchInbox(ctx context.Context, afterCursor string, limit int) ([]InboxEntry, error)
	// SendAck 确认指定游标的条目
	SendAck(ctx context.Context, cursor string) error
	// EstimateGas 估算一笔交易的 gas limit
	EstimateGas(ctx context.Context, params TransactionParams) (*uint256.Int, error)
	// TokenBySaleAddress 按销售地址查询代币，未知返回 (nil, nil)
	TokenBySaleAddress(ctx context.Context, saleAddress string) (*Token, error)
	// SendCheckoutEvent 上报结算事件 (尽力而为)
	SendCheckoutEvent(ctx context.Context, event CheckoutEvent) error
}
