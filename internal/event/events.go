package event

// 事件主题
const (
	TopicTransactionSent  = "payments_events_tx_sent"
	TopicCheckoutFinished = "payments_events_checkout"
	TopicPairingFinished  = "payments_events_pairing"
	TopicRateUpdates      = "payments_rates"
)

// RateUpdateEvent 行情推送的法币汇率更新
// Topic: payments_rates
type RateUpdateEvent struct {
	Currency string `json:"currency"` // 币种代码
	Rate     string `json:"rate"`     // 1 整单位币种的法币价格
}

// TransactionSentEvent 交易广播成功事件
// Topic: payments_events_tx_sent
type TransactionSentEvent struct {
	TxHash    string `json:"tx_hash"`
	Currency  string `json:"currency"`
	ToAddress string `json:"to_address"`
	Amount    string `json:"amount"` // 最小单位十进制字符串
	Source    string `json:"source"` // manual / checkout / protocol
}

// PairingFinishedEvent 配对流程终态事件
// Topic: payments_events_pairing
type PairingFinishedEvent struct {
	Result  string `json:"result"` // success / rejected / timeout / error / aborted
	Service string `json:"service,omitempty"`
}

// CheckoutFinishedEvent 结账请求终态事件
// Topic: payments_events_checkout
type CheckoutFinishedEvent struct {
	RemoteKey string `json:"remote_key"` // base64 远端配对公钥
	Type      string `json:"type"`       // payment / call
	Status    string `json:"status"`     // accepted / rejected / failed
	TxHash    string `json:"tx_hash,omitempty"`
	Error     string `json:"error,omitempty"`
}
