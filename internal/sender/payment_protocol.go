package sender

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protowire"

	"payments-core/internal/relay"
	"payments-core/pkg/logger"
)

// 支付协议的 MIME 类型。bitcoin-* 是 BIP-70 二进制编码，
// 无前缀的是后来加的 JSON 变体 (结算走商户后台，不广播到链上)。
const (
	MimeTypeBitcoinPaymentRequest = "application/bitcoin-paymentrequest"
	MimeTypeBitcoinPayment        = "application/bitcoin-payment"
	MimeTypeBitcoinPaymentACK     = "application/bitcoin-paymentack"
	MimeTypePaymentRequest        = "application/payment-request"
	MimeTypePayment               = "application/payment"
	MimeTypePaymentACK            = "application/payment-ack"
)

// maxAckBodySize 商户 ACK 响应体上限
const maxAckBodySize = 50000

// merchantPostTimeout 商户回执请求的超时
const merchantPostTimeout = 20 * time.Second

// Output 支付请求里的一笔输出
type Output struct {
	Amount  uint64 `json:"amount"`
	Address string `json:"address"`
}

// ProtocolRequest 解析后的商户支付请求。
// MimeType 记录来源编码，决定回执走二进制还是 JSON。
type ProtocolRequest struct {
	Network         string
	Outputs         []Output
	Time            time.Time
	Expires         time.Time
	Memo            string
	PaymentURL      string
	MerchantData    []byte
	RequiredFeeRate float64 // satoshi/byte，商户要求的最低费率
	MimeType        string
	CommonName      string // 商户证书 CN
	CertError       string // 证书链校验失败的原因
}

// IsValid 请求未过期
func (r *ProtocolRequest) IsValid() bool {
	if r.Expires.IsZero() {
		return true
	}
	return time.Now().Before(r.Expires)
}

// TotalAmount 所有输出之和 (satoshi)
func (r *ProtocolRequest) TotalAmount() uint64 {
	var total uint64
	for _, out := range r.Outputs {
		total += out.Amount
	}
	return total
}

// Payment 提交给商户的支付回执
type Payment struct {
	MerchantData []byte
	Transactions [][]byte // 已签名的原始交易
	RefundTo     []RefundOutput
	Memo         string
	Currency     string // JSON 变体使用
}

// RefundOutput 退款输出 (BIP-70 里是 script，JSON 变体里是地址)
type RefundOutput struct {
	Amount  uint64
	Script  []byte
	Address string
}

// MarshalBinary BIP-70 Payment 编码:
// merchant_data=1, transactions=2, refund_to=3, memo=4
func (p *Payment) MarshalBinary() []byte {
	var b []byte
	if len(p.MerchantData) > 0 {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, p.MerchantData)
	}
	for _, tx := range p.Transactions {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, tx)
	}
	for _, out := range p.RefundTo {
		var ob []byte
		ob = protowire.AppendTag(ob, 1, protowire.VarintType)
		ob = protowire.AppendVarint(ob, out.Amount)
		ob = protowire.AppendTag(ob, 2, protowire.BytesType)
		ob = protowire.AppendBytes(ob, out.Script)
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, ob)
	}
	if p.Memo != "" {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendString(b, p.Memo)
	}
	return b
}

// MarshalJSON JSON 变体: 交易十六进制编码，退款按地址
func (p *Payment) MarshalJSON() ([]byte, error) {
	txs := make([]string, len(p.Transactions))
	for i, tx := range p.Transactions {
		txs[i] = hex.EncodeToString(tx)
	}
	refunds := make([]Output, len(p.RefundTo))
	for i, out := range p.RefundTo {
		refunds[i] = Output{Amount: out.Amount, Address: out.Address}
	}
	return json.Marshal(map[string]interface{}{
		"currency":     p.Currency,
		"transactions": txs,
		"refund_to":    refunds,
		"memo":         p.Memo,
	})
}

// PaymentACK 商户确认
type PaymentACK struct {
	Memo string
}

// ParsePaymentACKBinary 解析 BIP-70 PaymentAck (payment=1, memo=2)
func ParsePaymentACKBinary(data []byte) (*PaymentACK, error) {
	ack := &PaymentACK{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 2 && typ == protowire.BytesType:
			memo, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			ack.Memo = memo
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return ack, nil
}

// ParsePaymentACKJSON 解析 JSON 变体的 ACK
func ParsePaymentACKJSON(data []byte) (*PaymentACK, error) {
	var body struct {
		Memo string `json:"memo"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, err
	}
	return &PaymentACK{Memo: body.Memo}, nil
}

// OutputScript 地址对应的锁定脚本
func OutputScript(address string, params *chaincfg.Params) ([]byte, error) {
	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return nil, err
	}
	return txscript.PayToAddrScript(addr)
}

// MerchantClient 向商户的 payment_url 提交回执并等待 ACK
type MerchantClient struct {
	client *http.Client
	log    *zap.Logger
}

func NewMerchantClient() *MerchantClient {
	return &MerchantClient{
		client: &http.Client{Timeout: merchantPostTimeout},
		log:    logger.Log.Named("merchant"),
	}
}

// PostPayment 提交支付回执。编码跟随请求的 MIME 类型；
// 响应 Content-Type 必须匹配期望的 ACK 类型，超过 50000 字节按错误处理。
// 失败统一归为 *relay.PublishError (code 74)。
func (m *MerchantClient) PostPayment(ctx context.Context, req *ProtocolRequest, payment *Payment) (*PaymentACK, error) {
	if req.PaymentURL == "" {
		return nil, relay.NewPublishError(relay.PublishCodeBadMessage, "payment request has no payment_url")
	}

	binary := req.MimeType != MimeTypePaymentRequest
	var body []byte
	var contentType, acceptType string
	if binary {
		body = payment.MarshalBinary()
		contentType, acceptType = MimeTypeBitcoinPayment, MimeTypeBitcoinPaymentACK
	} else {
		var err error
		body, err = payment.MarshalJSON()
		if err != nil {
			return nil, relay.NewPublishError(relay.PublishCodeBadMessage, "encode payment: %v", err)
		}
		contentType, acceptType = MimeTypePayment, MimeTypePaymentACK
	}

	ctx, cancel := context.WithTimeout(ctx, merchantPostTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.PaymentURL, bytes.NewReader(body))
	if err != nil {
		return nil, relay.NewPublishError(relay.PublishCodeBadMessage, "%v", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", acceptType)

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, relay.NewPublishError(relay.PublishCodeNotConnected, "%v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, relay.NewPublishError(relay.PublishCodeBadMessage, "merchant returned HTTP %d", resp.StatusCode)
	}
	gotType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(gotType, acceptType) {
		return nil, relay.NewPublishError(relay.PublishCodeBadMessage, "unexpected ack content-type %q", gotType)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAckBodySize+1))
	if err != nil {
		return nil, relay.NewPublishError(relay.PublishCodeBadMessage, "%v", err)
	}
	if len(data) > maxAckBodySize {
		return nil, relay.NewPublishError(relay.PublishCodeBadMessage, "ack response too large")
	}

	var ack *PaymentACK
	if binary {
		ack, err = ParsePaymentACKBinary(data)
	} else {
		ack, err = ParsePaymentACKJSON(data)
	}
	if err != nil {
		return nil, relay.NewPublishError(relay.PublishCodeBadMessage, "decode ack: %v", err)
	}
	m.log.Info("merchant ack received", zap.String("memo", ack.Memo))
	return ack, nil
}
