package relay

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"payments-core/pkg/logger"
)

// HTTPClient APIClient 的 HTTP/JSON 实现。
// 出站 HTTP 客户端直接用 net/http：包内没有现成的客户端库，
// 而信封投递需要对原始 body 和 Content-Type 的完全控制。
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
	log     *zap.Logger
}

func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
		log:     logger.Log.Named("api"),
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path, contentType string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("backend %s %s: HTTP %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (c *HTTPClient) AssociateKey(ctx context.Context, pubKey []byte) error {
	body, _ := json.Marshal(map[string]string{"public_key": hex.EncodeToString(pubKey)})
	err := c.do(ctx, http.MethodPost, "/me/associated-keys", "application/json", body, nil)
	if err != nil {
		c.log.Error("associate key failed", zap.Error(err))
	}
	return err
}

func (c *HTTPClient) SendMessage(ctx context.Context, envelope []byte) error {
	err := c.do(ctx, http.MethodPost, "/message", "application/x-protobuf", envelope, nil)
	if err != nil {
		c.log.Error("send message failed", zap.Error(err))
	}
	return err
}

func (c *HTTPClient) FetchInbox(ctx context.Context, afterCursor string, limit int) ([]InboxEntry, error) {
	q := url.Values{}
	if afterCursor != "" {
		q.Set("after", afterCursor)
	}
	q.Set("limit", strconv.Itoa(limit))

	var result struct {
		Entries []InboxEntry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, "/inbox?"+q.Encode(), "", nil, &result); err != nil {
		return nil, err
	}
	return result.Entries, nil
}

func (c *HTTPClient) SendAck(ctx context.Context, cursor string) error {
	body, _ := json.Marshal(map[string]string{"cursor": cursor})
	err := c.do(ctx, http.MethodPost, "/ack", "application/json", body, nil)
	if err != nil {
		// ack 失败只记录：条目下次 fetch 仍会出现，处理是幂等的
		c.log.Warn("ack failed", zap.String("cursor", cursor), zap.Error(err))
	}
	return err
}

func (c *HTTPClient) EstimateGas(ctx context.Context, params TransactionParams) (*uint256.Int, error) {
	body, _ := json.Marshal(params)
	var result struct {
		Result string `json:"result"` // hex
	}
	if err := c.do(ctx, http.MethodPost, "/eth/estimate-gas", "application/json", body, &result); err != nil {
		return nil, err
	}
	value, err := uint256.FromHex(result.Result)
	if err != nil {
		return nil, fmt.Errorf("estimate-gas: 非法的结果 %q: %w", result.Result, err)
	}
	return value, nil
}

func (c *HTTPClient) TokenBySaleAddress(ctx context.Context, saleAddress string) (*Token, error) {
	q := url.Values{}
	q.Set("sale_address", saleAddress)

	var result struct {
		Tokens []Token `json:"tokens"`
	}
	if err := c.do(ctx, http.MethodGet, "/currencies?"+q.Encode(), "", nil, &result); err != nil {
		return nil, err
	}
	if len(result.Tokens) == 0 {
		return nil, nil
	}
	return &result.Tokens[0], nil
}

func (c *HTTPClient) SendCheckoutEvent(ctx context.Context, event CheckoutEvent) error {
	body, _ := json.Marshal(event)
	return c.do(ctx, http.MethodPost, "/events/checkout", "application/json", body, nil)
}
