package pigeon

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"go.uber.org/zap"

	"payments-core/internal/event"
	"payments-core/internal/relay"
	"payments-core/internal/store"
	"payments-core/pkg/config"
	"payments-core/pkg/errno"
	"payments-core/pkg/logger"
	"payments-core/pkg/monitor"
)

// WalletAccounts 按币种 scope 提供收款地址 (ACCOUNT_REQUEST 的数据源)
type WalletAccounts interface {
	AddressForScope(scope string) (string, bool)
}

// RequestHandler 审批结账请求。实现方处理完后必须恰好调用一次
// req.ResponseCallback，结果会被寄回发起方。
type RequestHandler interface {
	HandleCheckoutRequest(ctx context.Context, req *CheckoutRequest)
}

// PairingRequest 配对 URL 解析出的参数
type PairingRequest struct {
	Identifier      string
	Service         string
	RemotePublicKey []byte // 远端压缩公钥
	ReturnToURL     string
}

// Exchange 配对与信封交换的编排器。
// 配对状态全部落在 KV 存储里，进程重启后凭认证根密钥和存储的
// identifier 可以重新派生所有配对密钥。
type Exchange struct {
	api      relay.APIClient
	records  *recordStore
	authKey  *btcec.PrivateKey
	accounts WalletAccounts
	handler  RequestHandler
	events   EventPublisher
	cfg      config.PigeonConfig
	log      *zap.Logger

	mu         sync.Mutex
	pollCancel context.CancelFunc
	pairing    bool
}

func NewExchange(api relay.APIClient, kv store.KVStore, authKey *btcec.PrivateKey, accounts WalletAccounts, handler RequestHandler, cfg config.PigeonConfig) *Exchange {
	if cfg.FetchInterval <= 0 {
		cfg.FetchInterval = 3 * time.Second
	}
	if cfg.PairingAttempts <= 0 {
		cfg.PairingAttempts = 10
	}
	if cfg.InboxLimit <= 0 {
		cfg.InboxLimit = 100
	}
	return &Exchange{
		api:      api,
		records:  &recordStore{kv: kv},
		authKey:  authKey,
		accounts: accounts,
		handler:  handler,
		cfg:      cfg,
		log:      logger.Log.Named("pigeon"),
	}
}

// EventPublisher 对外广播配对终态的最小接口 (service/mq.Producer 的子集)
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key string, payload []byte) error
}

// UseEventPublisher 注入事件通道，配对终态会尽力外发
func (e *Exchange) UseEventPublisher(p EventPublisher) {
	e.events = p
}

// PairingPublicKey 指定标识符对应的本地配对公钥 (压缩)
func (e *Exchange) PairingPublicKey(identifier string) []byte {
	return DerivePairingKey(e.authKey, identifier).PubKey().SerializeCompressed()
}

func (e *Exchange) beginPairing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pairing {
		return false
	}
	e.pairing = true
	return true
}

func (e *Exchange) endPairing() {
	e.mu.Lock()
	e.pairing = false
	e.mu.Unlock()
}

// AcceptPairingRequest 执行配对握手:
// 注册配对公钥 → 寄出 LINK(accepted) → 轮询等待远端的 LINK 响应 →
// 校验身份与标识符 → 持久化配对 → 启动收件箱轮询。
func (e *Exchange) AcceptPairingRequest(ctx context.Context, req *PairingRequest) error {
	if !e.beginPairing() {
		return errno.ErrPairingAborted
	}
	defer e.endPairing()

	pairingKey := DerivePairingKey(e.authKey, req.Identifier)
	remotePub, err := btcec.ParsePubKey(req.RemotePublicKey)
	if err != nil {
		e.recordPairing("error")
		return errno.ErrEnvelopeInvalid
	}

	if err := e.api.AssociateKey(ctx, pairingKey.PubKey().SerializeCompressed()); err != nil {
		e.recordPairing("error")
		return err
	}

	link := &Link{
		ID:        []byte(req.Identifier),
		PublicKey: pairingKey.PubKey().SerializeCompressed(),
		Status:    LinkStatusAccepted,
	}
	envelope, err := NewEnvelope(pairingKey, remotePub, req.Service, MessageTypeLink, link.Marshal())
	if err != nil {
		e.recordPairing("error")
		return err
	}
	if err := e.api.SendMessage(ctx, envelope.Marshal()); err != nil {
		e.recordPairing("error")
		return err
	}
	e.recordEnvelopeSent(MessageTypeLink)
	e.log.Info("pairing link sent, waiting for response",
		zap.String("service", req.Service))

	return e.awaitLinkResponse(ctx, req, pairingKey)
}

// awaitLinkResponse 轮询收件箱等待远端的 LINK。非 LINK 与不可解码
// 的条目直接确认，避免配对期间堆积。
func (e *Exchange) awaitLinkResponse(ctx context.Context, req *PairingRequest, pairingKey *btcec.PrivateKey) error {
	ticker := time.NewTicker(e.cfg.FetchInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < e.cfg.PairingAttempts; attempt++ {
		select {
		case <-ctx.Done():
			e.recordPairing("aborted")
			return errno.ErrPairingAborted
		case <-ticker.C:
		}

		meta, err := e.records.inboxMetadata(ctx)
		if err != nil {
			e.log.Warn("inbox metadata read failed", zap.Error(err))
			continue
		}
		entries, err := e.api.FetchInbox(ctx, meta.LastCursor, e.cfg.InboxLimit)
		if err != nil {
			e.log.Warn("pairing inbox fetch failed", zap.Error(err))
			continue
		}
		for _, entry := range relay.Unacknowledged(entries) {
			raw, err := base64.StdEncoding.DecodeString(entry.Message)
			if err != nil {
				_ = e.api.SendAck(ctx, entry.Cursor)
				continue
			}
			envelope, err := UnmarshalEnvelope(raw)
			if err != nil || envelope.MessageType != MessageTypeLink {
				_ = e.api.SendAck(ctx, entry.Cursor)
				continue
			}
			done, err := e.finishPairing(ctx, req, pairingKey, envelope)
			_ = e.api.SendAck(ctx, entry.Cursor)
			if done {
				return err
			}
		}
	}
	e.recordPairing("timeout")
	return errno.ErrPairingTimeout
}

// finishPairing 处理远端的 LINK 响应。done 为 false 表示该信封与
// 本次配对无关，继续等待。
func (e *Exchange) finishPairing(ctx context.Context, req *PairingRequest, pairingKey *btcec.PrivateKey, envelope *Envelope) (bool, error) {
	if !envelope.Verify(pairingKey.PubKey()) {
		e.recordPairing("error")
		return true, errno.ErrEnvelopeInvalid
	}
	plaintext, err := envelope.Decrypt(pairingKey)
	if err != nil {
		e.recordPairing("error")
		return true, errno.ErrEnvelopeInvalid
	}
	link, err := UnmarshalLink(plaintext)
	if err != nil {
		e.recordPairing("error")
		return true, errno.ErrEnvelopeInvalid
	}
	if link.Status == LinkStatusRejected {
		e.recordPairing("rejected")
		return true, errno.ErrPairingRejected
	}
	if string(link.ID) != req.Identifier {
		e.recordPairing("error")
		return true, errno.ErrPairingAborted
	}

	data := PairedWalletData{
		Identifier: req.Identifier,
		Service:    req.Service,
		CreatedAt:  time.Now(),
	}
	if err := e.records.addPairedWallet(ctx, envelope.SenderPublicKey, data); err != nil {
		e.recordPairing("error")
		return true, err
	}
	e.recordPairing("success")
	e.log.Info("pairing established", zap.String("service", req.Service))
	e.StartPolling()
	return true, nil
}

// RejectPairingRequest 寄出 LINK(rejected)，不建立任何状态
func (e *Exchange) RejectPairingRequest(ctx context.Context, req *PairingRequest) error {
	pairingKey := DerivePairingKey(e.authKey, req.Identifier)
	remotePub, err := btcec.ParsePubKey(req.RemotePublicKey)
	if err != nil {
		return errno.ErrEnvelopeInvalid
	}
	link := &Link{ID: []byte(req.Identifier), Status: LinkStatusRejected}
	envelope, err := NewEnvelope(pairingKey, remotePub, req.Service, MessageTypeLink, link.Marshal())
	if err != nil {
		return err
	}
	if err := e.api.SendMessage(ctx, envelope.Marshal()); err != nil {
		return err
	}
	e.recordEnvelopeSent(MessageTypeLink)
	e.recordPairing("rejected")
	return nil
}

// FetchInbox 拉取并处理游标之后的收件箱条目。单页拉满说明后面还有，
// 迭代继续直到短页。
func (e *Exchange) FetchInbox(ctx context.Context) error {
	for {
		meta, err := e.records.inboxMetadata(ctx)
		if err != nil {
			return err
		}
		entries, err := e.api.FetchInbox(ctx, meta.LastCursor, e.cfg.InboxLimit)
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			e.processEntries(ctx, entries)
		}
		if len(entries) < e.cfg.InboxLimit {
			return nil
		}
		// 整页被跳过时游标不动，留给下一轮轮询避免空转
		after, err := e.records.inboxMetadata(ctx)
		if err != nil || after.LastCursor == meta.LastCursor {
			return err
		}
	}
}

// processEntries 按服务端顺序处理条目。解不出信封的条目永远处理
// 不了，直接确认掉；可解码条目走 processEnvelope，返回 false 表示
// 重试可能成功，不确认。游标只在本条目与之前所有条目都已解决时
// 推进: 一旦出现跳过，后续条目仍会处理并确认，但游标停在跳过点
// 之前，下次 fetch 重新覆盖。
func (e *Exchange) processEntries(ctx context.Context, entries []relay.InboxEntry) {
	hasSkippedEntry := false
	for _, entry := range relay.Unacknowledged(entries) {
		envelope, decodable := decodeEntry(entry)
		if !decodable {
			_ = e.api.SendAck(ctx, entry.Cursor)
			if !hasSkippedEntry {
				e.advanceCursor(ctx, entry.Cursor)
			}
			e.recordInbox("discarded")
			continue
		}
		if e.processEnvelope(ctx, envelope) {
			_ = e.api.SendAck(ctx, entry.Cursor)
			if !hasSkippedEntry {
				e.advanceCursor(ctx, entry.Cursor)
			}
			e.recordInbox("processed")
		} else {
			hasSkippedEntry = true
			e.recordInbox("skipped")
		}
	}
}

func decodeEntry(entry relay.InboxEntry) (*Envelope, bool) {
	raw, err := base64.StdEncoding.DecodeString(entry.Message)
	if err != nil {
		return nil, false
	}
	envelope, err := UnmarshalEnvelope(raw)
	if err != nil {
		return nil, false
	}
	return envelope, true
}

func (e *Exchange) advanceCursor(ctx context.Context, cursor string) {
	if err := e.records.setLastCursor(ctx, cursor); err != nil {
		e.log.Warn("cursor update failed", zap.String("cursor", cursor), zap.Error(err))
	}
}

// processEnvelope 返回 true 表示条目可以确认。
// 无法归属或验签失败的信封确认掉 (重试不会变好)；已配对发件人的
// 解密或内层解码失败不确认，留给下次 fetch 重试；LINK 只属于
// 配对流程，这里跳过留给配对轮询。
func (e *Exchange) processEnvelope(ctx context.Context, envelope *Envelope) bool {
	if envelope.MessageType == MessageTypeLink {
		return false
	}

	data, err := e.records.pairedWalletData(ctx, envelope.SenderPublicKey)
	if err != nil {
		e.log.Warn("paired wallet lookup failed", zap.Error(err))
		return false
	}
	if data == nil {
		e.log.Info("envelope from unknown sender, acking",
			zap.String("type", envelope.MessageType))
		return true
	}

	pairingKey := DerivePairingKey(e.authKey, data.Identifier)
	if !envelope.Verify(pairingKey.PubKey()) {
		e.log.Warn("envelope signature invalid, acking",
			zap.String("type", envelope.MessageType))
		return true
	}
	plaintext, err := envelope.Decrypt(pairingKey)
	if err != nil {
		e.log.Warn("envelope decrypt failed, skipping",
			zap.String("type", envelope.MessageType))
		return false
	}

	switch envelope.MessageType {
	case MessageTypePing:
		return e.handlePing(ctx, pairingKey, envelope, plaintext)
	case MessageTypeAccountRequest:
		return e.handleAccountRequest(ctx, pairingKey, envelope, plaintext)
	case MessageTypePaymentRequest:
		return e.handlePaymentRequest(ctx, pairingKey, envelope, plaintext)
	case MessageTypeCallRequest:
		return e.handleCallRequest(ctx, pairingKey, envelope, plaintext)
	default:
		e.log.Info("unknown message type, acking", zap.String("type", envelope.MessageType))
		return true
	}
}

// 四个 handler 返回 false 表示内层消息解码失败，条目留待重试

func (e *Exchange) handlePing(ctx context.Context, pairingKey *btcec.PrivateKey, envelope *Envelope, plaintext []byte) bool {
	ping, err := UnmarshalPing(plaintext)
	if err != nil {
		return false
	}
	pong := &Pong{Pong: ping.Ping}
	e.sendReply(ctx, pairingKey, envelope, MessageTypePong, pong.Marshal())
	return true
}

func (e *Exchange) handleAccountRequest(ctx context.Context, pairingKey *btcec.PrivateKey, envelope *Envelope, plaintext []byte) bool {
	req, err := UnmarshalAccountRequest(plaintext)
	if err != nil {
		return false
	}
	resp := &AccountResponse{Scope: req.Scope, Status: ResponseStatusRejected}
	if address, found := e.accounts.AddressForScope(req.Scope); found {
		resp.Address = address
		resp.Status = ResponseStatusAccepted
	}
	e.sendReply(ctx, pairingKey, envelope, MessageTypeAccountResponse, resp.Marshal())

	// 账户交换完成后推送通道接管投递，轮询退场
	if e.cfg.PushEnabled {
		e.StopPolling()
	}
	return true
}

func (e *Exchange) handlePaymentRequest(ctx context.Context, pairingKey *btcec.PrivateKey, envelope *Envelope, plaintext []byte) bool {
	msg, err := UnmarshalPaymentRequest(plaintext)
	if err != nil {
		return false
	}
	req, err := buildPaymentRequest(ctx, e.api, msg)
	if err != nil {
		e.log.Warn("payment request rejected", zap.Error(err))
		e.sendCheckoutResponse(ctx, pairingKey, envelope, MessageTypePaymentResponse, msg.Scope,
			RequestOutcome{Status: ResponseStatusRejected, Error: err.Error()})
		return true
	}
	req.ResponseCallback = func(cbCtx context.Context, outcome RequestOutcome) {
		e.sendCheckoutResponse(cbCtx, pairingKey, envelope, MessageTypePaymentResponse, msg.Scope, outcome)
	}
	e.handler.HandleCheckoutRequest(ctx, req)
	return true
}

func (e *Exchange) handleCallRequest(ctx context.Context, pairingKey *btcec.PrivateKey, envelope *Envelope, plaintext []byte) bool {
	msg, err := UnmarshalCallRequest(plaintext)
	if err != nil {
		return false
	}
	req, err := buildCallRequest(ctx, e.api, msg)
	if err != nil {
		e.log.Warn("call request rejected", zap.Error(err))
		e.sendCheckoutResponse(ctx, pairingKey, envelope, MessageTypeCallResponse, msg.Scope,
			RequestOutcome{Status: ResponseStatusRejected, Error: err.Error()})
		return true
	}
	req.ResponseCallback = func(cbCtx context.Context, outcome RequestOutcome) {
		e.sendCheckoutResponse(cbCtx, pairingKey, envelope, MessageTypeCallResponse, msg.Scope, outcome)
	}
	e.handler.HandleCheckoutRequest(ctx, req)
	return true
}

func (e *Exchange) sendCheckoutResponse(ctx context.Context, pairingKey *btcec.PrivateKey, inReplyTo *Envelope, messageType, scope string, outcome RequestOutcome) {
	resp := &PaymentResponse{
		Scope:         scope,
		Status:        outcome.Status,
		TransactionID: outcome.TransactionID,
		Error:         outcome.Error,
	}
	e.sendReply(ctx, pairingKey, inReplyTo, messageType, resp.Marshal())
}

func (e *Exchange) sendReply(ctx context.Context, pairingKey *btcec.PrivateKey, inReplyTo *Envelope, messageType string, payload []byte) {
	envelope, err := ReplyEnvelope(pairingKey, inReplyTo, messageType, payload)
	if err != nil {
		e.log.Error("build reply failed", zap.String("type", messageType), zap.Error(err))
		return
	}
	if err := e.api.SendMessage(ctx, envelope.Marshal()); err != nil {
		e.log.Error("send reply failed", zap.String("type", messageType), zap.Error(err))
		return
	}
	e.recordEnvelopeSent(messageType)
}

// SendPing 给已配对的远端寄一个 PING
func (e *Exchange) SendPing(ctx context.Context, remotePubKey []byte, text string) error {
	data, err := e.records.pairedWalletData(ctx, remotePubKey)
	if err != nil {
		return err
	}
	if data == nil {
		return errno.ErrNotPaired
	}
	remotePub, err := btcec.ParsePubKey(remotePubKey)
	if err != nil {
		return errno.ErrEnvelopeInvalid
	}
	pairingKey := DerivePairingKey(e.authKey, data.Identifier)
	ping := &Ping{Ping: text}
	envelope, err := NewEnvelope(pairingKey, remotePub, data.Service, MessageTypePing, ping.Marshal())
	if err != nil {
		return err
	}
	if err := e.api.SendMessage(ctx, envelope.Marshal()); err != nil {
		return err
	}
	e.recordEnvelopeSent(MessageTypePing)
	return nil
}

// StartPolling 启动收件箱轮询。单例: 重复调用替换旧的轮询。
// 推送通道活跃或没有任何配对时不启动。
func (e *Exchange) StartPolling() {
	if e.cfg.PushEnabled {
		return
	}
	index, err := e.records.pairedWallets(context.Background())
	if err != nil || len(index.PublicKeys) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pollCancel != nil {
		e.pollCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.pollCancel = cancel
	go e.pollLoop(ctx)
}

// StopPolling 停止轮询 (幂等)
func (e *Exchange) StopPolling() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pollCancel != nil {
		e.pollCancel()
		e.pollCancel = nil
	}
}

func (e *Exchange) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.FetchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.FetchInbox(ctx); err != nil && ctx.Err() == nil {
				e.log.Warn("inbox fetch failed", zap.Error(err))
			}
		}
	}
}

func (e *Exchange) recordPairing(result string) {
	if monitor.Business != nil {
		monitor.Business.PairingTotal.WithLabelValues(result).Inc()
	}
	if e.events != nil {
		payload, _ := json.Marshal(event.PairingFinishedEvent{Result: result, Service: e.cfg.Service})
		if err := e.events.Publish(context.Background(), event.TopicPairingFinished, "", payload); err != nil {
			e.log.Warn("发布配对事件失败", zap.Error(err))
		}
	}
}

func (e *Exchange) recordInbox(result string) {
	if monitor.Business != nil {
		monitor.Business.InboxEntriesTotal.WithLabelValues(result).Inc()
	}
}

func (e *Exchange) recordEnvelopeSent(messageType string) {
	if monitor.Business != nil {
		monitor.Business.EnvelopesSentTotal.WithLabelValues(messageType).Inc()
	}
}
