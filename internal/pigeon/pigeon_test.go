package pigeon

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payments-core/internal/relay"
	"payments-core/internal/store"
	"payments-core/pkg/config"
	"payments-core/pkg/errno"
)

func newKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return key
}

func TestDerivePairingKeyDeterministic(t *testing.T) {
	auth := newKey(t)

	a := DerivePairingKey(auth, "session-1")
	b := DerivePairingKey(auth, "session-1")
	c := DerivePairingKey(auth, "session-2")

	assert.Equal(t, a.Serialize(), b.Serialize(), "同一标识符必须派生同一密钥")
	assert.NotEqual(t, a.Serialize(), c.Serialize(), "不同标识符必须派生不同密钥")
	assert.NotEqual(t, auth.Serialize(), a.Serialize())
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	alice := newKey(t)
	bob := newKey(t)
	plaintext := []byte("meet at dawn")

	nonce, ciphertext, err := Encrypt(alice, bob.PubKey(), plaintext)
	require.NoError(t, err)
	require.Len(t, nonce, 12)

	got, err := Decrypt(bob, alice.PubKey(), nonce, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)

	// 第三方解不开
	eve := newKey(t)
	_, err = Decrypt(eve, alice.PubKey(), nonce, ciphertext)
	assert.ErrorIs(t, err, ErrDecryptFailed)

	// 篡改密文
	ciphertext[0] ^= 0xff
	_, err = Decrypt(bob, alice.PubKey(), nonce, ciphertext)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestEnvelopeRoundTripAndVerify(t *testing.T) {
	alice := newKey(t)
	bob := newKey(t)
	ping := &Ping{Ping: "hello"}

	envelope, err := NewEnvelope(alice, bob.PubKey(), "PWB", MessageTypePing, ping.Marshal())
	require.NoError(t, err)

	decoded, err := UnmarshalEnvelope(envelope.Marshal())
	require.NoError(t, err)
	assert.Equal(t, uint32(EnvelopeVersion), decoded.Version)
	assert.Equal(t, MessageTypePing, decoded.MessageType)
	assert.NotEmpty(t, decoded.Identifier)

	// 收件人视角: 验签 + 解密
	require.True(t, decoded.Verify(bob.PubKey()))
	plaintext, err := decoded.Decrypt(bob)
	require.NoError(t, err)
	got, err := UnmarshalPing(plaintext)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Ping)

	// 不是寄给这个公钥的
	assert.False(t, decoded.Verify(alice.PubKey()))

	// 篡改密文后签名失效
	decoded.EncryptedMessage[0] ^= 0xff
	assert.False(t, decoded.Verify(bob.PubKey()))
}

func TestReplyEnvelopeSwapsParties(t *testing.T) {
	alice := newKey(t)
	bob := newKey(t)

	inbound, err := NewEnvelope(alice, bob.PubKey(), "PWB", MessageTypePing, (&Ping{Ping: "x"}).Marshal())
	require.NoError(t, err)

	reply, err := ReplyEnvelope(bob, inbound, MessageTypePong, (&Pong{Pong: "x"}).Marshal())
	require.NoError(t, err)

	assert.Equal(t, inbound.SenderPublicKey, reply.ReceiverPublicKey)
	assert.Equal(t, bob.PubKey().SerializeCompressed(), reply.SenderPublicKey)
	// 标识符沿用请求，便于对端关联
	assert.Equal(t, inbound.Identifier, reply.Identifier)
	assert.True(t, reply.Verify(alice.PubKey()))
}

func TestMessageCodecs(t *testing.T) {
	link := &Link{ID: []byte("id-1"), PublicKey: []byte{1, 2, 3}, Status: LinkStatusAccepted, Error: "nope"}
	gotLink, err := UnmarshalLink(link.Marshal())
	require.NoError(t, err)
	assert.Equal(t, link, gotLink)

	pay := &PaymentRequest{
		Scope: "eth", Address: "0xabc", Amount: "1000", Memo: "m",
		TransactionSize: "100000", TransactionFee: "2000000000",
	}
	gotPay, err := UnmarshalPaymentRequest(pay.Marshal())
	require.NoError(t, err)
	assert.Equal(t, pay, gotPay)

	call := &CallRequest{Scope: "eth", Address: "0xdef", Amount: "5", Abi: "0xa9059cbb"}
	gotCall, err := UnmarshalCallRequest(call.Marshal())
	require.NoError(t, err)
	assert.Equal(t, call, gotCall)

	resp := &PaymentResponse{Scope: "eth", Status: ResponseStatusAccepted, TransactionID: "0xhash"}
	gotResp, err := UnmarshalPaymentResponse(resp.Marshal())
	require.NoError(t, err)
	assert.Equal(t, resp, gotResp)
}

// fakeAPI 内存版后端: 收件箱可编排，记录寄出的信封和确认
type fakeAPI struct {
	mu        sync.Mutex
	inbox     []relay.InboxEntry
	sent      [][]byte
	acked     map[string]int
	associate [][]byte
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{acked: map[string]int{}}
}

func (a *fakeAPI) push(cursor string, envelope *Envelope) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inbox = append(a.inbox, relay.InboxEntry{
		Cursor:  cursor,
		Message: base64.StdEncoding.EncodeToString(envelope.Marshal()),
	})
}

func (a *fakeAPI) pushRaw(cursor string, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inbox = append(a.inbox, relay.InboxEntry{Cursor: cursor, Message: message})
}

func (a *fakeAPI) AssociateKey(_ context.Context, pubKey []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.associate = append(a.associate, pubKey)
	return nil
}

func (a *fakeAPI) SendMessage(_ context.Context, envelope []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, append([]byte(nil), envelope...))
	return nil
}

func (a *fakeAPI) FetchInbox(_ context.Context, afterCursor string, limit int) ([]relay.InboxEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []relay.InboxEntry
	for _, entry := range a.inbox {
		if afterCursor != "" && entry.Cursor <= afterCursor {
			continue
		}
		e := entry
		e.Acknowledged = a.acked[e.Cursor] > 0
		out = append(out, e)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (a *fakeAPI) SendAck(_ context.Context, cursor string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked[cursor]++
	return nil
}

func (a *fakeAPI) EstimateGas(context.Context, relay.TransactionParams) (*uint256.Int, error) {
	return uint256.NewInt(21000), nil
}

func (a *fakeAPI) TokenBySaleAddress(context.Context, string) (*relay.Token, error) {
	return nil, nil
}

func (a *fakeAPI) SendCheckoutEvent(context.Context, relay.CheckoutEvent) error { return nil }

func (a *fakeAPI) sentEnvelopes(t *testing.T) []*Envelope {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Envelope, 0, len(a.sent))
	for _, raw := range a.sent {
		e, err := UnmarshalEnvelope(raw)
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

type fakeAccounts struct{ addrs map[string]string }

func (f *fakeAccounts) AddressForScope(scope string) (string, bool) {
	addr, found := f.addrs[scope]
	return addr, found
}

type fakeHandler struct {
	mu   sync.Mutex
	reqs []*CheckoutRequest
	// respond 非 nil 时直接回执
	respond *RequestOutcome
}

func (f *fakeHandler) HandleCheckoutRequest(ctx context.Context, req *CheckoutRequest) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.respond != nil {
		req.ResponseCallback(ctx, *f.respond)
	}
}

func testConfig() config.PigeonConfig {
	return config.PigeonConfig{
		Service:         "PWB",
		FetchInterval:   10 * time.Millisecond,
		PairingAttempts: 3,
		InboxLimit:      100,
	}
}

func newTestExchange(t *testing.T) (*Exchange, *fakeAPI, *fakeHandler, *btcec.PrivateKey) {
	t.Helper()
	api := newFakeAPI()
	handler := &fakeHandler{}
	auth := newKey(t)
	accounts := &fakeAccounts{addrs: map[string]string{"eth": "0x2222222222222222222222222222222222222222"}}
	ex := NewExchange(api, store.NewMemoryStore(), auth, accounts, handler, testConfig())
	return ex, api, handler, auth
}

// pairRemote 直接写入配对状态，模拟已完成的握手
func pairRemote(t *testing.T, ex *Exchange, remote *btcec.PrivateKey, identifier string) *btcec.PrivateKey {
	t.Helper()
	err := ex.records.addPairedWallet(context.Background(), remote.PubKey().SerializeCompressed(), PairedWalletData{
		Identifier: identifier,
		Service:    "PWB",
		CreatedAt:  time.Now(),
	})
	require.NoError(t, err)
	return DerivePairingKey(ex.authKey, identifier)
}

func TestAcceptPairingRequestSuccess(t *testing.T) {
	ex, api, _, auth := newTestExchange(t)
	remote := newKey(t)
	req := &PairingRequest{
		Identifier:      "pair-1",
		Service:         "PWB",
		RemotePublicKey: remote.PubKey().SerializeCompressed(),
	}

	// 远端收到我们的 LINK 后回一个 accepted LINK
	localPub := DerivePairingKey(auth, "pair-1").PubKey()
	response, err := NewEnvelope(remote, localPub, "PWB", MessageTypeLink, (&Link{
		ID:        []byte("pair-1"),
		PublicKey: remote.PubKey().SerializeCompressed(),
		Status:    LinkStatusAccepted,
	}).Marshal())
	require.NoError(t, err)
	api.push("c1", response)

	require.NoError(t, ex.AcceptPairingRequest(context.Background(), req))
	defer ex.StopPolling()

	// 配对公钥已注册，LINK 已寄出
	require.Len(t, api.associate, 1)
	assert.Equal(t, localPub.SerializeCompressed(), api.associate[0])
	sent := api.sentEnvelopes(t)
	require.NotEmpty(t, sent)
	assert.Equal(t, MessageTypeLink, sent[0].MessageType)

	// 配对状态已持久化
	data, err := ex.records.pairedWalletData(context.Background(), remote.PubKey().SerializeCompressed())
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, "pair-1", data.Identifier)
}

func TestAcceptPairingRequestRejected(t *testing.T) {
	ex, api, _, auth := newTestExchange(t)
	remote := newKey(t)
	req := &PairingRequest{
		Identifier:      "pair-2",
		Service:         "PWB",
		RemotePublicKey: remote.PubKey().SerializeCompressed(),
	}

	localPub := DerivePairingKey(auth, "pair-2").PubKey()
	response, err := NewEnvelope(remote, localPub, "PWB", MessageTypeLink, (&Link{
		ID:     []byte("pair-2"),
		Status: LinkStatusRejected,
	}).Marshal())
	require.NoError(t, err)
	api.push("c1", response)

	assert.ErrorIs(t, ex.AcceptPairingRequest(context.Background(), req), errno.ErrPairingRejected)
}

func TestAcceptPairingRequestIdentifierMismatch(t *testing.T) {
	ex, api, _, auth := newTestExchange(t)
	remote := newKey(t)
	req := &PairingRequest{
		Identifier:      "pair-3",
		Service:         "PWB",
		RemotePublicKey: remote.PubKey().SerializeCompressed(),
	}

	localPub := DerivePairingKey(auth, "pair-3").PubKey()
	response, err := NewEnvelope(remote, localPub, "PWB", MessageTypeLink, (&Link{
		ID:     []byte("some-other-session"),
		Status: LinkStatusAccepted,
	}).Marshal())
	require.NoError(t, err)
	api.push("c1", response)

	assert.ErrorIs(t, ex.AcceptPairingRequest(context.Background(), req), errno.ErrPairingAborted)
}

func TestAcceptPairingRequestTimeout(t *testing.T) {
	ex, _, _, _ := newTestExchange(t)
	remote := newKey(t)
	req := &PairingRequest{
		Identifier:      "pair-4",
		Service:         "PWB",
		RemotePublicKey: remote.PubKey().SerializeCompressed(),
	}
	// 收件箱里永远没有 LINK 响应
	assert.ErrorIs(t, ex.AcceptPairingRequest(context.Background(), req), errno.ErrPairingTimeout)
}

func TestPingGetsPong(t *testing.T) {
	ex, api, _, _ := newTestExchange(t)
	remote := newKey(t)
	localKey := pairRemote(t, ex, remote, "sess")

	ping, err := NewEnvelope(remote, localKey.PubKey(), "PWB", MessageTypePing, (&Ping{Ping: "hi"}).Marshal())
	require.NoError(t, err)
	api.push("c1", ping)

	require.NoError(t, ex.FetchInbox(context.Background()))

	sent := api.sentEnvelopes(t)
	require.Len(t, sent, 1)
	assert.Equal(t, MessageTypePong, sent[0].MessageType)

	// 远端能解开回信
	require.True(t, sent[0].Verify(remote.PubKey()))
	plaintext, err := sent[0].Decrypt(remote)
	require.NoError(t, err)
	pong, err := UnmarshalPong(plaintext)
	require.NoError(t, err)
	assert.Equal(t, "hi", pong.Pong)

	// 条目已确认、游标推进
	assert.Equal(t, 1, api.acked["c1"])
	meta, err := ex.records.inboxMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "c1", meta.LastCursor)
}

func TestAccountRequestResponse(t *testing.T) {
	ex, api, _, _ := newTestExchange(t)
	remote := newKey(t)
	localKey := pairRemote(t, ex, remote, "sess")

	reqEnv, err := NewEnvelope(remote, localKey.PubKey(), "PWB", MessageTypeAccountRequest, (&AccountRequest{Scope: "eth"}).Marshal())
	require.NoError(t, err)
	api.push("c1", reqEnv)

	require.NoError(t, ex.FetchInbox(context.Background()))

	sent := api.sentEnvelopes(t)
	require.Len(t, sent, 1)
	assert.Equal(t, MessageTypeAccountResponse, sent[0].MessageType)
	plaintext, err := sent[0].Decrypt(remote)
	require.NoError(t, err)
	resp, err := UnmarshalAccountResponse(plaintext)
	require.NoError(t, err)
	assert.Equal(t, ResponseStatusAccepted, resp.Status)
	assert.Equal(t, "0x2222222222222222222222222222222222222222", resp.Address)

	// 未知 scope 拒绝
	reqEnv2, err := NewEnvelope(remote, localKey.PubKey(), "PWB", MessageTypeAccountRequest, (&AccountRequest{Scope: "doge"}).Marshal())
	require.NoError(t, err)
	api.push("c2", reqEnv2)
	require.NoError(t, ex.FetchInbox(context.Background()))

	sent = api.sentEnvelopes(t)
	require.Len(t, sent, 2)
	plaintext, err = sent[1].Decrypt(remote)
	require.NoError(t, err)
	resp, err = UnmarshalAccountResponse(plaintext)
	require.NoError(t, err)
	assert.Equal(t, ResponseStatusRejected, resp.Status)
}

func TestPaymentRequestDispatchAndResponse(t *testing.T) {
	ex, api, handler, _ := newTestExchange(t)
	handler.respond = &RequestOutcome{Status: ResponseStatusAccepted, TransactionID: "0xdeadbeef"}
	remote := newKey(t)
	localKey := pairRemote(t, ex, remote, "sess")

	msg := &PaymentRequest{
		Scope:           "eth",
		Address:         "0x1111111111111111111111111111111111111111",
		Amount:          "1000000000000000000",
		Memo:            "coffee",
		TransactionFee:  "2000000000",
		TransactionSize: "",
	}
	env, err := NewEnvelope(remote, localKey.PubKey(), "PWB", MessageTypePaymentRequest, msg.Marshal())
	require.NoError(t, err)
	api.push("c1", env)

	require.NoError(t, ex.FetchInbox(context.Background()))

	// 请求进了审批回调，gas 取默认值
	require.Len(t, handler.reqs, 1)
	req := handler.reqs[0]
	assert.Equal(t, RequestTypePayment, req.Type)
	assert.Equal(t, uint64(defaultPaymentGasLimit), req.GasLimit)
	assert.Equal(t, uint256.NewInt(2000000000), req.GasPrice)

	// 回执已寄回
	sent := api.sentEnvelopes(t)
	require.Len(t, sent, 1)
	assert.Equal(t, MessageTypePaymentResponse, sent[0].MessageType)
	plaintext, err := sent[0].Decrypt(remote)
	require.NoError(t, err)
	resp, err := UnmarshalPaymentResponse(plaintext)
	require.NoError(t, err)
	assert.Equal(t, ResponseStatusAccepted, resp.Status)
	assert.Equal(t, "0xdeadbeef", resp.TransactionID)
}

func TestCallRequestDefaultGas(t *testing.T) {
	ex, api, handler, _ := newTestExchange(t)
	handler.respond = &RequestOutcome{Status: ResponseStatusRejected, Error: "user denied"}
	remote := newKey(t)
	localKey := pairRemote(t, ex, remote, "sess")

	msg := &CallRequest{
		Scope:   "eth",
		Address: "0x3333333333333333333333333333333333333333",
		Amount:  "0",
		Abi:     "0xa9059cbb",
	}
	env, err := NewEnvelope(remote, localKey.PubKey(), "PWB", MessageTypeCallRequest, msg.Marshal())
	require.NoError(t, err)
	api.push("c1", env)

	require.NoError(t, ex.FetchInbox(context.Background()))

	require.Len(t, handler.reqs, 1)
	assert.Equal(t, RequestTypeCall, handler.reqs[0].Type)
	assert.Equal(t, uint64(defaultCallGasLimit), handler.reqs[0].GasLimit)
	assert.Equal(t, "0xa9059cbb", handler.reqs[0].AbiData)

	sent := api.sentEnvelopes(t)
	require.Len(t, sent, 1)
	assert.Equal(t, MessageTypeCallResponse, sent[0].MessageType)
}

func TestUnknownSenderAndBadSignatureAreAcked(t *testing.T) {
	ex, api, _, _ := newTestExchange(t)
	remote := newKey(t)
	localKey := pairRemote(t, ex, remote, "sess")

	// 未配对的发件人
	stranger := newKey(t)
	env1, err := NewEnvelope(stranger, localKey.PubKey(), "PWB", MessageTypePing, (&Ping{Ping: "?"}).Marshal())
	require.NoError(t, err)
	api.push("c1", env1)

	// 已配对发件人但签名被篡改
	env2, err := NewEnvelope(remote, localKey.PubKey(), "PWB", MessageTypePing, (&Ping{Ping: "!"}).Marshal())
	require.NoError(t, err)
	env2.Signature[4] ^= 0xff
	api.push("c2", env2)

	require.NoError(t, ex.FetchInbox(context.Background()))

	// 两条都确认 (重试不会变好)，没有任何回信
	assert.Equal(t, 1, api.acked["c1"])
	assert.Equal(t, 1, api.acked["c2"])
	assert.Empty(t, api.sent)
	meta, err := ex.records.inboxMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "c2", meta.LastCursor)
}

func TestCursorStopsAtSkippedEntry(t *testing.T) {
	ex, api, _, _ := newTestExchange(t)
	remote := newKey(t)
	localKey := pairRemote(t, ex, remote, "sess")

	// c1 正常，c2 是已配对发件人但内层消息解不出来 (跳过)，c3 正常
	env1, err := NewEnvelope(remote, localKey.PubKey(), "PWB", MessageTypePing, (&Ping{Ping: "1"}).Marshal())
	require.NoError(t, err)
	api.push("c1", env1)
	env2, err := NewEnvelope(remote, localKey.PubKey(), "PWB", MessageTypePing, []byte{0xff, 0xff, 0xff})
	require.NoError(t, err)
	api.push("c2", env2)
	env3, err := NewEnvelope(remote, localKey.PubKey(), "PWB", MessageTypePing, (&Ping{Ping: "3"}).Marshal())
	require.NoError(t, err)
	api.push("c3", env3)

	require.NoError(t, ex.FetchInbox(context.Background()))

	// c2 不确认留待重试；c3 仍被处理和确认，但游标停在跳过点之前
	assert.Equal(t, 1, api.acked["c1"])
	assert.Equal(t, 0, api.acked["c2"])
	assert.Equal(t, 1, api.acked["c3"])
	meta, err := ex.records.inboxMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "c1", meta.LastCursor)

	// 重新拉取: c2 仍在游标之后，重复处理 c3 是幂等的 (已确认被过滤)
	require.NoError(t, ex.FetchInbox(context.Background()))
	assert.Equal(t, 0, api.acked["c2"])
	assert.Equal(t, 1, api.acked["c3"])
}

func TestUndecodableEntryAckedAndCursorAdvances(t *testing.T) {
	ex, api, _, _ := newTestExchange(t)
	remote := newKey(t)
	localKey := pairRemote(t, ex, remote, "sess")

	// c1 连信封都解不出来: 永远处理不了，确认掉且游标照常推进
	api.pushRaw("c1", "!!! not base64 !!!")
	env2, err := NewEnvelope(remote, localKey.PubKey(), "PWB", MessageTypePing, (&Ping{Ping: "2"}).Marshal())
	require.NoError(t, err)
	api.push("c2", env2)

	require.NoError(t, ex.FetchInbox(context.Background()))

	assert.Equal(t, 1, api.acked["c1"])
	assert.Equal(t, 1, api.acked["c2"])
	meta, err := ex.records.inboxMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "c2", meta.LastCursor)

	// 已确认条目重放不改变任何状态
	require.NoError(t, ex.FetchInbox(context.Background()))
	assert.Equal(t, 1, api.acked["c1"])
	assert.Equal(t, 1, api.acked["c2"])
}

func TestSendPingRequiresPairing(t *testing.T) {
	ex, api, _, _ := newTestExchange(t)
	remote := newKey(t)

	err := ex.SendPing(context.Background(), remote.PubKey().SerializeCompressed(), "hi")
	assert.ErrorIs(t, err, errno.ErrNotPaired)

	pairRemote(t, ex, remote, "sess")
	require.NoError(t, ex.SendPing(context.Background(), remote.PubKey().SerializeCompressed(), "hi"))
	sent := api.sentEnvelopes(t)
	require.Len(t, sent, 1)
	assert.Equal(t, MessageTypePing, sent[0].MessageType)
}

func TestStartPollingRequiresPairedWallets(t *testing.T) {
	ex, _, _, _ := newTestExchange(t)

	// 没有配对时不启动
	ex.StartPolling()
	ex.mu.Lock()
	assert.Nil(t, ex.pollCancel)
	ex.mu.Unlock()

	remote := newKey(t)
	pairRemote(t, ex, remote, "sess")
	ex.StartPolling()
	ex.mu.Lock()
	assert.NotNil(t, ex.pollCancel)
	ex.mu.Unlock()

	// 重复启动替换而不是叠加；停止幂等
	ex.StartPolling()
	ex.StopPolling()
	ex.StopPolling()
	ex.mu.Lock()
	assert.Nil(t, ex.pollCancel)
	ex.mu.Unlock()
}

func TestPushEnabledSuppressesPolling(t *testing.T) {
	api := newFakeAPI()
	cfg := testConfig()
	cfg.PushEnabled = true
	auth := newKey(t)
	ex := NewExchange(api, store.NewMemoryStore(), auth, &fakeAccounts{}, &fakeHandler{}, cfg)

	remote := newKey(t)
	pairRemote(t, ex, remote, "sess")
	ex.StartPolling()
	ex.mu.Lock()
	assert.Nil(t, ex.pollCancel)
	ex.mu.Unlock()
}
