package sender

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"payments-core/internal/relay"
	"payments-core/pkg/amount"
)

// 主网上的任意有效 P2PKH 地址
const (
	addrPayee   = "1BoatSLRHtKNngkdXEeobR76b53LETtpyT"
	addrOwn     = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"
	addrChange  = "1CounterpartyXXXXXXXXXXXXXXXUWLpVr"
	ethPayee    = "0x1111111111111111111111111111111111111111"
	ethOwn      = "0x2222222222222222222222222222222222222222"
	ethContract = "0x3333333333333333333333333333333333333333"
)

type fakeBTCWallet struct {
	utxos    []UTXO
	feePerKB uint64
	used     map[string]bool
}

func newFakeBTCWallet(values ...uint64) *fakeBTCWallet {
	w := &fakeBTCWallet{feePerKB: 10000, used: map[string]bool{}}
	for i, v := range values {
		var hash chainhash.Hash
		hash[0] = byte(i + 1)
		w.utxos = append(w.utxos, UTXO{
			OutPoint: wire.OutPoint{Hash: hash, Index: uint32(i)},
			Value:    v,
			Address:  addrOwn,
		})
	}
	return w
}

func (w *fakeBTCWallet) ReceiveAddress() string        { return addrOwn }
func (w *fakeBTCWallet) ChangeAddress() string         { return addrChange }
func (w *fakeBTCWallet) IsOwnAddress(a string) bool    { return a == addrOwn }
func (w *fakeBTCWallet) AddressIsUsed(a string) bool   { return w.used[a] }
func (w *fakeBTCWallet) Spendables() []UTXO            { return w.utxos }
func (w *fakeBTCWallet) MinOutputAmount() uint64       { return 546 }
func (w *fakeBTCWallet) FeePerKB() uint64              { return w.feePerKB }
func (w *fakeBTCWallet) SetFeePerKB(rate uint64)       { w.feePerKB = rate }
func (w *fakeBTCWallet) MaxOutputAmount() uint64 {
	var total uint64
	for _, u := range w.utxos {
		total += u.Value
	}
	if total < 2000 {
		return 0
	}
	return total - 2000
}

type fakeEthWallet struct {
	balances map[string]amount.Amount
	nonce    uint64
}

func (w *fakeEthWallet) Address() string             { return ethOwn }
func (w *fakeEthWallet) IsOwnAddress(a string) bool  { return a == ethOwn }
func (w *fakeEthWallet) Nonce() uint64               { return w.nonce }
func (w *fakeEthWallet) Balance(code string) (amount.Amount, bool) {
	a, found := w.balances[code]
	return a, found
}
func (w *fakeEthWallet) DefaultGasLimit(c amount.Currency) uint64 {
	if c.IsToken() {
		return 92000
	}
	return 21000
}

type fakeSigner struct {
	biometric    SignStatus
	biometricErr error
	delay        time.Duration
	pinUsed      bool
}

func (s *fakeSigner) CanUseBiometrics(PendingTransaction) bool { return true }

func (s *fakeSigner) sign(tx PendingTransaction) error {
	switch t := tx.(type) {
	case *BitcoinTransaction:
		t.MarkSigned()
	case *EthTransaction:
		key, err := crypto.GenerateKey()
		if err != nil {
			return err
		}
		signed, err := types.SignTx(t.UnsignedTx(), types.HomesteadSigner{}, key)
		if err != nil {
			return err
		}
		t.Signed = signed
	}
	return nil
}

func (s *fakeSigner) SignWithBiometrics(_ context.Context, tx PendingTransaction) (SignStatus, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.biometric == SignSuccess && s.biometricErr == nil {
		return SignSuccess, s.sign(tx)
	}
	return s.biometric, s.biometricErr
}

func (s *fakeSigner) SignWithPIN(_ context.Context, tx PendingTransaction, pin string) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if pin != "123456" {
		return errors.New("wrong pin")
	}
	s.pinUsed = true
	return s.sign(tx)
}

type fakeRelay struct {
	published [][]byte
	err       error
}

func (r *fakeRelay) Publish(_ context.Context, rawTx []byte) error {
	if r.err != nil {
		return r.err
	}
	r.published = append(r.published, rawTx)
	return nil
}

type fakeRates struct{ hasRate bool }

func (r *fakeRates) CurrentRate(string) (amount.Rate, bool) {
	if !r.hasRate {
		return amount.Rate{}, false
	}
	return amount.Rate{FiatCode: "USD"}, true
}

type fakeAPI struct {
	relay.APIClient
	gas    map[string]uint64
	gasErr error
}

func (a *fakeAPI) EstimateGas(_ context.Context, params relay.TransactionParams) (*uint256.Int, error) {
	if a.gasErr != nil {
		return nil, a.gasErr
	}
	return uint256.NewInt(a.gas[params.To]), nil
}

func pinOK(context.Context) (string, error) { return "123456", nil }

func btcDeps(w *fakeBTCWallet, r *fakeRelay, s *fakeSigner) Deps {
	return Deps{
		BitcoinWallet: w,
		Signer:        s,
		Relay:         r,
		Rates:         &fakeRates{hasRate: true},
		ChainParams:   &chaincfg.MainNetParams,
		SignTimeout:   time.Second,
	}
}

func TestBitcoinValidationOrdering(t *testing.T) {
	wallet := newFakeBTCWallet(100000, 50000)
	s := NewBitcoinSender(amount.BTC, btcDeps(wallet, &fakeRelay{}, &fakeSigner{}))
	s.UpdateFeeRates(amount.Fees{Economy: 5000, Regular: 10000, Priority: 20000}, amount.FeeLevelRegular)

	cases := []struct {
		name    string
		address string
		amt     uint64
		want    ValidationCode
	}{
		{"ok", addrPayee, 10000, ValidationOK},
		{"invalid address", "not-an-address", 10000, InvalidAddress},
		{"own address", addrOwn, 10000, OwnAddress},
		{"below dust", addrPayee, 100, OutputTooSmall},
		{"over balance", addrPayee, 10_000_000, InsufficientFunds},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := ValidateBitcoinPayment(tc.address, amount.New(tc.amt, amount.BTC), wallet, s.validationInput())
			assert.Equal(t, tc.want, res.Code, "got %s", res.Code)
			if tc.want == OutputTooSmall {
				assert.Equal(t, uint64(546), res.MinOutput)
			}
		})
	}
}

func TestBitcoinValidationMissingRateAndFees(t *testing.T) {
	wallet := newFakeBTCWallet(100000)
	amt := amount.New(10000, amount.BTC)

	in := BitcoinValidationInput{Params: &chaincfg.MainNetParams, HasRate: false}
	assert.Equal(t, NoExchangeRate, ValidateBitcoinPayment(addrPayee, amt, wallet, in).Code)

	in = BitcoinValidationInput{Params: &chaincfg.MainNetParams, HasRate: true, RequireFeeData: true}
	assert.Equal(t, NoFeeData, ValidateBitcoinPayment(addrPayee, amt, wallet, in).Code)

	// BCH 不要求费率数据
	in.RequireFeeData = false
	assert.Equal(t, ValidationOK, ValidateBitcoinPayment(addrPayee, amt, wallet, in).Code)
}

func TestBitcoinSendHappyPath(t *testing.T) {
	wallet := newFakeBTCWallet(100000, 50000)
	rel := &fakeRelay{}
	signer := &fakeSigner{biometric: SignFallback}
	s := NewBitcoinSender(amount.BTC, btcDeps(wallet, rel, signer))
	s.UpdateFeeRates(amount.Fees{Regular: 10000}, amount.FeeLevelRegular)

	res := s.CreateTransaction(addrPayee, amount.New(10000, amount.BTC), "lunch")
	require.True(t, res.OK(), "unexpected verdict %s", res.Code)

	result := s.Send(context.Background(), true, pinOK)
	require.Equal(t, SendSuccess, result.Status, result.Message)
	assert.NotEmpty(t, result.TxHash)
	assert.Len(t, rel.published, 1)
	// 生物识别回落后必须走 PIN
	assert.True(t, signer.pinUsed)
}

func TestBitcoinSendSingleInFlight(t *testing.T) {
	wallet := newFakeBTCWallet(100000)
	s := NewBitcoinSender(amount.BTC, btcDeps(wallet, &fakeRelay{}, &fakeSigner{}))
	s.UpdateFeeRates(amount.Fees{Regular: 10000}, amount.FeeLevelRegular)

	// 没有在途交易
	result := s.Send(context.Background(), false, pinOK)
	assert.Equal(t, SendCreationError, result.Status)
	assert.Equal(t, "not ready", result.Message)

	require.True(t, s.CreateTransaction(addrPayee, amount.New(10000, amount.BTC), "").OK())
	first := s.Send(context.Background(), false, pinOK)
	require.Equal(t, SendSuccess, first.Status)

	// 终态后交易被丢弃，重发同样得到 not ready
	second := s.Send(context.Background(), false, pinOK)
	assert.Equal(t, SendCreationError, second.Status)
	assert.Equal(t, "not ready", second.Message)
}

func TestBitcoinSendSignTimeout(t *testing.T) {
	wallet := newFakeBTCWallet(100000)
	deps := btcDeps(wallet, &fakeRelay{}, &fakeSigner{delay: 300 * time.Millisecond})
	deps.SignTimeout = 30 * time.Millisecond
	s := NewBitcoinSender(amount.BTC, deps)
	s.UpdateFeeRates(amount.Fees{Regular: 10000}, amount.FeeLevelRegular)

	require.True(t, s.CreateTransaction(addrPayee, amount.New(10000, amount.BTC), "").OK())
	result := s.Send(context.Background(), false, pinOK)
	assert.Equal(t, SendTimeout, result.Status)

	// 超时是可恢复的: 重新构建后可以再次发送
	require.True(t, s.CreateTransaction(addrPayee, amount.New(10000, amount.BTC), "").OK())
}

func TestBitcoinChangeOutput(t *testing.T) {
	wallet := newFakeBTCWallet(100000)
	s := NewBitcoinSender(amount.BTC, btcDeps(wallet, &fakeRelay{}, &fakeSigner{}))
	s.UpdateFeeRates(amount.Fees{Regular: 10000}, amount.FeeLevelRegular)

	require.True(t, s.CreateTransaction(addrPayee, amount.New(10000, amount.BTC), "").OK())
	require.NotNil(t, s.tx)
	// 支付输出 + 找零输出
	assert.Len(t, s.tx.MsgTx.TxOut, 2)
	assert.Equal(t, int64(10000), s.tx.MsgTx.TxOut[0].Value)

	var total int64
	for _, out := range s.tx.MsgTx.TxOut {
		total += out.Value
	}
	assert.Equal(t, uint64(100000), uint64(total)+s.tx.FeePaid)
}

func TestProtocolRequestValidation(t *testing.T) {
	wallet := newFakeBTCWallet(100000)

	expired := &ProtocolRequest{
		Outputs: []Output{{Amount: 10000, Address: addrPayee}},
		Expires: time.Now().Add(-time.Minute),
	}
	res := ValidateProtocolRequest(expired, wallet, true, true)
	assert.Equal(t, InvalidRequest, res.Code)
	assert.Equal(t, "request expired", res.Reason)

	used := &ProtocolRequest{Outputs: []Output{{Amount: 10000, Address: addrPayee}}}
	wallet.used[addrPayee] = true
	assert.Equal(t, UsedAddress, ValidateProtocolRequest(used, wallet, false, true).Code)
	assert.Equal(t, ValidationOK, ValidateProtocolRequest(used, wallet, true, true).Code)
	wallet.used[addrPayee] = false

	// 证书链失败且带 CN 才算身份未认证
	badCert := &ProtocolRequest{
		Outputs:    []Output{{Amount: 10000, Address: addrPayee}},
		CommonName: "merchant.example",
		CertError:  "x509: expired",
	}
	res = ValidateProtocolRequest(badCert, wallet, true, false)
	assert.Equal(t, IdentityNotCertified, res.Code)
	assert.Equal(t, "x509: expired", res.Reason)
	assert.Equal(t, ValidationOK, ValidateProtocolRequest(badCert, wallet, true, true).Code)

	small := &ProtocolRequest{Outputs: []Output{{Amount: 100, Address: addrPayee}}}
	res = ValidateProtocolRequest(small, wallet, true, true)
	assert.Equal(t, PaymentTooSmall, res.Code)
	assert.Equal(t, uint64(546), res.MinOutput)
}

func TestProtocolFeeRateOverrideRestored(t *testing.T) {
	wallet := newFakeBTCWallet(200000)
	s := NewBitcoinSender(amount.BTC, btcDeps(wallet, &fakeRelay{}, &fakeSigner{}))
	s.UpdateFeeRates(amount.Fees{Regular: 10000}, amount.FeeLevelRegular)

	req := &ProtocolRequest{
		Outputs:         []Output{{Amount: 10000, Address: addrPayee}},
		RequiredFeeRate: 50, // sat/byte → 50000 sat/kB，高于当前档位
		Memo:            "order 42",
	}
	require.True(t, s.CreateProtocolTransaction(req).OK())
	assert.Equal(t, uint64(10000), wallet.FeePerKB(), "构建后必须恢复原费率")
	// 构建用的是覆盖费率
	assert.Greater(t, s.tx.FeePaid, uint64(5000))
}

func TestEthereumValidation(t *testing.T) {
	wallet := &fakeEthWallet{balances: map[string]amount.Amount{
		"ETH": amount.New(1_000_000, amount.ETH),
	}}

	assert.Equal(t, InvalidAddress, ValidateEthereumPayment("bogus", amount.New(1, amount.ETH), wallet, amount.ETH, false).Code)
	assert.Equal(t, OwnAddress, ValidateEthereumPayment(ethOwn, amount.New(1, amount.ETH), wallet, amount.ETH, false).Code)
	assert.Equal(t, InsufficientFunds, ValidateEthereumPayment(ethPayee, amount.New(2_000_000, amount.ETH), wallet, amount.ETH, false).Code)
	assert.Equal(t, ValidationOK, ValidateEthereumPayment(ethPayee, amount.New(500, amount.ETH), wallet, amount.ETH, false).Code)
}

func TestERC20ValidationRequiresGasBalance(t *testing.T) {
	token := amount.NewToken("BRD", ethContract, 18)
	wallet := &fakeEthWallet{balances: map[string]amount.Amount{
		"BRD": amount.New(1000, token),
		"ETH": amount.New(0, amount.ETH),
	}}
	res := ValidateEthereumPayment(ethPayee, amount.New(10, token), wallet, token, true)
	assert.Equal(t, InsufficientGasBalance, res.Code)

	wallet.balances["ETH"] = amount.New(1, amount.ETH)
	res = ValidateEthereumPayment(ethPayee, amount.New(10, token), wallet, token, true)
	assert.Equal(t, ValidationOK, res.Code)
}

func TestERC20TransferData(t *testing.T) {
	token := amount.NewToken("BRD", ethContract, 18)
	wallet := &fakeEthWallet{balances: map[string]amount.Amount{
		"BRD": amount.New(1000, token),
		"ETH": amount.New(1, amount.ETH),
	}}
	deps := Deps{
		EthWallet:   wallet,
		Signer:      &fakeSigner{},
		Relay:       &fakeRelay{},
		Rates:       &fakeRates{hasRate: true},
		SignTimeout: time.Second,
	}
	s := NewERC20Sender(token, deps)
	require.True(t, s.CreateTransaction(ethPayee, amount.New(500, token), "").OK())

	s.mu.Lock()
	tx := s.buildLocked()
	s.mu.Unlock()

	require.Len(t, tx.Data, 4+32+32)
	assert.Equal(t, erc20TransferSig, tx.Data[:4])
	// 收款地址左填充到 32 字节
	assert.Equal(t, common.LeftPadBytes(common.HexToAddress(ethPayee).Bytes(), 32), tx.Data[4:36])
	// 金额编码为 32 字节大端
	want := uint256.NewInt(500).Bytes32()
	assert.Equal(t, want[:], tx.Data[36:68])
	// 代币转账 Value 为零、目标是合约
	assert.True(t, tx.Value.IsZero())
	assert.Equal(t, common.HexToAddress(ethContract), tx.To)
}

func TestGasEstimatorSingleSlot(t *testing.T) {
	api := &fakeAPI{gas: map[string]uint64{"0xaaaa": 60000, "0xbbbb": 80000}}
	g := NewGasEstimator(api)
	amt := amount.New(5, amount.ETH)

	g.Estimate(context.Background(), relay.TransactionParams{To: "0xaaaa"}, "0xaaaa", amt)
	limit, hit := g.Limit("0xaaaa", amt)
	require.True(t, hit)
	assert.Equal(t, uint64(60000), limit)

	// 第二次估算覆盖槽位，第一次的结果被丢弃
	g.Estimate(context.Background(), relay.TransactionParams{To: "0xbbbb"}, "0xbbbb", amt)
	_, hit = g.Limit("0xaaaa", amt)
	assert.False(t, hit)
	limit, hit = g.Limit("0xbbbb", amt)
	require.True(t, hit)
	assert.Equal(t, uint64(80000), limit)

	// 金额不同不命中
	_, hit = g.Limit("0xbbbb", amount.New(6, amount.ETH))
	assert.False(t, hit)

	// 估算失败清空槽位
	api.gasErr = errors.New("rpc down")
	g.Estimate(context.Background(), relay.TransactionParams{To: "0xbbbb"}, "0xbbbb", amt)
	_, hit = g.Limit("0xbbbb", amt)
	assert.False(t, hit)
}

func TestGasLimitResolutionOrder(t *testing.T) {
	token := amount.NewToken("BRD", ethContract, 18)
	wallet := &fakeEthWallet{balances: map[string]amount.Amount{
		"BRD": amount.New(1000, token),
		"ETH": amount.New(1, amount.ETH),
	}}
	api := &fakeAPI{gas: map[string]uint64{ethContract: 70000}}
	deps := Deps{
		EthWallet:   wallet,
		Signer:      &fakeSigner{},
		Relay:       &fakeRelay{},
		API:         api,
		SignTimeout: time.Second,
	}
	s := NewERC20Sender(token, deps)
	amt := amount.New(500, token)

	// 默认值
	assert.Equal(t, uint64(92000), s.gasLimit(ethPayee, amt))

	// 估算命中
	s.EstimateGas(context.Background(), ethPayee, amt)
	assert.Equal(t, uint64(70000), s.gasLimit(ethPayee, amt))

	// 结账覆盖优先
	s.SetGas(200000, nil)
	assert.Equal(t, uint64(200000), s.gasLimit(ethPayee, amt))
}

func TestMerchantPostPayment(t *testing.T) {
	ackBody := buildBinaryACK(t, "thanks")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, MimeTypeBitcoinPayment, r.Header.Get("Content-Type"))
		assert.Equal(t, MimeTypeBitcoinPaymentACK, r.Header.Get("Accept"))
		w.Header().Set("Content-Type", MimeTypeBitcoinPaymentACK)
		_, _ = w.Write(ackBody)
	}))
	defer server.Close()

	m := NewMerchantClient()
	req := &ProtocolRequest{
		PaymentURL: server.URL,
		MimeType:   MimeTypeBitcoinPaymentRequest,
		Outputs:    []Output{{Amount: 1000, Address: addrPayee}},
	}
	ack, err := m.PostPayment(context.Background(), req, &Payment{Transactions: [][]byte{{0x01}}})
	require.NoError(t, err)
	assert.Equal(t, "thanks", ack.Memo)
}

func TestMerchantPostRejectsWrongContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>"))
	}))
	defer server.Close()

	m := NewMerchantClient()
	req := &ProtocolRequest{PaymentURL: server.URL, MimeType: MimeTypeBitcoinPaymentRequest}
	_, err := m.PostPayment(context.Background(), req, &Payment{})
	var pubErr *relay.PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, relay.PublishCodeBadMessage, pubErr.Code)
}

func TestMerchantPostRejectsOversizedACK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", MimeTypeBitcoinPaymentACK)
		_, _ = w.Write(make([]byte, maxAckBodySize+1))
	}))
	defer server.Close()

	m := NewMerchantClient()
	req := &ProtocolRequest{PaymentURL: server.URL, MimeType: MimeTypeBitcoinPaymentRequest}
	_, err := m.PostPayment(context.Background(), req, &Payment{})
	var pubErr *relay.PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, relay.PublishCodeBadMessage, pubErr.Code)
	assert.Contains(t, pubErr.Description, "too large")
}

func buildBinaryACK(t *testing.T, memo string) []byte {
	t.Helper()
	var b []byte
	// payment=1 (空), memo=2
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, nil)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, memo)
	return b
}

func TestPaymentACKJSON(t *testing.T) {
	ack, err := ParsePaymentACKJSON([]byte(`{"memo":"ok"}`))
	require.NoError(t, err)
	assert.Equal(t, "ok", ack.Memo)

	_, err = ParsePaymentACKJSON([]byte("not json"))
	assert.Error(t, err)
}
