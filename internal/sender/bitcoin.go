package sender

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"payments-core/internal/relay"
	"payments-core/pkg/amount"
	"payments-core/pkg/monitor"
)

// 交易大小估算常数 (P2PKH)
const (
	txBaseSize   = 10
	txInputSize  = 148
	txOutputSize = 34
)

var errInsufficientUTXOs = errors.New("sender: utxo 不足以覆盖金额加手续费")

// BitcoinSender UTXO 家族的发送器。
// 支持普通转账和支付协议 (BIP-70 / JSON 变体) 两种来源。
type BitcoinSender struct {
	baseSender
	wallet   BitcoinWalletState
	merchant *MerchantClient
	deps     Deps

	fees     amount.Fees
	feeLevel amount.FeeLevel

	tx       *BitcoinTransaction
	protoReq *ProtocolRequest
}

func NewBitcoinSender(currency amount.Currency, deps Deps) *BitcoinSender {
	merchant := deps.Merchant
	if merchant == nil {
		merchant = NewMerchantClient()
	}
	return &BitcoinSender{
		baseSender: newBase(currency, deps, "btc-sender"),
		wallet:     deps.BitcoinWallet,
		merchant:   merchant,
		deps:       deps,
		feeLevel:   amount.FeeLevelRegular,
	}
}

func (s *BitcoinSender) UpdateFeeRates(fees amount.Fees, level amount.FeeLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fees = fees
	s.feeLevel = level
	if rate := fees.Fee(level); rate > 0 {
		s.wallet.SetFeePerKB(rate)
	}
}

func (s *BitcoinSender) estimateFee(numInputs, numOutputs int) uint64 {
	size := uint64(txBaseSize + txInputSize*numInputs + txOutputSize*numOutputs)
	return size * s.wallet.FeePerKB() / 1000
}

// selectUTXOs 大额优先贪心选择，直到覆盖 target + fee
func (s *BitcoinSender) selectUTXOs(target uint64) ([]UTXO, uint64, error) {
	utxos := s.wallet.Spendables()
	sort.Slice(utxos, func(i, j int) bool { return utxos[i].Value > utxos[j].Value })

	var selected []UTXO
	var total uint64
	for _, u := range utxos {
		selected = append(selected, u)
		total += u.Value
		fee := s.estimateFee(len(selected), 2)
		if total >= target && total-target >= fee {
			return selected, fee, nil
		}
	}
	return nil, 0, errInsufficientUTXOs
}

func (s *BitcoinSender) FeeForAmount(amt amount.Amount) (amount.Amount, bool) {
	target, fits := amt.Uint64()
	if !fits {
		return amount.Amount{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, fee, err := s.selectUTXOs(target)
	if err != nil {
		return amount.Amount{}, false
	}
	return amount.New(fee, s.currency), true
}

func (s *BitcoinSender) validationInput() BitcoinValidationInput {
	hasRate := false
	if s.rates != nil {
		_, hasRate = s.rates.CurrentRate(s.currency.Code)
	}
	return BitcoinValidationInput{
		Params:         s.deps.ChainParams,
		HasRate:        hasRate,
		Fees:           s.fees,
		RequireFeeData: s.currency.Code == amount.BTC.Code,
	}
}

func (s *BitcoinSender) CreateTransaction(address string, amt amount.Amount, comment string) ValidationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sending {
		return failed()
	}
	res := ValidateBitcoinPayment(address, amt, s.wallet, s.validationInput())
	if !res.OK() {
		return res
	}
	satoshis, _ := amt.Uint64()
	if err := s.buildLocked([]Output{{Amount: satoshis, Address: address}}); err != nil {
		return verdict(InsufficientFunds)
	}
	s.comment = comment
	s.protoReq = nil
	s.readyToSend = true
	return ok()
}

// CreateProtocolTransaction 从商户支付请求构建。配对/协议场景下
// used-address 与证书裁决由上层确认，这里豁免。商户要求的费率
// 高于当前档位时临时覆盖，构建完成后恢复。
func (s *BitcoinSender) CreateProtocolTransaction(req *ProtocolRequest) ValidationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sending {
		return failed()
	}
	res := ValidateProtocolRequest(req, s.wallet, true, true)
	if !res.OK() {
		return res
	}

	if req.RequiredFeeRate > 0 {
		required := uint64(req.RequiredFeeRate * 1000)
		if required > s.wallet.FeePerKB() {
			saved := s.wallet.FeePerKB()
			s.wallet.SetFeePerKB(required)
			defer s.wallet.SetFeePerKB(saved)
		}
	}

	if err := s.buildLocked(req.Outputs); err != nil {
		return verdict(InsufficientFunds)
	}
	s.comment = req.Memo
	s.protoReq = req
	s.readyToSend = true
	return ok()
}

// buildLocked 构建 wire 交易：输入按贪心选择，找零回自己的变更地址，
// 低于 dust 的找零并入手续费。调用方持锁。
func (s *BitcoinSender) buildLocked(outputs []Output) error {
	var target uint64
	for _, out := range outputs {
		target += out.Amount
	}
	inputs, fee, err := s.selectUTXOs(target)
	if err != nil {
		return err
	}

	msg := wire.NewMsgTx(wire.TxVersion)
	var totalIn uint64
	for i := range inputs {
		msg.AddTxIn(wire.NewTxIn(&inputs[i].OutPoint, nil, nil))
		totalIn += inputs[i].Value
	}
	for _, out := range outputs {
		script, err := OutputScript(out.Address, s.deps.ChainParams)
		if err != nil {
			return err
		}
		msg.AddTxOut(wire.NewTxOut(int64(out.Amount), script))
	}

	change := totalIn - target - fee
	if change >= s.wallet.MinOutputAmount() {
		changeScript, err := OutputScript(s.wallet.ChangeAddress(), s.deps.ChainParams)
		if err != nil {
			return err
		}
		msg.AddTxOut(wire.NewTxOut(int64(change), changeScript))
	} else {
		fee += change
	}

	s.tx = &BitcoinTransaction{MsgTx: msg, Inputs: inputs, FeePaid: fee, currency: s.currency}
	return nil
}

func (s *BitcoinSender) CanUseBiometrics() bool {
	s.mu.Lock()
	tx := s.tx
	s.mu.Unlock()
	if tx == nil {
		return false
	}
	return s.signer.CanUseBiometrics(tx)
}

func (s *BitcoinSender) Send(ctx context.Context, allowBiometrics bool, pin PinVerifier) SendResult {
	if !s.beginSend() {
		return creationError("not ready")
	}
	s.mu.Lock()
	tx := s.tx
	req := s.protoReq
	s.mu.Unlock()
	defer s.Reset()

	if r := s.authorizeAndSign(ctx, tx, allowBiometrics, pin); r != nil {
		return *r
	}
	raw, err := tx.Serialize()
	if err != nil {
		s.recordFailure("serialize")
		return creationError("serialize: %v", err)
	}

	// JSON 变体的协议请求直接结算给商户，不做链上广播
	if req != nil && req.MimeType == MimeTypePaymentRequest {
		if pubErr := s.postMerchant(ctx, req, raw); pubErr != nil {
			return *pubErr
		}
		s.writeMetadata(ctx, tx.TxHash(), s.wallet.FeePerKB())
		s.recordSuccess()
		return successResult(tx.TxHash(), raw)
	}

	if r := s.publish(ctx, raw); r != nil {
		return *r
	}
	s.writeMetadata(ctx, tx.TxHash(), s.wallet.FeePerKB())
	s.recordSuccess()

	// BIP-70 回执在广播成功后尽力提交，结果只记录不影响终态
	if req != nil {
		if pubErr := s.postMerchant(ctx, req, raw); pubErr != nil {
			s.log.Warn("merchant ack 提交失败", zap.String("message", pubErr.Message))
		}
	}
	return successResult(tx.TxHash(), raw)
}

func (s *BitcoinSender) postMerchant(ctx context.Context, req *ProtocolRequest, raw []byte) *SendResult {
	refundAddr := s.wallet.ReceiveAddress()
	refundScript, err := OutputScript(refundAddr, s.deps.ChainParams)
	if err != nil {
		s.recordFailure("merchant-post")
		r := creationError("refund script: %v", err)
		return &r
	}
	payment := &Payment{
		MerchantData: req.MerchantData,
		Transactions: [][]byte{raw},
		RefundTo:     []RefundOutput{{Amount: req.TotalAmount(), Script: refundScript, Address: refundAddr}},
		Memo:         s.comment,
		Currency:     strings.ToLower(s.currency.Code),
	}
	if _, err := s.merchant.PostPayment(ctx, req, payment); err != nil {
		if monitor.Business != nil {
			monitor.Business.MerchantAckTotal.WithLabelValues("error").Inc()
		}
		s.recordFailure("merchant-post")
		var pubErr *relay.PublishError
		if !errors.As(err, &pubErr) {
			pubErr = relay.NewPublishError(relay.PublishCodeBadMessage, "%v", err)
		}
		r := publishFailure(pubErr)
		return &r
	}
	if monitor.Business != nil {
		monitor.Business.MerchantAckTotal.WithLabelValues("ok").Inc()
	}
	return nil
}

func (s *BitcoinSender) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tx = nil
	s.protoReq = nil
	s.comment = ""
	s.readyToSend = false
	s.sending = false
}
