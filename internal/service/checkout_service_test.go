package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payments-core/internal/pigeon"
	"payments-core/internal/sender"
	"payments-core/pkg/amount"
)

// stubSender 可编程的发送器
type stubSender struct {
	currency amount.Currency
	verdict  sender.ValidationResult
	result   sender.SendResult

	createCalls int
	sendCalls   int
	resetCalls  int
}

func (s *stubSender) Currency() amount.Currency                          { return s.currency }
func (s *stubSender) UpdateFeeRates(amount.Fees, amount.FeeLevel)        {}
func (s *stubSender) FeeForAmount(amount.Amount) (amount.Amount, bool)   { return amount.Amount{}, false }
func (s *stubSender) CanUseBiometrics() bool                             { return false }
func (s *stubSender) Reset()                                             { s.resetCalls++ }
func (s *stubSender) CreateProtocolTransaction(*sender.ProtocolRequest) sender.ValidationResult {
	return s.verdict
}

func (s *stubSender) CreateTransaction(string, amount.Amount, string) sender.ValidationResult {
	s.createCalls++
	return s.verdict
}

func (s *stubSender) Send(context.Context, bool, sender.PinVerifier) sender.SendResult {
	s.sendCalls++
	return s.result
}

type stubProvider struct {
	snd *stubSender
	err error
}

func (p *stubProvider) SenderFor(amount.Currency) (sender.Sender, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.snd, nil
}

func newCheckoutRequest(callback func(pigeon.RequestOutcome)) *pigeon.CheckoutRequest {
	return &pigeon.CheckoutRequest{
		Type:     pigeon.RequestTypePayment,
		Currency: amount.ETH,
		Address:  "0x2222222222222222222222222222222222222222",
		Amount:   amount.New(1000, amount.ETH),
		ResponseCallback: func(_ context.Context, outcome pigeon.RequestOutcome) {
			callback(outcome)
		},
	}
}

func TestCheckoutRejectedWithoutAutoApprove(t *testing.T) {
	snd := &stubSender{currency: amount.ETH}
	svc := NewCheckoutService(nil, nil, nil, &stubProvider{snd: snd}, nil, false)

	var outcomes []pigeon.RequestOutcome
	req := newCheckoutRequest(func(o pigeon.RequestOutcome) { outcomes = append(outcomes, o) })
	svc.HandleCheckoutRequest(context.Background(), req)

	require.Len(t, outcomes, 1, "回执必须恰好一次")
	assert.Equal(t, pigeon.ResponseStatusRejected, outcomes[0].Status)
	assert.Equal(t, "user approval required", outcomes[0].Error)
	assert.Zero(t, snd.createCalls, "未批准不应构建交易")
}

func TestCheckoutRejectedOnValidationFailure(t *testing.T) {
	snd := &stubSender{
		currency: amount.ETH,
		verdict:  sender.ValidationResult{Code: sender.InsufficientFunds},
	}
	svc := NewCheckoutService(nil, nil, nil, &stubProvider{snd: snd}, nil, true)

	var outcomes []pigeon.RequestOutcome
	req := newCheckoutRequest(func(o pigeon.RequestOutcome) { outcomes = append(outcomes, o) })
	svc.HandleCheckoutRequest(context.Background(), req)

	require.Len(t, outcomes, 1)
	assert.Equal(t, pigeon.ResponseStatusRejected, outcomes[0].Status)
	assert.Equal(t, sender.InsufficientFunds.String(), outcomes[0].Error)
	assert.Zero(t, snd.sendCalls)
}

func TestCheckoutAcceptedOnSuccessfulSend(t *testing.T) {
	snd := &stubSender{
		currency: amount.ETH,
		verdict:  sender.ValidationResult{Code: sender.ValidationOK},
		result:   sender.SendResult{Status: sender.SendSuccess, TxHash: "0xfeed"},
	}
	svc := NewCheckoutService(nil, nil, nil, &stubProvider{snd: snd}, nil, true)

	var outcomes []pigeon.RequestOutcome
	req := newCheckoutRequest(func(o pigeon.RequestOutcome) { outcomes = append(outcomes, o) })
	svc.HandleCheckoutRequest(context.Background(), req)

	require.Len(t, outcomes, 1)
	assert.Equal(t, pigeon.ResponseStatusAccepted, outcomes[0].Status)
	assert.Equal(t, "0xfeed", outcomes[0].TransactionID)
	assert.Equal(t, 1, snd.createCalls)
	assert.Equal(t, 1, snd.sendCalls)
}

func TestCheckoutRejectedOnSendFailure(t *testing.T) {
	snd := &stubSender{
		currency: amount.ETH,
		verdict:  sender.ValidationResult{Code: sender.ValidationOK},
		result:   sender.SendResult{Status: sender.SendPublishFailure, Message: "not connected"},
	}
	svc := NewCheckoutService(nil, nil, nil, &stubProvider{snd: snd}, nil, true)

	var outcomes []pigeon.RequestOutcome
	req := newCheckoutRequest(func(o pigeon.RequestOutcome) { outcomes = append(outcomes, o) })
	svc.HandleCheckoutRequest(context.Background(), req)

	require.Len(t, outcomes, 1)
	assert.Equal(t, pigeon.ResponseStatusRejected, outcomes[0].Status)
	assert.Equal(t, "not connected", outcomes[0].Error)
}
