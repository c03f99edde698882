package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"payments-core/internal/event"
	"payments-core/internal/model"
	"payments-core/internal/pigeon"
	"payments-core/internal/relay"
	"payments-core/internal/sender"
	"payments-core/internal/service/mq"
	"payments-core/pkg/amount"
	"payments-core/pkg/logger"
)

// SenderProvider 按币种取发送器
type SenderProvider interface {
	SenderFor(currency amount.Currency) (sender.Sender, error)
}

// CheckoutService 审批并执行配对端发来的结账请求。
// 实现 pigeon.RequestHandler: 每个请求恰好回执一次。
type CheckoutService struct {
	db       *gorm.DB
	api      relay.APIClient
	producer mq.Producer
	senders  SenderProvider
	pin      sender.PinVerifier
	// autoApprove 无人值守模式直接批准；否则一律拒绝并提示人工审批
	autoApprove bool
	log         *zap.Logger
}

func NewCheckoutService(db *gorm.DB, api relay.APIClient, producer mq.Producer, senders SenderProvider, pin sender.PinVerifier, autoApprove bool) *CheckoutService {
	return &CheckoutService{
		db:          db,
		api:         api,
		producer:    producer,
		senders:     senders,
		pin:         pin,
		autoApprove: autoApprove,
		log:         logger.Log.Named("checkout"),
	}
}

func requestTypeName(t pigeon.RequestType) string {
	if t == pigeon.RequestTypeCall {
		return "call"
	}
	return "payment"
}

// HandleCheckoutRequest 驱动一笔结账: 留痕 → 审批 → 构建 → 发送 →
// 回执。任何出口都恰好调用一次 ResponseCallback。
func (s *CheckoutService) HandleCheckoutRequest(ctx context.Context, req *pigeon.CheckoutRequest) {
	record := &model.CheckoutRecord{
		Type:    requestTypeName(req.Type),
		Address: req.Address,
		Amount:  req.Amount.String(),
		Status:  "pending",
	}
	if s.db != nil {
		if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
			s.log.Warn("结账留痕失败", zap.Error(err))
		}
	}

	outcome := s.execute(ctx, req)
	s.finish(ctx, req, record, outcome)
}

func (s *CheckoutService) execute(ctx context.Context, req *pigeon.CheckoutRequest) pigeon.RequestOutcome {
	if !s.autoApprove {
		return pigeon.RequestOutcome{Status: pigeon.ResponseStatusRejected, Error: "user approval required"}
	}

	snd, err := s.senders.SenderFor(req.Currency)
	if err != nil {
		return pigeon.RequestOutcome{Status: pigeon.ResponseStatusRejected, Error: err.Error()}
	}
	// 结账请求的 gas 参数覆盖估算
	if ethSender, isEth := snd.(*sender.EthSender); isEth {
		ethSender.SetGas(req.GasLimit, req.GasPrice)
	}

	res := snd.CreateTransaction(req.Address, req.Amount, req.Memo)
	if !res.OK() {
		s.log.Info("结账校验未通过", zap.String("verdict", res.Code.String()))
		return pigeon.RequestOutcome{Status: pigeon.ResponseStatusRejected, Error: res.Code.String()}
	}

	result := snd.Send(ctx, false, s.pin)
	switch result.Status {
	case sender.SendSuccess:
		return pigeon.RequestOutcome{Status: pigeon.ResponseStatusAccepted, TransactionID: result.TxHash}
	default:
		s.log.Warn("结账发送失败", zap.String("message", result.Message))
		return pigeon.RequestOutcome{Status: pigeon.ResponseStatusRejected, Error: result.Message}
	}
}

func (s *CheckoutService) finish(ctx context.Context, req *pigeon.CheckoutRequest, record *model.CheckoutRecord, outcome pigeon.RequestOutcome) {
	status := "rejected"
	if outcome.Status == pigeon.ResponseStatusAccepted {
		status = "accepted"
	}
	if s.db != nil && record.ID != 0 {
		updates := map[string]interface{}{
			"status":  status,
			"tx_hash": outcome.TransactionID,
			"error":   outcome.Error,
		}
		if err := s.db.WithContext(ctx).Model(record).Updates(updates).Error; err != nil {
			s.log.Warn("结账留痕更新失败", zap.Error(err))
		}
	}

	if s.producer != nil {
		payload, _ := json.Marshal(event.CheckoutFinishedEvent{
			Type:   requestTypeName(req.Type),
			Status: status,
			TxHash: outcome.TransactionID,
			Error:  outcome.Error,
		})
		if err := s.producer.Publish(ctx, event.TopicCheckoutFinished, outcome.TransactionID, payload); err != nil {
			s.log.Warn("发布结账事件失败", zap.Error(err))
		}
	}

	// 上报后端 (尽力而为)
	if s.api != nil && outcome.Status == pigeon.ResponseStatusAccepted {
		checkoutEvent := relay.CheckoutEvent{
			TxHash:       outcome.TransactionID,
			FromCurrency: req.Currency.Code,
			FromAmount:   req.Amount.String(),
		}
		if req.Token != nil {
			checkoutEvent.ToCurrency = req.Token.Code
		}
		if err := s.api.SendCheckoutEvent(ctx, checkoutEvent); err != nil {
			s.log.Warn("上报结账事件失败", zap.Error(err))
		}
	}

	if req.ResponseCallback != nil {
		req.ResponseCallback(ctx, outcome)
	}
}
