package service

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"payments-core/internal/event"
	"payments-core/internal/service/mq"
	"payments-core/pkg/logger"
)

// RateFeedService 消费行情推送，更新本地汇率快照。
// 坏消息丢弃不重试，下一条推送自然覆盖。
type RateFeedService struct {
	consumer mq.Consumer
	rates    *RateService
	log      *zap.Logger
}

func NewRateFeedService(consumer mq.Consumer, rates *RateService) *RateFeedService {
	return &RateFeedService{
		consumer: consumer,
		rates:    rates,
		log:      logger.Log.Named("rate-feed"),
	}
}

// Start 阻塞消费，ctx 取消后返回
func (s *RateFeedService) Start(ctx context.Context) error {
	return s.consumer.Subscribe(ctx, event.TopicRateUpdates, func(msg *mq.Message) error {
		var update event.RateUpdateEvent
		if err := json.Unmarshal(msg.Payload, &update); err != nil {
			s.log.Warn("非法的汇率消息", zap.String("id", msg.ID), zap.Error(err))
			return nil
		}
		rate, err := decimal.NewFromString(update.Rate)
		if err != nil || update.Currency == "" {
			s.log.Warn("非法的汇率值", zap.String("currency", update.Currency), zap.String("rate", update.Rate))
			return nil
		}
		s.rates.SetRate(update.Currency, rate)
		return nil
	})
}
