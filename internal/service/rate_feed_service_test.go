package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payments-core/internal/service/mq"
)

// stubConsumer 同步回放预置消息后返回
type stubConsumer struct {
	messages []*mq.Message
}

func (c *stubConsumer) Subscribe(ctx context.Context, topic string, handler func(msg *mq.Message) error) error {
	for _, msg := range c.messages {
		msg.Topic = topic
		if err := handler(msg); err != nil {
			return err
		}
	}
	return nil
}

func (c *stubConsumer) Close() error { return nil }

func TestRateFeedUpdatesSnapshot(t *testing.T) {
	rates := NewRateService("USD")
	consumer := &stubConsumer{messages: []*mq.Message{
		{ID: "1-0", Payload: []byte(`{"currency":"btc","rate":"65000.50"}`)},
		{ID: "2-0", Payload: []byte(`{"currency":"ETH","rate":"3200"}`)},
	}}

	feed := NewRateFeedService(consumer, rates)
	require.NoError(t, feed.Start(context.Background()))

	rate, ok := rates.CurrentRate("BTC")
	require.True(t, ok)
	assert.Equal(t, "USD", rate.FiatCode)
	assert.True(t, rate.Rate.Equal(decimal.RequireFromString("65000.50")))

	rate, ok = rates.CurrentRate("eth")
	require.True(t, ok)
	assert.True(t, rate.Rate.Equal(decimal.NewFromInt(3200)))
}

func TestRateFeedSkipsMalformedMessages(t *testing.T) {
	rates := NewRateService("USD")
	consumer := &stubConsumer{messages: []*mq.Message{
		{ID: "1-0", Payload: []byte(`not json`)},
		{ID: "2-0", Payload: []byte(`{"currency":"","rate":"1"}`)},
		{ID: "3-0", Payload: []byte(`{"currency":"BTC","rate":"oops"}`)},
		{ID: "4-0", Payload: []byte(`{"currency":"BTC","rate":"42"}`)},
	}}

	feed := NewRateFeedService(consumer, rates)
	require.NoError(t, feed.Start(context.Background()))

	rate, ok := rates.CurrentRate("BTC")
	require.True(t, ok)
	assert.True(t, rate.Rate.Equal(decimal.NewFromInt(42)))
}
