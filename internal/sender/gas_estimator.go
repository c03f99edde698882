package sender

import (
	"context"
	"sync"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"payments-core/internal/relay"
	"payments-core/pkg/amount"
	"payments-core/pkg/logger"
	"payments-core/pkg/monitor"
)

// gasEstimate 单槽缓存项：目标地址 + 金额精确匹配才命中
type gasEstimate struct {
	address string
	value   uint256.Int
	limit   uint64
}

// GasEstimator 向后端请求 gas 估算，只保留最近一次结果。
// 并发估算时后写者胜出；估算失败清空槽位，发送回落到默认 gas。
type GasEstimator struct {
	mu   sync.Mutex
	slot *gasEstimate

	api relay.APIClient
	log *zap.Logger
}

func NewGasEstimator(api relay.APIClient) *GasEstimator {
	return &GasEstimator{api: api, log: logger.Log.Named("gas-estimator")}
}

// Estimate 请求一次估算并写入槽位。阻塞调用，上层按需放入 goroutine。
func (g *GasEstimator) Estimate(ctx context.Context, params relay.TransactionParams, toAddress string, amt amount.Amount) {
	g.mu.Lock()
	g.slot = nil
	g.mu.Unlock()

	limit, err := g.api.EstimateGas(ctx, params)
	if err != nil || limit == nil {
		g.log.Warn("gas 估算失败", zap.String("to", toAddress), zap.Error(err))
		if monitor.Business != nil {
			monitor.Business.GasEstimateTotal.WithLabelValues("error").Inc()
		}
		return
	}

	entry := &gasEstimate{address: toAddress, limit: limit.Uint64()}
	entry.value.Set(amt.Raw())
	g.mu.Lock()
	g.slot = entry
	g.mu.Unlock()
	if monitor.Business != nil {
		monitor.Business.GasEstimateTotal.WithLabelValues("ok").Inc()
	}
}

// Limit 精确匹配 (地址, 金额) 时返回缓存的 gas limit
func (g *GasEstimator) Limit(toAddress string, amt amount.Amount) (uint64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.slot == nil {
		return 0, false
	}
	if g.slot.address != toAddress || g.slot.value.Cmp(amt.Raw()) != 0 {
		return 0, false
	}
	return g.slot.limit, true
}

// Clear 丢弃缓存
func (g *GasEstimator) Clear() {
	g.mu.Lock()
	g.slot = nil
	g.mu.Unlock()
}
