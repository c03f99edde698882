package service

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"payments-core/pkg/amount"
	"payments-core/pkg/logger"
)

// 确认目标 (块数) 按档位
const (
	feeTargetPriority = 1
	feeTargetRegular  = 6
	feeTargetEconomy  = 24
)

// FeeService 周期性拉取链上费率并推给所有发送器。
// BTC 走 estimatesmartfee，ETH 走 eth_gasPrice。
type FeeService struct {
	btc     *rpcclient.Client
	eth     *ethclient.Client
	senders *SenderService
	level   amount.FeeLevel
	log     *zap.Logger
}

func NewFeeService(btc *rpcclient.Client, eth *ethclient.Client, senders *SenderService, level amount.FeeLevel) *FeeService {
	return &FeeService{
		btc:     btc,
		eth:     eth,
		senders: senders,
		level:   level,
		log:     logger.Log.Named("fees"),
	}
}

// Start 阻塞轮询，ctx 取消后返回
func (s *FeeService) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	s.refresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

func (s *FeeService) refresh(ctx context.Context) {
	var fees amount.Fees

	if s.btc != nil {
		fees.Economy = s.btcFeePerKB(feeTargetEconomy)
		fees.Regular = s.btcFeePerKB(feeTargetRegular)
		fees.Priority = s.btcFeePerKB(feeTargetPriority)
	}

	if s.eth != nil {
		gasPrice, err := s.eth.SuggestGasPrice(ctx)
		if err != nil {
			s.log.Warn("查询 gas price 失败", zap.Error(err))
		} else if price, overflow := uint256.FromBig(gasPrice); !overflow {
			fees.GasPrice = price
		}
	}

	s.senders.UpdateFeeRates(fees, s.level)
}

// btcFeePerKB estimatesmartfee 结果换算成 sat/kB，失败返回 0
func (s *FeeService) btcFeePerKB(confTarget int64) uint64 {
	result, err := s.btc.EstimateSmartFee(confTarget, &btcjson.EstimateModeConservative)
	if err != nil || result.FeeRate == nil {
		s.log.Warn("estimatesmartfee 失败", zap.Int64("target", confTarget), zap.Error(err))
		return 0
	}
	satPerKB, err := btcutil.NewAmount(*result.FeeRate)
	if err != nil || satPerKB <= 0 {
		return 0
	}
	return uint64(satPerKB)
}
