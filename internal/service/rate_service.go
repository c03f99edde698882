package service

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"payments-core/pkg/amount"
)

// RateService 法币汇率快照，实现 sender.RateSource。
// 汇率由外部喂入 (行情推送或定时任务)，读取无锁争用。
type RateService struct {
	mu    sync.RWMutex
	fiat  string
	rates map[string]decimal.Decimal
}

func NewRateService(fiatCode string) *RateService {
	if fiatCode == "" {
		fiatCode = "USD"
	}
	return &RateService{
		fiat:  strings.ToUpper(fiatCode),
		rates: make(map[string]decimal.Decimal),
	}
}

// SetRate 更新某币种对本位法币的汇率
func (s *RateService) SetRate(currencyCode string, rate decimal.Decimal) {
	s.mu.Lock()
	s.rates[strings.ToUpper(currencyCode)] = rate
	s.mu.Unlock()
}

func (s *RateService) CurrentRate(currencyCode string) (amount.Rate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rate, loaded := s.rates[strings.ToUpper(currencyCode)]
	if !loaded || rate.IsZero() {
		return amount.Rate{}, false
	}
	return amount.Rate{FiatCode: s.fiat, Rate: rate}, true
}
