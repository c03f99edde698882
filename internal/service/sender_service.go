package service

import (
	"sync"

	"payments-core/internal/relay"
	"payments-core/internal/sender"
	"payments-core/pkg/amount"
)

// SenderService 按币种构造并缓存发送器。
// 实现 CheckoutService 需要的 SenderProvider。
type SenderService struct {
	mu      sync.Mutex
	deps    sender.Deps
	relays  map[amount.Family]relay.TxRelay
	senders map[string]sender.Sender
}

func NewSenderService(deps sender.Deps) *SenderService {
	return &SenderService{
		deps:    deps,
		relays:  make(map[amount.Family]relay.TxRelay),
		senders: make(map[string]sender.Sender),
	}
}

// RegisterRelay 注册某个家族的广播通道。
// ERC-20 未单独注册时复用以太坊通道。
func (s *SenderService) RegisterRelay(family amount.Family, r relay.TxRelay) {
	s.mu.Lock()
	s.relays[family] = r
	s.mu.Unlock()
}

func (s *SenderService) relayFor(family amount.Family) relay.TxRelay {
	if r, registered := s.relays[family]; registered {
		return r
	}
	if family == amount.FamilyERC20 {
		if r, registered := s.relays[amount.FamilyEthereum]; registered {
			return r
		}
	}
	return s.deps.Relay
}

// SenderFor 同一币种复用同一个发送器 (单笔在途约束挂在实例上)
func (s *SenderService) SenderFor(currency amount.Currency) (sender.Sender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snd, cached := s.senders[currency.Code]; cached {
		return snd, nil
	}
	deps := s.deps
	deps.Relay = s.relayFor(currency.Family)
	snd, err := sender.New(currency, deps)
	if err != nil {
		return nil, err
	}
	s.senders[currency.Code] = snd
	return snd, nil
}

// UpdateFeeRates 把费率快照广播给所有已构造的发送器
func (s *SenderService) UpdateFeeRates(fees amount.Fees, level amount.FeeLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snd := range s.senders {
		snd.UpdateFeeRates(fees, level)
	}
}
