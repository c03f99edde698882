package service

import (
	"context"
	"encoding/hex"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"payments-core/internal/sender"
	"payments-core/pkg/logger"
)

// 网络 dust 限制 (satoshi)
const btcDustLimit = 546

// 默认费率 (sat/kB)，在费率快照到达前兜底
const btcDefaultFeePerKB = 10000

// BtcAccountState 比特币钱包状态快照，实现 sender.BitcoinWalletState。
// 可花费输出通过节点钱包的 listunspent 同步。
type BtcAccountState struct {
	client  *rpcclient.Client
	params  *chaincfg.Params
	receive string
	change  string

	mu       sync.RWMutex
	utxos    []sender.UTXO
	used     map[string]bool
	feePerKB uint64
	log      *zap.Logger
}

func NewBtcAccountState(client *rpcclient.Client, params *chaincfg.Params, receiveAddr, changeAddr string) *BtcAccountState {
	return &BtcAccountState{
		client:   client,
		params:   params,
		receive:  receiveAddr,
		change:   changeAddr,
		used:     make(map[string]bool),
		feePerKB: btcDefaultFeePerKB,
		log:      logger.Log.Named("btc-state"),
	}
}

// Refresh 从节点钱包同步可花费输出
func (s *BtcAccountState) Refresh(_ context.Context) error {
	addrs := make([]btcutil.Address, 0, 2)
	for _, raw := range []string{s.receive, s.change} {
		addr, err := btcutil.DecodeAddress(raw, s.params)
		if err != nil {
			return err
		}
		addrs = append(addrs, addr)
	}

	results, err := s.client.ListUnspentMinMaxAddresses(1, 9999999, addrs)
	if err != nil {
		return err
	}

	fresh := make([]sender.UTXO, 0, len(results))
	for _, r := range results {
		hash, err := chainhash.NewHashFromStr(r.TxID)
		if err != nil {
			s.log.Warn("非法的 utxo txid", zap.String("txid", r.TxID))
			continue
		}
		value, err := btcutil.NewAmount(r.Amount)
		if err != nil || value <= 0 {
			continue
		}
		pkScript, err := hex.DecodeString(r.ScriptPubKey)
		if err != nil {
			continue
		}
		fresh = append(fresh, sender.UTXO{
			OutPoint: wire.OutPoint{Hash: *hash, Index: r.Vout},
			Value:    uint64(value),
			PkScript: pkScript,
			Address:  r.Address,
		})
	}

	s.mu.Lock()
	s.utxos = fresh
	s.mu.Unlock()
	return nil
}

// MarkUsed 记录曾经收过款的外部地址 (used-address 校验数据源)
func (s *BtcAccountState) MarkUsed(address string) {
	s.mu.Lock()
	s.used[address] = true
	s.mu.Unlock()
}

func (s *BtcAccountState) ReceiveAddress() string { return s.receive }
func (s *BtcAccountState) ChangeAddress() string  { return s.change }

func (s *BtcAccountState) IsOwnAddress(address string) bool {
	return address == s.receive || address == s.change
}

func (s *BtcAccountState) AddressIsUsed(address string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.used[address]
}

func (s *BtcAccountState) Spendables() []sender.UTXO {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]sender.UTXO, len(s.utxos))
	copy(out, s.utxos)
	return out
}

func (s *BtcAccountState) MinOutputAmount() uint64 { return btcDustLimit }

// MaxOutputAmount 全部余额扣掉花光所有输入的手续费
func (s *BtcAccountState) MaxOutputAmount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total uint64
	for _, u := range s.utxos {
		total += u.Value
	}
	size := uint64(10 + 148*len(s.utxos) + 34)
	fee := size * s.feePerKB / 1000
	if total <= fee {
		return 0
	}
	return total - fee
}

func (s *BtcAccountState) FeePerKB() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feePerKB
}

func (s *BtcAccountState) SetFeePerKB(rate uint64) {
	s.mu.Lock()
	if rate > 0 {
		s.feePerKB = rate
	}
	s.mu.Unlock()
}
