package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"

	"payments-core/pkg/amount"
)

// balanceOf(address) 的函数选择器
var erc20BalanceOfSig = []byte{0x70, 0xa0, 0x82, 0x31}

// EthAccountState 以太坊账户状态快照，实现 sender.EthWalletState。
// 读取全走快照，链上查询集中在 Refresh 里。
type EthAccountState struct {
	client  *ethclient.Client
	address common.Address

	mu       sync.RWMutex
	balances map[string]amount.Amount
	nonce    uint64
}

func NewEthAccountState(rpcURL, address string) (*EthAccountState, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, err
	}
	return &EthAccountState{
		client:   client,
		address:  common.HexToAddress(address),
		balances: make(map[string]amount.Amount),
	}, nil
}

// Refresh 拉取 ETH 余额、pending nonce 和给定代币的余额
func (s *EthAccountState) Refresh(ctx context.Context, tokens []amount.Currency) error {
	ethBalance, err := s.client.BalanceAt(ctx, s.address, nil)
	if err != nil {
		return fmt.Errorf("查询 ETH 余额失败: %w", err)
	}
	nonce, err := s.client.PendingNonceAt(ctx, s.address)
	if err != nil {
		return fmt.Errorf("查询 nonce 失败: %w", err)
	}

	fresh := make(map[string]amount.Amount, len(tokens)+1)
	ethValue, overflow := uint256.FromBig(ethBalance)
	if overflow {
		ethValue = new(uint256.Int)
	}
	fresh[amount.ETH.Code] = amount.NewFromInt(ethValue, amount.ETH)

	for _, token := range tokens {
		balance, err := s.tokenBalance(ctx, token)
		if err != nil {
			// 单个代币查询失败不拖垮整次刷新
			continue
		}
		fresh[token.Code] = balance
	}

	s.mu.Lock()
	s.balances = fresh
	s.nonce = nonce
	s.mu.Unlock()
	return nil
}

// tokenBalance eth_call balanceOf(holder)
func (s *EthAccountState) tokenBalance(ctx context.Context, token amount.Currency) (amount.Amount, error) {
	data := make([]byte, 0, 4+32)
	data = append(data, erc20BalanceOfSig...)
	data = append(data, common.LeftPadBytes(s.address.Bytes(), 32)...)

	contract := common.HexToAddress(token.TokenAddress)
	result, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return amount.Amount{}, err
	}
	if len(result) < 32 {
		return amount.Amount{}, fmt.Errorf("balanceOf 返回值过短: %d 字节", len(result))
	}
	value := new(uint256.Int).SetBytes(result[len(result)-32:])
	return amount.NewFromInt(value, token), nil
}

// Client 暴露底层 RPC 客户端 (费率刷新复用同一连接)
func (s *EthAccountState) Client() *ethclient.Client {
	return s.client
}

func (s *EthAccountState) Address() string {
	return s.address.Hex()
}

func (s *EthAccountState) IsOwnAddress(address string) bool {
	return strings.EqualFold(address, s.address.Hex())
}

func (s *EthAccountState) Balance(code string) (amount.Amount, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	balance, loaded := s.balances[code]
	return balance, loaded
}

func (s *EthAccountState) Nonce() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nonce
}

func (s *EthAccountState) DefaultGasLimit(currency amount.Currency) uint64 {
	if currency.IsToken() {
		return 100000
	}
	return 21000
}
