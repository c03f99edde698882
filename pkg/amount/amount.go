package amount

import (
	"errors"
	"strings"

	"github.com/holiman/uint256"
)

var (
	ErrOverflow         = errors.New("amount: 算术溢出")
	ErrUnderflow        = errors.New("amount: 算术下溢 (结果为负)")
	ErrCurrencyMismatch = errors.New("amount: 币种不匹配")
	ErrInvalidAmount    = errors.New("amount: 无效的金额字符串")
)

// Family 币种家族标签，决定交易构造策略
type Family int

const (
	FamilyBitcoin  Family = iota // UTXO 账本模型 (BTC, BCH)
	FamilyEthereum               // 账户模型 (ETH)
	FamilyERC20                  // 账户模型 + 合约转账
)

func (f Family) String() string {
	switch f {
	case FamilyBitcoin:
		return "bitcoin"
	case FamilyEthereum:
		return "ethereum"
	case FamilyERC20:
		return "erc20"
	default:
		return "unknown"
	}
}

// Currency 币种描述符。Amount 永远与一个 Currency 成对出现。
type Currency struct {
	Code         string // 大写币种代码, e.g. "BTC"
	Family       Family
	Decimals     int
	TokenAddress string // 仅 ERC-20: 合约地址
}

// IsToken 是否为合约代币
func (c Currency) IsToken() bool {
	return c.Family == FamilyERC20
}

func (c Currency) Equal(other Currency) bool {
	return strings.EqualFold(c.Code, other.Code) && c.Family == other.Family
}

// 内置币种
var (
	BTC = Currency{Code: "BTC", Family: FamilyBitcoin, Decimals: 8}
	BCH = Currency{Code: "BCH", Family: FamilyBitcoin, Decimals: 8}
	ETH = Currency{Code: "ETH", Family: FamilyEthereum, Decimals: 18}
)

// NewToken 构造一个 ERC-20 代币描述符
func NewToken(code, contractAddress string, decimals int) Currency {
	return Currency{
		Code:         strings.ToUpper(code),
		Family:       FamilyERC20,
		Decimals:     decimals,
		TokenAddress: contractAddress,
	}
}

// Amount 表示某币种最小单位的无符号 256 位整数金额。
// 不变量: 永远非负；溢出/下溢是硬错误而不是回绕。
type Amount struct {
	value    uint256.Int
	currency Currency
}

// New 从 uint64 最小单位构造 Amount
func New(v uint64, currency Currency) Amount {
	var a Amount
	a.value.SetUint64(v)
	a.currency = currency
	return a
}

// NewFromInt 从 uint256 构造 Amount (拷贝值)
func NewFromInt(v *uint256.Int, currency Currency) Amount {
	var a Amount
	if v != nil {
		a.value.Set(v)
	}
	a.currency = currency
	return a
}

// Parse 从十进制字符串 (最小单位) 解析 Amount
func Parse(s string, currency Currency) (Amount, error) {
	v, err := uint256.FromDecimal(strings.TrimSpace(s))
	if err != nil {
		return Amount{}, ErrInvalidAmount
	}
	return NewFromInt(v, currency), nil
}

func (a Amount) Currency() Currency { return a.currency }

// Raw 返回底层整数值的拷贝
func (a Amount) Raw() *uint256.Int {
	return new(uint256.Int).Set(&a.value)
}

// Uint64 以 uint64 返回金额；超出范围时 ok=false
func (a Amount) Uint64() (uint64, bool) {
	if !a.value.IsUint64() {
		return 0, false
	}
	return a.value.Uint64(), true
}

func (a Amount) IsZero() bool { return a.value.IsZero() }

// String 十进制最小单位表示
func (a Amount) String() string { return a.value.Dec() }

// Cmp 比较两个同币种金额: -1, 0, +1
func (a Amount) Cmp(b Amount) int { return a.value.Cmp(&b.value) }

// Add 加法，溢出返回 ErrOverflow
func (a Amount) Add(b Amount) (Amount, error) {
	if !a.currency.Equal(b.currency) {
		return Amount{}, ErrCurrencyMismatch
	}
	var out Amount
	out.currency = a.currency
	if _, overflow := out.value.AddOverflow(&a.value, &b.value); overflow {
		return Amount{}, ErrOverflow
	}
	return out, nil
}

// Sub 减法，结果为负返回 ErrUnderflow
func (a Amount) Sub(b Amount) (Amount, error) {
	if !a.currency.Equal(b.currency) {
		return Amount{}, ErrCurrencyMismatch
	}
	var out Amount
	out.currency = a.currency
	if _, underflow := out.value.SubOverflow(&a.value, &b.value); underflow {
		return Amount{}, ErrUnderflow
	}
	return out, nil
}

// MulUint64 标量乘法 (例如 gasPrice * gasLimit)，溢出返回 ErrOverflow
func (a Amount) MulUint64(k uint64) (Amount, error) {
	var out Amount
	out.currency = a.currency
	mul := new(uint256.Int).SetUint64(k)
	if _, overflow := out.value.MulOverflow(&a.value, mul); overflow {
		return Amount{}, ErrOverflow
	}
	return out, nil
}
