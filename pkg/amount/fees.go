package amount

import "github.com/holiman/uint256"

// FeeLevel 手续费档位
type FeeLevel int

const (
	FeeLevelEconomy FeeLevel = iota
	FeeLevelRegular
	FeeLevelPriority
)

// Fees 当前网络费率快照。
// Bitcoin 家族: 按档位的 sat/kB 费率; Ethereum 家族: GasPrice (wei)。
type Fees struct {
	Economy  uint64 // sat per kB
	Regular  uint64
	Priority uint64

	GasPrice *uint256.Int // wei, Ethereum 家族
}

// Fee 返回指定档位的费率，缺省为 Regular
func (f Fees) Fee(level FeeLevel) uint64 {
	switch level {
	case FeeLevelEconomy:
		return f.Economy
	case FeeLevelPriority:
		return f.Priority
	default:
		return f.Regular
	}
}

// HasBitcoinRates 费率数据是否已下载 (验证项: no-fee-data)
func (f Fees) HasBitcoinRates() bool {
	return f.Regular > 0
}

// GasPriceOrZero 返回 GasPrice 的非 nil 拷贝
func (f Fees) GasPriceOrZero() *uint256.Int {
	if f.GasPrice == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(f.GasPrice)
}
