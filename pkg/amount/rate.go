package amount

import (
	"github.com/shopspring/decimal"
)

// Rate 法币汇率: 1 整单位币种 = Rate 法币
type Rate struct {
	FiatCode string // e.g. "USD"
	Rate     decimal.Decimal
}

// IsZero 汇率是否缺失
func (r Rate) IsZero() bool {
	return r.FiatCode == "" || r.Rate.IsZero()
}

// FiatValue 将最小单位金额换算为法币价值。
// 大于 uint64 范围的金额按十进制字符串转换，不丢精度。
func (r Rate) FiatValue(a Amount) decimal.Decimal {
	units, err := decimal.NewFromString(a.String())
	if err != nil {
		return decimal.Zero
	}
	scale := decimal.New(1, int32(a.Currency().Decimals))
	return units.Div(scale).Mul(r.Rate)
}
