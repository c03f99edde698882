package request

// CreateSendRequest 发起一笔转账
type CreateSendRequest struct {
	Currency string `json:"currency" binding:"required"` // BTC / BCH / ETH / 代币代码
	Address  string `json:"address" binding:"required"`
	Amount   string `json:"amount" binding:"required"` // 最小单位十进制
	Comment  string `json:"comment"`
	PIN      string `json:"pin" binding:"required"`

	// 仅代币转账需要
	TokenContract string `json:"token_contract"`
	TokenDecimals int    `json:"token_decimals"`
}

// FeeEstimateRequest 预估一笔转账的手续费
type FeeEstimateRequest struct {
	Currency string `json:"currency" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
}
