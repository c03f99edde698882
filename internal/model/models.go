package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TxMetadata 已广播交易的元数据表。
// 广播成功后尽力写入，失败只记日志不影响发送结果。
type TxMetadata struct {
	ID        uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TxHash    string          `gorm:"type:varchar(128);not null;uniqueIndex" json:"tx_hash"`
	Currency  string          `gorm:"type:varchar(16);not null;index" json:"currency"`
	Comment   string          `gorm:"type:varchar(255)" json:"comment"`
	FeeRate   uint64          `gorm:"not null;default:0" json:"fee_rate"` // sat/kB 或 gas limit
	FiatCode  string          `gorm:"type:varchar(8)" json:"fiat_code"`
	FiatRate  decimal.Decimal `gorm:"type:decimal(32,18);not null;default:0" json:"fiat_rate"` // 广播时刻的法币汇率
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	DeletedAt gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (TxMetadata) TableName() string {
	return "tx_metadata"
}

// CheckoutRecord 结账请求的处理留痕
type CheckoutRecord struct {
	ID         uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	RemoteKey  string         `gorm:"type:varchar(128);not null;index" json:"remote_key"` // base64 远端配对公钥
	Type       string         `gorm:"type:varchar(16);not null" json:"type"`              // payment / call
	Address    string         `gorm:"type:varchar(128);not null" json:"address"`
	Amount     string         `gorm:"type:varchar(80);not null" json:"amount"` // 最小单位十进制
	Status     string         `gorm:"type:varchar(32);not null;index" json:"status"`
	TxHash     string         `gorm:"type:varchar(128)" json:"tx_hash"`
	Error      string         `gorm:"type:varchar(255)" json:"error"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

func (CheckoutRecord) TableName() string {
	return "checkout_records"
}
