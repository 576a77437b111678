package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceModel 发票信息（完整的发票管理在上游，这里只承载结算流程）
type InvoiceModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OwnerId       int64           `json:"owner_id" gorm:"not null;index"`             // 开票的自由职业者
	OwnerEmail    string          `json:"owner_email" gorm:"not null"`                // 开票人邮箱
	ClientEmail   string          `json:"client_email" gorm:"not null"`               // 客户邮箱，放款授权以此为准
	Title         string          `json:"title" gorm:"not null"`                      // 发票标题
	Amount        decimal.Decimal `json:"amount" gorm:"type:decimal(20,2);not null"`  // 发票金额（2位小数）
	AssetCode     string          `json:"asset_code" gorm:"default:'USDC'"`           // 结算资产
	Status        InvoiceStatus   `json:"status" gorm:"default:'unpaid';index"`       // unpaid, paid, cancelled
	EscrowEnabled bool            `json:"escrow_enabled" gorm:"default:false"`        // 是否启用托管
	PaidAt        *time.Time      `json:"paid_at"`                                    // 支付时间
	PaidTxHash    string          `json:"paid_tx_hash"`                               // 支付交易哈希
}

// InvoiceStatus 发票状态
type InvoiceStatus string

const (
	InvoiceStatusUnpaid    InvoiceStatus = "unpaid"    // 待支付
	InvoiceStatusPaid      InvoiceStatus = "paid"      // 已支付
	InvoiceStatusCancelled InvoiceStatus = "cancelled" // 已取消
)

// TableName 自定义表名
func (InvoiceModel) TableName() string {
	return "invoice"
}
