package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CollaboratorShareModel 协作者分成
//
// 发票负责人把发票金额的一部分按百分比分给协作者，
// 所有协作者分成之和不得超过100%，余下部分归负责人。
type CollaboratorShareModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	InvoiceId        int64           `json:"invoice_id" gorm:"not null;index"`
	Email            string          `json:"email" gorm:"not null"`
	WalletAddress    string          `json:"wallet_address"`                                     // 收款账户，开始分账前必须补齐
	SharePercentage  decimal.Decimal `json:"share_percentage" gorm:"type:decimal(5,2);not null"` // 分成百分比 (0,100]
	AmountDue        decimal.Decimal `json:"amount_due" gorm:"type:decimal(20,2)"`               // 按当前分成预计算的应付金额
	PayoutStatus     PayoutStatus    `json:"payout_status" gorm:"default:'pending';index"`
	PayoutTxHash     string          `json:"payout_tx_hash"`
	IdempotencyToken string          `json:"idempotency_token"` // 本轮结算的幂等令牌
	FailReason       string          `json:"fail_reason"`       // 机器可读失败原因
	CompletedAt      *time.Time      `json:"completed_at"`
}

// PayoutStatus 分成结算状态
//
// completed 为终态：已完成的分成不可修改、不可再次支付。
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"    // 待结算
	PayoutStatusProcessing PayoutStatus = "processing" // 结算中
	PayoutStatusCompleted  PayoutStatus = "completed"  // 已完成（终态）
	PayoutStatusFailed     PayoutStatus = "failed"     // 失败，可重试
)

// TableName 自定义表名
func (CollaboratorShareModel) TableName() string {
	return "collaborator_share"
}
