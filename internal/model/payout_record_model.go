package model

import (
	"time"
)

// PayoutRecordModel 付款记录
//
// 每次向链上提交的付款都落一条记录（分账、负责人余额、放款），
// 与 collaborator_share 的区别是这里按提交尝试记账。
type PayoutRecordModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	InvoiceId        int64              `json:"invoice_id" gorm:"not null;index"`
	ShareId          int64              `json:"share_id" gorm:"index"` // 关联分成记录，负责人付款为0
	RecipientAddress string             `json:"recipient_address" gorm:"not null"`
	AmountStroops    int64              `json:"amount_stroops" gorm:"not null"`
	AssetCode        string             `json:"asset_code" gorm:"not null"`
	Kind             PayoutKind         `json:"kind" gorm:"not null"` // collaborator, lead, release
	Status           PayoutRecordStatus `json:"status" gorm:"default:'pending'"`
	TxHash           string             `json:"tx_hash"`
	IdempotencyToken string             `json:"idempotency_token" gorm:"index"`
	FailReason       string             `json:"fail_reason"`
}

// PayoutKind 付款类型
type PayoutKind string

const (
	PayoutKindCollaborator PayoutKind = "collaborator" // 协作者分成
	PayoutKindLead         PayoutKind = "lead"         // 负责人余额
	PayoutKindRelease      PayoutKind = "release"      // 托管放款
)

// PayoutRecordStatus 付款记录状态
type PayoutRecordStatus string

const (
	PayoutRecordStatusPending   PayoutRecordStatus = "pending"   // 待提交
	PayoutRecordStatusSubmitted PayoutRecordStatus = "submitted" // 已提交
	PayoutRecordStatusConfirmed PayoutRecordStatus = "confirmed" // 已确认
	PayoutRecordStatusFailed    PayoutRecordStatus = "failed"    // 失败
)

// TableName 自定义表名
func (PayoutRecordModel) TableName() string {
	return "payout_record"
}
