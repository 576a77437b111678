package model

import (
	"time"
)

// WalletFundingModel 钱包开户记录
//
// 开户请求的审计轨迹：每次请求的最终结果各落一条，
// skipped 表示账户已存在（幂等跳过），不算失败。
type WalletFundingModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Address         string        `json:"address" gorm:"not null;index"`
	Status          FundingStatus `json:"status" gorm:"not null"`
	Sponsored       bool          `json:"sponsored" gorm:"default:false"` // 是否赞助储备开户
	TxHash          string        `json:"tx_hash"`
	Attempts        int           `json:"attempts"`                         // 实际提交次数
	StartingBalance string        `json:"starting_balance"`                 // 初始余额（7位小数字符串）
	LowBalance      bool          `json:"low_balance" gorm:"default:false"` // 开户后资金账户是否低于阈值
	FailReason      string        `json:"fail_reason"`
}

// FundingStatus 开户结果
type FundingStatus string

const (
	FundingStatusFunded  FundingStatus = "funded"  // 已开户
	FundingStatusSkipped FundingStatus = "skipped" // 账户已存在，跳过
	FundingStatusFailed  FundingStatus = "failed"  // 失败
)

// TableName 自定义表名
func (WalletFundingModel) TableName() string {
	return "wallet_funding"
}
