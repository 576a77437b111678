package model

import (
	"time"
)

// LedgerTxModel 链上交易跟踪
//
// 所有经本服务提交的交易在此登记，救援扫描任务据此发现
// 长时间未确认的交易并做费用置换。
type LedgerTxModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Hash           string         `json:"hash" gorm:"uniqueIndex;not null"`
	EnvelopeXdr    string         `json:"envelope_xdr" gorm:"type:text"` // base64 交易信封
	Kind           LedgerTxKind   `json:"kind"`
	Status         LedgerTxStatus `json:"status" gorm:"default:'submitted';index"`
	FeeCharged     int64          `json:"fee_charged"`
	ReplacedByHash string         `json:"replaced_by_hash"` // 费用置换后的新交易哈希
	SubmitAttempts int            `json:"submit_attempts" gorm:"default:1"`
	LastError      string         `json:"last_error"`
}

// LedgerTxStatus 交易跟踪状态
type LedgerTxStatus string

const (
	LedgerTxStatusSubmitted LedgerTxStatus = "submitted" // 已提交待确认
	LedgerTxStatusConfirmed LedgerTxStatus = "confirmed" // 已确认
	LedgerTxStatusFailed    LedgerTxStatus = "failed"    // 已失败
	LedgerTxStatusReplaced  LedgerTxStatus = "replaced"  // 已被费用置换
)

// LedgerTxKind 交易类型
type LedgerTxKind string

const (
	LedgerTxKindPayment       LedgerTxKind = "payment"
	LedgerTxKindCreateAccount LedgerTxKind = "create_account"
	LedgerTxKindEscrowDeploy  LedgerTxKind = "escrow_deploy"
	LedgerTxKindEscrowInvoke  LedgerTxKind = "escrow_invoke"
	LedgerTxKindFeeBump       LedgerTxKind = "fee_bump"
	LedgerTxKindChangeTrust   LedgerTxKind = "change_trust"
	LedgerTxKindExternal      LedgerTxKind = "external" // 外部提交后送来救援的交易
)

// TableName 自定义表名
func (LedgerTxModel) TableName() string {
	return "ledger_tx"
}
