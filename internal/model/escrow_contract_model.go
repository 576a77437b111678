package model

import (
	"time"
)

// EscrowContractModel 发票托管合约
//
// 每张启用托管的发票对应一个链上托管合约实例，合约地址由
// 发票ID派生的盐确定性计算，重复启用得到同一合约。
type EscrowContractModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	InvoiceId         int64        `json:"invoice_id" gorm:"uniqueIndex;not null"`
	ContractId        string       `json:"contract_id" gorm:"uniqueIndex;not null"` // 合约地址（C 开头）
	Salt              string       `json:"salt" gorm:"not null"`                    // 部署盐（hex）
	ClientAddress     string       `json:"client_address"`                          // 客户账户
	FreelancerAddress string       `json:"freelancer_address" gorm:"not null"`      // 收款账户
	ArbiterAddress    string       `json:"arbiter_address" gorm:"not null"`         // 仲裁账户
	AssetCode         string       `json:"asset_code" gorm:"not null"`
	AssetIssuer       string       `json:"asset_issuer"`
	AmountStroops     int64        `json:"amount_stroops" gorm:"not null"` // 托管金额（stroop，1e-7）
	FeeBps            int64        `json:"fee_bps" gorm:"not null"`        // 启用时固化的平台费率（基点）
	Status            EscrowStatus `json:"status" gorm:"default:'none';index"`
	DeployTxHash      string       `json:"deploy_tx_hash"`
	InitTxHash        string       `json:"init_tx_hash"`
	FundTxHash        string       `json:"fund_tx_hash"`    // 入金检测到的交易
	ReleaseTxHash     string       `json:"release_tx_hash"` // 放款交易
	RefundTxHash      string       `json:"refund_tx_hash"`  // 退款交易
	FundedAt          *time.Time   `json:"funded_at"`
	ReleasedAt        *time.Time   `json:"released_at"`
	RefundedAt        *time.Time   `json:"refunded_at"`
}

// EscrowStatus 托管状态
//
// 状态机: none → held → released | disputed; disputed → released | refunded。
// released 和 refunded 为终态，任何离开终态的迁移都是冲突。
type EscrowStatus string

const (
	EscrowStatusNone     EscrowStatus = "none"     // 已部署待入金
	EscrowStatusHeld     EscrowStatus = "held"     // 资金已托管
	EscrowStatusReleased EscrowStatus = "released" // 已放款（终态）
	EscrowStatusDisputed EscrowStatus = "disputed" // 争议中
	EscrowStatusRefunded EscrowStatus = "refunded" // 已退款（终态）
)

// TableName 自定义表名
func (EscrowContractModel) TableName() string {
	return "escrow_contract"
}
