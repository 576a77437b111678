package model

import (
	"time"
)

// EscrowEventModel 托管事件记录
//
// 只追加不修改：托管合约的每次状态变化都落一条事件，作为审计轨迹。
// 代码中不存在更新或删除该表的路径。
type EscrowEventModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	EscrowId  int64           `json:"escrow_id" gorm:"not null;index"`
	InvoiceId int64           `json:"invoice_id" gorm:"not null;index"`
	EventType EscrowEventType `json:"event_type" gorm:"not null"`
	Actor     string          `json:"actor"`      // 触发者邮箱或 platform
	ActorRole ActorRole       `json:"actor_role"` // client, freelancer, arbiter, platform
	TxHash    string          `json:"tx_hash"`
	Metadata  string          `json:"metadata" gorm:"type:text"` // JSON 附加信息
}

// EscrowEventType 托管事件类型
type EscrowEventType string

const (
	EscrowEventDeployed          EscrowEventType = "deployed"           // 合约已部署
	EscrowEventFunded            EscrowEventType = "funded"             // 入金已确认
	EscrowEventReleaseRequested  EscrowEventType = "release_requested"  // 放款请求已受理
	EscrowEventReleased          EscrowEventType = "released"           // 已放款
	EscrowEventDisputed          EscrowEventType = "disputed"           // 已发起争议
	EscrowEventEvidenceSubmitted EscrowEventType = "evidence_submitted" // 已提交证据
	EscrowEventAdjudicated       EscrowEventType = "adjudicated"        // 仲裁已裁决
	EscrowEventRefunded          EscrowEventType = "refunded"           // 已退款
	EscrowEventNotifyFailed      EscrowEventType = "notify_failed"      // 通知投递失败
)

// ActorRole 事件触发者角色
type ActorRole string

const (
	ActorRoleClient     ActorRole = "client"
	ActorRoleFreelancer ActorRole = "freelancer"
	ActorRoleArbiter    ActorRole = "arbiter"
	ActorRolePlatform   ActorRole = "platform"
)

// TableName 自定义表名
func (EscrowEventModel) TableName() string {
	return "escrow_event"
}
