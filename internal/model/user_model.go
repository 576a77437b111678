package model

import (
	"time"
)

// UserModel 用户信息（身份认证在上游，这里只保留结算需要的字段）
type UserModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Email         string   `json:"email" gorm:"uniqueIndex;not null"`
	Name          string   `json:"name"`
	WalletAddress string   `json:"wallet_address"` // Stellar 账户地址（G 开头）
	Role          UserRole `json:"role" gorm:"default:'freelancer'"`
}

// UserRole 用户角色
type UserRole string

const (
	UserRoleFreelancer UserRole = "freelancer" // 自由职业者
	UserRoleClient     UserRole = "client"     // 客户
	UserRoleArbiter    UserRole = "arbiter"    // 仲裁人
)

// TableName 自定义表名
func (UserModel) TableName() string {
	return "user"
}
