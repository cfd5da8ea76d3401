package model

import "time"

// Role 社区角色
type Role string

const (
	RoleUser      Role = "user"
	RoleTherapist Role = "therapist" // 认证的专业人员
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// UserStatus 软状态，用户记录永不物理删除
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusBanned    UserStatus = "banned"
	UserStatusInactive  UserStatus = "inactive"
)

// User 社区用户。ID 为内部 ID，绝不返回给客户端
type User struct {
	ID                  string     `gorm:"primaryKey;type:varchar(36)"`
	AuthID              string     `gorm:"type:varchar(128);uniqueIndex:ux_users_auth_id;not null"`
	Role                Role       `gorm:"type:varchar(16);not null;default:user"`
	Status              UserStatus `gorm:"type:varchar(16);not null;default:active"`
	IsVerifiedTherapist bool       `gorm:"not null;default:false"`
	Bio                 string     `gorm:"type:text"`
	PostCount           int        `gorm:"not null;default:0"`
	CommentCount        int        `gorm:"not null;default:0"`
	ReportCount         int        `gorm:"not null;default:0"`
	LastActiveAt        *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (User) TableName() string { return "users" }
