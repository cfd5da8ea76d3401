package model

import (
	"time"
)

// FollowStatus 关注边状态
type FollowStatus string

const (
	FollowStatusActive  FollowStatus = "active"
	FollowStatusRemoved FollowStatus = "removed"
)

// PrivacySettings 每条关注边上由关注者自己维护的隐私设置
type PrivacySettings struct {
	AllowChatInvitation  bool `json:"allowChatInvitation"`
	NotifyOnFollow       bool `json:"notifyOnFollow"`
	NotifyOnMutualFollow bool `json:"notifyOnMutualFollow"`
	AllowRealNameInChat  bool `json:"allowRealNameInChat"`
}

// DefaultPrivacySettings 新建关注时的默认值
func DefaultPrivacySettings() PrivacySettings {
	return PrivacySettings{
		AllowChatInvitation:  true,
		NotifyOnFollow:       true,
		NotifyOnMutualFollow: true,
		AllowRealNameInChat:  true,
	}
}

// FollowMetadata 关注来源
type FollowMetadata struct {
	FollowSource    string   `json:"followSource,omitempty"`
	SourceContentID string   `json:"sourceContentId,omitempty"`
	MutualInterests []string `json:"mutualInterests,omitempty"`
}

// FollowEdge 关注关系（A 关注 B）。互关状态在两条边上成对维护，
// IsMutualFollow/ChatAccessGranted 只能由 FollowService 的事务写入
type FollowEdge struct {
	ID          string `gorm:"primaryKey;type:varchar(36)"`
	FollowerID  string `gorm:"type:varchar(36);index:idx_follow_follower_status;index:idx_follow_pair,unique;not null"`
	FollowingID string `gorm:"type:varchar(36);index:idx_follow_following_status;index:idx_follow_pair,unique;not null"`
	// idx_follow_pair = (follower_id, following_id)
	Status FollowStatus `gorm:"type:varchar(16);index:idx_follow_follower_status;index:idx_follow_following_status;not null;default:active"`

	IsMutualFollow            bool `gorm:"not null;default:false"`
	MutualFollowEstablishedAt *time.Time
	ChatAccessGranted         bool `gorm:"not null;default:false"`
	ChatAccessGrantedAt       *time.Time

	PrivacySettings PrivacySettings `gorm:"type:text;serializer:json"`
	Metadata        FollowMetadata  `gorm:"type:text;serializer:json"`

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

func (FollowEdge) TableName() string { return "follows" }

// Counterpart 返回边上 viewer 之外的另一方
func (f *FollowEdge) Counterpart(viewerID string) string {
	if f.FollowerID == viewerID {
		return f.FollowingID
	}
	return f.FollowerID
}

// All 需要迁移的模型
func All() []interface{} {
	return []interface{}{&User{}, &FollowEdge{}}
}
