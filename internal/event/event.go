// Package event publishes follow graph notifications to other subsystems.
// Delivery is fire-and-forget: emitting never fails or blocks a request.
package event

import (
	"context"
	"time"
)

// Type 事件类型
type Type string

const (
	UserFollowed            Type = "userFollowed"
	MutualFollowEstablished Type = "mutualFollowEstablished"
	MutualFollowBroken      Type = "mutualFollowBroken"
	UserUnfollowed          Type = "userUnfollowed"
)

// Event 内部事件；内部 ID 只在服务间总线上流转，不进客户端响应
type Event struct {
	Type       Type      `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`

	FollowerID  string `json:"followerId,omitempty"`
	FollowingID string `json:"followingId,omitempty"`

	FollowerAnonymousID  string `json:"followerAnonymousId,omitempty"`
	FollowerName         string `json:"followerName,omitempty"`
	FollowingAnonymousID string `json:"followingAnonymousId,omitempty"`
	FollowingName        string `json:"followingName,omitempty"`

	IsMutualFollow    bool   `json:"isMutualFollow"`
	ChatAccessGranted bool   `json:"chatAccessGranted"`
	ChatRef           string `json:"chatRef,omitempty"`
}

// Emitter 由业务层调用
type Emitter interface {
	Emit(ctx context.Context, e Event)
}

// Publisher 实际投递到下游（Redis、日志等）
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop 丢弃所有事件
type Nop struct{}

func (Nop) Emit(context.Context, Event) {}
