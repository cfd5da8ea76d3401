package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/anon-community/internal/model"
	"github.com/d60-Lab/anon-community/internal/repository"
	"github.com/d60-Lab/anon-community/pkg/apperr"
	"github.com/d60-Lab/anon-community/pkg/logger"
)

// ProfileSnapshot 缓存在 Redis 中的用户快照，不含 auth_id
type ProfileSnapshot struct {
	ID                  string           `json:"id"`
	Role                model.Role       `json:"role"`
	Status              model.UserStatus `json:"status"`
	IsVerifiedTherapist bool             `json:"isVerifiedTherapist"`
	Bio                 string           `json:"bio,omitempty"`
	PostCount           int              `json:"postCount"`
	CommentCount        int              `json:"commentCount"`
	LastActiveAt        *time.Time       `json:"lastActiveAt,omitempty"`
	CreatedAt           time.Time        `json:"createdAt"`
}

func snapshotOf(u *model.User) ProfileSnapshot {
	return ProfileSnapshot{
		ID:                  u.ID,
		Role:                u.Role,
		Status:              u.Status,
		IsVerifiedTherapist: u.IsVerifiedTherapist,
		Bio:                 u.Bio,
		PostCount:           u.PostCount,
		CommentCount:        u.CommentCount,
		LastActiveAt:        u.LastActiveAt,
		CreatedAt:           u.CreatedAt,
	}
}

// DirectoryService 用户目录：auth id 与内部 id 的映射、首次访问建档
type DirectoryService interface {
	GetOrCreateByAuthID(ctx context.Context, authID string) (*model.User, error)
	GetByInternalID(ctx context.Context, id string) (*model.User, error)
	GetByAuthID(ctx context.Context, authID string) (*model.User, error)
	// GetMany 批量加载资料快照，缺失的 id 不出现在结果中
	GetMany(ctx context.Context, ids []string) (map[string]ProfileSnapshot, error)
	Scan(ctx context.Context, fn func([]repository.UserRef) bool) error
	// Touch 更新最近活跃时间，失败只记日志
	Touch(ctx context.Context, id string)
}

type directoryService struct {
	users     repository.UserRepository
	cache     *redis.Client // 可为 nil
	ttl       time.Duration
	batchSize int

	bulkLoads atomic.Int64
}

// NewDirectoryService cache 为 nil 时 GetMany 直接读库
func NewDirectoryService(users repository.UserRepository, cache *redis.Client, ttl time.Duration, scanBatch int) DirectoryService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &directoryService{users: users, cache: cache, ttl: ttl, batchSize: scanBatch}
}

func (s *directoryService) GetOrCreateByAuthID(ctx context.Context, authID string) (*model.User, error) {
	if authID == "" {
		return nil, apperr.InvalidInput("auth id is required")
	}
	u, err := s.users.GetByAuthID(ctx, authID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	fresh := &model.User{
		ID:     uuid.New().String(),
		AuthID: authID,
		Role:   model.RoleUser,
		Status: model.UserStatusActive,
	}
	if err := s.users.CreateIfAbsent(ctx, fresh); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	// 并发首访时以先落库的一行为准
	return s.users.GetByAuthID(ctx, authID)
}

func (s *directoryService) GetByInternalID(ctx context.Context, id string) (*model.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *directoryService) GetByAuthID(ctx context.Context, authID string) (*model.User, error) {
	return s.users.GetByAuthID(ctx, authID)
}

func profileKey(id string) string { return fmt.Sprintf("user:%s", id) }

func (s *directoryService) GetMany(ctx context.Context, ids []string) (map[string]ProfileSnapshot, error) {
	out := make(map[string]ProfileSnapshot, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	if s.cache != nil {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = profileKey(id)
		}
		vals, err := s.cache.MGet(ctx, keys...).Result()
		if err != nil {
			logger.Warn("profile cache mget failed", zap.Error(err))
		}
		for i, v := range vals {
			str, ok := v.(string)
			if !ok {
				continue
			}
			var snap ProfileSnapshot
			if uErr := json.Unmarshal([]byte(str), &snap); uErr == nil {
				out[ids[i]] = snap
			}
		}
	}

	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	s.bulkLoads.Add(1)
	users, err := s.users.GetByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}

	var pipe redis.Pipeliner
	if s.cache != nil {
		pipe = s.cache.Pipeline()
	}
	for _, u := range users {
		snap := snapshotOf(u)
		out[u.ID] = snap
		if pipe == nil {
			continue
		}
		if payload, mErr := json.Marshal(snap); mErr == nil {
			pipe.Set(ctx, profileKey(u.ID), payload, s.ttl)
		}
	}
	if pipe != nil && pipe.Len() > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			logger.Warn("profile cache fill failed", zap.Error(err))
		}
	}
	return out, nil
}

func (s *directoryService) Scan(ctx context.Context, fn func([]repository.UserRef) bool) error {
	return s.users.Scan(ctx, s.batchSize, fn)
}

func (s *directoryService) Touch(ctx context.Context, id string) {
	if err := s.users.Touch(ctx, id, time.Now()); err != nil {
		logger.Warn("touch user failed", zap.Error(err))
		return
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, profileKey(id)).Err()
	}
}

// BulkLoads GetMany 回源数据库的次数
func (s *directoryService) BulkLoads() int64 { return s.bulkLoads.Load() }

// BulkLoadCounter 由 resolvebench 观察缓存命中
type BulkLoadCounter interface {
	BulkLoads() int64
}
