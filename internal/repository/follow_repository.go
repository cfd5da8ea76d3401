package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/d60-Lab/anon-community/internal/model"
	"github.com/d60-Lab/anon-community/pkg/apperr"
)

// ListFilter 关注列表类型
type ListFilter string

const (
	FilterFollowers ListFilter = "followers"
	FilterFollowing ListFilter = "following"
	FilterMutual    ListFilter = "mutual"
	FilterAll       ListFilter = "all"
)

// ParseListFilter 未知或空值按 all 处理
func ParseListFilter(s string) ListFilter {
	switch ListFilter(s) {
	case FilterFollowers, FilterFollowing, FilterMutual:
		return ListFilter(s)
	default:
		return FilterAll
	}
}

// FollowRepository 关注边的读写。互关字段只通过 SetMutual/ClearMutual 修改
type FollowRepository interface {
	// WithTx 返回绑定到事务的仓储
	WithTx(tx *gorm.DB) FollowRepository

	Create(ctx context.Context, f *model.FollowEdge) error
	// FindPair 查找 (follower, following) 边，不限状态；不存在返回 nil, nil
	FindPair(ctx context.Context, followerID, followingID string) (*model.FollowEdge, error)
	GetByID(ctx context.Context, id string) (*model.FollowEdge, error)
	Reactivate(ctx context.Context, id string, privacy model.PrivacySettings, meta model.FollowMetadata) error
	SetMutual(ctx context.Context, ids []string, at time.Time) error
	ClearMutual(ctx context.Context, id string) error
	// Remove 取关：边置为 removed 并清空互关字段，行保留以便重新关注时复用
	Remove(ctx context.Context, id string) error
	UpdatePrivacy(ctx context.Context, id string, privacy model.PrivacySettings) error

	List(ctx context.Context, userID string, filter ListFilter, offset, limit int) ([]*model.FollowEdge, int64, error)
	CountFollowers(ctx context.Context, userID string) (int64, error)
	CountFollowing(ctx context.Context, userID string) (int64, error)
	// CountMutualRows 统计涉及 userID 且标记互关的行数；每段互关关系占两行
	CountMutualRows(ctx context.Context, userID string) (int64, error)
	// FindMutual 任一方向上已授予聊天权限的互关边
	FindMutual(ctx context.Context, a, b string) (*model.FollowEdge, error)
	ListMutual(ctx context.Context, userID string) ([]*model.FollowEdge, error)
}

type followRepository struct {
	db *gorm.DB
}

func NewFollowRepository(db *gorm.DB) FollowRepository { return &followRepository{db: db} }

func (r *followRepository) WithTx(tx *gorm.DB) FollowRepository { return &followRepository{db: tx} }

func (r *followRepository) Create(ctx context.Context, f *model.FollowEdge) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.Status == "" {
		f.Status = model.FollowStatusActive
	}
	// 唯一键 idx_follow_pair 冲突说明并发请求已建好同一条边
	err := r.db.WithContext(ctx).Create(f).Error
	if isDuplicateKey(err) {
		return apperr.Conflict("already following this user")
	}
	return err
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}

func (r *followRepository) FindPair(ctx context.Context, followerID, followingID string) (*model.FollowEdge, error) {
	var f model.FollowEdge
	err := r.db.WithContext(ctx).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		Limit(1).
		Find(&f).Error
	if err != nil {
		return nil, err
	}
	if f.ID == "" {
		return nil, nil
	}
	return &f, nil
}

func (r *followRepository) GetByID(ctx context.Context, id string) (*model.FollowEdge, error) {
	var f model.FollowEdge
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&f).Error; err != nil {
		return nil, notFound(err, "follow relationship not found")
	}
	return &f, nil
}

func (r *followRepository) Reactivate(ctx context.Context, id string, privacy model.PrivacySettings, meta model.FollowMetadata) error {
	return r.db.WithContext(ctx).
		Model(&model.FollowEdge{ID: id}).
		Select("status", "is_mutual_follow", "chat_access_granted", "mutual_follow_established_at",
			"chat_access_granted_at", "privacy_settings", "metadata", "created_at", "updated_at").
		Updates(&model.FollowEdge{
			Status:          model.FollowStatusActive,
			PrivacySettings: privacy,
			Metadata:        meta,
			CreatedAt:       time.Now(),
		}).Error
}

func (r *followRepository) SetMutual(ctx context.Context, ids []string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&model.FollowEdge{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"is_mutual_follow":             true,
			"mutual_follow_established_at": at,
			"chat_access_granted":          true,
			"chat_access_granted_at":       at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != int64(len(ids)) {
		return apperr.Conflict("follow pair changed concurrently")
	}
	return nil
}

func (r *followRepository) ClearMutual(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&model.FollowEdge{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_mutual_follow":             false,
			"mutual_follow_established_at": nil,
			"chat_access_granted":          false,
			"chat_access_granted_at":       nil,
		}).Error
}

func (r *followRepository) Remove(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).
		Model(&model.FollowEdge{}).
		Where("id = ? AND status = ?", id, model.FollowStatusActive).
		Updates(map[string]any{
			"status":                       model.FollowStatusRemoved,
			"is_mutual_follow":             false,
			"mutual_follow_established_at": nil,
			"chat_access_granted":          false,
			"chat_access_granted_at":       nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("not following this user")
	}
	return nil
}

func (r *followRepository) UpdatePrivacy(ctx context.Context, id string, privacy model.PrivacySettings) error {
	return r.db.WithContext(ctx).
		Model(&model.FollowEdge{ID: id}).
		Select("privacy_settings", "updated_at").
		Updates(&model.FollowEdge{PrivacySettings: privacy}).Error
}

func (r *followRepository) scope(ctx context.Context, userID string, filter ListFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&model.FollowEdge{}).Where("status = ?", model.FollowStatusActive)
	switch filter {
	case FilterFollowers:
		return q.Where("following_id = ?", userID)
	case FilterFollowing:
		return q.Where("follower_id = ?", userID)
	case FilterMutual:
		return q.Where("(follower_id = ? OR following_id = ?) AND is_mutual_follow = ?", userID, userID, true)
	default:
		return q.Where("(follower_id = ? OR following_id = ?)", userID, userID)
	}
}

func (r *followRepository) List(ctx context.Context, userID string, filter ListFilter, offset, limit int) ([]*model.FollowEdge, int64, error) {
	var total int64
	if err := r.scope(ctx, userID, filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var res []*model.FollowEdge
	err := r.scope(ctx, userID, filter).
		Order("created_at DESC").Order("id").
		Offset(offset).Limit(limit).
		Find(&res).Error
	return res, total, err
}

func (r *followRepository) CountFollowers(ctx context.Context, userID string) (int64, error) {
	var cnt int64
	err := r.scope(ctx, userID, FilterFollowers).Count(&cnt).Error
	return cnt, err
}

func (r *followRepository) CountFollowing(ctx context.Context, userID string) (int64, error) {
	var cnt int64
	err := r.scope(ctx, userID, FilterFollowing).Count(&cnt).Error
	return cnt, err
}

func (r *followRepository) CountMutualRows(ctx context.Context, userID string) (int64, error) {
	var cnt int64
	err := r.scope(ctx, userID, FilterMutual).Count(&cnt).Error
	return cnt, err
}

func (r *followRepository) FindMutual(ctx context.Context, a, b string) (*model.FollowEdge, error) {
	var f model.FollowEdge
	err := r.db.WithContext(ctx).
		Where("status = ? AND is_mutual_follow = ? AND chat_access_granted = ?", model.FollowStatusActive, true, true).
		Where("((follower_id = ? AND following_id = ?) OR (follower_id = ? AND following_id = ?))", a, b, b, a).
		Order("created_at").
		Limit(1).
		Find(&f).Error
	if err != nil {
		return nil, err
	}
	if f.ID == "" {
		return nil, nil
	}
	return &f, nil
}

func (r *followRepository) ListMutual(ctx context.Context, userID string) ([]*model.FollowEdge, error) {
	var res []*model.FollowEdge
	err := r.scope(ctx, userID, FilterMutual).
		Where("chat_access_granted = ?", true).
		Order("mutual_follow_established_at DESC").Order("id").
		Find(&res).Error
	return res, err
}
