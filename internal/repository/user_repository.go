package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/anon-community/internal/model"
	"github.com/d60-Lab/anon-community/pkg/apperr"
)

// UserRef 反查扫描只需要的最小字段
type UserRef struct {
	ID     string
	AuthID string
}

type UserRepository interface {
	// CreateIfAbsent 按 auth_id 幂等创建，已存在时不报错
	CreateIfAbsent(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByAuthID(ctx context.Context, authID string) (*model.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]*model.User, error)
	// Scan 按主键顺序分批遍历用户；fn 返回 false 时停止，fn 不得持有传入的切片
	Scan(ctx context.Context, batchSize int, fn func([]UserRef) bool) error
	Touch(ctx context.Context, id string, at time.Time) error
	Count(ctx context.Context) (int64, error)
}

type userRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &userRepository{db: db} }

func (r *userRepository) CreateIfAbsent(ctx context.Context, u *model.User) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "auth_id"}}, DoNothing: true}).
		Create(u).Error
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, notFound(err, "user not found")
	}
	return &u, nil
}

func (r *userRepository) GetByAuthID(ctx context.Context, authID string) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).Where("auth_id = ?", authID).First(&u).Error; err != nil {
		return nil, notFound(err, "user not found")
	}
	return &u, nil
}

func (r *userRepository) GetByIDs(ctx context.Context, ids []string) ([]*model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var res []*model.User
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&res).Error
	return res, err
}

var errStopScan = errors.New("stop scan")

func (r *userRepository) Scan(ctx context.Context, batchSize int, fn func([]UserRef) bool) error {
	if batchSize <= 0 {
		batchSize = 500
	}
	var batch []model.User
	refs := make([]UserRef, 0, batchSize)
	res := r.db.WithContext(ctx).
		Select("id", "auth_id").
		FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			refs = refs[:0]
			for i := range batch {
				refs = append(refs, UserRef{ID: batch[i].ID, AuthID: batch[i].AuthID})
			}
			if !fn(refs) {
				return errStopScan
			}
			return nil
		})
	if res.Error != nil && !errors.Is(res.Error, errStopScan) {
		return res.Error
	}
	return nil
}

func (r *userRepository) Touch(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", id).
		UpdateColumn("last_active_at", at).Error
}

func (r *userRepository) Count(ctx context.Context) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Count(&cnt).Error
	return cnt, err
}

// notFound 把 gorm.ErrRecordNotFound 翻译为 apperr.NotFound
func notFound(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(msg)
	}
	return err
}
