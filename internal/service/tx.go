package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/anon-community/pkg/apperr"
	"github.com/d60-Lab/anon-community/pkg/logger"
	"github.com/d60-Lab/anon-community/pkg/metrics"
)

// txRunner 关注写路径的事务执行器：Postgres 下使用 SERIALIZABLE，
// 写冲突按线性退避重试，超过上限后返回 Conflict
type txRunner struct {
	db         *gorm.DB
	maxRetries int
	backoff    time.Duration
}

func (r txRunner) run(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	var opts []*sql.TxOptions
	if r.db.Dialector.Name() == "postgres" {
		opts = append(opts, &sql.TxOptions{Isolation: sql.LevelSerializable})
	}

	for attempt := 0; ; attempt++ {
		err := r.db.WithContext(ctx).Transaction(fn, opts...)
		if err == nil || !retryable(err) {
			return err
		}
		if attempt >= r.maxRetries {
			logger.Warn("follow tx gave up after retries", zap.String("op", op), zap.Int("attempts", attempt+1), zap.Error(err))
			return apperr.Conflict("concurrent update on this relationship, please retry")
		}
		metrics.RecordTxRetry()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.backoff * time.Duration(attempt+1)):
		}
	}
}

// retryable 序列化失败、死锁以及 SQLite 忙/锁
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database table is locked")
}
