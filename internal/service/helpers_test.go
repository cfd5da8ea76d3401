package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/anon-community/internal/event"
	"github.com/d60-Lab/anon-community/internal/identity"
	"github.com/d60-Lab/anon-community/internal/model"
	"github.com/d60-Lab/anon-community/internal/repository"
)

// u1/u2 在密钥 "test" 下的匿名 ID
const (
	aliceAnonID = "202b4be5e9c60845"
	bobAnonID   = "23f66ceec12355ab"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recordingEmitter) Emit(_ context.Context, e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingEmitter) types() []event.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	db       *gorm.DB
	deriver  *identity.Deriver
	dir      DirectoryService
	resolver *Resolver
	follows  FollowService
	repo     repository.FollowRepository
	events   *recordingEmitter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := openDB(t, ":memory:", 1)
	return newFixtureWith(t, db, nil, FollowOptions{MaxTxRetries: 3, RetryBackoff: time.Millisecond})
}

// newFileFixture 基于文件的 SQLite，多连接并发写时会真正触发锁冲突
func newFileFixture(t *testing.T, busyTimeoutMs, maxConns int, opts FollowOptions) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d", filepath.Join(t.TempDir(), "community.db"), busyTimeoutMs)
	return newFixtureWith(t, openDB(t, dsn, maxConns), nil, opts)
}

func openDB(t *testing.T, dsn string, maxConns int) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(maxConns)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(model.All()...))
	return db
}

// newFixtureWith wrap 不为 nil 时用它包装目录服务
func newFixtureWith(t *testing.T, db *gorm.DB, wrap func(DirectoryService) DirectoryService, opts FollowOptions) *fixture {
	t.Helper()
	deriver, err := identity.NewDeriver("test")
	require.NoError(t, err)

	dir := NewDirectoryService(repository.NewUserRepository(db), nil, time.Minute, 100)
	if wrap != nil {
		dir = wrap(dir)
	}
	resolver := NewResolver(dir, deriver)
	repo := repository.NewFollowRepository(db)
	rec := &recordingEmitter{}
	follows := NewFollowService(db, repo, dir, resolver, deriver, rec, opts)

	return &fixture{db: db, deriver: deriver, dir: dir, resolver: resolver, follows: follows, repo: repo, events: rec}
}

// failingProfiles 批量读资料总是失败，其余方法透传
type failingProfiles struct {
	DirectoryService
}

func (failingProfiles) GetMany(context.Context, []string) (map[string]ProfileSnapshot, error) {
	return nil, errors.New("profile store unavailable")
}

func (f *fixture) addUser(t *testing.T, id, authID string) {
	t.Helper()
	require.NoError(t, f.db.Create(&model.User{
		ID:     id,
		AuthID: authID,
		Role:   model.RoleUser,
		Status: model.UserStatusActive,
	}).Error)
}

// aliceAndBob u1 = alice, u2 = bob
func (f *fixture) aliceAndBob(t *testing.T) {
	f.addUser(t, "u1", "auth|alice")
	f.addUser(t, "u2", "auth|bob")
}
