package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/anon-community/internal/model"
)

func setupDB(tb testing.TB) *gorm.DB {
	tb.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		tb.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("db handle: %v", err)
	}
	// :memory: 每个连接是独立的库
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(model.All()...); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	tb.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func seedUsers(tb testing.TB, db *gorm.DB, n int) []model.User {
	tb.Helper()
	users := make([]model.User, n)
	for i := range users {
		users[i] = model.User{
			ID:     uuid.New().String(),
			AuthID: fmt.Sprintf("auth|%05d", i),
			Role:   model.RoleUser,
			Status: model.UserStatusActive,
		}
	}
	if err := db.CreateInBatches(&users, 500).Error; err != nil {
		tb.Fatalf("seed users: %v", err)
	}
	return users
}

func follow(tb testing.TB, repo FollowRepository, from, to string) *model.FollowEdge {
	tb.Helper()
	e := &model.FollowEdge{FollowerID: from, FollowingID: to, PrivacySettings: model.DefaultPrivacySettings()}
	if err := repo.Create(context.Background(), e); err != nil {
		tb.Fatalf("follow %s -> %s: %v", from, to, err)
	}
	return e
}
