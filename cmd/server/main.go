package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/anon-community/config"
	"github.com/d60-Lab/anon-community/internal/api"
	"github.com/d60-Lab/anon-community/internal/api/handler"
	"github.com/d60-Lab/anon-community/internal/event"
	"github.com/d60-Lab/anon-community/internal/identity"
	"github.com/d60-Lab/anon-community/internal/model"
	"github.com/d60-Lab/anon-community/internal/repository"
	"github.com/d60-Lab/anon-community/internal/service"
	"github.com/d60-Lab/anon-community/pkg/cache"
	"github.com/d60-Lab/anon-community/pkg/database"
	"github.com/d60-Lab/anon-community/pkg/logger"
	"github.com/d60-Lab/anon-community/pkg/tracing"
)

// @title Anonymous Community API
// @version 1.0
// @description 匿名社区关注关系服务：匿名身份派生、关注 / 互关、聊天资格
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := run(); err != nil {
		logger.Error("server exited", zap.Error(err))
		_ = logger.Sync()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Sentry.Environment,
			AttachStacktrace: true,
		}); err != nil {
			logger.Warn("sentry init failed", zap.Error(err))
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		return err
	}
	defer database.Close(db)
	if err := database.Migrate(db, model.All()...); err != nil {
		return err
	}

	rdb, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		// 没有 Redis 时资料缓存退化为直接读库，事件写日志
		logger.Warn("redis unavailable, continuing without cache", zap.Error(err))
		rdb = nil
	}
	if rdb != nil {
		defer rdb.Close()
	}

	deriver, err := identity.NewDeriver(cfg.Anonymity.Secret)
	if err != nil {
		return err
	}

	var (
		emitter    event.Emitter = event.Nop{}
		stopEvents               = func(context.Context) error { return nil }
	)
	if cfg.Events.Enabled {
		var pub event.Publisher = event.LogPublisher{}
		if rdb != nil {
			pub = event.NewRedisPublisher(rdb, cfg.Events.Channel)
		}
		d := event.NewDispatcher(pub, cfg.Events.QueueSize)
		stopEvents = d.Start(cfg.Events.Workers)
		emitter = d
	}

	dir := service.NewDirectoryService(repository.NewUserRepository(db), rdb, cfg.Cache.ProfileTTL, cfg.Anonymity.ScanBatchSize)
	resolver := service.NewResolver(dir, deriver)
	follows := service.NewFollowService(db, repository.NewFollowRepository(db), dir, resolver, deriver, emitter,
		service.FollowOptions{MaxTxRetries: cfg.Follow.MaxTxRetries, RetryBackoff: cfg.Follow.RetryBackoff})

	h := handler.New(dir, resolver, follows, healthChecks(db, rdb))
	router, err := api.NewRouter(cfg, h)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	// HTTP 排空后再停事件投递，避免丢掉最后一批事件
	if err := stopEvents(shutdownCtx); err != nil {
		logger.Warn("event dispatcher shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
	return nil
}

func healthChecks(db *gorm.DB, rdb *redis.Client) map[string]handler.HealthCheck {
	checks := map[string]handler.HealthCheck{
		"database": func(ctx context.Context) error { return database.Ping(ctx, db) },
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return checks
}
