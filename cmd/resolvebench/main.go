package main

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/d60-Lab/anon-community/config"
	"github.com/d60-Lab/anon-community/internal/identity"
	"github.com/d60-Lab/anon-community/internal/model"
	"github.com/d60-Lab/anon-community/internal/repository"
	"github.com/d60-Lab/anon-community/internal/service"
	"github.com/d60-Lab/anon-community/pkg/cache"
	"github.com/d60-Lab/anon-community/pkg/database"
)

// resolvebench 测量匿名 ID 反查（全量派生扫描）随用户规模的延迟，
// 以及资料快照缓存对 Describe 的收益
func main() {
	ctx := context.Background()
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))

	// 基准独占这两张表
	mustDo(db.Migrator().DropTable(&model.FollowEdge{}, &model.User{}))
	mustDo(database.Migrate(db, model.All()...))

	deriver := must(identity.NewDeriver(cfg.Anonymity.Secret))
	sizes := envSizes("SIZES", []int{1000, 10000, 50000})
	lookups := envInt("LOOKUPS", 200)

	fmt.Println("Resolve latency vs population (derive-and-compare scan)")
	seeded := 0
	var ids []string
	for _, n := range sizes {
		ids = append(ids, seed(db, seeded, n)...)
		seeded = n

		dir := service.NewDirectoryService(repository.NewUserRepository(db), nil, cfg.Cache.ProfileTTL, cfg.Anonymity.ScanBatchSize)
		resolver := service.NewResolver(dir, deriver)

		rnd := rand.New(rand.NewSource(42))
		single := make([]time.Duration, 0, lookups)
		for i := 0; i < lookups; i++ {
			target := deriver.AnonymousID(ids[rnd.Intn(len(ids))])
			st := time.Now()
			if _, err := resolver.Resolve(ctx, target); err != nil {
				panic(err)
			}
			single = append(single, time.Since(st))
		}

		// 未命中：必须扫完全表
		missStart := time.Now()
		if _, err := resolver.Resolve(ctx, "ffffffffffffffff"); err == nil {
			panic("unexpected match for miss probe")
		}
		miss := time.Since(missStart)

		batch := make([]string, 50)
		for i := range batch {
			batch[i] = deriver.AnonymousID(ids[rnd.Intn(len(ids))])
		}
		bs := time.Now()
		if _, err := resolver.ResolveMany(ctx, batch); err != nil {
			panic(err)
		}
		batchDur := time.Since(bs)

		fmt.Printf("users=%-7d resolve avg=%v p95=%v p99=%v miss=%v resolveMany(50)=%v\n",
			n, avg(single), pct(single, 0.95), pct(single, 0.99), miss, batchDur)
	}

	client, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil || client == nil {
		fmt.Println("redis not available, skipping profile cache run")
		return
	}
	defer client.Close()
	describeRun(ctx, client, db, deriver, cfg, ids)
}

func describeRun(ctx context.Context, client *redis.Client, db *gorm.DB, deriver *identity.Deriver, cfg *config.Config, ids []string) {
	client.FlushDB(ctx)

	run := func(dir service.DirectoryService) ([]time.Duration, int64) {
		resolver := service.NewResolver(dir, deriver)
		rnd := rand.New(rand.NewSource(7))
		out := make([]time.Duration, 0, 2000)
		for i := 0; i < 2000; i++ {
			page := make([]string, 20)
			for j := range page {
				// 热点集中在前 2000 个用户
				page[j] = ids[rnd.Intn(min(len(ids), 2000))]
			}
			st := time.Now()
			if _, err := resolver.Describe(ctx, page); err != nil {
				panic(err)
			}
			out = append(out, time.Since(st))
		}
		return out, dir.(service.BulkLoadCounter).BulkLoads()
	}

	noCache, noCacheLoads := run(service.NewDirectoryService(repository.NewUserRepository(db), nil, cfg.Cache.ProfileTTL, cfg.Anonymity.ScanBatchSize))
	cached, cachedLoads := run(service.NewDirectoryService(repository.NewUserRepository(db), client, cfg.Cache.ProfileTTL, cfg.Anonymity.ScanBatchSize))

	keys, _ := client.DBSize(ctx).Result()
	var mem int64
	if info, err := client.Info(ctx, "memory").Result(); err == nil {
		mem = parseRedisMemory(info)
	}

	fmt.Println("\nDescribe(20 ids) x 2000, hot set of 2000 users")
	fmt.Printf("%-14s avg=%v p95=%v p99=%v db_bulk=%d\n", "No cache", avg(noCache), pct(noCache, 0.95), pct(noCache, 0.99), noCacheLoads)
	fmt.Printf("%-14s avg=%v p95=%v p99=%v db_bulk=%d cache_keys=%d mem=%s\n", "Redis MGET", avg(cached), pct(cached, 0.95), pct(cached, 0.99), cachedLoads, keys, formatBytes(mem))
}

// seed 补齐到 total 个用户，返回新建的 ID
func seed(db *gorm.DB, have, total int) []string {
	if total <= have {
		return nil
	}
	users := make([]model.User, 0, total-have)
	for i := have; i < total; i++ {
		id := uuid.NewString()
		users = append(users, model.User{
			ID:        id,
			AuthID:    "bench|" + id,
			Role:      model.RoleUser,
			Status:    model.UserStatusActive,
			PostCount: i % 50,
		})
	}
	mustDo(db.CreateInBatches(&users, 1000).Error)
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = u.ID
	}
	return out
}

// parseRedisMemory 从 INFO memory 中取 used_memory
func parseRedisMemory(info string) int64 {
	sc := bufio.NewScanner(strings.NewReader(info))
	for sc.Scan() {
		if v, ok := strings.CutPrefix(sc.Text(), "used_memory:"); ok {
			n, _ := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			return n
		}
	}
	return 0
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func envInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// envSizes 逗号分隔、递增的用户规模
func envSizes(key string, def []int) []int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n <= 0 {
			continue
		}
		out = append(out, n)
	}
	sort.Ints(out)
	if len(out) == 0 {
		return def
	}
	return out
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range vs {
		sum += v
	}
	return sum / time.Duration(len(vs))
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), vs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func mustDo(err error) {
	if err != nil {
		panic(err)
	}
}
