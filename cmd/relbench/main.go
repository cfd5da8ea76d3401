package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/d60-Lab/anon-community/config"
	"github.com/d60-Lab/anon-community/internal/event"
	"github.com/d60-Lab/anon-community/internal/identity"
	"github.com/d60-Lab/anon-community/internal/model"
	"github.com/d60-Lab/anon-community/internal/repository"
	"github.com/d60-Lab/anon-community/internal/service"
	"github.com/d60-Lab/anon-community/pkg/apperr"
	"github.com/d60-Lab/anon-community/pkg/database"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func envInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// discard 只统计事件数量，测量入队到投递的耗时
type discard struct{ n atomic.Int64 }

func (d *discard) Publish(context.Context, event.Event) error {
	d.n.Add(1)
	return nil
}

type pair struct{ a, b string }

// relbench 并发制造互关竞争（A->B 与 B->A 同时提交），之后校验两行互关状态是否一致
func main() {
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	if err := database.Migrate(db, model.All()...); err != nil {
		panic(err)
	}

	pairs := envInt("PAIRS", 2000)
	conc := envInt("CONC", 16)

	deriver := must(identity.NewDeriver(cfg.Anonymity.Secret))
	sink := &discard{}
	dispatcher := event.NewDispatcher(sink, pairs*4)
	stopEvents := dispatcher.Start(cfg.Events.Workers)

	followRepo := repository.NewFollowRepository(db)
	dir := service.NewDirectoryService(repository.NewUserRepository(db), nil, cfg.Cache.ProfileTTL, cfg.Anonymity.ScanBatchSize)
	resolver := service.NewResolver(dir, deriver)
	follows := service.NewFollowService(db, followRepo, dir, resolver, deriver, dispatcher,
		service.FollowOptions{MaxTxRetries: cfg.Follow.MaxTxRetries, RetryBackoff: cfg.Follow.RetryBackoff})

	ctx := context.Background()

	// seed
	users := make([]model.User, 0, pairs*2)
	work := make([]pair, pairs)
	for i := 0; i < pairs; i++ {
		a, b := uuid.NewString(), uuid.NewString()
		users = append(users,
			model.User{ID: a, AuthID: "bench|" + a, Role: model.RoleUser, Status: model.UserStatusActive},
			model.User{ID: b, AuthID: "bench|" + b, Role: model.RoleUser, Status: model.UserStatusActive},
		)
		work[i] = pair{a: a, b: b}
	}
	if err := db.CreateInBatches(&users, 1000).Error; err != nil {
		panic(err)
	}

	// race: 每对用户的两个方向同时关注
	var (
		conflicts atomic.Int64
		failures  atomic.Int64
		mu        sync.Mutex
		lat       = make([]time.Duration, 0, pairs*2)
	)
	feed := make(chan [2]string, pairs*2)
	for _, p := range work {
		feed <- [2]string{p.a, p.b}
		feed <- [2]string{p.b, p.a}
	}
	close(feed)

	t0 := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < conc; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]time.Duration, 0, 128)
			for op := range feed {
				st := time.Now()
				_, err := follows.Follow(ctx, op[0], op[1], model.FollowMetadata{FollowSource: "relbench"})
				local = append(local, time.Since(st))
				switch {
				case err == nil:
				case errors.Is(err, apperr.ErrConflict):
					conflicts.Add(1)
				default:
					failures.Add(1)
				}
			}
			mu.Lock()
			lat = append(lat, local...)
			mu.Unlock()
		}()
	}
	wg.Wait()
	followDur := time.Since(t0)

	broken := verify(ctx, followRepo, work, true)

	// 再并发取关一半，检查降级
	half := work[:pairs/2]
	t1 := time.Now()
	unfeed := make(chan pair, len(half))
	for _, p := range half {
		unfeed <- p
	}
	close(unfeed)
	for w := 0; w < conc; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range unfeed {
				if err := follows.Unfollow(ctx, p.a, p.b); err != nil {
					failures.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	unfollowDur := time.Since(t1)
	brokenAfter := verify(ctx, followRepo, half, false)

	_ = stopEvents(ctx)
	landing := drain(dispatcher.Metrics())

	fmt.Printf("PAIRS=%d, CONC=%d, driver=%s\n", pairs, conc, cfg.Database.Driver)
	fmt.Printf("Follow race: total=%v per op=%v p50=%v p95=%v p99=%v conflicts=%d failures=%d\n",
		followDur, followDur/time.Duration(len(lat)), pct(lat, 0.50), pct(lat, 0.95), pct(lat, 0.99),
		conflicts.Load(), failures.Load())
	fmt.Printf("Unfollow half: total=%v\n", unfollowDur)
	fmt.Printf("Invariant: asymmetric pairs after follow=%d, after unfollow=%d\n", broken, brokenAfter)
	fmt.Printf("Events: published=%d landing p50=%v p99=%v\n", sink.n.Load(), pct(landing, 0.50), pct(landing, 0.99))
	if broken+brokenAfter > 0 {
		os.Exit(1)
	}
}

// verify 返回违反对称约束的 pair 数。单边必须不是互关；取关之后不应再有双边
func verify(ctx context.Context, repo repository.FollowRepository, pairs []pair, wantMutual bool) int {
	bad := 0
	for _, p := range pairs {
		ab := active(must(repo.FindPair(ctx, p.a, p.b)))
		ba := active(must(repo.FindPair(ctx, p.b, p.a)))
		switch {
		case ab != nil && ba != nil:
			// 两边都在时必须都是互关
			if !wantMutual || !ab.IsMutualFollow || !ba.IsMutualFollow || ab.ChatAccessGranted != ba.ChatAccessGranted {
				bad++
			}
		case ab != nil:
			if ab.IsMutualFollow || ab.ChatAccessGranted {
				bad++
			}
		case ba != nil:
			if ba.IsMutualFollow || ba.ChatAccessGranted {
				bad++
			}
		}
	}
	return bad
}

// active 已取关的边视同不存在
func active(e *model.FollowEdge) *model.FollowEdge {
	if e == nil || e.Status != model.FollowStatusActive {
		return nil
	}
	return e
}

func drain(ch <-chan time.Duration) []time.Duration {
	var out []time.Duration
	for {
		select {
		case d := <-ch:
			out = append(out, d)
		default:
			return out
		}
	}
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(math.Ceil(p*float64(len(xs)))) - 1
	if k < 0 {
		k = 0
	}
	if k >= len(xs) {
		k = len(xs) - 1
	}
	return xs[k]
}
