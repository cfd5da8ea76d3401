package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/anon-community/pkg/response"
)

const (
	limiterIdleTTL   = 10 * time.Minute
	limiterSweepSize = 10000
)

type visitor struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// callerLimiter 每个调用方一个令牌桶
type callerLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int
}

func (l *callerLimiter) get(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.visitors) >= limiterSweepSize {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > limiterIdleTTL {
				delete(l.visitors, k)
			}
		}
	}
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{lim: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.lim
}

// RateLimit 按 auth id（未认证时按 IP）限流；rps <= 0 时不限
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = int(rps) + 1
	}
	l := &callerLimiter{visitors: make(map[string]*visitor), rps: rate.Limit(rps), burst: burst}

	return func(c *gin.Context) {
		key := AuthID(c)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		if !l.get(key, time.Now()).Allow() {
			response.TooManyRequests(c)
			c.Abort()
			return
		}
		c.Next()
	}
}
