package middleware

import (
	"math"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/zhouzirui/enoki/backend/pkg/utils"
)

const sweepThreshold = 10000

// RateLimiter 对每个身份限制消息频率：每 interval 一条。
type RateLimiter struct {
	interval time.Duration
	mu       sync.Mutex
	limiters map[string]*visitor
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter 创建限流器。interval <= 0 时不限流。
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{interval: interval, limiters: make(map[string]*visitor), now: time.Now}
}

// Allow 返回是否放行，以及被拒绝时需要等待的时间。
func (l *RateLimiter) Allow(key string) (bool, time.Duration) {
	if l == nil || l.interval <= 0 {
		return true, 0
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= sweepThreshold {
			l.sweep(now)
		}
		v = &visitor{limiter: rate.NewLimiter(rate.Every(l.interval), 1)}
		l.limiters[key] = v
	}
	v.lastSeen = now

	res := v.limiter.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// sweep 删除已经回满令牌的访客。
func (l *RateLimiter) sweep(now time.Time) {
	for key, v := range l.limiters {
		if now.Sub(v.lastSeen) > l.interval {
			delete(l.limiters, key)
		}
	}
}

// Middleware 拒绝过快的请求，返回 429 与 retry_after 秒数。需在 Identity 之后使用。
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := IdentityFrom(r.Context())
		ok, wait := l.Allow(id.Owner())
		if !ok {
			retry := int(math.Ceil(wait.Seconds()))
			if retry < 1 {
				retry = 1
			}
			utils.RespondJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":       "please wait before sending another message",
				"retry_after": retry,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
