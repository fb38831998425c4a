package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterIdle  = 10 * time.Minute
	limiterSweep = 5 * time.Minute
)

type keyedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit applies a token bucket per client: the authenticated actor when
// Auth ran first, otherwise the client IP. r is requests per second, b the
// burst size.
func RateLimit(r rate.Limit, b int) gin.HandlerFunc {
	var mu sync.Mutex
	buckets := map[string]*keyedLimiter{}
	lastSweep := time.Now()

	get := func(key string, now time.Time) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		if now.Sub(lastSweep) > limiterSweep {
			for k, v := range buckets {
				if now.Sub(v.lastSeen) > limiterIdle {
					delete(buckets, k)
				}
			}
			lastSweep = now
		}
		kl, ok := buckets[key]
		if !ok {
			kl = &keyedLimiter{limiter: rate.NewLimiter(r, b)}
			buckets[key] = kl
		}
		kl.lastSeen = now
		return kl.limiter
	}

	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if id := GetActorID(c); id != 0 {
			key = "actor:" + strconv.FormatInt(id, 10)
		}
		now := time.Now()
		res := get(key, now).ReserveN(now, 1)
		if delay := res.DelayFrom(now); !res.OK() || delay > 0 {
			res.CancelAt(now)
			if res.OK() {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			}
			abort(c, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
			return
		}
		c.Next()
	}
}
