package api

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// EdgeLimiter is a cheap per-IP token bucket sitting in front of the whole
// router. It absorbs floods before authentication or the shared
// sliding-window limiter spend any work on them.
type EdgeLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewEdgeLimiter creates the limiter and starts its janitor goroutine.
func NewEdgeLimiter(rps, burst int) *EdgeLimiter {
	el := &EdgeLimiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
	go el.evictIdle()
	return el
}

func (el *EdgeLimiter) visitorFor(ip string) *rate.Limiter {
	el.mu.Lock()
	defer el.mu.Unlock()

	v, ok := el.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(el.rps, el.burst)}
		el.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

// evictIdle drops IPs not seen for three minutes so the map stays bounded.
func (el *EdgeLimiter) evictIdle() {
	for {
		time.Sleep(time.Minute)
		el.mu.Lock()
		for ip, v := range el.visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(el.visitors, ip)
			}
		}
		el.mu.Unlock()
	}
}

// Middleware enforces the per-IP bucket.
func (el *EdgeLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !el.visitorFor(clientIP(r)).Allow() {
			WriteTooManyRequests(w, 1, "Too many requests. Please slow down.", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
