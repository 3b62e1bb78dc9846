package middleware

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// clientState is the request counter of one client IP.
type clientState struct {
	lastRequest  time.Time
	requestCount int
	mu           sync.Mutex
}

// RateLimiter caps how many requests one IP may make per window. It guards
// the credential endpoints against password guessing.
type RateLimiter struct {
	maxRequests int
	window      time.Duration
	log         *zap.Logger

	mu      sync.Mutex
	clients map[string]*clientState
}

func NewRateLimiter(maxRequests int, window time.Duration, log *zap.Logger) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		log:         log,
		clients:     make(map[string]*clientState),
	}
}

// Middleware limits POST requests; form pages themselves are never limited.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}

		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		if !rl.allow(ip) {
			rl.log.Warn("rate limit exceeded", zap.String("ip", ip), zap.String("path", r.URL.Path))
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	state, exists := rl.clients[ip]
	if !exists {
		state = &clientState{}
		rl.clients[ip] = state
	}
	rl.mu.Unlock()

	state.mu.Lock()
	defer state.mu.Unlock()

	if time.Since(state.lastRequest) > rl.window {
		state.requestCount = 0
		state.lastRequest = time.Now()
	}
	state.requestCount++
	return state.requestCount <= rl.maxRequests
}

// Run drops idle clients every window until ctx is cancelled.
func (rl *RateLimiter) Run(ctx context.Context) error {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rl.prune()
		}
	}
}

func (rl *RateLimiter) prune() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, state := range rl.clients {
		state.mu.Lock()
		if time.Since(state.lastRequest) > 2*rl.window {
			delete(rl.clients, ip)
		}
		state.mu.Unlock()
	}
}
