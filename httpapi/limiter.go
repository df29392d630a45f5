package httpapi

import (
	"net/http"
	"sync"

	goAccount "github.com/MrEthical07/goAccount"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// ipLimiter throttles requests per client IP. Limiters of quiet clients are
// evicted by the 2Q cache.
type ipLimiter struct {
	mu    sync.Mutex
	cache *lru.TwoQueueCache[string, *rate.Limiter]
	limit rate.Limit
	burst int
}

func newIPLimiter(limit rate.Limit, burst, size int) (*ipLimiter, error) {
	cache, err := lru.New2Q[string, *rate.Limiter](size)
	if err != nil {
		return nil, err
	}
	if burst < 1 {
		burst = 1
	}
	return &ipLimiter{cache: cache, limit: limit, burst: burst}, nil
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	lim, ok := l.cache.Get(ip)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.cache.Add(ip, lim)
	}
	l.mu.Unlock()
	return lim.Allow()
}

func (l *ipLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := goAccount.ClientIPFromContext(r.Context())
		if ip == "" {
			ip = r.RemoteAddr
		}
		if !l.allow(ip) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
