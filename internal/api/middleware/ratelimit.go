// ratelimit.go — ограничение частоты запросов на ключ доступа
// (token bucket golang.org/x/time/rate).
package middleware

import (
	"net"
	"net/http"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	apierrors "github.com/bigkaa/certgate/internal/api/errors"
)

// limiterPoolSize — сколько лимитеров держать одновременно; самые давно
// не использованные вытесняются.
const limiterPoolSize = 10000

// limiterPool — лимитеры по идентификатору клиента.
type limiterPool struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *rate.Limiter]
	rps   rate.Limit
	burst int
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	cache, _ := lru.New[string, *rate.Limiter](limiterPoolSize)
	return &limiterPool{cache: cache, rps: rate.Limit(rps), burst: burst}
}

func (p *limiterPool) allow(id string) bool {
	p.mu.Lock()
	l, ok := p.cache.Get(id)
	if !ok {
		l = rate.NewLimiter(p.rps, p.burst)
		p.cache.Add(id, l)
	}
	p.mu.Unlock()
	return l.Allow()
}

// RateLimit ограничивает частоту запросов. Клиент определяется по ключу
// доступа из контекста (ставится APIKeyAuth), иначе по IP. rps <= 0 —
// ограничение выключено.
func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	pool := newLimiterPool(rps, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !pool.allow(clientID(r)) {
				w.Header().Set("Retry-After", "1")
				apierrors.RateLimited(w, "слишком много запросов, повторите позже")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientID(r *http.Request) string {
	if key := APIKeyFromContext(r.Context()); key != nil {
		return "key:" + key.ID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
