package server

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/datakettle/dp-composer/internal/domain"
)

// visitorTTL is how long an idle client keeps its bucket. Evicted clients
// start over with a full burst allowance.
const visitorTTL = 3 * time.Minute

// RateLimiter enforces a per-client token bucket. Authenticated clients are
// keyed by their API key fingerprint, anonymous ones by remote host, so one
// chatty client cannot starve the rest.
type RateLimiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	visitors map[string]*visitor
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing rps sustained requests per
// second with the given burst per client.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		visitors: make(map[string]*visitor),
	}
}

// Middleware rejects requests that exceed the client's budget with 429 and
// a Retry-After hint.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := ClientKey(r.Context())
		if key == "" {
			key = remoteHost(r)
		}

		if !l.allow(key) {
			w.Header().Set("Retry-After", strconv.Itoa(l.retryAfterSeconds()))
			writeError(w, r, domain.ErrRateLimit("request rate exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) allow(key string) bool {
	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = time.Now()
	l.mu.Unlock()

	return v.limiter.Allow()
}

// retryAfterSeconds estimates when one token will be available again,
// rounded up to a whole second.
func (l *RateLimiter) retryAfterSeconds() int {
	if l.rps <= 0 {
		return 1
	}
	secs := int(time.Duration(float64(time.Second)/float64(l.rps)).Seconds() + 1)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// EvictIdle drops buckets for clients not seen within visitorTTL and
// reports how many it removed. The runtime calls this periodically.
func (l *RateLimiter) EvictIdle() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	evicted := 0
	for key, v := range l.visitors {
		if time.Since(v.lastSeen) > visitorTTL {
			delete(l.visitors, key)
			evicted++
		}
	}
	return evicted
}

// remoteHost strips the port from RemoteAddr so clients on ephemeral ports
// share one bucket per host.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
