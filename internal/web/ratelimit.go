package web

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/JonMunkholm/rowstore/internal/config"
	mw "github.com/JonMunkholm/rowstore/internal/web/middleware"
)

const (
	// limiterIdleTTL is how long an unused per-key limiter is kept.
	limiterIdleTTL = 5 * time.Minute

	// limiterSweepInterval is how often idle limiters are evicted.
	limiterSweepInterval = time.Minute
)

// rateLimiter applies the global, per-dataset and per-client token buckets
// to read requests. A request is admitted only when all three have a token;
// when one is exhausted no token is taken from the others.
type rateLimiter struct {
	enabled bool
	global  *rate.Limiter
	dataset *keyedLimiter
	client  *keyedLimiter

	// resolve maps an id or alias to the dataset id so both share a bucket.
	resolve func(string) string

	done     chan struct{}
	stopOnce sync.Once
}

func newRateLimiter(cfg *config.RateLimitConfig, resolve func(string) string) *rateLimiter {
	burst := max(cfg.Burst, 1)
	rl := &rateLimiter{
		enabled: cfg.Enabled,
		dataset: newKeyedLimiter(cfg.Dataset, burst),
		client:  newKeyedLimiter(cfg.Client, burst),
		resolve: resolve,
		done:    make(chan struct{}),
	}
	if cfg.Global > 0 {
		rl.global = rate.NewLimiter(rate.Limit(cfg.Global), burst)
	}
	if rl.resolve == nil {
		rl.resolve = func(ref string) string { return ref }
	}
	return rl
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.enabled || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
			next.ServeHTTP(w, r)
			return
		}

		now := time.Now()
		limiters := []*rate.Limiter{rl.global}
		if ref := chi.URLParam(r, "id"); ref != "" {
			limiters = append(limiters, rl.dataset.get(rl.resolve(ref), now))
		}
		limiters = append(limiters, rl.client.get(mw.ClientIP(r), now))

		if delay := reserveAll(now, limiters); delay > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			respondError(w, r, errRateLimited, http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// reserveAll takes one token from every non-nil limiter. If any of them
// would make the caller wait, all reservations are cancelled and the longest
// wait is returned.
func reserveAll(now time.Time, limiters []*rate.Limiter) time.Duration {
	reservations := make([]*rate.Reservation, 0, len(limiters))
	var delay time.Duration

	for _, l := range limiters {
		if l == nil {
			continue
		}
		res := l.ReserveN(now, 1)
		if !res.OK() {
			delay = max(delay, time.Second)
			continue
		}
		reservations = append(reservations, res)
		delay = max(delay, res.DelayFrom(now))
	}

	if delay > 0 {
		for _, res := range reservations {
			res.CancelAt(now)
		}
	}
	return delay
}

// run evicts idle per-key limiters until stop is called.
func (rl *rateLimiter) run() {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case now := <-ticker.C:
			rl.dataset.evict(now, limiterIdleTTL)
			rl.client.evict(now, limiterIdleTTL)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

// keyedLimiter holds one token bucket per key. A zero rate disables it.
type keyedLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	entries map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newKeyedLimiter(perSecond float64, burst int) *keyedLimiter {
	return &keyedLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		entries: make(map[string]*limiterEntry),
	}
}

// get returns the limiter for key, or nil when the tier is disabled.
func (k *keyedLimiter) get(key string, now time.Time) *rate.Limiter {
	if k.limit <= 0 {
		return nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

func (k *keyedLimiter) evict(now time.Time, ttl time.Duration) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for key, e := range k.entries {
		if now.Sub(e.lastSeen) > ttl {
			delete(k.entries, key)
		}
	}
}

func (k *keyedLimiter) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
