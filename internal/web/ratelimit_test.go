package web

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/JonMunkholm/rowstore/internal/config"
)

func TestReserveAll(t *testing.T) {
	now := time.Now()

	t.Run("all available", func(t *testing.T) {
		a := rate.NewLimiter(1, 1)
		b := rate.NewLimiter(1, 1)
		if delay := reserveAll(now, []*rate.Limiter{a, nil, b}); delay != 0 {
			t.Errorf("reserveAll() = %v, want 0", delay)
		}
		if got := a.TokensAt(now); got > 0.01 {
			t.Errorf("a tokens = %v, want 0", got)
		}
	})

	t.Run("one exhausted refunds the others", func(t *testing.T) {
		full := rate.NewLimiter(1, 1)
		empty := rate.NewLimiter(1, 1)
		empty.AllowN(now, 1)

		delay := reserveAll(now, []*rate.Limiter{full, empty})
		if delay <= 0 {
			t.Fatalf("reserveAll() = %v, want positive delay", delay)
		}
		if got := full.TokensAt(now); got < 0.99 {
			t.Errorf("full tokens = %v, want 1 after refund", got)
		}
	})

	t.Run("zero burst", func(t *testing.T) {
		l := rate.NewLimiter(1, 0)
		if delay := reserveAll(now, []*rate.Limiter{l}); delay != time.Second {
			t.Errorf("reserveAll() = %v, want %v", delay, time.Second)
		}
	})
}

func TestKeyedLimiter(t *testing.T) {
	now := time.Now()

	k := newKeyedLimiter(5, 2)
	a := k.get("a", now)
	if a == nil {
		t.Fatal("get() = nil for an enabled tier")
	}
	if k.get("a", now) != a {
		t.Error("get() returned a different limiter for the same key")
	}
	k.get("b", now.Add(4*time.Minute))
	if got := k.size(); got != 2 {
		t.Fatalf("size() = %d, want 2", got)
	}

	k.evict(now.Add(6*time.Minute), limiterIdleTTL)
	if got := k.size(); got != 1 {
		t.Errorf("size() after evict = %d, want 1", got)
	}

	if got := newKeyedLimiter(0, 2).get("a", now); got != nil {
		t.Errorf("get() on disabled tier = %v, want nil", got)
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		cfg    config.RateLimitConfig
		method string
		want   []int
	}{
		{
			name:   "client limit",
			cfg:    config.RateLimitConfig{Enabled: true, Client: 0.01, Burst: 1},
			method: http.MethodGet,
			want:   []int{http.StatusOK, http.StatusTooManyRequests},
		},
		{
			name:   "global limit",
			cfg:    config.RateLimitConfig{Enabled: true, Global: 0.01, Burst: 2},
			method: http.MethodGet,
			want:   []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests},
		},
		{
			name:   "writes are not limited",
			cfg:    config.RateLimitConfig{Enabled: true, Client: 0.01, Burst: 1},
			method: http.MethodPost,
			want:   []int{http.StatusOK, http.StatusOK, http.StatusOK},
		},
		{
			name:   "disabled",
			cfg:    config.RateLimitConfig{Enabled: false, Client: 0.01, Burst: 1},
			method: http.MethodGet,
			want:   []int{http.StatusOK, http.StatusOK},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := newRateLimiter(&tt.cfg, nil)
			h := rl.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			for i, want := range tt.want {
				req := httptest.NewRequest(tt.method, "/datasets", nil)
				req.RemoteAddr = "192.0.2.1:4000"
				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, req)

				if rec.Code != want {
					t.Errorf("request %d status = %d, want %d", i, rec.Code, want)
				}
				if rec.Code == http.StatusTooManyRequests && rec.Header().Get("Retry-After") == "" {
					t.Errorf("request %d missing Retry-After", i)
				}
			}
		})
	}
}

func TestRateLimiterStop(t *testing.T) {
	rl := newRateLimiter(&config.RateLimitConfig{Enabled: true}, nil)
	done := make(chan struct{})
	go func() {
		rl.run()
		close(done)
	}()

	rl.stop()
	rl.stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run() did not return after stop()")
	}
}
