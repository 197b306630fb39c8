package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// ---------------------------------------------------------------------------
// Config constructors
// ---------------------------------------------------------------------------

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerMinute != 200 {
		t.Errorf("RequestsPerMinute = %d, want 200", cfg.RequestsPerMinute)
	}
	if cfg.BurstSize != 50 {
		t.Errorf("BurstSize = %d, want 50", cfg.BurstSize)
	}
	if cfg.CleanupInterval != 5*time.Minute {
		t.Errorf("CleanupInterval = %v, want 5m", cfg.CleanupInterval)
	}
}

func TestAuthRateLimitConfig(t *testing.T) {
	cfg := AuthRateLimitConfig()
	if cfg.RequestsPerMinute != 10 {
		t.Errorf("RequestsPerMinute = %d, want 10", cfg.RequestsPerMinute)
	}
	if cfg.BurstSize != 5 {
		t.Errorf("BurstSize = %d, want 5", cfg.BurstSize)
	}
}

// ---------------------------------------------------------------------------
// RateLimiter.Allow
// ---------------------------------------------------------------------------

func newTestLimiter(rpm, burst int) *RateLimiter {
	return NewRateLimiter(RateLimitConfig{
		RequestsPerMinute: rpm,
		BurstSize:         burst,
		CleanupInterval:   time.Hour,
	})
}

func TestRateLimiter_AllowsUpToBurstSize(t *testing.T) {
	rl := newTestLimiter(1, 3)
	defer rl.Stop()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, remaining, err := rl.Allow(ctx, "k")
		if err != nil || !ok {
			t.Fatalf("request %d: Allow() = %v, %v; want allowed", i+1, ok, err)
		}
		if want := 3 - i - 1; remaining != want {
			t.Errorf("request %d: remaining = %d, want %d", i+1, remaining, want)
		}
	}
	if ok, _, _ := rl.Allow(ctx, "k"); ok {
		t.Error("Allow() after burst = true, want false")
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rl := newTestLimiter(1, 1)
	defer rl.Stop()
	ctx := context.Background()

	rl.Allow(ctx, "a")
	if ok, _, _ := rl.Allow(ctx, "b"); !ok {
		t.Error("second key should have its own budget")
	}
}

func TestRateLimiter_Refills(t *testing.T) {
	rl := newTestLimiter(6000, 1) // 100 tokens per second
	defer rl.Stop()
	ctx := context.Background()

	rl.Allow(ctx, "k")
	time.Sleep(30 * time.Millisecond)
	if ok, _, _ := rl.Allow(ctx, "k"); !ok {
		t.Error("Allow() after refill = false, want true")
	}
}

func TestRateLimiter_ConcurrentNeverExceedsBurst(t *testing.T) {
	rl := newTestLimiter(1, 5)
	defer rl.Stop()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _, _ := rl.Allow(context.Background(), "shared"); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 5 {
		t.Errorf("allowed = %d, want 5", allowed)
	}
}

func TestRateLimiter_StopTwice(t *testing.T) {
	rl := newTestLimiter(1, 1)
	rl.Stop()
	rl.Stop()
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

type recordingObserver struct {
	ips   []string
	paths []string
}

func (o *recordingObserver) LogRateLimitExceeded(_ context.Context, ip, _, path string) {
	o.ips = append(o.ips, ip)
	o.paths = append(o.paths, path)
}

// newRateLimitRouter trusts httptest's default peer (192.0.2.1) as a proxy so
// tests can pick the client address through forwarding headers.
func newRateLimitRouter(limiter Limiter, obs RateLimitObserver) *gin.Engine {
	return newRateLimitRouterTrusting(limiter, obs, []string{"192.0.2.0/24"})
}

func newRateLimitRouterTrusting(limiter Limiter, obs RateLimitObserver, trusted []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if err := ConfigureClientIP(r, trusted); err != nil {
		panic(err)
	}
	r.POST("/auth/login", RateLimitMiddleware(limiter, obs), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestRateLimitMiddleware_Rejects(t *testing.T) {
	rl := newTestLimiter(1, 2)
	defer rl.Stop()
	obs := &recordingObserver{}
	r := newRateLimitRouter(rl, obs)

	codes := make([]int, 3)
	for i := range codes {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.10")
		r.ServeHTTP(w, req)
		codes[i] = w.Code
		if i == 2 && w.Header().Get("Retry-After") != "60" {
			t.Errorf("Retry-After = %q, want 60", w.Header().Get("Retry-After"))
		}
	}

	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("request %d status = %d, want %d", i+1, codes[i], want[i])
		}
	}
	if len(obs.ips) != 1 || obs.ips[0] != "203.0.113.10" || obs.paths[0] != "/auth/login" {
		t.Errorf("observer got ips=%v paths=%v", obs.ips, obs.paths)
	}
}

func TestRateLimitMiddleware_PerClientIP(t *testing.T) {
	rl := newTestLimiter(1, 1)
	defer rl.Stop()
	r := newRateLimitRouter(rl, nil)

	for _, ip := range []string{"198.51.100.1", "198.51.100.2"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.Header.Set("X-Real-IP", ip)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("ip %s status = %d, want 200", ip, w.Code)
		}
	}
}

func TestRateLimitMiddleware_ForwardedHeaderFromUntrustedPeer(t *testing.T) {
	rl := NewRateLimiter(AuthRateLimitConfig())
	defer rl.Stop()
	r := newRateLimitRouterTrusting(rl, nil, nil)

	admitted := 0
	for i := 0; i < 20; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "198.51.100.77:5000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i+1))
		r.ServeHTTP(w, req)
		if w.Code == http.StatusOK {
			admitted++
		}
		if i == 19 && w.Code != http.StatusTooManyRequests {
			t.Errorf("last request status = %d, want 429", w.Code)
		}
	}
	if admitted != AuthRateLimitConfig().BurstSize {
		t.Errorf("admitted = %d, want burst %d", admitted, AuthRateLimitConfig().BurstSize)
	}
}

func TestRateLimitMiddleware_BackendDownFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	limiter := NewRedisRateLimiter(client, "rl:login:", AuthRateLimitConfig())
	if limiter.Limit() != 10 {
		t.Errorf("Limit() = %d, want 10", limiter.Limit())
	}

	r := newRateLimitRouter(limiter, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when the limiter backend is unreachable", w.Code)
	}
}
