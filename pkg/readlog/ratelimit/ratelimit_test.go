package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func TestKeyedRateLimiter_Allow(t *testing.T) {
	tests := []struct {
		name     string
		perMin   int
		calls    int
		wantPass int
	}{
		{name: "burst allows initial requests", perMin: 3, calls: 3, wantPass: 3},
		{name: "exceeding burst blocks", perMin: 2, calls: 5, wantPass: 2},
		{name: "zero disables limiting", perMin: 0, calls: 50, wantPass: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := PerMinute(tt.perMin)
			defer rl.Stop()

			passed := 0
			for i := 0; i < tt.calls; i++ {
				if rl.Allow("user:1") {
					passed++
				}
			}
			if passed != tt.wantPass {
				t.Errorf("Allow() passed %d, want %d", passed, tt.wantPass)
			}
		})
	}
}

func TestKeyedRateLimiter_KeysAreIndependent(t *testing.T) {
	rl := New(rate.Every(time.Hour), 1)
	defer rl.Stop()

	if !rl.Allow("a") {
		t.Fatal("first request for a should pass")
	}
	if rl.Allow("a") {
		t.Error("second request for a should be limited")
	}
	if !rl.Allow("b") {
		t.Error("b should have its own bucket")
	}
}

func TestKeyedRateLimiter_Prune(t *testing.T) {
	rl := New(rate.Every(time.Hour), 1)
	defer rl.Stop()

	now := time.Now()
	rl.now = func() time.Time { return now }
	rl.Allow("old")
	now = now.Add(time.Hour)
	rl.Allow("fresh")

	rl.prune()
	if rl.Len() != 1 {
		t.Errorf("expected 1 key after prune, got %d", rl.Len())
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := New(rate.Every(time.Hour), 1)
	defer rl.Stop()

	r := gin.New()
	r.POST("/join", Middleware(rl, func(c *gin.Context) string { return c.GetHeader("X-User") }, zap.NewNop()), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	send := func(user string) int {
		req, _ := http.NewRequest("POST", "/join", nil)
		req.Header.Set("X-User", user)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		return resp.Code
	}

	if code := send("1"); code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", code)
	}
	if code := send("1"); code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", code)
	}
	if code := send(""); code != http.StatusNoContent {
		t.Errorf("unkeyed request should pass, got %d", code)
	}
}
