package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/technosupport/ts-license/internal/ratelimit"
)

func testLimiter(t *testing.T) (*ratelimit.Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return ratelimit.NewLimiter(client, "test-salt"), mr
}

func TestCheckRateLimit_AllowsUpToRate(t *testing.T) {
	l, _ := testLimiter(t)
	cfg := ratelimit.LimitConfig{Rate: 3, Window: time.Minute}

	for i := 0; i < 3; i++ {
		d, err := l.CheckRateLimit(context.Background(), "rl:test", cfg)
		if err != nil {
			t.Fatal(err)
		}
		if !d.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	d, err := l.CheckRateLimit(context.Background(), "rl:test", cfg)
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Error("request over the limit should be denied")
	}
	if d.Remaining != 0 {
		t.Errorf("remaining = %d", d.Remaining)
	}
}

func TestCheckRateLimit_WindowResets(t *testing.T) {
	l, mr := testLimiter(t)
	cfg := ratelimit.LimitConfig{Rate: 1, Window: time.Second}

	if d, _ := l.CheckRateLimit(context.Background(), "rl:reset", cfg); !d.Allowed {
		t.Fatal("first request denied")
	}
	if d, _ := l.CheckRateLimit(context.Background(), "rl:reset", cfg); d.Allowed {
		t.Fatal("second request in window should be denied")
	}

	mr.FastForward(2 * time.Second)

	if d, _ := l.CheckRateLimit(context.Background(), "rl:reset", cfg); !d.Allowed {
		t.Error("request after window expiry should be allowed")
	}
}

func TestHashIP_Stable(t *testing.T) {
	l, _ := testLimiter(t)
	if l.HashIP("10.0.0.1") != l.HashIP("10.0.0.1") {
		t.Error("hash not stable")
	}
	if l.HashIP("10.0.0.1") == l.HashIP("10.0.0.2") {
		t.Error("distinct IPs collide")
	}
}
