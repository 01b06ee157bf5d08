package ratelimit

import (
	"context"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"chatstream/internal/config"
	"chatstream/internal/redis"
)

func TestParseRate(t *testing.T) {
	cases := map[string]Rate{
		"5/minute": {Limit: 5, Window: time.Minute},
		"10/s":     {Limit: 10, Window: time.Second},
		" 2/Hour ": {Limit: 2, Window: time.Hour},
		"100/day":  {Limit: 100, Window: 24 * time.Hour},
	}
	for raw, want := range cases {
		got, err := ParseRate(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got != want {
			t.Fatalf("parse %q: want %v got %v", raw, want, got)
		}
	}
	for _, bad := range []string{"", "5", "0/minute", "x/minute", "5/fortnight"} {
		if _, err := ParseRate(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestWindowSlides(t *testing.T) {
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewWindow(Rate{Limit: 2, Window: time.Minute})
	l.now = func() time.Time { return clock }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ok, _, _ := l.Allow(ctx, "ip:1"); !ok {
			t.Fatalf("hit %d should pass", i+1)
		}
		clock = clock.Add(10 * time.Second)
	}
	ok, retry, err := l.Allow(ctx, "ip:1")
	if err != nil || ok {
		t.Fatalf("third hit should be limited: ok=%v err=%v", ok, err)
	}
	if retry != 40*time.Second {
		t.Fatalf("retry hint: want 40s got %v", retry)
	}
	if ok, _, _ := l.Allow(ctx, "ip:2"); !ok {
		t.Fatalf("other keys are independent")
	}

	clock = clock.Add(41 * time.Second)
	if ok, _, _ := l.Allow(ctx, "ip:1"); !ok {
		t.Fatalf("oldest hit should have expired")
	}
}

func TestRedisLimiterSharedWindow(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("parse TEST_REDIS_ADDR: %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	client, err := redis.NewRedisClient(&config.Config{Redis: config.RedisConfig{Host: host, Port: port}})
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	defer client.Close()

	prefix := "chatstream:test:" + strconv.FormatInt(time.Now().UnixNano(), 10) + ":"
	first := NewRedis(client, prefix, Rate{Limit: 2, Window: time.Minute})
	second := NewRedis(client, prefix, Rate{Limit: 2, Window: time.Minute})
	ctx := context.Background()

	if ok, _, err := first.Allow(ctx, "ip:1"); err != nil || !ok {
		t.Fatalf("first hit: ok=%v err=%v", ok, err)
	}
	if ok, _, err := second.Allow(ctx, "ip:1"); err != nil || !ok {
		t.Fatalf("second hit: ok=%v err=%v", ok, err)
	}
	ok, retry, err := first.Allow(ctx, "ip:1")
	if err != nil || ok {
		t.Fatalf("limit must be shared between limiters: ok=%v err=%v", ok, err)
	}
	if retry <= 0 || retry > time.Minute {
		t.Fatalf("unexpected retry hint %v", retry)
	}
}
