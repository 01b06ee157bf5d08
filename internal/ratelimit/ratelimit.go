package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"chatstream/internal/redis"
)

// Limiter decides whether one more hit for key fits the configured rate.
// retryAfter is a hint for rejected hits.
type Limiter interface {
	Allow(ctx context.Context, key string) (ok bool, retryAfter time.Duration, err error)
}

// Rate is a number of hits per window.
type Rate struct {
	Limit  int
	Window time.Duration
}

func (r Rate) String() string {
	return fmt.Sprintf("%d/%s", r.Limit, r.Window)
}

// ParseRate accepts "<n>/<unit>" where unit is second, minute, hour or day (or s, m, h, d).
func ParseRate(raw string) (Rate, error) {
	count, unit, ok := strings.Cut(strings.TrimSpace(raw), "/")
	if !ok {
		return Rate{}, fmt.Errorf("invalid rate %q: want <n>/<unit>", raw)
	}
	limit, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil || limit <= 0 {
		return Rate{}, fmt.Errorf("invalid rate %q: count must be a positive integer", raw)
	}
	var window time.Duration
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "s", "sec", "second":
		window = time.Second
	case "m", "min", "minute":
		window = time.Minute
	case "h", "hour":
		window = time.Hour
	case "d", "day":
		window = 24 * time.Hour
	default:
		return Rate{}, fmt.Errorf("invalid rate %q: unknown unit %q", raw, unit)
	}
	return Rate{Limit: limit, Window: window}, nil
}

// Window is an in-process sliding-window limiter.
type Window struct {
	limit  int
	window time.Duration
	now    func() time.Time
	mu     sync.Mutex
	hits   map[string][]time.Time
}

func NewWindow(rate Rate) *Window {
	return &Window{limit: rate.Limit, window: rate.Window, now: time.Now, hits: make(map[string][]time.Time)}
}

func (l *Window) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	queue := l.hits[key]
	cutoff := now.Add(-l.window)
	idx := 0
	for _, t := range queue {
		if t.After(cutoff) {
			break
		}
		idx++
	}
	if idx > 0 {
		queue = queue[idx:]
	}
	if len(queue) >= l.limit {
		l.hits[key] = queue
		return false, queue[0].Add(l.window).Sub(now), nil
	}
	l.hits[key] = append(queue, now)
	return true, 0, nil
}

// Redis is a fixed-window limiter shared by every process using the same redis.
type Redis struct {
	client *redis.Client
	prefix string
	rate   Rate
}

func NewRedis(client *redis.Client, prefix string, rate Rate) *Redis {
	return &Redis{client: client, prefix: prefix, rate: rate}
}

func (l *Redis) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	count, ttl, err := l.client.IncrWindow(ctx, l.prefix+key, l.rate.Window)
	if err != nil {
		return false, 0, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if count > int64(l.rate.Limit) {
		return false, ttl, nil
	}
	return true, 0, nil
}
