package ratelimit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eventcrew/feegate/pkg/keyedstore"
)

// Policy is a fixed-window limit supplied by each call site. There is no
// global default.
type Policy struct {
	Scope         string        `mapstructure:"scope" json:"scope"`
	MaxAttempts   int           `mapstructure:"max_attempts" json:"max_attempts"`
	Window        time.Duration `mapstructure:"window" json:"window"`
	BlockDuration time.Duration `mapstructure:"block_duration" json:"block_duration"`
}

type Result struct {
	Allowed           bool
	RetryAfterSeconds int
}

type record struct {
	Attempts     int   `json:"attempts"`
	WindowStart  int64 `json:"window_start_ms"`
	BlockedUntil int64 `json:"blocked_until_ms,omitempty"`
}

// Limiter counts attempts per key in fixed windows and blocks a key for
// Policy.BlockDuration once the window budget is exhausted. Store failures
// fail open: enforcement is best effort, availability wins.
type Limiter struct {
	store keyedstore.Store
	log   *zap.SugaredLogger
	now   func() time.Time
}

func New(store keyedstore.Store, log *zap.SugaredLogger) *Limiter {
	return &Limiter{store: store, log: log, now: time.Now}
}

// Key builds a composite limiter key, e.g. Key("webhook", "ip", addr).
func Key(parts ...string) string {
	return "ratelimit:" + strings.Join(parts, ":")
}

// Check applies the policy to a single key.
func (l *Limiter) Check(ctx context.Context, key string, p Policy) Result {
	now := l.now()

	raw, err := l.store.Get(ctx, key)
	if err != nil {
		l.log.Warnw("rate limiter store read failed, failing open", "key", key, "err", err)
		return Result{Allowed: true}
	}

	var rec record
	if raw != nil {
		if err := json.Unmarshal(raw, &rec); err != nil {
			l.log.Warnw("rate limiter record corrupt, resetting", "key", key, "err", err)
			raw = nil
		}
	}

	if raw != nil && rec.BlockedUntil > 0 {
		blockedUntil := time.UnixMilli(rec.BlockedUntil)
		if now.Before(blockedUntil) {
			return Result{Allowed: false, RetryAfterSeconds: ceilSeconds(blockedUntil.Sub(now))}
		}
		// The block has been served; the stale record must not re-block
		// on its exhausted counter. Start a fresh window.
		raw = nil
		rec = record{}
	}

	windowStart := time.UnixMilli(rec.WindowStart)
	if raw == nil || now.Sub(windowStart) > p.Window {
		fresh := record{Attempts: 1, WindowStart: now.UnixMilli()}
		l.write(ctx, key, fresh, p.Window)
		return Result{Allowed: true}
	}

	if rec.Attempts >= p.MaxAttempts {
		rec.BlockedUntil = now.Add(p.BlockDuration).UnixMilli()
		l.write(ctx, key, rec, p.BlockDuration)
		return Result{Allowed: false, RetryAfterSeconds: ceilSeconds(p.BlockDuration)}
	}

	rec.Attempts++
	remaining := p.Window - now.Sub(windowStart)
	l.write(ctx, key, rec, remaining)
	return Result{Allowed: true}
}

// CheckAll applies the policy to every key; all must pass. The first
// blocked key decides the result.
func (l *Limiter) CheckAll(ctx context.Context, p Policy, keys ...string) Result {
	for _, key := range keys {
		if res := l.Check(ctx, key, p); !res.Allowed {
			return res
		}
	}
	return Result{Allowed: true}
}

func (l *Limiter) write(ctx context.Context, key string, rec record, ttl time.Duration) {
	raw, err := json.Marshal(rec)
	if err != nil {
		l.log.Warnw("rate limiter record marshal failed", "key", key, "err", err)
		return
	}
	if err := l.store.Set(ctx, key, raw, ttl); err != nil {
		l.log.Warnw("rate limiter store write failed, failing open", "key", key, "err", err)
	}
}

func ceilSeconds(d time.Duration) int {
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
