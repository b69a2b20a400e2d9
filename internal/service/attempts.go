package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// AttemptPolicy bounds failed attempts per subject inside a window. A zero
// MaxAttempts disables throttling.
type AttemptPolicy struct {
	MaxAttempts int
	Window      time.Duration
}

// throttle locks a subject out after MaxAttempts failures. Only failures are
// counted and a success clears them. Limiter outages are logged and never
// block the caller.
type throttle struct {
	limiter AttemptLimiter
	policy  AttemptPolicy
	scope   string
	message string
	logger  *slog.Logger
}

func (t throttle) enabled() bool {
	return t.limiter != nil && t.policy.MaxAttempts > 0 && t.policy.Window > 0
}

// check returns the failures already recorded for subject, or RateLimited
// once they reach the policy limit.
func (t throttle) check(ctx context.Context, subject string) (int, error) {
	if !t.enabled() {
		return 0, nil
	}
	count, retryAfter, err := t.limiter.Attempts(ctx, t.scope, strings.ToLower(subject))
	if err != nil {
		t.logger.Warn("attempt limiter unavailable", "scope", t.scope, "error", err)
		return 0, nil
	}
	if count >= t.policy.MaxAttempts {
		return count, newError(KindRateLimited, fmt.Sprintf("%s, retry in %ds", t.message, retryAfter))
	}
	return count, nil
}

func (t throttle) fail(ctx context.Context, subject string) {
	if !t.enabled() {
		return
	}
	if _, _, err := t.limiter.Consume(ctx, t.scope, strings.ToLower(subject), t.policy.MaxAttempts, t.policy.Window); err != nil {
		t.logger.Warn("attempt limiter unavailable", "scope", t.scope, "error", err)
	}
}

// succeed clears earlier failures. prior is the count returned by check.
func (t throttle) succeed(ctx context.Context, subject string, prior int) {
	if !t.enabled() || prior == 0 {
		return
	}
	if err := t.limiter.Reset(ctx, t.scope, strings.ToLower(subject)); err != nil {
		t.logger.Warn("attempt limiter unavailable", "scope", t.scope, "error", err)
	}
}
