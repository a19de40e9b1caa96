package notify

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net"
	"net/textproto"
	"strings"
	"time"
)

// RetryPolicy bounds how a RetryMailer re-attempts a failed send.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// RetryMailer re-sends a message when the relay refused it transiently
// before the body was transferred. A retry is a new SMTP session for the
// same message; it never spans runs. Failures wrapping ErrMaybeDelivered
// are returned as is.
type RetryMailer struct {
	next   Mailer
	policy RetryPolicy
}

func NewRetryMailer(next Mailer, policy RetryPolicy) *RetryMailer {
	if policy.BackoffFactor <= 0 {
		policy.BackoffFactor = 1
	}
	return &RetryMailer{next: next, policy: policy}
}

func (r *RetryMailer) Send(ctx context.Context, msg *Message) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = r.next.Send(ctx, msg)
		if err == nil || !IsTransient(err) || attempt >= r.policy.MaxRetries {
			return err
		}
		delay := calculateBackoff(r.policy, attempt)
		slog.Warn("smtp: transient failure, retrying", "attempt", attempt+1, "delay", delay, "err", err)
		if !sleep(ctx, delay) {
			return err
		}
	}
}

// sleep waits for d and reports false when ctx ends first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// calculateBackoff computes the delay for a given attempt using exponential backoff.
func calculateBackoff(policy RetryPolicy, attempt int) time.Duration {
	delay := float64(policy.InitialDelay) * math.Pow(policy.BackoffFactor, float64(attempt))
	if policy.MaxDelay > 0 && time.Duration(delay) > policy.MaxDelay {
		return policy.MaxDelay
	}
	return time.Duration(delay)
}

// IsTransient reports whether a send error is worth retrying: SMTP 4xx
// replies, network timeouts, and dropped or refused connections, all before
// DATA. 5xx replies, configuration errors and anything after the body was
// sent are permanent.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrNotConfigured) || errors.Is(err, ErrMaybeDelivered) ||
		errors.Is(err, context.Canceled) {
		return false
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code >= 400 && tpErr.Code < 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	lower := strings.ToLower(err.Error())
	for _, pattern := range []string{"connection reset", "connection refused", "broken pipe", "eof"} {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
