package llm

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"clinical-review-backend/internal/shared/telemetry"
)

const defaultRetryBaseDelay = 300 * time.Millisecond

// Retrying retries transient provider failures a bounded number of times.
type Retrying struct {
	Base        Client
	MaxAttempts int
	BaseDelay   time.Duration
}

// NewRetrying wraps base. maxAttempts below 1 means a single attempt.
func NewRetrying(base Client, maxAttempts int) *Retrying {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Retrying{Base: base, MaxAttempts: maxAttempts, BaseDelay: defaultRetryBaseDelay}
}

func (r *Retrying) Complete(ctx context.Context, req Request) (string, error) {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := r.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := r.Base.Complete(ctx, req)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if attempt == attempts || !ShouldRetry(err) || ctx.Err() != nil {
			break
		}
		telemetry.Warn("llm.retry", map[string]any{
			"attempt": attempt,
			"model":   req.Model,
			"error":   err.Error(),
		})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		delay *= 2
	}
	return "", lastErr
}

// ShouldRetry reports whether err looks transient: timeouts, 5xx responses and dropped connections.
func ShouldRetry(err error) bool {
	if err == nil || errors.Is(err, ErrNotConfigured) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "http status 5") || strings.Contains(msg, "server_error") {
		return true
	}
	if strings.Contains(msg, "timeout") && (strings.Contains(msg, "openai") || strings.Contains(msg, "llm") || strings.Contains(msg, "client.timeout")) {
		return true
	}
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "tls handshake timeout") ||
		strings.Contains(msg, "eof")
}

var _ Client = (*Retrying)(nil)
