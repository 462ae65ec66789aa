// Package retry centralizes backoff handling for provider and repository
// calls. Callers wrap the flaky operation in a Policy.Do and let permanent
// errors surface immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"mailchat/internal/apperrors"
)

// Policy controls how transient failures are retried. Attempts are spaced by
// exponential backoff with jitter, starting at BaseDelay and capped at MaxDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy matches the configuration defaults
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
	}
}

// Do runs fn until it succeeds, fails permanently, or attempts run out.
// Permanent errors return as-is; exhausted retries return the last error
// wrapped with the operation name so the transient kind stays inspectable.
func (p Policy) Do(ctx context.Context, op string, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.Delay(attempt)):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("%s: giving up after %d attempts: %w", op, attempts, lastErr)
}

// Delay returns the wait before the given attempt, where attempt 1 is the
// first retry. Jitter spreads concurrent retries by up to 25%.
func (p Policy) Delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	delay := base
	for i := 1; i < attempt && delay < maxDelay; i++ {
		delay *= 2
	}
	if delay > maxDelay {
		delay = maxDelay
	}

	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}

// IsTransient reports whether the error is worth retrying. Cancellation is
// never transient. Rate limits, provider 5xx responses, gRPC unavailability,
// and network timeouts are.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if apperrors.IsKind(err, apperrors.KindTransientProvider) ||
		apperrors.IsKind(err, apperrors.KindRepositoryUnavailable) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}

	var gapiErr *googleapi.Error
	if errors.As(err, &gapiErr) {
		return retryableStatus(gapiErr.Code)
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.Aborted, codes.DeadlineExceeded:
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
