package fetch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/supplier-sync/pkg/config"
	"github.com/Sriram-PR/supplier-sync/pkg/metrics"
	"github.com/Sriram-PR/supplier-sync/pkg/utils"
)

// RetryPolicy bounds FetchWithRetry
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// PolicyFromConfig reads the retry settings of the application config
func PolicyFromConfig(cfg *config.AppConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries:   cfg.MaxRetries,
		InitialDelay: cfg.InitialRetryDelay,
		MaxDelay:     cfg.MaxRetryDelay,
	}
}

// Attempt performs one request. It is called again for every retry, so it
// must build a fresh request each time.
type Attempt func(ctx context.Context) (*resty.Response, error)

// Fetcher runs supplier requests under a bounded retry policy
type Fetcher struct {
	policy RetryPolicy
	log    *logrus.Entry
}

// NewFetcher creates a new Fetcher instance
func NewFetcher(policy RetryPolicy, log *logrus.Entry) *Fetcher {
	return &Fetcher{
		policy: policy,
		log:    log,
	}
}

// FetchWithRetry runs attempt until it yields a usable response.
// A response without headers, a transport error, a 5xx or a 429 is transient
// and retried with exponential backoff and jitter, up to MaxRetries retries.
// Other 4xx and unexpected statuses are returned at once with the response.
// Exhaustion returns ErrRetryFailed wrapping the last cause; cancelling ctx
// stops the loop.
func (f *Fetcher) FetchWithRetry(ctx context.Context, label string, attempt Attempt) (*resty.Response, error) {
	var lastErr error
	reqLog := f.log.WithField("request", label)
	maxRetries := f.policy.MaxRetries

	for n := 0; n <= maxRetries; n++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return nil, fmt.Errorf("context cancelled (%v) during retry backoff after error: %w", err, lastErr)
			}
			return nil, fmt.Errorf("context cancelled before first attempt: %w", err)
		}

		if n > 0 {
			delay := f.backoff(n)
			metrics.FetchRetries.WithLabelValues(utils.CategorizeError(lastErr)).Inc()
			reqLog.WithFields(logrus.Fields{"attempt": n, "max_retries": maxRetries, "delay": delay}).Warnf("Retrying request: %v", lastErr)

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, fmt.Errorf("context cancelled (%v) during retry delay after error: %w", ctx.Err(), lastErr)
			}
		}

		resp, err := attempt(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			lastErr = err
			reqLog.WithField("attempt", n).Debugf("Network error: %v", err)
			continue
		}

		// A response without headers is a dropped connection, not an answer.
		if len(resp.Header()) == 0 {
			lastErr = fmt.Errorf("%w: status %d", utils.ErrNoHeaders, resp.StatusCode())
			continue
		}

		statusCode := resp.StatusCode()
		switch {
		case statusCode >= 200 && statusCode < 300:
			return resp, nil

		case statusCode >= 500:
			lastErr = fmt.Errorf("%w: status %d %s", utils.ErrServerHTTPError, statusCode, resp.Status())
			continue

		case statusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, resp.Status())
			continue

		case statusCode >= 400 && statusCode < 500:
			reqLog.WithField("status_code", statusCode).Warn("Client error (4xx), not retrying")
			return resp, fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, resp.Status())

		default:
			reqLog.WithField("status_code", statusCode).Warnf("Non-retryable/unexpected status: %d", statusCode)
			return resp, fmt.Errorf("%w: status %d %s", utils.ErrOtherHTTPError, statusCode, resp.Status())
		}
	}

	reqLog.Errorf("All %d fetch attempts failed. Last error: %v", maxRetries+1, lastErr)
	if lastErr == nil {
		return nil, utils.ErrRetryFailed
	}
	return nil, fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr)
}

// backoff returns initial * 2^(n-1), capped at MaxDelay, with +/-10% jitter
func (f *Fetcher) backoff(n int) time.Duration {
	delay := time.Duration(float64(f.policy.InitialDelay) * math.Pow(2, float64(n-1)))
	if delay <= 0 || (f.policy.MaxDelay > 0 && delay > f.policy.MaxDelay) {
		delay = f.policy.MaxDelay
	}
	if delay <= 0 {
		return 0
	}

	var jitter time.Duration
	if window := int64(delay) / 5; window > 0 {
		jitter = time.Duration(rand.Int63n(window)) - delay/10
	}
	if delay+jitter < 0 {
		return 0
	}
	return delay + jitter
}
