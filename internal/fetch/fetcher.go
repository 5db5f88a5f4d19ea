package fetch

import (
	"context"
	"errors"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/faults"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/infrastructure/clock"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/infrastructure/resilience"
)

// Fetcher loads the data behind a key.
type Fetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, key string) ([]byte, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, key string) ([]byte, error) {
	return f(ctx, key)
}

// HTTPFetcher fetches keys as paths below a base URL. It never retries on
// its own; retries belong to the revalidation policy.
type HTTPFetcher struct {
	client  *resty.Client
	breaker *resilience.Breaker
}

// NewHTTPFetcher creates a fetcher for baseURL guarded by a circuit breaker.
func NewHTTPFetcher(baseURL string, timeout time.Duration, clk clock.Clock) *HTTPFetcher {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", "AgentOS-Coordinator/1.0").
		SetHeader("Accept", "application/json")

	breaker := resilience.New("fetch-upstream", resilience.Settings{
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		Clock: clk,
	})

	return &HTTPFetcher{client: client, breaker: breaker}
}

// Fetch implements Fetcher. Failures come back tagged: 4xx as client
// request errors, 5xx and transport failures as transient network errors,
// cancellations as aborts.
func (f *HTTPFetcher) Fetch(ctx context.Context, key string) ([]byte, error) {
	op := "GET " + key
	return resilience.Do(ctx, f.breaker, func(ctx context.Context) ([]byte, error) {
		resp, err := f.client.R().SetContext(ctx).Get(key)
		if err != nil {
			switch {
			case errors.Is(err, context.Canceled):
				return nil, faults.Wrap(faults.Aborted, op, err)
			case errors.Is(err, context.DeadlineExceeded):
				return nil, faults.Wrap(faults.TimeoutExceeded, op, err)
			default:
				return nil, faults.Wrap(faults.NetworkTransient, op, err)
			}
		}
		if resp.IsError() {
			return nil, faults.HTTP(op, resp.StatusCode())
		}
		return resp.Body(), nil
	})
}

// BreakerState returns the upstream circuit state.
func (f *HTTPFetcher) BreakerState() resilience.State {
	return f.breaker.State()
}
