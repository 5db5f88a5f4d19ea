package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/faults"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/infrastructure/clock"
	"github.com/GriffinCanCode/AgentOS/coordinator/internal/infrastructure/resilience"
)

func upstream(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/items":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"items":[1,2,3]}`))
		case "/missing":
			http.NotFound(w, r)
		case "/slow":
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestHTTPFetcherSuccess(t *testing.T) {
	srv, _ := upstream(t)
	f := NewHTTPFetcher(srv.URL, time.Second, clock.New())

	body, err := f.Fetch(context.Background(), "/items")
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[1,2,3]}`, string(body))
}

func TestHTTPFetcherTagsFailures(t *testing.T) {
	srv, _ := upstream(t)
	f := NewHTTPFetcher(srv.URL, time.Second, clock.New())

	_, err := f.Fetch(context.Background(), "/missing")
	require.Error(t, err)
	assert.Equal(t, faults.ClientRequest, faults.KindOf(err))
	assert.Equal(t, http.StatusNotFound, faults.StatusOf(err))

	_, err = f.Fetch(context.Background(), "/broken")
	require.Error(t, err)
	assert.Equal(t, faults.NetworkTransient, faults.KindOf(err))
	assert.Equal(t, http.StatusServiceUnavailable, faults.StatusOf(err))
}

func TestHTTPFetcherCancellationIsAbort(t *testing.T) {
	srv, _ := upstream(t)
	f := NewHTTPFetcher(srv.URL, 5*time.Second, clock.New())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := f.Fetch(ctx, "/slow")
	require.Error(t, err)
	assert.Equal(t, faults.Aborted, faults.KindOf(err))
}

func TestHTTPFetcherBreakerOpens(t *testing.T) {
	srv, hits := upstream(t)
	f := NewHTTPFetcher(srv.URL, time.Second, clock.NewManual(time.Unix(0, 0)))

	for i := 0; i < 5; i++ {
		_, _ = f.Fetch(context.Background(), "/broken")
	}
	require.Equal(t, resilience.StateOpen, f.BreakerState())
	before := hits.Load()

	_, err := f.Fetch(context.Background(), "/items")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, faults.NetworkTransient, faults.KindOf(err))
	assert.Equal(t, before, hits.Load(), "open breaker must not reach upstream")
}

func TestClientErrorsDoNotOpenBreaker(t *testing.T) {
	srv, _ := upstream(t)
	f := NewHTTPFetcher(srv.URL, time.Second, clock.NewManual(time.Unix(0, 0)))

	for i := 0; i < 10; i++ {
		_, _ = f.Fetch(context.Background(), "/missing")
	}
	assert.Equal(t, resilience.StateClosed, f.BreakerState())
}
