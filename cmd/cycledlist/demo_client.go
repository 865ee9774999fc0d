package main

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/marketsync/cycledlist/provider"
)

// demoProviderClient is a stand-in for the real EODHD HTTP client: it
// simulates latency and, once every few dozen calls, a quota rejection, so
// the cycled list can be exercised end-to-end without network access or an
// API key. Swap in a real provider.Client implementation in production.
type demoProviderClient struct {
	calls int64
}

func newDemoProviderClient() *demoProviderClient {
	return &demoProviderClient{}
}

func (d *demoProviderClient) Call(ctx context.Context, endpoint string, params map[string]any) (any, error) {
	n := atomic.AddInt64(&d.calls, 1)

	select {
	case <-time.After(50 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if n%37 == 0 {
		return nil, &provider.QuotaExceededError{Tag: "EODHD_DAILY_LIMIT"}
	}

	return map[string]any{
		"endpoint": endpoint,
		"symbols":  rand.Intn(500) + 1,
		"fetched":  time.Now().UTC(),
	}, nil
}
