package provider

import (
	"context"
	"fmt"
	"testing"
	"time"
)

type countingClient struct {
	failures int
	calls    int
}

func (c *countingClient) Call(_ context.Context, _ string, _ map[string]any) (any, error) {
	c.calls++
	if c.calls <= c.failures {
		return nil, fmt.Errorf("eodhd: %w", ErrQuotaExceeded)
	}
	return "ok", nil
}

func TestBreakerClient_TripsAndCallsOnQuotaExceeded(t *testing.T) {
	inner := &countingClient{failures: 5}
	tripped := make(chan string, 1)

	cfg := DefaultBreakerConfig("EODHD_DAILY_LIMIT")
	cfg.ConsecutiveTrips = 2
	cfg.OnQuotaExceeded = func(tag string) { tripped <- tag }

	client := NewBreakerClient(inner, cfg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := client.Call(ctx, "eod", nil); !IsQuotaExceeded(err) {
			t.Fatalf("call %d: expected quota-exceeded classification, got %v", i, err)
		}
	}

	if _, err := client.Call(ctx, "eod", nil); !IsQuotaExceeded(err) {
		t.Fatalf("expected breaker to reject while open, got %v", err)
	}

	select {
	case tag := <-tripped:
		if tag != "EODHD_DAILY_LIMIT" {
			t.Fatalf("unexpected tag: %s", tag)
		}
	case <-time.After(time.Second):
		t.Fatal("expected OnQuotaExceeded callback")
	}
}

func TestBreakerClient_ClearsOnSuccess(t *testing.T) {
	inner := &countingClient{failures: 0}
	cleared := make(chan string, 1)

	cfg := DefaultBreakerConfig("EODHD_DAILY_LIMIT")
	cfg.OnQuotaCleared = func(tag string) { cleared <- tag }

	client := NewBreakerClient(inner, cfg)
	client.wasOpen.Store(true)

	if _, err := client.Call(context.Background(), "eod", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-cleared:
	case <-time.After(time.Second):
		t.Fatal("expected OnQuotaCleared callback")
	}
}
