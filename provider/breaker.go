package provider

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when the breaker is open and rejects calls
// without invoking the underlying client.
var ErrCircuitOpen = gobreaker.ErrOpenState

// BreakerClient wraps a Client in a circuit breaker so that once a handful
// of calls report quota exhaustion, the breaker trips and every concurrent
// job in a parallel group fails fast instead of each independently
// rediscovering the same exhausted quota against the provider.
//
// Tripping the breaker (state -> Open) fires OnQuotaExceeded(tag); the
// breaker moving Open -> HalfOpen on its own timeout is not itself treated
// as quota-cleared — that signal only comes from a successful call, wired
// through OnQuotaCleared.
type BreakerClient struct {
	inner   Client
	breaker *gobreaker.CircuitBreaker
	tag     string
	onTrip  QuotaCallback
	onClear QuotaCallback
	wasOpen atomic.Bool
}

// BreakerConfig controls the breaker's trip/reset behavior.
type BreakerConfig struct {
	Tag              string
	ConsecutiveTrips uint32
	OpenTimeout      time.Duration
	OnQuotaExceeded  QuotaCallback
	OnQuotaCleared   QuotaCallback
}

// DefaultBreakerConfig returns a BreakerConfig that trips after 3 consecutive
// quota-exceeded errors and stays open for one minute before probing again.
func DefaultBreakerConfig(tag string) BreakerConfig {
	return BreakerConfig{
		Tag:              tag,
		ConsecutiveTrips: 3,
		OpenTimeout:      time.Minute,
	}
}

// NewBreakerClient wraps inner with a circuit breaker per BreakerConfig.
func NewBreakerClient(inner Client, cfg BreakerConfig) *BreakerClient {
	bc := &BreakerClient{inner: inner, tag: cfg.Tag, onTrip: cfg.OnQuotaExceeded, onClear: cfg.OnQuotaCleared}

	settings := gobreaker.Settings{
		Name:    fmt.Sprintf("provider[%s]", cfg.Tag),
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveTrips
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrQuotaExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				bc.wasOpen.Store(true)
				if bc.onTrip != nil {
					bc.onTrip(bc.tag)
				}
			}
		},
	}
	bc.breaker = gobreaker.NewCircuitBreaker(settings)
	return bc
}

func (b *BreakerClient) Call(ctx context.Context, endpoint string, params map[string]any) (any, error) {
	result, err := b.breaker.Execute(func() (any, error) {
		return b.inner.Call(ctx, endpoint, params)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s: %w", endpoint, ErrCircuitOpen)
		}
		return result, err
	}

	if b.wasOpen.CompareAndSwap(true, false) {
		if b.onClear != nil {
			b.onClear(b.tag)
		}
	}
	return result, nil
}
