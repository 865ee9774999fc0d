// Package provider defines the data-provider client interface: the opaque,
// quota-aware external market-data call that job functions invoke.
package provider

import "context"

// Client is the opaque callable job functions use to reach the external
// market-data provider. The orchestrator never inspects endpoint or params;
// it only classifies the returned error for quota handling.
type Client interface {
	Call(ctx context.Context, endpoint string, params map[string]any) (any, error)
}

// QuotaCallback is invoked when the client observes a quota condition change.
// tag identifies which quota was affected (e.g. "EODHD_DAILY_LIMIT").
type QuotaCallback func(tag string)
