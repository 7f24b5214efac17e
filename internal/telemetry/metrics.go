package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics counts session lifecycle outcomes. A nil *Metrics records nothing.
type Metrics struct {
	logins       metric.Int64Counter
	logouts      metric.Int64Counter
	expiries     metric.Int64Counter
	merges       metric.Int64Counter
	pushFailures metric.Int64Counter
}

// NewMetrics creates the counters on meter. A nil meter uses the global provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter("storefront/client/session")
	}
	var (
		m   Metrics
		err error
	)
	if m.logins, err = meter.Int64Counter("storefront.session.logins", metric.WithDescription("Login attempts by outcome")); err != nil {
		return nil, err
	}
	if m.logouts, err = meter.Int64Counter("storefront.session.logouts", metric.WithDescription("Session teardowns by reason")); err != nil {
		return nil, err
	}
	if m.expiries, err = meter.Int64Counter("storefront.session.expiries", metric.WithDescription("Sessions ended by inactivity")); err != nil {
		return nil, err
	}
	if m.merges, err = meter.Int64Counter("storefront.reconcile.merges", metric.WithDescription("Guest merges by collection")); err != nil {
		return nil, err
	}
	if m.pushFailures, err = meter.Int64Counter("storefront.reconcile.push_failures", metric.WithDescription("Failed merged-cart pushes")); err != nil {
		return nil, err
	}
	return &m, nil
}

// Login records a login attempt with its outcome code ("" for success).
func (m *Metrics) Login(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "ok"
	}
	m.logins.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Logout records a teardown.
func (m *Metrics) Logout(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.logouts.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// Expiry records an inactivity expiry.
func (m *Metrics) Expiry(ctx context.Context) {
	if m == nil {
		return
	}
	m.expiries.Add(ctx, 1)
}

// Merge records a merge of collection ("cart" or "wishlist").
func (m *Metrics) Merge(ctx context.Context, collection string) {
	if m == nil {
		return
	}
	m.merges.Add(ctx, 1, metric.WithAttributes(attribute.String("collection", collection)))
}

// PushFailure records a failed cart push.
func (m *Metrics) PushFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.pushFailures.Add(ctx, 1)
}
