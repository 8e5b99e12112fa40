package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of every session instrument.
const MeterName = "github.com/aussiebroadwan/tokenkeeper/session"

// Operations that reject tokens, recorded as the op attribute.
const (
	OpValidate = "validate"
	OpRotate   = "rotate"
)

// Metrics holds the session lifecycle counters. All methods are safe on a
// nil receiver, which records nothing.
type Metrics struct {
	issued             metric.Int64Counter
	rotated            metric.Int64Counter
	revoked            metric.Int64Counter
	validationFailures metric.Int64Counter
	swept              metric.Int64Counter
	purged             metric.Int64Counter
}

// NewMetrics registers the counters on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	var errs []error
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		return c
	}

	m.issued = counter("sessions.issued", "Token pairs issued")
	m.rotated = counter("sessions.rotated", "Refresh rotations that succeeded")
	m.revoked = counter("sessions.revoked", "Credential records revoked by logout or admin action")
	m.validationFailures = counter("sessions.validation_failures", "Rejected access or refresh tokens")
	m.swept = counter("sessions.swept", "Expired records revoked by the sweeper")
	m.purged = counter("sessions.purged", "Stale revoked records deleted")

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Metrics) Issued(ctx context.Context) {
	if m == nil {
		return
	}
	m.issued.Add(ctx, 1)
}

func (m *Metrics) Rotated(ctx context.Context) {
	if m == nil {
		return
	}
	m.rotated.Add(ctx, 1)
}

func (m *Metrics) Revoked(ctx context.Context, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.revoked.Add(ctx, n)
}

// ValidationFailure counts a token rejected by op (OpValidate for access
// tokens, OpRotate for refresh tokens) under reason (malformed, expired,
// revoked, ...).
func (m *Metrics) ValidationFailure(ctx context.Context, op, reason string) {
	if m == nil {
		return
	}
	m.validationFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("reason", reason),
	))
}

func (m *Metrics) Swept(ctx context.Context, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.swept.Add(ctx, n)
}

func (m *Metrics) Purged(ctx context.Context, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.purged.Add(ctx, n)
}
