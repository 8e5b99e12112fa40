// Package telemetry sets up OpenTelemetry metrics for the session service.
package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// ExportInterval is how often metrics are pushed to the collector.
const ExportInterval = 10 * time.Second

// NewMeterProvider builds a MeterProvider exporting over OTLP/gRPC to
// endpoint. An empty endpoint gives a provider with no reader, so
// instruments work but nothing leaves the process.
//
// endpoint may be host:port or a URL; only the host:port part is dialled.
// Anything but https is sent without TLS.
func NewMeterProvider(ctx context.Context, endpoint, serviceName string) (*sdkmetric.MeterProvider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, err
	}

	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return sdkmetric.NewMeterProvider(sdkmetric.WithResource(res)), nil
	}

	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid OTLP endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid OTLP endpoint %q: missing host", endpoint)
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(u.Host)}
	if u.Scheme != "https" {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(ExportInterval))),
	), nil
}
