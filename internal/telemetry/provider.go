package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/cjeanneret/pansweep/internal/config"
	"github.com/cjeanneret/pansweep/internal/debug"
)

// Provider owns the meter provider and the registry it is scraped from.
// The zero value, returned when metrics are disabled, has no provider and
// serves 404 on the scrape endpoint.
type Provider struct {
	mp       *sdkmetric.MeterProvider
	registry *prometheus.Registry
}

// NewProvider builds a Prometheus-backed meter provider when cfg enables
// metrics.
func NewProvider(cfg config.MetricsConfig) (*Provider, error) {
	if !cfg.Enabled {
		debug.Verbose("Metrics disabled")
		return &Provider{}, nil
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	debug.Verbose("Metrics initialized (prometheus)")
	return &Provider{mp: mp, registry: registry}, nil
}

// MeterProvider returns nil when metrics are disabled.
func (p *Provider) MeterProvider() metric.MeterProvider {
	if p.mp == nil {
		return nil
	}
	return p.mp
}

// Handler serves the scrape endpoint.
func (p *Provider) Handler() http.Handler {
	if p.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.mp == nil {
		return nil
	}
	return p.mp.Shutdown(ctx)
}
