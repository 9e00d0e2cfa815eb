package telemetry

import (
	"context"
	"errors"

	"github.com/pilab-dev/shadow-social/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/otlptranslator"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	prometheusexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
)

// Providers bundles the OpenTelemetry providers the server registers globally.
type Providers struct {
	Tracer *trace.TracerProvider
	Meter  *metric.MeterProvider
}

// Init registers the tracer provider and a meter provider whose instruments
// are exported through the Prometheus registerer reg.
func Init(serviceName string, reg prometheus.Registerer) (*Providers, error) {
	tp, err := tracing.InitTracerProvider(serviceName)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("OpenTelemetry TracerProvider initialized")

	mp, err := InitMeterProvider(reg)
	if err != nil {
		_ = tp.Shutdown(context.Background())
		return nil, err
	}

	return &Providers{Tracer: tp, Meter: mp}, nil
}

// InitMeterProvider initializes the OpenTelemetry meter provider with a Prometheus exporter.
func InitMeterProvider(reg prometheus.Registerer) (*metric.MeterProvider, error) {
	// Instrument names are dotted; escape them to the classic underscore form.
	exporter, err := prometheusexporter.New(
		prometheusexporter.WithRegisterer(reg),
		prometheusexporter.WithTranslationStrategy(otlptranslator.UnderscoreEscapingWithSuffixes),
	)
	if err != nil {
		return nil, err
	}

	mp := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(mp)
	log.Info().Msg("OpenTelemetry MeterProvider initialized with Prometheus exporter")
	return mp, nil
}

// Shutdown flushes and stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	if p.Tracer != nil {
		if err := p.Tracer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Error shutting down OpenTelemetry TracerProvider")
			errs = append(errs, err)
		}
	}
	if p.Meter != nil {
		if err := p.Meter.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Error shutting down OpenTelemetry MeterProvider")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
