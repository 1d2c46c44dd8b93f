package observability

import (
	"context"
	"errors"
)

// Config groups metrics and tracing settings.
type Config struct {
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
}

// DefaultConfig enables metrics and leaves tracing off.
func DefaultConfig() Config {
	return Config{
		Metrics: MetricsConfig{Enabled: true},
		Tracing: TracingConfig{
			Enabled:        false,
			Exporter:       "otlp",
			OTLPEndpoint:   "localhost:4318",
			SampleRate:     1.0,
			ServiceName:    "fsgate",
			ServiceVersion: "1.0.0",
		},
	}
}

// Observability bundles the metrics collector and tracer provider.
type Observability struct {
	Metrics *MetricsCollector
	Tracer  *TracerProvider
}

// New builds metrics and tracing from config.
func New(config Config) (*Observability, error) {
	metrics, err := NewMetricsCollector(config.Metrics)
	if err != nil {
		return nil, err
	}
	tracer, err := NewTracerProvider(config.Tracing)
	if err != nil {
		_ = metrics.Shutdown(context.Background())
		return nil, err
	}
	return &Observability{Metrics: metrics, Tracer: tracer}, nil
}

// Shutdown stops both providers.
func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil {
		return nil
	}
	return errors.Join(o.Metrics.Shutdown(ctx), o.Tracer.Shutdown(ctx))
}
