// Package tracing configures the OpenTelemetry provider used for consumer
// and workflow step spans.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// DefaultServiceName identifies dirsync spans when no name is configured.
const DefaultServiceName = "dirsync"

// Config configures the tracing subsystem.
type Config struct {
	// Enabled controls whether tracing is active.
	// When false, a no-op tracer is returned.
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the export backend: "none", "file" or "stdout".
	Exporter string `mapstructure:"exporter"`

	// FilePath is the JSON lines output for the "file" exporter.
	FilePath string `mapstructure:"file_path"`

	// SampleRate is the fraction of root traces to sample.
	SampleRate float64 `mapstructure:"sample_rate"`

	ServiceName string `mapstructure:"service_name"`
}

// DefaultConfig returns tracing disabled with a file exporter preselected.
func DefaultConfig() Config {
	return Config{
		Enabled:     false,
		Exporter:    "file",
		SampleRate:  1.0,
		ServiceName: DefaultServiceName,
	}
}

// Provider wraps the SDK tracer provider.
type Provider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	out      io.Closer
	enabled  bool
}

// NewProvider creates the trace provider. A disabled config yields a no-op
// provider.
func NewProvider(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{tracer: noop.NewTracerProvider().Tracer("noop")}, nil
	}

	var (
		exporter sdktrace.SpanExporter
		out      io.Closer
		err      error
	)
	switch cfg.Exporter {
	case "file":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("file_path required for file exporter")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, fmt.Errorf("create trace directory: %w", err)
		}
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open trace file: %w", err)
		}
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(f))
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("create file exporter: %w", err)
		}
		out = f
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
	case "none", "":
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.Exporter)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = DefaultServiceName
	}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 1.0
	}
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate))),
	}
	if exporter != nil {
		// Exported synchronously so spans land before Shutdown returns.
		opts = append(opts, sdktrace.WithSyncer(exporter))
	}

	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)

	return &Provider{
		provider: provider,
		tracer:   provider.Tracer(serviceName),
		out:      out,
		enabled:  true,
	}, nil
}

// Tracer returns the configured tracer. It is a no-op tracer when disabled.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Enabled reports whether tracing is active.
func (p *Provider) Enabled() bool {
	return p.enabled
}

// Shutdown flushes pending spans and closes the trace file.
func (p *Provider) Shutdown(ctx context.Context) error {
	var err error
	if p.provider != nil {
		err = p.provider.Shutdown(ctx)
	}
	if p.out != nil {
		if cerr := p.out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
