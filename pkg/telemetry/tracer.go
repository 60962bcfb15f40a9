package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Span attribute keys used across the engine.
const (
	AttrRunID    = attribute.Key("taskgrid.run.id")
	AttrNodeID   = attribute.Key("taskgrid.node.id")
	AttrNodeType = attribute.Key("taskgrid.node.type")
	AttrPass     = attribute.Key("taskgrid.pass")
	AttrTier     = attribute.Key("taskgrid.tier")
)

// Tracer provides distributed tracing for the taskgrid engine.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer creates a new tracer from the given configuration.
func NewTracer(ctx context.Context, cfg *Config) (*Tracer, error) {
	if !cfg.Tracing.Enabled || cfg.Tracing.Exporter == "none" {
		return &Tracer{tracer: trace.NewNoopTracerProvider().Tracer("noop")}, nil
	}

	var exporter sdktrace.SpanExporter
	var err error

	switch cfg.Tracing.Exporter {
	case "otlp":
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Tracing.Endpoint),
			otlptracegrpc.WithHeaders(cfg.Tracing.Headers),
		}
		if cfg.Tracing.Insecure {
			opts = append(opts, otlptracegrpc.WithDialOption(
				grpc.WithTransportCredentials(insecure.NewCredentials()),
			))
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("unknown trace exporter: %s", cfg.Tracing.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating trace resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxExportBatchSize(cfg.Tracing.MaxExportBatchSize),
			sdktrace.WithExportTimeout(cfg.Tracing.ExportTimeout),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.Tracing.SamplingRate)),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer(cfg.ServiceName),
	}, nil
}

// StartValidateSpan starts a span covering graph validation.
func (t *Tracer) StartValidateSpan(ctx context.Context, nodeCount int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "graph.validate",
		trace.WithAttributes(attribute.Int("taskgrid.graph.nodes", nodeCount)),
	)
}

// StartOptimizeSpan starts a span covering an optimization pipeline run.
func (t *Tracer) StartOptimizeSpan(ctx context.Context, nodeCount int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "graph.optimize",
		trace.WithAttributes(attribute.Int("taskgrid.graph.nodes", nodeCount)),
	)
}

// StartPassSpan starts a span covering a single optimization pass.
func (t *Tracer) StartPassSpan(ctx context.Context, pass string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "graph.pass",
		trace.WithAttributes(AttrPass.String(pass)),
	)
}

// StartRunSpan starts a span covering an orchestration run.
func (t *Tracer) StartRunSpan(ctx context.Context, runID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "run.execute",
		trace.WithAttributes(AttrRunID.String(runID)),
	)
}

// StartNodeSpan starts a span covering a single node execution.
func (t *Tracer) StartNodeSpan(ctx context.Context, runID, nodeID, nodeType string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "node.execute",
		trace.WithAttributes(
			AttrRunID.String(runID),
			AttrNodeID.String(nodeID),
			AttrNodeType.String(nodeType),
		),
	)
}

// RecordError records an error on the span and marks it failed.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// RecordSuccess marks the span as successful.
func RecordSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// Shutdown flushes and stops the tracer provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// ForceFlush forces an export of any buffered spans.
func (t *Tracer) ForceFlush(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.ForceFlush(ctx)
}
