// Package observer provides OTEL-based observability for livia.
//
// It wraps the Provider and Frontend interfaces with instrumented versions
// that emit traces, metrics, and logs via OpenTelemetry, and watches
// Governor pools with observable gauges. Exporters are configured from the
// standard OTEL env vars.
package observer

import (
	"context"
	"errors"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	livialog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"

	livia "github.com/lucastzuka/livia"
)

const scopeName = "github.com/lucastzuka/livia/observer"

// Instruments holds all OTEL instruments used by the observer wrappers.
type Instruments struct {
	Meter  metric.Meter
	Logger livialog.Logger

	// LLM path
	TokenUsage  metric.Int64Counter
	CostTotal   metric.Float64Counter
	LLMRequests metric.Int64Counter
	LLMDuration metric.Float64Histogram

	// Platform path
	PlatformCalls    metric.Int64Counter
	PlatformDuration metric.Float64Histogram

	Cost *CostCalculator
}

// Init sets up OTEL trace, metric, and log providers with OTLP HTTP
// exporters and returns the shared instruments plus a shutdown function.
//
// When OTEL_EXPORTER_OTLP_ENDPOINT is unset no exporters are created: the
// instruments bind to the global no-op providers and the process runs
// without a collector. All other configuration comes from the standard
// OTEL env vars.
func Init(ctx context.Context, pricing map[string]ModelPricing) (*Instruments, func(context.Context) error, error) {
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
		inst, err := newInstruments(pricing)
		if err != nil {
			return nil, nil, err
		}
		return inst, func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName("livia")),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	// Trace provider
	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	// Metric provider
	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	// Log provider
	logExp, err := otlploghttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	inst, err := newInstruments(pricing)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		_ = lp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
			lp.Shutdown(ctx),
		)
	}

	return inst, shutdown, nil
}

func newInstruments(pricing map[string]ModelPricing) (*Instruments, error) {
	meter := otel.Meter(scopeName)
	logger := global.GetLoggerProvider().Logger(scopeName)

	tokenUsage, err := meter.Int64Counter("llm.token.usage",
		metric.WithDescription("Total tokens consumed"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}

	costTotal, err := meter.Float64Counter("llm.cost.total",
		metric.WithDescription("Cumulative LLM cost in USD"),
		metric.WithUnit("USD"))
	if err != nil {
		return nil, err
	}

	llmRequests, err := meter.Int64Counter("llm.requests",
		metric.WithDescription("LLM request count"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	llmDuration, err := meter.Float64Histogram("llm.duration",
		metric.WithDescription("LLM call duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	platformCalls, err := meter.Int64Counter("platform.calls",
		metric.WithDescription("Chat platform API call count"),
		metric.WithUnit("{call}"))
	if err != nil {
		return nil, err
	}

	platformDuration, err := meter.Float64Histogram("platform.duration",
		metric.WithDescription("Chat platform API call duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Meter:            meter,
		Logger:           logger,
		TokenUsage:       tokenUsage,
		CostTotal:        costTotal,
		LLMRequests:      llmRequests,
		LLMDuration:      llmDuration,
		PlatformCalls:    platformCalls,
		PlatformDuration: platformDuration,
		Cost:             NewCostCalculator(pricing),
	}, nil
}

// ObserveGovernor registers observable instruments over the named pools.
// Each collection cycle snapshots Governor.Stats.
func (inst *Instruments) ObserveGovernor(g *livia.Governor, pools ...string) error {
	inFlight, err := inst.Meter.Int64ObservableGauge("governor.in_flight",
		metric.WithDescription("Operations currently holding a pool permit"),
		metric.WithUnit("{operation}"))
	if err != nil {
		return err
	}
	issued, err := inst.Meter.Int64ObservableCounter("governor.issued",
		metric.WithDescription("Operations admitted by the pool"),
		metric.WithUnit("{operation}"))
	if err != nil {
		return err
	}
	retried, err := inst.Meter.Int64ObservableCounter("governor.retried",
		metric.WithDescription("Transient failures retried"),
		metric.WithUnit("{retry}"))
	if err != nil {
		return err
	}
	failed, err := inst.Meter.Int64ObservableCounter("governor.failed",
		metric.WithDescription("Operations that exhausted their retry budget"),
		metric.WithUnit("{operation}"))
	if err != nil {
		return err
	}

	_, err = inst.Meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for _, name := range pools {
			stats := g.Stats(name)
			attrs := metric.WithAttributes(AttrPool.String(name))
			o.ObserveInt64(inFlight, int64(stats.InFlight), attrs)
			o.ObserveInt64(issued, stats.Issued, attrs)
			o.ObserveInt64(retried, stats.Retried, attrs)
			o.ObserveInt64(failed, stats.Failed, attrs)
		}
		return nil
	}, inFlight, issued, retried, failed)
	return err
}
