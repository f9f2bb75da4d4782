package observer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	livialog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	livia "github.com/lucastzuka/livia"
)

// ObservedProvider wraps a livia.Provider with OTEL instrumentation.
type ObservedProvider struct {
	inner  livia.Provider
	inst   *Instruments
	tracer trace.Tracer
}

// WrapProvider returns an instrumented provider that emits traces, metrics,
// and logs for every streamed response.
func WrapProvider(inner livia.Provider, inst *Instruments) *ObservedProvider {
	return &ObservedProvider{inner: inner, inst: inst, tracer: otel.Tracer(scopeName)}
}

func (o *ObservedProvider) Name() string { return o.inner.Name() }

// Respond forwards to the wrapped provider, counting stream chunks and
// recording usage, cost, and duration against the resolved model.
func (o *ObservedProvider) Respond(ctx context.Context, req livia.ResponseRequest, ch chan<- livia.StreamEvent) (livia.Result, error) {
	spanAttrs := []trace.SpanStartOption{
		trace.WithAttributes(
			AttrLLMModel.String(req.Model),
			AttrLLMProvider.String(o.inner.Name()),
		),
	}
	if len(req.Tools) > 0 {
		toolNames := make([]string, len(req.Tools))
		for i, t := range req.Tools {
			toolNames[i] = t.Type
			if t.Name != "" {
				toolNames[i] = t.Name
			}
		}
		spanAttrs = append(spanAttrs, trace.WithAttributes(
			AttrToolCount.Int(len(req.Tools)),
			AttrToolNames.StringSlice(toolNames),
		))
	}

	ctx, span := o.tracer.Start(ctx, "llm.respond", spanAttrs...)
	defer span.End()
	start := time.Now()

	// Wrap the channel to count chunks. Buffer generously so the inner
	// provider never blocks on send while the caller is not yet draining.
	bufSize := max(cap(ch), 64)
	wrappedCh := make(chan livia.StreamEvent, bufSize)
	chunks := 0
	done := make(chan struct{})
	go func() {
		defer close(ch)
		defer close(done)
		for ev := range wrappedCh {
			chunks++
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	res, err := o.inner.Respond(ctx, req, wrappedCh)
	<-done

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetAttributes(AttrErrorCategory.String(livia.Category(err).String()))
		span.SetStatus(codes.Error, err.Error())
	}

	// Usage is billed against the model that actually served the call.
	model := res.Model
	if model == "" {
		model = req.Model
	}
	span.SetAttributes(AttrStreamChunks.Int(chunks))
	o.record(ctx, span, model, status, durationMs, res.Usage)
	return res, err
}

func (o *ObservedProvider) record(ctx context.Context, span trace.Span, model, status string, durationMs float64, usage livia.Usage) {
	cost := o.inst.Cost.Calculate(model, usage.InputTokens, usage.OutputTokens)

	attrs := metric.WithAttributes(
		AttrLLMModel.String(model),
		AttrLLMProvider.String(o.inner.Name()),
	)

	span.SetAttributes(
		AttrTokensInput.Int(usage.InputTokens),
		AttrTokensOutput.Int(usage.OutputTokens),
		AttrCostUSD.Float64(cost),
	)

	o.inst.TokenUsage.Add(ctx, int64(usage.InputTokens), metric.WithAttributes(
		AttrLLMModel.String(model),
		AttrLLMProvider.String(o.inner.Name()),
		attribute.String("direction", "input"),
	))
	o.inst.TokenUsage.Add(ctx, int64(usage.OutputTokens), metric.WithAttributes(
		AttrLLMModel.String(model),
		AttrLLMProvider.String(o.inner.Name()),
		attribute.String("direction", "output"),
	))
	o.inst.CostTotal.Add(ctx, cost, attrs)
	o.inst.LLMRequests.Add(ctx, 1, metric.WithAttributes(
		AttrLLMModel.String(model),
		AttrLLMProvider.String(o.inner.Name()),
		AttrStatus.String(status),
	))
	o.inst.LLMDuration.Record(ctx, durationMs, attrs)

	// Structured log
	var rec livialog.Record
	rec.SetSeverity(livialog.SeverityInfo)
	rec.SetBody(livialog.StringValue("llm call completed"))
	rec.AddAttributes(
		livialog.String("llm.model", model),
		livialog.String("llm.provider", o.inner.Name()),
		livialog.Int("llm.tokens.input", usage.InputTokens),
		livialog.Int("llm.tokens.output", usage.OutputTokens),
		livialog.Float64("llm.cost_usd", cost),
		livialog.Float64("llm.duration_ms", durationMs),
		livialog.String("status", status),
	)
	o.inst.Logger.Emit(ctx, rec)
}
