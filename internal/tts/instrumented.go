package tts

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/loqa-reader/internal/apperr"
)

// Instrumented records a span, an outcome counter and a latency histogram
// around every engine call.
type Instrumented struct {
	next    Synthesizer
	engine  string
	timeout time.Duration
	tracer  trace.Tracer
	calls   metric.Int64Counter
	latency metric.Float64Histogram
}

func Instrument(next Synthesizer, engine string) (*Instrumented, error) {
	meter := otel.Meter("github.com/loqalabs/loqa-reader/internal/tts")
	calls, err := meter.Int64Counter("reader.tts.calls",
		metric.WithDescription("Engine synthesis calls by outcome"))
	if err != nil {
		return nil, fmt.Errorf("create calls counter: %w", err)
	}
	latency, err := meter.Float64Histogram("reader.tts.latency",
		metric.WithDescription("Engine synthesis latency"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("create latency histogram: %w", err)
	}
	return &Instrumented{
		next:    next,
		engine:  engine,
		tracer:  otel.Tracer("github.com/loqalabs/loqa-reader/internal/tts"),
		calls:   calls,
		latency: latency,
	}, nil
}

// WithTimeout bounds every engine call. Zero leaves calls unbounded.
func (i *Instrumented) WithTimeout(d time.Duration) *Instrumented {
	i.timeout = d
	return i
}

func (i *Instrumented) Synthesize(ctx context.Context, req Request) (Audio, error) {
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}
	ctx, span := i.tracer.Start(ctx, "tts.synthesize", trace.WithAttributes(
		attribute.String("tts.engine", i.engine),
		attribute.String("tts.voice", req.Voice),
		attribute.String("tts.language", req.Language),
		attribute.Int("tts.chars", len([]rune(req.Text))),
	))
	defer span.End()

	start := time.Now()
	out, err := i.next.Synthesize(ctx, req)
	elapsed := float64(time.Since(start).Microseconds()) / 1000

	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, outcome)
	}
	attrs := metric.WithAttributes(attribute.String("engine", i.engine), attribute.String("outcome", outcome))
	i.calls.Add(ctx, 1, attrs)
	i.latency.Record(ctx, elapsed, attrs)
	return out, err
}
