package narration

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/loqa-reader/internal/apperr"
	"github.com/loqalabs/loqa-reader/internal/audio"
	"github.com/loqalabs/loqa-reader/internal/tts"
)

// Options are the pipeline defaults, normally taken from configuration.
type Options struct {
	MaxChars              int
	InterSegmentSilenceMs int
	DividerSilenceMs      int
	Concurrency           int
	// Format is used for silence when a page yields no decoded clip and
	// for LINEAR16 payloads that arrive without a WAV header.
	Format audio.Format
}

// Request is one page worth of paragraphs. Zero MaxChars and a nil
// InterSegmentSilenceMs fall back to Options.
type Request struct {
	Paragraphs            []Paragraph
	Voice                 string
	Language              string
	MaxChars              int
	InterSegmentSilenceMs *int
	Progress              ProgressFunc
}

// Result is the outcome of one page. NoContent marks a page with nothing
// to narrate; Audio is nil and Timestamps is empty in that case.
type Result struct {
	Audio      []byte
	Format     string
	Timestamps []Timestamp
	DurationMs int
	Segments   int
	NoContent  bool
}

type Pipeline struct {
	assembler *Assembler
	encoder   audio.Encoder
	opts      Options
	logger    *slog.Logger
	tracer    trace.Tracer
	segments  metric.Int64Counter
	pages     metric.Float64Histogram
}

func New(synth tts.Synthesizer, encoder audio.Encoder, opts Options, logger *slog.Logger) (*Pipeline, error) {
	if opts.MaxChars <= 0 {
		return nil, fmt.Errorf("max chars must be positive, got %d", opts.MaxChars)
	}
	meter := otel.Meter("github.com/loqalabs/loqa-reader/internal/narration")
	segments, err := meter.Int64Counter("reader.narration.segments",
		metric.WithDescription("Synthesis segments produced by the segmenter"))
	if err != nil {
		return nil, fmt.Errorf("create segments counter: %w", err)
	}
	pages, err := meter.Float64Histogram("reader.narration.page.latency",
		metric.WithDescription("Wall time to narrate one page"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("create page histogram: %w", err)
	}

	logger = logger.With(slog.String("component", "narration"))
	return &Pipeline{
		assembler: NewAssembler(synth, audio.Decoder{RawFormat: opts.Format}, opts.Format, opts.DividerSilenceMs, opts.Concurrency, logger),
		encoder:   encoder,
		opts:      opts,
		logger:    logger,
		tracer:    otel.Tracer("github.com/loqalabs/loqa-reader/internal/narration"),
		segments:  segments,
		pages:     pages,
	}, nil
}

// Run narrates one page. Validation failures are reported before any
// synthesis. Engine failures come back with their original kind; anything
// else is reported as an opaque internal error.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	ctx, span := p.tracer.Start(ctx, "narration.run", trace.WithAttributes(
		attribute.Int("narration.paragraphs", len(req.Paragraphs)),
		attribute.String("tts.voice", req.Voice),
	))
	defer span.End()
	started := time.Now()

	res, err := p.run(ctx, req)
	outcome := "ok"
	switch {
	case err != nil:
		outcome = string(apperr.KindOf(err))
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, outcome)
	case res.NoContent:
		outcome = "no_content"
	}
	p.pages.Record(ctx, float64(time.Since(started).Milliseconds()),
		metric.WithAttributes(attribute.String("outcome", outcome)))
	return res, err
}

func (p *Pipeline) run(ctx context.Context, req Request) (Result, error) {
	req, err := p.normalize(req)
	if err != nil {
		return Result{}, err
	}

	_, segSpan := p.tracer.Start(ctx, "narration.segment")
	segments := SegmentParagraphs(req.Paragraphs, req.MaxChars)
	segSpan.SetAttributes(attribute.Int("narration.segments", len(segments)))
	segSpan.End()
	p.segments.Add(ctx, int64(len(segments)))

	if len(segments) == 0 {
		return noContent(), nil
	}

	asmCtx, asmSpan := p.tracer.Start(ctx, "narration.assemble")
	asm, err := p.assembler.Assemble(asmCtx, segments, AssembleOptions{
		Voice:                 req.Voice,
		Language:              req.Language,
		InterSegmentSilenceMs: *req.InterSegmentSilenceMs,
		Progress:              req.Progress,
	})
	asmSpan.End()
	if err != nil {
		return Result{}, classify(err)
	}
	if len(asm.Placements) == 0 {
		return noContent(), nil
	}

	data, err := p.encoder.Encode(asm.Track.Render())
	if err != nil {
		return Result{}, classify(apperr.Wrap(apperr.KindInternal, "narration.export", "encode merged track", err))
	}

	res := Result{
		Audio:      data,
		Format:     p.encoder.MIMEType(),
		Timestamps: Flatten(asm.Placements),
		DurationMs: int(asm.Track.DurationMs() + 0.5),
		Segments:   len(asm.Placements),
	}
	p.logger.Info("page narrated",
		slog.Int("segments", res.Segments),
		slog.Int("timestamps", len(res.Timestamps)),
		slog.Int("duration_ms", res.DurationMs),
		slog.Int("bytes", len(res.Audio)))
	return res, nil
}

func noContent() Result {
	return Result{Timestamps: []Timestamp{}, NoContent: true}
}

// normalize applies defaults and checks the request before anything is
// synthesized.
func (p *Pipeline) normalize(req Request) (Request, error) {
	const op = "narration.run"
	if strings.TrimSpace(req.Voice) == "" {
		return req, apperr.New(apperr.KindValidation, op, "voiceName is required")
	}
	if strings.TrimSpace(req.Language) == "" {
		return req, apperr.New(apperr.KindValidation, op, "languageCode is required")
	}
	if req.MaxChars == 0 {
		req.MaxChars = p.opts.MaxChars
	}
	if req.MaxChars < 0 {
		return req, apperr.Newf(apperr.KindValidation, op, "maxChars must be positive, got %d", req.MaxChars)
	}
	if req.InterSegmentSilenceMs == nil {
		silence := p.opts.InterSegmentSilenceMs
		req.InterSegmentSilenceMs = &silence
	}
	if *req.InterSegmentSilenceMs < 0 {
		return req, apperr.Newf(apperr.KindValidation, op, "interSegmentSilenceMs must be >= 0, got %d", *req.InterSegmentSilenceMs)
	}

	seen := make(map[Ref]struct{}, len(req.Paragraphs))
	paragraphs := make([]Paragraph, len(req.Paragraphs))
	for i, para := range req.Paragraphs {
		typ, err := ParseParagraphType(string(para.Type))
		if err != nil {
			return req, apperr.Wrap(apperr.KindValidation, op, fmt.Sprintf("paragraph %d: unknown paragraphType %q", i, para.Type), err)
		}
		if _, dup := seen[para.Ref]; dup {
			return req, apperr.Newf(apperr.KindValidation, op,
				"duplicate paragraph pageNumber=%d paragraphIndexOnPage=%d", para.PageNumber, para.ParagraphIndexOnPage)
		}
		seen[para.Ref] = struct{}{}
		para.Type = typ
		paragraphs[i] = para
	}
	req.Paragraphs = paragraphs
	return req, nil
}

// classify keeps the caller-visible taxonomy closed: engine and validation
// errors pass through, everything else becomes one opaque internal error.
func classify(err error) error {
	switch apperr.KindOf(err) {
	case apperr.KindSynthesisUnavailable, apperr.KindInvalidVoiceConfig, apperr.KindValidation:
		return err
	}
	return &apperr.Error{Kind: apperr.KindInternal, Op: "narration.run", Message: "internal error", Cause: err}
}
