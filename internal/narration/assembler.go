package narration

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/loqalabs/loqa-reader/internal/apperr"
	"github.com/loqalabs/loqa-reader/internal/audio"
	"github.com/loqalabs/loqa-reader/internal/tts"
)

// ProgressFunc is called after each segment's audio is ready.
type ProgressFunc func(done, total int)

// Assembler synthesizes segments and lays them out on one track.
type Assembler struct {
	synth            tts.Synthesizer
	decoder          audio.Decoder
	fallback         audio.Format
	dividerSilenceMs float64
	concurrency      int
	logger           *slog.Logger
}

// AssembleOptions are the per-request knobs of Assemble.
type AssembleOptions struct {
	Voice                 string
	Language              string
	InterSegmentSilenceMs int
	Progress              ProgressFunc
}

// Assembly is the merged track plus where each segment landed on it.
type Assembly struct {
	Track      *audio.Track
	Placements []Placement
}

func NewAssembler(synth tts.Synthesizer, decoder audio.Decoder, fallback audio.Format, dividerSilenceMs, concurrency int, logger *slog.Logger) *Assembler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Assembler{
		synth:            synth,
		decoder:          decoder,
		fallback:         fallback,
		dividerSilenceMs: float64(dividerSilenceMs),
		concurrency:      concurrency,
		logger:           logger.With(slog.String("component", "assembler")),
	}
}

// Assemble builds the track. Any synthesis or decode failure aborts the
// whole assembly; no partial track is returned.
func (a *Assembler) Assemble(ctx context.Context, segments []Segment, opts AssembleOptions) (Assembly, error) {
	effective := make([]Segment, 0, len(segments))
	for _, s := range segments {
		if s.Type == TypeDivider || strings.TrimSpace(s.Text) != "" {
			effective = append(effective, s)
		}
	}

	clips, err := a.render(ctx, effective, opts)
	if err != nil {
		return Assembly{}, err
	}

	gap := float64(opts.InterSegmentSilenceMs)
	track := audio.NewTrack(a.fallback)
	placements := make([]Placement, 0, len(effective))
	cursor := 0.0
	for i, seg := range effective {
		if seg.Type == TypeDivider {
			track.AppendSilence(a.dividerSilenceMs)
			placements = append(placements, Placement{Segment: seg, OffsetMs: cursor, DurationMs: a.dividerSilenceMs})
			cursor += a.dividerSilenceMs
		} else {
			clip := clips[i]
			if err := track.Append(clip.clip); err != nil {
				return Assembly{}, apperr.Wrap(apperr.KindInternal, "narration.assemble",
					fmt.Sprintf("segment %d audio cannot be merged", i), err)
			}
			duration := clip.clip.DurationMs()
			placements = append(placements, Placement{
				Segment:    seg,
				OffsetMs:   cursor,
				DurationMs: duration,
				Timepoints: clip.timepoints,
			})
			cursor += duration
		}
		if i < len(effective)-1 {
			track.AppendSilence(gap)
			cursor += gap
		}
	}

	a.logger.Debug("track assembled",
		slog.Int("segments", len(effective)),
		slog.Float64("duration_ms", track.DurationMs()))
	return Assembly{Track: track, Placements: placements}, nil
}

type renderedClip struct {
	clip       audio.Clip
	timepoints []tts.Timepoint
}

// render synthesizes and decodes every non-divider segment. Results are
// indexed by segment position so concurrent calls never reorder the track.
func (a *Assembler) render(ctx context.Context, segments []Segment, opts AssembleOptions) ([]renderedClip, error) {
	clips := make([]renderedClip, len(segments))
	total := len(segments)
	var done atomic.Int64
	report := func() {
		if opts.Progress != nil {
			opts.Progress(int(done.Add(1)), total)
		}
	}

	one := func(ctx context.Context, i int) error {
		seg := segments[i]
		if seg.Type == TypeDivider {
			report()
			return nil
		}
		out, err := a.synth.Synthesize(ctx, tts.Request{Text: seg.Text, Voice: opts.Voice, Language: opts.Language})
		if err != nil {
			a.logger.Warn("segment synthesis failed", slog.Int("segment", i), slogError(err))
			return err
		}
		clip, err := a.decoder.Decode(out.Encoding, out.Data)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, "narration.assemble",
				fmt.Sprintf("segment %d audio could not be decoded", i), err)
		}
		clips[i] = renderedClip{clip: clip, timepoints: out.Timepoints}
		report()
		return nil
	}

	if a.concurrency == 1 {
		for i := range segments {
			if err := one(ctx, i); err != nil {
				return nil, err
			}
		}
		return clips, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i := range segments {
		g.Go(func() error { return one(gctx, i) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return clips, nil
}

func slogError(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}
