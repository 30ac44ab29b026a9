package narration

import (
	"math"
	"sort"

	"github.com/loqalabs/loqa-reader/internal/tts"
)

// Placement records where a segment landed in the merged track.
type Placement struct {
	Segment    Segment
	OffsetMs   float64
	DurationMs float64
	// Timepoints are native engine anchors, in segment character offsets
	// relative to this segment's start.
	Timepoints []tts.Timepoint
}

// Span is the unrounded time range of one contribution.
type Span struct {
	Ref     Ref
	StartMs float64
	EndMs   float64
}

type anchor struct {
	chars float64
	ms    float64
}

// Reconstruct partitions a placement's time range between its
// contributions. Boundaries sit at each contribution's cumulative
// character offset; between anchors time is interpolated linearly. With
// no native timepoints the only anchors are the segment's start and end,
// which makes the split purely proportional to character counts.
func Reconstruct(p Placement) []Span {
	sources := p.Segment.Sources
	if len(sources) == 0 {
		return nil
	}
	start, end := p.OffsetMs, p.OffsetMs+p.DurationMs

	if p.Segment.Type == TypeDivider {
		return []Span{{Ref: sources[0].Ref, StartMs: start, EndMs: end}}
	}

	total := 0
	for _, c := range sources {
		total += c.Len()
	}
	if total == 0 {
		spans := make([]Span, len(sources))
		for i, c := range sources {
			spans[i] = Span{Ref: c.Ref, StartMs: end, EndMs: end}
		}
		spans[0].StartMs = start
		return spans
	}

	anchors := buildAnchors(float64(total), p.DurationMs, p.Timepoints)
	spans := make([]Span, len(sources))
	cum := 0
	for i, c := range sources {
		from := start + timeAt(anchors, float64(cum))
		cum += c.Len()
		to := start + timeAt(anchors, float64(cum))
		if i == len(sources)-1 {
			to = end
		}
		spans[i] = Span{Ref: c.Ref, StartMs: from, EndMs: to}
	}
	return spans
}

func buildAnchors(total, duration float64, points []tts.Timepoint) []anchor {
	anchors := []anchor{{chars: 0, ms: 0}}
	if len(points) > 0 {
		sorted := append([]tts.Timepoint(nil), points...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })
		for _, tp := range sorted {
			chars := float64(tp.Offset)
			last := anchors[len(anchors)-1]
			if chars <= last.chars || chars >= total || tp.Ms < last.ms || tp.Ms > duration {
				continue
			}
			anchors = append(anchors, anchor{chars: chars, ms: tp.Ms})
		}
	}
	return append(anchors, anchor{chars: total, ms: duration})
}

func timeAt(anchors []anchor, chars float64) float64 {
	for i := 1; i < len(anchors); i++ {
		lo, hi := anchors[i-1], anchors[i]
		if chars <= hi.chars {
			return lo.ms + (chars-lo.chars)/(hi.chars-lo.chars)*(hi.ms-lo.ms)
		}
	}
	return anchors[len(anchors)-1].ms
}

// Flatten reconstructs every placement and returns one timestamp per
// paragraph in track order. A paragraph split across consecutive segments
// spans from its first chunk's start to its last chunk's end.
func Flatten(placements []Placement) []Timestamp {
	var spans []Span
	for _, p := range placements {
		for _, s := range Reconstruct(p) {
			if n := len(spans); n > 0 && spans[n-1].Ref == s.Ref {
				spans[n-1].EndMs = s.EndMs
				continue
			}
			spans = append(spans, s)
		}
	}

	out := make([]Timestamp, len(spans))
	for i, s := range spans {
		out[i] = Timestamp{
			PageNumber:           s.Ref.PageNumber,
			ParagraphIndexOnPage: s.Ref.ParagraphIndexOnPage,
			StartMs:              int(math.Round(s.StartMs)),
			EndMs:                int(math.Round(s.EndMs)),
		}
	}
	return out
}
