package narration

import (
	"math"
	"strings"
	"testing"

	"github.com/loqalabs/loqa-reader/internal/tts"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestReconstructProportionalTiles(t *testing.T) {
	seg := SegmentParagraphs([]Paragraph{
		para(1, 0, TypeNarration, strings.Repeat("a", 9)),
		para(1, 1, TypeNarration, strings.Repeat("b", 19)),
		para(1, 2, TypeNarration, strings.Repeat("c", 9)),
	}, 768)[0]
	if seg.Len() != 39 {
		t.Fatalf("expected 39 chars, got %d", seg.Len())
	}

	spans := Reconstruct(Placement{Segment: seg, OffsetMs: 1000, DurationMs: 3900})
	if len(spans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(spans))
	}
	want := [][2]float64{{1000, 2000}, {2000, 4000}, {4000, 4900}}
	for i, w := range want {
		if !approx(spans[i].StartMs, w[0]) || !approx(spans[i].EndMs, w[1]) {
			t.Fatalf("span %d: expected %v, got [%v, %v]", i, w, spans[i].StartMs, spans[i].EndMs)
		}
	}
}

func TestReconstructSpanGrowsWithLength(t *testing.T) {
	seg := SegmentParagraphs([]Paragraph{
		para(1, 0, TypeNarration, strings.Repeat("a", 3)),
		para(1, 1, TypeNarration, strings.Repeat("b", 30)),
		para(1, 2, TypeNarration, strings.Repeat("c", 12)),
		para(1, 3, TypeNarration, strings.Repeat("d", 7)),
	}, 768)[0]
	spans := Reconstruct(Placement{Segment: seg, OffsetMs: 0, DurationMs: 5000})

	prev := -1.0
	for i, s := range spans {
		if !approx(s.StartMs, prev) && prev >= 0 {
			t.Fatalf("span %d: gap or overlap at %v vs %v", i, s.StartMs, prev)
		}
		prev = s.EndMs
	}
	if !approx(spans[0].StartMs, 0) || !approx(spans[len(spans)-1].EndMs, 5000) {
		t.Fatalf("spans do not cover the placement: %+v", spans)
	}

	for i := range spans {
		for j := range spans {
			li, lj := seg.Sources[i].Len(), seg.Sources[j].Len()
			di, dj := spans[i].EndMs-spans[i].StartMs, spans[j].EndMs-spans[j].StartMs
			if li < lj && di >= dj {
				t.Fatalf("longer contribution %d got no more time than %d", j, i)
			}
		}
	}
}

func TestReconstructDividerCoversWholeSilence(t *testing.T) {
	seg := Segment{Type: TypeDivider, Sources: []Contribution{{Ref: Ref{PageNumber: 2, ParagraphIndexOnPage: 4}, Chunks: 1}}}
	spans := Reconstruct(Placement{Segment: seg, OffsetMs: 640, DurationMs: 800})
	if len(spans) != 1 || spans[0].StartMs != 640 || spans[0].EndMs != 1440 {
		t.Fatalf("unexpected divider span %+v", spans)
	}
}

func TestReconstructZeroLengthSegment(t *testing.T) {
	seg := Segment{Type: TypeNarration, Sources: []Contribution{{Ref: Ref{PageNumber: 1}}}}
	spans := Reconstruct(Placement{Segment: seg, OffsetMs: 100, DurationMs: 50})
	if len(spans) != 1 || spans[0].StartMs != 100 || spans[0].EndMs != 150 {
		t.Fatalf("expected whole span for the single paragraph, got %+v", spans)
	}
}

func TestReconstructUsesNativeTimepoints(t *testing.T) {
	seg := SegmentParagraphs([]Paragraph{
		para(1, 0, TypeNarration, "aaaa"),
		para(1, 1, TypeNarration, "bbbb"),
	}, 768)[0]
	// "aaaa " ends at character 5, which the engine places at 300ms of 900ms.
	spans := Reconstruct(Placement{
		Segment:    seg,
		OffsetMs:   0,
		DurationMs: 900,
		Timepoints: []tts.Timepoint{{Offset: 5, Ms: 300}},
	})
	if !approx(spans[0].EndMs, 300) || !approx(spans[1].StartMs, 300) || !approx(spans[1].EndMs, 900) {
		t.Fatalf("unexpected spans %+v", spans)
	}
}

func TestReconstructIgnoresUnusableTimepoints(t *testing.T) {
	seg := SegmentParagraphs([]Paragraph{
		para(1, 0, TypeNarration, "aaaa"),
		para(1, 1, TypeNarration, "bbbb"),
	}, 768)[0]
	spans := Reconstruct(Placement{
		Segment:    seg,
		DurationMs: 900,
		Timepoints: []tts.Timepoint{{Offset: 50, Ms: 100}, {Offset: 2, Ms: 5000}, {Offset: 0, Ms: 10}},
	})
	if !approx(spans[0].EndMs, 500) {
		t.Fatalf("expected proportional fallback, got %+v", spans)
	}
}

func TestFlattenMergesChunksAndRounds(t *testing.T) {
	segs := SegmentParagraphs([]Paragraph{
		para(1, 0, TypeNarration, "abc"),
		para(1, 1, TypeDialogue, strings.Repeat("x", 25)),
	}, 10)
	if len(segs) != 4 {
		t.Fatalf("expected 4 segments, got %d", len(segs))
	}
	placements := []Placement{
		{Segment: segs[0], OffsetMs: 0, DurationMs: 100.4},
		{Segment: segs[1], OffsetMs: 200.4, DurationMs: 300},
		{Segment: segs[2], OffsetMs: 600.4, DurationMs: 300},
		{Segment: segs[3], OffsetMs: 1000.4, DurationMs: 150.2},
	}
	got := Flatten(placements)
	want := []Timestamp{
		{PageNumber: 1, ParagraphIndexOnPage: 0, StartMs: 0, EndMs: 100},
		{PageNumber: 1, ParagraphIndexOnPage: 1, StartMs: 200, EndMs: 1151},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d timestamps, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("timestamp %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}
