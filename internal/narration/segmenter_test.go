package narration

import (
	"math/rand/v2"
	"strings"
	"testing"
	"unicode/utf8"
)

func para(page, idx int, typ ParagraphType, text string) Paragraph {
	return Paragraph{Ref: Ref{PageNumber: page, ParagraphIndexOnPage: idx}, Text: text, Type: typ}
}

func TestSegmentSingleParagraph(t *testing.T) {
	segs := SegmentParagraphs([]Paragraph{para(1, 0, TypeNarration, "Hello world.")}, 768)
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}
	if segs[0].Text != "Hello world." || segs[0].Type != TypeNarration {
		t.Fatalf("unexpected segment %+v", segs[0])
	}
	if len(segs[0].Sources) != 1 || segs[0].Sources[0].Separator != "" {
		t.Fatalf("unexpected sources %+v", segs[0].Sources)
	}
}

func TestSegmentOverflowStartsNewBuffer(t *testing.T) {
	segs := SegmentParagraphs([]Paragraph{
		para(1, 0, TypeNarration, strings.Repeat("a", 500)),
		para(1, 1, TypeNarration, strings.Repeat("b", 400)),
	}, 768)
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	if segs[0].Len() != 500 || segs[1].Len() != 400 {
		t.Fatalf("unexpected lengths %d, %d", segs[0].Len(), segs[1].Len())
	}
}

func TestSegmentJoinsNarrationWithSingleSpace(t *testing.T) {
	segs := SegmentParagraphs([]Paragraph{
		para(1, 0, TypeNarration, "  One.  "),
		para(1, 1, TypeNarration, "Two."),
		para(1, 2, TypeNarration, "Three."),
	}, 768)
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}
	if segs[0].Text != "One. Two. Three." {
		t.Fatalf("unexpected text %q", segs[0].Text)
	}
	seps := []string{" ", " ", ""}
	for i, c := range segs[0].Sources {
		if c.Separator != seps[i] {
			t.Fatalf("source %d: expected separator %q, got %q", i, seps[i], c.Separator)
		}
	}
}

func TestSegmentJoinExactlyAtBudget(t *testing.T) {
	segs := SegmentParagraphs([]Paragraph{
		para(1, 0, TypeNarration, strings.Repeat("a", 5)),
		para(1, 1, TypeNarration, strings.Repeat("b", 4)),
	}, 10)
	if len(segs) != 1 || segs[0].Len() != 10 {
		t.Fatalf("expected one 10-char segment, got %+v", segs)
	}
}

func TestSegmentNonNarrationStandsAlone(t *testing.T) {
	segs := SegmentParagraphs([]Paragraph{
		para(1, 0, TypeNarration, "Before."),
		para(1, 1, TypeDialogue, `"Hi," she said.`),
		para(1, 2, TypeEmphasis, "Softly."),
		para(1, 3, TypeNarration, "After."),
		para(1, 4, TypeNarration, "More."),
	}, 768)
	want := []struct {
		typ  ParagraphType
		text string
	}{
		{TypeNarration, "Before."},
		{TypeDialogue, `"Hi," she said.`},
		{TypeEmphasis, "Softly."},
		{TypeNarration, "After. More."},
	}
	if len(segs) != len(want) {
		t.Fatalf("expected %d segments, got %d", len(want), len(segs))
	}
	for i, w := range want {
		if segs[i].Type != w.typ || segs[i].Text != w.text {
			t.Fatalf("segment %d: expected %s %q, got %s %q", i, w.typ, w.text, segs[i].Type, segs[i].Text)
		}
	}
}

func TestSegmentDividerAndEmptyParagraphs(t *testing.T) {
	segs := SegmentParagraphs([]Paragraph{
		para(1, 0, TypeNarration, "First."),
		para(1, 1, TypeNarration, "   "),
		para(1, 2, TypeDivider, ""),
		para(1, 3, TypeDialogue, ""),
		para(1, 4, TypeNarration, "Second."),
	}, 768)
	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segs))
	}
	if segs[1].Type != TypeDivider || segs[1].Text != "" {
		t.Fatalf("expected empty divider segment, got %+v", segs[1])
	}
	if segs[1].Sources[0].Ref != (Ref{PageNumber: 1, ParagraphIndexOnPage: 2}) {
		t.Fatalf("unexpected divider ref %+v", segs[1].Sources[0].Ref)
	}
}

func TestSegmentSplitsLongParagraphByCharacterCount(t *testing.T) {
	text := strings.Repeat("abcdefghij", 200)
	segs := SegmentParagraphs([]Paragraph{para(3, 7, TypeNarration, text)}, 768)
	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segs))
	}
	wantLens := []int{768, 768, 464}
	offset := 0
	for i, s := range segs {
		if s.Len() != wantLens[i] {
			t.Fatalf("segment %d: expected %d chars, got %d", i, wantLens[i], s.Len())
		}
		if s.Text != text[offset:offset+wantLens[i]] {
			t.Fatalf("segment %d: chunk boundary mismatch", i)
		}
		src := s.Sources[0]
		if src.Chunk != i || src.Chunks != 3 || src.Ref != (Ref{PageNumber: 3, ParagraphIndexOnPage: 7}) {
			t.Fatalf("segment %d: unexpected provenance %+v", i, src)
		}
		offset += wantLens[i]
	}
	// 768 is not a multiple of 10, so the first cut lands mid-word.
	if !strings.HasSuffix(segs[0].Text, "abcdefgh") || !strings.HasPrefix(segs[1].Text, "ij") {
		t.Fatalf("expected raw character split, got %q | %q", segs[0].Text[760:], segs[1].Text[:4])
	}
}

func TestSegmentLongParagraphFlushesBuffer(t *testing.T) {
	segs := SegmentParagraphs([]Paragraph{
		para(1, 0, TypeNarration, "short"),
		para(1, 1, TypeDialogue, strings.Repeat("x", 25)),
		para(1, 2, TypeNarration, "tail"),
	}, 10)
	if len(segs) != 5 {
		t.Fatalf("expected 5 segments, got %d", len(segs))
	}
	if segs[0].Text != "short" || segs[4].Text != "tail" {
		t.Fatalf("unexpected outer segments %q, %q", segs[0].Text, segs[4].Text)
	}
	for i := 1; i <= 3; i++ {
		if segs[i].Type != TypeDialogue {
			t.Fatalf("segment %d: expected dialogue chunk, got %s", i, segs[i].Type)
		}
	}
}

func TestSegmentCountsCharactersNotBytes(t *testing.T) {
	segs := SegmentParagraphs([]Paragraph{
		para(1, 0, TypeNarration, "héllo"),
		para(1, 1, TypeNarration, "wörld"),
	}, 11)
	if len(segs) != 1 || segs[0].Text != "héllo wörld" {
		t.Fatalf("expected runes to be counted, got %+v", segs)
	}
}

func TestSegmentSplitKeepsInvalidUTF8Bytes(t *testing.T) {
	text := "aaaaa\xffbbbbbcc\u00e9"
	segs := SegmentParagraphs([]Paragraph{para(1, 0, TypeNarration, text)}, 5)
	if len(segs) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %+v", len(segs), segs)
	}
	var joined strings.Builder
	for _, seg := range segs {
		if seg.Len() > 5 {
			t.Fatalf("chunk %q exceeds 5 characters", seg.Text)
		}
		joined.WriteString(seg.Text)
	}
	if joined.String() != text {
		t.Fatalf("expected chunks to rejoin to %q, got %q", text, joined.String())
	}
	if segs[1].Text != "\xffbbbb" {
		t.Fatalf("expected the invalid byte to lead the second chunk, got %q", segs[1].Text)
	}
}

func TestSegmentContributionsCoverTrimmedText(t *testing.T) {
	segs := SegmentParagraphs([]Paragraph{
		para(1, 0, TypeNarration, "  first  "),
		para(1, 1, TypeDialogue, "\tsecond\n"),
	}, 64)
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %+v", segs)
	}
	for i, want := range []string{"first", "second"} {
		c := segs[i].Sources[0]
		if c.Text != want || c.Len() != len(want) {
			t.Fatalf("segment %d: expected trimmed contribution %q, got %q (len %d)", i, want, c.Text, c.Len())
		}
	}
}

func TestSegmentRejectsNonPositiveBudget(t *testing.T) {
	if segs := SegmentParagraphs([]Paragraph{para(1, 0, TypeNarration, "x")}, 0); segs != nil {
		t.Fatalf("expected nil, got %+v", segs)
	}
}

func TestSegmentProperties(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	types := []ParagraphType{TypeNarration, TypeNarration, TypeNarration, TypeDialogue, TypeEmphasis, TypeDivider}

	for round := 0; round < 200; round++ {
		maxChars := 20 + rng.IntN(80)
		var paragraphs []Paragraph
		for i := 0; i < 1+rng.IntN(25); i++ {
			typ := types[rng.IntN(len(types))]
			text := strings.Repeat("w", rng.IntN(3*maxChars))
			if rng.IntN(5) == 0 {
				text = " "
			}
			paragraphs = append(paragraphs, para(1, i, typ, text))
		}

		segs := SegmentParagraphs(paragraphs, maxChars)

		rebuilt := map[Ref]string{}
		var order []Ref
		for _, s := range segs {
			if s.Len() > maxChars {
				t.Fatalf("round %d: segment of %d chars exceeds %d", round, s.Len(), maxChars)
			}
			var joined strings.Builder
			for _, c := range s.Sources {
				joined.WriteString(c.Text)
				joined.WriteString(c.Separator)
				if _, ok := rebuilt[c.Ref]; !ok {
					order = append(order, c.Ref)
				}
				rebuilt[c.Ref] += c.Text
			}
			if joined.String() != s.Text {
				t.Fatalf("round %d: sources do not rebuild segment text", round)
			}
		}

		var expected []Ref
		for _, p := range paragraphs {
			if p.Type != TypeDivider && strings.TrimSpace(p.Text) == "" {
				continue
			}
			expected = append(expected, p.Ref)
			if p.Type != TypeDivider && rebuilt[p.Ref] != strings.TrimSpace(p.Text) {
				t.Fatalf("round %d: paragraph %v content not preserved", round, p.Ref)
			}
		}
		if len(order) != len(expected) {
			t.Fatalf("round %d: expected %d paragraphs, got %d", round, len(expected), len(order))
		}
		for i := range order {
			if order[i] != expected[i] {
				t.Fatalf("round %d: order mismatch at %d", round, i)
			}
		}

		// Adjacent unsplit narration segments could not have been joined.
		for i := 1; i < len(segs); i++ {
			prev, next := segs[i-1], segs[i]
			if prev.Type != TypeNarration || next.Type != TypeNarration {
				continue
			}
			if prev.Sources[0].Chunks > 1 || next.Sources[0].Chunks > 1 {
				continue
			}
			if prev.Len()+1+utf8.RuneCountInString(next.Sources[0].Text) <= maxChars {
				t.Fatalf("round %d: narration segments %d and %d should have been joined", round, i-1, i)
			}
		}
	}
}
