package narration

import (
	"strings"
	"unicode/utf8"
)

const joinSeparator = " "

// SegmentParagraphs groups and splits paragraphs into engine-sized
// segments of at most maxChars characters, in input order.
//
// Consecutive narration paragraphs are joined greedily with a single
// space. Any other type flushes the pending narration and stands alone.
// A paragraph longer than maxChars is cut into fixed-size character
// chunks, which can split words.
//
// Paragraph text is trimmed of leading and trailing whitespace first, so
// a contribution's Text (and the chunks of a split paragraph) covers the
// trimmed text rather than the raw input.
func SegmentParagraphs(paragraphs []Paragraph, maxChars int) []Segment {
	if maxChars <= 0 {
		return nil
	}

	var (
		out    []Segment
		buf    []Contribution
		bufLen int
	)
	flush := func() {
		if len(buf) == 0 {
			return
		}
		buf[len(buf)-1].Separator = ""
		out = append(out, newSegment(TypeNarration, buf))
		buf = nil
		bufLen = 0
	}

	for _, p := range paragraphs {
		if p.Type == TypeDivider {
			flush()
			out = append(out, Segment{
				Type:    TypeDivider,
				Sources: []Contribution{{Ref: p.Ref, Chunks: 1}},
			})
			continue
		}

		text := strings.TrimSpace(p.Text)
		if text == "" {
			continue
		}
		n := utf8.RuneCountInString(text)

		if n > maxChars {
			flush()
			out = append(out, splitParagraph(p, text, maxChars)...)
			continue
		}

		if p.Type != TypeNarration {
			flush()
			out = append(out, newSegment(p.Type, []Contribution{{Ref: p.Ref, Text: text, Chunks: 1}}))
			continue
		}

		if len(buf) > 0 && bufLen+utf8.RuneCountInString(joinSeparator)+n > maxChars {
			flush()
		}
		if len(buf) > 0 {
			buf[len(buf)-1].Separator = joinSeparator
			bufLen += utf8.RuneCountInString(joinSeparator)
		}
		buf = append(buf, Contribution{Ref: p.Ref, Text: text, Chunks: 1})
		bufLen += n
	}
	flush()
	return out
}

// splitParagraph cuts text on rune boundaries by byte offset so the
// chunks rejoin to the exact input bytes, invalid UTF-8 included.
func splitParagraph(p Paragraph, text string, maxChars int) []Segment {
	chunks := (utf8.RuneCountInString(text) + maxChars - 1) / maxChars
	out := make([]Segment, 0, chunks)
	for i := 0; i < chunks; i++ {
		end := 0
		for n := 0; n < maxChars && end < len(text); n++ {
			_, size := utf8.DecodeRuneInString(text[end:])
			end += size
		}
		out = append(out, newSegment(p.Type, []Contribution{{
			Ref:    p.Ref,
			Text:   text[:end],
			Chunk:  i,
			Chunks: chunks,
		}}))
		text = text[end:]
	}
	return out
}

func newSegment(typ ParagraphType, sources []Contribution) Segment {
	var b strings.Builder
	for _, c := range sources {
		b.WriteString(c.Text)
		b.WriteString(c.Separator)
	}
	return Segment{Text: b.String(), Type: typ, Sources: sources}
}
