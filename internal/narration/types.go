// Package narration turns a page of annotated paragraphs into one merged
// audio track plus per-paragraph timing for read-along highlighting.
//
// Timing is estimated: when the engine supplies no native timepoints each
// paragraph's span is proportional to its share of the segment's
// characters. It is not word-accurate.
package narration

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

type ParagraphType string

const (
	TypeNarration ParagraphType = "narration"
	TypeDialogue  ParagraphType = "dialogue"
	TypeEmphasis  ParagraphType = "emphasis"
	TypeDivider   ParagraphType = "divider"
)

// ParseParagraphType accepts the wire names used by reader clients. An
// empty value means narration; "italicised" is the client's name for
// emphasis.
func ParseParagraphType(s string) (ParagraphType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "narration":
		return TypeNarration, nil
	case "dialogue":
		return TypeDialogue, nil
	case "emphasis", "italicised", "italicized":
		return TypeEmphasis, nil
	case "divider":
		return TypeDivider, nil
	default:
		return "", fmt.Errorf("unknown paragraph type %q", s)
	}
}

// Ref identifies a paragraph within one request. Both numbers are opaque.
type Ref struct {
	PageNumber           int
	ParagraphIndexOnPage int
}

func (r Ref) String() string {
	return fmt.Sprintf("p%d#%d", r.PageNumber, r.ParagraphIndexOnPage)
}

type Paragraph struct {
	Ref
	Text string
	Type ParagraphType
}

// Contribution is the part of one paragraph carried by a segment.
// Separator holds the joining characters that follow Text inside the
// segment; they are counted toward this contribution's share of time.
// Text is whitespace-trimmed, so contribution lengths sum to the trimmed
// paragraph length plus separators, not to the raw paragraph length.
type Contribution struct {
	Ref       Ref
	Text      string
	Separator string
	Chunk     int
	Chunks    int
}

// Len is the contribution's length in characters, separator included.
func (c Contribution) Len() int {
	return utf8.RuneCountInString(c.Text) + utf8.RuneCountInString(c.Separator)
}

// Segment is one unit of text sent to the engine. Divider segments carry
// no text.
type Segment struct {
	Text    string
	Type    ParagraphType
	Sources []Contribution
}

// Len is the segment's length in characters.
func (s Segment) Len() int {
	return utf8.RuneCountInString(s.Text)
}

// Timestamp locates one paragraph in the merged track.
type Timestamp struct {
	PageNumber           int `json:"pageNumber"`
	ParagraphIndexOnPage int `json:"paragraphIndexOnPage"`
	StartMs              int `json:"startMs"`
	EndMs                int `json:"endMs"`
}
