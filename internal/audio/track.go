package audio

import "fmt"

type trackPart struct {
	clip      Clip
	silenceMs float64
	silence   bool
}

// Track accumulates clips and silences in order. Every appended clip must
// share the format of the first one; silence adopts the track format when
// rendered.
type Track struct {
	fallback   Format
	format     Format
	hasFormat  bool
	parts      []trackPart
	durationMs float64
}

// NewTrack creates an empty track. fallback is the format used when the
// track never receives a decoded clip (silence only).
func NewTrack(fallback Format) *Track {
	if fallback.BitDepth == 0 {
		fallback.BitDepth = 16
	}
	return &Track{fallback: fallback}
}

func (t *Track) Append(c Clip) error {
	if !c.Format.valid() {
		return fmt.Errorf("clip has invalid format %s", c.Format)
	}
	if t.hasFormat && c.Format != t.format {
		return fmt.Errorf("clip format %s does not match track format %s", c.Format, t.format)
	}
	if !t.hasFormat {
		t.format = c.Format
		t.hasFormat = true
	}
	t.parts = append(t.parts, trackPart{clip: c})
	t.durationMs += c.DurationMs()
	return nil
}

func (t *Track) AppendSilence(ms float64) {
	if ms <= 0 {
		return
	}
	t.parts = append(t.parts, trackPart{silence: true, silenceMs: ms})
	t.durationMs += ms
}

// DurationMs is the exact sum of all appended parts.
func (t *Track) DurationMs() float64 {
	return t.durationMs
}

func (t *Track) Len() int {
	return len(t.parts)
}

func (t *Track) Format() Format {
	if t.hasFormat {
		return t.format
	}
	return t.fallback
}

// Render concatenates every part into a single clip.
func (t *Track) Render() Clip {
	format := t.Format()
	total := 0
	for _, p := range t.parts {
		if p.silence {
			total += silenceFrames(format, p.silenceMs) * format.Channels
			continue
		}
		total += len(p.clip.Samples)
	}

	samples := make([]int, 0, total)
	for _, p := range t.parts {
		if p.silence {
			samples = append(samples, make([]int, silenceFrames(format, p.silenceMs)*format.Channels)...)
			continue
		}
		samples = append(samples, p.clip.Samples...)
	}
	return Clip{Format: format, Samples: samples}
}
