// Package audio decodes synthesized clips into PCM, concatenates them with
// generated silence and encodes the merged track.
package audio

import (
	"fmt"
	"math"
	"strings"
)

// Encoding names the container/codec of encoded audio bytes.
type Encoding string

const (
	// EncodingLinear16 is 16-bit PCM, normally wrapped in a WAV header.
	EncodingLinear16 Encoding = "LINEAR16"
	EncodingMP3      Encoding = "MP3"
)

func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(strings.ToUpper(strings.TrimSpace(s))) {
	case EncodingLinear16, "WAV":
		return EncodingLinear16, nil
	case EncodingMP3:
		return EncodingMP3, nil
	default:
		return "", fmt.Errorf("unsupported audio encoding %q", s)
	}
}

// MIMEType is the media type of a single engine response in this encoding.
func (e Encoding) MIMEType() string {
	if e == EncodingMP3 {
		return "audio/mpeg"
	}
	return "audio/wav"
}

// Format describes interleaved integer PCM.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

func (f Format) valid() bool {
	return f.SampleRate > 0 && f.Channels > 0 && f.BitDepth > 0
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%dbit", f.SampleRate, f.Channels, f.BitDepth)
}

// Clip is a decoded run of interleaved samples.
type Clip struct {
	Format  Format
	Samples []int
}

// Frames returns the number of sample frames (one sample per channel).
func (c Clip) Frames() int {
	if c.Format.Channels <= 0 {
		return 0
	}
	return len(c.Samples) / c.Format.Channels
}

func (c Clip) DurationMs() float64 {
	if c.Format.SampleRate <= 0 {
		return 0
	}
	return float64(c.Frames()) * 1000 / float64(c.Format.SampleRate)
}

// Silence returns a zero-valued clip of roughly ms milliseconds,
// rounded to the nearest frame.
func Silence(format Format, ms float64) Clip {
	frames := silenceFrames(format, ms)
	return Clip{Format: format, Samples: make([]int, frames*format.Channels)}
}

func silenceFrames(format Format, ms float64) int {
	if ms <= 0 || format.SampleRate <= 0 {
		return 0
	}
	return int(math.Round(ms * float64(format.SampleRate) / 1000))
}
