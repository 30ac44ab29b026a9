package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// Decoder turns encoded engine output into PCM clips. RawFormat is used for
// LINEAR16 payloads that arrive without a WAV header.
type Decoder struct {
	RawFormat Format
}

func (d Decoder) Decode(encoding Encoding, data []byte) (Clip, error) {
	if len(data) == 0 {
		return Clip{}, errors.New("empty audio payload")
	}
	switch encoding {
	case EncodingLinear16:
		if bytes.HasPrefix(data, []byte("RIFF")) {
			return decodeWAV(data)
		}
		return d.decodeRawPCM(data)
	case EncodingMP3:
		return decodeMP3(data)
	default:
		return Clip{}, fmt.Errorf("unsupported audio encoding %q", encoding)
	}
}

func decodeWAV(data []byte) (Clip, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Clip{}, errors.New("invalid wav payload")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("decode wav: %w", err)
	}
	format := Format{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	if !format.valid() {
		return Clip{}, fmt.Errorf("invalid wav format %s", format)
	}
	return Clip{Format: format, Samples: buf.Data}, nil
}

func (d Decoder) decodeRawPCM(data []byte) (Clip, error) {
	format := d.RawFormat
	if format.BitDepth == 0 {
		format.BitDepth = 16
	}
	if !format.valid() {
		return Clip{}, errors.New("raw pcm payload without a configured format")
	}
	if format.BitDepth != 16 {
		return Clip{}, fmt.Errorf("raw pcm supports 16-bit samples only, got %d", format.BitDepth)
	}
	return Clip{Format: format, Samples: pcm16ToInts(data)}, nil
}

// decodeMP3 always yields 16-bit stereo; go-mp3 upmixes mono streams.
func decodeMP3(data []byte) (Clip, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return Clip{}, fmt.Errorf("open mp3: %w", err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return Clip{}, fmt.Errorf("decode mp3: %w", err)
	}
	format := Format{SampleRate: dec.SampleRate(), Channels: 2, BitDepth: 16}
	return Clip{Format: format, Samples: pcm16ToInts(pcm)}, nil
}

func pcm16ToInts(pcm []byte) []int {
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}
	return samples
}
