package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Encoder serializes a rendered clip.
type Encoder interface {
	Encode(c Clip) ([]byte, error)
	MIMEType() string
}

const wavPCMFormat = 1

// WAVEncoder writes PCM WAV. The go-audio encoder needs a seekable writer,
// so output goes through a temp file in ScratchDir that is removed before
// Encode returns.
type WAVEncoder struct {
	ScratchDir string
}

func (WAVEncoder) MIMEType() string { return "audio/wav" }

func (e WAVEncoder) Encode(c Clip) (out []byte, err error) {
	if !c.Format.valid() {
		return nil, fmt.Errorf("cannot encode clip with format %s", c.Format)
	}

	f, err := os.CreateTemp(e.ScratchDir, "loqa-reader-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create scratch file: %w", err)
	}
	defer func() {
		closeErr := f.Close()
		removeErr := os.Remove(f.Name())
		if err == nil {
			err = errors.Join(closeErr, removeErr)
			if err != nil {
				out = nil
			}
		}
	}()

	enc := wav.NewEncoder(f, c.Format.SampleRate, c.Format.BitDepth, c.Format.Channels, wavPCMFormat)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: c.Format.Channels,
			SampleRate:  c.Format.SampleRate,
		},
		Data:           c.Samples,
		SourceBitDepth: c.Format.BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("write wav samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize wav: %w", err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind scratch file: %w", err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read scratch file: %w", err)
	}
	return data, nil
}
