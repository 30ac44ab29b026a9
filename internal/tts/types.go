package tts

import (
	"context"
	"log/slog"
	"strings"

	"github.com/loqalabs/loqa-reader/internal/apperr"
	"github.com/loqalabs/loqa-reader/internal/audio"
)

// Request contains parameters to synthesize speech. It carries no page or
// paragraph identity: text in, audio out.
type Request struct {
	Text     string
	Voice    string
	Language string
}

// Timepoint anchors a character offset of Request.Text (in runes) to a
// position in the synthesized audio.
type Timepoint struct {
	Offset int     `json:"offset"`
	Ms     float64 `json:"ms"`
}

// Audio is one encoded engine response.
type Audio struct {
	Data       []byte
	Encoding   audio.Encoding
	Timepoints []Timepoint
}

// Synthesizer is the contract for producing audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (Audio, error)
}

// Voice describes a voice offered by an engine.
type Voice struct {
	Name                   string   `json:"name"`
	LanguageCodes          []string `json:"languageCodes"`
	SSMLGender             string   `json:"ssmlGender"`
	NaturalSampleRateHertz int      `json:"naturalSampleRateHertz"`
}

// VoiceLister is implemented by engines that can enumerate their voices.
type VoiceLister interface {
	ListVoices(ctx context.Context, languageCode string) ([]Voice, error)
}

func validateRequest(op string, req Request) error {
	if strings.TrimSpace(req.Text) == "" {
		return apperr.New(apperr.KindValidation, op, "text must not be empty")
	}
	if strings.TrimSpace(req.Voice) == "" || strings.TrimSpace(req.Language) == "" {
		return apperr.New(apperr.KindInvalidVoiceConfig, op, "voice and language are required")
	}
	return nil
}

func slogError(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}
