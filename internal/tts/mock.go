package tts

import (
	"context"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/loqalabs/loqa-reader/internal/apperr"
	"github.com/loqalabs/loqa-reader/internal/audio"
)

// MockSynth renders a quiet deterministic WAV whose length is proportional
// to the text, so the whole pipeline can run without a cloud engine.
type MockSynth struct {
	format    audio.Format
	msPerChar int
	encoder   audio.WAVEncoder
	calls     atomic.Int64
}

var mockVoices = []Voice{
	{Name: "en-US-Chirp3-HD-Aoede", LanguageCodes: []string{"en-US"}, SSMLGender: "FEMALE", NaturalSampleRateHertz: 24000},
	{Name: "en-US-Chirp3-HD-Charon", LanguageCodes: []string{"en-US"}, SSMLGender: "MALE", NaturalSampleRateHertz: 24000},
	{Name: "en-GB-Chirp3-HD-Kore", LanguageCodes: []string{"en-GB"}, SSMLGender: "FEMALE", NaturalSampleRateHertz: 24000},
	{Name: "de-DE-Chirp3-HD-Puck", LanguageCodes: []string{"de-DE"}, SSMLGender: "MALE", NaturalSampleRateHertz: 24000},
}

func NewMockSynth(sampleRate, channels, msPerChar int, scratchDir string) *MockSynth {
	if msPerChar <= 0 {
		msPerChar = 60
	}
	return &MockSynth{
		format:    audio.Format{SampleRate: sampleRate, Channels: channels, BitDepth: 16},
		msPerChar: msPerChar,
		encoder:   audio.WAVEncoder{ScratchDir: scratchDir},
	}
}

func (m *MockSynth) Synthesize(ctx context.Context, req Request) (Audio, error) {
	if err := ctx.Err(); err != nil {
		return Audio{}, apperr.Wrap(apperr.KindSynthesisUnavailable, "tts.mock", "synthesis cancelled", err)
	}
	if err := validateRequest("tts.mock", req); err != nil {
		return Audio{}, err
	}
	if strings.HasPrefix(req.Voice, "invalid") {
		return Audio{}, apperr.Newf(apperr.KindInvalidVoiceConfig, "tts.mock", "voice %q is not available for %s", req.Voice, req.Language)
	}
	m.calls.Add(1)

	chars := utf8.RuneCountInString(req.Text)
	clip := audio.Silence(m.format, float64(chars*m.msPerChar))
	for i := range clip.Samples {
		clip.Samples[i] = (i%64 - 32) * 8
	}
	data, err := m.encoder.Encode(clip)
	if err != nil {
		return Audio{}, apperr.Wrap(apperr.KindInternal, "tts.mock", "encode mock audio", err)
	}
	return Audio{Data: data, Encoding: audio.EncodingLinear16}, nil
}

// Calls reports how many requests reached the engine.
func (m *MockSynth) Calls() int64 {
	return m.calls.Load()
}

func (m *MockSynth) ListVoices(_ context.Context, languageCode string) ([]Voice, error) {
	return filterVoices(mockVoices, languageCode), nil
}

func filterVoices(voices []Voice, languageCode string) []Voice {
	if languageCode == "" {
		return append([]Voice(nil), voices...)
	}
	var out []Voice
	for _, v := range voices {
		for _, code := range v.LanguageCodes {
			if strings.EqualFold(code, languageCode) || strings.HasPrefix(strings.ToLower(code), strings.ToLower(languageCode)+"-") {
				out = append(out, v)
				break
			}
		}
	}
	return out
}
