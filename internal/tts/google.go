package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/loqalabs/loqa-reader/internal/apperr"
	"github.com/loqalabs/loqa-reader/internal/audio"
)

// GoogleOptions configures the Cloud Text-to-Speech engine.
type GoogleOptions struct {
	CredentialsJSON string
	CredentialsFile string
	Encoding        audio.Encoding
	SampleRate      int
	SpeakingRate    float64
}

// speechAPI is the subset of the Cloud TTS client used here.
type speechAPI interface {
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error)
	ListVoices(ctx context.Context, req *texttospeechpb.ListVoicesRequest) (*texttospeechpb.ListVoicesResponse, error)
	Close() error
}

type cloudClient struct {
	c *texttospeech.Client
}

func (c cloudClient) SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error) {
	return c.c.SynthesizeSpeech(ctx, req)
}

func (c cloudClient) ListVoices(ctx context.Context, req *texttospeechpb.ListVoicesRequest) (*texttospeechpb.ListVoicesResponse, error) {
	return c.c.ListVoices(ctx, req)
}

func (c cloudClient) Close() error { return c.c.Close() }

// GoogleSynth synthesizes through Google Cloud Text-to-Speech.
type GoogleSynth struct {
	api    speechAPI
	opts   GoogleOptions
	logger *slog.Logger
}

func NewGoogleSynth(ctx context.Context, opts GoogleOptions, logger *slog.Logger) (*GoogleSynth, error) {
	var clientOpts []option.ClientOption
	switch {
	case opts.CredentialsJSON != "":
		clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(opts.CredentialsJSON)))
	case opts.CredentialsFile != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	client, err := texttospeech.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create text-to-speech client: %w", err)
	}
	return newGoogleSynth(cloudClient{c: client}, opts, logger), nil
}

func newGoogleSynth(api speechAPI, opts GoogleOptions, logger *slog.Logger) *GoogleSynth {
	if opts.Encoding == "" {
		opts.Encoding = audio.EncodingLinear16
	}
	return &GoogleSynth{
		api:    api,
		opts:   opts,
		logger: logger.With(slog.String("component", "tts-google")),
	}
}

func (g *GoogleSynth) Synthesize(ctx context.Context, req Request) (Audio, error) {
	const op = "tts.google"
	if err := validateRequest(op, req); err != nil {
		return Audio{}, err
	}

	audioConfig := &texttospeechpb.AudioConfig{
		AudioEncoding: googleEncoding(g.opts.Encoding),
		SpeakingRate:  g.opts.SpeakingRate,
	}
	if g.opts.Encoding == audio.EncodingLinear16 && g.opts.SampleRate > 0 {
		audioConfig.SampleRateHertz = int32(g.opts.SampleRate)
	}

	resp, err := g.api.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: req.Text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: req.Language,
			Name:         req.Voice,
		},
		AudioConfig: audioConfig,
	})
	if err != nil {
		mapped := mapGoogleError(op, err)
		g.logger.Warn("synthesis failed",
			slog.String("voice", req.Voice),
			slog.String("language", req.Language),
			slog.String("kind", string(apperr.KindOf(mapped))),
			slogError(err))
		return Audio{}, mapped
	}
	if len(resp.GetAudioContent()) == 0 {
		return Audio{}, apperr.New(apperr.KindSynthesisUnavailable, op, "engine returned empty audio")
	}
	return Audio{Data: resp.GetAudioContent(), Encoding: g.opts.Encoding}, nil
}

func (g *GoogleSynth) ListVoices(ctx context.Context, languageCode string) ([]Voice, error) {
	resp, err := g.api.ListVoices(ctx, &texttospeechpb.ListVoicesRequest{LanguageCode: languageCode})
	if err != nil {
		return nil, mapGoogleError("tts.google.voices", err)
	}
	voices := make([]Voice, 0, len(resp.GetVoices()))
	for _, v := range resp.GetVoices() {
		voices = append(voices, Voice{
			Name:                   v.GetName(),
			LanguageCodes:          v.GetLanguageCodes(),
			SSMLGender:             v.GetSsmlGender().String(),
			NaturalSampleRateHertz: int(v.GetNaturalSampleRateHertz()),
		})
	}
	return voices, nil
}

func (g *GoogleSynth) Close() error {
	return g.api.Close()
}

func googleEncoding(enc audio.Encoding) texttospeechpb.AudioEncoding {
	if enc == audio.EncodingMP3 {
		return texttospeechpb.AudioEncoding_MP3
	}
	return texttospeechpb.AudioEncoding_LINEAR16
}

// mapGoogleError folds gRPC status codes into the synthesis taxonomy. The
// engine answers InvalidArgument for unknown voices and voice/language
// mismatches.
func mapGoogleError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.KindSynthesisUnavailable, op, "synthesis timed out", err)
	}
	switch status.Code(err) {
	case codes.InvalidArgument, codes.NotFound, codes.FailedPrecondition:
		msg := "voice configuration rejected"
		if s, ok := status.FromError(err); ok && strings.TrimSpace(s.Message()) != "" {
			msg = s.Message()
		}
		return apperr.Wrap(apperr.KindInvalidVoiceConfig, op, msg, err)
	default:
		return apperr.Wrap(apperr.KindSynthesisUnavailable, op, "text-to-speech engine unavailable", err)
	}
}
