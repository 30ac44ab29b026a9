package tts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/loqalabs/loqa-reader/internal/apperr"
	"github.com/loqalabs/loqa-reader/internal/audio"
	"github.com/mattn/go-shellwords"
)

// ExecSynth runs an external command per request. The command receives one
// JSON request on stdin and answers with JSON lines on stdout; audio from
// all lines is concatenated in order.
type ExecSynth struct {
	cmd        []string
	encoding   audio.Encoding
	sampleRate int
	channels   int
	mu         sync.Mutex
}

type execRequest struct {
	Text         string `json:"text"`
	Voice        string `json:"voice"`
	LanguageCode string `json:"language_code"`
	Encoding     string `json:"encoding"`
	SampleRate   int    `json:"sample_rate"`
	Channels     int    `json:"channels"`
}

type execResponse struct {
	AudioBase64 string      `json:"audio_base64"`
	Encoding    string      `json:"encoding,omitempty"`
	Timepoints  []Timepoint `json:"timepoints,omitempty"`
	Error       string      `json:"error,omitempty"`
	Message     string      `json:"message,omitempty"`
	Final       bool        `json:"final"`
}

const execErrInvalidVoice = "invalid_voice"

func NewExecSynth(command string, encoding audio.Encoding, sampleRate, channels int) (*ExecSynth, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &ExecSynth{cmd: args, encoding: encoding, sampleRate: sampleRate, channels: channels}, nil
}

func (e *ExecSynth) Synthesize(ctx context.Context, req Request) (Audio, error) {
	const op = "tts.exec"
	if err := validateRequest(op, req); err != nil {
		return Audio{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	data, err := json.Marshal(execRequest{
		Text:         req.Text,
		Voice:        req.Voice,
		LanguageCode: req.Language,
		Encoding:     string(e.encoding),
		SampleRate:   e.sampleRate,
		Channels:     e.channels,
	})
	if err != nil {
		return Audio{}, apperr.Wrap(apperr.KindInternal, op, "encode request", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Audio{}, apperr.Wrap(apperr.KindSynthesisUnavailable, op,
			fmt.Sprintf("tts command failed: %s", bytes.TrimSpace(stderr.Bytes())), err)
	}

	out := Audio{Encoding: e.encoding}
	scanner := bufio.NewScanner(&stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 32*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp execResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			return Audio{}, apperr.Wrap(apperr.KindSynthesisUnavailable, op, "malformed tts command output", err)
		}
		if resp.Error != "" {
			kind := apperr.KindSynthesisUnavailable
			if resp.Error == execErrInvalidVoice {
				kind = apperr.KindInvalidVoiceConfig
			}
			msg := resp.Message
			if msg == "" {
				msg = resp.Error
			}
			return Audio{}, apperr.New(kind, op, msg)
		}
		chunk, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
		if err != nil {
			return Audio{}, apperr.Wrap(apperr.KindSynthesisUnavailable, op, "malformed audio payload", err)
		}
		if resp.Encoding != "" {
			enc, err := audio.ParseEncoding(resp.Encoding)
			if err != nil {
				return Audio{}, apperr.Wrap(apperr.KindSynthesisUnavailable, op, "unsupported audio encoding", err)
			}
			out.Encoding = enc
		}
		out.Data = append(out.Data, chunk...)
		out.Timepoints = append(out.Timepoints, resp.Timepoints...)
		if resp.Final {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return Audio{}, apperr.Wrap(apperr.KindSynthesisUnavailable, op, "read tts command output", err)
	}
	if len(out.Data) == 0 {
		return Audio{}, apperr.New(apperr.KindSynthesisUnavailable, op, "tts command produced no audio")
	}
	return out, nil
}
