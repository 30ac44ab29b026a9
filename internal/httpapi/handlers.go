package httpapi

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/loqalabs/loqa-reader/internal/apperr"
	"github.com/loqalabs/loqa-reader/internal/jobs"
	"github.com/loqalabs/loqa-reader/internal/narration"
	"github.com/loqalabs/loqa-reader/internal/protocol"
	"github.com/loqalabs/loqa-reader/internal/tts"
)

const chapterJobKind = "chapter-audio"

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidVoiceConfig:
		return http.StatusUnprocessableEntity
	case apperr.KindSynthesisUnavailable:
		return http.StatusServiceUnavailable
	case apperr.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error": message}. Internal causes are logged
// and never leave the process.
func (s *Server) respondError(c *gin.Context, err error, extra gin.H) {
	kind := apperr.KindOf(err)
	msg := apperr.Message(err)
	if kind == apperr.KindInternal {
		s.logger.Error("request failed", slog.String("path", c.Request.URL.Path), slog.String("error", err.Error()))
		msg = "internal error"
	}
	body := gin.H{"error": msg, "errorKind": string(kind)}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(statusFor(kind), body)
}

func (s *Server) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		s.respondError(c, apperr.Wrap(apperr.KindValidation, "http.decode", "Request must be valid JSON", err), nil)
		return false
	}
	return true
}

func (s *Server) handleDocContent(c *gin.Context) {
	if s.deps.Library == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "document service is not configured"})
		return
	}
	lib, err := s.deps.Library.Library(c.Request.Context(), c.Query("documentId"))
	if err != nil {
		s.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, lib)
}

func (s *Server) handleVoices(c *gin.Context) {
	if s.deps.Voices == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "voice listing is not supported by this engine"})
		return
	}
	voices, err := s.deps.Voices.ListVoices(c.Request.Context(), c.Query("languageCode"))
	if err != nil {
		s.respondError(c, err, nil)
		return
	}
	if voices == nil {
		voices = []tts.Voice{}
	}
	c.JSON(http.StatusOK, gin.H{"voices": voices})
}

func (s *Server) handleSynthesizeSpeech(c *gin.Context) {
	var req synthesizeSpeechRequest
	if !s.bind(c, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" || req.VoiceName == "" || req.LanguageCode == "" {
		s.respondError(c, apperr.New(apperr.KindValidation, "http.synthesize_speech",
			"Missing required parameters: text, voiceName, or languageCode"), nil)
		return
	}
	out, err := s.deps.Synth.Synthesize(c.Request.Context(), tts.Request{
		Text:     req.Text,
		Voice:    req.VoiceName,
		Language: req.LanguageCode,
	})
	if err != nil {
		s.respondError(c, err, gin.H{"success": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"audioContent": base64.StdEncoding.EncodeToString(out.Data),
		"format":       out.Encoding.MIMEType(),
	})
}

func (s *Server) handleSynthesizePage(c *gin.Context) {
	var req synthesizePageRequest
	if !s.bind(c, &req) {
		return
	}
	failed := gin.H{"audioContent": nil, "timestamps": []narration.Timestamp{}}
	paragraphs, err := toParagraphs(req.Paragraphs)
	if err != nil {
		s.respondError(c, err, failed)
		return
	}
	res, err := s.deps.Narrator.Run(c.Request.Context(), narration.Request{
		Paragraphs:            paragraphs,
		Voice:                 req.VoiceName,
		Language:              req.LanguageCode,
		MaxChars:              req.MaxChars,
		InterSegmentSilenceMs: req.InterSegmentSilenceMs,
	})
	if err != nil {
		s.respondError(c, err, failed)
		return
	}
	c.JSON(http.StatusOK, newPageResponse(res))
}

func (s *Server) chapterRequest(c *gin.Context) (synthesizeChapterRequest, narration.ChapterRequest, bool) {
	var body synthesizeChapterRequest
	if !s.bind(c, &body) {
		return body, narration.ChapterRequest{}, false
	}
	paragraphs, err := toParagraphs(body.ChapterParagraphs)
	if err != nil {
		s.respondError(c, err, nil)
		return body, narration.ChapterRequest{}, false
	}
	if body.VoiceName == "" || body.LanguageCode == "" {
		s.respondError(c, apperr.New(apperr.KindValidation, "http.chapter", "voiceName and languageCode are required"), nil)
		return body, narration.ChapterRequest{}, false
	}
	return body, narration.ChapterRequest{
		Paragraphs:            paragraphs,
		Voice:                 body.VoiceName,
		Language:              body.LanguageCode,
		MaxChars:              body.MaxChars,
		InterSegmentSilenceMs: body.InterSegmentSilenceMs,
	}, true
}

func (s *Server) handleSynthesizeChapter(c *gin.Context) {
	body, req, ok := s.chapterRequest(c)
	if !ok {
		return
	}
	pages, err := s.deps.Narrator.RunChapter(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, newChapterResponse(body.DocumentID, body.ChapterID, pages))
}

func (s *Server) handleSubmitChapterJob(c *gin.Context) {
	if s.deps.Jobs == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "background jobs are not enabled"})
		return
	}
	body, req, ok := s.chapterRequest(c)
	if !ok {
		return
	}

	narrator := s.deps.Narrator
	job, err := s.deps.Jobs.Submit(c.Request.Context(), chapterJobKind,
		func(ctx context.Context, id string, report func(int, string)) (any, error) {
			req.Progress = report
			pages, err := narrator.RunChapter(ctx, req)
			if err != nil {
				return nil, err
			}
			s.publishPages(ctx, id, pages)
			return newChapterResponse(body.DocumentID, body.ChapterID, pages), nil
		})
	if err != nil {
		s.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"jobId": job.ID, "status": string(job.Status)})
}

// publishPages is best effort; a bus failure never fails the job.
func (s *Server) publishPages(ctx context.Context, jobID string, pages []narration.PageResult) {
	if s.deps.Events == nil {
		return
	}
	for _, page := range pages {
		evt := protocol.PageNarrated{
			JobID:      jobID,
			PageNumber: page.PageNumber,
			DurationMs: page.Result.DurationMs,
		}
		if page.Err != nil {
			evt.Error = apperr.Message(page.Err)
		}
		if err := s.deps.Events.PublishPageNarrated(ctx, evt); err != nil {
			s.logger.Warn("failed to publish page event",
				slog.String("job_id", jobID),
				slog.Int("page", page.PageNumber),
				slog.String("error", err.Error()))
		}
	}
}

func jobView(job jobs.Job) jobResponse {
	return jobResponse{
		JobID:     job.ID,
		Status:    string(job.Status),
		Percent:   job.Percent,
		Message:   job.Message,
		Error:     job.Error,
		ErrorKind: job.ErrorKind,
	}
}

func (s *Server) handleJobStatus(c *gin.Context) {
	if s.deps.Jobs == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "background jobs are not enabled"})
		return
	}
	job, err := s.deps.Jobs.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, jobs.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if err != nil {
		s.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, jobView(job))
}

func (s *Server) handleJobResult(c *gin.Context) {
	if s.deps.Jobs == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "background jobs are not enabled"})
		return
	}
	result, job, err := s.deps.Jobs.Result(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found or expired"})
		return
	case errors.Is(err, jobs.ErrNotReady):
		c.JSON(http.StatusConflict, jobView(job))
		return
	case err != nil:
		s.respondError(c, err, nil)
		return
	}
	if job.Status == jobs.StatusFailed {
		kind := apperr.Kind(job.ErrorKind)
		c.JSON(statusFor(kind), gin.H{"jobId": job.ID, "error": job.Error, "errorKind": job.ErrorKind})
		return
	}
	c.JSON(http.StatusOK, result)
}
