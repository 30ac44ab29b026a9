// Package httpapi exposes the reader backend over HTTP.
package httpapi

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/loqa-reader/internal/docs"
	"github.com/loqalabs/loqa-reader/internal/jobs"
	"github.com/loqalabs/loqa-reader/internal/narration"
	"github.com/loqalabs/loqa-reader/internal/protocol"
	"github.com/loqalabs/loqa-reader/internal/tts"
)

// Narrator is the narration pipeline as seen by the handlers.
type Narrator interface {
	Run(ctx context.Context, req narration.Request) (narration.Result, error)
	RunChapter(ctx context.Context, req narration.ChapterRequest) ([]narration.PageResult, error)
}

type LibraryService interface {
	Library(ctx context.Context, id string) (docs.Library, error)
}

type JobRunner interface {
	Submit(ctx context.Context, kind string, fn jobs.Func) (jobs.Job, error)
	Get(ctx context.Context, id string) (jobs.Job, error)
	Result(ctx context.Context, id string) (any, jobs.Job, error)
}

// PageEvents receives one event per narrated page of a background job.
type PageEvents interface {
	PublishPageNarrated(ctx context.Context, evt protocol.PageNarrated) error
}

type Options struct {
	APIKey         string
	CORSOrigins    []string
	RequestTimeout time.Duration
	Debug          bool
}

// Deps are the collaborators behind the routes. Library, Voices, Jobs,
// Events and Metrics may be nil; their routes then answer 404 or 501.
type Deps struct {
	Narrator Narrator
	Synth    tts.Synthesizer
	Voices   tts.VoiceLister
	Library  LibraryService
	Jobs     JobRunner
	Events   PageEvents
	Metrics  http.Handler
	Ready    func() bool
}

type Server struct {
	opts   Options
	deps   Deps
	logger *slog.Logger
	tracer trace.Tracer
}

// NewRouter builds a gin engine with recovery, access logging, tracing
// and CORS, plus every route of the reader API.
func NewRouter(opts Options, deps Deps, logger *slog.Logger) *gin.Engine {
	switch {
	case gin.Mode() == gin.TestMode:
	case opts.Debug:
		gin.SetMode(gin.DebugMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		opts:   opts,
		deps:   deps,
		logger: logger.With(slog.String("component", "http")),
		tracer: otel.Tracer("github.com/loqalabs/loqa-reader/internal/httpapi"),
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(s.loggingMiddleware())
	engine.Use(s.tracingMiddleware())
	engine.Use(cors.New(corsConfig(opts.CORSOrigins)))

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/readyz", s.handleReady)
	if deps.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	api := engine.Group("")
	api.Use(s.apiKeyMiddleware())
	if opts.RequestTimeout > 0 {
		api.Use(timeoutMiddleware(opts.RequestTimeout))
	}
	api.GET("/get-doc-content", s.handleDocContent)
	api.GET("/get-google-tts-voices", s.handleVoices)
	api.POST("/synthesize-speech", s.handleSynthesizeSpeech)
	api.POST("/synthesize-page", s.handleSynthesizePage)
	api.POST("/synthesize-chapter-audio", s.handleSynthesizeChapter)
	api.POST("/jobs/chapter-audio", s.handleSubmitChapterJob)
	api.GET("/jobs/:id", s.handleJobStatus)
	api.GET("/jobs/:id/result", s.handleJobResult)

	return engine
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "X-API-Key"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	}
	return cfg
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.logger.Log(c.Request.Context(), level, "http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
			slog.String("client_ip", c.ClientIP()))
	}
}

func (s *Server) tracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		ctx, span := s.tracer.Start(c.Request.Context(), "http "+c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("http.route", route)))
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(otelcodes.Error, http.StatusText(status))
		}
	}
}

// apiKeyMiddleware compares X-API-Key with the configured key. A server
// without a key refuses every protected request.
func (s *Server) apiKeyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.opts.APIKey == "" {
			s.logger.Error("server api key is not configured")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Server configuration error: API key not set."})
			return
		}
		if subtle.ConstantTimeCompare([]byte(c.GetHeader("X-API-Key")), []byte(s.opts.APIKey)) != 1 {
			s.logger.Warn("unauthorized request", slog.String("path", c.Request.URL.Path), slog.String("client_ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized access. Invalid API Key."})
			return
		}
		c.Next()
	}
}

func timeoutMiddleware(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleReady(c *gin.Context) {
	if s.deps.Ready != nil && !s.deps.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
