package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-reader/internal/audio"
	"github.com/loqalabs/loqa-reader/internal/bus"
	"github.com/loqalabs/loqa-reader/internal/config"
	"github.com/loqalabs/loqa-reader/internal/docs"
	"github.com/loqalabs/loqa-reader/internal/httpapi"
	"github.com/loqalabs/loqa-reader/internal/jobs"
	"github.com/loqalabs/loqa-reader/internal/narration"
	"github.com/loqalabs/loqa-reader/internal/natsserver"
	"github.com/loqalabs/loqa-reader/internal/tts"
)

const pruneInterval = time.Minute

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	handler     http.Handler
	telemetry   *telemetry
	natsServer  *natsserver.EmbeddedServer
	bus         *bus.Client
	engine      io.Closer
	store       jobs.Store
	runner      *jobs.Runner
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Ready reports whether the runtime is serving and, when the bus is
// enabled, still connected to it.
func (r *Runtime) Ready() bool {
	if !r.ready.Load() {
		return false
	}
	return r.bus == nil || r.bus.Healthy()
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := r.build(ctx); err != nil {
		r.shutdown()
		return err
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
			cancel()
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.pruneLoop(ctx)
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr), slog.String("tts_mode", r.cfg.TTS.Mode))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)
	r.shutdown()
	r.wg.Wait()
	return nil
}

// build wires every component in dependency order. Components created
// before a failure are released by shutdown.
func (r *Runtime) build(ctx context.Context) error {
	tel, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.telemetry = tel

	if err := r.connectBus(ctx); err != nil {
		return err
	}

	synth, voices, err := r.buildSynthesizer(ctx)
	if err != nil {
		return err
	}

	narrationCfg := r.cfg.Narration
	pipeline, err := narration.New(synth, audio.WAVEncoder{ScratchDir: narrationCfg.ScratchDir}, narration.Options{
		MaxChars:              narrationCfg.MaxChars,
		InterSegmentSilenceMs: narrationCfg.InterSegmentSilenceMS,
		DividerSilenceMs:      narrationCfg.DividerSilenceMS,
		Concurrency:           narrationCfg.SynthesisConcurrency,
		Format: audio.Format{
			SampleRate: r.cfg.TTS.SampleRate,
			Channels:   r.cfg.TTS.Channels,
			BitDepth:   16,
		},
	}, r.logger)
	if err != nil {
		return fmt.Errorf("failed to create narration pipeline: %w", err)
	}

	var library httpapi.LibraryService
	if r.cfg.Docs.Enabled {
		fetcher, err := docs.NewGoogleFetcher(ctx, docs.Credentials{
			JSON: r.cfg.Google.CredentialsJSON,
			File: r.cfg.Google.CredentialsFile,
		}, r.logger)
		if err != nil {
			return fmt.Errorf("failed to create docs fetcher: %w", err)
		}
		library = docs.NewService(fetcher, r.cfg.Server.DefaultDocumentID, r.logger)
	}

	store, err := jobs.NewStore(ctx, r.cfg.Jobs, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open job store: %w", err)
	}
	r.store = store

	var (
		publisher jobs.StatusPublisher
		events    httpapi.PageEvents
	)
	if r.bus != nil {
		publisher = r.bus
		events = r.bus
	}
	runner, err := jobs.NewRunner(store, publisher, jobs.RunnerOptions{
		Workers:    r.cfg.Jobs.Workers,
		MaxResults: r.cfg.Jobs.MaxResults,
		TTL:        time.Duration(r.cfg.Jobs.TTLMS) * time.Millisecond,
	}, r.logger)
	if err != nil {
		return fmt.Errorf("failed to create job runner: %w", err)
	}
	r.runner = runner

	deps := httpapi.Deps{
		Narrator: pipeline,
		Synth:    synth,
		Voices:   voices,
		Library:  library,
		Jobs:     runner,
		Events:   events,
		Metrics:  tel.metrics,
		Ready:    r.Ready,
	}
	r.handler = httpapi.NewRouter(httpapi.Options{
		APIKey:         r.cfg.Server.APIKey,
		CORSOrigins:    r.cfg.Server.CORSOrigins,
		RequestTimeout: time.Duration(r.cfg.Server.RequestTimeoutMS) * time.Millisecond,
		Debug:          strings.EqualFold(r.cfg.Telemetry.LogLevel, "debug"),
	}, deps, r.logger)
	return nil
}

func (r *Runtime) connectBus(ctx context.Context) error {
	if !r.cfg.Bus.Enabled {
		return nil
	}
	srv, err := natsserver.Start(r.cfg.Bus, r.logger.With(slog.String("component", "natsserver")))
	if err != nil {
		return fmt.Errorf("failed to start embedded NATS: %w", err)
	}
	r.natsServer = srv

	var servers []string
	if url := srv.ClientURL(); url != "" {
		servers = []string{url}
	}
	client, err := bus.Connect(ctx, r.cfg.Bus, r.logger.With(slog.String("component", "bus")), servers...)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	r.bus = client
	return nil
}

// buildSynthesizer returns the instrumented, cached engine and, when the
// engine can enumerate voices, its voice lister.
func (r *Runtime) buildSynthesizer(ctx context.Context) (tts.Synthesizer, tts.VoiceLister, error) {
	ttsCfg := r.cfg.TTS
	encoding, err := audio.ParseEncoding(ttsCfg.AudioEncoding)
	if err != nil {
		return nil, nil, err
	}

	var base tts.Synthesizer
	switch ttsCfg.Mode {
	case "mock":
		base = tts.NewMockSynth(ttsCfg.SampleRate, ttsCfg.Channels, ttsCfg.MockMSPerChar, r.cfg.Narration.ScratchDir)
	case "exec":
		execSynth, err := tts.NewExecSynth(ttsCfg.Command, encoding, ttsCfg.SampleRate, ttsCfg.Channels)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create exec synthesizer: %w", err)
		}
		base = execSynth
	case "google":
		google, err := tts.NewGoogleSynth(ctx, tts.GoogleOptions{
			CredentialsJSON: r.cfg.Google.CredentialsJSON,
			CredentialsFile: r.cfg.Google.CredentialsFile,
			Encoding:        encoding,
			SampleRate:      ttsCfg.SampleRate,
			SpeakingRate:    ttsCfg.SpeakingRate,
		}, r.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create google synthesizer: %w", err)
		}
		r.engine = google
		base = google
	default:
		return nil, nil, fmt.Errorf("unsupported tts mode: %s", ttsCfg.Mode)
	}

	instrumented, err := tts.Instrument(base, ttsCfg.Mode)
	if err != nil {
		return nil, nil, err
	}
	var synth tts.Synthesizer = instrumented.WithTimeout(time.Duration(ttsCfg.TimeoutMS) * time.Millisecond)
	if ttsCfg.CacheSize > 0 {
		cache, err := tts.NewCache(synth, ttsCfg.CacheSize)
		if err != nil {
			return nil, nil, err
		}
		synth = cache
	}

	voices, _ := base.(tts.VoiceLister)
	r.logger.Info("synthesizer ready",
		slog.String("mode", ttsCfg.Mode),
		slog.String("encoding", string(encoding)),
		slog.Int("cache_size", ttsCfg.CacheSize))
	return synth, voices, nil
}

func (r *Runtime) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.runner.Prune(ctx); err != nil {
				r.logger.Warn("job prune failed", slog.String("error", err.Error()))
			}
		}
	}
}

// shutdown releases components in reverse dependency order. It tolerates
// a partially built runtime.
func (r *Runtime) shutdown() {
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if r.httpServer != nil {
		if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slog.String("error", err.Error()))
		}
	}
	if r.runner != nil {
		if err := r.runner.Close(shutdownCtx); err != nil {
			r.logger.Error("job runner shutdown error", slog.String("error", err.Error()))
		}
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Error("job store close error", slog.String("error", err.Error()))
		}
	}
	if r.engine != nil {
		if err := r.engine.Close(); err != nil {
			r.logger.Error("synthesizer close error", slog.String("error", err.Error()))
		}
	}
	r.bus.Close()
	r.natsServer.Shutdown()

	if err := r.telemetry.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
	}
}
