package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Narration.MaxChars != 768 {
		t.Fatalf("expected default max chars 768, got %d", cfg.Narration.MaxChars)
	}
	if cfg.Narration.DividerSilenceMS != 800 {
		t.Fatalf("expected divider silence 800, got %d", cfg.Narration.DividerSilenceMS)
	}
	if cfg.TTS.Mode != "mock" {
		t.Fatalf("expected mock tts mode, got %s", cfg.TTS.Mode)
	}
	if cfg.Jobs.Driver != "memory" {
		t.Fatalf("expected memory jobs driver, got %s", cfg.Jobs.Driver)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reader.yaml")
	data := []byte(`
http:
  port: 9090
narration:
  max_chars: 500
  inter_segment_silence_ms: 200
jobs:
  driver: sqlite
  sqlite_path: ./jobs.db
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.HTTP.Port)
	}
	if cfg.Narration.MaxChars != 500 || cfg.Narration.InterSegmentSilenceMS != 200 {
		t.Fatalf("unexpected narration config %+v", cfg.Narration)
	}
	if cfg.Narration.DividerSilenceMS != 800 {
		t.Fatalf("expected untouched default divider silence, got %d", cfg.Narration.DividerSilenceMS)
	}
	if cfg.Jobs.Driver != "sqlite" {
		t.Fatalf("expected sqlite driver, got %s", cfg.Jobs.Driver)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("RAILWAY_APP_API_KEY", "railway-key")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS_JSON", `{"type":"service_account"}`)
	t.Setenv("LOQA_TTS_MODE", "google")
	t.Setenv("LOQA_TTS_CACHE_SIZE", "10")
	t.Setenv("LOQA_TTS_SPEAKING_RATE", "1.25")
	t.Setenv("LOQA_NARRATION_SYNTHESIS_CONCURRENCY", "4")
	t.Setenv("LOQA_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LOQA_BUS_ENABLED", "true")
	t.Setenv("LOQA_BUS_EMBEDDED", "false")
	t.Setenv("LOQA_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("LOQA_BUS_USERNAME", "alice")
	t.Setenv("LOQA_BUS_CONNECT_TIMEOUT_MS", "5000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTP.Port != 7000 {
		t.Fatalf("expected PORT override, got %d", cfg.HTTP.Port)
	}
	if cfg.Server.APIKey != "railway-key" {
		t.Fatalf("expected api key override, got %q", cfg.Server.APIKey)
	}
	if cfg.TTS.Mode != "google" || cfg.TTS.CacheSize != 10 {
		t.Fatalf("unexpected tts config %+v", cfg.TTS)
	}
	if cfg.TTS.SpeakingRate != 1.25 {
		t.Fatalf("expected speaking rate 1.25, got %v", cfg.TTS.SpeakingRate)
	}
	if cfg.Narration.SynthesisConcurrency != 4 {
		t.Fatalf("expected concurrency 4, got %d", cfg.Narration.SynthesisConcurrency)
	}
	if len(cfg.Server.CORSOrigins) != 2 {
		t.Fatalf("expected 2 cors origins, got %v", cfg.Server.CORSOrigins)
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" {
		t.Fatalf("expected bus username override")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
}

func TestLoqaPortWinsOverPlatformPort(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("LOQA_HTTP_PORT", "7100")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 7100 {
		t.Fatalf("expected 7100, got %d", cfg.HTTP.Port)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "bad tts mode", mutate: func(c *Config) { c.TTS.Mode = "espeak" }},
		{name: "exec without command", mutate: func(c *Config) { c.TTS.Mode = "exec" }},
		{name: "google without credentials", mutate: func(c *Config) { c.TTS.Mode = "google" }},
		{name: "zero max chars", mutate: func(c *Config) { c.Narration.MaxChars = 0 }},
		{name: "negative silence", mutate: func(c *Config) { c.Narration.InterSegmentSilenceMS = -1 }},
		{name: "bad encoding", mutate: func(c *Config) { c.TTS.AudioEncoding = "OGG_OPUS" }},
		{name: "redis without addr", mutate: func(c *Config) { c.Jobs.Driver = "redis" }},
		{name: "unknown jobs driver", mutate: func(c *Config) { c.Jobs.Driver = "postgres" }},
		{name: "bus without servers", mutate: func(c *Config) {
			c.Bus.Enabled = true
			c.Bus.Embedded = false
			c.Bus.Servers = nil
		}},
		{name: "bad log level", mutate: func(c *Config) { c.Telemetry.LogLevel = "trace" }},
		{name: "otlp without endpoint", mutate: func(c *Config) { c.Telemetry.TraceExporter = "otlp" }},
		{name: "unknown trace exporter", mutate: func(c *Config) { c.Telemetry.TraceExporter = "jaeger" }},
		{name: "sample ratio above one", mutate: func(c *Config) { c.Telemetry.TraceSampleRatio = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
