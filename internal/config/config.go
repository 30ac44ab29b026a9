package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// TelemetryConfig controls logging and tracing. An empty TraceExporter
// means otlp when OTLPEndpoint is set and none otherwise.
type TelemetryConfig struct {
	LogLevel         string  `yaml:"log_level"`
	TraceExporter    string  `yaml:"trace_exporter"` // none, stdout, otlp
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
	OTLPEndpoint     string  `yaml:"otlp_endpoint"`
	OTLPInsecure     bool    `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Server      ServerConfig    `yaml:"server"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Google      GoogleConfig    `yaml:"google"`
	TTS         TTSConfig       `yaml:"tts"`
	Narration   NarrationConfig `yaml:"narration"`
	Docs        DocsConfig      `yaml:"docs"`
	Jobs        JobsConfig      `yaml:"jobs"`
	Bus         BusConfig       `yaml:"bus"`
}

type ServerConfig struct {
	APIKey            string   `yaml:"api_key"`
	DefaultDocumentID string   `yaml:"default_document_id"`
	CORSOrigins       []string `yaml:"cors_origins"`
	RequestTimeoutMS  int      `yaml:"request_timeout_ms"`
}

// GoogleConfig holds service account credentials shared by the Docs and
// Text-to-Speech clients. CredentialsJSON wins over CredentialsFile.
type GoogleConfig struct {
	CredentialsJSON string `yaml:"credentials_json"`
	CredentialsFile string `yaml:"credentials_file"`
}

type TTSConfig struct {
	Mode          string  `yaml:"mode"` // mock, exec, google
	Command       string  `yaml:"command"`
	AudioEncoding string  `yaml:"audio_encoding"`
	SampleRate    int     `yaml:"sample_rate"`
	Channels      int     `yaml:"channels"`
	SpeakingRate  float64 `yaml:"speaking_rate"`
	CacheSize     int     `yaml:"cache_size"`
	TimeoutMS     int     `yaml:"timeout_ms"`
	MockMSPerChar int     `yaml:"mock_ms_per_char"`
}

type NarrationConfig struct {
	MaxChars              int    `yaml:"max_chars"`
	InterSegmentSilenceMS int    `yaml:"inter_segment_silence_ms"`
	DividerSilenceMS      int    `yaml:"divider_silence_ms"`
	SynthesisConcurrency  int    `yaml:"synthesis_concurrency"`
	ScratchDir            string `yaml:"scratch_dir"`
}

type DocsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type JobsConfig struct {
	Driver        string `yaml:"driver"` // memory, sqlite, redis
	SQLitePath    string `yaml:"sqlite_path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
	TTLMS         int    `yaml:"ttl_ms"`
	MaxResults    int    `yaml:"max_results"`
	Workers       int    `yaml:"workers"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-reader",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Server: ServerConfig{
			CORSOrigins:      []string{"*"},
			RequestTimeoutMS: 300000,
		},
		Telemetry: TelemetryConfig{
			LogLevel:         "info",
			TraceSampleRatio: 1.0,
			OTLPEndpoint:     "",
			OTLPInsecure:     true,
		},
		TTS: TTSConfig{
			Mode:          "mock",
			AudioEncoding: "LINEAR16",
			SampleRate:    24000,
			Channels:      1,
			SpeakingRate:  1.0,
			CacheSize:     512,
			TimeoutMS:     30000,
			MockMSPerChar: 60,
		},
		Narration: NarrationConfig{
			MaxChars:              768,
			InterSegmentSilenceMS: 500,
			DividerSilenceMS:      800,
			SynthesisConcurrency:  1,
		},
		Docs: DocsConfig{
			Enabled: false,
		},
		Jobs: JobsConfig{
			Driver:      "memory",
			SQLitePath:  "./data/loqa-reader-jobs.db",
			RedisPrefix: "reader:job:",
			TTLMS:       900000,
			MaxResults:  64,
			Workers:     2,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
	}
}

// Load reads path (optional) over Default, then applies .env and
// environment overrides before validating.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LOQA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LOQA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "PORT")
	overrideInt(&cfg.HTTP.Port, "LOQA_HTTP_PORT")
	overrideString(&cfg.Server.APIKey, "RAILWAY_APP_API_KEY")
	overrideString(&cfg.Server.APIKey, "LOQA_SERVER_API_KEY")
	overrideString(&cfg.Server.DefaultDocumentID, "LOQA_SERVER_DEFAULT_DOCUMENT_ID")
	overrideStringSlice(&cfg.Server.CORSOrigins, "LOQA_SERVER_CORS_ORIGINS")
	overrideInt(&cfg.Server.RequestTimeoutMS, "LOQA_SERVER_REQUEST_TIMEOUT_MS")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.TraceExporter, "LOQA_TELEMETRY_TRACE_EXPORTER")
	overrideFloat(&cfg.Telemetry.TraceSampleRatio, "LOQA_TELEMETRY_TRACE_SAMPLE_RATIO")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Google.CredentialsJSON, "GOOGLE_APPLICATION_CREDENTIALS_JSON")
	overrideString(&cfg.Google.CredentialsFile, "LOQA_GOOGLE_CREDENTIALS_FILE")
	overrideString(&cfg.TTS.Mode, "LOQA_TTS_MODE")
	overrideString(&cfg.TTS.Command, "LOQA_TTS_COMMAND")
	overrideString(&cfg.TTS.AudioEncoding, "LOQA_TTS_AUDIO_ENCODING")
	overrideInt(&cfg.TTS.SampleRate, "LOQA_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.Channels, "LOQA_TTS_CHANNELS")
	overrideFloat(&cfg.TTS.SpeakingRate, "LOQA_TTS_SPEAKING_RATE")
	overrideInt(&cfg.TTS.CacheSize, "LOQA_TTS_CACHE_SIZE")
	overrideInt(&cfg.TTS.TimeoutMS, "LOQA_TTS_TIMEOUT_MS")
	overrideInt(&cfg.TTS.MockMSPerChar, "LOQA_TTS_MOCK_MS_PER_CHAR")
	overrideInt(&cfg.Narration.MaxChars, "LOQA_NARRATION_MAX_CHARS")
	overrideInt(&cfg.Narration.InterSegmentSilenceMS, "LOQA_NARRATION_INTER_SEGMENT_SILENCE_MS")
	overrideInt(&cfg.Narration.DividerSilenceMS, "LOQA_NARRATION_DIVIDER_SILENCE_MS")
	overrideInt(&cfg.Narration.SynthesisConcurrency, "LOQA_NARRATION_SYNTHESIS_CONCURRENCY")
	overrideString(&cfg.Narration.ScratchDir, "LOQA_NARRATION_SCRATCH_DIR")
	overrideBool(&cfg.Docs.Enabled, "LOQA_DOCS_ENABLED")
	overrideString(&cfg.Jobs.Driver, "LOQA_JOBS_DRIVER")
	overrideString(&cfg.Jobs.SQLitePath, "LOQA_JOBS_SQLITE_PATH")
	overrideString(&cfg.Jobs.RedisAddr, "LOQA_JOBS_REDIS_ADDR")
	overrideString(&cfg.Jobs.RedisPassword, "LOQA_JOBS_REDIS_PASSWORD")
	overrideInt(&cfg.Jobs.RedisDB, "LOQA_JOBS_REDIS_DB")
	overrideString(&cfg.Jobs.RedisPrefix, "LOQA_JOBS_REDIS_PREFIX")
	overrideInt(&cfg.Jobs.TTLMS, "LOQA_JOBS_TTL_MS")
	overrideInt(&cfg.Jobs.MaxResults, "LOQA_JOBS_MAX_RESULTS")
	overrideInt(&cfg.Jobs.Workers, "LOQA_JOBS_WORKERS")
	overrideBool(&cfg.Bus.Enabled, "LOQA_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "LOQA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOQA_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "LOQA_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_BUS_CONNECT_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Server.RequestTimeoutMS < 0 {
		return errors.New("server.request_timeout_ms must be >= 0")
	}
	switch strings.ToLower(cfg.Telemetry.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("telemetry.log_level must be one of debug|info|warn|error")
	}
	switch strings.ToLower(cfg.Telemetry.TraceExporter) {
	case "", "none", "stdout":
	case "otlp":
		if strings.TrimSpace(cfg.Telemetry.OTLPEndpoint) == "" {
			return errors.New("telemetry.otlp_endpoint must be set when trace_exporter=otlp")
		}
	default:
		return errors.New("telemetry.trace_exporter must be one of none|stdout|otlp")
	}
	if cfg.Telemetry.TraceSampleRatio < 0 || cfg.Telemetry.TraceSampleRatio > 1 {
		return errors.New("telemetry.trace_sample_ratio must be between 0 and 1")
	}
	switch cfg.TTS.Mode {
	case "mock", "exec", "google":
	default:
		return errors.New("tts.mode must be one of mock|exec|google")
	}
	if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
		return errors.New("tts.command must be set when mode=exec")
	}
	if cfg.TTS.Mode == "google" && cfg.Google.CredentialsJSON == "" && cfg.Google.CredentialsFile == "" {
		return errors.New("google.credentials_json or google.credentials_file must be set when tts.mode=google")
	}
	switch strings.ToUpper(cfg.TTS.AudioEncoding) {
	case "LINEAR16", "MP3":
	default:
		return errors.New("tts.audio_encoding must be one of LINEAR16|MP3")
	}
	if cfg.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	if cfg.TTS.Channels <= 0 {
		return errors.New("tts.channels must be positive")
	}
	if cfg.TTS.SpeakingRate < 0.25 || cfg.TTS.SpeakingRate > 4.0 {
		return errors.New("tts.speaking_rate must be between 0.25 and 4.0")
	}
	if cfg.TTS.CacheSize < 0 {
		return errors.New("tts.cache_size must be >= 0")
	}
	if cfg.TTS.TimeoutMS <= 0 {
		return errors.New("tts.timeout_ms must be positive")
	}
	if cfg.Narration.MaxChars <= 0 {
		return errors.New("narration.max_chars must be positive")
	}
	if cfg.Narration.InterSegmentSilenceMS < 0 {
		return errors.New("narration.inter_segment_silence_ms must be >= 0")
	}
	if cfg.Narration.DividerSilenceMS < 0 {
		return errors.New("narration.divider_silence_ms must be >= 0")
	}
	if cfg.Narration.SynthesisConcurrency < 1 {
		return errors.New("narration.synthesis_concurrency must be >= 1")
	}
	if cfg.Docs.Enabled && cfg.Google.CredentialsJSON == "" && cfg.Google.CredentialsFile == "" {
		return errors.New("google.credentials_json or google.credentials_file must be set when docs are enabled")
	}
	switch cfg.Jobs.Driver {
	case "memory":
	case "sqlite":
		if cfg.Jobs.SQLitePath == "" {
			return errors.New("jobs.sqlite_path must be set when driver=sqlite")
		}
	case "redis":
		if cfg.Jobs.RedisAddr == "" {
			return errors.New("jobs.redis_addr must be set when driver=redis")
		}
	default:
		return errors.New("jobs.driver must be one of memory|sqlite|redis")
	}
	if cfg.Jobs.TTLMS <= 0 {
		return errors.New("jobs.ttl_ms must be positive")
	}
	if cfg.Jobs.MaxResults <= 0 {
		return errors.New("jobs.max_results must be positive")
	}
	if cfg.Jobs.Workers <= 0 {
		return errors.New("jobs.workers must be >= 1")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	return nil
}
