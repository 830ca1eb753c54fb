package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	LogFile        string `yaml:"log_file"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	TTS         TTSConfig        `yaml:"tts"`
	Generator   GeneratorConfig  `yaml:"generator"`
	Voices      VoicesConfig     `yaml:"voices"`
	Assembly    AssemblyConfig   `yaml:"assembly"`
	Service     ServiceConfig    `yaml:"service"`
}

type BusConfig struct {
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

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRuns       int    `yaml:"max_runs"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type TTSConfig struct {
	Mode       string `yaml:"mode"` // mock, exec, openai
	Command    string `yaml:"command"`
	Endpoint   string `yaml:"endpoint"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Engine     string `yaml:"engine"`
	SampleRate int    `yaml:"sample_rate"`
	// Encoding is the payload encoding the provider returns: pcm, wav or mp3.
	Encoding     string `yaml:"encoding"`
	ProviderRate int    `yaml:"provider_sample_rate"`
	TimeoutMS    int    `yaml:"timeout_ms"`
}

type GeneratorConfig struct {
	Mode        string  `yaml:"mode"` // mock, ollama, exec
	Endpoint    string  `yaml:"endpoint"`
	Command     string  `yaml:"command"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type VoicesConfig struct {
	Channel1       string `yaml:"channel_1"`
	Channel2       string `yaml:"channel_2"`
	CatalogPath    string `yaml:"catalog_path"`
	CatalogCommand string `yaml:"catalog_command"`
}

type AssemblyConfig struct {
	OverlapProbability float64 `yaml:"overlap_probability"`
	MaxOverlapSeconds  float64 `yaml:"max_overlap_seconds"`
	MinSegmentMS       int     `yaml:"min_segment_ms"`
	WorkDir            string  `yaml:"work_dir"`
	OutputDir          string  `yaml:"output_dir"`
	Format             string  `yaml:"format"`
	Tool               string  `yaml:"tool"` // native, sox
	SoxCommand         string  `yaml:"sox_command"`
	PlayCommand        string  `yaml:"play_command"`
	Placement          string  `yaml:"placement"` // parity, declared
	Prefetch           int     `yaml:"prefetch"`
	Seed               uint64  `yaml:"seed"`
	Verbose            bool    `yaml:"verbose"`
}

type ServiceConfig struct {
	Enabled        bool `yaml:"enabled"`
	MaxConcurrency int  `yaml:"max_concurrency"`
	RunTimeoutMS   int  `yaml:"run_timeout_ms"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-callsynth",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/callsynth-runs.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxRuns:       10000,
		},
		TTS: TTSConfig{
			Mode:         "mock",
			Endpoint:     "https://api.openai.com/v1/audio/speech",
			Model:        "gpt-4o-mini-tts",
			Engine:       "neural",
			SampleRate:   16000,
			Encoding:     "pcm",
			ProviderRate: 16000,
			TimeoutMS:    90000,
		},
		Generator: GeneratorConfig{
			Mode:        "mock",
			Endpoint:    "http://localhost:11434",
			Model:       "llama3.2:latest",
			MaxTokens:   2048,
			Temperature: 0.7,
		},
		Voices: VoicesConfig{
			Channel1: "Joanna",
			Channel2: "Matthew",
		},
		Assembly: AssemblyConfig{
			OverlapProbability: 0.05,
			MaxOverlapSeconds:  2.0,
			MinSegmentMS:       50,
			WorkDir:            "./tmp",
			OutputDir:          ".",
			Format:             "wav",
			Tool:               "native",
			SoxCommand:         "sox",
			PlayCommand:        "play",
			Placement:          "parity",
			Prefetch:           1,
		},
		Service: ServiceConfig{
			Enabled:        true,
			MaxConcurrency: 2,
			RunTimeoutMS:   600000,
		},
	}
}

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

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LOQA_CALL_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_CALL_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LOQA_CALL_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOQA_CALL_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_CALL_LOG_LEVEL")
	overrideString(&cfg.Telemetry.LogFile, "LOQA_CALL_LOG_FILE")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_CALL_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_CALL_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LOQA_CALL_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "LOQA_CALL_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOQA_CALL_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "LOQA_CALL_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_CALL_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_CALL_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_CALL_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_CALL_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_CALL_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_CALL_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "LOQA_CALL_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "LOQA_CALL_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "LOQA_CALL_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxRuns, "LOQA_CALL_EVENT_STORE_MAX_RUNS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "LOQA_CALL_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.TTS.Mode, "LOQA_CALL_TTS_MODE")
	overrideString(&cfg.TTS.Command, "LOQA_CALL_TTS_COMMAND")
	overrideString(&cfg.TTS.Endpoint, "LOQA_CALL_TTS_ENDPOINT")
	overrideString(&cfg.TTS.APIKey, "OPENAI_API_KEY")
	overrideString(&cfg.TTS.APIKey, "LOQA_CALL_TTS_API_KEY")
	overrideString(&cfg.TTS.Model, "LOQA_CALL_TTS_MODEL")
	overrideString(&cfg.TTS.Engine, "LOQA_CALL_TTS_ENGINE")
	overrideInt(&cfg.TTS.SampleRate, "LOQA_CALL_TTS_SAMPLE_RATE")
	overrideString(&cfg.TTS.Encoding, "LOQA_CALL_TTS_ENCODING")
	overrideInt(&cfg.TTS.ProviderRate, "LOQA_CALL_TTS_PROVIDER_SAMPLE_RATE")
	overrideInt(&cfg.TTS.TimeoutMS, "LOQA_CALL_TTS_TIMEOUT_MS")
	overrideString(&cfg.Generator.Mode, "LOQA_CALL_GENERATOR_MODE")
	overrideString(&cfg.Generator.Endpoint, "LOQA_CALL_GENERATOR_ENDPOINT")
	overrideString(&cfg.Generator.Command, "LOQA_CALL_GENERATOR_COMMAND")
	overrideString(&cfg.Generator.Model, "LOQA_CALL_GENERATOR_MODEL")
	overrideInt(&cfg.Generator.MaxTokens, "LOQA_CALL_GENERATOR_MAX_TOKENS")
	overrideFloat(&cfg.Generator.Temperature, "LOQA_CALL_GENERATOR_TEMPERATURE")
	overrideString(&cfg.Voices.Channel1, "LOQA_CALL_VOICE_1")
	overrideString(&cfg.Voices.Channel2, "LOQA_CALL_VOICE_2")
	overrideString(&cfg.Voices.CatalogPath, "LOQA_CALL_VOICES_CATALOG_PATH")
	overrideString(&cfg.Voices.CatalogCommand, "LOQA_CALL_VOICES_CATALOG_COMMAND")
	overrideFloat(&cfg.Assembly.OverlapProbability, "LOQA_CALL_OVERLAP_PROBABILITY")
	overrideFloat(&cfg.Assembly.MaxOverlapSeconds, "LOQA_CALL_MAX_OVERLAP_SECONDS")
	overrideInt(&cfg.Assembly.MinSegmentMS, "LOQA_CALL_MIN_SEGMENT_MS")
	overrideString(&cfg.Assembly.WorkDir, "LOQA_CALL_WORK_DIR")
	overrideString(&cfg.Assembly.OutputDir, "LOQA_CALL_OUTPUT_DIR")
	overrideString(&cfg.Assembly.Format, "LOQA_CALL_FORMAT")
	overrideString(&cfg.Assembly.Tool, "LOQA_CALL_TOOL")
	overrideString(&cfg.Assembly.SoxCommand, "LOQA_CALL_SOX_COMMAND")
	overrideString(&cfg.Assembly.PlayCommand, "LOQA_CALL_PLAY_COMMAND")
	overrideString(&cfg.Assembly.Placement, "LOQA_CALL_PLACEMENT")
	overrideInt(&cfg.Assembly.Prefetch, "LOQA_CALL_PREFETCH")
	overrideUint64(&cfg.Assembly.Seed, "LOQA_CALL_SEED")
	overrideBool(&cfg.Assembly.Verbose, "LOQA_CALL_VERBOSE")
	overrideBool(&cfg.Service.Enabled, "LOQA_CALL_SERVICE_ENABLED")
	overrideInt(&cfg.Service.MaxConcurrency, "LOQA_CALL_SERVICE_MAX_CONCURRENCY")
	overrideInt(&cfg.Service.RunTimeoutMS, "LOQA_CALL_SERVICE_RUN_TIMEOUT_MS")
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

func overrideUint64(target *uint64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseUint(value, 10, 64); err == nil {
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
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else if len(cfg.Bus.Servers) == 0 {
		return errors.New("bus.servers must not be empty when embedded mode is disabled")
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}

	switch cfg.TTS.Mode {
	case "mock", "exec", "openai":
	default:
		return errors.New("tts.mode must be one of mock|exec|openai")
	}
	if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
		return errors.New("tts.command must be set when mode=exec")
	}
	if cfg.TTS.Mode == "openai" && cfg.TTS.Endpoint == "" {
		return errors.New("tts.endpoint must be set when mode=openai")
	}
	if cfg.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	switch cfg.TTS.Encoding {
	case "pcm", "wav", "mp3":
	default:
		return errors.New("tts.encoding must be one of pcm|wav|mp3")
	}
	if cfg.TTS.Encoding == "pcm" && cfg.TTS.ProviderRate <= 0 {
		return errors.New("tts.provider_sample_rate must be positive when encoding=pcm")
	}

	switch cfg.Generator.Mode {
	case "mock", "ollama", "exec":
	default:
		return errors.New("generator.mode must be one of mock|ollama|exec")
	}
	if cfg.Generator.Mode == "ollama" && cfg.Generator.Endpoint == "" {
		return errors.New("generator.endpoint must be set when mode=ollama")
	}
	if cfg.Generator.Mode == "exec" && cfg.Generator.Command == "" {
		return errors.New("generator.command must be set when mode=exec")
	}
	if cfg.Generator.MaxTokens < 0 {
		return errors.New("generator.max_tokens must be >= 0")
	}

	if cfg.Voices.Channel1 == "" || cfg.Voices.Channel2 == "" {
		return errors.New("voices.channel_1 and voices.channel_2 must both be set")
	}

	a := cfg.Assembly
	if a.OverlapProbability < 0 || a.OverlapProbability > 1 {
		return errors.New("assembly.overlap_probability must be within [0, 1]")
	}
	if a.MaxOverlapSeconds <= 0 {
		return errors.New("assembly.max_overlap_seconds must be positive")
	}
	if a.MinSegmentMS <= 0 {
		return errors.New("assembly.min_segment_ms must be positive")
	}
	if a.WorkDir == "" {
		return errors.New("assembly.work_dir must not be empty")
	}
	if a.Format == "" {
		return errors.New("assembly.format must not be empty")
	}
	switch a.Tool {
	case "native":
		if a.Format != "wav" {
			return errors.New("assembly.format must be wav when tool=native")
		}
	case "sox":
		if a.SoxCommand == "" {
			return errors.New("assembly.sox_command must be set when tool=sox")
		}
	default:
		return errors.New("assembly.tool must be one of native|sox")
	}
	switch a.Placement {
	case "parity", "declared":
	default:
		return errors.New("assembly.placement must be one of parity|declared")
	}
	if a.Prefetch < 1 {
		return errors.New("assembly.prefetch must be >= 1")
	}

	if cfg.Service.Enabled && cfg.Service.MaxConcurrency <= 0 {
		return errors.New("service.max_concurrency must be >= 1")
	}
	return nil
}

// Validate checks a config assembled outside Load, such as one with command
// line overrides applied.
func Validate(cfg Config) error {
	return validate(cfg)
}
