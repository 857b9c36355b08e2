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
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string            `yaml:"runtime_name"`
	Environment string            `yaml:"environment"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Bus         BusConfig         `yaml:"bus"`
	Node        NodeConfig        `yaml:"node"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	Audio       AudioConfig       `yaml:"audio"`
	Image       ImageConfig       `yaml:"image"`
	Sentence    SentenceConfig    `yaml:"sentence"`
	Extract     ExtractConfig     `yaml:"extract"`
	Ingest      IngestConfig      `yaml:"ingest"`
	ResultStore ResultStoreConfig `yaml:"result_store"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type NodeConfig struct {
	ID                string   `yaml:"id"`
	Role              string   `yaml:"role"`
	HeartbeatInterval int      `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeout  int      `yaml:"heartbeat_timeout_ms"`
	Modalities        []string `yaml:"modalities"`
}

// DispatchConfig carries the dispatcher tunables. They are fixed at dispatcher
// construction; nothing re-reads configuration while a dispatch is in flight.
type DispatchConfig struct {
	MinConfidence       float64 `yaml:"min_confidence"`
	MaxProcessingTimeMS int     `yaml:"max_processing_time_ms"`
	AutoFallback        bool    `yaml:"auto_fallback"`
	AudioQualityFloor   float64 `yaml:"audio_quality_floor"`
}

type AudioConfig struct {
	TargetSampleRate int     `yaml:"target_sample_rate"`
	TargetRMS        float64 `yaml:"target_rms"`
	QuietRMS         float64 `yaml:"quiet_rms"`
	LoudPeak         float64 `yaml:"loud_peak"`
	ClipPeak         float64 `yaml:"clip_peak"`
}

type ImageConfig struct {
	DarkBrightness   float64 `yaml:"dark_brightness"`
	BrightBrightness float64 `yaml:"bright_brightness"`
	BlurSharpness    float64 `yaml:"blur_sharpness"`
}

type SentenceConfig struct {
	BaseConfidence float64 `yaml:"base_confidence"`
	TokenWeight    float64 `yaml:"token_weight"`
	PhraseBonus    float64 `yaml:"phrase_bonus"`
	ContextBonus   float64 `yaml:"context_bonus"`
}

type ExtractConfig struct {
	Mode    string `yaml:"mode"` // mock, exec
	Command string `yaml:"command"`
}

type IngestConfig struct {
	Enabled bool `yaml:"enabled"`
}

type ResultStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxResults    int    `yaml:"max_results"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

func Default() Config {
	return Config{
		RuntimeName: "modal-runtime",
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
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Node: NodeConfig{
			ID:                "modal-node-1",
			Role:              "runtime",
			HeartbeatInterval: 2000,
			HeartbeatTimeout:  6000,
			Modalities:        []string{"text", "voice", "symbol", "sign", "camera"},
		},
		Dispatch: DispatchConfig{
			MinConfidence:       0.5,
			MaxProcessingTimeMS: 5000,
			AutoFallback:        true,
			AudioQualityFloor:   0.1,
		},
		Audio: AudioConfig{
			TargetSampleRate: 16000,
			TargetRMS:        0.15,
			QuietRMS:         0.01,
			LoudPeak:         0.9,
			ClipPeak:         0.98,
		},
		Image: ImageConfig{
			DarkBrightness:   0.25,
			BrightBrightness: 0.85,
			BlurSharpness:    0.15,
		},
		Sentence: SentenceConfig{
			BaseConfidence: 0.7,
			TokenWeight:    0.02,
			PhraseBonus:    0.05,
			ContextBonus:   0.05,
		},
		Extract: ExtractConfig{
			Mode: "mock",
		},
		Ingest: IngestConfig{
			Enabled: true,
		},
		ResultStore: ResultStoreConfig{
			Path:          "./data/modal-results.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxResults:    10000,
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
	overrideString(&cfg.RuntimeName, "MODAL_RUNTIME_NAME")
	overrideString(&cfg.Environment, "MODAL_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "MODAL_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "MODAL_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "MODAL_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "MODAL_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "MODAL_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "MODAL_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "MODAL_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "MODAL_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "MODAL_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "MODAL_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "MODAL_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "MODAL_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "MODAL_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "MODAL_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Node.ID, "MODAL_NODE_ID")
	overrideString(&cfg.Node.Role, "MODAL_NODE_ROLE")
	overrideInt(&cfg.Node.HeartbeatInterval, "MODAL_NODE_HEARTBEAT_INTERVAL_MS")
	overrideInt(&cfg.Node.HeartbeatTimeout, "MODAL_NODE_HEARTBEAT_TIMEOUT_MS")
	overrideStringSlice(&cfg.Node.Modalities, "MODAL_NODE_MODALITIES")
	overrideFloat(&cfg.Dispatch.MinConfidence, "MODAL_DISPATCH_MIN_CONFIDENCE")
	overrideInt(&cfg.Dispatch.MaxProcessingTimeMS, "MODAL_DISPATCH_MAX_PROCESSING_TIME_MS")
	overrideBool(&cfg.Dispatch.AutoFallback, "MODAL_DISPATCH_AUTO_FALLBACK")
	overrideFloat(&cfg.Dispatch.AudioQualityFloor, "MODAL_DISPATCH_AUDIO_QUALITY_FLOOR")
	overrideInt(&cfg.Audio.TargetSampleRate, "MODAL_AUDIO_TARGET_SAMPLE_RATE")
	overrideFloat(&cfg.Audio.TargetRMS, "MODAL_AUDIO_TARGET_RMS")
	overrideFloat(&cfg.Audio.QuietRMS, "MODAL_AUDIO_QUIET_RMS")
	overrideFloat(&cfg.Audio.LoudPeak, "MODAL_AUDIO_LOUD_PEAK")
	overrideFloat(&cfg.Audio.ClipPeak, "MODAL_AUDIO_CLIP_PEAK")
	overrideFloat(&cfg.Image.DarkBrightness, "MODAL_IMAGE_DARK_BRIGHTNESS")
	overrideFloat(&cfg.Image.BrightBrightness, "MODAL_IMAGE_BRIGHT_BRIGHTNESS")
	overrideFloat(&cfg.Image.BlurSharpness, "MODAL_IMAGE_BLUR_SHARPNESS")
	overrideFloat(&cfg.Sentence.BaseConfidence, "MODAL_SENTENCE_BASE_CONFIDENCE")
	overrideFloat(&cfg.Sentence.TokenWeight, "MODAL_SENTENCE_TOKEN_WEIGHT")
	overrideFloat(&cfg.Sentence.PhraseBonus, "MODAL_SENTENCE_PHRASE_BONUS")
	overrideFloat(&cfg.Sentence.ContextBonus, "MODAL_SENTENCE_CONTEXT_BONUS")
	overrideString(&cfg.Extract.Mode, "MODAL_EXTRACT_MODE")
	overrideString(&cfg.Extract.Command, "MODAL_EXTRACT_COMMAND")
	overrideBool(&cfg.Ingest.Enabled, "MODAL_INGEST_ENABLED")
	overrideString(&cfg.ResultStore.Path, "MODAL_RESULT_STORE_PATH")
	overrideString(&cfg.ResultStore.RetentionMode, "MODAL_RESULT_STORE_RETENTION_MODE")
	overrideInt(&cfg.ResultStore.RetentionDays, "MODAL_RESULT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.ResultStore.MaxResults, "MODAL_RESULT_STORE_MAX_RESULTS")
	overrideBool(&cfg.ResultStore.VacuumOnStart, "MODAL_RESULT_STORE_VACUUM_ON_START")
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
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Node.ID == "" {
		return errors.New("node.id must not be empty")
	}
	if cfg.Node.HeartbeatInterval <= 0 {
		return errors.New("node.heartbeat_interval_ms must be positive")
	}
	if cfg.Node.HeartbeatTimeout <= cfg.Node.HeartbeatInterval {
		return errors.New("node.heartbeat_timeout_ms must be greater than heartbeat interval")
	}
	if len(cfg.Node.Modalities) == 0 {
		return errors.New("node.modalities must not be empty")
	}
	if cfg.Dispatch.MinConfidence < 0 || cfg.Dispatch.MinConfidence > 1 {
		return errors.New("dispatch.min_confidence must be within [0,1]")
	}
	if cfg.Dispatch.MaxProcessingTimeMS <= 0 {
		return errors.New("dispatch.max_processing_time_ms must be positive")
	}
	if cfg.Dispatch.AudioQualityFloor < 0 || cfg.Dispatch.AudioQualityFloor > 1 {
		return errors.New("dispatch.audio_quality_floor must be within [0,1]")
	}
	if cfg.Audio.TargetSampleRate <= 0 {
		return errors.New("audio.target_sample_rate must be positive")
	}
	if cfg.Audio.TargetRMS <= 0 || cfg.Audio.TargetRMS >= 1 {
		return errors.New("audio.target_rms must be within (0,1)")
	}
	if cfg.Audio.QuietRMS <= 0 || cfg.Audio.QuietRMS >= cfg.Audio.TargetRMS {
		return errors.New("audio.quiet_rms must be positive and below target_rms")
	}
	if cfg.Audio.LoudPeak <= cfg.Audio.TargetRMS || cfg.Audio.LoudPeak > 1 {
		return errors.New("audio.loud_peak must be above target_rms and at most 1")
	}
	if cfg.Audio.ClipPeak <= cfg.Audio.LoudPeak || cfg.Audio.ClipPeak > 1 {
		return errors.New("audio.clip_peak must be above loud_peak and at most 1")
	}
	if cfg.Image.DarkBrightness <= 0 || cfg.Image.DarkBrightness >= cfg.Image.BrightBrightness {
		return errors.New("image.dark_brightness must be positive and below bright_brightness")
	}
	if cfg.Image.BrightBrightness >= 1 {
		return errors.New("image.bright_brightness must be below 1")
	}
	if cfg.Image.BlurSharpness <= 0 || cfg.Image.BlurSharpness >= 1 {
		return errors.New("image.blur_sharpness must be within (0,1)")
	}
	if cfg.Sentence.BaseConfidence < 0 || cfg.Sentence.BaseConfidence > 1 {
		return errors.New("sentence.base_confidence must be within [0,1]")
	}
	if cfg.Sentence.TokenWeight < 0 {
		return errors.New("sentence.token_weight must be >= 0")
	}
	switch cfg.Extract.Mode {
	case "mock", "exec":
	default:
		return errors.New("extract.mode must be one of mock|exec")
	}
	if cfg.Extract.Mode == "exec" && cfg.Extract.Command == "" {
		return errors.New("extract.command must be set when mode=exec")
	}
	if cfg.ResultStore.Path == "" {
		return errors.New("result_store.path must not be empty")
	}
	switch cfg.ResultStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("result_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.ResultStore.RetentionDays < 0 {
		return errors.New("result_store.retention_days must be >= 0")
	}
	return nil
}
