package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/loqalabs/salute-gateway/internal/speech"
	"github.com/loqalabs/salute-gateway/internal/voice"
)

type TelemetryConfig struct {
	LogLevel      string `yaml:"log_level"`
	TraceExporter string `yaml:"trace_exporter"` // none, stdout, otlp
	OTLPEndpoint  string `yaml:"otlp_endpoint"`
	OTLPInsecure  bool   `yaml:"otlp_insecure"`
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
	Node        NodeConfig       `yaml:"node"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Stats       StatsConfig      `yaml:"stats"`
	Speech      SpeechConfig     `yaml:"speech"`
	TTS         TTSConfig        `yaml:"tts"`
	Ingress     IngressConfig    `yaml:"ingress"`
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

type NodeConfig struct {
	ID                string `yaml:"id"`
	Role              string `yaml:"role"`
	HeartbeatInterval int    `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeout  int    `yaml:"heartbeat_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"` // ephemeral, session, persistent
	RetentionDays int    `yaml:"retention_days"`
	MaxRows       int    `yaml:"max_rows"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type StatsConfig struct {
	Backend       string `yaml:"backend"` // none, memory, redis
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Prefix        string `yaml:"prefix"`
	TTLMinutes    int    `yaml:"ttl_minutes"`
	TrackVoices   bool   `yaml:"track_voices"`
}

// SpeechConfig describes one SaluteSpeech account and how it is used.
type SpeechConfig struct {
	Credential         string `yaml:"credential"`
	Language           string `yaml:"language"`
	Voice              string `yaml:"voice"`
	SampleRate         int    `yaml:"sample_rate"`
	Codec              string `yaml:"codec"`
	ConcurrencyCeiling int    `yaml:"concurrency_ceiling"`
	AuthEndpoint       string `yaml:"auth_endpoint"`
	SynthesisEndpoint  string `yaml:"synthesis_endpoint"`
	Scope              string `yaml:"scope"`
	TokenTTLMS         int    `yaml:"token_ttl_ms"`
	AuthTimeoutMS      int    `yaml:"auth_timeout_ms"`
	SynthesisTimeoutMS int    `yaml:"synthesis_timeout_ms"`
	TLSInsecure        bool   `yaml:"tls_insecure"`
}

func (s SpeechConfig) TokenTTL() time.Duration {
	return time.Duration(s.TokenTTLMS) * time.Millisecond
}

func (s SpeechConfig) AuthTimeout() time.Duration {
	return time.Duration(s.AuthTimeoutMS) * time.Millisecond
}

func (s SpeechConfig) SynthesisTimeout() time.Duration {
	return time.Duration(s.SynthesisTimeoutMS) * time.Millisecond
}

type TTSConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Mode             string `yaml:"mode"` // cloud, mock
	RequestTimeoutMS int    `yaml:"request_timeout_ms"`
}

type IngressConfig struct {
	RateEnabled bool    `yaml:"rate_enabled"`
	RPS         float64 `yaml:"rps"`
	Burst       int     `yaml:"burst"`
	KeyHeader   string  `yaml:"key_header"`
	TrustXFF    bool    `yaml:"trust_xff"`
}

func Default() Config {
	return Config{
		RuntimeName: "salute-gateway",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:      "info",
			TraceExporter: "none",
			OTLPInsecure:  true,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Node: NodeConfig{
			ID:                "salute-node-1",
			Role:              "speech",
			HeartbeatInterval: 2000,
			HeartbeatTimeout:  6000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/salute-journal.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxRows:       100000,
		},
		Stats: StatsConfig{
			Backend:    "memory",
			Prefix:     "salute:stats",
			TTLMinutes: 24 * 60,
		},
		Speech: SpeechConfig{
			Language:           voice.DefaultLanguage,
			Voice:              voice.DefaultVoice,
			SampleRate:         int(speech.DefaultSampleRate),
			Codec:              string(speech.DefaultCodec),
			ConcurrencyCeiling: 3,
			AuthEndpoint:       "https://ngw.devices.sberbank.ru:9443/api/v2/oauth",
			SynthesisEndpoint:  "https://smartspeech.sber.ru/rest/v1/text:synthesize",
			Scope:              "SALUTE_SPEECH_PERS",
			TokenTTLMS:         1500 * 1000,
			AuthTimeoutMS:      10 * 1000,
			SynthesisTimeoutMS: 30 * 1000,
		},
		TTS: TTSConfig{
			Enabled:          true,
			Mode:             "cloud",
			RequestTimeoutMS: 45 * 1000,
		},
		Ingress: IngressConfig{
			RateEnabled: false,
			RPS:         10,
			Burst:       20,
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
	overrideString(&cfg.RuntimeName, "SALUTE_RUNTIME_NAME")
	overrideString(&cfg.Environment, "SALUTE_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "SALUTE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "SALUTE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "SALUTE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.TraceExporter, "SALUTE_TELEMETRY_TRACE_EXPORTER")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "SALUTE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "SALUTE_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Enabled, "SALUTE_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "SALUTE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "SALUTE_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "SALUTE_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "SALUTE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "SALUTE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "SALUTE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "SALUTE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "SALUTE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "SALUTE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Node.ID, "SALUTE_NODE_ID")
	overrideString(&cfg.Node.Role, "SALUTE_NODE_ROLE")
	overrideInt(&cfg.Node.HeartbeatInterval, "SALUTE_NODE_HEARTBEAT_INTERVAL_MS")
	overrideInt(&cfg.Node.HeartbeatTimeout, "SALUTE_NODE_HEARTBEAT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "SALUTE_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "SALUTE_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "SALUTE_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxRows, "SALUTE_EVENT_STORE_MAX_ROWS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "SALUTE_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Stats.Backend, "SALUTE_STATS_BACKEND")
	overrideString(&cfg.Stats.RedisAddr, "SALUTE_STATS_REDIS_ADDR")
	overrideString(&cfg.Stats.RedisPassword, "SALUTE_STATS_REDIS_PASSWORD")
	overrideInt(&cfg.Stats.RedisDB, "SALUTE_STATS_REDIS_DB")
	overrideString(&cfg.Stats.Prefix, "SALUTE_STATS_PREFIX")
	overrideInt(&cfg.Stats.TTLMinutes, "SALUTE_STATS_TTL_MINUTES")
	overrideBool(&cfg.Stats.TrackVoices, "SALUTE_STATS_TRACK_VOICES")
	overrideString(&cfg.Speech.Credential, "SALUTE_SPEECH_CREDENTIAL")
	overrideString(&cfg.Speech.Language, "SALUTE_SPEECH_LANGUAGE")
	overrideString(&cfg.Speech.Voice, "SALUTE_SPEECH_VOICE")
	overrideInt(&cfg.Speech.SampleRate, "SALUTE_SPEECH_SAMPLE_RATE")
	overrideString(&cfg.Speech.Codec, "SALUTE_SPEECH_CODEC")
	overrideInt(&cfg.Speech.ConcurrencyCeiling, "SALUTE_SPEECH_CONCURRENCY_CEILING")
	overrideString(&cfg.Speech.AuthEndpoint, "SALUTE_SPEECH_AUTH_ENDPOINT")
	overrideString(&cfg.Speech.SynthesisEndpoint, "SALUTE_SPEECH_SYNTHESIS_ENDPOINT")
	overrideString(&cfg.Speech.Scope, "SALUTE_SPEECH_SCOPE")
	overrideInt(&cfg.Speech.TokenTTLMS, "SALUTE_SPEECH_TOKEN_TTL_MS")
	overrideInt(&cfg.Speech.AuthTimeoutMS, "SALUTE_SPEECH_AUTH_TIMEOUT_MS")
	overrideInt(&cfg.Speech.SynthesisTimeoutMS, "SALUTE_SPEECH_SYNTHESIS_TIMEOUT_MS")
	overrideBool(&cfg.Speech.TLSInsecure, "SALUTE_SPEECH_TLS_INSECURE")
	overrideBool(&cfg.TTS.Enabled, "SALUTE_TTS_ENABLED")
	overrideString(&cfg.TTS.Mode, "SALUTE_TTS_MODE")
	overrideInt(&cfg.TTS.RequestTimeoutMS, "SALUTE_TTS_REQUEST_TIMEOUT_MS")
	overrideBool(&cfg.Ingress.RateEnabled, "SALUTE_INGRESS_RATE_ENABLED")
	overrideFloat(&cfg.Ingress.RPS, "SALUTE_INGRESS_RPS")
	overrideInt(&cfg.Ingress.Burst, "SALUTE_INGRESS_BURST")
	overrideString(&cfg.Ingress.KeyHeader, "SALUTE_INGRESS_KEY_HEADER")
	overrideBool(&cfg.Ingress.TrustXFF, "SALUTE_INGRESS_TRUST_XFF")
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
	switch cfg.Telemetry.TraceExporter {
	case "none", "stdout":
	case "otlp":
		if strings.TrimSpace(cfg.Telemetry.OTLPEndpoint) == "" {
			return errors.New("telemetry.otlp_endpoint must be set when trace_exporter=otlp")
		}
	default:
		return errors.New("telemetry.trace_exporter must be one of none|stdout|otlp")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
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
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral":
	case "session", "persistent":
		if cfg.EventStore.Path == "" {
			return errors.New("event_store.path must not be empty")
		}
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	switch cfg.Stats.Backend {
	case "none", "memory":
	case "redis":
		if strings.TrimSpace(cfg.Stats.RedisAddr) == "" {
			return errors.New("stats.redis_addr must be set when backend=redis")
		}
	default:
		return errors.New("stats.backend must be one of none|memory|redis")
	}
	switch cfg.TTS.Mode {
	case "mock":
	case "cloud":
		if err := validateSpeech(cfg.Speech); err != nil {
			return err
		}
	default:
		return errors.New("tts.mode must be one of cloud|mock")
	}
	if cfg.Ingress.RateEnabled {
		if cfg.Ingress.RPS <= 0 {
			return errors.New("ingress.rps must be > 0")
		}
		if cfg.Ingress.Burst <= 0 {
			return errors.New("ingress.burst must be > 0")
		}
	}
	return nil
}

func validateSpeech(s SpeechConfig) error {
	if strings.TrimSpace(s.Credential) == "" {
		return errors.New("speech.credential must not be empty")
	}
	if !voice.SupportedLanguage(s.Language) {
		return fmt.Errorf("speech.language must be one of %s", strings.Join(voice.Languages(), "|"))
	}
	if !voice.Known(s.Voice) {
		return fmt.Errorf("speech.voice must be one of %s", strings.Join(voice.IDs(), "|"))
	}
	if !speech.SampleRate(s.SampleRate).Valid() {
		return errors.New("speech.sample_rate must be one of 24000|8000")
	}
	if !speech.Codec(s.Codec).Valid() {
		return errors.New("speech.codec must be one of wav16|pcm16|alaw|opus")
	}
	if s.ConcurrencyCeiling <= 0 {
		return errors.New("speech.concurrency_ceiling must be >= 1")
	}
	if s.AuthEndpoint == "" || s.SynthesisEndpoint == "" {
		return errors.New("speech.auth_endpoint and speech.synthesis_endpoint must not be empty")
	}
	if s.Scope == "" {
		return errors.New("speech.scope must not be empty")
	}
	if s.TokenTTLMS <= 0 || s.AuthTimeoutMS <= 0 || s.SynthesisTimeoutMS <= 0 {
		return errors.New("speech token_ttl_ms, auth_timeout_ms and synthesis_timeout_ms must be positive")
	}
	return nil
}

// ValidateSpeech checks a speech section on its own, for tools that only talk
// to the vendor API.
func ValidateSpeech(s SpeechConfig) error {
	return validateSpeech(s)
}
