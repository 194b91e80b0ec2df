package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaultsRequiresCredential(t *testing.T) {
	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "speech.credential") {
		t.Fatalf("expected missing credential error, got %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SALUTE_SPEECH_CREDENTIAL", "Y2xpZW50OnNlY3JldA==")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Speech.Voice != "Nec" || cfg.Speech.Language != "ru-RU" {
		t.Fatalf("unexpected voice defaults: %+v", cfg.Speech)
	}
	if cfg.Speech.SampleRate != 24000 || cfg.Speech.Codec != "opus" {
		t.Fatalf("unexpected audio defaults: %+v", cfg.Speech)
	}
	if cfg.Speech.ConcurrencyCeiling != 3 {
		t.Fatalf("expected ceiling 3, got %d", cfg.Speech.ConcurrencyCeiling)
	}
	if cfg.Speech.TokenTTL() != 1500*time.Second {
		t.Fatalf("expected 1500s ttl, got %s", cfg.Speech.TokenTTL())
	}
	if cfg.Speech.AuthTimeout() != 10*time.Second || cfg.Speech.SynthesisTimeout() != 30*time.Second {
		t.Fatalf("unexpected deadlines: %s %s", cfg.Speech.AuthTimeout(), cfg.Speech.SynthesisTimeout())
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
}

func TestMockModeSkipsSpeechValidation(t *testing.T) {
	t.Setenv("SALUTE_TTS_MODE", "mock")

	if _, err := Load(""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "salute.yaml")
	data := []byte(`
runtime_name: salute-test
speech:
  credential: abc
  language: en-US
  voice: Kin
  sample_rate: 8000
  codec: wav16
  concurrency_ceiling: 10
stats:
  backend: redis
  redis_addr: localhost:6379
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RuntimeName != "salute-test" {
		t.Fatalf("expected runtime name from file, got %q", cfg.RuntimeName)
	}
	if cfg.Speech.SampleRate != 8000 || cfg.Speech.Codec != "wav16" || cfg.Speech.ConcurrencyCeiling != 10 {
		t.Fatalf("unexpected speech section: %+v", cfg.Speech)
	}
	if cfg.Speech.AuthEndpoint == "" {
		t.Fatalf("expected defaults to survive partial file")
	}
	if cfg.Stats.Backend != "redis" {
		t.Fatalf("expected redis stats backend")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidationErrors(t *testing.T) {
	cases := map[string]func(*Config){
		"speech.voice":               func(c *Config) { c.Speech.Voice = "Xyz" },
		"speech.language":            func(c *Config) { c.Speech.Language = "de-DE" },
		"speech.sample_rate":         func(c *Config) { c.Speech.SampleRate = 16000 },
		"speech.codec":               func(c *Config) { c.Speech.Codec = "mp3" },
		"speech.concurrency_ceiling": func(c *Config) { c.Speech.ConcurrencyCeiling = 0 },
		"stats.redis_addr":           func(c *Config) { c.Stats.Backend = "redis" },
		"telemetry.otlp_endpoint":    func(c *Config) { c.Telemetry.TraceExporter = "otlp" },
		"ingress.rps":                func(c *Config) { c.Ingress.RateEnabled = true; c.Ingress.RPS = 0 },
		"tts.mode":                   func(c *Config) { c.TTS.Mode = "local" },
	}
	for want, mutate := range cases {
		cfg := Default()
		cfg.Speech.Credential = "abc"
		mutate(&cfg)
		err := validate(cfg)
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("%s: expected validation error, got %v", want, err)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SALUTE_SPEECH_CREDENTIAL", "secret-cred")
	t.Setenv("SALUTE_SPEECH_VOICE", "Bys")
	t.Setenv("SALUTE_SPEECH_SAMPLE_RATE", "8000")
	t.Setenv("SALUTE_SPEECH_CODEC", "alaw")
	t.Setenv("SALUTE_SPEECH_CONCURRENCY_CEILING", "7")
	t.Setenv("SALUTE_SPEECH_TLS_INSECURE", "true")
	t.Setenv("SALUTE_BUS_ENABLED", "true")
	t.Setenv("SALUTE_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("SALUTE_BUS_USERNAME", "alice")
	t.Setenv("SALUTE_BUS_PASSWORD", "secret")
	t.Setenv("SALUTE_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("SALUTE_NODE_ID", "test-node")
	t.Setenv("SALUTE_NODE_HEARTBEAT_INTERVAL_MS", "1500")
	t.Setenv("SALUTE_NODE_HEARTBEAT_TIMEOUT_MS", "5000")
	t.Setenv("SALUTE_EVENT_STORE_PATH", "./tmp.db")
	t.Setenv("SALUTE_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("SALUTE_EVENT_STORE_RETENTION_DAYS", "7")
	t.Setenv("SALUTE_EVENT_STORE_MAX_ROWS", "123")
	t.Setenv("SALUTE_STATS_BACKEND", "none")
	t.Setenv("SALUTE_INGRESS_RATE_ENABLED", "true")
	t.Setenv("SALUTE_INGRESS_RPS", "2.5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Speech.Credential != "secret-cred" || cfg.Speech.Voice != "Bys" {
		t.Fatalf("expected speech overrides, got %+v", cfg.Speech)
	}
	if cfg.Speech.SampleRate != 8000 || cfg.Speech.Codec != "alaw" || cfg.Speech.ConcurrencyCeiling != 7 {
		t.Fatalf("expected audio overrides, got %+v", cfg.Speech)
	}
	if !cfg.Speech.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if !cfg.Bus.Enabled || len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected bus overrides, got %+v", cfg.Bus)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.Node.ID != "test-node" || cfg.Node.HeartbeatInterval != 1500 || cfg.Node.HeartbeatTimeout != 5000 {
		t.Fatalf("expected node overrides, got %+v", cfg.Node)
	}
	if cfg.EventStore.Path != "./tmp.db" || cfg.EventStore.RetentionMode != "persistent" {
		t.Fatalf("expected event store overrides")
	}
	if cfg.EventStore.RetentionDays != 7 || cfg.EventStore.MaxRows != 123 {
		t.Fatalf("expected event store limits override")
	}
	if cfg.Stats.Backend != "none" {
		t.Fatalf("expected stats backend override")
	}
	if !cfg.Ingress.RateEnabled || cfg.Ingress.RPS != 2.5 {
		t.Fatalf("expected ingress override, got %+v", cfg.Ingress)
	}
}
