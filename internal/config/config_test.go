package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"talkback/internal/domain"
	apperrors "talkback/internal/errors"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("TALKBACK_CONFIG", "")
	return home
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.VAD != domain.DefaultVadConfig() {
		t.Fatalf("unexpected vad defaults: %+v", cfg.VAD)
	}
	if cfg.Storage.DataDir != filepath.Join(home, ".local", "share", "talkback") {
		t.Fatalf("unexpected data dir: %q", cfg.Storage.DataDir)
	}
	if cfg.Rules.Path != filepath.Join(home, ".config", "talkback", "rules.yaml") {
		t.Fatalf("unexpected rules path: %q", cfg.Rules.Path)
	}
	if cfg.Transcription.Provider != ProviderDeepgram {
		t.Fatalf("unexpected provider: %q", cfg.Transcription.Provider)
	}
	if cfg.AI.Template != "" || !cfg.AI.UseSystemPrompt {
		t.Fatalf("unexpected ai defaults: %+v", cfg.AI)
	}
	if cfg.FrameDuration() != 20*time.Millisecond || cfg.TickInterval() != time.Second {
		t.Fatalf("unexpected session timing: %v %v", cfg.FrameDuration(), cfg.TickInterval())
	}
	if cfg.TranscriptionTimeout() != 30*time.Second || cfg.AITimeout() != time.Minute {
		t.Fatalf("unexpected timeouts: %v %v", cfg.TranscriptionTimeout(), cfg.AITimeout())
	}
}

func TestLoadReadsDefaultConfigFile(t *testing.T) {
	home := isolate(t)
	writeFile(t, filepath.Join(home, ".config", "talkback", "config.yaml"), `
vad:
  mode: continuous
  max_recording_duration_secs: 45
transcription:
  provider: template
  template: curl https://stt.example.com -F file=@{{AUDIO}}
ai:
  template: curl https://ai.example.com -d '{"q":"{{TEXT}}"}'
  system_prompt: be brief
session:
  tick_interval_ms: 0
vars:
  API_KEY: from-file
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.VAD.Mode != domain.CaptureModeContinuous || cfg.VAD.MaxRecordingDurationSecs != 45 {
		t.Fatalf("unexpected vad: %+v", cfg.VAD)
	}
	// Fields absent from the file keep their defaults.
	if cfg.VAD.SilenceDurationMs != 800 {
		t.Fatalf("expected default silence duration, got %d", cfg.VAD.SilenceDurationMs)
	}
	if cfg.Transcription.Provider != ProviderTemplate || cfg.AI.SystemPrompt != "be brief" {
		t.Fatalf("unexpected provider config: %+v %+v", cfg.Transcription, cfg.AI)
	}
	if cfg.TickInterval() >= 0 {
		t.Fatalf("expected ticks disabled, got %v", cfg.TickInterval())
	}
	if cfg.Vars["API_KEY"] != "from-file" {
		t.Fatalf("unexpected vars: %v", cfg.Vars)
	}
}

func TestLoadRespectsOverridesAndFallbacks(t *testing.T) {
	home := isolate(t)
	explicit := filepath.Join(home, "custom.yaml")
	writeFile(t, explicit, "deepgram:\n  model: from-file\n")

	t.Setenv("TALKBACK_CONFIG", explicit)
	t.Setenv("DEEPGRAM_API_KEY", "test-key")
	t.Setenv("DEEPGRAM_MODEL", "nova-3")
	t.Setenv("DEEPGRAM_SMART_FORMAT", "off")
	t.Setenv("TALKBACK_SAMPLE_RATE", "not-a-number")
	t.Setenv("TALKBACK_CHANNELS", "-2")
	t.Setenv("TALKBACK_AUDIO_CHUNK_SIZE", "12")
	t.Setenv("TALKBACK_VAD_THRESHOLD_DB", "-50.5")
	t.Setenv("TALKBACK_VAD_SILENCE_MS", "1200")
	t.Setenv("TALKBACK_COPY_TO_CLIPBOARD", "false")
	t.Setenv("TALKBACK_METRICS_ADDR", "127.0.0.1:9464")
	t.Setenv("TALKBACK_VAR_API_KEY", "from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Deepgram.APIKey != "test-key" || cfg.Deepgram.Model != "nova-3" || cfg.Deepgram.SmartFormat {
		t.Fatalf("unexpected deepgram config: %+v", cfg.Deepgram)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Fatalf("expected sample rate fallback, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.Channels != 1 {
		t.Fatalf("expected channels clamp, got %d", cfg.Audio.Channels)
	}
	if cfg.Session.ChunkSize != 4096 {
		t.Fatalf("expected chunk size clamp, got %d", cfg.Session.ChunkSize)
	}
	if cfg.VAD.SilenceThresholdDB != -50.5 || cfg.VAD.SilenceDurationMs != 1200 {
		t.Fatalf("unexpected vad overrides: %+v", cfg.VAD)
	}
	if cfg.Session.CopyToClipboard {
		t.Fatalf("expected clipboard copy disabled")
	}
	if cfg.Metrics.Addr != "127.0.0.1:9464" {
		t.Fatalf("unexpected metrics addr: %q", cfg.Metrics.Addr)
	}
	if cfg.Vars["API_KEY"] != "from-env" {
		t.Fatalf("expected env var to win, got %v", cfg.Vars)
	}
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	home := isolate(t)
	if _, err := LoadFrom(filepath.Join(home, "missing.yaml")); err == nil {
		t.Fatalf("expected missing explicit config to fail")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "bad.yaml")
	writeFile(t, path, "vad: [\n")
	if _, err := LoadFrom(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := Default("/home/test")
	if err := base.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	cases := map[string]func(*Config){
		"bad vad mode":          func(c *Config) { c.VAD.Mode = "push-to-talk" },
		"zero max duration":     func(c *Config) { c.VAD.MaxRecordingDurationSecs = 0 },
		"unknown provider":      func(c *Config) { c.Transcription.Provider = "whisper" },
		"template missing body": func(c *Config) { c.Transcription.Provider = ProviderTemplate },
		"empty data dir":        func(c *Config) { c.Storage.DataDir = " " },
	}
	for name, mutate := range cases {
		cfg := Default("/home/test")
		mutate(&cfg)
		err := cfg.Validate()
		if !apperrors.Is(err, domain.ErrorCodeValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}
