package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"talkback/internal/domain"
	apperrors "talkback/internal/errors"
)

// Transcription providers.
const (
	ProviderDeepgram = "deepgram"
	ProviderTemplate = "template"
)

// Config stores runtime configuration for both binaries.
type Config struct {
	Storage       StorageConfig       `yaml:"storage"`
	Audio         AudioConfig         `yaml:"audio"`
	VAD           domain.VadConfig    `yaml:"vad"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Deepgram      DeepgramConfig      `yaml:"deepgram"`
	AI            AIConfig            `yaml:"ai"`
	Rules         RulesConfig         `yaml:"rules"`
	Session       SessionConfig       `yaml:"session"`
	Log           LogConfig           `yaml:"log"`
	Metrics       MetricsConfig       `yaml:"metrics"`

	// Vars feeds {{NAME}} substitution in provider templates.
	Vars map[string]string `yaml:"vars"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

type AudioConfig struct {
	RecorderCommand string `yaml:"recorder_command"`
	InputFormat     string `yaml:"input_format"`
	InputDevice     string `yaml:"input_device"`
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
}

type TranscriptionConfig struct {
	Provider    string `yaml:"provider"`
	Template    string `yaml:"template"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

type DeepgramConfig struct {
	APIKey      string `yaml:"api_key"`
	APIBaseURL  string `yaml:"api_base_url"`
	Model       string `yaml:"model"`
	Language    string `yaml:"language"`
	SmartFormat bool   `yaml:"smart_format"`
}

// AIConfig leaves the AI step disabled while Template is empty.
type AIConfig struct {
	Template        string `yaml:"template"`
	TimeoutSecs     int    `yaml:"timeout_secs"`
	HistoryLimit    int    `yaml:"history_limit"`
	SystemPrompt    string `yaml:"system_prompt"`
	UseSystemPrompt bool   `yaml:"use_system_prompt"`
}

type RulesConfig struct {
	Path string `yaml:"path"`
}

type SessionConfig struct {
	ChunkSize       int  `yaml:"chunk_size"`
	FrameMs         int  `yaml:"frame_ms"`
	TickIntervalMs  int  `yaml:"tick_interval_ms"`
	CopyToClipboard bool `yaml:"copy_to_clipboard"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig exposes /metrics when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// TranscriptionTimeout returns the provider timeout as a duration.
func (c Config) TranscriptionTimeout() time.Duration {
	return time.Duration(c.Transcription.TimeoutSecs) * time.Second
}

// AITimeout returns the AI provider timeout as a duration.
func (c Config) AITimeout() time.Duration {
	return time.Duration(c.AI.TimeoutSecs) * time.Second
}

// FrameDuration returns the PCM framing interval.
func (c Config) FrameDuration() time.Duration {
	return time.Duration(c.Session.FrameMs) * time.Millisecond
}

// TickInterval returns the wall-clock progress interval. Zero disables ticks.
func (c Config) TickInterval() time.Duration {
	if c.Session.TickIntervalMs <= 0 {
		return -1
	}
	return time.Duration(c.Session.TickIntervalMs) * time.Millisecond
}

// Default returns the configuration used when nothing is overridden.
func Default(home string) Config {
	return Config{
		Storage: StorageConfig{DataDir: filepath.Join(home, ".local", "share", "talkback")},
		Audio: AudioConfig{
			RecorderCommand: "ffmpeg",
			InputFormat:     "pulse",
			InputDevice:     "default",
			SampleRate:      16000,
			Channels:        1,
		},
		VAD:           domain.DefaultVadConfig(),
		Transcription: TranscriptionConfig{Provider: ProviderDeepgram, TimeoutSecs: 30},
		Deepgram: DeepgramConfig{
			APIBaseURL:  "https://api.deepgram.com/v1",
			Model:       "nova-2",
			SmartFormat: true,
		},
		AI: AIConfig{
			TimeoutSecs:     60,
			HistoryLimit:    10,
			UseSystemPrompt: true,
		},
		Rules: RulesConfig{Path: filepath.Join(home, ".config", "talkback", "rules.yaml")},
		Session: SessionConfig{
			ChunkSize:       4096,
			FrameMs:         20,
			TickIntervalMs:  1000,
			CopyToClipboard: true,
		},
		Log:  LogConfig{Level: "info", Format: "json"},
		Vars: map[string]string{},
	}
}

// Load resolves configuration from defaults, the YAML file named by
// TALKBACK_CONFIG (or ~/.config/talkback/config.yaml) and the environment.
func Load() (Config, error) {
	return LoadFrom("")
}

// LoadFrom is Load with an explicit config file path. An explicit path, from
// the argument or TALKBACK_CONFIG, must exist.
func LoadFrom(path string) (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	cfg := Default(home)

	required := true
	if path == "" {
		path = strings.TrimSpace(os.Getenv("TALKBACK_CONFIG"))
	}
	if path == "" {
		path = filepath.Join(home, ".config", "talkback", "config.yaml")
		required = false
	}
	if err := loadFile(path, required, &cfg); err != nil {
		return Config{}, err
	}

	applyEnv(&cfg)
	clamp(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, required bool, cfg *Config) error {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("failed to read config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %q: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Storage.DataDir = envOrDefault("TALKBACK_DATA_DIR", cfg.Storage.DataDir)

	cfg.Audio.RecorderCommand = envOrDefault("TALKBACK_FFMPEG_COMMAND", cfg.Audio.RecorderCommand)
	cfg.Audio.InputFormat = envOrDefault("TALKBACK_AUDIO_INPUT_FORMAT", cfg.Audio.InputFormat)
	cfg.Audio.InputDevice = envOrDefault("TALKBACK_AUDIO_INPUT_DEVICE", cfg.Audio.InputDevice)
	cfg.Audio.SampleRate = envOrDefaultInt("TALKBACK_SAMPLE_RATE", cfg.Audio.SampleRate)
	cfg.Audio.Channels = envOrDefaultInt("TALKBACK_CHANNELS", cfg.Audio.Channels)

	cfg.VAD.Mode = domain.CaptureMode(envOrDefault("TALKBACK_VAD_MODE", string(cfg.VAD.Mode)))
	cfg.VAD.SilenceThresholdDB = envOrDefaultFloat("TALKBACK_VAD_THRESHOLD_DB", cfg.VAD.SilenceThresholdDB)
	cfg.VAD.SilenceDurationMs = envOrDefaultInt("TALKBACK_VAD_SILENCE_MS", cfg.VAD.SilenceDurationMs)
	cfg.VAD.MaxRecordingDurationSecs = envOrDefaultInt("TALKBACK_MAX_RECORDING_SECS", cfg.VAD.MaxRecordingDurationSecs)

	cfg.Transcription.Provider = envOrDefault("TALKBACK_STT_PROVIDER", cfg.Transcription.Provider)
	cfg.Transcription.Template = envOrDefault("TALKBACK_STT_TEMPLATE", cfg.Transcription.Template)
	cfg.Transcription.TimeoutSecs = envOrDefaultInt("TALKBACK_STT_TIMEOUT_SECS", cfg.Transcription.TimeoutSecs)

	cfg.Deepgram.APIKey = envOrDefault("DEEPGRAM_API_KEY", cfg.Deepgram.APIKey)
	cfg.Deepgram.APIBaseURL = envOrDefault("DEEPGRAM_API_BASE", cfg.Deepgram.APIBaseURL)
	cfg.Deepgram.Model = envOrDefault("DEEPGRAM_MODEL", cfg.Deepgram.Model)
	cfg.Deepgram.Language = envOrDefault("DEEPGRAM_LANGUAGE", cfg.Deepgram.Language)
	cfg.Deepgram.SmartFormat = envOrDefaultBool("DEEPGRAM_SMART_FORMAT", cfg.Deepgram.SmartFormat)

	cfg.AI.Template = envOrDefault("TALKBACK_AI_TEMPLATE", cfg.AI.Template)
	cfg.AI.TimeoutSecs = envOrDefaultInt("TALKBACK_AI_TIMEOUT_SECS", cfg.AI.TimeoutSecs)
	cfg.AI.HistoryLimit = envOrDefaultInt("TALKBACK_AI_HISTORY_LIMIT", cfg.AI.HistoryLimit)
	cfg.AI.SystemPrompt = envOrDefault("TALKBACK_SYSTEM_PROMPT", cfg.AI.SystemPrompt)

	cfg.Rules.Path = envOrDefault("TALKBACK_RULES_FILE", cfg.Rules.Path)

	cfg.Session.ChunkSize = envOrDefaultInt("TALKBACK_AUDIO_CHUNK_SIZE", cfg.Session.ChunkSize)
	cfg.Session.CopyToClipboard = envOrDefaultBool("TALKBACK_COPY_TO_CLIPBOARD", cfg.Session.CopyToClipboard)

	cfg.Log.Level = envOrDefault("TALKBACK_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envOrDefault("TALKBACK_LOG_FORMAT", cfg.Log.Format)
	cfg.Metrics.Addr = envOrDefault("TALKBACK_METRICS_ADDR", cfg.Metrics.Addr)

	if cfg.Vars == nil {
		cfg.Vars = map[string]string{}
	}
	const varPrefix = "TALKBACK_VAR_"
	for _, entry := range os.Environ() {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(key, varPrefix) || len(key) == len(varPrefix) {
			continue
		}
		cfg.Vars[strings.TrimPrefix(key, varPrefix)] = value
	}
}

func clamp(cfg *Config) {
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Session.ChunkSize < 256 {
		cfg.Session.ChunkSize = 4096
	}
	if cfg.Session.FrameMs <= 0 {
		cfg.Session.FrameMs = 20
	}
	if cfg.Transcription.TimeoutSecs <= 0 {
		cfg.Transcription.TimeoutSecs = 30
	}
	if cfg.AI.TimeoutSecs <= 0 {
		cfg.AI.TimeoutSecs = 60
	}
	if cfg.AI.HistoryLimit < 0 {
		cfg.AI.HistoryLimit = 0
	}
}

// Validate rejects configurations the runtime cannot start with.
func (c Config) Validate() error {
	if err := c.VAD.Validate(); err != nil {
		return apperrors.NewValidationf("invalid vad config: %v", err)
	}
	switch c.Transcription.Provider {
	case ProviderDeepgram:
	case ProviderTemplate:
		if strings.TrimSpace(c.Transcription.Template) == "" {
			return apperrors.NewValidation("transcription provider \"template\" requires transcription.template")
		}
	default:
		return apperrors.NewValidationf("unknown transcription provider %q", c.Transcription.Provider)
	}
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		return apperrors.NewValidation("storage.data_dir cannot be empty")
	}
	return nil
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
