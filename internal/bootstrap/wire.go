package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"talkback/internal/audio"
	"talkback/internal/config"
	"talkback/internal/conversation"
	"talkback/internal/domain"
	apperrors "talkback/internal/errors"
	"talkback/internal/metrics"
	"talkback/internal/observability"
	"talkback/internal/ports"
	"talkback/internal/quickaction"
	"talkback/internal/rules"
	"talkback/internal/store"
	"talkback/internal/usecase"
)

// Options are the host-specific pieces of the runtime graph.
type Options struct {
	// Config skips config.Load when set.
	Config    *config.Config
	Events    ports.EventSink
	Clipboard ports.Clipboard
	Logger    *slog.Logger

	// Audio replaces the ffmpeg recorder. It also lists devices when it
	// implements ports.DeviceLister.
	Audio ports.AudioCapture
}

// Services is the assembled runtime graph.
type Services struct {
	Config        config.Config
	Logger        *slog.Logger
	Store         *store.SQLite
	Conversations *conversation.Store
	QuickActions  *quickaction.Manager
	Controller    *usecase.CaptureController
	Responder     *usecase.Responder
	Permission    *audio.PermissionProbe
	Devices       ports.DeviceLister
	Metrics       *metrics.Metrics
	Registry      *prometheus.Registry
}

// Build wires all backend dependencies for the current runtime.
func Build(ctx context.Context, opts Options) (*Services, error) {
	var cfg config.Config
	if opts.Config != nil {
		cfg = *opts.Config
	} else {
		loaded, err := config.Load()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	logger := opts.Logger
	if logger == nil {
		logger = observability.New(observability.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, nil)
	}

	rulesEngine, err := rules.Load(cfg.Rules.Path)
	if err != nil {
		return nil, err
	}
	transcriber, err := NewTranscriber(cfg)
	if err != nil {
		return nil, err
	}
	chat, err := NewChat(cfg)
	if err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, err
	}

	conversations := conversation.NewStore(db, opts.Events)
	if err := conversations.Load(ctx); err != nil {
		db.Close()
		return nil, err
	}

	responder := usecase.NewResponder(chat, cfg.AITimeout(), cfg.AI.HistoryLimit)
	quickActions := quickaction.NewManager(db, responder, conversations)
	if err := quickActions.Load(ctx); err != nil {
		db.Close()
		return nil, err
	}

	controllerCfg := usecase.Config{
		Audio: ports.AudioConfig{
			SampleRate:  cfg.Audio.SampleRate,
			Channels:    cfg.Audio.Channels,
			InputFormat: cfg.Audio.InputFormat,
			InputDevice: cfg.Audio.InputDevice,
		},
		Vad:             cfg.VAD,
		FrameDuration:   cfg.FrameDuration(),
		TickInterval:    cfg.TickInterval(),
		ChunkSize:       cfg.Session.ChunkSize,
		CopyToClipboard: cfg.Session.CopyToClipboard,
		SystemPrompt:    cfg.AI.SystemPrompt,
		UseSystemPrompt: cfg.AI.UseSystemPrompt,
	}
	if err := applyPersistedSettings(ctx, db, &controllerCfg, logger); err != nil {
		db.Close()
		return nil, err
	}

	recorder := audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand)
	var (
		audioCapture ports.AudioCapture = recorder
		devices      ports.DeviceLister = recorder
	)
	if opts.Audio != nil {
		audioCapture = opts.Audio
		if lister, ok := opts.Audio.(ports.DeviceLister); ok {
			devices = lister
		}
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	permission := audio.NewPermissionProbe(cfg.Audio.RecorderCommand)

	controller := usecase.NewCaptureController(usecase.Deps{
		Audio:         audioCapture,
		Permission:    permission,
		Dispatcher:    usecase.NewDispatcher(transcriber, cfg.TranscriptionTimeout()),
		Responder:     responder,
		Conversations: conversations,
		Rules:         rulesEngine,
		Clipboard:     opts.Clipboard,
		Events:        opts.Events,
		Settings:      db,
		Metrics:       m,
		Logger:        logger,
	}, controllerCfg)

	logger.Info("runtime assembled",
		"transcriber", transcriber.Name(),
		"ai_enabled", responder.Enabled(),
		"rules", rulesEngine.Len(),
		"data_dir", cfg.Storage.DataDir,
	)

	return &Services{
		Config:        cfg,
		Logger:        logger,
		Store:         db,
		Conversations: conversations,
		QuickActions:  quickActions,
		Controller:    controller,
		Responder:     responder,
		Permission:    permission,
		Devices:       devices,
		Metrics:       m,
		Registry:      registry,
	}, nil
}

// ListDevices returns the capture sources for the configured input format,
// flagging the one the next session opens.
func (s *Services) ListDevices(ctx context.Context) ([]domain.AudioDevice, error) {
	devices, err := s.Devices.ListDevices(ctx, s.Config.Audio.InputFormat)
	if err != nil {
		return nil, apperrors.NewCaptureDevice(err)
	}
	selected := s.Controller.InputDevice()
	for i := range devices {
		devices[i].Selected = devices[i].ID == selected
	}
	return devices, nil
}

// ServeMetrics exposes /metrics until ctx ends. It is a no-op without an address.
func (s *Services) ServeMetrics(ctx context.Context) {
	if s.Config.Metrics.Addr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, s.Config.Metrics.Addr, s.Registry, s.Logger); err != nil {
			s.Logger.Warn("metrics endpoint stopped", "error", err)
		}
	}()
}

// Close stops capture, drains in-flight pipelines and closes storage.
func (s *Services) Close() error {
	s.Controller.Close()
	return s.Store.Close()
}

// applyPersistedSettings lets values saved through the UI win over file and
// environment configuration.
func applyPersistedSettings(ctx context.Context, settings ports.SettingsRepository, cfg *usecase.Config, logger *slog.Logger) error {
	vadCfg, ok, err := settings.LoadVadConfig(ctx)
	if err != nil {
		return fmt.Errorf("load vad config: %w", err)
	}
	if ok {
		if err := vadCfg.Validate(); err != nil {
			logger.Warn("ignoring persisted vad config", "error", err)
		} else {
			cfg.Vad = vadCfg
		}
	}

	if value, ok, err := settings.LoadSetting(ctx, usecase.SettingSystemPrompt); err != nil {
		return fmt.Errorf("load system prompt: %w", err)
	} else if ok {
		cfg.SystemPrompt = value
	}

	if value, ok, err := settings.LoadSetting(ctx, usecase.SettingUseSystemPrompt); err != nil {
		return fmt.Errorf("load system prompt toggle: %w", err)
	} else if ok {
		if enabled, err := strconv.ParseBool(value); err == nil {
			cfg.UseSystemPrompt = enabled
		}
	}

	if value, ok, err := settings.LoadSetting(ctx, usecase.SettingContext); err != nil {
		return fmt.Errorf("load context: %w", err)
	} else if ok {
		cfg.Context = value
	}

	if value, ok, err := settings.LoadSetting(ctx, usecase.SettingInputDevice); err != nil {
		return fmt.Errorf("load input device: %w", err)
	} else if ok && value != "" {
		cfg.Audio.InputDevice = value
	}
	return nil
}
