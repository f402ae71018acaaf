package bootstrap

import (
	"talkback/internal/config"
	"talkback/internal/ports"
	"talkback/internal/provider"
	"talkback/internal/providers/deepgram"
	"talkback/internal/providers/httptemplate"
)

// NewTranscriber builds the configured transcription provider.
func NewTranscriber(cfg config.Config) (ports.Transcriber, error) {
	if cfg.Transcription.Provider == config.ProviderTemplate {
		desc, err := provider.Parse(provider.KindTranscription, "stt-template", cfg.Transcription.Template, cfg.Vars)
		if err != nil {
			return nil, err
		}
		return httptemplate.NewTranscriber(desc, nil)
	}

	return deepgram.New(deepgram.Config{
		APIKey:      cfg.Deepgram.APIKey,
		APIBaseURL:  cfg.Deepgram.APIBaseURL,
		Model:       cfg.Deepgram.Model,
		Language:    cfg.Deepgram.Language,
		SmartFormat: cfg.Deepgram.SmartFormat,
		ChunkSize:   cfg.Session.ChunkSize,
	}), nil
}

// NewChat builds the AI provider. It returns nil when no template is set,
// which leaves the AI step disabled.
func NewChat(cfg config.Config) (ports.ChatProvider, error) {
	if cfg.AI.Template == "" {
		return nil, nil
	}
	desc, err := provider.Parse(provider.KindAI, "ai-template", cfg.AI.Template, cfg.Vars)
	if err != nil {
		return nil, err
	}
	return httptemplate.NewChat(desc, nil)
}
