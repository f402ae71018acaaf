package usecase

import (
	"context"
	"log/slog"
	"strings"

	"talkback/internal/domain"
	"talkback/internal/ports"
)

type transcriptFinalizer struct {
	rules     ports.RulesEngine
	clipboard ports.Clipboard
	events    ports.EventSink
	logger    *slog.Logger
}

func newTranscriptFinalizer(rules ports.RulesEngine, clipboard ports.Clipboard, events ports.EventSink, logger *slog.Logger) transcriptFinalizer {
	return transcriptFinalizer{rules: rules, clipboard: clipboard, events: events, logger: logger}
}

// Transform applies substitution rules. A rules failure keeps the raw text so
// a successful transcription is never lost.
func (f transcriptFinalizer) Transform(raw string) string {
	if f.rules == nil || raw == "" {
		return raw
	}
	transformed, err := f.rules.Apply(raw)
	if err != nil {
		f.logger.Warn("transcript rules failed", "error", err)
		f.events.Error(domain.ErrorCodeValidation, "transcript rules failed: "+err.Error())
		return raw
	}
	return strings.TrimSpace(transformed)
}

// Copy writes text to the clipboard. Failure is reported but not fatal.
func (f transcriptFinalizer) Copy(ctx context.Context, text string) bool {
	if f.clipboard == nil || text == "" {
		return false
	}
	if err := f.clipboard.SetText(ctx, text); err != nil {
		f.logger.Warn("clipboard write failed", "error", err)
		f.events.Error(domain.ErrorCodeInternal, "response ready but clipboard write failed")
		return false
	}
	return true
}
