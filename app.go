package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"talkback/internal/bootstrap"
	"talkback/internal/config"
	"talkback/internal/domain"
	apperrors "talkback/internal/errors"
	"talkback/internal/markdown"
	"talkback/internal/quickaction"
)

const (
	eventState        = "talkback:state"
	eventProgress     = "talkback:progress"
	eventTurn         = "talkback:turn"
	eventConversation = "talkback:conversation"
	eventError        = "talkback:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	services *bootstrap.Services
	bootErr  error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(ctx, bootstrap.Options{
		Events:    a,
		Clipboard: &wailsClipboard{ctx: ctx},
	})
	if err != nil {
		a.bootErr = err
		a.Error(domain.ErrorCodeInternal, err.Error())
		return
	}

	a.services = services
	services.ServeMetrics(ctx)
	a.StateChanged(services.Controller.Status(), domain.ReasonReady)
}

func (a *App) shutdown(_ context.Context) {
	if a.services == nil {
		return
	}
	if err := a.services.Close(); err != nil {
		a.services.Logger.Warn("shutdown failed", "error", err)
	}
}

// StartCapture begins a capture session using the current VAD configuration.
func (a *App) StartCapture() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	err := a.services.Controller.StartCapture(a.ctx)
	return a.services.Controller.Status(), err
}

// StopCapture finalizes the current segment and sends it for transcription.
func (a *App) StopCapture() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	err := a.services.Controller.StopCapture(a.ctx)
	return a.services.Controller.Status(), err
}

// ManualStopAndSend flushes a continuous recording before the hard cap.
func (a *App) ManualStopAndSend() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	err := a.services.Controller.ManualStopAndSend(a.ctx)
	return a.services.Controller.Status(), err
}

// AcknowledgeError dismisses the error banner.
func (a *App) AcknowledgeError() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	err := a.services.Controller.AcknowledgeError(a.ctx)
	return a.services.Controller.Status(), err
}

// SetPermission records the OS permission decision and relays it.
func (a *App) SetPermission(granted bool) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.services.Permission.Set(granted)
	return a.services.Controller.SetPermission(a.ctx, granted)
}

// SetVisibility reports popover visibility. Hiding never stops capture.
func (a *App) SetVisibility(visible bool) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Controller.SetVisibility(a.ctx, visible)
}

// GetStatus returns the current capture status.
func (a *App) GetStatus() domain.Status {
	if a.services == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.CaptureStateError, Error: a.bootErr.Error()}
		}
		return domain.Status{State: domain.CaptureStateIdle}
	}
	return a.services.Controller.Status()
}

// GetSession returns the active capture session, or nil.
func (a *App) GetSession() *domain.CaptureSession {
	if a.services == nil {
		return nil
	}
	session, ok := a.services.Controller.Session()
	if !ok {
		return nil
	}
	return &session
}

// GetVadConfig returns the configuration the next session will use.
func (a *App) GetVadConfig() (domain.VadConfig, error) {
	if err := a.requireReady(); err != nil {
		return domain.VadConfig{}, err
	}
	return a.services.Controller.VadConfiguration(), nil
}

// UpdateVadConfig validates, applies and persists cfg.
func (a *App) UpdateVadConfig(cfg domain.VadConfig) (domain.VadConfig, error) {
	if err := a.requireReady(); err != nil {
		return domain.VadConfig{}, err
	}
	if err := a.services.Controller.UpdateVadConfiguration(a.ctx, cfg); err != nil {
		return a.services.Controller.VadConfiguration(), err
	}
	return a.services.Controller.VadConfiguration(), nil
}

// PromptSettings is the prompt composition state shown in settings.
type PromptSettings struct {
	Context         string `json:"context"`
	SystemPrompt    string `json:"systemPrompt"`
	UseSystemPrompt bool   `json:"useSystemPrompt"`
}

func (a *App) GetPromptSettings() (PromptSettings, error) {
	if err := a.requireReady(); err != nil {
		return PromptSettings{}, err
	}
	contextText, systemPrompt, use := a.services.Controller.PromptSettings()
	return PromptSettings{Context: contextText, SystemPrompt: systemPrompt, UseSystemPrompt: use}, nil
}

func (a *App) SetContext(text string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Controller.SetContext(a.ctx, text)
}

func (a *App) SetSystemPrompt(prompt string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Controller.SetSystemPrompt(a.ctx, prompt)
}

func (a *App) SetUseSystemPrompt(enabled bool) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Controller.SetUseSystemPrompt(a.ctx, enabled)
}

// GenerateSystemPrompt drafts a system prompt with the AI provider and,
// when save is set, stores it.
func (a *App) GenerateSystemPrompt(description string, save bool) (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}
	generated, err := a.services.Responder.GenerateSystemPrompt(a.ctx, description)
	if err != nil {
		return "", err
	}
	if save {
		if err := a.services.Controller.SetSystemPrompt(a.ctx, generated); err != nil {
			return generated, err
		}
	}
	return generated, nil
}

// ListAudioDevices returns the capture sources the recorder can open.
func (a *App) ListAudioDevices() ([]domain.AudioDevice, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	return a.services.ListDevices(a.ctx)
}

// SelectAudioDevice switches the capture source for the next session.
func (a *App) SelectAudioDevice(id string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Controller.SelectInputDevice(a.ctx, id)
}

// ListConversations returns every conversation, oldest first.
func (a *App) ListConversations() ([]domain.Conversation, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	return a.services.Conversations.List(), nil
}

// GetActiveConversation returns the conversation receiving turns. The zero
// value means none has been started yet.
func (a *App) GetActiveConversation() (domain.Conversation, error) {
	if err := a.requireReady(); err != nil {
		return domain.Conversation{}, err
	}
	return a.services.Conversations.Active(), nil
}

func (a *App) GetConversation(id string) (domain.Conversation, error) {
	if err := a.requireReady(); err != nil {
		return domain.Conversation{}, err
	}
	return a.services.Conversations.Get(id)
}

func (a *App) StartNewConversation() (domain.Conversation, error) {
	if err := a.requireReady(); err != nil {
		return domain.Conversation{}, err
	}
	return a.services.Conversations.StartNewConversation(a.ctx)
}

func (a *App) SelectConversation(id string) (domain.Conversation, error) {
	if err := a.requireReady(); err != nil {
		return domain.Conversation{}, err
	}
	return a.services.Conversations.Select(a.ctx, id)
}

func (a *App) ListQuickActions() ([]domain.QuickAction, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	return a.services.QuickActions.List(), nil
}

func (a *App) AddQuickAction(label, template string) (domain.QuickAction, error) {
	if err := a.requireReady(); err != nil {
		return domain.QuickAction{}, err
	}
	return a.services.QuickActions.Add(a.ctx, label, template)
}

func (a *App) RemoveQuickAction(id string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.QuickActions.Remove(a.ctx, id)
}

// SetManagingQuickActions toggles the editing view. Dispatch keeps working.
func (a *App) SetManagingQuickActions(managing bool) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.services.QuickActions.SetManaging(managing)
	return nil
}

// DispatchQuickAction sends a saved prompt to the AI step without capturing.
// The template's {{transcript}} is filled from transcript, or from the last
// transcription when transcript is empty.
func (a *App) DispatchQuickAction(id string, transcript string) (domain.ConversationTurn, error) {
	if err := a.requireReady(); err != nil {
		return domain.ConversationTurn{}, err
	}
	if transcript == "" {
		transcript = a.services.Controller.Status().LastTranscription
	}
	in := quickaction.InputFrom(a.services.Controller, transcript)
	turn, err := a.services.QuickActions.Dispatch(a.ctx, id, in)
	if err != nil {
		a.Error(apperrors.CodeOf(err), err.Error())
	}
	return turn, err
}

// RenderMarkdown converts an AI response to HTML for display.
func (a *App) RenderMarkdown(text string) string {
	return markdown.ToHTML(text)
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	if a.services == nil {
		return map[string]string{}
	}

	cfg := a.services.Config
	info := map[string]string{
		"transcriptionProvider": cfg.Transcription.Provider,
		"aiEnabled":             strconv.FormatBool(a.services.Responder.Enabled()),
		"rulesFile":             cfg.Rules.Path,
		"audioInput":            a.services.Controller.InputDevice(),
		"audioInputFormat":      cfg.Audio.InputFormat,
		"dataDir":               cfg.Storage.DataDir,
	}
	if cfg.Transcription.Provider != config.ProviderTemplate {
		info["model"] = cfg.Deepgram.Model
		info["language"] = cfg.Deepgram.Language
	}
	return info
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// StateChanged emits capture lifecycle updates to the frontend.
func (a *App) StateChanged(status domain.Status, reason domain.StateReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventState, map[string]any{
		"status":  status,
		"reason":  string(reason),
		"message": reasonMessage(reason),
	})
}

// Progress emits elapsed recording seconds.
func (a *App) Progress(sessionID string, elapsedSecs int) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventProgress, map[string]any{
		"sessionId":   sessionID,
		"elapsedSecs": elapsedSecs,
	})
}

// TurnAppended emits a new turn with its response rendered to HTML.
func (a *App) TurnAppended(conversationID string, turn domain.ConversationTurn) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventTurn, turnPayload(conversationID, turn))
}

func (a *App) ConversationStarted(conversationID string) {
	a.conversationEvent("started", conversationID)
}

func (a *App) ConversationSelected(conversationID string) {
	a.conversationEvent("selected", conversationID)
}

func (a *App) conversationEvent(kind, conversationID string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventConversation, map[string]string{
		"event": kind,
		"id":    conversationID,
	})
}

// Error emits backend errors to the UI.
func (a *App) Error(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func turnPayload(conversationID string, turn domain.ConversationTurn) map[string]any {
	payload := map[string]any{
		"conversationId": conversationID,
		"turn":           turn,
	}
	if turn.AIResponse != nil {
		payload["responseHtml"] = markdown.ToHTML(*turn.AIResponse)
	}
	return payload
}

func reasonMessage(reason domain.StateReason) string {
	switch reason {
	case domain.ReasonReady:
		return "Ready"
	case domain.ReasonPermissionMissing:
		return "Audio capture permission required"
	case domain.ReasonPermissionGranted:
		return "Permission granted"
	case domain.ReasonCaptureStarted:
		return "Listening..."
	case domain.ReasonSilenceDetected:
		return "Silence detected. Transcribing..."
	case domain.ReasonMaxDurationReached:
		return "Recording limit reached. Transcribing..."
	case domain.ReasonManualStop:
		return "Recording stopped. Transcribing..."
	case domain.ReasonEmptyCapture:
		return "Nothing was recorded"
	case domain.ReasonDeviceFailed:
		return "Audio device failed"
	case domain.ReasonTranscriptionFailed:
		return "Transcription failed"
	case domain.ReasonNoSpeech:
		return "No speech detected"
	case domain.ReasonResponding:
		return "Thinking..."
	case domain.ReasonTurnAppended:
		return "Response ready"
	case domain.ReasonResponseFailed:
		return "AI response failed"
	case domain.ReasonPersistFailed:
		return "Could not save the conversation"
	case domain.ReasonErrorAcknowledged:
		return "Ready"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeSetupRequired:
		return "Setup required"
	case domain.ErrorCodeCaptureDevice:
		return "Audio device issue"
	case domain.ErrorCodeBusy:
		return "Still working on the previous request"
	case domain.ErrorCodeProvider:
		return "Provider request failed"
	case domain.ErrorCodeDuplicate:
		return "A quick action with that label already exists"
	case domain.ErrorCodeValidation:
		return "Invalid settings"
	case domain.ErrorCodeNotFound:
		return "Not found"
	case domain.ErrorCodeNoSession:
		return "Nothing is being recorded"
	case domain.ErrorCodeInternal:
		return "Unexpected error"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

// wailsClipboard writes through the Wails runtime, which only accepts the
// application context.
type wailsClipboard struct {
	ctx context.Context
}

func (c *wailsClipboard) SetText(_ context.Context, text string) error {
	return runtime.ClipboardSetText(c.ctx, text)
}
