package ports

import (
	"context"
	"io"

	"talkback/internal/domain"
)

// AudioConfig describes how system or microphone audio should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture producing signed 16-bit little-endian PCM.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// DeviceLister enumerates the capture sources for an input format.
type DeviceLister interface {
	ListDevices(ctx context.Context, format string) ([]domain.AudioDevice, error)
}

// PermissionChecker reports whether the platform allows audio capture.
type PermissionChecker interface {
	Check(ctx context.Context) (bool, error)
}

// Transcriber turns one finalized segment into text.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, segment domain.AudioSegment) (string, error)
}

// Role labels a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the chat history sent to the AI provider.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Prompt is a fully composed AI request.
type Prompt struct {
	System   string    `json:"system,omitempty"`
	Messages []Message `json:"messages"`
}

// UserText returns the content of the final user message.
func (p Prompt) UserText() string {
	for i := len(p.Messages) - 1; i >= 0; i-- {
		if p.Messages[i].Role == RoleUser {
			return p.Messages[i].Content
		}
	}
	return ""
}

// ChatProvider completes a composed prompt.
type ChatProvider interface {
	Name() string
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// RulesEngine transforms transcripts using deterministic rules.
type RulesEngine interface {
	Apply(text string) (string, error)
}

// Clipboard writes text into the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// EventSink emits backend state and notifications to the host UI.
type EventSink interface {
	StateChanged(status domain.Status, reason domain.StateReason)
	Progress(sessionID string, elapsedSecs int)
	TurnAppended(conversationID string, turn domain.ConversationTurn)
	ConversationStarted(conversationID string)
	ConversationSelected(conversationID string)
	Error(code domain.ErrorCode, detail string)
}

// ConversationRepository persists conversations. Turns are insert-only.
type ConversationRepository interface {
	CreateConversation(ctx context.Context, conv domain.Conversation) error
	AppendTurn(ctx context.Context, conversationID string, turn domain.ConversationTurn) error
	ListConversations(ctx context.Context) ([]domain.Conversation, error)
	SetActiveConversation(ctx context.Context, conversationID string) error
	ActiveConversation(ctx context.Context) (string, error)
}

// QuickActionRepository persists the quick action registry.
type QuickActionRepository interface {
	InsertQuickAction(ctx context.Context, action domain.QuickAction) error
	DeleteQuickAction(ctx context.Context, id string) error
	ListQuickActions(ctx context.Context) ([]domain.QuickAction, error)
}

// SettingsRepository persists VAD configuration and prompt composition settings.
type SettingsRepository interface {
	LoadVadConfig(ctx context.Context) (domain.VadConfig, bool, error)
	SaveVadConfig(ctx context.Context, cfg domain.VadConfig) error
	LoadSetting(ctx context.Context, key string) (string, bool, error)
	SaveSetting(ctx context.Context, key, value string) error
}
