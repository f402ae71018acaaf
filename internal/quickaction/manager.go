package quickaction

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"talkback/internal/domain"
	apperrors "talkback/internal/errors"
	"talkback/internal/ids"
	"talkback/internal/ports"
	"talkback/internal/usecase"
)

var (
	placeholderPattern = regexp.MustCompile(`\{\{\s*(transcript|context)\s*\}\}`)
	errNoAIProvider    = errors.New("no AI provider configured")
)

// Responder is the AI step quick actions route through.
type Responder interface {
	Respond(ctx context.Context, in usecase.PromptInput) (string, bool, error)
}

// DispatchInput is the material a quick action is rendered against.
type DispatchInput struct {
	Transcript   string
	Context      string
	SystemPrompt string
}

// PromptSettings is the source of the context and system prompt a dispatch
// inherits when the caller supplies only a transcript.
type PromptSettings interface {
	PromptSettings() (contextText string, systemPrompt string, useSystemPrompt bool)
}

// InputFrom builds a dispatch input from the current prompt settings.
func InputFrom(settings PromptSettings, transcript string) DispatchInput {
	contextText, systemPrompt, use := settings.PromptSettings()
	if !use {
		systemPrompt = ""
	}
	return DispatchInput{Transcript: transcript, Context: contextText, SystemPrompt: systemPrompt}
}

// Manager is the quick action registry. Labels are unique, compared
// case-sensitively.
type Manager struct {
	repo          ports.QuickActionRepository
	responder     Responder
	conversations usecase.ConversationLog
	newID         func() string
	now           func() time.Time

	mu       sync.RWMutex
	actions  []domain.QuickAction
	managing bool
}

func NewManager(repo ports.QuickActionRepository, responder Responder, conversations usecase.ConversationLog) *Manager {
	return &Manager{
		repo:          repo,
		responder:     responder,
		conversations: conversations,
		newID:         ids.New,
		now:           time.Now,
	}
}

// Load reads the registry from the repository.
func (m *Manager) Load(ctx context.Context) error {
	if m.repo == nil {
		return nil
	}
	actions, err := m.repo.ListQuickActions(ctx)
	if err != nil {
		return fmt.Errorf("load quick actions: %w", err)
	}
	m.mu.Lock()
	m.actions = append([]domain.QuickAction(nil), actions...)
	m.mu.Unlock()
	return nil
}

// Add registers a new action. A label equal to an existing one fails with
// DuplicateLabel.
func (m *Manager) Add(ctx context.Context, label, template string) (domain.QuickAction, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return domain.QuickAction{}, apperrors.NewValidation("quick action label is required")
	}
	if strings.TrimSpace(template) == "" {
		return domain.QuickAction{}, apperrors.NewValidation("quick action prompt template is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.actions {
		if existing.Label == label {
			return domain.QuickAction{}, apperrors.NewDuplicateLabel(label)
		}
	}

	action := domain.QuickAction{
		ID:             m.newID(),
		Label:          label,
		PromptTemplate: template,
		CreatedAt:      m.now().UTC(),
	}
	if m.repo != nil {
		if err := m.repo.InsertQuickAction(ctx, action); err != nil {
			return domain.QuickAction{}, err
		}
	}
	m.actions = append(m.actions, action)
	return action, nil
}

// Remove deletes an action. Unknown ids are ignored.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.repo != nil {
		if err := m.repo.DeleteQuickAction(ctx, id); err != nil {
			return fmt.Errorf("delete quick action: %w", err)
		}
	}
	for i, action := range m.actions {
		if action.ID == id {
			m.actions = append(m.actions[:i], m.actions[i+1:]...)
			break
		}
	}
	return nil
}

// List returns the registry in creation order.
func (m *Manager) List() []domain.QuickAction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.QuickAction, len(m.actions))
	copy(out, m.actions)
	return out
}

// Get returns one action.
func (m *Manager) Get(id string) (domain.QuickAction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, action := range m.actions {
		if action.ID == id {
			return action, nil
		}
	}
	return domain.QuickAction{}, apperrors.NewNotFound("quick action", id)
}

// SetManaging toggles whether edit controls are exposed.
func (m *Manager) SetManaging(managing bool) {
	m.mu.Lock()
	m.managing = managing
	m.mu.Unlock()
}

func (m *Manager) IsManaging() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.managing
}

// Dispatch renders the action against in and sends it straight to the AI
// step, bypassing capture and transcription. The resulting turn is appended
// even when the provider fails; the provider error is returned alongside it.
func (m *Manager) Dispatch(ctx context.Context, id string, in DispatchInput) (domain.ConversationTurn, error) {
	action, err := m.Get(id)
	if err != nil {
		return domain.ConversationTurn{}, err
	}

	prompt, contextText := Render(action.PromptTemplate, in)
	if strings.TrimSpace(prompt) == "" {
		return domain.ConversationTurn{}, apperrors.NewValidationf("quick action %q rendered an empty prompt", action.Label)
	}
	input := usecase.PromptInput{
		Transcript:   prompt,
		Context:      contextText,
		SystemPrompt: in.SystemPrompt,
	}
	if m.conversations != nil {
		input.History = m.conversations.Active().Turns
	}

	response, attempted, respErr := m.responder.Respond(ctx, input)
	if !attempted && respErr == nil {
		return domain.ConversationTurn{}, apperrors.NewProvider("none", errNoAIProvider)
	}

	actionID := action.ID
	turn := domain.ConversationTurn{
		ID:               m.newID(),
		CreatedAt:        m.now().UTC(),
		Transcript:       prompt,
		ContextUsed:      domain.StringPtr(contextText),
		SystemPromptUsed: domain.StringPtr(in.SystemPrompt),
		QuickActionID:    &actionID,
	}
	if respErr == nil {
		turn.AIResponse = &response
	}

	if m.conversations != nil {
		stored, err := m.conversations.AppendTurn(ctx, turn)
		if err != nil {
			return turn, apperrors.NewInternal(err)
		}
		turn = stored
	}
	return turn, respErr
}

// Render fills {{transcript}} and {{context}}. A template with neither
// placeholder is sent as-is, with the transcript supplied as context.
func Render(template string, in DispatchInput) (prompt string, contextText string) {
	if !placeholderPattern.MatchString(template) {
		return strings.TrimSpace(template), joinContext(in.Context, in.Transcript)
	}

	usesContext := false
	prompt = placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		switch placeholderPattern.FindStringSubmatch(match)[1] {
		case "transcript":
			return in.Transcript
		default:
			usesContext = true
			return in.Context
		}
	})
	if usesContext {
		return strings.TrimSpace(prompt), ""
	}
	return strings.TrimSpace(prompt), strings.TrimSpace(in.Context)
}

func joinContext(parts ...string) string {
	var kept []string
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, "\n\n")
}
