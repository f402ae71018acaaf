package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"talkback/internal/domain"
	apperrors "talkback/internal/errors"
	"talkback/internal/ports"
)

var errNoAIProvider = errors.New("no AI provider configured")

// PromptInput is everything the responder may fold into a request.
type PromptInput struct {
	Transcript   string
	Context      string
	SystemPrompt string
	History      []domain.ConversationTurn
}

// Responder composes prompts and forwards them to the chat provider.
type Responder struct {
	chat         ports.ChatProvider
	timeout      time.Duration
	historyLimit int
}

func NewResponder(chat ports.ChatProvider, timeout time.Duration, historyLimit int) *Responder {
	if historyLimit < 0 {
		historyLimit = 0
	}
	return &Responder{chat: chat, timeout: timeout, historyLimit: historyLimit}
}

// Enabled reports whether an AI provider is configured.
func (r *Responder) Enabled() bool {
	return r != nil && r.chat != nil
}

// Respond asks the provider for a response. The bool reports whether a call
// was attempted; an empty transcript or missing provider skips the call.
func (r *Responder) Respond(ctx context.Context, in PromptInput) (string, bool, error) {
	if !r.Enabled() || strings.TrimSpace(in.Transcript) == "" {
		return "", false, nil
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	response, err := r.chat.Complete(ctx, r.Compose(in))
	if err != nil {
		return "", true, apperrors.NewProvider(r.chat.Name(), err)
	}
	return strings.TrimSpace(response), true, nil
}

const systemPromptWriter = "You write system prompts for a voice assistant that answers transcribed speech. " +
	"Given a description of the assistant the user wants, reply with only the system prompt text: " +
	"second person, concise, no preamble, no quotes and no markdown headings."

// GenerateSystemPrompt asks the provider to draft a system prompt from a
// short description. History and context are never sent.
func (r *Responder) GenerateSystemPrompt(ctx context.Context, description string) (string, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return "", apperrors.NewValidation("describe the assistant you want")
	}
	if !r.Enabled() {
		return "", apperrors.NewProvider("none", errNoAIProvider)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	response, err := r.chat.Complete(ctx, ports.Prompt{
		System:   systemPromptWriter,
		Messages: []ports.Message{{Role: ports.RoleUser, Content: description}},
	})
	if err != nil {
		return "", apperrors.NewProvider(r.chat.Name(), err)
	}
	generated := strings.TrimSpace(response)
	if generated == "" {
		return "", apperrors.NewProvider(r.chat.Name(), errors.New("provider returned an empty system prompt"))
	}
	return generated, nil
}

// Compose builds the prompt: optional system prompt, the most recent history
// pairs, then the context block followed by the transcript.
func (r *Responder) Compose(in PromptInput) ports.Prompt {
	prompt := ports.Prompt{System: strings.TrimSpace(in.SystemPrompt)}

	history := in.History
	if r.historyLimit == 0 {
		history = nil
	} else if len(history) > r.historyLimit {
		history = history[len(history)-r.historyLimit:]
	}
	for _, turn := range history {
		if text := strings.TrimSpace(turn.Transcript); text != "" {
			prompt.Messages = append(prompt.Messages, ports.Message{Role: ports.RoleUser, Content: text})
		}
		if turn.AIResponse != nil && strings.TrimSpace(*turn.AIResponse) != "" {
			prompt.Messages = append(prompt.Messages, ports.Message{Role: ports.RoleAssistant, Content: *turn.AIResponse})
		}
	}

	prompt.Messages = append(prompt.Messages, ports.Message{
		Role:    ports.RoleUser,
		Content: composeUserMessage(in.Context, in.Transcript),
	})
	return prompt
}

func composeUserMessage(contextText, transcript string) string {
	transcript = strings.TrimSpace(transcript)
	contextText = strings.TrimSpace(contextText)
	if contextText == "" {
		return transcript
	}
	return "Context:\n" + contextText + "\n\n" + transcript
}
