package httptemplate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	apperrors "talkback/internal/errors"
	"talkback/internal/ports"
	"talkback/internal/provider"
)

// Chat completes prompts against a templated chat endpoint.
type Chat struct {
	client client
}

// NewChat returns a Chat for an AI descriptor.
func NewChat(desc provider.Descriptor, httpClient *http.Client) (*Chat, error) {
	if desc.Kind != provider.KindAI {
		return nil, apperrors.NewValidationf("descriptor %q is not an AI template", desc.Name)
	}
	return &Chat{client: newClient(desc, httpClient)}, nil
}

func (c *Chat) Name() string { return c.client.desc.Name }

// Complete fills {{TEXT}} with the final user message, {{SYSTEM_PROMPT}} with
// the system prompt and {{MESSAGES}} with the whole exchange as a JSON array.
func (c *Chat) Complete(ctx context.Context, prompt ports.Prompt) (string, error) {
	messages := make([]ports.Message, 0, len(prompt.Messages)+1)
	if prompt.System != "" {
		messages = append(messages, ports.Message{Role: "system", Content: prompt.System})
	}
	messages = append(messages, prompt.Messages...)
	encoded, err := json.Marshal(messages)
	if err != nil {
		return "", fmt.Errorf("failed to encode messages: %w", err)
	}

	return c.client.do(ctx, request{
		values: map[string]string{
			provider.PlaceholderText:         prompt.UserText(),
			provider.PlaceholderSystemPrompt: prompt.System,
			provider.PlaceholderMessages:     string(encoded),
		},
		raw: map[string]bool{provider.PlaceholderMessages: true},
	})
}
