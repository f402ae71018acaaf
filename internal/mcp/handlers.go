package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"talkback/internal/domain"
	apperrors "talkback/internal/errors"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	history History
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(history History) *Handlers {
	return &Handlers{history: history}
}

// ListRequest represents the arguments for conversation_list.
type ListRequest struct {
	Limit int `json:"limit,omitempty"`
}

// GetRequest represents the arguments for conversation_get.
type GetRequest struct {
	ID string `json:"id"`
}

// ConversationSummary is one row of conversation_list.
type ConversationSummary struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	TurnCount int       `json:"turnCount"`
	Active    bool      `json:"active"`
	Preview   string    `json:"preview,omitempty"`
}

// HandleList handles the conversation_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(apperrors.NewValidation(err.Error())), nil
	}
	if input.Limit < 0 {
		return errorResult(apperrors.NewValidation("limit cannot be negative")), nil
	}

	conversations, err := h.history.ListConversations(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	activeID, err := h.history.ActiveConversation(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	if input.Limit > 0 && len(conversations) > input.Limit {
		conversations = conversations[len(conversations)-input.Limit:]
	}

	items := make([]ConversationSummary, 0, len(conversations))
	for _, conv := range conversations {
		summary := ConversationSummary{
			ID:        conv.ID,
			CreatedAt: conv.CreatedAt,
			TurnCount: len(conv.Turns),
			Active:    conv.ID == activeID,
		}
		if len(conv.Turns) > 0 {
			summary.Preview = preview(conv.Turns[0].Transcript)
		}
		items = append(items, summary)
	}
	return successResult(map[string]any{"conversations": items})
}

// HandleGet handles the conversation_get tool call.
func (h *Handlers) HandleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[GetRequest](req)
	if err != nil {
		return errorResult(apperrors.NewValidation(err.Error())), nil
	}
	if strings.TrimSpace(input.ID) == "" {
		return errorResult(apperrors.NewValidation("id is required")), nil
	}

	conv, err := h.find(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(conv)
}

// HandleActive handles the conversation_active tool call.
func (h *Handlers) HandleActive(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	activeID, err := h.history.ActiveConversation(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	if activeID == "" {
		return errorResult(apperrors.NewNotFound("conversation", "active")), nil
	}

	conv, err := h.find(ctx, activeID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(conv)
}

// HandleQuickActions handles the quick_action_list tool call.
func (h *Handlers) HandleQuickActions(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actions, err := h.history.ListQuickActions(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	if actions == nil {
		actions = []domain.QuickAction{}
	}
	return successResult(map[string]any{"quickActions": actions})
}

func (h *Handlers) find(ctx context.Context, id string) (domain.Conversation, error) {
	conversations, err := h.history.ListConversations(ctx)
	if err != nil {
		return domain.Conversation{}, err
	}
	for _, conv := range conversations {
		if conv.ID == id {
			if conv.Turns == nil {
				conv.Turns = []domain.ConversationTurn{}
			}
			return conv, nil
		}
	}
	return domain.Conversation{}, apperrors.NewNotFound("conversation", id)
}

func preview(text string) string {
	const limit = 80
	text = strings.TrimSpace(text)
	if len([]rune(text)) <= limit {
		return text
	}
	return string([]rune(text)[:limit]) + "…"
}

// decode unmarshals MCP request arguments into a typed struct.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var result T
	b, err := json.Marshal(req.GetArguments())
	if err != nil {
		return result, fmt.Errorf("marshal args: %w", err)
	}
	if err := json.Unmarshal(b, &result); err != nil {
		return result, fmt.Errorf("unmarshal args: %w", err)
	}
	return result, nil
}

// errorResult creates an MCP error result. Internal error details are not
// exposed.
func errorResult(err error) *mcp.CallToolResult {
	errorObj := map[string]any{
		"code":    string(domain.ErrorCodeInternal),
		"message": "an internal error occurred",
	}

	var appErr *apperrors.Error
	if stderrors.As(err, &appErr) && appErr.Code != domain.ErrorCodeInternal {
		errorObj["code"] = string(appErr.Code)
		errorObj["message"] = appErr.Message
		if appErr.Details != nil {
			errorObj["details"] = appErr.Details
		}
	}

	content, _ := json.Marshal(map[string]any{"error": errorObj})
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
