// Package mcp exposes conversation history and quick actions to external
// history browsers over the Model Context Protocol.
package mcp

import (
	"context"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"talkback/internal/domain"
)

// History is the read-only view the tools query.
type History interface {
	ListConversations(ctx context.Context) ([]domain.Conversation, error)
	ActiveConversation(ctx context.Context) (string, error)
	ListQuickActions(ctx context.Context) ([]domain.QuickAction, error)
}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

var toolRegistry = map[string]toolEntry{
	"conversation_list": {
		def: mcp.NewTool("conversation_list",
			mcp.WithDescription("List conversations, oldest first, with turn counts"),
			mcp.WithNumber("limit", mcp.Description("Return only the most recent N conversations")),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"conversation_get": {
		def: mcp.NewTool("conversation_get",
			mcp.WithDescription("Fetch one conversation with all of its turns"),
			mcp.WithString("id", mcp.Required(), mcp.Description("Conversation id")),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGet },
	},
	"conversation_active": {
		def: mcp.NewTool("conversation_active",
			mcp.WithDescription("Fetch the conversation currently receiving turns"),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleActive },
	},
	"quick_action_list": {
		def: mcp.NewTool("quick_action_list",
			mcp.WithDescription("List saved quick actions"),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleQuickActions },
	},
}

// ToolNames returns the registered tool names in sorted order.
func ToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewServer creates an MCP server with every history tool registered.
func NewServer(history History, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"talkback",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(history)
	for _, name := range ToolNames() {
		entry := toolRegistry[name]
		s.AddTool(entry.def, entry.handler(h))
	}
	return s
}

// Run serves the tools over stdio until stdin closes.
func Run(history History, version string) error {
	return server.ServeStdio(NewServer(history, version))
}
