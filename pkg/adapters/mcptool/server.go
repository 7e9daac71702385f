// Package mcptool exposes the agent as an MCP server so model-driven
// clients can open sessions and ask financial questions as tools.
package mcptool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	pennywise "github.com/pennywise-ai/pennywise"
	"github.com/pennywise-ai/pennywise/internal/logging"
	"github.com/pennywise-ai/pennywise/internal/presentation/graph"
	"github.com/pennywise-ai/pennywise/pkg/domain"
)

// AskResponse is the structured result of the ask tool.
type AskResponse struct {
	SessionID string `json:"session_id" jsonschema_description:"Session the turn ran in"`
	Answer    string `json:"answer" jsonschema_description:"The agent's answer"`
	Steps     int    `json:"steps" jsonschema_description:"Steps executed this turn"`
}

// Server wraps the agent and exposes it over MCP.
type Server struct {
	agent     *pennywise.Agent
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer builds the MCP surface for the agent.
func NewServer(agent *pennywise.Agent, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		agent:     agent,
		logger:    logger,
		mcpServer: server.NewMCPServer("pennywise-mcp", pennywise.Version),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("create_session",
		mcp.WithDescription("Open a new conversation session. Returns the session ID to pass to ask."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := s.agent.CreateSession(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("create session failed: %v", err)), nil
		}
		return mcp.NewToolResultText(string(id)), nil
	})

	askTool := mcp.NewTool("ask",
		mcp.WithDescription("Ask a question about the user's finances within a session. Creates a session when session_id is omitted."),
		mcp.WithString("message", mcp.Required(), mcp.Description("The user's question")),
		mcp.WithString("session_id", mcp.Description("Session to continue (optional)")),
		mcp.WithOutputSchema[AskResponse](),
	)
	s.mcpServer.AddTool(askTool, mcp.NewStructuredToolHandler(s.handleAsk))

	s.mcpServer.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List open session IDs."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ids, err := s.agent.Sessions(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
		}
		jsonBytes, _ := json.Marshal(ids)
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})

	s.mcpServer.AddTool(mcp.NewTool("close_session",
		mcp.WithDescription("Delete a session and its history."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to delete")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := request.GetString("session_id", "")
		if id == "" {
			return mcp.NewToolResultError("session_id is required"), nil
		}
		if err := s.agent.CloseSession(ctx, domain.SessionID(id)); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("close failed: %v", err)), nil
		}
		return mcp.NewToolResultText("closed"), nil
	})
}

func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (AskResponse, error) {
	message, _ := args["message"].(string)
	if message == "" {
		return AskResponse{}, fmt.Errorf("message is required")
	}

	var id domain.SessionID
	if raw, ok := args["session_id"].(string); ok && raw != "" {
		id = domain.SessionID(raw)
	} else {
		created, err := s.agent.CreateSession(ctx)
		if err != nil {
			return AskResponse{}, fmt.Errorf("create session failed: %w", err)
		}
		id = created
	}

	res, err := s.agent.Turn(ctx, id, message)
	if err != nil {
		s.logger.Warn("mcp ask failed", "session_id", id, "error", err)
		return AskResponse{}, fmt.Errorf("turn failed: %w", err)
	}

	return AskResponse{
		SessionID: string(res.SessionID),
		Answer:    res.Answer,
		Steps:     res.Steps,
	}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("pennywise://graph", "Step Graph",
		mcp.WithMIMEType("text/plain"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "pennywise://graph",
				MIMEType: "text/plain",
				Text:     graph.GenerateMermaid(s.agent.Steps(), nil),
			},
		}, nil
	})
}
