package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mentora-ai/mentora/internal/retrieval"
	"github.com/mentora-ai/mentora/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store    *storage.Store
	Resolver ContextResolver
}

// NewMCPServer creates an MCP server exposing the persona knowledge base
// to agent clients.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"mentora",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("mentora — persona knowledge retrieval for tutoring sessions."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("resolve_context",
			mcp.WithDescription("Resolve grounding context for a learner question against a persona's knowledge base. Returns the winning tier (materials, links, fallback or none) and its items."),
			mcp.WithString("persona_id", mcp.Description("Persona whose knowledge base to search"), mcp.Required()),
			mcp.WithString("query", mcp.Description("The learner's question"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of items (default 5)")),
		),
		mcpResolveContext(deps),
	)

	s.AddTool(
		mcp.NewTool("list_materials",
			mcp.WithDescription("List a persona's uploaded materials with their processing status."),
			mcp.WithString("persona_id", mcp.Description("Persona whose materials to list"), mcp.Required()),
		),
		mcpListMaterials(deps),
	)

	s.AddTool(
		mcp.NewTool("add_link",
			mcp.WithDescription("Add a reference link to a persona's knowledge base."),
			mcp.WithString("persona_id", mcp.Description("Persona to attach the link to"), mcp.Required()),
			mcp.WithString("url", mcp.Description("The link URL"), mcp.Required()),
			mcp.WithString("title", mcp.Description("Link title")),
			mcp.WithString("description", mcp.Description("Short description of the link")),
		),
		mcpAddLink(deps),
	)

	s.AddTool(
		mcp.NewTool("session_transcript",
			mcp.WithDescription("Return the full ordered transcript of a tutoring session."),
			mcp.WithString("session_id", mcp.Description("Session to read"), mcp.Required()),
		),
		mcpSessionTranscript(deps),
	)

	return s
}

func mcpResolveContext(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		personaID, err := req.RequireString("persona_id")
		if err != nil {
			return mcpError("persona_id is required"), nil
		}
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 0)
		if limit < 0 {
			limit = 0
		}
		if limit > 50 {
			limit = 50
		}

		result, err := deps.Resolver.ResolveContextWith(ctx, personaID, query, retrieval.Options{MatchCount: limit})
		if err != nil {
			return mcpError(fmt.Sprintf("resolve failed: %v", err)), nil
		}

		b, err := json.Marshal(viewResult(result))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListMaterials(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		personaID, err := req.RequireString("persona_id")
		if err != nil {
			return mcpError("persona_id is required"), nil
		}

		materials, err := deps.Store.ListMaterials(personaID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list materials: %v", err)), nil
		}

		views := make([]materialView, len(materials))
		for i, m := range materials {
			views[i] = viewMaterial(m)
		}
		b, err := json.Marshal(views)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal materials: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAddLink(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		personaID, err := req.RequireString("persona_id")
		if err != nil {
			return mcpError("persona_id is required"), nil
		}
		url, err := req.RequireString("url")
		if err != nil {
			return mcpError("url is required"), nil
		}

		title := req.GetString("title", url)

		l := storage.Link{
			ID:          uuid.New().String(),
			PersonaID:   personaID,
			URL:         url,
			Title:       title,
			Description: req.GetString("description", ""),
			CreatedAt:   time.Now().UTC(),
		}
		if err := deps.Store.CreateLink(l); err != nil {
			return mcpError(fmt.Sprintf("failed to save link: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Stored link %s", l.ID)), nil
	}
}

func mcpSessionTranscript(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}

		if _, err := deps.Store.GetSession(sessionID); err != nil {
			return mcpError(fmt.Sprintf("session not found: %v", err)), nil
		}

		turns, err := deps.Store.ListTurns(sessionID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load transcript: %v", err)), nil
		}

		b, err := json.Marshal(viewTurns(turns))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal transcript: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
