package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/replybot/internal/corpus"
	"github.com/kalambet/replybot/internal/dispatch"
	"github.com/kalambet/replybot/internal/reply"
)

const recentLimit = 10

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Replier Replier
	// Sender is optional; without it send_message returns an error.
	Sender    dispatch.Sender
	Recipient string
	Store     AuditStore
	Corpus    corpus.Stats
}

// NewMCPServer creates an MCP server with the replybot tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"replybot",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("replybot answers chat messages from a corpus of past conversations and can send messages to the configured chat."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("reply",
			mcp.WithDescription("Get the reply the bot would send to a chat message."),
			mcp.WithString("text", mcp.Description("Incoming message text"), mcp.Required()),
			mcp.WithBoolean("explain", mcp.Description("Include the scored candidates in the result")),
		),
		mcpReply(deps),
	)

	s.AddTool(
		mcp.NewTool("send_message",
			mcp.WithDescription("Send a message to a chat recipient through the bot's transport."),
			mcp.WithString("text", mcp.Description("Message text"), mcp.Required()),
			mcp.WithString("recipient", mcp.Description("Recipient ID; defaults to the configured recipient")),
		),
		mcpSendMessage(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"corpus://stats",
			"Corpus Stats",
			mcp.WithResourceDescription("Corpus sources, pair counts and index dimensions"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStats(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"replybot://recent",
			"Recent Activity",
			mcp.WithResourceDescription("Last 10 interactions and dispatches"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpReply(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil || strings.TrimSpace(text) == "" {
			return mcpError("text is required"), nil
		}

		res := deps.Replier.Answer(ctx, reply.Message{Channel: "mcp", Text: text})
		if !req.GetBool("explain", false) {
			return mcpText(res.Reply), nil
		}

		b, err := json.Marshal(res)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSendMessage(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Sender == nil {
			return mcpError("sending not available: no transport configured"), nil
		}
		text, err := req.RequireString("text")
		if err != nil || strings.TrimSpace(text) == "" {
			return mcpError("text is required"), nil
		}
		recipient := req.GetString("recipient", deps.Recipient)
		if recipient == "" {
			return mcpError("recipient is required: none configured"), nil
		}

		res := deps.Sender.Send(dispatch.WithOrigin(ctx, "mcp"), recipient, text)
		if !res.OK {
			return mcpError(fmt.Sprintf("send failed: %v", res.Err)), nil
		}
		if res.ID != "" {
			return mcpText(fmt.Sprintf("Sent to %s (%s)", recipient, res.ID)), nil
		}
		return mcpText(fmt.Sprintf("Sent to %s", recipient)), nil
	}
}

func mcpResourceStats(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(CorpusStatsResponse{Corpus: deps.Corpus, Index: deps.Replier.Stats()})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal stats: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		interactions, err := deps.Store.GetRecentInteractions(recentLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent interactions: %w", err)
		}
		dispatches, err := deps.Store.GetRecentDispatches(recentLimit, "")
		if err != nil {
			return nil, fmt.Errorf("failed to get recent dispatches: %w", err)
		}
		byPath, err := deps.Store.CountInteractionsByPath()
		if err != nil {
			return nil, fmt.Errorf("failed to count interactions: %w", err)
		}
		byStatus, err := deps.Store.CountDispatchesByStatus()
		if err != nil {
			return nil, fmt.Errorf("failed to count dispatches: %w", err)
		}

		type interactionSummary struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			Channel   string `json:"channel"`
			Query     string `json:"query"`
			Reply     string `json:"reply"`
			Path      string `json:"path"`
		}
		type dispatchSummary struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			Origin    string `json:"origin"`
			Recipient string `json:"recipient"`
			Status    string `json:"status"`
		}
		out := struct {
			InteractionCounts CountsResponse       `json:"interaction_counts"`
			DispatchCounts    CountsResponse       `json:"dispatch_counts"`
			Interactions      []interactionSummary `json:"interactions"`
			Dispatches        []dispatchSummary    `json:"dispatches"`
		}{
			InteractionCounts: newCountsResponse(byPath),
			DispatchCounts:    newCountsResponse(byStatus),
			Interactions:      make([]interactionSummary, len(interactions)),
			Dispatches:        make([]dispatchSummary, len(dispatches)),
		}

		for i, ix := range interactions {
			out.Interactions[i] = interactionSummary{
				ID:        ix.ID,
				CreatedAt: ix.CreatedAt.Format(time.RFC3339),
				Channel:   ix.Channel,
				Query:     Truncate(ix.Query, 200),
				Reply:     ix.Reply,
				Path:      ix.Path,
			}
		}
		for i, d := range dispatches {
			out.Dispatches[i] = dispatchSummary{
				ID:        d.ID,
				CreatedAt: d.CreatedAt.Format(time.RFC3339),
				Origin:    d.Origin,
				Recipient: d.Recipient,
				Status:    d.Status,
			}
		}

		b, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal recent activity: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

// Truncate shortens s to n runes, marking the cut with "...". Activity
// summaries served here and printed by the CLI use it.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
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
