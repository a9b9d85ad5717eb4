package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/caiarchive/internal/storage"
)

const recentRunsResourceLimit = 10

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store *storage.Store
}

// NewMCPServer creates an MCP server exposing the decision archive as tools
// and resources.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"caiarchive",
		apiVersion,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("caiarchive: searchable archive of Commission d'accès à l'information decisions, including extracted PDF text."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("search_decisions",
			mcp.WithDescription("Search archived decisions by text, year, organization and date range. Returns one page of results, newest first."),
			mcp.WithString("query", mcp.Description("Substring matched against number, subject, organization, title and document text")),
			mcp.WithNumber("year", mcp.Description("Listing year")),
			mcp.WithString("organization", mcp.Description("Substring of the organization name")),
			mcp.WithString("start_date", mcp.Description("Earliest decision date, YYYY-MM-DD")),
			mcp.WithString("end_date", mcp.Description("Latest decision date, YYYY-MM-DD")),
			mcp.WithNumber("page", mcp.Description("Page number (default 1)")),
			mcp.WithNumber("limit", mcp.Description("Results per page (default 20, max 100)")),
		),
		mcpSearchDecisions(deps),
	)

	s.AddTool(
		mcp.NewTool("get_decision",
			mcp.WithDescription("Fetch one decision by its decision number, including the extracted document text."),
			mcp.WithString("decision_number", mcp.Description("Decision number as published, e.g. 1012345-S"), mcp.Required()),
		),
		mcpGetDecision(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"cai://stats",
			"Archive Statistics",
			mcp.WithResourceDescription("Decision totals, text extraction coverage and per-year counts"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStats(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"cai://history",
			"Recent Ingestion Runs",
			mcp.WithResourceDescription("Last 10 ingestion runs with their counters and status"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceHistory(deps),
	)

	return s
}

func mcpSearchDecisions(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params := storage.SearchParams{
			Query:        strings.TrimSpace(req.GetString("query", "")),
			Year:         req.GetInt("year", 0),
			Organization: strings.TrimSpace(req.GetString("organization", "")),
			StartDate:    strings.TrimSpace(req.GetString("start_date", "")),
			EndDate:      strings.TrimSpace(req.GetString("end_date", "")),
			Page:         req.GetInt("page", 1),
			Limit:        req.GetInt("limit", 20),
		}

		res, err := deps.Store.Search(ctx, params)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		b, err := json.Marshal(toSearchResponse(res))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetDecision(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		number, err := req.RequireString("decision_number")
		if err != nil || strings.TrimSpace(number) == "" {
			return mcpError("decision_number is required"), nil
		}

		d, err := deps.Store.GetDecisionByNumber(ctx, strings.TrimSpace(number))
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("decision %s not found", number)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get decision: %v", err)), nil
		}

		b, err := json.Marshal(toDetail(d))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal decision: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceStats(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		st, err := deps.Store.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to compute statistics: %w", err)
		}

		b, err := json.Marshal(toStatsResponse(st))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal statistics: %w", err)
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

func mcpResourceHistory(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		runs, err := deps.Store.RecentRuns(ctx, recentRunsResourceLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}

		b, err := json.Marshal(toRunViews(runs))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal runs: %w", err)
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
