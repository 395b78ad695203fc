// search-mcp exposes web search as an MCP tool, routed through a
// provider chain (Exa, Brave, DuckDuckGo) with automatic fallback.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vthunder/gofer/internal/search"
)

func main() {
	// Log to stderr so stdout is clean for JSON-RPC
	log.SetOutput(os.Stderr)
	log.SetPrefix("[search-mcp] ")

	// Load .env file if present (don't error if missing)
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded .env file")
	}

	order := []string{search.ProviderExa, search.ProviderBrave, search.ProviderDuckDuckGo}
	if s := os.Getenv("SEARCH_PROVIDERS"); s != "" {
		order = strings.Split(s, ",")
	}

	router := search.Build(order, os.Getenv("EXA_API_KEY"), os.Getenv("BRAVE_API_KEY"))
	log.Printf("Providers: %s", strings.Join(router.ProviderNames(), ", "))

	s := server.NewMCPServer(
		"search-mcp",
		"0.1.0",
		server.WithToolCapabilities(true),
	)

	s.AddTool(webSearchTool(), handleWebSearch(router))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func webSearchTool() mcp.Tool {
	return mcp.NewTool("web_search",
		mcp.WithDescription("Search the web. Tries each configured provider in order and returns the first successful response."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The search query"),
		),
		mcp.WithNumber("count",
			mcp.Description("Number of results to return (1-20, default 5)"),
		),
	)
}

func handleWebSearch(router *search.Router) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]any)
		query, _ := args["query"].(string)
		if strings.TrimSpace(query) == "" {
			return mcp.NewToolResultError("query is required"), nil
		}

		count := 0
		if n, ok := args["count"].(float64); ok {
			count = int(n)
		}

		resp, err := router.Search(ctx, search.Request{Query: query, Count: count})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}

		if resp.NoResults || len(resp.Results) == 0 {
			return mcp.NewToolResultText(fmt.Sprintf("No results for %q.", query)), nil
		}

		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}
