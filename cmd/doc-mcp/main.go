// doc-mcp exposes document text extraction as MCP tools. Documents are
// loaded from local files or URLs (PDF, HTML, plain text), held in
// in-memory sessions, and read back in paged character ranges.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vthunder/gofer/internal/docext"
)

// defaultTextLimit bounds a single doc_text page so large documents
// don't flood the model context.
const defaultTextLimit = 20000

func main() {
	// Log to stderr so stdout is clean for JSON-RPC
	log.SetOutput(os.Stderr)
	log.SetPrefix("[doc-mcp] ")

	// Load .env file if present (don't error if missing)
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded .env file")
	}

	extractor := docext.NewExtractor()
	sessions := docext.NewSessionStore(0)

	s := server.NewMCPServer(
		"doc-mcp",
		"0.1.0",
		server.WithToolCapabilities(true),
	)

	s.AddTool(docLoadTool(), handleDocLoad(extractor, sessions))
	s.AddTool(docTextTool(), handleDocText(sessions))
	s.AddTool(docStatsTool(), handleDocStats(sessions))
	s.AddTool(docCloseTool(), handleDocClose(sessions))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func docLoadTool() mcp.Tool {
	return mcp.NewTool("doc_load",
		mcp.WithDescription("Load a document from a file path or URL and extract its text. Returns a session_id for doc_text, doc_stats, and doc_close."),
		mcp.WithString("source",
			mcp.Required(),
			mcp.Description("File path or http(s) URL of the document"),
		),
	)
}

func handleDocLoad(extractor *docext.Extractor, sessions *docext.SessionStore) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]any)
		source, _ := args["source"].(string)
		if source == "" {
			return mcp.NewToolResultError("source is required"), nil
		}

		doc, err := extractor.Load(ctx, source)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load document: %v", err)), nil
		}

		id, err := sessions.Put(doc)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		log.Printf("Loaded %s (%d chars, %d sessions open)", source, len(doc.Text), sessions.Len())

		data, err := json.MarshalIndent(map[string]any{
			"session_id":   id,
			"title":        doc.Title,
			"content_type": doc.ContentType,
			"chars":        len(doc.Text),
			"source":       doc.Source,
		}, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

func docTextTool() mcp.Tool {
	return mcp.NewTool("doc_text",
		mcp.WithDescription("Read a character range of a loaded document's text. Large documents are paged; the output says how to fetch the next page."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session ID from doc_load"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Character offset to start from (default 0)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum characters to return (default 20000)"),
		),
	)
}

func handleDocText(sessions *docext.SessionStore) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]any)
		id, _ := args["session_id"].(string)
		if id == "" {
			return mcp.NewToolResultError("session_id is required"), nil
		}

		doc, err := sessions.Get(id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		offset := 0
		if n, ok := args["offset"].(float64); ok && n > 0 {
			offset = int(n)
		}
		limit := defaultTextLimit
		if n, ok := args["limit"].(float64); ok && n > 0 {
			limit = int(n)
		}

		text := doc.TextRange(offset, limit)
		next := offset + len(text)
		if remaining := len(doc.Text) - next; remaining > 0 {
			text += fmt.Sprintf("\n\n[%d more characters; call doc_text with offset=%d]", remaining, next)
		}
		if text == "" {
			text = "(empty range)"
		}
		return mcp.NewToolResultText(text), nil
	}
}

func docStatsTool() mcp.Tool {
	return mcp.NewTool("doc_stats",
		mcp.WithDescription("Summarize a loaded document: character, sentence, and token counts plus the most frequent named entities."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session ID from doc_load"),
		),
	)
}

func handleDocStats(sessions *docext.SessionStore) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]any)
		id, _ := args["session_id"].(string)
		if id == "" {
			return mcp.NewToolResultError("session_id is required"), nil
		}

		doc, err := sessions.Get(id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		stats, err := docext.ComputeStats(doc.Text)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to compute stats: %v", err)), nil
		}

		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal stats: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

func docCloseTool() mcp.Tool {
	return mcp.NewTool("doc_close",
		mcp.WithDescription("Close a document session and free its text."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session ID from doc_load"),
		),
	)
}

func handleDocClose(sessions *docext.SessionStore) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]any)
		id, _ := args["session_id"].(string)
		if id == "" {
			return mcp.NewToolResultError("session_id is required"), nil
		}

		if err := sessions.Close(id); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Closed session %s", id)), nil
	}
}
