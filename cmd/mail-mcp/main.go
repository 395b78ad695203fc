// mail-mcp exposes Gmail operations as MCP tools: inbox listing with
// Gmail query syntax, full message reads, sending, and drafting.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vthunder/gofer/internal/gmail"
	"github.com/vthunder/gofer/internal/googleauth"
)

func main() {
	// Log to stderr so stdout is clean for JSON-RPC
	log.SetOutput(os.Stderr)
	log.SetPrefix("[mail-mcp] ")

	// Load .env file if present (don't error if missing)
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded .env file")
	}

	statePath := os.Getenv("STATE_PATH")
	if statePath == "" {
		statePath = "state"
	}

	store, err := googleauth.OpenStore(filepath.Join(statePath, "tokens.db"), os.Getenv("TOKEN_ENCRYPTION_KEY"))
	if err != nil {
		log.Fatalf("Failed to open token store: %v", err)
	}
	defer store.Close()

	cfg := googleauth.Config{
		ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		Scopes:       googleauth.DefaultScopes,
	}
	client := gmail.NewClient(googleauth.NewTokenSource(cfg, store, "google"), os.Getenv("GMAIL_SENDER"))

	s := server.NewMCPServer(
		"mail-mcp",
		"0.1.0",
		server.WithToolCapabilities(true),
	)

	s.AddTool(mailListTool(), handleMailList(client))
	s.AddTool(mailReadTool(), handleMailRead(client))
	s.AddTool(mailSendTool(), handleMailSend(client))
	s.AddTool(mailDraftTool(), handleMailDraft(client))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func mailListTool() mcp.Tool {
	return mcp.NewTool("mail_list",
		mcp.WithDescription("List messages in the mailbox, newest first. Supports Gmail query syntax (from:, subject:, is:unread, newer_than:7d, ...)."),
		mcp.WithString("query",
			mcp.Description("Gmail search query (default: all mail)"),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum messages to return (default 10)"),
		),
	)
}

func handleMailList(client *gmail.Client) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]any)
		query, _ := args["query"].(string)

		maxResults := 10
		if n, ok := args["max_results"].(float64); ok && n > 0 {
			maxResults = int(n)
		}

		messages, err := client.ListMessages(ctx, query, maxResults)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list messages: %v", err)), nil
		}

		if len(messages) == 0 {
			return mcp.NewToolResultText("No messages matched."), nil
		}

		data, err := json.MarshalIndent(messages, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal messages: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

func mailReadTool() mcp.Tool {
	return mcp.NewTool("mail_read",
		mcp.WithDescription("Read a single message in full, headers and body text."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Message ID from mail_list"),
		),
	)
}

func handleMailRead(client *gmail.Client) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]any)
		id, _ := args["id"].(string)
		if id == "" {
			return mcp.NewToolResultError("id is required"), nil
		}

		msg, err := client.GetMessage(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to get message: %v", err)), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "From: %s\n", msg.From)
		if msg.To != "" {
			fmt.Fprintf(&b, "To: %s\n", msg.To)
		}
		fmt.Fprintf(&b, "Date: %s\n", msg.Date)
		fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
		if len(msg.Labels) > 0 {
			fmt.Fprintf(&b, "Labels: %s\n", strings.Join(msg.Labels, ", "))
		}
		b.WriteString("\n")
		if msg.Body != "" {
			b.WriteString(msg.Body)
		} else {
			b.WriteString(msg.Snippet)
		}
		return mcp.NewToolResultText(b.String()), nil
	}
}

func mailSendTool() mcp.Tool {
	return mcp.NewTool("mail_send",
		mcp.WithDescription("Send an email from the authenticated account."),
		mcp.WithString("to",
			mcp.Required(),
			mcp.Description("Recipient email address"),
		),
		mcp.WithString("subject",
			mcp.Required(),
			mcp.Description("Subject line"),
		),
		mcp.WithString("body",
			mcp.Required(),
			mcp.Description("Plain-text message body"),
		),
		mcp.WithString("cc",
			mcp.Description("Comma-separated CC addresses"),
		),
		mcp.WithString("bcc",
			mcp.Description("Comma-separated BCC addresses"),
		),
	)
}

func handleMailSend(client *gmail.Client) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params, errResult := sendParams(req)
		if errResult != nil {
			return errResult, nil
		}

		id, err := client.Send(ctx, params)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to send message: %v", err)), nil
		}

		log.Printf("Sent message %s to %s", id, params.To)
		return mcp.NewToolResultText(fmt.Sprintf("Sent message %s to %s", id, params.To)), nil
	}
}

func mailDraftTool() mcp.Tool {
	return mcp.NewTool("mail_draft",
		mcp.WithDescription("Create a draft email without sending it."),
		mcp.WithString("to",
			mcp.Required(),
			mcp.Description("Recipient email address"),
		),
		mcp.WithString("subject",
			mcp.Required(),
			mcp.Description("Subject line"),
		),
		mcp.WithString("body",
			mcp.Required(),
			mcp.Description("Plain-text message body"),
		),
		mcp.WithString("cc",
			mcp.Description("Comma-separated CC addresses"),
		),
		mcp.WithString("bcc",
			mcp.Description("Comma-separated BCC addresses"),
		),
	)
}

func handleMailDraft(client *gmail.Client) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params, errResult := sendParams(req)
		if errResult != nil {
			return errResult, nil
		}

		id, err := client.CreateDraft(ctx, params)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to create draft: %v", err)), nil
		}

		log.Printf("Created draft %s to %s", id, params.To)
		return mcp.NewToolResultText(fmt.Sprintf("Created draft %s to %s", id, params.To)), nil
	}
}

func sendParams(req mcp.CallToolRequest) (gmail.SendParams, *mcp.CallToolResult) {
	args, _ := req.Params.Arguments.(map[string]any)
	to, _ := args["to"].(string)
	subject, _ := args["subject"].(string)
	body, _ := args["body"].(string)

	if to == "" {
		return gmail.SendParams{}, mcp.NewToolResultError("to is required")
	}
	if subject == "" {
		return gmail.SendParams{}, mcp.NewToolResultError("subject is required")
	}
	if body == "" {
		return gmail.SendParams{}, mcp.NewToolResultError("body is required")
	}

	cc, _ := args["cc"].(string)
	bcc, _ := args["bcc"].(string)
	return gmail.SendParams{
		To:      to,
		Subject: subject,
		Body:    body,
		CC:      splitAddresses(cc),
		BCC:     splitAddresses(bcc),
	}, nil
}

func splitAddresses(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
