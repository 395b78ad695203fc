// Package gmail is a Gmail v1 REST client covering the operations the
// mail tool server exposes: list/search, read, send, and draft.
package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vthunder/gofer/internal/docext"
	"github.com/vthunder/gofer/internal/logging"
)

const defaultBaseURL = "https://gmail.googleapis.com/gmail/v1/users/me"

// TokenProvider supplies a valid OAuth access token per request.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// Client is a Gmail API client for the authorized user's mailbox.
type Client struct {
	httpClient *http.Client
	tokens     TokenProvider
	baseURL    string
	sender     string // From header override; "me" lets Gmail fill it in
}

// NewClient creates a Gmail client. sender may be empty.
func NewClient(tokens TokenProvider, sender string) *Client {
	if sender == "" {
		sender = "me"
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     tokens,
		baseURL:    defaultBaseURL,
		sender:     sender,
	}
}

// Message represents a full email message.
type Message struct {
	ID       string   `json:"id"`
	ThreadID string   `json:"threadId"`
	Subject  string   `json:"subject"`
	From     string   `json:"from"`
	To       string   `json:"to"`
	Date     string   `json:"date"`
	Snippet  string   `json:"snippet"`
	Body     string   `json:"body"`
	Labels   []string `json:"labels"`
}

// MessageSummary is a lightweight message listing entry.
type MessageSummary struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
	Snippet  string `json:"snippet"`
	Subject  string `json:"subject,omitempty"`
	From     string `json:"from,omitempty"`
	Date     string `json:"date,omitempty"`
}

// request makes an authenticated request to the Gmail API
func (c *Client) request(ctx context.Context, method, path string, body any) ([]byte, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("get access token: %w", err)
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("gmail API error (%d): %s", errResp.Error.Code, errResp.Error.Message)
		}
		return nil, fmt.Errorf("gmail API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// ListMessages lists messages matching a Gmail query string ("" for the
// most recent messages). Each listing entry gets a metadata fetch for
// subject/from/date; a failed fetch still yields the bare entry.
func (c *Client) ListMessages(ctx context.Context, query string, maxResults int) ([]MessageSummary, error) {
	if maxResults <= 0 {
		maxResults = 20
	}

	params := url.Values{}
	if query != "" {
		params.Set("q", query)
	}
	params.Set("maxResults", fmt.Sprintf("%d", maxResults))

	data, err := c.request(ctx, http.MethodGet, "/messages?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	var listResp struct {
		Messages []struct {
			ID       string `json:"id"`
			ThreadID string `json:"threadId"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(data, &listResp); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}

	summaries := make([]MessageSummary, 0, len(listResp.Messages))
	for _, msg := range listResp.Messages {
		summary, err := c.fetchSummary(ctx, msg.ID)
		if err != nil {
			logging.Debug("gmail", "summary fetch for %s failed: %v", msg.ID, err)
			summaries = append(summaries, MessageSummary{ID: msg.ID, ThreadID: msg.ThreadID})
			continue
		}
		summaries = append(summaries, *summary)
	}

	return summaries, nil
}

// fetchSummary fetches minimal metadata for a message.
func (c *Client) fetchSummary(ctx context.Context, messageID string) (*MessageSummary, error) {
	path := fmt.Sprintf("/messages/%s?format=metadata&metadataHeaders=Subject&metadataHeaders=From&metadataHeaders=Date",
		url.PathEscape(messageID))
	data, err := c.request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var msgResp struct {
		ID       string         `json:"id"`
		ThreadID string         `json:"threadId"`
		Snippet  string         `json:"snippet"`
		Payload  map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(data, &msgResp); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	summary := &MessageSummary{
		ID:       msgResp.ID,
		ThreadID: msgResp.ThreadID,
		Snippet:  msgResp.Snippet,
	}
	for name, value := range headerMap(msgResp.Payload) {
		switch name {
		case "subject":
			summary.Subject = value
		case "from":
			summary.From = value
		case "date":
			summary.Date = value
		}
	}
	return summary, nil
}

// GetMessage fetches a full message by ID, with the body decoded:
// text/plain preferred, text/html stripped to text as a fallback.
func (c *Client) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	path := fmt.Sprintf("/messages/%s?format=full", url.PathEscape(messageID))
	data, err := c.request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}

	var raw struct {
		ID       string         `json:"id"`
		ThreadID string         `json:"threadId"`
		Snippet  string         `json:"snippet"`
		LabelIDs []string       `json:"labelIds"`
		Payload  map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	msg := &Message{
		ID:       raw.ID,
		ThreadID: raw.ThreadID,
		Snippet:  raw.Snippet,
		Labels:   raw.LabelIDs,
	}
	for name, value := range headerMap(raw.Payload) {
		switch name {
		case "subject":
			msg.Subject = value
		case "from":
			msg.From = value
		case "to":
			msg.To = value
		case "date":
			msg.Date = value
		}
	}

	body := extractBody(raw.Payload, "text/plain")
	if body == "" {
		if htmlBody := extractBody(raw.Payload, "text/html"); htmlBody != "" {
			text, err := docext.HTMLToText(strings.NewReader(htmlBody))
			if err != nil {
				text = htmlBody
			}
			body = text
		}
	}

	// Bound tool output
	const maxBodyLen = 50000
	if len(body) > maxBodyLen {
		body = body[:maxBodyLen] + "\n[truncated]"
	}
	msg.Body = body

	return msg, nil
}

// SendParams describes an outgoing message.
type SendParams struct {
	To      string
	Subject string
	Body    string
	CC      []string
	BCC     []string
}

// Send sends an email and returns the message ID.
func (c *Client) Send(ctx context.Context, params SendParams) (string, error) {
	raw := buildRFC2822(c.sender, params.To, params.Subject, params.Body, params.CC, params.BCC)

	data, err := c.request(ctx, http.MethodPost, "/messages/send", map[string]any{
		"raw": base64URLEncode([]byte(raw)),
	})
	if err != nil {
		return "", fmt.Errorf("send: %w", err)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("decode send response: %w", err)
	}

	logging.Info("gmail", "sent message %s to %s", result.ID, params.To)
	return result.ID, nil
}

// CreateDraft creates a draft and returns the draft ID.
func (c *Client) CreateDraft(ctx context.Context, params SendParams) (string, error) {
	raw := buildRFC2822(c.sender, params.To, params.Subject, params.Body, params.CC, params.BCC)

	data, err := c.request(ctx, http.MethodPost, "/drafts", map[string]any{
		"message": map[string]any{
			"raw": base64URLEncode([]byte(raw)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("create draft: %w", err)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("decode draft response: %w", err)
	}

	logging.Info("gmail", "created draft %s for %s", result.ID, params.To)
	return result.ID, nil
}

// headerMap flattens a payload's headers into lowercase name -> value.
func headerMap(payload map[string]any) map[string]string {
	out := make(map[string]string)
	if payload == nil {
		return out
	}
	headers, ok := payload["headers"].([]any)
	if !ok {
		return out
	}
	for _, h := range headers {
		hdr, ok := h.(map[string]any)
		if !ok {
			continue
		}
		name := strings.ToLower(fmt.Sprint(hdr["name"]))
		out[name] = fmt.Sprint(hdr["value"])
	}
	return out
}

// extractBody recursively finds a body part with the given MIME type.
func extractBody(payload map[string]any, mimeType string) string {
	if payload == nil {
		return ""
	}

	if mt, ok := payload["mimeType"].(string); ok && mt == mimeType {
		if bodyMap, ok := payload["body"].(map[string]any); ok {
			if data, ok := bodyMap["data"].(string); ok && data != "" {
				decoded, err := decodeBase64URL(data)
				if err == nil {
					return decoded
				}
			}
		}
	}

	// Recurse into parts (multipart messages)
	if parts, ok := payload["parts"].([]any); ok {
		for _, p := range parts {
			if part, ok := p.(map[string]any); ok {
				if result := extractBody(part, mimeType); result != "" {
					return result
				}
			}
		}
	}

	return ""
}

// buildRFC2822 constructs an RFC 2822 formatted email message.
func buildRFC2822(from, to, subject, body string, cc, bcc []string) string {
	var sb strings.Builder

	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString(fmt.Sprintf("From: %s\r\n", from))
	sb.WriteString(fmt.Sprintf("To: %s\r\n", to))
	if len(cc) > 0 {
		sb.WriteString(fmt.Sprintf("Cc: %s\r\n", strings.Join(cc, ", ")))
	}
	if len(bcc) > 0 {
		sb.WriteString(fmt.Sprintf("Bcc: %s\r\n", strings.Join(bcc, ", ")))
	}
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	sb.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z)))
	sb.WriteString("\r\n")
	sb.WriteString(body)

	return sb.String()
}

// base64URLEncode encodes data as base64url without padding, as the
// Gmail API requires for raw messages.
func base64URLEncode(data []byte) string {
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(data)
}

// decodeBase64URL decodes base64url with or without padding; some parts
// arrive in standard base64.
func decodeBase64URL(s string) (string, error) {
	b, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(s)
	if err != nil {
		b, err = base64.URLEncoding.DecodeString(s)
		if err != nil {
			b, err = base64.StdEncoding.DecodeString(s)
			if err != nil {
				return "", fmt.Errorf("base64 decode: %w", err)
			}
		}
	}
	return string(b), nil
}
