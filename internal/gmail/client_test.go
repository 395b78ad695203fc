package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type staticTokens string

func (s staticTokens) AccessToken(ctx context.Context) (string, error) {
	return string(s), nil
}

// testClient returns a client pointed at a fake Gmail API.
func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(staticTokens("test-token"), "agent@example.com")
	c.baseURL = srv.URL
	return c
}

func b64url(s string) string {
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte(s))
}

// TestListMessages verifies the list + per-message metadata flow,
// including the degraded entry when a metadata fetch fails.
func TestListMessages(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Expected bearer token, got %q", got)
		}
		switch {
		case r.URL.Path == "/messages":
			if got := r.URL.Query().Get("q"); got != "from:alice" {
				t.Errorf("Expected query from:alice, got %q", got)
			}
			if got := r.URL.Query().Get("maxResults"); got != "20" {
				t.Errorf("Expected maxResults 20, got %q", got)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"messages": []map[string]string{
					{"id": "m1", "threadId": "t1"},
					{"id": "m2", "threadId": "t2"},
				},
			})
		case r.URL.Path == "/messages/m1":
			if got := r.URL.Query().Get("format"); got != "metadata" {
				t.Errorf("Expected format=metadata, got %q", got)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"id":       "m1",
				"threadId": "t1",
				"snippet":  "Lunch tomorrow?",
				"payload": map[string]any{
					"headers": []map[string]string{
						{"name": "Subject", "value": "Lunch"},
						{"name": "From", "value": "Alice <alice@example.com>"},
						{"name": "Date", "value": "Mon, 02 Jun 2025 09:00:00 +0000"},
					},
				},
			})
		case r.URL.Path == "/messages/m2":
			http.Error(w, `{"error":{"code":500,"message":"backend"}}`, http.StatusInternalServerError)
		default:
			t.Errorf("Unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	})

	msgs, err := c.ListMessages(context.Background(), "from:alice", 0)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}

	if msgs[0].Subject != "Lunch" {
		t.Errorf("Expected subject Lunch, got %q", msgs[0].Subject)
	}
	if msgs[0].From != "Alice <alice@example.com>" {
		t.Errorf("Expected from Alice, got %q", msgs[0].From)
	}
	if msgs[0].Snippet != "Lunch tomorrow?" {
		t.Errorf("Expected snippet, got %q", msgs[0].Snippet)
	}

	// m2's metadata fetch failed: bare entry, no error
	if msgs[1].ID != "m2" || msgs[1].ThreadID != "t2" {
		t.Errorf("Expected bare m2 entry, got %+v", msgs[1])
	}
	if msgs[1].Subject != "" {
		t.Errorf("Expected empty subject for failed fetch, got %q", msgs[1].Subject)
	}
}

// TestGetMessagePlainText verifies header parsing and that text/plain is
// preferred in a multipart payload.
func TestGetMessagePlainText(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages/m1" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("format"); got != "full" {
			t.Errorf("Expected format=full, got %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":       "m1",
			"threadId": "t1",
			"snippet":  "Hello there",
			"labelIds": []string{"INBOX", "UNREAD"},
			"payload": map[string]any{
				"mimeType": "multipart/alternative",
				"headers": []map[string]string{
					{"name": "Subject", "value": "Greetings"},
					{"name": "From", "value": "bob@example.com"},
					{"name": "To", "value": "me@example.com"},
					{"name": "Date", "value": "Mon, 02 Jun 2025 10:00:00 +0000"},
				},
				"parts": []map[string]any{
					{
						"mimeType": "text/plain",
						"body":     map[string]any{"data": b64url("Hello in plain text")},
					},
					{
						"mimeType": "text/html",
						"body":     map[string]any{"data": b64url("<p>Hello in HTML</p>")},
					},
				},
			},
		})
	})

	msg, err := c.GetMessage(context.Background(), "m1")
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}

	if msg.Subject != "Greetings" {
		t.Errorf("Expected subject Greetings, got %q", msg.Subject)
	}
	if msg.From != "bob@example.com" {
		t.Errorf("Expected from bob, got %q", msg.From)
	}
	if msg.Body != "Hello in plain text" {
		t.Errorf("Expected plain text body, got %q", msg.Body)
	}
	if len(msg.Labels) != 2 || msg.Labels[0] != "INBOX" {
		t.Errorf("Expected labels [INBOX UNREAD], got %v", msg.Labels)
	}
}

// TestGetMessageHTMLFallback verifies that an HTML-only message is
// stripped to readable text.
func TestGetMessageHTMLFallback(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id": "m1",
			"payload": map[string]any{
				"mimeType": "text/html",
				"body": map[string]any{
					"data": b64url("<html><body><p>Quarterly report attached.</p><script>alert(1)</script></body></html>"),
				},
			},
		})
	})

	msg, err := c.GetMessage(context.Background(), "m1")
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if !strings.Contains(msg.Body, "Quarterly report attached.") {
		t.Errorf("Expected stripped text, got %q", msg.Body)
	}
	if strings.Contains(msg.Body, "<p>") || strings.Contains(msg.Body, "alert(1)") {
		t.Errorf("Expected markup and scripts removed, got %q", msg.Body)
	}
}

// TestGetMessageNestedParts verifies recursion into nested multipart
// structures (e.g. multipart/mixed wrapping multipart/alternative).
func TestGetMessageNestedParts(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id": "m1",
			"payload": map[string]any{
				"mimeType": "multipart/mixed",
				"parts": []map[string]any{
					{
						"mimeType": "multipart/alternative",
						"parts": []map[string]any{
							{
								"mimeType": "text/plain",
								"body":     map[string]any{"data": b64url("nested body")},
							},
						},
					},
					{
						"mimeType": "application/pdf",
						"body":     map[string]any{"attachmentId": "att1"},
					},
				},
			},
		})
	})

	msg, err := c.GetMessage(context.Background(), "m1")
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if msg.Body != "nested body" {
		t.Errorf("Expected nested body, got %q", msg.Body)
	}
}

// TestGetMessageTruncatesLongBody verifies the output bound on bodies.
func TestGetMessageTruncatesLongBody(t *testing.T) {
	long := strings.Repeat("x", 60000)
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id": "m1",
			"payload": map[string]any{
				"mimeType": "text/plain",
				"body":     map[string]any{"data": b64url(long)},
			},
		})
	})

	msg, err := c.GetMessage(context.Background(), "m1")
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if !strings.HasSuffix(msg.Body, "\n[truncated]") {
		t.Errorf("Expected truncation marker, got tail %q", msg.Body[len(msg.Body)-20:])
	}
	if len(msg.Body) != 50000+len("\n[truncated]") {
		t.Errorf("Expected 50000-char body plus marker, got %d", len(msg.Body))
	}
}

// TestSendMessage verifies the RFC 2822 construction and raw encoding.
func TestSendMessage(t *testing.T) {
	var gotRaw string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages/send" || r.Method != http.MethodPost {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Raw string `json:"raw"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("Bad request body: %v", err)
		}
		gotRaw = req.Raw
		json.NewEncoder(w).Encode(map[string]string{"id": "sent-1", "threadId": "t9"})
	})

	id, err := c.Send(context.Background(), SendParams{
		To:      "alice@example.com",
		Subject: "Meeting notes",
		Body:    "See attached.\nThanks.",
		CC:      []string{"bob@example.com", "carol@example.com"},
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if id != "sent-1" {
		t.Errorf("Expected message ID sent-1, got %q", id)
	}

	decoded, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(gotRaw)
	if err != nil {
		t.Fatalf("Raw message is not unpadded base64url: %v", err)
	}
	raw := string(decoded)

	for _, want := range []string{
		"MIME-Version: 1.0\r\n",
		"Content-Type: text/plain; charset=\"UTF-8\"\r\n",
		"From: agent@example.com\r\n",
		"To: alice@example.com\r\n",
		"Cc: bob@example.com, carol@example.com\r\n",
		"Subject: Meeting notes\r\n",
	} {
		if !strings.Contains(raw, want) {
			t.Errorf("Expected header %q in raw message:\n%s", want, raw)
		}
	}
	if strings.Contains(raw, "Bcc:") {
		t.Errorf("Expected no Bcc header, got:\n%s", raw)
	}

	headerEnd := strings.Index(raw, "\r\n\r\n")
	if headerEnd < 0 {
		t.Fatalf("Expected blank line between headers and body:\n%s", raw)
	}
	if got := raw[headerEnd+4:]; got != "See attached.\nThanks." {
		t.Errorf("Expected body after blank line, got %q", got)
	}
}

// TestCreateDraft verifies the nested draft request shape.
func TestCreateDraft(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/drafts" || r.Method != http.MethodPost {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Message struct {
				Raw string `json:"raw"`
			} `json:"message"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("Bad request body: %v", err)
		}
		decoded, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(req.Message.Raw)
		if err != nil {
			t.Fatalf("Draft raw is not unpadded base64url: %v", err)
		}
		if !strings.Contains(string(decoded), "Subject: Draft subject\r\n") {
			t.Errorf("Expected subject header in draft, got:\n%s", decoded)
		}
		json.NewEncoder(w).Encode(map[string]any{"id": "draft-1"})
	})

	id, err := c.CreateDraft(context.Background(), SendParams{
		To:      "alice@example.com",
		Subject: "Draft subject",
		Body:    "Draft body",
	})
	if err != nil {
		t.Fatalf("CreateDraft failed: %v", err)
	}
	if id != "draft-1" {
		t.Errorf("Expected draft ID draft-1, got %q", id)
	}
}

// TestAPIErrorSurfacesMessage verifies the error envelope is unpacked.
func TestAPIErrorSurfacesMessage(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"Insufficient Permission"}}`))
	})

	_, err := c.GetMessage(context.Background(), "m1")
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "Insufficient Permission") {
		t.Errorf("Expected API message in error, got %v", err)
	}
}

// TestDecodeBase64Variants covers the padded and standard-alphabet
// fallbacks some providers emit.
func TestDecodeBase64Variants(t *testing.T) {
	const text = "subject?>body"

	cases := []struct {
		name    string
		encoded string
	}{
		{"unpadded url", base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte(text))},
		{"padded url", base64.URLEncoding.EncodeToString([]byte(text))},
		{"standard", base64.StdEncoding.EncodeToString([]byte(text))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := decodeBase64URL(tc.encoded)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if got != text {
				t.Errorf("Expected %q, got %q", text, got)
			}
		})
	}

	if _, err := decodeBase64URL("!!!not-base64!!!"); err == nil {
		t.Error("Expected error for invalid input")
	}
}
