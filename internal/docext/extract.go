// Package docext loads documents from URLs or local files and extracts
// readable text: HTML is stripped to text, plain text passes through.
// Loaded documents live in a session store keyed by opaque handles so
// concurrent sessions never share mutable state.
package docext

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/vthunder/gofer/internal/logging"
)

// maxDocBytes bounds how much of a document we will load.
const maxDocBytes = 10 << 20 // 10MB

// Document is a loaded, text-extracted document.
type Document struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Title       string    `json:"title,omitempty"`
	Text        string    `json:"-"`
	ContentType string    `json:"contentType"`
	LoadedAt    time.Time `json:"loadedAt"`
}

// TextRange returns a substring of the document text. offset and limit
// are clamped to the text bounds; limit <= 0 means the rest.
func (d *Document) TextRange(offset, limit int) string {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(d.Text) {
		return ""
	}
	end := len(d.Text)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return d.Text[offset:end]
}

// Extractor loads and extracts documents.
type Extractor struct {
	httpClient *http.Client
	maxBytes   int64
}

// NewExtractor creates an extractor with default limits.
func NewExtractor() *Extractor {
	return &Extractor{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		maxBytes:   maxDocBytes,
	}
}

// Load fetches a document from an http(s) URL or reads a local file,
// then extracts its text.
func (e *Extractor) Load(ctx context.Context, source string) (*Document, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return e.loadURL(ctx, source)
	}
	return e.loadFile(source)
}

func (e *Extractor) loadURL(ctx context.Context, rawURL string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	// Some sites refuse requests without browser-ish headers
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch document: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if int64(len(data)) > e.maxBytes {
		return nil, fmt.Errorf("document too large (over %d bytes)", e.maxBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	doc, err := e.extract(rawURL, data, contentType)
	if err != nil {
		return nil, err
	}
	logging.Info("docext", "loaded %s (%d chars, %s)", rawURL, len(doc.Text), doc.ContentType)
	return doc, nil
}

func (e *Extractor) loadFile(path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.Size() > e.maxBytes {
		return nil, fmt.Errorf("document too large (%d bytes, limit %d)", info.Size(), e.maxBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	contentType := http.DetectContentType(data)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		contentType = "text/html"
	case ".txt", ".md":
		contentType = "text/plain"
	}

	doc, err := e.extract(path, data, contentType)
	if err != nil {
		return nil, err
	}
	logging.Info("docext", "loaded %s (%d chars, %s)", path, len(doc.Text), doc.ContentType)
	return doc, nil
}

// extract converts raw document bytes to text based on content type.
func (e *Extractor) extract(source string, data []byte, contentType string) (*Document, error) {
	doc := &Document{
		Source:      source,
		ContentType: contentType,
		LoadedAt:    time.Now(),
	}

	switch {
	case strings.Contains(contentType, "text/html"), strings.Contains(contentType, "application/xhtml"):
		title, text, err := ExtractHTML(strings.NewReader(string(data)))
		if err != nil {
			return nil, fmt.Errorf("extract html: %w", err)
		}
		doc.Title = title
		doc.Text = text
	case strings.HasPrefix(contentType, "text/"):
		doc.Text = string(data)
	default:
		return nil, fmt.Errorf("unsupported content type: %s", contentType)
	}

	return doc, nil
}

// blockSelector lists elements whose boundaries become line breaks.
const blockSelector = "p, div, h1, h2, h3, h4, h5, h6, li, tr, blockquote, pre, article, section, header, footer"

// ExtractHTML parses HTML and returns the page title and the visible
// text with markup removed. Block elements become line breaks; script,
// style, and other non-content elements are dropped.
func ExtractHTML(r io.Reader) (title, text string, err error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", "", fmt.Errorf("parse html: %w", err)
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("script, style, noscript, iframe, svg, head").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("\n")
		s.AppendHtml("\n")
	})

	sel := doc.Find("body")
	var raw string
	if sel.Length() > 0 {
		raw = sel.Text()
	} else {
		raw = doc.Text()
	}

	return title, normalizeText(raw), nil
}

// HTMLToText extracts readable text from HTML, discarding the title.
func HTMLToText(r io.Reader) (string, error) {
	_, text, err := ExtractHTML(r)
	return text, err
}

// normalizeText collapses whitespace within lines and drops empty ones.
func normalizeText(raw string) string {
	lines := strings.Split(raw, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
