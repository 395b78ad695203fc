package docext

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestExtractHTML verifies markup stripping, title extraction, and
// block-level line breaks.
func TestExtractHTML(t *testing.T) {
	html := `<html><head><title>My Page</title><style>p{color:red}</style></head>` +
		`<body><h1>Heading</h1><p>First para with <b>bold</b> text.</p>` +
		`<script>var x = 1;</script><ul><li>one</li><li>two</li></ul></body></html>`

	title, text, err := ExtractHTML(strings.NewReader(html))
	if err != nil {
		t.Fatalf("ExtractHTML failed: %v", err)
	}

	if title != "My Page" {
		t.Errorf("Expected title My Page, got %q", title)
	}
	want := "Heading\nFirst para with bold text.\none\ntwo"
	if text != want {
		t.Errorf("Expected %q, got %q", want, text)
	}
}

// TestExtractHTMLNestedBlocks verifies nested block elements do not
// glue their text together.
func TestExtractHTMLNestedBlocks(t *testing.T) {
	_, text, err := ExtractHTML(strings.NewReader(`<div>outer<div>inner</div></div>`))
	if err != nil {
		t.Fatalf("ExtractHTML failed: %v", err)
	}
	if text != "outer\ninner" {
		t.Errorf("Expected outer/inner on separate lines, got %q", text)
	}
}

// TestExtractHTMLLineBreaks verifies <br> becomes a newline.
func TestExtractHTMLLineBreaks(t *testing.T) {
	_, text, err := ExtractHTML(strings.NewReader(`<p>first line<br>second line</p>`))
	if err != nil {
		t.Fatalf("ExtractHTML failed: %v", err)
	}
	if text != "first line\nsecond line" {
		t.Errorf("Expected br newline, got %q", text)
	}
}

// TestExtractHTMLWhitespace verifies source indentation collapses.
func TestExtractHTMLWhitespace(t *testing.T) {
	html := "<body>\n  <p>\n    spaced   out\n    words\n  </p>\n</body>"
	_, text, err := ExtractHTML(strings.NewReader(html))
	if err != nil {
		t.Fatalf("ExtractHTML failed: %v", err)
	}
	if text != "spaced out words" {
		t.Errorf("Expected collapsed whitespace, got %q", text)
	}
}

func TestLoadURLHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><title>Report</title></head><body><p>Findings here.</p></body></html>`))
	}))
	defer srv.Close()

	doc, err := NewExtractor().Load(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if doc.Title != "Report" {
		t.Errorf("Expected title Report, got %q", doc.Title)
	}
	if doc.Text != "Findings here." {
		t.Errorf("Expected extracted text, got %q", doc.Text)
	}
	if !strings.Contains(doc.ContentType, "text/html") {
		t.Errorf("Expected html content type, got %q", doc.ContentType)
	}
	if doc.Source != srv.URL {
		t.Errorf("Expected source %q, got %q", srv.URL, doc.Source)
	}
}

func TestLoadURLPlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("raw text\nwith lines"))
	}))
	defer srv.Close()

	doc, err := NewExtractor().Load(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if doc.Text != "raw text\nwith lines" {
		t.Errorf("Expected passthrough text, got %q", doc.Text)
	}
	if doc.Title != "" {
		t.Errorf("Expected no title for plain text, got %q", doc.Title)
	}
}

func TestLoadURLUnsupportedType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	_, err := NewExtractor().Load(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "unsupported content type") {
		t.Errorf("Expected unsupported content type error, got %v", err)
	}
}

func TestLoadURLTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(strings.Repeat("x", 200)))
	}))
	defer srv.Close()

	e := NewExtractor()
	e.maxBytes = 64
	_, err := e.Load(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "too large") {
		t.Errorf("Expected size error, got %v", err)
	}
}

func TestLoadURLHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewExtractor().Load(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "HTTP 404") {
		t.Errorf("Expected HTTP 404 error, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	htmlPath := filepath.Join(dir, "page.html")
	if err := os.WriteFile(htmlPath, []byte(`<html><head><title>Local</title></head><body><p>From disk.</p></body></html>`), 0o644); err != nil {
		t.Fatal(err)
	}
	txtPath := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(txtPath, []byte("plain notes"), 0o644); err != nil {
		t.Fatal(err)
	}

	e := NewExtractor()

	doc, err := e.Load(context.Background(), htmlPath)
	if err != nil {
		t.Fatalf("Load html file failed: %v", err)
	}
	if doc.Title != "Local" || doc.Text != "From disk." {
		t.Errorf("Expected extracted html file, got title=%q text=%q", doc.Title, doc.Text)
	}

	doc, err = e.Load(context.Background(), txtPath)
	if err != nil {
		t.Fatalf("Load text file failed: %v", err)
	}
	if doc.Text != "plain notes" {
		t.Errorf("Expected passthrough file text, got %q", doc.Text)
	}

	if _, err := e.Load(context.Background(), filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestTextRange(t *testing.T) {
	doc := &Document{Text: "0123456789"}

	cases := []struct {
		name          string
		offset, limit int
		want          string
	}{
		{"prefix", 0, 4, "0123"},
		{"rest from offset", 4, 0, "456789"},
		{"limit past end", 8, 5, "89"},
		{"offset past end", 12, 3, ""},
		{"negative offset", -2, 3, "012"},
		{"whole", 0, 0, "0123456789"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := doc.TextRange(tc.offset, tc.limit); got != tc.want {
				t.Errorf("TextRange(%d, %d) = %q, want %q", tc.offset, tc.limit, got, tc.want)
			}
		})
	}
}
