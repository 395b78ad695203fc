package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestLoadMissingFile tests that a missing manifest falls back to the
// default four-server setup.
func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Servers) != 4 {
		t.Errorf("Expected 4 default servers, got %d", len(cfg.Servers))
	}
	if cfg.LLM.Primary != "anthropic" {
		t.Errorf("Expected anthropic primary by default, got %q", cfg.LLM.Primary)
	}
	if cfg.Google.CalendarID != "primary" {
		t.Errorf("Expected primary calendar by default, got %q", cfg.Google.CalendarID)
	}
}

// TestLoadManifest tests parsing a manifest with overrides and defaults
// filling the gaps.
func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gofer.yaml")
	manifest := `
state_path: /tmp/gofer-test
servers:
  - name: calendar
    command: ./bin/calendar-mcp
    env:
      GOOGLE_CALENDAR_ID: team
  - name: search
    command: ./bin/search-mcp
    args: ["-v"]
llm:
  primary: openai
search:
  providers: [brave, duckduckgo]
google:
  redirect_port: 9999
`
	if err := os.WriteFile(path, []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(cfg.Servers) != 2 {
		t.Fatalf("Expected 2 servers, got %d", len(cfg.Servers))
	}
	if cfg.Servers[0].Env["GOOGLE_CALENDAR_ID"] != "team" {
		t.Errorf("Expected server env to parse, got %+v", cfg.Servers[0].Env)
	}
	if cfg.Servers[1].Args[0] != "-v" {
		t.Errorf("Expected server args to parse, got %+v", cfg.Servers[1].Args)
	}
	if cfg.LLM.Primary != "openai" {
		t.Errorf("Expected openai primary, got %q", cfg.LLM.Primary)
	}
	if cfg.LLM.MaxToolRounds != 8 {
		t.Errorf("Expected default tool rounds, got %d", cfg.LLM.MaxToolRounds)
	}
	if len(cfg.Search.Providers) != 2 || cfg.Search.Providers[0] != "brave" {
		t.Errorf("Expected [brave duckduckgo], got %v", cfg.Search.Providers)
	}
	if cfg.Google.RedirectPort != 9999 {
		t.Errorf("Expected redirect port override, got %d", cfg.Google.RedirectPort)
	}
	if cfg.TokenDBPath() != filepath.Join("/tmp/gofer-test", "tokens.db") {
		t.Errorf("Unexpected token db path %q", cfg.TokenDBPath())
	}
}

// TestLoadRejectsBadValues tests validation of server entries and enums.
func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{"server without command", "servers:\n  - name: calendar\n"},
		{"server without name", "servers:\n  - command: ./x\n"},
		{"bad llm primary", "llm:\n  primary: gemini\n"},
		{"bad search provider", "search:\n  providers: [altavista]\n"},
		{"bad redirect port", "google:\n  redirect_port: 70000\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "gofer.yaml")
			if err := os.WriteFile(path, []byte(tc.manifest), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("Expected a validation error")
			}
		})
	}
}

// TestPathEnvOverride tests the GOFER_CONFIG override.
func TestPathEnvOverride(t *testing.T) {
	t.Setenv("GOFER_CONFIG", "/etc/gofer/gofer.yaml")
	if Path() != "/etc/gofer/gofer.yaml" {
		t.Errorf("Expected env override, got %q", Path())
	}
}
