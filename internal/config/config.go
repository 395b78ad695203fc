// Package config loads the gofer.yaml manifest: which tool servers to
// spawn, which LLM backend answers ask commands, and where state lives.
// Secrets (API keys, OAuth client credentials) come from the environment
// only, never from the manifest.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the parsed gofer.yaml manifest.
type Config struct {
	StatePath string        `yaml:"state_path"`
	Servers   []ServerEntry `yaml:"servers"`
	LLM       LLMConfig     `yaml:"llm"`
	Search    SearchConfig  `yaml:"search"`
	Google    GoogleConfig  `yaml:"google"`
}

// ServerEntry describes one tool server subprocess in the manifest.
type ServerEntry struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
}

// LLMConfig selects the text-generation backends for the ask command.
type LLMConfig struct {
	Primary        string `yaml:"primary"` // "anthropic" or "openai"
	AnthropicModel string `yaml:"anthropic_model"`
	OpenAIModel    string `yaml:"openai_model"`
	MaxToolRounds  int    `yaml:"max_tool_rounds"`
}

// SearchConfig orders the web-search provider fallback chain.
type SearchConfig struct {
	Providers []string `yaml:"providers"`
}

// GoogleConfig carries the non-secret OAuth and calendar settings.
type GoogleConfig struct {
	RedirectPort int    `yaml:"redirect_port"`
	CalendarID   string `yaml:"calendar_id"`
}

// Default returns the configuration used when no gofer.yaml exists: the
// four standard tool servers looked up on PATH, Anthropic primary.
func Default() *Config {
	cfg := &Config{
		Servers: []ServerEntry{
			{Name: "calendar", Command: "calendar-mcp"},
			{Name: "mail", Command: "mail-mcp"},
			{Name: "search", Command: "search-mcp"},
			{Name: "doc", Command: "doc-mcp"},
		},
	}
	cfg.applyDefaults()
	return cfg
}

// Load reads the manifest at path. A missing file is not an error: the
// defaults apply, matching how the optional .env load behaves.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Path returns the manifest location: $GOFER_CONFIG or ./gofer.yaml.
func Path() string {
	if p := os.Getenv("GOFER_CONFIG"); p != "" {
		return p
	}
	return "gofer.yaml"
}

func (c *Config) applyDefaults() {
	if c.StatePath == "" {
		c.StatePath = "state"
	}
	if c.LLM.Primary == "" {
		c.LLM.Primary = "anthropic"
	}
	if c.LLM.AnthropicModel == "" {
		c.LLM.AnthropicModel = "claude-sonnet-4-5"
	}
	if c.LLM.OpenAIModel == "" {
		c.LLM.OpenAIModel = "gpt-4o"
	}
	if c.LLM.MaxToolRounds == 0 {
		c.LLM.MaxToolRounds = 8
	}
	if len(c.Search.Providers) == 0 {
		c.Search.Providers = []string{"exa", "brave", "duckduckgo"}
	}
	if c.Google.RedirectPort == 0 {
		c.Google.RedirectPort = 8910
	}
	if c.Google.CalendarID == "" {
		c.Google.CalendarID = "primary"
	}
}

func (c *Config) validate() error {
	for i, s := range c.Servers {
		if s.Name == "" {
			return fmt.Errorf("servers[%d]: name is required", i)
		}
		if s.Command == "" {
			return fmt.Errorf("server %s: command is required", s.Name)
		}
	}
	if c.LLM.Primary != "anthropic" && c.LLM.Primary != "openai" {
		return fmt.Errorf("llm.primary must be anthropic or openai, got %q", c.LLM.Primary)
	}
	for _, p := range c.Search.Providers {
		switch p {
		case "exa", "brave", "duckduckgo":
		default:
			return fmt.Errorf("unknown search provider %q", p)
		}
	}
	if c.Google.RedirectPort < 1 || c.Google.RedirectPort > 65535 {
		return fmt.Errorf("google.redirect_port out of range: %d", c.Google.RedirectPort)
	}
	return nil
}

// TokenDBPath returns where the OAuth token database lives.
func (c *Config) TokenDBPath() string {
	return filepath.Join(c.StatePath, "tokens.db")
}
