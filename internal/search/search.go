// Package search runs web searches through a chain of providers,
// falling back to the next provider when one fails.
package search

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/vthunder/gofer/internal/logging"
)

// Provider names accepted in configuration.
const (
	ProviderExa        = "exa"
	ProviderBrave      = "brave"
	ProviderDuckDuckGo = "duckduckgo"
)

const (
	DefaultSearchCount = 5
	MaxSearchCount     = 20
)

// Request is a normalized web search request.
type Request struct {
	Query string
	Count int
}

// Result is a normalized search result.
type Result struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	Published   string `json:"published,omitempty"`
	SiteName    string `json:"siteName,omitempty"`
}

// Response is a normalized search response.
type Response struct {
	Query     string   `json:"query"`
	Provider  string   `json:"provider"`
	Count     int      `json:"count"`
	TookMs    int64    `json:"tookMs"`
	Results   []Result `json:"results"`
	Answer    string   `json:"answer,omitempty"`
	Summary   string   `json:"summary,omitempty"`
	NoResults bool     `json:"noResults,omitempty"`
}

// Provider performs web searches for a given backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, req Request) (*Response, error)
}

// Router tries providers in order until one answers.
type Router struct {
	providers []Provider
}

// NewRouter creates a router over the given providers; nil entries are
// skipped.
func NewRouter(providers ...Provider) *Router {
	r := &Router{}
	for _, p := range providers {
		if p != nil {
			r.providers = append(r.providers, p)
		}
	}
	return r
}

// Build assembles a router from a configured provider order. Providers
// whose API key is missing are left out; DuckDuckGo needs no key and is
// always available when listed.
func Build(order []string, exaKey, braveKey string) *Router {
	var providers []Provider
	seen := make(map[string]bool)
	for _, name := range order {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		switch name {
		case ProviderExa:
			if p := NewExa(exaKey); p != nil {
				providers = append(providers, p)
			}
		case ProviderBrave:
			if p := NewBrave(braveKey); p != nil {
				providers = append(providers, p)
			}
		case ProviderDuckDuckGo:
			providers = append(providers, NewDuckDuckGo())
		default:
			logging.Info("search", "unknown provider %q skipped", name)
		}
	}
	return NewRouter(providers...)
}

// ProviderNames returns the active provider order.
func (r *Router) ProviderNames() []string {
	names := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		names = append(names, p.Name())
	}
	return names
}

// Search executes the request against the provider chain. The first
// provider to answer wins; if all fail, the last error is returned.
func (r *Router) Search(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, errors.New("missing query")
	}
	if req.Count <= 0 {
		req.Count = DefaultSearchCount
	}
	if req.Count > MaxSearchCount {
		req.Count = MaxSearchCount
	}

	var lastErr error
	for _, provider := range r.providers {
		resp, err := provider.Search(ctx, req)
		if err != nil {
			logging.Debug("search", "%s failed: %v", provider.Name(), err)
			lastErr = err
			continue
		}
		if resp == nil {
			lastErr = fmt.Errorf("provider %s returned empty response", provider.Name())
			continue
		}
		if resp.Provider == "" {
			resp.Provider = provider.Name()
		}
		if resp.Query == "" {
			resp.Query = req.Query
		}
		if resp.Count == 0 {
			resp.Count = len(resp.Results)
		}
		logging.Info("search", "%s answered %q (%d results)", resp.Provider, req.Query, len(resp.Results))
		return resp, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("no search providers available")
}

// resolveSiteName extracts the hostname from a result URL.
func resolveSiteName(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

// truncate shortens a description to max bytes on a best-effort basis.
func truncate(value string, max int) string {
	value = strings.TrimSpace(value)
	if max <= 0 || len(value) <= max {
		return value
	}
	return value[:max] + "..."
}
