package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const braveBaseURL = "https://api.search.brave.com/res/v1/web/search"

type braveProvider struct {
	apiKey  string
	baseURL string
}

// NewBrave creates the Brave provider, or nil when no API key is set.
func NewBrave(apiKey string) Provider {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil
	}
	return &braveProvider{apiKey: apiKey, baseURL: braveBaseURL}
}

func (p *braveProvider) Name() string {
	return ProviderBrave
}

func (p *braveProvider) Search(ctx context.Context, req Request) (*Response, error) {
	searchURL, err := url.Parse(p.baseURL)
	if err != nil {
		return nil, fmt.Errorf("brave search: %w", err)
	}
	query := searchURL.Query()
	query.Set("q", req.Query)
	query.Set("count", fmt.Sprintf("%d", req.Count))
	searchURL.RawQuery = query.Encode()

	start := time.Now()
	data, err := getJSON(ctx, searchURL.String(), map[string]string{
		"Accept":               "application/json",
		"X-Subscription-Token": p.apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("brave search: %w", err)
	}

	var resp struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
				Age         string `json:"age"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("brave search: decode response: %w", err)
	}

	results := make([]Result, 0, len(resp.Web.Results))
	for _, entry := range resp.Web.Results {
		results = append(results, Result{
			Title:       strings.TrimSpace(entry.Title),
			URL:         entry.URL,
			Description: strings.TrimSpace(entry.Description),
			Published:   entry.Age,
			SiteName:    resolveSiteName(entry.URL),
		})
	}

	return &Response{
		Query:     req.Query,
		Provider:  ProviderBrave,
		Count:     len(results),
		TookMs:    time.Since(start).Milliseconds(),
		Results:   results,
		NoResults: len(results) == 0,
	}, nil
}
