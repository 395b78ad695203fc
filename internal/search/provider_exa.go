package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const exaBaseURL = "https://api.exa.ai"

type exaProvider struct {
	apiKey  string
	baseURL string
}

// NewExa creates the Exa provider, or nil when no API key is set.
func NewExa(apiKey string) Provider {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil
	}
	return &exaProvider{apiKey: apiKey, baseURL: exaBaseURL}
}

func (p *exaProvider) Name() string {
	return ProviderExa
}

func (p *exaProvider) Search(ctx context.Context, req Request) (*Response, error) {
	payload := map[string]any{
		"query":      req.Query,
		"numResults": req.Count,
		"contents": map[string]any{
			"highlights": map[string]any{
				"numSentences":     1,
				"highlightsPerUrl": 1,
			},
		},
	}

	start := time.Now()
	data, err := postJSON(ctx, p.baseURL+"/search", map[string]string{
		"x-api-key": p.apiKey,
		"accept":    "application/json",
	}, payload)
	if err != nil {
		return nil, fmt.Errorf("exa search: %w", err)
	}

	var resp struct {
		Results []struct {
			Title         string   `json:"title"`
			URL           string   `json:"url"`
			PublishedDate string   `json:"publishedDate"`
			Text          string   `json:"text"`
			Highlights    []string `json:"highlights"`
		} `json:"results"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("exa search: decode response: %w", err)
	}

	results := make([]Result, 0, len(resp.Results))
	for _, entry := range resp.Results {
		desc := ""
		if len(entry.Highlights) > 0 {
			desc = strings.TrimSpace(entry.Highlights[0])
		} else if entry.Text != "" {
			desc = truncate(entry.Text, 240)
		}
		results = append(results, Result{
			Title:       strings.TrimSpace(entry.Title),
			URL:         entry.URL,
			Description: desc,
			Published:   entry.PublishedDate,
			SiteName:    resolveSiteName(entry.URL),
		})
	}

	return &Response{
		Query:     req.Query,
		Provider:  ProviderExa,
		Count:     len(results),
		TookMs:    time.Since(start).Milliseconds(),
		Results:   results,
		NoResults: len(results) == 0,
	}, nil
}
