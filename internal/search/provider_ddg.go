package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const ddgBaseURL = "https://api.duckduckgo.com/"

// ddgProvider uses the DuckDuckGo instant answer API. It needs no API
// key, so it serves as the terminal fallback. Instant answers cover
// encyclopedic queries; NoResults is common for anything else.
type ddgProvider struct {
	baseURL string
}

// NewDuckDuckGo creates the keyless DuckDuckGo provider.
func NewDuckDuckGo() Provider {
	return &ddgProvider{baseURL: ddgBaseURL}
}

func (p *ddgProvider) Name() string {
	return ProviderDuckDuckGo
}

type ddgTopic struct {
	Text     string     `json:"Text"`
	FirstURL string     `json:"FirstURL"`
	Topics   []ddgTopic `json:"Topics"`
}

func (p *ddgProvider) Search(ctx context.Context, req Request) (*Response, error) {
	apiURL := fmt.Sprintf("%s?q=%s&format=json&no_html=1&skip_disambig=1",
		p.baseURL, url.QueryEscape(req.Query))

	start := time.Now()
	data, err := getJSON(ctx, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo search: %w", err)
	}

	var ddgResult struct {
		AbstractText  string     `json:"AbstractText"`
		AbstractURL   string     `json:"AbstractURL"`
		Answer        string     `json:"Answer"`
		Definition    string     `json:"Definition"`
		Heading       string     `json:"Heading"`
		RelatedTopics []ddgTopic `json:"RelatedTopics"`
	}
	if err := json.Unmarshal(data, &ddgResult); err != nil {
		return nil, fmt.Errorf("duckduckgo search: decode response: %w", err)
	}

	resp := &Response{
		Query:    req.Query,
		Provider: ProviderDuckDuckGo,
		TookMs:   time.Since(start).Milliseconds(),
		Answer:   ddgResult.Answer,
		Summary:  ddgResult.AbstractText,
	}

	// RelatedTopics nests categorized topics one level down
	var appendTopic func(topic ddgTopic)
	appendTopic = func(topic ddgTopic) {
		if topic.Text != "" && len(resp.Results) < req.Count {
			title, desc := splitTopicText(topic.Text)
			resp.Results = append(resp.Results, Result{
				Title:       title,
				URL:         topic.FirstURL,
				Description: desc,
				SiteName:    resolveSiteName(topic.FirstURL),
			})
		}
		for _, child := range topic.Topics {
			appendTopic(child)
		}
	}
	for _, topic := range ddgResult.RelatedTopics {
		appendTopic(topic)
	}

	if ddgResult.AbstractText != "" && ddgResult.AbstractURL != "" {
		// Surface the abstract source as a result too
		lead := Result{
			Title:       ddgResult.Heading,
			URL:         ddgResult.AbstractURL,
			Description: truncate(ddgResult.AbstractText, 240),
			SiteName:    resolveSiteName(ddgResult.AbstractURL),
		}
		resp.Results = append([]Result{lead}, resp.Results...)
	}

	resp.Count = len(resp.Results)
	if resp.Answer == "" && resp.Summary == "" && ddgResult.Definition == "" && len(resp.Results) == 0 {
		resp.NoResults = true
	}
	return resp, nil
}

func splitTopicText(text string) (title, snippet string) {
	parts := strings.SplitN(text, " - ", 2)
	if len(parts) == 2 {
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	}
	return strings.TrimSpace(text), ""
}
