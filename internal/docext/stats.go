package docext

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tsawler/prose/v3"
)

// statsMaxChars bounds the text handed to the NLP pass; tagging a
// multi-megabyte document is too slow for an interactive tool.
const statsMaxChars = 100000

// topEntityCount is how many distinct entities Stats reports.
const topEntityCount = 10

// EntityCount is a named entity and how often it appears.
type EntityCount struct {
	Text  string `json:"text"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Stats summarizes a document's text.
type Stats struct {
	Chars     int           `json:"chars"`
	Sentences int           `json:"sentences"`
	Tokens    int           `json:"tokens"`
	Entities  []EntityCount `json:"entities,omitempty"`
	Truncated bool          `json:"truncated,omitempty"`
}

// ComputeStats runs sentence, token, and entity analysis over text.
func ComputeStats(text string) (*Stats, error) {
	stats := &Stats{Chars: len(text)}

	analyzed := text
	if len(analyzed) > statsMaxChars {
		analyzed = analyzed[:statsMaxChars]
		stats.Truncated = true
	}
	if strings.TrimSpace(analyzed) == "" {
		return stats, nil
	}

	doc, err := prose.NewDocument(analyzed)
	if err != nil {
		return nil, fmt.Errorf("analyze text: %w", err)
	}

	stats.Sentences = len(doc.Sentences())
	stats.Tokens = len(doc.Tokens())

	type key struct{ text, label string }
	counts := make(map[key]int)
	for _, ent := range doc.Entities() {
		counts[key{ent.Text, ent.Label}]++
	}

	entities := make([]EntityCount, 0, len(counts))
	for k, n := range counts {
		entities = append(entities, EntityCount{Text: k.text, Label: k.label, Count: n})
	}
	sort.Slice(entities, func(i, j int) bool {
		if entities[i].Count != entities[j].Count {
			return entities[i].Count > entities[j].Count
		}
		return entities[i].Text < entities[j].Text
	})
	if len(entities) > topEntityCount {
		entities = entities[:topEntityCount]
	}
	stats.Entities = entities

	return stats, nil
}
