package journal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EntryType identifies what kind of journal entry this is
type EntryType string

const (
	EntryCall  EntryType = "call"  // Tool call dispatched to a server
	EntryAsk   EntryType = "ask"   // Natural-language question answered
	EntryAuth  EntryType = "auth"  // OAuth flow ran
	EntryError EntryType = "error" // Something failed
)

// Entry represents a single journal entry
type Entry struct {
	Timestamp time.Time      `json:"ts"`
	Type      EntryType      `json:"type"`
	Summary   string         `json:"summary,omitempty"` // Brief description
	Context   string         `json:"context,omitempty"` // What prompted this
	Outcome   string         `json:"outcome,omitempty"` // What resulted
	Data      map[string]any `json:"data,omitempty"`    // Flexible extra data
}

// Journal writes observability entries to state/journal.jsonl
type Journal struct {
	path string
	mu   sync.Mutex
}

// New creates a journal writer
func New(statePath string) *Journal {
	return &Journal{
		path: filepath.Join(statePath, "journal.jsonl"),
	}
}

// Log writes an entry to the journal
func (j *Journal) Log(entry Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	// Set timestamp if not provided
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	// Open file for append
	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	// Write JSON line
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

// LogCall logs a tool call and its outcome
func (j *Journal) LogCall(tool, server, outcome string, data map[string]any) error {
	return j.Log(Entry{
		Type:    EntryCall,
		Summary: tool,
		Context: server,
		Outcome: outcome,
		Data:    data,
	})
}

// LogAsk logs a natural-language question and which backend answered
func (j *Journal) LogAsk(question, backend string, rounds int) error {
	return j.Log(Entry{
		Type:    EntryAsk,
		Summary: question,
		Context: backend,
		Data: map[string]any{
			"tool_rounds": rounds,
		},
	})
}

// LogAuth logs an OAuth flow outcome
func (j *Journal) LogAuth(service, outcome string) error {
	return j.Log(Entry{
		Type:    EntryAuth,
		Summary: service,
		Outcome: outcome,
	})
}

// LogError logs a failure with its context
func (j *Journal) LogError(context string, err error) error {
	return j.Log(Entry{
		Type:    EntryError,
		Context: context,
		Outcome: err.Error(),
	})
}

// Recent returns the last n entries from the journal
func (j *Journal) Recent(n int) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := os.ReadFile(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	// Parse all lines
	var entries []Entry
	lines := splitLines(data)
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue // skip malformed entries
		}
		entries = append(entries, entry)
	}

	// Return last n
	if n >= len(entries) {
		return entries, nil
	}
	return entries[len(entries)-n:], nil
}

// Today returns entries from today
func (j *Journal) Today() ([]Entry, error) {
	entries, err := j.Recent(1000) // reasonable limit
	if err != nil {
		return nil, err
	}

	// Filter to today
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var todayEntries []Entry
	for _, e := range entries {
		if e.Timestamp.After(today) || e.Timestamp.Equal(today) {
			todayEntries = append(todayEntries, e)
		}
	}
	return todayEntries, nil
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, data[start:i])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
