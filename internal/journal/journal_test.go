package journal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestJournalLog(t *testing.T) {
	tmpDir := t.TempDir()
	j := New(tmpDir)

	// Log a tool call
	err := j.LogCall("calendar_find_slot", "calendar", "found slot at 540", map[string]any{
		"duration": 30,
	})
	if err != nil {
		t.Fatalf("LogCall failed: %v", err)
	}

	// Log an ask
	err = j.LogAsk("when am I free tomorrow?", "anthropic", 2)
	if err != nil {
		t.Fatalf("LogAsk failed: %v", err)
	}

	// Log an auth flow
	err = j.LogAuth("google", "token stored")
	if err != nil {
		t.Fatalf("LogAuth failed: %v", err)
	}

	// Read back entries
	entries, err := j.Recent(10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}

	if len(entries) != 3 {
		t.Errorf("Expected 3 entries, got %d", len(entries))
	}

	// Verify first entry
	if entries[0].Type != EntryCall {
		t.Errorf("Expected call type, got %s", entries[0].Type)
	}
	if entries[0].Summary != "calendar_find_slot" {
		t.Errorf("Unexpected summary: %s", entries[0].Summary)
	}
	if entries[0].Context != "calendar" {
		t.Errorf("Unexpected context: %s", entries[0].Context)
	}
	if entries[1].Type != EntryAsk {
		t.Errorf("Expected ask type, got %s", entries[1].Type)
	}
	if entries[2].Type != EntryAuth {
		t.Errorf("Expected auth type, got %s", entries[2].Type)
	}

	// Verify file format
	data, _ := os.ReadFile(filepath.Join(tmpDir, "journal.jsonl"))
	lines := splitLines(data)
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			t.Errorf("Invalid JSON line: %s", line)
		}
	}

	t.Logf("Journal test passed with %d entries", len(entries))
}

func TestJournalLogError(t *testing.T) {
	tmpDir := t.TempDir()
	j := New(tmpDir)

	err := j.LogError("mail send", os.ErrPermission)
	if err != nil {
		t.Fatalf("LogError failed: %v", err)
	}

	entries, err := j.Recent(1)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if entries[0].Type != EntryError {
		t.Errorf("Expected error type, got %s", entries[0].Type)
	}
	if entries[0].Outcome != os.ErrPermission.Error() {
		t.Errorf("Unexpected outcome: %s", entries[0].Outcome)
	}
}

func TestJournalRecentMissingFile(t *testing.T) {
	j := New(t.TempDir())

	entries, err := j.Recent(10)
	if err != nil {
		t.Fatalf("Recent on missing file should not error: %v", err)
	}
	if entries != nil {
		t.Errorf("Expected nil entries, got %v", entries)
	}
}

func TestJournalRecentSkipsMalformed(t *testing.T) {
	tmpDir := t.TempDir()
	j := New(tmpDir)

	if err := j.LogAuth("google", "ok"); err != nil {
		t.Fatalf("LogAuth failed: %v", err)
	}

	// Append a corrupt line by hand
	f, err := os.OpenFile(filepath.Join(tmpDir, "journal.jsonl"), os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("Failed to open journal file: %v", err)
	}
	if _, err := f.Write([]byte("not json\n")); err != nil {
		t.Fatalf("Failed to write corrupt line: %v", err)
	}
	f.Close()

	if err := j.LogAuth("google", "refreshed"); err != nil {
		t.Fatalf("LogAuth failed: %v", err)
	}

	entries, err := j.Recent(10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("Expected 2 entries after skipping corruption, got %d", len(entries))
	}
}

func TestJournalToday(t *testing.T) {
	tmpDir := t.TempDir()
	j := New(tmpDir)

	// Log some entries today
	j.LogCall("mail_list", "mail", "5 messages", nil)
	j.LogCall("mail_read", "mail", "ok", nil)

	entries, err := j.Today()
	if err != nil {
		t.Fatalf("Today failed: %v", err)
	}

	if len(entries) != 2 {
		t.Errorf("Expected 2 entries today, got %d", len(entries))
	}
}
