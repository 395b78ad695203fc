package docext

import (
	"strings"
	"testing"
)

func TestSessionStorePutGet(t *testing.T) {
	store := NewSessionStore(0)

	doc := &Document{Source: "a.txt", Text: "hello"}
	id, err := store.Put(doc)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if id == "" {
		t.Fatal("Expected non-empty session ID")
	}
	if doc.ID != id {
		t.Errorf("Expected document ID set to %q, got %q", id, doc.ID)
	}

	got, err := store.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != doc {
		t.Error("Expected the same document back")
	}

	other, err := store.Put(&Document{Source: "b.txt"})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if other == id {
		t.Error("Expected distinct session IDs")
	}
	if store.Len() != 2 {
		t.Errorf("Expected 2 sessions, got %d", store.Len())
	}
}

func TestSessionStoreUnknownID(t *testing.T) {
	store := NewSessionStore(0)

	if _, err := store.Get("nope"); err == nil || !strings.Contains(err.Error(), "unknown session") {
		t.Errorf("Expected unknown session error, got %v", err)
	}
	if err := store.Close("nope"); err == nil || !strings.Contains(err.Error(), "unknown session") {
		t.Errorf("Expected unknown session error, got %v", err)
	}
}

func TestSessionStoreClose(t *testing.T) {
	store := NewSessionStore(0)

	id, err := store.Put(&Document{Text: "x"})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Close(id); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := store.Get(id); err == nil {
		t.Error("Expected error after close")
	}
	if store.Len() != 0 {
		t.Errorf("Expected empty store, got %d", store.Len())
	}
}

func TestSessionStoreCap(t *testing.T) {
	store := NewSessionStore(2)

	first, err := store.Put(&Document{})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := store.Put(&Document{}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, err := store.Put(&Document{}); err == nil || !strings.Contains(err.Error(), "session limit") {
		t.Errorf("Expected session limit error, got %v", err)
	}

	// Closing one frees a slot
	if err := store.Close(first); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := store.Put(&Document{}); err != nil {
		t.Errorf("Expected put to succeed after close, got %v", err)
	}
}
