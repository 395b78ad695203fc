package repl

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/vthunder/gofer/internal/journal"
	"github.com/vthunder/gofer/internal/llm"
	"github.com/vthunder/gofer/internal/mcp"
)

type fakeBroker struct {
	tools    []mcp.RoutedTool
	servers  []string
	statuses []mcp.ServerStatus
	out      string
	err      error
	calls    []string
	lastArgs map[string]any
}

func (f *fakeBroker) Tools() []mcp.RoutedTool { return f.tools }

func (f *fakeBroker) Describe(name string) (mcp.ToolDef, string, bool) {
	for _, rt := range f.tools {
		if rt.Tool.Name == name {
			return rt.Tool, rt.Server, true
		}
	}
	return mcp.ToolDef{}, "", false
}

func (f *fakeBroker) Call(name string, args map[string]any) (string, error) {
	f.calls = append(f.calls, name)
	f.lastArgs = args
	if f.err != nil {
		return "", f.err
	}
	return f.out, nil
}

func (f *fakeBroker) ServerNames() []string      { return f.servers }
func (f *fakeBroker) Status() []mcp.ServerStatus { return f.statuses }

type fakeAsker struct {
	question string
	answer   *llm.Answer
	err      error
}

func (f *fakeAsker) Ask(ctx context.Context, q string) (*llm.Answer, error) {
	f.question = q
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

func searchBroker() *fakeBroker {
	return &fakeBroker{
		tools: []mcp.RoutedTool{
			{
				Tool: mcp.ToolDef{
					Name:        "web_search",
					Description: "Search the web",
					Properties: map[string]mcp.PropDef{
						"query": {Type: "string", Description: "The search query"},
						"count": {Type: "number", Description: "Max results"},
					},
					Required: []string{"query"},
				},
				Server: "search",
			},
			{
				Tool:   mcp.ToolDef{Name: "mail_list", Description: "List inbox messages"},
				Server: "mail",
			},
		},
		servers: []string{"search", "mail"},
		out:     "1. Go - go.dev",
	}
}

func runREPL(t *testing.T, broker Broker, asker Asker, jrnl *journal.Journal, input string) string {
	t.Helper()
	r := New(broker, asker, jrnl)
	var out bytes.Buffer
	r.in = strings.NewReader(input)
	r.out = &out
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return out.String()
}

func TestREPLTools(t *testing.T) {
	out := runREPL(t, searchBroker(), nil, nil, "tools\nexit\n")

	if !strings.Contains(out, "Available tools (2)") {
		t.Errorf("Expected tool count in output:\n%s", out)
	}
	if !strings.Contains(out, "web_search  (search)") {
		t.Errorf("Expected web_search with server tag:\n%s", out)
	}
	if !strings.Contains(out, "mail_list  (mail)") {
		t.Errorf("Expected mail_list with server tag:\n%s", out)
	}
	if !strings.Contains(out, "Search the web") {
		t.Errorf("Expected description in output:\n%s", out)
	}
}

func TestREPLDescribe(t *testing.T) {
	out := runREPL(t, searchBroker(), nil, nil, "describe web_search\nexit\n")

	if !strings.Contains(out, "Tool: web_search (server: search)") {
		t.Errorf("Expected tool header:\n%s", out)
	}
	if !strings.Contains(out, "query (string, required): The search query") {
		t.Errorf("Expected required argument line:\n%s", out)
	}
	if !strings.Contains(out, "count (number): Max results") {
		t.Errorf("Expected optional argument line:\n%s", out)
	}
}

func TestREPLDescribeUnknownTool(t *testing.T) {
	out := runREPL(t, searchBroker(), nil, nil, "describe nope\nexit\n")

	if !strings.Contains(out, "Error: unknown tool: nope") {
		t.Errorf("Expected unknown tool error:\n%s", out)
	}
	if !strings.Contains(out, "Bye!") {
		t.Errorf("Expected loop to continue to exit:\n%s", out)
	}
}

func TestREPLCall(t *testing.T) {
	broker := searchBroker()
	out := runREPL(t, broker, nil, nil, "call web_search {\"query\":\"golang\"}\nexit\n")

	if len(broker.calls) != 1 || broker.calls[0] != "web_search" {
		t.Fatalf("Expected one web_search call, got %v", broker.calls)
	}
	if broker.lastArgs["query"] != "golang" {
		t.Errorf("Expected parsed args, got %v", broker.lastArgs)
	}
	if !strings.Contains(out, "1. Go - go.dev") {
		t.Errorf("Expected tool output:\n%s", out)
	}
}

func TestREPLCallBadJSON(t *testing.T) {
	broker := searchBroker()
	out := runREPL(t, broker, nil, nil, "call web_search {bad\nexit\n")

	if len(broker.calls) != 0 {
		t.Errorf("Expected no dispatch on bad JSON, got %v", broker.calls)
	}
	if !strings.Contains(out, "Error: invalid JSON arguments") {
		t.Errorf("Expected JSON error:\n%s", out)
	}
}

func TestREPLShorthandInvocation(t *testing.T) {
	broker := searchBroker()
	out := runREPL(t, broker, nil, nil, "web_search {\"query\":\"x\"}\nmail_list\nexit\n")

	if len(broker.calls) != 2 {
		t.Fatalf("Expected 2 shorthand calls, got %v", broker.calls)
	}
	if broker.calls[1] != "mail_list" {
		t.Errorf("Expected bare tool name to dispatch, got %v", broker.calls)
	}
	if strings.Contains(out, "Error:") {
		t.Errorf("Expected no errors:\n%s", out)
	}
}

func TestREPLUnknownCommand(t *testing.T) {
	out := runREPL(t, searchBroker(), nil, nil, "frobnicate\nexit\n")

	if !strings.Contains(out, "Error: unknown command: frobnicate") {
		t.Errorf("Expected unknown command error:\n%s", out)
	}
}

func TestREPLToolErrorContinues(t *testing.T) {
	broker := searchBroker()
	broker.err = errors.New("server mail exited")
	out := runREPL(t, broker, nil, nil, "mail_list\ntools\nexit\n")

	if !strings.Contains(out, "Error: server mail exited") {
		t.Errorf("Expected call error printed:\n%s", out)
	}
	if !strings.Contains(out, "Available tools (2)") {
		t.Errorf("Expected loop to keep working after error:\n%s", out)
	}
}

func TestREPLServers(t *testing.T) {
	out := runREPL(t, searchBroker(), nil, nil, "servers\nexit\n")

	if !strings.Contains(out, "Connected servers (2)") {
		t.Errorf("Expected server count:\n%s", out)
	}
	if !strings.Contains(out, "search") || !strings.Contains(out, "1 tools") {
		t.Errorf("Expected per-server tool counts:\n%s", out)
	}
}

func TestREPLStatus(t *testing.T) {
	broker := searchBroker()
	broker.statuses = []mcp.ServerStatus{
		{Name: "search", PID: 42, ToolCount: 1, Running: true, CPUPercent: 3.0, RSSBytes: 12 << 20},
		{Name: "mail", PID: 43, Running: false},
	}
	out := runREPL(t, broker, nil, nil, "status\nexit\n")

	if !strings.Contains(out, "pid 42") {
		t.Errorf("Expected PID in status:\n%s", out)
	}
	if !strings.Contains(out, "12.0 MB") {
		t.Errorf("Expected RSS in status:\n%s", out)
	}
	if !strings.Contains(out, "not running") {
		t.Errorf("Expected dead server flagged:\n%s", out)
	}
}

func TestREPLAsk(t *testing.T) {
	asker := &fakeAsker{
		answer: &llm.Answer{Text: "You are free at 9am.", Backend: "anthropic", Rounds: 2},
	}
	out := runREPL(t, searchBroker(), asker, nil, "ask when am I free tomorrow\nexit\n")

	if asker.question != "when am I free tomorrow" {
		t.Errorf("Expected question forwarded, got %q", asker.question)
	}
	if !strings.Contains(out, "You are free at 9am.") {
		t.Errorf("Expected answer text:\n%s", out)
	}
	if !strings.Contains(out, "[anthropic, 2 tool rounds]") {
		t.Errorf("Expected backend attribution:\n%s", out)
	}
}

func TestREPLAskWithoutBackend(t *testing.T) {
	out := runREPL(t, searchBroker(), nil, nil, "ask anything\nexit\n")

	if !strings.Contains(out, "Error: no llm backend configured") {
		t.Errorf("Expected missing backend error:\n%s", out)
	}
}

func TestREPLHistory(t *testing.T) {
	out := runREPL(t, searchBroker(), nil, nil, "tools\nhistory\nexit\n")

	if !strings.Contains(out, "  1  tools") {
		t.Errorf("Expected first history entry:\n%s", out)
	}
	if !strings.Contains(out, "  2  history") {
		t.Errorf("Expected history command itself recorded:\n%s", out)
	}
}

func TestREPLEOFWithoutExit(t *testing.T) {
	out := runREPL(t, searchBroker(), nil, nil, "tools")

	if !strings.Contains(out, "Available tools (2)") {
		t.Errorf("Expected final unterminated line to execute:\n%s", out)
	}
	if !strings.Contains(out, "Bye!") {
		t.Errorf("Expected clean EOF exit:\n%s", out)
	}
}

func TestREPLJournalsCalls(t *testing.T) {
	jrnl := journal.New(t.TempDir())
	asker := &fakeAsker{
		answer: &llm.Answer{Text: "done", Backend: "openai", Rounds: 0},
	}
	runREPL(t, searchBroker(), asker, jrnl, "call web_search {\"query\":\"go\"}\nask hello\nexit\n")

	entries, err := jrnl.Recent(10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 journal entries, got %d", len(entries))
	}
	if entries[0].Type != journal.EntryCall || entries[0].Summary != "web_search" {
		t.Errorf("Expected call entry for web_search, got %+v", entries[0])
	}
	if entries[0].Context != "search" {
		t.Errorf("Expected owning server recorded, got %q", entries[0].Context)
	}
	if entries[1].Type != journal.EntryAsk || entries[1].Context != "openai" {
		t.Errorf("Expected ask entry with backend, got %+v", entries[1])
	}
}

func TestREPLJournalCommand(t *testing.T) {
	jrnl := journal.New(t.TempDir())
	out := runREPL(t, searchBroker(), nil, jrnl, "call mail_list\njournal\nexit\n")

	if !strings.Contains(out, "Journal (1 entries)") {
		t.Errorf("Expected journal header, got:\n%s", out)
	}
	if !strings.Contains(out, "mail_list (mail)") {
		t.Errorf("Expected journaled call line, got:\n%s", out)
	}
}

func TestREPLJournalCommandBadCount(t *testing.T) {
	jrnl := journal.New(t.TempDir())
	out := runREPL(t, searchBroker(), nil, jrnl, "journal zero\nexit\n")

	if !strings.Contains(out, "Error: usage: journal [count]") {
		t.Errorf("Expected usage error, got:\n%s", out)
	}
}

func TestDispatcherJournalsErrors(t *testing.T) {
	broker := searchBroker()
	broker.err = errors.New("boom")
	jrnl := journal.New(t.TempDir())
	d := &Dispatcher{Broker: broker, Journal: jrnl}

	if _, err := d.Call("web_search", map[string]any{"query": "go"}); err == nil {
		t.Fatal("Expected call error")
	}

	entries, err := jrnl.Recent(1)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if entries[0].Outcome != "error: boom" {
		t.Errorf("Expected error outcome, got %q", entries[0].Outcome)
	}
}

func TestHumanBytes(t *testing.T) {
	tests := []struct {
		n    uint64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{12 << 20, "12.0 MB"},
		{3 << 30, "3.0 GB"},
	}
	for _, tc := range tests {
		if got := humanBytes(tc.n); got != tc.want {
			t.Errorf("humanBytes(%d) = %q, want %q", tc.n, got, tc.want)
		}
	}
}
