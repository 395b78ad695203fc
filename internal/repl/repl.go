// Package repl implements the interactive command loop over the tool
// broker: listing and describing discovered tools, dispatching calls,
// showing server status, and routing natural-language questions to the
// LLM agent.
package repl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/vthunder/gofer/internal/journal"
	"github.com/vthunder/gofer/internal/llm"
	"github.com/vthunder/gofer/internal/logging"
	"github.com/vthunder/gofer/internal/mcp"
)

// Broker is the tool-routing surface the REPL drives.
type Broker interface {
	Tools() []mcp.RoutedTool
	Describe(name string) (mcp.ToolDef, string, bool)
	Call(name string, args map[string]any) (string, error)
	ServerNames() []string
	Status() []mcp.ServerStatus
}

// Asker answers natural-language questions, possibly calling tools.
type Asker interface {
	Ask(ctx context.Context, question string) (*llm.Answer, error)
}

// Dispatcher routes tool calls through the broker and records each call
// and its outcome in the journal. The REPL and the ask agent share this
// path so every dispatched call is journaled exactly once.
type Dispatcher struct {
	Broker  Broker
	Journal *journal.Journal
}

var _ llm.ToolDispatcher = (*Dispatcher)(nil)

// Call dispatches one tool call and journals the outcome.
func (d *Dispatcher) Call(tool string, args map[string]any) (string, error) {
	_, server, _ := d.Broker.Describe(tool)

	out, err := d.Broker.Call(tool, args)
	if d.Journal != nil {
		outcome := logging.Truncate(out, 200)
		if err != nil {
			outcome = "error: " + err.Error()
		}
		if jerr := d.Journal.LogCall(tool, server, outcome, args); jerr != nil {
			logging.Error("repl", "journal write: %v", jerr)
		}
	}
	return out, err
}

// REPL is the interactive read-eval-print loop.
type REPL struct {
	broker   Broker
	asker    Asker
	dispatch *Dispatcher
	in       io.Reader
	out      io.Writer
	history  []string
}

// New creates a REPL reading stdin and writing stdout. asker may be nil
// when no LLM backend is configured; ask reports that and every other
// command keeps working. jrnl may be nil to disable journaling.
func New(broker Broker, asker Asker, jrnl *journal.Journal) *REPL {
	return &REPL{
		broker:   broker,
		asker:    asker,
		dispatch: &Dispatcher{Broker: broker, Journal: jrnl},
		in:       os.Stdin,
		out:      os.Stdout,
	}
}

// errExit signals a clean exit so Run returns instead of calling
// os.Exit, letting main shut the servers down.
var errExit = errors.New("exit")

// Run starts the interactive loop. It returns when the operator exits or
// stdin closes.
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintf(r.out, "gofer: %d servers, %d tools connected. Type 'help' for commands, 'exit' to quit.\n\n",
		len(r.broker.ServerNames()), len(r.broker.Tools()))

	reader := bufio.NewReader(r.in)
	for {
		fmt.Fprint(r.out, "> ")

		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("read input: %w", err)
		}

		input := strings.TrimSpace(line)
		if input != "" {
			r.history = append(r.history, input)
			if cmdErr := r.executeCommand(ctx, input); cmdErr != nil {
				if errors.Is(cmdErr, errExit) {
					return nil
				}
				fmt.Fprintf(r.out, "Error: %v\n\n", cmdErr)
			}
		}

		if err == io.EOF {
			fmt.Fprintln(r.out, "Bye!")
			return nil
		}
	}
}

// executeCommand parses and executes one input line.
func (r *REPL) executeCommand(ctx context.Context, input string) error {
	parts := strings.Fields(input)
	command := parts[0]
	args := parts[1:]

	switch command {
	case "help", "?":
		return r.cmdHelp()

	case "tools", "list":
		return r.cmdTools()

	case "describe":
		if len(args) == 0 {
			return fmt.Errorf("usage: describe <tool>")
		}
		return r.cmdDescribe(args[0])

	case "call", "invoke":
		if len(args) == 0 {
			return fmt.Errorf("usage: call <tool> [json args]")
		}
		params, err := parseArgs(args[1:])
		if err != nil {
			return err
		}
		return r.cmdCall(args[0], params)

	case "servers":
		return r.cmdServers()

	case "status":
		return r.cmdStatus()

	case "ask":
		if len(args) == 0 {
			return fmt.Errorf("usage: ask <question>")
		}
		return r.cmdAsk(ctx, strings.Join(args, " "))

	case "journal":
		return r.cmdJournal(args)

	case "history":
		return r.cmdHistory()

	case "clear":
		fmt.Fprint(r.out, "\033[H\033[2J")
		return nil

	case "exit", "quit":
		fmt.Fprintln(r.out, "Bye!")
		return errExit

	default:
		// Shorthand: a tool name with optional JSON args calls it directly
		if strings.Contains(command, "_") {
			params, err := parseArgs(args)
			if err != nil {
				return err
			}
			return r.cmdCall(command, params)
		}
		return fmt.Errorf("unknown command: %s (type 'help' for commands)", command)
	}
}

// parseArgs joins the remaining fields back into one JSON object.
func parseArgs(parts []string) (map[string]any, error) {
	if len(parts) == 0 {
		return nil, nil
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(strings.Join(parts, " ")), &params); err != nil {
		return nil, fmt.Errorf("invalid JSON arguments: %w", err)
	}
	return params, nil
}

func (r *REPL) cmdHelp() error {
	fmt.Fprintln(r.out, "Available commands:")
	fmt.Fprintln(r.out, "  help, ?                Show this help message")
	fmt.Fprintln(r.out, "  tools                  List all discovered tools")
	fmt.Fprintln(r.out, "  describe <tool>        Show a tool's arguments")
	fmt.Fprintln(r.out, "  call <tool> [json]     Call a tool with JSON arguments")
	fmt.Fprintln(r.out, "  servers                List connected tool servers")
	fmt.Fprintln(r.out, "  status                 Show per-server PID, CPU, and memory")
	fmt.Fprintln(r.out, "  ask <question>         Ask in natural language (uses tools as needed)")
	fmt.Fprintln(r.out, "  journal [n]            Show today's journal, or the last n entries")
	fmt.Fprintln(r.out, "  history                Show command history")
	fmt.Fprintln(r.out, "  clear                  Clear the screen")
	fmt.Fprintln(r.out, "  exit, quit             Exit")
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "Shorthand tool invocation:")
	fmt.Fprintln(r.out, "  mail_list")
	fmt.Fprintln(r.out, "  web_search {\"query\":\"golang\"}")
	fmt.Fprintln(r.out)
	return nil
}

func (r *REPL) cmdTools() error {
	tools := r.broker.Tools()
	fmt.Fprintf(r.out, "Available tools (%d):\n", len(tools))
	for _, rt := range tools {
		fmt.Fprintf(r.out, "  %s  (%s)\n", rt.Tool.Name, rt.Server)
		if rt.Tool.Description != "" {
			fmt.Fprintf(r.out, "      %s\n", logging.Truncate(rt.Tool.Description, 100))
		}
	}
	fmt.Fprintln(r.out)
	return nil
}

func (r *REPL) cmdDescribe(name string) error {
	tool, server, ok := r.broker.Describe(name)
	if !ok {
		return fmt.Errorf("unknown tool: %s", name)
	}

	fmt.Fprintf(r.out, "Tool: %s (server: %s)\n", tool.Name, server)
	if tool.Description != "" {
		fmt.Fprintf(r.out, "Description: %s\n", tool.Description)
	}

	if len(tool.Properties) > 0 {
		required := make(map[string]bool)
		for _, n := range tool.Required {
			required[n] = true
		}

		names := make([]string, 0, len(tool.Properties))
		for n := range tool.Properties {
			names = append(names, n)
		}
		sort.Strings(names)

		fmt.Fprintln(r.out, "Arguments:")
		for _, n := range names {
			p := tool.Properties[n]
			req := ""
			if required[n] {
				req = ", required"
			}
			fmt.Fprintf(r.out, "  %s (%s%s): %s\n", n, p.Type, req, p.Description)
		}
	}
	fmt.Fprintln(r.out)
	return nil
}

func (r *REPL) cmdCall(name string, args map[string]any) error {
	out, err := r.dispatch.Call(name, args)
	if err != nil {
		return err
	}
	if out == "" {
		out = "(empty result)"
	}
	fmt.Fprintln(r.out, out)
	fmt.Fprintln(r.out)
	return nil
}

func (r *REPL) cmdServers() error {
	names := r.broker.ServerNames()
	if len(names) == 0 {
		fmt.Fprintln(r.out, "No servers running")
		fmt.Fprintln(r.out)
		return nil
	}

	counts := make(map[string]int)
	for _, rt := range r.broker.Tools() {
		counts[rt.Server]++
	}

	fmt.Fprintf(r.out, "Connected servers (%d):\n", len(names))
	for _, n := range names {
		fmt.Fprintf(r.out, "  %-10s %d tools\n", n, counts[n])
	}
	fmt.Fprintln(r.out)
	return nil
}

func (r *REPL) cmdStatus() error {
	statuses := r.broker.Status()
	if len(statuses) == 0 {
		fmt.Fprintln(r.out, "No servers running")
		fmt.Fprintln(r.out)
		return nil
	}

	for _, st := range statuses {
		if !st.Running {
			fmt.Fprintf(r.out, "  %-10s pid %-6d not running\n", st.Name, st.PID)
			continue
		}
		fmt.Fprintf(r.out, "  %-10s pid %-6d tools %-3d cpu %4.1f%%  rss %s\n",
			st.Name, st.PID, st.ToolCount, st.CPUPercent, humanBytes(st.RSSBytes))
	}
	fmt.Fprintln(r.out)
	return nil
}

func (r *REPL) cmdAsk(ctx context.Context, question string) error {
	if r.asker == nil {
		return fmt.Errorf("no llm backend configured (set ANTHROPIC_API_KEY or OPENAI_API_KEY)")
	}

	answer, err := r.asker.Ask(ctx, question)
	if err != nil {
		if jrnl := r.dispatch.Journal; jrnl != nil {
			jrnl.LogError("ask", err)
		}
		return err
	}

	fmt.Fprintln(r.out, answer.Text)
	if answer.Rounds > 0 {
		fmt.Fprintf(r.out, "[%s, %d tool rounds]\n", answer.Backend, answer.Rounds)
	} else {
		fmt.Fprintf(r.out, "[%s]\n", answer.Backend)
	}
	fmt.Fprintln(r.out)

	if jrnl := r.dispatch.Journal; jrnl != nil {
		if jerr := jrnl.LogAsk(question, answer.Backend, answer.Rounds); jerr != nil {
			logging.Error("repl", "journal write: %v", jerr)
		}
	}
	return nil
}

func (r *REPL) cmdJournal(args []string) error {
	jrnl := r.dispatch.Journal
	if jrnl == nil {
		return fmt.Errorf("journal is disabled")
	}

	var entries []journal.Entry
	var err error
	if len(args) > 0 {
		n, convErr := strconv.Atoi(args[0])
		if convErr != nil || n < 1 {
			return fmt.Errorf("usage: journal [count]")
		}
		entries, err = jrnl.Recent(n)
	} else {
		entries, err = jrnl.Today()
	}
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}

	if len(entries) == 0 {
		fmt.Fprintln(r.out, "No journal entries")
		fmt.Fprintln(r.out)
		return nil
	}

	fmt.Fprintf(r.out, "Journal (%d entries):\n", len(entries))
	for _, e := range entries {
		desc := e.Summary
		if e.Context != "" {
			desc += " (" + e.Context + ")"
		}
		if e.Outcome != "" {
			desc += "  " + logging.Truncate(e.Outcome, 60)
		}
		fmt.Fprintf(r.out, "  %s  %-5s  %s\n", e.Timestamp.Format("Jan 2 15:04"), e.Type, desc)
	}
	fmt.Fprintln(r.out)
	return nil
}

func (r *REPL) cmdHistory() error {
	if len(r.history) == 0 {
		fmt.Fprintln(r.out, "No command history")
		return nil
	}

	fmt.Fprintln(r.out, "Command history:")
	for i, cmd := range r.history {
		fmt.Fprintf(r.out, "%3d  %s\n", i+1, cmd)
	}
	fmt.Fprintln(r.out)
	return nil
}

func humanBytes(n uint64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}
