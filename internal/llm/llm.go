// Package llm answers natural-language requests through chat backends
// that can call brokered tools. The primary backend is tried first;
// on failure the question is retried on the fallback.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/vthunder/gofer/internal/logging"
)

// Tool describes a callable tool in JSON-schema form.
type Tool struct {
	Name        string
	Description string
	Schema      map[string]any // {"type":"object","properties":...,"required":...}
}

// ToolCall is a backend's request to invoke a tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolResult is the outcome of a dispatched tool call.
type ToolResult struct {
	ID      string
	Content string
	IsError bool
}

// Turn is one assistant response: text, tool calls, or both.
type Turn struct {
	Text      string
	ToolCalls []ToolCall
	Backend   string
}

// Conversation is an open exchange with one backend. Implementations
// keep the message history in their provider's native form.
type Conversation interface {
	Send(ctx context.Context, text string) (*Turn, error)
	SendToolResults(ctx context.Context, results []ToolResult) (*Turn, error)
}

// Backend opens conversations against one provider.
type Backend interface {
	Name() string
	Start(system string, tools []Tool) Conversation
}

// ToolDispatcher executes a tool call on the caller's behalf.
type ToolDispatcher interface {
	Call(tool string, args map[string]any) (string, error)
}

// Answer is the final result of an Ask.
type Answer struct {
	Text    string
	Backend string
	Rounds  int
}

// Agent runs the ask loop: send the question, dispatch any tool calls,
// feed results back, repeat until the backend answers in text.
type Agent struct {
	system    string
	tools     []Tool
	dispatch  ToolDispatcher
	maxRounds int
	backends  []Backend
}

// NewAgent creates an agent over the given backends, tried in order;
// nil backends are skipped.
func NewAgent(system string, tools []Tool, dispatch ToolDispatcher, maxRounds int, backends ...Backend) *Agent {
	a := &Agent{
		system:    system,
		tools:     tools,
		dispatch:  dispatch,
		maxRounds: maxRounds,
	}
	if a.maxRounds <= 0 {
		a.maxRounds = 8
	}
	for _, b := range backends {
		if b != nil {
			a.backends = append(a.backends, b)
		}
	}
	return a
}

// Ask answers a question, falling back to the next backend when one
// fails anywhere in its tool loop.
func (a *Agent) Ask(ctx context.Context, question string) (*Answer, error) {
	var lastErr error
	for _, backend := range a.backends {
		answer, err := a.run(ctx, backend, question)
		if err != nil {
			logging.Error("llm", "%s: %v", backend.Name(), err)
			lastErr = err
			continue
		}
		return answer, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("no llm backends configured")
}

func (a *Agent) run(ctx context.Context, backend Backend, question string) (*Answer, error) {
	conv := backend.Start(a.system, a.tools)

	turn, err := conv.Send(ctx, question)
	if err != nil {
		return nil, err
	}

	rounds := 0
	for len(turn.ToolCalls) > 0 {
		if rounds >= a.maxRounds {
			return nil, fmt.Errorf("tool call limit reached after %d rounds", a.maxRounds)
		}
		rounds++

		results := make([]ToolResult, 0, len(turn.ToolCalls))
		for _, call := range turn.ToolCalls {
			logging.Info("llm", "round %d: %s calls %s", rounds, backend.Name(), call.Name)
			out, err := a.dispatch.Call(call.Name, call.Arguments)
			if err != nil {
				results = append(results, ToolResult{ID: call.ID, Content: err.Error(), IsError: true})
				continue
			}
			results = append(results, ToolResult{ID: call.ID, Content: out})
		}

		turn, err = conv.SendToolResults(ctx, results)
		if err != nil {
			return nil, err
		}
	}

	return &Answer{Text: turn.Text, Backend: turn.Backend, Rounds: rounds}, nil
}
