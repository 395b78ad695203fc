// Package mcp implements the client side of the Model Context Protocol
// over stdio: spawning tool-server subprocesses, the initialize handshake,
// tool discovery, and call dispatch.
package mcp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/vthunder/gofer/internal/logging"
)

// ServerConfig describes one stdio tool server to spawn.
type ServerConfig struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
}

// Client manages a tool-server subprocess and speaks JSON-RPC to it over
// its stdin/stdout pipes. All send/receive pairs are serialized.
type Client struct {
	name   string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	mu     sync.Mutex // Serializes all send/receive operations
	nextID int64
}

// Start spawns the server subprocess and performs the MCP initialize
// handshake. The server's stderr is passed through so its logs stay
// visible; its stdout carries only protocol traffic.
func Start(cfg ServerConfig) (*Client, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)

	// Inherit parent environment, then override/add specified vars
	cmd.Env = os.Environ()
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cfg.Command, err)
	}

	client := &Client{
		name:   cfg.Name,
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
	}

	if err := client.initialize(); err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		return nil, fmt.Errorf("initialize %s: %w", cfg.Name, err)
	}

	logging.Info("mcp:"+cfg.Name, "Ready (pid=%d)", cmd.Process.Pid)
	return client, nil
}

// Name returns the server name from the manifest.
func (c *Client) Name() string {
	return c.name
}

// Pid returns the subprocess PID, or 0 if it never started.
func (c *Client) Pid() int32 {
	if c.cmd.Process == nil {
		return 0
	}
	return int32(c.cmd.Process.Pid)
}

func (c *Client) newID() int64 {
	return atomic.AddInt64(&c.nextID, 1)
}

// sendRequest sends a JSON-RPC request and reads the corresponding response.
// The mutex must NOT be held by the caller; this method acquires it.
func (c *Client) sendRequest(method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.newID()
	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
	}
	if params != nil {
		req["params"] = params
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	if _, err := fmt.Fprintf(c.stdin, "%s\n", data); err != nil {
		return nil, fmt.Errorf("write to %s: %w", c.name, err)
	}

	// Read lines until we find a response with matching ID (skip notifications)
	for {
		line, err := c.stdout.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("read from %s: %w", c.name, err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var resp jsonRPCResponse
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			// Not valid JSON-RPC, skip (could be startup logs)
			logging.Debug("mcp:"+c.name, "Skipping non-JSON line: %.80s", line)
			continue
		}

		// Notifications have no ID, skip them
		if resp.ID == nil {
			continue
		}

		if resp.Error != nil {
			return nil, fmt.Errorf("rpc error %d: %s", resp.Error.Code, resp.Error.Message)
		}

		return resp.Result, nil
	}
}

// sendNotification sends a JSON-RPC notification (no response expected)
func (c *Client) sendNotification(method string, params any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	notif := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
	}
	if params != nil {
		notif["params"] = params
	}

	data, err := json.Marshal(notif)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	_, err = fmt.Fprintf(c.stdin, "%s\n", data)
	return err
}

func (c *Client) initialize() error {
	_, err := c.sendRequest("initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"clientInfo": map[string]string{
			"name":    "gofer",
			"version": "0.1.0",
		},
		"capabilities": map[string]any{},
	})
	if err != nil {
		return fmt.Errorf("initialize handshake: %w", err)
	}

	return c.sendNotification("notifications/initialized", nil)
}

// DiscoverTools lists all tools the server advertises via tools/list.
func (c *Client) DiscoverTools() ([]ToolDef, error) {
	result, err := c.sendRequest("tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("tools/list: %w", err)
	}

	var listResult toolsListResult
	if err := json.Unmarshal(result, &listResult); err != nil {
		return nil, fmt.Errorf("parse tools list: %w", err)
	}

	defs := make([]ToolDef, 0, len(listResult.Tools))
	for _, t := range listResult.Tools {
		props := make(map[string]PropDef)
		for name, p := range t.InputSchema.Properties {
			props[name] = PropDef{
				Type:        p.Type,
				Description: p.Description,
			}
		}
		defs = append(defs, ToolDef{
			Name:        t.Name,
			Description: t.Description,
			Properties:  props,
			Required:    t.InputSchema.Required,
		})
	}

	return defs, nil
}

// CallTool calls a named tool on the server. A result flagged isError
// comes back as a Go error carrying the tool's error text.
func (c *Client) CallTool(name string, args map[string]any) (string, error) {
	result, err := c.sendRequest("tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return "", fmt.Errorf("tools/call %s: %w", name, err)
	}

	var callResult toolsCallResult
	if err := json.Unmarshal(result, &callResult); err != nil {
		return "", fmt.Errorf("parse call result: %w", err)
	}

	if callResult.IsError {
		if len(callResult.Content) > 0 {
			return "", fmt.Errorf("%s", callResult.Content[0].Text)
		}
		return "", fmt.Errorf("tool returned error")
	}

	if len(callResult.Content) == 0 {
		return "", nil
	}
	return callResult.Content[0].Text, nil
}

// Close stops the server process.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stdin.Close()
	if c.cmd.Process != nil {
		c.cmd.Process.Kill()
	}
	c.cmd.Wait()
}
