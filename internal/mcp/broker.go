package mcp

import (
	"fmt"
	"sync"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/vthunder/gofer/internal/logging"
)

// Broker owns the tool-server subprocesses and the tool routing table.
// Servers are kept in manifest order; when two servers advertise the same
// tool name, the first one registered keeps the route.
type Broker struct {
	mu      sync.RWMutex
	servers []*serverEntry
	routes  map[string]*serverEntry
}

type serverEntry struct {
	name   string
	client *Client
	tools  []ToolDef
}

// RoutedTool pairs a discovered tool with the server that owns its route.
type RoutedTool struct {
	Tool   ToolDef
	Server string
}

// ServerStatus is one row of the status report for a running server.
type ServerStatus struct {
	Name       string
	PID        int32
	ToolCount  int
	Running    bool
	CPUPercent float64
	RSSBytes   uint64
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		routes: make(map[string]*serverEntry),
	}
}

// StartServer spawns one tool server, discovers its tools, and merges them
// into the routing table.
func (b *Broker) StartServer(cfg ServerConfig) error {
	client, err := Start(cfg)
	if err != nil {
		return fmt.Errorf("start server %s: %w", cfg.Name, err)
	}

	tools, err := client.DiscoverTools()
	if err != nil {
		client.Close()
		return fmt.Errorf("discover tools on %s: %w", cfg.Name, err)
	}
	logging.Info("broker", "%s: discovered %d tools", cfg.Name, len(tools))

	b.mu.Lock()
	defer b.mu.Unlock()

	entry := &serverEntry{name: cfg.Name, client: client, tools: tools}
	b.servers = append(b.servers, entry)
	for _, t := range tools {
		if owner, taken := b.routes[t.Name]; taken {
			logging.Info("broker", "tool %s already provided by %s, ignoring duplicate from %s",
				t.Name, owner.name, cfg.Name)
			continue
		}
		b.routes[t.Name] = entry
	}
	return nil
}

// StartAll starts every server in the manifest. A server that fails to
// start is logged and skipped so the rest keep working.
func (b *Broker) StartAll(cfgs []ServerConfig) {
	for _, cfg := range cfgs {
		if err := b.StartServer(cfg); err != nil {
			logging.Error("broker", "%v", err)
		}
	}
}

// ServerCount returns the number of running servers.
func (b *Broker) ServerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.servers)
}

// ServerNames returns the running server names in manifest order.
func (b *Broker) ServerNames() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.servers))
	for _, e := range b.servers {
		names = append(names, e.name)
	}
	return names
}

// Tools returns every routed tool in manifest order, duplicates already
// resolved to their owning server.
func (b *Broker) Tools() []RoutedTool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []RoutedTool
	for _, e := range b.servers {
		for _, t := range e.tools {
			if b.routes[t.Name] != e {
				continue
			}
			out = append(out, RoutedTool{Tool: t, Server: e.name})
		}
	}
	return out
}

// Describe looks up a tool by name and reports which server owns it.
func (b *Broker) Describe(name string) (ToolDef, string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.routes[name]
	if !ok {
		return ToolDef{}, "", false
	}
	for _, t := range entry.tools {
		if t.Name == name {
			return t, entry.name, true
		}
	}
	return ToolDef{}, "", false
}

// Call routes a tool call to the server that advertises it.
func (b *Broker) Call(name string, args map[string]any) (string, error) {
	b.mu.RLock()
	entry, ok := b.routes[name]
	b.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}
	return entry.client.CallTool(name, args)
}

// Status reports PID, CPU, and memory for each server subprocess. A server
// whose process can no longer be found is reported as not running.
func (b *Broker) Status() []ServerStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]ServerStatus, 0, len(b.servers))
	for _, e := range b.servers {
		st := ServerStatus{
			Name:      e.name,
			PID:       e.client.Pid(),
			ToolCount: len(e.tools),
		}

		proc, err := process.NewProcess(st.PID)
		if err == nil {
			st.Running = true
			if cpu, err := proc.CPUPercent(); err == nil {
				st.CPUPercent = cpu
			}
			if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
				st.RSSBytes = mem.RSS
			}
		}
		out = append(out, st)
	}
	return out
}

// CloseAll stops every server subprocess.
func (b *Broker) CloseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, e := range b.servers {
		e.client.Close()
	}
	b.servers = nil
	b.routes = make(map[string]*serverEntry)
}
