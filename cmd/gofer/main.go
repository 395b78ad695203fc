// gofer is the operator console. It starts the tool servers listed in
// the manifest, discovers their tools over MCP stdio, and runs a REPL
// where the operator can invoke tools directly or ask an LLM that calls
// them on their behalf.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vthunder/gofer/internal/config"
	"github.com/vthunder/gofer/internal/googleauth"
	"github.com/vthunder/gofer/internal/journal"
	"github.com/vthunder/gofer/internal/llm"
	"github.com/vthunder/gofer/internal/mcp"
	"github.com/vthunder/gofer/internal/repl"
)

const version = "0.1.0"

func main() {
	log.SetPrefix("[gofer] ")

	// Load .env file if present (don't error if missing)
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded .env file")
	}

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "auth":
			if err := runAuth(cfg); err != nil {
				log.Fatalf("Authorization failed: %v", err)
			}
			return
		case "version":
			fmt.Println("gofer " + version)
			return
		case "help", "-h", "--help":
			usage()
			return
		default:
			fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
			usage()
			os.Exit(2)
		}
	}

	runConsole(cfg)
}

func usage() {
	fmt.Fprint(os.Stderr, `gofer brokers a console session across MCP tool servers.

Usage:

  gofer            start the interactive console
  gofer auth       authorize Google Calendar and Gmail access
  gofer version    print the version

Configuration is read from gofer.yaml ($GOFER_CONFIG overrides the
path); a missing file starts the standard servers from PATH.
`)
}

func runConsole(cfg *config.Config) {
	log.Printf("Starting gofer %s", version)

	if err := os.MkdirAll(cfg.StatePath, 0755); err != nil {
		log.Fatalf("Failed to create state directory: %v", err)
	}

	jrnl := journal.New(cfg.StatePath)

	broker := mcp.NewBroker()
	broker.StartAll(serverConfigs(cfg))
	defer broker.CloseAll()

	if broker.ServerCount() == 0 {
		log.Fatalf("No tool servers running; check the manifest and server binaries")
	}

	asker := buildAsker(cfg, broker, jrnl)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() {
		done <- repl.New(broker, asker, jrnl).Run(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Fatalf("Console error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("Received %v, shutting down", sig)
		cancel()
	}
}

// serverConfigs expands the manifest into subprocess configs. Shared
// settings (state path, calendar, search order) are passed through the
// environment; per-server env in the manifest wins on conflict.
func serverConfigs(cfg *config.Config) []mcp.ServerConfig {
	shared := map[string]string{
		"STATE_PATH":         cfg.StatePath,
		"GOOGLE_CALENDAR_ID": cfg.Google.CalendarID,
		"SEARCH_PROVIDERS":   strings.Join(cfg.Search.Providers, ","),
	}

	out := make([]mcp.ServerConfig, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		env := make(map[string]string, len(shared)+len(s.Env))
		for k, v := range shared {
			env[k] = v
		}
		for k, v := range s.Env {
			env[k] = v
		}
		out = append(out, mcp.ServerConfig{
			Name:    s.Name,
			Command: s.Command,
			Args:    s.Args,
			Env:     env,
		})
	}
	return out
}

// buildAsker assembles the LLM agent over the discovered tools, or
// returns nil when no API key is set so the REPL reports ask as
// unavailable instead of failing per question.
func buildAsker(cfg *config.Config, broker *mcp.Broker, jrnl *journal.Journal) repl.Asker {
	primary := llm.NewAnthropic(os.Getenv("ANTHROPIC_API_KEY"), cfg.LLM.AnthropicModel)
	fallback := llm.NewOpenAI(os.Getenv("OPENAI_API_KEY"), cfg.LLM.OpenAIModel)
	if cfg.LLM.Primary == "openai" {
		primary, fallback = fallback, primary
	}
	if primary == nil && fallback == nil {
		log.Println("No LLM API keys set; 'ask' is disabled")
		return nil
	}

	dispatch := &repl.Dispatcher{Broker: broker, Journal: jrnl}
	return llm.NewAgent(systemPrompt(), llmTools(broker.Tools()), dispatch,
		cfg.LLM.MaxToolRounds, primary, fallback)
}

func systemPrompt() string {
	return fmt.Sprintf("You are gofer, a terminal assistant with tools for the operator's calendar, "+
		"email, web search, and documents. Use tools when they help answer the question, "+
		"and keep answers short. Today is %s.",
		time.Now().Format("Monday, January 2, 2006"))
}

// llmTools converts the broker's discovered tools into the JSON-schema
// form the chat backends expect.
func llmTools(routed []mcp.RoutedTool) []llm.Tool {
	out := make([]llm.Tool, 0, len(routed))
	for _, rt := range routed {
		props := make(map[string]any, len(rt.Tool.Properties))
		for name, p := range rt.Tool.Properties {
			prop := map[string]any{"type": p.Type}
			if p.Description != "" {
				prop["description"] = p.Description
			}
			props[name] = prop
		}
		schema := map[string]any{
			"type":       "object",
			"properties": props,
		}
		if len(rt.Tool.Required) > 0 {
			schema["required"] = rt.Tool.Required
		}
		out = append(out, llm.Tool{
			Name:        rt.Tool.Name,
			Description: rt.Tool.Description,
			Schema:      schema,
		})
	}
	return out
}

// runAuth walks the OAuth consent flow in the terminal and stores the
// resulting token where the calendar and mail servers read it.
func runAuth(cfg *config.Config) error {
	clientID := os.Getenv("GOOGLE_CLIENT_ID")
	clientSecret := os.Getenv("GOOGLE_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		return errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set")
	}

	authCfg := googleauth.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectPort: cfg.Google.RedirectPort,
		Scopes:       googleauth.DefaultScopes,
	}

	state, err := googleauth.GenerateState()
	if err != nil {
		return fmt.Errorf("generate state: %w", err)
	}

	listener, err := googleauth.NewCallbackListener(cfg.Google.RedirectPort)
	if err != nil {
		return err
	}

	fmt.Println("Open this URL in your browser to authorize gofer:")
	fmt.Println()
	fmt.Println("  " + authCfg.AuthURL(state))
	fmt.Println()
	fmt.Println("Waiting for authorization...")

	ctx, cancel := context.WithTimeout(context.Background(), googleauth.WaitTimeout)
	defer cancel()

	result, err := listener.Wait(ctx)
	if err != nil {
		return err
	}
	if result.State != state {
		return errors.New("authorization callback state mismatch")
	}

	tok, err := authCfg.Exchange(ctx, result.Code)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}

	store, err := googleauth.OpenStore(cfg.TokenDBPath(), os.Getenv("TOKEN_ENCRYPTION_KEY"))
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Save("google", tok); err != nil {
		return fmt.Errorf("save token: %w", err)
	}

	if err := journal.New(cfg.StatePath).LogAuth("google", "token stored"); err != nil {
		log.Printf("journal write failed: %v", err)
	}

	fmt.Println("Authorization complete. Token stored in " + cfg.TokenDBPath())
	return nil
}
