package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicMaxTokens = 4096

// AnthropicBackend generates with Claude via the Messages API.
type AnthropicBackend struct {
	client anthropic.Client
	model  string
}

// NewAnthropic creates the Anthropic backend, or nil without an API key.
func NewAnthropic(apiKey, model string) Backend {
	return NewAnthropicWithBaseURL(apiKey, model, "")
}

// NewAnthropicWithBaseURL creates an Anthropic backend against a custom
// endpoint (proxies, tests).
func NewAnthropicWithBaseURL(apiKey, model, baseURL string) Backend {
	if strings.TrimSpace(apiKey) == "" {
		return nil
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicBackend{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

func (b *AnthropicBackend) Name() string {
	return "anthropic"
}

// Start opens a conversation with the system prompt and tool set fixed.
func (b *AnthropicBackend) Start(system string, tools []Tool) Conversation {
	return &anthropicConversation{
		backend: b,
		system:  system,
		tools:   toAnthropicTools(tools),
	}
}

type anthropicConversation struct {
	backend  *AnthropicBackend
	system   string
	tools    []anthropic.ToolUnionParam
	messages []anthropic.MessageParam
}

func (c *anthropicConversation) Send(ctx context.Context, text string) (*Turn, error) {
	c.messages = append(c.messages, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
	return c.generate(ctx)
}

func (c *anthropicConversation) SendToolResults(ctx context.Context, results []ToolResult) (*Turn, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, anthropic.NewToolResultBlock(r.ID, r.Content, r.IsError))
	}
	c.messages = append(c.messages, anthropic.NewUserMessage(blocks...))
	return c.generate(ctx)
}

func (c *anthropicConversation) generate(ctx context.Context) (*Turn, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.backend.model),
		Messages:  c.messages,
		MaxTokens: anthropicMaxTokens,
	}
	if c.system != "" {
		params.System = []anthropic.TextBlockParam{{Text: c.system}}
	}
	if len(c.tools) > 0 {
		params.Tools = c.tools
	}

	resp, err := c.backend.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic generation: %w", err)
	}

	// Echo the assistant message so tool results attach to it next round
	c.messages = append(c.messages, resp.ToParam())

	turn := &Turn{Backend: "anthropic"}
	var content strings.Builder
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			content.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			args := map[string]any{}
			if data, err := json.Marshal(b.Input); err == nil {
				json.Unmarshal(data, &args)
			}
			turn.ToolCalls = append(turn.ToolCalls, ToolCall{ID: b.ID, Name: b.Name, Arguments: args})
		}
	}
	turn.Text = content.String()
	return turn, nil
}

func toAnthropicTools(tools []Tool) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		toolParam := anthropic.ToolParam{
			Name:        tool.Name,
			Description: anthropic.String(tool.Description),
			InputSchema: toAnthropicSchema(tool.Schema),
		}
		result = append(result, anthropic.ToolUnionParam{OfTool: &toolParam})
	}
	return result
}

func toAnthropicSchema(params map[string]any) anthropic.ToolInputSchemaParam {
	// Type defaults to "object"
	schema := anthropic.ToolInputSchemaParam{}
	if params == nil {
		return schema
	}
	if props, ok := params["properties"].(map[string]any); ok {
		schema.Properties = props
	}
	if required, ok := params["required"].([]string); ok {
		schema.Required = required
	} else if required, ok := params["required"].([]any); ok {
		var reqStr []string
		for _, r := range required {
			if rs, ok := r.(string); ok {
				reqStr = append(reqStr, rs)
			}
		}
		schema.Required = reqStr
	}
	return schema
}
