package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared/constant"
)

// OpenAIBackend generates with the Chat Completions API.
type OpenAIBackend struct {
	client openai.Client
	model  string
}

// NewOpenAI creates the OpenAI backend, or nil without an API key.
func NewOpenAI(apiKey, model string) Backend {
	return NewOpenAIWithBaseURL(apiKey, model, "")
}

// NewOpenAIWithBaseURL creates an OpenAI backend against a custom
// endpoint (proxies, tests).
func NewOpenAIWithBaseURL(apiKey, model, baseURL string) Backend {
	if strings.TrimSpace(apiKey) == "" {
		return nil
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIBackend{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (b *OpenAIBackend) Name() string {
	return "openai"
}

// Start opens a conversation with the system prompt and tool set fixed.
func (b *OpenAIBackend) Start(system string, tools []Tool) Conversation {
	conv := &openaiConversation{
		backend: b,
		tools:   toOpenAITools(tools),
	}
	if system != "" {
		conv.messages = append(conv.messages, openai.SystemMessage(system))
	}
	return conv
}

type openaiConversation struct {
	backend  *OpenAIBackend
	tools    []openai.ChatCompletionToolUnionParam
	messages []openai.ChatCompletionMessageParamUnion
}

func (c *openaiConversation) Send(ctx context.Context, text string) (*Turn, error) {
	c.messages = append(c.messages, openai.UserMessage(text))
	return c.generate(ctx)
}

func (c *openaiConversation) SendToolResults(ctx context.Context, results []ToolResult) (*Turn, error) {
	for _, r := range results {
		content := r.Content
		if r.IsError {
			content = "error: " + content
		}
		c.messages = append(c.messages, openai.ToolMessage(content, r.ID))
	}
	return c.generate(ctx)
}

func (c *openaiConversation) generate(ctx context.Context) (*Turn, error) {
	req := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.backend.model),
		Messages: c.messages,
	}
	if len(c.tools) > 0 {
		req.Tools = c.tools
	}

	resp, err := c.backend.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai chat completion: no choices returned")
	}

	choice := resp.Choices[0]
	// Echo the assistant message so tool results attach to it next round
	c.messages = append(c.messages, choice.Message.ToParam())

	turn := &Turn{Backend: "openai", Text: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			json.Unmarshal([]byte(tc.Function.Arguments), &args)
		}
		turn.ToolCalls = append(turn.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return turn, nil
}

func toOpenAITools(tools []Tool) []openai.ChatCompletionToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	result := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		function := openai.FunctionDefinitionParam{
			Name:       tool.Name,
			Parameters: openai.FunctionParameters(tool.Schema),
		}
		if tool.Description != "" {
			function.Description = openai.String(tool.Description)
		}
		result = append(result, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{
				Function: function,
				Type:     constant.ValueOf[constant.Function](),
			},
		})
	}
	return result
}
