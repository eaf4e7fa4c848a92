package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIClient implements Client using the OpenAI chat completions API.
// Works with OpenAI, Ollama, vLLM, LiteLLM and any compatible endpoint.
type OpenAIClient struct {
	client openai.Client
}

// NewOpenAIClient creates a client for the OpenAI API. An empty baseURL uses
// the SDK default; an empty apiKey falls back to OPENAI_API_KEY.
func NewOpenAIClient(baseURL, apiKey string, opts ...option.RequestOption) *OpenAIClient {
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &OpenAIClient{client: openai.NewClient(opts...)}
}

// NewOllamaClient creates a client for a local Ollama instance.
func NewOllamaClient(host string, opts ...option.RequestOption) *OpenAIClient {
	if host == "" {
		host = "http://localhost:11434"
	}
	return NewOpenAIClient(strings.TrimRight(host, "/")+"/v1", "ollama", opts...)
}

// Chat sends a non-streaming chat completion request.
func (c *OpenAIClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	completion, err := c.client.Chat.Completions.New(ctx, buildOpenAIParams(req))
	if err != nil {
		return nil, fmt.Errorf("openai chat: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openai chat: response has no choices")
	}

	choice := completion.Choices[0]
	resp := &ChatResponse{
		Content:    choice.Message.Content,
		StopReason: mapOpenAIFinishReason(choice.FinishReason),
		Usage: TokenUsage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: decodeToolInput(tc.Function.Name, []byte(tc.Function.Arguments)),
		})
	}
	return resp, nil
}

func buildOpenAIParams(req ChatRequest) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model: req.Model,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case RoleUser:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		case RoleTool:
			if m.ToolResult != nil {
				params.Messages = append(params.Messages, openai.ToolMessage(m.ToolResult.Content, m.ToolResult.ToolUseID))
			}
		case RoleAssistant:
			msg := openai.AssistantMessage(m.Content)
			for _, tc := range m.ToolCalls {
				args, err := json.Marshal(tc.Input)
				if err != nil {
					args = []byte("{}")
				}
				msg.OfAssistant.ToolCalls = append(msg.OfAssistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: string(args),
						},
					},
				})
			}
			params.Messages = append(params.Messages, msg)
		}
	}

	for _, t := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        t.Name,
					Description: openai.String(t.Description),
					Parameters:  openai.FunctionParameters(t.InputSchema),
				},
			},
		})
	}

	return params
}

func mapOpenAIFinishReason(reason string) StopReason {
	switch reason {
	case "stop":
		return StopEndTurn
	case "length":
		return StopMaxTokens
	case "tool_calls", "function_call":
		return StopToolUse
	default:
		return StopReason(reason)
	}
}
