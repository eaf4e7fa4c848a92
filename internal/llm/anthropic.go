package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
)

// AnthropicClient implements Client using the Anthropic Messages API.
type AnthropicClient struct {
	client anthropic.Client
}

// NewAnthropicClient creates a client. An empty apiKey falls back to
// ANTHROPIC_API_KEY from the environment.
func NewAnthropicClient(apiKey string, opts ...option.RequestOption) *AnthropicClient {
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &AnthropicClient{
		client: anthropic.NewClient(opts...),
	}
}

// Chat sends a non-streaming chat request.
func (c *AnthropicClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	msg, err := c.client.Messages.New(ctx, buildAnthropicParams(req))
	if err != nil {
		return nil, fmt.Errorf("anthropic chat: %w", err)
	}
	return parseAnthropicMessage(msg), nil
}

// buildAnthropicParams maps a ChatRequest onto the Messages API. System
// messages are lifted into the system prompt and consecutive tool results are
// folded into a single user turn, which is what the API requires.
func buildAnthropicParams(req ChatRequest) anthropic.MessageNewParams {
	var system []string
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	var pending []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(pending) > 0 {
			messages = append(messages, anthropic.NewUserMessage(pending...))
			pending = nil
		}
	}

	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleTool:
			if m.ToolResult != nil {
				pending = append(pending, anthropic.NewToolResultBlock(m.ToolResult.ToolUseID, m.ToolResult.Content, m.ToolResult.IsError))
			}
		case RoleUser:
			flush()
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case RoleAssistant:
			flush()
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.ToolCalls)+1)
			if m.Content != "" || len(m.ToolCalls) == 0 {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Input, tc.Name))
			}
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		}
	}
	flush()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(req.MaxTokens),
	}

	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{
			{Text: strings.Join(system, "\n\n")},
		}
	}

	if req.Temperature != nil {
		// The Messages API caps temperature at 1.0.
		params.Temperature = param.NewOpt(min(*req.Temperature, 1.0))
	}

	for _, t := range req.Tools {
		schemaBytes, err := json.Marshal(t.InputSchema["properties"])
		if err != nil {
			slog.Warn("anthropic: failed to marshal tool input schema", "tool", t.Name, "error", err)
			continue
		}
		tool := &anthropic.ToolParam{
			Name:        t.Name,
			Description: param.NewOpt(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: json.RawMessage(schemaBytes),
			},
		}
		if required, ok := t.InputSchema["required"].([]string); ok {
			tool.InputSchema.Required = required
		}
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: tool})
	}

	return params
}

func parseAnthropicMessage(msg *anthropic.Message) *ChatResponse {
	resp := &ChatResponse{
		StopReason: mapStopReason(msg.StopReason),
		Usage: TokenUsage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}

	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Content += block.Text
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: decodeToolInput(block.Name, block.Input),
			})
		}
	}

	return resp
}

// decodeToolInput parses tool arguments. Malformed input is surfaced to the
// tool as an "_error" key rather than dropping the call.
func decodeToolInput(name string, raw []byte) map[string]interface{} {
	input := make(map[string]interface{})
	if len(raw) == 0 {
		return input
	}
	if err := json.Unmarshal(raw, &input); err != nil {
		slog.Warn("llm: failed to unmarshal tool input", "tool", name, "error", err)
		return map[string]interface{}{"_error": fmt.Sprintf("failed to parse tool input: %v", err)}
	}
	return input
}

func mapStopReason(reason anthropic.StopReason) StopReason {
	switch reason {
	case anthropic.StopReasonEndTurn:
		return StopEndTurn
	case anthropic.StopReasonMaxTokens:
		return StopMaxTokens
	case anthropic.StopReasonToolUse:
		return StopToolUse
	case anthropic.StopReasonStopSequence:
		return StopStopSequence
	default:
		return StopReason(string(reason))
	}
}
