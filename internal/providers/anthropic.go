package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicModel implements CompletionModel against the Anthropic Messages
// API via the official SDK.
type AnthropicModel struct {
	client      anthropic.Client
	model       string
	retryConfig RetryConfig
}

func NewAnthropicModel(apiKey, model string) *AnthropicModel {
	return &AnthropicModel{
		client:      anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:       model,
		retryConfig: DefaultRetryConfig(),
	}
}

func (m *AnthropicModel) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(m.model),
		MaxTokens:   int64(req.MaxTokens),
		Temperature: anthropic.Float(req.Temperature),
		Messages:    toAnthropicMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req.Tools)
	}

	msg, err := RetryDo(ctx, m.retryConfig, func() (*anthropic.Message, error) {
		return m.client.Messages.New(ctx, params)
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	resp := &ChatResponse{
		Usage: Usage{
			InputTokens:       int(msg.Usage.InputTokens),
			OutputTokens:      int(msg.Usage.OutputTokens),
			TotalTokens:       int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
			CachedInputTokens: int(msg.Usage.CacheReadInputTokens),
		},
	}
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Parts = append(resp.Parts, Part{Kind: PartText, Text: variant.Text})
		case anthropic.ThinkingBlock:
			resp.Parts = append(resp.Parts, Part{Kind: PartReasoning, Reasoning: variant.Thinking})
		case anthropic.ToolUseBlock:
			args, _ := variant.Input.MarshalJSON()
			resp.Parts = append(resp.Parts, Part{
				Kind: PartToolCall,
				ToolCall: ToolCall{
					ID:        variant.ID,
					CallID:    variant.ID,
					Name:      variant.Name,
					Arguments: args,
				},
			})
		}
	}
	return resp, nil
}

func toAnthropicMessages(msgs []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleUser:
			blocks := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(m.Content)}
			for _, img := range m.Images {
				blocks = append(blocks, anthropic.NewImageBlockBase64(img.MimeType, img.Data))
			}
			out = append(out, anthropic.NewUserMessage(blocks...))
		case RoleAssistant:
			blocks := []anthropic.ContentBlockParamUnion{}
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input interface{}
				_ = json.Unmarshal(tc.Arguments, &input)
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		case RoleTool:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false),
			))
		}
	}
	return out
}

func toAnthropicTools(defs []ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        d.Name,
				Description: anthropic.String(d.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: d.Parameters["properties"],
				},
			},
		})
	}
	return out
}
