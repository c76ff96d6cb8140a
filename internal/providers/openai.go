package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIModel implements CompletionModel against any OpenAI-compatible
// chat-completions endpoint (OpenAI itself, or a compatible gateway when
// baseURL is overridden).
type OpenAIModel struct {
	client      openai.Client
	model       string
	retryConfig RetryConfig
}

func NewOpenAIModel(apiKey, baseURL, model string) *OpenAIModel {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIModel{
		client:      openai.NewClient(opts...),
		model:       model,
		retryConfig: DefaultRetryConfig(),
	}
}

func (m *OpenAIModel) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model:       m.model,
		Temperature: openai.Float(req.Temperature),
		MaxTokens:   openai.Int(int64(req.MaxTokens)),
		Messages:    toOpenAIMessages(req.System, req.Messages),
	}
	if len(req.Tools) > 0 {
		params.Tools = toOpenAITools(req.Tools)
	}

	completion, err := RetryDo(ctx, m.retryConfig, func() (*openai.ChatCompletion, error) {
		return m.client.Chat.Completions.New(ctx, params)
	})
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices")
	}

	choice := completion.Choices[0]
	resp := &ChatResponse{
		Usage: Usage{
			InputTokens:       int(completion.Usage.PromptTokens),
			OutputTokens:      int(completion.Usage.CompletionTokens),
			TotalTokens:       int(completion.Usage.TotalTokens),
			CachedInputTokens: int(completion.Usage.PromptTokensDetails.CachedTokens),
		},
	}
	if choice.Message.Content != "" {
		resp.Parts = append(resp.Parts, Part{Kind: PartText, Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		resp.Parts = append(resp.Parts, Part{
			Kind: PartToolCall,
			ToolCall: ToolCall{
				ID:        tc.ID,
				CallID:    tc.ID,
				Name:      tc.Function.Name,
				Arguments: json.RawMessage(tc.Function.Arguments),
			},
		})
	}
	return resp, nil
}

func toOpenAIMessages(system string, msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs)+1)
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}
	for _, m := range msgs {
		switch m.Role {
		case RoleUser:
			if len(m.Images) == 0 {
				out = append(out, openai.UserMessage(m.Content))
				continue
			}
			parts := []openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(m.Content),
			}
			for _, img := range m.Images {
				url := "data:" + img.MimeType + ";base64," + img.Data
				parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}))
			}
			out = append(out, openai.UserMessage(parts))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		case RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		}
	}
	return out
}

func toOpenAITools(defs []ToolDefinition) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(defs))
	for _, d := range defs {
		out = append(out, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        d.Name,
			Description: openai.String(d.Description),
			Parameters:  d.Parameters,
		}))
	}
	return out
}
