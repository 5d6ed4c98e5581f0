// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package genai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIBackend implements Backend against the OpenAI chat completions
// API, using JSON-schema response enforcement for structured requests.
type OpenAIBackend struct {
	client openai.Client
	model  string
}

// NewOpenAIBackend builds a backend for the given key and model. A
// missing key is a configuration error and fails fast, before any
// pipeline run is created.
func NewOpenAIBackend(apiKey, model string) (*OpenAIBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("generation API key not configured")
	}
	if model == "" {
		model = string(openai.ChatModelGPT4oMini)
	}
	return &OpenAIBackend{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

// Complete issues one chat completion and returns the raw response text.
func (b *OpenAIBackend) Complete(ctx context.Context, req Request) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Messages: messages,
		Model:    openai.ChatModel(b.model),
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	if req.Schema != nil {
		name := req.SchemaName
		if name == "" {
			name = "structured_response"
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   name,
					Schema: req.Schema,
					Strict: openai.Bool(true),
				},
			},
		}
	}

	completion, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("generation API: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("generation API returned no choices")
	}

	text := completion.Choices[0].Message.Content
	if text == "" {
		return "", fmt.Errorf("generation API returned empty content (finish reason %s)", completion.Choices[0].FinishReason)
	}
	return text, nil
}
