// Anthropic adapter implementation using official anthropic-sdk-go.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for Anthropic Messages API
// - Fixed reply token budget

package llm

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicMaxTokens is the reply budget used when Options.MaxTokens is unset.
const anthropicMaxTokens = 1024

// MessageCreator is the vendor transport for Anthropic.
// *anthropic.MessageService satisfies it.
type MessageCreator interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicAdapter implements Adapter for Anthropic Claude.
type AnthropicAdapter struct {
	transport MessageCreator
	model     string
	maxTokens int64
}

// NewAnthropicAdapter creates an Anthropic adapter over the given transport.
// A non-positive maxTokens falls back to 1024.
func NewAnthropicAdapter(transport MessageCreator, model string, maxTokens int64) *AnthropicAdapter {
	if maxTokens <= 0 {
		maxTokens = anthropicMaxTokens
	}
	return &AnthropicAdapter{
		transport: transport,
		model:     model,
		maxTokens: maxTokens,
	}
}

// newAnthropic is the registry factory for Anthropic.
func newAnthropic(credential string, opts Options) (Adapter, error) {
	if credential == "" {
		return nil, ErrMissingCredential
	}

	requestOpts := []option.RequestOption{option.WithAPIKey(credential)}
	if opts.BaseURL != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.HTTPClient != nil {
		requestOpts = append(requestOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	client := anthropic.NewClient(requestOpts...)
	return NewAnthropicAdapter(&client.Messages, opts.Model, opts.MaxTokens), nil
}

// Provider returns the provider id.
func (a *AnthropicAdapter) Provider() ProviderID {
	return Anthropic
}

// Model returns the current model.
func (a *AnthropicAdapter) Model() string {
	return a.model
}

// Reply sends the full history and returns the first text block.
func (a *AnthropicAdapter) Reply(ctx context.Context, history []Turn) (string, error) {
	return exchange[anthropic.MessageNewParams, *anthropic.Message](ctx, Anthropic, a, history)
}

// Encode maps every turn to a user/assistant message with a single text block.
func (a *AnthropicAdapter) Encode(history []Turn) (anthropic.MessageNewParams, error) {
	return anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages:  convertToAnthropicMessages(history),
	}, nil
}

// Invoke calls the Messages API.
func (a *AnthropicAdapter) Invoke(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	return a.transport.New(ctx, params)
}

// Decode extracts the first text content block.
func (a *AnthropicAdapter) Decode(message *anthropic.Message) (string, error) {
	if message == nil {
		return "", &DecodeError{Provider: Anthropic, Reason: "empty response"}
	}
	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", &DecodeError{Provider: Anthropic, Reason: "response contained no text block"}
}

func (a *AnthropicAdapter) sealed() {}

// convertToAnthropicMessages converts canonical turns to Anthropic format.
func convertToAnthropicMessages(history []Turn) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(history))
	for _, turn := range history {
		switch turn.Speaker {
		case SpeakerAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(
				anthropic.NewTextBlock(turn.Text),
			))
		default:
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(turn.Text),
			))
		}
	}
	return messages
}

// Verify AnthropicAdapter implements Adapter
var _ Adapter = (*AnthropicAdapter)(nil)
