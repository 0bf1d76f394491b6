// OpenAI-compatible chat completions adapter using go-openai library.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for the Chat Completions API
// - Groq reuses the same wire format with a different base URL

package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// ChatCompleter is the vendor transport for OpenAI-compatible providers.
// *openai.Client satisfies it.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ChatCompletionsAdapter implements Adapter for OpenAI and Groq.
// Both send the full history as role/content pairs every turn.
type ChatCompletionsAdapter struct {
	provider  ProviderID
	transport ChatCompleter
	model     string
	maxTokens int
}

// NewOpenAIAdapter creates an OpenAI adapter over the given transport.
func NewOpenAIAdapter(transport ChatCompleter, model string) *ChatCompletionsAdapter {
	return &ChatCompletionsAdapter{provider: OpenAI, transport: transport, model: model}
}

// NewGroqAdapter creates a Groq adapter over the given transport.
func NewGroqAdapter(transport ChatCompleter, model string) *ChatCompletionsAdapter {
	return &ChatCompletionsAdapter{provider: Groq, transport: transport, model: model}
}

// newOpenAIFactory returns the registry factory for an OpenAI-compatible provider.
func newOpenAIFactory(provider ProviderID, defaultBaseURL string) Factory {
	return func(credential string, opts Options) (Adapter, error) {
		if credential == "" {
			return nil, ErrMissingCredential
		}

		config := openai.DefaultConfig(credential)
		if defaultBaseURL != "" {
			config.BaseURL = defaultBaseURL
		}
		if opts.BaseURL != "" {
			config.BaseURL = opts.BaseURL
		}
		if opts.HTTPClient != nil {
			config.HTTPClient = opts.HTTPClient
		}

		return &ChatCompletionsAdapter{
			provider:  provider,
			transport: openai.NewClientWithConfig(config),
			model:     opts.Model,
			maxTokens: int(opts.MaxTokens),
		}, nil
	}
}

// Provider returns the provider id.
func (a *ChatCompletionsAdapter) Provider() ProviderID {
	return a.provider
}

// Model returns the current model.
func (a *ChatCompletionsAdapter) Model() string {
	return a.model
}

// Reply sends the full history and returns the first choice's content.
func (a *ChatCompletionsAdapter) Reply(ctx context.Context, history []Turn) (string, error) {
	return exchange[openai.ChatCompletionRequest, openai.ChatCompletionResponse](ctx, a.provider, a, history)
}

// Encode maps every turn to a role/content pair, preserving order.
func (a *ChatCompletionsAdapter) Encode(history []Turn) (openai.ChatCompletionRequest, error) {
	return openai.ChatCompletionRequest{
		Model:     a.model,
		Messages:  convertToOpenAIMessages(history),
		MaxTokens: a.maxTokens,
	}, nil
}

// Invoke calls the chat completions endpoint.
func (a *ChatCompletionsAdapter) Invoke(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return a.transport.CreateChatCompletion(ctx, req)
}

// Decode extracts choices[0].message.content.
func (a *ChatCompletionsAdapter) Decode(resp openai.ChatCompletionResponse) (string, error) {
	if len(resp.Choices) == 0 {
		return "", &DecodeError{Provider: a.provider, Reason: "response contained no choices"}
	}
	content := resp.Choices[0].Message.Content
	if content == "" && resp.Choices[0].FinishReason == openai.FinishReasonContentFilter {
		return "", &DecodeError{
			Provider: a.provider,
			Reason:   fmt.Sprintf("choice finished with %q", resp.Choices[0].FinishReason),
		}
	}
	return content, nil
}

func (a *ChatCompletionsAdapter) sealed() {}

// convertToOpenAIMessages converts canonical turns to openai.ChatCompletionMessage.
func convertToOpenAIMessages(history []Turn) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, len(history))
	for i, turn := range history {
		role := openai.ChatMessageRoleUser
		if turn.Speaker == SpeakerAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		result[i] = openai.ChatCompletionMessage{
			Role:    role,
			Content: turn.Text,
		}
	}
	return result
}

// Verify ChatCompletionsAdapter implements Adapter
var _ Adapter = (*ChatCompletionsAdapter)(nil)
