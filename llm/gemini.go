// Google Gemini adapter implementation using official google.golang.org/genai SDK.
//
// Information Hiding:
// - API authentication and client creation
// - Request/response format for Gemini API
// - Single-turn versus full-history encoding

package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// ContentGenerator is the vendor transport for Gemini.
// *genai.Models satisfies it.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiRequest is the encoded Gemini call.
type GeminiRequest struct {
	Contents []*genai.Content
	Config   *genai.GenerateContentConfig
}

// GeminiAdapter implements Adapter for Google Gemini.
//
// By default only the latest user turn is sent and earlier turns are
// ignored. FullHistory sends every turn.
type GeminiAdapter struct {
	transport   ContentGenerator
	model       string
	maxTokens   int32
	fullHistory bool
}

// NewGeminiAdapter creates a Gemini adapter over the given transport.
func NewGeminiAdapter(transport ContentGenerator, model string, fullHistory bool) *GeminiAdapter {
	return &GeminiAdapter{
		transport:   transport,
		model:       model,
		fullHistory: fullHistory,
	}
}

// newGemini is the registry factory for Gemini.
// Client construction errors are returned immediately so the selection is rejected.
func newGemini(credential string, opts Options) (Adapter, error) {
	if credential == "" {
		return nil, ErrMissingCredential
	}

	config := &genai.ClientConfig{
		APIKey:     credential,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		config.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	client, err := genai.NewClient(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}

	adapter := NewGeminiAdapter(client.Models, opts.Model, opts.FullHistory)
	adapter.maxTokens = int32(opts.MaxTokens)
	return adapter, nil
}

// Provider returns the provider id.
func (a *GeminiAdapter) Provider() ProviderID {
	return Gemini
}

// Model returns the current model.
func (a *GeminiAdapter) Model() string {
	return a.model
}

// Reply encodes history and returns the first candidate's text.
func (a *GeminiAdapter) Reply(ctx context.Context, history []Turn) (string, error) {
	return exchange[GeminiRequest, *genai.GenerateContentResponse](ctx, Gemini, a, history)
}

// Encode builds the Gemini contents. Single-turn mode sends only the text of
// the latest user turn.
func (a *GeminiAdapter) Encode(history []Turn) (GeminiRequest, error) {
	var req GeminiRequest
	if a.maxTokens > 0 {
		req.Config = &genai.GenerateContentConfig{MaxOutputTokens: a.maxTokens}
	}

	if !a.fullHistory {
		text, err := LastUserText(history)
		if err != nil {
			return GeminiRequest{}, fmt.Errorf("gemini: %w", err)
		}
		req.Contents = []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
		return req, nil
	}

	if len(history) == 0 {
		return GeminiRequest{}, fmt.Errorf("gemini: %w", ErrEmptyConversation)
	}
	req.Contents = convertToGeminiContents(history)
	return req, nil
}

// Invoke calls GenerateContent.
func (a *GeminiAdapter) Invoke(ctx context.Context, req GeminiRequest) (*genai.GenerateContentResponse, error) {
	return a.transport.GenerateContent(ctx, a.model, req.Contents, req.Config)
}

// Decode extracts the text of the first candidate.
func (a *GeminiAdapter) Decode(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", &DecodeError{Provider: Gemini, Reason: "response contained no candidates"}
	}

	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return "", &DecodeError{Provider: Gemini, Reason: "first candidate has no content"}
	}

	text := ""
	for _, part := range candidate.Content.Parts {
		if part != nil {
			text += part.Text
		}
	}
	if text == "" {
		return "", &DecodeError{Provider: Gemini, Reason: "first candidate has no text"}
	}
	return text, nil
}

func (a *GeminiAdapter) sealed() {}

// convertToGeminiContents converts canonical turns to Gemini contents.
func convertToGeminiContents(history []Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		if turn.Speaker == SpeakerAssistant {
			contents = append(contents, genai.NewContentFromText(turn.Text, genai.RoleModel))
		} else {
			contents = append(contents, genai.NewContentFromText(turn.Text, genai.RoleUser))
		}
	}
	return contents
}

// Verify GeminiAdapter implements Adapter
var _ Adapter = (*GeminiAdapter)(nil)
