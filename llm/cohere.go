// Cohere adapter implementation over the Cohere v1 chat HTTP API.
//
// Information Hiding:
// - Endpoint, bearer authentication and JSON body
// - Splitting history into chat_history + message
// - Role renaming (assistant → CHATBOT)

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

const cohereBaseURL = "https://api.cohere.com"

// Cohere history roles.
const (
	CohereRoleUser    = "USER"
	CohereRoleChatbot = "CHATBOT"
)

// CohereMessage is one prior turn in a Cohere chat request.
type CohereMessage struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// CohereRequest is the body of POST /v1/chat.
type CohereRequest struct {
	Message     string          `json:"message"`
	ChatHistory []CohereMessage `json:"chat_history"`
	Model       string          `json:"model,omitempty"`
	MaxTokens   int64           `json:"max_tokens,omitempty"`
}

// CohereChatter is the vendor transport for Cohere. It returns the raw
// response body so decoding stays in the adapter.
type CohereChatter interface {
	Chat(ctx context.Context, req CohereRequest) ([]byte, error)
}

// CohereClient is a minimal HTTP client for the Cohere chat endpoint.
type CohereClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// CohereOption configures a CohereClient.
type CohereOption func(*CohereClient)

// WithCohereBaseURL overrides the default API base URL.
func WithCohereBaseURL(url string) CohereOption {
	return func(c *CohereClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithCohereHTTPClient overrides the default HTTP client.
func WithCohereHTTPClient(hc *http.Client) CohereOption {
	return func(c *CohereClient) {
		c.httpClient = hc
	}
}

// NewCohereClient creates a Cohere HTTP client.
func NewCohereClient(apiKey string, opts ...CohereOption) *CohereClient {
	c := &CohereClient{
		apiKey:     apiKey,
		baseURL:    cohereBaseURL,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chat posts the request and returns the response body on HTTP 200.
func (c *CohereClient) Chat(ctx context.Context, req CohereRequest) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("cohere: failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("cohere: failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("cohere: HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cohere: failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		message := gjson.GetBytes(body, "message").String()
		if message == "" {
			message = strings.TrimSpace(string(body))
		}
		return nil, fmt.Errorf("cohere: status %d: %s", resp.StatusCode, message)
	}

	return body, nil
}

// CohereAdapter implements Adapter for Cohere.
type CohereAdapter struct {
	transport CohereChatter
	model     string
	maxTokens int64
}

// NewCohereAdapter creates a Cohere adapter over the given transport.
func NewCohereAdapter(transport CohereChatter, model string) *CohereAdapter {
	return &CohereAdapter{transport: transport, model: model}
}

// newCohere is the registry factory for Cohere.
func newCohere(credential string, opts Options) (Adapter, error) {
	if credential == "" {
		return nil, ErrMissingCredential
	}

	var clientOpts []CohereOption
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, WithCohereBaseURL(opts.BaseURL))
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, WithCohereHTTPClient(opts.HTTPClient))
	}

	adapter := NewCohereAdapter(NewCohereClient(credential, clientOpts...), opts.Model)
	adapter.maxTokens = opts.MaxTokens
	return adapter, nil
}

// Provider returns the provider id.
func (a *CohereAdapter) Provider() ProviderID {
	return Cohere
}

// Model returns the current model.
func (a *CohereAdapter) Model() string {
	return a.model
}

// Reply encodes history and returns the reply text.
func (a *CohereAdapter) Reply(ctx context.Context, history []Turn) (string, error) {
	return exchange[CohereRequest, []byte](ctx, Cohere, a, history)
}

// Encode sends every turn except the last as chat_history and the last
// turn's text as message.
func (a *CohereAdapter) Encode(history []Turn) (CohereRequest, error) {
	if len(history) == 0 {
		return CohereRequest{}, fmt.Errorf("cohere: %w", ErrEmptyConversation)
	}

	last := len(history) - 1
	chatHistory := make([]CohereMessage, 0, last)
	for _, turn := range history[:last] {
		role := CohereRoleUser
		if turn.Speaker == SpeakerAssistant {
			role = CohereRoleChatbot
		}
		chatHistory = append(chatHistory, CohereMessage{Role: role, Message: turn.Text})
	}

	return CohereRequest{
		Message:     history[last].Text,
		ChatHistory: chatHistory,
		Model:       a.model,
		MaxTokens:   a.maxTokens,
	}, nil
}

// Invoke posts the chat request.
func (a *CohereAdapter) Invoke(ctx context.Context, req CohereRequest) ([]byte, error) {
	return a.transport.Chat(ctx, req)
}

// Decode extracts the top-level text field.
func (a *CohereAdapter) Decode(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", &DecodeError{Provider: Cohere, Reason: "response is not valid JSON"}
	}
	text := gjson.GetBytes(body, "text")
	if !text.Exists() || text.Type != gjson.String {
		return "", &DecodeError{Provider: Cohere, Reason: "response has no text field"}
	}
	return text.String(), nil
}

func (a *CohereAdapter) sealed() {}

// Verify CohereAdapter implements Adapter
var _ Adapter = (*CohereAdapter)(nil)
