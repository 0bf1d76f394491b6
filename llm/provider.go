// Package llm provides LLM provider abstractions.
//
// Adapter interface - the translation unit between the canonical transcript
// and one vendor. Each adapter hides:
// - API client initialization and authentication
// - Request encoding from the canonical []Turn
// - Reply extraction from the vendor response
// - Classification of failures into TransportError / DecodeError

package llm

import (
	"context"
)

// Adapter turns a canonical conversation into one vendor call and back.
// The set of adapters is closed: new providers are added as new variants
// in this package and registered in the Registry.
type Adapter interface {
	// Provider returns the provider id this adapter is bound to.
	Provider() ProviderID

	// Model returns the model identifier sent to the vendor.
	Model() string

	// Reply encodes history, calls the vendor and decodes the reply text.
	// Failures are *TransportError or *DecodeError; encoding failures wrap
	// ErrEmptyConversation.
	Reply(ctx context.Context, history []Turn) (string, error)

	sealed()
}

// codec is the capability set every variant implements with its own
// vendor request and response types.
type codec[Req, Resp any] interface {
	Encode(history []Turn) (Req, error)
	Invoke(ctx context.Context, req Req) (Resp, error)
	Decode(resp Resp) (string, error)
}

// exchange runs one encode → invoke → decode cycle.
func exchange[Req, Resp any](ctx context.Context, provider ProviderID, c codec[Req, Resp], history []Turn) (string, error) {
	req, err := c.Encode(history)
	if err != nil {
		return "", err
	}

	resp, err := c.Invoke(ctx, req)
	if err != nil {
		return "", &TransportError{Provider: provider, Err: err}
	}

	return c.Decode(resp)
}
