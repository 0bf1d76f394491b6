// Provider Registry - ordered catalog of supported providers.
//
// Quick Start:
//
//	registry := llm.DefaultRegistry()
//	for _, entry := range registry.List() {
//	    fmt.Println(entry.DisplayName, entry.ID)
//	}
//
//	factory, err := registry.Resolve(llm.Anthropic)
//	adapter, err := factory("sk-ant-...", llm.Options{})

package llm

import (
	"fmt"
	"net/http"
	"strings"
)

// ProviderID identifies a supported provider.
type ProviderID string

const (
	// Gemini is Google Gemini.
	Gemini ProviderID = "gemini"
	// OpenAI is OpenAI chat completions.
	OpenAI ProviderID = "openai"
	// Groq is Groq's OpenAI-compatible API.
	Groq ProviderID = "groq"
	// Anthropic is Anthropic Claude.
	Anthropic ProviderID = "anthropic"
	// Cohere is Cohere chat.
	Cohere ProviderID = "cohere"
)

// Default model identifiers.
const (
	ModelGeminiFlashLite = "gemini-2.0-flash-lite"
	ModelOpenAIGPT4oMini = "gpt-4o-mini"
	ModelGroqLlama3      = "llama3-8b-8192"
	ModelClaudeSonnet35  = "claude-3-5-sonnet-20240620"
	ModelCohereCommandA  = "command-a-03-2025"
)

// Provider aliases map to canonical ids.
var providerAliases = map[string]ProviderID{
	"google": Gemini,
	"gpt":    OpenAI,
	"claude": Anthropic,
}

// Options tunes adapter construction. Zero values select provider defaults.
type Options struct {
	Model       string
	MaxTokens   int64
	BaseURL     string
	FullHistory bool // Gemini only
	HTTPClient  *http.Client
}

// Factory builds an adapter for one credential.
type Factory func(credential string, opts Options) (Adapter, error)

// Entry describes one registered provider.
type Entry struct {
	DisplayName  string
	ID           ProviderID
	DefaultModel string
	EnvVar       string
	New          Factory
}

// Registry is an ordered set of provider entries.
// Lookups are pure; Register is meant for setup time.
type Registry struct {
	entries []Entry
	index   map[ProviderID]int
}

// NewRegistry creates a registry with the given entries, in order.
func NewRegistry(entries ...Entry) *Registry {
	r := &Registry{index: make(map[ProviderID]int)}
	for _, entry := range entries {
		r.Register(entry)
	}
	return r
}

// DefaultRegistry returns the five built-in providers in display order.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Entry{DisplayName: "Google Gemini", ID: Gemini, DefaultModel: ModelGeminiFlashLite, EnvVar: "GEMINI_API_KEY", New: newGemini},
		Entry{DisplayName: "OpenAI", ID: OpenAI, DefaultModel: ModelOpenAIGPT4oMini, EnvVar: "OPENAI_API_KEY", New: newOpenAIFactory(OpenAI, "")},
		Entry{DisplayName: "Groq", ID: Groq, DefaultModel: ModelGroqLlama3, EnvVar: "GROQ_API_KEY", New: newOpenAIFactory(Groq, groqBaseURL)},
		Entry{DisplayName: "Anthropic (Claude)", ID: Anthropic, DefaultModel: ModelClaudeSonnet35, EnvVar: "ANTHROPIC_API_KEY", New: newAnthropic},
		Entry{DisplayName: "Cohere", ID: Cohere, DefaultModel: ModelCohereCommandA, EnvVar: "COHERE_API_KEY", New: newCohere},
	)
}

// Register adds an entry. Registering an existing id replaces it in place.
func (r *Registry) Register(entry Entry) {
	if i, ok := r.index[entry.ID]; ok {
		r.entries[i] = entry
		return
	}
	r.index[entry.ID] = len(r.entries)
	r.entries = append(r.entries, entry)
}

// List returns the entries in registration order.
func (r *Registry) List() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Lookup returns the entry for id.
func (r *Registry) Lookup(id ProviderID) (Entry, error) {
	i, ok := r.index[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
	return r.entries[i], nil
}

// Resolve returns the factory for id. The returned factory fills in the
// entry's default model when Options.Model is empty.
func (r *Registry) Resolve(id ProviderID) (Factory, error) {
	entry, err := r.Lookup(id)
	if err != nil {
		return nil, err
	}
	if entry.New == nil {
		return nil, fmt.Errorf("provider %q has no factory", id)
	}
	return func(credential string, opts Options) (Adapter, error) {
		if opts.Model == "" {
			opts.Model = entry.DefaultModel
		}
		return entry.New(credential, opts)
	}, nil
}

// ParseProviderID parses a provider from string (case-insensitive, aliases allowed).
// It does not check registration; use Registry.Lookup for that.
func ParseProviderID(s string) (ProviderID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if id, ok := providerAliases[s]; ok {
		return id, nil
	}
	switch id := ProviderID(s); id {
	case Gemini, OpenAI, Groq, Anthropic, Cohere:
		return id, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
}
