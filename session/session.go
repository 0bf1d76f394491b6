// Package session owns the active provider selection and runs one
// request/response cycle per user turn.
//
// Information Hiding:
// - Adapter construction and replacement on selection changes
// - Conversion of per-turn failures into transcript text
// - Single-flight serialization of Ask

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/richinex/switchboard/llm"
	"github.com/richinex/switchboard/storage"
)

// FailurePrefix starts every assistant turn that reports a failed call.
const FailurePrefix = "An error occurred: "

var (
	// ErrNotConfigured is returned by Ask before a selection succeeded.
	ErrNotConfigured = errors.New("session not configured: select a provider and credential first")
	// ErrEmptyMessage is returned by Ask for blank input.
	ErrEmptyMessage = errors.New("message is empty")
)

// State is the controller state.
type State int

const (
	// Unconfigured means no usable adapter exists.
	Unconfigured State = iota
	// Ready means Ask may be called.
	Ready
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// Selection is a provider plus the credential used to reach it.
type Selection struct {
	Provider   llm.ProviderID
	Credential string
}

// Reply is the outcome of one Ask. Text is always what the transcript shows;
// Err is non-nil when Text reports a failed call rather than a model reply.
type Reply struct {
	Text    string
	Err     error
	Latency time.Duration
}

// Failed reports whether the reply text describes a failure.
func (r Reply) Failed() bool {
	return r.Err != nil
}

// Recorder receives every completed exchange. *storage.Journal satisfies it.
type Recorder interface {
	Record(ctx context.Context, ex storage.Exchange) error
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithRecorder records every exchange.
func WithRecorder(recorder Recorder) Option {
	return func(s *Session) {
		s.recorder = recorder
	}
}

// WithTimeout bounds each vendor call. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.timeout = d
	}
}

// WithProviderOptions supplies adapter options per provider.
func WithProviderOptions(fn func(llm.ProviderID) llm.Options) Option {
	return func(s *Session) {
		s.providerOptions = fn
	}
}

// Session pairs a provider selection with its conversation.
// Ask calls are serialized; concurrent sessions must each own their own
// Session and Conversation.
type Session struct {
	mu sync.Mutex

	id              string
	registry        *llm.Registry
	store           *storage.Conversation
	logger          *slog.Logger
	recorder        Recorder
	timeout         time.Duration
	providerOptions func(llm.ProviderID) llm.Options

	state     State
	selection Selection
	selected  bool // a selection has succeeded at least once
	adapter   llm.Adapter
}

// New creates an unconfigured session over the given registry and store.
func New(registry *llm.Registry, store *storage.Conversation, opts ...Option) *Session {
	s := &Session{
		id:       uuid.New().String(),
		registry: registry,
		store:    store,
		logger:   slog.Default(),
		state:    Unconfigured,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session identifier used in logs and the journal.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Selection returns the last successful selection, if any.
func (s *Session) Selection() (Selection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection, s.selected
}

// Model returns the active adapter's model, or "" when unconfigured.
func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.adapter == nil {
		return ""
	}
	return s.adapter.Model()
}

// Transcript returns the conversation so far.
func (s *Session) Transcript() []llm.Turn {
	return s.store.Snapshot()
}

// Configure applies a provider selection.
//
// A blank credential or unknown provider is rejected and nothing changes.
// If the adapter cannot be built the session becomes Unconfigured but keeps
// its history. On success, history is cleared when the provider or the
// credential differs from the previous selection.
func (s *Session) Configure(sel Selection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sel.Credential = strings.TrimSpace(sel.Credential)
	if sel.Credential == "" {
		return &llm.ConfigurationError{Provider: sel.Provider, Err: llm.ErrMissingCredential}
	}

	factory, err := s.registry.Resolve(sel.Provider)
	if err != nil {
		return &llm.ConfigurationError{Provider: sel.Provider, Err: err}
	}

	var opts llm.Options
	if s.providerOptions != nil {
		opts = s.providerOptions(sel.Provider)
	}

	adapter, err := factory(sel.Credential, opts)
	if err != nil {
		s.adapter = nil
		s.state = Unconfigured
		s.logger.Warn("adapter construction failed",
			"session", s.id,
			"provider", sel.Provider,
			"key_fp", fingerprint(sel.Credential),
			"error", err,
		)
		return &llm.ConfigurationError{Provider: sel.Provider, Err: err}
	}

	if s.selected && sel != s.selection {
		s.store.Clear()
		s.logger.Info("conversation cleared",
			"session", s.id,
			"from", s.selection.Provider,
			"to", sel.Provider,
		)
	}

	s.selection = sel
	s.selected = true
	s.adapter = adapter
	s.state = Ready

	s.logger.Info("provider configured",
		"session", s.id,
		"provider", sel.Provider,
		"model", adapter.Model(),
		"key_fp", fingerprint(sel.Credential),
	)
	return nil
}

// Reset drops the selection and clears the conversation.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.store.Clear()
	s.adapter = nil
	s.selection = Selection{}
	s.selected = false
	s.state = Unconfigured
	s.logger.Info("session reset", "session", s.id)
}

// Ask runs one turn: append the user text, call the provider, append the
// reply. Vendor failures never surface as the returned error; they become
// the reply text (prefixed with FailurePrefix) and Reply.Err.
// The returned error is only ErrNotConfigured or ErrEmptyMessage.
func (s *Session) Ask(ctx context.Context, text string) (Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Ready || s.adapter == nil {
		return Reply{}, ErrNotConfigured
	}
	if strings.TrimSpace(text) == "" {
		return Reply{}, ErrEmptyMessage
	}

	s.store.Append(llm.UserTurn(text))

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	replyText, err := s.adapter.Reply(callCtx, s.store.Snapshot())
	reply := Reply{Text: replyText, Latency: time.Since(start)}
	if err != nil {
		reply.Text = FailurePrefix + err.Error()
		reply.Err = err
		s.logger.Warn("turn failed",
			"session", s.id,
			"provider", s.selection.Provider,
			"kind", llm.ErrorKind(err),
			"latency", reply.Latency,
			"error", err,
		)
	} else {
		s.logger.Debug("turn completed",
			"session", s.id,
			"provider", s.selection.Provider,
			"latency", reply.Latency,
			"chars", len(replyText),
		)
	}

	s.store.Append(llm.AssistantTurn(reply.Text))
	s.record(ctx, text, reply)

	return reply, nil
}

// record writes the exchange to the recorder; failures are logged only.
// The write outlives cancellation of ctx so an interrupted turn is still kept.
func (s *Session) record(ctx context.Context, prompt string, reply Reply) {
	if s.recorder == nil {
		return
	}
	ex := storage.Exchange{
		SessionID: s.id,
		Provider:  string(s.selection.Provider),
		Model:     s.adapter.Model(),
		Prompt:    prompt,
		Reply:     reply.Text,
		Failed:    reply.Failed(),
		ErrorKind: llm.ErrorKind(reply.Err),
		Latency:   reply.Latency,
	}
	if err := s.recorder.Record(context.WithoutCancel(ctx), ex); err != nil {
		s.logger.Warn("failed to record exchange", "session", s.id, "error", err)
	}
}

// fingerprint identifies a credential in logs without revealing it.
func fingerprint(credential string) string {
	return fmt.Sprintf("%08x", uint32(xxhash.Sum64String(credential)))
}
