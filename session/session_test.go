package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/goleak"

	"github.com/richinex/switchboard/llm"
	"github.com/richinex/switchboard/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubCompleter answers with a fixed reply or error and records requests.
type stubCompleter struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests []openai.ChatCompletionRequest
}

func (s *stubCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: s.reply}},
		},
	}, nil
}

func (s *stubCompleter) lastRequest(t *testing.T) openai.ChatCompletionRequest {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		t.Fatal("expected at least one request")
	}
	return s.requests[len(s.requests)-1]
}

// recorder collects exchanges in memory.
type recorder struct {
	exchanges []storage.Exchange
	ctxErrs   []error
	err       error
}

func (r *recorder) Record(ctx context.Context, ex storage.Exchange) error {
	r.exchanges = append(r.exchanges, ex)
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	return r.err
}

// stubRegistry wires openai and groq to the given completer and makes
// cohere's factory always fail.
func stubRegistry(completer llm.ChatCompleter) *llm.Registry {
	return llm.NewRegistry(
		llm.Entry{DisplayName: "OpenAI", ID: llm.OpenAI, DefaultModel: llm.ModelOpenAIGPT4oMini, New: func(_ string, opts llm.Options) (llm.Adapter, error) {
			return llm.NewOpenAIAdapter(completer, opts.Model), nil
		}},
		llm.Entry{DisplayName: "Groq", ID: llm.Groq, DefaultModel: llm.ModelGroqLlama3, New: func(_ string, opts llm.Options) (llm.Adapter, error) {
			return llm.NewGroqAdapter(completer, opts.Model), nil
		}},
		llm.Entry{DisplayName: "Cohere", ID: llm.Cohere, DefaultModel: llm.ModelCohereCommandA, New: func(string, llm.Options) (llm.Adapter, error) {
			return nil, errors.New("client init failed")
		}},
	)
}

func newTestSession(t *testing.T, completer llm.ChatCompleter, opts ...Option) (*Session, *storage.Conversation) {
	t.Helper()
	store := storage.NewConversation()
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))}, opts...)
	return New(stubRegistry(completer), store, opts...), store
}

func TestAskSuccess(t *testing.T) {
	completer := &stubCompleter{reply: "Hi there"}
	s, store := newTestSession(t, completer)

	if err := s.Configure(Selection{Provider: llm.OpenAI, Credential: "sk-test"}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	reply, err := s.Ask(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if reply.Text != "Hi there" || reply.Failed() {
		t.Errorf("unexpected reply: %+v", reply)
	}

	turns := store.Snapshot()
	want := []llm.Turn{llm.UserTurn("Hello"), llm.AssistantTurn("Hi there")}
	if len(turns) != len(want) {
		t.Fatalf("expected %d turns, got %d", len(want), len(turns))
	}
	for i := range want {
		if turns[i] != want[i] {
			t.Errorf("turn %d: expected %+v, got %+v", i, want[i], turns[i])
		}
	}

	req := completer.lastRequest(t)
	if req.Model != llm.ModelOpenAIGPT4oMini {
		t.Errorf("expected default model, got %q", req.Model)
	}
	if len(req.Messages) != 1 || req.Messages[0].Content != "Hello" {
		t.Errorf("expected single user message, got %+v", req.Messages)
	}
}

func TestAskFailureBecomesTranscriptText(t *testing.T) {
	completer := &stubCompleter{err: errors.New("connection refused")}
	rec := &recorder{}
	s, store := newTestSession(t, completer, WithRecorder(rec))

	if err := s.Configure(Selection{Provider: llm.OpenAI, Credential: "sk-test"}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	reply, err := s.Ask(context.Background(), "x")
	if err != nil {
		t.Fatalf("Ask must not return vendor errors, got %v", err)
	}
	if !reply.Failed() {
		t.Fatal("expected failed reply")
	}
	if reply.Text != "An error occurred: connection refused" {
		t.Errorf("unexpected failure text: %q", reply.Text)
	}
	if llm.ErrorKind(reply.Err) != "transport" {
		t.Errorf("expected transport kind, got %q", llm.ErrorKind(reply.Err))
	}

	turns := store.Snapshot()
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[1].Speaker != llm.SpeakerAssistant || !strings.HasPrefix(turns[1].Text, FailurePrefix) {
		t.Errorf("expected assistant failure turn, got %+v", turns[1])
	}

	if len(rec.exchanges) != 1 {
		t.Fatalf("expected 1 recorded exchange, got %d", len(rec.exchanges))
	}
	ex := rec.exchanges[0]
	if !ex.Failed || ex.ErrorKind != "transport" || ex.SessionID != s.ID() || ex.Provider != "openai" {
		t.Errorf("unexpected exchange: %+v", ex)
	}

	// The session stays usable after a failure.
	completer.mu.Lock()
	completer.err = nil
	completer.reply = "recovered"
	completer.mu.Unlock()

	reply, err = s.Ask(context.Background(), "again")
	if err != nil || reply.Text != "recovered" {
		t.Errorf("expected recovery, got %+v / %v", reply, err)
	}
	if got := len(completer.lastRequest(t).Messages); got != 3 {
		t.Errorf("expected 3 messages including failure turn, got %d", got)
	}
}

func TestAskGrowsHistoryByTwo(t *testing.T) {
	s, store := newTestSession(t, &stubCompleter{reply: "ok"})
	if err := s.Configure(Selection{Provider: llm.Groq, Credential: "gsk"}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	for i := 1; i <= 3; i++ {
		if _, err := s.Ask(context.Background(), "msg"); err != nil {
			t.Fatalf("Ask failed: %v", err)
		}
		if store.Len() != 2*i {
			t.Errorf("after %d asks expected %d turns, got %d", i, 2*i, store.Len())
		}
	}
}

func TestAskBeforeConfigure(t *testing.T) {
	s, store := newTestSession(t, &stubCompleter{reply: "ok"})

	if s.State() != Unconfigured {
		t.Errorf("expected Unconfigured, got %s", s.State())
	}
	if _, err := s.Ask(context.Background(), "Hello"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("expected no turns, got %d", store.Len())
	}
}

func TestAskEmptyMessage(t *testing.T) {
	completer := &stubCompleter{reply: "ok"}
	s, store := newTestSession(t, completer)
	if err := s.Configure(Selection{Provider: llm.OpenAI, Credential: "sk"}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	if _, err := s.Ask(context.Background(), "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
	if store.Len() != 0 || len(completer.requests) != 0 {
		t.Error("empty message must not touch history or the provider")
	}
}

func TestConfigureRejectsBlankCredential(t *testing.T) {
	s, store := newTestSession(t, &stubCompleter{reply: "ok"})
	if err := s.Configure(Selection{Provider: llm.OpenAI, Credential: "sk"}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if _, err := s.Ask(context.Background(), "keep me"); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	err := s.Configure(Selection{Provider: llm.Groq, Credential: "  "})
	var cfgErr *llm.ConfigurationError
	if !errors.As(err, &cfgErr) || !errors.Is(err, llm.ErrMissingCredential) {
		t.Fatalf("expected ConfigurationError wrapping ErrMissingCredential, got %v", err)
	}

	// Nothing changed.
	if s.State() != Ready {
		t.Errorf("expected Ready, got %s", s.State())
	}
	if sel, _ := s.Selection(); sel.Provider != llm.OpenAI {
		t.Errorf("expected openai selection kept, got %s", sel.Provider)
	}
	if store.Len() != 2 {
		t.Errorf("expected history kept, got %d turns", store.Len())
	}
}

func TestConfigureUnknownProvider(t *testing.T) {
	s, _ := newTestSession(t, &stubCompleter{reply: "ok"})

	err := s.Configure(Selection{Provider: "mistral", Credential: "key"})
	if !errors.Is(err, llm.ErrUnknownProvider) {
		t.Errorf("expected ErrUnknownProvider, got %v", err)
	}
	if s.State() != Unconfigured {
		t.Errorf("expected Unconfigured, got %s", s.State())
	}
}

func TestConfigureFactoryFailureKeepsHistory(t *testing.T) {
	s, store := newTestSession(t, &stubCompleter{reply: "ok"})
	if err := s.Configure(Selection{Provider: llm.OpenAI, Credential: "sk"}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if _, err := s.Ask(context.Background(), "hello"); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	err := s.Configure(Selection{Provider: llm.Cohere, Credential: "co"})
	var cfgErr *llm.ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Provider != llm.Cohere {
		t.Fatalf("expected cohere ConfigurationError, got %v", err)
	}
	if s.State() != Unconfigured {
		t.Errorf("expected Unconfigured after factory failure, got %s", s.State())
	}
	if store.Len() != 2 {
		t.Errorf("expected history kept, got %d turns", store.Len())
	}
	if _, err := s.Ask(context.Background(), "still there?"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSelectionChangeClearsHistory(t *testing.T) {
	tests := []struct {
		name      string
		next      Selection
		wantTurns int
	}{
		{name: "same selection keeps history", next: Selection{Provider: llm.OpenAI, Credential: "sk"}, wantTurns: 2},
		{name: "provider change clears", next: Selection{Provider: llm.Groq, Credential: "sk"}, wantTurns: 0},
		{name: "credential change clears", next: Selection{Provider: llm.OpenAI, Credential: "sk-2"}, wantTurns: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, store := newTestSession(t, &stubCompleter{reply: "ok"})
			if err := s.Configure(Selection{Provider: llm.OpenAI, Credential: "sk"}); err != nil {
				t.Fatalf("Configure failed: %v", err)
			}
			if _, err := s.Ask(context.Background(), "hello"); err != nil {
				t.Fatalf("Ask failed: %v", err)
			}

			if err := s.Configure(tt.next); err != nil {
				t.Fatalf("Configure failed: %v", err)
			}
			if store.Len() != tt.wantTurns {
				t.Errorf("expected %d turns, got %d", tt.wantTurns, store.Len())
			}
		})
	}
}

func TestReset(t *testing.T) {
	s, store := newTestSession(t, &stubCompleter{reply: "ok"})
	if err := s.Configure(Selection{Provider: llm.OpenAI, Credential: "sk"}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if _, err := s.Ask(context.Background(), "hello"); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	s.Reset()

	if s.State() != Unconfigured {
		t.Errorf("expected Unconfigured, got %s", s.State())
	}
	if _, ok := s.Selection(); ok {
		t.Error("expected no selection after reset")
	}
	if store.Len() != 0 {
		t.Errorf("expected empty history, got %d", store.Len())
	}
	if s.Model() != "" {
		t.Errorf("expected no model, got %q", s.Model())
	}
}

func TestProviderOptionsApplied(t *testing.T) {
	completer := &stubCompleter{reply: "ok"}
	s, _ := newTestSession(t, completer, WithProviderOptions(func(id llm.ProviderID) llm.Options {
		if id == llm.OpenAI {
			return llm.Options{Model: "gpt-4o"}
		}
		return llm.Options{}
	}))

	if err := s.Configure(Selection{Provider: llm.OpenAI, Credential: "sk"}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if s.Model() != "gpt-4o" {
		t.Errorf("expected gpt-4o, got %q", s.Model())
	}
}

// blockingCompleter waits for the context to end.
type blockingCompleter struct{}

func (blockingCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	<-ctx.Done()
	return openai.ChatCompletionResponse{}, ctx.Err()
}

func TestAskTimeout(t *testing.T) {
	s, store := newTestSession(t, blockingCompleter{}, WithTimeout(20*time.Millisecond))
	if err := s.Configure(Selection{Provider: llm.OpenAI, Credential: "sk"}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	reply, err := s.Ask(context.Background(), "slow")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if !reply.Failed() || !errors.Is(reply.Err, context.DeadlineExceeded) {
		t.Errorf("expected deadline failure, got %+v", reply)
	}
	if store.Len() != 2 {
		t.Errorf("expected 2 turns, got %d", store.Len())
	}
}

func TestCancelledTurnIsRecorded(t *testing.T) {
	rec := &recorder{}
	s, store := newTestSession(t, blockingCompleter{}, WithRecorder(rec))
	if err := s.Configure(Selection{Provider: llm.OpenAI, Credential: "sk"}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reply, err := s.Ask(ctx, "interrupted")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if !errors.Is(reply.Err, context.Canceled) {
		t.Errorf("expected cancellation failure, got %+v", reply)
	}
	if store.Len() != 2 {
		t.Errorf("expected 2 turns, got %d", store.Len())
	}
	if len(rec.exchanges) != 1 || rec.exchanges[0].Prompt != "interrupted" || !rec.exchanges[0].Failed {
		t.Fatalf("expected the failed exchange to be recorded, got %+v", rec.exchanges)
	}
	if rec.ctxErrs[0] != nil {
		t.Errorf("recorder received a cancelled context: %v", rec.ctxErrs[0])
	}
}

func TestRecorderErrorIgnored(t *testing.T) {
	rec := &recorder{err: errors.New("disk full")}
	s, _ := newTestSession(t, &stubCompleter{reply: "ok"}, WithRecorder(rec))
	if err := s.Configure(Selection{Provider: llm.OpenAI, Credential: "sk"}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	reply, err := s.Ask(context.Background(), "hi")
	if err != nil || reply.Text != "ok" {
		t.Errorf("recorder failure must not affect the turn, got %+v / %v", reply, err)
	}
}

func TestConcurrentAsksSerialized(t *testing.T) {
	s, store := newTestSession(t, &stubCompleter{reply: "ok"})
	if err := s.Configure(Selection{Provider: llm.OpenAI, Credential: "sk"}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Ask(context.Background(), "hi")
		}()
	}
	wg.Wait()

	turns := store.Snapshot()
	if len(turns) != 20 {
		t.Fatalf("expected 20 turns, got %d", len(turns))
	}
	for i := 0; i < len(turns); i += 2 {
		if !turns[i].IsUser() || turns[i+1].IsUser() {
			t.Fatalf("turns %d/%d are not a user/assistant pair", i, i+1)
		}
	}
}

func TestLogsNeverContainCredential(t *testing.T) {
	var buf bytes.Buffer
	completer := &stubCompleter{err: errors.New("unauthorized")}
	s := New(stubRegistry(completer), storage.NewConversation(),
		WithLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))))

	const secret = "sk-very-secret-credential"
	if err := s.Configure(Selection{Provider: llm.OpenAI, Credential: secret}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	_, _ = s.Ask(context.Background(), "hi")

	if strings.Contains(buf.String(), secret) {
		t.Error("log output contains the credential")
	}
	if !strings.Contains(buf.String(), "key_fp=") {
		t.Error("expected key fingerprint in logs")
	}
}
