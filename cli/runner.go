// Command execution for CLI commands.
//
// Information Hiding:
// - Settings, journal and session wiring hidden
// - Output formatting hidden

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/richinex/switchboard/config"
	"github.com/richinex/switchboard/llm"
	"github.com/richinex/switchboard/session"
	"github.com/richinex/switchboard/storage"
)

// Options holds CLI execution options.
type Options struct {
	Provider string
	APIKey   string
	Verbose  bool
}

// Chat starts an interactive chat session on stdin/stdout.
func Chat(ctx context.Context, opts Options) error {
	settings, err := config.New(opts.Provider)
	if err != nil {
		return err
	}

	logger := NewLogger(os.Stderr, settings.Log.Level, opts.Verbose)
	slog.SetDefault(logger)

	registry := llm.DefaultRegistry()
	sessionOpts := []session.Option{
		session.WithLogger(logger),
		session.WithTimeout(settings.LLM.Timeout),
		session.WithProviderOptions(settings.ProviderOptions),
	}

	if settings.Journal.Path != "" {
		journal, err := storage.OpenJournal(settings.Journal.Path)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer journal.Close()
		sessionOpts = append(sessionOpts, session.WithRecorder(journal))
	}

	sess := session.New(registry, storage.NewConversation(), sessionOpts...)
	logger.Debug("session started", "session", sess.ID(), "journal", settings.Journal.Path)

	repl := NewREPL(sess, registry, os.Stdin, os.Stdout,
		WithRenderer(NewRenderer(isTerminal(os.Stdout), 0)),
		WithKeyLookup(envKeyLookup),
		WithTerminal(int(os.Stdin.Fd())),
	)
	if err := repl.Run(ctx, settings.LLM.Provider, opts.APIKey); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// envKeyLookup reads <VENDOR>_API_KEY.
func envKeyLookup(id llm.ProviderID) string {
	key, err := config.APIKeyFor(string(id))
	if err != nil {
		return ""
	}
	return key
}

// ListProviders prints the provider registry with effective models.
func ListProviders(w io.Writer) {
	fmt.Fprintln(w, "Available providers:")
	fmt.Fprintln(w)

	for _, entry := range llm.DefaultRegistry().List() {
		model, err := config.ModelFor(string(entry.ID))
		if err != nil {
			model = entry.DefaultModel
		}
		keyStatus := "not set"
		if envKeyLookup(entry.ID) != "" {
			keyStatus = "set"
		}
		fmt.Fprintf(w, "  %s\n", entry.ID)
		fmt.Fprintf(w, "    %s, model %s\n", entry.DisplayName, model)
		fmt.Fprintf(w, "    %s: %s\n", entry.EnvVar, keyStatus)
		fmt.Fprintln(w)
	}
}

// ShowJournal prints recorded exchanges from the journal at path.
// An empty path falls back to SWITCHBOARD_JOURNAL.
func ShowJournal(ctx context.Context, w io.Writer, path, sessionID string, limit int) error {
	journal, err := openExistingJournal(path)
	if err != nil {
		return err
	}
	defer journal.Close()

	exchanges, err := journal.Exchanges(ctx, sessionID, limit)
	if err != nil {
		return err
	}

	printExchanges(w, exchanges)
	return nil
}

// ListSessions prints the session IDs in the journal, most recent first.
func ListSessions(ctx context.Context, w io.Writer, path string) error {
	journal, err := openExistingJournal(path)
	if err != nil {
		return err
	}
	defer journal.Close()

	sessions, err := journal.Sessions(ctx)
	if err != nil {
		return err
	}

	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions recorded.")
		return nil
	}
	for _, id := range sessions {
		fmt.Fprintln(w, id)
	}
	return nil
}

func openExistingJournal(path string) (*storage.Journal, error) {
	if path == "" {
		settings, err := config.New("")
		if err != nil {
			return nil, err
		}
		path = settings.Journal.Path
	}
	if path == "" {
		return nil, fmt.Errorf("no journal configured: set SWITCHBOARD_JOURNAL or pass --db")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("journal not found: %w", err)
	}

	journal, err := storage.OpenJournal(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return journal, nil
}

const maxJournalTextLen = 200

func printExchanges(w io.Writer, exchanges []storage.Exchange) {
	if len(exchanges) == 0 {
		fmt.Fprintln(w, "No exchanges recorded.")
		return
	}

	for _, ex := range exchanges {
		status := "ok"
		if ex.Failed {
			status = "failed (" + ex.ErrorKind + ")"
		}
		fmt.Fprintf(w, "[%s] %s/%s session=%s %s in %s\n",
			ex.CreatedAt.Format(time.DateTime),
			ex.Provider, ex.Model,
			shortID(ex.SessionID),
			status,
			ex.Latency.Round(time.Millisecond),
		)
		fmt.Fprintf(w, "  > %s\n", truncateString(ex.Prompt, maxJournalTextLen))
		fmt.Fprintf(w, "  < %s\n", truncateString(ex.Reply, maxJournalTextLen))
		fmt.Fprintln(w)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncateString truncates a string to maxLen runes, preserving UTF-8 boundaries.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
