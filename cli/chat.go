// Interactive chat loop.
//
// Information Hiding:
// - Provider selection and credential prompting
// - Slash command dispatch
// - Mapping session results to terminal output

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/richinex/switchboard/llm"
	"github.com/richinex/switchboard/session"
)

const chatHelp = `Commands:
  /provider <id>   switch provider (clears the conversation)
  /providers       list providers
  /history         show the conversation so far
  /reset           clear the conversation and the provider selection
  /help            show this help
  exit, quit       leave the chat`

// KeyLookup returns a stored credential for a provider, or "" if none.
type KeyLookup func(id llm.ProviderID) string

// REPL drives a session from line-oriented input.
type REPL struct {
	session   *session.Session
	registry  *llm.Registry
	renderer  *Renderer
	scanner   *bufio.Scanner
	out       io.Writer
	lookupKey KeyLookup
	secretFD  int // terminal fd for masked input, -1 reads keys from the scanner

	pending chan scanResult // outstanding Scan, nil when none
	failed  map[int]bool    // transcript indexes of failure replies
}

type scanResult struct {
	text string
	ok   bool
}

// REPLOption configures a REPL.
type REPLOption func(*REPL)

// WithRenderer sets the output renderer. Defaults to PlainRenderer.
func WithRenderer(renderer *Renderer) REPLOption {
	return func(r *REPL) {
		r.renderer = renderer
	}
}

// WithKeyLookup sets where credentials are found before prompting.
func WithKeyLookup(lookup KeyLookup) REPLOption {
	return func(r *REPL) {
		r.lookupKey = lookup
	}
}

// WithTerminal reads credentials from fd with echo disabled when fd is a terminal.
func WithTerminal(fd int) REPLOption {
	return func(r *REPL) {
		if term.IsTerminal(fd) {
			r.secretFD = fd
		}
	}
}

// NewREPL creates a chat loop reading from in and writing to out.
func NewREPL(sess *session.Session, registry *llm.Registry, in io.Reader, out io.Writer, opts ...REPLOption) *REPL {
	r := &REPL{
		session:   sess,
		registry:  registry,
		renderer:  PlainRenderer(),
		scanner:   bufio.NewScanner(in),
		out:       out,
		lookupKey: func(llm.ProviderID) string { return "" },
		secretFD:  -1,
		failed:    make(map[int]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts the loop. If provider is empty the user is asked to choose one;
// an empty apiKey falls back to the key lookup and then to a prompt.
// Returns nil when input ends or the user types exit/quit, and ctx.Err()
// as soon as ctx is cancelled, even while waiting for input.
func (r *REPL) Run(ctx context.Context, provider llm.ProviderID, apiKey string) error {
	fmt.Fprintln(r.out, r.renderer.Notice("Multi-provider chat. Type /help for commands, 'exit' to quit."))

	if provider == "" {
		chosen, err := r.chooseProvider(ctx)
		if err != nil {
			return endOfInput(err)
		}
		provider = chosen
	}
	r.configure(ctx, provider, apiKey)

	for {
		fmt.Fprint(r.out, "> ")
		line, err := r.readLine(ctx)
		if err != nil {
			return endOfInput(err)
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			return nil
		}

		if strings.HasPrefix(input, "/") {
			r.command(ctx, input)
			continue
		}

		r.ask(ctx, input)
	}
}

// readLine returns the next input line, io.EOF at end of input, or ctx.Err()
// once ctx is done. A Scan interrupted by cancellation stays pending and is
// picked up by the next call, so the scanner is never used concurrently.
func (r *REPL) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if r.pending == nil {
		ch := make(chan scanResult, 1)
		go func() {
			ok := r.scanner.Scan()
			ch <- scanResult{text: r.scanner.Text(), ok: ok}
		}()
		r.pending = ch
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-r.pending:
		r.pending = nil
		if !res.ok {
			if err := r.scanner.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		return res.text, nil
	}
}

func endOfInput(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// chooseProvider lists the registry and reads a choice by number or id.
func (r *REPL) chooseProvider(ctx context.Context) (llm.ProviderID, error) {
	r.printProviders()
	for {
		fmt.Fprintf(r.out, "Choose a provider [1-%d]: ", len(r.registry.List()))
		line, err := r.readLine(ctx)
		if err != nil {
			return "", err
		}
		id, err := r.parseChoice(strings.TrimSpace(line))
		if err != nil {
			fmt.Fprintln(r.out, r.renderer.Error("%v", err))
			continue
		}
		return id, nil
	}
}

func (r *REPL) parseChoice(choice string) (llm.ProviderID, error) {
	entries := r.registry.List()
	if n, err := strconv.Atoi(choice); err == nil {
		if n < 1 || n > len(entries) {
			return "", fmt.Errorf("choice out of range: %d", n)
		}
		return entries[n-1].ID, nil
	}

	id, err := llm.ParseProviderID(choice)
	if err != nil {
		return "", err
	}
	if _, err := r.registry.Lookup(id); err != nil {
		return "", err
	}
	return id, nil
}

// configure resolves a credential for id and applies the selection.
func (r *REPL) configure(ctx context.Context, id llm.ProviderID, apiKey string) {
	entry, err := r.registry.Lookup(id)
	if err != nil {
		fmt.Fprintln(r.out, r.renderer.Error("%v", err))
		return
	}

	if apiKey == "" {
		apiKey = r.lookupKey(id)
	}
	if apiKey == "" {
		apiKey, err = r.readSecret(ctx, fmt.Sprintf("Enter your %s API key: ", entry.DisplayName))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			fmt.Fprintln(r.out, r.renderer.Error("failed to read API key: %v", err))
			return
		}
	}

	if err := r.session.Configure(session.Selection{Provider: id, Credential: apiKey}); err != nil {
		if errors.Is(err, llm.ErrMissingCredential) {
			fmt.Fprintln(r.out, r.renderer.Error("API key is required."))
		} else {
			fmt.Fprintln(r.out, r.renderer.Error("Failed to initialize the client. Please check your API key. %v", err))
		}
		return
	}

	fmt.Fprintln(r.out, r.renderer.Notice("%s API key set successfully! Model: %s", entry.DisplayName, r.session.Model()))
}

// readSecret reads a credential, masking input on a terminal.
func (r *REPL) readSecret(ctx context.Context, prompt string) (string, error) {
	fmt.Fprint(r.out, prompt)
	if r.secretFD >= 0 {
		return r.readPassword(ctx)
	}
	line, err := r.readLine(ctx)
	if errors.Is(err, io.EOF) {
		return "", io.ErrUnexpectedEOF
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readPassword reads from the terminal with echo off. On cancellation the
// terminal state is restored before returning.
func (r *REPL) readPassword(ctx context.Context) (string, error) {
	state, err := term.GetState(r.secretFD)
	if err != nil {
		return "", err
	}

	type secret struct {
		b   []byte
		err error
	}
	ch := make(chan secret, 1)
	go func() {
		b, err := term.ReadPassword(r.secretFD)
		ch <- secret{b: b, err: err}
	}()

	select {
	case <-ctx.Done():
		_ = term.Restore(r.secretFD, state)
		fmt.Fprintln(r.out)
		return "", ctx.Err()
	case s := <-ch:
		fmt.Fprintln(r.out)
		if s.err != nil {
			return "", s.err
		}
		return strings.TrimSpace(string(s.b)), nil
	}
}

// command handles one slash command.
func (r *REPL) command(ctx context.Context, input string) {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/help":
		fmt.Fprintln(r.out, chatHelp)

	case "/providers":
		r.printProviders()

	case "/provider":
		if len(fields) < 2 {
			fmt.Fprintln(r.out, r.renderer.Error("usage: /provider <id>"))
			return
		}
		id, err := r.parseChoice(fields[1])
		if err != nil {
			fmt.Fprintln(r.out, r.renderer.Error("%v", err))
			return
		}
		r.configure(ctx, id, "")

	case "/history":
		turns := r.session.Transcript()
		if len(turns) == 0 {
			fmt.Fprintln(r.out, r.renderer.Notice("No messages yet."))
			return
		}
		for i, turn := range turns {
			fmt.Fprintln(r.out, r.renderer.Turn(turn, r.failed[i]))
		}

	case "/reset":
		r.session.Reset()
		fmt.Fprintln(r.out, r.renderer.Notice("Session reset. Use /provider <id> to select a provider."))

	default:
		fmt.Fprintln(r.out, r.renderer.Error("unknown command %q (try /help)", fields[0]))
	}
}

// ask sends one message and prints the reply.
func (r *REPL) ask(ctx context.Context, text string) {
	// A cleared transcript invalidates the recorded failure indexes.
	if len(r.session.Transcript()) == 0 {
		clear(r.failed)
	}

	reply, err := r.session.Ask(ctx, text)
	if err != nil {
		if errors.Is(err, session.ErrNotConfigured) {
			fmt.Fprintln(r.out, r.renderer.Notice("Please configure your API key to start chatting: /provider <id>"))
			return
		}
		fmt.Fprintln(r.out, r.renderer.Error("%v", err))
		return
	}
	if reply.Failed() {
		r.failed[len(r.session.Transcript())-1] = true
	}
	fmt.Fprintf(r.out, "\n%s\n\n", r.renderer.Reply(reply))
}

func (r *REPL) printProviders() {
	active, selected := r.session.Selection()
	for i, entry := range r.registry.List() {
		marker := " "
		if selected && entry.ID == active.Provider {
			marker = "*"
		}
		fmt.Fprintf(r.out, "%s %d. %-20s (%s)\n", marker, i+1, entry.DisplayName, entry.ID)
	}
}
