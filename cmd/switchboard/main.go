// Package main provides the switchboard CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/richinex/switchboard/cli"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	provider string
	verbose  bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "switchboard",
		Short: "Chat with Gemini, OpenAI, Groq, Anthropic or Cohere from one terminal",
		Long: `A terminal chat client for several LLM providers.

Pick a provider, supply its API key, and chat. The conversation is kept
in one provider-neutral transcript; switching provider or key starts a
new conversation.

Providers: gemini, openai, groq, anthropic, cohere`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", "LLM provider (gemini, openai, groq, anthropic, cohere)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug logs")

	// Add commands
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(providersCmd())
	rootCmd.AddCommand(journalCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func chatCmd() *cobra.Command {
	var apiKey string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Start an interactive chat session.

The API key is taken from --api-key, then <PROVIDER>_API_KEY, and is
otherwise prompted for with input hidden. Type /help inside the chat
for commands.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.Options{
				Provider: provider,
				APIKey:   apiKey,
				Verbose:  verbose,
			}
			return cli.Chat(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key for the selected provider")

	return cmd
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List available providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli.ListProviders(cmd.OutOrStdout())
			return nil
		},
	}
}

func journalCmd() *cobra.Command {
	var sessionID string
	var dbPath string
	var limit int
	var listSessions bool

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recorded exchanges",
		Long: `Show exchanges recorded in the SQLite journal.

Recording is enabled by setting SWITCHBOARD_JOURNAL to a database path.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listSessions {
				return cli.ListSessions(cmd.Context(), cmd.OutOrStdout(), dbPath)
			}
			return cli.ShowJournal(cmd.Context(), cmd.OutOrStdout(), dbPath, sessionID, limit)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Only show this session")
	cmd.Flags().StringVar(&dbPath, "db", "", "Journal database path (default $SWITCHBOARD_JOURNAL)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Show at most this many exchanges (0 for all)")
	cmd.Flags().BoolVar(&listSessions, "sessions", false, "List recorded session IDs instead of exchanges")

	return cmd
}
