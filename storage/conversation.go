// Package storage provides the in-memory conversation transcript and the
// SQLite turn journal.
//
// Information Hiding:
// - Slice storage hidden behind Append/Snapshot
// - Thread-safe access via RWMutex
// - Copies on read so callers cannot mutate history

package storage

import (
	"sync"

	"github.com/richinex/switchboard/llm"
)

// Conversation is the ordered transcript of one session and the single
// source of truth for history. Alternation of speakers is not enforced.
type Conversation struct {
	mu    sync.RWMutex
	turns []llm.Turn
}

// NewConversation creates an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{
		turns: []llm.Turn{},
	}
}

// Append adds a turn to the end of the transcript.
func (c *Conversation) Append(turn llm.Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.turns = append(c.turns, turn)
}

// Snapshot returns every turn appended so far, in order.
func (c *Conversation) Snapshot() []llm.Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Return a copy to avoid external mutations
	copied := make([]llm.Turn, len(c.turns))
	copy(copied, c.turns)
	return copied
}

// Clear empties the transcript.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.turns = []llm.Turn{}
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.turns)
}

// LastUserText returns the text of the most recent user turn.
// Returns an error matching llm.ErrEmptyConversation if there is none.
func (c *Conversation) LastUserText() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return llm.LastUserText(c.turns)
}
