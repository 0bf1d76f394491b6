// Package llm provides the canonical conversation model shared by all providers.
package llm

// Speaker identifies who produced a turn.
type Speaker string

const (
	// SpeakerUser marks a turn typed by the user.
	SpeakerUser Speaker = "user"
	// SpeakerAssistant marks a turn produced by the model (or a rendered failure).
	SpeakerAssistant Speaker = "assistant"
)

// Turn is one message in a conversation.
// Text is the canonical, provider-agnostic content; vendor encodings are
// always derived from it and never stored.
type Turn struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// UserTurn creates a user turn.
func UserTurn(text string) Turn {
	return Turn{
		Speaker: SpeakerUser,
		Text:    text,
	}
}

// AssistantTurn creates an assistant turn.
func AssistantTurn(text string) Turn {
	return Turn{
		Speaker: SpeakerAssistant,
		Text:    text,
	}
}

// IsUser reports whether the turn was typed by the user.
func (t Turn) IsUser() bool {
	return t.Speaker == SpeakerUser
}

// LastUserText returns the text of the most recent user turn in history.
func LastUserText(history []Turn) (string, error) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].IsUser() {
			return history[i].Text, nil
		}
	}
	return "", ErrEmptyConversation
}
