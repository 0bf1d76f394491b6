// Terminal rendering for the chat transcript.
//
// Information Hiding:
// - Markdown rendering via glamour
// - Role and error styling via lipgloss
// - Plain-text fallback when output is not a terminal

package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/richinex/switchboard/llm"
	"github.com/richinex/switchboard/session"
)

const defaultWrapWidth = 100

var (
	userLabelStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	assistantLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	errorStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	noticeStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

// Renderer formats transcript turns and status lines.
// A plain Renderer emits unstyled text, which is what tests and pipes see.
type Renderer struct {
	styled   bool
	markdown *glamour.TermRenderer
}

// NewRenderer creates a renderer. When styled is false, or glamour fails to
// initialize, replies are printed as-is.
func NewRenderer(styled bool, width int) *Renderer {
	r := &Renderer{styled: styled}
	if !styled {
		return r
	}
	if width <= 0 {
		width = defaultWrapWidth
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err == nil {
		r.markdown = md
	}
	return r
}

// PlainRenderer returns a renderer without styling.
func PlainRenderer() *Renderer {
	return &Renderer{}
}

// Turn renders one transcript turn with its speaker label. failed marks an
// assistant turn that reports a failed call.
func (r *Renderer) Turn(turn llm.Turn, failed bool) string {
	if turn.IsUser() {
		return r.label(userLabelStyle, "You") + " " + turn.Text
	}
	return r.label(assistantLabelStyle, "Assistant") + "\n" + r.body(turn.Text, failed)
}

// Reply renders the assistant side of an exchange.
func (r *Renderer) Reply(reply session.Reply) string {
	return r.label(assistantLabelStyle, "Assistant") + "\n" + r.body(reply.Text, reply.Failed())
}

// Error renders a message shown outside the transcript.
func (r *Renderer) Error(format string, args ...any) string {
	msg := fmt.Sprintf(format, args...)
	if !r.styled {
		return "Error: " + msg
	}
	return errorStyle.Render("Error: " + msg)
}

// Notice renders an informational status line.
func (r *Renderer) Notice(format string, args ...any) string {
	msg := fmt.Sprintf(format, args...)
	if !r.styled {
		return msg
	}
	return noticeStyle.Render(msg)
}

func (r *Renderer) label(style lipgloss.Style, name string) string {
	if !r.styled {
		return name + ":"
	}
	return style.Render(name + ":")
}

func (r *Renderer) body(text string, failed bool) string {
	if failed {
		if !r.styled {
			return text
		}
		return errorStyle.Render(text)
	}
	if r.markdown == nil {
		return text
	}
	out, err := r.markdown.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}
