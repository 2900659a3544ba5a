package headless

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/killallgit/tripwire/pkg/chat"
	"github.com/killallgit/tripwire/pkg/resilience"
)

// Output renders streamed conversation content to the console.
type Output struct {
	w            io.Writer
	showThinking bool

	thinkingStyle lipgloss.Style
	toolStyle     lipgloss.Style
	labelStyle    lipgloss.Style
	errorStyle    lipgloss.Style
	statusStyle   lipgloss.Style
}

// NewOutput creates an output handler writing to stdout.
func NewOutput(showThinking bool) *Output {
	return NewOutputWithWriter(os.Stdout, showThinking)
}

// NewOutputWithWriter creates an output handler writing to w.
func NewOutputWithWriter(w io.Writer, showThinking bool) *Output {
	return &Output{
		w:            w,
		showThinking: showThinking,

		// Thinking tokens - dim and italic, transient content
		thinkingStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true),

		// Tool activity labels
		toolStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00CED1")),

		labelStyle: lipgloss.NewStyle().
			Bold(true),

		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6347")),

		statusStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#555555")),
	}
}

// Token prints one streamed token with the style of its message kind.
func (o *Output) Token(kind chat.Kind, token string) {
	switch kind {
	case chat.KindThinking:
		if o.showThinking {
			fmt.Fprint(o.w, o.thinkingStyle.Render(token))
		}
	case chat.KindError:
		fmt.Fprint(o.w, o.errorStyle.Render(token))
	default:
		fmt.Fprint(o.w, token)
	}
}

// PhaseLabel prints a one-line marker for a phase transition, like the start
// of a tool call.
func (o *Output) PhaseLabel(label string) {
	fmt.Fprintf(o.w, "\n%s\n", o.toolStyle.Render(label))
}

// Newline terminates the current output line.
func (o *Output) Newline() {
	fmt.Fprintln(o.w)
}

// Status prints an advisory connectivity indicator.
func (o *Output) Status(state resilience.State) {
	fmt.Fprintf(o.w, "%s\n", o.statusStyle.Render(fmt.Sprintf("[%s]", state)))
}

// Error prints a terminal error message.
func (o *Output) Error(msg string) {
	fmt.Fprintf(o.w, "%s\n", o.errorStyle.Render(msg))
}

// Message renders one finished message with a role label, used for history
// listings.
func (o *Output) Message(m chat.Message) {
	label := string(m.Kind)
	if name := m.ToolName(); name != "" {
		label = fmt.Sprintf("%s(%s)", label, name)
	}
	fmt.Fprintf(o.w, "%s %s\n", o.labelStyle.Render(label+":"), m.Content)
}
