// Package display provides terminal formatting for orai CLI output.
package display

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Hexploration-Inc/orai/internal/types"
)

var (
	Muted    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	Dim      = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3af"))
	Bold     = lipgloss.NewStyle().Bold(true)
	Success  = lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a"))
	ErrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))

	UnreadStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#2563eb"))
	ArchivedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	SpamStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#d97706"))
)

// State names a message's position in the mailbox.
func State(m *types.Message) string {
	switch {
	case m.IsSpam:
		return "spam"
	case m.IsArchived:
		return "archived"
	case !m.IsRead:
		return "unread"
	default:
		return "read"
	}
}

// StateDot returns a colored marker for a message's state.
func StateDot(m *types.Message) string {
	switch State(m) {
	case "spam":
		return SpamStyle.Render("◌")
	case "archived":
		return ArchivedStyle.Render("○")
	case "unread":
		return UnreadStyle.Render("●")
	default:
		return Dim.Render("·")
	}
}

// SenderLabel prefers the display name and falls back to the address.
func SenderLabel(s types.Sender) string {
	switch {
	case s.Name != "":
		return s.Name
	case s.Address != "":
		return s.Address
	default:
		return "(unknown sender)"
	}
}

// TimeAgo formats t relative to now.
func TimeAgo(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}

// ParseStamp parses a stored RFC 3339 timestamp. Unparseable input yields
// the zero time.
func ParseStamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Truncate shortens s to at most maxLen runes, adding an ellipsis when cut.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// SuccessMsg prints a green checkmark and message.
func SuccessMsg(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, Success.Render("✓")+" "+fmt.Sprintf(format, args...))
}

// ErrorMsg prints a red cross and message.
func ErrorMsg(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, ErrStyle.Render("✗")+" "+fmt.Sprintf(format, args...))
}

// Header prints a section header.
func Header(w io.Writer, title string) {
	fmt.Fprintln(w, Bold.Render(title))
}

// MessageLine renders one inbox row.
func MessageLine(m *types.Message, now time.Time) string {
	subject := m.Subject
	if subject == "" {
		subject = "(no subject)"
	}
	return fmt.Sprintf("  %s %-24s  %s  %s",
		StateDot(m),
		Truncate(SenderLabel(m.Sender), 24),
		Truncate(subject, 60),
		Dim.Render(TimeAgo(m.ReceivedAt, now)),
	)
}

// Body prints text indented, capped at maxLines.
func Body(w io.Writer, text string, maxLines int) {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, line := range lines {
		if maxLines > 0 && i >= maxLines {
			fmt.Fprintf(w, "  %s\n", Dim.Render(fmt.Sprintf("... (%d more lines)", len(lines)-maxLines)))
			return
		}
		fmt.Fprintf(w, "  %s %s\n", Muted.Render("│"), Truncate(strings.TrimSpace(line), 100))
	}
}
