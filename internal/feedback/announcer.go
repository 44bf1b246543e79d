// Package feedback delivers what the user hears and reads: announcements,
// spoken text and tones. All of it is fire-and-forget, and every sink turns
// into a no-op once closed.
package feedback

import (
	"fmt"
	"io"
	"sync"

	"earshot/internal/logging"

	"github.com/charmbracelet/lipgloss"
)

// Announcer is the single notification path for informational, warning and
// error messages.
type Announcer interface {
	Info(msg string)
	Warn(msg string)
	Error(msg string)
}

// Level is an announcement severity.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

var (
	infoColor  = lipgloss.Color("#2196F3")
	warnColor  = lipgloss.Color("#FFC107")
	errorColor = lipgloss.Color("#e53935")
)

// Console writes styled announcements to a terminal and mirrors each one to
// the feedback log, which serves as the output channel.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	styles map[Level]lipgloss.Style
}

// NewConsole creates a console writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{
		w: w,
		styles: map[Level]lipgloss.Style{
			LevelInfo:  lipgloss.NewStyle().Foreground(infoColor).Bold(true),
			LevelWarn:  lipgloss.NewStyle().Foreground(warnColor).Bold(true),
			LevelError: lipgloss.NewStyle().Foreground(errorColor).Bold(true),
		},
	}
}

func (c *Console) Info(msg string)  { c.write(LevelInfo, msg) }
func (c *Console) Warn(msg string)  { c.write(LevelWarn, msg) }
func (c *Console) Error(msg string) { c.write(LevelError, msg) }

func (c *Console) write(level Level, msg string) {
	c.mu.Lock()
	label := c.styles[level].Render(fmt.Sprintf("[%s]", level))
	fmt.Fprintf(c.w, "%s %s\n", label, msg)
	c.mu.Unlock()

	l := logging.Get(logging.CategoryFeedback)
	switch level {
	case LevelWarn:
		l.Warn("%s", msg)
	case LevelError:
		l.Error("%s", msg)
	default:
		l.Info("%s", msg)
	}
}
