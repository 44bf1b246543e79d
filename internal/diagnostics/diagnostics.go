// Package diagnostics turns diagnostics-changed notifications into tones:
// the error tone when the active file has errors, otherwise the warning tone
// when it has warnings. Bursts are rate-limited.
package diagnostics

import (
	"fmt"
	"sync"
	"time"

	"earshot/internal/debounce"
	"earshot/internal/feedback"
	"earshot/internal/logging"
	"earshot/internal/source"
)

// Severity uses the language server protocol's numbering.
type Severity int

const (
	SeverityError       Severity = 1
	SeverityWarning     Severity = 2
	SeverityInformation Severity = 3
	SeverityHint        Severity = 4
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInformation:
		return "information"
	case SeverityHint:
		return "hint"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Diagnostic is one problem reported for a document.
type Diagnostic struct {
	Line     int
	Severity Severity
	Message  string
	Source   string
}

// Source supplies diagnostics and change notifications.
type Source interface {
	Diagnostics(uri string) []Diagnostic
	OnDiagnostics(fn func(uri string)) (unsubscribe func())
}

// Tones plays a category tone.
type Tones interface {
	Play(cat feedback.Category)
}

// Counts tallies diagnostics by severity.
type Counts struct {
	Errors   int
	Warnings int
	Others   int
}

// Count tallies diags.
func Count(diags []Diagnostic) Counts {
	var c Counts
	for _, d := range diags {
		switch d.Severity {
		case SeverityError:
			c.Errors++
		case SeverityWarning:
			c.Warnings++
		default:
			c.Others++
		}
	}
	return c
}

// Monitor plays diagnostic tones for the active document.
type Monitor struct {
	source    Source
	tones     Tones
	announcer feedback.Announcer
	limiter   *debounce.Debouncer

	mu          sync.Mutex
	active      string
	changedURI  string
	unsubscribe func()
}

// NewMonitor subscribes to source. interval bounds how often a tone plays.
func NewMonitor(src Source, tones Tones, announcer feedback.Announcer, interval time.Duration) *Monitor {
	m := &Monitor{source: src, tones: tones, announcer: announcer}
	m.limiter = debounce.New(interval, m.sound)
	m.unsubscribe = src.OnDiagnostics(m.changed)
	return m
}

// SetActive selects the document whose diagnostics produce tones.
func (m *Monitor) SetActive(uri string) {
	m.mu.Lock()
	m.active = uri
	m.mu.Unlock()
}

// SetInterval changes the rate limit.
func (m *Monitor) SetInterval(interval time.Duration) {
	m.limiter.SetInterval(interval)
}

func (m *Monitor) changed(uri string) {
	m.mu.Lock()
	relevant := m.active != "" && source.Path(uri) == source.Path(m.active)
	if relevant {
		m.changedURI = uri
	}
	m.mu.Unlock()
	if !relevant {
		return
	}
	if !m.limiter.Trigger() {
		logging.Diagnostics("diagnostics tone for %s suppressed by rate limit", uri)
	}
}

func (m *Monitor) sound() {
	m.mu.Lock()
	uri := m.changedURI
	m.mu.Unlock()

	c := Count(m.source.Diagnostics(uri))
	switch {
	case c.Errors > 0:
		m.tones.Play(feedback.CategoryError)
	case c.Warnings > 0:
		m.tones.Play(feedback.CategoryWarning)
	}
}

// Summary announces the diagnostic counts for uri and returns the text.
func (m *Monitor) Summary(uri string) string {
	c := Count(m.source.Diagnostics(uri))
	var msg string
	if c.Errors == 0 && c.Warnings == 0 {
		msg = "No errors or warnings"
	} else {
		msg = fmt.Sprintf("%d %s, %d %s", c.Errors, plural(c.Errors, "error"), c.Warnings, plural(c.Warnings, "warning"))
	}
	m.announcer.Info(msg)
	return msg
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

// Close stops listening.
func (m *Monitor) Close() {
	m.unsubscribe()
}
