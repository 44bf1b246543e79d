// Package decoration computes per-line talkpoint annotations for open
// documents and pushes them to a sink.
package decoration

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"earshot/internal/debounce"
	"earshot/internal/logging"
	"earshot/internal/source"
	"earshot/internal/talkpoint"
)

// Decoration annotates one line.
type Decoration struct {
	URI   string
	Line  int
	Label string
}

// Sink displays the decorations of a document, replacing earlier ones.
type Sink interface {
	Render(uri string, decorations []Decoration)
}

// Talkpoints lists the talkpoint store.
type Talkpoints interface {
	List() []talkpoint.Talkpoint
}

// Label is the gutter text for tp.
func Label(tp talkpoint.Talkpoint) string {
	var label string
	switch a := tp.Action.(type) {
	case talkpoint.Tonal:
		label = "tone"
		if a.Sound != "" {
			label = "tone: " + a.Sound
		}
	case talkpoint.Text:
		label = "say: " + a.Text
	case talkpoint.Expression:
		label = "eval: " + a.Expression
	default:
		label = fmt.Sprintf("unknown: %s", tp.KindName())
	}
	if tp.ShouldContinue {
		label += " (continue)"
	}
	return label
}

// Compute returns the decorations of uri ordered by line.
func Compute(tps []talkpoint.Talkpoint, uri string) []Decoration {
	path := source.Path(uri)
	var out []Decoration
	for _, tp := range tps {
		if tp.Location().Path() != path {
			continue
		}
		out = append(out, Decoration{URI: uri, Line: tp.Position.Line, Label: Label(tp)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Line < out[j].Line })
	return out
}

// Renderer redraws open documents. Talkpoint changes redraw every open
// document at once; document edits are debounced per document.
type Renderer struct {
	talkpoints Talkpoints
	sink       Sink
	edits      *debounce.Keyed

	mu          sync.Mutex
	open        map[string]struct{}
	unsubscribe func()
}

// NewRenderer creates a renderer redrawing on bus's TalkpointsChanged.
func NewRenderer(tps Talkpoints, bus *talkpoint.Bus, sink Sink, interval time.Duration) *Renderer {
	r := &Renderer{talkpoints: tps, sink: sink, open: make(map[string]struct{})}
	r.edits = debounce.NewKeyed(interval, r.Render)
	r.unsubscribe = bus.Subscribe(talkpoint.TalkpointsChanged, r.RenderAll)
	return r
}

// Open starts tracking uri and draws it.
func (r *Renderer) Open(uri string) {
	r.mu.Lock()
	r.open[uri] = struct{}{}
	r.mu.Unlock()
	r.Render(uri)
}

// CloseDocument stops tracking uri.
func (r *Renderer) CloseDocument(uri string) {
	r.mu.Lock()
	delete(r.open, uri)
	r.mu.Unlock()
	r.edits.Forget(uri)
}

// DocumentChanged redraws uri unless it was redrawn for an edit within the
// interval.
func (r *Renderer) DocumentChanged(uri string) {
	r.mu.Lock()
	_, ok := r.open[uri]
	r.mu.Unlock()
	if ok {
		r.edits.Trigger(uri)
	}
}

// SetInterval changes the edit debounce interval, for configuration reloads.
func (r *Renderer) SetInterval(interval time.Duration) {
	r.edits.SetInterval(interval)
}

// Render draws uri now.
func (r *Renderer) Render(uri string) {
	decorations := Compute(r.talkpoints.List(), uri)
	logging.Decoration("rendering %d decorations for %s", len(decorations), uri)
	r.sink.Render(uri, decorations)
}

// RenderAll draws every open document.
func (r *Renderer) RenderAll() {
	r.mu.Lock()
	uris := make([]string, 0, len(r.open))
	for uri := range r.open {
		uris = append(uris, uri)
	}
	r.mu.Unlock()
	sort.Strings(uris)
	for _, uri := range uris {
		r.Render(uri)
	}
}

// Close stops redrawing on talkpoint changes.
func (r *Renderer) Close() {
	r.unsubscribe()
}
