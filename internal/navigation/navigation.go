// Package navigation answers structural questions about a document (its
// functions, the symbols enclosing a line) from a hierarchical symbol
// provider such as a language server.
package navigation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"earshot/internal/logging"
)

// ErrNotFound is returned when no symbol answers the query.
var ErrNotFound = errors.New("symbol not found")

// SymbolKind uses the language server protocol's numbering.
type SymbolKind int

const (
	KindFile        SymbolKind = 1
	KindModule      SymbolKind = 2
	KindNamespace   SymbolKind = 3
	KindPackage     SymbolKind = 4
	KindClass       SymbolKind = 5
	KindMethod      SymbolKind = 6
	KindProperty    SymbolKind = 7
	KindField       SymbolKind = 8
	KindConstructor SymbolKind = 9
	KindEnum        SymbolKind = 10
	KindInterface   SymbolKind = 11
	KindFunction    SymbolKind = 12
	KindVariable    SymbolKind = 13
	KindConstant    SymbolKind = 14
	KindStruct      SymbolKind = 23
)

var kindNames = map[SymbolKind]string{
	KindFile:        "file",
	KindModule:      "module",
	KindNamespace:   "namespace",
	KindPackage:     "package",
	KindClass:       "class",
	KindMethod:      "method",
	KindProperty:    "property",
	KindField:       "field",
	KindConstructor: "constructor",
	KindEnum:        "enum",
	KindInterface:   "interface",
	KindFunction:    "function",
	KindVariable:    "variable",
	KindConstant:    "constant",
	KindStruct:      "struct",
}

func (k SymbolKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsCallable reports whether symbols of this kind are listed as functions.
func (k SymbolKind) IsCallable() bool {
	return k == KindFunction || k == KindMethod || k == KindConstructor
}

// Range spans 0-based lines, end inclusive.
type Range struct {
	StartLine int
	EndLine   int
}

// Contains reports whether line falls inside the range.
func (r Range) Contains(line int) bool {
	return line >= r.StartLine && line <= r.EndLine
}

// Symbol is a named range with children.
type Symbol struct {
	Name     string
	Kind     SymbolKind
	Range    Range
	Children []Symbol
}

// SymbolProvider returns the symbol tree of a document.
type SymbolProvider interface {
	DocumentSymbols(ctx context.Context, uri string) ([]Symbol, error)
}

// Entry is a function in a document listing.
type Entry struct {
	Name  string
	Kind  SymbolKind
	Line  int
	Depth int
}

// DisplayLine is the 1-based line shown to users.
func (e Entry) DisplayLine() int { return e.Line + 1 }

func (e Entry) String() string {
	return fmt.Sprintf("%s%s %s, line %d", strings.Repeat("  ", e.Depth), e.Kind, e.Name, e.DisplayLine())
}

// Navigator answers navigation queries.
type Navigator struct {
	provider SymbolProvider
}

// New creates a navigator over provider.
func New(provider SymbolProvider) *Navigator {
	return &Navigator{provider: provider}
}

// Functions lists every function, method and constructor in document order.
// Depth counts enclosing symbols of any kind.
func (n *Navigator) Functions(ctx context.Context, uri string) ([]Entry, error) {
	symbols, err := n.provider.DocumentSymbols(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to get symbols for %s: %w", uri, err)
	}
	var out []Entry
	var walk func(syms []Symbol, depth int)
	walk = func(syms []Symbol, depth int) {
		for _, s := range syms {
			if s.Kind.IsCallable() {
				out = append(out, Entry{Name: s.Name, Kind: s.Kind, Line: s.Range.StartLine, Depth: depth})
			}
			walk(s.Children, depth+1)
		}
	}
	walk(symbols, 0)
	logging.Navigation("listed %d functions in %s", len(out), uri)
	return out, nil
}

// Context returns the symbols enclosing line, outermost first.
func (n *Navigator) Context(ctx context.Context, uri string, line int) ([]Symbol, error) {
	symbols, err := n.provider.DocumentSymbols(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to get symbols for %s: %w", uri, err)
	}
	return enclosing(symbols, line), nil
}

// Parent returns the symbol enclosing the innermost symbol at line.
func (n *Navigator) Parent(ctx context.Context, uri string, line int) (Symbol, error) {
	chain, err := n.Context(ctx, uri, line)
	if err != nil {
		return Symbol{}, err
	}
	if len(chain) < 2 {
		return Symbol{}, fmt.Errorf("no parent at line %d: %w", line+1, ErrNotFound)
	}
	return chain[len(chain)-2], nil
}

// FunctionEntry finds the first callable named name.
func (n *Navigator) FunctionEntry(ctx context.Context, uri, name string) (Entry, error) {
	entries, err := n.Functions(ctx, uri)
	if err != nil {
		return Entry{}, err
	}
	for _, e := range entries {
		if e.Name == name {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("function %q: %w", name, ErrNotFound)
}

// DescribeContext renders a chain for announcement, e.g.
// "class Server, method handle".
func DescribeContext(chain []Symbol) string {
	if len(chain) == 0 {
		return "top level"
	}
	parts := make([]string, len(chain))
	for i, s := range chain {
		parts[i] = fmt.Sprintf("%s %s", s.Kind, s.Name)
	}
	return strings.Join(parts, ", ")
}

func enclosing(symbols []Symbol, line int) []Symbol {
	for _, s := range symbols {
		if s.Range.Contains(line) {
			return append([]Symbol{s}, enclosing(s.Children, line)...)
		}
	}
	return nil
}
