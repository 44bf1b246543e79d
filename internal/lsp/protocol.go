package lsp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"earshot/internal/diagnostics"
	"earshot/internal/logging"
	"earshot/internal/navigation"
	"earshot/internal/source"

	"github.com/tidwall/gjson"
)

// Initialize performs the initialize handshake for a workspace root.
func (c *Client) Initialize(ctx context.Context, rootPath string) error {
	params := map[string]any{
		"processId": os.Getpid(),
		"rootUri":   source.FileURI(rootPath),
		"clientInfo": map[string]string{
			"name": "earshot",
		},
		"capabilities": map[string]any{
			"textDocument": map[string]any{
				"documentSymbol": map[string]any{
					"hierarchicalDocumentSymbolSupport": true,
				},
				"publishDiagnostics": map[string]any{},
			},
		},
	}
	result, err := c.call(ctx, "initialize", params)
	if err != nil {
		return err
	}
	logging.LSP("language server initialized: %s", result.Get("serverInfo.name").String())
	return c.notify("initialized", map[string]any{})
}

// DidOpen announces an opened document.
func (c *Client) DidOpen(uri, languageID, text string) error {
	c.mu.Lock()
	c.version[uri] = 1
	c.mu.Unlock()
	return c.notify("textDocument/didOpen", map[string]any{
		"textDocument": map[string]any{
			"uri":        uri,
			"languageId": languageID,
			"version":    1,
			"text":       text,
		},
	})
}

// DidChange sends the full new text of an open document.
func (c *Client) DidChange(uri, text string) error {
	c.mu.Lock()
	c.version[uri]++
	v := c.version[uri]
	c.mu.Unlock()
	return c.notify("textDocument/didChange", map[string]any{
		"textDocument":   map[string]any{"uri": uri, "version": v},
		"contentChanges": []map[string]string{{"text": text}},
	})
}

// DocumentSymbols returns the symbol tree of an open document. Servers that
// answer with flat SymbolInformation lists get their tree rebuilt from range
// containment.
func (c *Client) DocumentSymbols(ctx context.Context, uri string) ([]navigation.Symbol, error) {
	result, err := c.call(ctx, "textDocument/documentSymbol", map[string]any{
		"textDocument": map[string]string{"uri": uri},
	})
	if err != nil {
		return nil, err
	}
	items := result.Array()
	if len(items) == 0 {
		return nil, nil
	}
	if items[0].Get("location").Exists() {
		return nest(flatSymbols(items)), nil
	}
	return treeSymbols(items), nil
}

func treeSymbols(items []gjson.Result) []navigation.Symbol {
	out := make([]navigation.Symbol, 0, len(items))
	for _, it := range items {
		out = append(out, navigation.Symbol{
			Name: it.Get("name").String(),
			Kind: navigation.SymbolKind(it.Get("kind").Int()),
			Range: navigation.Range{
				StartLine: int(it.Get("range.start.line").Int()),
				EndLine:   int(it.Get("range.end.line").Int()),
			},
			Children: treeSymbols(it.Get("children").Array()),
		})
	}
	return out
}

func flatSymbols(items []gjson.Result) []navigation.Symbol {
	out := make([]navigation.Symbol, 0, len(items))
	for _, it := range items {
		out = append(out, navigation.Symbol{
			Name: it.Get("name").String(),
			Kind: navigation.SymbolKind(it.Get("kind").Int()),
			Range: navigation.Range{
				StartLine: int(it.Get("location.range.start.line").Int()),
				EndLine:   int(it.Get("location.range.end.line").Int()),
			},
		})
	}
	return out
}

// nest builds a tree from flat symbols: each symbol becomes a child of the
// nearest preceding symbol whose range contains it.
func nest(flat []navigation.Symbol) []navigation.Symbol {
	sort.SliceStable(flat, func(i, j int) bool {
		if flat[i].Range.StartLine != flat[j].Range.StartLine {
			return flat[i].Range.StartLine < flat[j].Range.StartLine
		}
		return flat[i].Range.EndLine > flat[j].Range.EndLine
	})

	type node struct {
		sym      navigation.Symbol
		children []*node
	}
	var roots []*node
	var stack []*node
	for _, s := range flat {
		n := &node{sym: s}
		for len(stack) > 0 {
			top := stack[len(stack)-1].sym.Range
			if top.Contains(s.Range.StartLine) && top.Contains(s.Range.EndLine) {
				break
			}
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			roots = append(roots, n)
		} else {
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, n)
		}
		stack = append(stack, n)
	}

	var build func(nodes []*node) []navigation.Symbol
	build = func(nodes []*node) []navigation.Symbol {
		if len(nodes) == 0 {
			return nil
		}
		out := make([]navigation.Symbol, len(nodes))
		for i, n := range nodes {
			out[i] = n.sym
			out[i].Children = build(n.children)
		}
		return out
	}
	return build(roots)
}

// Shutdown asks the server to exit and closes the connection.
func (c *Client) Shutdown(ctx context.Context) error {
	_, err := c.call(ctx, "shutdown", nil)
	if err != nil && !errors.Is(err, ErrNotConnected) {
		err = fmt.Errorf("shutdown: %w", err)
	} else {
		err = nil
		_ = c.notify("exit", nil)
	}
	if cerr := c.Close(); err == nil {
		err = cerr
	}
	return err
}

var (
	_ navigation.SymbolProvider = (*Client)(nil)
	_ diagnostics.Source        = (*Client)(nil)
)
