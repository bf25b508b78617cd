package parser

import (
	"context"
	"errors"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// ErrUnsupportedLanguage is returned when no grammar is registered for a language.
// It is not fatal: callers fall back to plain text splitting.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Node is a language-independent view of one syntax node.
// Line numbers are 0-based and inclusive.
type Node struct {
	Type      string
	StartLine int
	EndLine   int
	Children  []*Node
}

// Lines returns the number of lines the node spans
func (n *Node) Lines() int {
	return n.EndLine - n.StartLine + 1
}

// Tree is the result of parsing one file
type Tree struct {
	Language string
	Root     *Node
}

// Parser turns source text into a syntax tree. It is safe for concurrent use;
// each call gets its own tree-sitter parser.
type Parser struct {
	registry *Registry
}

// New creates a Parser backed by the default grammar registry
func New() *Parser {
	return &Parser{registry: DefaultRegistry()}
}

// NewWithRegistry creates a Parser backed by the given registry
func NewWithRegistry(r *Registry) *Parser {
	return &Parser{registry: r}
}

// Supports reports whether a grammar exists for languageID
func (p *Parser) Supports(languageID string) bool {
	return languageID == LangMarkdown || p.registry.Grammar(languageID) != nil
}

// Parse parses content using the grammar registered for languageID.
func (p *Parser) Parse(ctx context.Context, content []byte, languageID string) (*Tree, error) {
	if languageID == LangMarkdown {
		return &Tree{Language: languageID, Root: parseMarkdown(content)}, nil
	}

	lang := p.registry.Grammar(languageID)
	if lang == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, languageID)
	}

	sp := sitter.NewParser()
	defer sp.Close()
	sp.SetLanguage(lang)

	tree, err := sp.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", languageID, err)
	}
	defer tree.Close()

	return &Tree{Language: languageID, Root: convert(tree.RootNode())}, nil
}

// convert copies a tree-sitter node and its named descendants.
func convert(n *sitter.Node) *Node {
	out := &Node{
		Type:      n.Type(),
		StartLine: int(n.StartPoint().Row),
		EndLine:   endLine(n),
	}
	count := int(n.NamedChildCount())
	if count > 0 {
		out.Children = make([]*Node, 0, count)
	}
	for i := 0; i < count; i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}
		out.Children = append(out.Children, convert(child))
	}
	return out
}

// endLine returns the last row that holds content of the node. A node whose
// end point sits at column 0 ends on the previous row.
func endLine(n *sitter.Node) int {
	start, end := n.StartPoint(), n.EndPoint()
	if end.Column == 0 && end.Row > start.Row {
		return int(end.Row) - 1
	}
	return int(end.Row)
}
