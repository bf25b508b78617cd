package parser

import (
	"sort"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

type mdBlock struct {
	node  *Node
	level int // heading level, 0 for other blocks
}

// parseMarkdown builds a tree of top-level blocks. Each heading opens a
// "section" node holding everything up to the next heading of the same or
// higher level.
func parseMarkdown(src []byte) *Node {
	idx := newLineIndex(src)
	root := &Node{Type: "document", StartLine: 0, EndLine: idx.lastLine()}

	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var blocks []mdBlock
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		start, stop, ok := blockSpan(n)
		if !ok {
			continue
		}
		b := mdBlock{node: &Node{
			Type:      n.Kind().String(),
			StartLine: idx.line(start),
			EndLine:   idx.line(stop - 1),
		}}
		if h, ok := n.(*ast.Heading); ok {
			b.level = h.Level
		}
		blocks = append(blocks, b)
	}

	root.Children = sectionize(blocks)
	return root
}

// blockSpan returns the byte range covered by a block and its descendants.
func blockSpan(n ast.Node) (start, stop int, ok bool) {
	start = -1
	add := func(seg text.Segment) {
		if seg.Stop <= seg.Start {
			return
		}
		if start < 0 || seg.Start < start {
			start = seg.Start
		}
		if seg.Stop > stop {
			stop = seg.Stop
		}
	}
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || c.Type() != ast.TypeBlock {
			return ast.WalkContinue, nil
		}
		lines := c.Lines()
		for i := 0; i < lines.Len(); i++ {
			add(lines.At(i))
		}
		if fc, ok := c.(*ast.FencedCodeBlock); ok && fc.Info != nil {
			add(fc.Info.Segment)
		}
		return ast.WalkContinue, nil
	})
	return start, stop, start >= 0
}

func sectionize(blocks []mdBlock) []*Node {
	var out []*Node
	for i := 0; i < len(blocks); {
		b := blocks[i]
		if b.level == 0 {
			out = append(out, b.node)
			i++
			continue
		}
		j := i + 1
		for j < len(blocks) && (blocks[j].level == 0 || blocks[j].level > b.level) {
			j++
		}
		sec := &Node{
			Type:      "section",
			StartLine: b.node.StartLine,
			EndLine:   blocks[j-1].node.EndLine,
		}
		sec.Children = append([]*Node{b.node}, sectionize(blocks[i+1:j])...)
		out = append(out, sec)
		i = j
	}
	return out
}

// lineIndex maps byte offsets to 0-based line numbers
type lineIndex struct {
	starts []int
}

func newLineIndex(src []byte) lineIndex {
	starts := []int{0}
	for i, b := range src {
		if b == '\n' && i+1 < len(src) {
			starts = append(starts, i+1)
		}
	}
	return lineIndex{starts: starts}
}

func (l lineIndex) line(offset int) int {
	return sort.SearchInts(l.starts, offset+1) - 1
}

func (l lineIndex) lastLine() int {
	return len(l.starts) - 1
}
