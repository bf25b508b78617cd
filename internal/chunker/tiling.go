package chunker

import (
	"strings"

	"github.com/dshills/semindex/internal/parser"
)

// piece is an atomic run of text that is never split further.
// Line numbers are 0-based and inclusive.
type piece struct {
	start    int
	end      int
	text     string
	partial  bool // starts or ends mid-line
	nodeType string
	fallback bool
}

// unit is a group of sibling nodes whose line ranges touch
type unit struct {
	start int
	end   int
	nodes []*parser.Node
}

type tiler struct {
	lines    []string
	max      int
	fallback *FallbackSplitter
}

// tile covers the lines [lo, hi] with pieces no larger than max.
//
// The sibling nodes define unit boundaries: lines before a unit belong to it
// and lines after the last unit belong to the last one. A unit over the limit
// is tiled again using its children; a unit with no children is cut by the
// fallback splitter.
func (t *tiler) tile(nodes []*parser.Node, lo, hi int, out []piece) []piece {
	units := mergeUnits(nodes, lo, hi)
	if len(units) == 0 {
		text := t.join(lo, hi)
		if len(text) <= t.max {
			return append(out, piece{start: lo, end: hi, text: text})
		}
		return t.cut(lo, hi, out)
	}

	prev := lo - 1
	for i, u := range units {
		start, end := prev+1, u.end
		if i == len(units)-1 {
			end = hi
		}
		prev = end

		text := t.join(start, end)
		if len(text) <= t.max {
			out = append(out, piece{start: start, end: end, text: text, nodeType: u.nodes[0].Type})
			continue
		}
		out = t.tile(children(u.nodes), start, end, out)
	}
	return out
}

// cut hands the span to the fallback splitter without overlap
func (t *tiler) cut(lo, hi int, out []piece) []piece {
	text := t.join(lo, hi)
	for _, w := range t.fallback.Windows(text, t.max, 0) {
		seg := strings.TrimSuffix(text[w.Start:w.End], "\n")
		if seg == "" {
			continue
		}
		start := lo + strings.Count(text[:w.Start], "\n")
		p := piece{
			start:    start,
			end:      start + strings.Count(seg, "\n"),
			text:     seg,
			fallback: true,
		}
		atLineStart := w.Start == 0 || text[w.Start-1] == '\n'
		atLineEnd := w.End == len(text) || text[w.End-1] == '\n'
		p.partial = !atLineStart || !atLineEnd
		out = append(out, p)
	}
	return out
}

func (t *tiler) join(lo, hi int) string {
	return strings.Join(t.lines[lo:hi+1], "\n")
}

// mergeUnits clips nodes to [lo, hi] and merges nodes sharing a line.
func mergeUnits(nodes []*parser.Node, lo, hi int) []unit {
	var units []unit
	for _, n := range nodes {
		s, e := max(n.StartLine, lo), min(n.EndLine, hi)
		if s > e {
			continue
		}
		if k := len(units) - 1; k >= 0 && s <= units[k].end {
			units[k].end = max(units[k].end, e)
			units[k].nodes = append(units[k].nodes, n)
			continue
		}
		units = append(units, unit{start: s, end: e, nodes: []*parser.Node{n}})
	}
	return units
}

func children(nodes []*parser.Node) []*parser.Node {
	var out []*parser.Node
	for _, n := range nodes {
		out = append(out, n.Children...)
	}
	return out
}

// body is an accumulated chunk before overlap is applied
type body struct {
	start    int
	end      int
	text     string
	partial  bool
	nodeType string
	fallback bool
}

func (b body) splitter() string {
	if b.fallback {
		return "fallback"
	}
	return "ast"
}

// accumulate packs consecutive whole-line pieces into bodies of at most max
// bytes. Partial pieces always form a body of their own. A trailing body
// shorter than overlap is folded into the one before it, so the last body
// may exceed max by less than overlap.
func accumulate(pieces []piece, max, overlap int) []body {
	var out []body
	var cur *body
	flush := func() {
		if cur != nil {
			out = append(out, *cur)
			cur = nil
		}
	}
	for _, p := range pieces {
		if p.partial {
			flush()
			out = append(out, body{start: p.start, end: p.end, text: p.text, partial: true, fallback: true})
			continue
		}
		if cur != nil && len(cur.text)+1+len(p.text) > max {
			flush()
		}
		if cur == nil {
			cur = &body{start: p.start, end: p.end, text: p.text, nodeType: p.nodeType, fallback: p.fallback}
			continue
		}
		cur.text += "\n" + p.text
		cur.end = p.end
		if cur.nodeType == "" {
			cur.nodeType = p.nodeType
		}
	}
	flush()

	if n := len(out); n >= 2 {
		prev, last := &out[n-2], out[n-1]
		if !prev.partial && !last.partial && prev.end+1 == last.start && len(last.text) < overlap {
			prev.text += "\n" + last.text
			prev.end = last.end
			out = out[:n-1]
		}
	}
	return out
}

// overlapPrefix returns the trailing whole lines of prev that fit in size
// bytes together with the joining newline, and the line they start on.
func overlapPrefix(prev, cur body, lines []string, size int) (string, int) {
	if prev.partial || cur.partial || prev.end >= cur.start {
		return "", cur.start
	}
	// total includes the newline that joins the prefix to the chunk
	total := 0
	from := prev.end + 1
	for l := prev.end; l >= prev.start; l-- {
		if total+len(lines[l])+1 > size {
			break
		}
		total += len(lines[l]) + 1
		from = l
	}
	if from > prev.end {
		return "", cur.start
	}
	return strings.Join(lines[from:prev.end+1], "\n"), from
}
