package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/dshills/semindex/pkg/types"
)

// Window is a byte range [Start, End) of the split content
type Window struct {
	Start int
	End   int
}

// FallbackSplitter cuts text into fixed-size sliding windows. It is used for
// languages without a grammar and for spans no grammar level can break up.
// It holds no state; the zero value is usable.
type FallbackSplitter struct {
	// PreserveLines keeps window boundaries on line breaks whenever a line
	// break exists inside the window.
	PreserveLines bool
}

// NewFallbackSplitter creates a line-preserving fallback splitter
func NewFallbackSplitter() *FallbackSplitter {
	return &FallbackSplitter{PreserveLines: true}
}

// Windows returns the window boundaries for content.
//
// Each window is at most maxChunkSize bytes. The next window starts
// overlapSize bytes before the end of the previous one; in line-preserving
// mode that start is moved forward to the next line start so the overlap
// never exceeds overlapSize. A line longer than maxChunkSize is cut mid-line.
func (f *FallbackSplitter) Windows(content string, maxChunkSize, overlapSize int) []Window {
	n := len(content)
	if n == 0 || maxChunkSize <= 0 {
		return nil
	}
	if overlapSize < 0 || overlapSize >= maxChunkSize {
		overlapSize = 0
	}

	var windows []Window
	pos := 0
	for pos < n {
		end := pos + maxChunkSize
		if end >= n {
			end = n
		} else {
			end = f.cutPoint(content, pos, end)
		}
		windows = append(windows, Window{Start: pos, End: end})
		if end >= n {
			break
		}

		next := end - overlapSize
		if f.PreserveLines && overlapSize > 0 {
			next = nextLineStart(content, next, end)
		}
		if next <= pos {
			next = end
		}
		pos = next
	}
	return windows
}

// cutPoint chooses where a window starting at pos must end, given the hard
// limit end.
func (f *FallbackSplitter) cutPoint(content string, pos, end int) int {
	if f.PreserveLines {
		if i := strings.LastIndexByte(content[pos:end], '\n'); i >= 0 {
			return pos + i + 1
		}
	}
	for end > pos+1 && !utf8.RuneStart(content[end]) {
		end--
	}
	return end
}

// nextLineStart returns the first line start in [from, limit], or limit.
func nextLineStart(content string, from, limit int) int {
	if from <= 0 || content[from-1] == '\n' {
		return from
	}
	if i := strings.IndexByte(content[from:limit], '\n'); i >= 0 {
		return from + i + 1
	}
	return limit
}

// Split cuts content into chunks for relPath. Line numbers are derived from
// the window offsets.
func (f *FallbackSplitter) Split(relPath, language, content string, maxChunkSize, overlapSize int) []types.CodeChunk {
	windows := f.Windows(content, maxChunkSize, overlapSize)
	chunks := make([]types.CodeChunk, 0, len(windows))
	for _, w := range windows {
		text := strings.TrimSuffix(content[w.Start:w.End], "\n")
		if text == "" {
			continue
		}
		start := 1 + strings.Count(content[:w.Start], "\n")
		end := start + strings.Count(text, "\n")
		chunk := types.NewCodeChunk(relPath, text, start, end, language)
		chunk.Metadata = map[string]string{types.MetaSplitter: "fallback"}
		chunks = append(chunks, chunk)
	}
	return chunks
}
