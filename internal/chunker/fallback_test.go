package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindows_Empty(t *testing.T) {
	f := NewFallbackSplitter()
	assert.Empty(t, f.Windows("", 10, 2))
	assert.Empty(t, f.Windows("abc", 0, 0))
}

func TestWindows_RawOffsets(t *testing.T) {
	f := &FallbackSplitter{}
	content := strings.Repeat("a", 25)

	windows := f.Windows(content, 10, 3)

	require.Equal(t, []Window{{0, 10}, {7, 17}, {14, 24}, {21, 25}}, windows)
}

func TestWindows_PreserveLines(t *testing.T) {
	f := NewFallbackSplitter()
	// four lines of 9 bytes including the newline
	content := "aaaaaaaa\nbbbbbbbb\ncccccccc\ndddddddd\n"

	windows := f.Windows(content, 20, 9)

	require.NotEmpty(t, windows)
	for _, w := range windows {
		assert.LessOrEqual(t, w.End-w.Start, 20)
		assert.True(t, w.Start == 0 || content[w.Start-1] == '\n', "window %v starts mid-line", w)
		assert.True(t, w.End == len(content) || content[w.End-1] == '\n', "window %v ends mid-line", w)
	}
	assert.Equal(t, Window{0, 18}, windows[0])
	assert.Equal(t, Window{9, 27}, windows[1])
	assert.Equal(t, len(content), windows[len(windows)-1].End)
}

func TestWindows_LongLineIsCut(t *testing.T) {
	f := NewFallbackSplitter()
	content := strings.Repeat("x", 30) + "\nshort\n"

	windows := f.Windows(content, 10, 0)

	require.GreaterOrEqual(t, len(windows), 4)
	assert.Equal(t, Window{0, 10}, windows[0])
	assert.Equal(t, Window{10, 20}, windows[1])
}

func TestWindows_UTF8Boundary(t *testing.T) {
	f := NewFallbackSplitter()
	content := strings.Repeat("é", 10) // 20 bytes, no newlines

	for _, w := range f.Windows(content, 5, 0) {
		assert.True(t, strings.HasPrefix(content[w.Start:], "é"))
	}
}

func TestWindows_Terminates(t *testing.T) {
	f := NewFallbackSplitter()
	content := strings.Repeat("line of text\n", 200)

	windows := f.Windows(content, 100, 99)
	require.NotEmpty(t, windows)
	for i := 1; i < len(windows); i++ {
		assert.Greater(t, windows[i].Start, windows[i-1].Start)
	}
}

func TestFallbackSplit_Chunks(t *testing.T) {
	f := NewFallbackSplitter()
	var b strings.Builder
	for i := 0; i < 10; i++ {
		b.WriteString("0123456789\n")
	}

	chunks := f.Split("notes.txt", "text", b.String(), 33, 11)

	require.NotEmpty(t, chunks)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 3, chunks[0].EndLine)
	assert.Equal(t, 3, chunks[1].StartLine)
	assert.Equal(t, 10, chunks[len(chunks)-1].EndLine)
	for _, c := range chunks {
		assert.Equal(t, "fallback", c.Metadata["splitter"])
		assert.False(t, strings.HasSuffix(c.Content, "\n"))
		require.NoError(t, c.Validate())
	}

	again := f.Split("notes.txt", "text", b.String(), 33, 11)
	assert.Equal(t, chunks, again)
}
