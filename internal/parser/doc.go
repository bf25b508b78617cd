// Package parser turns source text into a language-independent syntax tree.
//
// Grammars come from tree-sitter (Go, Python, JavaScript, TypeScript, TSX,
// Java, Rust, C, C++, Ruby, Bash). Markdown is parsed with goldmark into a
// tree of heading sections.
//
// # Basic Usage
//
//	p := parser.New()
//	tree, err := p.Parse(ctx, src, parser.LanguageForPath("main.go"))
//	if errors.Is(err, parser.ErrUnsupportedLanguage) {
//	    // use a plain text splitter instead
//	}
//
//	for _, n := range tree.Root.Children {
//	    fmt.Printf("%s lines %d-%d\n", n.Type, n.StartLine+1, n.EndLine+1)
//	}
//
// Node line numbers are 0-based and inclusive. Only named tree-sitter nodes
// are kept, so punctuation tokens do not appear as children.
package parser
