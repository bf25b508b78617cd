package parser

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/bash"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/ruby"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Language identifiers
const (
	LangGo         = "go"
	LangPython     = "python"
	LangJavaScript = "javascript"
	LangTypeScript = "typescript"
	LangTSX        = "tsx"
	LangJava       = "java"
	LangRust       = "rust"
	LangC          = "c"
	LangCPP        = "cpp"
	LangRuby       = "ruby"
	LangBash       = "bash"
	LangMarkdown   = "markdown"
	LangText       = "text"
)

// extension (with dot) -> language id. Languages without a grammar are
// listed too so chunks carry a meaningful language.
var extensionLanguages = map[string]string{
	".go":       LangGo,
	".py":       LangPython,
	".js":       LangJavaScript,
	".jsx":      LangJavaScript,
	".mjs":      LangJavaScript,
	".cjs":      LangJavaScript,
	".ts":       LangTypeScript,
	".mts":      LangTypeScript,
	".tsx":      LangTSX,
	".java":     LangJava,
	".rs":       LangRust,
	".c":        LangC,
	".h":        LangC,
	".cc":       LangCPP,
	".cpp":      LangCPP,
	".cxx":      LangCPP,
	".hpp":      LangCPP,
	".rb":       LangRuby,
	".sh":       LangBash,
	".bash":     LangBash,
	".md":       LangMarkdown,
	".markdown": LangMarkdown,
	".kt":       "kotlin",
	".swift":    "swift",
	".php":      "php",
	".cs":       "csharp",
	".scala":    "scala",
	".sql":      "sql",
	".proto":    "protobuf",
	".yaml":     "yaml",
	".yml":      "yaml",
	".toml":     "toml",
	".json":     "json",
	".txt":      LangText,
	".rst":      LangText,
}

// LanguageForPath maps a file path to a language id by extension.
// Unknown extensions map to "text".
func LanguageForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extensionLanguages[ext]; ok {
		return lang
	}
	return LangText
}

// KnownExtensions returns every extension LanguageForPath recognizes
func KnownExtensions() []string {
	exts := make([]string, 0, len(extensionLanguages))
	for ext := range extensionLanguages {
		exts = append(exts, ext)
	}
	return exts
}

// Registry maps language ids to tree-sitter grammars.
type Registry struct {
	mu       sync.RWMutex
	grammars map[string]*sitter.Language
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{grammars: make(map[string]*sitter.Language)}
}

// Register adds a grammar under the given language id.
func (r *Registry) Register(languageID string, lang *sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grammars[languageID] = lang
}

// Grammar returns the grammar for languageID, or nil.
func (r *Registry) Grammar(languageID string) *sitter.Language {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.grammars[languageID]
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the registry with all bundled grammars
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		r := NewRegistry()
		r.Register(LangGo, golang.GetLanguage())
		r.Register(LangPython, python.GetLanguage())
		r.Register(LangJavaScript, javascript.GetLanguage())
		r.Register(LangTypeScript, typescript.GetLanguage())
		r.Register(LangTSX, tsx.GetLanguage())
		r.Register(LangJava, java.GetLanguage())
		r.Register(LangRust, rust.GetLanguage())
		r.Register(LangC, c.GetLanguage())
		r.Register(LangCPP, cpp.GetLanguage())
		r.Register(LangRuby, ruby.GetLanguage())
		r.Register(LangBash, bash.GetLanguage())
		defaultRegistry = r
	})
	return defaultRegistry
}
