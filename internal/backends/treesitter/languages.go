package treesitter

// grammar names, also used as the parser language key
const (
	grammarGo         = "go"
	grammarJavaScript = "javascript"
	grammarTypeScript = "typescript"
	grammarTSX        = "tsx"
	grammarPython     = "python"
	grammarRust       = "rust"
	grammarJava       = "java"
	grammarKotlin     = "kotlin"
)

var languageGrammars = map[string]string{
	"go":              grammarGo,
	"javascript":      grammarJavaScript,
	"javascriptreact": grammarJavaScript,
	"typescript":      grammarTypeScript,
	"typescriptreact": grammarTSX,
	"python":          grammarPython,
	"rust":            grammarRust,
	"java":            grammarJava,
	"kotlin":          grammarKotlin,
}

// grammarFor returns the grammar for an LSP language id, or "".
func grammarFor(languageID string) string {
	return languageGrammars[languageID]
}
