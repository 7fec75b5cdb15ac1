package project

import (
	"path"
	"strings"

	"github.com/samber/lo"
)

// Artifact is one generated file of the codebase.
type Artifact struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

// Artifacts is an insertion-ordered set of artifacts keyed by path.
type Artifacts []Artifact

var languageByExt = map[string]string{
	".js":   "javascript",
	".jsx":  "javascript",
	".mjs":  "javascript",
	".cjs":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".json": "json",
	".go":   "go",
	".py":   "python",
	".md":   "markdown",
	".css":  "css",
	".scss": "scss",
	".html": "html",
	".yml":  "yaml",
	".yaml": "yaml",
	".sh":   "shell",
	".sql":  "sql",
	".env":  "dotenv",
}

// LanguageFor infers the editor language from a file path.
func LanguageFor(p string) string {
	base := path.Base(p)
	if strings.EqualFold(base, "Dockerfile") {
		return "dockerfile"
	}
	if strings.HasPrefix(base, ".env") {
		return "dotenv"
	}
	if lang, ok := languageByExt[strings.ToLower(path.Ext(base))]; ok {
		return lang
	}
	return "plaintext"
}

func (a Artifacts) indexOf(p string) int {
	for i := range a {
		if a[i].Path == p {
			return i
		}
	}
	return -1
}

// Upsert replaces the content of p in place, or appends p at the end.
// It reports whether a new entry was created.
func (a *Artifacts) Upsert(p, content string) bool {
	if i := a.indexOf(p); i >= 0 {
		(*a)[i].Content = content
		return false
	}
	*a = append(*a, Artifact{Path: p, Content: content, Language: LanguageFor(p)})
	return true
}

// Get returns the artifact stored at p.
func (a Artifacts) Get(p string) (Artifact, bool) {
	if i := a.indexOf(p); i >= 0 {
		return a[i], true
	}
	return Artifact{}, false
}

// Paths returns the artifact paths in insertion order.
func (a Artifacts) Paths() []string {
	return lo.Map(a, func(art Artifact, _ int) string { return art.Path })
}

// Clone returns a value copy sharing no backing array with a.
func (a Artifacts) Clone() Artifacts {
	if a == nil {
		return Artifacts{}
	}
	out := make(Artifacts, len(a))
	copy(out, a)
	return out
}
