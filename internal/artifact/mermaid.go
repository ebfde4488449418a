package artifact

import "strings"

// DiagramKind distinguishes the two architecture diagrams.
type DiagramKind string

const (
	DiagramHLD DiagramKind = "hld"
	DiagramLLD DiagramKind = "lld"
)

// Diagram is a Mermaid architecture diagram.
type Diagram struct {
	Kind    DiagramKind `json:"kind"`
	Mermaid string      `json:"mermaid"`
}

// ExtractMermaid pulls Mermaid source out of backend response text. It
// prefers a ```mermaid fenced block, falls back to any fenced block, and
// finally returns the trimmed text itself.
func ExtractMermaid(text string) string {
	if block, ok := fencedBlock(text, "```mermaid"); ok {
		return block
	}
	if block, ok := fencedBlock(text, "```"); ok {
		return block
	}
	return strings.TrimSpace(text)
}

func fencedBlock(text, opener string) (string, bool) {
	start := strings.Index(text, opener)
	if start < 0 {
		return "", false
	}
	rest := text[start+len(opener):]
	// Skip to end of the opener line (handles ```mermaid\n and bare ```\n).
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return strings.TrimSpace(rest), true
	}
	return strings.TrimSpace(rest[:end]), true
}
