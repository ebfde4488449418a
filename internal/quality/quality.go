// Package quality validates generated artifacts before they are accepted.
// Plans and TRDs pass through unvalidated; diagrams and backlogs must clear
// structural checks or the stage falls back to deterministic synthesis.
package quality

import (
	"fmt"
	"regexp"

	"github.com/fyrsmithlabs/blueprintd/internal/artifact"
)

// minDiagramLength rejects trivially small diagrams that render as a single
// floating node.
const minDiagramLength = 100

// The direction token must sit on the same line as the flowchart keyword.
var flowchartHeader = regexp.MustCompile(`(?m)^[ \t]*flowchart[ \t]+\w+`)

// Verdict is the result of validating one artifact.
type Verdict struct {
	Valid   bool
	Reasons []string
}

// Ok returns a passing verdict.
func Ok() Verdict {
	return Verdict{Valid: true}
}

func failed(reasons ...string) Verdict {
	return Verdict{Reasons: reasons}
}

// ValidateDiagram checks extracted Mermaid source: it must declare a
// flowchart with a direction and carry enough body to be a real diagram.
func ValidateDiagram(mermaid string) Verdict {
	var reasons []string
	if !flowchartHeader.MatchString(mermaid) {
		reasons = append(reasons, "missing flowchart declaration with direction")
	}
	if len(mermaid) < minDiagramLength {
		reasons = append(reasons, fmt.Sprintf("diagram body too short: %d chars (min %d)", len(mermaid), minDiagramLength))
	}
	if len(reasons) > 0 {
		return failed(reasons...)
	}
	return Ok()
}

// ValidateBacklog checks the typed tree: at least one epic and at least one
// leaf story, so the backlog is both structured and actionable.
func ValidateBacklog(b *artifact.Backlog) Verdict {
	if b == nil || len(b.Items) == 0 {
		return failed("backlog is empty")
	}
	var reasons []string
	if b.CountByKind()[artifact.KindEpic] == 0 {
		reasons = append(reasons, "backlog has no epics")
	}
	if b.LeafStories() == 0 {
		reasons = append(reasons, "backlog has no leaf stories")
	}
	if len(reasons) > 0 {
		return failed(reasons...)
	}
	return Ok()
}
