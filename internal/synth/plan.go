package synth

import (
	"strings"

	"github.com/fyrsmithlabs/blueprintd/internal/quality"
)

// PlaceholderTRD marks a TRD stage that failed without a fallback template.
// Downstream consumers key on this exact text.
const PlaceholderTRD = "TRD could not be completed due to API error."

// maxPlanExcerpt bounds how much raw requirement text the fallback plan
// embeds.
const maxPlanExcerpt = 1000

// FallbackPlan synthesizes an implementation plan from requirement text when
// generation fails: domain heading, requirement bullets, the standard phase
// outline, and a bounded excerpt of the source text.
func FallbackPlan(input string) string {
	domain := title(quality.BusinessDomain(input))
	requirements := quality.KeyRequirements(input)

	var b strings.Builder
	b.WriteString("# Implementation Plan: " + domain + " System\n\n")

	b.WriteString("## Key Requirements\n\n")
	if len(requirements) == 0 {
		b.WriteString("- Requirements could not be extracted; review the source document.\n")
	}
	for _, req := range requirements {
		b.WriteString("- " + req + "\n")
	}

	b.WriteString("\n## Phases\n\n")
	b.WriteString("1. **Foundation** - environment setup, data model, authentication.\n")
	b.WriteString("2. **Core Services** - primary business workflows and integrations.\n")
	b.WriteString("3. **Hardening** - error handling, performance, security review.\n")
	b.WriteString("4. **Delivery** - user acceptance testing and rollout.\n")

	excerpt := strings.TrimSpace(input)
	if len(excerpt) > maxPlanExcerpt {
		excerpt = excerpt[:maxPlanExcerpt] + "..."
	}
	if excerpt != "" {
		b.WriteString("\n## Source Requirements (excerpt)\n\n")
		b.WriteString(excerpt + "\n")
	}

	return b.String()
}
