package pipeline

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/blueprintd/internal/genai"
	"github.com/fyrsmithlabs/blueprintd/internal/quality"
	"github.com/fyrsmithlabs/blueprintd/internal/synth"
)

// mermaidStyleBlock pins diagram output to one canonical dialect so the
// validator and renderer see consistent source.
const mermaidStyleBlock = `Diagram rules:
- Output a single Mermaid flowchart starting with "flowchart TD".
- Wrap the diagram in a ` + "```mermaid" + ` fenced code block.
- Use short uppercase node IDs with bracketed labels, e.g. CORE[Core Service].
- Use [(name)] cylinder syntax for data stores.
- Do not use sequence diagrams, class diagrams, or HTML in labels.`

// backlogSchemaBlock is the JSON contract for backlog generation.
const backlogSchemaBlock = `Respond with JSON only, no prose, in exactly this shape:
{
  "backlog": [
    {
      "kind": "epic",
      "title": "...",
      "description": "...",
      "priority": "High",
      "children": [
        {
          "kind": "feature",
          "title": "...",
          "priority": "Medium",
          "children": [
            {
              "kind": "story",
              "title": "As a <role>, I ...",
              "priority": "Medium",
              "acceptance_criteria": ["..."],
              "effort": 3
            }
          ]
        }
      ]
    }
  ]
}
Priority is one of High, Medium, Low.`

// nfrBlock lists the non-functional sections every TRD must cover.
const nfrBlock = `Include a Non-Functional Requirements section covering:
- Performance and scalability targets
- Security and access control
- Availability and disaster recovery
- Auditability and compliance`

// escalate prefixes retry prompts so regeneration attempts demand stricter
// adherence instead of repeating the identical request.
func escalate(attempt int, base string) string {
	if attempt <= 1 {
		return base
	}
	return fmt.Sprintf(
		"RETRY ATTEMPT %d - ENHANCED SPECIFICITY: your previous response failed validation. "+
			"Follow every formatting rule below exactly.\n\n%s", attempt, base)
}

// requirementContext summarizes the source document for prompt grounding:
// detected domain, extracted requirement sentences, and technical
// constraint lines.
func requirementContext(requirements string) string {
	var b strings.Builder
	b.WriteString("Business domain: " + quality.BusinessDomain(requirements) + "\n")
	if key := quality.KeyRequirements(requirements); len(key) > 0 {
		b.WriteString("Key requirements:\n")
		for _, r := range key {
			b.WriteString("- " + r + "\n")
		}
	}
	if constraints := quality.TechnicalConstraints(requirements); len(constraints) > 0 {
		b.WriteString("Technical constraints:\n")
		for _, c := range constraints {
			b.WriteString("- " + c + "\n")
		}
	}
	return b.String()
}

func planPrompt(input Input, attempt int) genai.Request {
	base := fmt.Sprintf(`You are a senior software architect. Produce a phased implementation plan in Markdown for the system described below.

%s
Business requirements document:
%s

Structure the plan as numbered phases with concrete deliverables per phase.`,
		requirementContext(input.Requirements), input.Requirements)

	parts := []genai.Part{genai.TextPart(escalate(attempt, base))}
	for _, img := range input.Images {
		parts = append(parts, genai.ImagePart(img.MIMEType, img.Data))
	}
	return genai.Request{Parts: parts, Stage: StagePlan}
}

func trdPrompt(requirements, plan string, attempt int) genai.Request {
	base := fmt.Sprintf(`You are a senior software architect. Write a Technical Requirements Document in Markdown for the system below, consistent with the implementation plan.

%s
%s

Implementation plan:
%s

Business requirements document:
%s`,
		requirementContext(requirements), nfrBlock, plan, requirements)

	return genai.Request{
		Parts: []genai.Part{genai.TextPart(escalate(attempt, base))},
		Stage: StageTRD,
	}
}

func hldPrompt(requirements string, attempt int) genai.Request {
	base := fmt.Sprintf(`Produce a high-level architecture diagram for the system below: user-facing layers, gateway, core services, data stores, and every external system integration.

%s

%s
Business requirements document:
%s`,
		mermaidStyleBlock, requirementContext(requirements), requirements)

	return genai.Request{
		Parts: []genai.Part{genai.TextPart(escalate(attempt, base))},
		Stage: StageHLD,
	}
}

func lldPrompt(requirements, hldMermaid string, attempt int) genai.Request {
	base := fmt.Sprintf(`Produce a low-level design diagram for the core service in the architecture below: controllers, services, repositories, data tables, validation, and error handling paths.

%s

High-level architecture for reference:
%s

%s
Business requirements document:
%s`,
		mermaidStyleBlock, hldMermaid, requirementContext(requirements), requirements)

	return genai.Request{
		Parts: []genai.Part{genai.TextPart(escalate(attempt, base))},
		Stage: StageLLD,
	}
}

func backlogPrompt(requirements, plan, trd string, attempt int) genai.Request {
	trdBlock := ""
	if trd != "" && trd != synth.PlaceholderTRD {
		trdBlock = "Technical requirements document for reference:\n" + trd + "\n\n"
	}

	base := fmt.Sprintf(`Break the system below into an Agile backlog: epics containing features containing user stories with acceptance criteria, priorities, and story point efforts.

%s

%s
Implementation plan for reference:
%s

%sBusiness requirements document:
%s`,
		backlogSchemaBlock, requirementContext(requirements), plan, trdBlock, requirements)

	return genai.Request{
		Parts:      []genai.Part{genai.TextPart(escalate(attempt, base))},
		ExpectJSON: true,
		Stage:      StageBacklog,
	}
}
