// Package synth produces deterministic fallback artifacts from requirement
// text alone. When generation fails validation or the backend is down, these
// synthesizers keep the pipeline producing renderable, structurally valid
// output with no network calls.
package synth

import (
	"strings"

	"github.com/fyrsmithlabs/blueprintd/internal/artifact"
	"github.com/fyrsmithlabs/blueprintd/internal/quality"
)

// Keyword groups that switch optional architecture layers on. The core
// service node is always present so the backbone has an anchor.
var (
	uiKeywords      = []string{"ui", "interface", "portal", "screen", "dashboard", "frontend"}
	gatewayKeywords = []string{"api", "gateway", "integration", "endpoint"}
	authKeywords    = []string{"auth", "login", "security", "sso", "identity", "jwt"}
	dataKeywords    = []string{"repository", "database", "storage", "persist", "record", "data"}
)

// externalSystems maps detection keywords to node labels for known
// third-party integrations.
var externalSystems = []struct {
	keywords []string
	id       string
	label    string
}{
	{[]string{"ping"}, "PING", "Ping Identity"},
	{[]string{"touchstone"}, "TOUCH", "Touchstone"},
	{[]string{"guidewire"}, "GW", "Guidewire"},
	{[]string{"imageright", "image right"}, "IMGR", "ImageRight"},
	{[]string{"genai", "gen ai", "gemini", "llm"}, "GENAI", "GenAI Service"},
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// HLDDiagram synthesizes a high-level architecture flowchart. The layer
// backbone (UI, gateway, auth, core, repository, database) is trimmed to the
// layers the requirement text mentions; the core service always remains.
// Styling directives are always emitted so even sparse input yields a
// renderable diagram.
func HLDDiagram(input string) artifact.Diagram {
	lower := strings.ToLower(input)
	domain := quality.BusinessDomain(input)

	var b strings.Builder
	b.WriteString("flowchart TD\n")

	hasUI := containsAny(lower, uiKeywords)
	hasGateway := containsAny(lower, gatewayKeywords)
	hasAuth := containsAny(lower, authKeywords)
	hasData := containsAny(lower, dataKeywords)

	if hasUI {
		b.WriteString("    UI[User Interface]\n")
	}
	if hasGateway {
		b.WriteString("    GWAY[API Gateway]\n")
	}
	if hasAuth {
		b.WriteString("    AUTH[Authentication Service]\n")
	}
	b.WriteString("    CORE[" + title(domain) + " Core Service]\n")
	if hasData {
		b.WriteString("    REPO[Data Repository]\n")
		b.WriteString("    DB[(Database)]\n")
	}

	// Backbone edges, skipping layers that are not present.
	backbone := []string{}
	if hasUI {
		backbone = append(backbone, "UI")
	}
	if hasGateway {
		backbone = append(backbone, "GWAY")
	}
	if hasAuth {
		backbone = append(backbone, "AUTH")
	}
	backbone = append(backbone, "CORE")
	if hasData {
		backbone = append(backbone, "REPO", "DB")
	}
	for i := 0; i+1 < len(backbone); i++ {
		b.WriteString("    " + backbone[i] + " --> " + backbone[i+1] + "\n")
	}

	for _, ext := range externalSystems {
		if containsAny(lower, ext.keywords) {
			b.WriteString("    " + ext.id + "[" + ext.label + "]\n")
			b.WriteString("    CORE --> " + ext.id + "\n")
		}
	}

	b.WriteString("    classDef service fill:#e8f0fe,stroke:#1a73e8,stroke-width:2px\n")
	b.WriteString("    classDef external fill:#fef7e0,stroke:#f9ab00,stroke-width:2px\n")
	b.WriteString("    class CORE service\n")

	return artifact.Diagram{Kind: artifact.DiagramHLD, Mermaid: b.String()}
}

// LLDDiagram synthesizes a low-level component flowchart: the standard
// controller, service, repository, and table chain with validation and error
// handling branches, labeled by business domain.
func LLDDiagram(input string) artifact.Diagram {
	domain := title(quality.BusinessDomain(input))

	var b strings.Builder
	b.WriteString("flowchart TD\n")
	b.WriteString("    CTRL[" + domain + " Controller]\n")
	b.WriteString("    VAL[Request Validation]\n")
	b.WriteString("    SVC[" + domain + " Service]\n")
	b.WriteString("    REPO[" + domain + " Repository]\n")
	b.WriteString("    TBL[(" + tableName(domain) + ")]\n")
	b.WriteString("    ERR[Error Handler]\n")
	b.WriteString("    CTRL --> VAL\n")
	b.WriteString("    VAL --> SVC\n")
	b.WriteString("    SVC --> REPO\n")
	b.WriteString("    REPO --> TBL\n")
	b.WriteString("    VAL -->|invalid| ERR\n")
	b.WriteString("    SVC -->|failure| ERR\n")
	b.WriteString("    classDef component fill:#e6f4ea,stroke:#188038,stroke-width:2px\n")
	b.WriteString("    class CTRL,SVC,REPO component\n")

	return artifact.Diagram{Kind: artifact.DiagramLLD, Mermaid: b.String()}
}

func title(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func tableName(domain string) string {
	first := strings.Fields(strings.ToLower(domain))
	if len(first) == 0 {
		return "records"
	}
	return first[0] + "_records"
}
