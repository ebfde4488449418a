package quality

import (
	"strings"
)

// maxKeyRequirements caps the requirement sentences fed into fallback
// synthesis and prompt context.
const maxKeyRequirements = 10

var requirementMarkers = []string{"must", "should", "need", "require", "implement"}

// maxTechnicalConstraints caps constraint lines in prompt context.
const maxTechnicalConstraints = 5

var constraintMarkers = []string{"constraint", "limit", "must use", "cannot use", "only supports"}

// domainKeywords maps a business domain label to its signal words.
var domainKeywords = map[string][]string{
	"insurance":     {"policy", "claim", "premium", "underwriting", "coverage", "insured"},
	"banking":       {"account", "loan", "payment", "transaction", "deposit", "balance"},
	"healthcare":    {"patient", "medical", "clinical", "diagnosis", "treatment", "provider"},
	"retail":        {"product", "inventory", "order", "cart", "checkout", "catalog"},
	"manufacturing": {"production", "assembly", "supply chain", "factory", "inspection"},
	"education":     {"student", "course", "enrollment", "curriculum", "grade", "instructor"},
}

// domainOrder keeps BusinessDomain deterministic on ties.
var domainOrder = []string{"insurance", "banking", "healthcare", "retail", "manufacturing", "education"}

// DefaultDomain labels input that matches no known business domain.
const DefaultDomain = "general business"

// KeyRequirements extracts up to ten requirement-bearing sentences: those
// containing an obligation marker (must, should, need, require, implement).
func KeyRequirements(text string) []string {
	var out []string
	for _, sentence := range splitSentences(text) {
		lower := strings.ToLower(sentence)
		for _, marker := range requirementMarkers {
			if strings.Contains(lower, marker) {
				out = append(out, sentence)
				break
			}
		}
		if len(out) == maxKeyRequirements {
			break
		}
	}
	return out
}

// TechnicalConstraints extracts up to five sentences that bound the
// implementation rather than describe a capability: constraints, limits, and
// mandated or forbidden technology choices.
func TechnicalConstraints(text string) []string {
	var out []string
	for _, sentence := range splitSentences(text) {
		lower := strings.ToLower(sentence)
		for _, marker := range constraintMarkers {
			if strings.Contains(lower, marker) {
				out = append(out, sentence)
				break
			}
		}
		if len(out) == maxTechnicalConstraints {
			break
		}
	}
	return out
}

// BusinessDomain guesses the business domain from keyword frequency,
// returning DefaultDomain when nothing matches.
func BusinessDomain(text string) string {
	lower := strings.ToLower(text)
	best := DefaultDomain
	bestScore := 0
	for _, domain := range domainOrder {
		score := 0
		for _, kw := range domainKeywords[domain] {
			score += strings.Count(lower, kw)
		}
		if score > bestScore {
			best = domain
			bestScore = score
		}
	}
	return best
}

func splitSentences(text string) []string {
	var out []string
	var current strings.Builder
	flush := func() {
		s := strings.TrimSpace(current.String())
		if s != "" {
			out = append(out, s)
		}
		current.Reset()
	}
	for _, r := range text {
		switch r {
		case '.', '!', '?', '\n':
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return out
}
