package synth

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/blueprintd/internal/artifact"
	"github.com/fyrsmithlabs/blueprintd/internal/quality"
)

// maxFallbackFeatures caps how many requirement sentences become features.
const maxFallbackFeatures = 5

// defaultStoryEffort is assigned when nothing better is known.
const defaultStoryEffort = 3

// FallbackBacklog synthesizes a minimal valid backlog from requirement text:
// one epic, one feature per extracted requirement (capped), one story per
// feature. Input with no detectable requirements still yields a generic
// epic/feature/story chain so the tree validates.
func FallbackBacklog(input string) *artifact.Backlog {
	domain := title(quality.BusinessDomain(input))
	epic := &artifact.Item{
		Kind:        artifact.KindEpic,
		Title:       domain + " System Implementation",
		Description: "Deliver the core capabilities described in the business requirements.",
		Priority:    artifact.PriorityHigh,
	}

	requirements := quality.KeyRequirements(input)
	if len(requirements) > maxFallbackFeatures {
		requirements = requirements[:maxFallbackFeatures]
	}

	for i, req := range requirements {
		summary := summarize(req)
		epic.Children = append(epic.Children, &artifact.Item{
			Kind:        artifact.KindFeature,
			Title:       fmt.Sprintf("Requirement %d: %s", i+1, summary),
			Description: req,
			Priority:    artifact.PriorityMedium,
			Children: []*artifact.Item{
				{
					Kind:               artifact.KindStory,
					Title:              "As a user, I need the system to satisfy: " + summary,
					Description:        req,
					Priority:           artifact.PriorityMedium,
					AcceptanceCriteria: []string{"Behavior matches the stated requirement", "Covered by automated tests"},
					Effort:             defaultStoryEffort,
				},
			},
		})
	}

	if len(epic.Children) == 0 {
		epic.Children = append(epic.Children, &artifact.Item{
			Kind:        artifact.KindFeature,
			Title:       "Core Functionality",
			Description: "Baseline capability derived from the provided requirements document.",
			Priority:    artifact.PriorityMedium,
			Children: []*artifact.Item{
				{
					Kind:               artifact.KindStory,
					Title:              "As a user, I need the core workflow implemented",
					Priority:           artifact.PriorityMedium,
					AcceptanceCriteria: []string{"Primary workflow completes end to end"},
					Effort:             defaultStoryEffort,
				},
			},
		})
	}

	b := &artifact.Backlog{Items: []*artifact.Item{epic}}
	b.AssignIDs()
	return b
}

// summarize shortens a requirement sentence to a feature-title length.
func summarize(req string) string {
	words := strings.Fields(req)
	if len(words) > 8 {
		words = words[:8]
		return strings.Join(words, " ") + "..."
	}
	return strings.Join(words, " ")
}
