package artifact

import (
	"encoding/json"
	"testing"
)

func TestParseBacklogCanonical(t *testing.T) {
	raw := json.RawMessage(`{
		"backlog": [
			{
				"kind": "epic",
				"title": "Policy Management",
				"priority": "High",
				"children": [
					{
						"kind": "feature",
						"title": "Quote Generation",
						"children": [
							{
								"kind": "story",
								"title": "As an agent I can create a quote",
								"acceptance_criteria": ["quote persists", "premium is computed"],
								"effort": 3
							}
						]
					}
				]
			}
		]
	}`)

	b, err := ParseBacklog(raw)
	if err != nil {
		t.Fatalf("ParseBacklog() error = %v", err)
	}

	counts := b.CountByKind()
	if counts[KindEpic] != 1 || counts[KindFeature] != 1 || counts[KindStory] != 1 {
		t.Errorf("counts = %v, want 1/1/1", counts)
	}

	if b.Items[0].Priority != PriorityHigh {
		t.Errorf("epic priority = %q, want High", b.Items[0].Priority)
	}

	story := b.Items[0].Children[0].Children[0]
	if story.Effort != 3 {
		t.Errorf("story effort = %d, want 3", story.Effort)
	}
	if len(story.AcceptanceCriteria) != 2 {
		t.Errorf("acceptance criteria = %v, want 2 entries", story.AcceptanceCriteria)
	}
}

func TestParseBacklogPriorityNormalization(t *testing.T) {
	raw := json.RawMessage(`{"backlog": [
		{"kind": "epic", "title": "A", "priority": "HIGH"},
		{"kind": "epic", "title": "B", "priority": " low "},
		{"kind": "epic", "title": "C", "priority": "urgent"},
		{"kind": "epic", "title": "D"}
	]}`)

	b, err := ParseBacklog(raw)
	if err != nil {
		t.Fatalf("ParseBacklog() error = %v", err)
	}

	want := []string{PriorityHigh, PriorityLow, "", ""}
	for i, w := range want {
		if b.Items[i].Priority != w {
			t.Errorf("items[%d].Priority = %q, want %q", i, b.Items[i].Priority, w)
		}
	}
}

func TestParseBacklogLenient(t *testing.T) {
	// Drifted output: "epics" envelope, "type" instead of "kind", effort as a
	// string, single-string criteria, children under "features"/"stories".
	raw := json.RawMessage(`{
		"epics": [
			{
				"type": "Epic",
				"name": "Claims Processing",
				"features": [
					{
						"type": "Feature",
						"title": "FNOL Intake",
						"stories": [
							{
								"type": "User Story",
								"title": "Submit a claim",
								"effort": "5 points",
								"acceptance_criteria": "claim is queued"
							}
						]
					}
				]
			}
		]
	}`)

	b, err := ParseBacklog(raw)
	if err != nil {
		t.Fatalf("ParseBacklog() error = %v", err)
	}

	epic := b.Items[0]
	if epic.Kind != KindEpic || epic.Title != "Claims Processing" {
		t.Errorf("epic = %+v, want epic/Claims Processing", epic)
	}

	story := epic.Children[0].Children[0]
	if story.Kind != KindStory {
		t.Errorf("story kind = %q, want story", story.Kind)
	}
	if story.Effort != 5 {
		t.Errorf("story effort = %d, want 5 parsed from string", story.Effort)
	}
	if len(story.AcceptanceCriteria) != 1 || story.AcceptanceCriteria[0] != "claim is queued" {
		t.Errorf("criteria = %v, want single entry", story.AcceptanceCriteria)
	}
}

func TestParseBacklogDepthInference(t *testing.T) {
	// No kind labels anywhere: infer epic/feature/story from nesting depth.
	raw := json.RawMessage(`[
		{
			"title": "Top",
			"children": [
				{
					"title": "Middle",
					"children": [{"title": "Leaf"}]
				}
			]
		}
	]`)

	b, err := ParseBacklog(raw)
	if err != nil {
		t.Fatalf("ParseBacklog() error = %v", err)
	}

	var kinds []ItemKind
	b.Walk(func(item *Item, _ int) {
		kinds = append(kinds, item.Kind)
	})
	want := []ItemKind{KindEpic, KindFeature, KindStory}
	for i, k := range want {
		if kinds[i] != k {
			t.Errorf("kinds[%d] = %q, want %q", i, kinds[i], k)
		}
	}
}

func TestParseBacklogDropsUntitled(t *testing.T) {
	raw := json.RawMessage(`{"backlog": [
		{"kind": "epic", "title": "Real"},
		{"kind": "epic", "title": "   "}
	]}`)

	b, err := ParseBacklog(raw)
	if err != nil {
		t.Fatalf("ParseBacklog() error = %v", err)
	}
	if len(b.Items) != 1 {
		t.Errorf("len(items) = %d, want untitled item dropped", len(b.Items))
	}
}

func TestParseBacklogRejectsEmpty(t *testing.T) {
	for _, raw := range []string{`{}`, `[]`, `{"backlog": []}`, `{"other": 1}`} {
		if _, err := ParseBacklog(json.RawMessage(raw)); err == nil {
			t.Errorf("ParseBacklog(%s) expected error, got nil", raw)
		}
	}
}

func TestAssignIDsGloballyUnique(t *testing.T) {
	// Two epics each with features and stories: numbering must continue
	// across siblings, never reset per parent.
	raw := json.RawMessage(`{"backlog": [
		{
			"kind": "epic", "title": "A",
			"children": [
				{"kind": "feature", "title": "A1", "children": [
					{"kind": "story", "title": "A1a"},
					{"kind": "story", "title": "A1b"}
				]}
			]
		},
		{
			"kind": "epic", "title": "B",
			"children": [
				{"kind": "feature", "title": "B1", "children": [
					{"kind": "story", "title": "B1a"}
				]}
			]
		}
	]}`)

	b, err := ParseBacklog(raw)
	if err != nil {
		t.Fatalf("ParseBacklog() error = %v", err)
	}
	b.AssignIDs()

	seen := make(map[string]bool)
	b.Walk(func(item *Item, _ int) {
		if item.ID == "" {
			t.Errorf("item %q has empty ID", item.Title)
		}
		if seen[item.ID] {
			t.Errorf("duplicate ID %q", item.ID)
		}
		seen[item.ID] = true
	})

	if b.Items[1].ID != "E-2" {
		t.Errorf("second epic ID = %q, want E-2", b.Items[1].ID)
	}
	if got := b.Items[1].Children[0].ID; got != "F-2" {
		t.Errorf("second epic's feature ID = %q, want F-2 (global counter)", got)
	}
	if got := b.Items[1].Children[0].Children[0].ID; got != "US-3" {
		t.Errorf("last story ID = %q, want US-3", got)
	}
}

func TestLeafStories(t *testing.T) {
	raw := json.RawMessage(`{"backlog": [
		{"kind": "epic", "title": "E", "children": [
			{"kind": "feature", "title": "F", "children": [
				{"kind": "story", "title": "S1"},
				{"kind": "story", "title": "S2"}
			]}
		]}
	]}`)

	b, err := ParseBacklog(raw)
	if err != nil {
		t.Fatalf("ParseBacklog() error = %v", err)
	}
	if got := b.LeafStories(); got != 2 {
		t.Errorf("LeafStories() = %d, want 2", got)
	}
}
