package artifact

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ItemKind classifies a backlog tree node.
type ItemKind string

const (
	KindEpic    ItemKind = "epic"
	KindFeature ItemKind = "feature"
	KindStory   ItemKind = "story"
)

// Item is one node of the backlog tree.
type Item struct {
	ID                 string   `json:"id"`
	Kind               ItemKind `json:"kind"`
	Title              string   `json:"title"`
	Description        string   `json:"description,omitempty"`
	Priority           string   `json:"priority,omitempty"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	Effort             int      `json:"effort,omitempty"`
	Children           []*Item  `json:"children,omitempty"`
}

// Priority labels, normalized from whatever casing the backend emits.
const (
	PriorityHigh   = "High"
	PriorityMedium = "Medium"
	PriorityLow    = "Low"
)

// Backlog is the root of the generated work item tree.
type Backlog struct {
	Items []*Item `json:"items"`
}

// Walk visits every item depth-first, parents before children.
func (b *Backlog) Walk(fn func(item *Item, depth int)) {
	var visit func(items []*Item, depth int)
	visit = func(items []*Item, depth int) {
		for _, item := range items {
			fn(item, depth)
			visit(item.Children, depth+1)
		}
	}
	visit(b.Items, 0)
}

// CountByKind returns how many items of each kind the tree holds.
func (b *Backlog) CountByKind() map[ItemKind]int {
	counts := make(map[ItemKind]int, 3)
	b.Walk(func(item *Item, _ int) {
		counts[item.Kind]++
	})
	return counts
}

// LeafStories counts stories with no children.
func (b *Backlog) LeafStories() int {
	n := 0
	b.Walk(func(item *Item, _ int) {
		if item.Kind == KindStory && len(item.Children) == 0 {
			n++
		}
	})
	return n
}

// AssignIDs rewrites every item ID using tree-global counters: E-1, E-2 for
// epics, F-1, F-2 for features, US-1, US-2 for stories, in depth-first order.
// IDs are unique across the whole tree, whatever the backend supplied.
func (b *Backlog) AssignIDs() {
	var epics, features, stories int
	b.Walk(func(item *Item, _ int) {
		switch item.Kind {
		case KindEpic:
			epics++
			item.ID = fmt.Sprintf("E-%d", epics)
		case KindFeature:
			features++
			item.ID = fmt.Sprintf("F-%d", features)
		default:
			stories++
			item.ID = fmt.Sprintf("US-%d", stories)
		}
	})
}

// Loose decoding of backend output. The backend is prompted for a fixed
// schema but drifts: envelope keys vary, effort arrives as string or number,
// acceptance criteria as string or list, children under several keys.

type looseItem struct {
	ID                 string       `json:"id"`
	Kind               string       `json:"kind"`
	Type               string       `json:"type"`
	Title              string       `json:"title"`
	Name               string       `json:"name"`
	Description        string       `json:"description"`
	Priority           string       `json:"priority"`
	AcceptanceCriteria looseStrings `json:"acceptance_criteria"`
	Criteria           looseStrings `json:"criteria"`
	Effort             looseInt     `json:"effort"`
	StoryPoints        looseInt     `json:"story_points"`
	Children           []looseItem  `json:"children"`
	Features           []looseItem  `json:"features"`
	Stories            []looseItem  `json:"stories"`
}

type looseEnvelope struct {
	Backlog []looseItem `json:"backlog"`
	Epics   []looseItem `json:"epics"`
	Items   []looseItem `json:"items"`
}

// looseInt accepts a JSON number, a numeric string, or a string with a
// leading number ("5 points").
type looseInt int

func (l *looseInt) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*l = looseInt(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*l = 0
		return nil
	}
	fields := strings.Fields(s)
	if len(fields) == 0 {
		*l = 0
		return nil
	}
	if v, err := strconv.Atoi(fields[0]); err == nil {
		*l = looseInt(v)
	}
	return nil
}

// looseStrings accepts a single string or a list of strings.
type looseStrings []string

func (l *looseStrings) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil && s != "" {
		*l = []string{s}
	}
	return nil
}

// ParseBacklog decodes backend JSON into a typed backlog tree. Unknown kinds
// are inferred from depth: top level epics, one level down features, deeper
// stories. Items with no usable title are dropped.
func ParseBacklog(raw json.RawMessage) (*Backlog, error) {
	items, err := decodeLooseItems(raw)
	if err != nil {
		return nil, err
	}

	b := &Backlog{}
	for _, li := range items {
		if item := convertItem(li, 0); item != nil {
			b.Items = append(b.Items, item)
		}
	}
	if len(b.Items) == 0 {
		return nil, fmt.Errorf("backlog JSON contains no usable items")
	}
	return b, nil
}

func decodeLooseItems(raw json.RawMessage) ([]looseItem, error) {
	var list []looseItem
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var env looseEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode backlog JSON: %w", err)
	}
	switch {
	case len(env.Backlog) > 0:
		return env.Backlog, nil
	case len(env.Epics) > 0:
		return env.Epics, nil
	case len(env.Items) > 0:
		return env.Items, nil
	}
	return nil, fmt.Errorf("backlog JSON has no recognized envelope key")
}

func convertItem(li looseItem, depth int) *Item {
	title := strings.TrimSpace(li.Title)
	if title == "" {
		title = strings.TrimSpace(li.Name)
	}
	if title == "" {
		return nil
	}

	item := &Item{
		ID:          li.ID,
		Kind:        normalizeKind(li.Kind, li.Type, depth),
		Title:       title,
		Description: strings.TrimSpace(li.Description),
		Priority:    normalizePriority(li.Priority),
		Effort:      int(li.Effort),
	}
	if item.Effort == 0 {
		item.Effort = int(li.StoryPoints)
	}
	item.AcceptanceCriteria = li.AcceptanceCriteria
	if len(item.AcceptanceCriteria) == 0 {
		item.AcceptanceCriteria = li.Criteria
	}

	for _, group := range [][]looseItem{li.Children, li.Features, li.Stories} {
		for _, child := range group {
			if converted := convertItem(child, depth+1); converted != nil {
				item.Children = append(item.Children, converted)
			}
		}
	}
	return item
}

// normalizePriority maps backend casing variants ("high", "HIGH", " Low ")
// onto the canonical labels, dropping anything unrecognized.
func normalizePriority(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "high":
		return PriorityHigh
	case "medium", "med":
		return PriorityMedium
	case "low":
		return PriorityLow
	}
	return ""
}

func normalizeKind(kind, typ string, depth int) ItemKind {
	label := strings.ToLower(strings.TrimSpace(kind))
	if label == "" {
		label = strings.ToLower(strings.TrimSpace(typ))
	}
	switch {
	case strings.HasPrefix(label, "epic"):
		return KindEpic
	case strings.HasPrefix(label, "feature"):
		return KindFeature
	case strings.Contains(label, "stor"):
		return KindStory
	}
	switch depth {
	case 0:
		return KindEpic
	case 1:
		return KindFeature
	default:
		return KindStory
	}
}
