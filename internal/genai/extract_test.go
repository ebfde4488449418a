package genai

import (
	"encoding/json"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{
			name: "plain object",
			text: `{"a": 1}`,
			want: `{"a": 1}`,
			ok:   true,
		},
		{
			name: "object embedded in prose",
			text: "Here is the result:\n{\"a\": 1}\nHope that helps!",
			want: `{"a": 1}`,
			ok:   true,
		},
		{
			name: "array",
			text: `[1, 2, 3]`,
			want: `[1, 2, 3]`,
			ok:   true,
		},
		{
			name: "braces inside string literals",
			text: `{"code": "if (x) { return {}; }"}`,
			want: `{"code": "if (x) { return {}; }"}`,
			ok:   true,
		},
		{
			name: "escaped quote inside string",
			text: `{"msg": "she said \"hi {there}\""}`,
			want: `{"msg": "she said \"hi {there}\""}`,
			ok:   true,
		},
		{
			name: "trailing comma repaired",
			text: `{"items": [1, 2,]}`,
			ok:   true,
		},
		{
			name: "truncated object repaired",
			text: `{"backlog": [{"id": "epic-1", "children": [`,
			ok:   true,
		},
		{
			name: "truncated after comma repaired",
			text: `{"a": 1, "b": 2,`,
			ok:   true,
		},
		{
			name: "no json at all",
			text: "just some prose without structure",
			ok:   false,
		},
		{
			name: "empty input",
			text: "",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSON(tt.text)
			if ok != tt.ok {
				t.Fatalf("ExtractJSON() ok = %v, want %v (got %q)", ok, tt.ok, got)
			}
			if !ok {
				return
			}
			if !json.Valid(got) {
				t.Errorf("ExtractJSON() returned invalid JSON: %s", got)
			}
			if tt.want != "" && string(got) != tt.want {
				t.Errorf("ExtractJSON() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestExtractJSONIdempotent(t *testing.T) {
	inputs := []string{
		`{"a": {"b": [1, 2]}}`,
		"prose before {\"k\": \"v\"} prose after",
		`{"items": [1, 2,]}`,
	}
	for _, input := range inputs {
		first, ok := ExtractJSON(input)
		if !ok {
			t.Fatalf("first extraction failed for %q", input)
		}
		second, ok := ExtractJSON(string(first))
		if !ok {
			t.Fatalf("second extraction failed for %s", first)
		}
		if string(first) != string(second) {
			t.Errorf("extraction not idempotent: %s != %s", first, second)
		}
	}
}

func TestExtractJSONTruncatedBacklog(t *testing.T) {
	// Mid-generation truncation of a structured backlog response.
	text := `{"backlog": [{"id": "epic-1", "title": "Policy Management"`

	got, ok := ExtractJSON(text)
	if !ok {
		t.Fatal("ExtractJSON() failed on truncated backlog")
	}

	var parsed struct {
		Backlog []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"backlog"`
	}
	if err := json.Unmarshal(got, &parsed); err != nil {
		t.Fatalf("repaired JSON does not parse: %v", err)
	}
	if len(parsed.Backlog) != 1 || parsed.Backlog[0].ID != "epic-1" {
		t.Errorf("repaired backlog = %+v, want one epic-1 entry", parsed.Backlog)
	}
}
