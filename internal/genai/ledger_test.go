package genai

import (
	"bytes"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestLedgerTotals(t *testing.T) {
	l := NewLedger()
	l.Append(Record{Stage: "plan", InputTokens: 100, OutputTokens: 50})
	l.Append(Record{Stage: "trd", InputTokens: 200, OutputTokens: 300})
	l.Append(Record{Stage: "plan", InputTokens: 10, OutputTokens: 5})
	// Zero-token failure entry still counts as a record.
	l.Append(Record{Stage: "backlog", Details: map[string]string{"outcome": "rate_limited"}})

	if got := l.TotalTokens(); got != 665 {
		t.Errorf("TotalTokens() = %d, want 665", got)
	}
	if got := l.StageTokens("plan"); got != 165 {
		t.Errorf("StageTokens(plan) = %d, want 165", got)
	}
	if got := len(l.Records()); got != 4 {
		t.Errorf("len(Records()) = %d, want 4", got)
	}
}

func TestLedgerConcurrentAppend(t *testing.T) {
	l := NewLedger()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Append(Record{Stage: "hld", InputTokens: 1, OutputTokens: 1})
		}()
	}
	wg.Wait()

	if got := l.TotalTokens(); got != 100 {
		t.Errorf("TotalTokens() = %d, want 100", got)
	}
}

func TestLedgerWriteJSON(t *testing.T) {
	l := NewLedger()
	l.Append(Record{
		Timestamp:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Stage:        "plan",
		Model:        "gemini-1.5-pro",
		Attempt:      1,
		InputTokens:  10,
		OutputTokens: 20,
	})

	var buf bytes.Buffer
	if err := l.WriteJSON(&buf); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	var export struct {
		TotalTokens int      `json:"total_tokens"`
		Records     []Record `json:"records"`
	}
	if err := json.Unmarshal(buf.Bytes(), &export); err != nil {
		t.Fatalf("exported ledger does not parse: %v", err)
	}
	if export.TotalTokens != 30 {
		t.Errorf("total_tokens = %d, want 30", export.TotalTokens)
	}
	if len(export.Records) != 1 || export.Records[0].Stage != "plan" {
		t.Errorf("records = %+v, want single plan record", export.Records)
	}
}
