package genai

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Record is one ledger entry. Failed attempts are recorded with zero tokens
// so the attempt history survives alongside consumption.
type Record struct {
	Timestamp    time.Time         `json:"timestamp"`
	Stage        string            `json:"stage"`
	Model        string            `json:"model"`
	Attempt      int               `json:"attempt"`
	InputTokens  int               `json:"input_tokens"`
	OutputTokens int               `json:"output_tokens"`
	Details      map[string]string `json:"details,omitempty"`
}

// TotalTokens returns the record's combined token count.
func (r Record) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// Ledger is a run-scoped, append-only token consumption log. Safe for
// concurrent use; each pipeline run owns its own instance.
type Ledger struct {
	mu      sync.Mutex
	records []Record
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Append adds a record. The timestamp is set by the caller so a fake clock
// flows through in tests.
func (l *Ledger) Append(rec Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
}

// Records returns a copy of all entries in append order.
func (l *Ledger) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// TotalTokens sums token counts across all records.
func (l *Ledger) TotalTokens() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, rec := range l.records {
		total += rec.InputTokens + rec.OutputTokens
	}
	return total
}

// StageTokens sums token counts for one stage.
func (l *Ledger) StageTokens(stage string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, rec := range l.records {
		if rec.Stage == stage {
			total += rec.InputTokens + rec.OutputTokens
		}
	}
	return total
}

// ledgerExport is the JSON shape written by WriteJSON.
type ledgerExport struct {
	TotalTokens int      `json:"total_tokens"`
	Records     []Record `json:"records"`
}

// WriteJSON writes the full ledger as indented JSON.
func (l *Ledger) WriteJSON(w io.Writer) error {
	export := ledgerExport{
		TotalTokens: l.TotalTokens(),
		Records:     l.Records(),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(export)
}
