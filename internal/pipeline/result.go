package pipeline

import (
	"fmt"

	"github.com/fyrsmithlabs/blueprintd/internal/artifact"
	"github.com/fyrsmithlabs/blueprintd/internal/genai"
)

// Stage names, used for ledger records, logs, and result reporting.
const (
	StagePlan    = "plan"
	StageTRD     = "trd"
	StageHLD     = "hld"
	StageLLD     = "lld"
	StageBacklog = "backlog"
)

// StageStatus records how a stage's artifact was produced.
type StageStatus string

const (
	// StatusGenerated means the backend produced the artifact and it passed
	// validation.
	StatusGenerated StageStatus = "generated"
	// StatusFallback means deterministic synthesis produced the artifact.
	StatusFallback StageStatus = "fallback"
	// StatusPlaceholder means the stage emitted its failure placeholder text.
	StatusPlaceholder StageStatus = "placeholder"
)

// StageResult is the per-stage outcome summary.
type StageResult struct {
	Status   StageStatus `json:"status"`
	Attempts int         `json:"attempts"`
	Reasons  []string    `json:"reasons,omitempty"`
}

// ImageInput is a supplementary image attached to the requirements.
type ImageInput struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Input is one pipeline run's source material.
type Input struct {
	Requirements string
	Images       []ImageInput
}

// Result is the full output of a pipeline run. A run always produces all
// five artifacts; Stages records which came from the backend and which from
// fallback.
type Result struct {
	RunID string `json:"run_id"`

	Plan    string            `json:"plan"`
	TRD     string            `json:"trd"`
	HLD     artifact.Diagram  `json:"hld"`
	LLD     artifact.Diagram  `json:"lld"`
	Backlog *artifact.Backlog `json:"backlog"`

	Stages      map[string]StageResult `json:"stages"`
	TokensUsed  int                    `json:"tokens_used"`
	LedgerLines []genai.Record         `json:"ledger,omitempty"`
}

// documentStageCount groups the five stages into the four reported document
// stages: plan, TRD, diagrams (HLD and LLD together), backlog.
const documentStageCount = 4

// GeneratedStages counts document stages produced by the backend rather than
// fallback. Both diagrams must be generated for the diagram stage to count.
func (r *Result) GeneratedStages() int {
	n := 0
	if r.Stages[StagePlan].Status == StatusGenerated {
		n++
	}
	if r.Stages[StageTRD].Status == StatusGenerated {
		n++
	}
	if r.Stages[StageHLD].Status == StatusGenerated && r.Stages[StageLLD].Status == StatusGenerated {
		n++
	}
	if r.Stages[StageBacklog].Status == StatusGenerated {
		n++
	}
	return n
}

// Summary describes the run in the "N/4 stages generated" form.
func (r *Result) Summary() string {
	return fmt.Sprintf("%d/%d stages generated", r.GeneratedStages(), documentStageCount)
}
