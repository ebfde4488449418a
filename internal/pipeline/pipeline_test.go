package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/blueprintd/internal/config"
	"github.com/fyrsmithlabs/blueprintd/internal/genai"
	"github.com/fyrsmithlabs/blueprintd/internal/logging"
	"github.com/fyrsmithlabs/blueprintd/internal/quality"
)

const testRequirements = `The portal UI must let agents manage policies through the API gateway.
Claims should be processed automatically and premium records persisted to the database.`

// stageCaller returns canned outcomes per stage, independent of call order,
// so it works under the concurrent tail as well.
type stageCaller struct {
	mu       sync.Mutex
	outcomes map[string][]genai.Outcome
	requests map[string][]genai.Request
}

func newStageCaller() *stageCaller {
	return &stageCaller{
		outcomes: make(map[string][]genai.Outcome),
		requests: make(map[string][]genai.Request),
	}
}

func (s *stageCaller) on(stage string, outcomes ...genai.Outcome) {
	s.outcomes[stage] = append(s.outcomes[stage], outcomes...)
}

func (s *stageCaller) Call(_ context.Context, req genai.Request) genai.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.Stage] = append(s.requests[req.Stage], req)

	queue := s.outcomes[req.Stage]
	if len(queue) == 0 {
		return genai.Outcome{Kind: genai.OutcomeFatal, Reason: "no scripted outcome for " + req.Stage}
	}
	i := len(s.requests[req.Stage]) - 1
	if i >= len(queue) {
		i = len(queue) - 1
	}
	return queue[i]
}

func validMermaid() string {
	return "```mermaid\nflowchart TD\n" + strings.Repeat("    A --> B\n", 15) + "```"
}

func validBacklogJSON() json.RawMessage {
	return json.RawMessage(`{"backlog": [
		{"kind": "epic", "title": "Policy Management", "children": [
			{"kind": "feature", "title": "Quotes", "children": [
				{"kind": "story", "title": "Create quote", "effort": 3}
			]}
		]}
	]}`)
}

func newTestOrchestrator(t *testing.T, caller *stageCaller, concurrent bool) (*Orchestrator, *genai.Ledger) {
	t.Helper()
	ledger := genai.NewLedger()
	o, err := New(caller, ledger, logging.NewNop(), config.PipelineConfig{
		MaxAttempts: 3,
		Concurrent:  concurrent,
	})
	require.NoError(t, err)
	return o, ledger
}

func scriptAllSuccess(caller *stageCaller) {
	caller.on(StagePlan, genai.Outcome{Kind: genai.OutcomeSuccess, Text: "# Plan\n\nPhase 1."})
	caller.on(StageTRD, genai.Outcome{Kind: genai.OutcomeSuccess, Text: "# TRD\n\nDetails."})
	caller.on(StageHLD, genai.Outcome{Kind: genai.OutcomeSuccess, Text: validMermaid()})
	caller.on(StageLLD, genai.Outcome{Kind: genai.OutcomeSuccess, Text: validMermaid()})
	caller.on(StageBacklog, genai.Outcome{Kind: genai.OutcomeSuccess, JSON: validBacklogJSON()})
}

func TestRunAllStagesGenerated(t *testing.T) {
	caller := newStageCaller()
	scriptAllSuccess(caller)
	o, _ := newTestOrchestrator(t, caller, false)

	result, err := o.Run(context.Background(), Input{Requirements: testRequirements})
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, "# Plan\n\nPhase 1.", result.Plan)
	assert.Equal(t, "# TRD\n\nDetails.", result.TRD)
	assert.Contains(t, result.HLD.Mermaid, "flowchart TD")
	assert.NotContains(t, result.HLD.Mermaid, "```", "fences must be stripped")

	for _, stage := range []string{StagePlan, StageTRD, StageHLD, StageLLD, StageBacklog} {
		assert.Equal(t, StatusGenerated, result.Stages[stage].Status, stage)
	}
	assert.Equal(t, "4/4 stages generated", result.Summary())

	// IDs are reassigned from tree-global counters.
	require.NotNil(t, result.Backlog)
	assert.Equal(t, "E-1", result.Backlog.Items[0].ID)
	assert.Equal(t, "US-1", result.Backlog.Items[0].Children[0].Children[0].ID)
}

func TestRunDegradesToFallbacks(t *testing.T) {
	caller := newStageCaller()
	for _, stage := range []string{StagePlan, StageTRD, StageHLD, StageLLD, StageBacklog} {
		caller.on(stage, genai.Outcome{Kind: genai.OutcomeUnavailable, Reason: "backend down"})
	}
	o, _ := newTestOrchestrator(t, caller, false)

	result, err := o.Run(context.Background(), Input{Requirements: testRequirements})
	require.NoError(t, err)

	assert.Equal(t, StatusFallback, result.Stages[StagePlan].Status)
	assert.Contains(t, result.Plan, "# Implementation Plan")

	assert.Equal(t, StatusPlaceholder, result.Stages[StageTRD].Status)
	assert.Equal(t, "TRD could not be completed due to API error.", result.TRD)

	// Fallback diagrams still validate.
	for _, d := range []string{result.HLD.Mermaid, result.LLD.Mermaid} {
		assert.True(t, quality.ValidateDiagram(d).Valid, "fallback diagram must validate")
	}

	require.NotNil(t, result.Backlog)
	assert.True(t, quality.ValidateBacklog(result.Backlog).Valid)

	assert.Equal(t, "0/4 stages generated", result.Summary())
}

func TestRunRejectedDiagramRegenerated(t *testing.T) {
	caller := newStageCaller()
	scriptAllSuccess(caller)
	// First HLD response is junk prose; the gate must re-prompt with
	// escalated specificity and accept the second.
	caller.outcomes[StageHLD] = []genai.Outcome{
		{Kind: genai.OutcomeSuccess, Text: "I cannot draw diagrams, sorry."},
		{Kind: genai.OutcomeSuccess, Text: validMermaid()},
	}
	o, _ := newTestOrchestrator(t, caller, false)

	result, err := o.Run(context.Background(), Input{Requirements: testRequirements})
	require.NoError(t, err)

	assert.Equal(t, StatusGenerated, result.Stages[StageHLD].Status)
	assert.Equal(t, 2, result.Stages[StageHLD].Attempts)

	hldRequests := caller.requests[StageHLD]
	require.Len(t, hldRequests, 2)
	assert.Contains(t, hldRequests[1].Parts[0].Text, "RETRY ATTEMPT 2 - ENHANCED SPECIFICITY")
	assert.NotContains(t, hldRequests[0].Parts[0].Text, "ENHANCED SPECIFICITY")
}

func TestRunMixedOutcomesPartialSummary(t *testing.T) {
	caller := newStageCaller()
	scriptAllSuccess(caller)
	caller.outcomes[StageBacklog] = []genai.Outcome{
		{Kind: genai.OutcomeRateLimited},
	}
	o, _ := newTestOrchestrator(t, caller, false)

	result, err := o.Run(context.Background(), Input{Requirements: testRequirements})
	require.NoError(t, err)

	assert.Equal(t, StatusFallback, result.Stages[StageBacklog].Status)
	assert.Equal(t, "3/4 stages generated", result.Summary())
	// Fallback backlog is still a valid, ID-assigned tree.
	assert.True(t, quality.ValidateBacklog(result.Backlog).Valid)
	assert.Equal(t, "E-1", result.Backlog.Items[0].ID)
}

func TestRunEmptyRequirements(t *testing.T) {
	o, _ := newTestOrchestrator(t, newStageCaller(), false)
	_, err := o.Run(context.Background(), Input{})
	assert.Error(t, err)
}

func TestRunSkipsUnsupportedImages(t *testing.T) {
	caller := newStageCaller()
	scriptAllSuccess(caller)
	o, _ := newTestOrchestrator(t, caller, false)

	_, err := o.Run(context.Background(), Input{
		Requirements: testRequirements,
		Images: []ImageInput{
			{Name: "arch.png", MIMEType: "image/png", Data: []byte{1}},
			{Name: "notes.gif", MIMEType: "image/gif", Data: []byte{2}},
		},
	})
	require.NoError(t, err)

	planReq := caller.requests[StagePlan][0]
	require.Len(t, planReq.Parts, 2, "text part plus the one supported image")
	assert.Equal(t, "image/png", planReq.Parts[1].Image.MIMEType)
}

func TestRunConcurrentMatchesSequential(t *testing.T) {
	caller := newStageCaller()
	scriptAllSuccess(caller)
	o, _ := newTestOrchestrator(t, caller, true)

	result, err := o.Run(context.Background(), Input{Requirements: testRequirements})
	require.NoError(t, err)

	assert.Equal(t, "4/4 stages generated", result.Summary())
	for _, stage := range []string{StageHLD, StageLLD, StageBacklog} {
		assert.Equal(t, StatusGenerated, result.Stages[stage].Status, stage)
	}
	require.NotNil(t, result.Backlog)

	// The LLD prompt must still see the HLD output inside the branch.
	lldReq := caller.requests[StageLLD][0]
	assert.Contains(t, lldReq.Parts[0].Text, "flowchart TD")
}

func TestRunBacklogPromptIncludesPlanAndTRD(t *testing.T) {
	caller := newStageCaller()
	scriptAllSuccess(caller)
	caller.outcomes[StageTRD] = []genai.Outcome{
		{Kind: genai.OutcomeSuccess, Text: "# TRD\n\nRoute claims through the event bus."},
	}
	o, _ := newTestOrchestrator(t, caller, false)

	_, err := o.Run(context.Background(), Input{Requirements: testRequirements})
	require.NoError(t, err)

	backlogReq := caller.requests[StageBacklog][0]
	prompt := backlogReq.Parts[0].Text
	assert.Contains(t, prompt, "# Plan\n\nPhase 1.", "backlog prompt must carry the plan")
	assert.Contains(t, prompt, "Route claims through the event bus", "backlog prompt must carry the TRD")
}

func TestRunBacklogPromptOmitsPlaceholderTRD(t *testing.T) {
	caller := newStageCaller()
	scriptAllSuccess(caller)
	caller.outcomes[StageTRD] = []genai.Outcome{
		{Kind: genai.OutcomeUnavailable, Reason: "backend down"},
	}
	o, _ := newTestOrchestrator(t, caller, false)

	result, err := o.Run(context.Background(), Input{Requirements: testRequirements})
	require.NoError(t, err)
	require.Equal(t, StatusPlaceholder, result.Stages[StageTRD].Status)

	prompt := caller.requests[StageBacklog][0].Parts[0].Text
	assert.NotContains(t, prompt, "could not be completed",
		"placeholder text must not be fed back as context")
}

func TestRunPromptsCarryTechnicalConstraints(t *testing.T) {
	caller := newStageCaller()
	scriptAllSuccess(caller)
	o, _ := newTestOrchestrator(t, caller, false)

	reqs := testRequirements + "\nThe service must use PostgreSQL and cannot use cloud-hosted storage."
	_, err := o.Run(context.Background(), Input{Requirements: reqs})
	require.NoError(t, err)

	hldPrompt := caller.requests[StageHLD][0].Parts[0].Text
	assert.Contains(t, hldPrompt, "Technical constraints:")
	assert.Contains(t, hldPrompt, "must use PostgreSQL")
}

func TestRunLedgerFlowsIntoResult(t *testing.T) {
	caller := newStageCaller()
	scriptAllSuccess(caller)
	o, ledger := newTestOrchestrator(t, caller, false)

	ledger.Append(genai.Record{Stage: StagePlan, InputTokens: 100, OutputTokens: 50})

	result, err := o.Run(context.Background(), Input{Requirements: testRequirements})
	require.NoError(t, err)

	assert.Equal(t, 150, result.TokensUsed)
	assert.NotEmpty(t, result.LedgerLines)
}
