// Package pipeline orchestrates the document generation run: implementation
// plan, TRD, high- and low-level design diagrams, and the Agile backlog. A
// run degrades instead of failing; every stage ends with an artifact, backed
// by fallback synthesis when the backend cannot deliver.
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/blueprintd/internal/artifact"
	"github.com/fyrsmithlabs/blueprintd/internal/config"
	"github.com/fyrsmithlabs/blueprintd/internal/gate"
	"github.com/fyrsmithlabs/blueprintd/internal/genai"
	"github.com/fyrsmithlabs/blueprintd/internal/logging"
	"github.com/fyrsmithlabs/blueprintd/internal/quality"
	"github.com/fyrsmithlabs/blueprintd/internal/synth"
)

// Orchestrator drives one generation run end to end. Construct one per run
// so the ledger stays run-scoped.
type Orchestrator struct {
	caller      gate.Caller
	ledger      *genai.Ledger
	logger      *logging.Logger
	maxAttempts int
	deadline    config.Duration
	concurrent  bool

	tracer          trace.Tracer
	runCounter      metric.Int64Counter
	fallbackCounter metric.Int64Counter
	tokenCounter    metric.Int64Counter
}

// New builds an orchestrator. The caller is the backend client; the ledger
// must be the same instance the caller records into.
func New(caller gate.Caller, ledger *genai.Ledger, logger *logging.Logger, cfg config.PipelineConfig) (*Orchestrator, error) {
	meter := otel.Meter("blueprintd/pipeline")

	runCounter, err := meter.Int64Counter("blueprintd.pipeline.runs",
		metric.WithDescription("Pipeline runs started"))
	if err != nil {
		return nil, fmt.Errorf("failed to create run counter: %w", err)
	}
	fallbackCounter, err := meter.Int64Counter("blueprintd.pipeline.fallbacks",
		metric.WithDescription("Stages that fell back to deterministic synthesis"))
	if err != nil {
		return nil, fmt.Errorf("failed to create fallback counter: %w", err)
	}
	tokenCounter, err := meter.Int64Counter("blueprintd.pipeline.tokens",
		metric.WithDescription("Backend tokens consumed"))
	if err != nil {
		return nil, fmt.Errorf("failed to create token counter: %w", err)
	}

	return &Orchestrator{
		caller:          caller,
		ledger:          ledger,
		logger:          logger,
		maxAttempts:     cfg.MaxAttempts,
		deadline:        cfg.Deadline,
		concurrent:      cfg.Concurrent,
		tracer:          otel.Tracer("blueprintd/pipeline"),
		runCounter:      runCounter,
		fallbackCounter: fallbackCounter,
		tokenCounter:    tokenCounter,
	}, nil
}

// Run executes the full pipeline and always returns a complete Result;
// the only error is empty input. Stage order: plan, then TRD, then the
// diagram chain and backlog (in parallel when configured).
func (o *Orchestrator) Run(ctx context.Context, input Input) (*Result, error) {
	if input.Requirements == "" {
		return nil, fmt.Errorf("requirements text is empty")
	}

	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	if d := o.deadline.Duration(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	ctx, span := o.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.String("run.id", runID)))
	defer span.End()
	o.runCounter.Add(ctx, 1)

	input.Images = o.filterImages(ctx, input.Images)

	result := &Result{
		RunID:  runID,
		Stages: make(map[string]StageResult, 5),
	}

	result.Plan, result.Stages[StagePlan] = o.generatePlan(ctx, input)
	result.TRD, result.Stages[StageTRD] = o.generateTRD(ctx, input.Requirements, result.Plan)

	if o.concurrent {
		o.runTail(ctx, input.Requirements, result)
	} else {
		result.HLD, result.Stages[StageHLD] = o.generateHLD(ctx, input.Requirements)
		result.LLD, result.Stages[StageLLD] = o.generateLLD(ctx, input.Requirements, result.HLD.Mermaid)
		result.Backlog, result.Stages[StageBacklog] = o.generateBacklog(ctx, input.Requirements, result.Plan, result.TRD)
	}

	for stage, sr := range result.Stages {
		if sr.Status != StatusGenerated {
			o.fallbackCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
		}
	}

	result.TokensUsed = o.ledger.TotalTokens()
	result.LedgerLines = o.ledger.Records()
	o.tokenCounter.Add(ctx, int64(result.TokensUsed))

	span.SetAttributes(
		attribute.Int("pipeline.stages_generated", result.GeneratedStages()),
		attribute.Int("pipeline.tokens_used", result.TokensUsed),
	)
	o.logger.Info(ctx, "pipeline run complete",
		zap.String("summary", result.Summary()),
		zap.Int("tokens_used", result.TokensUsed),
	)
	return result, nil
}

// runTail runs the diagram chain and the backlog concurrently. The LLD
// depends on the HLD, so diagrams stay sequential within their branch.
func (o *Orchestrator) runTail(ctx context.Context, requirements string, result *Result) {
	var (
		hld, lld             artifact.Diagram
		hldStatus, lldStatus StageResult
		backlog              *artifact.Backlog
		backlogStatus        StageResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hld, hldStatus = o.generateHLD(gctx, requirements)
		lld, lldStatus = o.generateLLD(gctx, requirements, hld.Mermaid)
		return nil
	})
	g.Go(func() error {
		backlog, backlogStatus = o.generateBacklog(gctx, requirements, result.Plan, result.TRD)
		return nil
	})
	// Stage funcs never return errors; degradation is recorded per stage.
	_ = g.Wait()

	result.HLD, result.Stages[StageHLD] = hld, hldStatus
	result.LLD, result.Stages[StageLLD] = lld, lldStatus
	result.Backlog, result.Stages[StageBacklog] = backlog, backlogStatus
}

// generatePlan is deliberately ungated: any non-empty plan text is accepted,
// and backend failure falls back to the synthesized plan.
func (o *Orchestrator) generatePlan(ctx context.Context, input Input) (string, StageResult) {
	ctx = logging.WithStage(ctx, StagePlan)
	ctx, span := o.tracer.Start(ctx, "pipeline.plan")
	defer span.End()

	outcome := o.caller.Call(ctx, planPrompt(input, 1))
	if outcome.Succeeded() && outcome.Text != "" {
		return outcome.Text, StageResult{Status: StatusGenerated, Attempts: 1}
	}

	o.logger.Warn(ctx, "plan generation failed, synthesizing fallback",
		zap.String("kind", string(outcome.Kind)))
	return synth.FallbackPlan(input.Requirements), StageResult{
		Status:   StatusFallback,
		Attempts: 1,
		Reasons:  []string{string(outcome.Kind) + ": " + outcome.Reason},
	}
}

// generateTRD is ungated like the plan, but its failure artifact is the
// placeholder text rather than a synthesized document.
func (o *Orchestrator) generateTRD(ctx context.Context, requirements, plan string) (string, StageResult) {
	ctx = logging.WithStage(ctx, StageTRD)
	ctx, span := o.tracer.Start(ctx, "pipeline.trd")
	defer span.End()

	outcome := o.caller.Call(ctx, trdPrompt(requirements, plan, 1))
	if outcome.Succeeded() && outcome.Text != "" {
		return outcome.Text, StageResult{Status: StatusGenerated, Attempts: 1}
	}

	o.logger.Warn(ctx, "trd generation failed, emitting placeholder",
		zap.String("kind", string(outcome.Kind)))
	return synth.PlaceholderTRD, StageResult{
		Status:   StatusPlaceholder,
		Attempts: 1,
		Reasons:  []string{string(outcome.Kind) + ": " + outcome.Reason},
	}
}

func (o *Orchestrator) generateHLD(ctx context.Context, requirements string) (artifact.Diagram, StageResult) {
	ctx = logging.WithStage(ctx, StageHLD)
	ctx, span := o.tracer.Start(ctx, "pipeline.hld")
	defer span.End()

	res := gate.Generate(ctx, o.caller, o.logger, o.maxAttempts, gate.Spec[artifact.Diagram]{
		Stage: StageHLD,
		Prompt: func(attempt int) genai.Request {
			return hldPrompt(requirements, attempt)
		},
		Parse: func(outcome genai.Outcome) (artifact.Diagram, error) {
			return artifact.Diagram{Kind: artifact.DiagramHLD, Mermaid: artifact.ExtractMermaid(outcome.Text)}, nil
		},
		Validate: func(d artifact.Diagram) quality.Verdict {
			return quality.ValidateDiagram(d.Mermaid)
		},
		Fallback: func() artifact.Diagram {
			return synth.HLDDiagram(requirements)
		},
	})
	return res.Value, stageResult(res)
}

func (o *Orchestrator) generateLLD(ctx context.Context, requirements, hldMermaid string) (artifact.Diagram, StageResult) {
	ctx = logging.WithStage(ctx, StageLLD)
	ctx, span := o.tracer.Start(ctx, "pipeline.lld")
	defer span.End()

	res := gate.Generate(ctx, o.caller, o.logger, o.maxAttempts, gate.Spec[artifact.Diagram]{
		Stage: StageLLD,
		Prompt: func(attempt int) genai.Request {
			return lldPrompt(requirements, hldMermaid, attempt)
		},
		Parse: func(outcome genai.Outcome) (artifact.Diagram, error) {
			return artifact.Diagram{Kind: artifact.DiagramLLD, Mermaid: artifact.ExtractMermaid(outcome.Text)}, nil
		},
		Validate: func(d artifact.Diagram) quality.Verdict {
			return quality.ValidateDiagram(d.Mermaid)
		},
		Fallback: func() artifact.Diagram {
			return synth.LLDDiagram(requirements)
		},
	})
	return res.Value, stageResult(res)
}

// generateBacklog threads both the plan and the TRD into the prompt; a
// placeholder TRD is dropped so failure text never masquerades as context.
func (o *Orchestrator) generateBacklog(ctx context.Context, requirements, plan, trd string) (*artifact.Backlog, StageResult) {
	ctx = logging.WithStage(ctx, StageBacklog)
	ctx, span := o.tracer.Start(ctx, "pipeline.backlog")
	defer span.End()

	res := gate.Generate(ctx, o.caller, o.logger, o.maxAttempts, gate.Spec[*artifact.Backlog]{
		Stage: StageBacklog,
		Prompt: func(attempt int) genai.Request {
			return backlogPrompt(requirements, plan, trd, attempt)
		},
		Parse: func(outcome genai.Outcome) (*artifact.Backlog, error) {
			return artifact.ParseBacklog(outcome.JSON)
		},
		Validate: quality.ValidateBacklog,
		Fallback: func() *artifact.Backlog {
			return synth.FallbackBacklog(requirements)
		},
	})
	// IDs are assigned after acceptance so backend-supplied IDs never leak
	// through. Reassigning fallback trees is harmless.
	res.Value.AssignIDs()
	return res.Value, stageResult(res)
}

// filterImages drops images the backend cannot accept, with a warning per
// skip. An unsupported image never fails the run.
func (o *Orchestrator) filterImages(ctx context.Context, images []ImageInput) []ImageInput {
	kept := images[:0]
	for _, img := range images {
		if !genai.SupportedImageMIME(img.MIMEType) {
			o.logger.Warn(ctx, "skipping unsupported image",
				zap.String("name", img.Name),
				zap.String("mime_type", img.MIMEType),
			)
			continue
		}
		kept = append(kept, img)
	}
	return kept
}

func stageResult[T any](res gate.Result[T]) StageResult {
	status := StatusGenerated
	if res.Source == gate.SourceFallback {
		status = StatusFallback
	}
	return StageResult{Status: status, Attempts: res.Attempts, Reasons: res.Reasons}
}
