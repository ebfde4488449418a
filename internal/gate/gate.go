// Package gate wraps backend generation with validation and bounded
// regeneration. An artifact is accepted only when it passes its validator;
// rejected attempts regenerate with an escalated prompt, and exhaustion or
// backend failure falls back to deterministic synthesis.
package gate

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/blueprintd/internal/genai"
	"github.com/fyrsmithlabs/blueprintd/internal/logging"
	"github.com/fyrsmithlabs/blueprintd/internal/quality"
)

// Caller is the backend client surface the gate needs.
type Caller interface {
	Call(ctx context.Context, req genai.Request) genai.Outcome
}

// Source records how an artifact was produced.
type Source string

const (
	SourceGenerated Source = "generated"
	SourceFallback  Source = "fallback"
)

// Spec describes one gated stage. Prompt receives the 1-based attempt number
// so builders can escalate specificity on retries.
type Spec[T any] struct {
	Stage    string
	Prompt   func(attempt int) genai.Request
	Parse    func(outcome genai.Outcome) (T, error)
	Validate func(T) quality.Verdict
	Fallback func() T
}

// Result is the gated outcome: the artifact, its provenance, and the attempt
// history that produced it.
type Result[T any] struct {
	Value    T
	Source   Source
	Attempts int
	// Reasons holds the last rejection reasons when fallback was taken.
	Reasons []string
}

// Generate drives one stage to an accepted artifact. Validation failures and
// malformed output regenerate up to maxAttempts; backend failures (rate
// limit exhaustion, unavailability, fatal errors) go straight to fallback
// since the client has already spent its own retries.
func Generate[T any](ctx context.Context, caller Caller, logger *logging.Logger, maxAttempts int, spec Spec[T]) Result[T] {
	var lastReasons []string

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		outcome := caller.Call(ctx, spec.Prompt(attempt))

		switch outcome.Kind {
		case genai.OutcomeSuccess:
			value, err := spec.Parse(outcome)
			if err != nil {
				lastReasons = []string{"failed to parse response: " + err.Error()}
				logger.Warn(ctx, "generated artifact unparsable, regenerating",
					zap.String("stage", spec.Stage),
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
				continue
			}
			verdict := spec.Validate(value)
			if verdict.Valid {
				return Result[T]{Value: value, Source: SourceGenerated, Attempts: attempt}
			}
			lastReasons = verdict.Reasons
			logger.Warn(ctx, "generated artifact rejected by quality gate",
				zap.String("stage", spec.Stage),
				zap.Int("attempt", attempt),
				zap.Strings("reasons", verdict.Reasons),
			)

		case genai.OutcomeMalformed:
			lastReasons = []string{"response contained no valid JSON"}
			logger.Warn(ctx, "malformed structured output, regenerating",
				zap.String("stage", spec.Stage),
				zap.Int("attempt", attempt),
			)

		default:
			// The client exhausted its own retry budget; more attempts here
			// would just burn quota.
			lastReasons = []string{string(outcome.Kind) + ": " + outcome.Reason}
			logger.Warn(ctx, "backend failure, using fallback",
				zap.String("stage", spec.Stage),
				zap.Int("attempt", attempt),
				zap.String("kind", string(outcome.Kind)),
			)
			return Result[T]{Value: spec.Fallback(), Source: SourceFallback, Attempts: attempt, Reasons: lastReasons}
		}
	}

	logger.Warn(ctx, "quality gate exhausted attempts, using fallback",
		zap.String("stage", spec.Stage),
		zap.Int("attempts", maxAttempts),
		zap.Strings("reasons", lastReasons),
	)
	return Result[T]{Value: spec.Fallback(), Source: SourceFallback, Attempts: maxAttempts, Reasons: lastReasons}
}
