// Package extraction turns a product homepage into structured market
// intel and classifies every attempt into one of four outcomes.
package extraction

import (
	"context"
	"time"

	"github.com/rohmanhakim/saas-intel/internal/metadata"
	"github.com/rohmanhakim/saas-intel/pkg/limiter"
)

// SourceName is the rate-limiter key for the extraction provider.
const SourceName = "openai"

/*
Adapter

Responsibilities
  - Wait for the provider budget before every attempt
  - Call the collaborator and classify the raw result
  - On success, reset the provider's backoff
  - Back off on request after a rate-limit classification

It does not touch the store or the output file; the caller applies
the outcome and decides whether another attempt follows.
*/
type Adapter struct {
	collaborator Collaborator
	limiter      *limiter.Limiter
	metadataSink metadata.MetadataSink
	schema       string
	instruction  string
	isRateLimit  limiter.Predicate
}

func NewAdapter(
	collaborator Collaborator,
	l *limiter.Limiter,
	metadataSink metadata.MetadataSink,
) *Adapter {
	return &Adapter{
		collaborator: collaborator,
		limiter:      l,
		metadataSink: metadataSink,
		schema:       SchemaTemplate(),
		instruction:  Instruction,
		isRateLimit:  RateLimitPredicate,
	}
}

// Extract runs one attempt against homepageURL. The error is non-nil only
// when ctx ended; every other problem is inside the Outcome.
func (a *Adapter) Extract(ctx context.Context, homepageURL string) (Outcome, error) {
	if err := a.limiter.Wait(ctx, SourceName); err != nil {
		return Outcome{}, err
	}

	raw, collabErr := a.collaborator.Extract(ctx, homepageURL, a.schema, a.instruction)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Outcome{}, ctxErr
	}
	outcome := Classify(raw, collabErr, a.isRateLimit)

	if outcome.Success() {
		a.limiter.RecordSuccess(SourceName)
		return outcome, nil
	}

	a.metadataSink.RecordError(
		time.Now(),
		"extraction",
		"Adapter.Extract",
		mapKindToMetadataCause(outcome),
		outcome.Reason(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, homepageURL),
			metadata.NewAttr(metadata.AttrMessage, string(outcome.Kind)),
		},
	)
	return outcome, nil
}

// Backoff applies the provider's rate-limit backoff for a rate-limited
// outcome and returns the delay slept. Other outcomes are a no-op. Call it
// before the next attempt, not after the last one.
func (a *Adapter) Backoff(ctx context.Context, outcome Outcome) (time.Duration, error) {
	if !outcome.IsRateLimit {
		return 0, nil
	}
	return a.limiter.HandleRateLimit(ctx, SourceName, rateLimitCause(outcome))
}

type outcomeError struct{ o Outcome }

func (e outcomeError) Error() string              { return e.o.Reason() }
func (e outcomeError) IsRateLimit() bool          { return e.o.IsRateLimit }
func (e outcomeError) RetryAfter() time.Duration { return e.o.RetryAfter }

func rateLimitCause(o Outcome) error {
	return outcomeError{o: o}
}
