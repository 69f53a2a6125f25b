package insight_engine

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/paperlens-ai/paperlens/internal/models"
)

// Session is the progressive insight flow: one extraction group per Step
// call, in order, then a final merge step. It keeps the loop host-agnostic —
// a browser, a server loop, or a CLI can drive it the same way.
//
// Cancellation is cooperative: Cancel takes effect at the next Step boundary,
// never mid-call; a cancelled session caches nothing and discards what it
// accumulated.
type Session struct {
	engine *Engine
	docID  string
	plan   Plan

	groupIndex  int
	accumulated []models.Insight
	seen        map[string]struct{}
	cancelled   atomic.Bool
	done        bool
	final       Outcome
}

// StepResult is what one Step surfaced to the caller.
type StepResult struct {
	// NewInsights are the candidates surfaced by this step, deduplicated by
	// ID against everything surfaced earlier in the session.
	NewInsights []models.Insight
	// GroupIndex is the group this step extracted, -1 for the merge step.
	GroupIndex int
	// Done is true once the session has merged and cached (or was cancelled).
	Done bool
	// Outcome is set on the final step only.
	Outcome *Outcome
}

// NewSession prepares a progressive run. A warm cache short-circuits the whole
// session: the first Step returns the cached set and Done.
func (e *Engine) NewSession(ctx context.Context, docID string) (*Session, error) {
	s := &Session{
		engine: e,
		docID:  docID,
		seen:   make(map[string]struct{}),
	}

	cached, err := e.db.GetDocumentInsights(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("read insight cache: %w", err)
	}
	if len(cached) > 0 {
		s.done = true
		s.final = Outcome{Insights: cached}
		return s, nil
	}

	plan, err := e.GetInsightPlan(ctx, docID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		s.done = true
		return s, nil
	}
	s.plan = *plan
	return s, nil
}

// Plan returns the session's group plan (zero value when the document had no
// chunks or the cache was warm).
func (s *Session) Plan() Plan { return s.plan }

// Cancel requests cooperative cancellation. In-flight work is not aborted;
// it is simply not continued and its results are discarded.
func (s *Session) Cancel() { s.cancelled.Store(true) }

// Done reports whether the session has finished (merged, cancelled, or
// short-circuited by cache).
func (s *Session) Done() bool { return s.done }

// Step advances the session by one safe checkpoint: one group extraction, or
// the final merge once all groups are consumed. Calling Step after Done
// returns the final state again.
func (s *Session) Step(ctx context.Context) (StepResult, error) {
	if s.done {
		return StepResult{GroupIndex: -1, Done: true, Outcome: &s.final}, nil
	}
	if s.cancelled.Load() {
		s.done = true
		return StepResult{GroupIndex: -1, Done: true}, nil
	}

	if s.groupIndex < s.plan.TotalGroups {
		gi := s.groupIndex
		s.groupIndex++

		insights, err := s.engine.ExtractGroupInsights(ctx, s.docID, gi, s.plan.TotalGroups)
		if err != nil {
			// This group contributes nothing; the run continues.
			log.Printf("insight_engine: session group %d failed for doc %s: %v", gi, s.docID, err)
			return StepResult{GroupIndex: gi}, nil
		}

		// Guard against duplicate emission when a caller overlaps requests.
		var fresh []models.Insight
		for _, in := range insights {
			if _, dup := s.seen[in.ID]; dup {
				continue
			}
			s.seen[in.ID] = struct{}{}
			fresh = append(fresh, in)
		}
		s.accumulated = append(s.accumulated, fresh...)
		return StepResult{NewInsights: fresh, GroupIndex: gi}, nil
	}

	outcome, err := s.engine.MergeAndCacheInsights(ctx, s.docID, s.accumulated)
	if err != nil {
		return StepResult{GroupIndex: -1}, err
	}
	s.done = true
	s.final = outcome
	return StepResult{GroupIndex: -1, Done: true, Outcome: &s.final}, nil
}
