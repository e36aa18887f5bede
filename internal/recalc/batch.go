package recalc

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"

	"github.com/banking/audit-risk-service/internal/domain"
)

// OutcomeStatus is what happened to one area during a bulk run
type OutcomeStatus string

const (
	OutcomeRecomputed        OutcomeStatus = "recomputed"
	OutcomeOverridePreserved OutcomeStatus = "override_preserved"
	OutcomeFailed            OutcomeStatus = "failed"
	OutcomeSkipped           OutcomeStatus = "skipped"
)

// AreaOutcome is the result for one area of a bulk run
type AreaOutcome struct {
	AuditableAreaID uuid.UUID              `json:"auditable_area_id"`
	Status          OutcomeStatus          `json:"status"`
	Priority        *domain.PriorityResult `json:"priority,omitempty"`
	Error           string                 `json:"error,omitempty"`
	Err             error                  `json:"-"`
}

// BatchResult summarises a bulk run. Outcomes follow the store's area order.
type BatchResult struct {
	Outcomes   []AreaOutcome `json:"outcomes"`
	Recomputed int           `json:"recomputed"`
	Preserved  int           `json:"override_preserved"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Duration   time.Duration `json:"duration_ns"`
}

const defaultBatchConcurrency = 4

// RecomputeAll recalculates every area. Each area is locked and committed on
// its own, so one failure never rolls back or stops the others. Once ctx is
// done no new area is started; those areas are reported as skipped.
func (e *Engine) RecomputeAll(ctx context.Context) (*BatchResult, error) {
	ctx, span := e.tracer.Start(ctx, "recalc.RecomputeAll")
	defer span.End()

	started := time.Now()

	ids, err := e.store.ListAreaIDs(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list areas")
	}

	limit := defaultBatchConcurrency
	if e.cfg != nil && e.cfg.Concurrency > 0 {
		limit = e.cfg.Concurrency
	}

	outcomes := make([]AreaOutcome, len(ids))
	var g errgroup.Group
	g.SetLimit(limit)

	for i, id := range ids {
		i, id := i, id
		if ctx.Err() != nil {
			outcomes[i] = AreaOutcome{AuditableAreaID: id, Status: OutcomeSkipped}
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				outcomes[i] = AreaOutcome{AuditableAreaID: id, Status: OutcomeSkipped}
				return nil
			}
			outcomes[i] = e.recomputeArea(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	result := &BatchResult{Outcomes: outcomes, Duration: time.Since(started)}
	for _, o := range outcomes {
		switch o.Status {
		case OutcomeRecomputed:
			result.Recomputed++
		case OutcomeOverridePreserved:
			result.Preserved++
		case OutcomeFailed:
			result.Failed++
		case OutcomeSkipped:
			result.Skipped++
		}
		e.metrics.ObserveBatchArea(string(o.Status))
	}

	e.log.WithContext(ctx).BatchCompleted(len(ids), result.Recomputed, result.Preserved,
		result.Failed, result.Skipped, result.Duration.Milliseconds())

	return result, nil
}

func (e *Engine) recomputeArea(ctx context.Context, areaID uuid.UUID) AreaOutcome {
	tr, err := e.run(ctx, "RecomputeOne", areaID, domain.TriggerFullRecompute, nil)
	if errors.Is(err, errNotStarted) {
		return AreaOutcome{AuditableAreaID: areaID, Status: OutcomeSkipped}
	}
	if err != nil {
		return AreaOutcome{
			AuditableAreaID: areaID,
			Status:          OutcomeFailed,
			Error:           err.Error(),
			Err:             err,
		}
	}

	status := OutcomeRecomputed
	if tr.preserved {
		status = OutcomeOverridePreserved
	}
	return AreaOutcome{
		AuditableAreaID: areaID,
		Status:          status,
		Priority:        tr.state.Snapshot().Priority,
	}
}
