package recalc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/banking/audit-risk-service/internal/config"
	"github.com/banking/audit-risk-service/internal/domain"
	"github.com/banking/audit-risk-service/internal/lock"
	"github.com/banking/audit-risk-service/internal/pkg/logger"
	"github.com/banking/audit-risk-service/internal/scoring"
	"github.com/banking/audit-risk-service/internal/telemetry"
)

const tracerName = "github.com/banking/audit-risk-service/internal/recalc"

// AreaStore persists the state of auditable areas
type AreaStore interface {
	ListAreaIDs(ctx context.Context) ([]uuid.UUID, error)
	Load(ctx context.Context, areaID uuid.UUID) (*domain.AreaState, error)
	// Update loads the area's state, applies fn and persists the result as
	// one unit of work. Nothing is written when fn returns an error.
	Update(ctx context.Context, areaID uuid.UUID, fn func(state *domain.AreaState) error) (*domain.AreaState, error)
	ListPriorities(ctx context.Context, filter domain.PriorityFilter) ([]domain.PriorityEntry, error)
}

// errNotStarted marks runs abandoned before the area was locked
var errNotStarted = errors.New("recalculation not started")

// Locker provides per-area mutual exclusion
type Locker interface {
	Lock(ctx context.Context, areaID uuid.UUID) (lock.Unlock, error)
}

// Publisher receives an event after each committed recalculation
type Publisher interface {
	Publish(ctx context.Context, evt *domain.RecalculationEvent) error
}

// Engine keeps every derived risk field of an area consistent with its
// inputs. Each mutation runs under the area's lock and is persisted as a
// single unit of work together with everything it invalidates.
type Engine struct {
	store     AreaStore
	locker    Locker
	weights   *scoring.WeightConfig
	policy    scoring.PriorityPolicy
	publisher Publisher
	metrics   *telemetry.Metrics

	cfg    *config.BatchConfig
	log    *logger.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the time source used for timestamps and audit years
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPublisher sets where recalculation events go
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates a new recalculation engine
func NewEngine(
	store AreaStore,
	locker Locker,
	weights *scoring.WeightConfig,
	policy scoring.PriorityPolicy,
	cfg *config.BatchConfig,
	log *logger.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		store:     store,
		locker:    locker,
		weights:   weights,
		policy:    policy,
		publisher: noopPublisher{},
		cfg:       cfg,
		log:       log.Named("recalc_engine"),
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, *domain.RecalculationEvent) error { return nil }

// mutation changes inputs of a loaded state before derived fields are recomputed
type mutation func(st *domain.AreaState, now time.Time) error

// result of one committed transition
type transition struct {
	state     *domain.AreaState
	trigger   domain.Trigger
	preserved bool
}

// run executes one transition: lock, load, mutate, recompute, persist, publish
func (e *Engine) run(ctx context.Context, op string, areaID uuid.UUID, trigger domain.Trigger, mutate mutation) (*transition, error) {
	ctx = context.WithValue(ctx, logger.AreaIDKey, areaID.String())
	ctx, span := e.tracer.Start(ctx, "recalc."+op, trace.WithAttributes(
		attribute.String("area_id", areaID.String()),
		attribute.String("trigger", string(trigger)),
	))
	defer span.End()

	started := time.Now()
	log := e.log.WithContext(ctx)

	fail := func(err error) (*transition, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.metrics.ObserveRecalculation(string(trigger), "failed", time.Since(started))
		log.RecalculationFailed(string(trigger), err)
		return nil, err
	}

	unlock, err := e.locker.Lock(ctx, areaID)
	if err != nil && ctx.Err() != nil {
		// gave up before touching the area
		span.AddEvent("lock wait abandoned")
		return nil, goerr.Wrap(errors.Join(errNotStarted, err), "recalculation not started", goerr.V("area_id", areaID))
	}
	if err != nil {
		return fail(goerr.Wrap(err, "failed to lock area", goerr.V("area_id", areaID)))
	}
	defer unlock()
	e.metrics.ObserveLockWait(time.Since(started))

	// one snapshot for the whole run
	w := e.weights.Current()
	now := e.now()

	var effective domain.Trigger
	var preserved bool
	state, err := e.store.Update(ctx, areaID, func(st *domain.AreaState) error {
		effective, preserved = trigger, false

		if err := st.Validate(); err != nil {
			return goerr.Wrap(err, "stored area state is malformed", goerr.V("area_id", areaID))
		}
		if st.RiskFactor == nil {
			st.RiskFactor = domain.NewRiskFactor(areaID, now)
			effective = domain.TriggerFullRecompute
		} else if !st.RiskFactor.CombinedResidualRiskLevel.Valid() {
			// never calculated: nothing to reuse
			effective = domain.TriggerFullRecompute
		}

		if mutate != nil {
			if err := mutate(st, now); err != nil {
				return err
			}
		}

		p, err := e.recompute(st, effective, w, now)
		if err != nil {
			return err
		}
		preserved = p
		return nil
	})
	if err != nil {
		return fail(goerr.Wrap(err, "recalculation failed",
			goerr.V("area_id", areaID), goerr.V("trigger", trigger)))
	}

	outcome := "recomputed"
	if preserved {
		outcome = "override_preserved"
	}
	if preserved && trigger != domain.TriggerPriorityOverridden {
		log.OverridePreserved(state.Priority.PriorityLevel, state.Priority.ProposedAuditYear)
	}
	e.metrics.ObserveRecalculation(string(effective), outcome, time.Since(started))
	span.SetAttributes(
		attribute.String("effective_trigger", string(effective)),
		attribute.Int64("weights_version", int64(w.Version())),
	)

	rf := state.RiskFactor
	log.RecalculationCompleted(string(effective),
		rf.InherentRiskScore, rf.CombinedResidualRisk, string(rf.CombinedResidualRiskLevel),
		time.Since(started).Milliseconds())

	e.publish(ctx, log, state, effective, w.Version(), now)

	return &transition{state: state, trigger: effective, preserved: preserved}, nil
}

// recompute refreshes exactly the derived fields the trigger invalidates and
// then the priority. It reports whether a manual priority was left in place.
func (e *Engine) recompute(st *domain.AreaState, trigger domain.Trigger, w *scoring.Weights, now time.Time) (bool, error) {
	rf := st.RiskFactor

	refreshInherent := trigger == domain.TriggerRatingsChanged || trigger == domain.TriggerFullRecompute
	refreshHaircut := trigger == domain.TriggerCoverageChanged || trigger == domain.TriggerFullRecompute
	refreshResidual := refreshInherent || refreshHaircut || trigger == domain.TriggerEnterpriseResidualChanged

	if refreshInherent {
		inherent, err := w.InherentRisk(rf.Ratings)
		if err != nil {
			return false, err
		}
		rf.InherentRiskScore = inherent
	}
	if refreshHaircut {
		haircut, err := w.Haircut(st.CoverageLevels())
		if err != nil {
			return false, err
		}
		rf.AssuranceHaircut = haircut
	}
	if refreshResidual {
		residual, err := w.Combine(rf.InherentRiskScore, rf.AssuranceHaircut, rf.EnterpriseResidualRisk)
		if err != nil {
			return false, err
		}
		rf.InternalAuditResidualScore = residual.InternalAuditScore
		rf.InternalAuditResidualRisk = residual.InternalAuditLevel
		rf.CombinedResidualRisk = residual.CombinedScore
		rf.CombinedResidualRiskLevel = residual.CombinedLevel
		rf.WeightsVersion = w.Version()
		rf.CalculatedAt = now
		rf.UpdatedAt = now
	}

	if st.Priority != nil && st.Priority.Overridden {
		return true, nil
	}

	sched, err := e.policy.Schedule(rf.CombinedResidualRiskLevel, st.Area.RegulatoryRequirement, now)
	if err != nil {
		return false, err
	}
	if st.Priority == nil {
		st.Priority = &domain.PriorityResult{AuditableAreaID: st.Area.ID}
	}
	justification := fmt.Sprintf("Combined residual risk %s (%.2f)", rf.CombinedResidualRiskLevel, rf.CombinedResidualRisk)
	if st.Area.RegulatoryRequirement {
		justification += "; regulatory requirement"
	}
	st.Priority.PriorityLevel = sched.PriorityLevel
	st.Priority.ProposedAuditYear = sched.ProposedAuditYear
	st.Priority.Justification = &justification
	st.Priority.CalculatedAt = now
	st.Priority.UpdatedAt = now

	return false, nil
}

// publish is best effort: the transition is already committed
func (e *Engine) publish(ctx context.Context, log *logger.Logger, st *domain.AreaState, trigger domain.Trigger, version uint64, now time.Time) {
	snap := st.Snapshot()
	evt := &domain.RecalculationEvent{
		EventID:         uuid.New(),
		AuditableAreaID: st.Area.ID,
		Trigger:         trigger,
		RiskFactor:      snap.RiskFactor,
		Priority:        snap.Priority,
		WeightsVersion:  version,
		OccurredAt:      now,
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.publisher.Publish(pubCtx, evt); err != nil {
		e.metrics.EventPublishFailed()
		log.EventPublishFailed(string(trigger), err)
	}
}
