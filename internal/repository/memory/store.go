package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/banking/audit-risk-service/internal/domain"
)

type areaRecord struct {
	mu    sync.Mutex
	state *domain.AreaState
}

// Store keeps area state in process memory. Every read and write works on
// deep copies, so callers never share state with the store.
type Store struct {
	mu      sync.RWMutex
	areas   map[uuid.UUID]*areaRecord
	weights []domain.RiskWeight
}

// New creates an empty store
func New() *Store {
	return &Store{areas: make(map[uuid.UUID]*areaRecord)}
}

// PutArea inserts or replaces an area's full state. Stored values are not
// validated, which lets tests and imports hold data the engine will reject.
func (s *Store) PutArea(_ context.Context, state *domain.AreaState) error {
	if state == nil || state.Area.ID == uuid.Nil {
		return goerr.Wrap(domain.ErrValidation, "area id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.areas[state.Area.ID] = &areaRecord{state: state.Clone()}
	return nil
}

func (s *Store) record(areaID uuid.UUID) (*areaRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.areas[areaID]
	if !ok {
		return nil, goerr.Wrap(domain.ErrNotFound, "area not found", goerr.V("area_id", areaID))
	}
	return rec, nil
}

// ListAreaIDs returns every area ID in a stable order
func (s *Store) ListAreaIDs(_ context.Context) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(s.areas))
	for id := range s.areas {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

// Load returns a copy of an area's state
func (s *Store) Load(_ context.Context, areaID uuid.UUID) (*domain.AreaState, error) {
	rec, err := s.record(areaID)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.state.Clone(), nil
}

// ListPriorities returns the audit plan rows that pass filter, ordered by
// priority level with unscheduled areas last
func (s *Store) ListPriorities(ctx context.Context, filter domain.PriorityFilter) ([]domain.PriorityEntry, error) {
	s.mu.RLock()
	records := make([]*areaRecord, 0, len(s.areas))
	for _, rec := range s.areas {
		records = append(records, rec)
	}
	s.mu.RUnlock()

	out := make([]domain.PriorityEntry, 0, len(records))
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, goerr.Wrap(err, "priority listing cancelled")
		}
		rec.mu.Lock()
		e := rec.state.PriorityEntry()
		rec.mu.Unlock()

		if filter.Match(&e) {
			out = append(out, e)
		}
	}
	domain.SortPriorityEntries(out)
	return out, nil
}

// Update applies fn to a copy of the area's state and swaps it in only when fn succeeds
func (s *Store) Update(ctx context.Context, areaID uuid.UUID, fn func(*domain.AreaState) error) (*domain.AreaState, error) {
	rec, err := s.record(areaID)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, goerr.Wrap(err, "update cancelled", goerr.V("area_id", areaID))
	}

	working := rec.state.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	rec.state = working
	return working.Clone(), nil
}

// SaveWeights upserts weight entries keyed by factor and category. The
// active snapshot only changes on the next reload.
func (s *Store) SaveWeights(_ context.Context, entries []domain.RiskWeight) error {
	for _, w := range entries {
		if !w.Category.Valid() {
			return goerr.Wrap(domain.ErrValidation, "unrecognized weight category", goerr.V("value", w.Category))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range entries {
		replaced := false
		for i := range s.weights {
			if s.weights[i].FactorName == w.FactorName && s.weights[i].Category == w.Category {
				s.weights[i] = w
				replaced = true
				break
			}
		}
		if !replaced {
			s.weights = append(s.weights, w)
		}
	}
	return nil
}

// Name identifies the store as a weight source
func (s *Store) Name() string { return "memory" }

// LoadWeights returns the stored weight table
func (s *Store) LoadWeights(_ context.Context) ([]domain.RiskWeight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.RiskWeight(nil), s.weights...), nil
}
