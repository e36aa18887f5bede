package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/m-mizutani/goerr/v2"

	"github.com/banking/audit-risk-service/internal/domain"
	"github.com/banking/audit-risk-service/internal/pkg/logger"
)

// Name identifies the store as a weight source
func (s *Store) Name() string { return "database" }

// LoadWeights reads the risk_weights table
func (s *Store) LoadWeights(ctx context.Context) ([]domain.RiskWeight, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT factor_name, category, weight, description
		FROM risk_weights ORDER BY category, factor_name`)
	if err != nil {
		return nil, persistenceErr(err, "failed to load weights")
	}
	defer rows.Close()

	var out []domain.RiskWeight
	for rows.Next() {
		var (
			w        domain.RiskWeight
			category string
		)
		if err := rows.Scan(&w.FactorName, &category, &w.Weight, &w.Description); err != nil {
			return nil, persistenceErr(err, "failed to scan weight")
		}
		w.Category = domain.WeightCategory(category)
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceErr(err, "failed to read weights")
	}
	return out, nil
}

// SaveWeights upserts weight entries in one transaction. The active snapshot
// only changes on the next reload.
func (s *Store) SaveWeights(ctx context.Context, entries []domain.RiskWeight) error {
	for _, w := range entries {
		if !w.Category.Valid() {
			return goerr.Wrap(domain.ErrValidation, "unrecognized weight category", goerr.V("value", w.Category))
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return persistenceErr(err, "failed to begin transaction")
	}
	defer func() {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.log.WithContext(ctx).Warn("Rollback failed", logger.ErrorField(rbErr))
		}
	}()

	for _, w := range entries {
		_, err := tx.Exec(ctx, `
			INSERT INTO risk_weights (factor_name, category, weight, description, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (factor_name, category) DO UPDATE SET
				weight = EXCLUDED.weight,
				description = EXCLUDED.description,
				updated_at = NOW()`,
			w.FactorName, string(w.Category), w.Weight, w.Description)
		if err != nil {
			return persistenceErr(err, "failed to save weight", goerr.V("factor_name", w.FactorName))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return persistenceErr(err, "failed to commit weights")
	}
	return nil
}
