package scoring

import (
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/banking/audit-risk-service/internal/config"
	"github.com/banking/audit-risk-service/internal/domain"
)

// Schedule is a computed audit priority
type Schedule struct {
	PriorityLevel     int
	ProposedAuditYear int
}

// PriorityPolicy maps a combined residual level and the regulatory flag onto
// a priority and a target year. Higher risk and regulatory areas get smaller
// priority numbers and nearer years.
type PriorityPolicy struct {
	yearOffsets map[domain.RiskLevel]int
	// earliest offset a regulatory area of the level may be pulled to
	regulatoryFloor map[domain.RiskLevel]int
}

// NewPriorityPolicy builds a policy from configuration. Offsets below one year are raised to one.
func NewPriorityPolicy(cfg *config.PriorityConfig) PriorityPolicy {
	atLeastOne := func(v int) int {
		if v < 1 {
			return 1
		}
		return v
	}
	high := atLeastOne(cfg.YearOffsetHigh)
	medium := atLeastOne(cfg.YearOffsetMedium)
	low := atLeastOne(cfg.YearOffsetLow)
	// keep years non-decreasing as risk falls
	if medium < high {
		medium = high
	}
	if low < medium {
		low = medium
	}
	return PriorityPolicy{
		yearOffsets: map[domain.RiskLevel]int{
			domain.RiskLevelHigh:   high,
			domain.RiskLevelMedium: medium,
			domain.RiskLevelLow:    low,
		},
		regulatoryFloor: map[domain.RiskLevel]int{
			domain.RiskLevelHigh:   1,
			domain.RiskLevelMedium: high,
			domain.RiskLevelLow:    medium,
		},
	}
}

// DefaultPriorityPolicy schedules High next year, Medium in two years and Low in three
func DefaultPriorityPolicy() PriorityPolicy {
	return NewPriorityPolicy(&config.PriorityConfig{YearOffsetHigh: 1, YearOffsetMedium: 2, YearOffsetLow: 3})
}

var levelBase = map[domain.RiskLevel]int{
	domain.RiskLevelHigh:   1,
	domain.RiskLevelMedium: 3,
	domain.RiskLevelLow:    5,
}

// Schedule computes the priority for a combined level. Within a level,
// regulatory areas rank first and are pulled one year earlier, but never
// ahead of the next more severe level.
func (p PriorityPolicy) Schedule(level domain.RiskLevel, regulatory bool, now time.Time) (Schedule, error) {
	base, ok := levelBase[level]
	if !ok {
		return Schedule{}, goerr.Wrap(domain.ErrValidation, "unrecognized combined residual level", goerr.V("value", level))
	}

	priority := base
	offset := p.yearOffsets[level]
	if regulatory {
		if offset-1 >= p.regulatoryFloor[level] {
			offset--
		}
	} else {
		priority++
	}

	return Schedule{
		PriorityLevel:     priority,
		ProposedAuditYear: now.Year() + offset,
	}, nil
}
