package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/banking/audit-risk-service/internal/config"
	"github.com/banking/audit-risk-service/internal/domain"
	"github.com/banking/audit-risk-service/internal/pkg/logger"
)

// Names of the non-factor weights, thresholds and coverage ratios
const (
	WeightCoverageInternalAudit = "Assurance_InternalAudit"
	WeightCoverageThirdParty    = "Assurance_ThirdParty"
	WeightResidualInternalAudit = "InternalAudit_ResidualWeight"
	WeightResidualEnterprise    = "ERM_ResidualWeight"

	ThresholdInherentHigh   = "inherent_high"
	ThresholdInherentMedium = "inherent_medium"
	ThresholdCombinedHigh   = "combined_high"
	ThresholdCombinedMedium = "combined_medium"
)

const sumEpsilon = 1e-6

type defaultValue struct {
	category    domain.WeightCategory
	value       float64
	description string
}

// Default values, used whenever a source omits an entry or supplies an invalid one
var defaultWeights = map[string]defaultValue{
	string(domain.FactorFinancialImpact):          {domain.WeightCategoryRiskFactor, 0.15, "Financial impact"},
	string(domain.FactorLegalComplianceImpact):    {domain.WeightCategoryRiskFactor, 0.15, "Legal and compliance impact"},
	string(domain.FactorStrategicSignificance):    {domain.WeightCategoryRiskFactor, 0.20, "Strategic significance"},
	string(domain.FactorTechnologicalCyberImpact): {domain.WeightCategoryRiskFactor, 0.15, "Technological and cyber impact"},
	string(domain.FactorNewProcessSystem):         {domain.WeightCategoryRiskFactor, 0.10, "New process or system"},
	string(domain.FactorStakeholderImpact):        {domain.WeightCategoryRiskFactor, 0.10, "Stakeholder impact"},
	string(domain.FactorCLevelConcerns):           {domain.WeightCategoryRiskFactor, 0.15, "C-level concerns"},

	WeightCoverageInternalAudit: {domain.WeightCategoryAssuranceCoverage, 0.5, "Internal audit share of the coverage haircut"},
	WeightCoverageThirdParty:    {domain.WeightCategoryAssuranceCoverage, 0.5, "Third-party share of the coverage haircut"},

	WeightResidualInternalAudit: {domain.WeightCategoryResidualRisk, 0.8, "Internal audit residual weight"},
	WeightResidualEnterprise:    {domain.WeightCategoryResidualRisk, 0.2, "Enterprise risk management residual weight"},

	ThresholdInherentHigh:   {domain.WeightCategoryThreshold, 1.8, "Lower bound of High on the inherent scale"},
	ThresholdInherentMedium: {domain.WeightCategoryThreshold, 1.0, "Lower bound of Medium on the inherent scale"},
	ThresholdCombinedHigh:   {domain.WeightCategoryThreshold, 3.6, "Lower bound of High on the combined scale"},
	ThresholdCombinedMedium: {domain.WeightCategoryThreshold, 2.1, "Lower bound of Medium on the combined scale"},

	string(domain.CoverageComprehensive): {domain.WeightCategoryCoverageRatio, 0.95, "Haircut ratio for comprehensive coverage"},
	string(domain.CoverageModerate):      {domain.WeightCategoryCoverageRatio, 0.50, "Haircut ratio for moderate coverage"},
	string(domain.CoverageLimited):       {domain.WeightCategoryCoverageRatio, 0.15, "Haircut ratio for limited coverage"},
}

// WarningCode classifies a configuration warning
type WarningCode string

const (
	WarningMissing          WarningCode = "weight_missing"
	WarningUnknown          WarningCode = "weight_unknown"
	WarningInvalid          WarningCode = "weight_invalid"
	WarningDuplicate        WarningCode = "weight_duplicate"
	WarningCategoryMismatch WarningCode = "weight_category_mismatch"
	WarningSumMismatch      WarningCode = "weight_sum_mismatch"
	WarningOrdering         WarningCode = "weight_ordering"
)

// Warning is a non-fatal configuration problem. Scoring proceeds with
// defaults or the values as given.
type Warning struct {
	Code    WarningCode `json:"code"`
	Name    string      `json:"name"`
	Message string      `json:"message"`
}

// Weights is an immutable, versioned snapshot of every scoring parameter
type Weights struct {
	version  uint64
	values   map[string]float64
	loadedAt time.Time
}

// Version identifies the snapshot. Later snapshots have larger versions.
func (w *Weights) Version() uint64 { return w.version }

// LoadedAt is when the snapshot was installed
func (w *Weights) LoadedAt() time.Time { return w.loadedAt }

// Weight returns the named weight, falling back to its default
func (w *Weights) Weight(name string) float64 {
	if v, ok := w.values[name]; ok {
		return v
	}
	return defaultWeights[name].value
}

// Threshold returns the named classification threshold, falling back to its default
func (w *Weights) Threshold(name string) float64 {
	return w.Weight(name)
}

// CoverageRatio returns the haircut ratio for a coverage level
func (w *Weights) CoverageRatio(level domain.CoverageLevel) float64 {
	return w.Weight(string(level))
}

// Entries lists the effective values, ordered by category then name
func (w *Weights) Entries() []domain.RiskWeight {
	out := make([]domain.RiskWeight, 0, len(defaultWeights))
	for name, d := range defaultWeights {
		out = append(out, domain.RiskWeight{
			FactorName:  name,
			Category:    d.category,
			Weight:      w.Weight(name),
			Description: d.description,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].FactorName < out[j].FactorName
	})
	return out
}

// DefaultEntries returns the documented defaults as weight-table rows
func DefaultEntries() []domain.RiskWeight {
	return (&Weights{}).Entries()
}

// EntriesFromConfig converts the scoring section of the configuration into weight-table rows
func EntriesFromConfig(cfg *config.ScoringConfig) []domain.RiskWeight {
	row := func(name string, v float64) domain.RiskWeight {
		return domain.RiskWeight{FactorName: name, Category: defaultWeights[name].category, Weight: v}
	}
	return []domain.RiskWeight{
		row(string(domain.FactorFinancialImpact), cfg.Factors.FinancialImpact),
		row(string(domain.FactorLegalComplianceImpact), cfg.Factors.LegalComplianceImpact),
		row(string(domain.FactorStrategicSignificance), cfg.Factors.StrategicSignificance),
		row(string(domain.FactorTechnologicalCyberImpact), cfg.Factors.TechnologicalCyberImpact),
		row(string(domain.FactorNewProcessSystem), cfg.Factors.NewProcessSystem),
		row(string(domain.FactorStakeholderImpact), cfg.Factors.StakeholderImpact),
		row(string(domain.FactorCLevelConcerns), cfg.Factors.CLevelConcerns),
		row(WeightCoverageInternalAudit, cfg.CoverageBlend.InternalAudit),
		row(WeightCoverageThirdParty, cfg.CoverageBlend.ThirdParty),
		row(WeightResidualInternalAudit, cfg.ResidualBlend.InternalAudit),
		row(WeightResidualEnterprise, cfg.ResidualBlend.Enterprise),
		row(string(domain.CoverageComprehensive), cfg.CoverageRatios.Comprehensive),
		row(string(domain.CoverageModerate), cfg.CoverageRatios.Moderate),
		row(string(domain.CoverageLimited), cfg.CoverageRatios.Limited),
		row(ThresholdInherentHigh, cfg.Thresholds.InherentHigh),
		row(ThresholdInherentMedium, cfg.Thresholds.InherentMedium),
		row(ThresholdCombinedHigh, cfg.Thresholds.CombinedHigh),
		row(ThresholdCombinedMedium, cfg.Thresholds.CombinedMedium),
	}
}

// buildWeights validates entries and produces a snapshot plus the problems found
func buildWeights(entries []domain.RiskWeight, version uint64, now time.Time) (*Weights, []Warning) {
	var warnings []Warning
	warn := func(code WarningCode, name, format string, args ...interface{}) {
		warnings = append(warnings, Warning{Code: code, Name: name, Message: fmt.Sprintf(format, args...)})
	}

	values := make(map[string]float64, len(defaultWeights))
	for _, e := range entries {
		d, known := defaultWeights[e.FactorName]
		switch {
		case !known:
			warn(WarningUnknown, e.FactorName, "unknown weight %q in category %q ignored", e.FactorName, e.Category)
			continue
		case e.Category != "" && e.Category != d.category:
			warn(WarningCategoryMismatch, e.FactorName, "weight %q belongs to %q, found under %q; ignored", e.FactorName, d.category, e.Category)
			continue
		case math.IsNaN(e.Weight) || math.IsInf(e.Weight, 0) || e.Weight < 0:
			warn(WarningInvalid, e.FactorName, "weight %q has invalid value %v; using default %v", e.FactorName, e.Weight, d.value)
			continue
		case d.category == domain.WeightCategoryCoverageRatio && e.Weight > 1:
			warn(WarningInvalid, e.FactorName, "coverage ratio %q must be within [0,1], got %v; using default %v", e.FactorName, e.Weight, d.value)
			continue
		}
		if _, dup := values[e.FactorName]; dup {
			warn(WarningDuplicate, e.FactorName, "weight %q supplied more than once; last value wins", e.FactorName)
		}
		values[e.FactorName] = e.Weight
	}

	names := make([]string, 0, len(defaultWeights))
	for name := range defaultWeights {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := values[name]; !ok {
			warn(WarningMissing, name, "weight %q not configured; using default %v", name, defaultWeights[name].value)
		}
	}

	w := &Weights{version: version, values: values, loadedAt: now}

	for _, category := range []domain.WeightCategory{
		domain.WeightCategoryRiskFactor,
		domain.WeightCategoryAssuranceCoverage,
		domain.WeightCategoryResidualRisk,
	} {
		sum := 0.0
		for _, name := range names {
			if defaultWeights[name].category == category {
				sum += w.Weight(name)
			}
		}
		if math.Abs(sum-1.0) > sumEpsilon {
			warn(WarningSumMismatch, string(category), "%s weights sum to %v, expected 1.0", category, sum)
		}
	}

	if w.Threshold(ThresholdInherentMedium) >= w.Threshold(ThresholdInherentHigh) {
		warn(WarningOrdering, ThresholdInherentMedium, "inherent medium threshold %v is not below high threshold %v",
			w.Threshold(ThresholdInherentMedium), w.Threshold(ThresholdInherentHigh))
	}
	if w.Threshold(ThresholdCombinedMedium) >= w.Threshold(ThresholdCombinedHigh) {
		warn(WarningOrdering, ThresholdCombinedMedium, "combined medium threshold %v is not below high threshold %v",
			w.Threshold(ThresholdCombinedMedium), w.Threshold(ThresholdCombinedHigh))
	}
	if !(w.CoverageRatio(domain.CoverageComprehensive) > w.CoverageRatio(domain.CoverageModerate) &&
		w.CoverageRatio(domain.CoverageModerate) > w.CoverageRatio(domain.CoverageLimited)) {
		warn(WarningOrdering, string(domain.WeightCategoryCoverageRatio),
			"coverage ratios are not strictly ordered Comprehensive > Moderate > Limited")
	}

	return w, warnings
}

// WeightSource supplies weight-table rows on demand
type WeightSource interface {
	Name() string
	LoadWeights(ctx context.Context) ([]domain.RiskWeight, error)
}

// ConfigSource reads weights from the scoring configuration section
type ConfigSource struct {
	cfg *config.ScoringConfig
}

// NewConfigSource wraps a scoring configuration
func NewConfigSource(cfg *config.ScoringConfig) *ConfigSource {
	return &ConfigSource{cfg: cfg}
}

// Name identifies the source in logs
func (s *ConfigSource) Name() string { return "config" }

// LoadWeights implements WeightSource
func (s *ConfigSource) LoadWeights(context.Context) ([]domain.RiskWeight, error) {
	return EntriesFromConfig(s.cfg), nil
}

// WeightStore is a writable weight source
type WeightStore interface {
	WeightSource
	SaveWeights(ctx context.Context, entries []domain.RiskWeight) error
}

// SeedWeights writes entries into an empty store and reports whether it did.
// A store that already holds rows is left alone.
func SeedWeights(ctx context.Context, store WeightStore, entries []domain.RiskWeight) (bool, error) {
	existing, err := store.LoadWeights(ctx)
	if err != nil {
		return false, goerr.Wrap(err, "failed to inspect weight store", goerr.V("source", store.Name()))
	}
	if len(existing) > 0 {
		return false, nil
	}
	if err := store.SaveWeights(ctx, entries); err != nil {
		return false, goerr.Wrap(err, "failed to seed weight store", goerr.V("source", store.Name()))
	}
	return true, nil
}

// Observer is notified whenever a snapshot is installed
type Observer interface {
	WeightsLoaded(version uint64, warnings int)
}

// Option configures a WeightConfig
type Option func(*WeightConfig)

// WithObserver registers o for snapshot notifications
func WithObserver(o Observer) Option {
	return func(c *WeightConfig) { c.observer = o }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(c *WeightConfig) { c.now = now }
}

// WeightConfig hands out the current weight snapshot. Reloads install a new
// snapshot; readers holding an older one are unaffected.
type WeightConfig struct {
	current  atomic.Pointer[Weights]
	mu       sync.Mutex
	next     uint64
	observer Observer
	now      func() time.Time
	log      *logger.Logger
}

// NewWeightConfig creates a WeightConfig holding the defaults as version 1
func NewWeightConfig(log *logger.Logger, opts ...Option) *WeightConfig {
	c := &WeightConfig{
		log: log.Named("weights"),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.next = 1
	defaults, _ := buildWeights(DefaultEntries(), c.next, c.now())
	c.current.Store(defaults)
	return c
}

// Current returns the snapshot to use for one pipeline run
func (c *WeightConfig) Current() *Weights {
	return c.current.Load()
}

// Load validates entries and installs them as the new snapshot. Problems are
// returned and logged as warnings; they never prevent installation.
func (c *WeightConfig) Load(source string, entries []domain.RiskWeight) []Warning {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.next++
	w, warnings := buildWeights(entries, c.next, c.now())
	c.current.Store(w)

	for _, wr := range warnings {
		c.log.ConfigurationWarning(string(wr.Code), wr.Name, wr.Message)
	}
	c.log.WeightsLoaded(w.version, source, len(warnings))
	if c.observer != nil {
		c.observer.WeightsLoaded(w.version, len(warnings))
	}
	return warnings
}

// Reload fetches entries from src and installs them. Stored scores are not
// recomputed; each area picks up the new snapshot on its next recalculation.
func (c *WeightConfig) Reload(ctx context.Context, src WeightSource) ([]Warning, error) {
	entries, err := src.LoadWeights(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load weights", goerr.V("source", src.Name()))
	}
	return c.Load(src.Name(), entries), nil
}
