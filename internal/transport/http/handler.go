package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/m-mizutani/goerr/v2"

	"github.com/banking/audit-risk-service/internal/domain"
	"github.com/banking/audit-risk-service/internal/pkg/logger"
	"github.com/banking/audit-risk-service/internal/recalc"
	"github.com/banking/audit-risk-service/internal/scoring"
)

// RiskService is the recalculation engine as seen by the HTTP adapter
type RiskService interface {
	Snapshot(ctx context.Context, areaID uuid.UUID) (*domain.RiskFactorSnapshot, error)
	SetRiskRatings(ctx context.Context, areaID uuid.UUID, update domain.RatingUpdate) (*domain.RiskFactorSnapshot, error)
	SetCoverage(ctx context.Context, areaID uuid.UUID, update domain.CoverageUpdate) (*domain.RiskFactorSnapshot, error)
	SetEnterpriseResidual(ctx context.Context, areaID uuid.UUID, level domain.RiskLevel) (*domain.RiskFactorSnapshot, error)
	SetRegulatoryRequirement(ctx context.Context, areaID uuid.UUID, regulatory bool) (*domain.RiskFactorSnapshot, error)
	RecomputeOne(ctx context.Context, areaID uuid.UUID) (*domain.PriorityResult, error)
	OverridePriority(ctx context.Context, areaID uuid.UUID, override domain.PriorityOverride) (*domain.PriorityResult, error)
	ClearPriorityOverride(ctx context.Context, areaID uuid.UUID) (*domain.PriorityResult, error)
	RecomputeAll(ctx context.Context) (*recalc.BatchResult, error)
	ListPriorities(ctx context.Context, filter domain.PriorityFilter) ([]domain.PriorityEntry, error)
	Weights() []domain.RiskWeight
	WeightsVersion() uint64
}

// ReloadFunc reloads weights from the configured source
type ReloadFunc func(ctx context.Context) ([]scoring.Warning, error)

// Handler serves the risk API
type Handler struct {
	svc    RiskService
	reload ReloadFunc
	log    *logger.Logger
}

// NewHandler creates the API handler. reload may be nil, in which case the
// reload endpoint answers 404.
func NewHandler(svc RiskService, reload ReloadFunc, log *logger.Logger) *Handler {
	return &Handler{svc: svc, reload: reload, log: log.Named("http")}
}

// Register mounts every API route on g
func (h *Handler) Register(g *echo.Group) {
	areas := g.Group("/areas/:id")
	areas.GET("/risk", h.GetRisk)
	areas.PATCH("/risk-ratings", h.PatchRiskRatings)
	areas.PUT("/coverage/:provider", h.PutCoverage)
	areas.PUT("/enterprise-residual", h.PutEnterpriseResidual)
	areas.PUT("/regulatory-requirement", h.PutRegulatoryRequirement)
	areas.POST("/recompute", h.PostRecompute)
	areas.PUT("/priority/override", h.PutPriorityOverride)
	areas.DELETE("/priority/override", h.DeletePriorityOverride)

	g.POST("/recompute", h.PostRecomputeAll)
	g.GET("/priorities", h.GetPriorities)
	g.GET("/weights", h.GetWeights)
	g.POST("/weights/reload", h.PostWeightsReload)
}

// RatingsRequest carries a partial update of the seven risk ratings
type RatingsRequest struct {
	FinancialImpact          *string `json:"financial_impact" validate:"omitempty,oneof=Low Medium High"`
	LegalComplianceImpact    *string `json:"legal_compliance_impact" validate:"omitempty,oneof=Low Medium High"`
	StrategicSignificance    *string `json:"strategic_significance" validate:"omitempty,oneof=Low Medium High"`
	TechnologicalCyberImpact *string `json:"technological_cyber_impact" validate:"omitempty,oneof=Low Medium High"`
	NewProcessSystem         *string `json:"new_process_system" validate:"omitempty,oneof=Low Medium High"`
	StakeholderImpact        *string `json:"stakeholder_impact" validate:"omitempty,oneof=Low Medium High"`
	CLevelConcerns           *string `json:"c_level_concerns" validate:"omitempty,oneof=Low Medium High"`
}

func (r *RatingsRequest) update() domain.RatingUpdate {
	u := domain.RatingUpdate{}
	set := func(f domain.Factor, v *string) {
		if v != nil {
			u[f] = domain.RiskLevel(*v)
		}
	}
	set(domain.FactorFinancialImpact, r.FinancialImpact)
	set(domain.FactorLegalComplianceImpact, r.LegalComplianceImpact)
	set(domain.FactorStrategicSignificance, r.StrategicSignificance)
	set(domain.FactorTechnologicalCyberImpact, r.TechnologicalCyberImpact)
	set(domain.FactorNewProcessSystem, r.NewProcessSystem)
	set(domain.FactorStakeholderImpact, r.StakeholderImpact)
	set(domain.FactorCLevelConcerns, r.CLevelConcerns)
	return u
}

// CoverageRequest rates one provider's coverage. Omitted optional fields keep
// their stored value; an empty string clears it.
type CoverageRequest struct {
	CoverageLevel     string  `json:"coverage_level" validate:"required,oneof=Comprehensive Moderate Limited"`
	LastAssuranceDate *string `json:"last_assurance_date" validate:"omitempty,len=0|datetime=2006-01-02"`
	Comments          *string `json:"comments" validate:"omitempty,max=2000"`
}

// EnterpriseResidualRequest sets the ERM residual risk
type EnterpriseResidualRequest struct {
	Level string `json:"erm_residual_risk" validate:"required,oneof=Low Medium High"`
}

// RegulatoryRequest sets the regulatory flag
type RegulatoryRequest struct {
	RegulatoryRequirement *bool `json:"regulatory_requirement" validate:"required"`
}

// OverrideRequest pins an area's priority
type OverrideRequest struct {
	PriorityLevel     int    `json:"priority_level" validate:"required,min=1,max=6"`
	ProposedAuditYear int    `json:"proposed_audit_year" validate:"required,min=2000,max=2200"`
	Justification     string `json:"justification" validate:"required,max=2000"`
}

// WeightsResponse is the active weight snapshot
type WeightsResponse struct {
	Version uint64              `json:"version"`
	Weights []domain.RiskWeight `json:"weights"`
}

// ReloadResponse reports the outcome of a weight reload
type ReloadResponse struct {
	Version  uint64            `json:"version"`
	Warnings []scoring.Warning `json:"warnings"`
}

func areaID(c echo.Context) (uuid.UUID, error) {
	raw := c.Param("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, goerr.Wrap(domain.ErrValidation, "invalid area id", goerr.V("value", raw))
	}
	return id, nil
}

func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return goerr.Wrap(domain.ErrValidation, "malformed request body", goerr.V("cause", err.Error()))
	}
	return c.Validate(req)
}

// GetRisk handles GET /api/v1/areas/:id/risk
func (h *Handler) GetRisk(c echo.Context) error {
	id, err := areaID(c)
	if err != nil {
		return err
	}
	snap, err := h.svc.Snapshot(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

// PatchRiskRatings handles PATCH /api/v1/areas/:id/risk-ratings
func (h *Handler) PatchRiskRatings(c echo.Context) error {
	id, err := areaID(c)
	if err != nil {
		return err
	}
	var req RatingsRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	snap, err := h.svc.SetRiskRatings(c.Request().Context(), id, req.update())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

// PutCoverage handles PUT /api/v1/areas/:id/coverage/:provider
func (h *Handler) PutCoverage(c echo.Context) error {
	id, err := areaID(c)
	if err != nil {
		return err
	}
	provider, err := domain.ParseProviderType(c.Param("provider"))
	if err != nil {
		return err
	}
	var req CoverageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	update := domain.CoverageUpdate{
		Provider: provider,
		Level:    domain.CoverageLevel(req.CoverageLevel),
	}
	switch {
	case req.Comments == nil:
	case *req.Comments == "":
		update.ClearComments = true
	default:
		update.Comments = req.Comments
	}
	switch {
	case req.LastAssuranceDate == nil:
	case *req.LastAssuranceDate == "":
		update.ClearLastAssuranceDate = true
	default:
		d, err := time.Parse(time.DateOnly, *req.LastAssuranceDate)
		if err != nil {
			return goerr.Wrap(domain.ErrValidation, "invalid last assurance date", goerr.V("value", *req.LastAssuranceDate))
		}
		update.LastAssuranceDate = &d
	}

	snap, err := h.svc.SetCoverage(c.Request().Context(), id, update)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

// PutEnterpriseResidual handles PUT /api/v1/areas/:id/enterprise-residual
func (h *Handler) PutEnterpriseResidual(c echo.Context) error {
	id, err := areaID(c)
	if err != nil {
		return err
	}
	var req EnterpriseResidualRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	snap, err := h.svc.SetEnterpriseResidual(c.Request().Context(), id, domain.RiskLevel(req.Level))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

// PutRegulatoryRequirement handles PUT /api/v1/areas/:id/regulatory-requirement
func (h *Handler) PutRegulatoryRequirement(c echo.Context) error {
	id, err := areaID(c)
	if err != nil {
		return err
	}
	var req RegulatoryRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	snap, err := h.svc.SetRegulatoryRequirement(c.Request().Context(), id, *req.RegulatoryRequirement)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

// PostRecompute handles POST /api/v1/areas/:id/recompute
func (h *Handler) PostRecompute(c echo.Context) error {
	id, err := areaID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.RecomputeOne(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// PutPriorityOverride handles PUT /api/v1/areas/:id/priority/override
func (h *Handler) PutPriorityOverride(c echo.Context) error {
	id, err := areaID(c)
	if err != nil {
		return err
	}
	var req OverrideRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	p, err := h.svc.OverridePriority(c.Request().Context(), id, domain.PriorityOverride{
		PriorityLevel:     req.PriorityLevel,
		ProposedAuditYear: req.ProposedAuditYear,
		Justification:     req.Justification,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// DeletePriorityOverride handles DELETE /api/v1/areas/:id/priority/override
func (h *Handler) DeletePriorityOverride(c echo.Context) error {
	id, err := areaID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.ClearPriorityOverride(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// PostRecomputeAll handles POST /api/v1/recompute. Per-area failures are
// part of the body; the request itself only fails when areas cannot be listed.
func (h *Handler) PostRecomputeAll(c echo.Context) error {
	result, err := h.svc.RecomputeAll(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// PrioritiesResponse is the audit plan
type PrioritiesResponse struct {
	Priorities []domain.PriorityEntry `json:"priorities"`
}

// GetPriorities handles GET /api/v1/priorities?year=&level=
func (h *Handler) GetPriorities(c echo.Context) error {
	var filter domain.PriorityFilter
	if raw := c.QueryParam("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			return goerr.Wrap(domain.ErrValidation, "invalid year", goerr.V("value", raw))
		}
		filter.Year = &year
	}
	if raw := c.QueryParam("level"); raw != "" {
		level, err := domain.ParseRiskLevel(raw)
		if err != nil {
			return err
		}
		filter.Level = level
	}

	entries, err := h.svc.ListPriorities(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []domain.PriorityEntry{}
	}
	return c.JSON(http.StatusOK, PrioritiesResponse{Priorities: entries})
}

// GetWeights handles GET /api/v1/weights
func (h *Handler) GetWeights(c echo.Context) error {
	return c.JSON(http.StatusOK, WeightsResponse{
		Version: h.svc.WeightsVersion(),
		Weights: h.svc.Weights(),
	})
}

// PostWeightsReload handles POST /api/v1/weights/reload
func (h *Handler) PostWeightsReload(c echo.Context) error {
	if h.reload == nil {
		return echo.NewHTTPError(http.StatusNotFound, "weight reload is not configured")
	}
	warnings, err := h.reload(c.Request().Context())
	if err != nil {
		return err
	}
	if warnings == nil {
		warnings = []scoring.Warning{}
	}
	return c.JSON(http.StatusOK, ReloadResponse{
		Version:  h.svc.WeightsVersion(),
		Warnings: warnings,
	})
}
