package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/skillgate/skillgate/internal/api/middleware"
	"github.com/skillgate/skillgate/internal/apperr"
	"github.com/skillgate/skillgate/internal/billing"
	"github.com/skillgate/skillgate/internal/metrics"
	"github.com/skillgate/skillgate/internal/skills"
)

// DefaultProduct is the entitlement checked when a request names none.
const DefaultProduct = "skills"

// EntitlementChecker answers product access questions for a license.
type EntitlementChecker interface {
	ValidateProductAccess(ctx context.Context, licenseKey, product string) (bool, error)
}

// SkillsHandler handles billable skill execution.
type SkillsHandler struct {
	entitlements EntitlementChecker
	enforcer     *billing.Enforcer
	runner       skills.Runner
	errs         *apperr.Handler
	metrics      *metrics.PrometheusMetrics
	logger       zerolog.Logger
}

// NewSkillsHandler creates a new SkillsHandler. metrics may be nil.
func NewSkillsHandler(entitlements EntitlementChecker, enforcer *billing.Enforcer, runner skills.Runner, errs *apperr.Handler, m *metrics.PrometheusMetrics, logger zerolog.Logger) *SkillsHandler {
	return &SkillsHandler{
		entitlements: entitlements,
		enforcer:     enforcer,
		runner:       runner,
		errs:         errs,
		metrics:      m,
		logger:       logger.With().Str("component", "skills_handler").Logger(),
	}
}

// RegisterRoutes registers skill execution routes on an authenticated group.
func (h *SkillsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/skills/:id/execute", h.Execute)
}

type executeRequest struct {
	ExecutionRef string          `json:"execution_ref" binding:"required"`
	Product      string          `json:"product"`
	Input        json.RawMessage `json:"input"`
}

type executeResponse struct {
	ExecutionRef string          `json:"execution_ref"`
	ActionID     string          `json:"action_id"`
	CostPence    int64           `json:"cost_pence"`
	Currency     string          `json:"currency"`
	ChargeID     string          `json:"charge_id"`
	Duplicate    bool            `json:"duplicate,omitempty"`
	Output       json.RawMessage `json:"output,omitempty"`
}

// Execute runs a billable skill: entitlement check, affordability check,
// atomic charge, then execution. The charge commits before the skill runs, so
// a failed billing call never yields an unbilled execution. A duplicate
// execution_ref returns the original ledger entry and is neither charged nor
// run a second time.
// POST /api/v1/skills/:id/execute
func (h *SkillsHandler) Execute(c *gin.Context) {
	license := middleware.RequireLicense(c)
	if license == nil {
		return
	}
	actionID := c.Param("id")

	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "execution_ref is required"})
		return
	}
	product := req.Product
	if product == "" {
		product = DefaultProduct
	}

	allowed, err := h.entitlements.ValidateProductAccess(c.Request.Context(), license.Key, product)
	if err != nil {
		h.abortWithError(c, err, actionID)
		return
	}
	h.recordEntitlement(allowed)
	if !allowed {
		h.recordExecution(actionID, "rejected")
		c.JSON(http.StatusForbidden, gin.H{"error": "product not licensed", "product": product})
		return
	}

	decision, err := h.enforcer.CanAfford(c.Request.Context(), license, actionID)
	if err != nil {
		h.abortWithError(c, err, actionID)
		return
	}
	if !decision.CanAfford {
		h.recordExecution(actionID, "rejected")
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":      "payment required",
			"reason":     decision.Reason,
			"cost_pence": decision.CostPence,
			"currency":   decision.Currency,
		})
		return
	}

	record, charged, err := h.enforcer.Charge(c.Request.Context(), license, actionID, req.ExecutionRef, decision)
	if err != nil {
		h.recordExecution(actionID, "failed")
		h.abortWithError(c, err, actionID)
		return
	}

	resp := executeResponse{
		ExecutionRef: record.ExecutionRef,
		ActionID:     record.ActionID,
		CostPence:    record.CostPence,
		Currency:     record.Currency,
		ChargeID:     record.ChargeID,
		Duplicate:    !charged,
	}

	if !charged {
		// Replayed execution_ref: the ledger's view stands and the skill does
		// not run again.
		h.recordExecution(record.ActionID, "completed")
		c.JSON(http.StatusOK, resp)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordCharge(string(decision.Method), record.CostPence)
	}

	output, err := h.runner.Run(c.Request.Context(), actionID, req.Input)
	if err != nil {
		// The committed charge stands; failures after commit are surfaced,
		// not refunded.
		h.recordExecution(actionID, "failed")
		h.abortWithError(c, err, actionID)
		return
	}
	h.recordExecution(record.ActionID, "completed")

	resp.Output = output
	c.JSON(http.StatusOK, resp)
}

func (h *SkillsHandler) abortWithError(c *gin.Context, err error, actionID string) {
	appErr := h.errs.Handle(h.errs.Normalize(err).WithContext("action_id", actionID))
	c.JSON(appErr.HTTPStatus, gin.H{"error": appErr.Message, "code": string(appErr.Category)})
}

func (h *SkillsHandler) recordEntitlement(allowed bool) {
	if h.metrics == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	h.metrics.RecordEntitlementCheck(outcome)
}

func (h *SkillsHandler) recordExecution(actionID, status string) {
	if h.metrics != nil {
		h.metrics.RecordSkillExecution(actionID, status)
	}
}
