package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/skillgate/skillgate/internal/api/middleware"
	"github.com/skillgate/skillgate/internal/apperr"
	"github.com/skillgate/skillgate/internal/billing"
	"github.com/skillgate/skillgate/internal/models"
)

// BillingStore defines the ledger reads the billing endpoints need.
type BillingStore interface {
	SumUsageSince(ctx context.Context, licenseKey string, since time.Time) (int64, error)
	GetMonthlyInvoice(ctx context.Context, licenseKey, yearMonth string) (*models.MonthlyInvoice, error)
}

// BillingHandler exposes balance, usage, and invoice reads for the
// authenticated license.
type BillingHandler struct {
	store     BillingStore
	processor billing.Processor
	pricing   *billing.PricingTable
	errs      *apperr.Handler
	logger    zerolog.Logger
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(store BillingStore, processor billing.Processor, pricing *billing.PricingTable, errs *apperr.Handler, logger zerolog.Logger) *BillingHandler {
	return &BillingHandler{
		store:     store,
		processor: processor,
		pricing:   pricing,
		errs:      errs,
		logger:    logger.With().Str("component", "billing_handler").Logger(),
	}
}

// RegisterRoutes registers billing routes on an authenticated group.
func (h *BillingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	bg := rg.Group("/billing")
	{
		bg.GET("/balance", h.Balance)
		bg.GET("/usage", h.Usage)
		bg.GET("/invoices/:month", h.Invoice)
	}
}

// Balance returns the license's prepaid credit balance.
// GET /api/v1/billing/balance
func (h *BillingHandler) Balance(c *gin.Context) {
	license := middleware.RequireLicense(c)
	if license == nil {
		return
	}
	if license.BillingCustomerRef == "" {
		c.JSON(http.StatusOK, gin.H{"balance_pence": 0, "currency": h.pricing.Currency})
		return
	}

	balance, err := h.processor.GetCreditBalance(c.Request.Context(), license.BillingCustomerRef)
	if err != nil {
		h.respondError(c, apperr.Wrap(apperr.CategoryExternalAPI, "billing processor unavailable", err), license.Key)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"balance_pence": balance,
		"currency":      h.pricing.Currency,
	})
}

// Usage returns today's cumulative spend and the plan's daily cap.
// GET /api/v1/billing/usage
func (h *BillingHandler) Usage(c *gin.Context) {
	license := middleware.RequireLicense(c)
	if license == nil {
		return
	}

	loc := license.Location()
	now := time.Now().In(loc)
	since := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	spent, err := h.store.SumUsageSince(c.Request.Context(), license.Key, since)
	if err != nil {
		h.respondError(c, apperr.Wrap(apperr.CategoryDatabase, "failed to sum daily usage", err), license.Key)
		return
	}

	cap := h.pricing.DailyCap(license.Plan)
	c.JSON(http.StatusOK, gin.H{
		"spent_today_pence": spent,
		"daily_cap_pence":   cap,
		"currency":          h.pricing.Currency,
		"day_started_at":    since,
	})
}

// Invoice returns the aggregated invoice for a month (format 2006-01).
// GET /api/v1/billing/invoices/:month
func (h *BillingHandler) Invoice(c *gin.Context) {
	license := middleware.RequireLicense(c)
	if license == nil {
		return
	}

	month := c.Param("month")
	if _, err := time.Parse("2006-01", month); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "month must be formatted as YYYY-MM"})
		return
	}

	invoice, err := h.store.GetMonthlyInvoice(c.Request.Context(), license.Key, month)
	if err != nil {
		h.respondError(c, apperr.Wrap(apperr.CategoryDatabase, "failed to load invoice", err), license.Key)
		return
	}
	if invoice == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no invoice for month", "month": month})
		return
	}

	c.JSON(http.StatusOK, invoice)
}

func (h *BillingHandler) respondError(c *gin.Context, err *apperr.Error, licenseKey string) {
	appErr := h.errs.Handle(err.WithContext("license_key", licenseKey))
	c.JSON(appErr.HTTPStatus, gin.H{"error": appErr.Message, "code": string(appErr.Category)})
}
