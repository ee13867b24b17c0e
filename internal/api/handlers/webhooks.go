package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/skillgate/skillgate/internal/api/middleware"
	"github.com/skillgate/skillgate/internal/metrics"
	"github.com/skillgate/skillgate/internal/models"
)

// maxStripeBody bounds Stripe webhook payloads before signature verification.
const maxStripeBody = 65536

// WebhookStore defines the license mutations webhook events may perform.
type WebhookStore interface {
	GetLicense(ctx context.Context, key string) (*models.License, error)
	GetLicenseByBillingRef(ctx context.Context, customerRef string) (*models.License, error)
	UpsertLicense(ctx context.Context, lic *models.License) error
	SetLicenseStatus(ctx context.Context, key string, status models.LicenseStatus) error
	SetLicenseProducts(ctx context.Context, key string, products []string) error
}

// LicenseCache invalidates cached state after a license mutation.
type LicenseCache interface {
	InvalidateLicense(ctx context.Context, licenseKey string) error
}

// WebhookHandler ingests license lifecycle events from the storefront and
// from Stripe. Both endpoints authenticate on the raw body before parsing.
type WebhookHandler struct {
	store        WebhookStore
	cache        LicenseCache // nil when caching is disabled
	stripeSecret string
	metrics      *metrics.PrometheusMetrics
	logger       zerolog.Logger
}

// NewWebhookHandler creates a new WebhookHandler. cache and m may be nil.
func NewWebhookHandler(store WebhookStore, cache LicenseCache, stripeWebhookSecret string, m *metrics.PrometheusMetrics, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		store:        store,
		cache:        cache,
		stripeSecret: stripeWebhookSecret,
		metrics:      m,
		logger:       logger.With().Str("component", "webhook_handler").Logger(),
	}
}

// storefrontEvent is the discriminated event union sent by the storefront.
type storefrontEvent struct {
	Type       string `json:"type" binding:"required"`
	LicenseKey string `json:"license_key" binding:"required"`
	Data       struct {
		Plan               string   `json:"plan"`
		Products           []string `json:"products"`
		BillingCustomerRef string   `json:"billing_customer_ref"`
		MeteredItemRef     string   `json:"metered_item_ref"`
		BillingTimezone    string   `json:"billing_timezone"`
	} `json:"data"`
}

// Storefront handles storefront license events. Must be mounted behind the
// signature verification middleware; the handler reads the verified raw body
// from the context rather than the request.
// POST /webhooks/storefront
func (h *WebhookHandler) Storefront(c *gin.Context) {
	body := middleware.RawBody(c)
	if body == nil {
		// Route misconfiguration: the signature gate did not run.
		h.logger.Error().Msg("storefront webhook reached without verified body")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	var event storefrontEvent
	if err := json.Unmarshal(body, &event); err != nil || event.Type == "" || event.LicenseKey == "" {
		h.recordEvent("storefront", "rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
		return
	}

	ctx := c.Request.Context()
	var err error
	switch event.Type {
	case "order.completed":
		err = h.activateLicense(ctx, &event)
	case "subscription.canceled":
		err = h.store.SetLicenseStatus(ctx, event.LicenseKey, models.LicenseStatusSuspended)
	case "subscription.renewed":
		err = h.store.SetLicenseStatus(ctx, event.LicenseKey, models.LicenseStatusActive)
	case "products.updated":
		err = h.store.SetLicenseProducts(ctx, event.LicenseKey, event.Data.Products)
	default:
		// Unknown event types are acknowledged so the sender stops retrying.
		h.logger.Info().Str("type", event.Type).Msg("ignoring unknown storefront event")
		h.recordEvent("storefront", "processed")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if err != nil {
		h.recordEvent("storefront", "failed")
		h.logger.Error().Err(err).Str("type", event.Type).Str("license_key", event.LicenseKey).Msg("storefront event failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	h.invalidate(ctx, event.LicenseKey)
	h.recordEvent("storefront", "processed")
	h.logger.Info().Str("type", event.Type).Str("license_key", event.LicenseKey).Msg("storefront event processed")
	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}

func (h *WebhookHandler) activateLicense(ctx context.Context, event *storefrontEvent) error {
	existing, err := h.store.GetLicense(ctx, event.LicenseKey)
	if err != nil {
		return err
	}

	now := time.Now()
	lic := &models.License{
		Key:                event.LicenseKey,
		Status:             models.LicenseStatusActive,
		Plan:               models.Plan(event.Data.Plan),
		Products:           event.Data.Products,
		BillingCustomerRef: event.Data.BillingCustomerRef,
		MeteredItemRef:     event.Data.MeteredItemRef,
		BillingTimezone:    event.Data.BillingTimezone,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if !models.ValidPlan(lic.Plan) {
		lic.Plan = models.PlanFree
	}
	if existing != nil {
		lic.CreatedAt = existing.CreatedAt
		lic.AllowedDomains = existing.AllowedDomains
		if lic.BillingCustomerRef == "" {
			lic.BillingCustomerRef = existing.BillingCustomerRef
		}
		if lic.MeteredItemRef == "" {
			lic.MeteredItemRef = existing.MeteredItemRef
		}
	}
	return h.store.UpsertLicense(ctx, lic)
}

// Stripe handles billing processor lifecycle events. Signature verification
// is Stripe's own scheme over the raw body, so this endpoint is not behind
// the storefront HMAC middleware.
// POST /webhooks/stripe
func (h *WebhookHandler) Stripe(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxStripeBody))
	if err != nil {
		h.recordEvent("stripe", "rejected")
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
		return
	}

	event, err := webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), h.stripeSecret)
	if err != nil {
		h.recordEvent("stripe", "rejected")
		h.logger.Warn().Err(err).Str("client_ip", c.ClientIP()).Msg("stripe signature verification failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	ctx := c.Request.Context()
	switch event.Type {
	case "customer.subscription.deleted", "invoice.payment_failed":
		err = h.setStatusByCustomer(ctx, &event, models.LicenseStatusSuspended)
	case "invoice.payment_succeeded":
		err = h.setStatusByCustomer(ctx, &event, models.LicenseStatusActive)
	default:
		h.logger.Debug().Str("type", string(event.Type)).Msg("ignoring unhandled stripe event")
		h.recordEvent("stripe", "processed")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if err != nil {
		h.recordEvent("stripe", "failed")
		h.logger.Error().Err(err).Str("type", string(event.Type)).Msg("stripe event failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	h.recordEvent("stripe", "processed")
	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}

func (h *WebhookHandler) setStatusByCustomer(ctx context.Context, event *stripe.Event, status models.LicenseStatus) error {
	var data struct {
		Customer string `json:"customer"`
	}
	if err := json.Unmarshal(event.Data.Raw, &data); err != nil {
		return err
	}
	if data.Customer == "" {
		h.logger.Warn().Str("type", string(event.Type)).Msg("stripe event without customer reference")
		return nil
	}

	license, err := h.store.GetLicenseByBillingRef(ctx, data.Customer)
	if err != nil {
		return err
	}
	if license == nil {
		h.logger.Warn().Str("customer", data.Customer).Msg("stripe event for unknown customer")
		return nil
	}
	if license.Status == status {
		return nil
	}

	if err := h.store.SetLicenseStatus(ctx, license.Key, status); err != nil {
		return err
	}
	h.invalidate(ctx, license.Key)
	h.logger.Info().
		Str("license_key", license.Key).
		Str("status", string(status)).
		Str("stripe_event", string(event.Type)).
		Msg("license status updated from stripe event")
	return nil
}

func (h *WebhookHandler) invalidate(ctx context.Context, licenseKey string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.InvalidateLicense(ctx, licenseKey); err != nil {
		h.logger.Warn().Err(err).Str("license_key", licenseKey).Msg("license cache invalidation failed")
	}
}

func (h *WebhookHandler) recordEvent(source, outcome string) {
	if h.metrics != nil {
		h.metrics.RecordWebhookEvent(source, outcome)
	}
}
