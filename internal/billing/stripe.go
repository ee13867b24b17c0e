package billing

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/billing/meterevent"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/customerbalancetransaction"
	"github.com/stripe/stripe-go/v82/paymentintent"
)

// StripeConfig holds configuration for the Stripe processor adapter.
type StripeConfig struct {
	SecretKey string
	// Timeout bounds every Stripe call. Distinct from the general I/O timeout:
	// these calls have financial side effects, so a timeout is a hard failure.
	Timeout time.Duration
}

// DefaultStripeConfig returns a StripeConfig with a bounded timeout.
func DefaultStripeConfig(secretKey string) StripeConfig {
	return StripeConfig{
		SecretKey: secretKey,
		Timeout:   15 * time.Second,
	}
}

// StripeProcessor implements Processor against the Stripe API.
type StripeProcessor struct {
	timeout time.Duration
	logger  zerolog.Logger
}

// NewStripeProcessor creates a Stripe-backed billing processor.
func NewStripeProcessor(cfg StripeConfig, logger zerolog.Logger) *StripeProcessor {
	stripe.Key = cfg.SecretKey
	stripe.SetHTTPClient(&http.Client{Timeout: cfg.Timeout})
	return &StripeProcessor{
		timeout: cfg.Timeout,
		logger:  logger.With().Str("component", "stripe_processor").Logger(),
	}
}

// callCtx bounds a Stripe call regardless of the caller's deadline.
func (p *StripeProcessor) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.timeout)
}

// GetCreditBalance returns the customer's prepaid credit in minor units.
// Stripe represents credit as a negative customer balance.
func (p *StripeProcessor) GetCreditBalance(ctx context.Context, customerRef string) (int64, error) {
	callCtx, cancel := p.callCtx(ctx)
	defer cancel()

	params := &stripe.CustomerParams{Params: stripe.Params{Context: callCtx}}
	cust, err := customer.Get(customerRef, params)
	if err != nil {
		return 0, fmt.Errorf("get stripe customer: %w", err)
	}
	if cust.Balance < 0 {
		return -cust.Balance, nil
	}
	return 0, nil
}

// HasPaymentMethod reports whether the customer has a chargeable default
// payment method on file.
func (p *StripeProcessor) HasPaymentMethod(ctx context.Context, customerRef string) (bool, error) {
	callCtx, cancel := p.callCtx(ctx)
	defer cancel()

	params := &stripe.CustomerParams{Params: stripe.Params{Context: callCtx}}
	params.AddExpand("invoice_settings.default_payment_method")
	cust, err := customer.Get(customerRef, params)
	if err != nil {
		return false, fmt.Errorf("get stripe customer: %w", err)
	}
	if cust.InvoiceSettings != nil && cust.InvoiceSettings.DefaultPaymentMethod != nil {
		return true, nil
	}
	return cust.DefaultSource != nil, nil
}

// DeductCredit consumes prepaid credit via a customer balance transaction.
// A positive amount moves the (negative) balance toward zero.
func (p *StripeProcessor) DeductCredit(ctx context.Context, customerRef string, amount int64, currencyCode, description string) (string, error) {
	callCtx, cancel := p.callCtx(ctx)
	defer cancel()

	params := &stripe.CustomerBalanceTransactionParams{
		Params:      stripe.Params{Context: callCtx},
		Customer:    stripe.String(customerRef),
		Amount:      stripe.Int64(amount),
		Currency:    stripe.String(strings.ToLower(currencyCode)),
		Description: stripe.String(description),
	}
	txn, err := customerbalancetransaction.New(params)
	if err != nil {
		return "", fmt.Errorf("deduct stripe credit: %w", err)
	}

	p.logger.Debug().Str("customer", customerRef).Int64("amount", amount).Msg("credit deducted")
	return txn.ID, nil
}

// SubmitMeteredUsage reports usage via a billing meter event. meteredItemRef
// is the meter's event name; executionRef deduplicates resubmissions.
func (p *StripeProcessor) SubmitMeteredUsage(ctx context.Context, customerRef, meteredItemRef string, quantity int64, executionRef string) (string, error) {
	callCtx, cancel := p.callCtx(ctx)
	defer cancel()

	params := &stripe.BillingMeterEventParams{
		Params:     stripe.Params{Context: callCtx},
		EventName:  stripe.String(meteredItemRef),
		Identifier: stripe.String(executionRef),
		Payload: map[string]string{
			"stripe_customer_id": customerRef,
			"value":              strconv.FormatInt(quantity, 10),
		},
	}
	event, err := meterevent.New(params)
	if err != nil {
		return "", fmt.Errorf("submit metered usage: %w", err)
	}

	p.logger.Debug().
		Str("customer", customerRef).
		Str("meter", meteredItemRef).
		Int64("quantity", quantity).
		Msg("metered usage submitted")
	return event.Identifier, nil
}

// CreateOneTimeCharge charges the customer immediately via a confirmed
// off-session payment intent. The execution reference doubles as the Stripe
// idempotency key so retries cannot double-charge.
func (p *StripeProcessor) CreateOneTimeCharge(ctx context.Context, customerRef string, amount int64, currencyCode string, metadata map[string]string) (string, error) {
	callCtx, cancel := p.callCtx(ctx)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Params:     stripe.Params{Context: callCtx},
		Customer:   stripe.String(customerRef),
		Amount:     stripe.Int64(amount),
		Currency:   stripe.String(strings.ToLower(currencyCode)),
		Confirm:    stripe.Bool(true),
		OffSession: stripe.Bool(true),
		Metadata:   metadata,
	}
	if ref, ok := metadata["execution_ref"]; ok {
		params.SetIdempotencyKey("charge_" + ref)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return "", fmt.Errorf("create one-time charge: %w", err)
	}

	p.logger.Info().
		Str("customer", customerRef).
		Int64("amount", amount).
		Str("payment_intent", pi.ID).
		Msg("one-time charge created")
	return pi.ID, nil
}
