package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/skillgate/skillgate/internal/apperr"
	"github.com/skillgate/skillgate/internal/db"
	"github.com/skillgate/skillgate/internal/models"
)

// ChargeMethod identifies how an affordable action will be paid for.
type ChargeMethod string

const (
	// MethodFree applies to enterprise licenses and zero-cost actions.
	MethodFree ChargeMethod = "free"
	// MethodCredits pays from the customer's prepaid balance.
	MethodCredits ChargeMethod = "credits"
	// MethodMetered reports usage against the metered subscription item.
	MethodMetered ChargeMethod = "metered"
)

// FreeChargeID marks ledger entries that required no external billing call.
const FreeChargeID = "enterprise_free"

// Decision is the outcome of an affordability check. When CanAfford is false,
// Reason carries a customer-facing explanation.
type Decision struct {
	CanAfford bool         `json:"can_afford"`
	CostPence int64        `json:"cost_pence"`
	Currency  string       `json:"currency"`
	Method    ChargeMethod `json:"method,omitempty"`
	Reason    string       `json:"reason,omitempty"`
}

// EnforcerStore is the ledger surface the enforcer needs.
type EnforcerStore interface {
	SumUsageSince(ctx context.Context, licenseKey string, since time.Time) (int64, error)
	AppendUsageRecordCharged(ctx context.Context, rec *models.UsageRecord, capPence int64, since time.Time, charge db.ChargeFunc) (*models.UsageRecord, bool, error)
}

// Enforcer decides whether a license can afford an action and commits the
// charge once the action has run.
type Enforcer struct {
	pricing   *PricingTable
	processor Processor
	store     EnforcerStore
	logger    zerolog.Logger
}

// NewEnforcer creates a billing enforcer.
func NewEnforcer(pricing *PricingTable, processor Processor, store EnforcerStore, logger zerolog.Logger) *Enforcer {
	return &Enforcer{
		pricing:   pricing,
		processor: processor,
		store:     store,
		logger:    logger.With().Str("component", "billing_enforcer").Logger(),
	}
}

// CanAfford evaluates whether the license can pay for one execution of
// actionID. Checks run in a fixed order: enterprise and zero-cost actions are
// free, prepaid credit is consumed before anything else, a missing payment
// method blocks the charge, and the plan's daily cap bounds metered spend.
//
// The decision is advisory. Charge re-checks the cap transactionally, so a
// positive decision can still fail under concurrent spending.
func (e *Enforcer) CanAfford(ctx context.Context, license *models.License, actionID string) (*Decision, error) {
	cost := e.pricing.Cost(actionID, license.Plan)
	decision := &Decision{
		CostPence: cost,
		Currency:  e.pricing.Currency,
	}

	if cost == 0 {
		decision.CanAfford = true
		decision.Method = MethodFree
		return decision, nil
	}

	if license.BillingCustomerRef == "" {
		decision.Reason = "No billing account configured"
		return decision, nil
	}

	balance, err := e.processor.GetCreditBalance(ctx, license.BillingCustomerRef)
	if err != nil {
		return nil, apperr.Wrap(apperr.CategoryExternalAPI, "failed to fetch credit balance", err).
			WithContext("license_key", license.Key)
	}
	if balance >= cost {
		decision.CanAfford = true
		decision.Method = MethodCredits
		return decision, nil
	}

	hasPayment, err := e.processor.HasPaymentMethod(ctx, license.BillingCustomerRef)
	if err != nil {
		return nil, apperr.Wrap(apperr.CategoryExternalAPI, "failed to check payment method", err).
			WithContext("license_key", license.Key)
	}
	if !hasPayment {
		decision.Reason = "No payment method on file"
		return decision, nil
	}

	if cap := e.pricing.DailyCap(license.Plan); cap > 0 {
		spent, err := e.store.SumUsageSince(ctx, license.Key, startOfDay(time.Now(), license.Location()))
		if err != nil {
			return nil, apperr.Wrap(apperr.CategoryDatabase, "failed to sum daily usage", err).
				WithContext("license_key", license.Key)
		}
		if spent+cost > cap {
			decision.Reason = fmt.Sprintf("Daily limit of %s exceeded", FormatAmount(cap, e.pricing.Currency))
			return decision, nil
		}
	}

	decision.CanAfford = true
	decision.Method = MethodMetered
	return decision, nil
}

// Charge commits the cost of a completed execution. The external billing call
// and the ledger append happen in one transaction keyed on the license row, so
// a processor failure leaves no ledger entry and the daily cap cannot be
// overshot by concurrent charges. Resubmitting an execution reference returns
// the original ledger entry without charging again.
//
// The charge proceeds even if the caller's context is canceled mid-flight:
// once the action has run, abandoning the charge would give it away for free.
// The boolean reports whether a new charge was made; false means the
// execution reference was already on the ledger.
func (e *Enforcer) Charge(ctx context.Context, license *models.License, actionID, executionRef string, decision *Decision) (*models.UsageRecord, bool, error) {
	if decision == nil || !decision.CanAfford {
		return nil, false, apperr.New(apperr.CategoryPayment, "charge requires an affordable decision").
			WithContext("license_key", license.Key).
			WithContext("action_id", actionID)
	}

	rec := models.NewUsageRecord(license.Key, actionID, decision.CostPence, decision.Currency, executionRef, "")

	capPence := int64(0)
	if decision.Method == MethodMetered {
		capPence = e.pricing.DailyCap(license.Plan)
	}
	since := startOfDay(time.Now(), license.Location())

	chargeCtx := context.WithoutCancel(ctx)
	result, charged, err := e.store.AppendUsageRecordCharged(chargeCtx, rec, capPence, since, func(txCtx context.Context) (string, error) {
		return e.executeCharge(txCtx, license, actionID, executionRef, decision)
	})
	if err != nil {
		if errors.Is(err, db.ErrDailyCapExceeded) {
			cap := e.pricing.DailyCap(license.Plan)
			return nil, false, apperr.Wrap(apperr.CategoryPayment,
				fmt.Sprintf("Daily limit of %s exceeded", FormatAmount(cap, decision.Currency)), err).
				WithContext("license_key", license.Key)
		}
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, false, appErr
		}
		return nil, false, apperr.Wrap(apperr.CategoryExternalAPI, "failed to commit charge", err).
			WithContext("license_key", license.Key).
			WithContext("execution_ref", executionRef)
	}

	if !charged {
		e.logger.Info().
			Str("license_key", license.Key).
			Str("execution_ref", executionRef).
			Msg("duplicate execution ref, returning existing ledger entry")
		return result, false, nil
	}

	e.logger.Info().
		Str("license_key", license.Key).
		Str("action_id", actionID).
		Int64("cost_pence", result.CostPence).
		Str("method", string(decision.Method)).
		Str("charge_id", result.ChargeID).
		Msg("usage charged")
	return result, true, nil
}

func (e *Enforcer) executeCharge(ctx context.Context, license *models.License, actionID, executionRef string, decision *Decision) (string, error) {
	switch decision.Method {
	case MethodFree:
		return FreeChargeID, nil
	case MethodCredits:
		description := fmt.Sprintf("%s (%s)", actionID, executionRef)
		return e.processor.DeductCredit(ctx, license.BillingCustomerRef, decision.CostPence, decision.Currency, description)
	case MethodMetered:
		if license.MeteredItemRef == "" {
			// No metered subscription item: charge the payment method directly.
			return e.processor.CreateOneTimeCharge(ctx, license.BillingCustomerRef, decision.CostPence, decision.Currency, map[string]string{
				"license_key":   license.Key,
				"action_id":     actionID,
				"execution_ref": executionRef,
			})
		}
		return e.processor.SubmitMeteredUsage(ctx, license.BillingCustomerRef, license.MeteredItemRef, decision.CostPence, executionRef)
	default:
		return "", apperr.New(apperr.CategorySystem, fmt.Sprintf("unknown charge method %q", decision.Method))
	}
}

// startOfDay returns midnight of now's day in the given location.
func startOfDay(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
