package billing

import (
	"context"
)

// Processor abstracts the external billing system. Any concrete processor
// (Stripe or otherwise) is an external collaborator satisfying this interface.
//
// All operations have financial side effects or consequences and must be
// called with bounded timeouts. A timed-out charge is treated as failed and
// never retried automatically.
type Processor interface {
	// GetCreditBalance returns the customer's prepaid credit in minor units.
	GetCreditBalance(ctx context.Context, customerRef string) (int64, error)

	// HasPaymentMethod reports whether the customer can be charged.
	HasPaymentMethod(ctx context.Context, customerRef string) (bool, error)

	// DeductCredit consumes prepaid credit and returns a transaction reference.
	DeductCredit(ctx context.Context, customerRef string, amount int64, currencyCode, description string) (string, error)

	// SubmitMeteredUsage reports a usage quantity against the customer's
	// metered subscription item and returns the processor's reference.
	// executionRef deduplicates resubmissions on the processor side.
	SubmitMeteredUsage(ctx context.Context, customerRef, meteredItemRef string, quantity int64, executionRef string) (string, error)

	// CreateOneTimeCharge charges the customer immediately and returns the
	// charge reference.
	CreateOneTimeCharge(ctx context.Context, customerRef string, amount int64, currencyCode string, metadata map[string]string) (string, error)
}
