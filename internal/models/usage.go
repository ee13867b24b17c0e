package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageRecord is one entry in the append-only usage ledger. Records are never
// mutated; the ledger is aggregated for daily-cap checks and monthly invoices.
type UsageRecord struct {
	ID           uuid.UUID `json:"id"`
	LicenseKey   string    `json:"license_key"`
	ActionID     string    `json:"action_id"`
	CostPence    int64     `json:"cost_pence"` // minor currency units
	Currency     string    `json:"currency"`
	ExecutionRef string    `json:"execution_ref"`
	ChargeID     string    `json:"charge_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewUsageRecord creates a ledger entry for a charged action.
func NewUsageRecord(licenseKey, actionID string, costPence int64, currency, executionRef, chargeID string) *UsageRecord {
	return &UsageRecord{
		ID:           uuid.New(),
		LicenseKey:   licenseKey,
		ActionID:     actionID,
		CostPence:    costPence,
		Currency:     currency,
		ExecutionRef: executionRef,
		ChargeID:     chargeID,
		CreatedAt:    time.Now(),
	}
}

// MonthlyInvoice is an aggregated view of the ledger for one license and month.
type MonthlyInvoice struct {
	ID          uuid.UUID `json:"id"`
	LicenseKey  string    `json:"license_key"`
	YearMonth   string    `json:"year_month"` // "2006-01"
	TotalPence  int64     `json:"total_pence"`
	Currency    string    `json:"currency"`
	ActionCount int       `json:"action_count"`
	GeneratedAt time.Time `json:"generated_at"`
}
