// Package models defines the core data types shared across Skillgate.
package models

import (
	"time"
)

// LicenseStatus represents the lifecycle state of a license.
type LicenseStatus string

const (
	// LicenseStatusActive indicates the license is valid and entitled.
	LicenseStatusActive LicenseStatus = "active"
	// LicenseStatusPending indicates the license is awaiting activation.
	LicenseStatusPending LicenseStatus = "pending"
	// LicenseStatusSuspended indicates the license has been soft-suspended.
	LicenseStatusSuspended LicenseStatus = "suspended"
	// LicenseStatusCanceled indicates the license has been canceled.
	LicenseStatusCanceled LicenseStatus = "canceled"
)

// Plan represents the billing plan of a license.
type Plan string

const (
	// PlanFree is the default plan with no discounts.
	PlanFree Plan = "free"
	// PlanStarter is the entry paid plan.
	PlanStarter Plan = "starter"
	// PlanProfessional is the mid paid plan (half-price actions).
	PlanProfessional Plan = "professional"
	// PlanEnterprise is the top plan (metered actions are free).
	PlanEnterprise Plan = "enterprise"
)

// ValidPlan reports whether p is a known plan.
func ValidPlan(p Plan) bool {
	switch p {
	case PlanFree, PlanStarter, PlanProfessional, PlanEnterprise:
		return true
	}
	return false
}

// License is the tenant identity unit. All entitlement and billing is scoped to it.
// Licenses are never deleted while referenced by usage history; they are suspended instead.
type License struct {
	Key                string        `json:"key"`
	Status             LicenseStatus `json:"status"`
	Plan               Plan          `json:"plan"`
	Products           []string      `json:"products"`
	AllowedDomains     []string      `json:"allowed_domains,omitempty"`
	BillingCustomerRef string        `json:"billing_customer_ref,omitempty"`
	MeteredItemRef     string        `json:"metered_item_ref,omitempty"`
	BillingTimezone    string        `json:"billing_timezone,omitempty"` // IANA name, empty means UTC
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// IsActive reports whether the license may be used for authenticated requests.
func (l *License) IsActive() bool {
	return l.Status == LicenseStatusActive
}

// HasProduct reports whether the license is entitled to a product.
func (l *License) HasProduct(product string) bool {
	for _, p := range l.Products {
		if p == product {
			return true
		}
	}
	return false
}

// Location returns the billing timezone location for daily-cap windows.
// Falls back to UTC when the timezone is unset or unparseable.
func (l *License) Location() *time.Location {
	if l.BillingTimezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(l.BillingTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
