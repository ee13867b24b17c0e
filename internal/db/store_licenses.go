package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/skillgate/skillgate/internal/models"
)

// GetLicense returns a license by key. Returns nil when no row exists.
func (db *DB) GetLicense(ctx context.Context, key string) (*models.License, error) {
	var lic models.License
	err := db.Pool.QueryRow(ctx, `
		SELECT key, status, plan, products, allowed_domains,
		       billing_customer_ref, metered_item_ref, billing_timezone,
		       created_at, updated_at
		FROM licenses
		WHERE key = $1
	`, key).Scan(
		&lic.Key, &lic.Status, &lic.Plan, &lic.Products, &lic.AllowedDomains,
		&lic.BillingCustomerRef, &lic.MeteredItemRef, &lic.BillingTimezone,
		&lic.CreatedAt, &lic.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get license: %w", err)
	}
	return &lic, nil
}

// GetLicenseByBillingRef returns the license owning a billing customer
// reference. Returns nil when no row exists.
func (db *DB) GetLicenseByBillingRef(ctx context.Context, customerRef string) (*models.License, error) {
	var lic models.License
	err := db.Pool.QueryRow(ctx, `
		SELECT key, status, plan, products, allowed_domains,
		       billing_customer_ref, metered_item_ref, billing_timezone,
		       created_at, updated_at
		FROM licenses
		WHERE billing_customer_ref = $1
	`, customerRef).Scan(
		&lic.Key, &lic.Status, &lic.Plan, &lic.Products, &lic.AllowedDomains,
		&lic.BillingCustomerRef, &lic.MeteredItemRef, &lic.BillingTimezone,
		&lic.CreatedAt, &lic.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get license by billing ref: %w", err)
	}
	return &lic, nil
}

// UpsertLicense creates or updates a license record.
func (db *DB) UpsertLicense(ctx context.Context, lic *models.License) error {
	now := time.Now()
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO licenses (key, status, plan, products, allowed_domains,
		                      billing_customer_ref, metered_item_ref, billing_timezone,
		                      created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (key)
		DO UPDATE SET status = $2, plan = $3, products = $4, allowed_domains = $5,
		              billing_customer_ref = $6, metered_item_ref = $7,
		              billing_timezone = $8, updated_at = $9
	`, lic.Key, string(lic.Status), string(lic.Plan), lic.Products, lic.AllowedDomains,
		lic.BillingCustomerRef, lic.MeteredItemRef, lic.BillingTimezone, now)
	if err != nil {
		return fmt.Errorf("upsert license: %w", err)
	}
	return nil
}

// SetLicenseStatus transitions a license's status. Licenses are never deleted
// while referenced by usage history; cancellation soft-suspends instead.
func (db *DB) SetLicenseStatus(ctx context.Context, key string, status models.LicenseStatus) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE licenses SET status = $2, updated_at = NOW() WHERE key = $1
	`, key, string(status))
	if err != nil {
		return fmt.Errorf("set license status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set license status: license %q not found", key)
	}
	return nil
}

// SetLicenseBillingRefs updates the billing processor references for a license.
func (db *DB) SetLicenseBillingRefs(ctx context.Context, key, customerRef, meteredItemRef string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE licenses
		SET billing_customer_ref = $2, metered_item_ref = $3, updated_at = NOW()
		WHERE key = $1
	`, key, customerRef, meteredItemRef)
	if err != nil {
		return fmt.Errorf("set license billing refs: %w", err)
	}
	return nil
}

// SetLicenseProducts replaces the entitled product set for a license.
func (db *DB) SetLicenseProducts(ctx context.Context, key string, products []string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE licenses SET products = $2, updated_at = NOW() WHERE key = $1
	`, key, products)
	if err != nil {
		return fmt.Errorf("set license products: %w", err)
	}
	return nil
}

// ListActiveLicenseKeys returns the keys of all active licenses.
func (db *DB) ListActiveLicenseKeys(ctx context.Context) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT key FROM licenses WHERE status = 'active' ORDER BY key
	`)
	if err != nil {
		return nil, fmt.Errorf("list active license keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan license key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
