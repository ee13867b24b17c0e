package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/skillgate/skillgate/internal/models"
)

// ErrDailyCapExceeded is returned when the transactional cap re-check fails.
// Concurrent charges can pass the advisory canAfford check and still lose here.
var ErrDailyCapExceeded = errors.New("daily cap exceeded")

// ChargeFunc performs the external billing side effect once affordability has
// been re-confirmed inside the transaction. Returning an error aborts the
// transaction: no ledger entry is written and the caller must not proceed.
type ChargeFunc func(ctx context.Context) (chargeID string, err error)

// AppendUsageRecordCharged appends a ledger entry and runs the external charge
// atomically. The license row is locked for the duration, serializing
// concurrent charges for the same license; the cap re-check and the append
// therefore cannot race. A duplicate execution_ref returns the existing record
// with charged=false and performs no external call (idempotency).
//
// capPence <= 0 disables the cap check. since is the start of the current day
// in the license's billing timezone.
func (db *DB) AppendUsageRecordCharged(ctx context.Context, rec *models.UsageRecord, capPence int64, since time.Time, charge ChargeFunc) (*models.UsageRecord, bool, error) {
	var result *models.UsageRecord
	charged := false

	err := db.ExecTx(ctx, func(tx pgx.Tx) error {
		// Serialize per-license: all charge transactions for a license queue here.
		if _, err := tx.Exec(ctx, `SELECT 1 FROM licenses WHERE key = $1 FOR UPDATE`, rec.LicenseKey); err != nil {
			return fmt.Errorf("lock license row: %w", err)
		}

		existing, err := getUsageByExecutionRefTx(ctx, tx, rec.LicenseKey, rec.ExecutionRef)
		if err != nil {
			return err
		}
		if existing != nil {
			result = existing
			return nil
		}

		if capPence > 0 {
			var spent int64
			err := tx.QueryRow(ctx, `
				SELECT COALESCE(SUM(cost_pence), 0)
				FROM usage_records
				WHERE license_key = $1 AND created_at >= $2
			`, rec.LicenseKey, since).Scan(&spent)
			if err != nil {
				return fmt.Errorf("sum usage for cap check: %w", err)
			}
			if spent+rec.CostPence > capPence {
				return ErrDailyCapExceeded
			}
		}

		chargeID, err := charge(ctx)
		if err != nil {
			return err
		}
		rec.ChargeID = chargeID

		if _, err := tx.Exec(ctx, `
			INSERT INTO usage_records (id, license_key, action_id, cost_pence, currency, execution_ref, charge_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, rec.ID, rec.LicenseKey, rec.ActionID, rec.CostPence, rec.Currency,
			rec.ExecutionRef, rec.ChargeID, rec.CreatedAt); err != nil {
			return fmt.Errorf("append usage record: %w", err)
		}

		result = rec
		charged = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, charged, nil
}

func getUsageByExecutionRefTx(ctx context.Context, tx pgx.Tx, licenseKey, executionRef string) (*models.UsageRecord, error) {
	var rec models.UsageRecord
	err := tx.QueryRow(ctx, `
		SELECT id, license_key, action_id, cost_pence, currency, execution_ref, charge_id, created_at
		FROM usage_records
		WHERE license_key = $1 AND execution_ref = $2
	`, licenseKey, executionRef).Scan(
		&rec.ID, &rec.LicenseKey, &rec.ActionID, &rec.CostPence, &rec.Currency,
		&rec.ExecutionRef, &rec.ChargeID, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get usage by execution ref: %w", err)
	}
	return &rec, nil
}

// GetUsageByExecutionRef returns the ledger entry for an execution reference.
// Returns nil when no row exists.
func (db *DB) GetUsageByExecutionRef(ctx context.Context, licenseKey, executionRef string) (*models.UsageRecord, error) {
	var rec models.UsageRecord
	err := db.Pool.QueryRow(ctx, `
		SELECT id, license_key, action_id, cost_pence, currency, execution_ref, charge_id, created_at
		FROM usage_records
		WHERE license_key = $1 AND execution_ref = $2
	`, licenseKey, executionRef).Scan(
		&rec.ID, &rec.LicenseKey, &rec.ActionID, &rec.CostPence, &rec.Currency,
		&rec.ExecutionRef, &rec.ChargeID, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get usage by execution ref: %w", err)
	}
	return &rec, nil
}

// SumUsageSince returns the total ledger spend for a license since the given time.
func (db *DB) SumUsageSince(ctx context.Context, licenseKey string, since time.Time) (int64, error) {
	var total int64
	err := db.Pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(cost_pence), 0)
		FROM usage_records
		WHERE license_key = $1 AND created_at >= $2
	`, licenseKey, since).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum usage since: %w", err)
	}
	return total, nil
}

// SumUsageBetween returns the total spend and record count for a license in [start, end).
func (db *DB) SumUsageBetween(ctx context.Context, licenseKey string, start, end time.Time) (int64, int, error) {
	var total int64
	var count int
	err := db.Pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(cost_pence), 0), COUNT(*)
		FROM usage_records
		WHERE license_key = $1 AND created_at >= $2 AND created_at < $3
	`, licenseKey, start, end).Scan(&total, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("sum usage between: %w", err)
	}
	return total, count, nil
}

// ListLicenseKeysWithUsageBetween returns license keys that have ledger
// entries in [start, end). Used by the monthly invoice aggregation job.
func (db *DB) ListLicenseKeysWithUsageBetween(ctx context.Context, start, end time.Time) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT DISTINCT license_key
		FROM usage_records
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY license_key
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("list license keys with usage: %w", err)
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

// UpsertMonthlyInvoice writes an aggregated invoice row for a license and month.
func (db *DB) UpsertMonthlyInvoice(ctx context.Context, inv *models.MonthlyInvoice) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO monthly_invoices (id, license_key, year_month, total_pence, currency, action_count, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (license_key, year_month)
		DO UPDATE SET total_pence = $4, currency = $5, action_count = $6, generated_at = $7
	`, inv.ID, inv.LicenseKey, inv.YearMonth, inv.TotalPence, inv.Currency, inv.ActionCount, inv.GeneratedAt)
	if err != nil {
		return fmt.Errorf("upsert monthly invoice: %w", err)
	}
	return nil
}

// GetMonthlyInvoice returns the invoice for a license and month.
// Returns nil when no row exists.
func (db *DB) GetMonthlyInvoice(ctx context.Context, licenseKey, yearMonth string) (*models.MonthlyInvoice, error) {
	var inv models.MonthlyInvoice
	err := db.Pool.QueryRow(ctx, `
		SELECT id, license_key, year_month, total_pence, currency, action_count, generated_at
		FROM monthly_invoices
		WHERE license_key = $1 AND year_month = $2
	`, licenseKey, yearMonth).Scan(
		&inv.ID, &inv.LicenseKey, &inv.YearMonth, &inv.TotalPence,
		&inv.Currency, &inv.ActionCount, &inv.GeneratedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get monthly invoice: %w", err)
	}
	return &inv, nil
}
