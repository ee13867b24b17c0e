package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/skillgate/skillgate/internal/models"
)

// InvoiceStore defines the ledger access the invoice aggregation job needs.
type InvoiceStore interface {
	ListLicenseKeysWithUsageBetween(ctx context.Context, start, end time.Time) ([]string, error)
	SumUsageBetween(ctx context.Context, licenseKey string, start, end time.Time) (int64, int, error)
	UpsertMonthlyInvoice(ctx context.Context, inv *models.MonthlyInvoice) error
}

// InvoiceScheduler aggregates the usage ledger into monthly invoice rows.
type InvoiceScheduler struct {
	store    InvoiceStore
	currency string
	cron     *cron.Cron
	logger   zerolog.Logger
	mu       sync.Mutex
	running  bool
}

// NewInvoiceScheduler creates a monthly invoice aggregation scheduler.
func NewInvoiceScheduler(store InvoiceStore, currency string, logger zerolog.Logger) *InvoiceScheduler {
	return &InvoiceScheduler{
		store:    store,
		currency: currency,
		cron:     cron.New(),
		logger:   logger.With().Str("component", "invoices").Logger(),
	}
}

// Start schedules aggregation of the previous month on the 1st at 02:30 UTC.
// Aggregation is an upsert, so re-running for a month is safe.
func (s *InvoiceScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("invoice scheduler already running")
	}

	_, err := s.cron.AddFunc("30 2 1 * *", s.runAggregation)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().Msg("invoice scheduler started (monthly on the 1st at 02:30 UTC)")
	return nil
}

// Stop stops the invoice scheduler gracefully.
func (s *InvoiceScheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}

	s.running = false
	s.logger.Info().Msg("stopping invoice scheduler")
	return s.cron.Stop()
}

// runAggregation aggregates the month that just ended.
func (s *InvoiceScheduler) runAggregation() {
	ctx := context.Background()
	prev := time.Now().UTC().AddDate(0, -1, 0)
	if err := s.AggregateMonth(ctx, prev.Year(), prev.Month()); err != nil {
		s.logger.Error().Err(err).Msg("monthly invoice aggregation failed")
	}
}

// AggregateMonth writes an invoice row for every license with ledger entries
// in the given month.
func (s *InvoiceScheduler) AggregateMonth(ctx context.Context, year int, month time.Month) error {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	yearMonth := start.Format("2006-01")

	s.logger.Info().Str("month", yearMonth).Msg("starting invoice aggregation")

	keys, err := s.store.ListLicenseKeysWithUsageBetween(ctx, start, end)
	if err != nil {
		return fmt.Errorf("list licenses with usage: %w", err)
	}

	generated := 0
	for _, key := range keys {
		total, count, err := s.store.SumUsageBetween(ctx, key, start, end)
		if err != nil {
			s.logger.Error().Err(err).Str("license_key", key).Msg("failed to sum usage for invoice")
			continue
		}

		inv := &models.MonthlyInvoice{
			ID:          uuid.New(),
			LicenseKey:  key,
			YearMonth:   yearMonth,
			TotalPence:  total,
			Currency:    s.currency,
			ActionCount: count,
			GeneratedAt: time.Now().UTC(),
		}
		if err := s.store.UpsertMonthlyInvoice(ctx, inv); err != nil {
			s.logger.Error().Err(err).Str("license_key", key).Msg("failed to upsert invoice")
			continue
		}
		generated++
	}

	s.logger.Info().
		Str("month", yearMonth).
		Int("licenses", len(keys)).
		Int("invoices", generated).
		Msg("invoice aggregation completed")
	return nil
}

// RunNow triggers an immediate aggregation of the previous month.
func (s *InvoiceScheduler) RunNow() {
	s.runAggregation()
}
