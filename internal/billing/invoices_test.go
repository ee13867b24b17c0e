package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillgate/skillgate/internal/models"
)

type fakeInvoiceStore struct {
	usage    map[string]struct {
		total int64
		count int
	}
	invoices map[string]*models.MonthlyInvoice
	listErr  error
}

func newFakeInvoiceStore() *fakeInvoiceStore {
	return &fakeInvoiceStore{
		usage: make(map[string]struct {
			total int64
			count int
		}),
		invoices: make(map[string]*models.MonthlyInvoice),
	}
}

func (f *fakeInvoiceStore) ListLicenseKeysWithUsageBetween(_ context.Context, _, _ time.Time) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var keys []string
	for key := range f.usage {
		keys = append(keys, key)
	}
	return keys, nil
}

func (f *fakeInvoiceStore) SumUsageBetween(_ context.Context, licenseKey string, _, _ time.Time) (int64, int, error) {
	u := f.usage[licenseKey]
	return u.total, u.count, nil
}

func (f *fakeInvoiceStore) UpsertMonthlyInvoice(_ context.Context, inv *models.MonthlyInvoice) error {
	f.invoices[inv.LicenseKey+"|"+inv.YearMonth] = inv
	return nil
}

func TestInvoiceScheduler_AggregateMonth(t *testing.T) {
	store := newFakeInvoiceStore()
	store.usage["lic_a"] = struct {
		total int64
		count int
	}{total: 1250, count: 7}
	store.usage["lic_b"] = struct {
		total int64
		count int
	}{total: 300, count: 2}

	s := NewInvoiceScheduler(store, "GBP", zerolog.Nop())
	require.NoError(t, s.AggregateMonth(context.Background(), 2026, time.July))

	require.Len(t, store.invoices, 2)

	invA := store.invoices["lic_a|2026-07"]
	require.NotNil(t, invA)
	assert.Equal(t, int64(1250), invA.TotalPence)
	assert.Equal(t, 7, invA.ActionCount)
	assert.Equal(t, "GBP", invA.Currency)
	assert.Equal(t, "2026-07", invA.YearMonth)

	invB := store.invoices["lic_b|2026-07"]
	require.NotNil(t, invB)
	assert.Equal(t, int64(300), invB.TotalPence)
}

func TestInvoiceScheduler_AggregateMonthEmpty(t *testing.T) {
	store := newFakeInvoiceStore()
	s := NewInvoiceScheduler(store, "GBP", zerolog.Nop())

	require.NoError(t, s.AggregateMonth(context.Background(), 2026, time.January))
	assert.Empty(t, store.invoices)
}

func TestInvoiceScheduler_AggregateMonthListError(t *testing.T) {
	store := newFakeInvoiceStore()
	store.listErr = errors.New("db down")
	s := NewInvoiceScheduler(store, "GBP", zerolog.Nop())

	assert.Error(t, s.AggregateMonth(context.Background(), 2026, time.July))
}

func TestInvoiceScheduler_StartStop(t *testing.T) {
	s := NewInvoiceScheduler(newFakeInvoiceStore(), "GBP", zerolog.Nop())

	require.NoError(t, s.Start())
	assert.Error(t, s.Start(), "second start must fail")

	ctx := s.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop in time")
	}

	// Stopping again is safe.
	s.Stop()
}
