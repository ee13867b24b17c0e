//go:build integration

package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/skillgate/skillgate/internal/models"
)

var testDB *DB

func TestMain(m *testing.M) {
	if !dockerAvailable() {
		fmt.Println("Docker is not available, skipping integration tests")
		os.Exit(0)
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("skillgate_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		log.Fatalf("failed to start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		pgContainer.Terminate(ctx)
		log.Fatalf("failed to get connection string: %v", err)
	}

	logger := zerolog.New(zerolog.NewConsoleWriter())
	cfg := DefaultConfig(connStr)
	cfg.MaxConns = 5
	cfg.MinConns = 1

	testDB, err = New(ctx, cfg, logger)
	if err != nil {
		pgContainer.Terminate(ctx)
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := testDB.Migrate(ctx); err != nil {
		testDB.Close()
		pgContainer.Terminate(ctx)
		log.Fatalf("failed to run migrations: %v", err)
	}

	code := m.Run()

	testDB.Close()
	pgContainer.Terminate(ctx)

	os.Exit(code)
}

// dockerAvailable returns true if a Docker daemon is reachable.
func dockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	return cmd.Run() == nil
}

// setupTestDB returns the shared test database after cleaning all tables.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	cleanTables(t, testDB)
	return testDB
}

// cleanTables truncates all user tables between tests for isolation.
func cleanTables(t *testing.T, db *DB) {
	t.Helper()
	ctx := context.Background()
	_, err := db.Pool.Exec(ctx, `
		DO $$ DECLARE r RECORD;
		BEGIN
			FOR r IN (SELECT tablename FROM pg_tables WHERE schemaname = 'public' AND tablename != 'schema_migrations') LOOP
				EXECUTE 'TRUNCATE TABLE ' || quote_ident(r.tablename) || ' CASCADE';
			END LOOP;
		END $$;
	`)
	require.NoError(t, err)
}

// createTestLicense creates and persists an active license.
func createTestLicense(t *testing.T, db *DB, key string, plan models.Plan) *models.License {
	t.Helper()
	now := time.Now()
	lic := &models.License{
		Key:                key,
		Status:             models.LicenseStatusActive,
		Plan:               plan,
		Products:           []string{"skills"},
		BillingCustomerRef: "cus_" + key,
		MeteredItemRef:     "si_" + key,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	require.NoError(t, db.UpsertLicense(context.Background(), lic))
	return lic
}

func TestLicenseRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	created := createTestLicense(t, db, "lic_rt", models.PlanProfessional)

	got, err := db.GetLicense(ctx, "lic_rt")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.Key, got.Key)
	assert.Equal(t, models.LicenseStatusActive, got.Status)
	assert.Equal(t, models.PlanProfessional, got.Plan)
	assert.Equal(t, []string{"skills"}, got.Products)
	assert.Equal(t, "cus_lic_rt", got.BillingCustomerRef)

	byRef, err := db.GetLicenseByBillingRef(ctx, "cus_lic_rt")
	require.NoError(t, err)
	require.NotNil(t, byRef)
	assert.Equal(t, "lic_rt", byRef.Key)

	missing, err := db.GetLicense(ctx, "lic_nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpsertLicenseUpdatesInPlace(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	lic := createTestLicense(t, db, "lic_up", models.PlanFree)
	lic.Plan = models.PlanStarter
	lic.Products = []string{"skills", "reports"}
	require.NoError(t, db.UpsertLicense(ctx, lic))

	got, err := db.GetLicense(ctx, "lic_up")
	require.NoError(t, err)
	assert.Equal(t, models.PlanStarter, got.Plan)
	assert.Equal(t, []string{"skills", "reports"}, got.Products)
}

func TestSetLicenseStatus(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	createTestLicense(t, db, "lic_st", models.PlanFree)
	require.NoError(t, db.SetLicenseStatus(ctx, "lic_st", models.LicenseStatusSuspended))

	got, err := db.GetLicense(ctx, "lic_st")
	require.NoError(t, err)
	assert.Equal(t, models.LicenseStatusSuspended, got.Status)

	assert.Error(t, db.SetLicenseStatus(ctx, "lic_missing", models.LicenseStatusActive))
}

func TestSessionRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	createTestLicense(t, db, "lic_sess", models.PlanStarter)
	user := &models.User{
		ID:           uuid.New(),
		LicenseKey:   "lic_sess",
		Email:        "dev@example.com",
		Role:         "member",
		PasswordHash: "hash",
		CreatedAt:    time.Now(),
	}
	require.NoError(t, db.CreateUser(ctx, user))

	session := &models.Session{
		LicenseKey: "lic_sess",
		Token:      "tok_abc",
		UserID:     user.ID,
		Role:       "member",
		ExpiresAt:  time.Now().Add(time.Hour),
		CreatedAt:  time.Now(),
	}
	require.NoError(t, db.UpsertSession(ctx, session))

	got, err := db.GetSession(ctx, "lic_sess", "tok_abc")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, user.ID, got.UserID)

	require.NoError(t, db.DeleteSession(ctx, "lic_sess", "tok_abc"))
	gone, err := db.GetSession(ctx, "lic_sess", "tok_abc")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestDeleteExpiredSessions(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	createTestLicense(t, db, "lic_exp", models.PlanStarter)
	user := &models.User{
		ID:         uuid.New(),
		LicenseKey: "lic_exp",
		Email:      "exp@example.com",
		CreatedAt:  time.Now(),
	}
	require.NoError(t, db.CreateUser(ctx, user))

	for i, expiresAt := range []time.Time{
		time.Now().Add(-time.Hour),
		time.Now().Add(-time.Minute),
		time.Now().Add(time.Hour),
	} {
		require.NoError(t, db.UpsertSession(ctx, &models.Session{
			LicenseKey: "lic_exp",
			Token:      fmt.Sprintf("tok_%d", i),
			UserID:     user.ID,
			ExpiresAt:  expiresAt,
			CreatedAt:  time.Now(),
		}))
	}

	deleted, err := db.DeleteExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	alive, err := db.GetSession(ctx, "lic_exp", "tok_2")
	require.NoError(t, err)
	assert.NotNil(t, alive)
}

func TestAPIKeyLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	createTestLicense(t, db, "lic_key", models.PlanProfessional)

	rec := &models.APIKey{
		Key:        "sg_testkey",
		LicenseKey: "lic_key",
		Status:     models.APIKeyStatusActive,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, db.CreateAPIKey(ctx, rec))

	got, err := db.GetAPIKey(ctx, "sg_testkey")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.APIKeyStatusActive, got.Status)
	assert.Nil(t, got.LastUsedAt)

	usedAt := time.Now()
	require.NoError(t, db.TouchAPIKey(ctx, "sg_testkey", usedAt))
	got, err = db.GetAPIKey(ctx, "sg_testkey")
	require.NoError(t, err)
	require.NotNil(t, got.LastUsedAt)

	require.NoError(t, db.RevokeAPIKey(ctx, "sg_testkey"))
	got, err = db.GetAPIKey(ctx, "sg_testkey")
	require.NoError(t, err)
	assert.Equal(t, models.APIKeyStatusRevoked, got.Status)

	assert.Error(t, db.RevokeAPIKey(ctx, "sg_missing"))
}

func TestAppendUsageRecordCharged(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	createTestLicense(t, db, "lic_usage", models.PlanStarter)
	since := time.Now().Add(-time.Hour)

	rec := models.NewUsageRecord("lic_usage", "skill.summarize", 100, "GBP", "exec-1", "")
	result, charged, err := db.AppendUsageRecordCharged(ctx, rec, 0, since, func(context.Context) (string, error) {
		return "charge_1", nil
	})
	require.NoError(t, err)
	assert.True(t, charged)
	assert.Equal(t, "charge_1", result.ChargeID)

	total, err := db.SumUsageSince(ctx, "lic_usage", since)
	require.NoError(t, err)
	assert.Equal(t, int64(100), total)
}

func TestAppendUsageRecordCharged_DuplicateExecutionRef(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	createTestLicense(t, db, "lic_dup", models.PlanStarter)
	since := time.Now().Add(-time.Hour)

	first := models.NewUsageRecord("lic_dup", "skill.summarize", 100, "GBP", "exec-dup", "")
	_, charged, err := db.AppendUsageRecordCharged(ctx, first, 0, since, func(context.Context) (string, error) {
		return "charge_1", nil
	})
	require.NoError(t, err)
	require.True(t, charged)

	// A replay returns the original row and never invokes the charge callback.
	replay := models.NewUsageRecord("lic_dup", "skill.summarize", 100, "GBP", "exec-dup", "")
	result, charged, err := db.AppendUsageRecordCharged(ctx, replay, 0, since, func(context.Context) (string, error) {
		t.Fatal("charge callback must not run for a duplicate")
		return "", nil
	})
	require.NoError(t, err)
	assert.False(t, charged)
	assert.Equal(t, first.ID, result.ID)
	assert.Equal(t, "charge_1", result.ChargeID)

	total, err := db.SumUsageSince(ctx, "lic_dup", since)
	require.NoError(t, err)
	assert.Equal(t, int64(100), total)
}

func TestAppendUsageRecordCharged_CapEnforced(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	createTestLicense(t, db, "lic_cap", models.PlanStarter)
	since := time.Now().Add(-time.Hour)

	seed := models.NewUsageRecord("lic_cap", "skill.generate", 450, "GBP", "exec-seed", "")
	_, _, err := db.AppendUsageRecordCharged(ctx, seed, 500, since, func(context.Context) (string, error) {
		return "charge_seed", nil
	})
	require.NoError(t, err)

	over := models.NewUsageRecord("lic_cap", "skill.summarize", 100, "GBP", "exec-over", "")
	_, _, err = db.AppendUsageRecordCharged(ctx, over, 500, since, func(context.Context) (string, error) {
		t.Fatal("charge callback must not run past the cap")
		return "", nil
	})
	require.ErrorIs(t, err, ErrDailyCapExceeded)

	// The failed attempt left no ledger entry.
	total, err := db.SumUsageSince(ctx, "lic_cap", since)
	require.NoError(t, err)
	assert.Equal(t, int64(450), total)
}

func TestAppendUsageRecordCharged_ChargeFailureAbortsLedger(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	createTestLicense(t, db, "lic_fail", models.PlanStarter)
	since := time.Now().Add(-time.Hour)

	rec := models.NewUsageRecord("lic_fail", "skill.summarize", 100, "GBP", "exec-fail", "")
	_, _, err := db.AppendUsageRecordCharged(ctx, rec, 0, since, func(context.Context) (string, error) {
		return "", fmt.Errorf("card declined")
	})
	require.Error(t, err)

	total, err := db.SumUsageSince(ctx, "lic_fail", since)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestAppendUsageRecordCharged_ConcurrentChargesSerialize(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	createTestLicense(t, db, "lic_conc", models.PlanStarter)
	since := time.Now().Add(-time.Hour)

	// Ten concurrent 100 pence charges against a 500 pence cap: exactly five
	// may land regardless of interleaving.
	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := models.NewUsageRecord("lic_conc", "skill.summarize", 100, "GBP", fmt.Sprintf("exec-%d", i), "")
			_, _, errs[i] = db.AppendUsageRecordCharged(ctx, rec, 500, since, func(context.Context) (string, error) {
				return fmt.Sprintf("charge_%d", i), nil
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, ErrDailyCapExceeded)
		}
	}
	assert.Equal(t, 5, succeeded)

	total, err := db.SumUsageSince(ctx, "lic_conc", since)
	require.NoError(t, err)
	assert.Equal(t, int64(500), total)
}

func TestMonthlyInvoiceRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	createTestLicense(t, db, "lic_inv", models.PlanProfessional)

	inv := &models.MonthlyInvoice{
		ID:          uuid.New(),
		LicenseKey:  "lic_inv",
		YearMonth:   "2026-07",
		TotalPence:  1250,
		Currency:    "GBP",
		ActionCount: 7,
		GeneratedAt: time.Now().UTC(),
	}
	require.NoError(t, db.UpsertMonthlyInvoice(ctx, inv))

	got, err := db.GetMonthlyInvoice(ctx, "lic_inv", "2026-07")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1250), got.TotalPence)
	assert.Equal(t, 7, got.ActionCount)

	// Re-aggregation overwrites in place.
	inv.TotalPence = 1300
	inv.ActionCount = 8
	require.NoError(t, db.UpsertMonthlyInvoice(ctx, inv))

	got, err = db.GetMonthlyInvoice(ctx, "lic_inv", "2026-07")
	require.NoError(t, err)
	assert.Equal(t, int64(1300), got.TotalPence)
	assert.Equal(t, 8, got.ActionCount)

	missing, err := db.GetMonthlyInvoice(ctx, "lic_inv", "2026-08")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
