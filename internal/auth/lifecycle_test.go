package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/skillgate/skillgate/internal/models"
)

type fakeLifecycleStore struct {
	users    map[string]*models.User
	licenses map[string]*models.License
	sessions map[string]*models.Session
	deletes  int
}

func newFakeLifecycleStore() *fakeLifecycleStore {
	return &fakeLifecycleStore{
		users:    make(map[string]*models.User),
		licenses: make(map[string]*models.License),
		sessions: make(map[string]*models.Session),
	}
}

func (f *fakeLifecycleStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	return f.users[email], nil
}

func (f *fakeLifecycleStore) GetLicense(_ context.Context, key string) (*models.License, error) {
	return f.licenses[key], nil
}

func (f *fakeLifecycleStore) UpsertSession(_ context.Context, session *models.Session) error {
	f.sessions[session.LicenseKey+"|"+session.Token] = session
	return nil
}

func (f *fakeLifecycleStore) DeleteSession(_ context.Context, licenseKey, token string) error {
	f.deletes++
	delete(f.sessions, licenseKey+"|"+token)
	return nil
}

func seedAccount(t *testing.T, store *fakeLifecycleStore, password string, licenseStatus models.LicenseStatus) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	user := &models.User{
		ID:           uuid.New(),
		LicenseKey:   "lic_login",
		Email:        "dev@example.com",
		Role:         "member",
		PasswordHash: string(hash),
	}
	store.users[user.Email] = user
	store.licenses["lic_login"] = &models.License{
		Key:      "lic_login",
		Status:   licenseStatus,
		Plan:     models.PlanStarter,
		Products: []string{"skills"},
	}
	return user
}

func TestLifecycle_LoginIssuesVerifiableToken(t *testing.T) {
	codec := testCodec(t)
	store := newFakeLifecycleStore()
	sessionCache := newFakeSessionCache()
	l := NewLifecycle(codec, sessionCache, store, time.Hour, zerolog.Nop())

	user := seedAccount(t, store, "hunter2hunter2", models.LicenseStatusActive)

	token, snapshot, err := l.Login(context.Background(), "dev@example.com", "hunter2hunter2", "10.0.0.1", "test-agent")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.NotNil(t, snapshot)
	assert.Equal(t, user.ID, snapshot.User.ID)
	assert.Equal(t, "lic_login", snapshot.License.Key)

	claims, err := codec.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "lic_login", claims.LicenseKey)

	// The persistent row exists and the cache was primed.
	assert.NotNil(t, store.sessions["lic_login|"+token])
	assert.Equal(t, 1, sessionCache.puts)
}

func TestLifecycle_LoginWrongPassword(t *testing.T) {
	codec := testCodec(t)
	store := newFakeLifecycleStore()
	l := NewLifecycle(codec, nil, store, time.Hour, zerolog.Nop())

	seedAccount(t, store, "hunter2hunter2", models.LicenseStatusActive)

	_, _, err := l.Login(context.Background(), "dev@example.com", "wrong", "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLifecycle_LoginUnknownEmail(t *testing.T) {
	codec := testCodec(t)
	store := newFakeLifecycleStore()
	l := NewLifecycle(codec, nil, store, time.Hour, zerolog.Nop())

	_, _, err := l.Login(context.Background(), "nobody@example.com", "whatever", "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLifecycle_LoginInactiveLicense(t *testing.T) {
	codec := testCodec(t)
	store := newFakeLifecycleStore()
	l := NewLifecycle(codec, nil, store, time.Hour, zerolog.Nop())

	seedAccount(t, store, "hunter2hunter2", models.LicenseStatusSuspended)

	// Suspended licenses are indistinguishable from bad credentials.
	_, _, err := l.Login(context.Background(), "dev@example.com", "hunter2hunter2", "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLifecycle_LogoutRemovesBothHomes(t *testing.T) {
	codec := testCodec(t)
	store := newFakeLifecycleStore()
	sessionCache := newFakeSessionCache()
	l := NewLifecycle(codec, sessionCache, store, time.Hour, zerolog.Nop())

	seedAccount(t, store, "hunter2hunter2", models.LicenseStatusActive)
	token, _, err := l.Login(context.Background(), "dev@example.com", "hunter2hunter2", "", "")
	require.NoError(t, err)

	require.NoError(t, l.Logout(context.Background(), token))
	assert.Empty(t, store.sessions)
	assert.Empty(t, sessionCache.snapshots)
}

func TestLifecycle_LogoutGarbageTokenIsNoop(t *testing.T) {
	codec := testCodec(t)
	store := newFakeLifecycleStore()
	l := NewLifecycle(codec, nil, store, time.Hour, zerolog.Nop())

	require.NoError(t, l.Logout(context.Background(), "not-a-token"))
	assert.Zero(t, store.deletes)
}
