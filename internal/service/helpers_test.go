package service

import (
	"auth_session/internal/auth"
	"auth_session/internal/models"
	"auth_session/internal/storage"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testAccessTTL  = 15 * time.Minute
	testRefreshTTL = 72 * time.Hour
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeStorage records what it is given and can be told to fail.
type fakeStorage struct {
	mu        sync.Mutex
	users     map[string]models.User
	created   []models.User
	findErr   error
	createErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{users: make(map[string]models.User)}
}

func (f *fakeStorage) FindUserByIdentity(_ context.Context, email string) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.findErr != nil {
		return models.User{}, f.findErr
	}
	u, ok := f.users[storage.NormalizeEmail(email)]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeStorage) CreateUser(_ context.Context, user models.User) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.created = append(f.created, user)
	if f.createErr != nil {
		return models.User{}, f.createErr
	}
	if _, ok := f.users[user.Email]; ok {
		return models.User{}, storage.ErrUserExists
	}
	f.users[user.Email] = user
	return user, nil
}

type recorded struct {
	class, reason string
}

type fakeRecorder struct {
	mu         sync.Mutex
	logins     []string
	refreshes  []string
	registers  []string
	rejections []recorded
}

func (r *fakeRecorder) Login(o string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logins = append(r.logins, o)
}

func (r *fakeRecorder) Refresh(o string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshes = append(r.refreshes, o)
}

func (r *fakeRecorder) Register(o string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registers = append(r.registers, o)
}

func (r *fakeRecorder) TokenRejected(class, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejections = append(r.rejections, recorded{class, reason})
}

type testEnv struct {
	svc      *service
	storage  UserStorage
	hasher   *auth.PasswordHasher
	access   *auth.TokenCodec
	refresh  *auth.TokenCodec
	clock    *fakeClock
	recorder *fakeRecorder
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, st UserStorage, opts ...Option) *testEnv {
	t.Helper()

	clock := &fakeClock{now: time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)}

	hasher, err := auth.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	access, err := auth.NewTokenCodec("access-secret-0123456789abcdefghij", testAccessTTL, auth.WithClock(clock.Now))
	require.NoError(t, err)
	refresh, err := auth.NewTokenCodec("refresh-secret-0123456789abcdefghi", testRefreshTTL, auth.WithClock(clock.Now))
	require.NoError(t, err)

	rec := &fakeRecorder{}
	opts = append([]Option{WithRecorder(rec)}, opts...)

	return &testEnv{
		svc:      NewService(discardLogger(), st, hasher, access, refresh, opts...),
		storage:  st,
		hasher:   hasher,
		access:   access,
		refresh:  refresh,
		clock:    clock,
		recorder: rec,
	}
}

func newSQLiteEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	st, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	return newTestEnv(t, st, opts...)
}

func (e *testEnv) registerUser(t *testing.T, email, password string, role models.Role) models.User {
	t.Helper()

	u, err := e.svc.RegisterWithRole(context.Background(), models.SignUpCredentials{
		Email:    email,
		Password: password,
		Name:     "Test User",
	}, role)
	require.NoError(t, err)
	return u
}
