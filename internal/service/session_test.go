package service

import (
	"auth_session/internal/auth"
	"auth_session/internal/limiter"
	"auth_session/internal/metrics"
	"auth_session/internal/models"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestLogin_Success(t *testing.T) {
	env := newSQLiteEnv(t)
	env.registerUser(t, "a@x.com", "pw123456", models.RoleUser)

	pair, err := env.svc.Login(context.Background(), models.SignInCredentials{Email: "a@x.com", Password: "pw123456"})
	require.NoError(t, err)

	access, err := env.access.Decode(pair.Access.Value)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", access.Subject)
	assert.Equal(t, models.RoleUser, access.Role)
	assert.True(t, pair.Access.ExpiresAt.Equal(env.clock.Now().Add(testAccessTTL)))

	refresh, err := env.refresh.Decode(pair.Refresh.Value)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", refresh.Subject)
	assert.Equal(t, models.RoleUser, refresh.Role)
	assert.True(t, pair.Refresh.ExpiresAt.Equal(env.clock.Now().Add(testRefreshTTL)))

	assert.Equal(t, []string{metrics.OutcomeSuccess}, env.recorder.logins)
}

func TestLogin_AdminRolePropagates(t *testing.T) {
	env := newSQLiteEnv(t)
	env.registerUser(t, "root@x.com", "pw123456", models.RoleAdmin)

	pair, err := env.svc.Login(context.Background(), models.SignInCredentials{Email: "ROOT@x.com", Password: "pw123456"})
	require.NoError(t, err)

	claims, err := env.svc.Authenticate(pair.Access.Value)
	require.NoError(t, err)
	assert.Equal(t, "root@x.com", claims.Subject)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestLogin_WrongPasswordLooksLikeUnknownUser(t *testing.T) {
	env := newSQLiteEnv(t)
	env.registerUser(t, "a@x.com", "pw123456", models.RoleUser)

	_, wrongPw := env.svc.Login(context.Background(), models.SignInCredentials{Email: "a@x.com", Password: "wrong-password"})
	_, unknown := env.svc.Login(context.Background(), models.SignInCredentials{Email: "b@x.com", Password: "pw123456"})

	require.ErrorIs(t, wrongPw, ErrAuthFailed)
	require.ErrorIs(t, unknown, ErrAuthFailed)
	assert.Equal(t, wrongPw.Error(), unknown.Error())
	assert.Equal(t, []string{metrics.OutcomeFailed, metrics.OutcomeFailed}, env.recorder.logins)
}

func TestLogin_StorageUnavailableIsNotAuthFailure(t *testing.T) {
	st := newFakeStorage()
	st.findErr = errors.New("connection refused")
	env := newTestEnv(t, st)

	_, err := env.svc.Login(context.Background(), models.SignInCredentials{Email: "a@x.com", Password: "pw123456"})
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.NotErrorIs(t, err, ErrAuthFailed)
	assert.Equal(t, []string{metrics.OutcomeServerError}, env.recorder.logins)
}

func TestLogin_CorruptStoredHashIsServerFault(t *testing.T) {
	st := newFakeStorage()
	st.users["a@x.com"] = models.User{Email: "a@x.com", PasswordHash: "not-a-bcrypt-hash", Role: models.RoleUser}
	env := newTestEnv(t, st)

	_, err := env.svc.Login(context.Background(), models.SignInCredentials{Email: "a@x.com", Password: "pw123456"})
	assert.ErrorIs(t, err, auth.ErrHashFormat)
	assert.NotErrorIs(t, err, ErrAuthFailed)
}

func TestLogin_UnknownStoredRoleIsServerFault(t *testing.T) {
	st := newFakeStorage()
	env := newTestEnv(t, st)

	hash, err := env.hasher.Hash("pw123456")
	require.NoError(t, err)
	st.users["a@x.com"] = models.User{Email: "a@x.com", PasswordHash: hash, Role: models.Role("owner")}

	_, err = env.svc.Login(context.Background(), models.SignInCredentials{Email: "a@x.com", Password: "pw123456"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAuthFailed)
}

func TestLogin_Concurrent(t *testing.T) {
	env := newSQLiteEnv(t)
	env.registerUser(t, "a@x.com", "pw123456", models.RoleUser)

	const n = 8
	values := make([]string, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pair, err := env.svc.Login(context.Background(), models.SignInCredentials{Email: "a@x.com", Password: "pw123456"})
			if assert.NoError(t, err) {
				values[i] = pair.Refresh.Value
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, v := range values {
		assert.False(t, seen[v], "duplicate refresh token")
		seen[v] = true
	}
}

func TestRefresh_RotatesPair(t *testing.T) {
	env := newSQLiteEnv(t)
	env.registerUser(t, "a@x.com", "pw123456", models.RoleAdmin)

	initial, err := env.svc.Login(context.Background(), models.SignInCredentials{Email: "a@x.com", Password: "pw123456"})
	require.NoError(t, err)

	env.clock.Advance(time.Second)
	first, err := env.svc.Refresh(context.Background(), initial.Refresh.Value)
	require.NoError(t, err)

	env.clock.Advance(time.Second)
	second, err := env.svc.Refresh(context.Background(), initial.Refresh.Value)
	require.NoError(t, err)

	firstAccess, err := env.access.Decode(first.Access.Value)
	require.NoError(t, err)
	secondAccess, err := env.access.Decode(second.Access.Value)
	require.NoError(t, err)

	assert.True(t, secondAccess.IssuedAt.After(firstAccess.IssuedAt))
	assert.NotEqual(t, first.Refresh.Value, second.Refresh.Value)
	assert.NotEqual(t, initial.Refresh.Value, first.Refresh.Value)
	assert.True(t, second.Refresh.ExpiresAt.After(initial.Refresh.ExpiresAt))

	assert.Equal(t, "a@x.com", secondAccess.Subject)
	assert.Equal(t, models.RoleAdmin, secondAccess.Role)

	rotated, err := env.refresh.Decode(second.Refresh.Value)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, rotated.Role)
}

func TestRefresh_BackToBackIssuedAtIncreases(t *testing.T) {
	hasher, err := auth.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	access, err := auth.NewTokenCodec("access-secret-0123456789abcdefghij", testAccessTTL)
	require.NoError(t, err)
	refresh, err := auth.NewTokenCodec("refresh-secret-0123456789abcdefghi", testRefreshTTL)
	require.NoError(t, err)

	svc := NewService(discardLogger(), newFakeStorage(), hasher, access, refresh)
	initial, err := svc.issuePair("a@x.com", models.RoleUser)
	require.NoError(t, err)

	first, err := svc.Refresh(context.Background(), initial.Refresh.Value)
	require.NoError(t, err)
	second, err := svc.Refresh(context.Background(), first.Refresh.Value)
	require.NoError(t, err)

	firstAccess, err := access.Decode(first.Access.Value)
	require.NoError(t, err)
	secondAccess, err := access.Decode(second.Access.Value)
	require.NoError(t, err)

	assert.True(t, secondAccess.IssuedAt.After(firstAccess.IssuedAt))
	assert.True(t, second.Access.IssuedAt.After(first.Access.IssuedAt))
	assert.NotEqual(t, first.Refresh.Value, second.Refresh.Value)
}

func TestRefresh_ExpiredToken(t *testing.T) {
	env := newSQLiteEnv(t)
	env.registerUser(t, "a@x.com", "pw123456", models.RoleUser)

	pair, err := env.svc.Login(context.Background(), models.SignInCredentials{Email: "a@x.com", Password: "pw123456"})
	require.NoError(t, err)

	env.clock.Advance(testRefreshTTL + time.Second)

	_, err = env.svc.Refresh(context.Background(), pair.Refresh.Value)
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.NotErrorIs(t, err, auth.ErrTokenExpired)
	assert.Equal(t, []recorded{{"refresh", "expired"}}, env.recorder.rejections)
	assert.Equal(t, []string{metrics.OutcomeFailed}, env.recorder.refreshes)
}

func TestRefresh_WorksAfterAccessExpiry(t *testing.T) {
	env := newSQLiteEnv(t)
	env.registerUser(t, "a@x.com", "pw123456", models.RoleUser)

	pair, err := env.svc.Login(context.Background(), models.SignInCredentials{Email: "a@x.com", Password: "pw123456"})
	require.NoError(t, err)

	env.clock.Advance(testAccessTTL + time.Second)

	_, err = env.svc.Authenticate(pair.Access.Value)
	require.ErrorIs(t, err, ErrAuthFailed)

	renewed, err := env.svc.Refresh(context.Background(), pair.Refresh.Value)
	require.NoError(t, err)

	_, err = env.svc.Authenticate(renewed.Access.Value)
	assert.NoError(t, err)
}

func TestRefresh_FailuresAreUniform(t *testing.T) {
	env := newSQLiteEnv(t)
	env.registerUser(t, "a@x.com", "pw123456", models.RoleUser)

	pair, err := env.svc.Login(context.Background(), models.SignInCredentials{Email: "a@x.com", Password: "pw123456"})
	require.NoError(t, err)

	tampered := pair.Refresh.Value[:len(pair.Refresh.Value)-2] + "xx"
	if tampered == pair.Refresh.Value {
		tampered = pair.Refresh.Value[:len(pair.Refresh.Value)-2] + "yy"
	}

	_, errAccessAsRefresh := env.svc.Refresh(context.Background(), pair.Access.Value)
	_, errTampered := env.svc.Refresh(context.Background(), tampered)
	_, errGarbage := env.svc.Refresh(context.Background(), "garbage")

	env.clock.Advance(testRefreshTTL)
	_, errExpired := env.svc.Refresh(context.Background(), pair.Refresh.Value)

	for _, err := range []error{errAccessAsRefresh, errTampered, errGarbage, errExpired} {
		require.ErrorIs(t, err, ErrAuthFailed)
		assert.Equal(t, errExpired.Error(), err.Error())
		assert.False(t, strings.Contains(err.Error(), "signature"))
	}

	reasons := []string{}
	for _, r := range env.recorder.rejections {
		reasons = append(reasons, r.reason)
	}
	assert.Equal(t, []string{"signature", "signature", "signature", "expired"}, reasons)
}

func TestRefresh_CancelledContext(t *testing.T) {
	env := newSQLiteEnv(t)
	env.registerUser(t, "a@x.com", "pw123456", models.RoleUser)

	pair, err := env.svc.Login(context.Background(), models.SignInCredentials{Email: "a@x.com", Password: "pw123456"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = env.svc.Refresh(ctx, pair.Refresh.Value)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLogout_ExpiresAtEpoch(t *testing.T) {
	env := newTestEnv(t, newFakeStorage())

	instr := env.svc.Logout()
	assert.False(t, instr.ExpiresAt.After(time.Unix(0, 0)))
}

func TestAuthenticate_RejectsRefreshToken(t *testing.T) {
	env := newSQLiteEnv(t)
	env.registerUser(t, "a@x.com", "pw123456", models.RoleUser)

	pair, err := env.svc.Login(context.Background(), models.SignInCredentials{Email: "a@x.com", Password: "pw123456"})
	require.NoError(t, err)

	_, err = env.svc.Authenticate(pair.Refresh.Value)
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.Equal(t, []recorded{{"access", "signature"}}, env.recorder.rejections)
}

func newMiniredisLimiter(t *testing.T, max int) (*limiter.RedisLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	l, err := limiter.NewRedisLimiter(rdb, max, time.Minute)
	require.NoError(t, err)
	return l, mr
}

func TestLogin_ThrottledAfterRepeatedFailures(t *testing.T) {
	l, _ := newMiniredisLimiter(t, 3)
	env := newSQLiteEnv(t, WithLimiter(l))
	env.registerUser(t, "a@x.com", "pw123456", models.RoleUser)

	for i := 0; i < 3; i++ {
		_, err := env.svc.Login(context.Background(), models.SignInCredentials{Email: "a@x.com", Password: "wrong-password"})
		require.ErrorIs(t, err, ErrAuthFailed)
	}

	_, err := env.svc.Login(context.Background(), models.SignInCredentials{Email: "a@x.com", Password: "pw123456"})
	assert.ErrorIs(t, err, ErrTooManyAttempts)
	assert.Equal(t, metrics.OutcomeThrottled, env.recorder.logins[len(env.recorder.logins)-1])
}

func TestLogin_ConcurrentFailuresStayWithinLimit(t *testing.T) {
	l, _ := newMiniredisLimiter(t, 3)
	env := newSQLiteEnv(t, WithLimiter(l))
	env.registerUser(t, "a@x.com", "pw123456", models.RoleUser)

	var (
		wg                  sync.WaitGroup
		mu                  sync.Mutex
		verified, throttled int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Login(context.Background(), models.SignInCredentials{Email: "a@x.com", Password: "wrong-password"})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrAuthFailed):
				verified++
			case errors.Is(err, ErrTooManyAttempts):
				throttled++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, verified)
	assert.Equal(t, 7, throttled)
}

func TestLogin_SuccessResetsLimiter(t *testing.T) {
	l, _ := newMiniredisLimiter(t, 2)
	env := newSQLiteEnv(t, WithLimiter(l))
	env.registerUser(t, "a@x.com", "pw123456", models.RoleUser)
	ctx := context.Background()

	_, err := env.svc.Login(ctx, models.SignInCredentials{Email: "a@x.com", Password: "wrong-password"})
	require.ErrorIs(t, err, ErrAuthFailed)

	_, err = env.svc.Login(ctx, models.SignInCredentials{Email: "a@x.com", Password: "pw123456"})
	require.NoError(t, err)

	_, err = env.svc.Login(ctx, models.SignInCredentials{Email: "a@x.com", Password: "wrong-password"})
	require.ErrorIs(t, err, ErrAuthFailed)

	_, err = env.svc.Login(ctx, models.SignInCredentials{Email: "a@x.com", Password: "pw123456"})
	assert.NoError(t, err)
}

func TestLogin_LimiterOutageFailsOpen(t *testing.T) {
	l, mr := newMiniredisLimiter(t, 1)
	env := newSQLiteEnv(t, WithLimiter(l))
	env.registerUser(t, "a@x.com", "pw123456", models.RoleUser)
	mr.Close()

	_, err := env.svc.Login(context.Background(), models.SignInCredentials{Email: "a@x.com", Password: "pw123456"})
	assert.NoError(t, err)
}
