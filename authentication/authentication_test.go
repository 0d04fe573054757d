package authentication_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nasermirzaei89/agora/authentication"
	authcontext "github.com/nasermirzaei89/agora/authentication/context"
	"github.com/nasermirzaei89/agora/database/sqlite3"
	"github.com/nasermirzaei89/agora/database/sqlstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, sessionDuration time.Duration) *authentication.Service {
	t.Helper()

	ctx := context.Background()

	db, err := sqlite3.NewDB(ctx, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, sqlite3.MigrateUp(ctx, db))

	svc := authentication.NewService(
		sqlstore.NewUserRepository(db, sqlite3.Dialect),
		sqlstore.NewSessionRepository(db, sqlite3.Dialect),
		sessionDuration,
	)

	require.NoError(t, svc.LoadBloomFilter(ctx, 100, 0.01))

	return svc
}

func TestRegister(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newTestService(t, time.Hour)

	user, err := svc.Register(ctx, authentication.RegisterRequest{
		Name:     " Alice ",
		Email:    "Alice@Example.com",
		Password: "secret123",
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.Name)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Empty(t, user.PasswordHash)

	_, err = svc.Register(ctx, authentication.RegisterRequest{
		Name:     "Other",
		Email:    "alice@example.com",
		Password: "secret123",
	})

	var existsErr *authentication.UserAlreadyExistsError
	require.ErrorAs(t, err, &existsErr)

	tests := []struct {
		name  string
		req   authentication.RegisterRequest
		field string
	}{
		{
			name:  "empty name",
			req:   authentication.RegisterRequest{Email: "bob@example.com", Password: "secret123"},
			field: "name",
		},
		{
			name:  "invalid email",
			req:   authentication.RegisterRequest{Name: "Bob", Email: "Bob <bob@example.com>", Password: "secret123"},
			field: "email",
		},
		{
			name:  "empty password",
			req:   authentication.RegisterRequest{Name: "Bob", Email: "bob@example.com"},
			field: "password",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.req)

			var invalidErr *authentication.InvalidFieldError
			require.ErrorAs(t, err, &invalidErr)
			assert.Equal(t, tt.field, invalidErr.Field)
		})
	}
}

func TestLoginAndSessions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newTestService(t, time.Hour)

	user, err := svc.Register(ctx, authentication.RegisterRequest{Name: "Alice", Email: "alice@example.com", Password: "secret123"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, "alice@example.com", "wrong")
	require.ErrorIs(t, err, authentication.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@example.com", "secret123")
	require.ErrorIs(t, err, authentication.ErrInvalidCredentials)

	session, err := svc.Login(ctx, " ALICE@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.UserID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), session.ExpiresAt, time.Minute)

	got, err := svc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.UserID, got.UserID)

	current, err := svc.GetCurrentUser(authcontext.WithSubject(ctx, user.ID))
	require.NoError(t, err)
	assert.Equal(t, user.ID, current.ID)
	assert.Empty(t, current.PasswordHash)

	_, err = svc.GetCurrentUser(ctx)
	require.ErrorIs(t, err, authentication.ErrCurrentUserNotFound)

	require.NoError(t, svc.Logout(ctx, session.ID))

	_, err = svc.GetSession(ctx, session.ID)

	var notFoundErr *authentication.SessionNotFoundError
	require.ErrorAs(t, err, &notFoundErr)
}

func TestExpiredSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := newTestService(t, time.Millisecond)

	_, err := svc.Register(ctx, authentication.RegisterRequest{Name: "Alice", Email: "alice@example.com", Password: "secret123"})
	require.NoError(t, err)

	session, err := svc.Login(ctx, "alice@example.com", "secret123")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = svc.GetSession(ctx, session.ID)

	var expiredErr *authentication.SessionExpiredError
	require.ErrorAs(t, err, &expiredErr)

	_, err = svc.GetSession(ctx, session.ID)

	var notFoundErr *authentication.SessionNotFoundError
	require.ErrorAs(t, err, &notFoundErr)
}
