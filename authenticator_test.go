package auth_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	auth "github.com/girlsisave/go-auth"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// TestIdentity is a simple implementation of the Identity interface
type TestIdentity struct {
	id    string
	email string
	name  string
	role  string
}

func (t TestIdentity) ID() string    { return t.id }
func (t TestIdentity) Email() string { return t.email }
func (t TestIdentity) Name() string  { return t.name }
func (t TestIdentity) Role() string  { return t.role }

func activeAccount() *auth.Account {
	return &auth.Account{
		ID:           uuid.New(),
		Email:        "mentor@example.com",
		Name:         "Test Mentor",
		Role:         auth.RoleMentor,
		Status:       auth.AccountStatusActive,
		TokenVersion: 2,
	}
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("successful login issues both tokens", func(t *testing.T) {
		verifier := new(MockAccountVerifier)
		store := new(MockRefreshTokenStore)
		sink := &capturingSink{}

		account := activeAccount()

		verifier.On("VerifyAccount", ctx, account.Email, "password1234").
			Return(account, nil).Once()
		store.On("SetRefreshToken", ctx, account.ID, mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).
			Return(nil).Once()

		auther := auth.NewAuthenticator(verifier, store, newTestConfig()).
			WithActivitySink(sink)

		grant, err := auther.Login(ctx, account.Email, "password1234")
		require.NoError(t, err)
		require.NotNil(t, grant)
		assert.NotEmpty(t, grant.AccessToken)
		assert.NotEmpty(t, grant.RefreshToken)
		assert.Equal(t, account.ID.String(), grant.Identity.ID())

		require.NotNil(t, grant.Account)
		assert.Equal(t, account.ID.String(), grant.Account.ID)
		assert.Equal(t, account.Email, grant.Account.Email)
		assert.Equal(t, account.Name, grant.Account.Name)
		assert.Equal(t, string(auth.RoleMentor), grant.Account.Role)

		encoded, err := json.Marshal(grant)
		require.NoError(t, err)
		assert.Contains(t, string(encoded), `"account":{"id":"`+account.ID.String()+`"`)

		claims, err := auther.ClaimsFromToken(grant.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, account.ID.String(), claims.AccountID())
		assert.Equal(t, auth.RoleMentor, claims.Role())
		assert.Equal(t, account.TokenVersion, claims.Version())

		assert.Contains(t, sink.verbs(), string(auth.ActivityEventLoginSuccess))
		verifier.AssertExpectations(t)
		store.AssertExpectations(t)
	})

	t.Run("unknown email and wrong password are indistinguishable", func(t *testing.T) {
		verifier := new(MockAccountVerifier)
		store := new(MockRefreshTokenStore)

		verifier.On("VerifyAccount", ctx, "nobody@example.com", "password1234").
			Return(nil, auth.ErrIdentityNotFound).Once()
		verifier.On("VerifyAccount", ctx, "mentor@example.com", "wrong-password").
			Return(nil, auth.ErrMismatchedHashAndPassword).Once()

		auther := auth.NewAuthenticator(verifier, store, newTestConfig())

		_, errUnknown := auther.Login(ctx, "nobody@example.com", "password1234")
		_, errWrong := auther.Login(ctx, "mentor@example.com", "wrong-password")

		assert.ErrorIs(t, errUnknown, auth.ErrInvalidCredentials)
		assert.ErrorIs(t, errWrong, auth.ErrInvalidCredentials)
		assert.Equal(t, errUnknown.Error(), errWrong.Error())
		store.AssertNotCalled(t, "SetRefreshToken", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("suspended account keeps its distinct error", func(t *testing.T) {
		verifier := new(MockAccountVerifier)
		store := new(MockRefreshTokenStore)

		verifier.On("VerifyAccount", ctx, "suspended@example.com", "password1234").
			Return(nil, auth.ErrAccountSuspended).Once()

		auther := auth.NewAuthenticator(verifier, store, newTestConfig())

		_, err := auther.Login(ctx, "suspended@example.com", "password1234")
		assert.ErrorIs(t, err, auth.ErrAccountSuspended)
	})

	t.Run("login failure is recorded", func(t *testing.T) {
		verifier := new(MockAccountVerifier)
		store := new(MockRefreshTokenStore)
		sink := &capturingSink{}

		verifier.On("VerifyAccount", ctx, "nobody@example.com", "pw").
			Return(nil, auth.ErrIdentityNotFound).Once()

		auther := auth.NewAuthenticator(verifier, store, newTestConfig()).
			WithActivitySink(sink)

		_, err := auther.Login(ctx, "nobody@example.com", "pw")
		require.Error(t, err)
		assert.Contains(t, sink.verbs(), string(auth.ActivityEventLoginFailure))
	})
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("valid refresh rotates token pair", func(t *testing.T) {
		verifier := new(MockAccountVerifier)
		store := new(MockRefreshTokenStore)
		sink := &capturingSink{}

		account := activeAccount()

		var rotatedTo string
		store.On("RotateRefreshToken", ctx, "presented-token", mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).
			Run(func(args mock.Arguments) {
				rotatedTo = args.String(2)
			}).
			Return(account, nil).Once()

		auther := auth.NewAuthenticator(verifier, store, newTestConfig()).
			WithActivitySink(sink)

		grant, err := auther.Refresh(ctx, "presented-token")
		require.NoError(t, err)
		assert.NotEmpty(t, grant.AccessToken)
		assert.Equal(t, rotatedTo, grant.RefreshToken, "response must hand out the token that was persisted")
		assert.NotEqual(t, "presented-token", grant.RefreshToken)
		require.NotNil(t, grant.Account)
		assert.Equal(t, account.Email, grant.Account.Email)

		assert.Contains(t, sink.verbs(), string(auth.ActivityEventRefreshRotated))
		store.AssertExpectations(t)
	})

	t.Run("unknown or already rotated token is denied", func(t *testing.T) {
		verifier := new(MockAccountVerifier)
		store := new(MockRefreshTokenStore)
		sink := &capturingSink{}

		store.On("RotateRefreshToken", ctx, "stale-token", mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).
			Return(nil, repository.NewRecordNotFound()).Once()

		auther := auth.NewAuthenticator(verifier, store, newTestConfig()).
			WithActivitySink(sink)

		_, err := auther.Refresh(ctx, "stale-token")
		assert.ErrorIs(t, err, auth.ErrRefreshInvalid)
		assert.Contains(t, sink.verbs(), string(auth.ActivityEventRefreshDenied))
	})

	t.Run("suspended account cannot refresh", func(t *testing.T) {
		verifier := new(MockAccountVerifier)
		store := new(MockRefreshTokenStore)

		account := activeAccount()
		account.Status = auth.AccountStatusSuspended

		store.On("RotateRefreshToken", ctx, "presented-token", mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).
			Return(account, nil).Once()

		auther := auth.NewAuthenticator(verifier, store, newTestConfig())

		_, err := auther.Refresh(ctx, "presented-token")
		assert.ErrorIs(t, err, auth.ErrAccountSuspended)
	})
}

func TestLogout(t *testing.T) {
	ctx := context.Background()

	t.Run("revokes the stored refresh token", func(t *testing.T) {
		verifier := new(MockAccountVerifier)
		store := new(MockRefreshTokenStore)

		id := uuid.New()
		store.On("ClearRefreshToken", ctx, id).Return(nil).Once()

		auther := auth.NewAuthenticator(verifier, store, newTestConfig())

		require.NoError(t, auther.Logout(ctx, id.String()))
		store.AssertExpectations(t)
	})

	t.Run("rejects malformed account ids", func(t *testing.T) {
		verifier := new(MockAccountVerifier)
		store := new(MockRefreshTokenStore)

		auther := auth.NewAuthenticator(verifier, store, newTestConfig())

		err := auther.Logout(ctx, "not-a-uuid")
		require.Error(t, err)
		store.AssertNotCalled(t, "ClearRefreshToken", mock.Anything, mock.Anything)
	})
}

func TestClaimsFromTokenTamperedToken(t *testing.T) {
	verifier := new(MockAccountVerifier)
	store := new(MockRefreshTokenStore)

	auther := auth.NewAuthenticator(verifier, store, newTestConfig())

	_, err := auther.ClaimsFromToken("broken.token.value")
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestClockInjection(t *testing.T) {
	ctx := context.Background()
	verifier := new(MockAccountVerifier)
	store := new(MockRefreshTokenStore)

	account := activeAccount()
	frozen := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	var expiresSeen time.Time
	verifier.On("VerifyAccount", ctx, account.Email, "password1234").
		Return(account, nil).Once()
	store.On("SetRefreshToken", ctx, account.ID, mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).
		Run(func(args mock.Arguments) {
			expiresSeen = args.Get(3).(time.Time)
		}).
		Return(nil).Once()

	auther := auth.NewAuthenticator(verifier, store, newTestConfig()).
		WithClock(func() time.Time { return frozen })

	_, err := auther.Login(ctx, account.Email, "password1234")
	require.NoError(t, err)
	assert.Equal(t, frozen.Add(30*24*time.Hour), expiresSeen)
}
