package gate_test

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/girlsisave/go-auth/middleware/gate"
)

// stubClaims implements gate.AuthClaims
type stubClaims struct {
	subject string
	role    string
	version int
}

func (s stubClaims) Subject() string   { return s.subject }
func (s stubClaims) AccountID() string { return s.subject }
func (s stubClaims) Role() string      { return s.role }
func (s stubClaims) Version() int      { return s.version }

func (s stubClaims) HasRole(role string) bool {
	return s.role == role
}

// stubValidator implements gate.TokenValidator
type stubValidator struct {
	claims gate.AuthClaims
	err    error
}

func (s stubValidator) Validate(tokenString string) (gate.AuthClaims, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.claims, nil
}

// stubVersionSource implements gate.TokenVersionSource
type stubVersionSource struct {
	version int
	err     error
}

func (s stubVersionSource) TokenVersion(ctx context.Context, accountID string) (int, error) {
	return s.version, s.err
}

func authedContext(token string) *router.MockContext {
	ctx := router.NewMockContext()
	ctx.On("GetString", router.HeaderAuthorization, "").Return("Bearer " + token)
	return ctx
}

func runGate(cfg gate.Config, ctx router.Context) error {
	handler := gate.New(cfg)(func(c router.Context) error {
		return c.Next()
	})
	return handler(ctx)
}

func passthroughErrHandler(c router.Context, err error) error {
	return err
}

func TestGateAllowsValidToken(t *testing.T) {
	claims := stubClaims{subject: "acc-1", role: "student"}

	ctx := authedContext("valid-token")
	ctx.On("Locals", "claims", claims).Return(nil)

	cfg := gate.Config{
		TokenValidator: stubValidator{claims: claims},
		ErrorHandler:   passthroughErrHandler,
	}

	err := runGate(cfg, ctx)
	require.NoError(t, err)
	assert.True(t, ctx.NextCalled)
}

func TestGateRejectsMissingToken(t *testing.T) {
	ctx := router.NewMockContext()
	ctx.On("GetString", router.HeaderAuthorization, "").Return("")

	cfg := gate.Config{
		TokenValidator: stubValidator{claims: stubClaims{}},
		ErrorHandler:   passthroughErrHandler,
	}

	err := runGate(cfg, ctx)
	assert.ErrorIs(t, err, gate.ErrJWTMissingOrMalformed)
	assert.False(t, ctx.NextCalled)
}

func TestGateRejectsInvalidToken(t *testing.T) {
	wantErr := errors.New("invalid or expired token")

	ctx := authedContext("bad-token")

	cfg := gate.Config{
		TokenValidator: stubValidator{err: wantErr},
		ErrorHandler:   passthroughErrHandler,
	}

	err := runGate(cfg, ctx)
	assert.ErrorIs(t, err, wantErr)
}

func TestGateRoleChecks(t *testing.T) {
	t.Run("member of the allowed roles passes", func(t *testing.T) {
		claims := stubClaims{subject: "acc-1", role: "mentor"}

		ctx := authedContext("valid-token")
		ctx.On("Locals", "claims", claims).Return(nil)

		cfg := gate.Config{
			TokenValidator: stubValidator{claims: claims},
			Roles:          []string{"mentor"},
			ErrorHandler:   passthroughErrHandler,
		}

		require.NoError(t, runGate(cfg, ctx))
		assert.True(t, ctx.NextCalled)
	})

	t.Run("role outside the set is rejected", func(t *testing.T) {
		claims := stubClaims{subject: "acc-1", role: "student"}

		ctx := authedContext("valid-token")

		cfg := gate.Config{
			TokenValidator: stubValidator{claims: claims},
			Roles:          []string{"mentor"},
			ErrorHandler:   passthroughErrHandler,
		}

		err := runGate(cfg, ctx)
		assert.ErrorIs(t, err, gate.ErrRoleNotAllowed)
		assert.False(t, ctx.NextCalled)
	})

	t.Run("admin bypasses the role set", func(t *testing.T) {
		claims := stubClaims{subject: "acc-1", role: "admin"}

		ctx := authedContext("valid-token")
		ctx.On("Locals", "claims", claims).Return(nil)

		cfg := gate.Config{
			TokenValidator: stubValidator{claims: claims},
			Roles:          []string{"mentor"},
			ErrorHandler:   passthroughErrHandler,
		}

		require.NoError(t, runGate(cfg, ctx))
		assert.True(t, ctx.NextCalled)
	})
}

func TestGateOwnershipChecks(t *testing.T) {
	t.Run("owner passes", func(t *testing.T) {
		claims := stubClaims{subject: "acc-1", role: "student"}

		ctx := authedContext("valid-token")
		ctx.ParamsM["id"] = "acc-1"
		ctx.On("Locals", "claims", claims).Return(nil)

		cfg := gate.Config{
			TokenValidator: stubValidator{claims: claims},
			OwnerParam:     "id",
			ErrorHandler:   passthroughErrHandler,
		}

		require.NoError(t, runGate(cfg, ctx))
		assert.True(t, ctx.NextCalled)
	})

	t.Run("non owner is rejected", func(t *testing.T) {
		claims := stubClaims{subject: "acc-1", role: "student"}

		ctx := authedContext("valid-token")
		ctx.ParamsM["id"] = "acc-2"

		cfg := gate.Config{
			TokenValidator: stubValidator{claims: claims},
			OwnerParam:     "id",
			ErrorHandler:   passthroughErrHandler,
		}

		err := runGate(cfg, ctx)
		assert.ErrorIs(t, err, gate.ErrNotResourceOwner)
	})

	t.Run("admin bypasses ownership", func(t *testing.T) {
		claims := stubClaims{subject: "admin-1", role: "admin"}

		ctx := authedContext("valid-token")
		ctx.ParamsM["id"] = "acc-2"
		ctx.On("Locals", "claims", claims).Return(nil)

		cfg := gate.Config{
			TokenValidator: stubValidator{claims: claims},
			OwnerParam:     "id",
			ErrorHandler:   passthroughErrHandler,
		}

		require.NoError(t, runGate(cfg, ctx))
		assert.True(t, ctx.NextCalled)
	})
}

func TestGateTokenVersion(t *testing.T) {
	t.Run("matching version passes", func(t *testing.T) {
		claims := stubClaims{subject: "acc-1", role: "student", version: 4}

		ctx := authedContext("valid-token")
		ctx.On("Context").Return(context.Background())
		ctx.On("Locals", "claims", claims).Return(nil)

		cfg := gate.Config{
			TokenValidator:     stubValidator{claims: claims},
			TokenVersionSource: stubVersionSource{version: 4},
			ErrorHandler:       passthroughErrHandler,
		}

		require.NoError(t, runGate(cfg, ctx))
		assert.True(t, ctx.NextCalled)
	})

	t.Run("stale version is rejected", func(t *testing.T) {
		claims := stubClaims{subject: "acc-1", role: "student", version: 3}

		ctx := authedContext("valid-token")
		ctx.On("Context").Return(context.Background())

		cfg := gate.Config{
			TokenValidator:     stubValidator{claims: claims},
			TokenVersionSource: stubVersionSource{version: 4},
			ErrorHandler:       passthroughErrHandler,
		}

		err := runGate(cfg, ctx)
		assert.ErrorIs(t, err, gate.ErrStaleTokenVersion)
		assert.False(t, ctx.NextCalled)
	})

	t.Run("lookup failure does not widen access", func(t *testing.T) {
		claims := stubClaims{subject: "acc-1", role: "student", version: 4}

		ctx := authedContext("valid-token")
		ctx.On("Context").Return(context.Background())

		cfg := gate.Config{
			TokenValidator:     stubValidator{claims: claims},
			TokenVersionSource: stubVersionSource{err: errors.New("store down")},
			ErrorHandler:       passthroughErrHandler,
		}

		err := runGate(cfg, ctx)
		require.Error(t, err)
		assert.False(t, ctx.NextCalled)
	})
}

func TestGateFilterSkipsMiddleware(t *testing.T) {
	ctx := router.NewMockContext()

	cfg := gate.Config{
		TokenValidator: stubValidator{claims: stubClaims{}},
		Filter: func(router.Context) bool {
			return true
		},
		ErrorHandler: passthroughErrHandler,
	}

	require.NoError(t, runGate(cfg, ctx))
	assert.True(t, ctx.NextCalled)
}

func TestGateCookieFallback(t *testing.T) {
	claims := stubClaims{subject: "admin-1", role: "admin"}

	ctx := router.NewMockContext()
	ctx.On("GetString", router.HeaderAuthorization, "").Return("")
	ctx.CookiesM["admin_token"] = "cookie-token"
	ctx.On("Locals", "claims", claims).Return(nil)

	cfg := gate.Config{
		TokenValidator: stubValidator{claims: claims},
		TokenLookup:    "header:" + router.HeaderAuthorization + ",cookie:admin_token",
		ErrorHandler:   passthroughErrHandler,
	}

	require.NoError(t, runGate(cfg, ctx))
	assert.True(t, ctx.NextCalled)
}

func TestGateValidationListeners(t *testing.T) {
	claims := stubClaims{subject: "acc-1", role: "student"}

	var seen gate.AuthClaims
	listener := func(ctx router.Context, c gate.AuthClaims) error {
		seen = c
		return nil
	}

	ctx := authedContext("valid-token")
	ctx.On("Locals", "claims", claims).Return(nil)

	cfg := gate.Config{
		TokenValidator:      stubValidator{claims: claims},
		ValidationListeners: []gate.ValidationListener{listener},
		ErrorHandler:        passthroughErrHandler,
	}

	require.NoError(t, runGate(cfg, ctx))
	assert.Equal(t, claims, seen)
}
