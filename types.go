package auth

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Authenticator holds methods to deal with authentication
type Authenticator interface {
	Login(ctx context.Context, identifier, password string) (*Grant, error)
	Refresh(ctx context.Context, presented string) (*Grant, error)
	Logout(ctx context.Context, accountID string) error
	ClaimsFromToken(raw string) (AuthClaims, error)
}

// Identity holds the attributes of an identity
type Identity interface {
	ID() string
	Email() string
	Name() string
	Role() string
}

// AccountSummary is the serializable account snapshot returned with a Grant.
type AccountSummary struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// Grant is the outcome of a successful login or refresh rotation
type Grant struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	Account      *AccountSummary `json:"account"`
	Identity     Identity        `json:"-"`
}

// SummarizeIdentity flattens an Identity into its serializable summary.
func SummarizeIdentity(identity Identity) *AccountSummary {
	if identity == nil {
		return nil
	}
	return &AccountSummary{
		ID:    identity.ID(),
		Email: identity.Email(),
		Name:  identity.Name(),
		Role:  identity.Role(),
	}
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetSigningMethod() string
	GetContextKey() string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetIssuer() string
	GetAudience() []string
	GetAuthScheme() string
	GetAdminCookieName() string
	GetAdminCookieTTL() time.Duration
}

// AccountVerifier ensures we have a store to verify account credentials
type AccountVerifier interface {
	VerifyAccount(ctx context.Context, identifier, password string) (*Account, error)
	FindAccountByIdentifier(ctx context.Context, identifier string) (*Account, error)
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
