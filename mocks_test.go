package auth_test

import (
	"context"
	"database/sql"
	"time"

	auth "github.com/girlsisave/go-auth"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

// testConfig implements auth.Config with predictable values.
type testConfig struct {
	signingKey string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func newTestConfig() testConfig {
	return testConfig{
		signingKey: "test-signing-key",
		accessTTL:  15 * time.Minute,
		refreshTTL: 30 * 24 * time.Hour,
	}
}

func (c testConfig) GetSigningKey() string    { return c.signingKey }
func (c testConfig) GetSigningMethod() string { return "HS256" }
func (c testConfig) GetContextKey() string    { return "claims" }

func (c testConfig) GetAccessTokenTTL() time.Duration {
	if c.accessTTL == 0 {
		return 15 * time.Minute
	}
	return c.accessTTL
}

func (c testConfig) GetRefreshTokenTTL() time.Duration {
	if c.refreshTTL == 0 {
		return 30 * 24 * time.Hour
	}
	return c.refreshTTL
}

func (c testConfig) GetIssuer() string        { return "test-issuer" }
func (c testConfig) GetAudience() []string    { return []string{"test:audience"} }
func (c testConfig) GetAuthScheme() string    { return "Bearer" }
func (c testConfig) GetAdminCookieName() string { return "admin_token" }

func (c testConfig) GetAdminCookieTTL() time.Duration {
	return 30 * time.Minute
}

// MockAccountVerifier implements auth.AccountVerifier
type MockAccountVerifier struct {
	mock.Mock
}

func (m *MockAccountVerifier) VerifyAccount(ctx context.Context, identifier, password string) (*auth.Account, error) {
	args := m.Called(ctx, identifier, password)
	if acc, ok := args.Get(0).(*auth.Account); ok {
		return acc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccountVerifier) FindAccountByIdentifier(ctx context.Context, identifier string) (*auth.Account, error) {
	args := m.Called(ctx, identifier)
	if acc, ok := args.Get(0).(*auth.Account); ok {
		return acc, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockRefreshTokenStore implements auth.RefreshTokenStore
type MockRefreshTokenStore struct {
	mock.Mock
}

func (m *MockRefreshTokenStore) SetRefreshToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error {
	args := m.Called(ctx, id, token, expiresAt)
	return args.Error(0)
}

func (m *MockRefreshTokenStore) RotateRefreshToken(ctx context.Context, presented, next string, expiresAt time.Time) (*auth.Account, error) {
	args := m.Called(ctx, presented, next, expiresAt)
	if acc, ok := args.Get(0).(*auth.Account); ok {
		return acc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRefreshTokenStore) ClearRefreshToken(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockAccountTracker implements auth.AccountTracker
type MockAccountTracker struct {
	mock.Mock
}

func (m *MockAccountTracker) GetByIdentifier(ctx context.Context, identifier string) (*auth.Account, error) {
	args := m.Called(ctx, identifier)
	if acc, ok := args.Get(0).(*auth.Account); ok {
		return acc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccountTracker) TrackAttemptedLogin(ctx context.Context, account *auth.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockAccountTracker) TrackSuccessfulLogin(ctx context.Context, account *auth.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

// MockAccounts satisfies auth.Accounts by embedding. Only the methods a test
// stubs are safe to call; anything else panics on the nil interface.
type MockAccounts struct {
	mock.Mock
	auth.Accounts
}

func (m *MockAccounts) UpdateStatus(ctx context.Context, id uuid.UUID, status auth.AccountStatus, opts ...auth.StatusUpdateOption) (*auth.Account, error) {
	args := m.Called(ctx, id, status, opts)
	if acc, ok := args.Get(0).(*auth.Account); ok {
		return acc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*auth.Account, error) {
	args := m.Called(ctx, id, criteria)
	if acc, ok := args.Get(0).(*auth.Account); ok {
		return acc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*auth.Account, error) {
	args := m.Called(ctx, identifier, criteria)
	if acc, ok := args.Get(0).(*auth.Account); ok {
		return acc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) CreateTx(ctx context.Context, tx bun.IDB, record *auth.Account, criteria ...repository.InsertCriteria) (*auth.Account, error) {
	args := m.Called(ctx, tx, record, criteria)
	if acc, ok := args.Get(0).(*auth.Account); ok {
		return acc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) UpdateTx(ctx context.Context, tx bun.IDB, record *auth.Account, criteria ...repository.UpdateCriteria) (*auth.Account, error) {
	args := m.Called(ctx, tx, record, criteria)
	if acc, ok := args.Get(0).(*auth.Account); ok {
		return acc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) SetVerificationTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token string, expiresAt time.Time) error {
	args := m.Called(ctx, tx, id, token, expiresAt)
	return args.Error(0)
}

func (m *MockAccounts) VerifyEmailTx(ctx context.Context, tx bun.IDB, token string) (*auth.Account, error) {
	args := m.Called(ctx, tx, token)
	if acc, ok := args.Get(0).(*auth.Account); ok {
		return acc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAccounts) SetResetTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token string, expiresAt time.Time) error {
	args := m.Called(ctx, tx, id, token, expiresAt)
	return args.Error(0)
}

func (m *MockAccounts) ResetPasswordTx(ctx context.Context, tx bun.IDB, resetToken, passwordHash string) (*auth.Account, error) {
	args := m.Called(ctx, tx, resetToken, passwordHash)
	if acc, ok := args.Get(0).(*auth.Account); ok {
		return acc, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockRepositoryManager implements auth.RepositoryManager. RunInTx invokes
// the transaction body with a zero bun.Tx unless the expectation returns an
// error first.
type MockRepositoryManager struct {
	mock.Mock
}

func (m *MockRepositoryManager) Validate() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockRepositoryManager) MustValidate() {
	m.Called()
}

func (m *MockRepositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	args := m.Called(ctx, opts, f)
	if err := args.Error(0); err != nil {
		return err
	}
	var tx bun.Tx
	return f(ctx, tx)
}

func (m *MockRepositoryManager) Accounts() auth.Accounts {
	args := m.Called()
	if accounts, ok := args.Get(0).(auth.Accounts); ok {
		return accounts
	}
	return nil
}

func (m *MockRepositoryManager) AuditEntries() repository.Repository[*auth.AuditEntry] {
	args := m.Called()
	if entries, ok := args.Get(0).(repository.Repository[*auth.AuditEntry]); ok {
		return entries
	}
	return nil
}

// MockNotifier implements auth.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendVerificationEmail(ctx context.Context, email, name, token string) error {
	args := m.Called(ctx, email, name, token)
	return args.Error(0)
}

func (m *MockNotifier) SendPasswordResetEmail(ctx context.Context, email, name, token string) error {
	args := m.Called(ctx, email, name, token)
	return args.Error(0)
}

// quietLogger keeps expected warn paths out of the test output.
type quietLogger struct{}

func (quietLogger) Debug(string, ...any) {}
func (quietLogger) Info(string, ...any)  {}
func (quietLogger) Warn(string, ...any)  {}
func (quietLogger) Error(string, ...any) {}

// capturingSink collects activity events for assertions.
type capturingSink struct {
	events []auth.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt auth.ActivityEvent) error {
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) verbs() []string {
	out := make([]string, 0, len(c.events))
	for _, evt := range c.events {
		out = append(out, string(evt.EventType))
	}
	return out
}
