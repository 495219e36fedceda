package auth

import (
	"context"

	"github.com/goliatone/go-errors"
)

// AccountTracker is a store we can use to retrieve accounts
type AccountTracker interface {
	GetByIdentifier(ctx context.Context, identifier string) (*Account, error)
	TrackAttemptedLogin(ctx context.Context, account *Account) error
	TrackSuccessfulLogin(ctx context.Context, account *Account) error
}

// AccountProvider resolves and verifies account credentials
type AccountProvider struct {
	store     AccountTracker
	Validator func(*Account) error
	logger    Logger
}

// MaxLoginAttempts is the maximun number of attempts an account gets
// in a period
var MaxLoginAttempts = 5

// CoolDownPeriod is the period in which we enforce a cool down
var CoolDownPeriod = "24h"

var _ AccountVerifier = (*AccountProvider)(nil)

// NewAccountProvider will create a new AccountProvider
func NewAccountProvider(store AccountTracker) *AccountProvider {
	return &AccountProvider{
		store:     store,
		logger:    defLogger{},
		Validator: defaultValidator,
	}
}

func (p *AccountProvider) WithLogger(l Logger) *AccountProvider {
	if l != nil {
		p.logger = l
	}
	return p
}

func (p *AccountProvider) validate(account *Account) error {
	if p.Validator != nil {
		return p.Validator(account)
	}
	return defaultValidator(account)
}

// VerifyAccount will find the account, compare to the password, and return it.
// An unknown identifier and a failed password comparison produce the same
// error so callers cannot tell which emails exist.
func (p *AccountProvider) VerifyAccount(ctx context.Context, identifier, password string) (*Account, error) {
	account, err := p.store.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, ErrMismatchedHashAndPassword
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve account during verification")
	}

	if err := ensureAuthenticatableAccount(account); err != nil {
		return nil, err
	}

	if account.LoginAttemptAt != nil {
		expired, err := IsOutsideThresholdPeriod(*account.LoginAttemptAt, CoolDownPeriod)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to calculate login attempt cooldown")
		}

		if expired {
			account.LoginAttempts = 0
		}
	}

	//if we have too many attempts in the given window, cool off!
	if account.LoginAttempts > MaxLoginAttempts {
		return nil, ErrTooManyLoginAttempts
	}

	if err := ComparePasswordAndHash(password, account.PasswordHash); err != nil {
		// We have to increment the login_attempts counter and login_attempt_at
		if err2 := p.store.TrackAttemptedLogin(ctx, account); err2 != nil {
			return nil, errors.Wrap(err2, errors.CategoryInternal, "failed to track login attempt")
		}

		return nil, ErrMismatchedHashAndPassword
	}

	// reset the login_attempts counter and login_attempt_at
	if err := p.store.TrackSuccessfulLogin(ctx, account); err != nil {
		p.logger.Error("failed to track successful login: %v", err)
	}

	if err := p.validate(account); err != nil {
		return nil, err
	}

	return account, nil
}

// FindAccountByIdentifier resolves an account without checking credentials
func (p *AccountProvider) FindAccountByIdentifier(ctx context.Context, identifier string) (*Account, error) {
	account, err := p.store.GetByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}

	if err := ensureAuthenticatableAccount(account); err != nil {
		return nil, err
	}

	if err := p.validate(account); err != nil {
		return nil, err
	}

	return account, nil
}

func defaultValidator(a *Account) error {
	switch a.Role {
	case RoleStudent, RoleMentor, RoleAdmin:
		return nil
	default:
		return errors.New("account has an unknown or invalid role", errors.CategoryAuth).
			WithTextCode("INVALID_ROLE").
			WithMetadata(map[string]any{"role": a.Role, "account_id": a.ID.String()})
	}
}

func ensureAuthenticatableAccount(account *Account) error {
	if account == nil {
		return ErrIdentityNotFound
	}

	account.EnsureStatus()
	if err := statusAuthError(account.Status); err != nil {
		return err
	}

	return nil
}
