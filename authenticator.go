package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// RefreshTokenStore persists opaque refresh tokens next to the account.
// Accounts satisfies it.
type RefreshTokenStore interface {
	SetRefreshToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error
	RotateRefreshToken(ctx context.Context, presented, next string, expiresAt time.Time) (*Account, error)
	ClearRefreshToken(ctx context.Context, id uuid.UUID) error
}

type Auther struct {
	verifier        AccountVerifier
	store           RefreshTokenStore
	signingKey      []byte
	accessTTL       time.Duration
	refreshTTL      time.Duration
	issuer          string
	audience        []string
	logger          Logger
	tokenService    TokenService
	tokenValidator  TokenValidator
	activitySink    ActivitySink
	claimsDecorator ClaimsDecorator
	now             func() time.Time
}

var _ Authenticator = (*Auther)(nil)

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(verifier AccountVerifier, store RefreshTokenStore, opts Config) *Auther {
	tokenService := NewTokenService(
		[]byte(opts.GetSigningKey()),
		opts.GetAccessTokenTTL(),
		opts.GetIssuer(),
		opts.GetAudience(),
		defLogger{},
	)

	return &Auther{
		verifier:        verifier,
		store:           store,
		signingKey:      []byte(opts.GetSigningKey()),
		accessTTL:       opts.GetAccessTokenTTL(),
		refreshTTL:      opts.GetRefreshTokenTTL(),
		audience:        opts.GetAudience(),
		issuer:          opts.GetIssuer(),
		logger:          defLogger{},
		tokenService:    tokenService,
		activitySink:    noopActivitySink{},
		claimsDecorator: noopClaimsDecorator{},
		now:             time.Now,
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = logger
	// Update the TokenService logger as well
	s.tokenService = NewTokenService(
		s.signingKey,
		s.accessTTL,
		s.issuer,
		s.audience,
		logger,
	)
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithClaimsDecorator configures a ClaimsDecorator for enriching JWTs.
func (s *Auther) WithClaimsDecorator(decorator ClaimsDecorator) *Auther {
	s.claimsDecorator = normalizeClaimsDecorator(decorator)
	return s
}

// WithTokenValidator sets a custom token validator for externally issued tokens.
func (s *Auther) WithTokenValidator(validator TokenValidator) *Auther {
	s.tokenValidator = validator
	return s
}

// WithClock injects a custom clock (useful for tests).
func (s *Auther) WithClock(clock func() time.Time) *Auther {
	if clock != nil {
		s.now = clock
	}
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Login verifies credentials and issues a fresh access/refresh token pair.
// Unknown identifiers and wrong passwords both surface as ErrInvalidCredentials.
func (s *Auther) Login(ctx context.Context, identifier, password string) (*Grant, error) {
	account, err := s.verifier.VerifyAccount(ctx, identifier, password)
	if err != nil {
		s.logger.Error("Login verify account error: %v", err)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
		return nil, loginError(err)
	}

	if account == nil {
		s.logger.Error("Login account is nil")
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"identifier": identifier,
			"error":      ErrIdentityNotFound.Error(),
		})
		return nil, ErrInvalidCredentials
	}

	identity := NewIdentityFromAccount(account)

	accessToken, err := s.generateJWT(ctx, identity, account.TokenVersion)
	if err != nil {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorFromIdentity(identity), identity.ID(), map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
		return nil, err
	}

	refreshToken, err := NewRefreshToken()
	if err != nil {
		return nil, err
	}

	if err := s.store.SetRefreshToken(ctx, account.ID, refreshToken, s.now().Add(s.refreshTTL)); err != nil {
		s.logger.Error("Login failed to persist refresh token: %v", err)
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist refresh token")
	}

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, s.actorFromIdentity(identity), identity.ID(), map[string]any{
		"identifier": identifier,
	})

	return &Grant{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Account:      SummarizeIdentity(identity),
		Identity:     identity,
	}, nil
}

// Refresh rotates the presented refresh token for a new pair. Each refresh
// token is single use: the swap happens in one conditional update, so of N
// concurrent presentations exactly one wins and the rest get ErrRefreshInvalid.
func (s *Auther) Refresh(ctx context.Context, presented string) (*Grant, error) {
	next, err := NewRefreshToken()
	if err != nil {
		return nil, err
	}

	account, err := s.store.RotateRefreshToken(ctx, presented, next, s.now().Add(s.refreshTTL))
	if err != nil {
		s.logger.Debug("Refresh rotation denied: %v", err)
		s.emitAuthEvent(ctx, ActivityEventRefreshDenied, ActorRef{Type: "unknown"}, "", map[string]any{
			"error": err.Error(),
		})
		if goerrors.IsNotFound(err) {
			return nil, ErrRefreshInvalid
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to rotate refresh token")
	}

	if err := ensureAuthenticatableAccount(account); err != nil {
		s.emitAuthEvent(ctx, ActivityEventRefreshDenied, ActorRef{Type: "unknown"}, account.ID.String(), map[string]any{
			"error": err.Error(),
		})
		return nil, err
	}

	identity := NewIdentityFromAccount(account)

	accessToken, err := s.generateJWT(ctx, identity, account.TokenVersion)
	if err != nil {
		return nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventRefreshRotated, s.actorFromIdentity(identity), identity.ID(), nil)

	return &Grant{
		AccessToken:  accessToken,
		RefreshToken: next,
		Account:      SummarizeIdentity(identity),
		Identity:     identity,
	}, nil
}

// Logout revokes the stored refresh token for the account. Outstanding access
// tokens keep working until they expire.
func (s *Auther) Logout(ctx context.Context, accountID string) error {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid account id")
	}
	return s.store.ClearRefreshToken(ctx, id)
}

// ClaimsFromToken verifies a raw access token and returns its claims.
func (s *Auther) ClaimsFromToken(raw string) (AuthClaims, error) {
	validator := s.tokenValidator
	if validator == nil {
		validator = s.tokenService
	}

	claims, err := validator.Validate(raw)
	if err != nil {
		s.logger.Debug("ClaimsFromToken validation failed: %v", err)
		return nil, err
	}

	return claims, nil
}

// generateJWT generates a JWT token using structured claims carrying the token version
func (s *Auther) generateJWT(ctx context.Context, identity Identity, tokenVersion int) (string, error) {
	claims := s.newJWTClaims(identity, tokenVersion)
	snapshot := captureImmutableClaims(claims)

	decorator := normalizeClaimsDecorator(s.claimsDecorator)
	if err := decorator.Decorate(ctx, identity, claims); err != nil {
		s.logger.Error("claims decorator failed: %v", err)
		return "", err
	}

	if err := snapshot.validate(claims); err != nil {
		s.logger.Error("claims decorator mutated immutable claims: %v", err)
		return "", err
	}

	return s.tokenService.SignClaims(claims)
}

func (s *Auther) newJWTClaims(identity Identity, tokenVersion int) *JWTClaims {
	now := s.now()

	var aud jwt.ClaimStrings
	if len(s.audience) > 0 {
		aud = make(jwt.ClaimStrings, len(s.audience))
		copy(aud, s.audience)
	}

	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   identity.ID(),
			Audience:  aud,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
		UID:          identity.ID(),
		UserRole:     identity.Role(),
		TokenVersion: tokenVersion,
	}

	ensureTokenID(&claims.RegisteredClaims)

	return claims
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, accountID string, metadata map[string]any) {
	sink := normalizeActivitySink(s.activitySink)
	event := ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		AccountID: accountID,
		Metadata:  metadata,
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}

func (s *Auther) actorFromIdentity(identity Identity) ActorRef {
	if identity == nil {
		return ActorRef{Type: "unknown"}
	}

	return ActorRef{
		ID:   identity.ID(),
		Type: "account",
	}
}

// loginError maps credential failures onto the single indistinguishable
// invalid-credentials error. Cooldowns and suspended accounts keep their
// own shapes, they are not an account-existence oracle.
func loginError(err error) error {
	if err == nil {
		return nil
	}

	if goerrors.IsNotFound(err) {
		return ErrInvalidCredentials
	}

	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		switch rich.TextCode {
		case TextCodeTooManyAttempts, TextCodeAccountSuspended:
			return err
		case TextCodeInvalidCreds:
			return ErrInvalidCredentials
		}
	}

	return err
}
