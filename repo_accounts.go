package auth

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RotateRefreshTokenSQL swaps the stored refresh token for a new one only if
// the presented token is still the current one. The WHERE clause is the
// whole concurrency story: of N concurrent presentations of the same token
// exactly one matches, every other update affects zero rows.
var RotateRefreshTokenSQL = `UPDATE "accounts" AS "acc"
SET
	"refresh_token" = ?,
	"refresh_expires_at" = ?
WHERE
	"acc"."deleted_at" IS NULL
AND "acc"."refresh_token" = ?
AND "acc"."refresh_expires_at" > ?
RETURNING *;`

// ResetPasswordSQL finalizes a password reset in one statement: new hash,
// reset pair cleared, token version bumped so outstanding access tokens die,
// and the stored refresh token revoked. Matches on the reset token itself so
// a concurrent second submission of the same link affects zero rows.
var ResetPasswordSQL = `UPDATE "accounts" AS "acc"
SET
	"password_hash" = ?,
	"reset_token" = NULL,
	"reset_expires_at" = NULL,
	"token_version" = "token_version" + 1,
	"refresh_token" = NULL,
	"refresh_expires_at" = NULL
WHERE
	"acc"."deleted_at" IS NULL
AND "acc"."reset_token" = ?
AND "acc"."reset_expires_at" > ?
RETURNING *;`

// BumpTokenVersionSQL invalidates every outstanding access token for an account.
var BumpTokenVersionSQL = `UPDATE "accounts" AS "acc"
SET
	"token_version" = "token_version" + 1
WHERE
	"acc"."deleted_at" IS NULL
AND "acc"."id" = ?
RETURNING *;`

// VerifyEmailSQL consumes a verification token: marks the email verified and
// clears the pair, matching on the token so a second use affects zero rows.
var VerifyEmailSQL = `UPDATE "accounts" AS "acc"
SET
	"email_verified" = TRUE,
	"verification_token" = NULL,
	"verification_expires_at" = NULL
WHERE
	"acc"."deleted_at" IS NULL
AND "acc"."verification_token" = ?
AND "acc"."verification_expires_at" > ?
RETURNING *;`

type Accounts interface {
	repository.Repository[*Account]

	TrackAttemptedLogin(ctx context.Context, account *Account) error
	TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, account *Account) error
	TrackSuccessfulLogin(ctx context.Context, account *Account) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, account *Account) error

	Register(ctx context.Context, account *Account) (*Account, error)
	RegisterTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error)
	Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status AccountStatus, opts ...StatusUpdateOption) (*Account, error)
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status AccountStatus, opts ...StatusUpdateOption) (*Account, error)
	Suspend(ctx context.Context, actor ActorRef, account *Account, opts ...TransitionOption) (*Account, error)
	Reinstate(ctx context.Context, actor ActorRef, account *Account, opts ...TransitionOption) (*Account, error)
	Archive(ctx context.Context, actor ActorRef, account *Account, opts ...TransitionOption) (*Account, error)

	SetRefreshToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error
	SetRefreshTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token string, expiresAt time.Time) error
	RotateRefreshToken(ctx context.Context, presented, next string, expiresAt time.Time) (*Account, error)
	RotateRefreshTokenTx(ctx context.Context, tx bun.IDB, presented, next string, expiresAt time.Time) (*Account, error)
	ClearRefreshToken(ctx context.Context, id uuid.UUID) error
	ClearRefreshTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error

	SetVerificationToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error
	SetVerificationTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token string, expiresAt time.Time) error
	VerifyEmail(ctx context.Context, token string) (*Account, error)
	VerifyEmailTx(ctx context.Context, tx bun.IDB, token string) (*Account, error)

	SetResetToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error
	SetResetTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token string, expiresAt time.Time) error
	ResetPassword(ctx context.Context, resetToken, passwordHash string) (*Account, error)
	ResetPasswordTx(ctx context.Context, tx bun.IDB, resetToken, passwordHash string) (*Account, error)

	BumpTokenVersion(ctx context.Context, id uuid.UUID) (*Account, error)
	BumpTokenVersionTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error)
	TokenVersion(ctx context.Context, id string) (int, error)
}

type accounts struct {
	repository.Repository[*Account]
	db                  *bun.DB
	stateMachine        AccountStateMachine
	stateMachineOptions []StateMachineOption
	now                 func() time.Time
}

var (
	_ Accounts                        = (*accounts)(nil)
	_ repository.Repository[*Account] = (*accounts)(nil)
)

type AccountsOption func(*accounts)

func NewAccountsRepository(db *bun.DB, opts ...AccountsOption) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
	})

	repoAccounts := &accounts{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoAccounts)
		}
	}

	return repoAccounts
}

func WithAccountsStateMachineOptions(options ...StateMachineOption) AccountsOption {
	return func(a *accounts) {
		if len(options) == 0 {
			return
		}
		a.stateMachineOptions = append(a.stateMachineOptions, options...)
		a.stateMachine = nil
	}
}

func WithAccountsStateMachine(sm AccountStateMachine) AccountsOption {
	return func(a *accounts) {
		a.stateMachine = sm
	}
}

// WithAccountsClock injects a custom clock (useful for tests).
func WithAccountsClock(clock func() time.Time) AccountsOption {
	return func(a *accounts) {
		if clock != nil {
			a.now = clock
		}
	}
}

func (a *accounts) Register(ctx context.Context, account *Account) (*Account, error) {
	return a.RegisterTx(ctx, a.db, account)
}

func (a *accounts) RegisterTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error) {
	return a.CreateTx(ctx, tx, account)
}

func (a *accounts) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*Account, error) {
	return a.GetByIdentifierTx(ctx, a.db, identifier, criteria...)
}

func (a *accounts) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*Account, error) {
	options := resolveAccountIdentifier(identifier)
	if len(options) == 0 {
		options = []identifierOption{
			{
				column: "id",
				value:  strings.TrimSpace(identifier),
			},
		}
	}

	for _, opt := range options {
		record := &Account{}
		q := tx.NewSelect().Model(record)

		for _, c := range criteria {
			q.Apply(c)
		}

		err := q.
			Where(fmt.Sprintf("?TableAlias.%s = ?", opt.column), opt.value).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if repository.IsRecordNotFound(err) {
				continue
			}
			return nil, err
		}

		return record, nil
	}

	return nil, repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"identifier": identifier,
		})
}

func (a *accounts) Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *accounts) CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	prepareAccountDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *accounts) SetRefreshToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error {
	return a.SetRefreshTokenTx(ctx, a.db, id, token, expiresAt)
}

func (a *accounts) SetRefreshTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token string, expiresAt time.Time) error {
	_, err := tx.NewRaw(`
		UPDATE "accounts" AS "acc"
		SET
			"refresh_token" = ?,
			"refresh_expires_at" = ?
		WHERE
			("acc".id = ?)
			AND "acc"."deleted_at" IS NULL;
	`, token, expiresAt, id).Exec(ctx)

	return err
}

func (a *accounts) RotateRefreshToken(ctx context.Context, presented, next string, expiresAt time.Time) (*Account, error) {
	return a.RotateRefreshTokenTx(ctx, a.db, presented, next, expiresAt)
}

func (a *accounts) RotateRefreshTokenTx(ctx context.Context, tx bun.IDB, presented, next string, expiresAt time.Time) (*Account, error) {
	if presented == "" {
		return nil, ErrRefreshInvalid
	}

	res, err := a.Repository.RawTx(ctx, tx, RotateRefreshTokenSQL, next, expiresAt, presented, a.now())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"reason": "refresh token unknown, expired, or already rotated",
			})
	}

	return res[0], nil
}

func (a *accounts) ClearRefreshToken(ctx context.Context, id uuid.UUID) error {
	return a.ClearRefreshTokenTx(ctx, a.db, id)
}

func (a *accounts) ClearRefreshTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	_, err := tx.NewRaw(`
		UPDATE "accounts" AS "acc"
		SET
			"refresh_token" = NULL,
			"refresh_expires_at" = NULL
		WHERE
			("acc".id = ?)
			AND "acc"."deleted_at" IS NULL;
	`, id).Exec(ctx)

	return err
}

func (a *accounts) SetVerificationToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error {
	return a.SetVerificationTokenTx(ctx, a.db, id, token, expiresAt)
}

func (a *accounts) SetVerificationTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token string, expiresAt time.Time) error {
	_, err := tx.NewRaw(`
		UPDATE "accounts" AS "acc"
		SET
			"verification_token" = ?,
			"verification_expires_at" = ?
		WHERE
			("acc".id = ?)
			AND "acc"."deleted_at" IS NULL;
	`, token, expiresAt, id).Exec(ctx)

	return err
}

func (a *accounts) VerifyEmail(ctx context.Context, token string) (*Account, error) {
	return a.VerifyEmailTx(ctx, a.db, token)
}

func (a *accounts) VerifyEmailTx(ctx context.Context, tx bun.IDB, token string) (*Account, error) {
	if token == "" {
		return nil, ErrVerificationTokenInvalid
	}

	res, err := a.Repository.RawTx(ctx, tx, VerifyEmailSQL, token, a.now())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"reason": "verification token unknown, expired, or already used",
			})
	}

	return res[0], nil
}

func (a *accounts) SetResetToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error {
	return a.SetResetTokenTx(ctx, a.db, id, token, expiresAt)
}

func (a *accounts) SetResetTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token string, expiresAt time.Time) error {
	_, err := tx.NewRaw(`
		UPDATE "accounts" AS "acc"
		SET
			"reset_token" = ?,
			"reset_expires_at" = ?
		WHERE
			("acc".id = ?)
			AND "acc"."deleted_at" IS NULL;
	`, token, expiresAt, id).Exec(ctx)

	return err
}

func (a *accounts) ResetPassword(ctx context.Context, resetToken, passwordHash string) (*Account, error) {
	return a.ResetPasswordTx(ctx, a.db, resetToken, passwordHash)
}

func (a *accounts) ResetPasswordTx(ctx context.Context, tx bun.IDB, resetToken, passwordHash string) (*Account, error) {
	if resetToken == "" {
		return nil, ErrResetTokenInvalid
	}

	res, err := a.Repository.RawTx(ctx, tx, ResetPasswordSQL, passwordHash, resetToken, a.now())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"reason": "reset token unknown, expired, or already used",
			})
	}

	return res[0], nil
}

func (a *accounts) BumpTokenVersion(ctx context.Context, id uuid.UUID) (*Account, error) {
	return a.BumpTokenVersionTx(ctx, a.db, id)
}

func (a *accounts) BumpTokenVersionTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error) {
	res, err := a.Repository.RawTx(ctx, tx, BumpTokenVersionSQL, id.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return res[0], nil
}

// TokenVersion returns the current token version for the given account ID.
// Satisfies the TokenVersionSource the access gate expects.
func (a *accounts) TokenVersion(ctx context.Context, id string) (int, error) {
	account, err := a.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	return account.TokenVersion, nil
}

func (a *accounts) TrackSuccessfulLogin(ctx context.Context, account *Account) error {
	return a.TrackSuccessfulLoginTx(ctx, a.db, account)
}

func (a *accounts) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, account *Account) error {
	// NOTE: Updating using the ORM fails due to a bug, it wont reset
	// login_attempt_at, login_attempts fields.
	loggedInAt := a.now()
	_, err := tx.NewRaw(`
		UPDATE "accounts" AS "acc"
		SET
			"last_login_at" = ?,
			"login_attempt_at" = NULL,
			"login_attempts" = 0
		WHERE
			("acc".id = ?)
			AND "acc"."deleted_at" IS NULL;
	`, loggedInAt, account.ID).Exec(ctx)

	return err
}

func (a *accounts) TrackAttemptedLogin(ctx context.Context, account *Account) error {
	return a.TrackAttemptedLoginTx(ctx, a.db, account)
}

func (a *accounts) TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, account *Account) error {
	criteria := []repository.UpdateCriteria{
		repository.UpdateByID(account.ID.String()),
	}

	record := &Account{}
	record.ID = account.ID
	record.LoginAttempts = account.LoginAttempts + 1
	now := a.now()
	record.LoginAttemptAt = &now

	_, err := a.Repository.UpdateTx(ctx, tx, record, criteria...)

	return err
}

func (a *accounts) UpdateStatus(ctx context.Context, id uuid.UUID, status AccountStatus, opts ...StatusUpdateOption) (*Account, error) {
	return a.UpdateStatusTx(ctx, a.db, id, status, opts...)
}

func (a *accounts) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status AccountStatus, opts ...StatusUpdateOption) (*Account, error) {
	record := &Account{
		ID:     id,
		Status: status,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(record)
		}
	}

	return a.Repository.UpdateTx(ctx, tx, record, repository.UpdateByID(id.String()))
}

func (a *accounts) Suspend(ctx context.Context, actor ActorRef, account *Account, opts ...TransitionOption) (*Account, error) {
	return a.lifecycleMachine().Transition(ctx, actor, account, AccountStatusSuspended, opts...)
}

func (a *accounts) Reinstate(ctx context.Context, actor ActorRef, account *Account, opts ...TransitionOption) (*Account, error) {
	return a.lifecycleMachine().Transition(ctx, actor, account, AccountStatusActive, opts...)
}

func (a *accounts) Archive(ctx context.Context, actor ActorRef, account *Account, opts ...TransitionOption) (*Account, error) {
	return a.lifecycleMachine().Transition(ctx, actor, account, AccountStatusArchived, opts...)
}

// StatusUpdateOption allows callers to mutate the account record before persisting status changes.
type StatusUpdateOption func(*Account)

// WithSuspendedAt sets the SuspendedAt timestamp during a status transition.
func WithSuspendedAt(at *time.Time) StatusUpdateOption {
	return func(a *Account) {
		a.SuspendedAt = at
	}
}

func prepareAccountDefaults(record *Account) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = RoleStudent
	}

	record.EnsureStatus()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

type identifierOption struct {
	column string
	value  string
}

func resolveAccountIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 2)

	if isUUID(trimmed) {
		options = append(options, identifierOption{
			column: "id",
			value:  trimmed,
		})
	}

	if isEmail(trimmed) {
		options = append(options, identifierOption{
			column: "email",
			value:  strings.ToLower(trimmed),
		})
	}

	return options
}

func isEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func isUUID(identifier string) bool {
	_, err := uuid.Parse(identifier)
	return err == nil
}

func (a *accounts) lifecycleMachine() AccountStateMachine {
	if a.stateMachine == nil {
		a.stateMachine = NewAccountStateMachine(a, a.stateMachineOptions...)
	}
	return a.stateMachine
}
