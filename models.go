package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Role is the account's platform role
type Role = string

const (
	// RoleStudent is the default role for new registrations
	RoleStudent Role = "student"
	// RoleMentor is a vetted mentor account
	RoleMentor Role = "mentor"
	// RoleAdmin can access any role gated operation
	RoleAdmin Role = "admin"
)

// AccountStatus tracks the lifecycle of an account
type AccountStatus = string

const (
	// AccountStatusActive is the default status
	AccountStatusActive AccountStatus = "active"
	// AccountStatusSuspended blocks authentication until reinstated
	AccountStatusSuspended AccountStatus = "suspended"
	// AccountStatusArchived is terminal, the account was deactivated for good
	AccountStatusArchived AccountStatus = "archived"
)

// Account is the credential and identity model
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`

	ID           uuid.UUID     `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email        string        `bun:"email,notnull,unique" json:"email,omitempty"`
	Name         string        `bun:"name" json:"name,omitempty"`
	Role         Role          `bun:"role,notnull" json:"role,omitempty"`
	Status       AccountStatus `bun:"status" json:"status,omitempty"`
	PasswordHash string        `bun:"password_hash,notnull" json:"-"`

	EmailVerified         bool       `bun:"email_verified" json:"email_verified,omitempty"`
	VerificationToken     *string    `bun:"verification_token,nullzero" json:"-"`
	VerificationExpiresAt *time.Time `bun:"verification_expires_at,nullzero" json:"-"`

	ResetToken     *string    `bun:"reset_token,nullzero" json:"-"`
	ResetExpiresAt *time.Time `bun:"reset_expires_at,nullzero" json:"-"`

	RefreshToken     *string    `bun:"refresh_token,nullzero" json:"-"`
	RefreshExpiresAt *time.Time `bun:"refresh_expires_at,nullzero" json:"-"`

	// TokenVersion only ever increases. Bumped on password reset to cut off
	// every token minted against an older version.
	TokenVersion int `bun:"token_version,notnull,default:0" json:"token_version,omitempty"`

	Bio    string `bun:"bio" json:"bio,omitempty"`
	Region string `bun:"region" json:"region,omitempty"`

	LoginAttempts  int        `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LastLoginAt    *time.Time `bun:"last_login_at" json:"last_login_at,omitempty"`

	SuspendedAt *time.Time `bun:"suspended_at,nullzero" json:"suspended_at,omitempty"`
	CreatedAt   *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt   *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt   *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus backfills the status of legacy rows
func (a *Account) EnsureStatus() {
	if a.Status == "" {
		a.Status = AccountStatusActive
	}
}

// IsActive reports whether the account may authenticate
func (a *Account) IsActive() bool {
	a.EnsureStatus()
	return a.Status == AccountStatusActive
}

// IsSuspended reports whether the account is currently suspended
func (a *Account) IsSuspended() bool {
	return a.Status == AccountStatusSuspended
}

// IsArchived reports whether the account reached the terminal status
func (a *Account) IsArchived() bool {
	return a.Status == AccountStatusArchived
}

// HasPendingVerification reports whether a verification token pair is set
func (a *Account) HasPendingVerification() bool {
	return a.VerificationToken != nil && a.VerificationExpiresAt != nil
}

// HasPendingReset reports whether a reset token pair is set
func (a *Account) HasPendingReset() bool {
	return a.ResetToken != nil && a.ResetExpiresAt != nil
}

// AuditEntry is an append only record of a privileged mutation. Rows are
// written once, never updated, never deleted.
type AuditEntry struct {
	bun.BaseModel `bun:"table:audit_entries,alias:aud"`

	ID        uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	ActorID   *uuid.UUID     `bun:"actor_id,nullzero" json:"actor_id,omitempty"`
	Action    string         `bun:"action,notnull" json:"action,omitempty"`
	Target    string         `bun:"target" json:"target,omitempty"`
	Detail    string         `bun:"detail" json:"detail,omitempty"`
	Metadata  map[string]any `bun:"metadata" json:"metadata,omitempty"`
	CreatedAt *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}
