package auth

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// TextCodeInvalidCreds flags a failed credential check
	TextCodeInvalidCreds = "INVALID_CREDENTIALS"
	// TextCodeTokenInvalid flags any access token verification failure
	TextCodeTokenInvalid = "TOKEN_INVALID"
	// TextCodeRefreshInvalid flags any refresh token verification failure
	TextCodeRefreshInvalid = "REFRESH_TOKEN_INVALID"
	// TextCodeEmailTaken flags a duplicate registration
	TextCodeEmailTaken = "EMAIL_TAKEN"
	// TextCodeVerificationInvalid flags a bad or expired verification token
	TextCodeVerificationInvalid = "VERIFICATION_TOKEN_INVALID"
	// TextCodeResetInvalid flags a bad or expired reset token
	TextCodeResetInvalid = "RESET_TOKEN_INVALID"
	// TextCodeForbidden flags an authenticated caller without the role
	TextCodeForbidden = "FORBIDDEN"
	// TextCodeAccountSuspended flags a blocked account
	TextCodeAccountSuspended = "ACCOUNT_SUSPENDED"
	// TextCodeTooManyAttempts flags the login cooldown
	TextCodeTooManyAttempts = "TOO_MANY_LOGIN_ATTEMPTS"
	// TextCodeEmptyPassword flags an empty password input
	TextCodeEmptyPassword = "EMPTY_PASSWORD"
)

// ErrInvalidCredentials is returned for unknown emails AND wrong passwords.
// The two cases must stay indistinguishable to the caller.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenInvalid collapses every access token verification failure, expired,
// malformed, or wrongly signed, into one outcome so the error is not an oracle.
var ErrTokenInvalid = goerrors.New("invalid or expired token", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(goerrors.CodeUnauthorized)

// ErrRefreshInvalid is returned when a presented refresh token matches no
// account, is expired, or was already rotated away.
var ErrRefreshInvalid = goerrors.New("invalid or expired refresh token", goerrors.CategoryAuth).
	WithTextCode(TextCodeRefreshInvalid).
	WithCode(goerrors.CodeUnauthorized)

// ErrEmailTaken is returned when registering an email that already exists
var ErrEmailTaken = goerrors.New("email already registered", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(goerrors.CodeConflict)

// ErrVerificationTokenInvalid is returned for unknown or expired email
// verification tokens.
var ErrVerificationTokenInvalid = goerrors.New("invalid or expired verification token", goerrors.CategoryValidation).
	WithTextCode(TextCodeVerificationInvalid).
	WithCode(goerrors.CodeBadRequest)

// ErrResetTokenInvalid is returned for unknown or expired password reset tokens
var ErrResetTokenInvalid = goerrors.New("invalid or expired reset token", goerrors.CategoryValidation).
	WithTextCode(TextCodeResetInvalid).
	WithCode(goerrors.CodeBadRequest)

// ErrForbidden is returned when the caller is authenticated but the claimed
// role or ownership does not cover the operation.
var ErrForbidden = goerrors.New("forbidden", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(goerrors.CodeForbidden)

// ErrAccountSuspended blocks authentication for suspended accounts
var ErrAccountSuspended = goerrors.New("account is suspended", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountSuspended).
	WithCode(goerrors.CodeUnauthorized)

// ErrTooManyLoginAttempts enforces the login cooldown window
var ErrTooManyLoginAttempts = goerrors.New("too many login attempts", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts)

// ErrMismatchedHashAndPassword is the internal signal for a failed bcrypt
// comparison. Callers translate it to ErrInvalidCredentials before it leaves
// the package.
var ErrMismatchedHashAndPassword = goerrors.New("mismatched hash and password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrUnableToMapClaims is returned when token claims cannot be decoded
var ErrUnableToMapClaims = goerrors.New("unable to map claims", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

func statusAuthError(status AccountStatus) error {
	switch status {
	case AccountStatusActive, "":
		return nil
	case AccountStatusSuspended:
		return ErrAccountSuspended
	default:
		return goerrors.New("account is not active", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized).
			WithMetadata(map[string]any{"status": status})
	}
}
