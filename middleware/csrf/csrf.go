// Package csrf guards the cookie backed admin surface against cross-site
// request forgery. The admin console authenticates with an http-only cookie,
// so state changing requests must echo a signed token in a request header.
// Requests that carry no admin cookie authenticate through the Authorization
// header instead and have no ambient credential to forge, so they pass
// through untouched.
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-router"
)

var (
	ErrTokenMismatch    = errors.New("CSRF token mismatch")
	ErrTokenMissing     = errors.New("CSRF token missing")
	ErrTokenExpired     = errors.New("CSRF token expired")
	ErrSecureKeyMissing = errors.New("CSRF secure key required")
)

// DefaultHeaderName is the request header carrying the token
const DefaultHeaderName = "X-CSRF-Token"

// DefaultTokenLength is the nonce length in bytes
const DefaultTokenLength = 32

// Config defines the configuration for the CSRF middleware
type Config struct {
	// Skip defines a function to skip middleware
	Skip func(router.Context) bool

	// CookieName names the auth cookie whose presence triggers enforcement
	CookieName string

	// HeaderName defines the header carrying the token
	HeaderName string

	// SecureKey signs and verifies tokens
	SecureKey []byte

	// TTL bounds token age. Zero means no expiry check.
	TTL time.Duration

	// SafeMethods defines HTTP methods that don't require CSRF protection
	SafeMethods []string

	// ErrorHandler defines the error handler
	ErrorHandler router.ErrorHandler

	// SuccessHandler defines the success handler
	SuccessHandler router.HandlerFunc
}

// New creates the CSRF middleware. Validation only runs for unsafe methods on
// requests presenting the configured cookie; the token must have been minted
// by IssueToken against the same cookie value.
func New(config ...Config) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		cfg := configDefault(config...)

		return func(ctx router.Context) error {
			if cfg.Skip != nil && cfg.Skip(ctx) {
				return ctx.Next()
			}

			method := strings.ToUpper(ctx.Method())
			if slices.Contains(cfg.SafeMethods, method) {
				return cfg.SuccessHandler(ctx)
			}

			session := ctx.Cookies(cfg.CookieName)
			if session == "" {
				return cfg.SuccessHandler(ctx)
			}

			received := ctx.GetString(cfg.HeaderName, "")
			if received == "" {
				return cfg.ErrorHandler(ctx, ErrTokenMissing)
			}

			if err := Validate(cfg.SecureKey, received, session, cfg.TTL); err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			return cfg.SuccessHandler(ctx)
		}
	}
}

// IssueToken mints a stateless token bound to the given session credential.
// The session value itself never appears in the token, only its digest.
func IssueToken(key []byte, session string) (string, error) {
	if len(key) == 0 {
		return "", ErrSecureKeyMissing
	}

	nonce := make([]byte, DefaultTokenLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	timestamp := time.Now().UTC().Unix()
	payload := fmt.Sprintf("%d:%s:%s", timestamp, hex.EncodeToString(nonce), sessionDigest(session))

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(payload))
	signature := mac.Sum(nil)

	token := fmt.Sprintf("%s:%s", payload, hex.EncodeToString(signature))
	return base64.RawURLEncoding.EncodeToString([]byte(token)), nil
}

// Validate checks the token's signature, session binding, and age.
func Validate(key []byte, token, session string, ttl time.Duration) error {
	if len(key) == 0 {
		return ErrSecureKeyMissing
	}

	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return ErrTokenMismatch
	}

	parts := strings.Split(string(decoded), ":")
	if len(parts) != 4 {
		return ErrTokenMismatch
	}

	timestampStr, nonceHex, digestFromToken, signatureHex := parts[0], parts[1], parts[2], parts[3]

	timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
	if err != nil {
		return ErrTokenMismatch
	}

	if _, err := hex.DecodeString(nonceHex); err != nil {
		return ErrTokenMismatch
	}

	signature, err := hex.DecodeString(signatureHex)
	if err != nil {
		return ErrTokenMismatch
	}

	payload := strings.Join(parts[:3], ":")
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(payload))
	expectedSignature := mac.Sum(nil)

	if !hmac.Equal(signature, expectedSignature) {
		return ErrTokenMismatch
	}

	if subtle.ConstantTimeCompare([]byte(digestFromToken), []byte(sessionDigest(session))) != 1 {
		return ErrTokenMismatch
	}

	if ttl != 0 {
		expiresAt := time.Unix(timestamp, 0).Add(ttl)
		if time.Now().UTC().After(expiresAt) {
			return ErrTokenExpired
		}
	}

	return nil
}

func sessionDigest(session string) string {
	sum := sha256.Sum256([]byte(session))
	return hex.EncodeToString(sum[:])
}

func configDefault(config ...Config) Config {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.CookieName == "" {
		cfg.CookieName = "admin_token"
	}

	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultHeaderName
	}

	if len(cfg.SafeMethods) == 0 {
		cfg.SafeMethods = []string{"GET", "HEAD", "OPTIONS", "TRACE"}
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(ctx router.Context) error {
			return ctx.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c router.Context, err error) error {
			return c.JSON(router.StatusForbidden, map[string]string{
				"error": "CSRF validation failed",
			})
		}
	}

	if len(cfg.SecureKey) == 0 {
		panic("AUTH: csrf middleware configuration: SecureKey is required.")
	}

	return cfg
}
