package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/girlsisave/go-auth/middleware/csrf"
	"github.com/girlsisave/go-auth/middleware/gate"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RouteAuthenticator wires the authenticator into go-router middleware and
// translates domain errors into JSON responses.
type RouteAuthenticator struct {
	auth          Authenticator
	cfg           Config
	versionSource gate.TokenVersionSource
	Logger        Logger
	ErrorHandler  func(c router.Context, err error) error
}

func NewHTTPAuthenticator(auther Authenticator, cfg Config) (*RouteAuthenticator, error) {
	a := &RouteAuthenticator{
		cfg:    cfg,
		auth:   auther,
		Logger: defLogger{},
	}

	a.ErrorHandler = a.defaultErrHandler

	return a, nil
}

// WithTokenVersionSource enables the per-request version claim check. Without
// a source the gate only checks signature and expiry.
func (a *RouteAuthenticator) WithTokenVersionSource(source gate.TokenVersionSource) *RouteAuthenticator {
	a.versionSource = source
	return a
}

// ProtectedRoute guards routes for the given roles. An empty role list lets
// any authenticated account through; an admin claim always passes.
func (a *RouteAuthenticator) ProtectedRoute(roles ...Role) router.MiddlewareFunc {
	return a.gateMiddleware(gate.Config{
		Roles: roles,
	})
}

// OwnerRoute guards routes where the caller must own the resource named by
// the route parameter, unless the caller is an admin.
func (a *RouteAuthenticator) OwnerRoute(ownerParam string, roles ...Role) router.MiddlewareFunc {
	return a.gateMiddleware(gate.Config{
		Roles:      roles,
		OwnerParam: ownerParam,
	})
}

func (a *RouteAuthenticator) gateMiddleware(cfg gate.Config) router.MiddlewareFunc {
	cfg.TokenValidator = gateValidator{inner: a.auth}
	cfg.TokenVersionSource = a.versionSource
	cfg.ContextKey = a.cfg.GetContextKey()
	cfg.AuthScheme = a.cfg.GetAuthScheme()
	cfg.TokenLookup = "header:" + router.HeaderAuthorization + ",cookie:" + a.cfg.GetAdminCookieName()
	cfg.ErrorHandler = func(c router.Context, err error) error {
		return a.gateErrHandler(c, err)
	}
	cfg.ContextEnricher = func(c context.Context, claims gate.AuthClaims) context.Context {
		if ac, ok := claims.(AuthClaims); ok {
			return WithClaimsContext(c, ac)
		}
		return c
	}
	return gate.New(cfg)
}

// AdminCSRF protects unsafe methods on routes that accept the admin cookie.
// Requests authenticated through the Authorization header pass untouched.
func (a *RouteAuthenticator) AdminCSRF() router.MiddlewareFunc {
	return csrf.New(csrf.Config{
		CookieName: a.cfg.GetAdminCookieName(),
		SecureKey:  []byte(a.cfg.GetSigningKey()),
		TTL:        a.cfg.GetAdminCookieTTL(),
		ErrorHandler: func(c router.Context, err error) error {
			return a.ErrorHandler(c, ErrForbidden)
		},
	})
}

// AdminCSRFToken mints the token the admin console must echo in the CSRF
// header on every state changing request made with the admin cookie.
func (a *RouteAuthenticator) AdminCSRFToken(adminToken string) (string, error) {
	return csrf.IssueToken([]byte(a.cfg.GetSigningKey()), adminToken)
}

// SetAdminCookie stores an admin access token in an http-only cookie so the
// admin console surface does not need to carry the Authorization header.
func (a *RouteAuthenticator) SetAdminCookie(c router.Context, token string) {
	c.Cookie(&router.Cookie{
		Name:     a.cfg.GetAdminCookieName(),
		Value:    token,
		Expires:  time.Now().Add(a.cfg.GetAdminCookieTTL()),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

// ClearAdminCookie expires the admin cookie.
func (a *RouteAuthenticator) ClearAdminCookie(c router.Context) {
	c.Cookie(&router.Cookie{
		Name:     a.cfg.GetAdminCookieName(),
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RouteAuthenticator) gateErrHandler(c router.Context, err error) error {
	switch err {
	case gate.ErrRoleNotAllowed, gate.ErrNotResourceOwner:
		return a.ErrorHandler(c, ErrForbidden)
	default:
		return a.ErrorHandler(c, ErrTokenInvalid)
	}
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	return WriteError(c, err, a.Logger)
}

// gateValidator adapts the Authenticator to the gate middleware without an
// import cycle.
type gateValidator struct {
	inner Authenticator
}

func (g gateValidator) Validate(tokenString string) (gate.AuthClaims, error) {
	claims, err := g.inner.ClaimsFromToken(tokenString)
	if err != nil {
		return nil, err
	}

	gc, ok := claims.(gate.AuthClaims)
	if !ok {
		return nil, ErrUnableToMapClaims
	}

	return gc, nil
}

// WriteError translates a domain error into a JSON response, mapping error
// categories onto HTTP status codes.
func WriteError(c router.Context, err error, logger Logger) error {
	if logger == nil {
		logger = defLogger{}
	}

	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	status := statusFromError(richErr)

	if status >= 500 {
		logger.Error(
			"request failed: %s category=%s details=%s",
			richErr.Message,
			richErr.Category,
			print.MaybePrettyJSON(richErr.Metadata),
		)
	} else {
		logger.Debug("request rejected: %s text_code=%s", richErr.Message, richErr.TextCode)
	}

	body := map[string]any{
		"error": publicMessage(richErr, status),
	}
	if richErr.TextCode != "" {
		body["text_code"] = richErr.TextCode
	}

	return c.JSON(status, body)
}

func statusFromError(richErr *errors.Error) int {
	if richErr.Code > 0 {
		return richErr.Code
	}

	switch richErr.Category {
	case errors.CategoryValidation, errors.CategoryBadInput:
		return http.StatusBadRequest
	case errors.CategoryAuth:
		return http.StatusUnauthorized
	case errors.CategoryAuthz:
		return http.StatusForbidden
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryConflict:
		return http.StatusConflict
	case errors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage hides internal error details from 5xx responses.
func publicMessage(richErr *errors.Error, status int) string {
	if status >= 500 {
		return "internal server error"
	}
	return richErr.Message
}
