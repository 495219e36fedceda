package auth

import (
	"errors"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-router"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Put(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// AuthController exposes the account lifecycle over JSON routes.
type AuthController struct {
	auther   Authenticator
	gateway  *RouteAuthenticator
	cfg      Config
	register *RegisterAccountHandler
	verify   *VerifyEmailHandler
	forgot   *InitializePasswordResetHandler
	reset    *FinalizePasswordResetHandler
	profile  *UpdateProfileHandler
	logger   Logger
}

// AuthControllerOption customizes the controller.
type AuthControllerOption func(*AuthController)

// WithControllerLogger sets the controller logger.
func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewAuthController wires the command handlers behind the JSON routes.
func NewAuthController(
	auther Authenticator,
	gateway *RouteAuthenticator,
	cfg Config,
	repo RepositoryManager,
	notifier Notifier,
	sink ActivitySink,
	opts ...AuthControllerOption,
) *AuthController {
	c := &AuthController{
		auther:  auther,
		gateway: gateway,
		cfg:     cfg,
		logger:  defLogger{},
	}

	for _, opt := range opts {
		opt(c)
	}

	c.register = NewRegisterAccountHandler(repo).
		WithNotifier(notifier).
		WithActivitySink(sink).
		WithLogger(c.logger)

	c.verify = NewVerifyEmailHandler(repo).
		WithActivitySink(sink).
		WithLogger(c.logger)

	c.forgot = NewInitializePasswordResetHandler(repo).
		WithNotifier(notifier).
		WithActivitySink(sink).
		WithLogger(c.logger)

	c.reset = NewFinalizePasswordResetHandler(repo).
		WithActivitySink(sink).
		WithLogger(c.logger)

	c.profile = NewUpdateProfileHandler(repo).
		WithActivitySink(sink).
		WithLogger(c.logger)

	return c
}

// RegisterRoutes mounts the auth surface on the given router group.
func (c *AuthController) RegisterRoutes(app RouteRegistrar) {
	app.Post("/auth/register", c.Register)
	app.Post("/auth/login", c.Login)
	app.Post("/auth/refresh-token", c.RefreshToken)
	app.Post("/auth/logout", c.Logout, c.gateway.AdminCSRF(), c.gateway.ProtectedRoute())
	app.Post("/auth/forgot-password", c.ForgotPassword)
	app.Post("/auth/reset-password", c.ResetPassword)
	app.Post("/auth/verify-email", c.VerifyEmail)
	app.Post("/admin/login", c.AdminLogin, c.gateway.ProtectedRoute(RoleAdmin))
	app.Put("/accounts/:id", c.UpdateProfile, c.gateway.AdminCSRF(), c.gateway.OwnerRoute("id"))
}

// RegisterPayload is the registration body
type RegisterPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Bio      string `json:"bio"`
	Region   string `json:"region"`
}

// Validate will run validation rules
func (r RegisterPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		// empty role defaults to student downstream
		validation.Field(&r.Role, validation.In(RoleStudent, RoleMentor)),
		validation.Field(&r.Bio, validation.Length(0, 2000)),
		validation.Field(&r.Region, validation.Length(0, 100)),
	)
}

// Register creates a new account and queues the verification email.
func (c *AuthController) Register(ctx router.Context) error {
	payload := new(RegisterPayload)
	if err := ctx.Bind(payload); err != nil {
		return c.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.validationError(ctx, err)
	}

	var resp *RegisterAccountResponse
	msg := RegisterAccountMessage{
		Name:     payload.Name,
		Email:    payload.Email,
		Role:     payload.Role,
		Password: payload.Password,
		Bio:      payload.Bio,
		Region:   payload.Region,
		OnResponse: func(r *RegisterAccountResponse) {
			resp = r
		},
	}

	if err := c.register.Execute(ctx.Context(), msg); err != nil {
		return WriteError(ctx, err, c.logger)
	}

	return ctx.JSON(http.StatusCreated, map[string]any{
		"account_id": resp.Account.ID.String(),
	})
}

// LoginPayload is the credential body
type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// Login exchanges credentials for an access and refresh token pair.
func (c *AuthController) Login(ctx router.Context) error {
	payload := new(LoginPayload)
	if err := ctx.Bind(payload); err != nil {
		return c.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.validationError(ctx, err)
	}

	grant, err := c.auther.Login(ctx.Context(), payload.Email, payload.Password)
	if err != nil {
		return WriteError(ctx, err, c.logger)
	}

	return ctx.JSON(router.StatusOK, grant)
}

// RefreshPayload carries the opaque refresh token
type RefreshPayload struct {
	RefreshToken string `json:"refresh_token"`
}

// Validate will run validation rules
func (r RefreshPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

// RefreshToken rotates the presented refresh token. The presented token is
// consumed whether or not the caller ever reads the response.
func (c *AuthController) RefreshToken(ctx router.Context) error {
	payload := new(RefreshPayload)
	if err := ctx.Bind(payload); err != nil {
		return c.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.validationError(ctx, err)
	}

	grant, err := c.auther.Refresh(ctx.Context(), payload.RefreshToken)
	if err != nil {
		return WriteError(ctx, err, c.logger)
	}

	return ctx.JSON(router.StatusOK, grant)
}

// Logout revokes the caller's refresh token and clears the admin cookie.
func (c *AuthController) Logout(ctx router.Context) error {
	claims, ok := GetRouterClaims(ctx, c.cfg.GetContextKey())
	if !ok {
		return WriteError(ctx, ErrTokenInvalid, c.logger)
	}

	if err := c.auther.Logout(ctx.Context(), claims.AccountID()); err != nil {
		return WriteError(ctx, err, c.logger)
	}

	c.gateway.ClearAdminCookie(ctx)

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
	})
}

// ForgotPasswordPayload holds the reset request body
type ForgotPasswordPayload struct {
	Email string `json:"email"`
}

// Validate will run validation rules
func (r ForgotPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// ForgotPassword starts a password reset. The response is the same whether
// or not the email maps to an account.
func (c *AuthController) ForgotPassword(ctx router.Context) error {
	payload := new(ForgotPasswordPayload)
	if err := ctx.Bind(payload); err != nil {
		return c.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.validationError(ctx, err)
	}

	msg := InitializePasswordResetMessage{Email: payload.Email}
	if err := c.forgot.Execute(ctx.Context(), msg); err != nil {
		return WriteError(ctx, err, c.logger)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
	})
}

// ResetPasswordPayload holds values to finalize a password reset
type ResetPasswordPayload struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

// Validate will run validation rules
func (r ResetPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(
			&r.PasswordConfirm,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

// ResetPassword consumes a reset token, replaces the password hash, and
// revokes every outstanding session for the account.
func (c *AuthController) ResetPassword(ctx router.Context) error {
	payload := new(ResetPasswordPayload)
	if err := ctx.Bind(payload); err != nil {
		return c.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.validationError(ctx, err)
	}

	msg := FinalizePasswordResetMessage{
		Token:    payload.Token,
		Password: payload.Password,
	}
	if err := c.reset.Execute(ctx.Context(), msg); err != nil {
		return WriteError(ctx, err, c.logger)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
	})
}

// VerifyEmailPayload holds the verification token
type VerifyEmailPayload struct {
	Token string `json:"token"`
}

// Validate will run validation rules
func (r VerifyEmailPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	)
}

// VerifyEmail consumes a verification token and marks the email verified.
func (c *AuthController) VerifyEmail(ctx router.Context) error {
	payload := new(VerifyEmailPayload)
	if err := ctx.Bind(payload); err != nil {
		return c.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.validationError(ctx, err)
	}

	var resp *VerifyEmailResponse
	msg := VerifyEmailMessage{
		Token: payload.Token,
		OnResponse: func(r *VerifyEmailResponse) {
			resp = r
		},
	}
	if err := c.verify.Execute(ctx.Context(), msg); err != nil {
		return WriteError(ctx, err, c.logger)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"account_id": resp.Account.ID.String(),
		"verified":   true,
	})
}

// AdminLogin trades a valid admin bearer token for the http-only admin
// cookie. The gate in front already rejected non admin callers.
func (c *AuthController) AdminLogin(ctx router.Context) error {
	raw := ctx.GetString(router.HeaderAuthorization, "")
	scheme := c.cfg.GetAuthScheme()

	token := strings.TrimSpace(strings.TrimPrefix(raw, scheme))
	if token == "" {
		return WriteError(ctx, ErrTokenInvalid, c.logger)
	}

	c.gateway.SetAdminCookie(ctx, token)

	csrfToken, err := c.gateway.AdminCSRFToken(token)
	if err != nil {
		return WriteError(ctx, err, c.logger)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success":    true,
		"csrf_token": csrfToken,
		"expires_in": int(c.cfg.GetAdminCookieTTL().Seconds()),
	})
}

// UpdateProfilePayload carries partial profile fields. Absent fields are
// left untouched.
type UpdateProfilePayload struct {
	Name   *string `json:"name"`
	Bio    *string `json:"bio"`
	Region *string `json:"region"`
}

// Validate will run validation rules
func (r UpdateProfilePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.NilOrNotEmpty, validation.Length(1, 200)),
		validation.Field(&r.Bio, validation.Length(0, 2000)),
		validation.Field(&r.Region, validation.Length(0, 100)),
	)
}

// UpdateProfile applies a partial profile update. The ownership gate in
// front of the route enforces that the caller owns the account or is admin.
func (c *AuthController) UpdateProfile(ctx router.Context) error {
	payload := new(UpdateProfilePayload)
	if err := ctx.Bind(payload); err != nil {
		return c.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.validationError(ctx, err)
	}

	actor := ActorRef{Type: "system"}
	if claims, ok := GetRouterClaims(ctx, c.cfg.GetContextKey()); ok {
		actor = ActorRef{ID: claims.AccountID(), Type: claims.Role()}
	}

	var resp *UpdateProfileResponse
	msg := UpdateProfileMessage{
		AccountID: ctx.Param("id"),
		Name:      payload.Name,
		Bio:       payload.Bio,
		Region:    payload.Region,
		Actor:     actor,
		OnResponse: func(r *UpdateProfileResponse) {
			resp = r
		},
	}
	if err := c.profile.Execute(ctx.Context(), msg); err != nil {
		return WriteError(ctx, err, c.logger)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"account": resp.Account,
	})
}

func (c *AuthController) badPayload(ctx router.Context, err error) error {
	c.logger.Debug("malformed request payload: %v", err)
	return ctx.JSON(http.StatusBadRequest, map[string]any{
		"error": "malformed request payload",
	})
}

func (c *AuthController) validationError(ctx router.Context, err error) error {
	return ctx.JSON(http.StatusBadRequest, map[string]any{
		"error":      "validation failed",
		"validation": FormatValidationErrorToMap(err),
	})
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into a field
// keyed map for the JSON response.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			out[field] = ferr.Error()
		}
		return out
	}

	out["payload"] = err.Error()
	return out
}
