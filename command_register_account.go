package auth

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// VerificationTokenTTL is how long an email verification link stays valid.
var VerificationTokenTTL = 48 * time.Hour

type RegisterAccountMessage struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	Password   string `json:"password"`
	Bio        string `json:"bio"`
	Region     string `json:"region"`
	OnResponse func(resp *RegisterAccountResponse)
}

func (e RegisterAccountMessage) Type() string { return "account.register" }

type RegisterAccountResponse struct {
	Account           *Account
	VerificationToken string
}

type RegisterAccountHandler struct {
	repo     RepositoryManager
	notifier Notifier
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

// NewRegisterAccountHandler creates a handler with sane defaults.
func NewRegisterAccountHandler(repo RepositoryManager) *RegisterAccountHandler {
	return &RegisterAccountHandler{
		repo:     repo,
		notifier: noopNotifier{},
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

// WithNotifier sets the notifier used to send the verification email.
func (h *RegisterAccountHandler) WithNotifier(n Notifier) *RegisterAccountHandler {
	h.notifier = normalizeNotifier(n)
	return h
}

// WithActivitySink sets the sink used to emit registration events.
func (h *RegisterAccountHandler) WithActivitySink(sink ActivitySink) *RegisterAccountHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *RegisterAccountHandler) WithLogger(logger Logger) *RegisterAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithClock injects a custom clock (useful for tests).
func (h *RegisterAccountHandler) WithClock(clock func() time.Time) *RegisterAccountHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *RegisterAccountHandler) Execute(ctx context.Context, event RegisterAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterAccountHandler) execute(ctx context.Context, event RegisterAccountMessage) error {
	account := &Account{}
	verificationToken := ""

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	role, ok := ParseRole(event.Role)
	if !ok {
		return goerrors.New("unknown role", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"role": event.Role})
	}

	// admin accounts are provisioned out of band, never through registration
	if role == RoleAdmin {
		return goerrors.New("role not available for registration", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"role": event.Role})
	}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		account.PasswordHash = hash
		account.Email = strings.ToLower(strings.TrimSpace(event.Email))
		account.Name = event.Name
		account.Role = role
		account.Bio = event.Bio
		account.Region = event.Region
		// deterministic id derived from the email, so a retried registration
		// of the same address cannot mint a second id
		if id, err := hashid.NewUUID(account.Email); err == nil {
			account.ID = id
		}

		if account, err = h.repo.Accounts().CreateTx(ctx, tx, account); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "email already registered").
				WithTextCode(TextCodeEmailTaken).
				WithCode(goerrors.CodeConflict)
		}

		verificationToken, err = NewOpaqueToken()
		if err != nil {
			return err
		}

		expiresAt := h.now().Add(VerificationTokenTTL)
		if err := h.repo.Accounts().SetVerificationTokenTx(ctx, tx, account.ID, verificationToken, expiresAt); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store verification token")
		}

		account.VerificationToken = &verificationToken
		account.VerificationExpiresAt = &expiresAt

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "account registration transaction failed")
	}

	// notification delivery never fails registration
	if err := h.notifier.SendVerificationEmail(ctx, account.Email, account.Name, verificationToken); err != nil {
		h.logger.Warn("failed to enqueue verification email: %v", err)
	}

	h.recordActivity(ctx, account)

	if event.OnResponse != nil {
		event.OnResponse(&RegisterAccountResponse{
			Account:           account,
			VerificationToken: verificationToken,
		})
	}

	return nil
}

func (h *RegisterAccountHandler) recordActivity(ctx context.Context, account *Account) {
	event := ActivityEvent{
		EventType: ActivityEventAccountRegistered,
		Actor: ActorRef{
			ID:   account.ID.String(),
			Type: "account",
		},
		AccountID: account.ID.String(),
		Metadata: map[string]any{
			"role": string(account.Role),
		},
		OccurredAt: h.now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during registration: %v", err)
	}
}
