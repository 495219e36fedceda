package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type UpdateProfileMessage struct {
	AccountID  string  `json:"account_id"`
	Name       *string `json:"name"`
	Bio        *string `json:"bio"`
	Region     *string `json:"region"`
	Actor      ActorRef
	OnResponse func(resp *UpdateProfileResponse)
}

func (e UpdateProfileMessage) Type() string { return "account.profile_update" }

type UpdateProfileResponse struct {
	Account *Account
}

type UpdateProfileHandler struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

// NewUpdateProfileHandler creates a handler with sane defaults.
func NewUpdateProfileHandler(repo RepositoryManager) *UpdateProfileHandler {
	return &UpdateProfileHandler{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

// WithActivitySink sets the sink used to emit profile update events.
func (h *UpdateProfileHandler) WithActivitySink(sink ActivitySink) *UpdateProfileHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *UpdateProfileHandler) WithLogger(logger Logger) *UpdateProfileHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *UpdateProfileHandler) Execute(ctx context.Context, event UpdateProfileMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during profile update")
	default:
		return h.execute(ctx, event)
	}
}

func (h *UpdateProfileHandler) execute(ctx context.Context, event UpdateProfileMessage) error {
	account := &Account{}
	changed := map[string]any{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	id, err := uuid.Parse(event.AccountID)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid account id").
			WithCode(goerrors.CodeBadRequest)
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err = h.repo.Accounts().GetByID(ctx, id.String())
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrIdentityNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for profile update")
		}

		if event.Name != nil && *event.Name != account.Name {
			account.Name = *event.Name
			changed["name"] = *event.Name
		}
		if event.Bio != nil && *event.Bio != account.Bio {
			account.Bio = *event.Bio
			changed["bio"] = *event.Bio
		}
		if event.Region != nil && *event.Region != account.Region {
			account.Region = *event.Region
			changed["region"] = *event.Region
		}

		if len(changed) == 0 {
			return nil
		}

		account, err = h.repo.Accounts().UpdateTx(ctx, tx, account, repository.UpdateByID(account.ID.String()))
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist profile update")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update profile")
	}

	if len(changed) > 0 {
		h.recordActivity(ctx, event.Actor, account, changed)
	}

	if event.OnResponse != nil {
		event.OnResponse(&UpdateProfileResponse{Account: account})
	}

	return nil
}

func (h *UpdateProfileHandler) recordActivity(ctx context.Context, actor ActorRef, account *Account, changed map[string]any) {
	if actor == (ActorRef{}) {
		actor = ActorRef{ID: account.ID.String(), Type: "account"}
	}

	event := ActivityEvent{
		EventType:  ActivityEventProfileUpdated,
		Actor:      actor,
		AccountID:  account.ID.String(),
		Metadata:   map[string]any{"fields": changed},
		OccurredAt: h.now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during profile update: %v", err)
	}
}
