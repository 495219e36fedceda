package auth_test

import (
	"context"
	"testing"
	"time"

	auth "github.com/girlsisave/go-auth"
	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockAuditEntries stubs only Create, the single method the recorder touches.
type MockAuditEntries struct {
	mock.Mock
	repository.Repository[*auth.AuditEntry]
}

func (m *MockAuditEntries) Create(ctx context.Context, record *auth.AuditEntry, criteria ...repository.InsertCriteria) (*auth.AuditEntry, error) {
	args := m.Called(ctx, record, criteria)
	if entry, ok := args.Get(0).(*auth.AuditEntry); ok {
		return entry, args.Error(1)
	}
	return nil, args.Error(1)
}

func TestAuditRecorderPersistsEvents(t *testing.T) {
	entries := &MockAuditEntries{}
	actorID := uuid.New()
	accountID := uuid.New()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	var captured *auth.AuditEntry
	entries.On("Create", mock.Anything, mock.AnythingOfType("*auth.AuditEntry"), mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(*auth.AuditEntry)
		}).
		Return(&auth.AuditEntry{}, nil).Once()

	recorder := auth.NewAuditRecorder(entries, auth.WithAuditRecorderClock(func() time.Time { return now }))

	err := recorder.Record(context.Background(), auth.ActivityEvent{
		EventType: auth.ActivityEventLoginSuccess,
		Actor:     auth.ActorRef{ID: actorID.String(), Type: "account"},
		AccountID: accountID.String(),
		Metadata:  map[string]any{"role": "mentor"},
	})
	require.NoError(t, err)

	require.NotNil(t, captured)
	assert.Equal(t, "auth.login.success", captured.Action)
	assert.Equal(t, accountID.String(), captured.Target)
	require.NotNil(t, captured.ActorID)
	assert.Equal(t, actorID, *captured.ActorID)
	assert.Equal(t, "mentor", captured.Metadata["role"])
	require.NotNil(t, captured.CreatedAt)
	assert.Equal(t, now, *captured.CreatedAt)
	entries.AssertExpectations(t)
}

func TestAuditRecorderKeepsSystemActorInDetail(t *testing.T) {
	entries := &MockAuditEntries{}

	var captured *auth.AuditEntry
	entries.On("Create", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(*auth.AuditEntry)
		}).
		Return(&auth.AuditEntry{}, nil).Once()

	recorder := auth.NewAuditRecorder(entries)

	err := recorder.Record(context.Background(), auth.ActivityEvent{
		EventType:  auth.ActivityEventAccountStatusChanged,
		Actor:      auth.ActorRef{Type: "system"},
		AccountID:  uuid.New().String(),
		FromStatus: auth.AccountStatusActive,
		ToStatus:   auth.AccountStatusSuspended,
	})
	require.NoError(t, err)

	require.NotNil(t, captured)
	assert.Nil(t, captured.ActorID)
	assert.Equal(t, "system", captured.Detail)
	assert.Equal(t, "active", captured.Metadata["from_status"])
	assert.Equal(t, "suspended", captured.Metadata["to_status"])
}

func TestAuditRecorderSurfacesPersistenceErrors(t *testing.T) {
	entries := &MockAuditEntries{}
	entries.On("Create", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, goerrors.New("disk full", goerrors.CategoryInternal)).Once()

	recorder := auth.NewAuditRecorder(entries, auth.WithAuditRecorderLogger(quietLogger{}))

	err := recorder.Record(context.Background(), auth.ActivityEvent{
		EventType: auth.ActivityEventLoginFailure,
		AccountID: uuid.New().String(),
	})
	require.Error(t, err)
}

func TestCombineActivitySinksFansOut(t *testing.T) {
	first := &capturingSink{}
	second := &capturingSink{}

	combined := auth.CombineActivitySinks(first, second)

	err := combined.Record(context.Background(), auth.ActivityEvent{
		EventType: auth.ActivityEventLoginSuccess,
	})
	require.NoError(t, err)
	assert.Len(t, first.events, 1)
	assert.Len(t, second.events, 1)
}

func TestCombineActivitySinksReportsFirstErrorButVisitsAll(t *testing.T) {
	boom := goerrors.New("sink down", goerrors.CategoryOperation)
	failing := failingSink{err: boom}
	last := &capturingSink{}

	combined := auth.CombineActivitySinks(failing, last)

	err := combined.Record(context.Background(), auth.ActivityEvent{
		EventType: auth.ActivityEventRefreshRotated,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, last.events, 1)
}

type failingSink struct {
	err error
}

func (f failingSink) Record(context.Context, auth.ActivityEvent) error {
	return f.err
}
