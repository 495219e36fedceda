package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// AuditRecorder persists activity events as append only audit entries.
// Recording is best effort at the call sites: failures are surfaced to the
// caller through Record's error, and every caller in this package logs and
// moves on instead of aborting the primary operation.
type AuditRecorder struct {
	entries repository.Repository[*AuditEntry]
	logger  Logger
	now     func() time.Time
}

var _ ActivitySink = (*AuditRecorder)(nil)

// AuditRecorderOption customizes the recorder.
type AuditRecorderOption func(*AuditRecorder)

// WithAuditRecorderLogger overrides the logger.
func WithAuditRecorderLogger(logger Logger) AuditRecorderOption {
	return func(r *AuditRecorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithAuditRecorderClock injects a custom clock (useful for tests).
func WithAuditRecorderClock(clock func() time.Time) AuditRecorderOption {
	return func(r *AuditRecorder) {
		if clock != nil {
			r.now = clock
		}
	}
}

// NewAuditRecorder builds a sink backed by the audit entries repository.
func NewAuditRecorder(entries repository.Repository[*AuditEntry], opts ...AuditRecorderOption) *AuditRecorder {
	recorder := &AuditRecorder{
		entries: entries,
		logger:  defLogger{},
		now:     time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(recorder)
		}
	}

	return recorder
}

// Record implements ActivitySink.
func (r *AuditRecorder) Record(ctx context.Context, event ActivityEvent) error {
	if r.entries == nil {
		return nil
	}

	entry := r.entryFromEvent(event)
	if _, err := r.entries.Create(ctx, entry); err != nil {
		r.logger.Warn("audit recorder failed to persist %s: %v", event.EventType, err)
		return err
	}

	return nil
}

func (r *AuditRecorder) entryFromEvent(event ActivityEvent) *AuditEntry {
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = r.now()
	}

	entry := &AuditEntry{
		ID:        uuid.New(),
		Action:    string(event.EventType),
		Target:    event.AccountID,
		Metadata:  cloneMetadata(event.Metadata),
		CreatedAt: &occurredAt,
	}

	if actorID, err := uuid.Parse(event.Actor.ID); err == nil {
		entry.ActorID = &actorID
	} else if event.Actor.Type != "" {
		entry.Detail = event.Actor.Type
	}

	if event.FromStatus != "" || event.ToStatus != "" {
		if entry.Metadata == nil {
			entry.Metadata = map[string]any{}
		}
		entry.Metadata["from_status"] = string(event.FromStatus)
		entry.Metadata["to_status"] = string(event.ToStatus)
	}

	return entry
}

func cloneMetadata(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
