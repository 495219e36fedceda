// Package activitymap flattens auth activity events into the generic
// actor/verb/object shape that downstream feeds and brokers consume.
package activitymap

import (
	"strings"
	"time"

	auth "github.com/girlsisave/go-auth"
)

// Metadata keys added during normalization. Lifecycle transitions carry
// their endpoints so consumers never have to re-query the account.
const (
	MetadataKeyActorType  = "actor_type"
	MetadataKeyFromStatus = "from_status"
	MetadataKeyToStatus   = "to_status"
)

const (
	defaultChannel    = "auth"
	defaultObjectType = "account"
	defaultActorID    = "system"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel          string
	objectType       string
	actorFallback    string
	objectIDResolver func(auth.ActivityEvent) string
}

// WithDefaultChannel sets the channel stamped on normalized records.
func WithDefaultChannel(channel string) Option {
	return func(o *normalizeOptions) {
		o.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType sets the object type stamped on normalized records.
func WithDefaultObjectType(objectType string) Option {
	return func(o *normalizeOptions) {
		o.objectType = strings.TrimSpace(objectType)
	}
}

// WithObjectIDResolver overrides how the object id is derived from an event.
// The default is the event's account id.
func WithObjectIDResolver(resolver func(auth.ActivityEvent) string) Option {
	return func(o *normalizeOptions) {
		o.objectIDResolver = resolver
	}
}

// WithActorFallback sets the actor id used when an event names neither an
// actor nor an account.
func WithActorFallback(actorID string) Option {
	return func(o *normalizeOptions) {
		o.actorFallback = strings.TrimSpace(actorID)
	}
}

// Normalize converts an auth.ActivityEvent into the generic shape. The input
// event is never mutated; its metadata map is copied before annotation.
func Normalize(event auth.ActivityEvent, opts ...Option) Normalized {
	o := normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	out := Normalized{
		ActorID:    resolveActor(event, o.actorFallback),
		Verb:       string(event.EventType),
		ObjectType: o.objectType,
		ObjectID:   resolveObject(event, o.objectIDResolver),
		Channel:    o.channel,
		Metadata:   annotate(event),
		OccurredAt: event.OccurredAt,
	}

	if out.OccurredAt.IsZero() {
		out.OccurredAt = time.Now().UTC()
	}

	return out
}

// resolveActor walks the fallback chain: explicit actor, then the account
// the event is about, then the configured fallback.
func resolveActor(event auth.ActivityEvent, fallback string) string {
	if id := strings.TrimSpace(event.Actor.ID); id != "" {
		return id
	}
	if id := strings.TrimSpace(event.AccountID); id != "" {
		return id
	}
	return fallback
}

func resolveObject(event auth.ActivityEvent, resolver func(auth.ActivityEvent) string) string {
	if resolver != nil {
		return strings.TrimSpace(resolver(event))
	}
	return strings.TrimSpace(event.AccountID)
}

// annotate copies the event metadata and folds the actor type and status
// transition endpoints into it. A caller-supplied actor_type wins over the
// derived one.
func annotate(event auth.ActivityEvent) map[string]any {
	var metadata map[string]any
	if len(event.Metadata) > 0 {
		metadata = make(map[string]any, len(event.Metadata)+3)
		for k, v := range event.Metadata {
			metadata[k] = v
		}
	}

	set := func(key, value string, overwrite bool) {
		if value == "" {
			return
		}
		if metadata == nil {
			metadata = map[string]any{}
		}
		if _, exists := metadata[key]; exists && !overwrite {
			return
		}
		metadata[key] = value
	}

	set(MetadataKeyActorType, strings.TrimSpace(event.Actor.Type), false)
	set(MetadataKeyFromStatus, string(event.FromStatus), true)
	set(MetadataKeyToStatus, string(event.ToStatus), true)

	return metadata
}
