package dispatch

import (
	"context"
	"encoding/json"
	"time"

	auth "github.com/girlsisave/go-auth"
	"github.com/girlsisave/go-auth/activitymap"
	"github.com/goliatone/go-errors"
	"github.com/segmentio/kafka-go"
)

// ActivityPublisher forwards normalized activity events to Kafka. It
// satisfies the auth package's ActivitySink interface so it can be chained
// behind the database recorder.
type ActivityPublisher struct {
	writer *kafka.Writer
	opts   []activitymap.Option
	logger Logger
}

// NewActivityPublisher builds a publisher for the activity topic.
func NewActivityPublisher(cfg KafkaConfig, logger Logger, opts ...activitymap.Option) *ActivityPublisher {
	return &ActivityPublisher{
		writer: newWriter(cfg, TopicActivity),
		opts:   opts,
		logger: normalizeLogger(logger),
	}
}

func (p *ActivityPublisher) Record(ctx context.Context, event auth.ActivityEvent) error {
	normalized := activitymap.Normalize(event, p.opts...)

	value, err := json.Marshal(normalized)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to encode activity event")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(normalized.ObjectID),
		Value: value,
		Time:  normalized.OccurredAt,
	}); err != nil {
		return errors.Wrap(err, errors.CategoryOperation, "failed to publish activity event").
			WithMetadata(map[string]any{"verb": normalized.Verb})
	}

	return nil
}

// Close flushes the underlying writer.
func (p *ActivityPublisher) Close() error {
	return p.writer.Close()
}
