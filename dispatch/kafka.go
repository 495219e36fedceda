package dispatch

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

const (
	// TopicEmail carries EmailJob payloads.
	TopicEmail = "notifications.email"
	// TopicSMS carries SMSJob payloads.
	TopicSMS = "notifications.sms"
	// TopicActivity carries normalized activity events.
	TopicActivity = "auth.activity"
)

// KafkaConfig holds broker connection options. Username and Password are
// optional; when set the producer and consumer speak SASL/PLAIN over TLS.
type KafkaConfig struct {
	Broker   string
	Username string
	Password string
}

func (c KafkaConfig) transport() *kafka.Transport {
	if c.Username == "" {
		return nil
	}
	return &kafka.Transport{
		SASL: plain.Mechanism{Username: c.Username, Password: c.Password},
		TLS:  &tls.Config{},
	}
}

func (c KafkaConfig) dialer() *kafka.Dialer {
	if c.Username == "" {
		return nil
	}
	return &kafka.Dialer{
		Timeout:       10 * time.Second,
		DualStack:     true,
		TLS:           &tls.Config{},
		SASLMechanism: plain.Mechanism{Username: c.Username, Password: c.Password},
	}
}

// KafkaQueue publishes notification jobs to Kafka topics. A worker on the
// other side consumes and delivers them.
type KafkaQueue struct {
	email  *kafka.Writer
	sms    *kafka.Writer
	logger Logger
}

// NewKafkaQueue builds writers for the email and sms topics.
func NewKafkaQueue(cfg KafkaConfig, logger Logger) *KafkaQueue {
	return &KafkaQueue{
		email:  newWriter(cfg, TopicEmail),
		sms:    newWriter(cfg, TopicSMS),
		logger: normalizeLogger(logger),
	}
}

func newWriter(cfg KafkaConfig, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Broker),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		Transport:    cfg.transport(),
		WriteTimeout: 10 * time.Second,
	}
}

func (q *KafkaQueue) EnqueueEmail(ctx context.Context, job EmailJob) error {
	if job.QueuedAt.IsZero() {
		job.QueuedAt = time.Now().UTC()
	}
	return q.publish(ctx, q.email, job.To, job)
}

func (q *KafkaQueue) EnqueueSMS(ctx context.Context, job SMSJob) error {
	job, err := normalizeSMSJob(job)
	if err != nil {
		return err
	}
	if job.QueuedAt.IsZero() {
		job.QueuedAt = time.Now().UTC()
	}
	return q.publish(ctx, q.sms, job.To, job)
}

func (q *KafkaQueue) publish(ctx context.Context, w *kafka.Writer, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to encode job")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	}); err != nil {
		return errors.Wrap(err, errors.CategoryOperation, "failed to publish job").
			WithMetadata(map[string]any{"topic": w.Topic})
	}

	return nil
}

// Close flushes and closes the underlying writers.
func (q *KafkaQueue) Close() error {
	if err := q.email.Close(); err != nil {
		return err
	}
	return q.sms.Close()
}

// NewKafkaReader builds a consumer for one of the dispatch topics.
func NewKafkaReader(cfg KafkaConfig, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Broker},
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 10e3,
		MaxBytes: 10e6,
		Dialer:   cfg.dialer(),
	})
}
