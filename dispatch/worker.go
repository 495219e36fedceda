package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sethvargo/go-retry"
)

const (
	workerMaxRetries = 5
	workerBaseDelay  = 2 * time.Second
	workerCapDelay   = 10 * time.Minute
)

// Worker drains the dispatch topics and delivers jobs. Delivery is retried
// with capped exponential backoff; a job that exhausts its retries is logged
// and dropped so one poisoned message cannot wedge the partition.
type Worker struct {
	emails *kafka.Reader
	texts  *kafka.Reader
	mailer Mailer
	sms    SMSSender
	logger Logger

	baseDelay  time.Duration
	capDelay   time.Duration
	maxRetries uint64
}

// NewWorker builds a worker for the email and sms topics.
func NewWorker(cfg KafkaConfig, groupID string, mailer Mailer, sms SMSSender, logger Logger) *Worker {
	return &Worker{
		emails:     NewKafkaReader(cfg, TopicEmail, groupID),
		texts:      NewKafkaReader(cfg, TopicSMS, groupID),
		mailer:     mailer,
		sms:        sms,
		logger:     normalizeLogger(logger),
		baseDelay:  workerBaseDelay,
		capDelay:   workerCapDelay,
		maxRetries: workerMaxRetries,
	}
}

// Run consumes both topics until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	errc := make(chan error, 2)

	go func() { errc <- w.consumeEmails(ctx) }()
	go func() { errc <- w.consumeTexts(ctx) }()

	err := <-errc

	w.emails.Close()
	w.texts.Close()
	<-errc

	return err
}

func (w *Worker) consumeEmails(ctx context.Context) error {
	for {
		msg, err := w.emails.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		var job EmailJob
		if err := json.Unmarshal(msg.Value, &job); err != nil {
			w.logger.Error("dropping malformed email job: %v", err)
			continue
		}

		if err := w.deliver(ctx, func(ctx context.Context) error {
			return w.mailer.Send(ctx, job)
		}); err != nil {
			w.logger.Error("email to %s failed after %d attempts: %v", job.To, w.maxRetries+1, err)
		}
	}
}

func (w *Worker) consumeTexts(ctx context.Context) error {
	for {
		msg, err := w.texts.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		var job SMSJob
		if err := json.Unmarshal(msg.Value, &job); err != nil {
			w.logger.Error("dropping malformed sms job: %v", err)
			continue
		}

		if err := w.deliver(ctx, func(ctx context.Context) error {
			return w.sms.Send(ctx, job)
		}); err != nil {
			w.logger.Error("sms to %s failed after %d attempts: %v", job.To, w.maxRetries+1, err)
		}
	}
}

func (w *Worker) deliver(ctx context.Context, send func(context.Context) error) error {
	backoff := retry.NewExponential(w.baseDelay)
	backoff = retry.WithCappedDuration(w.capDelay, backoff)
	backoff = retry.WithMaxRetries(w.maxRetries, backoff)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := send(ctx); err != nil {
			w.logger.Warn("delivery attempt failed, will retry: %v", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}
