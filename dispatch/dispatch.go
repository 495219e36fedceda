// Package dispatch delivers lifecycle notifications out of band: rendered
// emails over SMTP, SMS over a pluggable sender, and normalized activity
// events to Kafka. Producers enqueue jobs and return; the worker owns
// delivery and retries.
package dispatch

import (
	"context"
	"time"
)

// EmailJob is a rendered email ready for delivery.
type EmailJob struct {
	To       string         `json:"to"`
	Name     string         `json:"name,omitempty"`
	Subject  string         `json:"subject"`
	Body     string         `json:"body"`
	Template string         `json:"template,omitempty"`
	Context  map[string]any `json:"context,omitempty"`
	QueuedAt time.Time      `json:"queued_at"`
}

// SMSJob is a text notification. To is normalized to E.164 at enqueue time;
// Region is the hint for numbers without a country prefix.
type SMSJob struct {
	To       string    `json:"to"`
	Body     string    `json:"body"`
	Region   string    `json:"region,omitempty"`
	QueuedAt time.Time `json:"queued_at"`
}

// Queue accepts notification jobs for asynchronous delivery.
type Queue interface {
	EnqueueEmail(ctx context.Context, job EmailJob) error
	EnqueueSMS(ctx context.Context, job SMSJob) error
}

// Mailer delivers a single email.
type Mailer interface {
	Send(ctx context.Context, job EmailJob) error
}

// SMSSender delivers a single text message.
type SMSSender interface {
	Send(ctx context.Context, job SMSJob) error
}

// SyncQueue delivers jobs inline on the caller's goroutine. It exists for
// tests and single-process deployments where a broker is overkill.
type SyncQueue struct {
	mailer Mailer
	sms    SMSSender
}

// NewSyncQueue builds an inline queue. Either delivery arm may be nil, in
// which case jobs for that arm are dropped.
func NewSyncQueue(mailer Mailer, sms SMSSender) *SyncQueue {
	return &SyncQueue{mailer: mailer, sms: sms}
}

func (q *SyncQueue) EnqueueEmail(ctx context.Context, job EmailJob) error {
	if q.mailer == nil {
		return nil
	}
	return q.mailer.Send(ctx, job)
}

func (q *SyncQueue) EnqueueSMS(ctx context.Context, job SMSJob) error {
	if q.sms == nil {
		return nil
	}
	job, err := normalizeSMSJob(job)
	if err != nil {
		return err
	}
	return q.sms.Send(ctx, job)
}
