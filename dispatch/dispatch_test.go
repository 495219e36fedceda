package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingMailer struct {
	jobs []EmailJob
	err  error
}

func (m *capturingMailer) Send(_ context.Context, job EmailJob) error {
	m.jobs = append(m.jobs, job)
	return m.err
}

type capturingSMSSender struct {
	jobs []SMSJob
}

func (s *capturingSMSSender) Send(_ context.Context, job SMSJob) error {
	s.jobs = append(s.jobs, job)
	return nil
}

type quietLogger struct{}

func (quietLogger) Debug(string, ...any) {}
func (quietLogger) Info(string, ...any)  {}
func (quietLogger) Warn(string, ...any)  {}
func (quietLogger) Error(string, ...any) {}

func TestRendererSplitsSubjectLine(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)

	subject, body, err := renderer.Render(templateVerification, map[string]any{
		"name":      "Jane",
		"token":     "verification-token-123",
		"ttl_hours": 48,
	})
	require.NoError(t, err)

	assert.Equal(t, "Verify your email address", subject)
	assert.Contains(t, body, "verification-token-123")
	assert.Contains(t, body, "48 hours")
	assert.NotContains(t, body, subjectPrefix)
}

func TestRendererRejectsUnknownTemplate(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)

	_, _, err = renderer.Render("no-such-template", nil)
	assert.Error(t, err)
}

func TestSyncQueueDeliversInline(t *testing.T) {
	mailer := &capturingMailer{}
	sms := &capturingSMSSender{}
	queue := NewSyncQueue(mailer, sms)

	ctx := context.Background()

	require.NoError(t, queue.EnqueueEmail(ctx, EmailJob{To: "jane@example.com", Subject: "hi"}))
	require.Len(t, mailer.jobs, 1)
	assert.Equal(t, "jane@example.com", mailer.jobs[0].To)

	require.NoError(t, queue.EnqueueSMS(ctx, SMSJob{To: "415-555-2671", Region: "US", Body: "hi"}))
	require.Len(t, sms.jobs, 1)
	assert.Equal(t, "+14155552671", sms.jobs[0].To)
}

func TestSyncQueueDropsJobsWithoutDeliveryArm(t *testing.T) {
	queue := NewSyncQueue(nil, nil)

	assert.NoError(t, queue.EnqueueEmail(context.Background(), EmailJob{To: "jane@example.com"}))
	assert.NoError(t, queue.EnqueueSMS(context.Background(), SMSJob{To: "garbage"}))
}

func TestEnqueueSMSRejectsInvalidNumber(t *testing.T) {
	sms := &capturingSMSSender{}
	queue := NewSyncQueue(nil, sms)

	err := queue.EnqueueSMS(context.Background(), SMSJob{To: "not-a-number", Body: "hi"})
	require.Error(t, err)
	assert.Empty(t, sms.jobs)
}

func TestQueueNotifierRendersAndEnqueues(t *testing.T) {
	mailer := &capturingMailer{}
	notifier, err := NewQueueNotifier(NewSyncQueue(mailer, nil))
	require.NoError(t, err)

	require.NoError(t, notifier.SendVerificationEmail(context.Background(), "jane@example.com", "Jane", "tok-1"))

	require.Len(t, mailer.jobs, 1)
	job := mailer.jobs[0]
	assert.Equal(t, "jane@example.com", job.To)
	assert.Equal(t, "Verify your email address", job.Subject)
	assert.Contains(t, job.Body, "tok-1")
	assert.Equal(t, templateVerification, job.Template)
	assert.False(t, job.QueuedAt.IsZero())

	require.NoError(t, notifier.SendPasswordResetEmail(context.Background(), "jane@example.com", "Jane", "tok-2"))
	require.Len(t, mailer.jobs, 2)
	assert.Equal(t, "Password reset requested", mailer.jobs[1].Subject)
	assert.Contains(t, mailer.jobs[1].Body, "tok-2")
}

func testWorker(maxRetries uint64) *Worker {
	return &Worker{
		logger:     quietLogger{},
		baseDelay:  time.Millisecond,
		capDelay:   5 * time.Millisecond,
		maxRetries: maxRetries,
	}
}

func TestWorkerDeliverRetriesUntilSuccess(t *testing.T) {
	w := testWorker(5)

	attempts := 0
	err := w.deliver(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("smtp timeout")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWorkerDeliverGivesUpAfterBoundedAttempts(t *testing.T) {
	w := testWorker(2)

	attempts := 0
	err := w.deliver(context.Background(), func(context.Context) error {
		attempts++
		return errors.New("carrier down")
	})

	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "carrier down"))
	assert.Equal(t, 3, attempts, "initial attempt plus the bounded retries")
}
