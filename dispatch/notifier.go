package dispatch

import (
	"context"
	"time"
)

const (
	templateVerification  = "verification_email"
	templatePasswordReset = "password_reset_email"
)

// QueueNotifier renders lifecycle emails and hands them to a Queue. It
// satisfies the auth package's Notifier interface.
type QueueNotifier struct {
	queue    Queue
	renderer *Renderer
	logger   Logger

	// TTLs only feed the email copy, expiry is enforced server side.
	verificationTTL time.Duration
	resetTTL        time.Duration
}

// NotifierOption customizes the notifier.
type NotifierOption func(*QueueNotifier)

// WithNotifierLogger sets the logger.
func WithNotifierLogger(logger Logger) NotifierOption {
	return func(n *QueueNotifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithVerificationTTL overrides the verification window shown in the email.
func WithVerificationTTL(ttl time.Duration) NotifierOption {
	return func(n *QueueNotifier) {
		if ttl > 0 {
			n.verificationTTL = ttl
		}
	}
}

// WithResetTTL overrides the reset window shown in the email.
func WithResetTTL(ttl time.Duration) NotifierOption {
	return func(n *QueueNotifier) {
		if ttl > 0 {
			n.resetTTL = ttl
		}
	}
}

// NewQueueNotifier builds a notifier that enqueues rendered emails.
func NewQueueNotifier(queue Queue, opts ...NotifierOption) (*QueueNotifier, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}

	n := &QueueNotifier{
		queue:           queue,
		renderer:        renderer,
		logger:          defLogger{},
		verificationTTL: 48 * time.Hour,
		resetTTL:        2 * time.Hour,
	}

	for _, opt := range opts {
		opt(n)
	}

	return n, nil
}

// SendVerificationEmail renders and enqueues the email verification message.
func (n *QueueNotifier) SendVerificationEmail(ctx context.Context, email, name, token string) error {
	return n.send(ctx, templateVerification, email, name, token, n.verificationTTL)
}

// SendPasswordResetEmail renders and enqueues the password reset message.
func (n *QueueNotifier) SendPasswordResetEmail(ctx context.Context, email, name, token string) error {
	return n.send(ctx, templatePasswordReset, email, name, token, n.resetTTL)
}

func (n *QueueNotifier) send(ctx context.Context, template, email, name, token string, ttl time.Duration) error {
	binding := map[string]any{
		"name":      name,
		"token":     token,
		"ttl_hours": int(ttl.Hours()),
	}

	subject, body, err := n.renderer.Render(template, binding)
	if err != nil {
		return err
	}

	return n.queue.EnqueueEmail(ctx, EmailJob{
		To:       email,
		Name:     name,
		Subject:  subject,
		Body:     body,
		Template: template,
		Context:  binding,
		QueuedAt: time.Now().UTC(),
	})
}
