package auth

import "context"

// Notifier delivers lifecycle notifications. Implementations are expected to
// enqueue work and return quickly; delivery failures must never fail the
// operation that triggered the notification.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, email, name, token string) error
	SendPasswordResetEmail(ctx context.Context, email, name, token string) error
}

type noopNotifier struct{}

func (noopNotifier) SendVerificationEmail(context.Context, string, string, string) error {
	return nil
}

func (noopNotifier) SendPasswordResetEmail(context.Context, string, string, string) error {
	return nil
}

func normalizeNotifier(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}
