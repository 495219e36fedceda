package dispatch

import (
	"context"

	"github.com/goliatone/go-errors"
	"gopkg.in/gomail.v2"
)

// SMTPMailer delivers email over SMTP.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPMailer builds a mailer for the given SMTP endpoint.
func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, job EmailJob) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", job.To)
	msg.SetHeader("Subject", job.Subject)
	msg.SetBody("text/html", job.Body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return errors.Wrap(err, errors.CategoryOperation, "failed to send email").
			WithMetadata(map[string]any{
				"to":       job.To,
				"template": job.Template,
			})
	}

	return nil
}
