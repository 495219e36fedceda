package dispatch

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

// NormalizePhoneNumber validates a raw phone number and returns it in E.164
// form. The region hint is used for numbers without a country prefix.
func NormalizePhoneNumber(raw, region string) (string, error) {
	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryValidation, "invalid phone number").
			WithMetadata(map[string]any{"region": region})
	}

	if !phonenumbers.IsValidNumber(num) {
		return "", errors.New("invalid phone number", errors.CategoryValidation).
			WithMetadata(map[string]any{"region": region})
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// normalizeSMSJob rewrites the recipient in E.164 form so every sender and
// every queued message carries one canonical address format.
func normalizeSMSJob(job SMSJob) (SMSJob, error) {
	to, err := NormalizePhoneNumber(job.To, job.Region)
	if err != nil {
		return job, err
	}
	job.To = to
	return job, nil
}

// LogSMSSender writes messages to the logger instead of a carrier. It is the
// default sender until a real gateway is configured.
type LogSMSSender struct {
	Logger Logger
}

func (s LogSMSSender) Send(_ context.Context, job SMSJob) error {
	if s.Logger != nil {
		s.Logger.Info("sms to %s: %s", job.To, job.Body)
	}
	return nil
}
