package mailer

import (
	"context"
	"fmt"

	"github.com/tutorconnect/tutorconnect-api/pkg/config"
	"go.uber.org/zap"
)

// Address is a named e-mail recipient.
type Address struct {
	Name  string
	Email string
}

// Message is a single outgoing e-mail.
type Message struct {
	To      Address
	Subject string
	Text    string
	HTML    string
}

// Sender delivers e-mail messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// New returns the transport selected by MAIL_DRIVER.
func New(cfg config.MailConfig, logger *zap.Logger) (Sender, error) {
	switch cfg.Driver {
	case "", "log":
		return NewLogSender(logger), nil
	case "sendgrid":
		if cfg.SendGridAPIKey == "" {
			return nil, fmt.Errorf("SENDGRID_API_KEY is required for the sendgrid mail driver")
		}
		return NewSendGridSender(cfg.SendGridAPIKey, cfg.FromName, cfg.FromEmail), nil
	default:
		return nil, fmt.Errorf("unknown mail driver %q", cfg.Driver)
	}
}
