package mailer

import (
	"context"

	"go.uber.org/zap"
)

// LogSender writes messages to the logger instead of sending them. Used in development.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender builds a log-only sender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.Info("mail_sent",
		zap.String("to", msg.To.Email),
		zap.String("subject", msg.Subject),
		zap.Int("text_bytes", len(msg.Text)),
	)
	return nil
}
