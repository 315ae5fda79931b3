package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tutorconnect/tutorconnect-api/internal/models"
	"github.com/tutorconnect/tutorconnect-api/pkg/jobs"
	"github.com/tutorconnect/tutorconnect-api/pkg/mailer"
)

const defaultReminderSubject = "Mark your session as completed"

// ReminderNotifier turns reminder jobs into completion reminder e-mails.
type ReminderNotifier struct {
	sender  mailer.Sender
	subject string
	baseURL string
	metrics *MetricsService
	logger  *zap.Logger
}

// NewReminderNotifier constructs the notifier.
func NewReminderNotifier(sender mailer.Sender, subject, baseURL string, metrics *MetricsService, logger *zap.Logger) *ReminderNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(subject) == "" {
		subject = defaultReminderSubject
	}
	return &ReminderNotifier{sender: sender, subject: subject, baseURL: strings.TrimRight(baseURL, "/"), metrics: metrics, logger: logger}
}

// Handle is a jobs.Handler delivering one reminder.
func (n *ReminderNotifier) Handle(ctx context.Context, job jobs.Job) error {
	target, ok := job.Payload.(models.ReminderTarget)
	if !ok {
		n.logger.Error("unexpected reminder payload", zap.String("job_id", job.ID), zap.String("type", fmt.Sprintf("%T", job.Payload)))
		return nil
	}
	if err := n.sender.Send(ctx, n.Compose(target)); err != nil {
		n.logger.Warn("send reminder failed",
			zap.String("appointment_id", target.AppointmentID),
			zap.Int("attempt", job.Attempt),
			zap.Error(err),
		)
		return err
	}
	if n.metrics != nil {
		n.metrics.ObserveReminder(true)
	}
	n.logger.Info("reminder sent", zap.String("appointment_id", target.AppointmentID), zap.String("recipient_id", target.RecipientID))
	return nil
}

// GiveUp records a reminder that exhausted its retries.
func (n *ReminderNotifier) GiveUp(job jobs.Job, err error) {
	if n.metrics != nil {
		n.metrics.ObserveReminder(false)
	}
	n.logger.Error("reminder dropped", zap.String("job_id", job.ID), zap.Error(err))
}

// Compose renders the reminder e-mail for target.
func (n *ReminderNotifier) Compose(target models.ReminderTarget) mailer.Message {
	when := target.DateTime.UTC().Format("Monday 02 January 2006 15:04 MST")
	link := ""
	if n.baseURL != "" {
		link = fmt.Sprintf("%s/chats/%s", n.baseURL, target.ChatID)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Hi %s,\n\n", target.RecipientName)
	fmt.Fprintf(&text, "Your %d minute session with %s on %s has ended.\n", target.Duration, target.CounterpartName, when)
	text.WriteString("Please mark it as completed so it counts towards your statistics.\n")
	if link != "" {
		fmt.Fprintf(&text, "\n%s\n", link)
	}

	var body strings.Builder
	fmt.Fprintf(&body, "<p>Hi %s,</p>", html.EscapeString(target.RecipientName))
	fmt.Fprintf(&body, "<p>Your %d minute session with <strong>%s</strong> on %s has ended.</p>",
		target.Duration, html.EscapeString(target.CounterpartName), html.EscapeString(when))
	body.WriteString("<p>Please mark it as completed so it counts towards your statistics.</p>")
	if link != "" {
		fmt.Fprintf(&body, `<p><a href="%s">Open the chat</a></p>`, html.EscapeString(link))
	}

	return mailer.Message{
		To:      mailer.Address{Name: target.RecipientName, Email: target.RecipientEmail},
		Subject: n.subject,
		Text:    text.String(),
		HTML:    body.String(),
	}
}

// reminderRetryDelay is the base back-off between delivery attempts.
const reminderRetryDelay = 5 * time.Second

// NewReminderQueue builds the job queue that delivers reminders through notifier.
func NewReminderQueue(notifier *ReminderNotifier, workers, retries int, logger *zap.Logger) *jobs.Queue {
	return jobs.NewQueue("appointment-reminders", notifier.Handle, jobs.QueueConfig{
		Workers:    workers,
		MaxRetries: retries,
		RetryDelay: reminderRetryDelay,
		Logger:     logger,
		OnGiveUp:   notifier.GiveUp,
	})
}
