package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorconnect/tutorconnect-api/internal/models"
	"github.com/tutorconnect/tutorconnect-api/pkg/jobs"
	"github.com/tutorconnect/tutorconnect-api/pkg/mailer"
)

type stubSender struct {
	sent []mailer.Message
	err  error
}

func (s *stubSender) Send(ctx context.Context, msg mailer.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func reminderTarget() models.ReminderTarget {
	return models.ReminderTarget{
		AppointmentID:   "a1",
		ChatID:          "c1",
		DateTime:        time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
		Duration:        60,
		RecipientID:     "teacher",
		RecipientEmail:  "ola@example.com",
		RecipientName:   "Ola",
		CounterpartName: "Kari <script>",
		Notify:          true,
	}
}

func TestReminderNotifierCompose(t *testing.T) {
	n := NewReminderNotifier(&stubSender{}, "", "https://tutorconnect.example/", nil, nil)

	msg := n.Compose(reminderTarget())
	assert.Equal(t, defaultReminderSubject, msg.Subject)
	assert.Equal(t, "ola@example.com", msg.To.Email)
	assert.Contains(t, msg.Text, "60 minute session with Kari <script>")
	assert.Contains(t, msg.Text, "https://tutorconnect.example/chats/c1")
	assert.Contains(t, msg.HTML, "Kari &lt;script&gt;")
	assert.NotContains(t, msg.HTML, "<script>")
}

func TestReminderNotifierHandle(t *testing.T) {
	sender := &stubSender{}
	metrics := NewMetricsService()
	n := NewReminderNotifier(sender, "Session finished", "", metrics, nil)

	require.NoError(t, n.Handle(context.Background(), jobs.Job{ID: "a1:teacher", Payload: reminderTarget()}))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Session finished", sender.sent[0].Subject)
	assert.Equal(t, uint64(1), metrics.Snapshot().RemindersSent)

	sender.err = errors.New("smtp down")
	assert.Error(t, n.Handle(context.Background(), jobs.Job{ID: "a1:teacher", Payload: reminderTarget()}))

	n.GiveUp(jobs.Job{ID: "a1:teacher"}, sender.err)
	assert.Equal(t, uint64(1), metrics.Snapshot().RemindersFailed)
}

func TestReminderNotifierIgnoresUnknownPayload(t *testing.T) {
	sender := &stubSender{}
	n := NewReminderNotifier(sender, "", "", nil, nil)

	assert.NoError(t, n.Handle(context.Background(), jobs.Job{ID: "x", Payload: "nope"}))
	assert.Empty(t, sender.sent)
}
