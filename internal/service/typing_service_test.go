package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorconnect/tutorconnect-api/internal/models"
	appErrors "github.com/tutorconnect/tutorconnect-api/pkg/errors"
)

type memoryTypingStore struct {
	entries map[string]map[string]time.Time
	events  chan models.TypingEvent
}

func newMemoryTypingStore() *memoryTypingStore {
	return &memoryTypingStore{entries: map[string]map[string]time.Time{}, events: make(chan models.TypingEvent, 8)}
}

func (m *memoryTypingStore) Set(ctx context.Context, chatID, userID string, expiresAt time.Time) error {
	if m.entries[chatID] == nil {
		m.entries[chatID] = map[string]time.Time{}
	}
	m.entries[chatID][userID] = expiresAt
	return nil
}

func (m *memoryTypingStore) Clear(ctx context.Context, chatID, userID string) error {
	delete(m.entries[chatID], userID)
	return nil
}

func (m *memoryTypingStore) List(ctx context.Context, chatID string, now time.Time) ([]models.TypingUser, error) {
	var out []models.TypingUser
	for userID, expiresAt := range m.entries[chatID] {
		if expiresAt.After(now) {
			out = append(out, models.TypingUser{UserID: userID, ExpiresAt: expiresAt})
		}
	}
	return out, nil
}

func (m *memoryTypingStore) Subscribe(ctx context.Context, chatID string) (<-chan models.TypingEvent, error) {
	return m.events, nil
}

func typingFixture() (*TypingService, *memoryTypingStore, *time.Time) {
	chats := newStubChatRepo()
	chats.addChat("c1", "", "student", "teacher")
	store := newMemoryTypingStore()
	svc := NewTypingService(store, chats, 5*time.Second, nil)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	return svc, store, &now
}

func TestTypingServiceExpires(t *testing.T) {
	svc, _, now := typingFixture()
	clock := *now
	svc.now = func() time.Time { return clock }

	require.NoError(t, svc.Set(context.Background(), "student", "c1", true))

	typing, err := svc.List(context.Background(), "teacher", "c1")
	require.NoError(t, err)
	require.Len(t, typing, 1)
	assert.Equal(t, "student", typing[0].UserID)

	own, err := svc.List(context.Background(), "student", "c1")
	require.NoError(t, err)
	assert.Empty(t, own)

	clock = clock.Add(6 * time.Second)
	typing, err = svc.List(context.Background(), "teacher", "c1")
	require.NoError(t, err)
	assert.Empty(t, typing)
}

func TestTypingServiceClear(t *testing.T) {
	svc, store, _ := typingFixture()

	require.NoError(t, svc.Set(context.Background(), "student", "c1", true))
	require.NoError(t, svc.Set(context.Background(), "student", "c1", false))
	assert.Empty(t, store.entries["c1"])
}

func TestTypingServiceRequiresParticipant(t *testing.T) {
	svc, store, _ := typingFixture()

	err := svc.Set(context.Background(), "stranger", "c1", true)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, store.entries)

	_, err = svc.Subscribe(context.Background(), "stranger", "c1")
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestTypingServiceSubscribeSkipsOwnEvents(t *testing.T) {
	svc, store, _ := typingFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := svc.Subscribe(ctx, "teacher", "c1")
	require.NoError(t, err)

	store.events <- models.TypingEvent{ChatID: "c1", UserID: "teacher", Typing: true}
	store.events <- models.TypingEvent{ChatID: "c1", UserID: "student", Typing: true}

	select {
	case evt := <-events:
		assert.Equal(t, "student", evt.UserID)
	case <-time.After(time.Second):
		t.Fatal("expected typing event")
	}
}
