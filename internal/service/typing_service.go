package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tutorconnect/tutorconnect-api/internal/models"
	appErrors "github.com/tutorconnect/tutorconnect-api/pkg/errors"
)

const defaultTypingTTL = 5 * time.Second

type typingStore interface {
	Set(ctx context.Context, chatID, userID string, expiresAt time.Time) error
	Clear(ctx context.Context, chatID, userID string) error
	List(ctx context.Context, chatID string, now time.Time) ([]models.TypingUser, error)
	Subscribe(ctx context.Context, chatID string) (<-chan models.TypingEvent, error)
}

// TypingService tracks who is currently typing in a chat. Entries expire after ttl unless
// refreshed.
type TypingService struct {
	store  typingStore
	chats  participantChecker
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewTypingService constructs the service. A nil store disables typing indicators.
func NewTypingService(store typingStore, chats participantChecker, ttl time.Duration, logger *zap.Logger) *TypingService {
	if ttl <= 0 {
		ttl = defaultTypingTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TypingService{store: store, chats: chats, ttl: ttl, logger: logger, now: time.Now}
}

// Set records or clears the caller's typing state.
func (s *TypingService) Set(ctx context.Context, userID, chatID string, typing bool) error {
	if err := ensureParticipant(ctx, s.chats, chatID, userID); err != nil {
		return err
	}
	if s.store == nil {
		return nil
	}
	var err error
	if typing {
		err = s.store.Set(ctx, chatID, userID, s.now().Add(s.ttl))
	} else {
		err = s.store.Clear(ctx, chatID, userID)
	}
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update typing state")
	}
	return nil
}

// List returns the other participants currently typing.
func (s *TypingService) List(ctx context.Context, userID, chatID string) ([]models.TypingUser, error) {
	if err := ensureParticipant(ctx, s.chats, chatID, userID); err != nil {
		return nil, err
	}
	out := []models.TypingUser{}
	if s.store == nil {
		return out, nil
	}
	users, err := s.store.List(ctx, chatID, s.now())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load typing state")
	}
	for _, u := range users {
		if u.UserID != userID {
			out = append(out, u)
		}
	}
	return out, nil
}

// Subscribe streams typing changes of other participants until ctx is done.
func (s *TypingService) Subscribe(ctx context.Context, userID, chatID string) (<-chan models.TypingEvent, error) {
	if err := ensureParticipant(ctx, s.chats, chatID, userID); err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "typing stream requires redis")
	}
	events, err := s.store.Subscribe(ctx, chatID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to subscribe to typing state")
	}
	out := make(chan models.TypingEvent)
	go func() {
		defer close(out)
		for evt := range events {
			if evt.UserID == userID {
				continue
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
