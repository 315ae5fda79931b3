package repository

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tutorconnect/tutorconnect-api/internal/models"
)

// TypingRepository keeps per-chat typing state in Redis hashes keyed by user with an expiry
// timestamp as value, and fans changes out over a per-chat channel.
type TypingRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewTypingRepository constructs the repository.
func NewTypingRepository(client *redis.Client, logger *zap.Logger) *TypingRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TypingRepository{client: client, logger: logger}
}

func typingKey(chatID string) string     { return "typing:" + chatID }
func typingChannel(chatID string) string { return "chat:" + chatID + ":typing" }

// Set marks userID as typing in chatID until expiresAt.
func (r *TypingRepository) Set(ctx context.Context, chatID, userID string, expiresAt time.Time) error {
	key := typingKey(chatID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, userID, strconv.FormatInt(expiresAt.UnixMilli(), 10))
	pipe.PExpireAt(ctx, key, expiresAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set typing %s: %w", key, err)
	}
	r.publish(ctx, models.TypingEvent{ChatID: chatID, UserID: userID, Typing: true})
	return nil
}

// Clear removes the typing entry of userID.
func (r *TypingRepository) Clear(ctx context.Context, chatID, userID string) error {
	key := typingKey(chatID)
	if err := r.client.HDel(ctx, key, userID).Err(); err != nil {
		return fmt.Errorf("redis clear typing %s: %w", key, err)
	}
	r.publish(ctx, models.TypingEvent{ChatID: chatID, UserID: userID, Typing: false})
	return nil
}

// List returns users whose typing entry has not expired at now. Expired entries are pruned.
func (r *TypingRepository) List(ctx context.Context, chatID string, now time.Time) ([]models.TypingUser, error) {
	key := typingKey(chatID)
	raw, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list typing %s: %w", key, err)
	}

	live, expired := partitionTypers(raw, now)
	if len(expired) > 0 {
		if err := r.client.HDel(ctx, key, expired...).Err(); err != nil {
			r.logger.Warn("prune typing entries failed", zap.String("key", key), zap.Error(err))
		}
	}
	return live, nil
}

// Subscribe streams typing changes for chatID until ctx is done.
func (r *TypingRepository) Subscribe(ctx context.Context, chatID string) (<-chan models.TypingEvent, error) {
	sub := r.client.Subscribe(ctx, typingChannel(chatID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", typingChannel(chatID), err)
	}

	out := make(chan models.TypingEvent)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var evt models.TypingEvent
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					r.logger.Warn("decode typing event failed", zap.Error(err))
					continue
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (r *TypingRepository) publish(ctx context.Context, evt models.TypingEvent) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if err := r.client.Publish(ctx, typingChannel(evt.ChatID), payload).Err(); err != nil {
		r.logger.Warn("publish typing event failed", zap.String("chat_id", evt.ChatID), zap.Error(err))
	}
}

// partitionTypers splits a typing hash into live users, sorted by id, and expired or malformed fields.
func partitionTypers(raw map[string]string, now time.Time) ([]models.TypingUser, []string) {
	live := make([]models.TypingUser, 0, len(raw))
	var expired []string
	nowMs := now.UnixMilli()
	for userID, value := range raw {
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil || ms <= nowMs {
			expired = append(expired, userID)
			continue
		}
		live = append(live, models.TypingUser{UserID: userID, ExpiresAt: time.UnixMilli(ms).UTC()})
	}
	sort.Slice(live, func(i, j int) bool { return live[i].UserID < live[j].UserID })
	return live, expired
}
