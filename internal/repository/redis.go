package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/immxrtalbeast/meetchat/internal/domain"
	"github.com/immxrtalbeast/meetchat/lib/logger/sl"
	"github.com/redis/go-redis/v9"
)

const (
	historyKeyPrefix = "chat:history:"
	historyTTL       = 30 * 24 * time.Hour
)

// RedisHistoryCache keeps the hot tail of each meeting's chat history in a
// sorted set scored by message timestamp, trimmed to retain entries.
type RedisHistoryCache struct {
	client *redis.Client
	retain int
	log    *slog.Logger
}

func NewRedisHistoryCache(client *redis.Client, retain int, log *slog.Logger) *RedisHistoryCache {
	if log == nil {
		log = slog.Default()
	}
	if retain <= 0 {
		retain = 500
	}
	return &RedisHistoryCache{client: client, retain: retain, log: log}
}

func historyKey(meetingID string) string {
	return historyKeyPrefix + meetingID
}

// Add stores one message in the meeting's sorted set.
func (c *RedisHistoryCache) Add(ctx context.Context, msg *domain.ChatMessage) error {
	data, err := json.Marshal(msg.Payload())
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	key := historyKey(msg.MeetingID)
	pipe := c.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(msg.Timestamp.UnixNano()) / float64(time.Second),
		Member: data,
	})
	pipe.ZRemRangeByRank(ctx, key, 0, int64(-(c.retain + 1)))
	pipe.Expire(ctx, key, historyTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// List returns up to limit most recent messages, oldest first. An empty
// result with nil error means a cold cache, not an empty meeting.
func (c *RedisHistoryCache) List(ctx context.Context, meetingID string, limit int) ([]*domain.ChatMessage, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	raw, err := c.client.ZRange(ctx, historyKey(meetingID), start, -1).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]*domain.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var payload domain.ChatMessagePayload
		if err := json.Unmarshal([]byte(item), &payload); err != nil {
			c.log.Warn("skipping undecodable history entry", slog.String("meeting_id", meetingID), sl.Err(err))
			continue
		}
		msg, err := domain.MessageFromPayload(payload)
		if err != nil {
			c.log.Warn("skipping history entry with bad timestamp", slog.String("meeting_id", meetingID), sl.Err(err))
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// CachedMessageStore layers the Redis hot history over the durable store.
// Writes go to the database first, then warm the cache; reads prefer the
// cache and fall back to the database, re-warming on the way out.
type CachedMessageStore struct {
	durable MessageStore
	cache   *RedisHistoryCache
	log     *slog.Logger
}

func NewCachedMessageStore(durable MessageStore, cache *RedisHistoryCache, log *slog.Logger) *CachedMessageStore {
	if log == nil {
		log = slog.Default()
	}
	return &CachedMessageStore{durable: durable, cache: cache, log: log}
}

func (s *CachedMessageStore) Append(ctx context.Context, msg *domain.ChatMessage) error {
	if err := s.durable.Append(ctx, msg); err != nil {
		return err
	}
	if err := s.cache.Add(ctx, msg); err != nil {
		// The durable write already succeeded; a cold cache self-heals on
		// the next read.
		s.log.Warn("failed to cache message", slog.String("message_id", msg.ID), sl.Err(err))
	}
	return nil
}

func (s *CachedMessageStore) ListByMeeting(ctx context.Context, meetingID string, limit int) ([]*domain.ChatMessage, error) {
	messages, err := s.cache.List(ctx, meetingID, limit)
	if err != nil {
		s.log.Warn("history cache unavailable, reading durable store", slog.String("meeting_id", meetingID), sl.Err(err))
	} else if len(messages) > 0 {
		return messages, nil
	}

	messages, err = s.durable.ListByMeeting(ctx, meetingID, limit)
	if err != nil {
		return nil, err
	}

	for _, msg := range messages {
		if err := s.cache.Add(ctx, msg); err != nil {
			s.log.Warn("failed to re-warm history cache", slog.String("meeting_id", meetingID), sl.Err(err))
			break
		}
	}
	return messages, nil
}
