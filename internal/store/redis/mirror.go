package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/shelfx/shelfx-chat/internal/config"
)

const keyPrefix = "shelfx:"

// presence key: shelfx:presence:<user>
// Value is the time the user came online; TTL bounds how long a crashed node can
// leave a user looking online.
func presenceKey(userID string) string { return keyPrefix + "presence:" + userID }

// unread key: shelfx:unread:<user>, a hash of conversation id -> count.
func unreadKey(userID string) string { return keyPrefix + "unread:" + userID }

// Mirror publishes presence and unread counts to Redis for the marketplace's REST
// side. Redis is never read back by the chat core.
type Mirror struct {
	rdb *goredis.Client
	ttl time.Duration
	log *zerolog.Logger
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg config.RedisConfig, logger *zerolog.Logger) (*Mirror, error) {
	rdb := goredis.NewClient(&goredis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	ttl := cfg.PresenceTTL
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	return &Mirror{rdb: rdb, ttl: ttl, log: logger}, nil
}

// SetPresence marks the user online with a TTL, or deletes the key.
func (m *Mirror) SetPresence(ctx context.Context, userID string, online bool) error {
	if !online {
		return m.rdb.Del(ctx, presenceKey(userID)).Err()
	}
	return m.rdb.Set(ctx, presenceKey(userID), time.Now().Unix(), m.ttl).Err()
}

// SetUnread stores one conversation's count.
func (m *Mirror) SetUnread(ctx context.Context, userID, conversationID string, count int) error {
	return m.rdb.HSet(ctx, unreadKey(userID), conversationID, count).Err()
}

// ReplaceUnread swaps the user's whole hash atomically.
func (m *Mirror) ReplaceUnread(ctx context.Context, userID string, counts map[string]int) error {
	key := unreadKey(userID)
	_, err := m.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(counts) > 0 {
			pipe.HSet(ctx, key, hashValues(counts))
		}
		return nil
	})
	return err
}

// Unread reads the user's mirrored counts.
func (m *Mirror) Unread(ctx context.Context, userID string) (map[string]int, error) {
	raw, err := m.rdb.HGetAll(ctx, unreadKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	return parseCounts(raw), nil
}

// KeepAlive renews the presence TTL of every user returned by online until ctx is
// cancelled.
func (m *Mirror) KeepAlive(ctx context.Context, online func() []string) {
	ticker := time.NewTicker(m.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			users := online()
			if len(users) == 0 {
				continue
			}
			_, err := m.rdb.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
				for _, userID := range users {
					pipe.Expire(ctx, presenceKey(userID), m.ttl)
				}
				return nil
			})
			if err != nil {
				m.log.Warn().Err(err).Int("users", len(users)).Msg("refresh presence ttl")
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close releases the client.
func (m *Mirror) Close() error {
	return m.rdb.Close()
}

func hashValues(counts map[string]int) map[string]any {
	out := make(map[string]any, len(counts))
	for id, n := range counts {
		out[id] = n
	}
	return out
}

func parseCounts(raw map[string]string) map[string]int {
	out := make(map[string]int, len(raw))
	for id, v := range raw {
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		out[id] = n
	}
	return out
}
