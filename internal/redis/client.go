// Package redis mirrors live presence and room membership into Redis sets
// for operational visibility. The mirror is write-only and best-effort:
// the coordinator never reads it back, and a nil *Mirror disables it
// entirely so tests and REDIS_ENABLED=false deployments need no instance.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/haven-health/consult-signaling/config"
)

const mirrorTTL = 24 * time.Hour

type Mirror struct {
	client *redis.Client
	log    zerolog.Logger
}

// Connect builds a Mirror and verifies the connection with a ping.
func Connect(cfg config.RedisConfig, log zerolog.Logger) (*Mirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Mirror{client: client, log: log.With().Str("component", "redis").Logger()}, nil
}

func (m *Mirror) Close() error {
	if m == nil {
		return nil
	}
	return m.client.Close()
}

// AddMember records identity in the room's member set.
func (m *Mirror) AddMember(roomID, identity string) {
	if m == nil {
		return
	}
	ctx := context.Background()
	key := "room:" + roomID + ":members"
	if err := m.client.SAdd(ctx, key, identity).Err(); err != nil {
		m.log.Warn().Str("room", roomID).Err(err).Msg("mirror add failed")
		return
	}
	m.client.Expire(ctx, key, mirrorTTL)
}

// DropRoom removes the room's member set when the room closes.
func (m *Mirror) DropRoom(roomID string) {
	if m == nil {
		return
	}
	if err := m.client.Del(context.Background(), "room:"+roomID+":members").Err(); err != nil {
		m.log.Warn().Str("room", roomID).Err(err).Msg("mirror drop failed")
	}
}

// SetOnline records identity in the online-presence set.
func (m *Mirror) SetOnline(identity string) {
	if m == nil {
		return
	}
	ctx := context.Background()
	if err := m.client.SAdd(ctx, "presence:online", identity).Err(); err != nil {
		m.log.Warn().Str("identity", identity).Err(err).Msg("mirror presence failed")
		return
	}
	m.client.Expire(ctx, "presence:online", mirrorTTL)
}

// SetOffline removes identity from the online-presence set.
func (m *Mirror) SetOffline(identity string) {
	if m == nil {
		return
	}
	if err := m.client.SRem(context.Background(), "presence:online", identity).Err(); err != nil {
		m.log.Warn().Str("identity", identity).Err(err).Msg("mirror presence failed")
	}
}
