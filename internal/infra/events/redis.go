package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"steward/internal/domain"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher emits action events on a redis channel per event kind
// (action.create, action.update, action.execute). Subscribers perform the
// actual business effect; delivery confirmation is out of scope here.
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

func NewRedisPublisher(addr, password string, db int, channelPrefix string) (*RedisPublisher, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisPublisher{client: client, prefix: channelPrefix}, nil
}

type eventPayload struct {
	Kind       string         `json:"kind"`
	AuditID    string         `json:"audit_id"`
	UserID     string         `json:"user_id"`
	Collection string         `json:"collection,omitempty"`
	RecordID   string         `json:"record_id,omitempty"`
	Name       string         `json:"name,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func (p *RedisPublisher) Publish(ctx context.Context, event domain.ActionEvent) error {
	raw, err := json.Marshal(eventPayload{
		Kind:       string(event.Kind),
		AuditID:    event.AuditID,
		UserID:     event.UserID,
		Collection: event.Collection,
		RecordID:   event.RecordID,
		Name:       event.Name,
		Payload:    event.Payload,
		OccurredAt: event.OccurredAt.UTC(),
	})
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.prefix+string(event.Kind), raw).Err()
}
