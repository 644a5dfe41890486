package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultEventTTL = 72 * time.Hour
	eventKeyPrefix  = "healing:stripe:event:"
)

// EventDeduper records processed provider event ids with a TTL.
type EventDeduper struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewEventDeduper(client redis.Cmdable, ttl time.Duration) *EventDeduper {
	if ttl <= 0 {
		ttl = DefaultEventTTL
	}
	return &EventDeduper{client: client, ttl: ttl}
}

func (d *EventDeduper) key(eventID string) string {
	return eventKeyPrefix + eventID
}

// Seen reports whether eventID was marked within the TTL.
func (d *EventDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Mark records eventID as processed.
func (d *EventDeduper) Mark(ctx context.Context, eventID string) error {
	return d.client.Set(ctx, d.key(eventID), time.Now().UTC().Format(time.RFC3339), d.ttl).Err()
}
