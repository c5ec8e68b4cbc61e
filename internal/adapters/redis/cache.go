package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

// ClaimEvent is the advisory fast path in front of the ledger: the first
// delivery of an event id wins the SETNX, later ones see false. The ledger's
// unique constraint remains the authority; a lost key here only costs a
// database round trip.
func (c *Cache) ClaimEvent(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	res := c.client.SetNX(ctx, "evt:"+eventID, "1", ttl)
	return res.Val(), res.Err()
}

// ReleaseEvent drops the claim so the provider's redelivery is not blocked
// by the fast path after a handler failure.
func (c *Cache) ReleaseEvent(ctx context.Context, eventID string) error {
	return c.client.Del(ctx, "evt:"+eventID).Err()
}
