package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SetNXClient is the part of *redis.Client the guard needs.
type SetNXClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// DetectionGuard drops repeated reads of the same plate at the same garage.
// Cameras report a car several times while it waits at the barrier.
type DetectionGuard struct {
	client SetNXClient
	window time.Duration
}

func NewDetectionGuard(client SetNXClient, window time.Duration) *DetectionGuard {
	return &DetectionGuard{client: client, window: window}
}

// Allow reports whether this detection is the first within the window. A nil
// guard allows everything.
func (g *DetectionGuard) Allow(ctx context.Context, garageID int, plate string) (bool, error) {
	if g == nil || g.client == nil || g.window <= 0 {
		return true, nil
	}
	key := fmt.Sprintf("detection:%d:%s", garageID, plate)
	ok, err := g.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339Nano), g.window).Result()
	if err != nil {
		return true, fmt.Errorf("DetectionGuard.Allow: %w", err)
	}
	return ok, nil
}
