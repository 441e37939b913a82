package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"checkout-service/internal/models"

	"github.com/go-redis/redis/v8"
)

// Client persists in-progress checkout drafts, keyed per session. The
// draft survives failed confirmation attempts and is deleted exactly
// once, on terminal success.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewClient creates a new Redis client and verifies connectivity
func NewClient(addr, password string, db int, draftTTL time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb, ttl: draftTTL}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func draftKey(sessionID string) string {
	return fmt.Sprintf("checkout:draft:%s", sessionID)
}

// SaveDraft stores the field draft for a session with the configured TTL
func (c *Client) SaveDraft(ctx context.Context, sessionID string, draft *models.CheckoutDraft) error {
	encoded, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to encode draft: %w", err)
	}

	if err := c.rdb.Set(ctx, draftKey(sessionID), encoded, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

// LoadDraft retrieves the draft for a session; nil when none exists
func (c *Client) LoadDraft(ctx context.Context, sessionID string) (*models.CheckoutDraft, error) {
	raw, err := c.rdb.Get(ctx, draftKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}

	var draft models.CheckoutDraft
	if err := json.Unmarshal(raw, &draft); err != nil {
		return nil, fmt.Errorf("failed to decode draft: %w", err)
	}
	return &draft, nil
}

// DeleteDraft removes the draft for a session
func (c *Client) DeleteDraft(ctx context.Context, sessionID string) error {
	if err := c.rdb.Del(ctx, draftKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}
