package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ddq-agent/backend/pkg/logger"
)

// Client caches answer drafts. Keys embed the corpus epoch, so drafts
// produced against an older corpus simply stop being addressed after
// an indexing commit; InvalidateDrafts reclaims them eagerly.
type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) SetDraft(ctx context.Context, draftKey string, draft interface{}, ttl time.Duration) error {
	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}

	err = c.client.Set(ctx, fmt.Sprintf("draft:%s", draftKey), data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set draft cache: %w", err)
	}

	logger.Debug("Draft cached", zap.String("draft_key", draftKey), zap.Duration("ttl", ttl))
	return nil
}

func (c *Client) GetDraft(ctx context.Context, draftKey string, draft interface{}) (bool, error) {
	data, err := c.client.Get(ctx, fmt.Sprintf("draft:%s", draftKey)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get draft cache: %w", err)
	}

	err = json.Unmarshal(data, draft)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal draft: %w", err)
	}

	logger.Debug("Draft cache hit", zap.String("draft_key", draftKey))
	return true, nil
}

func (c *Client) InvalidateDrafts(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, "draft:*", 0).Iterator()
	for iter.Next(ctx) {
		err := c.client.Del(ctx, iter.Val()).Err()
		if err != nil {
			logger.Warn("Failed to delete cache key", zap.Error(err))
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Draft cache invalidated")
	return nil
}
