package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"smileslot/config"
	"smileslot/logger"
	"smileslot/model"

	"github.com/go-redis/redis/v8"
)

const batchKeyPrefix = "smileslot:batch:"

// RedisClient 是全局Redis客户端
var RedisClient *redis.Client

// ConnectRedis 初始化Redis连接
func ConnectRedis(cfg *config.Config) error {
	RedisClient = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := RedisClient.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

// CloseRedis 关闭Redis连接
func CloseRedis() error {
	if RedisClient != nil {
		return RedisClient.Close()
	}
	return nil
}

// BatchCache keeps finished batch results for later lookup by id.
type BatchCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewBatchCache wraps a redis client. A zero ttl keeps entries forever.
func NewBatchCache(client redis.Cmdable, ttl time.Duration) *BatchCache {
	return &BatchCache{client: client, ttl: ttl}
}

func batchKey(id string) string {
	return batchKeyPrefix + id
}

// Save stores a batch result under its BatchID.
func (c *BatchCache) Save(ctx context.Context, result *model.BatchResult) error {
	if result == nil || result.BatchID == "" {
		return errors.New("batch result without id")
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode batch result: %w", err)
	}
	if err := c.client.Set(ctx, batchKey(result.BatchID), data, c.ttl).Err(); err != nil {
		logger.Warn("failed to cache batch result",
			logger.String("batchId", result.BatchID),
			logger.ErrorField(err))
		return err
	}
	logger.Debug("batch result cached",
		logger.String("batchId", result.BatchID),
		logger.Int("dataSize", len(data)),
		logger.Duration("expiration", c.ttl))
	return nil
}

// Get returns nil, nil on a cache miss.
func (c *BatchCache) Get(ctx context.Context, id string) (*model.BatchResult, error) {
	data, err := c.client.Get(ctx, batchKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var result model.BatchResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode cached batch %s: %w", id, err)
	}
	return &result, nil
}

// Ping 测试Redis连接
func (c *BatchCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// FileProcessed is a no-op; results are cached once per batch.
func (c *BatchCache) FileProcessed(string, model.FileResult) {}

// BatchFinished caches the finished batch so it can be fetched by id later.
func (c *BatchCache) BatchFinished(result *model.BatchResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// Save logs its own failure
	_ = c.Save(ctx, result)
}
