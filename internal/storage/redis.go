package storage

import (
	"context"
	"fmt"
	"time"

	"recruit-agent-go/internal/config"
	"recruit-agent-go/internal/constants"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a key is not found in Redis.
// It wraps the underlying redis.Nil error for abstraction.
var ErrNotFound = redis.Nil

// Redis wraps the Redis client
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedisAdapter creates a new Redis client connection
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	opt := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		// 连接池设置
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		// 超时设置
		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,

		// 重试设置
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: time.Duration(cfg.MinRetryBackoffMS) * time.Millisecond,
		MaxRetryBackoff: time.Duration(cfg.MaxRetryBackoffMS) * time.Millisecond,
	}

	client := redis.NewClient(opt)

	// 验证连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("连接Redis失败 (%s): %w", cfg.Address, err)
	}

	return &Redis{
		Client: client,
		config: cfg,
	}, nil
}

// Close 关闭Redis连接
func (r *Redis) Close() error {
	return r.Client.Close()
}

// Ping 检查Redis连接
func (r *Redis) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

// ---- 已编译需求缓存 ----

// CacheCompiledRequirement 缓存编译后的需求JSON
func (r *Redis) CacheCompiledRequirement(ctx context.Context, requirementID string, compiledJSON string) error {
	key := fmt.Sprintf(constants.KeyRequirementCompiled, requirementID)
	return r.Client.Set(ctx, key, compiledJSON, constants.CompiledCacheDuration).Err()
}

// GetCompiledRequirement 读取编译需求缓存，未命中返回 ErrNotFound
func (r *Redis) GetCompiledRequirement(ctx context.Context, requirementID string) (string, error) {
	key := fmt.Sprintf(constants.KeyRequirementCompiled, requirementID)
	return r.Client.Get(ctx, key).Result()
}

// ---- 轮询快照缓存 ----

// CacheAnalysisSnapshot 缓存某需求的分析结果快照（短TTL，轮询接口的读放大保护）
func (r *Redis) CacheAnalysisSnapshot(ctx context.Context, requirementID string, snapshotJSON string) error {
	key := fmt.Sprintf(constants.KeyAnalysisSnapshot, requirementID)
	return r.Client.Set(ctx, key, snapshotJSON, constants.SnapshotCacheDuration).Err()
}

// GetAnalysisSnapshot 读取快照缓存，未命中返回 ErrNotFound
func (r *Redis) GetAnalysisSnapshot(ctx context.Context, requirementID string) (string, error) {
	key := fmt.Sprintf(constants.KeyAnalysisSnapshot, requirementID)
	return r.Client.Get(ctx, key).Result()
}

// InvalidateAnalysisSnapshot 任务进入终态后主动失效快照，缩短轮询的可见延迟
func (r *Redis) InvalidateAnalysisSnapshot(ctx context.Context, requirementID string) error {
	key := fmt.Sprintf(constants.KeyAnalysisSnapshot, requirementID)
	return r.Client.Del(ctx, key).Err()
}

// ---- 未终结任务对标记 ----

// MarkPairOpen 用SETNX标记某(画像,需求)对有未终结任务，返回是否标记成功。
// 这只是去重的快速路径：带TTL防止进程崩溃后标记泄漏，权威约束始终是MySQL唯一索引。
func (r *Redis) MarkPairOpen(ctx context.Context, profileID, requirementID, jobID string) (bool, error) {
	key := fmt.Sprintf(constants.KeyAnalysisOpenPair, profileID, requirementID)
	return r.Client.SetNX(ctx, key, jobID, constants.OpenPairMarkDuration).Result()
}

// ClearPairOpen 任务终结后清除标记
func (r *Redis) ClearPairOpen(ctx context.Context, profileID, requirementID string) error {
	key := fmt.Sprintf(constants.KeyAnalysisOpenPair, profileID, requirementID)
	return r.Client.Del(ctx, key).Err()
}
