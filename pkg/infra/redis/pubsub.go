package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client Redis 客户端封装：事件镜像发布 + 分析数据源令牌共享
type Client struct {
	client *redis.Client
}

// NewClient 创建 Redis 客户端并测试连接
func NewClient(ctx context.Context, addr, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// 测试连接
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{client: client}, nil
}

// PublishJSON 序列化后发布到频道
func (c *Client) PublishJSON(ctx context.Context, channel string, v interface{}) error {
	msgJSON, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := c.client.Publish(ctx, channel, msgJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Ping 连通性检查（就绪检查）
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close 关闭 Redis 连接
func (c *Client) Close() error {
	return c.client.Close()
}

// TokenStore 基于 Redis 的令牌存储，多个进程共享同一个分析数据源登录会话
type TokenStore struct {
	client *Client
	key    string
	ttl    time.Duration
}

// NewTokenStore 创建令牌存储；ttl 为 0 表示不过期
func NewTokenStore(c *Client, key string, ttl time.Duration) *TokenStore {
	return &TokenStore{client: c, key: key, ttl: ttl}
}

// Get 读取令牌，不存在时返回空串
func (s *TokenStore) Get(ctx context.Context) (string, error) {
	token, err := s.client.client.Get(ctx, s.key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get token: %w", err)
	}
	return token, nil
}

// Set 写入令牌
func (s *TokenStore) Set(ctx context.Context, token string) error {
	if err := s.client.client.Set(ctx, s.key, token, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set token: %w", err)
	}
	return nil
}

// Invalidate 仅当存储的仍是该令牌时删除，避免误删其他进程刚换的新令牌
func (s *TokenStore) Invalidate(ctx context.Context, token string) error {
	current, err := s.Get(ctx)
	if err != nil {
		return err
	}
	if current != token {
		return nil
	}
	if err := s.client.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}
