package lmstfy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bitleak/lmstfy/client"
)

// 投递重试次数
const defaultTries = 3

// Client Lmstfy 客户端封装，向下游通知队列投递告警事件
type Client struct {
	cli       *client.LmstfyClient
	namespace string
	queue     string
	ttl       time.Duration
}

// NewClient 创建 Lmstfy 客户端
func NewClient(host string, port int, namespace, token, queue string, ttl time.Duration) (*Client, error) {
	if queue == "" {
		return nil, fmt.Errorf("lmstfy queue is required")
	}
	cli := client.NewLmstfyClient(host, port, namespace, token)
	return &Client{
		cli:       cli,
		namespace: namespace,
		queue:     queue,
		ttl:       ttl,
	}, nil
}

// Queue 目标队列名
func (c *Client) Queue() string {
	return c.queue
}

// Publish 发布原始消息
func (c *Client) Publish(queue string, data []byte, ttl, delay uint32) (string, error) {
	jobID, err := c.cli.Publish(queue, data, ttl, defaultTries, delay)
	if err != nil {
		return "", fmt.Errorf("lmstfy publish failed: %w", err)
	}
	return jobID, nil
}

// PublishJSON 序列化后投递到默认队列
func (c *Client) PublishJSON(_ context.Context, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	_, err = c.Publish(c.queue, data, uint32(c.ttl.Seconds()), 0)
	return err
}
