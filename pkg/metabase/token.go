package metabase

import (
	"context"
	"sync"
)

// TokenStore 登录令牌存储，可在多个进程间共享（Redis）或仅进程内（内存）
type TokenStore interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, token string) error
	Invalidate(ctx context.Context, token string) error
}

// MemoryTokenStore 进程内令牌存储
type MemoryTokenStore struct {
	mu    sync.Mutex
	token string
}

// NewMemoryTokenStore 创建内存令牌存储
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

// Get 读取令牌
func (s *MemoryTokenStore) Get(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

// Set 写入令牌
func (s *MemoryTokenStore) Set(_ context.Context, token string) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// Invalidate 仅当当前令牌与给定值一致时清除
func (s *MemoryTokenStore) Invalidate(_ context.Context, token string) error {
	s.mu.Lock()
	if s.token == token {
		s.token = ""
	}
	s.mu.Unlock()
	return nil
}
