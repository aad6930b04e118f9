package logger

import "context"

type ctxKey int

const (
	sessionIDKey ctxKey = iota
	cycleKey
	domainKey
	requestIDKey
	workerIDKey
)

// WithSessionID 注入会话 ID
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionID 读取会话 ID
func SessionID(ctx context.Context) string {
	v, _ := ctx.Value(sessionIDKey).(string)
	return v
}

// WithCycle 注入刷新轮次
func WithCycle(ctx context.Context, cycle int64) context.Context {
	return context.WithValue(ctx, cycleKey, cycle)
}

// WithDomain 注入数据域
func WithDomain(ctx context.Context, domain string) context.Context {
	return context.WithValue(ctx, domainKey, domain)
}

// WithRequestID 注入请求 ID
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// WithWorkerID 注入处理协程编号
func WithWorkerID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, workerIDKey, id)
}
