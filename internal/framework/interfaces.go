package framework

import "context"

// TabularSource 表格数据源（需支持并发调用，并能在认证失效后自行重试）
type TabularSource interface {
	Fetch(ctx context.Context, domain Domain) (*Dataset, error)
}

// Task 交给 Processor 执行的单个任务
type Task struct {
	ID  string
	Run func(ctx context.Context) error
}
