package errorx

import "errors"

// 业务错误
var (
	ErrNotReady        = errors.New("service not ready: initial fetch has not completed")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrLockTimeout     = errors.New("lock acquisition timed out")
	ErrNoVendorCodes   = errors.New("no vendor codes provided")
	ErrUnknownDomain   = errors.New("unknown data domain")
)

// BusinessError 业务错误结构
type BusinessError struct {
	Code    int
	Message string
	Details []ErrorDetail
}

// ErrorDetail 错误详情
type ErrorDetail struct {
	Path string
	Info string
}

// Error 实现 error 接口
func (e *BusinessError) Error() string {
	return e.Message
}

// NewBusinessError 创建业务错误
func NewBusinessError(code int, message string) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
	}
}

// WithDetail 追加一条字段级详情
func (e *BusinessError) WithDetail(path, info string) *BusinessError {
	e.Details = append(e.Details, ErrorDetail{Path: path, Info: info})
	return e
}

// IsSessionGone 会话不存在或已过期
func IsSessionGone(err error) bool {
	return errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionExpired)
}
