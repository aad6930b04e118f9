package ginx

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"vendormonitor/pkg/errorx"
)

// Response 统一响应结构
type Response struct {
	Meta Meta        `json:"meta"`
	Data interface{} `json:"data,omitempty"`
}

// Meta 元数据
type Meta struct {
	Code    int           `json:"code" example:"200"`
	Message string        `json:"message" example:"OK"`
	Details []ErrorDetail `json:"details,omitempty"`
}

// ErrorDetail 错误详情
type ErrorDetail struct {
	Path string `json:"path" example:"vendors"`
	Info string `json:"info" example:"vendors is required"`
}

// 会话失效时提示客户端重新上传商家列表
const sessionGoneMessage = "session not found or expired, please upload the vendor list again"

// Success 成功响应（200）
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Meta: Meta{
			Code:    200,
			Message: "OK",
		},
		Data: data,
	})
}

// Created 创建成功（201）
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Meta: Meta{
			Code:    201,
			Message: "Created",
		},
		Data: data,
	})
}

// Error 错误响应
func Error(c *gin.Context, httpCode int, message string) {
	c.JSON(httpCode, Response{
		Meta: Meta{
			Code:    httpCode,
			Message: message,
		},
	})
}

// ErrorWithDetails 带详情的错误响应
func ErrorWithDetails(c *gin.Context, httpCode int, message string, details []ErrorDetail) {
	c.JSON(httpCode, Response{
		Meta: Meta{
			Code:    httpCode,
			Message: message,
			Details: details,
		},
	})
}

// BadRequest 400 错误
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

// BadRequestWithValidation 400 错误（带验证详情）
func BadRequestWithValidation(c *gin.Context, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		details := make([]ErrorDetail, 0, len(validationErrs))
		for _, fieldErr := range validationErrs {
			details = append(details, ErrorDetail{
				Path: fieldErr.Field(),
				Info: getValidationErrorMessage(fieldErr),
			})
		}
		ErrorWithDetails(c, http.StatusBadRequest, "Validation failed", details)
		return
	}

	BadRequest(c, err.Error())
}

// NotFound 404 错误
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message)
}

// ServiceUnavailable 503 错误
func ServiceUnavailable(c *gin.Context, message string) {
	Error(c, http.StatusServiceUnavailable, message)
}

// InternalError 500 错误
func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, message)
}

// FromError 按错误类型选择响应：未就绪 503，会话失效 404，参数错误 400，其余 500
func FromError(c *gin.Context, err error) {
	var bizErr *errorx.BusinessError
	switch {
	case errors.Is(err, errorx.ErrNotReady):
		ServiceUnavailable(c, err.Error())
	case errorx.IsSessionGone(err):
		NotFound(c, sessionGoneMessage)
	case errors.Is(err, errorx.ErrNoVendorCodes):
		BadRequest(c, err.Error())
	case errors.As(err, &bizErr):
		details := make([]ErrorDetail, 0, len(bizErr.Details))
		for _, d := range bizErr.Details {
			details = append(details, ErrorDetail{Path: d.Path, Info: d.Info})
		}
		ErrorWithDetails(c, bizErr.Code, bizErr.Message, details)
	default:
		InternalError(c, err.Error())
	}
}

// getValidationErrorMessage 根据验证错误类型返回友好的错误消息
func getValidationErrorMessage(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required":
		return fieldErr.Field() + " is required"
	case "min":
		return fieldErr.Field() + " must contain at least " + fieldErr.Param() + " item(s)"
	case "max":
		return fieldErr.Field() + " must contain at most " + fieldErr.Param() + " item(s)"
	case "oneof":
		return fieldErr.Field() + " must be one of: " + fieldErr.Param()
	case "uuid4", "uuid":
		return fieldErr.Field() + " must be a valid session id"
	default:
		return fieldErr.Field() + " is invalid"
	}
}
