// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	// 通用错误类型
	ErrorTypeValidation   ErrorType = "validation_error"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeError        ErrorType = "processing_error"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeConflict     ErrorType = "conflict"

	// 项目读写错误类型
	ErrorTypeLoad ErrorType = "load_error" // 项目不存在或读取失败，界面无法继续
	ErrorTypeSave ErrorType = "save_error" // 写入失败，用户可重试
)

// AppError 应用程序错误结构
type AppError struct {
	Type     ErrorType
	Message  string
	Err      error
	Code     string // 用户友好的错误代码
	Redirect string // 调用方可选择跳转的路由
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithRedirect 附加跳转路由
func (e *AppError) WithRedirect(route string) *AppError {
	e.Redirect = route
	return e
}

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

// NewProcessingError 创建处理错误
func NewProcessingError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeError, message, originalError)
}

// NewForbiddenError 创建禁止错误
func NewForbiddenError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeForbidden, message, originalError)
}

// NewConflictError 创建冲突错误
func NewConflictError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeConflict, message, originalError)
}

// NewLoadError 创建项目加载错误
func NewLoadError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeLoad, message, originalError)
}

// NewSaveError 创建项目保存错误
func NewSaveError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeSave, message, originalError)
}

func isType(err error, errType ErrorType) bool {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type == errType
	}
	return false
}

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool { return isType(err, ErrorTypeValidation) }

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool { return isType(err, ErrorTypeNotFound) }

// IsForbiddenError 检查是否为禁止错误
func IsForbiddenError(err error) bool { return isType(err, ErrorTypeForbidden) }

// IsConflictError 检查是否为冲突错误
func IsConflictError(err error) bool { return isType(err, ErrorTypeConflict) }

// IsLoadError 检查是否为加载错误
func IsLoadError(err error) bool { return isType(err, ErrorTypeLoad) }

// IsSaveError 检查是否为保存错误
func IsSaveError(err error) bool { return isType(err, ErrorTypeSave) }

// HasType 检查错误链中是否有任意一层是指定类型
func HasType(err error, errType ErrorType) bool {
	for err != nil {
		var appError *AppError
		if !errors.As(err, &appError) {
			return false
		}
		if appError.Type == errType {
			return true
		}
		err = appError.Err
	}
	return false
}

// RedirectOf 返回错误链中第一个非空的跳转路由
func RedirectOf(err error) string {
	for err != nil {
		var appError *AppError
		if !errors.As(err, &appError) {
			return ""
		}
		if appError.Redirect != "" {
			return appError.Redirect
		}
		err = appError.Err
	}
	return ""
}

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeError:
		return "PROCESSING_ERROR"
	case ErrorTypeUnauthorized:
		return "UNAUTHORIZED"
	case ErrorTypeForbidden:
		return "FORBIDDEN"
	case ErrorTypeConflict:
		return "CONFLICT"
	case ErrorTypeLoad:
		return "PROJECT_LOAD_FAILED"
	case ErrorTypeSave:
		return "PROJECT_SAVE_FAILED"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError 包装现有错误
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		// 如果已经是 AppError，只更新消息
		return &AppError{
			Type:     appError.Type,
			Message:  fmt.Sprintf("%s: %s", message, appError.Message),
			Err:      appError,
			Code:     appError.Code,
			Redirect: appError.Redirect,
		}
	}

	return NewAppError(errType, message, err)
}
