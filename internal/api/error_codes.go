// internal/api/error_codes.go
package api

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorConflict      = "CONFLICT"
	ErrorForbidden     = "FORBIDDEN"
	ErrorRateLimited   = "RATE_LIMIT_EXCEEDED"

	// 项目相关错误
	ErrorProjectNotFound   = "PROJECT_NOT_FOUND"
	ErrorProjectLoadFailed = "PROJECT_LOAD_FAILED"
	ErrorProjectSaveFailed = "PROJECT_SAVE_FAILED"

	// 配置会话相关错误
	ErrorSessionNotFound  = "SESSION_NOT_FOUND"
	ErrorSectionNotFound  = "SECTION_NOT_FOUND"
	ErrorValidationFailed = "VALIDATION_FAILED"
	ErrorSaveInProgress   = "SAVE_IN_PROGRESS"
	ErrorUnknownVariant   = "UNKNOWN_VARIANT"
)
