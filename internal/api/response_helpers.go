// internal/api/response_helpers.go
package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/DocDeck/internal/editor"
	apperrors "github.com/Corphon/DocDeck/internal/errors"
	"github.com/Corphon/DocDeck/internal/services"
	"github.com/Corphon/DocDeck/internal/utils"
)

// APIResponse 统一响应格式
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"` // 用于调试和追踪
}

// APIError 标准错误格式
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	Kind      string `json:"kind,omitempty"`       // 校验失败的具体类型
	SectionID int    `json:"section_id,omitempty"` // 标题为空的章节
	Redirect  string `json:"redirect,omitempty"`   // 客户端应跳转的路由
	Retryable bool   `json:"retryable,omitempty"`
}

// ResponseHelper 响应助手类
type ResponseHelper struct{}

// NewResponseHelper 创建响应助手
func NewResponseHelper() *ResponseHelper {
	return &ResponseHelper{}
}

// Success 成功响应
func (rh *ResponseHelper) Success(c *gin.Context, data interface{}, message ...string) {
	rh.respond(c, http.StatusOK, data, message...)
}

// Created 创建成功响应
func (rh *ResponseHelper) Created(c *gin.Context, data interface{}, message ...string) {
	if len(message) == 0 {
		message = []string{"资源创建成功"}
	}
	rh.respond(c, http.StatusCreated, data, message...)
}

func (rh *ResponseHelper) respond(c *gin.Context, status int, data interface{}, message ...string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}
	if len(message) > 0 {
		response.Message = message[0]
	}
	c.JSON(status, response)
}

// sanitizeErrorMessage 去掉可能泄露密钥的错误信息
func sanitizeErrorMessage(message string) string {
	lower := strings.ToLower(message)
	for _, pattern := range []string{"api_key", "secret", "token", "password"} {
		if strings.Contains(lower, pattern) {
			return "服务器内部错误"
		}
	}
	return message
}

// ErrorWith 以完整的 APIError 响应
func (rh *ResponseHelper) ErrorWith(c *gin.Context, statusCode int, apiError *APIError) {
	apiError.Message = sanitizeErrorMessage(apiError.Message)
	apiError.Details = sanitizeErrorMessage(apiError.Details)

	c.JSON(statusCode, &APIResponse{
		Success:   false,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	})
}

// Error 错误响应
func (rh *ResponseHelper) Error(c *gin.Context, statusCode int, errorCode, message string, details ...string) {
	apiError := &APIError{Code: errorCode, Message: message}
	if len(details) > 0 {
		apiError.Details = details[0]
	}
	rh.ErrorWith(c, statusCode, apiError)
}

// BadRequest 400错误响应
func (rh *ResponseHelper) BadRequest(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusBadRequest, ErrorBadRequest, message, details...)
}

// NotFound 404错误响应
func (rh *ResponseHelper) NotFound(c *gin.Context, resource string, details ...string) {
	rh.Error(c, http.StatusNotFound, rh.getResourceNotFoundCode(resource), resource+"不存在", details...)
}

// FromError 把服务层错误映射为 HTTP 响应
func (rh *ResponseHelper) FromError(c *gin.Context, err error) {
	status, apiError := errorToAPI(err)
	if status == http.StatusInternalServerError && apiError.Code == ErrorInternalError {
		utils.GetLogger().Error("未分类的服务错误", map[string]interface{}{
			"path":  c.Request.URL.Path,
			"error": err.Error(),
		})
	}
	rh.ErrorWith(c, status, apiError)
}

// errorToAPI 服务层错误到状态码与 APIError 的映射，HTTP 与 WebSocket 共用
func errorToAPI(err error) (int, *APIError) {
	var validation *editor.ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity, &APIError{
			Code:      ErrorValidationFailed,
			Message:   validation.Error(),
			Kind:      string(validation.Kind),
			SectionID: validation.SectionID,
		}

	case errors.Is(err, services.ErrSaveInProgress):
		return http.StatusConflict, &APIError{Code: ErrorSaveInProgress, Message: err.Error()}

	case apperrors.IsLoadError(err):
		status := http.StatusInternalServerError
		if apperrors.HasType(err, apperrors.ErrorTypeNotFound) {
			status = http.StatusNotFound
		}
		return status, &APIError{
			Code:     ErrorProjectLoadFailed,
			Message:  err.Error(),
			Redirect: apperrors.RedirectOf(err),
		}

	case apperrors.IsSaveError(err):
		return http.StatusBadGateway, &APIError{
			Code:      ErrorProjectSaveFailed,
			Message:   err.Error(),
			Retryable: true,
		}

	case apperrors.IsValidationError(err):
		return http.StatusBadRequest, &APIError{Code: ErrorBadRequest, Message: err.Error()}

	case apperrors.IsNotFoundError(err):
		return http.StatusNotFound, &APIError{Code: ErrorNotFound, Message: err.Error()}

	case apperrors.IsForbiddenError(err):
		return http.StatusForbidden, &APIError{Code: ErrorForbidden, Message: err.Error()}

	case apperrors.IsConflictError(err):
		return http.StatusConflict, &APIError{Code: ErrorConflict, Message: err.Error()}

	default:
		return http.StatusInternalServerError, &APIError{Code: ErrorInternalError, Message: "服务器内部错误"}
	}
}

// getRequestID 获取请求ID
func (rh *ResponseHelper) getRequestID(c *gin.Context) string {
	return c.GetString("request_id")
}

// getResourceNotFoundCode 根据资源类型生成错误代码
func (rh *ResponseHelper) getResourceNotFoundCode(resource string) string {
	switch resource {
	case "项目", "project":
		return ErrorProjectNotFound
	case "会话", "session":
		return ErrorSessionNotFound
	case "章节", "section":
		return ErrorSectionNotFound
	default:
		return ErrorNotFound
	}
}
