// internal/api/response.go
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/NovelForgeAI/NovelForge/internal/errors"
)

// APIResponse 统一响应结构
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIError 错误响应体
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// ResponseHelper 响应助手类
type ResponseHelper struct{}

// NewResponseHelper 创建响应助手
func NewResponseHelper() *ResponseHelper {
	return &ResponseHelper{}
}

func (rh *ResponseHelper) getRequestID(c *gin.Context) string {
	if requestID := c.GetHeader("X-Request-ID"); requestID != "" {
		return requestID
	}
	return uuid.New().String()
}

// Success 成功响应
func (rh *ResponseHelper) Success(c *gin.Context, data interface{}, message ...string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}

	if len(message) > 0 {
		response.Message = message[0]
	}

	c.JSON(http.StatusOK, response)
}

// Created 创建成功响应
func (rh *ResponseHelper) Created(c *gin.Context, data interface{}, message ...string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}

	if len(message) > 0 {
		response.Message = message[0]
	} else {
		response.Message = "资源创建成功"
	}

	c.JSON(http.StatusCreated, response)
}

// Error 错误响应
func (rh *ResponseHelper) Error(c *gin.Context, statusCode int, errorCode, message string, retryable bool) {
	response := &APIResponse{
		Success: false,
		Error: &APIError{
			Code:      errorCode,
			Message:   message,
			Retryable: retryable,
		},
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}

	c.JSON(statusCode, response)
}

// BadRequest 400错误响应
func (rh *ResponseHelper) BadRequest(c *gin.Context, message string) {
	rh.Error(c, http.StatusBadRequest, "BAD_REQUEST", message, false)
}

// ServiceError 根据服务层错误类型映射HTTP状态码
func (rh *ResponseHelper) ServiceError(c *gin.Context, err error) {
	var appError *apperrors.AppError
	if !errors.As(err, &appError) {
		rh.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), false)
		return
	}

	statusCode := http.StatusInternalServerError
	switch appError.Type {
	case apperrors.ErrorTypeValidation:
		statusCode = http.StatusBadRequest
	case apperrors.ErrorTypeNotFound:
		statusCode = http.StatusNotFound
	case apperrors.ErrorTypeConflict:
		statusCode = http.StatusConflict
	case apperrors.ErrorTypeState:
		statusCode = http.StatusUnprocessableEntity
	case apperrors.ErrorTypeGeneration:
		statusCode = http.StatusBadGateway
	case apperrors.ErrorTypeTimeout:
		statusCode = http.StatusGatewayTimeout
	}

	rh.Error(c, statusCode, appError.Code, appError.Message, appError.Retryable)
}
