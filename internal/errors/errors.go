// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation_error"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeConflict   ErrorType = "conflict"
	// ErrorTypeGeneration 生成能力不可用、超时或降级解析后仍不可用
	ErrorTypeGeneration ErrorType = "generation_error"
	// ErrorTypeState 故事不处于允许该操作的状态（如缺少世界观）
	ErrorTypeState   ErrorType = "state_error"
	ErrorTypeTimeout ErrorType = "timeout"
	ErrorTypeError   ErrorType = "processing_error"
)

// AppError 应用程序错误结构
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string // 用户友好的错误代码
	// Retryable 标记操作可从失败点续传（仅选择生成阶段的失败）
	Retryable bool
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

// NewConflictError 创建冲突错误
func NewConflictError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeConflict, message, originalError)
}

// NewGenerationError 创建生成错误
func NewGenerationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeGeneration, message, originalError)
}

// NewRetryableGenerationError 创建可续传的生成错误。
// 章节已持久化、选择尚未写入时使用：调用方重试只会补做选择生成。
func NewRetryableGenerationError(message string, originalError error) *AppError {
	err := NewAppError(ErrorTypeGeneration, message, originalError)
	err.Retryable = true
	return err
}

// NewStateError 创建状态错误
func NewStateError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeState, message, originalError)
}

// NewProcessingError 创建处理错误
func NewProcessingError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeError, message, originalError)
}

func isType(err error, t ErrorType) bool {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type == t
	}
	return false
}

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool { return isType(err, ErrorTypeValidation) }

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool { return isType(err, ErrorTypeNotFound) }

// IsConflictError 检查是否为冲突错误
func IsConflictError(err error) bool { return isType(err, ErrorTypeConflict) }

// IsGenerationError 检查是否为生成错误
func IsGenerationError(err error) bool { return isType(err, ErrorTypeGeneration) }

// IsStateError 检查是否为状态错误
func IsStateError(err error) bool { return isType(err, ErrorTypeState) }

// IsRetryable 检查错误是否允许从失败点续传
func IsRetryable(err error) bool {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Retryable
	}
	return false
}

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeConflict:
		return "CONFLICT"
	case ErrorTypeGeneration:
		return "GENERATION_ERROR"
	case ErrorTypeState:
		return "STATE_ERROR"
	case ErrorTypeTimeout:
		return "TIMEOUT"
	case ErrorTypeError:
		return "PROCESSING_ERROR"
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
		// 已经是 AppError，保留类型和代码，只叠加消息
		return &AppError{
			Type:      appError.Type,
			Message:   fmt.Sprintf("%s: %s", message, appError.Message),
			Err:       appError,
			Code:      appError.Code,
			Retryable: appError.Retryable,
		}
	}

	return NewAppError(errType, message, err)
}
