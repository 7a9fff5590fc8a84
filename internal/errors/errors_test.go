// internal/errors/errors_test.go
package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorTypePredicates(t *testing.T) {
	tests := []struct {
		err       error
		predicate func(error) bool
		name      string
	}{
		{NewValidationError("验证失败", nil), IsValidationError, "validation"},
		{NewNotFoundError("未找到", nil), IsNotFoundError, "not_found"},
		{NewConflictError("冲突", nil), IsConflictError, "conflict"},
		{NewGenerationError("生成失败", nil), IsGenerationError, "generation"},
		{NewStateError("状态错误", nil), IsStateError, "state"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.predicate(tt.err) {
				t.Errorf("类型判断失败: %v", tt.err)
			}
		})
	}
}

func TestPredicatesOnWrappedError(t *testing.T) {
	inner := NewNotFoundError("故事不存在", nil)
	wrapped := fmt.Errorf("读取失败: %w", inner)

	if !IsNotFoundError(wrapped) {
		t.Error("包装后的错误应保持类型判断")
	}
	if IsConflictError(wrapped) {
		t.Error("错误类型判断不应误报")
	}
}

func TestRetryable(t *testing.T) {
	plain := NewGenerationError("生成失败", nil)
	if IsRetryable(plain) {
		t.Error("普通生成错误不应标记为可续传")
	}

	retryable := NewRetryableGenerationError("选择生成失败", nil)
	if !IsRetryable(retryable) {
		t.Error("可续传错误标记丢失")
	}
	if !IsGenerationError(retryable) {
		t.Error("可续传错误仍应是生成错误")
	}

	wrapped := fmt.Errorf("推进失败: %w", retryable)
	if !IsRetryable(wrapped) {
		t.Error("包装后可续传标记应保留")
	}
}

func TestWrapError(t *testing.T) {
	if WrapError(nil, "消息", ErrorTypeError) != nil {
		t.Error("包装nil应返回nil")
	}

	inner := NewConflictError("已存在", nil)
	wrapped := WrapError(inner, "创建失败", ErrorTypeError)

	var appError *AppError
	if !errors.As(wrapped, &appError) {
		t.Fatal("包装结果应为AppError")
	}
	// 已有AppError时保留原类型
	if appError.Type != ErrorTypeConflict {
		t.Errorf("包装应保留原类型: %q", appError.Type)
	}
	if appError.Code != "CONFLICT" {
		t.Errorf("包装应保留原错误代码: %q", appError.Code)
	}

	plain := errors.New("底层IO错误")
	wrapped = WrapError(plain, "保存失败", ErrorTypeError)
	if !errors.As(wrapped, &appError) {
		t.Fatal("包装结果应为AppError")
	}
	if appError.Type != ErrorTypeError {
		t.Errorf("普通错误应使用指定类型: %q", appError.Type)
	}
	if !errors.Is(wrapped, plain) {
		t.Error("错误链应保留底层错误")
	}
}

func TestErrorMessage(t *testing.T) {
	inner := errors.New("磁盘已满")
	err := NewProcessingError("保存失败", inner)

	if err.Error() != "保存失败: 磁盘已满" {
		t.Errorf("错误消息格式错误: %q", err.Error())
	}

	bare := NewNotFoundError("故事不存在", nil)
	if bare.Error() != "故事不存在" {
		t.Errorf("无内部错误时消息格式错误: %q", bare.Error())
	}
}
