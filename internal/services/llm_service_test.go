// internal/services/llm_service_test.go
package services

import (
	"context"
	"testing"

	"github.com/NovelForgeAI/NovelForge/internal/llm"
)

func TestCleanJSONString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "代码块包裹",
			input:    "```json\n{\"title\": \"测试\"}\n```",
			expected: `{"title": "测试"}`,
		},
		{
			name:     "前置说明文字",
			input:    "好的，以下是生成的内容：\n{\"title\": \"测试\"}",
			expected: `{"title": "测试"}`,
		},
		{
			name:     "后置多余文字",
			input:    `{"title": "测试"} 希望你喜欢这个章节`,
			expected: `{"title": "测试"}`,
		},
		{
			name:     "嵌套对象平衡截取",
			input:    `{"a": {"b": "c"}, "d": [1, 2]} 额外内容`,
			expected: `{"a": {"b": "c"}, "d": [1, 2]}`,
		},
		{
			name:     "数组输出",
			input:    "选择如下：\n[\"选择1\", \"选择2\", \"选择3\"]\n以上",
			expected: `["选择1", "选择2", "选择3"]`,
		},
		{
			name:     "字符串内花括号不干扰计数",
			input:    `{"content": "他说：{奇怪的话}"}`,
			expected: `{"content": "他说：{奇怪的话}"}`,
		},
		{
			name:     "转义引号",
			input:    `{"content": "他说：\"你好\""}`,
			expected: `{"content": "他说：\"你好\""}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanJSONString(tt.input); got != tt.expected {
				t.Errorf("cleanJSONString(%q) = %q, 期望 %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestCreateTaggedCompletion_Structured(t *testing.T) {
	svc := NewLLMServiceWithProvider(&mockProvider{
		completeFunc: func(req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Text: "```json\n{\"title\": \"第一章\", \"content\": \"正文\"}\n```"}, nil
		},
	})

	var doc struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	result, err := svc.CreateTaggedCompletion(context.Background(), "提示词", "", &doc)
	if err != nil {
		t.Fatalf("结构化请求失败: %v", err)
	}
	if !result.Structured {
		t.Fatal("应成功结构化解析")
	}
	if doc.Title != "第一章" || doc.Content != "正文" {
		t.Errorf("解析结果错误: %+v", doc)
	}
}

func TestCreateTaggedCompletion_UnstructuredKeepsRaw(t *testing.T) {
	raw := "这是一段自由文本，不是JSON"
	svc := NewLLMServiceWithProvider(&mockProvider{
		completeFunc: func(req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Text: raw}, nil
		},
	})

	var doc struct {
		Title string `json:"title"`
	}
	result, err := svc.CreateTaggedCompletion(context.Background(), "提示词", "", &doc)
	if err != nil {
		t.Fatalf("解析失败不应作为错误返回: %v", err)
	}
	if result.Structured {
		t.Fatal("自由文本不应标记为结构化")
	}
	if result.Raw != raw {
		t.Errorf("原始文本应保留: %q", result.Raw)
	}
}

func TestLLMService_NotReady(t *testing.T) {
	svc := createBaseLLMService()

	if svc.IsReady() {
		t.Fatal("未初始化的服务不应就绪")
	}
	if _, err := svc.CreateCompletion(context.Background(), "提示词", ""); err == nil {
		t.Fatal("未就绪的服务调用应报错")
	}
}

func TestUpdateProvider_Unknown(t *testing.T) {
	svc := createBaseLLMService()

	if err := svc.UpdateProvider("不存在的提供者", map[string]string{}); err == nil {
		t.Fatal("未知提供者应报错")
	}
}
