// internal/services/mock_provider_test.go
package services

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/NovelForgeAI/NovelForge/internal/llm"
	"github.com/NovelForgeAI/NovelForge/internal/storage"
)

// mockProvider 可编程的LLM提供者，用于替换真实API调用
type mockProvider struct {
	completeFunc func(req llm.CompletionRequest) (*llm.CompletionResponse, error)
	streamFunc   func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamResponse, error)
}

func (m *mockProvider) Initialize(config map[string]string) error { return nil }
func (m *mockProvider) GetName() string                           { return "mock" }
func (m *mockProvider) GetSupportedModels() []string              { return []string{"mock-model"} }

func (m *mockProvider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if m.completeFunc != nil {
		return m.completeFunc(req)
	}
	return &llm.CompletionResponse{Text: "mock response"}, nil
}

func (m *mockProvider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamResponse, error) {
	if m.streamFunc != nil {
		return m.streamFunc(ctx, req)
	}

	ch := make(chan llm.StreamResponse, 4)
	go func() {
		defer close(ch)
		ch <- llm.StreamResponse{Text: "mock "}
		ch <- llm.StreamResponse{Text: "stream"}
		ch <- llm.StreamResponse{Done: true, FinishReason: "stop"}
	}()
	return ch, nil
}

// 提示词分流：根据内容判断这是哪一类生成请求
func isChoicesPrompt(prompt string) bool {
	return strings.Contains(prompt, "选择选项")
}

func isWorldviewPrompt(prompt string) bool {
	// 章节提示词的上下文里也会出现"世界观框架"，用设计师角色定位区分
	return strings.Contains(prompt, "世界观设计师")
}

// scriptedComplete 返回标准应答：世界观、章节、选择各有默认JSON
func scriptedComplete(req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	switch {
	case isChoicesPrompt(req.Prompt):
		return &llm.CompletionResponse{Text: `["前往昆仑山寻找机缘", "留在宗门潜心修炼", "下山历练红尘"]`}, nil
	case isWorldviewPrompt(req.Prompt):
		return &llm.CompletionResponse{Text: `{
			"world_setting": "九州修仙界，灵气充沛",
			"power_system": "炼气、筑基、金丹、元婴",
			"main_character": {"name": "林昭", "description": "山村少年"},
			"main_plot": "逆天改命之路",
			"story_themes": ["成长", "道心"]
		}`}, nil
	default:
		return &llm.CompletionResponse{Text: `{"title": "初入仙门", "content": "山风掠过石阶，林昭背着行囊站在宗门前。"}`}, nil
	}
}

// newTestEnv 构建一套落在临时目录上的完整服务栈
func newTestEnv(t *testing.T, provider llm.Provider) (*StoryService, *WorldViewService, *StoryRepo) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "novelforge_test_*")
	if err != nil {
		t.Fatalf("创建临时目录失败: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := storage.NewJSONStore(tempDir)
	if err != nil {
		t.Fatalf("创建存储失败: %v", err)
	}

	repo := NewStoryRepo(store)
	llmService := NewLLMServiceWithProvider(provider)
	worldviewService := NewWorldViewService(repo, llmService)
	chapterService := NewChapterService(llmService, 2000, 3000)
	storyService := NewStoryService(repo, worldviewService, chapterService, 3)

	return storyService, worldviewService, repo
}
