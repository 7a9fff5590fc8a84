// internal/services/chapter_service_test.go
package services

import (
	"context"
	"strings"
	"testing"

	apperrors "github.com/NovelForgeAI/NovelForge/internal/errors"
	"github.com/NovelForgeAI/NovelForge/internal/llm"
	"github.com/NovelForgeAI/NovelForge/internal/models"
)

func newChapterService(provider llm.Provider) *ChapterService {
	return NewChapterService(NewLLMServiceWithProvider(provider), 2000, 3000)
}

func TestGenerateChapter_StructuredResponse(t *testing.T) {
	svc := newChapterService(&mockProvider{completeFunc: scriptedComplete})

	draft, err := svc.GenerateChapter(context.Background(), sampleStory(), sampleWorldView(), "前往昆仑山")
	if err != nil {
		t.Fatalf("生成章节失败: %v", err)
	}

	if draft.Title != "初入仙门" {
		t.Errorf("标题解析错误: %q", draft.Title)
	}
	if !strings.Contains(draft.Content, "林昭") {
		t.Errorf("正文解析错误: %q", draft.Content)
	}
	if draft.Summary == "" {
		t.Error("摘要不应为空")
	}
}

func TestGenerateChapter_FallbackOnUnstructured(t *testing.T) {
	rawText := "山风掠过石阶，这是一段没有JSON包装的正文。"
	svc := newChapterService(&mockProvider{
		completeFunc: func(req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Text: rawText}, nil
		},
	})

	story := sampleStory() // CurrentChapterNumber == 2
	draft, err := svc.GenerateChapter(context.Background(), story, nil, "")
	if err != nil {
		t.Fatalf("降级路径不应报错: %v", err)
	}

	if draft.Title != "第3章" {
		t.Errorf("降级标题错误: 期望 第3章, 实际 %q", draft.Title)
	}
	if draft.Content != rawText {
		t.Errorf("降级正文应为原始文本: %q", draft.Content)
	}
}

func TestGenerateChapter_EmptyContentFails(t *testing.T) {
	svc := newChapterService(&mockProvider{
		completeFunc: func(req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Text: "   "}, nil
		},
	})

	_, err := svc.GenerateChapter(context.Background(), sampleStory(), nil, "")
	if !apperrors.IsGenerationError(err) {
		t.Fatalf("空内容应返回生成错误, got %v", err)
	}
}

func TestGenerateChoices(t *testing.T) {
	svc := newChapterService(&mockProvider{completeFunc: scriptedComplete})

	choices, err := svc.GenerateChoices(context.Background(), "章节内容", models.StyleXianxia, 3)
	if err != nil {
		t.Fatalf("生成选择失败: %v", err)
	}
	if len(choices) != 3 {
		t.Fatalf("选择数量错误: %d", len(choices))
	}
}

func TestGenerateChoices_TooFewIsHardError(t *testing.T) {
	svc := newChapterService(&mockProvider{
		completeFunc: func(req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Text: `["只有一个选择"]`}, nil
		},
	})

	_, err := svc.GenerateChoices(context.Background(), "章节内容", models.StyleXianxia, 3)
	if !apperrors.IsGenerationError(err) {
		t.Fatalf("选择数量不足应返回生成错误, got %v", err)
	}
}

func TestGenerateChoices_UnparseableIsHardError(t *testing.T) {
	svc := newChapterService(&mockProvider{
		completeFunc: func(req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Text: "这不是一个JSON数组"}, nil
		},
	})

	_, err := svc.GenerateChoices(context.Background(), "章节内容", models.StyleXianxia, 3)
	if !apperrors.IsGenerationError(err) {
		t.Fatalf("解析失败应返回生成错误, got %v", err)
	}
}

func TestGenerateChapterStream_EventOrder(t *testing.T) {
	chunks := []string{"山风", "掠过", "石阶"}
	svc := newChapterService(&mockProvider{
		streamFunc: func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamResponse, error) {
			ch := make(chan llm.StreamResponse, len(chunks)+1)
			go func() {
				defer close(ch)
				for _, text := range chunks {
					ch <- llm.StreamResponse{Text: text}
				}
				ch <- llm.StreamResponse{Done: true, FinishReason: "stop"}
			}()
			return ch, nil
		},
	})

	var events []StreamEvent
	for event := range svc.GenerateChapterStream(context.Background(), sampleStory(), sampleWorldView(), "") {
		events = append(events, event)
	}

	if len(events) == 0 {
		t.Fatal("没有收到任何事件")
	}
	if events[0].Type != StreamEventStart {
		t.Errorf("首个事件应为start, got %s", events[0].Type)
	}
	if events[1].Type != StreamEventTitle || events[1].Title != "第3章" {
		t.Errorf("第二个事件应为title(第3章), got %+v", events[1])
	}

	last := events[len(events)-1]
	if last.Type != StreamEventComplete {
		t.Fatalf("末尾事件应为complete, got %s", last.Type)
	}
	if last.Content != "山风掠过石阶" {
		t.Errorf("complete应携带累计正文: %q", last.Content)
	}

	// 终态事件有且只有一个
	terminals := 0
	for _, event := range events {
		if event.Type == StreamEventComplete || event.Type == StreamEventError {
			terminals++
		}
	}
	if terminals != 1 {
		t.Errorf("终态事件数量错误: %d", terminals)
	}

	// content事件拼接应等于最终正文
	var joined strings.Builder
	for _, event := range events {
		if event.Type == StreamEventContent {
			joined.WriteString(event.Content)
		}
	}
	if joined.String() != last.Content {
		t.Errorf("content事件拼接(%q)与最终正文(%q)不一致", joined.String(), last.Content)
	}
}

func TestGenerateChapterStream_ErrorIsTerminal(t *testing.T) {
	svc := newChapterService(&mockProvider{
		streamFunc: func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamResponse, error) {
			ch := make(chan llm.StreamResponse)
			close(ch)
			return ch, nil
		},
	})

	var events []StreamEvent
	for event := range svc.GenerateChapterStream(context.Background(), sampleStory(), nil, "") {
		events = append(events, event)
	}

	last := events[len(events)-1]
	if last.Type != StreamEventError {
		t.Fatalf("空流应以error收尾, got %s", last.Type)
	}
}

func TestGenerateChapterStream_TruncatedStreamIsError(t *testing.T) {
	// 上游在终止片段之前断开：已发出的增量是截断文本
	svc := newChapterService(&mockProvider{
		streamFunc: func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamResponse, error) {
			ch := make(chan llm.StreamResponse, 2)
			go func() {
				defer close(ch)
				ch <- llm.StreamResponse{Text: "只有一半的章节内容"}
			}()
			return ch, nil
		},
	})

	var events []StreamEvent
	for event := range svc.GenerateChapterStream(context.Background(), sampleStory(), sampleWorldView(), "") {
		events = append(events, event)
	}

	last := events[len(events)-1]
	if last.Type != StreamEventError {
		t.Fatalf("中断的流应以error收尾, got %s", last.Type)
	}
	for _, event := range events {
		if event.Type == StreamEventComplete {
			t.Fatal("中断的流不应发出complete事件")
		}
	}
}

func TestGenerateChapterStream_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	svc := newChapterService(&mockProvider{
		streamFunc: func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamResponse, error) {
			ch := make(chan llm.StreamResponse)
			go func() {
				defer close(ch)
				ch <- llm.StreamResponse{Text: "第一块"}
				<-ctx.Done()
			}()
			return ch, nil
		},
	})

	events := svc.GenerateChapterStream(ctx, sampleStory(), nil, "")

	// 读取前两个事件后取消
	<-events
	<-events
	cancel()

	// 通道必须最终关闭，不得泄漏goroutine
	for range events {
	}
}
