// internal/services/chapter_service.go
package services

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/NovelForgeAI/NovelForge/internal/errors"
	"github.com/NovelForgeAI/NovelForge/internal/models"
	"github.com/NovelForgeAI/NovelForge/internal/utils"
)

// 摘要取正文前缀的定长rune数
const summaryRuneLength = 200

// StreamEventType 流式生成事件类型
type StreamEventType string

const (
	StreamEventStart    StreamEventType = "start"
	StreamEventTitle    StreamEventType = "title"
	StreamEventContent  StreamEventType = "content"
	StreamEventComplete StreamEventType = "complete"
	StreamEventError    StreamEventType = "error"
)

// StreamEvent 章节流式生成过程中推送给消费者的事件。
// 每个流以start开始，以complete或error二者之一结束，且只结束一次。
type StreamEvent struct {
	Type    StreamEventType `json:"type"`
	Message string          `json:"message,omitempty"`
	Content string          `json:"content,omitempty"`
	Title   string          `json:"title,omitempty"`
	Chapter *models.Chapter `json:"chapter,omitempty"`
	Choices []models.Choice `json:"choices,omitempty"`
}

// ChapterDraft 生成器产出的未持久化章节草稿
type ChapterDraft struct {
	Title   string
	Content string
	Summary string
}

// ChapterService 负责章节正文与选择选项的生成，不做持久化
type ChapterService struct {
	llm       *LLMService
	logger    *utils.Logger
	minLength int
	maxLength int
}

// NewChapterService 创建章节生成服务
func NewChapterService(llm *LLMService, minLength, maxLength int) *ChapterService {
	return &ChapterService{
		llm:       llm,
		logger:    utils.GetLogger(),
		minLength: minLength,
		maxLength: maxLength,
	}
}

// chapterDoc 结构化章节输出schema
type chapterDoc struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// GenerateChapter 同步生成下一章草稿。
// 优先按JSON解析标题与正文；解析失败时把整段原始文本
// 作为正文，标题落到"第N章"。
func (s *ChapterService) GenerateChapter(ctx context.Context, story *models.Story, worldview *models.WorldView, previousChoice string) (*ChapterDraft, error) {
	nextNumber := story.CurrentChapterNumber + 1
	storyContext := BuildStoryContext(story, worldview, previousChoice)
	prompt := buildChapterPrompt(story.Style, storyContext, s.minLength, s.maxLength)

	var doc chapterDoc
	result, err := s.llm.CreateTaggedCompletion(ctx, prompt, "", &doc)
	if err != nil {
		return nil, apperrors.NewGenerationError(fmt.Sprintf("生成章节失败: %v", err), err)
	}

	title := doc.Title
	content := doc.Content
	if !result.Structured || content == "" {
		title = defaultChapterTitle(nextNumber)
		content = strings.TrimSpace(result.Raw)
	}
	if content == "" {
		return nil, apperrors.NewGenerationError("生成章节失败: 模型返回空内容", nil)
	}
	if title == "" {
		title = defaultChapterTitle(nextNumber)
	}

	return &ChapterDraft{
		Title:   title,
		Content: content,
		Summary: DeriveSummary(content),
	}, nil
}

// GenerateChapterStream 流式生成下一章。
// 返回的通道产生 start、title、content*，最后恰好一个
// complete 或 error 终态事件，随后关闭。调用方取消ctx即
// 停止上游生成。此处只产出草稿事件，持久化由调用方在
// complete 时触发。
func (s *ChapterService) GenerateChapterStream(ctx context.Context, story *models.Story, worldview *models.WorldView, previousChoice string) <-chan StreamEvent {
	events := make(chan StreamEvent, 16)
	nextNumber := story.CurrentChapterNumber + 1

	go func() {
		defer close(events)

		storyContext := BuildStoryContext(story, worldview, previousChoice)
		prompt := buildStreamChapterPrompt(story.Style, storyContext, s.minLength, s.maxLength)

		if !emit(ctx, events, StreamEvent{Type: StreamEventStart, Message: "开始生成章节"}) {
			return
		}

		upstream, err := s.llm.CreateStreamingCompletion(ctx, prompt, "")
		if err != nil {
			emit(ctx, events, StreamEvent{
				Type:    StreamEventError,
				Message: fmt.Sprintf("生成章节失败: %v", err),
			})
			return
		}

		title := defaultChapterTitle(nextNumber)
		titleSent := false
		doneSeen := false
		var accumulated strings.Builder

		for chunk := range upstream {
			if chunk.Done {
				// 终止片段携带的是累计全文，增量已经消费过
				doneSeen = true
				break
			}
			if chunk.Text != "" {
				if !titleSent {
					if !emit(ctx, events, StreamEvent{Type: StreamEventTitle, Title: title}) {
						return
					}
					titleSent = true
				}
				accumulated.WriteString(chunk.Text)
				if !emit(ctx, events, StreamEvent{Type: StreamEventContent, Content: chunk.Text}) {
					return
				}
			}
		}

		if err := ctx.Err(); err != nil {
			emit(ctx, events, StreamEvent{
				Type:    StreamEventError,
				Message: fmt.Sprintf("生成已取消: %v", err),
			})
			return
		}

		// 上游通道在终止片段之前关闭说明传输中断，
		// 已累计的内容是截断文本，不能当作完整章节
		if !doneSeen {
			emit(ctx, events, StreamEvent{
				Type:    StreamEventError,
				Message: "生成章节失败: 流式响应中断",
			})
			return
		}

		content := strings.TrimSpace(accumulated.String())
		if content == "" {
			emit(ctx, events, StreamEvent{
				Type:    StreamEventError,
				Message: "生成章节失败: 模型返回空内容",
			})
			return
		}

		emit(ctx, events, StreamEvent{
			Type:    StreamEventComplete,
			Title:   title,
			Content: content,
		})
	}()

	return events
}

// emit 在推送事件与ctx取消之间二选一，取消时返回false
func emit(ctx context.Context, events chan<- StreamEvent, event StreamEvent) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

// GenerateChoices 为章节内容生成指定数量的选择选项。
// 解析失败或数量不足都是硬错误，不做降级。
func (s *ChapterService) GenerateChoices(ctx context.Context, chapterContent string, style models.StoryStyle, count int) ([]string, error) {
	prompt := buildChoicesPrompt(chapterContent, style, count)

	var choices []string
	result, err := s.llm.CreateTaggedCompletion(ctx, prompt, "", &choices)
	if err != nil {
		return nil, apperrors.NewGenerationError(fmt.Sprintf("生成选择选项失败: %v", err), err)
	}
	if !result.Structured {
		return nil, apperrors.NewGenerationError("生成选择选项失败: 返回格式解析失败", nil)
	}
	if len(choices) < count {
		return nil, apperrors.NewGenerationError(
			fmt.Sprintf("生成选择选项失败: 需要%d个选项，实际%d个", count, len(choices)), nil)
	}

	return choices[:count], nil
}

// DeriveSummary 取正文前缀生成章节摘要，按rune截断避免撕裂多字节字符
func DeriveSummary(content string) string {
	runes := []rune(content)
	if len(runes) <= summaryRuneLength {
		return content
	}
	return string(runes[:summaryRuneLength]) + "..."
}

func defaultChapterTitle(number int) string {
	return fmt.Sprintf("第%d章", number)
}
