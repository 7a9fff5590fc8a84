// internal/services/story_service.go
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/NovelForgeAI/NovelForge/internal/errors"
	"github.com/NovelForgeAI/NovelForge/internal/models"
	"github.com/NovelForgeAI/NovelForge/internal/utils"
)

// StoryService 叙事状态机：负责故事生命周期、选择判定与章节推进。
//
// 推进序列：判定选择 -> 装配上下文 -> 生成章节 -> 持久化章节 ->
// 生成并持久化选择 -> 原子更新故事计数器与摘要。章节写入后、
// 选择写入前的失败窗口以可续传错误暴露，重试只补做剩余步骤。
type StoryService struct {
	repo        *StoryRepo
	worldviews  *WorldViewService
	chapters    *ChapterService
	logger      *utils.Logger
	choiceCount int

	// 每个故事同一时刻至多一个推进在执行。锁条目与故事同生命周期，
	// 随DeleteStory移除；解锁即删会与并发的LoadOrStore竞争出两把锁
	advancing sync.Map // storyID -> *sync.Mutex
}

// NewStoryService 创建故事服务
func NewStoryService(repo *StoryRepo, worldviews *WorldViewService, chapters *ChapterService, choiceCount int) *StoryService {
	return &StoryService{
		repo:        repo,
		worldviews:  worldviews,
		chapters:    chapters,
		logger:      utils.GetLogger(),
		choiceCount: choiceCount,
	}
}

// ---------------- 故事生命周期 ----------------

// CreateStory 创建一个新故事，标题为空时使用风格默认标题
func (s *StoryService) CreateStory(style models.StoryStyle, title, userID string) (*models.Story, error) {
	if !models.ValidStyle(style) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("不支持的故事风格: %s", style), nil)
	}
	if title == "" {
		title = models.DefaultTitle(style)
	}

	now := time.Now()
	story := &models.Story{
		ID:                   uuid.New().String(),
		Title:                title,
		Style:                style,
		Status:               models.StatusActive,
		CurrentChapterNumber: 0,
		ChapterSummaries:     []string{},
		CharacterInfo:        map[string]string{},
		UserID:               userID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.repo.SaveStory(story); err != nil {
		return nil, apperrors.NewProcessingError("保存故事失败", err)
	}

	s.logger.Info("故事创建成功", map[string]interface{}{
		"story_id": story.ID,
		"style":    style,
	})
	return story, nil
}

// CreateStoryWithWorldView 创建故事并立即生成世界观。
// 世界观生成失败时删除刚创建的故事目录，避免留下无法推进的半成品。
func (s *StoryService) CreateStoryWithWorldView(ctx context.Context, style models.StoryStyle, title, userID, theme string) (*models.Story, *models.WorldView, error) {
	story, err := s.CreateStory(style, title, userID)
	if err != nil {
		return nil, nil, err
	}

	worldview, err := s.worldviews.CreateWorldView(ctx, story.ID, theme)
	if err != nil {
		if deleteErr := s.repo.DeleteStory(story.ID); deleteErr != nil {
			s.logger.Error("回滚删除故事失败", map[string]interface{}{
				"story_id": story.ID,
				"error":    deleteErr,
			})
		}
		return nil, nil, err
	}

	return story, worldview, nil
}

// GetStory 读取故事
func (s *StoryService) GetStory(storyID string) (*models.Story, error) {
	return s.repo.GetStory(storyID)
}

// GetAllStories 列出全部故事
func (s *StoryService) GetAllStories() ([]*models.Story, error) {
	return s.repo.ListStories()
}

// GetUserStories 列出指定用户的故事
func (s *StoryService) GetUserStories(userID string) ([]*models.Story, error) {
	return s.repo.ListUserStories(userID)
}

// DeleteStory 级联删除故事及其推进锁条目
func (s *StoryService) DeleteStory(storyID string) error {
	if err := s.repo.DeleteStory(storyID); err != nil {
		return err
	}
	s.advancing.Delete(storyID)
	return nil
}

// UpdateStoryStatus 更新故事生命周期状态
func (s *StoryService) UpdateStoryStatus(storyID string, status models.StoryStatus) (*models.Story, error) {
	switch status {
	case models.StatusActive, models.StatusCompleted, models.StatusPaused:
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("不支持的故事状态: %s", status), nil)
	}

	story, err := s.repo.GetStory(storyID)
	if err != nil {
		return nil, err
	}

	story.Status = status
	story.UpdatedAt = time.Now()
	if err := s.repo.SaveStory(story); err != nil {
		return nil, apperrors.NewProcessingError("保存故事失败", err)
	}
	return story, nil
}

// ---------------- 章节与选择查询 ----------------

// GetStoryChapters 返回故事的全部章节，按章节号升序
func (s *StoryService) GetStoryChapters(storyID string) ([]*models.Chapter, error) {
	if _, err := s.repo.GetStory(storyID); err != nil {
		return nil, err
	}
	return s.repo.ListChapters(storyID)
}

// GetChapter 全局按ID查找章节
func (s *StoryService) GetChapter(chapterID string) (*models.Chapter, error) {
	chapter, _, err := s.repo.FindChapter(chapterID)
	if err != nil {
		return nil, err
	}
	return chapter, nil
}

// GetChapterChoices 返回章节的选择选项
func (s *StoryService) GetChapterChoices(chapterID string) ([]models.Choice, error) {
	chapter, _, err := s.repo.FindChapter(chapterID)
	if err != nil {
		return nil, err
	}
	return chapter.Choices, nil
}

// GetChoiceHistory 返回故事中所有已选中选择的时间线
func (s *StoryService) GetChoiceHistory(storyID string) ([]models.ChoiceHistoryEntry, error) {
	chapters, err := s.GetStoryChapters(storyID)
	if err != nil {
		return nil, err
	}

	history := make([]models.ChoiceHistoryEntry, 0, len(chapters))
	for _, chapter := range chapters {
		if selected := chapter.SelectedChoice(); selected != nil {
			history = append(history, models.ChoiceHistoryEntry{
				ChapterNumber: chapter.ChapterNumber,
				ChapterTitle:  chapter.Title,
				Choice:        *selected,
			})
		}
	}
	return history, nil
}

// ---------------- 选择判定 ----------------

// ResolveChoice 在故事最新章节上判定读者输入，返回选中的文本。
//
// choiceID与customText必须恰好提供一个。重复选择同一选项是
// 幂等空操作；该章已选中其他选项时返回冲突错误。customText
// 会作为已选中的CUSTOM选择追加到章节中。
func (s *StoryService) ResolveChoice(storyID, choiceID, customText string) (string, error) {
	story, err := s.repo.GetStory(storyID)
	if err != nil {
		return "", err
	}

	chapter, err := s.repo.GetChapterByNumber(storyID, story.CurrentChapterNumber)
	if err != nil {
		return "", err
	}
	if chapter == nil {
		return "", apperrors.NewStateError("故事还没有可供选择的章节", nil)
	}

	return s.resolveChoiceOnChapter(chapter, choiceID, customText)
}

func (s *StoryService) resolveChoiceOnChapter(chapter *models.Chapter, choiceID, customText string) (string, error) {
	if (choiceID == "") == (customText == "") {
		return "", apperrors.NewConflictError("choiceID与customText必须恰好提供一个", nil)
	}

	if customText != "" {
		// 自定义输入直接生成已选中的CUSTOM选择
		if selected := chapter.SelectedChoice(); selected != nil {
			if selected.Type == models.ChoiceCustom && selected.Text == customText {
				return selected.Text, nil
			}
			return "", apperrors.NewConflictError("该章节已做出选择", nil)
		}

		choice := models.Choice{
			ID:         uuid.New().String(),
			ChapterID:  chapter.ID,
			Text:       customText,
			Type:       models.ChoiceCustom,
			IsSelected: true,
			CreatedAt:  time.Now(),
		}
		chapter.Choices = append(chapter.Choices, choice)

		if err := s.repo.SaveChapter(chapter); err != nil {
			return "", apperrors.NewProcessingError("保存选择失败", err)
		}
		return customText, nil
	}

	choice := chapter.FindChoice(choiceID)
	if choice == nil {
		return "", apperrors.NewNotFoundError("选择不存在", nil)
	}

	if selected := chapter.SelectedChoice(); selected != nil {
		if selected.ID == choice.ID {
			// 幂等：重复选择同一选项
			return choice.Text, nil
		}
		return "", apperrors.NewConflictError("该章节已做出选择", nil)
	}

	choice.IsSelected = true
	if err := s.repo.SaveChapter(chapter); err != nil {
		return "", apperrors.NewProcessingError("保存选择失败", err)
	}
	return choice.Text, nil
}

// ---------------- 推进 ----------------

// beginAdvance 获取故事的推进锁，已有推进在执行时返回冲突错误
func (s *StoryService) beginAdvance(storyID string) (func(), error) {
	actual, _ := s.advancing.LoadOrStore(storyID, &sync.Mutex{})
	mu := actual.(*sync.Mutex)
	if !mu.TryLock() {
		return nil, apperrors.NewConflictError("该故事正在生成中，请稍后重试", nil)
	}
	return mu.Unlock, nil
}

// prepareAdvance 推进前的公共校验，返回故事与世界观
func (s *StoryService) prepareAdvance(storyID string) (*models.Story, *models.WorldView, error) {
	story, err := s.repo.GetStory(storyID)
	if err != nil {
		return nil, nil, err
	}
	if story.Status != models.StatusActive {
		return nil, nil, apperrors.NewStateError(fmt.Sprintf("故事处于%s状态，无法推进", story.Status), nil)
	}

	worldview, err := s.repo.GetWorldView(storyID)
	if err != nil {
		return nil, nil, err
	}
	if worldview == nil {
		return nil, nil, apperrors.NewStateError("故事缺少世界观，请先创建世界观", nil)
	}

	return story, worldview, nil
}

// AdvanceStory 同步推进故事一章，返回持久化后的完整章节。
//
// 首章推进不接受选择输入；后续推进必须先通过选择判定。
// 上一次推进若停在"章节已写、选择未写"，本次调用直接复用
// 该章节，只补做选择生成与计数器提交。
func (s *StoryService) AdvanceStory(ctx context.Context, storyID, choiceID, customText string) (*models.Chapter, error) {
	unlock, err := s.beginAdvance(storyID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	story, worldview, err := s.prepareAdvance(storyID)
	if err != nil {
		return nil, err
	}

	// 续传检查：下一章已持久化但选择缺失
	pending, err := s.repo.GetChapterByNumber(storyID, story.CurrentChapterNumber+1)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		// 选择在上次推进时已判定，重发的输入必须与当时一致
		if err := s.checkResumeChoice(story, choiceID, customText); err != nil {
			return nil, err
		}
		if len(pending.Choices) > 0 {
			// 章节和选择都在但计数器没跟上，只需补提交
			return pending, s.commitAdvance(story, pending)
		}
		s.logger.Info("续传上次中断的推进", map[string]interface{}{
			"story_id": storyID,
			"chapter":  pending.ChapterNumber,
		})
		return s.finishAdvance(ctx, story, pending)
	}

	chosenText, err := s.resolveAdvanceChoice(story, choiceID, customText)
	if err != nil {
		return nil, err
	}

	draft, err := s.chapters.GenerateChapter(ctx, story, worldview, chosenText)
	if err != nil {
		// 此时尚未写入任何数据，整体失败可安全重试
		return nil, err
	}

	chapter := s.buildChapter(story, draft)
	if err := s.repo.SaveChapter(chapter); err != nil {
		return nil, apperrors.NewProcessingError("保存章节失败", err)
	}

	return s.finishAdvance(ctx, story, chapter)
}

// checkResumeChoice 校验续传时重发的选择输入。续传复用已生成的
// 章节，新的选择不会生效，所以输入要么为空，要么与上次推进时
// 选中的选项一致（幂等重试），否则拒绝。
func (s *StoryService) checkResumeChoice(story *models.Story, choiceID, customText string) error {
	if choiceID == "" && customText == "" {
		return nil
	}
	_, err := s.resolveAdvanceChoice(story, choiceID, customText)
	return err
}

// resolveAdvanceChoice 判定推进的选择输入
func (s *StoryService) resolveAdvanceChoice(story *models.Story, choiceID, customText string) (string, error) {
	if story.CurrentChapterNumber == 0 {
		// 首章没有上一章，不接受选择输入
		if choiceID != "" || customText != "" {
			return "", apperrors.NewValidationError("第一章推进不接受选择输入", nil)
		}
		return "", nil
	}

	chapter, err := s.repo.GetChapterByNumber(story.ID, story.CurrentChapterNumber)
	if err != nil {
		return "", err
	}
	if chapter == nil {
		return "", apperrors.NewStateError("故事数据不一致：缺少当前章节", nil)
	}
	return s.resolveChoiceOnChapter(chapter, choiceID, customText)
}

func (s *StoryService) buildChapter(story *models.Story, draft *ChapterDraft) *models.Chapter {
	return &models.Chapter{
		ID:            uuid.New().String(),
		StoryID:       story.ID,
		ChapterNumber: story.CurrentChapterNumber + 1,
		Title:         draft.Title,
		Content:       draft.Content,
		Summary:       draft.Summary,
		Choices:       []models.Choice{},
		CreatedAt:     time.Now(),
	}
}

// finishAdvance 完成推进的后半段：生成选择、写回章节、提交计数器。
// 章节已持久化，这里的任何失败都以可续传错误暴露。
func (s *StoryService) finishAdvance(ctx context.Context, story *models.Story, chapter *models.Chapter) (*models.Chapter, error) {
	texts, err := s.chapters.GenerateChoices(ctx, chapter.Content, story.Style, s.choiceCount)
	if err != nil {
		s.logger.Error("选择生成失败，章节已保存等待续传", map[string]interface{}{
			"story_id": story.ID,
			"chapter":  chapter.ChapterNumber,
			"error":    err,
		})
		return nil, apperrors.NewRetryableGenerationError("生成选择选项失败，重试将复用已生成的章节", err)
	}

	now := time.Now()
	choices := make([]models.Choice, 0, len(texts))
	for _, text := range texts {
		choices = append(choices, models.Choice{
			ID:        uuid.New().String(),
			ChapterID: chapter.ID,
			Text:      text,
			Type:      models.ChoiceGenerated,
			CreatedAt: now,
		})
	}
	chapter.Choices = choices

	if err := s.repo.SaveChapter(chapter); err != nil {
		return nil, apperrors.NewRetryableGenerationError("保存选择失败，重试将复用已生成的章节", err)
	}

	if err := s.commitAdvance(story, chapter); err != nil {
		return nil, err
	}
	return chapter, nil
}

// commitAdvance 原子提交故事计数器与摘要账本
func (s *StoryService) commitAdvance(story *models.Story, chapter *models.Chapter) error {
	story.CurrentChapterNumber = chapter.ChapterNumber
	// 续传路径下摘要可能部分存在，按章节号对齐后追加
	if len(story.ChapterSummaries) >= chapter.ChapterNumber {
		story.ChapterSummaries = story.ChapterSummaries[:chapter.ChapterNumber-1]
	}
	story.ChapterSummaries = append(story.ChapterSummaries, chapter.Summary)
	story.UpdatedAt = time.Now()

	if err := s.repo.SaveStory(story); err != nil {
		return apperrors.NewRetryableGenerationError("提交故事进度失败，重试将复用已生成的章节", err)
	}

	s.logger.Info("故事推进完成", map[string]interface{}{
		"story_id": story.ID,
		"chapter":  chapter.ChapterNumber,
	})
	return nil
}

// AdvanceStoryStream 流式推进故事一章。
//
// 返回的通道转发生成器的start/title/content事件；生成器发出
// complete后才执行持久化，成功时以带完整章节与选择的complete
// 事件收尾，任何失败以error事件收尾。通道最终总会关闭。
func (s *StoryService) AdvanceStoryStream(ctx context.Context, storyID, choiceID, customText string) <-chan StreamEvent {
	events := make(chan StreamEvent, 16)

	go func() {
		defer close(events)

		unlock, err := s.beginAdvance(storyID)
		if err != nil {
			emit(ctx, events, errorEvent(err))
			return
		}
		defer unlock()

		story, worldview, err := s.prepareAdvance(storyID)
		if err != nil {
			emit(ctx, events, errorEvent(err))
			return
		}

		// 续传路径：直接回放已有章节并补齐剩余步骤
		pending, err := s.repo.GetChapterByNumber(storyID, story.CurrentChapterNumber+1)
		if err != nil {
			emit(ctx, events, errorEvent(err))
			return
		}
		if pending != nil {
			if err := s.checkResumeChoice(story, choiceID, customText); err != nil {
				emit(ctx, events, errorEvent(err))
				return
			}
			s.streamResume(ctx, events, story, pending)
			return
		}

		chosenText, err := s.resolveAdvanceChoice(story, choiceID, customText)
		if err != nil {
			emit(ctx, events, errorEvent(err))
			return
		}

		for event := range s.chapters.GenerateChapterStream(ctx, story, worldview, chosenText) {
			switch event.Type {
			case StreamEventComplete:
				chapter := s.buildChapter(story, &ChapterDraft{
					Title:   event.Title,
					Content: event.Content,
					Summary: DeriveSummary(event.Content),
				})
				if err := s.repo.SaveChapter(chapter); err != nil {
					emit(ctx, events, errorEvent(apperrors.NewProcessingError("保存章节失败", err)))
					return
				}
				finished, err := s.finishAdvance(ctx, story, chapter)
				if err != nil {
					emit(ctx, events, errorEvent(err))
					return
				}
				emit(ctx, events, StreamEvent{
					Type:    StreamEventComplete,
					Title:   finished.Title,
					Content: finished.Content,
					Chapter: finished,
					Choices: finished.Choices,
				})
				return
			case StreamEventError:
				emit(ctx, events, event)
				return
			default:
				if !emit(ctx, events, event) {
					return
				}
			}
		}
	}()

	return events
}

// streamResume 以流式事件回放已持久化的章节并完成剩余步骤
func (s *StoryService) streamResume(ctx context.Context, events chan<- StreamEvent, story *models.Story, pending *models.Chapter) {
	if !emit(ctx, events, StreamEvent{Type: StreamEventStart, Message: "续传上次中断的推进"}) {
		return
	}
	if !emit(ctx, events, StreamEvent{Type: StreamEventTitle, Title: pending.Title}) {
		return
	}
	if !emit(ctx, events, StreamEvent{Type: StreamEventContent, Content: pending.Content}) {
		return
	}

	var err error
	chapter := pending
	if len(pending.Choices) > 0 {
		err = s.commitAdvance(story, pending)
	} else {
		chapter, err = s.finishAdvance(ctx, story, pending)
	}
	if err != nil {
		emit(ctx, events, errorEvent(err))
		return
	}

	emit(ctx, events, StreamEvent{
		Type:    StreamEventComplete,
		Title:   chapter.Title,
		Content: chapter.Content,
		Chapter: chapter,
		Choices: chapter.Choices,
	})
}

func errorEvent(err error) StreamEvent {
	return StreamEvent{Type: StreamEventError, Message: err.Error()}
}
