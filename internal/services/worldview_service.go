// internal/services/worldview_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/NovelForgeAI/NovelForge/internal/errors"
	"github.com/NovelForgeAI/NovelForge/internal/models"
	"github.com/NovelForgeAI/NovelForge/internal/utils"
)

// WorldViewService 负责世界观的生成与管理
type WorldViewService struct {
	repo   *StoryRepo
	llm    *LLMService
	logger *utils.Logger
}

// NewWorldViewService 创建世界观服务
func NewWorldViewService(repo *StoryRepo, llm *LLMService) *WorldViewService {
	return &WorldViewService{
		repo:   repo,
		llm:    llm,
		logger: utils.GetLogger(),
	}
}

// worldviewDoc 世界观生成的结构化输出schema
type worldviewDoc struct {
	WorldSetting      string                  `json:"world_setting"`
	PowerSystem       string                  `json:"power_system"`
	SocialStructure   string                  `json:"social_structure"`
	Geography         string                  `json:"geography"`
	HistoryBackground string                  `json:"history_background"`
	MainCharacter     models.CharacterProfile `json:"main_character"`
	MainPlot          string                  `json:"main_plot"`
	ConflictSetup     string                  `json:"conflict_setup"`
	StoryThemes       []string                `json:"story_themes"`
	NarrativeStyle    string                  `json:"narrative_style"`
	ToneAtmosphere    string                  `json:"tone_atmosphere"`
}

// CreateWorldView 为故事生成并持久化世界观框架。
// 故事已有世界观时返回冲突错误；生成结果无法结构化解析或
// 结构不完整时落到按风格预置的默认世界观，保证第一章推进
// 总有可用的世界框架。
func (s *WorldViewService) CreateWorldView(ctx context.Context, storyID, theme string) (*models.WorldView, error) {
	story, err := s.repo.GetStory(storyID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.GetWorldView(storyID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.NewConflictError("该故事已存在世界观", nil)
	}

	worldview, err := s.generateWorldView(ctx, story, theme)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SaveWorldView(worldview); err != nil {
		return nil, apperrors.NewProcessingError("保存世界观失败", err)
	}

	s.logger.Info("世界观创建成功", map[string]interface{}{
		"story_id": storyID,
		"style":    story.Style,
	})
	return worldview, nil
}

// RegenerateWorldView 重新生成世界观并覆盖原有文档
func (s *WorldViewService) RegenerateWorldView(ctx context.Context, storyID, theme string) (*models.WorldView, error) {
	story, err := s.repo.GetStory(storyID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.GetWorldView(storyID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, apperrors.NewNotFoundError("世界观不存在", nil)
	}

	worldview, err := s.generateWorldView(ctx, story, theme)
	if err != nil {
		return nil, err
	}

	// 保留原ID与创建时间，表现为同一文档的更新
	worldview.ID = existing.ID
	worldview.CreatedAt = existing.CreatedAt

	if err := s.repo.SaveWorldView(worldview); err != nil {
		return nil, apperrors.NewProcessingError("保存世界观失败", err)
	}
	return worldview, nil
}

func (s *WorldViewService) generateWorldView(ctx context.Context, story *models.Story, theme string) (*models.WorldView, error) {
	prompt := buildWorldViewPrompt(story.Title, story.Style, theme)

	var doc worldviewDoc
	result, err := s.llm.CreateTaggedCompletion(ctx, prompt, "", &doc)
	if err != nil {
		return nil, apperrors.NewGenerationError(fmt.Sprintf("生成世界观失败: %v", err), err)
	}

	now := time.Now()
	worldview := &models.WorldView{
		ID:        uuid.New().String(),
		StoryID:   story.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if result.Structured {
		worldview.WorldSetting = doc.WorldSetting
		worldview.PowerSystem = doc.PowerSystem
		worldview.SocialStructure = doc.SocialStructure
		worldview.Geography = doc.Geography
		worldview.HistoryBackground = doc.HistoryBackground
		worldview.MainCharacter = doc.MainCharacter
		worldview.MainPlot = doc.MainPlot
		worldview.ConflictSetup = doc.ConflictSetup
		worldview.StoryThemes = doc.StoryThemes
		worldview.NarrativeStyle = doc.NarrativeStyle
		worldview.ToneAtmosphere = doc.ToneAtmosphere
	}

	if !result.Structured || !worldview.Complete() {
		s.logger.Warn("世界观解析失败，使用默认框架", map[string]interface{}{
			"story_id":   story.ID,
			"structured": result.Structured,
		})
		applyDefaultWorldView(worldview, story.Style)
	}

	return worldview, nil
}

// applyDefaultWorldView 填入按风格预置的完整默认世界观
func applyDefaultWorldView(w *models.WorldView, style models.StoryStyle) {
	w.WorldSetting = fmt.Sprintf("这是一个%s风格的世界，充满了神秘和冒险。", style)
	w.PowerSystem = "待完善的力量体系"
	w.SocialStructure = "复杂的社会结构"
	w.Geography = "广阔的世界地图"
	w.HistoryBackground = "悠久的历史传承"
	w.MainCharacter = models.CharacterProfile{
		Name:        "主角",
		Description: "一位有着特殊命运的年轻人",
		Background:  "普通出身",
		Abilities:   "潜力无限",
		Goals:       "成为最强者",
	}
	w.MainPlot = "主角的成长和冒险之路"
	w.ConflictSetup = "正义与邪恶的较量"
	w.StoryThemes = []string{"成长", "友情", "正义"}
	w.NarrativeStyle = "生动有趣的叙述"
	w.ToneAtmosphere = "积极向上的氛围"
}

// GetWorldView 读取故事的世界观，不存在时返回NotFound错误
func (s *WorldViewService) GetWorldView(storyID string) (*models.WorldView, error) {
	if _, err := s.repo.GetStory(storyID); err != nil {
		return nil, err
	}

	worldview, err := s.repo.GetWorldView(storyID)
	if err != nil {
		return nil, err
	}
	if worldview == nil {
		return nil, apperrors.NewNotFoundError("世界观不存在", nil)
	}
	return worldview, nil
}

// UpdateWorldView 合并非空字段更新世界观
func (s *WorldViewService) UpdateWorldView(storyID string, patch *models.WorldView) (*models.WorldView, error) {
	worldview, err := s.GetWorldView(storyID)
	if err != nil {
		return nil, err
	}

	if patch.WorldSetting != "" {
		worldview.WorldSetting = patch.WorldSetting
	}
	if patch.PowerSystem != "" {
		worldview.PowerSystem = patch.PowerSystem
	}
	if patch.SocialStructure != "" {
		worldview.SocialStructure = patch.SocialStructure
	}
	if patch.Geography != "" {
		worldview.Geography = patch.Geography
	}
	if patch.HistoryBackground != "" {
		worldview.HistoryBackground = patch.HistoryBackground
	}
	if patch.MainCharacter.Name != "" {
		worldview.MainCharacter = patch.MainCharacter
	}
	if patch.MainPlot != "" {
		worldview.MainPlot = patch.MainPlot
	}
	if patch.ConflictSetup != "" {
		worldview.ConflictSetup = patch.ConflictSetup
	}
	if len(patch.StoryThemes) > 0 {
		worldview.StoryThemes = patch.StoryThemes
	}
	if patch.NarrativeStyle != "" {
		worldview.NarrativeStyle = patch.NarrativeStyle
	}
	if patch.ToneAtmosphere != "" {
		worldview.ToneAtmosphere = patch.ToneAtmosphere
	}
	worldview.UpdatedAt = time.Now()

	if err := s.repo.SaveWorldView(worldview); err != nil {
		return nil, apperrors.NewProcessingError("保存世界观失败", err)
	}
	return worldview, nil
}

// DeleteWorldView 删除故事的世界观
func (s *WorldViewService) DeleteWorldView(storyID string) error {
	if _, err := s.repo.GetStory(storyID); err != nil {
		return err
	}
	return s.repo.DeleteWorldView(storyID)
}

// AddSupportingCharacter 向世界观添加一个配角
func (s *WorldViewService) AddSupportingCharacter(storyID string, character models.CharacterProfile) (*models.WorldView, error) {
	if character.Name == "" {
		return nil, apperrors.NewValidationError("角色名称不能为空", nil)
	}

	worldview, err := s.GetWorldView(storyID)
	if err != nil {
		return nil, err
	}

	for _, existing := range worldview.SupportingCharacters {
		if existing.Name == character.Name {
			return nil, apperrors.NewConflictError("同名角色已存在", nil)
		}
	}

	worldview.SupportingCharacters = append(worldview.SupportingCharacters, character)
	worldview.UpdatedAt = time.Now()

	if err := s.repo.SaveWorldView(worldview); err != nil {
		return nil, apperrors.NewProcessingError("保存世界观失败", err)
	}
	return worldview, nil
}

// UpdateMainCharacter 更新世界观中的主角设定
func (s *WorldViewService) UpdateMainCharacter(storyID string, character models.CharacterProfile) (*models.WorldView, error) {
	if character.Name == "" {
		return nil, apperrors.NewValidationError("角色名称不能为空", nil)
	}

	worldview, err := s.GetWorldView(storyID)
	if err != nil {
		return nil, err
	}

	worldview.MainCharacter = character
	worldview.UpdatedAt = time.Now()

	if err := s.repo.SaveWorldView(worldview); err != nil {
		return nil, apperrors.NewProcessingError("保存世界观失败", err)
	}
	return worldview, nil
}
