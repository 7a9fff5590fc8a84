// internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/NovelForgeAI/NovelForge/internal/config"
	"github.com/NovelForgeAI/NovelForge/internal/llm"
	"github.com/NovelForgeAI/NovelForge/internal/models"
	"github.com/NovelForgeAI/NovelForge/internal/services"
	"github.com/NovelForgeAI/NovelForge/internal/utils"
)

// Handler API处理器
type Handler struct {
	StoryService     *services.StoryService
	WorldViewService *services.WorldViewService
	LLMService       *services.LLMService
	Response         *ResponseHelper
	logger           *utils.Logger
}

// NewHandler 创建API处理器
func NewHandler(
	storyService *services.StoryService,
	worldviewService *services.WorldViewService,
	llmService *services.LLMService) *Handler {
	return &Handler{
		StoryService:     storyService,
		WorldViewService: worldviewService,
		LLMService:       llmService,
		Response:         NewResponseHelper(),
		logger:           utils.GetLogger(),
	}
}

// generationContext 按配置的生成超时构建上下文
func generationContext(parent context.Context) (context.Context, context.CancelFunc) {
	cfg := config.GetCurrentConfig()
	timeout := time.Duration(cfg.GenerationTimeout) * time.Second
	return context.WithTimeout(parent, timeout)
}

// ===============================
// 故事相关
// ===============================

// CreateStoryRequest 创建故事的请求体
type CreateStoryRequest struct {
	Title         string `json:"title"`
	Style         string `json:"style" binding:"required"`
	UserID        string `json:"user_id"`
	WithWorldView bool   `json:"with_worldview"`
	Theme         string `json:"theme"`
}

// CreateStory 创建新故事，可选同时生成世界观
func (h *Handler) CreateStory(c *gin.Context) {
	var req CreateStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误: "+err.Error())
		return
	}

	style := models.StoryStyle(req.Style)

	if req.WithWorldView {
		ctx, cancel := generationContext(c.Request.Context())
		defer cancel()

		story, worldview, err := h.StoryService.CreateStoryWithWorldView(ctx, style, req.Title, req.UserID, req.Theme)
		if err != nil {
			h.Response.ServiceError(c, err)
			return
		}
		h.Response.Created(c, gin.H{"story": story, "worldview": worldview})
		return
	}

	story, err := h.StoryService.CreateStory(style, req.Title, req.UserID)
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Created(c, story)
}

// GetStories 列出故事，支持按用户过滤
func (h *Handler) GetStories(c *gin.Context) {
	userID := c.Query("user_id")

	var stories []*models.Story
	var err error
	if userID != "" {
		stories, err = h.StoryService.GetUserStories(userID)
	} else {
		stories, err = h.StoryService.GetAllStories()
	}
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Success(c, stories)
}

// GetStory 获取单个故事
func (h *Handler) GetStory(c *gin.Context) {
	story, err := h.StoryService.GetStory(c.Param("id"))
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Success(c, story)
}

// DeleteStory 删除故事及其全部章节与世界观
func (h *Handler) DeleteStory(c *gin.Context) {
	if err := h.StoryService.DeleteStory(c.Param("id")); err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Success(c, nil, "故事已删除")
}

// UpdateStoryStatusRequest 更新故事状态的请求体
type UpdateStoryStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStoryStatus 更新故事生命周期状态
func (h *Handler) UpdateStoryStatus(c *gin.Context) {
	var req UpdateStoryStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误: "+err.Error())
		return
	}

	story, err := h.StoryService.UpdateStoryStatus(c.Param("id"), models.StoryStatus(req.Status))
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Success(c, story)
}

// ===============================
// 世界观相关
// ===============================

// WorldViewRequest 世界观生成请求体
type WorldViewRequest struct {
	Theme string `json:"theme"`
}

// CreateWorldView 为故事生成世界观
func (h *Handler) CreateWorldView(c *gin.Context) {
	var req WorldViewRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		h.Response.BadRequest(c, "请求格式错误: "+err.Error())
		return
	}

	ctx, cancel := generationContext(c.Request.Context())
	defer cancel()

	worldview, err := h.WorldViewService.CreateWorldView(ctx, c.Param("id"), req.Theme)
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Created(c, worldview)
}

// GetWorldView 获取故事的世界观
func (h *Handler) GetWorldView(c *gin.Context) {
	worldview, err := h.WorldViewService.GetWorldView(c.Param("id"))
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Success(c, worldview)
}

// UpdateWorldView 按非空字段更新世界观
func (h *Handler) UpdateWorldView(c *gin.Context) {
	var patch models.WorldView
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.Response.BadRequest(c, "请求格式错误: "+err.Error())
		return
	}

	worldview, err := h.WorldViewService.UpdateWorldView(c.Param("id"), &patch)
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Success(c, worldview)
}

// RegenerateWorldView 重新生成世界观
func (h *Handler) RegenerateWorldView(c *gin.Context) {
	var req WorldViewRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		h.Response.BadRequest(c, "请求格式错误: "+err.Error())
		return
	}

	ctx, cancel := generationContext(c.Request.Context())
	defer cancel()

	worldview, err := h.WorldViewService.RegenerateWorldView(ctx, c.Param("id"), req.Theme)
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Success(c, worldview)
}

// DeleteWorldView 删除故事的世界观
func (h *Handler) DeleteWorldView(c *gin.Context) {
	if err := h.WorldViewService.DeleteWorldView(c.Param("id")); err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Success(c, nil, "世界观已删除")
}

// AddSupportingCharacter 向世界观添加配角
func (h *Handler) AddSupportingCharacter(c *gin.Context) {
	var character models.CharacterProfile
	if err := c.ShouldBindJSON(&character); err != nil {
		h.Response.BadRequest(c, "请求格式错误: "+err.Error())
		return
	}

	worldview, err := h.WorldViewService.AddSupportingCharacter(c.Param("id"), character)
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Success(c, worldview)
}

// UpdateMainCharacter 更新世界观主角设定
func (h *Handler) UpdateMainCharacter(c *gin.Context) {
	var character models.CharacterProfile
	if err := c.ShouldBindJSON(&character); err != nil {
		h.Response.BadRequest(c, "请求格式错误: "+err.Error())
		return
	}

	worldview, err := h.WorldViewService.UpdateMainCharacter(c.Param("id"), character)
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Success(c, worldview)
}

// ===============================
// 章节与选择
// ===============================

// GetStoryChapters 获取故事的全部章节
func (h *Handler) GetStoryChapters(c *gin.Context) {
	chapters, err := h.StoryService.GetStoryChapters(c.Param("id"))
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Success(c, chapters)
}

// GetChapter 按ID获取章节
func (h *Handler) GetChapter(c *gin.Context) {
	chapter, err := h.StoryService.GetChapter(c.Param("id"))
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Success(c, chapter)
}

// GetChapterChoices 获取章节的选择选项
func (h *Handler) GetChapterChoices(c *gin.Context) {
	choices, err := h.StoryService.GetChapterChoices(c.Param("id"))
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Success(c, choices)
}

// GetChoiceHistory 获取故事的选择历史时间线
func (h *Handler) GetChoiceHistory(c *gin.Context) {
	history, err := h.StoryService.GetChoiceHistory(c.Param("id"))
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Success(c, history)
}

// ChoiceRequest 选择判定请求体，choice_id与custom_text二选一
type ChoiceRequest struct {
	ChoiceID   string `json:"choice_id"`
	CustomText string `json:"custom_text"`
}

// MakeChoice 在最新章节上判定读者选择
func (h *Handler) MakeChoice(c *gin.Context) {
	var req ChoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误: "+err.Error())
		return
	}

	chosenText, err := h.StoryService.ResolveChoice(c.Param("id"), req.ChoiceID, req.CustomText)
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"chosen_text": chosenText})
}

// ===============================
// 推进
// ===============================

// AdvanceStory 同步推进故事一章
func (h *Handler) AdvanceStory(c *gin.Context) {
	var req ChoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		h.Response.BadRequest(c, "请求格式错误: "+err.Error())
		return
	}

	ctx, cancel := generationContext(c.Request.Context())
	defer cancel()

	chapter, err := h.StoryService.AdvanceStory(ctx, c.Param("id"), req.ChoiceID, req.CustomText)
	if err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Success(c, chapter)
}

// AdvanceStoryStream 流式推进故事的SSE端点。
// 事件名与事件类型一致：start/title/content/complete/error。
func (h *Handler) AdvanceStoryStream(c *gin.Context) {
	choiceID := c.Query("choice_id")
	customText := c.Query("custom_text")

	// 设置SSE响应头
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Transfer-Encoding", "chunked")

	ctx, cancel := generationContext(c.Request.Context())
	defer cancel()

	clientGone := c.Request.Context().Done()
	events := h.StoryService.AdvanceStoryStream(ctx, c.Param("id"), choiceID, customText)

	for {
		select {
		case <-clientGone:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("序列化流式事件失败", map[string]interface{}{"error": err})
				return
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event.Type, string(data))
			c.Writer.Flush()

			if event.Type == services.StreamEventComplete || event.Type == services.StreamEventError {
				return
			}
		}
	}
}

// ===============================
// LLM配置
// ===============================

// GetLLMStatus 获取LLM服务状态
func (h *Handler) GetLLMStatus(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"ready":    h.LLMService.IsReady(),
		"state":    h.LLMService.GetReadyState(),
		"provider": h.LLMService.GetProviderName(),
	})
}

// GetLLMModels 列出所有提供者及其支持的模型
func (h *Handler) GetLLMModels(c *gin.Context) {
	providers := llm.ListProviders()
	result := make(map[string][]string, len(providers))
	for _, name := range providers {
		result[name] = llm.GetSupportedModelsForProvider(name)
	}
	h.Response.Success(c, result)
}

// UpdateLLMConfigRequest LLM配置更新请求体
type UpdateLLMConfigRequest struct {
	Provider string            `json:"provider" binding:"required"`
	Config   map[string]string `json:"config" binding:"required"`
}

// UpdateLLMConfig 切换LLM提供者并持久化配置
func (h *Handler) UpdateLLMConfig(c *gin.Context) {
	var req UpdateLLMConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误: "+err.Error())
		return
	}

	if err := h.LLMService.UpdateProvider(req.Provider, req.Config); err != nil {
		h.Response.BadRequest(c, "更新LLM提供者失败: "+err.Error())
		return
	}

	if err := config.UpdateLLMConfig(req.Provider, req.Config); err != nil {
		h.Response.ServiceError(c, err)
		return
	}
	h.Response.Success(c, nil, "LLM配置已更新")
}

// Health 健康检查端点
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"llm_ready": h.LLMService.IsReady(),
		"time":      time.Now().Unix(),
	})
}
