// internal/api/router.go
package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/NovelForgeAI/NovelForge/internal/config"
	"github.com/NovelForgeAI/NovelForge/internal/di"
	"github.com/NovelForgeAI/NovelForge/internal/services"
)

// SetupRouter 配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	cfg := config.GetCurrentConfig()

	// 只从容器获取服务，不创建新实例
	container := di.GetContainer()

	storyService, ok := container.Get("story").(*services.StoryService)
	if !ok {
		return nil, fmt.Errorf("故事服务未正确初始化")
	}

	worldviewService, ok := container.Get("worldview").(*services.WorldViewService)
	if !ok {
		return nil, fmt.Errorf("世界观服务未正确初始化")
	}

	llmService, ok := container.Get("llm").(*services.LLMService)
	if !ok {
		return nil, fmt.Errorf("LLM服务未正确初始化")
	}

	handler := NewHandler(storyService, worldviewService, llmService)

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	// 启用CORS
	r.Use(corsMiddleware())

	r.GET("/health", handler.Health)

	// WebSocket 支持
	r.GET("/ws/stories/:id/advance", handler.AdvanceStoryWebSocket)

	// ===============================
	// API路由组
	// ===============================
	api := r.Group("/api")
	{
		// ===============================
		// 故事相关路由
		// ===============================
		storiesGroup := api.Group("/stories")
		{
			storiesGroup.GET("", handler.GetStories)
			storiesGroup.POST("", handler.CreateStory)
			storiesGroup.GET("/:id", handler.GetStory)
			storiesGroup.DELETE("/:id", handler.DeleteStory)
			storiesGroup.PUT("/:id/status", handler.UpdateStoryStatus)

			// 世界观相关路由
			worldviewGroup := storiesGroup.Group("/:id/worldview")
			{
				worldviewGroup.POST("", handler.CreateWorldView)
				worldviewGroup.GET("", handler.GetWorldView)
				worldviewGroup.PUT("", handler.UpdateWorldView)
				worldviewGroup.DELETE("", handler.DeleteWorldView)
				worldviewGroup.POST("/regenerate", handler.RegenerateWorldView)
				worldviewGroup.POST("/characters", handler.AddSupportingCharacter)
				worldviewGroup.PUT("/main-character", handler.UpdateMainCharacter)
			}

			// 章节与推进相关路由
			storiesGroup.GET("/:id/chapters", handler.GetStoryChapters)
			storiesGroup.POST("/:id/choice", handler.MakeChoice)
			storiesGroup.GET("/:id/choices/history", handler.GetChoiceHistory)
			storiesGroup.POST("/:id/advance", handler.AdvanceStory)
			storiesGroup.GET("/:id/advance/stream", handler.AdvanceStoryStream)
		}

		// ===============================
		// 章节相关路由
		// ===============================
		chaptersGroup := api.Group("/chapters")
		{
			chaptersGroup.GET("/:id", handler.GetChapter)
			chaptersGroup.GET("/:id/choices", handler.GetChapterChoices)
		}

		// ===============================
		// LLM配置相关路由
		// ===============================
		llmGroup := api.Group("/llm")
		{
			llmGroup.GET("/status", handler.GetLLMStatus)
			llmGroup.GET("/models", handler.GetLLMModels)
			llmGroup.PUT("/config", handler.UpdateLLMConfig)
		}
	}

	return r, nil
}

// corsMiddleware 跨域中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers",
			"Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
