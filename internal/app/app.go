// internal/app/app.go
package app

import (
	"fmt"
	"path/filepath"

	"github.com/NovelForgeAI/NovelForge/internal/config"
	"github.com/NovelForgeAI/NovelForge/internal/di"
	"github.com/NovelForgeAI/NovelForge/internal/services"
	"github.com/NovelForgeAI/NovelForge/internal/storage"
	"github.com/NovelForgeAI/NovelForge/internal/utils"
)

// InitServices 按依赖顺序初始化所有服务并注册到DI容器。
// 顺序：存储 -> 仓库 -> LLM -> 世界观 -> 章节 -> 故事。
func InitServices() error {
	cfg := config.GetCurrentConfig()
	container := di.GetContainer()
	logger := utils.GetLogger()

	// 1. 存储层
	store, err := storage.NewJSONStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("初始化存储失败: %w", err)
	}
	container.Register("storage", store)

	// 2. 故事仓库
	repo := services.NewStoryRepo(store)
	container.Register("repo", repo)

	// 3. LLM服务。API密钥缺失时返回未就绪实例，服务器照常启动，
	// 生成类操作在配置密钥前返回错误。
	llmService, err := services.NewLLMService()
	if err != nil {
		return fmt.Errorf("初始化LLM服务失败: %w", err)
	}
	container.Register("llm", llmService)
	if !llmService.IsReady() {
		logger.Warn("LLM服务未就绪", map[string]interface{}{
			"state": llmService.GetReadyState(),
		})
	}

	// 4. 领域服务
	worldviewService := services.NewWorldViewService(repo, llmService)
	container.Register("worldview", worldviewService)

	chapterService := services.NewChapterService(llmService, cfg.ChapterMinLength, cfg.ChapterMaxLength)
	container.Register("chapter", chapterService)

	storyService := services.NewStoryService(repo, worldviewService, chapterService, cfg.ChoiceCount)
	container.Register("story", storyService)

	logger.Info("服务初始化完成", map[string]interface{}{
		"services": len(container.GetNames()),
	})
	return nil
}

// InitLogger 初始化全局日志器
func InitLogger() error {
	cfg := config.GetCurrentConfig()

	logFile := filepath.Join(cfg.LogDir, "novelforge.log")
	if err := utils.InitLogger(logFile); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}

	logger := utils.GetLogger()
	if cfg.DebugMode {
		logger.SetLogLevel(utils.DEBUG)
	}
	return nil
}
