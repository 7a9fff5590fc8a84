// internal/services/context_service.go
package services

import (
	"fmt"
	"strings"

	"github.com/NovelForgeAI/NovelForge/internal/models"
)

// BuildStoryContext 将故事状态装配成提供给生成器的上下文文本。
//
// 纯函数：相同输入产生字节级相同的输出。段落顺序固定为
// 风格、标题、世界观框架、章节摘要、角色信息、上次选择；
// 空的段落整体省略。角色按名称排序以保证确定性。
func BuildStoryContext(story *models.Story, worldview *models.WorldView, previousChoice string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "故事风格：%s\n", story.Style)
	fmt.Fprintf(&b, "故事标题：%s\n", story.Title)

	if worldview != nil {
		if summary := worldview.ContextSummary(); summary != "" {
			fmt.Fprintf(&b, "\n世界观框架：\n%s\n", summary)
		}
	}

	if len(story.ChapterSummaries) > 0 {
		b.WriteString("\n之前的故事情节：\n")
		for i, summary := range story.ChapterSummaries {
			fmt.Fprintf(&b, "第%d章：%s\n", i+1, summary)
		}
	}

	if len(story.CharacterInfo) > 0 {
		b.WriteString("\n主要角色：\n")
		for _, name := range models.SortedCharacterNames(story.CharacterInfo) {
			fmt.Fprintf(&b, "%s：%s\n", name, story.CharacterInfo[name])
		}
	}

	if previousChoice != "" {
		fmt.Fprintf(&b, "\n用户的选择：%s\n", previousChoice)
	}

	return b.String()
}
