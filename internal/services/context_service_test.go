// internal/services/context_service_test.go
package services

import (
	"strings"
	"testing"

	"github.com/NovelForgeAI/NovelForge/internal/models"
)

func sampleStory() *models.Story {
	return &models.Story{
		ID:                   "story-1",
		Title:                "修仙传奇",
		Style:                models.StyleXianxia,
		Status:               models.StatusActive,
		CurrentChapterNumber: 2,
		ChapterSummaries:     []string{"少年离家拜入仙门", "初次下山遭遇妖兽"},
		CharacterInfo: map[string]string{
			"林昭": "主角，山村少年",
			"白芷": "同门师姐",
		},
	}
}

func sampleWorldView() *models.WorldView {
	return &models.WorldView{
		WorldSetting:  "九州修仙界",
		PowerSystem:   "炼气到渡劫九境",
		MainCharacter: models.CharacterProfile{Name: "林昭", Description: "山村少年"},
		MainPlot:      "逆天改命",
	}
}

func TestBuildStoryContext_Deterministic(t *testing.T) {
	story := sampleStory()
	worldview := sampleWorldView()

	first := BuildStoryContext(story, worldview, "前往昆仑山")
	for i := 0; i < 10; i++ {
		if got := BuildStoryContext(story, worldview, "前往昆仑山"); got != first {
			t.Fatalf("相同输入产生了不同的上下文:\n第一次:\n%s\n第%d次:\n%s", first, i+2, got)
		}
	}
}

func TestBuildStoryContext_SectionOrder(t *testing.T) {
	context := BuildStoryContext(sampleStory(), sampleWorldView(), "前往昆仑山")

	markers := []string{"故事风格：", "故事标题：", "世界观框架：", "之前的故事情节：", "主要角色：", "用户的选择："}
	lastIndex := -1
	for _, marker := range markers {
		index := strings.Index(context, marker)
		if index < 0 {
			t.Fatalf("上下文缺少段落 %q:\n%s", marker, context)
		}
		if index < lastIndex {
			t.Fatalf("段落 %q 出现位置错误:\n%s", marker, context)
		}
		lastIndex = index
	}
}

func TestBuildStoryContext_SummariesNumbered(t *testing.T) {
	context := BuildStoryContext(sampleStory(), nil, "")

	if !strings.Contains(context, "第1章：少年离家拜入仙门") {
		t.Errorf("摘要编号错误:\n%s", context)
	}
	if !strings.Contains(context, "第2章：初次下山遭遇妖兽") {
		t.Errorf("摘要编号错误:\n%s", context)
	}
}

func TestBuildStoryContext_OmitsEmptySections(t *testing.T) {
	story := &models.Story{
		Title: "空故事",
		Style: models.StyleWuxia,
	}

	context := BuildStoryContext(story, nil, "")

	for _, marker := range []string{"世界观框架：", "之前的故事情节：", "主要角色：", "用户的选择："} {
		if strings.Contains(context, marker) {
			t.Errorf("空段落 %q 不应出现:\n%s", marker, context)
		}
	}
}

func TestBuildStoryContext_CharactersSorted(t *testing.T) {
	story := sampleStory()
	context := BuildStoryContext(story, nil, "")

	// 角色按名称排序，"林昭" 在 "白芷" 之前（按Unicode码点）
	linIndex := strings.Index(context, "林昭：")
	baiIndex := strings.Index(context, "白芷：")
	if linIndex < 0 || baiIndex < 0 {
		t.Fatalf("角色信息缺失:\n%s", context)
	}
	if linIndex > baiIndex {
		t.Errorf("角色顺序不稳定:\n%s", context)
	}
}

func TestDeriveSummary(t *testing.T) {
	short := "很短的内容"
	if got := DeriveSummary(short); got != short {
		t.Errorf("短内容摘要应原样返回, got %q", got)
	}

	long := strings.Repeat("修", 300)
	summary := DeriveSummary(long)
	runes := []rune(summary)
	if len(runes) != 203 {
		t.Errorf("摘要长度错误: 期望203个字符(200+省略号), 实际%d", len(runes))
	}
	if !strings.HasSuffix(summary, "...") {
		t.Errorf("长内容摘要应以省略号结尾: %q", summary)
	}
}
