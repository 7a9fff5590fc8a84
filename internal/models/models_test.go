// internal/models/models_test.go
package models

import (
	"strings"
	"testing"
)

func TestSelectedChoice(t *testing.T) {
	chapter := &Chapter{
		Choices: []Choice{
			{ID: "c1", Text: "选择1"},
			{ID: "c2", Text: "选择2", IsSelected: true},
			{ID: "c3", Text: "选择3"},
		},
	}

	selected := chapter.SelectedChoice()
	if selected == nil || selected.ID != "c2" {
		t.Fatalf("选中的选择错误: %+v", selected)
	}

	empty := &Chapter{Choices: []Choice{{ID: "c1"}}}
	if empty.SelectedChoice() != nil {
		t.Error("无选中时应返回nil")
	}
}

func TestFindChoice(t *testing.T) {
	chapter := &Chapter{
		Choices: []Choice{{ID: "c1"}, {ID: "c2"}},
	}

	if chapter.FindChoice("c2") == nil {
		t.Error("存在的选择应能找到")
	}
	if chapter.FindChoice("c9") != nil {
		t.Error("不存在的选择应返回nil")
	}

	// 返回的是切片内元素的指针，修改应反映到章节上
	chapter.FindChoice("c1").IsSelected = true
	if !chapter.Choices[0].IsSelected {
		t.Error("FindChoice应返回可修改的指针")
	}
}

func TestDefaultTitle(t *testing.T) {
	tests := []struct {
		style StoryStyle
		title string
	}{
		{StyleXianxia, "修仙传奇"},
		{StyleWuxia, "江湖风云"},
		{StyleSciFi, "星际探索"},
	}

	for _, tt := range tests {
		if got := DefaultTitle(tt.style); got != tt.title {
			t.Errorf("DefaultTitle(%s) = %q, 期望 %q", tt.style, got, tt.title)
		}
	}
}

func TestValidStyle(t *testing.T) {
	for _, style := range []StoryStyle{StyleXianxia, StyleWuxia, StyleSciFi} {
		if !ValidStyle(style) {
			t.Errorf("合法风格被拒绝: %s", style)
		}
	}
	if ValidStyle("言情") {
		t.Error("非法风格被接受")
	}
}

func TestContextSummary_OmitsEmptyFields(t *testing.T) {
	worldview := &WorldView{
		WorldSetting: "九州修仙界",
		MainPlot:     "逆天改命",
	}

	summary := worldview.ContextSummary()
	if !strings.Contains(summary, "世界设定：九州修仙界") {
		t.Errorf("摘要缺少世界设定:\n%s", summary)
	}
	if !strings.Contains(summary, "主线剧情：逆天改命") {
		t.Errorf("摘要缺少主线剧情:\n%s", summary)
	}
	if strings.Contains(summary, "力量体系") {
		t.Errorf("空字段不应出现在摘要中:\n%s", summary)
	}
}

func TestWorldViewComplete(t *testing.T) {
	worldview := &WorldView{
		WorldSetting:  "九州",
		MainCharacter: CharacterProfile{Name: "林昭"},
		MainPlot:      "逆天改命",
	}
	if !worldview.Complete() {
		t.Error("完整世界观应通过检查")
	}

	worldview.MainPlot = ""
	if worldview.Complete() {
		t.Error("缺少主线剧情不应通过检查")
	}
}
