// internal/models/worldview.go
package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// CharacterProfile 世界观中的角色设定
type CharacterProfile struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Background  string `json:"background,omitempty"`
	Abilities   string `json:"abilities,omitempty"`
	Goals       string `json:"goals,omitempty"`
}

// WorldView 故事的世界观框架，每个故事至多一个，在第一章之前生成
type WorldView struct {
	ID      string `json:"id"`
	StoryID string `json:"story_id"`

	// 世界核心要素
	WorldSetting      string `json:"world_setting"`
	PowerSystem       string `json:"power_system"`
	SocialStructure   string `json:"social_structure"`
	Geography         string `json:"geography"`
	HistoryBackground string `json:"history_background"`

	// 角色设定
	MainCharacter        CharacterProfile   `json:"main_character"`
	SupportingCharacters []CharacterProfile `json:"supporting_characters"`
	Antagonists          []CharacterProfile `json:"antagonists"`

	// 故事框架
	MainPlot      string   `json:"main_plot"`
	ConflictSetup string   `json:"conflict_setup"`
	StoryThemes   []string `json:"story_themes"`

	// 风格特色
	NarrativeStyle string `json:"narrative_style"`
	ToneAtmosphere string `json:"tone_atmosphere"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ContextSummary 生成世界观的上下文摘要，只包含非空字段，供AI生成使用
func (w *WorldView) ContextSummary() string {
	var sb strings.Builder

	sb.WriteString("世界设定：" + w.WorldSetting + "\n")

	if w.PowerSystem != "" {
		sb.WriteString("力量体系：" + w.PowerSystem + "\n")
	}
	if w.SocialStructure != "" {
		sb.WriteString("社会结构：" + w.SocialStructure + "\n")
	}
	if w.Geography != "" {
		sb.WriteString("地理环境：" + w.Geography + "\n")
	}
	if w.HistoryBackground != "" {
		sb.WriteString("历史背景：" + w.HistoryBackground + "\n")
	}
	if w.MainCharacter.Name != "" {
		sb.WriteString(fmt.Sprintf("主角设定：%s - %s\n", w.MainCharacter.Name, w.MainCharacter.Description))
	}
	if w.MainPlot != "" {
		sb.WriteString("主线剧情：" + w.MainPlot + "\n")
	}
	if w.ConflictSetup != "" {
		sb.WriteString("冲突设置：" + w.ConflictSetup + "\n")
	}
	if w.NarrativeStyle != "" {
		sb.WriteString("叙述风格：" + w.NarrativeStyle + "\n")
	}
	if w.ToneAtmosphere != "" {
		sb.WriteString("基调氛围：" + w.ToneAtmosphere + "\n")
	}

	return sb.String()
}

// Complete 检查世界观文档是否满足下游装配所需的最小结构
func (w *WorldView) Complete() bool {
	return w.WorldSetting != "" && w.MainCharacter.Name != "" && w.MainPlot != ""
}

// SortedCharacterNames 返回排序后的角色名列表，保证遍历顺序稳定
func SortedCharacterNames(info map[string]string) []string {
	names := make([]string, 0, len(info))
	for name := range info {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
