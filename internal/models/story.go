// internal/models/story.go
package models

import (
	"time"
)

// StoryStyle 故事风格
type StoryStyle string

const (
	// StyleXianxia 修仙风格
	StyleXianxia StoryStyle = "修仙"
	// StyleWuxia 武侠风格
	StyleWuxia StoryStyle = "武侠"
	// StyleSciFi 科技风格
	StyleSciFi StoryStyle = "科技"
)

// StoryStatus 故事生命周期状态
type StoryStatus string

const (
	StatusActive    StoryStatus = "active"
	StatusCompleted StoryStatus = "completed"
	StatusPaused    StoryStatus = "paused"
)

// ChoiceType 选择来源类型
type ChoiceType string

const (
	// ChoiceGenerated 表示AI生成的选择
	ChoiceGenerated ChoiceType = "GENERATED"
	// ChoiceCustom 表示读者自定义的选择
	ChoiceCustom ChoiceType = "CUSTOM"
)

// Story 表示一个完整的分支小说会话
//
// 不变量：在任何静止时刻 CurrentChapterNumber == 已持久化章节数，
// 且 len(ChapterSummaries) == CurrentChapterNumber。
// 推进操作的中间失败窗口（章节已写、选择未写）由 StoryService 的
// 续传逻辑收敛回该不变量。
type Story struct {
	ID                   string            `json:"id"`
	Title                string            `json:"title"`
	Style                StoryStyle        `json:"style"`
	Status               StoryStatus       `json:"status"`
	CurrentChapterNumber int               `json:"current_chapter_number"`
	ChapterSummaries     []string          `json:"chapter_summaries"` // 下标i对应第i+1章
	CharacterInfo        map[string]string `json:"character_info"`    // 角色名 -> 描述
	UserID               string            `json:"user_id"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// Chapter 表示故事中的一个章节，创建后不可修改
type Chapter struct {
	ID            string    `json:"id"`
	StoryID       string    `json:"story_id"`
	ChapterNumber int       `json:"chapter_number"` // 从1开始，故事内唯一
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	Summary       string    `json:"summary"` // 内容的定长前缀摘要
	Choices       []Choice  `json:"choices"`
	CreatedAt     time.Time `json:"created_at"`
}

// Choice 表示章节结尾的一个读者选项
type Choice struct {
	ID         string     `json:"id"`
	ChapterID  string     `json:"chapter_id"`
	Text       string     `json:"text"`
	Type       ChoiceType `json:"type"`
	IsSelected bool       `json:"is_selected"` // 每章最多一个true，且只升不降
	CreatedAt  time.Time  `json:"created_at"`
}

// SelectedChoice 返回章节中已选中的选择，没有则返回nil
func (c *Chapter) SelectedChoice() *Choice {
	for i := range c.Choices {
		if c.Choices[i].IsSelected {
			return &c.Choices[i]
		}
	}
	return nil
}

// FindChoice 按ID查找章节内的选择
func (c *Chapter) FindChoice(choiceID string) *Choice {
	for i := range c.Choices {
		if c.Choices[i].ID == choiceID {
			return &c.Choices[i]
		}
	}
	return nil
}

// ChoiceHistoryEntry 选择历史中的一条记录
type ChoiceHistoryEntry struct {
	ChapterNumber int    `json:"chapter_number"`
	ChapterTitle  string `json:"chapter_title"`
	Choice        Choice `json:"choice"`
}

// DefaultTitle 返回风格对应的默认故事标题
func DefaultTitle(style StoryStyle) string {
	switch style {
	case StyleXianxia:
		return "修仙传奇"
	case StyleWuxia:
		return "江湖风云"
	case StyleSciFi:
		return "星际探索"
	default:
		return "未知冒险"
	}
}

// ValidStyle 检查风格取值是否合法
func ValidStyle(style StoryStyle) bool {
	switch style {
	case StyleXianxia, StyleWuxia, StyleSciFi:
		return true
	}
	return false
}
