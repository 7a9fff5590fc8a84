// internal/services/prompts.go
package services

import (
	"fmt"
	"strings"

	"github.com/NovelForgeAI/NovelForge/internal/models"
)

// 各风格的章节创作提示词模板，%d占位为章节字数区间
var stylePrompts = map[models.StoryStyle]string{
	models.StyleXianxia: `你是一位专业的修仙小说作家。请创作一个修仙风格的故事章节，包含以下元素：
- 古典仙侠世界观，包含修炼体系、门派、法宝等元素
- 生动的人物描写和对话
- 引人入胜的情节发展
- 适当的悬念和冲突
章节长度应在%d-%d字之间。`,
	models.StyleWuxia: `你是一位专业的武侠小说作家。请创作一个武侠风格的故事章节，包含以下元素：
- 江湖世界观，包含武功、门派、恩怨情仇
- 侠义精神和江湖道义
- 精彩的武打场面描写
- 人物性格鲜明，对话生动
章节长度应在%d-%d字之间。`,
	models.StyleSciFi: `你是一位专业的科幻小说作家。请创作一个科技风格的故事章节，包含以下元素：
- 未来科技世界观，包含先进科技、太空探索、AI文明
- 科学幻想与人文思考的结合
- 紧张刺激的情节发展
- 对未来社会的深度思考
章节长度应在%d-%d字之间。`,
}

// 各风格的世界观设计要素提示词
var worldviewStylePrompts = map[models.StoryStyle]string{
	models.StyleXianxia: `请为修仙小说创建详细的世界观框架，包含：
- 修炼体系：境界划分、修炼方法、灵气设定
- 门派势力：各大门派、势力分布、关系网络
- 地理环境：修仙界地图、秘境、险地
- 历史背景：上古传说、重大事件、时代变迁
- 主角设定：出身背景、天赋特点、初始实力
- 主线剧情：成长路线、主要冲突、终极目标`,
	models.StyleWuxia: `请为武侠小说创建详细的世界观框架，包含：
- 武功体系：内功外功、武学流派、绝世神功
- 江湖势力：门派帮会、朝廷势力、江湖规矩
- 地理环境：江湖地图、名山大川、隐秘之地
- 历史背景：武林历史、恩怨情仇、传奇人物
- 主角设定：出身来历、武学天赋、性格特点
- 主线剧情：江湖路线、主要矛盾、最终目标`,
	models.StyleSciFi: `请为科幻小说创建详细的世界观框架，包含：
- 科技体系：未来科技、AI系统、星际文明
- 社会结构：政治体制、经济模式、阶层分化
- 地理环境：星际地图、殖民星球、太空站点
- 历史背景：科技发展史、重大事件、文明冲突
- 主角设定：职业背景、技能特长、使命目标
- 主线剧情：探索路线、核心冲突、终极愿景`,
}

func stylePrompt(style models.StoryStyle, minLength, maxLength int) string {
	tpl, ok := stylePrompts[style]
	if !ok {
		tpl = stylePrompts[models.StyleXianxia]
	}
	return fmt.Sprintf(tpl, minLength, maxLength)
}

// buildWorldViewPrompt 构建世界观生成提示词
func buildWorldViewPrompt(title string, style models.StoryStyle, theme string) string {
	basePrompt, ok := worldviewStylePrompts[style]
	if !ok {
		basePrompt = worldviewStylePrompts[models.StyleXianxia]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "你是一位专业的%s小说世界观设计师。请为小说《%s》创建完整的世界观框架。\n\n", style, title)
	b.WriteString(basePrompt)
	if theme != "" {
		fmt.Fprintf(&b, "\n\n故事主题：%s", theme)
	}
	b.WriteString(`

请返回JSON格式的世界观框架，包含以下字段：
{
    "world_setting": "世界设定的总体描述",
    "power_system": "力量体系的详细说明",
    "social_structure": "社会结构和势力分布",
    "geography": "地理环境和重要地点",
    "history_background": "历史背景和重要事件",
    "main_character": {
        "name": "主角姓名",
        "description": "主角详细设定",
        "background": "出身背景",
        "abilities": "初始能力",
        "goals": "主要目标"
    },
    "main_plot": "主线剧情框架",
    "conflict_setup": "主要冲突设置",
    "story_themes": ["主题1", "主题2", "主题3"],
    "narrative_style": "叙述风格特点",
    "tone_atmosphere": "整体基调和氛围"
}`)
	return b.String()
}

// buildChapterPrompt 构建结构化章节生成提示词
func buildChapterPrompt(style models.StoryStyle, context string, minLength, maxLength int) string {
	return fmt.Sprintf(`%s

%s

请基于以上信息，创作下一章节的内容。要求：
1. 章节内容要连贯自然，与之前的情节呼应
2. 如果有用户选择，要体现选择的影响
3. 在章节结尾设置适当的悬念
4. 返回格式为JSON，包含title（章节标题）和content（章节内容）

示例格式：
{
    "title": "章节标题",
    "content": "章节内容..."
}`, stylePrompt(style, minLength, maxLength), context)
}

// buildStreamChapterPrompt 构建流式章节生成提示词，直接输出正文
func buildStreamChapterPrompt(style models.StoryStyle, context string, minLength, maxLength int) string {
	return fmt.Sprintf(`%s

%s

请基于以上信息，创作下一章节的内容。要求：
1. 章节内容要连贯自然，与之前的情节呼应
2. 如果有用户选择，要体现选择的影响
3. 在章节结尾设置适当的悬念
4. 直接输出章节内容，不需要JSON格式
5. 章节标题单独一行，然后是章节内容`, stylePrompt(style, minLength, maxLength), context)
}

// buildChoicesPrompt 构建选择选项生成提示词
func buildChoicesPrompt(chapterContent string, style models.StoryStyle, count int) string {
	return fmt.Sprintf(`基于以下章节内容，生成%d个不同的选择选项，让读者决定故事的发展方向。

章节内容：
%s

要求：
1. %d个选择要有明显的差异，代表不同的发展方向
2. 选择要符合%s风格
3. 每个选择都要简洁明了，不超过30字
4. 返回JSON格式的数组

示例格式：
["选择1", "选择2", "选择3"]`, count, chapterContent, count, style)
}
