// internal/services/story_repo.go
package services

import (
	"fmt"
	"sort"

	apperrors "github.com/NovelForgeAI/NovelForge/internal/errors"
	"github.com/NovelForgeAI/NovelForge/internal/models"
	"github.com/NovelForgeAI/NovelForge/internal/storage"
)

const (
	storiesDir        = "stories"
	storyFile         = "story.json"
	worldviewFile     = "worldview.json"
	chaptersSubdir    = "chapters"
	chapterFilePrefix = "chapter_"
)

// StoryRepo 负责故事及其下属实体的持久化布局：
//
//	stories/<story_id>/story.json
//	stories/<story_id>/worldview.json
//	stories/<story_id>/chapters/chapter_%04d.json
//
// 选择随章节文档一起存储。删除故事目录即为级联删除。
type StoryRepo struct {
	store *storage.JSONStore
}

// NewStoryRepo 创建故事存储仓库
func NewStoryRepo(store *storage.JSONStore) *StoryRepo {
	return &StoryRepo{store: store}
}

func storyDir(storyID string) string {
	return storiesDir + "/" + storyID
}

func chaptersDir(storyID string) string {
	return storyDir(storyID) + "/" + chaptersSubdir
}

func chapterFilename(number int) string {
	return fmt.Sprintf("%s%04d.json", chapterFilePrefix, number)
}

// SaveStory 写入故事文档。故事计数器与摘要的更新都经由这一个
// 原子写入完成，对应规范要求的"原子更新Story字段"。
func (r *StoryRepo) SaveStory(story *models.Story) error {
	return r.store.SaveJSON(storyDir(story.ID), storyFile, story)
}

// GetStory 读取故事，不存在时返回NotFound错误
func (r *StoryRepo) GetStory(storyID string) (*models.Story, error) {
	if !r.store.FileExists(storyDir(storyID), storyFile) {
		return nil, apperrors.NewNotFoundError("故事不存在", nil)
	}

	var story models.Story
	if err := r.store.LoadJSON(storyDir(storyID), storyFile, &story); err != nil {
		return nil, apperrors.NewProcessingError("读取故事失败", err)
	}
	return &story, nil
}

// ListStories 列出所有故事，按创建时间倒序
func (r *StoryRepo) ListStories() ([]*models.Story, error) {
	if !r.store.DirExists(storiesDir) {
		return nil, nil
	}

	dirs, err := r.store.ListDirs(storiesDir)
	if err != nil {
		return nil, apperrors.NewProcessingError("列出故事失败", err)
	}

	stories := make([]*models.Story, 0, len(dirs))
	for _, id := range dirs {
		story, err := r.GetStory(id)
		if err != nil {
			// 跳过损坏或不完整的目录
			continue
		}
		stories = append(stories, story)
	}

	sort.Slice(stories, func(i, j int) bool {
		return stories[i].CreatedAt.After(stories[j].CreatedAt)
	})
	return stories, nil
}

// ListUserStories 列出指定用户的故事
func (r *StoryRepo) ListUserStories(userID string) ([]*models.Story, error) {
	all, err := r.ListStories()
	if err != nil {
		return nil, err
	}

	var stories []*models.Story
	for _, story := range all {
		if story.UserID == userID {
			stories = append(stories, story)
		}
	}
	return stories, nil
}

// DeleteStory 删除故事目录，级联删除章节、选择与世界观
func (r *StoryRepo) DeleteStory(storyID string) error {
	if !r.store.DirExists(storyDir(storyID)) {
		return apperrors.NewNotFoundError("故事不存在", nil)
	}
	if err := r.store.DeleteDir(storyDir(storyID)); err != nil {
		return apperrors.NewProcessingError("删除故事失败", err)
	}
	return nil
}

// SaveWorldView 写入世界观文档
func (r *StoryRepo) SaveWorldView(worldview *models.WorldView) error {
	return r.store.SaveJSON(storyDir(worldview.StoryID), worldviewFile, worldview)
}

// GetWorldView 读取故事的世界观，不存在时返回nil而不报错
func (r *StoryRepo) GetWorldView(storyID string) (*models.WorldView, error) {
	if !r.store.FileExists(storyDir(storyID), worldviewFile) {
		return nil, nil
	}

	var worldview models.WorldView
	if err := r.store.LoadJSON(storyDir(storyID), worldviewFile, &worldview); err != nil {
		return nil, apperrors.NewProcessingError("读取世界观失败", err)
	}
	return &worldview, nil
}

// DeleteWorldView 删除故事的世界观文档
func (r *StoryRepo) DeleteWorldView(storyID string) error {
	if !r.store.FileExists(storyDir(storyID), worldviewFile) {
		return apperrors.NewNotFoundError("世界观不存在", nil)
	}
	return r.store.DeleteFile(storyDir(storyID), worldviewFile)
}

// SaveChapter 写入章节文档（含其选择）
func (r *StoryRepo) SaveChapter(chapter *models.Chapter) error {
	return r.store.SaveJSON(chaptersDir(chapter.StoryID), chapterFilename(chapter.ChapterNumber), chapter)
}

// GetChapterByNumber 按序号读取章节，不存在时返回nil
func (r *StoryRepo) GetChapterByNumber(storyID string, number int) (*models.Chapter, error) {
	if !r.store.FileExists(chaptersDir(storyID), chapterFilename(number)) {
		return nil, nil
	}

	var chapter models.Chapter
	if err := r.store.LoadJSON(chaptersDir(storyID), chapterFilename(number), &chapter); err != nil {
		return nil, apperrors.NewProcessingError("读取章节失败", err)
	}
	return &chapter, nil
}

// ListChapters 按章节号升序返回故事的全部章节
func (r *StoryRepo) ListChapters(storyID string) ([]*models.Chapter, error) {
	files, err := r.store.ListFiles(chaptersDir(storyID))
	if err != nil {
		return nil, apperrors.NewProcessingError("列出章节失败", err)
	}

	chapters := make([]*models.Chapter, 0, len(files))
	for _, filename := range files {
		var chapter models.Chapter
		if err := r.store.LoadJSON(chaptersDir(storyID), filename, &chapter); err != nil {
			return nil, apperrors.NewProcessingError("读取章节失败", err)
		}
		chapters = append(chapters, &chapter)
	}

	sort.Slice(chapters, func(i, j int) bool {
		return chapters[i].ChapterNumber < chapters[j].ChapterNumber
	})
	return chapters, nil
}

// FindChapterInStory 在故事内按章节ID查找
func (r *StoryRepo) FindChapterInStory(storyID, chapterID string) (*models.Chapter, error) {
	chapters, err := r.ListChapters(storyID)
	if err != nil {
		return nil, err
	}
	for _, chapter := range chapters {
		if chapter.ID == chapterID {
			return chapter, nil
		}
	}
	return nil, nil
}

// FindChapter 全局按章节ID查找章节及其所属故事
func (r *StoryRepo) FindChapter(chapterID string) (*models.Chapter, *models.Story, error) {
	stories, err := r.ListStories()
	if err != nil {
		return nil, nil, err
	}

	for _, story := range stories {
		chapter, err := r.FindChapterInStory(story.ID, chapterID)
		if err != nil {
			return nil, nil, err
		}
		if chapter != nil {
			return chapter, story, nil
		}
	}
	return nil, nil, apperrors.NewNotFoundError("章节不存在", nil)
}
