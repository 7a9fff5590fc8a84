// internal/services/worldview_service_test.go
package services

import (
	"context"
	"testing"

	apperrors "github.com/NovelForgeAI/NovelForge/internal/errors"
	"github.com/NovelForgeAI/NovelForge/internal/llm"
	"github.com/NovelForgeAI/NovelForge/internal/models"
)

func TestCreateWorldView(t *testing.T) {
	svc, worldviews, _ := newTestEnv(t, &mockProvider{completeFunc: scriptedComplete})

	story, err := svc.CreateStory(models.StyleXianxia, "", "user-1")
	if err != nil {
		t.Fatalf("创建故事失败: %v", err)
	}

	worldview, err := worldviews.CreateWorldView(context.Background(), story.ID, "逆天改命")
	if err != nil {
		t.Fatalf("创建世界观失败: %v", err)
	}

	if worldview.StoryID != story.ID {
		t.Errorf("世界观归属错误: %q", worldview.StoryID)
	}
	if worldview.WorldSetting != "九州修仙界，灵气充沛" {
		t.Errorf("世界设定解析错误: %q", worldview.WorldSetting)
	}
	if worldview.MainCharacter.Name != "林昭" {
		t.Errorf("主角解析错误: %q", worldview.MainCharacter.Name)
	}
}

func TestCreateWorldView_ConflictOnSecondCreate(t *testing.T) {
	svc, worldviews, _ := newTestEnv(t, &mockProvider{completeFunc: scriptedComplete})

	story, err := svc.CreateStory(models.StyleXianxia, "", "user-1")
	if err != nil {
		t.Fatalf("创建故事失败: %v", err)
	}

	if _, err := worldviews.CreateWorldView(context.Background(), story.ID, ""); err != nil {
		t.Fatalf("首次创建世界观失败: %v", err)
	}

	_, err = worldviews.CreateWorldView(context.Background(), story.ID, "")
	if !apperrors.IsConflictError(err) {
		t.Fatalf("重复创建世界观应返回冲突错误, got %v", err)
	}
}

func TestCreateWorldView_StoryNotFound(t *testing.T) {
	_, worldviews, _ := newTestEnv(t, &mockProvider{completeFunc: scriptedComplete})

	_, err := worldviews.CreateWorldView(context.Background(), "不存在的故事", "")
	if !apperrors.IsNotFoundError(err) {
		t.Fatalf("故事不存在应返回未找到错误, got %v", err)
	}
}

func TestCreateWorldView_FallbackToDefault(t *testing.T) {
	svc, worldviews, _ := newTestEnv(t, &mockProvider{
		completeFunc: func(req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Text: "完全不是JSON的自由发挥"}, nil
		},
	})

	story, err := svc.CreateStory(models.StyleWuxia, "", "user-1")
	if err != nil {
		t.Fatalf("创建故事失败: %v", err)
	}

	worldview, err := worldviews.CreateWorldView(context.Background(), story.ID, "")
	if err != nil {
		t.Fatalf("解析失败应落到默认世界观而不是报错: %v", err)
	}

	if !worldview.Complete() {
		t.Error("默认世界观应满足完整性要求")
	}
	if worldview.WorldSetting != "这是一个武侠风格的世界，充满了神秘和冒险。" {
		t.Errorf("默认世界设定错误: %q", worldview.WorldSetting)
	}
	if worldview.MainCharacter.Name != "主角" {
		t.Errorf("默认主角错误: %q", worldview.MainCharacter.Name)
	}
}

func TestUpdateWorldView_MergesNonEmpty(t *testing.T) {
	svc, worldviews, _ := newTestEnv(t, &mockProvider{completeFunc: scriptedComplete})

	story, err := svc.CreateStory(models.StyleXianxia, "", "user-1")
	if err != nil {
		t.Fatalf("创建故事失败: %v", err)
	}
	original, err := worldviews.CreateWorldView(context.Background(), story.ID, "")
	if err != nil {
		t.Fatalf("创建世界观失败: %v", err)
	}

	updated, err := worldviews.UpdateWorldView(story.ID, &models.WorldView{
		Geography: "南疆十万大山",
	})
	if err != nil {
		t.Fatalf("更新世界观失败: %v", err)
	}

	if updated.Geography != "南疆十万大山" {
		t.Errorf("更新字段未生效: %q", updated.Geography)
	}
	if updated.WorldSetting != original.WorldSetting {
		t.Errorf("未更新的字段不应改变: %q", updated.WorldSetting)
	}
}

func TestAddSupportingCharacter(t *testing.T) {
	svc, worldviews, _ := newTestEnv(t, &mockProvider{completeFunc: scriptedComplete})

	story, err := svc.CreateStory(models.StyleXianxia, "", "user-1")
	if err != nil {
		t.Fatalf("创建故事失败: %v", err)
	}
	if _, err := worldviews.CreateWorldView(context.Background(), story.ID, ""); err != nil {
		t.Fatalf("创建世界观失败: %v", err)
	}

	character := models.CharacterProfile{Name: "白芷", Description: "同门师姐"}
	updated, err := worldviews.AddSupportingCharacter(story.ID, character)
	if err != nil {
		t.Fatalf("添加配角失败: %v", err)
	}
	if len(updated.SupportingCharacters) != 1 {
		t.Fatalf("配角数量错误: %d", len(updated.SupportingCharacters))
	}

	// 同名角色冲突
	if _, err := worldviews.AddSupportingCharacter(story.ID, character); !apperrors.IsConflictError(err) {
		t.Fatalf("同名配角应返回冲突错误, got %v", err)
	}

	// 空名称拒绝
	if _, err := worldviews.AddSupportingCharacter(story.ID, models.CharacterProfile{}); !apperrors.IsValidationError(err) {
		t.Fatalf("空名称应返回验证错误, got %v", err)
	}
}

func TestCreateStoryWithWorldView_RollbackOnFailure(t *testing.T) {
	svc, _, _ := newTestEnv(t, &mockProvider{
		completeFunc: func(req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return nil, context.DeadlineExceeded
		},
	})

	_, _, err := svc.CreateStoryWithWorldView(context.Background(), models.StyleXianxia, "", "user-1", "")
	if err == nil {
		t.Fatal("世界观生成失败时应整体失败")
	}

	// 补偿删除后不应留下半成品故事
	stories, err := svc.GetAllStories()
	if err != nil {
		t.Fatalf("列出故事失败: %v", err)
	}
	if len(stories) != 0 {
		t.Errorf("失败的创建不应留下故事: %d", len(stories))
	}
}
