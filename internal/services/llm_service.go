// internal/services/llm_service.go
package services

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/NovelForgeAI/NovelForge/internal/config"
	"github.com/NovelForgeAI/NovelForge/internal/llm"
)

var ErrLLMNotReady = errors.New("llm service not ready")

// LLMService 提供统一的大语言模型调用接口
type LLMService struct {
	providerMutex sync.RWMutex
	provider      llm.Provider
	providerName  string
	cache         *LLMCache
	isReady       bool
	readyState    string
	defaultModel  string
}

type LLMCache struct {
	cache      map[string]*CacheEntry
	mutex      sync.RWMutex
	expiration time.Duration
}

type CacheEntry struct {
	Response  string
	CreatedAt time.Time
}

// TaggedResult 标记式解析结果：结构化解码成功时 Structured 为真，
// 失败时保留原始文本，由调用方决定降级策略。
type TaggedResult struct {
	Structured bool
	Raw        string
}

// NewLLMService 创建一个新的LLM服务
func NewLLMService() (*LLMService, error) {
	service := createBaseLLMService()

	cfg := config.GetCurrentConfig()
	if cfg == nil {
		service.readyState = "Failed to retrieve configuration"
		return service, nil
	}

	if cfg.LLMProvider == "" || (cfg.LLMConfig != nil && cfg.LLMConfig["api_key"] == "") {
		service.readyState = "API key not configured"
		return service, nil
	}

	provider, err := llm.GetProvider(cfg.LLMProvider, cfg.LLMConfig)
	if err != nil {
		// 返回未就绪服务而不是错误
		service.readyState = fmt.Sprintf("Initialization failed: %v", err)
		return service, nil
	}

	service.provider = provider
	service.providerName = cfg.LLMProvider
	service.defaultModel = cfg.LLMConfig["default_model"]
	service.isReady = true
	service.readyState = "Ready"

	return service, nil
}

// NewLLMServiceWithProvider 使用注入的提供者创建LLM服务，便于测试替换
func NewLLMServiceWithProvider(provider llm.Provider) *LLMService {
	service := createBaseLLMService()
	service.provider = provider
	service.providerName = provider.GetName()
	service.isReady = true
	service.readyState = "Ready"
	return service
}

func createBaseLLMService() *LLMService {
	return &LLMService{
		readyState: "Uninitialized",
		cache: &LLMCache{
			cache:      make(map[string]*CacheEntry),
			expiration: 30 * time.Minute,
		},
	}
}

// IsReady 返回服务是否已就绪
func (s *LLMService) IsReady() bool {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.provider != nil && s.isReady
}

// GetReadyState 返回服务就绪状态描述
func (s *LLMService) GetReadyState() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.readyState
}

// GetProviderName 返回当前提供者名称
func (s *LLMService) GetProviderName() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.providerName
}

// UpdateProvider 切换LLM提供者
func (s *LLMService) UpdateProvider(providerName string, providerConfig map[string]string) error {
	provider, err := llm.GetProvider(providerName, providerConfig)
	if err != nil {
		return err
	}

	s.providerMutex.Lock()
	defer s.providerMutex.Unlock()

	s.provider = provider
	s.providerName = providerName
	s.defaultModel = providerConfig["default_model"]
	s.isReady = true
	s.readyState = "Ready"
	return nil
}

func (s *LLMService) currentProvider() (llm.Provider, error) {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()

	if !s.isReady || s.provider == nil {
		return nil, fmt.Errorf("%w: %s", ErrLLMNotReady, s.readyState)
	}
	return s.provider, nil
}

// CreateCompletion 执行一次文本生成
func (s *LLMService) CreateCompletion(ctx context.Context, prompt, systemPrompt string) (*llm.CompletionResponse, error) {
	provider, err := s.currentProvider()
	if err != nil {
		return nil, err
	}

	req := llm.CompletionRequest{
		Prompt:       prompt,
		SystemPrompt: systemPrompt,
		Temperature:  0.7,
		Model:        s.defaultModel,
	}

	return provider.CompleteText(ctx, req)
}

// CreateTaggedCompletion 请求结构化输出并尝试严格解码。
// 解码失败不视为错误：返回携带原始文本的未结构化结果，
// 由调用方走降级路径，避免在多处重复做正则式提取。
func (s *LLMService) CreateTaggedCompletion(ctx context.Context, prompt, systemPrompt string, outputSchema interface{}) (*TaggedResult, error) {
	provider, err := s.currentProvider()
	if err != nil {
		return nil, err
	}

	cacheKey := s.generateCacheKey(prompt, systemPrompt)
	if cached, ok := s.cache.get(cacheKey); ok {
		if err := json.Unmarshal([]byte(cached), outputSchema); err == nil {
			return &TaggedResult{Structured: true, Raw: cached}, nil
		}
	}

	structuredSystemPrompt := systemPrompt
	if structuredSystemPrompt != "" {
		structuredSystemPrompt += "\n\n"
	}
	structuredSystemPrompt += "Return your response in valid JSON format, following the provided output schema, without adding explanations or preambles."

	req := llm.CompletionRequest{
		Prompt:       prompt,
		SystemPrompt: structuredSystemPrompt,
		Temperature:  0.3,
		Model:        s.defaultModel,
	}

	resp, err := provider.CompleteText(ctx, req)
	if err != nil {
		return nil, err
	}

	text := cleanJSONString(resp.Text)
	if err := json.Unmarshal([]byte(text), outputSchema); err != nil {
		return &TaggedResult{Structured: false, Raw: resp.Text}, nil
	}

	s.cache.save(cacheKey, text)
	return &TaggedResult{Structured: true, Raw: text}, nil
}

// CreateStreamingCompletion 执行流式文本生成
func (s *LLMService) CreateStreamingCompletion(ctx context.Context, prompt, systemPrompt string) (<-chan llm.StreamResponse, error) {
	provider, err := s.currentProvider()
	if err != nil {
		return nil, err
	}

	req := llm.CompletionRequest{
		Prompt:       prompt,
		SystemPrompt: systemPrompt,
		Temperature:  0.7,
		Model:        s.defaultModel,
	}

	return provider.StreamCompletion(ctx, req)
}

func (s *LLMService) generateCacheKey(prompt, systemPrompt string) string {
	h := md5.Sum([]byte(s.providerName + "|" + s.defaultModel + "|" + systemPrompt + "|" + prompt))
	return fmt.Sprintf("%x", h)
}

func (c *LLMCache) get(key string) (string, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.cache[key]
	if !exists || time.Since(entry.CreatedAt) > c.expiration {
		return "", false
	}
	return entry.Response, true
}

func (c *LLMCache) save(key, response string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.cache[key] = &CacheEntry{Response: response, CreatedAt: time.Now()}
}

// ---------------- JSON清洗 ----------------

var jsonNoiseReplacer = strings.NewReplacer(
	"```json", "",
	"```", "",
	"\uFEFF", "",
	" ", " ",
)

// cleanJSONString 去除LLM输出中JSON前后的噪声并截取平衡的JSON片段
func cleanJSONString(s string) string {
	if s == "" {
		return s
	}

	s = jsonNoiseReplacer.Replace(s)
	s = strings.TrimSpace(s)

	// 移除零宽字符及除换行/制表符外的控制字符
	s = strings.Map(func(r rune) rune {
		switch r {
		case '​', '‌', '‍', '⁠':
			return -1
		}
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	// 丢弃第一个 { 或 [ 之前的全部内容
	start := strings.IndexAny(s, "[{")
	if start == -1 {
		return s
	}
	s = strings.TrimSpace(s[start:])
	if s == "" {
		return s
	}

	isArray := s[0] == '['

	// 括号计数匹配，截取第一个平衡片段
	balance := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		char := s[i]

		if escaped {
			escaped = false
			continue
		}
		if char == '\\' {
			escaped = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		if isArray {
			if char == '[' {
				balance++
			} else if char == ']' {
				balance--
			}
		} else {
			if char == '{' {
				balance++
			} else if char == '}' {
				balance--
			}
		}

		if balance == 0 {
			return strings.TrimSpace(s[:i+1])
		}
	}

	// 没有找到平衡结束符时回退到最后一个结束符
	end := strings.LastIndex(s, "}")
	if isArray {
		end = strings.LastIndex(s, "]")
	}
	if end != -1 {
		return strings.TrimSpace(s[:end+1])
	}
	return strings.TrimSpace(s)
}
