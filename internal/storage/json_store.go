// internal/storage/json_store.go
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// JSONStore 提供文件形式的JSON文档存储。
// 写入走临时文件+重命名保证原子性；读路径带TTL缓存；
// 并发控制为文件级别的读写锁。
type JSONStore struct {
	BaseDir string

	// 文件级别锁 path -> *sync.RWMutex
	fileLocks sync.Map

	cache        map[string]*cacheEntry
	cacheMutex   sync.RWMutex
	cacheExpiry  time.Duration
	maxCacheSize int
}

type cacheEntry struct {
	data      []byte
	timestamp time.Time
}

// NewJSONStore 创建文件存储服务
func NewJSONStore(baseDir string) (*JSONStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}

	s := &JSONStore{
		BaseDir:      baseDir,
		cache:        make(map[string]*cacheEntry),
		cacheExpiry:  5 * time.Minute,
		maxCacheSize: 256,
	}

	return s, nil
}

func (s *JSONStore) getFileLock(fullPath string) *sync.RWMutex {
	value, _ := s.fileLocks.LoadOrStore(fullPath, &sync.RWMutex{})
	return value.(*sync.RWMutex)
}

// SaveJSON 序列化并原子写入JSON文档
func (s *JSONStore) SaveJSON(dirPath, filename string, v interface{}) error {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}

	fullDirPath := filepath.Join(s.BaseDir, dirPath)
	fullPath := filepath.Join(fullDirPath, filename)

	lock := s.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(fullDirPath, 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	// 原子性文件写入
	tempPath := fullPath + ".tmp"
	if err := os.WriteFile(tempPath, content, 0644); err != nil {
		return fmt.Errorf("保存临时文件失败: %w", err)
	}
	if err := os.Rename(tempPath, fullPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("保存文件失败: %w", err)
	}

	s.invalidateCache(fullPath)
	return nil
}

// LoadJSON 读取并解析JSON文档
func (s *JSONStore) LoadJSON(dirPath, filename string, v interface{}) error {
	content, err := s.loadRaw(dirPath, filename)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(content, v); err != nil {
		return fmt.Errorf("解析JSON失败: %w", err)
	}
	return nil
}

func (s *JSONStore) loadRaw(dirPath, filename string) ([]byte, error) {
	fullPath := filepath.Join(s.BaseDir, dirPath, filename)

	if data, ok := s.fromCache(fullPath); ok {
		return data, nil
	}

	lock := s.getFileLock(fullPath)
	lock.RLock()
	defer lock.RUnlock()

	// 双重检查缓存
	if data, ok := s.fromCache(fullPath); ok {
		return data, nil
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}

	s.updateCache(fullPath, content)
	return content, nil
}

// FileExists 检查文件是否存在
func (s *JSONStore) FileExists(dirPath, filename string) bool {
	fullPath := filepath.Join(s.BaseDir, dirPath, filename)
	_, err := os.Stat(fullPath)
	return err == nil
}

// DirExists 检查目录是否存在
func (s *JSONStore) DirExists(dirPath string) bool {
	info, err := os.Stat(filepath.Join(s.BaseDir, dirPath))
	return err == nil && info.IsDir()
}

// DeleteFile 删除单个文件
func (s *JSONStore) DeleteFile(dirPath, filename string) error {
	fullPath := filepath.Join(s.BaseDir, dirPath, filename)

	lock := s.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		return fmt.Errorf("文件不存在: %s", fullPath)
	}
	if err := os.Remove(fullPath); err != nil {
		return fmt.Errorf("删除文件失败: %w", err)
	}

	s.invalidateCache(fullPath)
	return nil
}

// DeleteDir 删除目录及其内容，用于实现父实体级联删除
func (s *JSONStore) DeleteDir(dirPath string) error {
	fullPath := filepath.Join(s.BaseDir, dirPath)

	lock := s.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		return fmt.Errorf("目录不存在: %s", fullPath)
	}
	if err := os.RemoveAll(fullPath); err != nil {
		return fmt.Errorf("删除目录失败: %w", err)
	}

	s.removeCacheEntriesWithPrefix(fullPath)
	return nil
}

// ListDirs 列出目录下的所有子目录名
func (s *JSONStore) ListDirs(dirPath string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.BaseDir, dirPath))
	if err != nil {
		return nil, fmt.Errorf("读取目录失败: %w", err)
	}

	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
		}
	}
	return dirs, nil
}

// ListFiles 列出目录下的所有文件名，按名称排序
func (s *JSONStore) ListFiles(dirPath string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.BaseDir, dirPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取目录失败: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && !strings.HasSuffix(entry.Name(), ".tmp") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// ---------------- 缓存管理 ----------------

func (s *JSONStore) fromCache(path string) ([]byte, bool) {
	s.cacheMutex.RLock()
	defer s.cacheMutex.RUnlock()

	entry, exists := s.cache[path]
	if !exists || time.Since(entry.timestamp) >= s.cacheExpiry {
		return nil, false
	}
	return entry.data, true
}

func (s *JSONStore) updateCache(path string, data []byte) {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()

	s.cache[path] = &cacheEntry{data: data, timestamp: time.Now()}

	if len(s.cache) <= s.maxCacheSize {
		return
	}

	// 超出上限时删除最旧的条目
	var oldestKey string
	var oldestTime time.Time
	for key, entry := range s.cache {
		if oldestKey == "" || entry.timestamp.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.timestamp
		}
	}
	if oldestKey != "" {
		delete(s.cache, oldestKey)
	}
}

func (s *JSONStore) invalidateCache(path string) {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()
	delete(s.cache, path)
}

func (s *JSONStore) removeCacheEntriesWithPrefix(prefix string) {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()

	for key := range s.cache {
		if strings.HasPrefix(key, prefix) {
			delete(s.cache, key)
		}
	}
}
