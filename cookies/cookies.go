package cookies

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Cookie 持久化到磁盘的 cookie，字段与浏览器 cookie 对应
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// Store cookie 存储
type Store interface {
	Load() ([]Cookie, error)
	Save(cookies []Cookie) error
	Delete() error
}

// FileStore 以 JSON 文件保存 cookie。浏览器 profile 目录本身也会保留登录态，
// 这里的文件用于在 profile 被清理后恢复登录，以及导出给其他工具。
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	if path == "" {
		panic("path is required")
	}

	return &FileStore{
		path: path,
	}
}

// Path cookie 文件路径
func (s *FileStore) Path() string {
	return s.path
}

// Load 从文件中加载 cookies，文件不存在时返回空列表。
func (s *FileStore) Load() ([]Cookie, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read cookies file")
	}

	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, errors.Wrapf(err, "failed to parse cookies file %s", s.path)
	}
	return cookies, nil
}

// Save 保存 cookies 到文件中，先写临时文件再重命名。
func (s *FileStore) Save(cookies []Cookie) error {
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal cookies")
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(err, "failed to create cookies dir")
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return errors.Wrap(err, "failed to write cookies file")
	}
	return errors.Wrap(os.Rename(tmp, s.path), "failed to replace cookies file")
}

// Delete 删除 cookies 文件。
func (s *FileStore) Delete() error {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		// 文件不存在，返回 nil（认为已经删除）
		return nil
	}
	return os.Remove(s.path)
}

// Names 返回 cookie 名称列表
func Names(cookies []Cookie) []string {
	names := make([]string, 0, len(cookies))
	for _, c := range cookies {
		names = append(names, c.Name)
	}
	return names
}

// ResolvePath 获取 cookies 文件路径。
// 为了向后兼容，未显式配置且旧路径 /tmp/cookies.json 存在时继续使用旧路径。
func ResolvePath(configured string) string {
	if configured != "" && configured != "cookies.json" {
		return configured
	}

	oldPath := filepath.Join(os.TempDir(), "cookies.json")
	if _, err := os.Stat(oldPath); err == nil {
		return oldPath
	}

	return "cookies.json"
}
