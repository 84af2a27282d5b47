package xiaohongshu

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/xpzouying/xiaohongshu-harvester/pkg/xhsutil"
)

// NoteStats 页面上的原始互动数据（如 "1.2万"）
type NoteStats struct {
	Likes    string `json:"likes"`
	Collects string `json:"collects"`
	Comments string `json:"comments"`
}

// StatsCount 解析后的互动数据
type StatsCount struct {
	Likes    int `json:"likes"`
	Collects int `json:"collects"`
	Comments int `json:"comments"`
}

// Count 解析原始互动数据
func (s NoteStats) Count() StatsCount {
	return StatsCount{
		Likes:    xhsutil.ParseCount(s.Likes),
		Collects: xhsutil.ParseCount(s.Collects),
		Comments: xhsutil.ParseCount(s.Comments),
	}
}

// NoteMetadata 下游分析与上传消费的笔记元数据，写入后不再修改
type NoteMetadata struct {
	ID             string     `json:"id"`
	URL            string     `json:"url"`
	Title          string     `json:"title"`
	Author         string     `json:"author"`
	Desc           string     `json:"desc"`
	Stats          NoteStats  `json:"stats"`
	StatsCount     StatsCount `json:"stats_count"`
	TopComments    string     `json:"top_comments"`
	CoverURL       string     `json:"cover_url"`
	LocalVideoPath string     `json:"local_video_path"`
	Timestamp      int64      `json:"timestamp"`
}

// MetadataWriter 以 meta_<timestamp>.json 写入元数据，时间戳在同一个 writer 内严格递增
type MetadataWriter struct {
	dir string
	now func() time.Time

	mu   sync.Mutex
	last int64
}

func NewMetadataWriter(dir string) *MetadataWriter {
	return &MetadataWriter{dir: dir, now: time.Now}
}

// Dir 输出目录
func (w *MetadataWriter) Dir() string {
	return w.dir
}

// NextTimestamp 毫秒时间戳，同一毫秒内多次调用时顺延
func (w *MetadataWriter) NextTimestamp() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	ts := w.now().UnixMilli()
	if ts <= w.last {
		ts = w.last + 1
	}
	w.last = ts
	return ts
}

// Write 写入元数据并返回文件路径，同名文件已存在时报错而不是覆盖
func (w *MetadataWriter) Write(meta *NoteMetadata) (string, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", errors.Wrap(err, "failed to create work dir")
	}

	path := filepath.Join(w.dir, fmt.Sprintf("meta_%d.json", meta.Timestamp))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", errors.Wrapf(err, "failed to create metadata file %s", path)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		_ = os.Remove(path)
		return "", errors.Wrap(err, "failed to write metadata")
	}
	return path, nil
}

// ReadMetadata 读取元数据文件
func ReadMetadata(path string) (*NoteMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read metadata")
	}
	var meta NoteMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errors.Wrapf(err, "failed to parse metadata %s", path)
	}
	return &meta, nil
}
