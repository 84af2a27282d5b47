package downloader

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrFetchToolUnavailable 外部下载工具不存在
var ErrFetchToolUnavailable = errors.New("fetch tool unavailable")

// 测试中替换为 helper process
var (
	execCommandContext = exec.CommandContext
	execLookPath       = exec.LookPath
)

// FetchToolOptions yt-dlp 兜底参数
type FetchToolOptions struct {
	Bin       string
	Dir       string
	Timeout   time.Duration
	MaxHeight int
}

// FetchTool 调用 yt-dlp 直接下载笔记页面里的视频
type FetchTool struct {
	opts FetchToolOptions
}

func NewFetchTool(opts FetchToolOptions) *FetchTool {
	if opts.Bin == "" {
		opts.Bin = "yt-dlp"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 300 * time.Second
	}
	if opts.MaxHeight <= 0 {
		opts.MaxHeight = 1080
	}
	return &FetchTool{opts: opts}
}

// Args 生成命令行参数，输出模板为 <dir>/<stem>.%(ext)s
func (t *FetchTool) Args(noteURL, stem string) []string {
	format := fmt.Sprintf("bv*[height<=%d]+ba/b[height<=%d]/b", t.opts.MaxHeight, t.opts.MaxHeight)
	return []string{
		"-f", format,
		"--merge-output-format", "mp4",
		"-o", filepath.Join(t.opts.Dir, stem+".%(ext)s"),
		noteURL,
	}
}

// Fetch 下载 noteURL，返回本地文件路径。优先 <stem>.mp4，其次同前缀的其他文件。
func (t *FetchTool) Fetch(ctx context.Context, noteURL, stem string) (string, error) {
	if _, err := execLookPath(t.opts.Bin); err != nil {
		return "", errors.Wrapf(ErrFetchToolUnavailable, "%s: %v", t.opts.Bin, err)
	}

	if err := os.MkdirAll(t.opts.Dir, 0755); err != nil {
		return "", errors.Wrap(err, "failed to create output dir")
	}

	ctx, cancel := context.WithTimeout(ctx, t.opts.Timeout)
	defer cancel()

	logrus.Infof("[Fallback] 使用 %s 兜底下载: %s", t.opts.Bin, noteURL)

	cmd := execCommandContext(ctx, t.opts.Bin, t.Args(noteURL, stem)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", errors.Wrapf(ErrFetchToolUnavailable, "%v", err)
		}
		if ctx.Err() != nil {
			return "", errors.Wrapf(ctx.Err(), "%s 执行超时或被中断", t.opts.Bin)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return "", errors.Errorf("%s 兜底下载失败: %v: %s", t.opts.Bin, err, truncateOutput(msg, 300))
	}

	path, ok := t.findOutput(stem)
	if !ok {
		return "", errors.Errorf("%s 执行成功但未找到输出文件: %s.*", t.opts.Bin, stem)
	}
	return path, nil
}

func (t *FetchTool) findOutput(stem string) (string, bool) {
	mp4 := filepath.Join(t.opts.Dir, stem+".mp4")
	if _, err := os.Stat(mp4); err == nil {
		return mp4, true
	}

	matches, err := filepath.Glob(filepath.Join(t.opts.Dir, stem+".*"))
	if err != nil {
		return "", false
	}
	sort.Strings(matches)
	for _, m := range matches {
		if strings.HasSuffix(m, ".part") || strings.HasSuffix(m, ".ytdl") {
			continue
		}
		return m, true
	}
	return "", false
}

func truncateOutput(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
