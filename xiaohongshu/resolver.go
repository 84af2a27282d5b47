package xiaohongshu

import (
	"context"
	"encoding/json"
	"path/filepath"
	"regexp"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/xpzouying/xiaohongshu-harvester/pkg/xhsutil"
)

// AssetSource 视频地址的来源
type AssetSource string

const (
	SourceSniffed      AssetSource = "sniffed"
	SourcePageSource   AssetSource = "page_source"
	SourceVideoElement AssetSource = "video_element"
	SourceFetchTool    AssetSource = "fetch_tool"
)

// VideoAsset 解析并落盘的视频
type VideoAsset struct {
	RemoteURL string      `json:"remote_url,omitempty"`
	LocalPath string      `json:"local_path"`
	Source    AssetSource `json:"source"`
}

// Candidate 候选视频直链
type Candidate struct {
	URL    string
	Source AssetSource
}

// VideoFetcher 直链下载
type VideoFetcher interface {
	Download(ctx context.Context, url, dest string) (int64, error)
}

// FallbackFetcher 对笔记页面地址做兜底下载
type FallbackFetcher interface {
	Fetch(ctx context.Context, noteURL, stem string) (string, error)
}

var (
	masterURLRegex = regexp.MustCompile(`"masterUrl":"(http[^"]+)"`)
	inlineMP4Regex = regexp.MustCompile(`(https?://[^"\\]+?\.mp4[^"\\]*)`)
)

// AssetResolver 依次尝试嗅探地址、页面源码、video 元素，最后用外部工具兜底
type AssetResolver struct {
	dir        string
	downloader VideoFetcher
	fallback   FallbackFetcher
}

func NewAssetResolver(dir string, downloader VideoFetcher, fallback FallbackFetcher) *AssetResolver {
	return &AssetResolver{
		dir:        dir,
		downloader: downloader,
		fallback:   fallback,
	}
}

type candidateStep struct {
	source AssetSource
	find   func() string
}

// 按顺序惰性求值，前一步下载成功后不再读取页面
func candidateSteps(page Page, sniffer *VideoSniffer) []candidateStep {
	return []candidateStep{
		{SourceSniffed, func() string {
			u, _ := sniffer.URL()
			return u
		}},
		{SourcePageSource, func() string {
			html, err := page.HTML()
			if err != nil {
				logrus.Warnf("源码提取失败: %v", err)
				return ""
			}
			return ExtractSourceURL(html)
		}},
		{SourceVideoElement, func() string {
			return VideoElementURL(page)
		}},
	}
}

// BestCandidate 前三步中第一个可下载的候选地址
func BestCandidate(page Page, sniffer *VideoSniffer) (Candidate, bool) {
	for _, step := range candidateSteps(page, sniffer) {
		if u := step.find(); u != "" && !isBlobURL(u) {
			return Candidate{URL: u, Source: step.source}, true
		}
	}
	return Candidate{}, false
}

// ExtractSourceURL 从页面源码中提取 masterUrl，其次是直出的 mp4 地址
func ExtractSourceURL(html string) string {
	if m := masterURLRegex.FindStringSubmatch(html); m != nil {
		return unescapeJSONString(m[1])
	}
	if m := inlineMP4Regex.FindStringSubmatch(html); m != nil {
		return m[1]
	}
	return ""
}

// VideoElementURL video 元素的 src，blob: 地址不可下载
func VideoElementURL(page Page) string {
	src, ok, err := page.Attribute(videoSelector, "src")
	if err != nil || !ok || isBlobURL(src) {
		return ""
	}
	return src
}

func unescapeJSONString(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}

// Resolve 返回本地视频文件，stem 是不含扩展名的文件名。
// 全部失败时返回的错误满足 errors.Is(err, ErrAssetNotFound)，并携带 noteURL。
func (r *AssetResolver) Resolve(ctx context.Context, page Page, sniffer *VideoSniffer, noteURL, stem string) (*VideoAsset, error) {
	tried := make(map[string]struct{})
	lastErr := errors.New("未能找到有效的视频地址")

	for _, step := range candidateSteps(page, sniffer) {
		u := step.find()
		if u == "" || isBlobURL(u) {
			continue
		}
		if _, ok := tried[u]; ok {
			continue
		}
		tried[u] = struct{}{}

		if r.downloader == nil {
			continue
		}

		logrus.Infof("[Video] 准备下载 (%s): %s", step.source, xhsutil.Truncate(u, 60))
		dest := filepath.Join(r.dir, stem+".mp4")
		if _, err := r.downloader.Download(ctx, u, dest); err != nil {
			if ctx.Err() != nil {
				return nil, noteError(noteURL, err)
			}
			logrus.Warnf("视频下载失败，尝试下一种方式: %v", err)
			lastErr = err
			continue
		}

		logrus.Infof("视频下载完成: %s", dest)
		return &VideoAsset{RemoteURL: u, LocalPath: dest, Source: step.source}, nil
	}

	if r.fallback != nil {
		path, err := r.fallback.Fetch(ctx, noteURL, stem)
		if err == nil {
			logrus.Infof("兜底下载完成: %s", path)
			return &VideoAsset{LocalPath: path, Source: SourceFetchTool}, nil
		}
		if ctx.Err() != nil {
			return nil, noteError(noteURL, err)
		}
		logrus.Warnf("兜底下载失败: %v", err)
		lastErr = err
	}

	return nil, noteError(noteURL, errors.Wrapf(ErrAssetNotFound, "%v", lastErr))
}
