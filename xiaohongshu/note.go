package xiaohongshu

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/xpzouying/xiaohongshu-harvester/pkg/xhsutil"
)

// NoteTarget 一条笔记
type NoteTarget struct {
	URL string
	ID  string
}

func NewNoteTarget(url string) NoteTarget {
	return NoteTarget{URL: url, ID: xhsutil.NoteID(url)}
}

// Timing 页面等待节奏
type Timing struct {
	// Settle 等待互动数据渲染
	Settle time.Duration
	// NudgeScroll 触发懒加载的小幅滚动
	NudgeScroll int
	NudgeDelay  time.Duration
}

// DefaultTiming 真实浏览器下使用的等待时长
func DefaultTiming() Timing {
	return Timing{
		Settle:      3 * time.Second,
		NudgeScroll: 500,
		NudgeDelay:  time.Second,
	}
}

// ExtractResult 单条笔记抓取结果
type ExtractResult struct {
	MetaPath string        `json:"meta_path"`
	Metadata *NoteMetadata `json:"metadata"`
	Asset    *VideoAsset   `json:"asset"`
}

// NoteExtractorConfig 笔记抓取配置
type NoteExtractorConfig struct {
	Timing       Timing
	TopComments  int
	LoginOptions LoginOptions
}

// NoteExtractor 从已加载的笔记页面组装一条元数据
type NoteExtractor struct {
	gate     *LoginGate
	resolver *AssetResolver
	writer   *MetadataWriter
	cfg      NoteExtractorConfig
}

func NewNoteExtractor(gate *LoginGate, resolver *AssetResolver, writer *MetadataWriter, cfg NoteExtractorConfig) *NoteExtractor {
	if cfg.TopComments <= 0 {
		cfg.TopComments = 5
	}
	if cfg.Timing.NudgeScroll <= 0 {
		cfg.Timing.NudgeScroll = DefaultTiming().NudgeScroll
	}
	return &NoteExtractor{
		gate:     gate,
		resolver: resolver,
		writer:   writer,
		cfg:      cfg,
	}
}

var (
	likesRegex    = regexp.MustCompile(`(?:点赞|赞)\s*([\d\.w万k]+)`)
	collectsRegex = regexp.MustCompile(`(?:收藏|藏)\s*([\d\.w万k]+)`)
	commentsRegex = regexp.MustCompile(`(?:评论|评)\s*([\d\.w万k]+)`)
)

// Extract 抓取当前页面的笔记。视频解析失败时返回 ErrAssetNotFound，其他异常包装为 ErrExtraction。
func (e *NoteExtractor) Extract(ctx context.Context, page Page, jar CookieJar, sourceURL string, sniffer *VideoSniffer) (*ExtractResult, error) {
	if page.Closed() {
		return nil, noteError(sourceURL, errors.Wrap(ErrExtraction, "页面已关闭"))
	}

	if e.gate != nil {
		if ok, _ := e.gate.WaitForLogin(ctx, jar, page, e.cfg.LoginOptions); !ok {
			if ctx.Err() != nil {
				return nil, noteError(sourceURL, ctx.Err())
			}
			logrus.Warnf("%v，继续尝试抓取: %s", ErrLoginTimeout, sourceURL)
		}
	}

	noteURL := page.URL()
	if noteURL == "" || strings.HasPrefix(noteURL, "about:") {
		noteURL = sourceURL
	}
	target := NewNoteTarget(noteURL)
	ts := e.writer.NextTimestamp()

	logrus.Infof("缓冲 %s 以确保互动数据加载...", e.cfg.Timing.Settle)
	if err := sleepContext(ctx, e.cfg.Timing.Settle); err != nil {
		return nil, noteError(target.URL, err)
	}
	if err := page.Scroll(ctx, e.cfg.Timing.NudgeScroll); err != nil {
		logrus.Debugf("滚动失败: %v", err)
	}
	if err := sleepContext(ctx, e.cfg.Timing.NudgeDelay); err != nil {
		return nil, noteError(target.URL, err)
	}

	stats := readStats(page)
	logrus.Infof("抓取到数据：赞(%s) 藏(%s) 评(%s)", stats.Likes, stats.Collects, stats.Comments)

	asset, err := e.resolver.Resolve(ctx, page, sniffer, target.URL, fmt.Sprintf("video_%d", ts))
	if err != nil {
		return nil, err
	}

	title, err := page.Title()
	if err != nil {
		logrus.Warnf("读取标题失败: %v", err)
	}

	meta := &NoteMetadata{
		ID:             target.ID,
		URL:            target.URL,
		Title:          title,
		Author:         readAuthor(page),
		Desc:           firstText(page, descSelector),
		Stats:          stats,
		StatsCount:     stats.Count(),
		TopComments:    strings.Join(readComments(page, e.cfg.TopComments), "\n"),
		CoverURL:       readCover(page),
		LocalVideoPath: asset.LocalPath,
		Timestamp:      ts,
	}

	path, err := e.writer.Write(meta)
	if err != nil {
		return nil, noteError(target.URL, errors.Wrapf(ErrExtraction, "%v", err))
	}

	logrus.Infof("元数据保存完成: %s", path)
	return &ExtractResult{MetaPath: path, Metadata: meta, Asset: asset}, nil
}

func readStats(page Page) NoteStats {
	stats := NoteStats{Likes: "0", Collects: "0", Comments: "0"}

	counts, err := page.Texts(statsCountSelector)
	if err == nil && len(counts) >= 3 {
		stats.Likes = strings.TrimSpace(counts[0])
		stats.Collects = strings.TrimSpace(counts[1])
		stats.Comments = strings.TrimSpace(counts[2])
		return stats
	}

	html, err := page.HTML()
	if err != nil {
		logrus.Warnf("抓取互动数据失败: %v", err)
		return stats
	}
	if m := likesRegex.FindStringSubmatch(html); m != nil {
		stats.Likes = m[1]
	}
	if m := collectsRegex.FindStringSubmatch(html); m != nil {
		stats.Collects = m[1]
	}
	if m := commentsRegex.FindStringSubmatch(html); m != nil {
		stats.Comments = m[1]
	}
	return stats
}

func readAuthor(page Page) string {
	author := strings.TrimSpace(strings.ReplaceAll(firstText(page, authorSelector), followLabel, ""))
	if author == "" {
		return defaultAuthorName
	}
	return author
}

func readComments(page Page, n int) []string {
	texts, err := page.Texts(commentSelector)
	if err != nil {
		return nil
	}
	if len(texts) > n {
		texts = texts[:n]
	}
	return texts
}

func readCover(page Page) string {
	cover, _, err := page.Attribute(coverSelector, "content")
	if err != nil {
		return ""
	}
	return cover
}

func firstText(page Page, selector string) string {
	texts, err := page.Texts(selector)
	if err != nil || len(texts) == 0 {
		return ""
	}
	return texts[0]
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
