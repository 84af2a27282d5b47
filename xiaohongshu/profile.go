package xiaohongshu

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xpzouying/xiaohongshu-harvester/pkg/xhsutil"
)

// CrawlState 达人主页采集状态。visited 只增不减，是唯一的去重依据。
type CrawlState struct {
	visited    map[string]struct{}
	Results    []string
	Failures   []*NoteError
	IdleRounds int
}

func NewCrawlState() *CrawlState {
	return &CrawlState{visited: make(map[string]struct{})}
}

// Visit 标记为已访问，已访问过时返回 false
func (s *CrawlState) Visit(url string) bool {
	if _, ok := s.visited[url]; ok {
		return false
	}
	s.visited[url] = struct{}{}
	return true
}

// Seen 是否已访问
func (s *CrawlState) Seen(url string) bool {
	_, ok := s.visited[url]
	return ok
}

// VisitedCount 已访问的笔记数
func (s *CrawlState) VisitedCount() int {
	return len(s.visited)
}

// CrawlResult 达人主页采集结果
type CrawlResult struct {
	ProfileURL string       `json:"profile_url"`
	MetaPaths  []string     `json:"meta_paths"`
	Failures   []*NoteError `json:"-"`
	Visited    int          `json:"visited"`
	IdleRounds int          `json:"idle_rounds"`
}

// FailedURLs 采集失败的笔记地址
func (r *CrawlResult) FailedURLs() []string {
	urls := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		urls = append(urls, f.URL)
	}
	return urls
}

// CrawlConfig 采集节奏
type CrawlConfig struct {
	IdleRounds    int
	ScrollDelta   int
	ProfileSettle time.Duration
	IdleDelay     time.Duration
	ClickSettle   time.Duration
	BackDelayMin  time.Duration
	BackDelayMax  time.Duration
	SniffHints    []string
	LoginOptions  LoginOptions
}

// DefaultCrawlConfig 真实浏览器下的节奏
func DefaultCrawlConfig() CrawlConfig {
	return CrawlConfig{
		IdleRounds:    8,
		ScrollDelta:   1800,
		ProfileSettle: 2 * time.Second,
		IdleDelay:     2 * time.Second,
		ClickSettle:   2 * time.Second,
		BackDelayMin:  time.Second,
		BackDelayMax:  2200 * time.Millisecond,
	}
}

type noteExtractor interface {
	Extract(ctx context.Context, page Page, jar CookieJar, sourceURL string, sniffer *VideoSniffer) (*ExtractResult, error)
}

// ProfileCrawler 模拟真实用户：点击卡片 -> 抓取 -> 返回主页 -> 下一条
type ProfileCrawler struct {
	gate      *LoginGate
	extractor noteExtractor
	cfg       CrawlConfig
}

func NewProfileCrawler(gate *LoginGate, extractor noteExtractor, cfg CrawlConfig) *ProfileCrawler {
	if cfg.IdleRounds <= 0 {
		cfg.IdleRounds = 8
	}
	if cfg.ScrollDelta <= 0 {
		cfg.ScrollDelta = 1800
	}
	if cfg.BackDelayMax < cfg.BackDelayMin {
		cfg.BackDelayMax = cfg.BackDelayMin
	}
	return &ProfileCrawler{
		gate:      gate,
		extractor: extractor,
		cfg:       cfg,
	}
}

// Crawl 采集最多 maxItems 条笔记。单条失败记录后继续；中断时返回已完成的部分和 ctx 错误。
func (c *ProfileCrawler) Crawl(ctx context.Context, page Page, jar CookieJar, profileURL string, maxItems int) (*CrawlResult, error) {
	state := NewCrawlState()
	result := func() *CrawlResult {
		return &CrawlResult{
			ProfileURL: profileURL,
			MetaPaths:  state.Results,
			Failures:   state.Failures,
			Visited:    state.VisitedCount(),
			IdleRounds: state.IdleRounds,
		}
	}

	logrus.Infof("达人主页模式: %s，目标采集条数: %d", profileURL, maxItems)

	if err := Open(ctx, page, profileURL); err != nil {
		return result(), err
	}
	if c.gate != nil {
		if ok, _ := c.gate.WaitForLogin(ctx, jar, page, c.cfg.LoginOptions); !ok {
			logrus.Warnf("%v，继续尝试采集", ErrLoginTimeout)
		}
	}
	if err := sleepContext(ctx, c.cfg.ProfileSettle); err != nil {
		return result(), err
	}

	for len(state.Results) < maxItems && state.IdleRounds < c.cfg.IdleRounds {
		if err := ctx.Err(); err != nil {
			return result(), err
		}

		links, err := CollectNoteLinks(page)
		if err != nil {
			logrus.Warnf("收集笔记链接失败: %v", err)
		}

		var pending []string
		for _, u := range links {
			if !state.Seen(u) {
				pending = append(pending, u)
			}
		}

		if len(pending) == 0 {
			state.IdleRounds++
			logrus.Infof("未发现新卡片，向下滚动加载更多... (%d/%d)", state.IdleRounds, c.cfg.IdleRounds)
			if err := page.Scroll(ctx, c.cfg.ScrollDelta); err != nil {
				logrus.Debugf("滚动失败: %v", err)
			}
			if err := sleepContext(ctx, c.cfg.IdleDelay); err != nil {
				return result(), err
			}
			continue
		}

		state.IdleRounds = 0
		for _, noteURL := range pending {
			if len(state.Results) >= maxItems {
				break
			}
			if !state.Visit(noteURL) {
				continue
			}

			logrus.Infof("进入笔记 (%d/%d): %s", len(state.Results)+1, maxItems, noteURL)
			path, err := c.visit(ctx, page, jar, noteURL)
			if err != nil {
				if ctx.Err() != nil {
					return result(), ctx.Err()
				}
				logrus.Errorf("当前笔记采集失败: %v", err)
				state.Failures = append(state.Failures, noteError(noteURL, err))
			} else {
				state.Results = append(state.Results, path)
				logrus.Infof("当前笔记采集完成: %s", path)
			}

			if err := c.backToProfile(ctx, page, profileURL); err != nil {
				return result(), err
			}
		}
	}

	logrus.Infof("达人主页采集结束，成功 %d 条，失败 %d 条。", len(state.Results), len(state.Failures))
	return result(), nil
}

func (c *ProfileCrawler) visit(ctx context.Context, page Page, jar CookieJar, noteURL string) (string, error) {
	sniffer := NewVideoSniffer(c.cfg.SniffHints)
	stop, err := page.ListenResponses(ctx, func(resp NetworkResponse) {
		sniffer.Offer(resp)
	})
	if err != nil {
		logrus.Warnf("无法监听网络响应: %v", err)
	} else {
		defer stop()
	}

	if c.clickCard(ctx, page, noteURL) {
		logrus.Info("已模拟点击卡片进入详情页。")
		if err := sleepContext(ctx, c.cfg.ClickSettle); err != nil {
			return "", err
		}
	} else {
		logrus.Warn("卡片点击失败，降级为同会话直达详情页。")
		if err := Open(ctx, page, noteURL); err != nil {
			return "", err
		}
	}

	res, err := c.extractor.Extract(ctx, page, jar, noteURL, sniffer)
	if err != nil {
		return "", err
	}
	return res.MetaPath, nil
}

func (c *ProfileCrawler) clickCard(ctx context.Context, page Page, noteURL string) bool {
	idx, ok := noteCardIndex(page, noteURL)
	if !ok {
		return false
	}
	if err := page.ClickNth(ctx, NoteLinkSelector, idx); err != nil {
		logrus.Debugf("点击卡片失败: %v", err)
		return false
	}
	return true
}

// backToProfile 浏览器后退，失败时重新打开主页，然后随机等待
func (c *ProfileCrawler) backToProfile(ctx context.Context, page Page, profileURL string) error {
	backErr := page.Back(ctx)
	if err := sleepContext(ctx, c.jitter()); err != nil {
		return err
	}

	if backErr == nil && xhsutil.IsProfileURL(page.URL()) {
		return nil
	}

	if backErr != nil {
		logrus.Warnf("后退失败，重新打开达人主页: %v", backErr)
	}
	if err := Open(ctx, page, profileURL); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logrus.Warnf("重新打开达人主页失败: %v", err)
	}
	return nil
}

func (c *ProfileCrawler) jitter() time.Duration {
	span := c.cfg.BackDelayMax - c.cfg.BackDelayMin
	if span <= 0 {
		return c.cfg.BackDelayMin
	}
	return c.cfg.BackDelayMin + time.Duration(rand.Int64N(int64(span)))
}
