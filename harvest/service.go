package harvest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/xpzouying/xiaohongshu-harvester/configs"
	"github.com/xpzouying/xiaohongshu-harvester/cookies"
	"github.com/xpzouying/xiaohongshu-harvester/pkg/downloader"
	"github.com/xpzouying/xiaohongshu-harvester/pkg/xhsutil"
	"github.com/xpzouying/xiaohongshu-harvester/xiaohongshu"
)

// Service 采集服务。同一时间只运行一个操作，所有操作共用一个 profile 目录。
type Service struct {
	cfg       *configs.Config
	open      SessionOpener
	store     cookies.Store
	confirmer *xiaohongshu.Confirmer

	gate      *xiaohongshu.LoginGate
	extractor *xiaohongshu.NoteExtractor
	crawler   *xiaohongshu.ProfileCrawler

	sleep func(ctx context.Context, d time.Duration) error

	mu sync.Mutex
}

type options struct {
	opener     SessionOpener
	store      cookies.Store
	confirmer  *xiaohongshu.Confirmer
	fetcher    xiaohongshu.VideoFetcher
	fallback   xiaohongshu.FallbackFetcher
	noFallback bool
	progress   bool
	sleep      func(ctx context.Context, d time.Duration) error
}

type Option func(*options)

func WithSessionOpener(open SessionOpener) Option {
	return func(o *options) { o.opener = open }
}

func WithCookieStore(store cookies.Store) Option {
	return func(o *options) { o.store = store }
}

func WithConfirmer(c *xiaohongshu.Confirmer) Option {
	return func(o *options) { o.confirmer = c }
}

// WithVideoFetcher 替换直链下载器
func WithVideoFetcher(f xiaohongshu.VideoFetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithFallbackFetcher 替换 yt-dlp 兜底，nil 表示关闭兜底
func WithFallbackFetcher(f xiaohongshu.FallbackFetcher) Option {
	return func(o *options) {
		o.fallback = f
		o.noFallback = f == nil
	}
}

// WithProgress 下载时在终端显示进度条
func WithProgress(enabled bool) Option {
	return func(o *options) { o.progress = enabled }
}

func withSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) { o.sleep = fn }
}

func NewService(cfg *configs.Config, opts ...Option) *Service {
	o := &options{progress: cfg.Download.Progress, sleep: sleepContext}
	for _, opt := range opts {
		opt(o)
	}

	if o.store == nil {
		o.store = cookies.NewFileStore(cookies.ResolvePath(cfg.CookiesPath))
	}
	if o.confirmer == nil {
		o.confirmer = xiaohongshu.NewConfirmer()
	}
	if o.opener == nil {
		o.opener = BrowserOpener(cfg, o.store)
	}
	if o.fetcher == nil {
		o.fetcher = downloader.NewVideoDownloader(downloader.Options{
			UserAgent: cfg.Download.UserAgent,
			Referer:   cfg.Download.Referer,
			Timeout:   cfg.Download.Timeout,
			Retries:   cfg.Download.Retries,
			Backoff:   cfg.Download.Backoff,
			MinBytes:  cfg.Download.MinBytes,
			Progress:  o.progress,
		})
	}
	if o.fallback == nil && !o.noFallback && cfg.FetchTool.Enabled {
		o.fallback = downloader.NewFetchTool(downloader.FetchToolOptions{
			Bin:       cfg.FetchTool.Bin,
			Dir:       cfg.WorkDir,
			Timeout:   cfg.FetchTool.Timeout,
			MaxHeight: cfg.FetchTool.MaxHeight,
		})
	}

	gate := xiaohongshu.NewLoginGate(xiaohongshu.LoginGateConfig{
		CookieNames:    cfg.Login.CookieNames,
		Strict:         cfg.Login.StrictRequired,
		DefaultTimeout: cfg.LoginWait(),
		PollInterval:   cfg.LoginPoll(),
	}, o.confirmer)

	resolver := xiaohongshu.NewAssetResolver(cfg.WorkDir, o.fetcher, o.fallback)
	extractor := xiaohongshu.NewNoteExtractor(gate, resolver, xiaohongshu.NewMetadataWriter(cfg.WorkDir), xiaohongshu.NoteExtractorConfig{
		Timing: xiaohongshu.Timing{
			Settle:      cfg.Crawl.SettleDelay,
			NudgeScroll: cfg.Crawl.NudgeScroll,
			NudgeDelay:  cfg.Crawl.NudgeDelay,
		},
		TopComments: cfg.Crawl.TopComments,
	})

	crawler := xiaohongshu.NewProfileCrawler(gate, extractor, xiaohongshu.CrawlConfig{
		IdleRounds:    cfg.Crawl.IdleRounds,
		ScrollDelta:   cfg.Crawl.ScrollDelta,
		ProfileSettle: cfg.Crawl.ProfileSettle,
		IdleDelay:     cfg.Crawl.IdleDelay,
		ClickSettle:   cfg.Crawl.ClickSettle,
		BackDelayMin:  cfg.Crawl.BackDelayMin,
		BackDelayMax:  cfg.Crawl.BackDelayMax,
		SniffHints:    cfg.Download.SniffHints,
	})

	return &Service{
		cfg:       cfg,
		open:      o.opener,
		store:     o.store,
		confirmer: o.confirmer,
		gate:      gate,
		extractor: extractor,
		crawler:   crawler,
		sleep:     o.sleep,
	}
}

// Confirmer 人工确认入口（CLI 的标准输入、HTTP、MCP 共用）
func (s *Service) Confirmer() *xiaohongshu.Confirmer {
	return s.confirmer
}

func (s *Service) acquire() error {
	if !s.mu.TryLock() {
		return ErrSessionBusy
	}
	return nil
}

func (s *Service) openSession(ctx context.Context, opts OpenOptions) (Session, error) {
	sess, err := s.open(ctx, opts)
	if err != nil {
		return nil, errors.Wrapf(ErrSessionLaunch, "%v", err)
	}
	return sess, nil
}

func closeSession(sess Session) {
	if err := sess.Close(); err != nil {
		logrus.Warnf("关闭浏览器会话失败: %v", err)
	}
}

// RunResult 单个目标的采集结果
type RunResult struct {
	RunID      string                     `json:"run_id"`
	URL        string                     `json:"url"`
	Mode       string                     `json:"mode"`
	MetaPaths  []string                   `json:"meta_paths"`
	FailedURLs []string                   `json:"failed_urls,omitempty"`
	Note       *xiaohongshu.ExtractResult `json:"note,omitempty"`
	Profile    *xiaohongshu.CrawlResult   `json:"profile,omitempty"`
}

const (
	ModeNote    = "note"
	ModeProfile = "profile"
)

// ScrapeNote 采集单条笔记
func (s *Service) ScrapeNote(ctx context.Context, url string) (*xiaohongshu.ExtractResult, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	return s.scrapeNote(ctx, url)
}

func (s *Service) scrapeNote(ctx context.Context, url string) (*xiaohongshu.ExtractResult, error) {
	logrus.Infof("启动单条笔记模式: %s", url)

	sess, err := s.openSession(ctx, OpenOptions{})
	if err != nil {
		return nil, err
	}
	defer closeSession(sess)

	page := sess.Page()
	sniffer := xiaohongshu.NewVideoSniffer(s.cfg.Download.SniffHints)
	stop, err := page.ListenResponses(ctx, func(resp xiaohongshu.NetworkResponse) {
		sniffer.Offer(resp)
	})
	if err != nil {
		logrus.Warnf("无法监听网络响应: %v", err)
	} else {
		defer stop()
	}

	if err := xiaohongshu.Open(ctx, page, url); err != nil {
		return nil, &xiaohongshu.NoteError{URL: url, Err: err}
	}

	return s.extractor.Extract(ctx, page, sess, url, sniffer)
}

// CrawlProfile 采集达人主页上的笔记
func (s *Service) CrawlProfile(ctx context.Context, url string, maxItems int) (*xiaohongshu.CrawlResult, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	return s.crawlProfile(ctx, url, maxItems)
}

func (s *Service) crawlProfile(ctx context.Context, url string, maxItems int) (*xiaohongshu.CrawlResult, error) {
	if maxItems <= 0 {
		maxItems = s.cfg.Crawl.MaxItems
	}

	sess, err := s.openSession(ctx, OpenOptions{})
	if err != nil {
		return nil, err
	}
	defer closeSession(sess)

	return s.crawler.Crawl(ctx, sess.Page(), sess, url, maxItems)
}

// Run 按链接类型分发到单条笔记或达人主页模式
func (s *Service) Run(ctx context.Context, url string, maxItems int) (*RunResult, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	return s.run(ctx, url, maxItems)
}

func (s *Service) run(ctx context.Context, url string, maxItems int) (*RunResult, error) {
	res := &RunResult{RunID: uuid.NewString(), URL: url}
	log := logrus.WithField("run_id", res.RunID)

	if xhsutil.IsProfileURL(url) {
		res.Mode = ModeProfile
		log.Infof("识别为达人主页链接: %s", url)

		crawl, err := s.crawlProfile(ctx, url, maxItems)
		if crawl != nil {
			res.Profile = crawl
			res.MetaPaths = crawl.MetaPaths
			res.FailedURLs = crawl.FailedURLs()
		}
		if err != nil {
			log.Errorf("达人主页采集失败: %v", err)
			return res, err
		}
		return res, nil
	}

	res.Mode = ModeNote
	note, err := s.scrapeNote(ctx, url)
	if err != nil {
		log.Errorf("笔记采集失败: %v", err)
		res.FailedURLs = []string{url}
		return res, err
	}
	res.Note = note
	res.MetaPaths = []string{note.MetaPath}
	return res, nil
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
