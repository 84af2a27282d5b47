package harvest

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"

	"github.com/xpzouying/xiaohongshu-harvester/configs"
	"github.com/xpzouying/xiaohongshu-harvester/pkg/xhsutil"
	"github.com/xpzouying/xiaohongshu-harvester/xiaohongshu"
)

const (
	noteURL    = "https://www.xiaohongshu.com/explore/65a1b2c3d4"
	secondURL  = "https://www.xiaohongshu.com/explore/77b2c3d4e5"
	profileURL = "https://www.xiaohongshu.com/user/profile/5f00aa"
	videoURL   = "https://sns-video-bd.xhscdn.com/stream/1.mp4"
)

const noteHTML = `<html><head><title>春日穿搭</title></head><body>
<div class="author-wrapper"><span class="username">小明</span></div>
<div id="detail-desc">desc</div>
<div class="interact-container"><span class="count">10</span><span class="count">2</span><span class="count">1</span></div>
<video src="` + videoURL + `"></video>
</body></html>`

const emptyNoteHTML = `<html><head><title>图文</title></head><body><div id="detail-desc">只有图片</div></body></html>`

const profileHTML = `<html><body>
<a href="/explore/65a1b2c3d4">a</a>
<a href="/explore/77b2c3d4e5">b</a>
</body></html>`

// fakePage 按地址返回固定页面源码
type fakePage struct {
	mu      sync.Mutex
	pages   map[string]string
	url     string
	doc     *goquery.Document
	html    string
	history []string
	navs    []string
}

func newFakePage(pages map[string]string) *fakePage {
	p := &fakePage{pages: pages}
	p.load("about:blank")
	return p
}

func (p *fakePage) load(url string) {
	html, ok := p.pages[url]
	if !ok {
		html = "<html><body></body></html>"
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		panic(err)
	}
	p.url, p.html, p.doc = url, html, doc
}

func (p *fakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *fakePage) Title() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Find("title").Text(), nil
}

func (p *fakePage) HTML() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

func (p *fakePage) Has(selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Find(selector).Length() > 0, nil
}

func (p *fakePage) Texts(selector string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	p.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, s.Text())
	})
	return out, nil
}

func (p *fakePage) Attribute(selector, name string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.doc.Find(selector).First().Attr(name)
	return v, ok, nil
}

func (p *fakePage) Attributes(selector, name string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	p.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, s.AttrOr(name, ""))
	})
	return out, nil
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navs = append(p.navs, url)
	p.history = append(p.history, p.url)
	p.load(url)
	return nil
}

func (p *fakePage) Back(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.history) == 0 {
		return errors.New("no history")
	}
	prev := p.history[len(p.history)-1]
	p.history = p.history[:len(p.history)-1]
	p.load(prev)
	return nil
}

func (p *fakePage) Scroll(ctx context.Context, dy int) error { return nil }

func (p *fakePage) ClickNth(ctx context.Context, selector string, index int) error {
	hrefs, _ := p.Attributes(selector, "href")
	if index >= len(hrefs) {
		return errors.New("element not found")
	}
	return p.Navigate(ctx, xhsutil.AbsoluteURL(hrefs[index]))
}

func (p *fakePage) StopLoading() error { return nil }

func (p *fakePage) ListenResponses(ctx context.Context, fn func(xiaohongshu.NetworkResponse)) (func(), error) {
	return func() {}, nil
}

func (p *fakePage) Closed() bool { return false }

type fakeSession struct {
	mu      sync.Mutex
	page    *fakePage
	names   []string
	saved   int
	cleared int
	closed  bool
}

func (s *fakeSession) Page() xiaohongshu.Page { return s.page }

func (s *fakeSession) CookieNames(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...), nil
}

func (s *fakeSession) SaveCookies(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved++
	return nil
}

func (s *fakeSession) ClearCookies() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared++
	s.names = nil
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeOpener 每次打开返回一个新会话并记录参数
type fakeOpener struct {
	mu       sync.Mutex
	pages    map[string]string
	names    []string
	failOn   map[int]error
	opened   []OpenOptions
	sessions []*fakeSession
}

func (o *fakeOpener) open(ctx context.Context, opts OpenOptions) (Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := len(o.opened)
	o.opened = append(o.opened, opts)
	if err, ok := o.failOn[n]; ok {
		return nil, err
	}
	s := &fakeSession{page: newFakePage(o.pages), names: o.names}
	o.sessions = append(o.sessions, s)
	return s, nil
}

type fakeDownloader struct {
	mu    sync.Mutex
	calls []string
}

func (d *fakeDownloader) Download(ctx context.Context, url, dest string) (int64, error) {
	d.mu.Lock()
	d.calls = append(d.calls, url)
	d.mu.Unlock()
	if err := os.WriteFile(dest, []byte("video"), 0644); err != nil {
		return 0, err
	}
	return 5, nil
}

func testConfig(t *testing.T) *configs.Config {
	t.Helper()
	cfg := configs.Default()
	cfg.WorkDir = t.TempDir()
	cfg.CookiesPath = cfg.WorkDir + "/cookies.json"
	cfg.Login.WaitSeconds = 1
	cfg.Login.PollSeconds = 1
	cfg.Crawl.SettleDelay = 0
	cfg.Crawl.NudgeDelay = 0
	cfg.Crawl.ClickSettle = 0
	cfg.Crawl.IdleDelay = 0
	cfg.Crawl.ProfileSettle = 0
	cfg.Crawl.BackDelayMin = 0
	cfg.Crawl.BackDelayMax = 0
	cfg.Crawl.IdleRounds = 1
	return cfg
}

func newTestService(t *testing.T, opener *fakeOpener, opts ...Option) (*Service, *fakeDownloader) {
	t.Helper()
	dl := &fakeDownloader{}
	all := append([]Option{
		WithSessionOpener(opener.open),
		WithVideoFetcher(dl),
		WithFallbackFetcher(nil),
		WithProgress(false),
	}, opts...)
	return NewService(testConfig(t), all...), dl
}
