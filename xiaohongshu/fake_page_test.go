package xiaohongshu

import (
	"context"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"

	"github.com/xpzouying/xiaohongshu-harvester/pkg/xhsutil"
)

// fakePage 基于 goquery 文档的 Page 实现
type fakePage struct {
	mu sync.Mutex

	url     string
	title   string
	html    string
	doc     *goquery.Document
	closed  bool
	history []string

	// 各地址对应的页面源码与加载时产生的网络响应
	pages     map[string]string
	responses map[string][]NetworkResponse

	listeners map[int]func(NetworkResponse)
	nextID    int

	navErr   map[string]error
	backErr  error
	clickErr error

	onScroll func(p *fakePage)

	navigations []string
	clicks      []string
	scrolls     int
	stops       int
}

func newFakePage(url, html string) *fakePage {
	p := &fakePage{
		pages:     map[string]string{url: html},
		responses: map[string][]NetworkResponse{},
		listeners: map[int]func(NetworkResponse){},
		navErr:    map[string]error{},
	}
	p.load(url)
	return p
}

func (p *fakePage) setHTML(html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pages[p.url] = html
	p.parse(html)
}

func (p *fakePage) parse(html string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		panic(err)
	}
	p.html = html
	p.doc = doc
	p.title = strings.TrimSpace(doc.Find("title").First().Text())
}

func (p *fakePage) load(url string) {
	p.url = url
	html, ok := p.pages[url]
	if !ok {
		html = "<html><head></head><body></body></html>"
	}
	p.parse(html)
}

func (p *fakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *fakePage) Title() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title, nil
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
	var texts []string
	p.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		texts = append(texts, s.Text())
	})
	return texts, nil
}

func (p *fakePage) Attribute(selector, name string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", false, nil
	}
	v, ok := sel.Attr(name)
	return v, ok, nil
}

func (p *fakePage) Attributes(selector, name string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var values []string
	p.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		values = append(values, s.AttrOr(name, ""))
	})
	return values, nil
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	p.navigations = append(p.navigations, url)
	if err, ok := p.navErr[url]; ok {
		p.mu.Unlock()
		return err
	}
	p.history = append(p.history, p.url)
	p.load(url)
	responses := p.responses[url]
	listeners := make([]func(NetworkResponse), 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()

	for _, resp := range responses {
		for _, fn := range listeners {
			fn(resp)
		}
	}
	return nil
}

func (p *fakePage) Back(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backErr != nil {
		return p.backErr
	}
	if len(p.history) == 0 {
		return errors.New("no history")
	}
	prev := p.history[len(p.history)-1]
	p.history = p.history[:len(p.history)-1]
	p.load(prev)
	return nil
}

func (p *fakePage) Scroll(ctx context.Context, dy int) error {
	p.mu.Lock()
	p.scrolls++
	hook := p.onScroll
	p.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return nil
}

func (p *fakePage) ClickNth(ctx context.Context, selector string, index int) error {
	hrefs, _ := p.Attributes(selector, "href")

	p.mu.Lock()
	if p.clickErr != nil {
		p.mu.Unlock()
		return p.clickErr
	}
	if index >= len(hrefs) {
		p.mu.Unlock()
		return errors.New("element not found")
	}
	target := xhsutil.AbsoluteURL(hrefs[index])
	p.clicks = append(p.clicks, target)
	p.mu.Unlock()

	return p.Navigate(ctx, target)
}

func (p *fakePage) StopLoading() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	return nil
}

func (p *fakePage) ListenResponses(ctx context.Context, fn func(NetworkResponse)) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}, nil
}

func (p *fakePage) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePage) setClosed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

type fakeJar struct {
	mu    sync.Mutex
	names []string
	err   error
}

func newFakeJar(names ...string) *fakeJar {
	return &fakeJar{names: names}
}

func (j *fakeJar) set(names ...string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.names = names
}

func (j *fakeJar) CookieNames(ctx context.Context) ([]string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return nil, j.err
	}
	return append([]string(nil), j.names...), nil
}
