package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/pkg/errors"

	"github.com/xpzouying/xiaohongshu-harvester/xiaohongshu"
)

var _ xiaohongshu.Page = (*Page)(nil)

const (
	clickTimeout     = 6 * time.Second
	backPollInterval = 200 * time.Millisecond
)

// Page 基于 rod.Page 的页面实现
type Page struct {
	page        *rod.Page
	navTimeout  time.Duration
	backTimeout time.Duration
}

func NewPage(page *rod.Page, navTimeout, backTimeout time.Duration) *Page {
	return &Page{page: page, navTimeout: navTimeout, backTimeout: backTimeout}
}

// Rod 底层 rod 页面
func (p *Page) Rod() *rod.Page {
	return p.page
}

func (p *Page) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *Page) Title() (string, error) {
	info, err := p.page.Info()
	if err != nil {
		return "", errors.Wrap(err, "读取页面信息失败")
	}
	return info.Title, nil
}

func (p *Page) HTML() (string, error) {
	return p.page.HTML()
}

func (p *Page) Has(selector string) (bool, error) {
	has, _, err := p.page.Has(selector)
	return has, err
}

func (p *Page) Texts(selector string) ([]string, error) {
	els, err := p.page.Elements(selector)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(els))
	for _, el := range els {
		t, err := el.Text()
		if err != nil {
			return nil, err
		}
		texts = append(texts, t)
	}
	return texts, nil
}

func (p *Page) Attribute(selector, name string) (string, bool, error) {
	has, el, err := p.page.Has(selector)
	if err != nil || !has {
		return "", false, err
	}
	v, err := el.Attribute(name)
	if err != nil || v == nil {
		return "", false, err
	}
	return *v, true, nil
}

func (p *Page) Attributes(selector, name string) ([]string, error) {
	els, err := p.page.Elements(selector)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(els))
	for _, el := range els {
		v, err := el.Attribute(name)
		if err != nil {
			return nil, err
		}
		if v == nil {
			values = append(values, "")
			continue
		}
		values = append(values, *v)
	}
	return values, nil
}

// Navigate 等待 DOMContentLoaded，超过 navTimeout 返回 ErrPageLoadTimeout
func (p *Page) Navigate(ctx context.Context, url string) error {
	tctx, cancel := context.WithTimeout(ctx, p.navTimeout)
	defer cancel()

	pp := p.page.Context(tctx)
	wait := pp.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := pp.Navigate(url); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if tctx.Err() != nil {
			return errors.Wrapf(xiaohongshu.ErrPageLoadTimeout, "%s", url)
		}
		return errors.Wrapf(err, "导航失败: %s", url)
	}
	wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if tctx.Err() != nil {
		return errors.Wrapf(xiaohongshu.ErrPageLoadTimeout, "%s", url)
	}
	return nil
}

// Back 浏览器后退，等到 DOMContentLoaded 或地址变化，超过 backTimeout 返回 ErrPageLoadTimeout
func (p *Page) Back(ctx context.Context) error {
	before := p.URL()

	tctx, cancel := context.WithTimeout(ctx, p.backTimeout)
	defer cancel()

	pp := p.page.Context(tctx)
	wait := pp.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := pp.NavigateBack(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrap(err, "后退失败")
	}

	// 站内路由后退不一定触发生命周期事件，同时观察地址
	loaded := make(chan struct{})
	go func() {
		wait()
		close(loaded)
	}()

	ticker := time.NewTicker(backPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-loaded:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if tctx.Err() != nil {
				return errors.Wrap(xiaohongshu.ErrPageLoadTimeout, "后退超时")
			}
			return nil
		case <-ticker.C:
			if u := p.URL(); u != "" && u != before {
				return nil
			}
		}
	}
}

func (p *Page) Scroll(ctx context.Context, dy int) error {
	return p.page.Context(ctx).Mouse.Scroll(0, float64(dy), 1)
}

func (p *Page) ClickNth(ctx context.Context, selector string, index int) error {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(els) {
		return fmt.Errorf("element %s[%d] not found", selector, index)
	}

	el := els[index].Timeout(clickTimeout)
	if err := el.ScrollIntoView(); err != nil {
		return errors.Wrap(err, "滚动到卡片失败")
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (p *Page) StopLoading() error {
	return p.page.StopLoading()
}

func (p *Page) ListenResponses(ctx context.Context, fn func(xiaohongshu.NetworkResponse)) (func(), error) {
	lctx, cancel := context.WithCancel(ctx)
	pp := p.page.Context(lctx)

	if err := (proto.NetworkEnable{}).Call(pp); err != nil {
		cancel()
		return nil, errors.Wrap(err, "开启网络事件失败")
	}

	wait := pp.EachEvent(func(e *proto.NetworkResponseReceived) {
		if e.Response == nil {
			return
		}
		fn(xiaohongshu.NetworkResponse{URL: e.Response.URL, MIMEType: e.Response.MIMEType})
	})
	go wait()

	return cancel, nil
}

// Closed 页面已关闭或浏览器已断开
func (p *Page) Closed() bool {
	_, err := p.page.Info()
	return err != nil
}
