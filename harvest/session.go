package harvest

import (
	"context"

	"github.com/pkg/errors"

	"github.com/xpzouying/xiaohongshu-harvester/browser"
	"github.com/xpzouying/xiaohongshu-harvester/configs"
	"github.com/xpzouying/xiaohongshu-harvester/cookies"
	"github.com/xpzouying/xiaohongshu-harvester/xiaohongshu"
)

var (
	// ErrSessionLaunch 无法打开浏览会话，整个调用失败
	ErrSessionLaunch = errors.New("failed to launch browsing session")
	// ErrSessionBusy 已有采集任务占用浏览会话
	ErrSessionBusy = errors.New("browsing session is busy")
)

// Session 一次调用独占的浏览会话
type Session interface {
	xiaohongshu.CookieJar
	Page() xiaohongshu.Page
	SaveCookies(ctx context.Context) error
	ClearCookies() error
	Close() error
}

// OpenOptions 打开会话的参数
type OpenOptions struct {
	// Headful 强制有窗口模式（扫码登录）
	Headful bool
}

// SessionOpener 打开浏览会话
type SessionOpener func(ctx context.Context, opts OpenOptions) (Session, error)

type rodSession struct {
	*browser.Session
}

func (s rodSession) Page() xiaohongshu.Page {
	return s.Session.Page()
}

// BrowserOpener 基于 go-rod 的会话
func BrowserOpener(cfg *configs.Config, store cookies.Store) SessionOpener {
	return func(ctx context.Context, opts OpenOptions) (Session, error) {
		bopts := browser.OptionsFromConfig(cfg, store)
		if opts.Headful {
			bopts.Headless = configs.HeadlessOff
		}
		s, err := browser.Open(ctx, bopts)
		if err != nil {
			return nil, err
		}
		return rodSession{s}, nil
	}
}
