package browser

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/xpzouying/xiaohongshu-harvester/configs"
	"github.com/xpzouying/xiaohongshu-harvester/cookies"
	"github.com/xpzouying/xiaohongshu-harvester/pkg/xhsutil"
)

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Options 浏览器会话参数
type Options struct {
	ProfileDir        string
	Headless          configs.HeadlessMode
	BinPath           string
	Proxy             string
	UserAgent         string
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration
	BackTimeout       time.Duration
	// Cookies 启动时注入、登录后保存，可为空
	Cookies cookies.Store
}

// OptionsFromConfig 从配置构造会话参数
func OptionsFromConfig(cfg *configs.Config, store cookies.Store) Options {
	return Options{
		ProfileDir:        cfg.Browser.ProfileDir,
		Headless:          cfg.Headless(),
		BinPath:           cfg.Browser.Bin,
		Proxy:             cfg.Browser.Proxy,
		UserAgent:         cfg.Browser.UserAgent,
		ViewportWidth:     cfg.Browser.ViewportWidth,
		ViewportHeight:    cfg.Browser.ViewportHeight,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		BackTimeout:       cfg.Browser.BackTimeout,
		Cookies:           store,
	}
}

// Session 独占一个持久化 profile 目录与一个页面。
// 通过 defer Close() 保证任何退出路径都释放浏览器和目录锁。
type Session struct {
	opts Options

	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *Page
	lock     *profileLock

	closeOnce sync.Once
	closeErr  error
}

// maskProxyCredentials masks username and password in proxy URL for safe logging.
func maskProxyCredentials(proxyURL string) string {
	u, err := url.Parse(proxyURL)
	if err != nil || u.User == nil {
		return proxyURL
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		u.User = url.UserPassword("***", "***")
	} else {
		u.User = url.User("***")
	}
	return u.String()
}

// Open 启动浏览器并打开一个 stealth 页面，profile 目录不存在时创建
func Open(ctx context.Context, opts Options) (*Session, error) {
	if opts.ProfileDir == "" {
		return nil, errors.New("profile dir is required")
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.ViewportWidth <= 0 || opts.ViewportHeight <= 0 {
		opts.ViewportWidth, opts.ViewportHeight = 1280, 800
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 30 * time.Second
	}
	if opts.BackTimeout <= 0 {
		opts.BackTimeout = 15 * time.Second
	}

	dir, err := filepath.Abs(opts.ProfileDir)
	if err != nil {
		return nil, errors.Wrap(err, "解析 profile 目录失败")
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logrus.Warnf("未找到浏览器记忆文件夹，将新建: %s（首次使用请先运行登录工具）", dir)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "创建 profile 目录失败")
	}

	lock, err := acquireProfileLock(dir)
	if err != nil {
		return nil, err
	}

	s := &Session{opts: opts, lock: lock}
	if err := s.launch(ctx, dir); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) launch(ctx context.Context, dir string) error {
	// 上次异常退出残留的 Chrome 单例锁，目录锁已保证没有其他进程在使用
	for _, lock := range []string{
		filepath.Join(dir, "SingletonLock"),
		filepath.Join(dir, "Default", "SingletonLock"),
	} {
		_ = os.Remove(lock)
	}

	l := launcher.New().Context(ctx).UserDataDir(dir)
	switch s.opts.Headless {
	case configs.HeadlessNew:
		l = l.HeadlessNew(true)
	case configs.HeadlessOld:
		l = l.Headless(true)
	default: // 有窗口模式
		l = l.Headless(false)
	}
	l = l.Set("no-sandbox").
		Set("disable-blink-features", "AutomationControlled").
		Set("user-agent", s.opts.UserAgent)

	if s.opts.BinPath != "" {
		l = l.Bin(s.opts.BinPath)
	}
	if s.opts.Proxy != "" {
		l = l.Proxy(s.opts.Proxy)
		logrus.Infof("Using proxy: %s", maskProxyCredentials(s.opts.Proxy))
	}

	logrus.Infof("正在唤醒有记忆的浏览器: %s", dir)
	u, err := l.Launch()
	if err != nil {
		return errors.Wrap(err, "启动浏览器失败")
	}
	s.launcher = l

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		return errors.Wrap(err, "连接浏览器失败")
	}
	s.browser = b

	s.seedCookies()

	page, err := stealth.Page(b)
	if err != nil {
		return errors.Wrap(err, "创建页面失败")
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             s.opts.ViewportWidth,
		Height:            s.opts.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		logrus.Warnf("设置视口失败: %v", err)
	}

	s.page = NewPage(page, s.opts.NavigationTimeout, s.opts.BackTimeout)
	return nil
}

func (s *Session) seedCookies() {
	if s.opts.Cookies == nil {
		return
	}
	cks, err := s.opts.Cookies.Load()
	if err != nil {
		logrus.Warnf("加载 cookies 失败: %v", err)
		return
	}
	if len(cks) == 0 {
		return
	}
	if err := s.browser.SetCookies(toNetworkCookieParams(cks)); err != nil {
		logrus.Warnf("设置 cookies 失败: %v", err)
		return
	}
	logrus.Debugf("已注入 %d 个 cookies", len(cks))
}

// Page 会话页面
func (s *Session) Page() *Page {
	return s.page
}

// CookieNames 当前浏览上下文中站点的 cookie 名称
func (s *Session) CookieNames(ctx context.Context) ([]string, error) {
	if s.page == nil {
		return nil, errors.New("session is not open")
	}

	cks, err := s.page.page.Context(ctx).Cookies([]string{xhsutil.BaseURL})
	if err != nil {
		cks, err = s.browser.Context(ctx).GetCookies()
		if err != nil {
			return nil, errors.Wrap(err, "读取 cookies 失败")
		}
	}

	names := make([]string, 0, len(cks))
	for _, c := range cks {
		names = append(names, c.Name)
	}
	return names, nil
}

// SaveCookies 将浏览器中的站点 cookie 写入 cookie 文件
func (s *Session) SaveCookies(ctx context.Context) error {
	if s.opts.Cookies == nil {
		return nil
	}
	cks, err := s.browser.Context(ctx).GetCookies()
	if err != nil {
		return errors.Wrap(err, "读取 cookies 失败")
	}
	return s.opts.Cookies.Save(fromNetworkCookies(cks))
}

// ClearCookies 清空浏览器中的 cookies（重置登录态）
func (s *Session) ClearCookies() error {
	return errors.Wrap(s.browser.SetCookies(nil), "清空浏览器 cookies 失败")
}

// Close 幂等，总是释放浏览器与目录锁。
// 不调用 launcher.Cleanup：它会删除 user-data-dir。
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.browser != nil {
			if err := s.browser.Close(); err != nil {
				s.closeErr = errors.Wrap(err, "关闭浏览器失败")
				if s.launcher != nil {
					s.launcher.Kill()
				}
			}
		} else if s.launcher != nil {
			s.launcher.Kill()
		}
		if s.lock != nil {
			if err := s.lock.release(); err != nil && s.closeErr == nil {
				s.closeErr = err
			}
		}
		logrus.Debug("浏览器会话已关闭")
	})
	return s.closeErr
}

// toNetworkCookieParams 转换 cookie 格式
func toNetworkCookieParams(cks []cookies.Cookie) []*proto.NetworkCookieParam {
	params := make([]*proto.NetworkCookieParam, 0, len(cks))
	for _, c := range cks {
		p := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: proto.NetworkCookieSameSite(c.SameSite),
		}
		if c.Expires > 0 {
			p.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		params = append(params, p)
	}
	return params
}

func fromNetworkCookies(cks []*proto.NetworkCookie) []cookies.Cookie {
	out := make([]cookies.Cookie, 0, len(cks))
	for _, c := range cks {
		if !strings.Contains(c.Domain, "xiaohongshu") {
			continue
		}
		out = append(out, cookies.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return out
}
