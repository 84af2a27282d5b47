package xiaohongshu

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LoginState 由 cookie 与页面探测即时推导，不做缓存
type LoginState int

const (
	LoginUnauthenticated LoginState = iota
	LoginIndeterminate
	LoginAuthenticated
)

func (s LoginState) String() string {
	switch s {
	case LoginAuthenticated:
		return "authenticated"
	case LoginIndeterminate:
		return "indeterminate"
	default:
		return "unauthenticated"
	}
}

// LoginMode 登录等待的结束方式
type LoginMode string

const (
	LoginModeAuto    LoginMode = "auto"
	LoginModeManual  LoginMode = "manual"
	LoginModeTimeout LoginMode = "timeout"
)

// LoginOptions 单次等待参数，零值使用 LoginGate 的默认值
type LoginOptions struct {
	Timeout      time.Duration
	PollInterval time.Duration
	// ForceWait 即使已登录也等待（登录工具使用）
	ForceWait bool
}

// LoginGateConfig 登录检测配置
type LoginGateConfig struct {
	CookieNames    []string
	Strict         bool
	DefaultTimeout time.Duration
	PollInterval   time.Duration
}

// LoginGate 判断会话是否可用于抓取，必要时等待用户扫码登录
type LoginGate struct {
	cookieNames map[string]struct{}
	strict      bool
	timeout     time.Duration
	poll        time.Duration
	confirmer   *Confirmer
}

func NewLoginGate(cfg LoginGateConfig, confirmer *Confirmer) *LoginGate {
	names := make(map[string]struct{}, len(cfg.CookieNames))
	for _, n := range cfg.CookieNames {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			names[n] = struct{}{}
		}
	}

	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 300 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}

	return &LoginGate{
		cookieNames: names,
		strict:      cfg.Strict,
		timeout:     cfg.DefaultTimeout,
		poll:        cfg.PollInterval,
		confirmer:   confirmer,
	}
}

// Confirmer 人工确认入口
func (g *LoginGate) Confirmer() *Confirmer {
	return g.confirmer
}

// IsAuthenticated cookie 中是否存在登录 cookie，与页面内容无关
func (g *LoginGate) IsAuthenticated(ctx context.Context, jar CookieJar) bool {
	if jar == nil {
		return false
	}
	names, err := jar.CookieNames(ctx)
	if err != nil {
		logrus.Warnf("读取 cookie 失败: %v", err)
		return false
	}
	for _, n := range names {
		if _, ok := g.cookieNames[strings.ToLower(n)]; ok {
			return true
		}
	}
	return false
}

// PageRequiresLogin 页面是否处于缺少登录态的场景。
// 登录信号得分 >= 2 且没有登录成功标记时才返回 true，信号不足时视为不需要登录。
func PageRequiresLogin(page Page) bool {
	if page == nil || page.Closed() {
		return false
	}

	score := 0
	if strings.Contains(strings.ToLower(page.URL()), "/login") {
		score += 2
	}
	if hasAny(page, loginPageSelectors) {
		score++
	}
	if html, err := page.HTML(); err == nil && containsAny(html, loginHintWords) {
		score++
	}

	return score >= 2 && !HasSuccessMarker(page)
}

// HasSuccessMarker 只在登录后出现的元素（个人主页链接、侧边栏等）
func HasSuccessMarker(page Page) bool {
	return hasAny(page, loginSuccessSelectors)
}

// HasNoteContent 页面上已渲染出笔记内容
func HasNoteContent(page Page) bool {
	return hasAny(page, noteContentSelectors)
}

// State 当前登录状态
func (g *LoginGate) State(ctx context.Context, jar CookieJar, page Page) LoginState {
	if g.IsAuthenticated(ctx, jar) || (page != nil && !page.Closed() && HasSuccessMarker(page)) {
		return LoginAuthenticated
	}
	if PageRequiresLogin(page) {
		return LoginUnauthenticated
	}
	return LoginIndeterminate
}

// WaitForLogin 必要时等待登录完成。
// 自动检测与人工确认同时进行，先到者返回；超时、中断或页面关闭返回 (false, timeout)。
func (g *LoginGate) WaitForLogin(ctx context.Context, jar CookieJar, page Page, opts LoginOptions) (bool, LoginMode) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = g.timeout
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = g.poll
	}

	if page == nil || page.Closed() {
		logrus.Warn("页面已关闭，跳过登录等待。")
		return false, LoginModeTimeout
	}

	hasCookie := g.IsAuthenticated(ctx, jar)
	switch {
	case opts.ForceWait:
		logrus.Infof("将强制等待登录（最多 %s），请扫码完成后继续...", timeout)
	case !hasCookie && g.strict:
		logrus.Infof("未检测到登录态，将等待最多 %s 供你扫码登录...", timeout)
	case !PageRequiresLogin(page):
		return true, LoginModeAuto
	default:
		logrus.Info("检测到需要登录，请在浏览器中扫码完成登录，程序将自动继续...")
	}

	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	manual := g.confirmer.Await(wctx)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		if page.Closed() {
			logrus.Warn("页面已关闭，结束登录等待。")
			return false, LoginModeTimeout
		}

		if g.pollOnce(wctx, jar, page, opts.ForceWait) {
			logrus.Info("检测到登录完成，继续执行抓取。")
			return true, LoginModeAuto
		}

		select {
		case <-manual:
			logrus.Info("已人工确认登录，继续执行抓取。")
			return true, LoginModeManual
		case <-wctx.Done():
			if ctx.Err() != nil {
				logrus.Warn("用户中断登录等待。")
			} else if g.strict && !g.IsAuthenticated(ctx, jar) {
				logrus.Warn("登录等待超时，仍未检测到登录态。")
			} else {
				logrus.Warn("登录等待超时，继续尝试抓取（可能失败）。")
			}
			return false, LoginModeTimeout
		case <-ticker.C:
		}
	}
}

func (g *LoginGate) pollOnce(ctx context.Context, jar CookieJar, page Page, forceWait bool) bool {
	requiresLogin := PageRequiresLogin(page)
	if g.IsAuthenticated(ctx, jar) && (!requiresLogin || HasNoteContent(page) || HasSuccessMarker(page)) {
		return true
	}
	return !forceWait && !g.strict && !requiresLogin
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
