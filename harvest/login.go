package harvest

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/xpzouying/xiaohongshu-harvester/cookies"
	"github.com/xpzouying/xiaohongshu-harvester/xiaohongshu"
)

// LoginStatus 当前会话的登录状态
type LoginStatus struct {
	State       string   `json:"state"`
	IsLoggedIn  bool     `json:"is_logged_in"`
	CookieNames []string `json:"cookie_names"`
}

// LoginResult 登录工具的结果
type LoginResult struct {
	Success     bool                  `json:"success"`
	Mode        xiaohongshu.LoginMode `json:"mode"`
	CookiesPath string                `json:"cookies_path,omitempty"`
}

// CheckLoginStatus 打开首页并即时推导登录状态
func (s *Service) CheckLoginStatus(ctx context.Context) (*LoginStatus, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	sess, err := s.openSession(ctx, OpenOptions{})
	if err != nil {
		return nil, err
	}
	defer closeSession(sess)

	page := sess.Page()
	if err := xiaohongshu.Open(ctx, page, xiaohongshu.HomeURL()); err != nil {
		return nil, err
	}

	state := s.gate.State(ctx, sess, page)
	names, err := sess.CookieNames(ctx)
	if err != nil {
		logrus.Warnf("读取 cookie 失败: %v", err)
	}
	if names == nil {
		names = []string{}
	}

	logrus.Infof("登录状态: %s", state)
	return &LoginStatus{
		State:       state.String(),
		IsLoggedIn:  state == xiaohongshu.LoginAuthenticated,
		CookieNames: names,
	}, nil
}

// Login 有窗口打开首页，强制等待扫码或人工确认，成功后保存 cookie。
// timeout 为 0 时使用配置的等待时长。
func (s *Service) Login(ctx context.Context, timeout time.Duration) (*LoginResult, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	sess, err := s.openSession(ctx, OpenOptions{Headful: true})
	if err != nil {
		return nil, err
	}
	defer closeSession(sess)

	page := sess.Page()
	if err := xiaohongshu.Open(ctx, page, xiaohongshu.HomeURL()); err != nil {
		return nil, err
	}

	logrus.Info("请在浏览器中完成扫码登录，完成后可回车或调用确认接口")
	ok, mode := s.gate.WaitForLogin(ctx, sess, page, xiaohongshu.LoginOptions{
		Timeout:   timeout,
		ForceWait: true,
	})
	if !ok {
		if ctx.Err() != nil {
			return &LoginResult{Mode: mode}, ctx.Err()
		}
		return &LoginResult{Mode: mode}, errors.Wrap(xiaohongshu.ErrLoginTimeout, "登录失败")
	}

	if err := sess.SaveCookies(ctx); err != nil {
		return &LoginResult{Success: true, Mode: mode}, errors.Wrap(err, "保存 cookie 失败")
	}

	res := &LoginResult{Success: true, Mode: mode}
	if fs, ok := s.store.(*cookies.FileStore); ok {
		res.CookiesPath = fs.Path()
	}
	logrus.Infof("登录完成（%s），cookie 已保存", mode)
	return res, nil
}

// ConfirmLogin 人工确认登录完成，返回是否有等待中的登录接收了确认
func (s *Service) ConfirmLogin() bool {
	return s.confirmer.Confirm()
}

// DeleteCookies 删除 cookie 文件并清空 profile 中的 cookie，下次需要重新登录
func (s *Service) DeleteCookies(ctx context.Context) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if cks, err := s.store.Load(); err == nil && len(cks) > 0 {
		logrus.Infof("删除已保存的 cookie: %v", cookies.Names(cks))
	}
	if err := s.store.Delete(); err != nil {
		return errors.Wrap(err, "删除 cookie 文件失败")
	}

	sess, err := s.openSession(ctx, OpenOptions{})
	if err != nil {
		return err
	}
	defer closeSession(sess)

	if err := sess.ClearCookies(); err != nil {
		return errors.Wrap(err, "清空浏览器 cookie 失败")
	}
	logrus.Info("cookie 已清除")
	return nil
}
