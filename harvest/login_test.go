package harvest

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xpzouying/xiaohongshu-harvester/cookies"
	"github.com/xpzouying/xiaohongshu-harvester/xiaohongshu"
)

func TestLoginAuto(t *testing.T) {
	opener := &fakeOpener{names: []string{"web_session"}}
	svc, _ := newTestService(t, opener)

	res, err := svc.Login(context.Background(), time.Second)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, xiaohongshu.LoginModeAuto, res.Mode)
	assert.NotEmpty(t, res.CookiesPath)

	require.Len(t, opener.sessions, 1)
	s := opener.sessions[0]
	assert.True(t, opener.opened[0].Headful)
	assert.Equal(t, 1, s.saved)
	assert.Equal(t, []string{xiaohongshu.HomeURL()}, s.page.navs)
	assert.True(t, s.isClosed())
}

func TestLoginManualConfirm(t *testing.T) {
	opener := &fakeOpener{}
	svc, _ := newTestService(t, opener)

	done := make(chan struct{})
	var res *LoginResult
	var err error
	go func() {
		defer close(done)
		res, err = svc.Login(context.Background(), 5*time.Second)
	}()

	assert.Eventually(t, svc.ConfirmLogin, 2*time.Second, 10*time.Millisecond)
	<-done

	require.NoError(t, err)
	assert.Equal(t, xiaohongshu.LoginModeManual, res.Mode)
	assert.Equal(t, 1, opener.sessions[0].saved)
}

func TestLoginTimeout(t *testing.T) {
	opener := &fakeOpener{}
	svc, _ := newTestService(t, opener)

	res, err := svc.Login(context.Background(), 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, xiaohongshu.ErrLoginTimeout))
	assert.False(t, res.Success)
	assert.Equal(t, xiaohongshu.LoginModeTimeout, res.Mode)
	assert.Zero(t, opener.sessions[0].saved)
}

func TestConfirmLoginWithoutWaiter(t *testing.T) {
	svc, _ := newTestService(t, &fakeOpener{})
	assert.False(t, svc.ConfirmLogin())
}

func TestCheckLoginStatus(t *testing.T) {
	for _, tc := range []struct {
		name  string
		names []string
		home  string
		want  string
		ok    bool
	}{
		{name: "logged in", names: []string{"a1", "web_session"}, want: "authenticated", ok: true},
		{name: "login wall", home: `<div class="login-container">扫码登录</div>`, want: "unauthenticated"},
		{name: "unknown", want: "indeterminate"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			pages := map[string]string{xiaohongshu.HomeURL(): tc.home}
			svc, _ := newTestService(t, &fakeOpener{names: tc.names, pages: pages})

			status, err := svc.CheckLoginStatus(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.want, status.State)
			assert.Equal(t, tc.ok, status.IsLoggedIn)
			assert.NotNil(t, status.CookieNames)
		})
	}
}

func TestDeleteCookies(t *testing.T) {
	opener := &fakeOpener{names: []string{"web_session"}}
	cfg := testConfig(t)
	store := cookies.NewFileStore(cfg.CookiesPath)
	require.NoError(t, store.Save([]cookies.Cookie{{Name: "web_session", Value: "v"}}))

	svc := NewService(cfg, WithSessionOpener(opener.open), WithCookieStore(store), WithFallbackFetcher(nil))
	require.NoError(t, svc.DeleteCookies(context.Background()))

	assert.NoFileExists(t, cfg.CookiesPath)
	require.Len(t, opener.sessions, 1)
	assert.Equal(t, 1, opener.sessions[0].cleared)
	assert.True(t, opener.sessions[0].isClosed())
}
