package xiaohongshu

import "context"

// NetworkResponse 页面加载过程中观察到的一次网络响应
type NetworkResponse struct {
	URL      string
	MIMEType string
}

// Page 采集所需的最小页面能力，browser 包基于 go-rod 实现
type Page interface {
	URL() string
	Title() (string, error)
	HTML() (string, error)

	Has(selector string) (bool, error)
	// Texts 返回所有匹配元素的文本
	Texts(selector string) ([]string, error)
	// Attribute 返回第一个匹配元素的属性，元素或属性不存在时 ok 为 false
	Attribute(selector, name string) (value string, ok bool, err error)
	// Attributes 返回所有匹配元素的属性，缺失的属性为空串
	Attributes(selector, name string) ([]string, error)

	// Navigate 加载超时返回 ErrPageLoadTimeout
	Navigate(ctx context.Context, url string) error
	Back(ctx context.Context) error
	Scroll(ctx context.Context, dy int) error
	// ClickNth 将第 index 个匹配元素滚动到可见区域后点击
	ClickNth(ctx context.Context, selector string, index int) error
	StopLoading() error

	// ListenResponses 在 stop 调用或 ctx 结束前把每个网络响应交给 fn
	ListenResponses(ctx context.Context, fn func(NetworkResponse)) (stop func(), err error)
	Closed() bool
}

// CookieJar 浏览上下文的 cookie
type CookieJar interface {
	CookieNames(ctx context.Context) ([]string, error)
}

const (
	// 笔记卡片链接
	NoteLinkSelector = `a[href*="/explore/"]`

	statsCountSelector = ".interact-container .count"
	descSelector       = "#detail-desc"
	authorSelector     = ".username"
	commentSelector    = ".comment-item .content"
	coverSelector      = `meta[property="og:image"]`
	videoSelector      = "video"
	defaultAuthorName  = "Unknown"
	followLabel        = "关注"

	loginHomeURL = "https://www.xiaohongshu.com/explore"
)

var (
	loginPageSelectors = []string{
		".login-container",
		".login-mask",
		`input[placeholder*="手机号"]`,
		`input[placeholder*="验证码"]`,
	}

	loginHintWords = []string{
		"扫码登录",
		"登录后",
		"请先登录",
		"手机号登录",
		"验证码登录",
	}

	loginSuccessSelectors = []string{
		`[href*="/user/profile"]`,
		".user-side-bar",
		".author-wrapper",
	}

	noteContentSelectors = []string{
		videoSelector,
		descSelector,
	}
)

// HomeURL 登录工具打开的页面
func HomeURL() string {
	return loginHomeURL
}

func hasAny(page Page, selectors []string) bool {
	for _, sel := range selectors {
		if ok, err := page.Has(sel); err == nil && ok {
			return true
		}
	}
	return false
}
