package xhsutil

import (
	"net/url"
	"regexp"
	"strings"
)

// BaseURL 站点根地址，用于补全相对链接
const BaseURL = "https://www.xiaohongshu.com"

// UnknownNoteID 无法从链接中解析笔记 ID 时使用
const UnknownNoteID = "unknown"

var (
	profileURLHints = []string{"/user/profile/", "www.xiaohongshu.com/user/"}

	noteIDPattern = regexp.MustCompile(`/(?:explore|discovery/item)/(\w+)`)
)

// IsProfileURL 判断链接是否为达人主页（排除笔记详情页）
func IsProfileURL(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	u := strings.ToLower(rawURL)
	if strings.Contains(u, "/explore/") {
		return false
	}
	for _, hint := range profileURLHints {
		if strings.Contains(u, hint) {
			return true
		}
	}
	return false
}

// NoteID 从笔记链接中解析笔记 ID
func NoteID(rawURL string) string {
	m := noteIDPattern.FindStringSubmatch(rawURL)
	if len(m) < 2 {
		return UnknownNoteID
	}
	return m[1]
}

// AbsoluteURL 以站点根地址补全 href
func AbsoluteURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	base, _ := url.Parse(BaseURL)
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
