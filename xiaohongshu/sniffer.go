package xiaohongshu

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/xpzouying/xiaohongshu-harvester/pkg/xhsutil"
)

// DefaultSniffHints 视频 CDN 路径特征
var DefaultSniffHints = []string{"sns-video", "spectrum"}

// VideoSniffer 一次页面加载内嗅探到的视频流地址，只写一次，后续匹配忽略
type VideoSniffer struct {
	hints []string

	mu  sync.Mutex
	url string
}

func NewVideoSniffer(hints []string) *VideoSniffer {
	if len(hints) == 0 {
		hints = DefaultSniffHints
	}
	return &VideoSniffer{hints: hints}
}

// Offer 检查一次网络响应，返回是否被采用
func (s *VideoSniffer) Offer(resp NetworkResponse) bool {
	if !s.matches(resp) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.url != "" {
		return false
	}
	s.url = resp.URL
	logrus.Infof("嗅探到真实视频流: %s", xhsutil.Truncate(resp.URL, 60))
	return true
}

// URL 已嗅探到的地址
func (s *VideoSniffer) URL() (string, bool) {
	if s == nil {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url, s.url != ""
}

func (s *VideoSniffer) matches(resp NetworkResponse) bool {
	u := resp.URL
	if u == "" || isBlobURL(u) {
		return false
	}
	if !strings.Contains(strings.ToLower(resp.MIMEType), "video/mp4") && !strings.Contains(u, ".mp4") {
		return false
	}
	for _, h := range s.hints {
		if strings.Contains(u, h) {
			return true
		}
	}
	return false
}

func isBlobURL(u string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(u)), "blob:")
}
