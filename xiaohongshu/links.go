package xiaohongshu

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"

	"github.com/xpzouying/xiaohongshu-harvester/pkg/xhsutil"
)

// CollectNoteLinks 当前已渲染的笔记卡片链接，转为绝对地址后保序去重
func CollectNoteLinks(page Page) ([]string, error) {
	html, err := page.HTML()
	if err != nil {
		return nil, errors.Wrap(err, "读取页面源码失败")
	}
	return ParseNoteLinks(html)
}

// ParseNoteLinks 从 HTML 中解析笔记链接
func ParseNoteLinks(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errors.Wrap(err, "解析页面源码失败")
	}

	var links []string
	seen := make(map[string]struct{})
	doc.Find(NoteLinkSelector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}
		full := xhsutil.AbsoluteURL(href)
		if !strings.Contains(full, "/explore/") {
			return
		}
		if _, dup := seen[full]; dup {
			return
		}
		seen[full] = struct{}{}
		links = append(links, full)
	})
	return links, nil
}

// noteCardIndex 与 noteURL 对应的卡片在 NoteLinkSelector 匹配结果中的下标
func noteCardIndex(page Page, noteURL string) (int, bool) {
	hrefs, err := page.Attributes(NoteLinkSelector, "href")
	if err != nil {
		return 0, false
	}
	for i, href := range hrefs {
		if href != "" && xhsutil.AbsoluteURL(href) == noteURL {
			return i, true
		}
	}
	return 0, false
}
