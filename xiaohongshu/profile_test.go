package xiaohongshu

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const profileURL = "https://www.xiaohongshu.com/user/profile/5f0000000000000000000001"

func noteLink(id string) string {
	return "https://www.xiaohongshu.com/explore/" + id
}

func profileHTML(ids ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="user-side-bar"></div><div class="feeds">`)
	for _, id := range ids {
		fmt.Fprintf(&b, `<section class="note-item"><a href="/explore/%s">card</a></section>`, id)
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

type extractCall struct {
	url     string
	pageURL string
	sniffed string
}

type fakeExtractor struct {
	calls []extractCall
	fail  map[string]error
	hook  func(url string)
}

func (e *fakeExtractor) Extract(ctx context.Context, page Page, jar CookieJar, sourceURL string, sniffer *VideoSniffer) (*ExtractResult, error) {
	u, _ := sniffer.URL()
	e.calls = append(e.calls, extractCall{url: sourceURL, pageURL: page.URL(), sniffed: u})
	if e.hook != nil {
		e.hook(sourceURL)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := e.fail[sourceURL]; ok {
		return nil, err
	}
	return &ExtractResult{MetaPath: fmt.Sprintf("meta_%d.json", len(e.calls))}, nil
}

func (e *fakeExtractor) urls() []string {
	var urls []string
	for _, c := range e.calls {
		urls = append(urls, c.url)
	}
	return urls
}

func newTestCrawler(extractor noteExtractor) *ProfileCrawler {
	return NewProfileCrawler(newTestGate(true, nil), extractor, CrawlConfig{IdleRounds: 8})
}

func openedProfile(html string) *fakePage {
	page := newFakePage("about:blank", "")
	page.pages[profileURL] = html
	return page
}

func TestCrawlDedupAndIdleBound(t *testing.T) {
	page := openedProfile(profileHTML("a", "b", "a"))
	extractor := &fakeExtractor{}

	res, err := newTestCrawler(extractor).Crawl(context.Background(), page, newFakeJar("web_session"), profileURL, 10)
	require.NoError(t, err)

	assert.Equal(t, []string{noteLink("a"), noteLink("b")}, extractor.urls())
	assert.Len(t, res.MetaPaths, 2)
	assert.Less(t, len(res.MetaPaths), 10)
	assert.Equal(t, 2, res.Visited)
	assert.Equal(t, 8, res.IdleRounds)
	assert.Equal(t, 8, page.scrolls)
}

func TestCrawlRediscoveredAfterScroll(t *testing.T) {
	page := openedProfile(profileHTML("a", "b"))
	scrolled := 0
	page.onScroll = func(p *fakePage) {
		scrolled++
		if scrolled == 1 {
			// 懒加载后旧卡片仍在页面上
			p.setHTML(profileHTML("a", "b", "c", "a"))
		}
	}
	extractor := &fakeExtractor{}

	res, err := newTestCrawler(extractor).Crawl(context.Background(), page, newFakeJar("web_session"), profileURL, 10)
	require.NoError(t, err)

	assert.Equal(t, []string{noteLink("a"), noteLink("b"), noteLink("c")}, extractor.urls())
	assert.Len(t, res.MetaPaths, 3)
	assert.Equal(t, 3, res.Visited)
}

func TestCrawlStopsAtMax(t *testing.T) {
	page := openedProfile(profileHTML("a", "b", "c"))
	extractor := &fakeExtractor{}

	res, err := newTestCrawler(extractor).Crawl(context.Background(), page, newFakeJar("web_session"), profileURL, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{noteLink("a"), noteLink("b")}, extractor.urls())
	assert.Len(t, res.MetaPaths, 2)
	assert.Zero(t, page.scrolls)
}

func TestCrawlContinuesAfterFailure(t *testing.T) {
	page := openedProfile(profileHTML("a", "b", "c"))
	extractor := &fakeExtractor{fail: map[string]error{
		noteLink("b"): &NoteError{URL: noteLink("b"), Err: ErrAssetNotFound},
	}}

	res, err := newTestCrawler(extractor).Crawl(context.Background(), page, newFakeJar("web_session"), profileURL, 10)
	require.NoError(t, err)

	assert.Len(t, res.MetaPaths, 2)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, noteLink("b"), res.Failures[0].URL)
	assert.True(t, errors.Is(res.Failures[0], ErrAssetNotFound))
	assert.Equal(t, []string{noteLink("b")}, res.FailedURLs())
}

func TestCrawlClicksCards(t *testing.T) {
	page := openedProfile(profileHTML("a", "b"))
	page.responses[noteLink("a")] = []NetworkResponse{{URL: "https://sns-video-bd.xhscdn.com/a.mp4", MIMEType: "video/mp4"}}
	page.responses[noteLink("b")] = []NetworkResponse{{URL: "https://sns-video-bd.xhscdn.com/b.mp4", MIMEType: "video/mp4"}}
	extractor := &fakeExtractor{}

	_, err := newTestCrawler(extractor).Crawl(context.Background(), page, newFakeJar("web_session"), profileURL, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{noteLink("a"), noteLink("b")}, page.clicks)
	require.Len(t, extractor.calls, 2)
	assert.Equal(t, noteLink("a"), extractor.calls[0].pageURL)
	// 每条笔记使用独立的嗅探器
	assert.Equal(t, "https://sns-video-bd.xhscdn.com/a.mp4", extractor.calls[0].sniffed)
	assert.Equal(t, "https://sns-video-bd.xhscdn.com/b.mp4", extractor.calls[1].sniffed)
	assert.Empty(t, page.listeners, "listeners are released after each note")
}

func TestCrawlFallsBackToNavigation(t *testing.T) {
	page := openedProfile(profileHTML("a"))
	page.clickErr = errors.New("element not interactable")
	extractor := &fakeExtractor{}

	_, err := newTestCrawler(extractor).Crawl(context.Background(), page, newFakeJar("web_session"), profileURL, 1)
	require.NoError(t, err)

	assert.Empty(t, page.clicks)
	assert.Contains(t, page.navigations, noteLink("a"))
	assert.Equal(t, noteLink("a"), extractor.calls[0].pageURL)
}

func TestCrawlReopensProfileWhenBackFails(t *testing.T) {
	page := openedProfile(profileHTML("a", "b"))
	page.backErr = errors.New("history unavailable")
	extractor := &fakeExtractor{}

	res, err := newTestCrawler(extractor).Crawl(context.Background(), page, newFakeJar("web_session"), profileURL, 2)
	require.NoError(t, err)

	assert.Len(t, res.MetaPaths, 2)
	opens := 0
	for _, u := range page.navigations {
		if u == profileURL {
			opens++
		}
	}
	assert.Equal(t, 3, opens)
}

func TestCrawlInterrupted(t *testing.T) {
	page := openedProfile(profileHTML("a", "b", "c"))
	ctx, cancel := context.WithCancel(context.Background())
	extractor := &fakeExtractor{}
	extractor.hook = func(url string) {
		if url == noteLink("b") {
			cancel()
		}
	}

	res, err := newTestCrawler(extractor).Crawl(ctx, page, newFakeJar("web_session"), profileURL, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, res)
	assert.Len(t, res.MetaPaths, 1)
	assert.Empty(t, res.Failures)
}

func TestCrawlState(t *testing.T) {
	s := NewCrawlState()
	assert.True(t, s.Visit("x"))
	assert.False(t, s.Visit("x"))
	assert.True(t, s.Seen("x"))
	assert.Equal(t, 1, s.VisitedCount())
}

func TestParseNoteLinks(t *testing.T) {
	links, err := ParseNoteLinks(`<a href="/explore/a?xsec_token=1">1</a><a href="https://www.xiaohongshu.com/explore/b">2</a><a href="/explore/a?xsec_token=1">dup</a><a href="/user/profile/x">p</a><a>none</a>`)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.xiaohongshu.com/explore/a?xsec_token=1", noteLink("b")}, links)
}

func TestOpenRecoversFromLoadTimeout(t *testing.T) {
	page := newFakePage("about:blank", "")
	page.navErr[noteURL] = ErrPageLoadTimeout
	require.NoError(t, Open(context.Background(), page, noteURL))
	assert.Equal(t, 1, page.stops)

	page.navErr[noteURL] = errors.New("net::ERR_NAME_NOT_RESOLVED")
	assert.Error(t, Open(context.Background(), page, noteURL))
}

func TestCrawlReopensProfileWhenBackTimesOut(t *testing.T) {
	page := openedProfile(profileHTML("a"))
	page.backErr = errors.Wrap(ErrPageLoadTimeout, "后退超时")
	extractor := &fakeExtractor{}

	res, err := newTestCrawler(extractor).Crawl(context.Background(), page, newFakeJar("web_session"), profileURL, 1)
	require.NoError(t, err)

	assert.Len(t, res.MetaPaths, 1)
	assert.Equal(t, profileURL, page.navigations[len(page.navigations)-1])
}
