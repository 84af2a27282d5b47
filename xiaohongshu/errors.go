package xiaohongshu

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/xpzouying/xiaohongshu-harvester/pkg/downloader"
)

var (
	// ErrLoginTimeout 登录等待超时，调用方可以继续但后续抓取可能失败
	ErrLoginTimeout = errors.New("login wait timed out")
	// ErrAssetNotFound 所有视频解析策略都失败
	ErrAssetNotFound = errors.New("video asset not found")
	// ErrPageLoadTimeout 页面在限定时间内没有完成加载
	ErrPageLoadTimeout = errors.New("page load timed out")
	// ErrExtraction 读取页面字段时的其他异常
	ErrExtraction = errors.New("extraction failed")

	ErrDownloadFailure      = downloader.ErrDownloadFailure
	ErrFetchToolUnavailable = downloader.ErrFetchToolUnavailable
)

// NoteError 带上出错笔记的 URL，方便只重试失败的部分
type NoteError struct {
	URL string
	Err error
}

func (e *NoteError) Error() string {
	return fmt.Sprintf("note %s: %v", e.URL, e.Err)
}

func (e *NoteError) Unwrap() error {
	return e.Err
}

func noteError(url string, err error) *NoteError {
	var ne *NoteError
	if errors.As(err, &ne) && ne.URL == url {
		return ne
	}
	return &NoteError{URL: url, Err: err}
}
