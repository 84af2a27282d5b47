package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/h2non/filetype"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
)

// ErrDownloadFailure 网络/存储错误或文件校验失败，调用方应继续尝试下一个候选
var ErrDownloadFailure = errors.New("download failure")

const (
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultReferer   = "https://www.xiaohongshu.com/"

	// filetype 识别需要的文件头长度
	headerSize = 261
)

// Options 视频下载参数
type Options struct {
	UserAgent string
	Referer   string
	Timeout   time.Duration
	// Retries 额外重试次数，总请求次数为 Retries+1
	Retries  int
	Backoff  time.Duration
	MinBytes int64
	// Progress 在终端显示下载进度条
	Progress bool
	Client   *http.Client
}

// VideoDownloader 流式下载视频直链，仅对 5xx 网关类错误重试
type VideoDownloader struct {
	opts   Options
	client *http.Client
}

// NewVideoDownloader 创建视频下载器
func NewVideoDownloader(opts Options) *VideoDownloader {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Referer == "" {
		opts.Referer = defaultReferer
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	if opts.MinBytes <= 0 {
		opts.MinBytes = 1024
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	return &VideoDownloader{
		opts:   opts,
		client: client,
	}
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("download failed with status: %d", e.code)
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Download 下载 rawURL 到 dest，返回写入的字节数。
// 校验失败时会删除 dest，返回的错误满足 errors.Is(err, ErrDownloadFailure)。
func (d *VideoDownloader) Download(ctx context.Context, rawURL, dest string) (int64, error) {
	if !IsDownloadableURL(rawURL) {
		return 0, errors.Wrapf(ErrDownloadFailure, "无法下载，URL无效或为Blob: %s", rawURL)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return 0, errors.Wrapf(ErrDownloadFailure, "创建下载目录失败: %v", err)
	}

	var written int64
	err := retry.Do(
		func() error {
			n, err := d.fetch(ctx, rawURL, dest)
			written = n
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(d.opts.Retries+1)),
		retry.Delay(d.opts.Backoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var se *statusError
			return errors.As(err, &se) && retryableStatus(se.code)
		}),
		retry.OnRetry(func(n uint, err error) {
			logrus.Warnf("视频下载重试 #%d: %v", n+1, err)
		}),
	)
	if err != nil {
		_ = os.Remove(dest)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, errors.Wrap(ctxErr, "视频下载被中断")
		}
		return 0, errors.Wrapf(ErrDownloadFailure, "%v", err)
	}

	if err := d.validate(dest, written); err != nil {
		_ = os.Remove(dest)
		return 0, errors.Wrapf(ErrDownloadFailure, "%v", err)
	}

	return written, nil
}

func (d *VideoDownloader) fetch(ctx context.Context, rawURL, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", d.opts.UserAgent)
	req.Header.Set("Referer", d.opts.Referer)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "failed to download video")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &statusError{code: resp.StatusCode}
	}

	f, err := os.Create(dest)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create video file")
	}
	defer f.Close()

	var w io.Writer = f
	if d.opts.Progress {
		bar := progressbar.DefaultBytes(resp.ContentLength, "下载视频")
		defer bar.Close()
		w = io.MultiWriter(f, bar)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, errors.Wrap(err, "下载流出错")
	}
	return n, nil
}

func (d *VideoDownloader) validate(dest string, size int64) error {
	if size < d.opts.MinBytes {
		return fmt.Errorf("下载文件过小，可能已损坏: %d bytes", size)
	}

	f, err := os.Open(dest)
	if err != nil {
		return errors.Wrap(err, "failed to open downloaded file")
	}
	defer f.Close()

	head := make([]byte, headerSize)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return errors.Wrap(err, "failed to read file header")
	}

	// 无法识别的流（部分 CDN 返回的分片 mp4）放行，明确识别为非视频的拒绝
	kind, _ := filetype.Match(head[:n])
	if kind != filetype.Unknown && kind.MIME.Type != "video" {
		return fmt.Errorf("downloaded file is not a valid video: %s", kind.MIME.Value)
	}
	return nil
}

// IsDownloadableURL http/https 且带 host 的地址，blob: 永远不可下载
func IsDownloadableURL(rawURL string) bool {
	lower := strings.ToLower(strings.TrimSpace(rawURL))
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return false
	}
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return parsedURL.Host != ""
}
