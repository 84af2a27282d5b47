package xiaohongshu

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Open 打开页面。加载超时时停止页面加载并继续，已渲染的 DOM 通常仍可使用。
func Open(ctx context.Context, page Page, url string) error {
	err := page.Navigate(ctx, url)
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrPageLoadTimeout) && ctx.Err() == nil {
		logrus.Warn("页面加载超时，正在停止网页加载以提取数据...")
		if stopErr := page.StopLoading(); stopErr != nil {
			logrus.Debugf("停止页面加载失败: %v", stopErr)
		}
		return nil
	}

	return errors.Wrapf(err, "打开页面失败: %s", url)
}
