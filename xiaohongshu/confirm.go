package xiaohongshu

import (
	"bufio"
	"context"
	"io"

	"github.com/sirupsen/logrus"
)

// Confirmer 人工确认登录完成（CLI 回车、HTTP 接口或 MCP 工具）。
// 只有在登录等待进行中时确认才会生效。
type Confirmer struct {
	signal chan struct{}
}

func NewConfirmer() *Confirmer {
	return &Confirmer{signal: make(chan struct{})}
}

// Confirm 非阻塞，返回是否有等待中的登录接收了确认
func (c *Confirmer) Confirm() bool {
	if c == nil {
		return false
	}
	select {
	case c.signal <- struct{}{}:
		return true
	default:
		return false
	}
}

// Await 返回的 channel 在收到确认后关闭；ctx 结束时后台 goroutine 退出，channel 保持打开。
func (c *Confirmer) Await(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if c == nil {
		return done
	}

	go func() {
		select {
		case <-c.signal:
			close(done)
		case <-ctx.Done():
		}
	}()
	return done
}

// ListenLines 每读到一行就尝试确认一次，直到 r 结束
func (c *Confirmer) ListenLines(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if c.Confirm() {
			logrus.Info("收到人工确认，继续执行")
		}
	}
}
