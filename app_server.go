package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/xpzouying/xiaohongshu-harvester/harvest"
	"github.com/xpzouying/xiaohongshu-harvester/xiaohongshu"
)

// harvester HTTP 与 MCP 共用的采集能力
type harvester interface {
	CheckLoginStatus(ctx context.Context) (*harvest.LoginStatus, error)
	Login(ctx context.Context, timeout time.Duration) (*harvest.LoginResult, error)
	ConfirmLogin() bool
	DeleteCookies(ctx context.Context) error
	ScrapeNote(ctx context.Context, url string) (*xiaohongshu.ExtractResult, error)
	CrawlProfile(ctx context.Context, url string, maxItems int) (*xiaohongshu.CrawlResult, error)
	Batch(ctx context.Context, urls []string, maxItems int) (*harvest.BatchResult, error)
}

// AppServer 应用服务器结构体，封装所有服务和处理器
type AppServer struct {
	service    harvester
	webhook    *WebhookSender
	mcpServer  *mcp.Server
	router     *gin.Engine
	httpServer *http.Server

	// ctx 在关闭时取消，请求与后台采集都从它派生
	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup
}

// NewAppServer 创建新的应用服务器实例
func NewAppServer(service harvester) *AppServer {
	ctx, cancel := context.WithCancel(context.Background())
	appServer := &AppServer{
		service: service,
		webhook: NewWebhookSender(),
		ctx:     ctx,
		cancel:  cancel,
	}

	// 工具注册需要访问 appServer
	appServer.mcpServer = InitMCPServer(appServer)
	appServer.router = setupRoutes(appServer)

	return appServer
}

// Start 启动服务器，收到 SIGINT/SIGTERM 后优雅关闭
func (s *AppServer) Start(port string) error {
	s.httpServer = &http.Server{
		Addr:        port,
		Handler:     s.router,
		BaseContext: func(net.Listener) context.Context { return s.ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("启动 HTTP 服务器: %s", port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logrus.Infof("正在关闭服务器...")

	// 先取消进行中的采集，让浏览器会话走完关闭流程
	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logrus.Warnf("等待连接关闭超时，强制退出: %v", err)
	}
	if !s.waitTasks(10 * time.Second) {
		logrus.Warn("后台采集任务未在超时前退出")
	} else {
		logrus.Infof("服务器已优雅关闭")
	}

	return nil
}

// goTask 在服务器上下文中运行后台任务，关闭时取消并等待
func (s *AppServer) goTask(timeout time.Duration, fn func(ctx context.Context)) {
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()

		ctx, cancel := context.WithTimeout(s.ctx, timeout)
		defer cancel()
		fn(ctx)
	}()
}

func (s *AppServer) waitTasks(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.tasks.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
