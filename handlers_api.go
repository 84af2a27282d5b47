package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/xpzouying/xiaohongshu-harvester/harvest"
	"github.com/xpzouying/xiaohongshu-harvester/pkg/xhsutil"
	"github.com/xpzouying/xiaohongshu-harvester/xiaohongshu"
)

const (
	eventCrawlProfile = "crawl_profile"

	// 异步采集的上限时间
	asyncCrawlTimeout = 2 * time.Hour
)

// respondError 返回错误响应
func respondError(c *gin.Context, statusCode int, code, message string, details any) {
	response := ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	}

	logrus.Errorf("%s %s %d", c.Request.Method, c.Request.URL.Path, statusCode)

	c.JSON(statusCode, response)
}

// respondSuccess 返回成功响应
func respondSuccess(c *gin.Context, data any, message string) {
	response := SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	}

	if respBytes, err := json.Marshal(response); err == nil {
		logrus.Debugf("发送成功响应: %s", xhsutil.Truncate(string(respBytes), 500))
	}

	logrus.Infof("%s %s %d", c.Request.Method, c.Request.URL.Path, http.StatusOK)

	c.JSON(http.StatusOK, response)
}

// respondServiceError 按错误类型选择状态码
func respondServiceError(c *gin.Context, message string, err error) {
	status, code := http.StatusInternalServerError, "HARVEST_FAILED"
	switch {
	case errors.Is(err, harvest.ErrSessionBusy):
		status, code = http.StatusConflict, "SESSION_BUSY"
	case errors.Is(err, harvest.ErrSessionLaunch):
		status, code = http.StatusServiceUnavailable, "SESSION_LAUNCH_FAILED"
	case errors.Is(err, xiaohongshu.ErrLoginTimeout):
		status, code = http.StatusUnauthorized, "LOGIN_TIMEOUT"
	case errors.Is(err, xiaohongshu.ErrAssetNotFound):
		status, code = http.StatusUnprocessableEntity, "ASSET_NOT_FOUND"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "CANCELLED"
	}

	details := map[string]any{"reason": err.Error()}
	var ne *xiaohongshu.NoteError
	if errors.As(err, &ne) {
		details["url"] = ne.URL
	}
	respondError(c, status, code, message, details)
}

func healthHandler(c *gin.Context) {
	respondSuccess(c, map[string]any{
		"status":    "healthy",
		"service":   "xiaohongshu-harvester",
		"timestamp": time.Now().Unix(),
	}, "服务正常")
}

// checkLoginStatusHandler 检查登录状态
func (s *AppServer) checkLoginStatusHandler(c *gin.Context) {
	status, err := s.service.CheckLoginStatus(c.Request.Context())
	if err != nil {
		respondServiceError(c, "检查登录状态失败", err)
		return
	}

	respondSuccess(c, status, "检查登录状态成功")
}

// waitLoginHandler 打开有窗口浏览器等待扫码登录，完成或超时后返回
func (s *AppServer) waitLoginHandler(c *gin.Context) {
	var req LoginWaitRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_REQUEST",
				"请求参数错误", err.Error())
			return
		}
	}

	result, err := s.service.Login(c.Request.Context(), time.Duration(req.TimeoutSeconds)*time.Second)
	if err != nil {
		respondServiceError(c, "登录失败", err)
		return
	}

	respondSuccess(c, result, "登录成功")
}

// confirmLoginHandler 人工确认登录完成，只对进行中的登录等待生效
func (s *AppServer) confirmLoginHandler(c *gin.Context) {
	accepted := s.service.ConfirmLogin()
	message := "已确认登录"
	if !accepted {
		message = "当前没有等待中的登录"
	}

	respondSuccess(c, map[string]any{"accepted": accepted}, message)
}

// deleteCookiesHandler 删除 cookies，重置登录状态
func (s *AppServer) deleteCookiesHandler(c *gin.Context) {
	if err := s.service.DeleteCookies(c.Request.Context()); err != nil {
		respondServiceError(c, "删除 cookies 失败", err)
		return
	}

	respondSuccess(c, map[string]any{
		"message": "Cookies 已成功删除，登录状态已重置。下次操作时需要重新登录。",
	}, "删除 cookies 成功")
}

// scrapeNoteHandler 采集单条笔记，同步返回元数据
func (s *AppServer) scrapeNoteHandler(c *gin.Context) {
	var req ScrapeNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST",
			"请求参数错误", err.Error())
		return
	}

	if xhsutil.IsProfileURL(req.URL) {
		respondError(c, http.StatusBadRequest, "NOT_A_NOTE",
			"该链接是达人主页，请使用 /api/v1/profiles/crawl", req.URL)
		return
	}

	result, err := s.service.ScrapeNote(c.Request.Context(), req.URL)
	if err != nil {
		respondServiceError(c, "采集笔记失败", err)
		return
	}

	respondSuccess(c, result, "采集笔记成功")
}

func crawlResponse(res *xiaohongshu.CrawlResult) *CrawlProfileResponse {
	if res == nil {
		return nil
	}
	metaPaths := res.MetaPaths
	if metaPaths == nil {
		metaPaths = []string{}
	}
	return &CrawlProfileResponse{
		ProfileURL: res.ProfileURL,
		MetaPaths:  metaPaths,
		FailedURLs: res.FailedURLs(),
		Visited:    res.Visited,
	}
}

// crawlProfileHandler 采集达人主页
//
// 提供 webhook 时：
//  1. 立即返回 202 Accepted
//  2. 后台异步执行采集
//  3. 完成后通过 webhook 通知结果（crawl_profile / crawl_profile_failed）
func (s *AppServer) crawlProfileHandler(c *gin.Context) {
	var req CrawlProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST",
			"请求参数错误", err.Error())
		return
	}

	if !xhsutil.IsProfileURL(req.URL) {
		respondError(c, http.StatusBadRequest, "NOT_A_PROFILE",
			"该链接不是达人主页", req.URL)
		return
	}

	if req.Webhook == "" {
		res, err := s.service.CrawlProfile(c.Request.Context(), req.URL, req.MaxItems)
		if err != nil {
			respondServiceError(c, "采集达人主页失败", err)
			return
		}
		respondSuccess(c, crawlResponse(res), "采集达人主页完成")
		return
	}

	if err := validateWebhookURL(req.Webhook); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_WEBHOOK",
			"webhook 地址无效", err.Error())
		return
	}

	c.JSON(http.StatusAccepted, SuccessResponse{
		Success: true,
		Data: map[string]any{
			"status":  "accepted",
			"message": "采集请求已接受，正在后台处理",
			"webhook": req.Webhook,
		},
		Message: "请求已接受，采集结果将通过 webhook 通知",
	})

	// 使用 channel 确保 goroutine 真正启动
	started := make(chan struct{})

	s.goTask(asyncCrawlTimeout, func(ctx context.Context) {
		close(started)

		logrus.Infof("开始异步采集达人主页，webhook: %s", req.Webhook)

		res, err := s.service.CrawlProfile(ctx, req.URL, req.MaxItems)
		if err != nil {
			logrus.Errorf("异步采集失败: %v", err)
			s.webhook.SendAsync(req.Webhook, WebhookPayload{
				Event:  eventCrawlProfile + "_failed",
				Status: "failed",
				Data:   crawlResponse(res),
				Error:  err.Error(),
			})
			return
		}

		s.webhook.SendAsync(req.Webhook, WebhookPayload{
			Event:  eventCrawlProfile,
			Status: "success",
			Data:   crawlResponse(res),
		})
	})

	select {
	case <-started:
	case <-time.After(100 * time.Millisecond):
		logrus.Warn("等待异步任务启动超时")
	}
}

// batchHandler 批量采集，中断时返回已完成的部分
func (s *AppServer) batchHandler(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST",
			"请求参数错误", err.Error())
		return
	}

	res, err := s.service.Batch(c.Request.Context(), req.URLs, req.MaxItems)
	if err != nil {
		if res == nil {
			respondServiceError(c, "批量采集失败", err)
			return
		}
		logrus.Warnf("批量采集未完成: %v", err)
	}

	respondSuccess(c, res, "批量采集结束")
}
