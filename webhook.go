package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// WebhookPayload webhook 发送的数据结构
type WebhookPayload struct {
	Event     string `json:"event"`           // 事件类型（crawl_profile/crawl_profile_failed）
	Status    string `json:"status"`          // success/failed
	Data      any    `json:"data,omitempty"`  // 采集结果
	Error     string `json:"error,omitempty"` // 失败原因
	Timestamp int64  `json:"timestamp"`       // 发送时间戳
}

// WebhookSender webhook 发送器
type WebhookSender struct {
	client  *http.Client
	timeout time.Duration
}

// NewWebhookSender 创建 webhook 发送器
func NewWebhookSender() *WebhookSender {
	return &WebhookSender{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		timeout: 10 * time.Second,
	}
}

// SendAsync 异步发送 webhook，失败只记录日志
func (w *WebhookSender) SendAsync(webhookURL string, payload WebhookPayload) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logrus.Errorf("webhook panic: %v", r)
			}
		}()

		if err := w.Send(webhookURL, payload); err != nil {
			logrus.Errorf("webhook 发送失败 [%s]: %v", webhookURL, err)
		} else {
			logrus.Infof("webhook 发送成功 [%s]", webhookURL)
		}
	}()
}

// Send 同步发送 webhook
func (w *WebhookSender) Send(webhookURL string, payload WebhookPayload) error {
	if err := validateWebhookURL(webhookURL); err != nil {
		return errors.Wrap(err, "无效的 webhook URL")
	}

	if payload.Timestamp == 0 {
		payload.Timestamp = time.Now().Unix()
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "序列化 payload 失败")
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return errors.Wrap(err, "创建请求失败")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "xiaohongshu-harvester-webhook/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "发送请求失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("webhook 返回非成功状态码: %d", resp.StatusCode)
	}

	return nil
}

// validateWebhookURL 只允许带 host 的 http/https 地址
func validateWebhookURL(webhookURL string) error {
	if webhookURL == "" {
		return errors.New("webhook URL 不能为空")
	}

	u, err := url.Parse(webhookURL)
	if err != nil {
		return errors.Wrap(err, "URL 格式错误")
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("只支持 http 和 https 协议")
	}

	if u.Host == "" {
		return errors.New("URL 必须包含 host")
	}

	return nil
}
