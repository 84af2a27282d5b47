package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/xpzouying/xiaohongshu-harvester/pkg/xhsutil"
)

// MCP 工具处理函数

func textResult(text string) *MCPToolResult {
	return &MCPToolResult{
		Content: []MCPContent{{Type: "text", Text: text}},
	}
}

func errorResult(text string) *MCPToolResult {
	r := textResult(text)
	r.IsError = true
	return r
}

// jsonResult 以缩进 JSON 返回结构化结果
func jsonResult(prefix string, v any) *MCPToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("%s，但序列化结果失败: %v", prefix, err))
	}
	return textResult(prefix + "\n\n" + string(data))
}

// handleCheckLoginStatus 处理检查登录状态
func (s *AppServer) handleCheckLoginStatus(ctx context.Context) *MCPToolResult {
	logrus.Info("MCP: 检查登录状态")

	status, err := s.service.CheckLoginStatus(ctx)
	if err != nil {
		return errorResult("检查登录状态失败: " + err.Error())
	}

	if status.IsLoggedIn {
		return jsonResult("✅ 已登录", status)
	}
	return jsonResult("❌ 未确认登录，请调用 HTTP 接口 /api/v1/login/wait 扫码登录", status)
}

// handleConfirmLogin 处理人工确认登录
func (s *AppServer) handleConfirmLogin() *MCPToolResult {
	logrus.Info("MCP: 人工确认登录")

	if s.service.ConfirmLogin() {
		return textResult("已确认登录，采集将继续")
	}
	return textResult("当前没有等待中的登录")
}

// handleScrapeNote 处理采集单条笔记
func (s *AppServer) handleScrapeNote(ctx context.Context, args ScrapeNoteArgs) *MCPToolResult {
	if args.URL == "" {
		return errorResult("采集失败: 缺少 url 参数")
	}
	if xhsutil.IsProfileURL(args.URL) {
		return errorResult("该链接是达人主页，请使用 crawl_profile 工具")
	}

	result, err := s.service.ScrapeNote(ctx, args.URL)
	if err != nil {
		return errorResult("采集笔记失败: " + err.Error())
	}

	return jsonResult(fmt.Sprintf("采集完成: %s", result.MetaPath), result.Metadata)
}

// handleCrawlProfile 处理采集达人主页
func (s *AppServer) handleCrawlProfile(ctx context.Context, args CrawlProfileArgs) *MCPToolResult {
	if args.URL == "" {
		return errorResult("采集失败: 缺少 url 参数")
	}
	if !xhsutil.IsProfileURL(args.URL) {
		return errorResult("该链接不是达人主页: " + args.URL)
	}
	if args.MaxItems < 0 {
		return errorResult("max_items 不能为负数")
	}

	res, err := s.service.CrawlProfile(ctx, args.URL, args.MaxItems)
	if err != nil {
		if res != nil {
			return &MCPToolResult{
				Content: jsonResult("采集被中断: "+err.Error(), crawlResponse(res)).Content,
				IsError: true,
			}
		}
		return errorResult("采集达人主页失败: " + err.Error())
	}

	resp := crawlResponse(res)
	return jsonResult(fmt.Sprintf("采集完成：成功 %d 条，失败 %d 条", len(resp.MetaPaths), len(resp.FailedURLs)), resp)
}
