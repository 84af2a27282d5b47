package main

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
)

// MCP 工具参数结构体定义

// ScrapeNoteArgs 采集单条笔记的参数
type ScrapeNoteArgs struct {
	URL string `json:"url" jsonschema:"小红书笔记链接，如 https://www.xiaohongshu.com/explore/<note_id>"`
}

// CrawlProfileArgs 采集达人主页的参数
type CrawlProfileArgs struct {
	URL      string `json:"url" jsonschema:"达人主页链接，如 https://www.xiaohongshu.com/user/profile/<user_id>"`
	MaxItems int    `json:"max_items,omitempty" jsonschema:"最多采集的笔记条数，默认使用配置值"`
}

// InitMCPServer 初始化 MCP Server
func InitMCPServer(appServer *AppServer) *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "xiaohongshu-harvester",
			Version: "1.0.0",
		},
		nil,
	)

	registerTools(server, appServer)

	logrus.Info("MCP Server initialized with official SDK")

	return server
}

// registerTools 注册所有 MCP 工具
func registerTools(server *mcp.Server, appServer *AppServer) {
	// 工具 1: 检查登录状态
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "check_login_status",
			Description: "检查小红书登录状态（authenticated/unauthenticated/indeterminate）",
		},
		func(ctx context.Context, req *mcp.CallToolRequest, _ any) (*mcp.CallToolResult, any, error) {
			result := appServer.handleCheckLoginStatus(ctx)
			return convertToMCPResult(result), nil, nil
		},
	)

	// 工具 2: 人工确认登录
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "confirm_login",
			Description: "在浏览器中完成扫码后调用，结束正在进行的登录等待",
		},
		func(ctx context.Context, req *mcp.CallToolRequest, _ any) (*mcp.CallToolResult, any, error) {
			result := appServer.handleConfirmLogin()
			return convertToMCPResult(result), nil, nil
		},
	)

	// 工具 3: 采集单条笔记
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "scrape_note",
			Description: "采集一条小红书笔记：下载视频并保存元数据（标题、作者、互动数据、热评等）",
		},
		func(ctx context.Context, req *mcp.CallToolRequest, args ScrapeNoteArgs) (*mcp.CallToolResult, any, error) {
			logrus.Infof("MCP Server: 收到采集请求: %s", args.URL)
			result := appServer.handleScrapeNote(ctx, args)
			return convertToMCPResult(result), nil, nil
		},
	)

	// 工具 4: 采集达人主页
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "crawl_profile",
			Description: "按真实用户方式浏览达人主页，逐条采集笔记，返回成功与失败的笔记列表",
		},
		func(ctx context.Context, req *mcp.CallToolRequest, args CrawlProfileArgs) (*mcp.CallToolResult, any, error) {
			logrus.Infof("MCP Server: 收到主页采集请求: %s (max=%d)", args.URL, args.MaxItems)
			result := appServer.handleCrawlProfile(ctx, args)
			return convertToMCPResult(result), nil, nil
		},
	)

	logrus.Infof("Registered %d MCP tools", 4)
}

// convertToMCPResult 将自定义的 MCPToolResult 转换为官方 SDK 的格式
func convertToMCPResult(result *MCPToolResult) *mcp.CallToolResult {
	var contents []mcp.Content
	for _, c := range result.Content {
		if c.Type == "text" {
			contents = append(contents, &mcp.TextContent{Text: c.Text})
		}
	}

	return &mcp.CallToolResult{
		Content: contents,
		IsError: result.IsError,
	}
}
